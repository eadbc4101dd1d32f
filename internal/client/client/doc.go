// Package client talks to the remote account service.
//
// # Overview
//
//  1. A transport-agnostic contract (Client) with the operations the CLI
//     needs: CreateAccount, SignIn, CurrentUser, SignOut and Ping.
//  2. A gRPC implementation (GRPCClient) that keeps the issued session in a
//     TokenStore, injects the access token via an interceptor, transparently
//     refreshes an expired token once, and maps status codes to sentinels.
//
// # Error Handling
//
// Failed calls return *ServiceError, which matches one of ErrUnauthorized,
// ErrUnavailable, ErrAlreadyExists, ErrInvalidArgument or ErrRemote with
// errors.Is. ErrEmptyResponse marks a successful call with nothing in it.
//
// All operations accept context.Context and honor cancellation.
package client
