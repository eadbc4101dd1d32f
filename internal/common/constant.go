// Package common holds values shared by the client packages and the wire
// contract they speak.
package common

// AccessTokenHeaderName is the gRPC metadata key carrying the session's
// access token on outbound requests.
const AccessTokenHeaderName = "access_token"

// TokenExpiredMessage is the status message the account service attaches to
// codes.Unauthenticated when the access token is expired but refreshable.
const TokenExpiredMessage = "token expired"
