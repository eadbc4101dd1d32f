// Package cli provides the interactive gophauth command-line client.
//
// It wires configuration, the session keeper, the account service client,
// the auth state store and the sign-up/sign-in flows behind a small REPL.
// The REPL has three routes, mirroring the pages of a web client:
//
//	/sign-in   sign-in form (start page when no session is verified)
//	/sign-up   sign-up form
//	/          home, only reachable with a verified session
//
// On start the persisted session is restored and verified to pick the
// initial route. A background watcher pings the service and shows
// online/offline in the prompt.
//
// The REPL is started via App.Run(ctx), which blocks until the user exits.
package cli
