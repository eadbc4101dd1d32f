// Package flow drives the sign-up and sign-in flows.
//
// Both flows are one state machine:
//
//	Idle → Validating → (Creating →) SigningIn → Verifying → Succeeded | Failed
//
// where Creating only runs for sign-up. Each step waits for the previous one;
// nothing runs in parallel and nothing is retried. Every Submit ends in
// exactly one Outcome, and the user-visible effects of that outcome (field
// errors, a notice, clearing the form, navigation) are delivered through a
// Presenter.
//
// A newer Submit on the same Orchestrator supersedes the older one: the older
// invocation's context is cancelled, it can no longer write auth state, and
// none of its effects reach the Presenter.
package flow
