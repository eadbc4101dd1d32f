package flow

import (
	"fmt"

	"github.com/dmitrijs2005/gophauth/internal/client/validation"
)

// State is a node of the flow state machine.
type State string

const (
	StateIdle       State = "idle"
	StateValidating State = "validating"
	StateCreating   State = "creating"
	StateSigningIn  State = "signing-in"
	StateVerifying  State = "verifying"
	StateSucceeded  State = "succeeded"
	StateFailed     State = "failed"
)

// Stage names the step a flow failed at.
type Stage string

const (
	StageValidation   Stage = "validation"
	StageCreation     Stage = "creation"
	StageSignIn       Stage = "signin"
	StageVerification Stage = "verification"
)

type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	// StatusSuperseded marks an invocation that was replaced or cancelled
	// before it finished, or whose verification lost to a newer one. Beyond
	// clearing the loading indicator it produced no user-visible effect.
	StatusSuperseded Status = "superseded"
)

// Routes of the application.
const (
	RouteHome   = "/"
	RouteSignIn = "/sign-in"
	RouteSignUp = "/sign-up"
)

// User-facing messages. Raw service errors are never shown.
const (
	MsgSignUpFailed     = "Sign up failed. Please try again."
	MsgSignInNewAccount = "Something went wrong. Please login your new account"
	MsgLoginFailed      = "Login failed. Please try again."
	MsgUnexpected       = "Something went wrong. Please try again."
)

// Outcome is the terminal result of one Submit.
type Outcome struct {
	ID     string
	Kind   validation.Kind
	Status Status
	// Stage is empty on success.
	Stage       Stage
	Message     string
	NavigateTo  string
	FieldErrors validation.FieldErrors
	// Err is the internal cause, for logs only.
	Err error
}

func (o Outcome) Succeeded() bool {
	return o.Status == StatusSucceeded
}

func (o Outcome) String() string {
	if o.Status == StatusSucceeded {
		return fmt.Sprintf("%s %s: succeeded -> %s", o.Kind, o.ID, o.NavigateTo)
	}
	return fmt.Sprintf("%s %s: %s at %s", o.Kind, o.ID, o.Status, o.Stage)
}

// UnexpectedError wraps a panic recovered from the account service client.
type UnexpectedError struct {
	Value any
	Stack []byte
}

func (e *UnexpectedError) Error() string {
	return fmt.Sprintf("unexpected panic: %v", e.Value)
}
