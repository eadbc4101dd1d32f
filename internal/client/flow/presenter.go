package flow

import "github.com/dmitrijs2005/gophauth/internal/client/validation"

// Presenter receives the user-visible effects of a flow. Calls are made while
// the orchestrator holds its lock, so implementations must not call back into
// the Orchestrator.
type Presenter interface {
	// ShowFieldErrors renders messages under the matching fields.
	ShowFieldErrors(errs validation.FieldErrors)
	// Notify shows a transient notice.
	Notify(message string)
	// Navigate changes the current route.
	Navigate(route string)
	// SetLoading toggles the busy indicator and the submit control.
	SetLoading(loading bool)
	// ClearInput resets the form.
	ClearInput()
}
