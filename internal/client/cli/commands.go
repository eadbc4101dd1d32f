package cli

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/gophauth/internal/client/flow"
)

// WhoAmI prints the verified user.
func (a *App) WhoAmI(ctx context.Context) error {
	u := a.auth.Snapshot().CurrentUser
	if u == nil {
		fmt.Fprintln(a.out, "Not signed in")
		return nil
	}
	fmt.Fprintf(a.out, "ID:       %s\n", u.ID)
	fmt.Fprintf(a.out, "Name:     %s\n", u.Name)
	fmt.Fprintf(a.out, "Username: %s\n", u.Username)
	fmt.Fprintf(a.out, "Email:    %s\n", u.Email)
	if u.ImageURL != "" {
		fmt.Fprintf(a.out, "Image:    %s\n", u.ImageURL)
	}
	return nil
}

// Verify asks the service again whether the session is still good.
func (a *App) Verify(ctx context.Context) error {
	if a.auth.VerifySession(ctx) {
		fmt.Fprintln(a.out, "Session verified")
		return nil
	}
	fmt.Fprintln(a.out, "Session could not be verified")
	return nil
}

// SignOut ends the session. The local session is dropped even when the
// service could not be reached.
func (a *App) SignOut(ctx context.Context) error {
	a.flows.Cancel()

	err := a.auth.SignOut(ctx)
	a.navigate(flow.RouteSignIn)
	if err != nil {
		a.log.Warn(ctx, "remote sign out failed", "error", err)
		if cerr := a.keeper.Clear(ctx); cerr != nil {
			a.log.Error(ctx, "failed to clear session", "error", cerr)
		}
		fmt.Fprintln(a.out, "Signed out locally")
		return nil
	}
	fmt.Fprintln(a.out, "Signed out")
	return nil
}
