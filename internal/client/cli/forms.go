package cli

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/gophauth/internal/client/flow"
	"github.com/dmitrijs2005/gophauth/internal/client/validation"
	"github.com/dmitrijs2005/gophauth/internal/common"
)

// getSimpleText and getPassword point at the interactive helpers and are
// swapped in tests.
var (
	getSimpleText = GetSimpleText
	getPassword   = GetPassword
)

// form keeps what was typed between attempts, like a page that was not
// reloaded. The password is never kept past a submission.
type form struct {
	kind     validation.Kind
	values   validation.Input
	password []byte
}

func (f *form) reset() {
	f.wipePassword()
	f.values = validation.Input{}
}

func (f *form) wipePassword() {
	common.WipeByteArray(f.password)
	f.password = nil
}

type formField struct {
	label string
	dst   *string
}

func (f *form) fields() []formField {
	var fs []formField
	if f.kind == validation.KindSignUp {
		fs = append(fs,
			formField{validation.FieldLabel(validation.FieldName), &f.values.Name},
			formField{validation.FieldLabel(validation.FieldUsername), &f.values.Username},
		)
	}
	return append(fs, formField{validation.FieldLabel(validation.FieldEmail), &f.values.Email})
}

// SignUp shows the sign-up form and submits it.
func (a *App) SignUp(ctx context.Context) error {
	return a.submitForm(ctx, validation.KindSignUp, flow.RouteSignUp)
}

// SignIn shows the sign-in form and submits it.
func (a *App) SignIn(ctx context.Context) error {
	return a.submitForm(ctx, validation.KindSignIn, flow.RouteSignIn)
}

func (a *App) submitForm(ctx context.Context, kind validation.Kind, route string) error {
	if u := a.auth.Snapshot().CurrentUser; u != nil {
		fmt.Fprintf(a.out, "Already signed in as %s\n", u.Label())
		return nil
	}
	a.navigate(route)

	f := a.forms[kind]
	for _, field := range f.fields() {
		prompt := field.label
		if *field.dst != "" {
			prompt = fmt.Sprintf("%s [%s]", field.label, *field.dst)
		}
		v, err := getSimpleText(a.reader, prompt, a.out)
		if err != nil {
			return err
		}
		// An empty answer keeps what was typed last time.
		if v != "" {
			*field.dst = v
		}
	}

	pw, err := getPassword(a.out)
	if err != nil {
		return err
	}
	f.password = pw

	in := f.values
	in.Password = string(pw)

	a.presenter.attach(f)
	out := a.flows.Submit(ctx, kind, in)
	a.presenter.attach(nil)
	f.wipePassword()

	a.log.Debug(ctx, "form submitted", "outcome", out.String())
	if out.Succeeded() {
		if u := a.auth.Snapshot().CurrentUser; u != nil {
			fmt.Fprintf(a.out, "Signed in as %s\n", u.Label())
		}
	}
	return nil
}
