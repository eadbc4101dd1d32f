// Package validation turns raw form input into validated credentials or a
// set of field-scoped error messages. It is pure: no I/O, no side effects.
package validation

import (
	"fmt"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/dmitrijs2005/gophauth/internal/client/models"
)

// Kind selects which form is being validated.
type Kind string

const (
	KindSignIn Kind = "sign-in"
	KindSignUp Kind = "sign-up"
)

// Field names as used in FieldErrors.
const (
	FieldName     = "name"
	FieldUsername = "username"
	FieldEmail    = "email"
	FieldPassword = "password"
)

var fieldLabels = map[string]string{
	FieldName:     "Name",
	FieldUsername: "Username",
	FieldEmail:    "Email",
	FieldPassword: "Password",
}

// FieldLabel returns the display name of a field.
func FieldLabel(field string) string {
	if l, ok := fieldLabels[field]; ok {
		return l
	}
	return field
}

// Input holds raw values typed into a form. Sign-in ignores Name and Username.
type Input struct {
	Name     string
	Username string
	Email    string
	Password string
}

// Credential is Input after validation; fields are trimmed except Password.
type Credential struct {
	Name     string
	Username string
	Email    string
	Password string
}

// NewAccount returns the payload for account creation.
func (c Credential) NewAccount() models.NewAccount {
	return models.NewAccount{Name: c.Name, Username: c.Username, Email: c.Email, Password: c.Password}
}

// Credentials returns the payload for signing in.
func (c Credential) Credentials() models.Credentials {
	return models.Credentials{Email: c.Email, Password: c.Password}
}

// FieldErrors maps a field name to one or more human-readable messages.
type FieldErrors map[string][]string

func (fe FieldErrors) add(field, msg string) {
	fe[field] = append(fe[field], msg)
}

// Fields returns the failing field names in a stable order.
func (fe FieldErrors) Fields() []string {
	out := make([]string, 0, len(fe))
	for f := range fe {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

func (fe FieldErrors) Error() string {
	parts := make([]string, 0, len(fe))
	for _, f := range fe.Fields() {
		parts = append(parts, f+": "+strings.Join(fe[f], "; "))
	}
	return "invalid input: " + strings.Join(parts, ", ")
}

// Rules are the length constraints loaded from configuration.
type Rules struct {
	MinNameLength     int
	MinUsernameLength int
	// MinPasswordLength applies to sign-up only; signing in just needs a password.
	MinPasswordLength int
}

// DefaultRules mirrors the constraints of the hosted account service.
func DefaultRules() Rules {
	return Rules{MinNameLength: 2, MinUsernameLength: 2, MinPasswordLength: 8}
}

const (
	maxEmailLength    = 254
	maxPasswordLength = 72
	maxTextLength     = 128
)

// Validator validates form input against Rules. It is safe for concurrent use.
type Validator struct {
	v     *validator.Validate
	rules Rules
}

func New(rules Rules) *Validator {
	return &Validator{v: validator.New(validator.WithRequiredStructEnabled()), rules: rules}
}

type fieldCheck struct {
	field string
	value string
	tag   string
}

// Validate checks in for the given form kind. When the returned FieldErrors
// is nil the Credential is safe to send to the account service.
func (v *Validator) Validate(in Input, kind Kind) (Credential, FieldErrors) {
	c := Credential{
		Name:     strings.TrimSpace(in.Name),
		Username: strings.TrimSpace(in.Username),
		Email:    strings.TrimSpace(in.Email),
		Password: in.Password,
	}

	var checks []fieldCheck
	if kind == KindSignUp {
		checks = append(checks,
			fieldCheck{FieldName, c.Name, fmt.Sprintf("required,min=%d,max=%d", v.rules.MinNameLength, maxTextLength)},
			fieldCheck{FieldUsername, c.Username, fmt.Sprintf("required,min=%d,max=%d", v.rules.MinUsernameLength, maxTextLength)},
		)
	}
	checks = append(checks, fieldCheck{FieldEmail, c.Email, fmt.Sprintf("required,email,max=%d", maxEmailLength)})

	// Blank passwords are rejected without trimming what the user typed.
	pwTag := fmt.Sprintf("required,max=%d", maxPasswordLength)
	if kind == KindSignUp {
		pwTag = fmt.Sprintf("required,min=%d,max=%d", v.rules.MinPasswordLength, maxPasswordLength)
	}
	pwValue := c.Password
	if strings.TrimSpace(pwValue) == "" {
		pwValue = ""
	}
	checks = append(checks, fieldCheck{FieldPassword, pwValue, pwTag})

	errs := FieldErrors{}
	for _, chk := range checks {
		err := v.v.Var(chk.value, chk.tag)
		if err == nil {
			continue
		}
		verrs, ok := err.(validator.ValidationErrors)
		if !ok {
			errs.add(chk.field, fieldLabels[chk.field]+" is invalid")
			continue
		}
		for _, fe := range verrs {
			errs.add(chk.field, message(chk.field, fe))
		}
	}

	if len(errs) > 0 {
		return Credential{}, errs
	}
	return c, nil
}

func message(field string, fe validator.FieldError) string {
	label := fieldLabels[field]
	switch fe.Tag() {
	case "required":
		return label + " is required"
	case "email":
		return "Invalid email address"
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", label, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", label, fe.Param())
	default:
		return label + " is invalid"
	}
}
