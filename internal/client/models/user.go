package models

// User is an account record resolved by the account service.
// A User is only ever trusted after the current session was verified.
type User struct {
	// ID is the service-assigned account identifier; never empty for a real account.
	ID string

	Name     string
	Username string
	Email    string

	// ImageURL is an optional avatar location.
	ImageURL string
}

// Label returns a short human-readable identity for prompts.
func (u User) Label() string {
	if u.Username != "" {
		return "@" + u.Username
	}
	return u.Email
}

// NewAccount is the validated payload for account creation.
type NewAccount struct {
	Name     string
	Username string
	Email    string
	Password string
}

// Credentials is the validated payload for signing in.
type Credentials struct {
	Email    string
	Password string
}
