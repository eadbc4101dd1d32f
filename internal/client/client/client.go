package client

import (
	"context"

	"github.com/dmitrijs2005/gophauth/internal/client/models"
)

// Client is the account service as seen by the CLI. Any non-nil error is a
// service failure; callers that only need a yes/no must not parse it.
type Client interface {
	CreateAccount(ctx context.Context, acc models.NewAccount) (models.User, error)
	SignIn(ctx context.Context, creds models.Credentials) (models.Session, error)
	// CurrentUser resolves the user behind the kept session.
	CurrentUser(ctx context.Context) (models.User, error)
	SignOut(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

// TokenStore keeps the session the client authenticates with.
// session.Keeper implements it.
type TokenStore interface {
	Current() (models.Session, bool)
	Save(ctx context.Context, s models.Session) error
	Clear(ctx context.Context) error
}
