// Package authstate owns the process-wide authentication state: who the
// verified current user is, and whether a verification is in flight.
//
// The state changes only through Verify, VerifySession and SignOut. A session
// obtained by signing in proves nothing until a verification has confirmed it
// with the account service.
package authstate

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dmitrijs2005/gophauth/internal/client/client"
	"github.com/dmitrijs2005/gophauth/internal/client/models"
	"github.com/dmitrijs2005/gophauth/internal/logging"
)

// Verifier resolves the user behind the current session.
type Verifier interface {
	CurrentUser(ctx context.Context) (models.User, error)
}

// Revoker ends the current session remotely and locally.
type Revoker interface {
	SignOut(ctx context.Context) error
}

// SessionClearer forgets the locally kept session.
type SessionClearer interface {
	Clear(ctx context.Context) error
}

// State is a snapshot of the auth state.
type State struct {
	CurrentUser *models.User
	IsLoading   bool
}

// Authenticated reports whether the last verification succeeded.
func (s State) Authenticated() bool {
	return s.CurrentUser != nil
}

// Store is the single auth state instance of the application. It is safe
// for concurrent use.
type Store struct {
	verifier Verifier
	revoker  Revoker
	sessions SessionClearer
	log      logging.Logger

	mu        sync.Mutex
	current   *models.User
	inFlight  int
	initiated uint64
	listeners []func(State)
}

// NewStore returns an unauthenticated store. revoker and sessions may be nil.
func NewStore(verifier Verifier, revoker Revoker, sessions SessionClearer, log logging.Logger) *Store {
	return &Store{verifier: verifier, revoker: revoker, sessions: sessions, log: log}
}

// Snapshot returns the current state.
func (s *Store) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Store) snapshotLocked() State {
	st := State{IsLoading: s.inFlight > 0}
	if s.current != nil {
		u := *s.current
		st.CurrentUser = &u
	}
	return st
}

// Subscribe registers fn to be called after every state change. Callbacks
// run on the goroutine that changed the state, outside the store lock.
func (s *Store) Subscribe(fn func(State)) {
	s.mu.Lock()
	s.listeners = append(s.listeners, fn)
	s.mu.Unlock()
}

func (s *Store) publish(st State, listeners []func(State)) {
	for _, fn := range listeners {
		fn(st)
	}
}

// ErrSuperseded is returned by Verify when a newer verification or a sign-out
// started while the call was in flight, or when its ctx was done before the
// answer arrived. The state was left untouched.
var ErrSuperseded = errors.New("verification superseded")

// ErrNotVerified wraps the reason the account service did not confirm the
// session.
var ErrNotVerified = errors.New("session not verified")

// VerifySession asks the account service who the current session belongs to
// and records the answer. It returns true when the session was confirmed.
func (s *Store) VerifySession(ctx context.Context) bool {
	return s.Verify(ctx) == nil
}

// Verify is VerifySession with the reason for a negative answer. It returns
// nil when the session was confirmed, ErrSuperseded when the call lost to a
// newer one, and an error wrapping ErrNotVerified otherwise.
//
// Only the most recently initiated call may write CurrentUser.
func (s *Store) Verify(ctx context.Context) error {
	s.mu.Lock()
	s.initiated++
	ticket := s.initiated
	s.inFlight++
	st, ls := s.snapshotLocked(), s.listeners
	s.mu.Unlock()
	s.publish(st, ls)

	user, err := s.verifier.CurrentUser(ctx)
	if err == nil && user.ID == "" {
		err = client.ErrEmptyResponse
	}

	s.mu.Lock()
	s.inFlight--
	authoritative := ticket == s.initiated && ctx.Err() == nil
	if authoritative {
		if err == nil {
			s.current = &user
		} else {
			s.current = nil
		}
	}
	st, ls = s.snapshotLocked(), s.listeners
	s.mu.Unlock()
	s.publish(st, ls)

	if !authoritative {
		s.log.Debug(ctx, "verification superseded", "ticket", ticket)
		return ErrSuperseded
	}
	if err != nil {
		s.log.Info(ctx, "session not verified", "error", err)
		if errors.Is(err, client.ErrUnauthorized) && s.sessions != nil {
			if cerr := s.sessions.Clear(ctx); cerr != nil {
				s.log.Warn(ctx, "failed to clear rejected session", "error", cerr)
			}
		}
		return fmt.Errorf("%w: %w", ErrNotVerified, err)
	}
	return nil
}

// SignOut revokes the session and clears the current user. Any verification
// still in flight is superseded.
func (s *Store) SignOut(ctx context.Context) error {
	var err error
	if s.revoker != nil {
		err = s.revoker.SignOut(ctx)
	}
	if err == nil && s.sessions != nil {
		err = s.sessions.Clear(ctx)
	}

	s.mu.Lock()
	s.initiated++
	s.current = nil
	st, ls := s.snapshotLocked(), s.listeners
	s.mu.Unlock()
	s.publish(st, ls)

	return err
}
