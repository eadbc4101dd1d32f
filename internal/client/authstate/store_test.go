package authstate

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/gophauth/internal/client/client"
	"github.com/dmitrijs2005/gophauth/internal/client/models"
	"github.com/dmitrijs2005/gophauth/internal/logging"
)

type answer struct {
	user models.User
	err  error
}

// fakeVerifier answers from a fixed value, or blocks on a per-call channel
// when gates are queued.
type fakeVerifier struct {
	mu     sync.Mutex
	fixed  answer
	gates  []chan answer
	calls  int
	called chan struct{}
}

func (f *fakeVerifier) CurrentUser(ctx context.Context) (models.User, error) {
	f.mu.Lock()
	f.calls++
	var gate chan answer
	if len(f.gates) > 0 {
		gate, f.gates = f.gates[0], f.gates[1:]
	}
	fixed := f.fixed
	called := f.called
	f.mu.Unlock()

	if called != nil {
		called <- struct{}{}
	}
	if gate == nil {
		return fixed.user, fixed.err
	}
	a := <-gate
	return a.user, a.err
}

type fakeSessions struct {
	clears int
	err    error
}

func (f *fakeSessions) Clear(ctx context.Context) error {
	f.clears++
	return f.err
}

type fakeRevoker struct {
	calls int
	err   error
}

func (f *fakeRevoker) SignOut(ctx context.Context) error {
	f.calls++
	return f.err
}

func TestNewStore_StartsUnauthenticated(t *testing.T) {
	s := NewStore(&fakeVerifier{}, nil, nil, logging.Discard())

	st := s.Snapshot()
	assert.Nil(t, st.CurrentUser)
	assert.False(t, st.IsLoading)
	assert.False(t, st.Authenticated())
}

func TestVerifySession_SuccessSetsUser(t *testing.T) {
	v := &fakeVerifier{fixed: answer{user: models.User{ID: "u1", Email: "a@b.com"}}}
	s := NewStore(v, nil, nil, logging.Discard())

	require.True(t, s.VerifySession(context.Background()))
	st := s.Snapshot()
	require.NotNil(t, st.CurrentUser)
	assert.Equal(t, "u1", st.CurrentUser.ID)
	assert.False(t, st.IsLoading)
}

func TestVerifySession_FailureClearsUser(t *testing.T) {
	v := &fakeVerifier{fixed: answer{user: models.User{ID: "u1"}}}
	sessions := &fakeSessions{}
	s := NewStore(v, nil, sessions, logging.Discard())
	require.True(t, s.VerifySession(context.Background()))

	v.fixed = answer{err: client.ErrUnavailable}
	assert.False(t, s.VerifySession(context.Background()))
	assert.Nil(t, s.Snapshot().CurrentUser)
	assert.Zero(t, sessions.clears, "only a rejected session is forgotten")
}

func TestVerifySession_UnauthorizedForgetsSession(t *testing.T) {
	sessions := &fakeSessions{}
	s := NewStore(&fakeVerifier{fixed: answer{err: client.ErrNoSession}}, nil, sessions, logging.Discard())

	assert.False(t, s.VerifySession(context.Background()))
	assert.Equal(t, 1, sessions.clears)
}

func TestVerifySession_EmptyUserIsFailure(t *testing.T) {
	s := NewStore(&fakeVerifier{fixed: answer{user: models.User{}}}, nil, nil, logging.Discard())

	assert.False(t, s.VerifySession(context.Background()))
	assert.Nil(t, s.Snapshot().CurrentUser)
}

func TestVerifySession_Idempotent(t *testing.T) {
	v := &fakeVerifier{fixed: answer{user: models.User{ID: "u1", Username: "ann"}}}
	s := NewStore(v, nil, nil, logging.Discard())

	first := s.VerifySession(context.Background())
	u1 := s.Snapshot().CurrentUser
	second := s.VerifySession(context.Background())
	u2 := s.Snapshot().CurrentUser

	assert.Equal(t, first, second)
	assert.Equal(t, u1, u2)
}

func TestVerifySession_LoadingDuringFlight(t *testing.T) {
	gate := make(chan answer)
	v := &fakeVerifier{gates: []chan answer{gate}, called: make(chan struct{}, 1)}
	s := NewStore(v, nil, nil, logging.Discard())

	var seen []bool
	var mu sync.Mutex
	s.Subscribe(func(st State) {
		mu.Lock()
		seen = append(seen, st.IsLoading)
		mu.Unlock()
	})

	done := make(chan bool)
	go func() { done <- s.VerifySession(context.Background()) }()

	<-v.called
	assert.True(t, s.Snapshot().IsLoading)
	gate <- answer{user: models.User{ID: "u1"}}
	require.True(t, <-done)

	assert.False(t, s.Snapshot().IsLoading)
	mu.Lock()
	assert.Equal(t, []bool{true, false}, seen)
	mu.Unlock()
}

func TestVerifySession_LastInitiatedWins(t *testing.T) {
	older, newer := make(chan answer), make(chan answer)
	v := &fakeVerifier{gates: []chan answer{older, newer}, called: make(chan struct{}, 2)}
	s := NewStore(v, nil, nil, logging.Discard())

	olderDone := make(chan bool)
	go func() { olderDone <- s.VerifySession(context.Background()) }()
	<-v.called

	newerDone := make(chan bool)
	go func() { newerDone <- s.VerifySession(context.Background()) }()
	<-v.called

	// The newer call resolves first with a failure...
	newer <- answer{err: client.ErrUnavailable}
	require.False(t, <-newerDone)

	// ...and the older success arriving late must not overwrite it.
	older <- answer{user: models.User{ID: "stale"}}
	require.False(t, <-olderDone)

	st := s.Snapshot()
	assert.Nil(t, st.CurrentUser)
	assert.False(t, st.IsLoading)
}

func TestVerifySession_CancelledBeforeAnswerWritesNothing(t *testing.T) {
	gate := make(chan answer)
	v := &fakeVerifier{gates: []chan answer{gate}, called: make(chan struct{}, 1)}
	s := NewStore(v, nil, nil, logging.Discard())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan bool)
	go func() { done <- s.VerifySession(ctx) }()
	<-v.called

	cancel()
	gate <- answer{user: models.User{ID: "u1"}}
	assert.False(t, <-done)
	assert.Nil(t, s.Snapshot().CurrentUser)
}

func TestSignOut_ClearsUserAndSession(t *testing.T) {
	revoker := &fakeRevoker{}
	sessions := &fakeSessions{}
	s := NewStore(&fakeVerifier{fixed: answer{user: models.User{ID: "u1"}}}, revoker, sessions, logging.Discard())
	require.True(t, s.VerifySession(context.Background()))

	require.NoError(t, s.SignOut(context.Background()))
	assert.Nil(t, s.Snapshot().CurrentUser)
	assert.Equal(t, 1, revoker.calls)
	assert.Equal(t, 1, sessions.clears)
}

func TestSignOut_RemoteErrorStillClearsUser(t *testing.T) {
	boom := errors.New("boom")
	s := NewStore(&fakeVerifier{fixed: answer{user: models.User{ID: "u1"}}}, &fakeRevoker{err: boom}, nil, logging.Discard())
	require.True(t, s.VerifySession(context.Background()))

	require.ErrorIs(t, s.SignOut(context.Background()), boom)
	assert.Nil(t, s.Snapshot().CurrentUser)
}

func TestSnapshot_ReturnsCopy(t *testing.T) {
	s := NewStore(&fakeVerifier{fixed: answer{user: models.User{ID: "u1", Name: "Ann"}}}, nil, nil, logging.Discard())
	require.True(t, s.VerifySession(context.Background()))

	st := s.Snapshot()
	st.CurrentUser.Name = "changed"
	assert.Equal(t, "Ann", s.Snapshot().CurrentUser.Name)
}

func TestVerify_OlderCallReportsSuperseded(t *testing.T) {
	older, newer := make(chan answer), make(chan answer)
	v := &fakeVerifier{gates: []chan answer{older, newer}, called: make(chan struct{}, 2)}
	s := NewStore(v, nil, nil, logging.Discard())

	olderDone := make(chan error)
	go func() { olderDone <- s.Verify(context.Background()) }()
	<-v.called

	newerDone := make(chan error)
	go func() { newerDone <- s.Verify(context.Background()) }()
	<-v.called

	newer <- answer{user: models.User{ID: "u1"}}
	require.NoError(t, <-newerDone)

	// The older call was confirmed by the service but lost the race.
	older <- answer{user: models.User{ID: "u1"}}
	err := <-olderDone
	assert.ErrorIs(t, err, ErrSuperseded)
	assert.NotErrorIs(t, err, ErrNotVerified)
	assert.Equal(t, "u1", s.Snapshot().CurrentUser.ID)
}

func TestVerify_RejectionWrapsCause(t *testing.T) {
	s := NewStore(&fakeVerifier{fixed: answer{err: client.ErrUnavailable}}, nil, nil, logging.Discard())

	err := s.Verify(context.Background())
	assert.ErrorIs(t, err, ErrNotVerified)
	assert.ErrorIs(t, err, client.ErrUnavailable)
	assert.NotErrorIs(t, err, ErrSuperseded)
}

func TestVerify_SignOutDuringFlightReportsSuperseded(t *testing.T) {
	gate := make(chan answer)
	v := &fakeVerifier{gates: []chan answer{gate}, called: make(chan struct{}, 1)}
	s := NewStore(v, nil, nil, logging.Discard())

	done := make(chan error)
	go func() { done <- s.Verify(context.Background()) }()
	<-v.called

	require.NoError(t, s.SignOut(context.Background()))
	gate <- answer{user: models.User{ID: "u1"}}
	assert.ErrorIs(t, <-done, ErrSuperseded)
	assert.Nil(t, s.Snapshot().CurrentUser)
}
