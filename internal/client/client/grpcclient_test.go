package client

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/dmitrijs2005/gophauth/internal/client/models"
	"github.com/dmitrijs2005/gophauth/internal/client/session"
	"github.com/dmitrijs2005/gophauth/internal/common"
	pb "github.com/dmitrijs2005/gophauth/internal/proto"
)

// fakeAccountServer records calls and answers with preset values.
type fakeAccountServer struct {
	mu sync.Mutex

	createResp *pb.CreateAccountResponse
	createErr  error
	signInResp *pb.SignInResponse
	signInErr  error
	// currentUser is called with the incoming access token.
	currentUser func(token string) (*pb.GetCurrentUserResponse, error)
	refreshResp *pb.RefreshTokenResponse
	refreshErr  error
	signOutErr  error
	pingStatus  string

	lastCreate   *pb.CreateAccountRequest
	lastSignIn   *pb.SignInRequest
	lastRefresh  *pb.RefreshTokenRequest
	tokensSeen   []string
	signOutCalls int
}

func tokenFrom(ctx context.Context) string {
	md, _ := metadata.FromIncomingContext(ctx)
	if v := md.Get(common.AccessTokenHeaderName); len(v) > 0 {
		return v[0]
	}
	return ""
}

func (f *fakeAccountServer) CreateAccount(ctx context.Context, in *pb.CreateAccountRequest) (*pb.CreateAccountResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastCreate = in
	return f.createResp, f.createErr
}

func (f *fakeAccountServer) SignIn(ctx context.Context, in *pb.SignInRequest) (*pb.SignInResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastSignIn = in
	return f.signInResp, f.signInErr
}

func (f *fakeAccountServer) GetCurrentUser(ctx context.Context, in *pb.GetCurrentUserRequest) (*pb.GetCurrentUserResponse, error) {
	tok := tokenFrom(ctx)
	f.mu.Lock()
	f.tokensSeen = append(f.tokensSeen, tok)
	fn := f.currentUser
	f.mu.Unlock()
	return fn(tok)
}

func (f *fakeAccountServer) RefreshToken(ctx context.Context, in *pb.RefreshTokenRequest) (*pb.RefreshTokenResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastRefresh = in
	return f.refreshResp, f.refreshErr
}

func (f *fakeAccountServer) SignOut(ctx context.Context, in *pb.SignOutRequest) (*pb.SignOutResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.signOutCalls++
	return &pb.SignOutResponse{}, f.signOutErr
}

func (f *fakeAccountServer) Ping(ctx context.Context, in *pb.PingRequest) (*pb.PingResponse, error) {
	return &pb.PingResponse{Status: f.pingStatus}, nil
}

func startClient(t *testing.T, srv pb.AccountServiceServer, tokens TokenStore) *GRPCClient {
	t.Helper()

	lis := bufconn.Listen(1 << 20)
	gs := grpc.NewServer()
	pb.RegisterAccountServiceServer(gs, srv)
	go func() { _ = gs.Serve(lis) }()
	t.Cleanup(gs.Stop)

	c, err := NewAccountClient("passthrough:///bufnet", tokens, 5*time.Second,
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestCreateAccount_Success(t *testing.T) {
	f := &fakeAccountServer{createResp: &pb.CreateAccountResponse{User: &pb.User{Id: "u1", Name: "Ann", Username: "ann", Email: "ann@example.com"}}}
	c := startClient(t, f, session.NewKeeper(nil))

	u, err := c.CreateAccount(context.Background(), models.NewAccount{Name: "Ann", Username: "ann", Email: "ann@example.com", Password: "password1"})
	require.NoError(t, err)
	assert.Equal(t, models.User{ID: "u1", Name: "Ann", Username: "ann", Email: "ann@example.com"}, u)
	assert.Equal(t, "password1", f.lastCreate.Password)
	assert.Equal(t, "ann", f.lastCreate.Username)
}

func TestCreateAccount_EmptyUserIsFailure(t *testing.T) {
	f := &fakeAccountServer{createResp: &pb.CreateAccountResponse{}}
	c := startClient(t, f, session.NewKeeper(nil))

	_, err := c.CreateAccount(context.Background(), models.NewAccount{Email: "a@b.com"})
	require.ErrorIs(t, err, ErrEmptyResponse)
}

func TestCreateAccount_AlreadyExistsCarriesDetails(t *testing.T) {
	st, err := status.New(codes.AlreadyExists, "account exists").WithDetails(
		&errdetails.ErrorInfo{Reason: "EMAIL_TAKEN", Domain: "accounts"},
		&errdetails.BadRequest{FieldViolations: []*errdetails.BadRequest_FieldViolation{{Field: "email", Description: "taken"}}},
	)
	require.NoError(t, err)

	f := &fakeAccountServer{createErr: st.Err()}
	c := startClient(t, f, session.NewKeeper(nil))

	_, err = c.CreateAccount(context.Background(), models.NewAccount{Email: "a@b.com"})
	require.ErrorIs(t, err, ErrAlreadyExists)

	var se *ServiceError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, codes.AlreadyExists, se.Code)
	assert.Equal(t, "EMAIL_TAKEN", se.Reason)
	assert.Equal(t, map[string]string{"email": "taken"}, se.Violations)
	assert.Contains(t, se.Error(), "reason=EMAIL_TAKEN")
}

func TestSignIn_KeepsSession(t *testing.T) {
	f := &fakeAccountServer{signInResp: &pb.SignInResponse{SessionId: "s1", UserId: "u1", AccessToken: "a1", RefreshToken: "r1", ExpiresAt: 1_900_000_000}}
	keeper := session.NewKeeper(nil)
	c := startClient(t, f, keeper)

	sess, err := c.SignIn(context.Background(), models.Credentials{Email: "a@b.com", Password: "secret1"})
	require.NoError(t, err)
	assert.Equal(t, "s1", sess.ID)
	assert.Equal(t, time.Unix(1_900_000_000, 0).UTC(), sess.ExpiresAt)
	assert.Equal(t, "a@b.com", f.lastSignIn.Email)

	kept, ok := keeper.Current()
	require.True(t, ok)
	assert.Equal(t, sess, kept)
}

func TestSignIn_NoSessionIsFailure(t *testing.T) {
	f := &fakeAccountServer{signInResp: &pb.SignInResponse{}}
	keeper := session.NewKeeper(nil)
	c := startClient(t, f, keeper)

	_, err := c.SignIn(context.Background(), models.Credentials{Email: "a@b.com", Password: "x"})
	require.ErrorIs(t, err, ErrEmptyResponse)
	_, ok := keeper.Current()
	assert.False(t, ok)
}

func TestSignIn_BadCredentials(t *testing.T) {
	f := &fakeAccountServer{signInErr: status.Error(codes.Unauthenticated, "invalid credentials")}
	c := startClient(t, f, session.NewKeeper(nil))

	_, err := c.SignIn(context.Background(), models.Credentials{Email: "a@b.com", Password: "x"})
	require.ErrorIs(t, err, ErrUnauthorized)
}

func TestCurrentUser_NoSessionSkipsCall(t *testing.T) {
	f := &fakeAccountServer{}
	c := startClient(t, f, session.NewKeeper(nil))

	_, err := c.CurrentUser(context.Background())
	require.ErrorIs(t, err, ErrNoSession)
	require.ErrorIs(t, err, ErrUnauthorized)
	assert.Empty(t, f.tokensSeen)
}

func TestCurrentUser_SendsAccessToken(t *testing.T) {
	f := &fakeAccountServer{currentUser: func(token string) (*pb.GetCurrentUserResponse, error) {
		if token != "a1" {
			return nil, status.Error(codes.Unauthenticated, "bad token")
		}
		return &pb.GetCurrentUserResponse{User: &pb.User{Id: "u1", Email: "a@b.com"}}, nil
	}}
	keeper := session.NewKeeper(nil)
	require.NoError(t, keeper.Save(context.Background(), models.Session{ID: "s1", AccessToken: "a1"}))
	c := startClient(t, f, keeper)

	u, err := c.CurrentUser(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "u1", u.ID)
	assert.Equal(t, []string{"a1"}, f.tokensSeen)
}

func TestInterceptor_RefreshesExpiredTokenAndRetries(t *testing.T) {
	f := &fakeAccountServer{
		refreshResp: &pb.RefreshTokenResponse{AccessToken: "a2", RefreshToken: "r2"},
		currentUser: func(token string) (*pb.GetCurrentUserResponse, error) {
			if token == "a1" {
				return nil, status.Error(codes.Unauthenticated, common.TokenExpiredMessage)
			}
			return &pb.GetCurrentUserResponse{User: &pb.User{Id: "u1"}}, nil
		},
	}
	keeper := session.NewKeeper(nil)
	require.NoError(t, keeper.Save(context.Background(), models.Session{ID: "s1", UserID: "u1", AccessToken: "a1", RefreshToken: "r1"}))
	c := startClient(t, f, keeper)

	u, err := c.CurrentUser(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "u1", u.ID)
	assert.Equal(t, []string{"a1", "a2"}, f.tokensSeen)
	assert.Equal(t, "r1", f.lastRefresh.RefreshToken)

	kept, _ := keeper.Current()
	assert.Equal(t, "s1", kept.ID)
	assert.Equal(t, "a2", kept.AccessToken)
	assert.Equal(t, "r2", kept.RefreshToken)
}

func TestInterceptor_NoRefreshWithoutRefreshToken(t *testing.T) {
	f := &fakeAccountServer{currentUser: func(string) (*pb.GetCurrentUserResponse, error) {
		return nil, status.Error(codes.Unauthenticated, common.TokenExpiredMessage)
	}}
	keeper := session.NewKeeper(nil)
	require.NoError(t, keeper.Save(context.Background(), models.Session{ID: "s1", AccessToken: "a1"}))
	c := startClient(t, f, keeper)

	_, err := c.CurrentUser(context.Background())
	require.ErrorIs(t, err, ErrUnauthorized)
	assert.Nil(t, f.lastRefresh)
}

func TestInterceptor_OtherUnauthenticatedMessageNoRefresh(t *testing.T) {
	f := &fakeAccountServer{currentUser: func(string) (*pb.GetCurrentUserResponse, error) {
		return nil, status.Error(codes.Unauthenticated, "session revoked")
	}}
	keeper := session.NewKeeper(nil)
	require.NoError(t, keeper.Save(context.Background(), models.Session{ID: "s1", AccessToken: "a1", RefreshToken: "r1"}))
	c := startClient(t, f, keeper)

	_, err := c.CurrentUser(context.Background())
	require.ErrorIs(t, err, ErrUnauthorized)
	assert.Nil(t, f.lastRefresh)
}

func TestInterceptor_FailedRefreshReturnsOriginalError(t *testing.T) {
	f := &fakeAccountServer{
		refreshErr: status.Error(codes.Unauthenticated, common.TokenExpiredMessage),
		currentUser: func(string) (*pb.GetCurrentUserResponse, error) {
			return nil, status.Error(codes.Unauthenticated, common.TokenExpiredMessage)
		},
	}
	keeper := session.NewKeeper(nil)
	require.NoError(t, keeper.Save(context.Background(), models.Session{ID: "s1", AccessToken: "a1", RefreshToken: "r1"}))
	c := startClient(t, f, keeper)

	_, err := c.CurrentUser(context.Background())
	require.ErrorIs(t, err, ErrUnauthorized)
	kept, _ := keeper.Current()
	assert.Equal(t, "a1", kept.AccessToken)
}

func TestSignOut_ClearsSessionEvenOnRemoteError(t *testing.T) {
	f := &fakeAccountServer{signOutErr: status.Error(codes.Unavailable, "down")}
	keeper := session.NewKeeper(nil)
	require.NoError(t, keeper.Save(context.Background(), models.Session{ID: "s1", AccessToken: "a1"}))
	c := startClient(t, f, keeper)

	err := c.SignOut(context.Background())
	require.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, 1, f.signOutCalls)
	_, ok := keeper.Current()
	assert.False(t, ok)
}

func TestSignOut_WithoutSessionIsNoop(t *testing.T) {
	f := &fakeAccountServer{}
	c := startClient(t, f, session.NewKeeper(nil))

	require.NoError(t, c.SignOut(context.Background()))
	assert.Zero(t, f.signOutCalls)
}

func TestPing(t *testing.T) {
	c := startClient(t, &fakeAccountServer{pingStatus: "OK"}, session.NewKeeper(nil))
	require.NoError(t, c.Ping(context.Background()))

	c = startClient(t, &fakeAccountServer{pingStatus: "DEGRADED"}, session.NewKeeper(nil))
	require.ErrorIs(t, c.Ping(context.Background()), ErrUnavailable)
}

func TestMapError(t *testing.T) {
	require.Nil(t, mapError(nil))
	require.ErrorIs(t, mapError(status.Error(codes.Unauthenticated, "x")), ErrUnauthorized)
	require.ErrorIs(t, mapError(status.Error(codes.PermissionDenied, "x")), ErrUnauthorized)
	require.ErrorIs(t, mapError(status.Error(codes.Unavailable, "x")), ErrUnavailable)
	require.ErrorIs(t, mapError(status.Error(codes.DeadlineExceeded, "x")), ErrUnavailable)
	require.ErrorIs(t, mapError(status.Error(codes.AlreadyExists, "x")), ErrAlreadyExists)
	require.ErrorIs(t, mapError(status.Error(codes.InvalidArgument, "x")), ErrInvalidArgument)
	require.ErrorIs(t, mapError(status.Error(codes.Internal, "x")), ErrRemote)

	plain := errors.New("plain")
	err := mapError(plain)
	require.ErrorIs(t, err, plain)
	require.ErrorContains(t, err, "rpc error:")
}
