package client

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/dmitrijs2005/gophauth/internal/client/models"
	"github.com/dmitrijs2005/gophauth/internal/common"
	pb "github.com/dmitrijs2005/gophauth/internal/proto"
)

type GRPCClient struct {
	endpointURL string
	timeout     time.Duration
	conn        *grpc.ClientConn
	client      pb.AccountServiceClient
	tokens      TokenStore

	refreshMu sync.Mutex
}

// NewAccountClient connects to the account service at endpointURL. timeout
// bounds every call (zero disables it); extra dial options are appended to
// the defaults.
func NewAccountClient(endpointURL string, tokens TokenStore, timeout time.Duration, opts ...grpc.DialOption) (*GRPCClient, error) {
	c := &GRPCClient{endpointURL: endpointURL, tokens: tokens, timeout: timeout}
	if err := c.initGRPCClient(opts...); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *GRPCClient) initGRPCClient(extra ...grpc.DialOption) error {
	opts := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithStatsHandler(otelgrpc.NewClientHandler()),
		grpc.WithUnaryInterceptor(s.accessTokenInterceptor),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(pb.CodecName)),
	}
	conn, err := grpc.NewClient(s.endpointURL, append(opts, extra...)...)
	if err != nil {
		return err
	}
	s.conn = conn
	s.client = pb.NewAccountServiceClient(conn)
	return nil
}

func withAccessToken(ctx context.Context, token string) context.Context {
	md, _ := metadata.FromOutgoingContext(ctx)
	md = md.Copy()
	if md == nil {
		md = metadata.MD{}
	}
	md.Set(common.AccessTokenHeaderName, token)
	return metadata.NewOutgoingContext(ctx, md)
}

func isTokenExpired(err error) bool {
	st, ok := status.FromError(err)
	return ok && st.Code() == codes.Unauthenticated && st.Message() == common.TokenExpiredMessage
}

func (s *GRPCClient) accessTokenInterceptor(
	ctx context.Context,
	method string,
	req, reply any,
	cc *grpc.ClientConn,
	invoker grpc.UnaryInvoker,
	opts ...grpc.CallOption,
) error {
	sess, ok := s.currentSession()
	if !ok {
		return invoker(ctx, method, req, reply, cc, opts...)
	}

	err := invoker(withAccessToken(ctx, sess.AccessToken), method, req, reply, cc, opts...)
	if err == nil || method == pb.AccountService_RefreshToken_FullMethodName || !isTokenExpired(err) {
		return err
	}
	if sess.RefreshToken == "" {
		return err
	}

	refreshed, rerr := s.refresh(ctx, sess)
	if rerr != nil {
		return err
	}
	return invoker(withAccessToken(ctx, refreshed.AccessToken), method, req, reply, cc, opts...)
}

func (s *GRPCClient) currentSession() (models.Session, bool) {
	if s.tokens == nil {
		return models.Session{}, false
	}
	return s.tokens.Current()
}

// refresh exchanges the refresh token of stale once; concurrent callers that
// lose the race reuse the session saved by the winner.
func (s *GRPCClient) refresh(ctx context.Context, stale models.Session) (models.Session, error) {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	if cur, ok := s.tokens.Current(); ok && cur.AccessToken != stale.AccessToken {
		return cur, nil
	}

	resp, err := s.client.RefreshToken(ctx, &pb.RefreshTokenRequest{RefreshToken: stale.RefreshToken})
	if err != nil {
		return models.Session{}, err
	}
	next := models.NewSession(stale.ID, stale.UserID, resp.AccessToken, resp.RefreshToken, unixTime(resp.ExpiresAt))
	if !next.Valid() {
		return models.Session{}, ErrEmptyResponse
	}
	if err := s.tokens.Save(ctx, next); err != nil {
		return models.Session{}, err
	}
	return next, nil
}

func (s *GRPCClient) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.timeout)
}

func unixTime(sec int64) time.Time {
	if sec <= 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0)
}

func userFromPB(u *pb.User) models.User {
	return models.User{ID: u.Id, Name: u.Name, Username: u.Username, Email: u.Email, ImageURL: u.ImageUrl}
}

func (s *GRPCClient) CreateAccount(ctx context.Context, acc models.NewAccount) (models.User, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	req := &pb.CreateAccountRequest{Name: acc.Name, Username: acc.Username, Email: acc.Email, Password: acc.Password}
	resp, err := s.client.CreateAccount(ctx, req)
	if err != nil {
		return models.User{}, mapError(err)
	}
	if resp.User == nil || resp.User.Id == "" {
		return models.User{}, ErrEmptyResponse
	}
	return userFromPB(resp.User), nil
}

// SignIn opens a session and keeps it in the TokenStore. The session is not
// verified here.
func (s *GRPCClient) SignIn(ctx context.Context, creds models.Credentials) (models.Session, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	resp, err := s.client.SignIn(ctx, &pb.SignInRequest{Email: creds.Email, Password: creds.Password})
	if err != nil {
		return models.Session{}, mapError(err)
	}

	sess := models.NewSession(resp.SessionId, resp.UserId, resp.AccessToken, resp.RefreshToken, unixTime(resp.ExpiresAt))
	if !sess.Valid() {
		return models.Session{}, ErrEmptyResponse
	}
	// A caller that gave up must not overwrite a newer session.
	if err := ctx.Err(); err != nil {
		return models.Session{}, err
	}
	if s.tokens != nil {
		if err := s.tokens.Save(ctx, sess); err != nil {
			return models.Session{}, err
		}
	}
	return sess, nil
}

func (s *GRPCClient) CurrentUser(ctx context.Context) (models.User, error) {
	if _, ok := s.currentSession(); !ok {
		return models.User{}, ErrNoSession
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	resp, err := s.client.GetCurrentUser(ctx, &pb.GetCurrentUserRequest{})
	if err != nil {
		return models.User{}, mapError(err)
	}
	if resp.User == nil || resp.User.Id == "" {
		return models.User{}, ErrEmptyResponse
	}
	return userFromPB(resp.User), nil
}

// SignOut revokes the session remotely and always forgets it locally.
func (s *GRPCClient) SignOut(ctx context.Context) error {
	if _, ok := s.currentSession(); !ok {
		return nil
	}

	callCtx, cancel := s.withTimeout(ctx)
	_, err := s.client.SignOut(callCtx, &pb.SignOutRequest{})
	cancel()

	if cerr := s.tokens.Clear(ctx); cerr != nil {
		return cerr
	}
	return mapError(err)
}

func (s *GRPCClient) Ping(ctx context.Context) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	resp, err := s.client.Ping(ctx, &pb.PingRequest{})
	if err != nil {
		return mapError(err)
	}
	if resp.Status != "OK" {
		return ErrUnavailable
	}
	return nil
}

func (s *GRPCClient) Close() error {
	return s.conn.Close()
}
