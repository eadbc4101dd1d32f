package flow

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/dmitrijs2005/gophauth/internal/client/authstate"
	"github.com/dmitrijs2005/gophauth/internal/client/models"
	"github.com/dmitrijs2005/gophauth/internal/client/validation"
	"github.com/dmitrijs2005/gophauth/internal/logging"
)

const tracerName = "github.com/dmitrijs2005/gophauth/internal/client/flow"

var (
	errNoAccount   = errors.New("account service returned no account")
	errNoSession   = errors.New("account service returned no session")
	errNotVerified = errors.New("session could not be verified")
)

// AccountService is the subset of the account client used by flows.
type AccountService interface {
	CreateAccount(ctx context.Context, acc models.NewAccount) (models.User, error)
	SignIn(ctx context.Context, cred models.Credentials) (models.Session, error)
}

// AuthState confirms the freshly obtained session and records the user.
// Verify returns authstate.ErrSuperseded when a newer verification won.
type AuthState interface {
	Verify(ctx context.Context) error
}

// SessionDiscarder forgets a session the flow obtained but abandoned.
type SessionDiscarder interface {
	Discard(ctx context.Context, sessionID string) error
}

// plan is what distinguishes one flow kind from another.
type plan struct {
	createAccount bool
	// signInFailure is the notice shown when SigningIn fails.
	signInFailure string
	// signInFailureRoute is where to go after a failed SigningIn, if anywhere.
	signInFailureRoute string
}

var plans = map[validation.Kind]plan{
	validation.KindSignIn: {
		signInFailure: MsgLoginFailed,
	},
	validation.KindSignUp: {
		createAccount:      true,
		signInFailure:      MsgSignInNewAccount,
		signInFailureRoute: RouteSignIn,
	},
}

type Option func(*Orchestrator)

// WithTracer overrides the tracer taken from the global provider.
func WithTracer(t trace.Tracer) Option {
	return func(o *Orchestrator) { o.tracer = t }
}

// WithTransitionHook registers fn to observe every state an invocation enters.
func WithTransitionHook(fn func(id string, s State)) Option {
	return func(o *Orchestrator) { o.onTransition = fn }
}

// WithSessionDiscarder makes a torn-down flow forget the session it signed
// in with before that session was verified.
func WithSessionDiscarder(d SessionDiscarder) Option {
	return func(o *Orchestrator) { o.sessions = d }
}

// WithIDGenerator replaces uuid-based invocation ids.
func WithIDGenerator(fn func() string) Option {
	return func(o *Orchestrator) { o.newID = fn }
}

// Orchestrator runs sign-up and sign-in submissions for one form.
type Orchestrator struct {
	validator *validation.Validator
	accounts  AccountService
	auth      AuthState
	presenter Presenter
	log       logging.Logger
	sessions  SessionDiscarder

	tracer       trace.Tracer
	onTransition func(id string, s State)
	newID        func() string

	mu     sync.Mutex
	active *invocation
}

func New(v *validation.Validator, accounts AccountService, auth AuthState, p Presenter, log logging.Logger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		validator: v,
		accounts:  accounts,
		auth:      auth,
		presenter: p,
		log:       log,
		tracer:    otel.Tracer(tracerName),
		newID:     uuid.NewString,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

type invocation struct {
	id      string
	kind    validation.Kind
	ctx     context.Context
	cancel  context.CancelFunc
	state   State
	loading bool
	log     logging.Logger
}

// Submit runs one flow to its terminal outcome. It blocks until the outcome
// is known. Calling Submit again, from any goroutine, supersedes a flow that
// is still running.
func (o *Orchestrator) Submit(ctx context.Context, kind validation.Kind, in validation.Input) Outcome {
	p, ok := plans[kind]
	if !ok {
		return Outcome{Kind: kind, Status: StatusFailed, Stage: StageValidation, Err: fmt.Errorf("unknown flow kind %q", kind)}
	}

	inv := o.begin(ctx, kind)
	defer o.end(inv)

	spanCtx, span := o.tracer.Start(inv.ctx, "flow."+string(kind),
		trace.WithAttributes(attribute.String("flow.id", inv.id)))
	defer span.End()

	out := o.run(spanCtx, inv, p, in)

	span.SetAttributes(attribute.String("flow.status", string(out.Status)))
	if out.Stage != "" {
		span.SetAttributes(attribute.String("flow.stage", string(out.Stage)))
	}
	if out.Status == StatusFailed {
		span.SetStatus(codes.Error, string(out.Stage))
	}
	return out
}

// Cancel tears down the running flow, if any. Its results are discarded.
func (o *Orchestrator) Cancel() {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.active != nil {
		o.active.cancel()
		o.active = nil
	}
}

func (o *Orchestrator) begin(ctx context.Context, kind validation.Kind) *invocation {
	ictx, cancel := context.WithCancel(ctx)
	id := o.newID()
	inv := &invocation{
		id:     id,
		kind:   kind,
		ctx:    ictx,
		cancel: cancel,
		state:  StateIdle,
		log:    o.log.With("flow_id", id, "kind", string(kind)),
	}

	o.mu.Lock()
	if o.active != nil {
		o.active.log.Debug(ctx, "flow superseded", "by", id)
		o.active.cancel()
	}
	o.active = inv
	o.mu.Unlock()

	inv.log.Debug(ctx, "flow started")
	return inv
}

func (o *Orchestrator) end(inv *invocation) {
	o.mu.Lock()
	if o.active == inv {
		o.active = nil
	}
	o.mu.Unlock()
	inv.cancel()
}

func (o *Orchestrator) enter(inv *invocation, s State) {
	inv.state = s
	if o.onTransition != nil {
		o.onTransition(inv.id, s)
	}
}

func (o *Orchestrator) run(ctx context.Context, inv *invocation, p plan, in validation.Input) Outcome {
	o.enter(inv, StateValidating)
	cred, ferrs := o.validator.Validate(in, inv.kind)
	if ferrs != nil {
		return o.settle(inv, Outcome{
			Status:      StatusFailed,
			Stage:       StageValidation,
			FieldErrors: ferrs,
			Err:         ferrs,
		}, false)
	}

	if !o.emit(inv, func(pr Presenter) { pr.SetLoading(true) }) {
		return o.superseded(inv)
	}
	inv.loading = true

	if p.createAccount {
		o.enter(inv, StateCreating)
		user, err := traced(ctx, o.tracer, "flow.create_account", func(ctx context.Context) (models.User, error) {
			return o.accounts.CreateAccount(ctx, cred.NewAccount())
		})
		if err == nil && user.ID == "" {
			err = errNoAccount
		}
		if err != nil {
			return o.serviceFailure(ctx, inv, StageCreation, err, MsgSignUpFailed, "")
		}
		inv.log.Info(ctx, "account created", "user_id", user.ID)
	}

	o.enter(inv, StateSigningIn)
	sess, err := traced(ctx, o.tracer, "flow.sign_in", func(ctx context.Context) (models.Session, error) {
		return o.accounts.SignIn(ctx, cred.Credentials())
	})
	if err == nil && !sess.Valid() {
		err = errNoSession
	}
	if err != nil {
		return o.serviceFailure(ctx, inv, StageSignIn, err, p.signInFailure, p.signInFailureRoute)
	}

	if ctx.Err() != nil {
		o.discard(inv, sess)
		return o.superseded(inv)
	}

	o.enter(inv, StateVerifying)
	vctx, span := o.tracer.Start(ctx, "flow.verify_session")
	err = o.auth.Verify(vctx)
	span.SetAttributes(attribute.Bool("verified", err == nil))
	span.End()
	switch {
	case err == nil:
	case ctx.Err() != nil:
		o.discard(inv, sess)
		return o.superseded(inv)
	case errors.Is(err, authstate.ErrSuperseded):
		// Someone else verified the same session after us; their answer stands.
		inv.log.Info(ctx, "verification superseded elsewhere")
		o.emit(inv, func(pr Presenter) { pr.SetLoading(false) })
		out := o.superseded(inv)
		out.Err = err
		return out
	default:
		inv.log.Warn(ctx, "session verification failed", "error", err)
		return o.settle(inv, Outcome{
			Status:  StatusFailed,
			Stage:   StageVerification,
			Message: MsgLoginFailed,
			Err:     fmt.Errorf("%w: %w", errNotVerified, err),
		}, true)
	}

	return o.settle(inv, Outcome{
		Status:     StatusSucceeded,
		NavigateTo: RouteHome,
	}, true)
}

func (o *Orchestrator) serviceFailure(ctx context.Context, inv *invocation, stage Stage, err error, msg, route string) Outcome {
	var unexpected *UnexpectedError
	if errors.As(err, &unexpected) {
		inv.log.Error(ctx, "unexpected failure", "stage", string(stage), "panic", fmt.Sprint(unexpected.Value), "stack", string(unexpected.Stack))
		msg, route = MsgUnexpected, ""
	} else if ctx.Err() == nil {
		inv.log.Warn(ctx, "account service failure", "stage", string(stage), "error", err)
	}
	return o.settle(inv, Outcome{
		Status:     StatusFailed,
		Stage:      stage,
		Message:    msg,
		NavigateTo: route,
		Err:        err,
	}, false)
}

// settle delivers the effects of out if inv is still the current invocation
// and returns it; otherwise it returns a superseded outcome.
func (o *Orchestrator) settle(inv *invocation, out Outcome, clearInput bool) Outcome {
	out.ID = inv.id
	out.Kind = inv.kind

	delivered := o.emit(inv, func(pr Presenter) {
		if inv.loading {
			pr.SetLoading(false)
		}
		if len(out.FieldErrors) > 0 {
			pr.ShowFieldErrors(out.FieldErrors)
		}
		if out.Message != "" {
			pr.Notify(out.Message)
		}
		if clearInput {
			pr.ClearInput()
		}
		if out.NavigateTo != "" {
			pr.Navigate(out.NavigateTo)
		}
	})
	if !delivered {
		return o.superseded(inv)
	}

	if out.Status == StatusSucceeded {
		o.enter(inv, StateSucceeded)
		inv.log.Info(inv.ctx, "flow succeeded")
	} else {
		o.enter(inv, StateFailed)
		inv.log.Debug(inv.ctx, "flow failed", "stage", string(out.Stage))
	}
	return out
}

func (o *Orchestrator) superseded(inv *invocation) Outcome {
	inv.log.Debug(context.Background(), "flow result discarded", "state", string(inv.state))
	return Outcome{
		ID:     inv.id,
		Kind:   inv.kind,
		Status: StatusSuperseded,
		Stage:  stageOf(inv.state),
		Err:    context.Cause(inv.ctx),
	}
}

// discard drops the unverified session of a torn-down invocation. The flow's
// own ctx is already done, so the removal runs detached from it.
func (o *Orchestrator) discard(inv *invocation, sess models.Session) {
	if o.sessions == nil {
		return
	}
	ctx := context.WithoutCancel(inv.ctx)
	if err := o.sessions.Discard(ctx, sess.ID); err != nil {
		inv.log.Warn(ctx, "failed to discard abandoned session", "session_id", sess.ID, "error", err)
		return
	}
	inv.log.Debug(ctx, "abandoned session discarded", "session_id", sess.ID)
}

// emit calls fn with the presenter only while inv is current. The lock is
// held during fn so a newer invocation cannot interleave its effects.
func (o *Orchestrator) emit(inv *invocation, fn func(Presenter)) bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.active != inv || inv.ctx.Err() != nil {
		return false
	}
	fn(o.presenter)
	return true
}

func stageOf(s State) Stage {
	switch s {
	case StateValidating:
		return StageValidation
	case StateCreating:
		return StageCreation
	case StateSigningIn:
		return StageSignIn
	case StateVerifying:
		return StageVerification
	}
	return ""
}

// traced runs fn inside a span and converts a panic into *UnexpectedError.
func traced[T any](ctx context.Context, tracer trace.Tracer, name string, fn func(context.Context) (T, error)) (res T, err error) {
	ctx, span := tracer.Start(ctx, name)
	defer func() {
		if r := recover(); r != nil {
			err = &UnexpectedError{Value: r, Stack: debug.Stack()}
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()
	return fn(ctx)
}
