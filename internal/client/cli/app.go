package cli

import (
	"bufio"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/dmitrijs2005/gophauth/internal/client/authstate"
	"github.com/dmitrijs2005/gophauth/internal/client/client"
	"github.com/dmitrijs2005/gophauth/internal/client/config"
	"github.com/dmitrijs2005/gophauth/internal/client/flow"
	"github.com/dmitrijs2005/gophauth/internal/client/session"
	"github.com/dmitrijs2005/gophauth/internal/client/storage"
	"github.com/dmitrijs2005/gophauth/internal/client/validation"
	"github.com/dmitrijs2005/gophauth/internal/logging"
)

type Mode string

const (
	ModeOffline Mode = "offline"
	ModeOnline  Mode = "online"
)

// submitter runs form submissions; *flow.Orchestrator implements it.
type submitter interface {
	Submit(ctx context.Context, kind validation.Kind, in validation.Input) flow.Outcome
	Cancel()
}

type App struct {
	config    *config.Config
	log       logging.Logger
	api       client.Client
	keeper    *session.Keeper
	auth      *authstate.Store
	flows     submitter
	presenter *terminalPresenter
	reader    *bufio.Reader
	out       io.Writer
	db        *sql.DB

	forms map[validation.Kind]*form

	mu        sync.Mutex
	mode      Mode
	route     string
	verifying bool
}

// NewApp opens the session database, dials the account service and wires
// the flows.
func NewApp(ctx context.Context, c *config.Config, log logging.Logger) (*App, error) {
	var db *sql.DB
	if c.SessionDBPath != "" {
		var err error
		db, err = storage.InitDatabase(ctx, c.SessionDBPath)
		if err != nil {
			return nil, fmt.Errorf("init session database: %w", err)
		}
	}

	keeper := session.NewKeeper(db)
	api, err := client.NewAccountClient(c.ServerEndpointAddr, keeper, c.RequestTimeout)
	if err != nil {
		if db != nil {
			_ = db.Close()
		}
		return nil, fmt.Errorf("create account client: %w", err)
	}

	store := authstate.NewStore(api, api, keeper, log)
	a := newApp(c, log, api, keeper, store, os.Stdin, os.Stdout)
	a.db = db
	return a, nil
}

func newApp(c *config.Config, log logging.Logger, api client.Client, keeper *session.Keeper, store *authstate.Store, in io.Reader, out io.Writer) *App {
	a := &App{
		config: c,
		log:    log,
		api:    api,
		keeper: keeper,
		auth:   store,
		reader: bufio.NewReader(in),
		out:    out,
		route:  flow.RouteSignIn,
		forms: map[validation.Kind]*form{
			validation.KindSignIn: {kind: validation.KindSignIn},
			validation.KindSignUp: {kind: validation.KindSignUp},
		},
	}
	a.presenter = newTerminalPresenter(out, a.navigate)

	rules := validation.Rules{
		MinNameLength:     c.MinNameLength,
		MinUsernameLength: c.MinUsernameLength,
		MinPasswordLength: c.MinPasswordLength,
	}
	a.flows = flow.New(validation.New(rules), api, store, a.presenter, log, flow.WithSessionDiscarder(keeper))
	store.Subscribe(a.onAuthChange)
	return a
}

// Run restores the session, starts the online watcher and blocks in the
// REPL until the user exits or ctx is done.
func (a *App) Run(ctx context.Context) error {
	defer a.Close()

	a.Start(ctx)

	watchCtx, stop := context.WithCancel(ctx)
	defer stop()
	go a.StartOnlineStatusWatcher(watchCtx, a.config.OnlineCheckInterval)

	fmt.Fprintln(a.out, "Welcome to gophauth CLI (type 'help' for commands)")
	runREPL(ctx, a, a.getStatus, a.reader, a.out)

	// The form is discarded with the REPL.
	a.flows.Cancel()
	return nil
}

// Start picks the initial route: a restored session that the service still
// accepts lands on home, anything else on the sign-in form.
func (a *App) Start(ctx context.Context) {
	ok, err := a.keeper.Load(ctx)
	if err != nil {
		a.log.Warn(ctx, "failed to restore session", "error", err)
	}
	if ok && a.auth.VerifySession(ctx) {
		a.navigate(flow.RouteHome)
		if u := a.auth.Snapshot().CurrentUser; u != nil {
			fmt.Fprintf(a.out, "Welcome back, %s\n", u.Label())
		}
		return
	}
	a.navigate(flow.RouteSignIn)
}

func (a *App) Close() error {
	var errs []error
	if a.api != nil {
		errs = append(errs, a.api.Close())
	}
	if a.db != nil {
		errs = append(errs, a.db.Close())
	}
	return errors.Join(errs...)
}

func (a *App) isLoggedIn() bool {
	return a.auth.Snapshot().Authenticated()
}

func (a *App) currentRoute() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.route
}

func (a *App) navigate(route string) {
	a.mu.Lock()
	changed := a.route != route
	a.route = route
	a.mu.Unlock()

	if changed {
		fmt.Fprintf(a.out, "-> %s\n", route)
	}
}

// onAuthChange keeps home behind a verified session.
func (a *App) onAuthChange(st authstate.State) {
	a.mu.Lock()
	a.verifying = st.IsLoading
	leave := !st.IsLoading && !st.Authenticated() && a.route == flow.RouteHome
	a.mu.Unlock()

	if leave {
		a.navigate(flow.RouteSignIn)
	}
}

func (a *App) setMode(mode Mode) {
	a.mu.Lock()
	changed := a.mode != mode
	a.mode = mode
	a.mu.Unlock()

	if changed {
		a.log.Info(context.Background(), "switched mode", "mode", string(mode))
	}
}

func (a *App) StartOnlineStatusWatcher(ctx context.Context, interval time.Duration) {
	a.checkOnline(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			a.checkOnline(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (a *App) checkOnline(ctx context.Context) {
	pctx, cancel := context.WithTimeout(ctx, a.config.RequestTimeout)
	err := a.api.Ping(pctx)
	cancel()

	if ctx.Err() != nil {
		return
	}
	if err != nil {
		a.setMode(ModeOffline)
		return
	}
	a.setMode(ModeOnline)
}
