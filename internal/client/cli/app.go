package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"

	"github.com/dmitrijs2005/accountctx/internal/client/client"
	"github.com/dmitrijs2005/accountctx/internal/client/config"
	"github.com/dmitrijs2005/accountctx/internal/client/services"
	"github.com/dmitrijs2005/accountctx/internal/filex"
	"github.com/dmitrijs2005/accountctx/internal/server/api"
)

type App struct {
	config      *config.Config
	authService services.AuthService
	api         client.Client
	reader      *bufio.Reader
	out         io.Writer

	userName string
	// session is the live session; nil while no account is active.
	session *api.SessionResponse
	close   func() error
}

func NewApp(c *config.Config) (*App, error) {
	ctx := context.Background()

	if err := filex.EnsureParentDir(c.StatePath); err != nil {
		return nil, err
	}
	db, err := client.InitDatabase(ctx, c.StatePath)
	if err != nil {
		return nil, fmt.Errorf("error initializing state database: %w", err)
	}

	apiClient, err := client.NewGRPCClient(c.ServerEndpointAddr)
	if err != nil {
		db.Close()
		return nil, err
	}

	return &App{
		config:      c,
		authService: services.NewAuthService(apiClient, db),
		api:         apiClient,
		reader:      bufio.NewReader(os.Stdin),
		out:         os.Stdout,
		close: func() error {
			apiClient.Close()
			return db.Close()
		},
	}, nil
}

func (a *App) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if a.config == nil || a.config.RequestTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, a.config.RequestTimeout)
}

func (a *App) printf(format string, args ...any) {
	fmt.Fprintf(a.out, format, args...)
}

func (a *App) isLoggedIn() bool {
	return a.userName != ""
}

func (a *App) getStatus() string {
	s := a.userName
	if a.session != nil {
		s += "@" + a.session.AccountID
	}
	if s != "" {
		s = fmt.Sprintf("(%s)", s)
	}
	return s
}

// restore picks up the login and session saved by an earlier run.
func (a *App) restore(ctx context.Context) {
	ctx, cancel := a.withTimeout(ctx)
	defer cancel()

	user, sess, err := a.authService.Restore(ctx)
	if err != nil {
		a.printf("Could not restore previous session: %v\n", err)
	}
	a.userName, a.session = user, sess
	if sess != nil {
		a.printf("Resumed session on account %s\n", sess.AccountID)
	}
}

// Run restores state and serves the REPL on stdin until the user exits.
func (a *App) Run(ctx context.Context) {
	defer func() {
		if a.close != nil {
			a.close()
		}
	}()

	a.printf("acctl (type 'help' for commands)\n")
	a.restore(ctx)
	runREPL(ctx, a, a.getStatus, bufio.NewScanner(os.Stdin))
}
