package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"

	"github.com/aussiebroadwan/prepadmin/internal/store"
	"github.com/aussiebroadwan/prepadmin/pkg/adminapi"
	"github.com/aussiebroadwan/prepadmin/pkg/apiclient"
	"github.com/aussiebroadwan/prepadmin/pkg/httpx"
	"github.com/aussiebroadwan/prepadmin/pkg/slogx"
)

const (
	// BuildVersion should be set at build time via ldflags.
	BuildVersion = "v0.1.0"
)

// Application wires the admin client together: logger, session store,
// authenticated HTTP client and the API facade.
type Application struct {
	cfg    Config
	logger *slog.Logger

	sessions store.Store
	client   *apiclient.Client
	api      *adminapi.API

	// Command I/O; default to the process streams.
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// New creates a new Application instance with all dependencies initialized
func New(cfg Config) (*Application, error) {
	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: "prepadmin",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
		Stdin:  os.Stdin,
		Stdout: os.Stdout,
		Stderr: os.Stderr,
	}

	sessions, err := openSessionStore(cfg, app.logger)
	if err != nil {
		return nil, err
	}
	app.sessions = sessions

	app.initClient()

	return app, nil
}

// initClient builds the transport chain and the authenticated client.
func (app *Application) initClient() {
	var transport http.RoundTripper = http.DefaultTransport.(*http.Transport).Clone()
	transport = httpx.NewRateLimitedTransport(transport, app.cfg.RateLimit)
	if app.cfg.TunnelHeader {
		transport = &httpx.HeaderTransport{
			Base:    transport,
			Headers: map[string]string{httpx.TunnelHeader: httpx.TunnelHeaderValue},
		}
	}
	transport = &slogx.Transport{Base: transport, Logger: app.logger}

	client := apiclient.New(app.cfg.APIURL, app.sessions)
	client.HTTPClient = &http.Client{
		Timeout:   app.cfg.HTTPTimeout,
		Transport: transport,
	}
	client.RefreshTimeout = app.cfg.RefreshTimeout
	client.Navigator = &terminalNavigator{app: app}

	app.client = client
	app.api = adminapi.New(client)
}

// Run executes one command and returns once it has finished.
func (app *Application) Run(ctx context.Context, args []string) error {
	ctx = slogx.WithContext(ctx, app.logger)
	return app.dispatch(ctx, args)
}

// Close releases the session store.
func (app *Application) Close() error {
	if err := app.sessions.Close(); err != nil {
		app.logger.Error("error closing session store", "error", err)
		return fmt.Errorf("failed to close session store: %w", err)
	}
	return nil
}
