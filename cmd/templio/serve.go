package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/urfave/cli/v3"
	"golang.org/x/oauth2"

	"github.com/hazyhaar/templio/auth"
	"github.com/hazyhaar/templio/dbopen"
	"github.com/hazyhaar/templio/observability"
	"github.com/hazyhaar/templio/render"
	"github.com/hazyhaar/templio/session"
	"github.com/hazyhaar/templio/shield"
	"github.com/hazyhaar/templio/templates"
)

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:   "serve",
		Usage:  "Run the HTTP and MCP server",
		Action: runServe,
	}
}

// openDB opens the application database with every table templio needs.
// The templates schema is applied by templates.New.
func openDB(path string) (*sql.DB, error) {
	return dbopen.Open(path,
		dbopen.WithMkdirAll(),
		dbopen.WithSchema(auth.UsersSchema),
		dbopen.WithSchema(observability.Schema),
	)
}

// app holds the wired components the router needs.
type app struct {
	svc      *templates.Service
	sessions *auth.Sessions
	handlers *auth.Handlers
	limiter  *shield.RateLimiter
	maxBody  int64
}

func (a *app) router() http.Handler {
	r := chi.NewRouter()
	for _, mw := range shield.DefaultStack(a.maxBody) {
		r.Use(mw)
	}
	r.Use(a.sessions.Middleware)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Route("/auth", a.handlers.Routes)

	r.Group(func(r chi.Router) {
		r.Use(auth.RequireUser)
		r.Route("/api/templates", a.svc.Routes(a.limiter))
		r.Handle("/mcp", a.svc.MCPHandler())
	})
	return r
}

func runServe(ctx context.Context, cmd *cli.Command) error {
	logger := slog.Default()
	cfg, err := loadConfig(cmd.String("config"))
	if err != nil {
		return err
	}
	secret, err := cfg.jwtSecret()
	if err != nil {
		return err
	}

	db, err := openDB(cfg.Server.DBPath)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer db.Close()

	events := observability.NewEventLogger(db, observability.WithEventLogger(logger))
	metrics := observability.NewMetricsManager(db, 0, 0, logger)
	defer metrics.Close()

	rcfg := cfg.Templates.Render
	rcfg.Logger = logger
	mgr := render.NewManager(rcfg)
	defer mgr.Close()
	if err := mgr.Start(ctx); err != nil {
		// Chrome is launched again on first use; templates are saved
		// without thumbnails until it comes up.
		logger.Warn("templio: chrome unavailable at startup", "error", err)
	}

	pipeline := templates.NewPipeline(cfg.Templates, render.NewChrome(mgr), logger)
	svc, err := templates.New(db, cfg.Templates, pipeline,
		templates.WithLogger(logger),
		templates.WithEventLogger(events),
		templates.WithMetrics(metrics),
	)
	if err != nil {
		return err
	}

	hub := session.NewHub(logger)
	detach := svc.Attach(hub)
	defer detach()

	sessions := &auth.Sessions{Secret: secret, TTL: cfg.Auth.SessionTTL, Hub: hub, Logger: logger}
	var google *oauth2.Config
	if cfg.Auth.Google.ClientID != "" {
		google = auth.NewGoogleProvider(cfg.Auth.Google)
	}

	limiter := shield.NewRateLimiter(map[string]shield.RateLimitConfig{
		templates.RateLimitRule: cfg.Templates.RateLimit.Rule(),
	})
	limiter.StartGC(ctx.Done(), 0)
	go pruneEvents(ctx, db, cfg.Templates.EventRetention, logger)

	a := &app{
		svc:      svc,
		sessions: sessions,
		handlers: &auth.Handlers{Users: auth.NewUsers(db), Sessions: sessions, Google: google},
		limiter:  limiter,
		maxBody:  int64(cfg.Templates.Limits.MaxHTMLBytes) + 1<<20,
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           a.router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		logger.Info("templio: listening", "addr", srv.Addr, "origin", cfg.Server.PublicOrigin)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("templio: shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// pruneEvents trims the event log daily.
func pruneEvents(ctx context.Context, db *sql.DB, retention time.Duration, logger *slog.Logger) {
	tick := time.NewTicker(24 * time.Hour)
	defer tick.Stop()
	for {
		if err := observability.Cleanup(ctx, db, retention); err != nil && ctx.Err() == nil {
			logger.Warn("templio: event cleanup failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
		}
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
