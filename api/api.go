// Package api serves the operator's admin HTTP API: live sessions, manual
// approve and reject, on-demand sweeps and outcome history.
package api

import (
	"context"
	_ "embed"
	"log/slog"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/go-openapi/runtime/middleware"

	"github.com/jmcleod/chiralgate/history"
	"github.com/jmcleod/chiralgate/internal/secret"
	"github.com/jmcleod/chiralgate/session"
)

// Coordinator is the slice of the verification coordinator the API drives.
type Coordinator interface {
	Pending() []session.Session
	Approve(ctx context.Context, caller, subject int64) (string, error)
	Reject(ctx context.Context, caller, subject int64, reason string) (string, error)
}

// Sweeper runs an expiry sweep on demand.
type Sweeper interface {
	SweepOnce(ctx context.Context) int
}

// API holds the dependencies needed by the REST handlers.
type API struct {
	coord   Coordinator
	sweeper Sweeper
	history history.Store
	token   *secret.Token
	logger  *slog.Logger
}

//go:embed openapi.yaml
var openapiSpec []byte

// Option configures the API instance.
type Option func(*API)

// WithLogger sets the structured logger for audit events.
// If not set, a default JSON logger writing to stderr is used.
func WithLogger(logger *slog.Logger) Option {
	return func(a *API) {
		a.logger = logger
	}
}

// New creates a new API instance. Every route except the docs requires
// "Authorization: Bearer <token>".
func New(coord Coordinator, sweeper Sweeper, hist history.Store, token *secret.Token, opts ...Option) *API {
	a := &API{
		coord:   coord,
		sweeper: sweeper,
		history: hist,
		token:   token,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.logger == nil {
		a.logger = slog.New(slog.NewJSONHandler(os.Stderr, nil))
	}
	a.logger = a.logger.With("component", "api")
	return a
}

// Router returns a chi.Router with all API routes mounted.
func (a *API) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(SecurityHeaders)

	r.Get("/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/yaml")
		w.Write(openapiSpec)
	})

	r.Handle("/docs*", middleware.SwaggerUI(middleware.SwaggerUIOpts{
		SpecURL: "/api/v1/openapi.yaml",
		Path:    "api/v1/docs",
	}, nil))
	r.Handle("/redoc*", middleware.Redoc(middleware.RedocOpts{
		SpecURL: "/api/v1/openapi.yaml",
		Path:    "api/v1/redoc",
	}, nil))

	r.Group(func(r chi.Router) {
		r.Use(a.AuthMiddleware)
		r.Get("/sessions", a.ListSessions)
		r.Post("/sessions/{subject}/approve", a.ApproveSession)
		r.Post("/sessions/{subject}/reject", a.RejectSession)
		r.Post("/sweep", a.Sweep)
		r.Get("/outcomes", a.ListOutcomes)
		r.Get("/outcomes/{subject}", a.SubjectOutcomes)
	})

	return r
}
