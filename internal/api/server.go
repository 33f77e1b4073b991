// Package api exposes the recurring engine over HTTP as JSON.
package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/jask/recurring/internal/logger"
	"github.com/jask/recurring/internal/matching"
	"github.com/jask/recurring/internal/service"
)

// Options tune the handlers. Zero values select sensible defaults.
type Options struct {
	// Profile resolves a tolerance profile by name; "" means the default.
	Profile func(name string) (matching.Profile, error)
	// Location is used to decide what "today" is for auto-realization.
	Location *time.Location
	// Now returns the current time.
	Now func() time.Time
}

// Server holds the services behind the HTTP handlers.
type Server struct {
	svc  *service.Services
	opts Options
}

// NewServer builds a Server, filling in default options.
func NewServer(svc *service.Services, opts Options) *Server {
	if opts.Profile == nil {
		opts.Profile = matching.ProfileByName
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Server{svc: svc, opts: opts}
}

// Router returns the chi router with every route mounted under /api.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(contextualLogger)
	r.Use(requestLog)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		})

		r.Get("/accounts", s.handleListAccounts)
		r.Get("/settings", s.handleGetSettings)
		r.Put("/settings", s.handlePutSettings)

		r.Route("/series", func(r chi.Router) {
			r.Get("/", s.handleListSeries)
			r.Post("/", s.handleCreateSeries)
			r.Route("/{seriesID}", func(r chi.Router) {
				r.Get("/", s.handleGetSeries)
				r.Post("/deactivate", s.handleDeactivateSeries)
				r.Get("/instances", s.handleSeriesInstances)
				r.Post("/skip-next", s.handleSkipNext)
				r.Post("/patterns", s.handleLearnPattern)
				r.Post("/exceptions/{date}/skip", s.handleSkip)
				r.Put("/exceptions/{date}", s.handleModify)
				r.Delete("/exceptions/{date}", s.handleClearException)
			})
		})

		r.Get("/projection", s.handleProjection)
		r.Post("/realize", s.handleRealize)
		r.Post("/realize/batch", s.handleRealizeBatch)
		r.Post("/auto-realize", s.handleAutoRealize)

		r.Post("/imports", s.handleImport)
		r.Post("/reconcile", s.handleAnalyzeBatch)
		r.Post("/reconcile/{txID}", s.handleAnalyze)

		r.Get("/matches", s.handleListMatches)
		r.Post("/matches", s.handleCreateLink)
		r.Post("/matches/{matchID}/confirm", s.handleConfirm)
		r.Post("/matches/{matchID}/reject", s.handleReject)
		r.Delete("/matches/{matchID}", s.handleUnlink)
	})
	return r
}

// contextualLogger gives each request a logger tagged with a request id.
func contextualLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := uuid.NewString()
		l := logger.L.With(slog.String("request_id", requestID))
		w.Header().Set("X-Request-ID", requestID)
		next.ServeHTTP(w, r.WithContext(logger.ToContext(r.Context(), l)))
	})
}

func requestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		logger.FromContext(r.Context()).Debug("request",
			"method", r.Method, "path", r.URL.Path, "status", ww.Status(), "duration", time.Since(start))
	})
}
