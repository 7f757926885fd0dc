// Package api is the HTTP boundary of the prediction service. It validates
// inbound observations, calls the classifier and validator, and converts
// application errors into structured JSON responses.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/medivuehealth/flarecast/internal/anonymize"
	"github.com/medivuehealth/flarecast/internal/cfg"
	"github.com/medivuehealth/flarecast/internal/metrics"
	"github.com/medivuehealth/flarecast/internal/ml"
	"github.com/medivuehealth/flarecast/internal/store"
)

// Server wires the handlers to their dependencies.
type Server struct {
	settings   cfg.Settings
	store      store.Store
	classifier *ml.Classifier
	validator  *ml.Validator
	fallback   ml.FallbackScorer
	anonymizer *anonymize.Anonymizer
	metrics    *metrics.Metrics
	limiter    *ipLimiter
	startedAt  time.Time
}

func NewServer(settings cfg.Settings, s store.Store, c *ml.Classifier, v *ml.Validator, m *metrics.Metrics) *Server {
	srv := &Server{
		settings:   settings,
		store:      s,
		classifier: c,
		validator:  v,
		anonymizer: anonymize.New(settings.AnonymizeSalt),
		metrics:    m,
		startedAt:  time.Now().UTC(),
	}
	if settings.RateLimit > 0 {
		srv.limiter = newIPLimiter(settings.RateLimit, settings.RateBurst)
	}
	return srv
}

// Close stops the rate limiter's background sweeper. Safe to call more
// than once.
func (s *Server) Close() {
	if s.limiter != nil {
		s.limiter.close()
	}
}

// Router assembles the middleware stack and routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)
	r.Use(securityHeaders)
	r.Use(httpMetrics(s.metrics))
	if s.limiter != nil {
		r.Use(rateLimit(s.limiter))
	}
	if s.settings.RequestTimeout > 0 {
		r.Use(middleware.Timeout(s.settings.RequestTimeout))
	}

	r.Get("/healthz", s.handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		if s.settings.JWTSecret != "" {
			r.Use(bearerAuth(s.settings.JWTSecret))
		}
		r.Post("/predict", s.handlePredict)
		r.Get("/predictions/{userID}", s.handlePredictions)
		r.Post("/outcomes", s.handleOutcome)
		r.Get("/model/validation", s.handleValidation)
		r.Get("/model/drift", s.handleDrift)
		r.Get("/model/info", s.handleModelInfo)
	})

	return r
}
