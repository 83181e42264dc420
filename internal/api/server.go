// Package api exposes the course engine over HTTP and the remediation chat
// over WebSocket.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"

	"github.com/p-n-ai/pai-course/internal/course"
	"github.com/p-n-ai/pai-course/internal/mastery"
	"github.com/p-n-ai/pai-course/internal/remediation"
)

const maxBodyBytes = 1 << 20

// HealthCheck reports whether a dependency is usable.
type HealthCheck func(ctx context.Context) error

// Config holds the server's collaborators.
type Config struct {
	Registry    *course.Registry
	Aggregator  *mastery.Aggregator
	Remediation *remediation.Engine
	JWTSecret   string // empty disables learner auth
	CORSOrigins []string
	Checks      map[string]HealthCheck // run by /readyz
	QuizTTL     time.Duration          // idle in-flight quiz lifetime (default 2h)
}

// Server routes requests to the course engine.
type Server struct {
	registry    *course.Registry
	aggregator  *mastery.Aggregator
	remediation *remediation.Engine
	secret      string
	origins     []string
	checks      map[string]HealthCheck
	quizzes     *quizSessions
	validate    *validator.Validate
}

// New creates a server. Registry is required.
func New(cfg Config) (*Server, error) {
	if cfg.Registry == nil {
		return nil, fmt.Errorf("registry is required")
	}
	s := &Server{
		registry:    cfg.Registry,
		aggregator:  cfg.Aggregator,
		remediation: cfg.Remediation,
		secret:      cfg.JWTSecret,
		origins:     cfg.CORSOrigins,
		checks:      cfg.Checks,
		quizzes:     newQuizSessions(cfg.QuizTTL),
		validate:    validator.New(validator.WithRequiredStructEnabled()),
	}
	if s.aggregator == nil {
		s.aggregator = mastery.NewAggregator(nil)
	}
	if s.remediation == nil {
		s.remediation = remediation.NewEngine(remediation.EngineConfig{Aggregator: s.aggregator})
	}
	return s, nil
}

// Handler builds the HTTP router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, requestLogger, middleware.Recoverer)
	if len(s.origins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   s.origins,
			AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders:   []string{"Authorization", "Content-Type"},
			ExposedHeaders:   []string{"Content-Disposition"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}

	r.Get("/healthz", s.handleHealthz)
	r.Get("/readyz", s.handleReadyz)
	r.Get("/modules", s.handleListModules)

	r.Route("/learners/{learnerID}", func(r chi.Router) {
		r.Use(learnerAuth(s.secret))

		// The chat socket outlives any request timeout.
		r.Get("/remediation/{conversationID}/ws", s.handleRemediationSocket)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(30 * time.Second))

			r.Route("/modules/{moduleID}", func(r chi.Router) {
				r.Get("/", s.handleOpenModule)
				r.Get("/steps/{step}", s.handleStepInput)
				r.Post("/goto", s.handleGoTo)
				r.Post("/complete", s.handleComplete)
				r.Post("/restart", s.handleRestart)
				r.Post("/quiz", s.handleStartQuiz)
			})

			r.Route("/quiz-sessions/{sessionID}", func(r chi.Router) {
				r.Get("/", s.handleQuizState)
				r.Post("/answers", s.handleSubmitAnswer)
				r.Post("/advance", s.handleAdvance)
				r.Post("/finish", s.handleFinishQuiz)
			})

			r.Get("/mastery", s.handleMastery)
			r.Get("/report.xlsx", s.handleReport)

			r.Post("/remediation", s.handleStartRemediation)
			r.Get("/remediation/{conversationID}", s.handleGetConversation)
			r.Post("/remediation/{conversationID}/messages", s.handleRemediationMessage)
			r.Post("/remediation/{conversationID}/end", s.handleEndRemediation)
		})
	})
	return r
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	results := make(map[string]string, len(s.checks))
	for name, check := range s.checks {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		err := check(ctx)
		cancel()
		if err != nil {
			status = http.StatusServiceUnavailable
			results[name] = err.Error()
			continue
		}
		results[name] = "ok"
	}
	label := "ready"
	if status != http.StatusOK {
		label = "not ready"
	}
	writeJSON(w, status, map[string]any{"status": label, "checks": results})
}

// decode reads a JSON body into v and validates it.
func (s *Server) decode(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: %v", errBadJSON, err)
	}
	return s.validate.Struct(v)
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		slog.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
