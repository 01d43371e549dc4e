package http

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/mind-engage/mindengage-mastery/internal/assessment"
	auth "github.com/mind-engage/mindengage-mastery/internal/auth/middleware"
	"github.com/mind-engage/mindengage-mastery/internal/config"
	"github.com/mind-engage/mindengage-mastery/internal/grading"
	"github.com/mind-engage/mindengage-mastery/internal/logger"
	"github.com/mind-engage/mindengage-mastery/internal/rbac"
)

type Deps struct {
	Sessions *assessment.Engine
	Grading  *grading.Engine
	Rules    config.RuleBook
	Auth     *auth.AuthService
	Log      *logger.Logger

	// Login is mounted at /auth/login when EnableLocalAuth is set.
	EnableLocalAuth bool
	Login           auth.LoginConfig

	// Ready backs /readyz; nil means always ready.
	Ready func(ctx context.Context) error
}

func Routes(d Deps) http.Handler {
	if d.Log == nil {
		d.Log = logger.Nop()
	}
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, RequestLogger(d.Log), middleware.Recoverer)

	if d.EnableLocalAuth {
		r.Post("/auth/login", auth.LoginHandler(d.Auth, d.Login))
	}

	// Protected API (JWT → principal in context → RBAC)
	r.Group(func(pr chi.Router) {
		pr.Use(auth.JWTMiddleware(d.Auth))

		// Student flow
		pr.With(rbac.Require(rbac.PermSessionStart)).
			Post("/sessions", StartSessionHandler(d.Sessions, d.Rules, d.Log))
		pr.With(rbac.Require(rbac.PermSessionSubmit)).
			Post("/sessions/{sessionID}/answers", SubmitAnswerHandler(d.Sessions, d.Log))
		pr.With(rbac.Require(rbac.PermSessionViewOwn)).
			Get("/sessions/{sessionID}", GetSessionHandler(d.Sessions, d.Log))
		pr.With(rbac.Require(rbac.PermMasteryViewOwn)).
			Get("/mastery", ListMasteryHandler(d.Sessions, d.Log))
		pr.With(rbac.Require(rbac.PermMasteryViewOwn)).
			Get("/mastery/{module}/history", MasteryHistoryHandler(d.Sessions, d.Log))

		// Instructor/admin; section ownership is enforced by the grading engine
		pr.With(rbac.Require(rbac.PermGradingPreview)).
			Get("/sections/{sectionID}/grading/preview", PreviewGradingHandler(d.Grading, d.Log))
		pr.With(rbac.Require(rbac.PermGradingProcess)).
			Post("/sections/{sectionID}/grading/process", ProcessGradingHandler(d.Grading, d.Log))
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if d.Ready != nil {
			if err := d.Ready(r.Context()); err != nil {
				http.Error(w, "not ready", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
	})
	return r
}
