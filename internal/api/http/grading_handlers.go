package http

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/mind-engage/mindengage-mastery/internal/grading"
	"github.com/mind-engage/mindengage-mastery/internal/logger"
	"github.com/mind-engage/mindengage-mastery/internal/rbac"
)

func actorFrom(r *http.Request) grading.Actor {
	p, _ := rbac.PrincipalFromContext(r.Context())
	return grading.Actor{ID: p.Subject, Role: p.Role}
}

// GET /sections/{sectionID}/grading/preview
func PreviewGradingHandler(eng *grading.Engine, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sectionID := strings.TrimSpace(chi.URLParam(r, "sectionID"))
		out, err := eng.Preview(r.Context(), actorFrom(r), sectionID)
		if err != nil {
			writeError(w, r, log, err)
			return
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// POST /sections/{sectionID}/grading/process
func ProcessGradingHandler(eng *grading.Engine, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sectionID := strings.TrimSpace(chi.URLParam(r, "sectionID"))
		out, err := eng.Process(r.Context(), actorFrom(r), sectionID)
		if err != nil {
			writeError(w, r, log, err)
			return
		}
		writeJSON(w, http.StatusOK, out)
	}
}
