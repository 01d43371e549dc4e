package http

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/mind-engage/mindengage-mastery/internal/apperr"
	"github.com/mind-engage/mindengage-mastery/internal/assessment"
	"github.com/mind-engage/mindengage-mastery/internal/config"
	"github.com/mind-engage/mindengage-mastery/internal/logger"
	"github.com/mind-engage/mindengage-mastery/internal/rbac"
)

// POST /sessions {"module": "..."}
func StartSessionHandler(eng *assessment.Engine, rules config.RuleBook, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Module string `json:"module"`
		}
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, r, log, err)
			return
		}
		p, _ := rbac.PrincipalFromContext(r.Context())
		res, err := eng.Start(r.Context(), p.Subject, req.Module, assessment.UseRules(rules.For(p.Institution)))
		if err != nil {
			writeError(w, r, log, err)
			return
		}
		status := http.StatusCreated
		if res.Resumed {
			status = http.StatusOK
		}
		writeJSON(w, status, res)
	}
}

// POST /sessions/{sessionID}/answers {"item_id": "...", "option_id": "..."}
func SubmitAnswerHandler(eng *assessment.Engine, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ItemID   string `json:"item_id"`
			OptionID string `json:"option_id"`
		}
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, r, log, err)
			return
		}
		res, err := eng.Submit(r.Context(), assessment.SubmitRequest{
			Student:   rbac.SubjectFromContext(r.Context()),
			SessionID: chi.URLParam(r, "sessionID"),
			ItemID:    strings.TrimSpace(req.ItemID),
			OptionID:  strings.TrimSpace(req.OptionID),
		})
		if err != nil {
			writeError(w, r, log, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

// GET /sessions/{sessionID}
func GetSessionHandler(eng *assessment.Engine, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		v, err := eng.Get(r.Context(), rbac.SubjectFromContext(r.Context()), chi.URLParam(r, "sessionID"))
		if err != nil {
			writeError(w, r, log, err)
			return
		}
		writeJSON(w, http.StatusOK, v)
	}
}

// GET /mastery
func ListMasteryHandler(eng *assessment.Engine, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		recs, err := eng.Mastery(r.Context(), rbac.SubjectFromContext(r.Context()))
		if err != nil {
			writeError(w, r, log, err)
			return
		}
		writeJSON(w, http.StatusOK, recs)
	}
}

// GET /mastery/{module}/history
func MasteryHistoryHandler(eng *assessment.Engine, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		module := strings.TrimSpace(chi.URLParam(r, "module"))
		if module == "" {
			writeError(w, r, log, apperr.InvalidArgument("module required"))
			return
		}
		h, err := eng.History(r.Context(), rbac.SubjectFromContext(r.Context()), module)
		if err != nil {
			writeError(w, r, log, err)
			return
		}
		writeJSON(w, http.StatusOK, h)
	}
}
