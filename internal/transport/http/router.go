package http

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"assessment-service/internal/app"
	"assessment-service/internal/domain"
	"assessment-service/internal/monitoring"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// Identity headers set by the upstream gateway.
const (
	HeaderUserID = "X-User-ID"
	HeaderRole   = "X-User-Role"
)

type Handlers struct {
	attempts   *app.AttemptService
	settlement *app.SettlementService
	log        *zap.Logger
}

func NewHandlers(attempts *app.AttemptService, settlement *app.SettlementService, log *zap.Logger) *Handlers {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handlers{attempts: attempts, settlement: settlement, log: log}
}

// NewRouter mounts the REST API, the live attempt socket and the operational endpoints.
func NewRouter(h *Handlers, ws *WSHandler, metrics *monitoring.Metrics) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Recoverer)
	r.Use(metrics.Middleware)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	if metrics != nil {
		r.Handle("/metrics", metrics.Handler())
	}
	if ws != nil {
		r.Get("/ws", ws.ServeWS)
	}

	r.Group(func(api chi.Router) {
		api.Use(middleware.Timeout(30 * time.Second))
		api.Route("/attempts", func(ar chi.Router) {
			ar.Post("/", h.StartAttempt)
			ar.Route("/{attemptID}", func(ar chi.Router) {
				ar.Put("/answers/{questionID}", h.SaveAnswer)
				ar.Post("/submit", h.SubmitAttempt)
				ar.Post("/grading-request", h.RequestGrading)
				ar.Get("/result", h.GetResult)
			})
		})
		api.Get("/grading/pending", h.ListPending)
		api.Post("/grading/{attemptID}/grades", h.SubmitEssayGrades)
	})
	return r
}

// callerFrom reads identity from the gateway headers, falling back to query
// parameters for websocket clients that cannot set headers.
func callerFrom(r *http.Request) domain.Caller {
	userID := strings.TrimSpace(r.Header.Get(HeaderUserID))
	role := strings.TrimSpace(r.Header.Get(HeaderRole))
	if userID == "" {
		userID = strings.TrimSpace(r.URL.Query().Get("userId"))
		role = strings.TrimSpace(r.URL.Query().Get("role"))
	}
	caller := domain.Caller{UserID: userID, Role: domain.RoleLearner}
	if domain.Role(role) == domain.RoleAdmin {
		caller.Role = domain.RoleAdmin
	}
	return caller
}

type startRequest struct {
	QuizID string `json:"quizId"`
}

// POST /attempts
func (h *Handlers) StartAttempt(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.QuizID) == "" {
		http.Error(w, "quizId required", http.StatusBadRequest)
		return
	}
	attempt, err := h.attempts.StartAttempt(r.Context(), callerFrom(r), req.QuizID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, attempt)
}

type answerRequest struct {
	Value string `json:"value"`
}

// PUT /attempts/{attemptID}/answers/{questionID}
func (h *Handlers) SaveAnswer(w http.ResponseWriter, r *http.Request) {
	var req answerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json: "+err.Error(), http.StatusBadRequest)
		return
	}
	err := h.attempts.SaveAnswer(r.Context(), callerFrom(r), chi.URLParam(r, "attemptID"), chi.URLParam(r, "questionID"), req.Value)
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type submitRequest struct {
	Answers domain.Answers `json:"answers"`
}

// POST /attempts/{attemptID}/submit
// An empty body submits the saved draft.
func (h *Handlers) SubmitAttempt(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad json: "+err.Error(), http.StatusBadRequest)
			return
		}
	}
	result, err := h.attempts.SubmitAttempt(r.Context(), callerFrom(r), chi.URLParam(r, "attemptID"), req.Answers)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// POST /attempts/{attemptID}/grading-request
func (h *Handlers) RequestGrading(w http.ResponseWriter, r *http.Request) {
	request, err := h.attempts.RequestGrading(r.Context(), callerFrom(r), chi.URLParam(r, "attemptID"))
	if err != nil {
		status, code := statusFor(err)
		if request.Outcome != "" {
			writeJSON(w, status, struct {
				errorPayload
				Request domain.GradingRequest `json:"request"`
			}{errorPayload{Code: code, Message: err.Error()}, request})
			return
		}
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, request)
}

// GET /attempts/{attemptID}/result
func (h *Handlers) GetResult(w http.ResponseWriter, r *http.Request) {
	result, err := h.attempts.GetResult(r.Context(), callerFrom(r), chi.URLParam(r, "attemptID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// GET /grading/pending
func (h *Handlers) ListPending(w http.ResponseWriter, r *http.Request) {
	pending, err := h.settlement.ListPending(r.Context(), callerFrom(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pending)
}

type gradesRequest struct {
	Grades []domain.EssayGrade `json:"grades"`
}

// POST /grading/{attemptID}/grades
func (h *Handlers) SubmitEssayGrades(w http.ResponseWriter, r *http.Request) {
	var req gradesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json: "+err.Error(), http.StatusBadRequest)
		return
	}
	caller := callerFrom(r)
	result, err := h.settlement.SubmitEssayGrades(r.Context(), caller, chi.URLParam(r, "attemptID"), req.Grades)
	if err != nil {
		h.log.Debug("grades rejected", zap.String("attempt_id", chi.URLParam(r, "attemptID")),
			zap.String("grader", caller.UserID), zap.Error(err))
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
