package questions

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/certforge/backend/internal/catalog"
	"github.com/certforge/backend/internal/logger"
	"github.com/certforge/backend/internal/middleware"
	"github.com/certforge/backend/internal/models"
	"github.com/certforge/backend/internal/progress"
)

type Handler struct {
	service *Service
	log     *logger.Logger
}

func NewHandler(service *Service, log *logger.Logger) *Handler {
	return &Handler{service: service, log: log.With("component", "QuestionHandler")}
}

// RegisterRoutes mounts the API on r. Every route sits behind auth.
func (h *Handler) RegisterRoutes(r *mux.Router, auth mux.MiddlewareFunc) {
	api := r.PathPrefix("/api/v1").Subrouter()
	api.Use(auth)
	api.HandleFunc("/generate-questions", h.GenerateQuestions).Methods("POST")
	api.HandleFunc("/status/{jobId}", h.GetStatus).Methods("GET")
	api.HandleFunc("/questions/{jobId}", h.GetQuestions).Methods("GET")
	api.HandleFunc("/save-questions", h.SaveQuestions).Methods("POST")
}

func (h *Handler) GenerateQuestions(w http.ResponseWriter, r *http.Request) {
	var req models.GenerateQuestionsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "Invalid request body"})
		return
	}
	// The authenticated user owns the job; the body value is only used
	// when no token user is present.
	if uid, ok := middleware.UserID(r.Context()); ok {
		req.UserID = uid
	}

	resp, err := h.service.Submit(r.Context(), req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, resp)
}

func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request) {
	view, err := h.service.Status(r.Context(), mux.Vars(r)["jobId"])
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) GetQuestions(w http.ResponseWriter, r *http.Request) {
	resp, err := h.service.Questions(r.Context(), mux.Vars(r)["jobId"])
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) SaveQuestions(w http.ResponseWriter, r *http.Request) {
	var req models.SaveQuestionsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "Invalid request body"})
		return
	}

	resp, err := h.service.Save(r.Context(), req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, ErrNoObjectives),
		errors.Is(err, ErrNoValidQuestions),
		errors.Is(err, progress.ErrNotInitialized):
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: err.Error()})
	case errors.Is(err, catalog.ErrNotFound), errors.Is(err, progress.ErrNotFound):
		writeJSON(w, http.StatusNotFound, models.ErrorResponse{Error: err.Error()})
	default:
		h.log.Error("request failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, models.ErrorResponse{Error: "Internal server error"})
	}
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
