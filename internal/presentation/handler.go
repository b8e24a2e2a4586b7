package presentation

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/slidebanai/slidebanai/backend-go/internal/ai"
	"github.com/slidebanai/slidebanai/backend-go/internal/auth"
)

// OutlineDrafter is the slice of the AI service the handler needs.
type OutlineDrafter interface {
	GenerateOutline(ctx context.Context, topic string, slideCount int) (*ai.Outline, error)
}

type Handler struct {
	service *Service
	drafter OutlineDrafter
}

func NewHandler(service *Service, drafter OutlineDrafter) *Handler {
	return &Handler{service: service, drafter: drafter}
}

type createRequest struct {
	Title string `json:"title"`
}

type generateRequest struct {
	Topic      string `json:"topic"`
	SlideCount int    `json:"slideCount"`
}

type titleRequest struct {
	Title string `json:"title"`
}

type slidesRequest struct {
	Slides []Slide `json:"slides"`
}

type inviteRequest struct {
	Email string `json:"email"`
	Role  string `json:"role"`
}

type roleRequest struct {
	Role string `json:"role"`
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())

	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.Title == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "title is required"})
		return
	}

	pres, err := h.service.Create(r.Context(), req.Title, userID)
	if err != nil {
		slog.Error("create presentation failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}

	writeJSON(w, http.StatusCreated, pres)
}

func (h *Handler) Generate(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())

	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.Topic == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "topic is required"})
		return
	}

	outline, err := h.drafter.GenerateOutline(r.Context(), req.Topic, req.SlideCount)
	if err != nil {
		if errors.Is(err, ai.ErrNotConfigured) {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "ai drafting is not configured"})
			return
		}
		slog.Error("generate outline failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "ai drafting failed"})
		return
	}

	pres, err := h.service.CreateFromOutline(r.Context(), userID, outline)
	if err != nil {
		slog.Error("store drafted presentation failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}

	writeJSON(w, http.StatusCreated, pres)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())
	presentationID := mux.Vars(r)["presentationId"]

	pres, err := h.service.Get(r.Context(), presentationID, userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, pres)
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())

	presentations, err := h.service.List(r.Context(), userID)
	if err != nil {
		slog.Error("list presentations failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}

	writeJSON(w, http.StatusOK, presentations)
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())
	presentationID := mux.Vars(r)["presentationId"]

	if err := h.service.Delete(r.Context(), presentationID, userID); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) UpdateTitle(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())
	presentationID := mux.Vars(r)["presentationId"]

	var req titleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.Title == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "title is required"})
		return
	}

	if err := h.service.UpdateTitle(r.Context(), presentationID, userID, req.Title); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ReplaceSlides(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())
	presentationID := mux.Vars(r)["presentationId"]

	var req slidesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if len(req.Slides) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "slides are required"})
		return
	}

	if err := h.service.ReplaceSlides(r.Context(), presentationID, userID, req.Slides); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) Invite(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())
	presentationID := mux.Vars(r)["presentationId"]

	var req inviteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.Email == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "email is required"})
		return
	}
	if req.Role == "" {
		req.Role = "viewer"
	}

	if err := h.service.InviteByEmail(r.Context(), presentationID, userID, req.Email, req.Role); err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"status": "invited"})
}

func (h *Handler) ListCollaborators(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())
	presentationID := mux.Vars(r)["presentationId"]

	collaborators, err := h.service.ListCollaborators(r.Context(), presentationID, userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, collaborators)
}

func (h *Handler) UpdateCollaboratorRole(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())
	presentationID := mux.Vars(r)["presentationId"]
	targetUserID := mux.Vars(r)["userId"]

	var req roleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	if err := h.service.UpdateCollaboratorRole(r.Context(), presentationID, userID, targetUserID, req.Role); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) RemoveCollaborator(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())
	presentationID := mux.Vars(r)["presentationId"]
	targetUserID := mux.Vars(r)["userId"]

	if err := h.service.RemoveCollaborator(r.Context(), presentationID, userID, targetUserID); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func handleServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
	case errors.Is(err, ErrForbidden):
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "forbidden"})
	case errors.Is(err, ErrNotCollaborator):
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "not a collaborator"})
	case errors.Is(err, ErrInvalidRole):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "role must be editor or viewer"})
	default:
		slog.Error("service error", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
