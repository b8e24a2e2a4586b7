package auth

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
)

// Error codes in auth responses. The body shape is
// {"error": {"code": ..., "message": ...}}.
const (
	codeValidation     = "VALIDATION_ERROR"
	codeAuthentication = "AUTHENTICATION_ERROR"
	codeConflict       = "CONFLICT"
	codeInternal       = "INTERNAL_SERVER_ERROR"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type signUpRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"fullName"`
}

type signInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handler) SignUp(w http.ResponseWriter, r *http.Request) {
	var req signUpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeValidation, "invalid request body")
		return
	}
	if req.Email == "" || req.Password == "" || req.FullName == "" {
		writeError(w, http.StatusBadRequest, codeValidation, "email, password, and fullName are required")
		return
	}

	session, err := h.service.SignUp(r.Context(), req.Email, req.Password, req.FullName)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidEmail):
			writeError(w, http.StatusBadRequest, codeValidation, "email address is not valid")
		case errors.Is(err, ErrWeakPassword):
			writeError(w, http.StatusBadRequest, codeValidation, "password must be at least 8 characters")
		case errors.Is(err, ErrEmailTaken):
			writeError(w, http.StatusConflict, codeConflict, "email already registered")
		default:
			slog.Error("sign up failed", "error", err)
			writeError(w, http.StatusInternalServerError, codeInternal, "internal error")
		}
		return
	}

	writeJSON(w, http.StatusCreated, session)
}

func (h *Handler) SignIn(w http.ResponseWriter, r *http.Request) {
	var req signInRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeValidation, "invalid request body")
		return
	}
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, codeValidation, "email and password are required")
		return
	}

	session, err := h.service.SignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, codeAuthentication, "invalid credentials")
			return
		}
		slog.Error("sign in failed", "error", err)
		writeError(w, http.StatusInternalServerError, codeInternal, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, session)
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]errorBody{"error": {Code: code, Message: message}})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
