// Package account exposes the registration, activation, password-reset and
// login endpoints over the lifecycle service.
package account

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/ninebudget/ninebudget/internal/http/middleware"
	"github.com/ninebudget/ninebudget/internal/httputil"
	"github.com/ninebudget/ninebudget/internal/notification"
	"github.com/ninebudget/ninebudget/pkg/domain"
	"github.com/ninebudget/ninebudget/pkg/lifecycle"
)

// Handler handles account lifecycle endpoints.
type Handler struct {
	logger       *slog.Logger
	lifecycle    *lifecycle.Service
	emailService *notification.EmailService
	appBaseURL   string
}

// NewHandler creates a new account handler. emailService may be nil, in
// which case activation and reset keys are only reachable through email
// dispatch configured elsewhere.
func NewHandler(logger *slog.Logger, svc *lifecycle.Service, emailService *notification.EmailService, appBaseURL string) *Handler {
	return &Handler{
		logger:       logger,
		lifecycle:    svc,
		emailService: emailService,
		appBaseURL:   appBaseURL,
	}
}

// UserResponse is the external representation of a user. Keys and the
// password verifier are never included.
type UserResponse struct {
	ID        string  `json:"id"`
	FirstName string  `json:"first_name,omitempty"`
	LastName  string  `json:"last_name,omitempty"`
	Email     string  `json:"email"`
	Phone     *string `json:"phone,omitempty"`
	Activated bool    `json:"activated"`
	AccountID *string `json:"account_id,omitempty"`
}

func toUserResponse(u *domain.User) UserResponse {
	resp := UserResponse{
		ID:        u.ID.String(),
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Email:     u.Email,
		Phone:     u.Phone,
		Activated: u.Activated,
	}
	if u.AccountID != nil {
		id := u.AccountID.String()
		resp.AccountID = &id
	}
	return resp
}

// RegisterRequest represents a registration request.
type RegisterRequest struct {
	FirstName string  `json:"first_name"`
	LastName  string  `json:"last_name"`
	Email     string  `json:"email"`
	Phone     string  `json:"phone,omitempty"`
	Username  string  `json:"username"`
	Password  string  `json:"password"`
	AccountID *string `json:"account_id,omitempty"`
}

// MessageResponse represents a simple message response.
type MessageResponse struct {
	Message string `json:"message"`
}

// Register handles user registration.
// POST /v1/account/register
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Email == "" || req.Username == "" || req.Password == "" {
		httputil.Error(w, http.StatusBadRequest, "email, username and password are required")
		return
	}

	in := lifecycle.RegisterInput{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Email:     req.Email,
		Phone:     req.Phone,
		Username:  req.Username,
		Password:  req.Password,
	}
	if req.AccountID != nil {
		id, err := uuid.Parse(*req.AccountID)
		if err != nil {
			httputil.Error(w, http.StatusBadRequest, "invalid account id")
			return
		}
		in.AccountID = &id
	}
	if requester, ok := middleware.GetRequesterAccount(r.Context()); ok {
		in.RequesterAccountID = &requester
	}

	user, err := h.lifecycle.Register(r.Context(), in)
	if errors.Is(err, domain.ErrEmailAlreadyUsed) {
		// An abandoned unactivated registration may still hold the
		// email; clear it and try once more.
		removed, rmErr := h.lifecycle.RemoveNonActivatedUser(r.Context(), req.Email)
		if rmErr == nil && removed {
			user, err = h.lifecycle.Register(r.Context(), in)
		}
	}
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrEmailAlreadyUsed):
			httputil.Error(w, http.StatusConflict, "email address already in use")
		case errors.Is(err, domain.ErrUsernameAlreadyUsed):
			httputil.Error(w, http.StatusConflict, "username already in use")
		case errors.Is(err, domain.ErrInvalidEmail),
			errors.Is(err, domain.ErrInvalidCredentials),
			errors.Is(err, domain.ErrWeakPassword):
			httputil.Error(w, http.StatusBadRequest, err.Error())
		default:
			h.logger.Error("registration failed", "error", err)
			httputil.Error(w, http.StatusInternalServerError, "registration failed")
		}
		return
	}

	h.sendActivationEmail(user)

	httputil.JSON(w, http.StatusCreated, toUserResponse(user))
}

// Activate handles activation key consumption.
// GET /v1/account/activate?key=...
func (h *Handler) Activate(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("key")
	if key == "" {
		httputil.Error(w, http.StatusBadRequest, "key is required")
		return
	}

	user, err := h.lifecycle.Activate(r.Context(), key)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			httputil.Error(w, http.StatusNotFound, "no pending registration for this key")
			return
		}
		h.logger.Error("activation failed", "error", err)
		httputil.Error(w, http.StatusInternalServerError, "activation failed")
		return
	}

	httputil.JSON(w, http.StatusOK, toUserResponse(user))
}

// PasswordResetInitRequest represents a password reset request.
type PasswordResetInitRequest struct {
	Email string `json:"email"`
}

// PasswordResetFinishRequest represents a password reset completion.
type PasswordResetFinishRequest struct {
	Key         string `json:"key"`
	NewPassword string `json:"new_password"`
}

// RequestPasswordReset handles password reset requests.
// POST /v1/account/reset-password/init
//
// The response never reveals whether the email belongs to an eligible
// user.
func (h *Handler) RequestPasswordReset(w http.ResponseWriter, r *http.Request) {
	var req PasswordResetInitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Email == "" {
		httputil.Error(w, http.StatusBadRequest, "email is required")
		return
	}

	user, err := h.lifecycle.RequestPasswordReset(r.Context(), req.Email)
	if err != nil && !errors.Is(err, domain.ErrUserNotFound) {
		h.logger.Error("password reset request failed", "error", err)
		httputil.Error(w, http.StatusInternalServerError, "password reset request failed")
		return
	}

	if user != nil {
		h.sendResetEmail(user)
	}

	httputil.JSON(w, http.StatusOK, MessageResponse{
		Message: "If an account exists with that email, a password reset link has been sent",
	})
}

// FinishPasswordReset handles password reset completion.
// POST /v1/account/reset-password/finish
func (h *Handler) FinishPasswordReset(w http.ResponseWriter, r *http.Request) {
	var req PasswordResetFinishRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Key == "" || req.NewPassword == "" {
		httputil.Error(w, http.StatusBadRequest, "key and new password are required")
		return
	}

	user, err := h.lifecycle.CompletePasswordReset(r.Context(), req.NewPassword, req.Key)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			httputil.Error(w, http.StatusBadRequest, "invalid or expired reset key")
			return
		}
		if errors.Is(err, domain.ErrWeakPassword) {
			httputil.Error(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Error("password reset failed", "error", err)
		httputil.Error(w, http.StatusInternalServerError, "password reset failed")
		return
	}

	httputil.JSON(w, http.StatusOK, toUserResponse(user))
}

// LoginRequest represents a login request.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Login handles credential verification.
// POST /v1/account/login
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Username == "" || req.Password == "" {
		httputil.Error(w, http.StatusBadRequest, "username and password are required")
		return
	}

	user, err := h.lifecycle.Authenticate(r.Context(), req.Username, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidCredentials):
			httputil.Error(w, http.StatusUnauthorized, "invalid username or password")
		case errors.Is(err, domain.ErrAccountLocked):
			httputil.Error(w, http.StatusForbidden, "account temporarily locked due to too many failed login attempts")
		default:
			h.logger.Error("login failed", "error", err)
			httputil.Error(w, http.StatusInternalServerError, "login failed")
		}
		return
	}

	httputil.JSON(w, http.StatusOK, toUserResponse(user))
}

func (h *Handler) sendActivationEmail(user *domain.User) {
	if h.emailService == nil || user.ActivationKey == nil {
		return
	}
	activateURL := fmt.Sprintf("%s/v1/account/activate?key=%s", h.appBaseURL, *user.ActivationKey)
	if err := h.emailService.SendActivationEmail(user.Email, activateURL); err != nil {
		h.logger.Error("failed to send activation email", "error", err, "user_id", user.ID)
		return
	}
	h.logger.Info("activation email sent", "user_id", user.ID)
}

func (h *Handler) sendResetEmail(user *domain.User) {
	if h.emailService == nil || user.ResetKey == nil {
		return
	}
	resetURL := fmt.Sprintf("%s/reset-password?key=%s", h.appBaseURL, *user.ResetKey)
	if err := h.emailService.SendPasswordResetEmail(user.Email, resetURL); err != nil {
		h.logger.Error("failed to send password reset email", "error", err, "user_id", user.ID)
		return
	}
	h.logger.Info("password reset email sent", "user_id", user.ID)
}
