package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/marketloop/marketloop/internal/service"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

type ResetHandlers struct {
	resetService    *service.ResetService
	users           UserStore
	developmentMode bool
	logger          *logrus.Logger
}

func NewResetHandlers(
	resetService *service.ResetService,
	users UserStore,
	developmentMode bool,
	logger *logrus.Logger,
) *ResetHandlers {
	return &ResetHandlers{
		resetService:    resetService,
		users:           users,
		developmentMode: developmentMode,
		logger:          logger,
	}
}

type RequestResetRequest struct {
	Email string `json:"email"`
}

type RequestResetResponse struct {
	Message         string `json:"message"`
	DevelopmentMode bool   `json:"developmentMode,omitempty"`
	OTP             string `json:"otp,omitempty"`
}

type VerifyResetRequest struct {
	Email       string `json:"email"`
	Code        string `json:"code"`
	NewPassword string `json:"newPassword"`
}

type VerifyResetResponse struct {
	Message string `json:"message"`
}

// RequestReset issues a reset code and hands it to the delivery channel.
// The response never says whether the email has an account.
func (h *ResetHandlers) RequestReset(w http.ResponseWriter, r *http.Request) {
	var req RequestResetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" {
		respondWithError(w, http.StatusBadRequest, "Email is required")
		return
	}
	if !isValidEmail(email) {
		respondWithError(w, http.StatusBadRequest, "Invalid email address")
		return
	}

	code, err := h.resetService.RequestCode(r.Context(), email)
	if err != nil {
		h.logger.WithError(err).Error("Failed to issue reset code")
		respondWithError(w, http.StatusInternalServerError, "Failed to send reset code")
		return
	}

	resp := RequestResetResponse{Message: "Reset code sent successfully"}
	if h.developmentMode {
		resp.DevelopmentMode = true
		resp.OTP = code
	}
	respondWithJSON(w, http.StatusOK, resp)
}

// VerifyReset checks the submitted code and, on success, updates the
// account password. Consuming the record is what makes the verification
// single-use; a repeat call lands on the not-found branch.
func (h *ResetHandlers) VerifyReset(w http.ResponseWriter, r *http.Request) {
	var req VerifyResetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	code := strings.TrimSpace(req.Code)
	newPassword := req.NewPassword

	if email == "" || code == "" || newPassword == "" {
		respondWithError(w, http.StatusBadRequest, "Email, code, and new password are required")
		return
	}

	if err := h.resetService.VerifyCode(r.Context(), email, code); err != nil {
		switch {
		case errors.Is(err, service.ErrCodeNotFound):
			respondWithError(w, http.StatusBadRequest, "Invalid or expired reset code")
		case errors.Is(err, service.ErrCodeExpired):
			respondWithError(w, http.StatusBadRequest, "Reset code has expired")
		case errors.Is(err, service.ErrTooManyAttempts):
			respondWithError(w, http.StatusBadRequest, "Too many failed attempts")
		case errors.Is(err, service.ErrCodeMismatch):
			respondWithError(w, http.StatusBadRequest, "Invalid reset code")
		default:
			h.logger.WithError(err).Error("Reset verification failed")
			respondWithError(w, http.StatusInternalServerError, "Failed to reset password")
		}
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		h.logger.WithError(err).Error("Failed to hash new password")
		respondWithError(w, http.StatusInternalServerError, "Failed to reset password")
		return
	}

	if err := h.users.UpdatePassword(r.Context(), email, string(hash)); err != nil {
		// Existence is only learned here, after proving code possession.
		h.logger.WithError(err).WithField("email", email).Warn("Password update after verified reset failed")
		respondWithError(w, http.StatusBadRequest, "Failed to reset password")
		return
	}

	respondWithJSON(w, http.StatusOK, VerifyResetResponse{Message: "Password reset successful"})
}
