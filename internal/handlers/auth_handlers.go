package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/marketloop/marketloop/internal/models"
	"github.com/marketloop/marketloop/internal/service"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

type AuthHandlers struct {
	jwtService *service.JWTService
	users      UserStore
	logger     *logrus.Logger
}

func NewAuthHandlers(jwtService *service.JWTService, users UserStore, logger *logrus.Logger) *AuthHandlers {
	return &AuthHandlers{
		jwtService: jwtService,
		users:      users,
		logger:     logger,
	}
}

type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type AuthResponse struct {
	AccessToken string       `json:"access_token"`
	TokenType   string       `json:"token_type"`
	ExpiresIn   int64        `json:"expires_in"`
	User        UserResponse `json:"user"`
}

type UserResponse struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

func (h *AuthHandlers) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	if !isValidEmail(email) {
		respondWithError(w, http.StatusBadRequest, "Invalid email address")
		return
	}
	if len(req.Password) < 6 {
		respondWithError(w, http.StatusBadRequest, "Password must be at least 6 characters")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		h.logger.WithError(err).Error("Failed to hash password")
		respondWithError(w, http.StatusInternalServerError, "Failed to register")
		return
	}

	user := &models.User{
		Email:        email,
		Name:         strings.TrimSpace(req.Name),
		PasswordHash: string(hash),
	}

	if err := h.users.Create(r.Context(), user); err != nil {
		h.logger.WithError(err).WithField("email", email).Warn("Failed to create user")
		respondWithError(w, http.StatusBadRequest, "Email already exists")
		return
	}

	token, err := h.jwtService.GenerateAccessToken(email)
	if err != nil {
		h.logger.WithError(err).Error("Failed to generate token")
		respondWithError(w, http.StatusInternalServerError, "Failed to register")
		return
	}

	respondWithJSON(w, http.StatusOK, AuthResponse{
		AccessToken: token.Token,
		TokenType:   token.TokenType,
		ExpiresIn:   token.ExpiresIn,
		User:        UserResponse{Email: user.Email, Name: user.Name},
	})
}

func (h *AuthHandlers) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" || req.Password == "" {
		respondWithError(w, http.StatusBadRequest, "Email and password are required")
		return
	}

	user, err := h.users.GetByEmail(r.Context(), email)
	if err != nil {
		h.logger.WithError(err).Error("Failed to look up user")
		respondWithError(w, http.StatusInternalServerError, "Failed to log in")
		return
	}
	if user == nil || bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)) != nil {
		respondWithError(w, http.StatusUnauthorized, "Invalid email or password")
		return
	}

	token, err := h.jwtService.GenerateAccessToken(email)
	if err != nil {
		h.logger.WithError(err).Error("Failed to generate token")
		respondWithError(w, http.StatusInternalServerError, "Failed to log in")
		return
	}

	respondWithJSON(w, http.StatusOK, AuthResponse{
		AccessToken: token.Token,
		TokenType:   token.TokenType,
		ExpiresIn:   token.ExpiresIn,
		User:        UserResponse{Email: user.Email, Name: user.Name},
	})
}
