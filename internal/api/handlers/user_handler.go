package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/isdelr/userdir-be/internal/models"
	"github.com/isdelr/userdir-be/internal/services"
)

// UserHandler handles HTTP requests for user management.
type UserHandler struct {
	service services.UserServiceProvider
}

// NewUserHandler creates a new UserHandler.
func NewUserHandler(service services.UserServiceProvider) *UserHandler {
	return &UserHandler{service: service}
}

// RegisterPayload defines the structure for registration requests.
type RegisterPayload struct {
	Name        string `json:"name"`
	Username    string `json:"username"`
	Email       string `json:"email"`
	Password    string `json:"password"`
	// SponsorCode is normally a string. Numbers are matched by their literal
	// text; any other JSON type counts as no code.
	SponsorCode json.RawMessage `json:"sponsorCode"`
}

func (p RegisterPayload) sponsorCode() string {
	var code string
	if err := json.Unmarshal(p.SponsorCode, &code); err == nil {
		return code
	}
	var n json.Number
	if err := json.Unmarshal(p.SponsorCode, &n); err == nil {
		return n.String()
	}
	return ""
}

type userResponse struct {
	OK   bool        `json:"ok"`
	User models.User `json:"user"`
}

type usersResponse struct {
	OK    bool          `json:"ok"`
	Users []models.User `json:"users"`
}

// Register handles new user registration.
func (h *UserHandler) Register(w http.ResponseWriter, r *http.Request) {
	var payload RegisterPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, CodePayloadTooLarge)
			return
		}
		// An unreadable body carries none of the required fields.
		writeError(w, http.StatusBadRequest, CodeMissingFields)
		return
	}

	user, err := h.service.Register(r.Context(), services.RegisterInput{
		Name:        payload.Name,
		Username:    payload.Username,
		Email:       payload.Email,
		Password:    payload.Password,
		SponsorCode: payload.sponsorCode(),
	})
	switch {
	case err == nil:
	case errors.Is(err, services.ErrMissingFields):
		writeError(w, http.StatusBadRequest, CodeMissingFields)
		return
	case errors.Is(err, services.ErrUserExists):
		writeError(w, http.StatusConflict, CodeUserExists)
		return
	default:
		log.Error().Err(err).Str("username", payload.Username).Msg("Failed to register user")
		writeError(w, http.StatusInternalServerError, CodeServerError)
		return
	}

	writeJSON(w, http.StatusOK, userResponse{OK: true, User: user})
}

// List returns every user, newest first. Admin only.
func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	users, err := h.service.ListUsers(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("Failed to list users")
		writeError(w, http.StatusInternalServerError, CodeServerError)
		return
	}
	writeJSON(w, http.StatusOK, usersResponse{OK: true, Users: users})
}
