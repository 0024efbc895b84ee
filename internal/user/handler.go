package user

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/sebuszqo/ClaritySpend/internal/logger"
)

const msgUsernameTaken = "Error: Username is already taken!"

type Handler struct {
	userService Service
}

func NewHandler(userService Service) *Handler {
	return &Handler{
		userService: userService,
	}
}

func respondJSON(w http.ResponseWriter, r *http.Request, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		reqLog := logger.FromContext(r.Context())
		reqLog.Error().Err(err).Msg("JSON encoding error")
	}
}

func respondError(w http.ResponseWriter, r *http.Request, status int, message string) {
	respondJSON(w, r, status, map[string]interface{}{
		"status":  "error",
		"message": message,
		"code":    status,
	})
}

func (h *Handler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, r, http.StatusBadRequest, "Invalid request body")
		return
	}

	_, err := h.userService.Register(r.Context(), req.Username, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, ErrUsernameTaken):
			respondError(w, r, http.StatusBadRequest, msgUsernameTaken)
		case errors.Is(err, ErrUsernameRequired), errors.Is(err, ErrUsernameLength),
			errors.Is(err, ErrPasswordRequired), errors.Is(err, ErrPasswordLength):
			respondError(w, r, http.StatusBadRequest, err.Error())
		default:
			respondError(w, r, http.StatusInternalServerError, "Could not register user")
		}
		return
	}

	respondJSON(w, r, http.StatusOK, map[string]string{
		"status":  "success",
		"message": "User registered successfully!",
	})
}

func (h *Handler) HandleGetUserProfile(w http.ResponseWriter, r *http.Request) {
	caller, ok := IdentityFromContext(r.Context())
	if !ok {
		respondError(w, r, http.StatusUnauthorized, "Unauthorized")
		return
	}

	user, err := h.userService.GetUserByID(r.Context(), caller.UserID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			respondError(w, r, http.StatusNotFound, "User not found")
			return
		}
		respondError(w, r, http.StatusInternalServerError, "Could not fetch user data")
		return
	}

	respondJSON(w, r, http.StatusOK, map[string]interface{}{
		"status": "success",
		"data": map[string]interface{}{
			"user_id":    user.ID,
			"username":   user.Username,
			"created_at": user.CreatedAt,
		},
	})
}
