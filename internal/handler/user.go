package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/rsheldon/flatmate/internal/auth"
	"github.com/rsheldon/flatmate/internal/store"
	"github.com/rsheldon/flatmate/internal/websocket"
)

type UserHandler struct {
	users    *store.UserStore
	sessions *store.SessionStore
	hub      *websocket.Hub
	log      *slog.Logger
}

func NewUserHandler(users *store.UserStore, sessions *store.SessionStore, hub *websocket.Hub, logger *slog.Logger) *UserHandler {
	return &UserHandler{
		users:    users,
		sessions: sessions,
		hub:      hub,
		log:      logger.With("component", "user"),
	}
}

type profileRequest struct {
	Name        string `json:"name"`
	Phone       string `json:"phone"`
	AvatarEmoji string `json:"avatar_emoji"`
	Color       string `json:"color"`
}

func (h *UserHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	ac, _ := auth.FromContext(r.Context())

	var req profileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	user, err := h.users.UpdateProfile(ac.UserID, req.Name, req.Phone, req.AvatarEmoji, req.Color)
	if err != nil {
		h.log.Error("update profile", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to update profile")
		return
	}

	if ac.HomeID != 0 {
		h.hub.Broadcast(ac.HomeID, websocket.NewMessage("member", "updated", ac.UserID, nil))
	}
	writeJSON(w, http.StatusOK, user)
}

type passwordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

func (h *UserHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	ac, _ := auth.FromContext(r.Context())

	var req passwordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if len(req.NewPassword) < 8 {
		writeError(w, http.StatusBadRequest, "password must be at least 8 characters")
		return
	}

	user, err := h.users.GetByID(ac.UserID)
	if err != nil || user == nil {
		writeError(w, http.StatusInternalServerError, "failed to load user")
		return
	}
	hash, err := h.users.PasswordHash(user.Email)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load user")
		return
	}
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(req.CurrentPassword)) != nil {
		writeError(w, http.StatusUnauthorized, "current password is incorrect")
		return
	}

	newHash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to hash password")
		return
	}
	if err := h.users.UpdatePassword(ac.UserID, string(newHash)); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to update password")
		return
	}

	// Other sessions are revoked; the caller keeps this one.
	if err := h.sessions.DeleteOthers(ac.UserID, ac.SessionID); err != nil {
		h.log.Error("revoke sessions", "error", err)
	}

	w.WriteHeader(http.StatusNoContent)
}
