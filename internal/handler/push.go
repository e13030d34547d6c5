package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/rsheldon/flatmate/internal/auth"
	"github.com/rsheldon/flatmate/internal/model"
	"github.com/rsheldon/flatmate/internal/push"
	"github.com/rsheldon/flatmate/internal/store"
)

type PushHandler struct {
	service *push.Service
	push    *store.PushStore
	log     *slog.Logger
}

func NewPushHandler(service *push.Service, pushStore *store.PushStore, logger *slog.Logger) *PushHandler {
	return &PushHandler{
		service: service,
		push:    pushStore,
		log:     logger.With("component", "push"),
	}
}

// VAPIDKey returns the public key clients need to subscribe.
func (h *PushHandler) VAPIDKey(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		writeError(w, http.StatusServiceUnavailable, "push notifications are not configured")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"public_key": h.service.VAPIDPublicKey()})
}

type subscribeRequest struct {
	Endpoint   string `json:"endpoint"`
	P256dhKey  string `json:"p256dh_key"`
	AuthKey    string `json:"auth_key"`
	DeviceName string `json:"device_name"`
}

func (h *PushHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	ac, _ := auth.FromContext(r.Context())

	var req subscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	req.Endpoint = strings.TrimSpace(req.Endpoint)
	if req.Endpoint == "" || req.P256dhKey == "" || req.AuthKey == "" {
		writeError(w, http.StatusBadRequest, "endpoint, p256dh_key, and auth_key are required")
		return
	}

	sub, err := h.push.CreateSubscription(ac.UserID, ac.HomeID, req.Endpoint, req.P256dhKey, req.AuthKey, req.DeviceName)
	if err != nil {
		h.log.Error("create subscription", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create subscription")
		return
	}
	writeJSON(w, http.StatusCreated, sub)
}

func (h *PushHandler) ListSubscriptions(w http.ResponseWriter, r *http.Request) {
	ac, _ := auth.FromContext(r.Context())

	subs, err := h.push.ListByUser(ac.UserID, ac.HomeID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list subscriptions")
		return
	}
	if subs == nil {
		subs = []model.PushSubscription{}
	}
	writeJSON(w, http.StatusOK, subs)
}

func (h *PushHandler) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	ac, _ := auth.FromContext(r.Context())

	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	sub, err := h.push.GetByID(id, ac.HomeID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get subscription")
		return
	}
	if sub == nil || sub.UserID != ac.UserID {
		writeError(w, http.StatusNotFound, "subscription not found")
		return
	}

	if err := h.push.DeleteSubscription(id, ac.HomeID); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to delete subscription")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *PushHandler) GetPreferences(w http.ResponseWriter, r *http.Request) {
	ac, _ := auth.FromContext(r.Context())

	prefs, err := h.push.GetPreferences(ac.UserID, ac.HomeID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get preferences")
		return
	}
	if prefs == nil {
		prefs = []model.NotificationPreference{}
	}
	writeJSON(w, http.StatusOK, prefs)
}

type preferenceRequest struct {
	NotificationType string `json:"notification_type"`
	Enabled          bool   `json:"enabled"`
}

func (h *PushHandler) SetPreference(w http.ResponseWriter, r *http.Request) {
	ac, _ := auth.FromContext(r.Context())

	var req preferenceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	switch req.NotificationType {
	case model.NotifTypeTaskDue, model.NotifTypeTaskAssigned, model.NotifTypeTaskMissed,
		model.NotifTypeSwapRequest, model.NotifTypeSwapResponse:
	default:
		writeError(w, http.StatusBadRequest, "invalid notification_type")
		return
	}

	if err := h.push.SetPreference(ac.UserID, ac.HomeID, req.NotificationType, req.Enabled); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to set preference")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
