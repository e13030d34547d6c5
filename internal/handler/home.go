package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/rsheldon/flatmate/internal/auth"
	"github.com/rsheldon/flatmate/internal/email"
	"github.com/rsheldon/flatmate/internal/store"
	"github.com/rsheldon/flatmate/internal/websocket"
)

type HomeHandler struct {
	homes   *store.HomeStore
	invites *store.InviteStore
	users   *store.UserStore
	mail    *email.Client
	hub     *websocket.Hub
	log     *slog.Logger
}

func NewHomeHandler(homes *store.HomeStore, invites *store.InviteStore, users *store.UserStore, mail *email.Client, hub *websocket.Hub, logger *slog.Logger) *HomeHandler {
	return &HomeHandler{
		homes:   homes,
		invites: invites,
		users:   users,
		mail:    mail,
		hub:     hub,
		log:     logger.With("component", "home"),
	}
}

type createHomeRequest struct {
	Name string `json:"name"`
}

// Create makes a new home with the caller as its owner. A user already in a
// home cannot create another one.
func (h *HomeHandler) Create(w http.ResponseWriter, r *http.Request) {
	ac, _ := auth.FromContext(r.Context())
	if ac.HomeID != 0 {
		writeError(w, http.StatusConflict, "already a member of a home")
		return
	}

	var req createHomeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	home, err := h.homes.Create(req.Name)
	if err != nil {
		h.log.Error("create home", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create home")
		return
	}
	if _, err := h.homes.AddMember(home.ID, ac.UserID, "owner", 0); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to add member")
		return
	}

	writeJSON(w, http.StatusCreated, home)
}

// Get returns the caller's home with its member list.
func (h *HomeHandler) Get(w http.ResponseWriter, r *http.Request) {
	homeID := auth.HomeID(r.Context())

	home, err := h.homes.GetByID(homeID)
	if err != nil || home == nil {
		writeError(w, http.StatusNotFound, "home not found")
		return
	}
	members, err := h.homes.ListMembers(homeID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list members")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"home": home, "members": members})
}

type updateHomeRequest struct {
	Name        string     `json:"name"`
	Address     string     `json:"address"`
	City        string     `json:"city"`
	MonthlyRent int64      `json:"monthly_rent_cents"`
	Deposit     int64      `json:"deposit_cents"`
	LeaseStart  *time.Time `json:"lease_start"`
	LeaseEnd    *time.Time `json:"lease_end"`
}

func (h *HomeHandler) Update(w http.ResponseWriter, r *http.Request) {
	ac, _ := auth.FromContext(r.Context())

	var req updateHomeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	home, err := h.homes.UpdateDetails(ac.HomeID, req.Name, req.Address, req.City, req.MonthlyRent, req.Deposit, req.LeaseStart, req.LeaseEnd)
	if err != nil {
		h.log.Error("update home", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to update home")
		return
	}

	h.hub.Broadcast(ac.HomeID, websocket.NewMessage("home", "updated", ac.HomeID, nil))
	writeJSON(w, http.StatusOK, home)
}

// RotateInviteCode replaces the home's shareable invite code.
func (h *HomeHandler) RotateInviteCode(w http.ResponseWriter, r *http.Request) {
	homeID := auth.HomeID(r.Context())

	home, err := h.homes.RotateInviteCode(homeID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to rotate invite code")
		return
	}
	writeJSON(w, http.StatusOK, home)
}

type joinRequest struct {
	Code string `json:"code"`
}

// Join adds the caller to a home by invite code. Both the home's shareable
// code and emailed invite codes are accepted.
func (h *HomeHandler) Join(w http.ResponseWriter, r *http.Request) {
	ac, _ := auth.FromContext(r.Context())
	if ac.HomeID != 0 {
		writeError(w, http.StatusConflict, "already a member of a home")
		return
	}

	var req joinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	req.Code = strings.ToUpper(strings.TrimSpace(req.Code))
	if req.Code == "" {
		writeError(w, http.StatusBadRequest, "code is required")
		return
	}

	home, err := h.homes.GetByInviteCode(req.Code)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to look up code")
		return
	}

	var usedInviteID int64
	if home == nil {
		inv, err := h.invites.GetValidByCode(req.Code)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to look up code")
			return
		}
		if inv == nil {
			writeError(w, http.StatusNotFound, "invalid or expired invite code")
			return
		}
		home, err = h.homes.GetByID(inv.HomeID)
		if err != nil || home == nil {
			writeError(w, http.StatusNotFound, "home not found")
			return
		}
		usedInviteID = inv.ID
	}

	member, err := h.homes.AddMember(home.ID, ac.UserID, "member", 0)
	if err != nil {
		h.log.Error("add member", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to join home")
		return
	}
	if usedInviteID != 0 {
		h.invites.MarkUsed(usedInviteID)
	}

	h.hub.Broadcast(home.ID, websocket.NewMessage("member", "joined", ac.UserID, nil))
	writeJSON(w, http.StatusCreated, map[string]any{"home": home, "membership": member})
}

func (h *HomeHandler) ListMembers(w http.ResponseWriter, r *http.Request) {
	members, err := h.homes.ListMembers(auth.HomeID(r.Context()))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list members")
		return
	}
	writeJSON(w, http.StatusOK, members)
}

// RemoveMember marks a member moved out. Owners can remove anyone; members
// can only remove themselves.
func (h *HomeHandler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	ac, _ := auth.FromContext(r.Context())

	userID, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	if userID != ac.UserID && !auth.IsOwner(r.Context()) {
		writeError(w, http.StatusForbidden, "only owners can remove other members")
		return
	}

	member, err := h.homes.GetMember(ac.HomeID, userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get member")
		return
	}
	if member == nil {
		writeError(w, http.StatusNotFound, "member not found")
		return
	}

	if err := h.homes.RemoveMember(ac.HomeID, userID); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to remove member")
		return
	}

	h.hub.Broadcast(ac.HomeID, websocket.NewMessage("member", "left", userID, nil))
	w.WriteHeader(http.StatusNoContent)
}

type rentShareRequest struct {
	RentShareCents int64 `json:"rent_share_cents"`
}

func (h *HomeHandler) UpdateRentShare(w http.ResponseWriter, r *http.Request) {
	ac, _ := auth.FromContext(r.Context())

	userID, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	var req rentShareRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.RentShareCents < 0 {
		writeError(w, http.StatusBadRequest, "rent share cannot be negative")
		return
	}

	member, err := h.homes.UpdateMemberRentShare(ac.HomeID, userID, req.RentShareCents)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to update rent share")
		return
	}
	if member == nil {
		writeError(w, http.StatusNotFound, "member not found")
		return
	}

	h.hub.Broadcast(ac.HomeID, websocket.NewMessage("member", "updated", userID, nil))
	writeJSON(w, http.StatusOK, member)
}

type inviteRequest struct {
	Email string `json:"email"`
}

// CreateInvite emails an invitation to join the caller's home.
func (h *HomeHandler) CreateInvite(w http.ResponseWriter, r *http.Request) {
	ac, _ := auth.FromContext(r.Context())

	var req inviteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Email == "" || !strings.Contains(req.Email, "@") {
		writeError(w, http.StatusBadRequest, "valid email is required")
		return
	}

	inv, err := h.invites.Create(ac.HomeID, req.Email, ac.UserID)
	if err != nil {
		h.log.Error("create invite", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create invite")
		return
	}

	if h.mail.Configured() {
		home, _ := h.homes.GetByID(ac.HomeID)
		inviter, _ := h.users.GetByID(ac.UserID)
		homeName, inviterName := "your home", "A flatmate"
		if home != nil {
			homeName = home.Name
		}
		if inviter != nil {
			inviterName = inviter.Name
		}
		if err := h.mail.SendInvite(req.Email, inv.Code, homeName, inviterName); err != nil {
			h.log.Error("send invite email", "error", err)
		}
	}

	writeJSON(w, http.StatusCreated, inv)
}

func (h *HomeHandler) ListInvites(w http.ResponseWriter, r *http.Request) {
	invites, err := h.invites.ListPendingByHome(auth.HomeID(r.Context()))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list invites")
		return
	}
	writeJSON(w, http.StatusOK, invites)
}
