package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/rsheldon/flatmate/internal/auth"
	"github.com/rsheldon/flatmate/internal/model"
	"github.com/rsheldon/flatmate/internal/store"
	"github.com/rsheldon/flatmate/internal/websocket"
)

type RuleHandler struct {
	rules *store.RuleStore
	hub   *websocket.Hub
	log   *slog.Logger
}

func NewRuleHandler(rules *store.RuleStore, hub *websocket.Hub, logger *slog.Logger) *RuleHandler {
	return &RuleHandler{
		rules: rules,
		hub:   hub,
		log:   logger.With("component", "rule"),
	}
}

type ruleRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Category    string `json:"category"`
}

func (req *ruleRequest) validate(w http.ResponseWriter) bool {
	req.Title = strings.TrimSpace(req.Title)
	if req.Title == "" {
		writeError(w, http.StatusBadRequest, "title is required")
		return false
	}
	if req.Category == "" {
		req.Category = "Other"
	}
	if !model.ValidRuleCategory(req.Category) {
		writeError(w, http.StatusBadRequest, "invalid category")
		return false
	}
	return true
}

func (h *RuleHandler) Create(w http.ResponseWriter, r *http.Request) {
	ac, _ := auth.FromContext(r.Context())

	var req ruleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if !req.validate(w) {
		return
	}

	rule, err := h.rules.Create(ac.HomeID, req.Title, req.Description, req.Category, ac.UserID)
	if err != nil {
		h.log.Error("create rule", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create rule")
		return
	}

	h.hub.Broadcast(ac.HomeID, websocket.NewMessage("rule", "created", rule.ID, nil))
	writeJSON(w, http.StatusCreated, rule)
}

// List returns the home's active rules, optionally filtered by category.
func (h *RuleHandler) List(w http.ResponseWriter, r *http.Request) {
	category := r.URL.Query().Get("category")
	if category != "" && !model.ValidRuleCategory(category) {
		writeError(w, http.StatusBadRequest, "invalid category")
		return
	}

	rules, err := h.rules.ListByHome(auth.HomeID(r.Context()), category)
	if err != nil {
		h.log.Error("list rules", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list rules")
		return
	}
	if rules == nil {
		rules = []model.HouseRule{}
	}
	writeJSON(w, http.StatusOK, rules)
}

// getScoped loads a rule and verifies it belongs to the caller's home.
func (h *RuleHandler) getScoped(w http.ResponseWriter, r *http.Request) *model.HouseRule {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return nil
	}
	rule, err := h.rules.GetByID(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get rule")
		return nil
	}
	if rule == nil || rule.HomeID != auth.HomeID(r.Context()) {
		writeError(w, http.StatusNotFound, "rule not found")
		return nil
	}
	return rule
}

func (h *RuleHandler) Get(w http.ResponseWriter, r *http.Request) {
	rule := h.getScoped(w, r)
	if rule == nil {
		return
	}
	writeJSON(w, http.StatusOK, rule)
}

func (h *RuleHandler) Update(w http.ResponseWriter, r *http.Request) {
	ac, _ := auth.FromContext(r.Context())
	existing := h.getScoped(w, r)
	if existing == nil {
		return
	}

	var req ruleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if !req.validate(w) {
		return
	}

	rule, err := h.rules.Update(existing.ID, req.Title, req.Description, req.Category)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to update rule")
		return
	}

	h.hub.Broadcast(ac.HomeID, websocket.NewMessage("rule", "updated", rule.ID, nil))
	writeJSON(w, http.StatusOK, rule)
}

func (h *RuleHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ac, _ := auth.FromContext(r.Context())
	rule := h.getScoped(w, r)
	if rule == nil {
		return
	}

	if err := h.rules.SoftDelete(rule.ID); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to delete rule")
		return
	}

	h.hub.Broadcast(ac.HomeID, websocket.NewMessage("rule", "deleted", rule.ID, nil))
	w.WriteHeader(http.StatusNoContent)
}

// ToggleAgreement flips the caller's agreement on the rule and returns the
// refreshed rule.
func (h *RuleHandler) ToggleAgreement(w http.ResponseWriter, r *http.Request) {
	ac, _ := auth.FromContext(r.Context())
	rule := h.getScoped(w, r)
	if rule == nil {
		return
	}

	agreed, err := h.rules.ToggleAgreement(rule.ID, ac.UserID)
	if err != nil {
		h.log.Error("toggle agreement", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to toggle agreement")
		return
	}

	rule, err = h.rules.GetByID(rule.ID)
	if err != nil || rule == nil {
		writeError(w, http.StatusInternalServerError, "failed to reload rule")
		return
	}

	h.hub.Broadcast(ac.HomeID, websocket.NewMessage("rule", "updated", rule.ID, nil))
	writeJSON(w, http.StatusOK, map[string]any{"agreed": agreed, "rule": rule})
}

type commentRequest struct {
	Body string `json:"body"`
}

func (h *RuleHandler) AddComment(w http.ResponseWriter, r *http.Request) {
	ac, _ := auth.FromContext(r.Context())
	rule := h.getScoped(w, r)
	if rule == nil {
		return
	}

	var req commentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	req.Body = strings.TrimSpace(req.Body)
	if req.Body == "" {
		writeError(w, http.StatusBadRequest, "body is required")
		return
	}

	comment, err := h.rules.AddComment(rule.ID, ac.UserID, req.Body)
	if err != nil {
		h.log.Error("add comment", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to add comment")
		return
	}

	h.hub.Broadcast(ac.HomeID, websocket.NewMessage("rule", "updated", rule.ID, nil))
	writeJSON(w, http.StatusCreated, comment)
}
