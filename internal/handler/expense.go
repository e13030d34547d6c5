package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/rsheldon/flatmate/internal/auth"
	"github.com/rsheldon/flatmate/internal/model"
	"github.com/rsheldon/flatmate/internal/store"
	"github.com/rsheldon/flatmate/internal/websocket"
)

type ExpenseHandler struct {
	expenses *store.ExpenseStore
	hub      *websocket.Hub
	log      *slog.Logger
}

func NewExpenseHandler(expenses *store.ExpenseStore, hub *websocket.Hub, logger *slog.Logger) *ExpenseHandler {
	return &ExpenseHandler{
		expenses: expenses,
		hub:      hub,
		log:      logger.With("component", "expense"),
	}
}

type expenseRequest struct {
	Description string     `json:"description"`
	AmountCents int64      `json:"amount_cents"`
	IncurredOn  *time.Time `json:"incurred_on"`
}

func (h *ExpenseHandler) Create(w http.ResponseWriter, r *http.Request) {
	ac, _ := auth.FromContext(r.Context())

	var req expenseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	req.Description = strings.TrimSpace(req.Description)
	if req.Description == "" {
		writeError(w, http.StatusBadRequest, "description is required")
		return
	}
	if req.AmountCents <= 0 {
		writeError(w, http.StatusBadRequest, "amount must be positive")
		return
	}
	incurredOn := time.Now().UTC()
	if req.IncurredOn != nil {
		incurredOn = *req.IncurredOn
	}

	expense, err := h.expenses.Create(ac.HomeID, ac.UserID, req.Description, req.AmountCents, incurredOn)
	if err != nil {
		h.log.Error("create expense", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create expense")
		return
	}

	h.hub.Broadcast(ac.HomeID, websocket.NewMessage("expense", "created", expense.ID, nil))
	writeJSON(w, http.StatusCreated, expense)
}

func (h *ExpenseHandler) List(w http.ResponseWriter, r *http.Request) {
	expenses, err := h.expenses.ListByHome(auth.HomeID(r.Context()))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list expenses")
		return
	}
	if expenses == nil {
		expenses = []model.Expense{}
	}
	writeJSON(w, http.StatusOK, expenses)
}

func (h *ExpenseHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ac, _ := auth.FromContext(r.Context())

	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	expense, err := h.expenses.GetByID(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get expense")
		return
	}
	if expense == nil || expense.HomeID != ac.HomeID {
		writeError(w, http.StatusNotFound, "expense not found")
		return
	}
	if expense.PaidBy != ac.UserID && !auth.IsOwner(r.Context()) {
		writeError(w, http.StatusForbidden, "only the payer or an owner can delete an expense")
		return
	}

	if err := h.expenses.Delete(id); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to delete expense")
		return
	}

	h.hub.Broadcast(ac.HomeID, websocket.NewMessage("expense", "deleted", id, nil))
	w.WriteHeader(http.StatusNoContent)
}

// Totals returns per-member expense sums for the home.
func (h *ExpenseHandler) Totals(w http.ResponseWriter, r *http.Request) {
	totals, err := h.expenses.TotalsByMember(auth.HomeID(r.Context()))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to compute totals")
		return
	}
	writeJSON(w, http.StatusOK, totals)
}
