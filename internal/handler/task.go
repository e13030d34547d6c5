package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rsheldon/flatmate/internal/auth"
	"github.com/rsheldon/flatmate/internal/model"
	"github.com/rsheldon/flatmate/internal/schedule"
	"github.com/rsheldon/flatmate/internal/store"
	"github.com/rsheldon/flatmate/internal/task"
	"github.com/rsheldon/flatmate/internal/websocket"
)

type TaskHandler struct {
	tasks   *store.TaskStore
	homes   *store.HomeStore
	service *task.Service
	hub     *websocket.Hub
	log     *slog.Logger
}

func NewTaskHandler(tasks *store.TaskStore, homes *store.HomeStore, service *task.Service, hub *websocket.Hub, logger *slog.Logger) *TaskHandler {
	return &TaskHandler{
		tasks:   tasks,
		homes:   homes,
		service: service,
		hub:     hub,
		log:     logger.With("component", "task"),
	}
}

type taskRequest struct {
	Title                  string     `json:"title"`
	Description            string     `json:"description"`
	Category               string     `json:"category"`
	DueDate                *time.Time `json:"due_date"`
	Difficulty             int        `json:"difficulty"`
	EstimatedMinutes       int        `json:"estimated_minutes"`
	RotationEnabled        bool       `json:"rotation_enabled"`
	Frequency              string     `json:"frequency"`
	RequiresMultiplePeople bool       `json:"requires_multiple_people"`
	Assignees              []int64    `json:"assignees"`
	RotationMembers        []int64    `json:"rotation_members"`
}

func (h *TaskHandler) validate(w http.ResponseWriter, homeID int64, req *taskRequest) bool {
	req.Title = strings.TrimSpace(req.Title)
	if req.Title == "" {
		writeError(w, http.StatusBadRequest, "title is required")
		return false
	}
	if req.Difficulty < 0 || req.Difficulty > 5 {
		writeError(w, http.StatusBadRequest, "difficulty must be between 0 and 5")
		return false
	}
	if req.Frequency != "" && !schedule.Valid(req.Frequency) {
		writeError(w, http.StatusBadRequest, "invalid frequency")
		return false
	}
	if len(req.Assignees) > 1 && !req.RequiresMultiplePeople {
		writeError(w, http.StatusBadRequest, "multiple assignees require requires_multiple_people")
		return false
	}
	for _, userID := range append(append([]int64{}, req.Assignees...), req.RotationMembers...) {
		member, err := h.homes.GetMember(homeID, userID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to check member")
			return false
		}
		if member == nil {
			writeError(w, http.StatusBadRequest, "assignee is not a home member")
			return false
		}
	}
	return true
}

func (h *TaskHandler) Create(w http.ResponseWriter, r *http.Request) {
	ac, _ := auth.FromContext(r.Context())

	var req taskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if !h.validate(w, ac.HomeID, &req) {
		return
	}

	t, err := h.tasks.Create(store.CreateTaskParams{
		HomeID:                 ac.HomeID,
		Title:                  req.Title,
		Description:            req.Description,
		Category:               req.Category,
		DueDate:                req.DueDate,
		CreatedBy:              ac.UserID,
		Difficulty:             req.Difficulty,
		EstimatedMinutes:       req.EstimatedMinutes,
		RotationEnabled:        req.RotationEnabled,
		Frequency:              req.Frequency,
		RequiresMultiplePeople: req.RequiresMultiplePeople,
		Assignees:              req.Assignees,
	})
	if err != nil {
		h.log.Error("create task", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create task")
		return
	}

	if req.RotationEnabled && len(req.RotationMembers) > 0 {
		if err := h.tasks.SetRotationMembers(t.ID, req.RotationMembers); err != nil {
			writeError(w, http.StatusInternalServerError, "failed to set rotation")
			return
		}
		t, _ = h.tasks.GetByID(t.ID)
	}

	h.hub.Broadcast(ac.HomeID, websocket.NewMessage("task", "created", t.ID, nil))
	writeJSON(w, http.StatusCreated, t)
}

// List returns the home's active tasks, optionally filtered by status and
// assignee.
func (h *TaskHandler) List(w http.ResponseWriter, r *http.Request) {
	homeID := auth.HomeID(r.Context())

	status := r.URL.Query().Get("status")
	var assignedTo *int64
	if v := r.URL.Query().Get("assigned_to"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid assigned_to")
			return
		}
		assignedTo = &id
	}

	tasks, err := h.tasks.ListByHome(homeID, status, assignedTo)
	if err != nil {
		h.log.Error("list tasks", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list tasks")
		return
	}
	if tasks == nil {
		tasks = []model.Task{}
	}
	writeJSON(w, http.StatusOK, tasks)
}

// getScoped loads a task and verifies it belongs to the caller's home.
func (h *TaskHandler) getScoped(w http.ResponseWriter, r *http.Request) *model.Task {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return nil
	}
	t, err := h.tasks.GetByID(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get task")
		return nil
	}
	if t == nil || t.HomeID != auth.HomeID(r.Context()) {
		writeError(w, http.StatusNotFound, "task not found")
		return nil
	}
	return t
}

func (h *TaskHandler) Get(w http.ResponseWriter, r *http.Request) {
	t := h.getScoped(w, r)
	if t == nil {
		return
	}

	completions, err := h.tasks.ListCompletionsByTask(t.ID)
	if err == nil {
		t.Completions = completions
	}
	rotation, err := h.tasks.ListRotationMembers(t.ID)
	if err == nil {
		t.RotationMembers = rotation
	}
	writeJSON(w, http.StatusOK, t)
}

func (h *TaskHandler) Update(w http.ResponseWriter, r *http.Request) {
	ac, _ := auth.FromContext(r.Context())
	existing := h.getScoped(w, r)
	if existing == nil {
		return
	}

	var req taskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if !h.validate(w, ac.HomeID, &req) {
		return
	}

	t, err := h.tasks.Update(existing.ID, store.UpdateTaskParams{
		Title:                  req.Title,
		Description:            req.Description,
		Category:               req.Category,
		DueDate:                req.DueDate,
		Difficulty:             req.Difficulty,
		EstimatedMinutes:       req.EstimatedMinutes,
		RotationEnabled:        req.RotationEnabled,
		Frequency:              req.Frequency,
		RequiresMultiplePeople: req.RequiresMultiplePeople,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to update task")
		return
	}
	if req.Assignees != nil {
		if err := h.tasks.SetAssignees(t.ID, req.Assignees); err != nil {
			writeError(w, http.StatusInternalServerError, "failed to set assignees")
			return
		}
	}
	if req.RotationMembers != nil {
		if err := h.tasks.SetRotationMembers(t.ID, req.RotationMembers); err != nil {
			writeError(w, http.StatusInternalServerError, "failed to set rotation")
			return
		}
	}
	t, _ = h.tasks.GetByID(t.ID)

	h.hub.Broadcast(ac.HomeID, websocket.NewMessage("task", "updated", t.ID, nil))
	writeJSON(w, http.StatusOK, t)
}

func (h *TaskHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ac, _ := auth.FromContext(r.Context())
	t := h.getScoped(w, r)
	if t == nil {
		return
	}

	if err := h.tasks.SoftDelete(t.ID); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to delete task")
		return
	}

	h.hub.Broadcast(ac.HomeID, websocket.NewMessage("task", "deleted", t.ID, nil))
	w.WriteHeader(http.StatusNoContent)
}

type statusRequest struct {
	Status string `json:"status"`
}

func (h *TaskHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	ac, _ := auth.FromContext(r.Context())
	t := h.getScoped(w, r)
	if t == nil {
		return
	}

	var req statusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	switch req.Status {
	case model.TaskStatusPending, model.TaskStatusInProgress, model.TaskStatusCompleted, model.TaskStatusMissed:
	default:
		writeError(w, http.StatusBadRequest, "invalid status")
		return
	}

	if err := h.tasks.UpdateStatus(t.ID, req.Status); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to update status")
		return
	}
	t, _ = h.tasks.GetByID(t.ID)

	h.hub.Broadcast(ac.HomeID, websocket.NewMessage("task", "updated", t.ID, nil))
	writeJSON(w, http.StatusOK, t)
}

type rotationRequest struct {
	Members []int64 `json:"members"`
}

// SetRotation replaces the task's ordered rotation member list.
func (h *TaskHandler) SetRotation(w http.ResponseWriter, r *http.Request) {
	ac, _ := auth.FromContext(r.Context())
	t := h.getScoped(w, r)
	if t == nil {
		return
	}

	var req rotationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	for _, userID := range req.Members {
		member, err := h.homes.GetMember(ac.HomeID, userID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to check member")
			return
		}
		if member == nil {
			writeError(w, http.StatusBadRequest, "rotation member is not a home member")
			return
		}
	}

	if err := h.tasks.SetRotationMembers(t.ID, req.Members); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to set rotation")
		return
	}
	t, _ = h.tasks.GetByID(t.ID)

	h.hub.Broadcast(ac.HomeID, websocket.NewMessage("task", "updated", t.ID, nil))
	writeJSON(w, http.StatusOK, t)
}

type completeRequest struct {
	Notes string `json:"notes"`
}

// Complete records a completion and runs the rotation and recurrence rules.
func (h *TaskHandler) Complete(w http.ResponseWriter, r *http.Request) {
	ac, _ := auth.FromContext(r.Context())
	t := h.getScoped(w, r)
	if t == nil {
		return
	}

	var req completeRequest
	json.NewDecoder(r.Body).Decode(&req)

	updated, err := h.service.Complete(t.ID, ac.UserID, req.Notes)
	if err != nil {
		h.log.Error("complete task", "task_id", t.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to complete task")
		return
	}

	h.hub.Broadcast(ac.HomeID, websocket.NewMessage("task", "completed", t.ID, nil))
	writeJSON(w, http.StatusOK, updated)
}

func (h *TaskHandler) ListCompletions(w http.ResponseWriter, r *http.Request) {
	t := h.getScoped(w, r)
	if t == nil {
		return
	}

	completions, err := h.tasks.ListCompletionsByTask(t.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list completions")
		return
	}
	if completions == nil {
		completions = []model.TaskCompletion{}
	}
	writeJSON(w, http.StatusOK, completions)
}

type rateRequest struct {
	Rating int `json:"rating"`
}

// RateCompletion lets a housemate rate how well a completion was done.
func (h *TaskHandler) RateCompletion(w http.ResponseWriter, r *http.Request) {
	ac, _ := auth.FromContext(r.Context())

	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	var req rateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Rating < 1 || req.Rating > 5 {
		writeError(w, http.StatusBadRequest, "rating must be between 1 and 5")
		return
	}

	c, err := h.tasks.GetCompletionByID(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get completion")
		return
	}
	if c == nil {
		writeError(w, http.StatusNotFound, "completion not found")
		return
	}
	t, err := h.tasks.GetByID(c.TaskID)
	if err != nil || t == nil || t.HomeID != ac.HomeID {
		writeError(w, http.StatusNotFound, "completion not found")
		return
	}
	if c.CompletedBy != nil && *c.CompletedBy == ac.UserID {
		writeError(w, http.StatusBadRequest, "cannot rate your own completion")
		return
	}

	c, err = h.tasks.RateCompletion(id, req.Rating, ac.UserID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to rate completion")
		return
	}

	h.hub.Broadcast(ac.HomeID, websocket.NewMessage("task", "updated", t.ID, nil))
	writeJSON(w, http.StatusOK, c)
}

type swapRequest struct {
	TaskID       int64      `json:"task_id"`
	ToUser       int64      `json:"to_user"`
	OriginalDate *time.Time `json:"original_date"`
	ProposedDate *time.Time `json:"proposed_date"`
	Message      string     `json:"message"`
}

func (h *TaskHandler) CreateSwap(w http.ResponseWriter, r *http.Request) {
	ac, _ := auth.FromContext(r.Context())

	var req swapRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	t, err := h.tasks.GetByID(req.TaskID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get task")
		return
	}
	if t == nil || t.HomeID != ac.HomeID {
		writeError(w, http.StatusNotFound, "task not found")
		return
	}
	if req.ToUser == 0 || req.ToUser == ac.UserID {
		writeError(w, http.StatusBadRequest, "to_user must be another member")
		return
	}
	member, err := h.homes.GetMember(ac.HomeID, req.ToUser)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to check member")
		return
	}
	if member == nil {
		writeError(w, http.StatusBadRequest, "to_user is not a home member")
		return
	}
	if req.OriginalDate == nil || req.ProposedDate == nil {
		writeError(w, http.StatusBadRequest, "original_date and proposed_date are required")
		return
	}

	sw, err := h.service.RequestSwap(t.ID, ac.UserID, req.ToUser, *req.OriginalDate, *req.ProposedDate, strings.TrimSpace(req.Message))
	if err != nil {
		h.log.Error("create swap", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create swap request")
		return
	}

	h.hub.Broadcast(ac.HomeID, websocket.NewMessage("swap", "created", sw.ID, nil))
	writeJSON(w, http.StatusCreated, sw)
}

func (h *TaskHandler) ListSwaps(w http.ResponseWriter, r *http.Request) {
	ac, _ := auth.FromContext(r.Context())

	swaps, err := h.tasks.ListSwapsForUser(ac.HomeID, ac.UserID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list swap requests")
		return
	}
	if swaps == nil {
		swaps = []model.SwapRequest{}
	}
	writeJSON(w, http.StatusOK, swaps)
}

type swapResponseRequest struct {
	Accept bool `json:"accept"`
}

func (h *TaskHandler) RespondSwap(w http.ResponseWriter, r *http.Request) {
	ac, _ := auth.FromContext(r.Context())

	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	var req swapResponseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	sw, err := h.service.RespondSwap(id, ac.UserID, req.Accept)
	switch {
	case errors.Is(err, task.ErrSwapNotFound):
		writeError(w, http.StatusNotFound, "swap request not found")
		return
	case errors.Is(err, task.ErrSwapClosed):
		writeError(w, http.StatusConflict, "swap request already resolved")
		return
	case errors.Is(err, task.ErrNotRecipient):
		writeError(w, http.StatusForbidden, "only the recipient can respond")
		return
	case err != nil:
		h.log.Error("respond swap", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to respond to swap")
		return
	}

	h.hub.Broadcast(ac.HomeID, websocket.NewMessage("swap", "updated", sw.ID, nil))
	writeJSON(w, http.StatusOK, sw)
}
