// Package task implements the task lifecycle: completion, rotation advance,
// recurrence roll-forward, swap requests, and the missed-task sweep.
package task

import (
	"errors"
	"log/slog"
	"time"

	"github.com/rsheldon/flatmate/internal/model"
	"github.com/rsheldon/flatmate/internal/schedule"
	"github.com/rsheldon/flatmate/internal/store"
)

var (
	ErrNotFound     = errors.New("task not found")
	ErrSwapNotFound = errors.New("swap request not found")
	ErrSwapClosed   = errors.New("swap request already resolved")
	ErrNotRecipient = errors.New("swap request addressed to another user")
)

// Notifier receives task lifecycle events. Implementations must not block.
type Notifier interface {
	TaskAssigned(homeID int64, task *model.Task, userIDs []int64)
	SwapRequested(homeID int64, sw *model.SwapRequest)
	SwapResponded(homeID int64, sw *model.SwapRequest)
}

type Service struct {
	tasks    *store.TaskStore
	notifier Notifier
	log      *slog.Logger
}

// NewService creates the task service. notifier may be nil.
func NewService(tasks *store.TaskStore, notifier Notifier, logger *slog.Logger) *Service {
	return &Service{
		tasks:    tasks,
		notifier: notifier,
		log:      logger.With("component", "task"),
	}
}

// NextAssignee returns the rotation member after the current assignee. The
// cycle wraps, and an assignee not in the rotation (or no assignee at all)
// starts the cycle from its first member.
func NextAssignee(members []model.RotationMember, assignees []model.TaskAssignee) (int64, bool) {
	if len(members) == 0 {
		return 0, false
	}

	idx := -1
	if len(assignees) > 0 {
		current := assignees[0].UserID
		for i, m := range members {
			if m.UserID == current {
				idx = i
				break
			}
		}
	}
	return members[(idx+1)%len(members)].UserID, true
}

// Complete records a completion for the task. For rotating tasks the assignee
// advances to the next rotation member, and if the task recurs the due date
// rolls forward and the status resets to pending. One-off tasks end up
// completed.
func (s *Service) Complete(taskID, userID int64, notes string) (*model.Task, error) {
	t, err := s.tasks.GetByID(taskID)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, ErrNotFound
	}

	if _, err := s.tasks.CreateCompletion(taskID, &userID, time.Now().UTC(), model.CompletionStatusCompleted, notes); err != nil {
		return nil, err
	}

	if t.RotationEnabled {
		if err := s.advance(t); err != nil {
			return nil, err
		}
	} else if err := s.tasks.UpdateStatus(taskID, model.TaskStatusCompleted); err != nil {
		return nil, err
	}

	return s.tasks.GetByID(taskID)
}

func (s *Service) advance(t *model.Task) error {
	members, err := s.tasks.ListRotationMembers(t.ID)
	if err != nil {
		return err
	}

	next, ok := NextAssignee(members, t.Assignees)
	if ok {
		if err := s.tasks.SetAssignees(t.ID, []int64{next}); err != nil {
			return err
		}
		if s.notifier != nil {
			s.notifier.TaskAssigned(t.HomeID, t, []int64{next})
		}
	}

	if schedule.Valid(t.Frequency) && t.DueDate != nil {
		return s.tasks.RollForward(t.ID, schedule.Next(*t.DueDate, t.Frequency))
	}
	return s.tasks.UpdateStatus(t.ID, model.TaskStatusCompleted)
}

// RequestSwap opens a pending swap request from fromUser to toUser.
func (s *Service) RequestSwap(taskID, fromUser, toUser int64, originalDate, proposedDate time.Time, message string) (*model.SwapRequest, error) {
	t, err := s.tasks.GetByID(taskID)
	if err != nil {
		return nil, err
	}
	if t == nil || !t.Active {
		return nil, ErrNotFound
	}

	sw, err := s.tasks.CreateSwap(taskID, fromUser, toUser, originalDate, proposedDate, message)
	if err != nil {
		return nil, err
	}
	if s.notifier != nil {
		s.notifier.SwapRequested(t.HomeID, sw)
	}
	return sw, nil
}

// RespondSwap resolves a pending swap request. Only the recipient may respond,
// and a resolved request cannot be reopened. Acceptance records the agreement
// only; the task's assignees are left untouched.
// TODO: reassign the task on acceptance once the handoff rules are settled.
func (s *Service) RespondSwap(swapID, userID int64, accept bool) (*model.SwapRequest, error) {
	sw, err := s.tasks.GetSwapByID(swapID)
	if err != nil {
		return nil, err
	}
	if sw == nil {
		return nil, ErrSwapNotFound
	}
	if sw.Status != model.SwapStatusPending {
		return nil, ErrSwapClosed
	}
	if sw.ToUser != userID {
		return nil, ErrNotRecipient
	}

	status := model.SwapStatusRejected
	if accept {
		status = model.SwapStatusAccepted
	}
	sw, err = s.tasks.UpdateSwapStatus(swapID, status)
	if err != nil {
		return nil, err
	}

	t, err := s.tasks.GetByID(sw.TaskID)
	if err == nil && t != nil && s.notifier != nil {
		s.notifier.SwapResponded(t.HomeID, sw)
	}
	return sw, nil
}

// MarkMissed transitions overdue pending tasks to missed, recording a missed
// completion for each. It returns the marked tasks.
func (s *Service) MarkMissed(now time.Time) ([]model.Task, error) {
	overdue, err := s.tasks.ListOverduePending(now)
	if err != nil {
		return nil, err
	}

	var marked []model.Task
	for _, t := range overdue {
		if _, err := s.tasks.CreateCompletion(t.ID, nil, now, model.CompletionStatusMissed, ""); err != nil {
			s.log.Error("record missed completion", "task_id", t.ID, "error", err)
			continue
		}
		if err := s.tasks.UpdateStatus(t.ID, model.TaskStatusMissed); err != nil {
			s.log.Error("mark task missed", "task_id", t.ID, "error", err)
			continue
		}
		marked = append(marked, t)
	}
	if len(marked) > 0 {
		s.log.Info("marked overdue tasks missed", "count", len(marked))
	}
	return marked, nil
}
