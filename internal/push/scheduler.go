package push

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/rsheldon/flatmate/internal/model"
	"github.com/rsheldon/flatmate/internal/store"
	"github.com/rsheldon/flatmate/internal/task"
)

// Scheduler periodically checks for notifications to send and sweeps overdue
// tasks into the missed state.
type Scheduler struct {
	mu        sync.RWMutex
	service   *Service
	push      *store.PushStore
	tasks     *store.TaskStore
	lifecycle *task.Service
	interval  time.Duration
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewScheduler creates a notification scheduler. svc may be nil when web push
// is not configured; the missed-task sweep still runs.
func NewScheduler(svc *Service, pushStore *store.PushStore, taskStore *store.TaskStore, lifecycle *task.Service) *Scheduler {
	return &Scheduler{
		service:   svc,
		push:      pushStore,
		tasks:     taskStore,
		lifecycle: lifecycle,
		interval:  60 * time.Second,
	}
}

// Start begins the scheduler loop.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	s.mu.Unlock()

	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.tick()
			}
		}
	}()
}

// Stop gracefully stops the scheduler.
func (s *Scheduler) Stop() {
	s.mu.RLock()
	cancel := s.cancel
	done := s.done
	s.mu.RUnlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

func (s *Scheduler) tick() {
	s.sweepMissed()

	homeIDs, err := s.push.ListHomeIDs()
	if err != nil {
		log.Printf("push scheduler: list homes: %v", err)
		return
	}

	for _, hid := range homeIDs {
		s.checkTasksDue(hid)
	}
}

// sweepMissed marks overdue pending tasks missed and notifies their homes.
func (s *Scheduler) sweepMissed() {
	marked, err := s.lifecycle.MarkMissed(time.Now().UTC())
	if err != nil {
		log.Printf("push scheduler: sweep missed: %v", err)
		return
	}

	for _, t := range marked {
		refID := fmt.Sprintf("task-missed-%d", t.ID)
		sent, err := s.push.WasSent(t.HomeID, model.NotifTypeTaskMissed, refID)
		if err != nil || sent {
			continue
		}

		payload := Payload{
			Title: "Task Missed",
			Body:  fmt.Sprintf("%s was not done in time", t.Title),
			URL:   "/tasks",
			Tag:   refID,
		}
		s.notifyHome(t.HomeID, model.NotifTypeTaskMissed, payload)
		s.push.RecordSent(t.HomeID, model.NotifTypeTaskMissed, refID)
	}
}

// checkTasksDue sends one daily digest of the home's tasks due today.
func (s *Scheduler) checkTasksDue(homeID int64) {
	now := time.Now().UTC()

	// Only run at the top of each hour
	if now.Minute() != 0 {
		return
	}

	refID := fmt.Sprintf("task-daily-%s", now.Format("2006-01-02"))
	sent, err := s.push.WasSent(homeID, model.NotifTypeTaskDue, refID)
	if err != nil || sent {
		return
	}

	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	due, err := s.tasks.ListDueOn(homeID, dayStart, dayStart.Add(24*time.Hour))
	if err != nil {
		log.Printf("push scheduler: list due tasks: %v", err)
		return
	}
	if len(due) == 0 {
		return
	}

	body := fmt.Sprintf("%d tasks are due today", len(due))
	if len(due) == 1 {
		body = fmt.Sprintf("Due today: %s", due[0].Title)
	}

	payload := Payload{
		Title: "Task Reminders",
		Body:  body,
		URL:   "/tasks",
		Tag:   "task-daily",
	}
	s.notifyHome(homeID, model.NotifTypeTaskDue, payload)
	s.push.RecordSent(homeID, model.NotifTypeTaskDue, refID)
}

func (s *Scheduler) notifyHome(homeID int64, notifType string, payload Payload) {
	if s.service == nil {
		return
	}
	subs, err := s.push.ListByHome(homeID)
	if err != nil {
		log.Printf("push scheduler: list subs: %v", err)
		return
	}

	for _, sub := range subs {
		enabled, _ := s.push.IsPreferenceEnabled(sub.UserID, homeID, notifType)
		if !enabled {
			continue
		}

		if err := s.service.Send(&sub, payload); err != nil {
			if errors.Is(err, ErrExpired) {
				s.push.DeleteByEndpoint(sub.Endpoint)
			} else {
				log.Printf("push scheduler: send: %v", err)
			}
		}
	}
}
