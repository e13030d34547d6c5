package push

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/rsheldon/flatmate/internal/model"
	"github.com/rsheldon/flatmate/internal/store"
)

// Notifier fans out task lifecycle notifications to a home's push
// subscriptions. Sends run on background goroutines so the request path never
// waits on the push service.
type Notifier struct {
	service *Service
	push    *store.PushStore
	log     *slog.Logger
}

func NewNotifier(service *Service, pushStore *store.PushStore, logger *slog.Logger) *Notifier {
	return &Notifier{
		service: service,
		push:    pushStore,
		log:     logger.With("component", "push"),
	}
}

// TaskAssigned notifies the given users that a task landed on them.
func (n *Notifier) TaskAssigned(homeID int64, t *model.Task, userIDs []int64) {
	payload := Payload{
		Title: "Task Assigned",
		Body:  fmt.Sprintf("%s is now yours", t.Title),
		URL:   "/tasks",
		Tag:   fmt.Sprintf("task-assigned-%d", t.ID),
	}
	go n.sendToUsers(homeID, userIDs, model.NotifTypeTaskAssigned, payload)
}

// SwapRequested notifies the swap recipient.
func (n *Notifier) SwapRequested(homeID int64, sw *model.SwapRequest) {
	payload := Payload{
		Title: "Swap Request",
		Body:  fmt.Sprintf("%s wants to swap %s", sw.FromUserName, sw.TaskTitle),
		URL:   "/tasks/swaps",
		Tag:   fmt.Sprintf("swap-%d", sw.ID),
	}
	go n.sendToUsers(homeID, []int64{sw.ToUser}, model.NotifTypeSwapRequest, payload)
}

// SwapResponded notifies the swap requester of the outcome.
func (n *Notifier) SwapResponded(homeID int64, sw *model.SwapRequest) {
	payload := Payload{
		Title: "Swap " + sw.Status,
		Body:  fmt.Sprintf("%s %s your swap for %s", sw.ToUserName, sw.Status, sw.TaskTitle),
		URL:   "/tasks/swaps",
		Tag:   fmt.Sprintf("swap-%d", sw.ID),
	}
	go n.sendToUsers(homeID, []int64{sw.FromUser}, model.NotifTypeSwapResponse, payload)
}

func (n *Notifier) sendToUsers(homeID int64, userIDs []int64, notifType string, payload Payload) {
	want := make(map[int64]bool, len(userIDs))
	for _, id := range userIDs {
		want[id] = true
	}

	subs, err := n.push.ListByHome(homeID)
	if err != nil {
		n.log.Error("list subscriptions", "home_id", homeID, "error", err)
		return
	}

	for _, sub := range subs {
		if !want[sub.UserID] {
			continue
		}
		enabled, _ := n.push.IsPreferenceEnabled(sub.UserID, homeID, notifType)
		if !enabled {
			continue
		}
		n.sendWithRetry(&sub, payload)
	}
}

// sendWithRetry retries transient push failures with exponential backoff.
// Expired subscriptions are removed instead of retried.
func (n *Notifier) sendWithRetry(sub *model.PushSubscription, payload Payload) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	backoff := retry.WithMaxRetries(3, retry.NewExponential(500*time.Millisecond))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := n.service.Send(sub, payload); err != nil {
			if errors.Is(err, ErrExpired) {
				return err
			}
			return retry.RetryableError(err)
		}
		return nil
	})
	if errors.Is(err, ErrExpired) {
		if derr := n.push.DeleteByEndpoint(sub.Endpoint); derr != nil {
			n.log.Error("delete expired subscription", "error", derr)
		}
		return
	}
	if err != nil {
		n.log.Error("send push", "user_id", sub.UserID, "error", err)
	}
}
