package store

import (
	"testing"
	"time"

	"github.com/rsheldon/flatmate/internal/database"
	"github.com/rsheldon/flatmate/internal/model"
)

type pushFixture struct {
	push *PushStore
	home *model.Home
	user *model.User
}

func setupPushTestDB(t *testing.T) *pushFixture {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	home, err := NewHomeStore(db).Create("Push House")
	if err != nil {
		t.Fatalf("create home: %v", err)
	}
	user, err := NewUserStore(db).Create("push@example.com", "h", "Pusher")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	return &pushFixture{push: NewPushStore(db), home: home, user: user}
}

func TestPushSubscriptionUpsert(t *testing.T) {
	f := setupPushTestDB(t)

	sub, err := f.push.CreateSubscription(f.user.ID, f.home.ID, "https://push.example/ep1", "p256", "auth", "Phone")
	if err != nil {
		t.Fatalf("create subscription: %v", err)
	}
	if sub.DeviceName != "Phone" {
		t.Errorf("device name = %q, want Phone", sub.DeviceName)
	}

	// Same endpoint again updates in place instead of duplicating.
	again, err := f.push.CreateSubscription(f.user.ID, f.home.ID, "https://push.example/ep1", "p256-new", "auth-new", "Phone 2")
	if err != nil {
		t.Fatalf("re-create subscription: %v", err)
	}
	if again.ID != sub.ID {
		t.Errorf("upsert created new row: id %d vs %d", again.ID, sub.ID)
	}

	subs, err := f.push.ListByUser(f.user.ID, f.home.ID)
	if err != nil {
		t.Fatalf("list by user: %v", err)
	}
	if len(subs) != 1 {
		t.Fatalf("expected 1 subscription, got %d", len(subs))
	}
}

func TestPushDeleteByEndpoint(t *testing.T) {
	f := setupPushTestDB(t)

	if _, err := f.push.CreateSubscription(f.user.ID, f.home.ID, "https://push.example/gone", "p", "a", ""); err != nil {
		t.Fatalf("create subscription: %v", err)
	}
	if err := f.push.DeleteByEndpoint("https://push.example/gone"); err != nil {
		t.Fatalf("delete by endpoint: %v", err)
	}

	subs, err := f.push.ListByHome(f.home.ID)
	if err != nil {
		t.Fatalf("list by home: %v", err)
	}
	if len(subs) != 0 {
		t.Errorf("expected no subscriptions, got %d", len(subs))
	}
}

func TestPushPreferenceDefaultsEnabled(t *testing.T) {
	f := setupPushTestDB(t)

	enabled, err := f.push.IsPreferenceEnabled(f.user.ID, f.home.ID, model.NotifTypeTaskDue)
	if err != nil {
		t.Fatalf("check default preference: %v", err)
	}
	if !enabled {
		t.Error("preference should default to enabled")
	}

	if err := f.push.SetPreference(f.user.ID, f.home.ID, model.NotifTypeTaskDue, false); err != nil {
		t.Fatalf("set preference: %v", err)
	}
	enabled, err = f.push.IsPreferenceEnabled(f.user.ID, f.home.ID, model.NotifTypeTaskDue)
	if err != nil {
		t.Fatalf("check disabled preference: %v", err)
	}
	if enabled {
		t.Error("preference should be disabled after opt-out")
	}

	// Re-enabling flips the same row back.
	if err := f.push.SetPreference(f.user.ID, f.home.ID, model.NotifTypeTaskDue, true); err != nil {
		t.Fatalf("re-enable preference: %v", err)
	}
	enabled, _ = f.push.IsPreferenceEnabled(f.user.ID, f.home.ID, model.NotifTypeTaskDue)
	if !enabled {
		t.Error("preference should be enabled after opt-in")
	}
}

func TestPushSentDeduplication(t *testing.T) {
	f := setupPushTestDB(t)

	sent, err := f.push.WasSent(f.home.ID, model.NotifTypeTaskMissed, "task-missed-1")
	if err != nil {
		t.Fatalf("was sent: %v", err)
	}
	if sent {
		t.Error("nothing recorded yet")
	}

	if err := f.push.RecordSent(f.home.ID, model.NotifTypeTaskMissed, "task-missed-1"); err != nil {
		t.Fatalf("record sent: %v", err)
	}
	sent, err = f.push.WasSent(f.home.ID, model.NotifTypeTaskMissed, "task-missed-1")
	if err != nil {
		t.Fatalf("was sent after record: %v", err)
	}
	if !sent {
		t.Error("expected recorded notification to be found")
	}

	// Cleanup with a future cutoff removes the record.
	if err := f.push.CleanupSent(time.Now().UTC().Add(time.Hour)); err != nil {
		t.Fatalf("cleanup sent: %v", err)
	}
	sent, _ = f.push.WasSent(f.home.ID, model.NotifTypeTaskMissed, "task-missed-1")
	if sent {
		t.Error("expected record cleaned up")
	}
}

func TestPushListHomeIDs(t *testing.T) {
	f := setupPushTestDB(t)

	ids, err := f.push.ListHomeIDs()
	if err != nil {
		t.Fatalf("list home ids: %v", err)
	}
	if len(ids) != 0 {
		t.Fatalf("expected no home ids, got %v", ids)
	}

	if _, err := f.push.CreateSubscription(f.user.ID, f.home.ID, "https://push.example/h", "p", "a", ""); err != nil {
		t.Fatalf("create subscription: %v", err)
	}
	ids, err = f.push.ListHomeIDs()
	if err != nil {
		t.Fatalf("list home ids: %v", err)
	}
	if len(ids) != 1 || ids[0] != f.home.ID {
		t.Fatalf("home ids = %v, want [%d]", ids, f.home.ID)
	}
}
