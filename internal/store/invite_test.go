package store

import (
	"database/sql"
	"strings"
	"testing"

	"github.com/rsheldon/flatmate/internal/database"
	"github.com/rsheldon/flatmate/internal/model"
)

type inviteFixture struct {
	invites *InviteStore
	home    *model.Home
	user    *model.User
	db      *sql.DB
}

func setupInviteTestDB(t *testing.T) *inviteFixture {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	home, err := NewHomeStore(db).Create("Invite House")
	if err != nil {
		t.Fatalf("create home: %v", err)
	}
	user, err := NewUserStore(db).Create("host@example.com", "h", "Host")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	return &inviteFixture{invites: NewInviteStore(db), home: home, user: user, db: db}
}

func TestInviteCodeCaseInsensitive(t *testing.T) {
	f := setupInviteTestDB(t)

	inv, err := f.invites.Create(f.home.ID, "friend@example.com", f.user.ID)
	if err != nil {
		t.Fatalf("create invite: %v", err)
	}

	valid, err := f.invites.GetValidByCode("  " + strings.ToLower(inv.Code) + " ")
	if err != nil {
		t.Fatalf("get valid by code: %v", err)
	}
	if valid == nil || valid.ID != inv.ID {
		t.Fatalf("lowercase lookup returned %+v, want invite %d", valid, inv.ID)
	}
}

func TestInviteCreateAndRedeem(t *testing.T) {
	f := setupInviteTestDB(t)

	inv, err := f.invites.Create(f.home.ID, "friend@example.com", f.user.ID)
	if err != nil {
		t.Fatalf("create invite: %v", err)
	}
	if len(inv.Code) != 10 {
		t.Errorf("code length = %d, want 10", len(inv.Code))
	}

	valid, err := f.invites.GetValidByCode(inv.Code)
	if err != nil {
		t.Fatalf("get valid by code: %v", err)
	}
	if valid == nil || valid.ID != inv.ID {
		t.Fatalf("get valid returned %+v", valid)
	}

	if err := f.invites.MarkUsed(inv.ID); err != nil {
		t.Fatalf("mark used: %v", err)
	}
	used, err := f.invites.GetValidByCode(inv.Code)
	if err != nil {
		t.Fatalf("get used invite: %v", err)
	}
	if used != nil {
		t.Error("used invite still valid")
	}
}

func TestInviteReissueInvalidatesPrevious(t *testing.T) {
	f := setupInviteTestDB(t)

	first, err := f.invites.Create(f.home.ID, "again@example.com", f.user.ID)
	if err != nil {
		t.Fatalf("create first: %v", err)
	}
	second, err := f.invites.Create(f.home.ID, "again@example.com", f.user.ID)
	if err != nil {
		t.Fatalf("create second: %v", err)
	}

	if got, _ := f.invites.GetValidByCode(first.Code); got != nil {
		t.Error("first invite still valid after reissue")
	}
	if got, _ := f.invites.GetValidByCode(second.Code); got == nil {
		t.Error("second invite should be valid")
	}

	pending, err := f.invites.ListPendingByHome(f.home.ID)
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	if len(pending) != 1 || pending[0].ID != second.ID {
		t.Fatalf("pending = %+v, want only the reissued invite", pending)
	}
}

func TestInviteDeleteExpired(t *testing.T) {
	f := setupInviteTestDB(t)

	inv, err := f.invites.Create(f.home.ID, "late@example.com", f.user.ID)
	if err != nil {
		t.Fatalf("create invite: %v", err)
	}
	if _, err := f.db.Exec(`UPDATE home_invites SET expires_at = datetime('now', '-1 day') WHERE id = ?`, inv.ID); err != nil {
		t.Fatalf("expire invite: %v", err)
	}

	n, err := f.invites.DeleteExpired()
	if err != nil {
		t.Fatalf("delete expired: %v", err)
	}
	if n != 1 {
		t.Errorf("deleted = %d, want 1", n)
	}
	if got, _ := f.invites.GetValidByCode(inv.Code); got != nil {
		t.Error("expired invite still valid")
	}
}
