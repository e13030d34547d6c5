package store

import (
	"testing"
	"time"

	"github.com/rsheldon/flatmate/internal/database"
	"github.com/rsheldon/flatmate/internal/model"
)

func setupBackupTestDB(t *testing.T) *BackupStore {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewBackupStore(db)
}

func TestBackupLifecycle(t *testing.T) {
	bs := setupBackupTestDB(t)

	b, err := bs.Create("flatmate-20260301.db.enc", "backups/flatmate-20260301.db.enc")
	if err != nil {
		t.Fatalf("create backup: %v", err)
	}
	if b.Status != model.BackupStatusPending {
		t.Errorf("status = %q, want pending", b.Status)
	}

	if err := bs.UpdateStatus(b.ID, model.BackupStatusUploading, ""); err != nil {
		t.Fatalf("update status: %v", err)
	}
	if err := bs.MarkCompleted(b.ID, 4096); err != nil {
		t.Fatalf("mark completed: %v", err)
	}

	got, err := bs.GetByID(b.ID)
	if err != nil {
		t.Fatalf("get backup: %v", err)
	}
	if got.Status != model.BackupStatusCompleted {
		t.Errorf("status = %q, want completed", got.Status)
	}
	if got.SizeBytes != 4096 {
		t.Errorf("size = %d, want 4096", got.SizeBytes)
	}
	if got.CompletedAt == nil {
		t.Error("completed_at not set")
	}

	latest, err := bs.LatestCompleted()
	if err != nil {
		t.Fatalf("latest completed: %v", err)
	}
	if latest == nil || latest.ID != b.ID {
		t.Fatalf("latest = %+v, want the completed backup", latest)
	}
}

func TestBackupFailureRecordsError(t *testing.T) {
	bs := setupBackupTestDB(t)

	b, err := bs.Create("bad.db.enc", "backups/bad.db.enc")
	if err != nil {
		t.Fatalf("create backup: %v", err)
	}
	if err := bs.UpdateStatus(b.ID, model.BackupStatusFailed, "upload timed out"); err != nil {
		t.Fatalf("update status: %v", err)
	}

	got, err := bs.GetByID(b.ID)
	if err != nil {
		t.Fatalf("get backup: %v", err)
	}
	if got.Status != model.BackupStatusFailed {
		t.Errorf("status = %q, want failed", got.Status)
	}
	if got.Error != "upload timed out" {
		t.Errorf("error = %q", got.Error)
	}

	latest, err := bs.LatestCompleted()
	if err != nil {
		t.Fatalf("latest completed: %v", err)
	}
	if latest != nil {
		t.Errorf("latest = %+v, want nil with no completed backups", latest)
	}
}

func TestBackupList(t *testing.T) {
	bs := setupBackupTestDB(t)

	for i := 0; i < 3; i++ {
		if _, err := bs.Create("f.db.enc", "backups/f.db.enc"); err != nil {
			t.Fatalf("create backup %d: %v", i, err)
		}
	}

	list, err := bs.List(2)
	if err != nil {
		t.Fatalf("list backups: %v", err)
	}
	if len(list) != 2 {
		t.Errorf("expected 2 backups with limit, got %d", len(list))
	}
}

func TestBackupDeleteOlderThan(t *testing.T) {
	bs := setupBackupTestDB(t)

	b, err := bs.Create("old.db.enc", "backups/old.db.enc")
	if err != nil {
		t.Fatalf("create backup: %v", err)
	}
	if err := bs.MarkCompleted(b.ID, 1); err != nil {
		t.Fatalf("mark completed: %v", err)
	}

	keys, err := bs.DeleteOlderThan(time.Now().UTC().Add(time.Hour))
	if err != nil {
		t.Fatalf("delete older than: %v", err)
	}
	if len(keys) != 1 || keys[0] != "backups/old.db.enc" {
		t.Fatalf("deleted keys = %v", keys)
	}

	got, err := bs.GetByID(b.ID)
	if err != nil {
		t.Fatalf("get deleted: %v", err)
	}
	if got != nil {
		t.Errorf("expected backup row removed, got %+v", got)
	}
}
