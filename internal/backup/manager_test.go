package backup

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/rsheldon/flatmate/internal/database"
	"github.com/rsheldon/flatmate/internal/model"
	"github.com/rsheldon/flatmate/internal/store"
)

// fakeS3 records uploads and serves them back for downloads.
type fakeS3 struct {
	objects map[string][]byte
	deleted []string
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: make(map[string][]byte)}
}

func (f *fakeS3) PutObject(ctx context.Context, input *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(input.Body)
	if err != nil {
		return nil, err
	}
	f.objects[*input.Key] = data
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(ctx context.Context, input *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	data := f.objects[*input.Key]
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeS3) DeleteObject(ctx context.Context, input *s3.DeleteObjectInput, opts ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	delete(f.objects, *input.Key)
	f.deleted = append(f.deleted, *input.Key)
	return &s3.DeleteObjectOutput{}, nil
}

func setupManagerTest(t *testing.T) (*Manager, *fakeS3, *store.BackupStore) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := database.Open(dbPath)
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	backups := store.NewBackupStore(db)
	cfg := Config{
		Bucket:     "test-bucket",
		AccessKey:  "key",
		SecretKey:  "secret",
		Passphrase: "test-passphrase",
		DBPath:     dbPath,
	}
	m := NewManager(cfg, db, backups, slog.Default())

	fake := newFakeS3()
	m.client = fake
	return m, fake, backups
}

func TestConfigEnabled(t *testing.T) {
	full := Config{Bucket: "b", AccessKey: "a", SecretKey: "s", Passphrase: "p"}
	if !full.Enabled() {
		t.Error("complete config should be enabled")
	}
	if (Config{Bucket: "b"}).Enabled() {
		t.Error("partial config should not be enabled")
	}
	if (Config{}).Enabled() {
		t.Error("empty config should not be enabled")
	}
}

func TestRunNowUploadsEncryptedSnapshot(t *testing.T) {
	m, fake, backups := setupManagerTest(t)

	id, err := m.RunNow(context.Background())
	if err != nil {
		t.Fatalf("run now: %v", err)
	}

	record, err := backups.GetByID(id)
	if err != nil {
		t.Fatalf("get record: %v", err)
	}
	if record.Status != model.BackupStatusCompleted {
		t.Errorf("status = %q, want completed", record.Status)
	}
	if record.SizeBytes == 0 {
		t.Error("size not recorded")
	}
	if m.LastBackup() == nil {
		t.Error("last backup time not set")
	}

	encData, ok := fake.objects[record.S3Key]
	if !ok {
		t.Fatalf("object %q not uploaded", record.S3Key)
	}

	plaintext, err := Decrypt(encData, "test-passphrase")
	if err != nil {
		t.Fatalf("decrypt uploaded snapshot: %v", err)
	}
	// SQLite files start with a fixed 16-byte header string.
	if !bytes.HasPrefix(plaintext, []byte("SQLite format 3\x00")) {
		t.Error("decrypted snapshot is not a SQLite database")
	}
}

func TestRunNowNotConfigured(t *testing.T) {
	m, _, _ := setupManagerTest(t)
	m.client = nil

	if _, err := m.RunNow(context.Background()); err == nil {
		t.Error("expected error when not configured")
	}
}

func TestDownloadRoundTrip(t *testing.T) {
	m, _, _ := setupManagerTest(t)

	id, err := m.RunNow(context.Background())
	if err != nil {
		t.Fatalf("run now: %v", err)
	}

	body, _, err := m.Download(context.Background(), id)
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	defer body.Close()

	encData, err := io.ReadAll(body)
	if err != nil {
		t.Fatalf("read download: %v", err)
	}
	if _, err := Decrypt(encData, "test-passphrase"); err != nil {
		t.Errorf("downloaded backup does not decrypt: %v", err)
	}
}

func TestDownloadUnknownBackup(t *testing.T) {
	m, _, _ := setupManagerTest(t)

	if _, _, err := m.Download(context.Background(), 9999); err == nil {
		t.Error("expected error for unknown backup")
	}
}

func TestCleanupKeepsRecentBackups(t *testing.T) {
	m, fake, backups := setupManagerTest(t)

	id, err := m.RunNow(context.Background())
	if err != nil {
		t.Fatalf("run now: %v", err)
	}
	record, _ := backups.GetByID(id)

	if err := m.Cleanup(context.Background()); err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if len(fake.deleted) != 0 {
		t.Errorf("fresh backup deleted: %v", fake.deleted)
	}
	if _, ok := fake.objects[record.S3Key]; !ok {
		t.Error("fresh backup object removed")
	}
}
