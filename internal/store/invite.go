package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rsheldon/flatmate/internal/model"
)

type InviteStore struct {
	db *sql.DB
}

func NewInviteStore(db *sql.DB) *InviteStore {
	return &InviteStore{db: db}
}

func scanInvite(scanner interface{ Scan(...any) error }) (*model.Invite, error) {
	var inv model.Invite
	var usedAt sql.NullTime

	err := scanner.Scan(
		&inv.ID, &inv.Code, &inv.HomeID, &inv.Email, &inv.CreatedBy,
		&inv.ExpiresAt, &usedAt, &inv.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if usedAt.Valid {
		inv.UsedAt = &usedAt.Time
	}
	return &inv, nil
}

const inviteCols = `id, code, home_id, email, created_by, expires_at, used_at, created_at`

// Create issues a single-use invite with a 7-day expiry. Any previous pending
// invites for the same email and home are invalidated first.
func (s *InviteStore) Create(homeID int64, email string, createdBy int64) (*model.Invite, error) {
	_, err := s.db.Exec(
		`UPDATE home_invites SET used_at = datetime('now') WHERE home_id = ? AND email = ? AND used_at IS NULL AND expires_at > datetime('now')`,
		homeID, email,
	)
	if err != nil {
		return nil, fmt.Errorf("invalidate previous invites: %w", err)
	}

	code := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:10])
	expiresAt := time.Now().UTC().Add(7 * 24 * time.Hour)

	result, err := s.db.Exec(
		`INSERT INTO home_invites (code, home_id, email, created_by, expires_at) VALUES (?, ?, ?, ?, ?)`,
		code, homeID, email, createdBy, expiresAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert invite: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}

	row := s.db.QueryRow(`SELECT `+inviteCols+` FROM home_invites WHERE id = ?`, id)
	return scanInvite(row)
}

// GetValidByCode returns the invite for the code if it is unused and unexpired.
// Codes are stored uppercase, so lookup is case-insensitive.
func (s *InviteStore) GetValidByCode(code string) (*model.Invite, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	row := s.db.QueryRow(
		`SELECT `+inviteCols+` FROM home_invites WHERE code = ? AND used_at IS NULL AND expires_at > datetime('now')`,
		code,
	)
	inv, err := scanInvite(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get invite: %w", err)
	}
	return inv, nil
}

func (s *InviteStore) MarkUsed(id int64) error {
	_, err := s.db.Exec(`UPDATE home_invites SET used_at = datetime('now') WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("mark invite used: %w", err)
	}
	return nil
}

func (s *InviteStore) ListPendingByHome(homeID int64) ([]model.Invite, error) {
	rows, err := s.db.Query(
		`SELECT `+inviteCols+` FROM home_invites WHERE home_id = ? AND used_at IS NULL AND expires_at > datetime('now') ORDER BY created_at DESC`,
		homeID,
	)
	if err != nil {
		return nil, fmt.Errorf("list pending invites: %w", err)
	}
	defer rows.Close()

	var invites []model.Invite
	for rows.Next() {
		inv, err := scanInvite(rows)
		if err != nil {
			return nil, fmt.Errorf("scan invite: %w", err)
		}
		invites = append(invites, *inv)
	}
	return invites, rows.Err()
}

// DeleteExpired removes invites past expiry, returning the number deleted.
func (s *InviteStore) DeleteExpired() (int64, error) {
	result, err := s.db.Exec(`DELETE FROM home_invites WHERE expires_at <= datetime('now')`)
	if err != nil {
		return 0, fmt.Errorf("delete expired invites: %w", err)
	}
	return result.RowsAffected()
}
