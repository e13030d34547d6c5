package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rsheldon/flatmate/internal/model"
)

type HomeStore struct {
	db *sql.DB
}

func NewHomeStore(db *sql.DB) *HomeStore {
	return &HomeStore{db: db}
}

func scanHome(scanner interface{ Scan(...any) error }) (*model.Home, error) {
	var h model.Home
	var leaseStart, leaseEnd sql.NullTime

	err := scanner.Scan(
		&h.ID, &h.Name, &h.InviteCode, &h.Address, &h.City,
		&h.MonthlyRent, &h.Deposit, &leaseStart, &leaseEnd,
		&h.CreatedAt, &h.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if leaseStart.Valid {
		h.LeaseStart = &leaseStart.Time
	}
	if leaseEnd.Valid {
		h.LeaseEnd = &leaseEnd.Time
	}
	return &h, nil
}

func scanHomeMember(scanner interface{ Scan(...any) error }) (*model.HomeMember, error) {
	var m model.HomeMember
	var movedOut sql.NullTime

	err := scanner.Scan(&m.ID, &m.HomeID, &m.UserID, &m.Role, &m.RentShare, &m.MovedInAt, &movedOut)
	if err != nil {
		return nil, err
	}

	if movedOut.Valid {
		m.MovedOutAt = &movedOut.Time
	}
	return &m, nil
}

const homeCols = `id, name, invite_code, address, city, monthly_rent_cents, deposit_cents, lease_start, lease_end, created_at, updated_at`
const homeMemberCols = `id, home_id, user_id, role, rent_share_cents, moved_in_at, moved_out_at`

// newInviteCode returns a short shareable code derived from a random UUID.
func newInviteCode() string {
	return strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}

func (s *HomeStore) Create(name string) (*model.Home, error) {
	result, err := s.db.Exec(
		`INSERT INTO homes (name, invite_code) VALUES (?, ?)`,
		name, newInviteCode(),
	)
	if err != nil {
		return nil, fmt.Errorf("insert home: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(id)
}

func (s *HomeStore) GetByID(id int64) (*model.Home, error) {
	row := s.db.QueryRow(`SELECT `+homeCols+` FROM homes WHERE id = ?`, id)
	h, err := scanHome(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get home: %w", err)
	}
	return h, nil
}

func (s *HomeStore) GetByInviteCode(code string) (*model.Home, error) {
	row := s.db.QueryRow(`SELECT `+homeCols+` FROM homes WHERE invite_code = ?`, code)
	h, err := scanHome(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get home by invite code: %w", err)
	}
	return h, nil
}

// UpdateDetails replaces the home's name, address, and financial terms.
func (s *HomeStore) UpdateDetails(id int64, name, address, city string, monthlyRent, deposit int64, leaseStart, leaseEnd *time.Time) (*model.Home, error) {
	var start, end sql.NullTime
	if leaseStart != nil {
		start = sql.NullTime{Time: leaseStart.UTC(), Valid: true}
	}
	if leaseEnd != nil {
		end = sql.NullTime{Time: leaseEnd.UTC(), Valid: true}
	}

	_, err := s.db.Exec(
		`UPDATE homes SET name = ?, address = ?, city = ?, monthly_rent_cents = ?, deposit_cents = ?,
		 lease_start = ?, lease_end = ?, updated_at = datetime('now') WHERE id = ?`,
		name, address, city, monthlyRent, deposit, start, end, id,
	)
	if err != nil {
		return nil, fmt.Errorf("update home: %w", err)
	}
	return s.GetByID(id)
}

// RotateInviteCode replaces the home's standing invite code with a fresh one.
func (s *HomeStore) RotateInviteCode(id int64) (*model.Home, error) {
	_, err := s.db.Exec(
		`UPDATE homes SET invite_code = ?, updated_at = datetime('now') WHERE id = ?`,
		newInviteCode(), id,
	)
	if err != nil {
		return nil, fmt.Errorf("rotate invite code: %w", err)
	}
	return s.GetByID(id)
}

func (s *HomeStore) Delete(id int64) error {
	_, err := s.db.Exec(`DELETE FROM homes WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete home: %w", err)
	}
	return nil
}

func (s *HomeStore) AddMember(homeID, userID int64, role string, rentShare int64) (*model.HomeMember, error) {
	result, err := s.db.Exec(
		`INSERT INTO home_members (home_id, user_id, role, rent_share_cents) VALUES (?, ?, ?, ?)`,
		homeID, userID, role, rentShare,
	)
	if err != nil {
		return nil, fmt.Errorf("add member: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	row := s.db.QueryRow(`SELECT `+homeMemberCols+` FROM home_members WHERE id = ?`, id)
	return scanHomeMember(row)
}

// GetMember returns the active membership for the user in the home, or nil if
// the user never joined or has moved out.
func (s *HomeStore) GetMember(homeID, userID int64) (*model.HomeMember, error) {
	row := s.db.QueryRow(
		`SELECT `+homeMemberCols+` FROM home_members WHERE home_id = ? AND user_id = ? AND moved_out_at IS NULL`,
		homeID, userID,
	)
	m, err := scanHomeMember(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get member: %w", err)
	}
	return m, nil
}

// MemberForUser resolves the user's current home membership, if any. A user
// belongs to at most one home at a time.
func (s *HomeStore) MemberForUser(userID int64) (*model.HomeMember, error) {
	row := s.db.QueryRow(
		`SELECT `+homeMemberCols+` FROM home_members WHERE user_id = ? AND moved_out_at IS NULL ORDER BY moved_in_at DESC LIMIT 1`,
		userID,
	)
	m, err := scanHomeMember(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("member for user: %w", err)
	}
	return m, nil
}

// ListMembers returns active members with profile fields denormalized from users.
func (s *HomeStore) ListMembers(homeID int64) ([]model.HomeMember, error) {
	rows, err := s.db.Query(
		`SELECT m.id, m.home_id, m.user_id, m.role, m.rent_share_cents, m.moved_in_at, m.moved_out_at,
		        u.name, u.email, u.avatar_emoji
		 FROM home_members m
		 JOIN users u ON u.id = m.user_id
		 WHERE m.home_id = ? AND m.moved_out_at IS NULL
		 ORDER BY m.moved_in_at ASC`,
		homeID,
	)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	defer rows.Close()

	var members []model.HomeMember
	for rows.Next() {
		var m model.HomeMember
		var movedOut sql.NullTime
		if err := rows.Scan(
			&m.ID, &m.HomeID, &m.UserID, &m.Role, &m.RentShare, &m.MovedInAt, &movedOut,
			&m.Name, &m.Email, &m.AvatarEmoji,
		); err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		if movedOut.Valid {
			m.MovedOutAt = &movedOut.Time
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

// RemoveMember marks the membership as moved out. The row is kept for history.
func (s *HomeStore) RemoveMember(homeID, userID int64) error {
	_, err := s.db.Exec(
		`UPDATE home_members SET moved_out_at = datetime('now') WHERE home_id = ? AND user_id = ? AND moved_out_at IS NULL`,
		homeID, userID,
	)
	if err != nil {
		return fmt.Errorf("remove member: %w", err)
	}
	return nil
}

func (s *HomeStore) UpdateMemberRentShare(homeID, userID, rentShare int64) (*model.HomeMember, error) {
	_, err := s.db.Exec(
		`UPDATE home_members SET rent_share_cents = ? WHERE home_id = ? AND user_id = ? AND moved_out_at IS NULL`,
		rentShare, homeID, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("update rent share: %w", err)
	}
	return s.GetMember(homeID, userID)
}
