package model

import "time"

type Session struct {
	ID        int64     `json:"id"`
	Token     string    `json:"token"`
	UserID    int64     `json:"user_id"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

// Invite is a single-use emailed invitation to join a home. Joining via the
// home's standing invite code does not create one of these.
type Invite struct {
	ID        int64      `json:"id"`
	Code      string     `json:"code"`
	HomeID    int64      `json:"home_id"`
	Email     string     `json:"email"`
	CreatedBy int64      `json:"created_by"`
	ExpiresAt time.Time  `json:"expires_at"`
	UsedAt    *time.Time `json:"used_at"`
	CreatedAt time.Time  `json:"created_at"`
}
