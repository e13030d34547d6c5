package model

import "time"

type Home struct {
	ID          int64      `json:"id"`
	Name        string     `json:"name"`
	InviteCode  string     `json:"invite_code"`
	Address     string     `json:"address"`
	City        string     `json:"city"`
	MonthlyRent int64      `json:"monthly_rent_cents"`
	Deposit     int64      `json:"deposit_cents"`
	LeaseStart  *time.Time `json:"lease_start"`
	LeaseEnd    *time.Time `json:"lease_end"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

type HomeMember struct {
	ID         int64      `json:"id"`
	HomeID     int64      `json:"home_id"`
	UserID     int64      `json:"user_id"`
	Role       string     `json:"role"`
	RentShare  int64      `json:"rent_share_cents"`
	MovedInAt  time.Time  `json:"moved_in_at"`
	MovedOutAt *time.Time `json:"moved_out_at"`

	// Denormalized from users at read time.
	Name        string `json:"name,omitempty"`
	Email       string `json:"email,omitempty"`
	AvatarEmoji string `json:"avatar_emoji,omitempty"`
}
