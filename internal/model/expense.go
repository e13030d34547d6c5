package model

import "time"

type Expense struct {
	ID          int64     `json:"id"`
	HomeID      int64     `json:"home_id"`
	PaidBy      int64     `json:"paid_by"`
	Description string    `json:"description"`
	AmountCents int64     `json:"amount_cents"`
	IncurredOn  time.Time `json:"incurred_on"`
	CreatedAt   time.Time `json:"created_at"`

	PaidByName string `json:"paid_by_name,omitempty"`
}
