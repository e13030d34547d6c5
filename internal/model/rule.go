package model

import "time"

// RuleCategories is the fixed set of house rule tags.
var RuleCategories = []string{"Noise", "Guests", "Cleaning", "Kitchen", "Pets", "Other"}

// ValidRuleCategory reports whether c is one of the fixed rule categories.
func ValidRuleCategory(c string) bool {
	for _, rc := range RuleCategories {
		if rc == c {
			return true
		}
	}
	return false
}

type HouseRule struct {
	ID          int64     `json:"id"`
	HomeID      int64     `json:"home_id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Category    string    `json:"category"`
	CreatedBy   int64     `json:"created_by"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`

	CreatorName string          `json:"creator_name,omitempty"`
	Agreements  []RuleAgreement `json:"agreements"`
	Comments    []RuleComment   `json:"comments"`
}

// RuleAgreement marks that a user currently agrees to a rule. At most one row
// exists per (rule, user) pair; toggling removes or inserts it.
type RuleAgreement struct {
	RuleID   int64     `json:"rule_id"`
	UserID   int64     `json:"user_id"`
	AgreedAt time.Time `json:"agreed_at"`
	UserName string    `json:"user_name,omitempty"`
}

type RuleComment struct {
	ID        int64     `json:"id"`
	RuleID    int64     `json:"rule_id"`
	UserID    int64     `json:"user_id"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
	UserName  string    `json:"user_name,omitempty"`
}
