package model

import "time"

// Task status values.
const (
	TaskStatusPending    = "pending"
	TaskStatusInProgress = "in_progress"
	TaskStatusCompleted  = "completed"
	TaskStatusMissed     = "missed"
)

type Task struct {
	ID                     int64      `json:"id"`
	HomeID                 int64      `json:"home_id"`
	Title                  string     `json:"title"`
	Description            string     `json:"description"`
	Category               string     `json:"category"`
	Status                 string     `json:"status"`
	DueDate                *time.Time `json:"due_date"`
	CreatedBy              int64      `json:"created_by"`
	Difficulty             int        `json:"difficulty"`
	EstimatedMinutes       int        `json:"estimated_minutes"`
	RotationEnabled        bool       `json:"rotation_enabled"`
	Frequency              string     `json:"frequency"`
	RequiresMultiplePeople bool       `json:"requires_multiple_people"`
	Active                 bool       `json:"active"`
	CreatedAt              time.Time  `json:"created_at"`
	UpdatedAt              time.Time  `json:"updated_at"`

	// Denormalized at read time.
	CreatorName     string           `json:"creator_name,omitempty"`
	Assignees       []TaskAssignee   `json:"assignees"`
	Completions     []TaskCompletion `json:"completions,omitempty"`
	RotationMembers []RotationMember `json:"rotation_members,omitempty"`
}

// TaskAssignee is one row of a task's assignee set. Zero rows means the task
// is unassigned, one row is a single assignee, and more than one requires the
// task's requires_multiple_people flag.
type TaskAssignee struct {
	UserID int64  `json:"user_id"`
	Name   string `json:"name,omitempty"`
}

// Completion status values.
const (
	CompletionStatusCompleted = "completed"
	CompletionStatusMissed    = "missed"
)

type TaskCompletion struct {
	ID          int64     `json:"id"`
	TaskID      int64     `json:"task_id"`
	CompletedBy *int64    `json:"completed_by"`
	CompletedAt time.Time `json:"completed_at"`
	Status      string    `json:"status"`
	Rating      *int      `json:"rating"`
	RatedBy     *int64    `json:"rated_by"`
	Notes       string    `json:"notes"`

	CompletedByName string `json:"completed_by_name,omitempty"`
}

// RotationMember is one position in a task's fixed rotation cycle.
type RotationMember struct {
	TaskID   int64  `json:"task_id"`
	UserID   int64  `json:"user_id"`
	Position int    `json:"position"`
	Name     string `json:"name,omitempty"`
}

// Swap request status values.
const (
	SwapStatusPending  = "pending"
	SwapStatusAccepted = "accepted"
	SwapStatusRejected = "rejected"
)

type SwapRequest struct {
	ID           int64     `json:"id"`
	TaskID       int64     `json:"task_id"`
	FromUser     int64     `json:"from_user"`
	ToUser       int64     `json:"to_user"`
	OriginalDate time.Time `json:"original_date"`
	ProposedDate time.Time `json:"proposed_date"`
	Message      string    `json:"message"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`

	TaskTitle    string `json:"task_title,omitempty"`
	FromUserName string `json:"from_user_name,omitempty"`
	ToUserName   string `json:"to_user_name,omitempty"`
}
