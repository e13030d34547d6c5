package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/rsheldon/flatmate/internal/model"
)

type TaskStore struct {
	db *sql.DB
}

func NewTaskStore(db *sql.DB) *TaskStore {
	return &TaskStore{db: db}
}

// CreateTaskParams holds the writable fields of a task.
type CreateTaskParams struct {
	HomeID                 int64
	Title                  string
	Description            string
	Category               string
	DueDate                *time.Time
	CreatedBy              int64
	Difficulty             int
	EstimatedMinutes       int
	RotationEnabled        bool
	Frequency              string
	RequiresMultiplePeople bool
	Assignees              []int64
}

func scanTask(scanner interface{ Scan(...any) error }) (*model.Task, error) {
	var t model.Task
	var dueDate sql.NullTime
	var rotation, multiple, active int

	err := scanner.Scan(
		&t.ID, &t.HomeID, &t.Title, &t.Description, &t.Category, &t.Status,
		&dueDate, &t.CreatedBy, &t.Difficulty, &t.EstimatedMinutes,
		&rotation, &t.Frequency, &multiple, &active,
		&t.CreatedAt, &t.UpdatedAt, &t.CreatorName,
	)
	if err != nil {
		return nil, err
	}

	if dueDate.Valid {
		t.DueDate = &dueDate.Time
	}
	t.RotationEnabled = rotation != 0
	t.RequiresMultiplePeople = multiple != 0
	t.Active = active != 0
	return &t, nil
}

const taskCols = `t.id, t.home_id, t.title, t.description, t.category, t.status,
	t.due_date, t.created_by, t.difficulty, t.estimated_minutes,
	t.rotation_enabled, t.frequency, t.requires_multiple_people, t.active,
	t.created_at, t.updated_at, u.name`

const taskFrom = ` FROM tasks t JOIN users u ON u.id = t.created_by `

func (s *TaskStore) Create(p CreateTaskParams) (*model.Task, error) {
	var due sql.NullTime
	if p.DueDate != nil {
		due = sql.NullTime{Time: p.DueDate.UTC(), Valid: true}
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.Exec(
		`INSERT INTO tasks (home_id, title, description, category, due_date, created_by,
		 difficulty, estimated_minutes, rotation_enabled, frequency, requires_multiple_people)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.HomeID, p.Title, p.Description, p.Category, due, p.CreatedBy,
		p.Difficulty, p.EstimatedMinutes, boolToInt(p.RotationEnabled), p.Frequency,
		boolToInt(p.RequiresMultiplePeople),
	)
	if err != nil {
		return nil, fmt.Errorf("insert task: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}

	for _, userID := range p.Assignees {
		if _, err := tx.Exec(`INSERT INTO task_assignees (task_id, user_id) VALUES (?, ?)`, id, userID); err != nil {
			return nil, fmt.Errorf("insert assignee: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return s.GetByID(id)
}

func (s *TaskStore) GetByID(id int64) (*model.Task, error) {
	row := s.db.QueryRow(`SELECT `+taskCols+taskFrom+`WHERE t.id = ?`, id)
	t, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}

	assignees, err := s.assigneesForTasks([]int64{id})
	if err != nil {
		return nil, err
	}
	t.Assignees = assignees[id]
	if t.Assignees == nil {
		t.Assignees = []model.TaskAssignee{}
	}
	return t, nil
}

// ListByHome returns active tasks for the home, newest first, with assignees,
// completion history, and rotation members attached. The optional status and
// assignedTo filters narrow the result.
func (s *TaskStore) ListByHome(homeID int64, status string, assignedTo *int64) ([]model.Task, error) {
	query := `SELECT ` + taskCols + taskFrom + `WHERE t.home_id = ? AND t.active = 1`
	args := []any{homeID}

	if status != "" {
		query += ` AND t.status = ?`
		args = append(args, status)
	}
	if assignedTo != nil {
		query += ` AND EXISTS (SELECT 1 FROM task_assignees a WHERE a.task_id = t.id AND a.user_id = ?)`
		args = append(args, *assignedTo)
	}
	query += ` ORDER BY t.created_at DESC, t.id DESC`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []model.Task
	var ids []int64
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, *t)
		ids = append(ids, t.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(tasks) == 0 {
		return tasks, nil
	}

	assignees, err := s.assigneesForTasks(ids)
	if err != nil {
		return nil, err
	}
	completions, err := s.completionsForTasks(ids)
	if err != nil {
		return nil, err
	}
	rotation, err := s.rotationForTasks(ids)
	if err != nil {
		return nil, err
	}

	for i := range tasks {
		id := tasks[i].ID
		tasks[i].Assignees = assignees[id]
		if tasks[i].Assignees == nil {
			tasks[i].Assignees = []model.TaskAssignee{}
		}
		tasks[i].Completions = completions[id]
		tasks[i].RotationMembers = rotation[id]
	}
	return tasks, nil
}

func (s *TaskStore) assigneesForTasks(ids []int64) (map[int64][]model.TaskAssignee, error) {
	rows, err := s.db.Query(
		`SELECT a.task_id, a.user_id, u.name
		 FROM task_assignees a JOIN users u ON u.id = a.user_id
		 WHERE a.task_id IN (`+inPlaceholders(len(ids))+`) ORDER BY a.user_id ASC`,
		int64Args(ids)...,
	)
	if err != nil {
		return nil, fmt.Errorf("list assignees: %w", err)
	}
	defer rows.Close()

	out := make(map[int64][]model.TaskAssignee)
	for rows.Next() {
		var taskID int64
		var a model.TaskAssignee
		if err := rows.Scan(&taskID, &a.UserID, &a.Name); err != nil {
			return nil, fmt.Errorf("scan assignee: %w", err)
		}
		out[taskID] = append(out[taskID], a)
	}
	return out, rows.Err()
}

func (s *TaskStore) completionsForTasks(ids []int64) (map[int64][]model.TaskCompletion, error) {
	rows, err := s.db.Query(
		`SELECT c.id, c.task_id, c.completed_by, c.completed_at, c.status, c.rating, c.rated_by, c.notes,
		        COALESCE(u.name, '')
		 FROM task_completions c LEFT JOIN users u ON u.id = c.completed_by
		 WHERE c.task_id IN (`+inPlaceholders(len(ids))+`) ORDER BY c.completed_at DESC, c.id DESC`,
		int64Args(ids)...,
	)
	if err != nil {
		return nil, fmt.Errorf("list completions: %w", err)
	}
	defer rows.Close()

	out := make(map[int64][]model.TaskCompletion)
	for rows.Next() {
		c, err := scanCompletion(rows)
		if err != nil {
			return nil, fmt.Errorf("scan completion: %w", err)
		}
		out[c.TaskID] = append(out[c.TaskID], *c)
	}
	return out, rows.Err()
}

func (s *TaskStore) rotationForTasks(ids []int64) (map[int64][]model.RotationMember, error) {
	rows, err := s.db.Query(
		`SELECT r.task_id, r.user_id, r.position, u.name
		 FROM task_rotation_members r JOIN users u ON u.id = r.user_id
		 WHERE r.task_id IN (`+inPlaceholders(len(ids))+`) ORDER BY r.position ASC`,
		int64Args(ids)...,
	)
	if err != nil {
		return nil, fmt.Errorf("list rotation members: %w", err)
	}
	defer rows.Close()

	out := make(map[int64][]model.RotationMember)
	for rows.Next() {
		var m model.RotationMember
		if err := rows.Scan(&m.TaskID, &m.UserID, &m.Position, &m.Name); err != nil {
			return nil, fmt.Errorf("scan rotation member: %w", err)
		}
		out[m.TaskID] = append(out[m.TaskID], m)
	}
	return out, rows.Err()
}

// UpdateTaskParams holds the fields replaced by an update.
type UpdateTaskParams struct {
	Title                  string
	Description            string
	Category               string
	DueDate                *time.Time
	Difficulty             int
	EstimatedMinutes       int
	RotationEnabled        bool
	Frequency              string
	RequiresMultiplePeople bool
}

func (s *TaskStore) Update(id int64, p UpdateTaskParams) (*model.Task, error) {
	var due sql.NullTime
	if p.DueDate != nil {
		due = sql.NullTime{Time: p.DueDate.UTC(), Valid: true}
	}

	_, err := s.db.Exec(
		`UPDATE tasks SET title = ?, description = ?, category = ?, due_date = ?,
		 difficulty = ?, estimated_minutes = ?, rotation_enabled = ?, frequency = ?,
		 requires_multiple_people = ?, updated_at = datetime('now') WHERE id = ?`,
		p.Title, p.Description, p.Category, due,
		p.Difficulty, p.EstimatedMinutes, boolToInt(p.RotationEnabled), p.Frequency,
		boolToInt(p.RequiresMultiplePeople), id,
	)
	if err != nil {
		return nil, fmt.Errorf("update task: %w", err)
	}
	return s.GetByID(id)
}

func (s *TaskStore) UpdateStatus(id int64, status string) error {
	_, err := s.db.Exec(
		`UPDATE tasks SET status = ?, updated_at = datetime('now') WHERE id = ?`,
		status, id,
	)
	if err != nil {
		return fmt.Errorf("update task status: %w", err)
	}
	return nil
}

// RollForward moves a recurring task onto its next instance: new due date,
// status reset to pending.
func (s *TaskStore) RollForward(id int64, dueDate time.Time) error {
	_, err := s.db.Exec(
		`UPDATE tasks SET due_date = ?, status = ?, updated_at = datetime('now') WHERE id = ?`,
		dueDate.UTC(), model.TaskStatusPending, id,
	)
	if err != nil {
		return fmt.Errorf("roll task forward: %w", err)
	}
	return nil
}

// SoftDelete clears the active flag. The row and its history are kept.
func (s *TaskStore) SoftDelete(id int64) error {
	_, err := s.db.Exec(
		`UPDATE tasks SET active = 0, updated_at = datetime('now') WHERE id = ?`,
		id,
	)
	if err != nil {
		return fmt.Errorf("soft delete task: %w", err)
	}
	return nil
}

// SetAssignees replaces the task's assignee set.
func (s *TaskStore) SetAssignees(taskID int64, userIDs []int64) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM task_assignees WHERE task_id = ?`, taskID); err != nil {
		return fmt.Errorf("clear assignees: %w", err)
	}
	for _, userID := range userIDs {
		if _, err := tx.Exec(`INSERT INTO task_assignees (task_id, user_id) VALUES (?, ?)`, taskID, userID); err != nil {
			return fmt.Errorf("insert assignee: %w", err)
		}
	}
	return tx.Commit()
}

// --- Completion methods ---

func scanCompletion(scanner interface{ Scan(...any) error }) (*model.TaskCompletion, error) {
	var c model.TaskCompletion
	var completedBy, ratedBy sql.NullInt64
	var rating sql.NullInt64

	err := scanner.Scan(
		&c.ID, &c.TaskID, &completedBy, &c.CompletedAt, &c.Status,
		&rating, &ratedBy, &c.Notes, &c.CompletedByName,
	)
	if err != nil {
		return nil, err
	}

	if completedBy.Valid {
		c.CompletedBy = &completedBy.Int64
	}
	if rating.Valid {
		r := int(rating.Int64)
		c.Rating = &r
	}
	if ratedBy.Valid {
		c.RatedBy = &ratedBy.Int64
	}
	return &c, nil
}

const completionCols = `c.id, c.task_id, c.completed_by, c.completed_at, c.status, c.rating, c.rated_by, c.notes, COALESCE(u.name, '')`
const completionFrom = ` FROM task_completions c LEFT JOIN users u ON u.id = c.completed_by `

func (s *TaskStore) CreateCompletion(taskID int64, completedBy *int64, completedAt time.Time, status, notes string) (*model.TaskCompletion, error) {
	var cBy sql.NullInt64
	if completedBy != nil {
		cBy = sql.NullInt64{Int64: *completedBy, Valid: true}
	}

	result, err := s.db.Exec(
		`INSERT INTO task_completions (task_id, completed_by, completed_at, status, notes) VALUES (?, ?, ?, ?, ?)`,
		taskID, cBy, completedAt.UTC(), status, notes,
	)
	if err != nil {
		return nil, fmt.Errorf("insert completion: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}

	row := s.db.QueryRow(`SELECT `+completionCols+completionFrom+`WHERE c.id = ?`, id)
	return scanCompletion(row)
}

func (s *TaskStore) ListCompletionsByTask(taskID int64) ([]model.TaskCompletion, error) {
	rows, err := s.db.Query(
		`SELECT `+completionCols+completionFrom+`WHERE c.task_id = ? ORDER BY c.completed_at DESC, c.id DESC`,
		taskID,
	)
	if err != nil {
		return nil, fmt.Errorf("list completions: %w", err)
	}
	defer rows.Close()

	var completions []model.TaskCompletion
	for rows.Next() {
		c, err := scanCompletion(rows)
		if err != nil {
			return nil, fmt.Errorf("scan completion: %w", err)
		}
		completions = append(completions, *c)
	}
	return completions, rows.Err()
}

// FirstCompletion returns the earliest completed entry for the task. Its
// completer is the task's "completed by" for display purposes.
func (s *TaskStore) FirstCompletion(taskID int64) (*model.TaskCompletion, error) {
	row := s.db.QueryRow(
		`SELECT `+completionCols+completionFrom+`WHERE c.task_id = ? AND c.status = ? ORDER BY c.completed_at ASC, c.id ASC LIMIT 1`,
		taskID, model.CompletionStatusCompleted,
	)
	c, err := scanCompletion(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("first completion: %w", err)
	}
	return c, nil
}

func (s *TaskStore) GetCompletionByID(id int64) (*model.TaskCompletion, error) {
	row := s.db.QueryRow(`SELECT `+completionCols+completionFrom+`WHERE c.id = ?`, id)
	c, err := scanCompletion(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get completion: %w", err)
	}
	return c, nil
}

func (s *TaskStore) RateCompletion(id int64, rating int, ratedBy int64) (*model.TaskCompletion, error) {
	_, err := s.db.Exec(
		`UPDATE task_completions SET rating = ?, rated_by = ? WHERE id = ?`,
		rating, ratedBy, id,
	)
	if err != nil {
		return nil, fmt.Errorf("rate completion: %w", err)
	}
	return s.GetCompletionByID(id)
}

// --- Rotation methods ---

// SetRotationMembers replaces the task's rotation cycle with the given user
// order. Positions are assigned from the slice order.
func (s *TaskStore) SetRotationMembers(taskID int64, userIDs []int64) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM task_rotation_members WHERE task_id = ?`, taskID); err != nil {
		return fmt.Errorf("clear rotation members: %w", err)
	}
	for i, userID := range userIDs {
		if _, err := tx.Exec(
			`INSERT INTO task_rotation_members (task_id, user_id, position) VALUES (?, ?, ?)`,
			taskID, userID, i,
		); err != nil {
			return fmt.Errorf("insert rotation member: %w", err)
		}
	}
	return tx.Commit()
}

func (s *TaskStore) ListRotationMembers(taskID int64) ([]model.RotationMember, error) {
	rows, err := s.db.Query(
		`SELECT r.task_id, r.user_id, r.position, u.name
		 FROM task_rotation_members r JOIN users u ON u.id = r.user_id
		 WHERE r.task_id = ? ORDER BY r.position ASC`,
		taskID,
	)
	if err != nil {
		return nil, fmt.Errorf("list rotation members: %w", err)
	}
	defer rows.Close()

	var members []model.RotationMember
	for rows.Next() {
		var m model.RotationMember
		if err := rows.Scan(&m.TaskID, &m.UserID, &m.Position, &m.Name); err != nil {
			return nil, fmt.Errorf("scan rotation member: %w", err)
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

// --- Swap request methods ---

func scanSwap(scanner interface{ Scan(...any) error }) (*model.SwapRequest, error) {
	var sw model.SwapRequest
	err := scanner.Scan(
		&sw.ID, &sw.TaskID, &sw.FromUser, &sw.ToUser,
		&sw.OriginalDate, &sw.ProposedDate, &sw.Message, &sw.Status,
		&sw.CreatedAt, &sw.UpdatedAt,
		&sw.TaskTitle, &sw.FromUserName, &sw.ToUserName,
	)
	if err != nil {
		return nil, err
	}
	return &sw, nil
}

const swapCols = `s.id, s.task_id, s.from_user, s.to_user, s.original_date, s.proposed_date,
	s.message, s.status, s.created_at, s.updated_at, t.title, fu.name, tu.name`

const swapFrom = ` FROM task_swap_requests s
	JOIN tasks t ON t.id = s.task_id
	JOIN users fu ON fu.id = s.from_user
	JOIN users tu ON tu.id = s.to_user `

func (s *TaskStore) CreateSwap(taskID, fromUser, toUser int64, originalDate, proposedDate time.Time, message string) (*model.SwapRequest, error) {
	result, err := s.db.Exec(
		`INSERT INTO task_swap_requests (task_id, from_user, to_user, original_date, proposed_date, message)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		taskID, fromUser, toUser, originalDate.UTC(), proposedDate.UTC(), message,
	)
	if err != nil {
		return nil, fmt.Errorf("insert swap request: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetSwapByID(id)
}

func (s *TaskStore) GetSwapByID(id int64) (*model.SwapRequest, error) {
	row := s.db.QueryRow(`SELECT `+swapCols+swapFrom+`WHERE s.id = ?`, id)
	sw, err := scanSwap(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get swap request: %w", err)
	}
	return sw, nil
}

// ListSwapsForUser returns swap requests the user sent or received, scoped to
// the home, newest first.
func (s *TaskStore) ListSwapsForUser(homeID, userID int64) ([]model.SwapRequest, error) {
	rows, err := s.db.Query(
		`SELECT `+swapCols+swapFrom+`WHERE t.home_id = ? AND (s.from_user = ? OR s.to_user = ?) ORDER BY s.created_at DESC, s.id DESC`,
		homeID, userID, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list swap requests: %w", err)
	}
	defer rows.Close()

	var swaps []model.SwapRequest
	for rows.Next() {
		sw, err := scanSwap(rows)
		if err != nil {
			return nil, fmt.Errorf("scan swap request: %w", err)
		}
		swaps = append(swaps, *sw)
	}
	return swaps, rows.Err()
}

func (s *TaskStore) UpdateSwapStatus(id int64, status string) (*model.SwapRequest, error) {
	_, err := s.db.Exec(
		`UPDATE task_swap_requests SET status = ?, updated_at = datetime('now') WHERE id = ?`,
		status, id,
	)
	if err != nil {
		return nil, fmt.Errorf("update swap status: %w", err)
	}
	return s.GetSwapByID(id)
}

// ListOverduePending returns active pending tasks whose due date is before the
// given cutoff.
func (s *TaskStore) ListOverduePending(before time.Time) ([]model.Task, error) {
	rows, err := s.db.Query(
		`SELECT `+taskCols+taskFrom+`WHERE t.active = 1 AND t.status = ? AND t.due_date IS NOT NULL AND t.due_date < ?`,
		model.TaskStatusPending, before.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("list overdue tasks: %w", err)
	}
	defer rows.Close()

	var tasks []model.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, *t)
	}
	return tasks, rows.Err()
}

// ListDueOn returns active pending tasks for the home due within [start, end).
func (s *TaskStore) ListDueOn(homeID int64, start, end time.Time) ([]model.Task, error) {
	rows, err := s.db.Query(
		`SELECT `+taskCols+taskFrom+`WHERE t.home_id = ? AND t.active = 1 AND t.status = ? AND t.due_date >= ? AND t.due_date < ?`,
		homeID, model.TaskStatusPending, start.UTC(), end.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("list due tasks: %w", err)
	}
	defer rows.Close()

	var tasks []model.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, *t)
	}
	return tasks, rows.Err()
}

// --- helpers ---

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func inPlaceholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func int64Args(ids []int64) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}
