package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rsheldon/flatmate/internal/model"
)

type ExpenseStore struct {
	db *sql.DB
}

func NewExpenseStore(db *sql.DB) *ExpenseStore {
	return &ExpenseStore{db: db}
}

func scanExpense(scanner interface{ Scan(...any) error }) (*model.Expense, error) {
	var e model.Expense
	err := scanner.Scan(
		&e.ID, &e.HomeID, &e.PaidBy, &e.Description, &e.AmountCents,
		&e.IncurredOn, &e.CreatedAt, &e.PaidByName,
	)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

const expenseCols = `e.id, e.home_id, e.paid_by, e.description, e.amount_cents, e.incurred_on, e.created_at, u.name`
const expenseFrom = ` FROM expenses e JOIN users u ON u.id = e.paid_by `

func (s *ExpenseStore) Create(homeID, paidBy int64, description string, amountCents int64, incurredOn time.Time) (*model.Expense, error) {
	result, err := s.db.Exec(
		`INSERT INTO expenses (home_id, paid_by, description, amount_cents, incurred_on) VALUES (?, ?, ?, ?, ?)`,
		homeID, paidBy, description, amountCents, incurredOn.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("insert expense: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(id)
}

func (s *ExpenseStore) GetByID(id int64) (*model.Expense, error) {
	row := s.db.QueryRow(`SELECT `+expenseCols+expenseFrom+`WHERE e.id = ?`, id)
	e, err := scanExpense(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get expense: %w", err)
	}
	return e, nil
}

func (s *ExpenseStore) ListByHome(homeID int64) ([]model.Expense, error) {
	rows, err := s.db.Query(
		`SELECT `+expenseCols+expenseFrom+`WHERE e.home_id = ? ORDER BY e.incurred_on DESC, e.id DESC`,
		homeID,
	)
	if err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}
	defer rows.Close()

	var expenses []model.Expense
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, fmt.Errorf("scan expense: %w", err)
		}
		expenses = append(expenses, *e)
	}
	return expenses, rows.Err()
}

func (s *ExpenseStore) Delete(id int64) error {
	_, err := s.db.Exec(`DELETE FROM expenses WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete expense: %w", err)
	}
	return nil
}

// TotalsByMember sums expense amounts per payer for the home.
func (s *ExpenseStore) TotalsByMember(homeID int64) (map[int64]int64, error) {
	rows, err := s.db.Query(
		`SELECT paid_by, SUM(amount_cents) FROM expenses WHERE home_id = ? GROUP BY paid_by`,
		homeID,
	)
	if err != nil {
		return nil, fmt.Errorf("expense totals: %w", err)
	}
	defer rows.Close()

	totals := make(map[int64]int64)
	for rows.Next() {
		var userID, total int64
		if err := rows.Scan(&userID, &total); err != nil {
			return nil, fmt.Errorf("scan expense total: %w", err)
		}
		totals[userID] = total
	}
	return totals, rows.Err()
}
