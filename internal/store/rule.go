package store

import (
	"database/sql"
	"fmt"

	"github.com/rsheldon/flatmate/internal/model"
)

type RuleStore struct {
	db *sql.DB
}

func NewRuleStore(db *sql.DB) *RuleStore {
	return &RuleStore{db: db}
}

func scanRule(scanner interface{ Scan(...any) error }) (*model.HouseRule, error) {
	var r model.HouseRule
	var active int
	err := scanner.Scan(
		&r.ID, &r.HomeID, &r.Title, &r.Description, &r.Category,
		&r.CreatedBy, &active, &r.CreatedAt, &r.UpdatedAt, &r.CreatorName,
	)
	if err != nil {
		return nil, err
	}
	r.Active = active != 0
	return &r, nil
}

const ruleCols = `r.id, r.home_id, r.title, r.description, r.category,
	r.created_by, r.active, r.created_at, r.updated_at, u.name`

const ruleFrom = ` FROM house_rules r JOIN users u ON u.id = r.created_by `

func (s *RuleStore) Create(homeID int64, title, description, category string, createdBy int64) (*model.HouseRule, error) {
	result, err := s.db.Exec(
		`INSERT INTO house_rules (home_id, title, description, category, created_by) VALUES (?, ?, ?, ?, ?)`,
		homeID, title, description, category, createdBy,
	)
	if err != nil {
		return nil, fmt.Errorf("insert rule: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(id)
}

func (s *RuleStore) GetByID(id int64) (*model.HouseRule, error) {
	row := s.db.QueryRow(`SELECT `+ruleCols+ruleFrom+`WHERE r.id = ?`, id)
	r, err := scanRule(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get rule: %w", err)
	}

	if err := s.attachRelations([]*model.HouseRule{r}); err != nil {
		return nil, err
	}
	return r, nil
}

// ListByHome returns active house rules for the home, newest first, with
// agreements and comments attached. An empty category returns all categories.
func (s *RuleStore) ListByHome(homeID int64, category string) ([]model.HouseRule, error) {
	query := `SELECT ` + ruleCols + ruleFrom + `WHERE r.home_id = ? AND r.active = 1`
	args := []any{homeID}
	if category != "" {
		query += ` AND r.category = ?`
		args = append(args, category)
	}
	query += ` ORDER BY r.created_at DESC, r.id DESC`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list rules: %w", err)
	}
	defer rows.Close()

	var rules []model.HouseRule
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("scan rule: %w", err)
		}
		rules = append(rules, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	ptrs := make([]*model.HouseRule, len(rules))
	for i := range rules {
		ptrs[i] = &rules[i]
	}
	if err := s.attachRelations(ptrs); err != nil {
		return nil, err
	}
	return rules, nil
}

func (s *RuleStore) attachRelations(rules []*model.HouseRule) error {
	if len(rules) == 0 {
		return nil
	}
	ids := make([]int64, len(rules))
	byID := make(map[int64]*model.HouseRule, len(rules))
	for i, r := range rules {
		ids[i] = r.ID
		byID[r.ID] = r
		r.Agreements = []model.RuleAgreement{}
		r.Comments = []model.RuleComment{}
	}

	rows, err := s.db.Query(
		`SELECT a.rule_id, a.user_id, a.agreed_at, u.name
		 FROM rule_agreements a JOIN users u ON u.id = a.user_id
		 WHERE a.rule_id IN (`+inPlaceholders(len(ids))+`) ORDER BY a.agreed_at ASC`,
		int64Args(ids)...,
	)
	if err != nil {
		return fmt.Errorf("list agreements: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var a model.RuleAgreement
		if err := rows.Scan(&a.RuleID, &a.UserID, &a.AgreedAt, &a.UserName); err != nil {
			return fmt.Errorf("scan agreement: %w", err)
		}
		byID[a.RuleID].Agreements = append(byID[a.RuleID].Agreements, a)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	crows, err := s.db.Query(
		`SELECT c.id, c.rule_id, c.user_id, c.body, c.created_at, u.name
		 FROM rule_comments c JOIN users u ON u.id = c.user_id
		 WHERE c.rule_id IN (`+inPlaceholders(len(ids))+`) ORDER BY c.created_at ASC, c.id ASC`,
		int64Args(ids)...,
	)
	if err != nil {
		return fmt.Errorf("list comments: %w", err)
	}
	defer crows.Close()
	for crows.Next() {
		var c model.RuleComment
		if err := crows.Scan(&c.ID, &c.RuleID, &c.UserID, &c.Body, &c.CreatedAt, &c.UserName); err != nil {
			return fmt.Errorf("scan comment: %w", err)
		}
		byID[c.RuleID].Comments = append(byID[c.RuleID].Comments, c)
	}
	return crows.Err()
}

func (s *RuleStore) Update(id int64, title, description, category string) (*model.HouseRule, error) {
	_, err := s.db.Exec(
		`UPDATE house_rules SET title = ?, description = ?, category = ?, updated_at = datetime('now') WHERE id = ?`,
		title, description, category, id,
	)
	if err != nil {
		return nil, fmt.Errorf("update rule: %w", err)
	}
	return s.GetByID(id)
}

// SoftDelete clears the active flag. Agreements and comments are kept.
func (s *RuleStore) SoftDelete(id int64) error {
	_, err := s.db.Exec(
		`UPDATE house_rules SET active = 0, updated_at = datetime('now') WHERE id = ?`,
		id,
	)
	if err != nil {
		return fmt.Errorf("soft delete rule: %w", err)
	}
	return nil
}

// ToggleAgreement flips the user's agreement on the rule. It returns true when
// the agreement exists after the call. Toggling twice restores the original
// state.
func (s *RuleStore) ToggleAgreement(ruleID, userID int64) (bool, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return false, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRow(
		`SELECT COUNT(*) FROM rule_agreements WHERE rule_id = ? AND user_id = ?`,
		ruleID, userID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check agreement: %w", err)
	}

	agreed := false
	if exists > 0 {
		_, err = tx.Exec(`DELETE FROM rule_agreements WHERE rule_id = ? AND user_id = ?`, ruleID, userID)
	} else {
		_, err = tx.Exec(`INSERT INTO rule_agreements (rule_id, user_id) VALUES (?, ?)`, ruleID, userID)
		agreed = true
	}
	if err != nil {
		return false, fmt.Errorf("toggle agreement: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit: %w", err)
	}
	return agreed, nil
}

func (s *RuleStore) AddComment(ruleID, userID int64, body string) (*model.RuleComment, error) {
	result, err := s.db.Exec(
		`INSERT INTO rule_comments (rule_id, user_id, body) VALUES (?, ?, ?)`,
		ruleID, userID, body,
	)
	if err != nil {
		return nil, fmt.Errorf("insert comment: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}

	var c model.RuleComment
	err = s.db.QueryRow(
		`SELECT c.id, c.rule_id, c.user_id, c.body, c.created_at, u.name
		 FROM rule_comments c JOIN users u ON u.id = c.user_id WHERE c.id = ?`,
		id,
	).Scan(&c.ID, &c.RuleID, &c.UserID, &c.Body, &c.CreatedAt, &c.UserName)
	if err != nil {
		return nil, fmt.Errorf("get comment: %w", err)
	}
	return &c, nil
}
