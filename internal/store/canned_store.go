package store

import (
	"context"
	"strings"

	"github.com/soyeahso/chatdesk/internal/domain"
)

// CannedStore persists canned agent replies.
type CannedStore struct {
	db *DB
}

// NewCannedStore creates a canned response store using the given database.
func NewCannedStore(db *DB) *CannedStore {
	return &CannedStore{db: db}
}

const cannedColumns = `id, title, content, category, is_active, created_at, updated_at`

func scanCanned(row rowScanner) (*domain.CannedResponse, error) {
	var c domain.CannedResponse
	var createdAt, updatedAt string
	if err := row.Scan(&c.ID, &c.Title, &c.Content, &c.Category, &c.Active, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	c.CreatedAt = parseTime(createdAt)
	c.UpdatedAt = parseTime(updatedAt)
	return &c, nil
}

func validateCanned(c *domain.CannedResponse) error {
	c.Title = strings.TrimSpace(c.Title)
	c.Content = strings.TrimSpace(c.Content)
	if c.Title == "" || c.Content == "" {
		return domain.Validationf("Title and content are required")
	}
	return nil
}

// List returns canned responses ordered by category then title.
func (s *CannedStore) List(ctx context.Context, activeOnly bool) ([]*domain.CannedResponse, error) {
	ctx, cancel := s.db.op(ctx)
	defer cancel()

	query := `SELECT ` + cannedColumns + ` FROM canned_responses`
	if activeOnly {
		query += ` WHERE is_active = 1`
	}
	query += ` ORDER BY category, title, id`

	rows, err := s.db.sql.QueryContext(ctx, query)
	if err != nil {
		return nil, domain.Storage("list canned responses", err)
	}
	defer rows.Close()

	out := []*domain.CannedResponse{}
	for rows.Next() {
		c, err := scanCanned(rows)
		if err != nil {
			return nil, domain.Storage("scan canned response", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.Storage("list canned responses", err)
	}
	return out, nil
}

// Get returns a canned response by ID.
func (s *CannedStore) Get(ctx context.Context, id int64) (*domain.CannedResponse, error) {
	ctx, cancel := s.db.op(ctx)
	defer cancel()

	c, err := scanCanned(s.db.sql.QueryRowContext(ctx,
		`SELECT `+cannedColumns+` FROM canned_responses WHERE id = ?`, id))
	if isNoRows(err) {
		return nil, domain.NotFoundf("canned response %d not found", id)
	}
	if err != nil {
		return nil, domain.Storage("get canned response", err)
	}
	return c, nil
}

// Create inserts a canned response. New responses are active.
func (s *CannedStore) Create(ctx context.Context, c domain.CannedResponse) (*domain.CannedResponse, error) {
	if err := validateCanned(&c); err != nil {
		return nil, err
	}
	ctx, cancel := s.db.op(ctx)
	defer cancel()

	now := s.db.stamp()
	res, err := s.db.sql.ExecContext(ctx,
		`INSERT INTO canned_responses (title, content, category, is_active, created_at, updated_at)
		 VALUES (?, ?, ?, 1, ?, ?)`, c.Title, c.Content, c.Category, now, now)
	if err != nil {
		return nil, domain.Storage("create canned response", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, domain.Storage("create canned response", err)
	}
	return s.Get(ctx, id)
}

// Update replaces title, content, category and the active flag.
func (s *CannedStore) Update(ctx context.Context, c domain.CannedResponse) (*domain.CannedResponse, error) {
	if err := validateCanned(&c); err != nil {
		return nil, err
	}
	ctx, cancel := s.db.op(ctx)
	defer cancel()

	res, err := s.db.sql.ExecContext(ctx,
		`UPDATE canned_responses SET title = ?, content = ?, category = ?, is_active = ?, updated_at = ?
		 WHERE id = ?`, c.Title, c.Content, c.Category, c.Active, s.db.stamp(), c.ID)
	if err != nil {
		return nil, domain.Storage("update canned response", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, domain.NotFoundf("canned response %d not found", c.ID)
	}
	return s.Get(ctx, c.ID)
}

// Delete removes a canned response.
func (s *CannedStore) Delete(ctx context.Context, id int64) error {
	ctx, cancel := s.db.op(ctx)
	defer cancel()

	res, err := s.db.sql.ExecContext(ctx, `DELETE FROM canned_responses WHERE id = ?`, id)
	if err != nil {
		return domain.Storage("delete canned response", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.NotFoundf("canned response %d not found", id)
	}
	return nil
}
