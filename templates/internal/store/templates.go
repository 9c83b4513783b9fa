// CLAUDE:SUMMARY CRUD for the templates table; every statement is filtered by user_id.
package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/hazyhaar/templio/dbopen"
)

var (
	// ErrNotFound means no row matched both id and owner.
	ErrNotFound = errors.New("store: template not found")
	// ErrConflict means the row was written after it was read.
	ErrConflict = errors.New("store: template changed concurrently")
)

// Template is one saved HTML snippet. HTMLCode is stored as submitted.
type Template struct {
	ID          string `json:"id"`
	UserID      string `json:"user_id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	HTMLCode    string `json:"html_code"`
	Screenshot  string `json:"screenshot,omitempty"`
	IsFavorite  bool   `json:"is_favorite"`
	CreatedAt   int64  `json:"created_at"`
	UpdatedAt   int64  `json:"updated_at"`
}

// Sort orders a listing.
type Sort string

const (
	SortNewest    Sort = "newest"
	SortOldest    Sort = "oldest"
	SortFavorites Sort = "favorites"
)

// ListOptions selects one page of a user's templates.
type ListOptions struct {
	Sort   Sort
	Limit  int
	Offset int
}

const columns = `id, user_id, title, description, html_code, screenshot, is_favorite, created_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanTemplate(row scanner) (*Template, error) {
	var t Template
	var fav int
	if err := row.Scan(&t.ID, &t.UserID, &t.Title, &t.Description, &t.HTMLCode,
		&t.Screenshot, &fav, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	t.IsFavorite = fav == 1
	return &t, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// InsertTemplate stores a new template.
func (s *Store) InsertTemplate(ctx context.Context, t *Template) error {
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO templates (`+columns+`)
		VALUES (?,?,?,?,?,?,?,?,?)`,
		t.ID, t.UserID, t.Title, t.Description, t.HTMLCode,
		t.Screenshot, boolInt(t.IsFavorite), t.CreatedAt, t.UpdatedAt,
	)
	return err
}

// GetTemplate returns the template id owned by userID, or nil if none.
func (s *Store) GetTemplate(ctx context.Context, userID, id string) (*Template, error) {
	t, err := scanTemplate(s.DB.QueryRowContext(ctx,
		`SELECT `+columns+` FROM templates WHERE id = ? AND user_id = ?`, id, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return t, err
}

// ListTemplates returns one page of userID's templates.
func (s *Store) ListTemplates(ctx context.Context, userID string, opts ListOptions) ([]*Template, error) {
	query := `SELECT ` + columns + ` FROM templates WHERE user_id = ?`
	switch opts.Sort {
	case SortOldest:
		query += ` ORDER BY created_at ASC, id ASC`
	case SortFavorites:
		query += ` AND is_favorite = 1 ORDER BY created_at DESC, id DESC`
	default:
		query += ` ORDER BY created_at DESC, id DESC`
	}
	args := []any{userID}
	if opts.Limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, opts.Limit, opts.Offset)
	}

	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Template
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// CountTemplates counts userID's templates, favorites only if asked.
func (s *Store) CountTemplates(ctx context.Context, userID string, favoritesOnly bool) (int, error) {
	query := `SELECT COUNT(*) FROM templates WHERE user_id = ?`
	if favoritesOnly {
		query += ` AND is_favorite = 1`
	}
	var n int
	err := s.DB.QueryRowContext(ctx, query, userID).Scan(&n)
	return n, err
}

// UpdateTemplate rewrites the editable fields of t, provided the stored
// row still carries updated_at == prev. It returns ErrNotFound when no row
// with t.ID belongs to t.UserID and ErrConflict when the row moved on.
func (s *Store) UpdateTemplate(ctx context.Context, t *Template, prev int64) error {
	return dbopen.RunTx(ctx, s.DB, func(tx *sql.Tx) error {
		var cur int64
		err := tx.QueryRowContext(ctx,
			`SELECT updated_at FROM templates WHERE id = ? AND user_id = ?`,
			t.ID, t.UserID).Scan(&cur)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		if cur != prev {
			return ErrConflict
		}
		_, err = tx.ExecContext(ctx, `
			UPDATE templates
			SET title = ?, description = ?, html_code = ?, screenshot = ?, updated_at = ?
			WHERE id = ? AND user_id = ?`,
			t.Title, t.Description, t.HTMLCode, t.Screenshot, t.UpdatedAt, t.ID, t.UserID,
		)
		return err
	})
}

// UpdateTitle renames a template.
func (s *Store) UpdateTitle(ctx context.Context, userID, id, title string, now int64) (bool, error) {
	res, err := s.DB.ExecContext(ctx,
		`UPDATE templates SET title = ?, updated_at = MAX(?, updated_at + 1) WHERE id = ? AND user_id = ?`,
		title, now, id, userID)
	return affected(res, err)
}

// ToggleFavorite flips is_favorite and returns the new value. found is false
// when the template does not exist for userID.
func (s *Store) ToggleFavorite(ctx context.Context, userID, id string, now int64) (fav, found bool, err error) {
	var v int
	err = s.DB.QueryRowContext(ctx, `
		UPDATE templates SET is_favorite = 1 - is_favorite, updated_at = MAX(?, updated_at + 1)
		WHERE id = ? AND user_id = ?
		RETURNING is_favorite`, now, id, userID).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return false, false, nil
	}
	if err != nil {
		return false, false, err
	}
	return v == 1, true, nil
}

// DeleteTemplate removes a template.
func (s *Store) DeleteTemplate(ctx context.Context, userID, id string) (bool, error) {
	res, err := s.DB.ExecContext(ctx,
		`DELETE FROM templates WHERE id = ? AND user_id = ?`, id, userID)
	return affected(res, err)
}

func affected(res sql.Result, err error) (bool, error) {
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}
