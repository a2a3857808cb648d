package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/viewtally/viewtally/internal/model"
	"github.com/viewtally/viewtally/internal/query"
)

// Common errors for content repository operations.
var (
	ErrContentNotFound = errors.New("content not found")
	ErrContentExists   = errors.New("content already registered")
)

// CreateContent registers a counted entity.
func (r *Repository) CreateContent(ctx context.Context, c *model.Content) error {
	sql := `
		INSERT INTO content (id, content_type, title, published_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := r.pool.Exec(ctx, sql,
		c.ID,
		c.ContentType,
		c.Title,
		c.PublishedAt,
		c.CreatedAt,
		c.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrContentExists
		}
		return fmt.Errorf("failed to create content: %w", err)
	}
	return nil
}

// GetContentByID retrieves a registered content item.
func (r *Repository) GetContentByID(ctx context.Context, id int64) (*model.Content, error) {
	sql := `
		SELECT id, content_type, title, published_at, deleted_at, created_at, updated_at
		FROM content
		WHERE id = $1 AND deleted_at IS NULL
	`

	var c model.Content
	err := r.pool.QueryRow(ctx, sql, id).Scan(
		&c.ID,
		&c.ContentType,
		&c.Title,
		&c.PublishedAt,
		&c.DeletedAt,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrContentNotFound
		}
		return nil, fmt.Errorf("failed to get content by ID: %w", err)
	}
	return &c, nil
}

// ContentExists reports whether a content id is registered and not deleted.
func (r *Repository) ContentExists(ctx context.Context, id int64) (bool, error) {
	sql := `SELECT EXISTS(SELECT 1 FROM content WHERE id = $1 AND deleted_at IS NULL)`

	var exists bool
	if err := r.pool.QueryRow(ctx, sql, id).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check content existence: %w", err)
	}
	return exists, nil
}

// DeleteContent soft-deletes a content item and cascades into the view store,
// removing every bucket/period counter row for the id.
func (r *Repository) DeleteContent(ctx context.Context, id int64) error {
	result, err := r.pool.Exec(ctx,
		`UPDATE content SET deleted_at = NOW(), updated_at = NOW() WHERE id = $1 AND deleted_at IS NULL`,
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to delete content: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrContentNotFound
	}

	return r.DeleteAllViewsFor(ctx, id)
}

// ListContentWithViews executes a view-augmented listing and returns the rows
// plus the query-level total: the per-row views column summed across the
// result set.
func (r *Repository) ListContentWithViews(ctx context.Context, l query.Listing) ([]model.ContentWithViews, int64, error) {
	sql, args := query.Build(l)

	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query content listing: %w", err)
	}
	defer rows.Close()

	var (
		items      []model.ContentWithViews
		totalViews int64
	)
	for rows.Next() {
		var item model.ContentWithViews
		if err := rows.Scan(
			&item.ID,
			&item.ContentType,
			&item.Title,
			&item.PublishedAt,
			&item.CreatedAt,
			&item.UpdatedAt,
			&item.Views,
		); err != nil {
			return nil, 0, fmt.Errorf("failed to scan listing row: %w", err)
		}
		totalViews += item.Views
		items = append(items, item)
	}
	return items, totalViews, rows.Err()
}

// isUniqueViolation checks if the error is a PostgreSQL unique constraint violation.
func isUniqueViolation(err error) bool {
	// PostgreSQL error code 23505 is unique_violation
	if err == nil {
		return false
	}
	msg := err.Error()
	return contains(msg, "23505") || contains(msg, "unique")
}

// contains checks if a string contains a substring.
func contains(s, substr string) bool {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}
