package user

import (
	"context"
	"database/sql"
	"fmt"
)

type Summary struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Search runs a full-text match on usernames first and falls back to a
// substring match when the ranked query finds nothing, so partial words
// still return results.
func (r *Repository) Search(ctx context.Context, query string, limit int) ([]string, error) {
	usernames, err := r.searchRanked(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	if len(usernames) > 0 {
		return usernames, nil
	}

	return r.searchSubstring(ctx, query, limit)
}

func (r *Repository) searchRanked(ctx context.Context, query string, limit int) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT username
		FROM users
		WHERE to_tsvector('simple', username) @@ plainto_tsquery('simple', $1)
		ORDER BY ts_rank(to_tsvector('simple', username), plainto_tsquery('simple', $1)) DESC, username ASC
		LIMIT $2
	`, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query username text search: %w", err)
	}
	defer rows.Close()

	return collectUsernames(rows)
}

func (r *Repository) searchSubstring(ctx context.Context, query string, limit int) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT username
		FROM users
		WHERE username ILIKE '%' || $1 || '%'
		ORDER BY username ASC
		LIMIT $2
	`, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query username substring search: %w", err)
	}
	defer rows.Close()

	return collectUsernames(rows)
}

func (r *Repository) ByUsernames(ctx context.Context, usernames []string) ([]Summary, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, username
		FROM users
		WHERE username = ANY($1)
	`, usernames)
	if err != nil {
		return nil, fmt.Errorf("query users by usernames: %w", err)
	}
	defer rows.Close()

	users := make([]Summary, 0, len(usernames))
	for rows.Next() {
		var u Summary
		if err := rows.Scan(&u.ID, &u.Username); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, u)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}

	return users, nil
}

func collectUsernames(rows *sql.Rows) ([]string, error) {
	usernames := make([]string, 0)
	for rows.Next() {
		var username string
		if err := rows.Scan(&username); err != nil {
			return nil, fmt.Errorf("scan username: %w", err)
		}
		usernames = append(usernames, username)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate usernames: %w", err)
	}

	return usernames, nil
}
