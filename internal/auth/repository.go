package auth

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

const pgUniqueViolation = "23505"

var (
	ErrUserNotFound    = errors.New("user not found")
	ErrUsernameTaken   = errors.New("username already taken")
	ErrSessionNotFound = errors.New("session not found")
)

// HashToken reduces a raw refresh token to the sha256 hex digest stored in
// the sessions table. Only the digest ever touches the database.
func HashToken(rawToken string) string {
	sum := sha256.Sum256([]byte(rawToken))
	return hex.EncodeToString(sum[:])
}

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// CreateUser inserts the user. The unique index on username is the source
// of truth for duplicates; a concurrent insert between any prior existence
// check and this statement still surfaces as ErrUsernameTaken.
func (r *Repository) CreateUser(ctx context.Context, username, passwordHash string) (User, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return User{}, fmt.Errorf("generate user id: %w", err)
	}

	user := User{
		ID:           id.String(),
		Username:     username,
		PasswordHash: passwordHash,
		CreatedAt:    time.Now().UTC(),
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO users (id, username, password_hash, created_at)
		VALUES ($1, $2, $3, $4)
	`, user.ID, user.Username, user.PasswordHash, user.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return User{}, ErrUsernameTaken
		}
		return User{}, fmt.Errorf("insert user: %w", err)
	}

	return user, nil
}

func (r *Repository) UserByUsername(ctx context.Context, username string) (User, error) {
	var user User
	err := r.db.QueryRowContext(ctx, `
		SELECT id, username, password_hash, created_at
		FROM users
		WHERE username = $1
	`, username).Scan(&user.ID, &user.Username, &user.PasswordHash, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, ErrUserNotFound
		}
		return User{}, fmt.Errorf("query user by username: %w", err)
	}

	return user, nil
}

func (r *Repository) CreateSession(ctx context.Context, username, tokenHash string) (Session, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return Session{}, fmt.Errorf("generate session id: %w", err)
	}

	session := Session{
		ID:        id.String(),
		Username:  username,
		TokenHash: tokenHash,
		CreatedAt: time.Now().UTC(),
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO sessions (id, username, token_hash, created_at)
		VALUES ($1, $2, $3, $4)
	`, session.ID, session.Username, session.TokenHash, session.CreatedAt)
	if err != nil {
		return Session{}, fmt.Errorf("insert session: %w", err)
	}

	return session, nil
}

// FindSession looks up a session by token hash and owner. Rows older than
// cutoff are treated as expired even before the retention purge removes
// them. Unknown, consumed, and never-issued tokens all collapse to
// ErrSessionNotFound.
func (r *Repository) FindSession(ctx context.Context, tokenHash, username string, cutoff time.Time) (Session, error) {
	var session Session
	err := r.db.QueryRowContext(ctx, `
		SELECT id, username, token_hash, created_at
		FROM sessions
		WHERE token_hash = $1 AND username = $2 AND created_at > $3
	`, tokenHash, username, cutoff).Scan(&session.ID, &session.Username, &session.TokenHash, &session.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Session{}, ErrSessionNotFound
		}
		return Session{}, fmt.Errorf("query session: %w", err)
	}

	return session, nil
}

// RotateSession replaces the session identified by oldID with a fresh row
// for newTokenHash. The insert deliberately happens before the delete: a
// crash between the two leaves the old (soon-to-expire) session usable
// instead of stranding the user with none. The per-row delete arbitrates
// concurrent rotations of the same token; when it affects no rows this
// rotation lost, the replacement row is removed again and
// ErrSessionNotFound is returned.
func (r *Repository) RotateSession(ctx context.Context, oldID, username, newTokenHash string) (Session, error) {
	next, err := r.CreateSession(ctx, username, newTokenHash)
	if err != nil {
		return Session{}, err
	}

	res, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = $1`, oldID)
	if err != nil {
		return Session{}, fmt.Errorf("delete rotated session: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return Session{}, fmt.Errorf("rotated session rows affected: %w", err)
	}
	if affected == 0 {
		if _, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = $1`, next.ID); err != nil {
			return Session{}, fmt.Errorf("undo lost rotation: %w", err)
		}
		return Session{}, ErrSessionNotFound
	}

	return next, nil
}

// DeleteSessionByHash revokes the matching session. Deleting a hash with
// no row is a no-op, not an error.
func (r *Repository) DeleteSessionByHash(ctx context.Context, tokenHash string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE token_hash = $1`, tokenHash); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}

	return nil
}

// PurgeExpiredSessions removes sessions past the retention window in
// batches. Driven by the maintenance endpoint, never by the auth core.
func (r *Repository) PurgeExpiredSessions(ctx context.Context, retention time.Duration, batchSize int) (int64, error) {
	if batchSize <= 0 {
		batchSize = 500
	}
	if retention <= 0 {
		retention = 30 * 24 * time.Hour
	}

	cutoff := time.Now().UTC().Add(-retention)

	res, err := r.db.ExecContext(ctx, `
		WITH stale AS (
			SELECT id
			FROM sessions
			WHERE created_at < $1
			ORDER BY created_at ASC
			LIMIT $2
		)
		DELETE FROM sessions s
		USING stale
		WHERE s.id = stale.id
	`, cutoff, batchSize)
	if err != nil {
		return 0, fmt.Errorf("delete stale sessions: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("stale sessions rows affected: %w", err)
	}

	return affected, nil
}
