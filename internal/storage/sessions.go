package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// CreateSession stores a new session token for a user.
func (s *Store) CreateSession(ctx context.Context, userID int64, token string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, s.q(`INSERT INTO sessions(token, user_id, created_at, expires_at) VALUES(?, ?, ?, ?)`),
		token, userID, time.Now().UTC(), expiresAt.UTC())
	return err
}

// GetSession returns a session if it exists. Expired sessions are still
// returned; callers compare ExpiresAt.
func (s *Store) GetSession(ctx context.Context, token string) (*Session, error) {
	row := s.db.QueryRowContext(ctx, s.q(`SELECT token, user_id, expires_at, created_at FROM sessions WHERE token = ?`), token)
	var sess Session
	if err := row.Scan(&sess.Token, &sess.UserID, &sess.ExpiresAt, &sess.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &sess, nil
}

// DeleteSession removes a session token (used for logout).
func (s *Store) DeleteSession(ctx context.Context, token string) error {
	_, err := s.db.ExecContext(ctx, s.q(`DELETE FROM sessions WHERE token = ?`), token)
	return err
}

// DeleteExpiredSessions purges sessions that expired before now.
func (s *Store) DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, s.q(`DELETE FROM sessions WHERE expires_at < ?`), now.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
