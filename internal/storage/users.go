package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const userColumns = `id, username, status_text, status_type, profile_picture, first_login, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*User, error) {
	var (
		user     User
		username sql.NullString
		text     sql.NullString
		picture  sql.NullString
	)
	if err := row.Scan(&user.ID, &username, &text, &user.StatusType, &picture, &user.FirstLogin, &user.CreatedAt); err != nil {
		return nil, err
	}
	user.Username = username.String
	user.StatusText = text.String
	user.ProfilePicture = picture.String
	return &user, nil
}

// FindOrCreateOAuthUser returns the user linked to the provider account,
// creating it on first sign-in. The bool reports whether a row was created.
func (s *Store) FindOrCreateOAuthUser(ctx context.Context, provider Provider, providerID, picture string) (*User, bool, error) {
	if !provider.Valid() {
		return nil, false, fmt.Errorf("unknown provider %q", provider)
	}
	if providerID == "" {
		return nil, false, errors.New("provider id is required")
	}
	column := provider.column()
	var (
		user    *User
		created bool
	)
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, s.q(`SELECT `+userColumns+` FROM users WHERE `+column+` = ?`), providerID)
		existing, err := scanUser(row)
		if err == nil {
			user = existing
			return nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return err
		}
		row = tx.QueryRowContext(ctx, s.q(`INSERT INTO users(`+column+`, profile_picture, status_type, first_login, created_at)
			VALUES(?, ?, ?, ?, ?) RETURNING `+userColumns),
			providerID, nullString(picture), StatusOffline, true, time.Now().UTC())
		user, err = scanUser(row)
		if err != nil {
			return err
		}
		created = true
		return nil
	})
	if err != nil {
		return nil, false, fmt.Errorf("find or create %s user: %w", provider, err)
	}
	return user, created, nil
}

// GetUserByID fetches a user by primary key.
func (s *Store) GetUserByID(ctx context.Context, id int64) (*User, error) {
	user, err := scanUser(s.db.QueryRowContext(ctx, s.q(`SELECT `+userColumns+` FROM users WHERE id = ?`), id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return user, err
}

// GetUserByUsername fetches a user by username.
func (s *Store) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	user, err := scanUser(s.db.QueryRowContext(ctx, s.q(`SELECT `+userColumns+` FROM users WHERE username = ?`), username))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return user, err
}

// ProfileUpdate carries the optional fields of a profile change. Nil fields
// are left untouched.
type ProfileUpdate struct {
	Username   *string
	StatusText *string
	StatusType *string
}

// UpdateProfile applies the update and returns the stored user.
// ErrUserExists is returned if the username is taken.
func (s *Store) UpdateProfile(ctx context.Context, id int64, update ProfileUpdate) (*User, error) {
	if update.StatusType != nil && !ValidStatusType(*update.StatusType) {
		return nil, fmt.Errorf("invalid status type %q", *update.StatusType)
	}
	_, err := s.db.ExecContext(ctx, s.q(`UPDATE users SET
			username = COALESCE(?, username),
			status_text = COALESCE(?, status_text),
			status_type = COALESCE(?, status_type)
		WHERE id = ?`),
		optional(update.Username), optional(update.StatusText), optional(update.StatusType), id)
	if err != nil {
		if isConstraintError(err) {
			return nil, ErrUserExists
		}
		return nil, err
	}
	return s.GetUserByID(ctx, id)
}

// CompleteFirstLogin clears the first_login flag.
func (s *Store) CompleteFirstLogin(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, s.q(`UPDATE users SET first_login = ? WHERE id = ?`), false, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func optional(value *string) sql.NullString {
	if value == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *value, Valid: true}
}
