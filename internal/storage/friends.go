package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// A friendship is two accepted rows, one per direction. A pending request
// is a single row from requester to receiver. A block is a single row
// owned by the blocking user.

// CreateFriendRequest stores a pending request from requesterID to
// receiverID.
func (s *Store) CreateFriendRequest(ctx context.Context, requesterID, receiverID int64) error {
	if requesterID == receiverID {
		return ErrSelfReference
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, s.q(`SELECT status FROM friends
			WHERE (user_id = ? AND friend_id = ?) OR (user_id = ? AND friend_id = ?)`),
			requesterID, receiverID, receiverID, requesterID)
		if err != nil {
			return err
		}
		defer rows.Close()
		conflict := false
		for rows.Next() {
			var status string
			if err := rows.Scan(&status); err != nil {
				return err
			}
			if status == FriendBlocked {
				return ErrBlocked
			}
			conflict = true
		}
		if err := rows.Err(); err != nil {
			return err
		}
		if conflict {
			return ErrFriendRequestExists
		}
		_, err = tx.ExecContext(ctx, s.q(`INSERT INTO friends(user_id, friend_id, status, created_at) VALUES(?, ?, ?, ?)`),
			requesterID, receiverID, FriendPending, time.Now().UTC())
		if isConstraintError(err) {
			return ErrFriendRequestExists
		}
		return err
	})
}

// AcceptFriendRequest turns the pending request from requesterID into a
// friendship. ErrNotFound is returned if there is no such request.
func (s *Store) AcceptFriendRequest(ctx context.Context, receiverID, requesterID int64) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, s.q(`UPDATE friends SET status = ? WHERE user_id = ? AND friend_id = ? AND status = ?`),
			FriendAccepted, requesterID, receiverID, FriendPending)
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
		_, err = tx.ExecContext(ctx, s.q(`INSERT INTO friends(user_id, friend_id, status, created_at) VALUES(?, ?, ?, ?)
			ON CONFLICT(user_id, friend_id) DO UPDATE SET status = excluded.status`),
			receiverID, requesterID, FriendAccepted, time.Now().UTC())
		return err
	})
}

// DeleteFriendship removes rows with the given status between the two
// users in both directions. Use FriendPending to decline or cancel a
// request and FriendAccepted to unfriend.
func (s *Store) DeleteFriendship(ctx context.Context, userID, otherID int64, status string) error {
	res, err := s.db.ExecContext(ctx, s.q(`DELETE FROM friends
		WHERE status = ? AND ((user_id = ? AND friend_id = ?) OR (user_id = ? AND friend_id = ?))`),
		status, userID, otherID, otherID, userID)
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

// BlockUser records that userID blocked targetID, dropping any request or
// friendship between them.
func (s *Store) BlockUser(ctx context.Context, userID, targetID int64) error {
	if userID == targetID {
		return ErrSelfReference
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, s.q(`DELETE FROM friends WHERE user_id = ? AND friend_id = ? AND status <> ?`),
			targetID, userID, FriendBlocked); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, s.q(`INSERT INTO friends(user_id, friend_id, status, created_at) VALUES(?, ?, ?, ?)
			ON CONFLICT(user_id, friend_id) DO UPDATE SET status = excluded.status`),
			userID, targetID, FriendBlocked, time.Now().UTC())
		return err
	})
}

// AreFriends reports whether the two users have an accepted friendship.
func (s *Store) AreFriends(ctx context.Context, userID, otherID int64) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx, s.q(`SELECT COUNT(1) FROM friends WHERE user_id = ? AND friend_id = ? AND status = ?`),
		userID, otherID, FriendAccepted).Scan(&count)
	return count > 0, err
}

// ListFriends returns accepted friends ordered by username.
func (s *Store) ListFriends(ctx context.Context, userID int64) ([]User, error) {
	rows, err := s.db.QueryContext(ctx, s.q(`
		SELECT u.id, u.username, u.status_text, u.status_type, u.profile_picture, u.first_login, u.created_at
		FROM friends f
		JOIN users u ON u.id = f.friend_id
		WHERE f.user_id = ? AND f.status = ?
		ORDER BY u.username ASC, u.id ASC
	`), userID, FriendAccepted)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var friends []User
	for rows.Next() {
		friend, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		friends = append(friends, *friend)
	}
	return friends, rows.Err()
}

// ListIncomingFriendRequests returns pending requests addressed to userID.
func (s *Store) ListIncomingFriendRequests(ctx context.Context, userID int64) ([]FriendRequest, error) {
	return s.listRequests(ctx, `
		SELECT u.id, u.username, u.status_text, u.status_type, u.profile_picture, u.first_login, u.created_at, f.created_at
		FROM friends f
		JOIN users u ON u.id = f.user_id
		WHERE f.friend_id = ? AND f.status = ?
		ORDER BY f.created_at ASC, f.id ASC
	`, userID)
}

// ListOutgoingFriendRequests returns pending requests sent by userID.
func (s *Store) ListOutgoingFriendRequests(ctx context.Context, userID int64) ([]FriendRequest, error) {
	return s.listRequests(ctx, `
		SELECT u.id, u.username, u.status_text, u.status_type, u.profile_picture, u.first_login, u.created_at, f.created_at
		FROM friends f
		JOIN users u ON u.id = f.friend_id
		WHERE f.user_id = ? AND f.status = ?
		ORDER BY f.created_at ASC, f.id ASC
	`, userID)
}

func (s *Store) listRequests(ctx context.Context, query string, userID int64) ([]FriendRequest, error) {
	rows, err := s.db.QueryContext(ctx, s.q(query), userID, FriendPending)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var requests []FriendRequest
	for rows.Next() {
		var (
			req      FriendRequest
			username sql.NullString
			text     sql.NullString
			picture  sql.NullString
		)
		if err := rows.Scan(&req.User.ID, &username, &text, &req.User.StatusType, &picture, &req.User.FirstLogin, &req.User.CreatedAt, &req.CreatedAt); err != nil {
			return nil, err
		}
		req.User.Username = username.String
		req.User.StatusText = text.String
		req.User.ProfilePicture = picture.String
		requests = append(requests, req)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return requests, nil
}

// IsBlocked reports whether either user blocked the other.
func (s *Store) IsBlocked(ctx context.Context, userID, otherID int64) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx, s.q(`SELECT COUNT(1) FROM friends
		WHERE status = ? AND ((user_id = ? AND friend_id = ?) OR (user_id = ? AND friend_id = ?))`),
		FriendBlocked, userID, otherID, otherID, userID).Scan(&count)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return false, err
	}
	return count > 0, nil
}
