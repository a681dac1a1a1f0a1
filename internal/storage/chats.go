package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

const (
	defaultMessagePage = 50
	maxMessagePage     = 200
)

// CreateChat inserts a chat with the given participants. The creator is
// always a participant and duplicate ids are collapsed.
func (s *Store) CreateChat(ctx context.Context, name, kind string, creatorID int64, participantIDs []int64) (*Chat, error) {
	if kind != ChatDirect && kind != ChatGroup {
		return nil, fmt.Errorf("invalid chat type %q", kind)
	}
	members := uniqueIDs(append([]int64{creatorID}, participantIDs...))
	if kind == ChatDirect && len(members) != 2 {
		return nil, errors.New("direct chats need exactly two participants")
	}
	now := time.Now().UTC()
	chat := &Chat{Name: name, Type: kind, Participants: members}
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, s.q(`INSERT INTO chats(name, type, created_at) VALUES(?, ?, ?) RETURNING id, created_at`),
			nullString(name), kind, now)
		if err := row.Scan(&chat.ID, &chat.CreatedAt); err != nil {
			return err
		}
		for _, id := range members {
			if _, err := tx.ExecContext(ctx, s.q(`INSERT INTO chat_participants(chat_id, user_id, joined_at) VALUES(?, ?, ?)`),
				chat.ID, id, now); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("create chat: %w", err)
	}
	return chat, nil
}

// FindDirectChat returns the direct chat between the two users.
func (s *Store) FindDirectChat(ctx context.Context, userID, otherID int64) (*Chat, error) {
	var chat Chat
	var name sql.NullString
	err := s.db.QueryRowContext(ctx, s.q(`
		SELECT c.id, c.name, c.type, c.created_at
		FROM chats c
		JOIN chat_participants a ON a.chat_id = c.id AND a.user_id = ?
		JOIN chat_participants b ON b.chat_id = c.id AND b.user_id = ?
		WHERE c.type = ?
		ORDER BY c.id ASC
		LIMIT 1
	`), userID, otherID, ChatDirect).Scan(&chat.ID, &name, &chat.Type, &chat.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	chat.Name = name.String
	if chat.Participants, err = s.ChatParticipants(ctx, chat.ID); err != nil {
		return nil, err
	}
	return &chat, nil
}

// ListChats returns every chat userID participates in, newest first.
func (s *Store) ListChats(ctx context.Context, userID int64) ([]Chat, error) {
	rows, err := s.db.QueryContext(ctx, s.q(`
		SELECT c.id, c.name, c.type, c.created_at
		FROM chats c
		JOIN chat_participants p ON p.chat_id = c.id
		WHERE p.user_id = ?
		ORDER BY c.created_at DESC, c.id DESC
	`), userID)
	if err != nil {
		return nil, err
	}
	var chats []Chat
	for rows.Next() {
		var chat Chat
		var name sql.NullString
		if err := rows.Scan(&chat.ID, &name, &chat.Type, &chat.CreatedAt); err != nil {
			rows.Close()
			return nil, err
		}
		chat.Name = name.String
		chats = append(chats, chat)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	for i := range chats {
		if chats[i].Participants, err = s.ChatParticipants(ctx, chats[i].ID); err != nil {
			return nil, err
		}
	}
	return chats, nil
}

// ChatParticipants returns the user ids of a chat in join order.
func (s *Store) ChatParticipants(ctx context.Context, chatID int64) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, s.q(`SELECT user_id FROM chat_participants WHERE chat_id = ? ORDER BY id ASC`), chatID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// IsParticipant reports whether userID belongs to chatID.
func (s *Store) IsParticipant(ctx context.Context, chatID, userID int64) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx, s.q(`SELECT COUNT(1) FROM chat_participants WHERE chat_id = ? AND user_id = ?`),
		chatID, userID).Scan(&count)
	return count > 0, err
}

// CreateMessage stores a message. ErrNotParticipant is returned if the
// sender is not a member of the chat.
func (s *Store) CreateMessage(ctx context.Context, chatID, senderID int64, content string) (*Message, error) {
	if strings.TrimSpace(content) == "" {
		return nil, errors.New("message content is empty")
	}
	ok, err := s.IsParticipant(ctx, chatID, senderID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotParticipant
	}
	msg := &Message{ChatID: chatID, SenderID: senderID, Content: content}
	err = s.db.QueryRowContext(ctx, s.q(`INSERT INTO messages(chat_id, sender_id, content, created_at) VALUES(?, ?, ?, ?) RETURNING id, created_at`),
		chatID, senderID, content, time.Now().UTC()).Scan(&msg.ID, &msg.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("create message: %w", err)
	}
	return msg, nil
}

// ListMessages returns up to limit messages older than beforeID (all when
// beforeID is 0), oldest first.
func (s *Store) ListMessages(ctx context.Context, chatID, beforeID int64, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = defaultMessagePage
	}
	if limit > maxMessagePage {
		limit = maxMessagePage
	}
	query := `SELECT id, chat_id, sender_id, content, created_at FROM messages WHERE chat_id = ?`
	args := []any{chatID}
	if beforeID > 0 {
		query += ` AND id < ?`
		args = append(args, beforeID)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, s.q(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var messages []Message
	for rows.Next() {
		var msg Message
		if err := rows.Scan(&msg.ID, &msg.ChatID, &msg.SenderID, &msg.Content, &msg.CreatedAt); err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

func uniqueIDs(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if id <= 0 {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	if len(out) > 1 {
		rest := out[1:]
		sort.Slice(rest, func(i, j int) bool { return rest[i] < rest[j] })
	}
	return out
}
