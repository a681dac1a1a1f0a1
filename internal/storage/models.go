package storage

import "time"

// Provider identifies an OAuth login provider.
type Provider string

const (
	ProviderGoogle  Provider = "google"
	ProviderGitHub  Provider = "github"
	ProviderDiscord Provider = "discord"
)

// Valid reports whether p is a supported provider.
func (p Provider) Valid() bool {
	switch p {
	case ProviderGoogle, ProviderGitHub, ProviderDiscord:
		return true
	}
	return false
}

func (p Provider) column() string {
	switch p {
	case ProviderGoogle:
		return "google_id"
	case ProviderGitHub:
		return "github_id"
	case ProviderDiscord:
		return "discord_id"
	}
	return ""
}

// Status types a user can set.
const (
	StatusOffline = "offline"
	StatusOnline  = "online"
	StatusBusy    = "busy"
)

// ValidStatusType reports whether s is an accepted status_type value.
func ValidStatusType(s string) bool {
	return s == StatusOffline || s == StatusOnline || s == StatusBusy
}

// User is a persisted account. Username is empty until the first login
// flow picks one.
type User struct {
	ID             int64     `json:"id"`
	Username       string    `json:"username"`
	StatusText     string    `json:"status_text"`
	StatusType     string    `json:"status_type"`
	ProfilePicture string    `json:"profile_picture"`
	FirstLogin     bool      `json:"first_login"`
	CreatedAt      time.Time `json:"created_at"`
}

// Friend relationship states.
const (
	FriendPending  = "pending"
	FriendAccepted = "accepted"
	FriendBlocked  = "blocked"
)

// FriendRequest is a pending request seen from one side.
type FriendRequest struct {
	User      User      `json:"user"`
	CreatedAt time.Time `json:"created_at"`
}

// Chat kinds.
const (
	ChatDirect = "direct"
	ChatGroup  = "group"
)

// Chat is a conversation between participants.
type Chat struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	Type         string    `json:"type"`
	CreatedAt    time.Time `json:"created_at"`
	Participants []int64   `json:"participant_ids"`
}

// Message is one chat message.
type Message struct {
	ID        int64     `json:"id"`
	ChatID    int64     `json:"chat_id"`
	SenderID  int64     `json:"sender_id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Session maps an opaque token to a user until ExpiresAt.
type Session struct {
	Token     string
	UserID    int64
	CreatedAt time.Time
	ExpiresAt time.Time
}
