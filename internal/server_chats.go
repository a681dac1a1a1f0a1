package internal

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"hermes/internal/storage"
)

const maxMessageLength = 4000

type createChatRequest struct {
	Name           string  `json:"name"`
	Type           string  `json:"type"`
	ParticipantIDs []int64 `json:"participant_ids"`
}

type createChatResponse struct {
	Chat    *storage.Chat `json:"chat"`
	Created bool          `json:"created"`
}

type sendMessageRequest struct {
	Content string `json:"content"`
}

type sendMessageResponse struct {
	Message   *storage.Message `json:"message"`
	Delivered int              `json:"delivered"`
}

// HandleListChats lists the chats of the signed-in user.
func (s *Server) HandleListChats(w http.ResponseWriter, r *http.Request) {
	chats, err := s.store.ListChats(r.Context(), currentUser(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if chats == nil {
		chats = []storage.Chat{}
	}
	writeSuccess(w, http.StatusOK, chats)
}

// HandleCreateChat opens a chat. A direct chat that already exists between
// the two users is returned instead of creating a second one.
func (s *Server) HandleCreateChat(w http.ResponseWriter, r *http.Request) {
	var req createChatRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	ctx := r.Context()
	userID := currentUser(r)
	kind := strings.TrimSpace(req.Type)
	if kind == "" {
		kind = storage.ChatDirect
	}

	var others []int64
	for _, id := range req.ParticipantIDs {
		if id != userID {
			others = append(others, id)
		}
	}
	switch kind {
	case storage.ChatDirect:
		if len(others) != 1 {
			writeError(w, BadRequestError{Msg: "a direct chat needs exactly one other participant"})
			return
		}
	case storage.ChatGroup:
		if len(others) == 0 {
			writeError(w, BadRequestError{Msg: "a group chat needs participants"})
			return
		}
	default:
		writeError(w, BadRequestError{Msg: "type must be direct or group"})
		return
	}
	for _, id := range others {
		if _, err := s.store.GetUserByID(ctx, id); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				err = BadRequestError{Msg: "unknown participant " + strconv.FormatInt(id, 10)}
			}
			s.fail(w, r, err)
			return
		}
		blocked, err := s.store.IsBlocked(ctx, userID, id)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		if blocked {
			writeError(w, ForbiddenError{Msg: "cannot start a chat with this user"})
			return
		}
	}

	if kind == storage.ChatDirect {
		existing, err := s.store.FindDirectChat(ctx, userID, others[0])
		if err == nil {
			writeSuccess(w, http.StatusOK, createChatResponse{Chat: existing})
			return
		}
		if !errors.Is(err, storage.ErrNotFound) {
			s.fail(w, r, err)
			return
		}
	}

	chat, err := s.store.CreateChat(ctx, strings.TrimSpace(req.Name), kind, userID, others)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	for _, id := range chat.Participants {
		if id != userID {
			s.notify(id, EventChatCreated, chat)
		}
	}
	writeSuccess(w, http.StatusCreated, createChatResponse{Chat: chat, Created: true})
}

func (s *Server) chatFor(r *http.Request) (int64, error) {
	chatID, err := pathID(r, "chatID")
	if err != nil {
		return 0, err
	}
	ok, err := s.store.IsParticipant(r.Context(), chatID, currentUser(r))
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, ForbiddenError{Msg: "not a participant of this chat"}
	}
	return chatID, nil
}

// HandleListMessages pages through a chat's history. ?before= takes a
// message id and ?limit= caps the page.
func (s *Server) HandleListMessages(w http.ResponseWriter, r *http.Request) {
	chatID, err := s.chatFor(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	query := r.URL.Query()
	var before int64
	if raw := query.Get("before"); raw != "" {
		if before, err = strconv.ParseInt(raw, 10, 64); err != nil || before < 0 {
			writeError(w, BadRequestError{Msg: "invalid before"})
			return
		}
	}
	limit := 0
	if raw := query.Get("limit"); raw != "" {
		if limit, err = strconv.Atoi(raw); err != nil || limit < 0 {
			writeError(w, BadRequestError{Msg: "invalid limit"})
			return
		}
	}
	messages, err := s.store.ListMessages(r.Context(), chatID, before, limit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if messages == nil {
		messages = []storage.Message{}
	}
	writeSuccess(w, http.StatusOK, messages)
}

// HandleSendMessage stores a message, then pushes it to every other
// participant that is online. Delivered counts the participants reached.
func (s *Server) HandleSendMessage(w http.ResponseWriter, r *http.Request) {
	chatID, err := pathID(r, "chatID")
	if err != nil {
		writeError(w, err)
		return
	}
	var req sendMessageRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	content := strings.TrimSpace(req.Content)
	if content == "" {
		writeError(w, BadRequestError{Msg: "content required"})
		return
	}
	if len(content) > maxMessageLength {
		writeError(w, BadRequestError{Msg: "message too long"})
		return
	}
	ctx := r.Context()
	userID := currentUser(r)
	msg, err := s.store.CreateMessage(ctx, chatID, userID, content)
	if err != nil {
		if errors.Is(err, storage.ErrNotParticipant) {
			err = ForbiddenError{Msg: "not a participant of this chat"}
		}
		s.fail(w, r, err)
		return
	}
	participants, err := s.store.ChatParticipants(ctx, chatID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	delivered := 0
	for _, id := range participants {
		if id == userID {
			continue
		}
		if s.notify(id, EventNewMessage, msg) {
			delivered++
		}
	}
	writeSuccess(w, http.StatusCreated, sendMessageResponse{Message: msg, Delivered: delivered})
}
