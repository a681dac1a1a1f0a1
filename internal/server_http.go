package internal

import (
	"errors"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"hermes/internal/storage"
)

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_.-]{3,32}$`)

type updateMeRequest struct {
	Username   *string `json:"username"`
	StatusText *string `json:"status_text"`
	StatusType *string `json:"status_type"`
}

type friendDTO struct {
	storage.User
	Online bool `json:"online"`
}

type friendRequestDTO struct {
	User      storage.User `json:"user"`
	CreatedAt time.Time    `json:"created_at"`
}

type friendRequestsResponse struct {
	Incoming []friendRequestDTO `json:"incoming"`
	Outgoing []friendRequestDTO `json:"outgoing"`
}

type createFriendRequest struct {
	Username string `json:"username"`
}

type notifiedResponse struct {
	Notified bool `json:"notified"`
}

// HandleMe returns the signed-in user.
func (s *Server) HandleMe(w http.ResponseWriter, r *http.Request) {
	user, err := s.store.GetUserByID(r.Context(), currentUser(r))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			err = UnauthorizedError{Msg: "account no longer exists"}
		}
		s.fail(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, user)
}

// HandleUpdateMe changes username and status. The first successful update
// that leaves the account with a username completes the first login.
func (s *Server) HandleUpdateMe(w http.ResponseWriter, r *http.Request) {
	var req updateMeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Username != nil {
		name := strings.TrimSpace(*req.Username)
		if !usernamePattern.MatchString(name) {
			writeError(w, BadRequestError{Msg: "username must be 3-32 letters, digits, dots, dashes or underscores"})
			return
		}
		req.Username = &name
	}
	if req.StatusType != nil && !storage.ValidStatusType(*req.StatusType) {
		writeError(w, BadRequestError{Msg: "status_type must be offline, online or busy"})
		return
	}
	userID := currentUser(r)
	user, err := s.store.UpdateProfile(r.Context(), userID, storage.ProfileUpdate{
		Username:   req.Username,
		StatusText: req.StatusText,
		StatusType: req.StatusType,
	})
	if err != nil {
		if errors.Is(err, storage.ErrUserExists) {
			err = ConflictError{Msg: "username already taken"}
		}
		s.fail(w, r, err)
		return
	}
	if user.FirstLogin && user.Username != "" {
		if err := s.store.CompleteFirstLogin(r.Context(), userID); err != nil {
			s.fail(w, r, err)
			return
		}
		user.FirstLogin = false
	}
	writeSuccess(w, http.StatusOK, user)
}

// HandleUser looks a user up by username.
func (s *Server) HandleUser(w http.ResponseWriter, r *http.Request) {
	user, err := s.store.GetUserByUsername(r.Context(), mux.Vars(r)["username"])
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			err = NotFoundError{Msg: "user not found"}
		}
		s.fail(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, user)
}

// HandleFriends lists accepted friends with their live presence.
func (s *Server) HandleFriends(w http.ResponseWriter, r *http.Request) {
	friends, err := s.store.ListFriends(r.Context(), currentUser(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	out := make([]friendDTO, 0, len(friends))
	for _, friend := range friends {
		out = append(out, friendDTO{User: friend, Online: s.online(friend.ID)})
	}
	writeSuccess(w, http.StatusOK, out)
}

// HandleFriendRequests lists pending requests in both directions.
func (s *Server) HandleFriendRequests(w http.ResponseWriter, r *http.Request) {
	userID := currentUser(r)
	incoming, err := s.store.ListIncomingFriendRequests(r.Context(), userID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	outgoing, err := s.store.ListOutgoingFriendRequests(r.Context(), userID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, friendRequestsResponse{
		Incoming: toRequestDTOs(incoming),
		Outgoing: toRequestDTOs(outgoing),
	})
}

func toRequestDTOs(requests []storage.FriendRequest) []friendRequestDTO {
	out := make([]friendRequestDTO, 0, len(requests))
	for _, req := range requests {
		out = append(out, friendRequestDTO{User: req.User, CreatedAt: req.CreatedAt})
	}
	return out
}

// HandleCreateFriendRequest sends a request by username and notifies the
// receiver.
func (s *Server) HandleCreateFriendRequest(w http.ResponseWriter, r *http.Request) {
	var req createFriendRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	username := strings.TrimSpace(req.Username)
	if username == "" {
		writeError(w, BadRequestError{Msg: "username required"})
		return
	}
	ctx := r.Context()
	userID := currentUser(r)
	target, err := s.store.GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			err = NotFoundError{Msg: "user not found"}
		}
		s.fail(w, r, err)
		return
	}
	if err := s.store.CreateFriendRequest(ctx, userID, target.ID); err != nil {
		switch {
		case errors.Is(err, storage.ErrSelfReference):
			err = BadRequestError{Msg: "cannot add yourself"}
		case errors.Is(err, storage.ErrFriendRequestExists):
			err = ConflictError{Msg: "friend request already exists"}
		case errors.Is(err, storage.ErrBlocked):
			err = ForbiddenError{Msg: "cannot send a friend request to this user"}
		}
		s.fail(w, r, err)
		return
	}
	sender, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	notified := s.notify(target.ID, EventFriendRequest, map[string]any{"from": sender})
	writeSuccess(w, http.StatusCreated, notifiedResponse{Notified: notified})
}

// HandleAcceptFriendRequest accepts the request sent by {userID} and
// notifies the requester.
func (s *Server) HandleAcceptFriendRequest(w http.ResponseWriter, r *http.Request) {
	requesterID, err := pathID(r, "userID")
	if err != nil {
		writeError(w, err)
		return
	}
	ctx := r.Context()
	userID := currentUser(r)
	if err := s.store.AcceptFriendRequest(ctx, userID, requesterID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			err = NotFoundError{Msg: "friend request not found"}
		}
		s.fail(w, r, err)
		return
	}
	accepter, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	notified := s.notify(requesterID, EventFriendRequestAccepted, map[string]any{"by": accepter})
	writeSuccess(w, http.StatusOK, notifiedResponse{Notified: notified})
}

// HandleDeleteFriendRequest declines an incoming or cancels an outgoing
// request.
func (s *Server) HandleDeleteFriendRequest(w http.ResponseWriter, r *http.Request) {
	s.deleteRelation(w, r, storage.FriendPending, "friend request not found")
}

// HandleRemoveFriend ends a friendship.
func (s *Server) HandleRemoveFriend(w http.ResponseWriter, r *http.Request) {
	s.deleteRelation(w, r, storage.FriendAccepted, "friend not found")
}

func (s *Server) deleteRelation(w http.ResponseWriter, r *http.Request, status, notFound string) {
	otherID, err := pathID(r, "userID")
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.store.DeleteFriendship(r.Context(), currentUser(r), otherID, status); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			err = NotFoundError{Msg: notFound}
		}
		s.fail(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, nil)
}

// HandleBlock blocks {userID}.
func (s *Server) HandleBlock(w http.ResponseWriter, r *http.Request) {
	targetID, err := pathID(r, "userID")
	if err != nil {
		writeError(w, err)
		return
	}
	ctx := r.Context()
	if _, err := s.store.GetUserByID(ctx, targetID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			err = NotFoundError{Msg: "user not found"}
		}
		s.fail(w, r, err)
		return
	}
	if err := s.store.BlockUser(ctx, currentUser(r), targetID); err != nil {
		if errors.Is(err, storage.ErrSelfReference) {
			err = BadRequestError{Msg: "cannot block yourself"}
		}
		s.fail(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, nil)
}
