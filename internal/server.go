package internal

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"hermes/internal/auth"
	"hermes/internal/realtime"
	"hermes/internal/storage"
)

const (
	maxBodyBytes = 64 * 1024

	AuthRateLimit  = 20
	AuthRateWindow = time.Minute
)

// Events pushed to clients through the dispatcher.
const (
	EventFriendRequest         = "friendRequest"
	EventFriendRequestAccepted = "friendRequestAccepted"
	EventChatCreated           = "chatCreated"
	EventNewMessage            = "newMessage"
)

// ServerOptions carries the collaborators and settings of a Server.
type ServerOptions struct {
	Store      *storage.Store
	Sessions   auth.SessionStore
	Providers  map[storage.Provider]*auth.Provider
	State      *auth.StateSigner
	Hub        *realtime.Hub
	Dispatcher *realtime.Dispatcher
	Metrics    *Metrics
	Logger     zerolog.Logger

	// FrontendURL receives the browser after a successful login. When
	// empty the callback answers with the session as JSON.
	FrontendURL    string
	AllowedOrigins []string
	SessionTTL     time.Duration
	SecureCookies  bool
	TrustProxy     bool
	AuthLimiter    *RateLimiter
}

// Server holds the HTTP handlers of the chat backend.
type Server struct {
	store       *storage.Store
	sessions    auth.SessionStore
	providers   map[storage.Provider]*auth.Provider
	state       *auth.StateSigner
	hub         *realtime.Hub
	dispatcher  *realtime.Dispatcher
	metrics     *Metrics
	authLimiter *RateLimiter
	logger      zerolog.Logger

	frontendURL    string
	allowedOrigins []string
	sessionTTL     time.Duration
	secureCookies  bool
	trustProxy     bool
}

// NewServer validates opts and returns a Server.
func NewServer(opts ServerOptions) (*Server, error) {
	switch {
	case opts.Store == nil:
		return nil, errors.New("store is required")
	case opts.Sessions == nil:
		return nil, errors.New("session store is required")
	case opts.State == nil:
		return nil, errors.New("state signer is required")
	case opts.Hub == nil || opts.Dispatcher == nil:
		return nil, errors.New("realtime hub and dispatcher are required")
	}
	if opts.Metrics == nil {
		opts.Metrics = NewMetrics()
	}
	if opts.AuthLimiter == nil {
		opts.AuthLimiter = NewRateLimiter(AuthRateLimit, AuthRateWindow)
	}
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = auth.DefaultSessionTTL
	}
	if opts.Providers == nil {
		opts.Providers = map[storage.Provider]*auth.Provider{}
	}
	opts.Metrics.Track(opts.Hub.Count, opts.Dispatcher.OnlineUsers)
	return &Server{
		store:          opts.Store,
		sessions:       opts.Sessions,
		providers:      opts.Providers,
		state:          opts.State,
		hub:            opts.Hub,
		dispatcher:     opts.Dispatcher,
		metrics:        opts.Metrics,
		authLimiter:    opts.AuthLimiter,
		logger:         opts.Logger.With().Str("component", "http").Logger(),
		frontendURL:    strings.TrimRight(opts.FrontendURL, "/"),
		allowedOrigins: opts.AllowedOrigins,
		sessionTTL:     opts.SessionTTL,
		secureCookies:  opts.SecureCookies,
		trustProxy:     opts.TrustProxy,
	}, nil
}

// Router builds the route table wrapped in CORS.
func (s *Server) Router() http.Handler {
	r := mux.NewRouter()
	r.MethodNotAllowedHandler = http.HandlerFunc(methodNotAllowed)
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, NotFoundError{Msg: "route not found"})
	})

	requireSession := auth.RequireSession(s.sessions, s.denySession, s.logger)

	// Registered ahead of /auth/{provider} so "logout" is never taken for
	// a provider name.
	logout := r.PathPrefix("/auth/logout").Subrouter()
	logout.Use(requireSession)
	logout.HandleFunc("", s.HandleLogout).Methods(http.MethodPost)

	// Public routes
	r.HandleFunc("/healthz", s.HandleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", s.metrics).Methods(http.MethodGet)
	r.HandleFunc("/auth/{provider}", s.limit(s.HandleLogin)).Methods(http.MethodGet)
	r.HandleFunc("/auth/{provider}/callback", s.limit(s.HandleCallback)).Methods(http.MethodGet)

	// Secured routes
	ws := r.PathPrefix("/ws").Subrouter()
	ws.Use(requireSession)
	ws.HandleFunc("", s.hub.ServeWS).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.Use(requireSession)
	api.HandleFunc("/me", s.HandleMe).Methods(http.MethodGet)
	api.HandleFunc("/me", s.HandleUpdateMe).Methods(http.MethodPatch)
	api.HandleFunc("/users/{username}", s.HandleUser).Methods(http.MethodGet)

	api.HandleFunc("/friends", s.HandleFriends).Methods(http.MethodGet)
	api.HandleFunc("/friends/requests", s.HandleFriendRequests).Methods(http.MethodGet)
	api.HandleFunc("/friends/requests", s.HandleCreateFriendRequest).Methods(http.MethodPost)
	api.HandleFunc("/friends/requests/{userID:[0-9]+}/accept", s.HandleAcceptFriendRequest).Methods(http.MethodPost)
	api.HandleFunc("/friends/requests/{userID:[0-9]+}", s.HandleDeleteFriendRequest).Methods(http.MethodDelete)
	api.HandleFunc("/friends/{userID:[0-9]+}", s.HandleRemoveFriend).Methods(http.MethodDelete)
	api.HandleFunc("/friends/{userID:[0-9]+}/block", s.HandleBlock).Methods(http.MethodPost)

	api.HandleFunc("/chats", s.HandleListChats).Methods(http.MethodGet)
	api.HandleFunc("/chats", s.HandleCreateChat).Methods(http.MethodPost)
	api.HandleFunc("/chats/{chatID:[0-9]+}/messages", s.HandleListMessages).Methods(http.MethodGet)
	api.HandleFunc("/chats/{chatID:[0-9]+}/messages", s.HandleSendMessage).Methods(http.MethodPost)

	if len(s.allowedOrigins) == 0 {
		return r
	}
	cors := handlers.CORS(
		handlers.AllowedOrigins(s.allowedOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Content-Type", "Authorization"}),
		handlers.AllowCredentials(),
	)
	return cors(r)
}

// HandleHealth reports whether the database answers.
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.store.Ping(ctx); err != nil {
		s.logger.Error().Err(err).Msg("Health check failed")
		writeJSON(w, http.StatusServiceUnavailable, APIResponse{Success: false, Error: "database unavailable"})
		return
	}
	writeSuccess(w, http.StatusOK, map[string]string{"status": "ok", "version": Version})
}

func (s *Server) limit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.authLimiter.Allow(clientIP(r, s.trustProxy)) {
			s.metrics.IncRateLimited()
			writeError(w, TooManyRequestsError{Msg: "too many requests"})
			return
		}
		next(w, r)
	}
}

func (s *Server) denySession(w http.ResponseWriter, _ *http.Request, err error) {
	if errors.Is(err, auth.ErrSessionNotFound) {
		writeError(w, UnauthorizedError{Msg: "Your session is invalid or expired. Please log in again."})
		return
	}
	writeError(w, InternalServerError{Msg: "Error processing request."})
}

// fail logs unexpected errors before writing the response.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	var apiErr APIError
	if !errors.As(err, &apiErr) {
		s.logger.Error().Err(err).Str("method", r.Method).Str("path", r.URL.Path).Msg("Request failed")
	}
	writeError(w, err)
}

// notify pushes event to userID and records the outcome.
func (s *Server) notify(userID int64, event string, payload any) bool {
	delivered := s.dispatcher.Notify(presenceID(userID), event, payload)
	s.metrics.ObserveNotify(delivered)
	return delivered
}

func (s *Server) online(userID int64) bool {
	return s.dispatcher.Online(presenceID(userID))
}

func presenceID(userID int64) realtime.UserID {
	return realtime.UserID(strconv.FormatInt(userID, 10))
}

func currentUser(r *http.Request) int64 {
	id, _ := auth.UserIDFrom(r.Context())
	return id
}

func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(mux.Vars(r)[name], 10, 64)
	if err != nil || id <= 0 {
		return 0, BadRequestError{Msg: "invalid " + name}
	}
	return id, nil
}
