package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	intrnl "hermes/internal"
	"hermes/internal/auth"
	"hermes/internal/realtime"
	"hermes/internal/storage"
)

const (
	shutdownTimeout = 5 * time.Second
	sweepInterval   = time.Minute
)

// ServerHandle represents a running HTTP/WebSocket server instance.
type ServerHandle struct {
	addr   string
	server *http.Server
	hub    *realtime.Hub
	store  *storage.Store
	redis  *redis.Client
	logger zerolog.Logger
	stop   chan struct{}
	done   chan struct{}
	err    error
}

// Addr returns the actual listen address (after the OS allocated a port).
func (h *ServerHandle) Addr() string {
	return h.addr
}

// Stop closes every websocket and triggers a graceful shutdown with the
// provided context deadline.
func (h *ServerHandle) Stop(ctx context.Context) error {
	if h == nil || h.server == nil {
		return nil
	}
	if ctx == nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
	}
	h.hub.Close()
	return h.server.Shutdown(ctx)
}

// Wait blocks until the server exits.
func (h *ServerHandle) Wait() error {
	if h == nil {
		return nil
	}
	<-h.done
	return h.err
}

// OpenStore opens the configured database and runs migrations.
func OpenStore(ctx context.Context, db DatabaseConfig) (*storage.Store, error) {
	if db.Driver == "sqlite" {
		if dir := sqliteDir(db.DSN); dir != "" {
			if err := os.MkdirAll(dir, 0o700); err != nil {
				return nil, fmt.Errorf("create db dir: %w", err)
			}
		}
	}
	store, err := storage.Open(db.Driver, db.DSN)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return store, nil
}

// sqliteDir returns the directory holding a sqlite file, or "" for
// in-memory and URI style names.
func sqliteDir(dsn string) string {
	dsn = strings.TrimPrefix(dsn, "sqlite://")
	if dsn == "" || strings.HasPrefix(dsn, ":memory:") || strings.HasPrefix(dsn, "file:") {
		return ""
	}
	return filepath.Dir(dsn)
}

// RunServer wires the store, sessions, OAuth providers and the realtime
// hub, then starts serving in the background. Call Stop/Wait to manage its
// lifecycle; cancelling ctx also stops it.
func RunServer(ctx context.Context, cfg *ServerConfig, logger zerolog.Logger) (*ServerHandle, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if cfg.generatedSecret {
		logger.Warn().Msg("SESSION_SECRET not set, using a random secret for this run")
	}

	store, err := OpenStore(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}

	handle := &ServerHandle{
		store:  store,
		logger: logger.With().Str("component", "server").Logger(),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}

	var sessions auth.SessionStore
	switch cfg.SessionStore {
	case SessionStoreRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := client.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			_ = client.Close()
			_ = store.Close()
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
		redisSessions, err := auth.NewRedisSessionStore(client, cfg.SessionTTL, logger)
		if err != nil {
			_ = client.Close()
			_ = store.Close()
			return nil, err
		}
		handle.redis = client
		sessions = redisSessions
	default:
		sessions = auth.NewSQLSessionStore(store, cfg.SessionTTL)
	}

	signer, err := auth.NewStateSigner(cfg.SessionSecret, 0)
	if err != nil {
		handle.closeBackends()
		return nil, err
	}
	providers := auth.NewProviders(cfg.PublicURL, cfg.Auth)
	if len(providers) == 0 {
		logger.Warn().Msg("no OAuth provider configured, logins are disabled")
	}

	policy, _ := realtime.ParsePolicy(cfg.PresencePolicy)
	registry := realtime.NewRegistry(policy)
	hub := realtime.NewHub(realtime.NewIngress(registry, logger), realtime.HubConfig{
		AllowedOrigins: cfg.AllowedOrigins,
		MaxMessageSize: cfg.WebSocket.MaxMessageSize,
		SendBuffer:     cfg.WebSocket.SendBuffer,
	}, logger)
	handle.hub = hub

	limiter := intrnl.NewRateLimiter(intrnl.AuthRateLimit, intrnl.AuthRateWindow)
	server, err := intrnl.NewServer(intrnl.ServerOptions{
		Store:          store,
		Sessions:       sessions,
		Providers:      providers,
		State:          signer,
		Hub:            hub,
		Dispatcher:     realtime.NewDispatcher(registry, hub, logger),
		Metrics:        intrnl.NewMetrics(),
		Logger:         logger,
		FrontendURL:    cfg.FrontendURL,
		AllowedOrigins: cfg.AllowedOrigins,
		SessionTTL:     cfg.SessionTTL,
		SecureCookies:  cfg.SecureCookies,
		TrustProxy:     cfg.TrustProxy,
		AuthLimiter:    limiter,
	})
	if err != nil {
		hub.Close()
		handle.closeBackends()
		return nil, err
	}

	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	listener, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		hub.Close()
		handle.closeBackends()
		return nil, fmt.Errorf("listen: %w", err)
	}
	handle.addr = listener.Addr().String()
	handle.server = httpServer

	go func() {
		select {
		case <-ctx.Done():
		case <-handle.stop:
			return
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := handle.Stop(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			handle.logger.Error().Err(err).Msg("server shutdown error")
		}
	}()
	go handle.sweep(limiter, cfg.SessionStore == SessionStoreSQL)
	go handle.serve(listener)

	handle.logger.Info().
		Str("addr", handle.addr).
		Str("db", cfg.Database.Driver).
		Str("sessions", cfg.SessionStore).
		Str("presence", cfg.PresencePolicy).
		Int("providers", len(providers)).
		Msg("hermes listening")
	return handle, nil
}

// sweep trims idle rate limiter keys and, with SQL sessions, purges
// expired rows.
func (h *ServerHandle) sweep(limiter *intrnl.RateLimiter, sqlSessions bool) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-h.stop:
			return
		case <-ticker.C:
			limiter.Sweep()
			if !sqlSessions {
				continue
			}
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			n, err := h.store.DeleteExpiredSessions(ctx, time.Now())
			cancel()
			if err != nil {
				h.logger.Warn().Err(err).Msg("purge expired sessions")
			} else if n > 0 {
				h.logger.Debug().Int64("purged", n).Msg("expired sessions removed")
			}
		}
	}
}

func (h *ServerHandle) serve(listener net.Listener) {
	defer close(h.done)
	err := h.server.Serve(listener)
	if errors.Is(err, http.ErrServerClosed) {
		err = nil
	}
	close(h.stop)
	h.hub.Close()
	h.closeBackends()
	h.err = err
}

func (h *ServerHandle) closeBackends() {
	if h.redis != nil {
		if err := h.redis.Close(); err != nil {
			h.logger.Error().Err(err).Msg("redis close error")
		}
	}
	if err := h.store.Close(); err != nil {
		h.logger.Error().Err(err).Msg("store close error")
	}
}
