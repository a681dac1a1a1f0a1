package realtime

import (
	"github.com/rs/zerolog"
)

// Ingress turns transport lifecycle signals into registry mutations. The
// transport must deliver signals for one connection in causal order:
// connect, at most one authenticate, disconnect.
//
// The claimed user id in an authenticate signal is not verified here; the
// HTTP session that served the socket upgrade is the trust boundary.
type Ingress struct {
	registry *Registry
	logger   zerolog.Logger
}

// NewIngress wires an ingress to registry.
func NewIngress(registry *Registry, logger zerolog.Logger) *Ingress {
	return &Ingress{
		registry: registry,
		logger:   logger.With().Str("component", "presence_ingress").Logger(),
	}
}

// OnConnect is called when the transport accepts a connection. The
// connection stays anonymous until it authenticates, so nothing is recorded.
func (in *Ingress) OnConnect(conn ConnID) {
	in.logger.Debug().Str("conn", string(conn)).Msg("connection opened")
}

// OnAuthenticate binds conn to user.
func (in *Ingress) OnAuthenticate(conn ConnID, user UserID) {
	if conn == "" || user == "" {
		in.logger.Warn().Str("conn", string(conn)).Msg("ignoring authenticate with empty identifier")
		return
	}
	in.registry.Set(user, conn)
	in.logger.Info().Str("conn", string(conn)).Str("user", string(user)).Msg("connection authenticated")
}

// OnDisconnect drops whatever binding conn still holds.
func (in *Ingress) OnDisconnect(conn ConnID) {
	user, ok := in.registry.Remove(conn)
	if !ok {
		in.logger.Debug().Str("conn", string(conn)).Msg("connection closed")
		return
	}
	in.logger.Info().Str("conn", string(conn)).Str("user", string(user)).Msg("connection closed")
}
