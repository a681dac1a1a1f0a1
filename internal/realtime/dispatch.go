package realtime

import (
	"github.com/rs/zerolog"
)

// Sender pushes one encoded frame to a connection. Implementations must not
// block; a false return means the frame was dropped.
type Sender interface {
	Send(conn ConnID, frame []byte) bool
}

// Dispatcher is the only view request handlers get of the registry. It
// answers presence questions and performs best-effort pushes.
type Dispatcher struct {
	registry *Registry
	sender   Sender
	logger   zerolog.Logger
}

// NewDispatcher returns a dispatcher that looks users up in registry and
// writes frames through sender.
func NewDispatcher(registry *Registry, sender Sender, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		registry: registry,
		sender:   sender,
		logger:   logger.With().Str("component", "dispatcher").Logger(),
	}
}

// Notify sends event with payload to user if the user is connected. It
// returns true when a send was attempted and false when the user has no live
// connection (or payload cannot be encoded). Delivery is at most once: there
// is no queue, retry or acknowledgement, so callers that need durability
// must persist first.
func (d *Dispatcher) Notify(user UserID, event string, payload any) bool {
	conns := d.registry.Connections(user)
	if len(conns) == 0 {
		return false
	}
	frame, err := EncodeEvent(event, payload)
	if err != nil {
		d.logger.Error().Err(err).Str("event", event).Str("user", string(user)).Msg("encode event")
		return false
	}
	for _, conn := range conns {
		if !d.sender.Send(conn, frame) {
			d.logger.Debug().Str("event", event).Str("conn", string(conn)).Msg("frame dropped")
		}
	}
	return true
}

// Online reports whether user currently has a live connection.
func (d *Dispatcher) Online(user UserID) bool {
	return d.registry.Online(user)
}

// OnlineUsers returns the number of users with a live connection.
func (d *Dispatcher) OnlineUsers() int {
	return d.registry.Users()
}
