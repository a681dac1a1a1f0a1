package internal

import (
	"net/http"
	"sync/atomic"
)

// Metrics counts auth and notification activity. Connection and presence
// figures are read live from the gauges passed to Track.
type Metrics struct {
	logins      atomic.Uint64
	logouts     atomic.Uint64
	signups     atomic.Uint64
	delivered   atomic.Uint64
	dropped     atomic.Uint64
	rateLimited atomic.Uint64
	connections atomic.Pointer[func() int]
	onlineUsers atomic.Pointer[func() int]
}

func NewMetrics() *Metrics {
	return &Metrics{}
}

// Track installs the gauges for open sockets and authenticated users.
func (m *Metrics) Track(connections, onlineUsers func() int) {
	m.connections.Store(&connections)
	m.onlineUsers.Store(&onlineUsers)
}

func (m *Metrics) IncLogin() {
	m.logins.Add(1)
}

func (m *Metrics) IncSignup() {
	m.signups.Add(1)
}

func (m *Metrics) IncLogout() {
	m.logouts.Add(1)
}

func (m *Metrics) IncRateLimited() {
	m.rateLimited.Add(1)
}

// ObserveNotify records the outcome of one Notify call.
func (m *Metrics) ObserveNotify(delivered bool) {
	if delivered {
		m.delivered.Add(1)
		return
	}
	m.dropped.Add(1)
}

func gauge(p *atomic.Pointer[func() int]) int {
	fn := p.Load()
	if fn == nil || *fn == nil {
		return 0
	}
	return (*fn)()
}

// Snapshot returns the current values keyed by metric name.
func (m *Metrics) Snapshot() map[string]any {
	return map[string]any{
		"logins_total":            m.logins.Load(),
		"signups_total":           m.signups.Load(),
		"logouts_total":           m.logouts.Load(),
		"rate_limited_total":      m.rateLimited.Load(),
		"notifications_delivered": m.delivered.Load(),
		"notifications_dropped":   m.dropped.Load(),
		"active_connections":      gauge(&m.connections),
		"authenticated_users":     gauge(&m.onlineUsers),
	}
}

func (m *Metrics) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, m.Snapshot())
}
