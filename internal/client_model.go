package internal

import (
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/gorilla/websocket"
)

const maxWatchEvents = 500

// watchEvent is one rendered line of the event log.
type watchEvent struct {
	At      time.Time
	Event   string
	Summary string
	System  bool
}

// WatchModel is the Bubble Tea model of the watch client: a live log of
// realtime events for one user.
type WatchModel struct {
	socketURL string
	baseURL   string
	token     string
	userID    string
	username  string

	conn       *websocket.Conn
	writeMutex sync.Mutex

	viewport      viewport.Model
	spinner       spinner.Model
	ready         bool
	events        []watchEvent
	isConnected   bool
	connectionErr error
	attempt       int
	friendsOnline int
	friendsTotal  int
}

// NewWatchModel builds a model for socketURL (ws:// or wss://). userID may
// be empty, in which case it is resolved through /api/me on connect.
func NewWatchModel(socketURL, token, userID string) (*WatchModel, error) {
	base, err := httpBaseFromSocketURL(socketURL)
	if err != nil {
		return nil, err
	}
	spin := spinner.New()
	spin.Spinner = spinner.Dot
	spin.Style = connectingStyle
	return &WatchModel{
		socketURL: socketURL,
		baseURL:   base,
		token:     token,
		userID:    userID,
		spinner:   spin,
		events:    make([]watchEvent, 0, 64),
	}, nil
}

func (model *WatchModel) Init() tea.Cmd {
	return tea.Batch(model.spinner.Tick, model.connectCmd())
}

func (model *WatchModel) appendEvent(ev watchEvent) {
	model.events = append(model.events, ev)
	if len(model.events) > maxWatchEvents {
		model.events = model.events[len(model.events)-maxWatchEvents:]
	}
	if model.ready {
		model.viewport.SetContent(model.renderEvents())
		model.viewport.GotoBottom()
	}
}

func (model *WatchModel) systemNotice(text string) {
	model.appendEvent(watchEvent{At: time.Now(), Summary: text, System: true})
}
