package internal

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/gorilla/websocket"

	"hermes/internal/realtime"
	"hermes/internal/storage"
)

const (
	reconnectBase = time.Second
	reconnectMax  = 30 * time.Second
	headerHeight  = 4
	footerHeight  = 2
)

type (
	connectedMsg struct {
		conn          *websocket.Conn
		userID        string
		username      string
		friendsOnline int
		friendsTotal  int
	}
	eventMsg        realtime.Envelope
	disconnectedMsg struct{ err error }
	reconnectMsg    struct{}
)

var errUnauthorized = errors.New("session rejected, log in again")

func (model *WatchModel) Update(message tea.Msg) (tea.Model, tea.Cmd) {
	switch typedMessage := message.(type) {
	case tea.KeyMsg:
		switch typedMessage.String() {
		case "ctrl+c", "esc", "q":
			model.closeConn()
			return model, tea.Quit
		case "c":
			model.events = model.events[:0]
			if model.ready {
				model.viewport.SetContent(model.renderEvents())
			}
			return model, nil
		}
		var cmd tea.Cmd
		model.viewport, cmd = model.viewport.Update(typedMessage)
		return model, cmd

	case tea.WindowSizeMsg:
		height := typedMessage.Height - headerHeight - footerHeight
		if height < 3 {
			height = 3
		}
		if !model.ready {
			model.viewport = viewport.New(typedMessage.Width, height)
			model.ready = true
		} else {
			model.viewport.Width = typedMessage.Width
			model.viewport.Height = height
		}
		model.viewport.SetContent(model.renderEvents())
		model.viewport.GotoBottom()
		return model, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		model.spinner, cmd = model.spinner.Update(typedMessage)
		return model, cmd

	case connectedMsg:
		model.conn = typedMessage.conn
		model.userID = typedMessage.userID
		if typedMessage.username != "" {
			model.username = typedMessage.username
		}
		model.friendsOnline = typedMessage.friendsOnline
		model.friendsTotal = typedMessage.friendsTotal
		model.isConnected = true
		model.connectionErr = nil
		model.attempt = 0
		model.systemNotice("Connected as user " + model.userID)
		return model, model.readOnceCmd()

	case eventMsg:
		env := realtime.Envelope(typedMessage)
		model.appendEvent(watchEvent{At: time.Now(), Event: env.Event, Summary: summarizeEvent(env)})
		return model, model.readOnceCmd()

	case disconnectedMsg:
		model.closeConn()
		model.isConnected = false
		model.connectionErr = typedMessage.err
		if errors.Is(typedMessage.err, errUnauthorized) {
			model.systemNotice(typedMessage.err.Error())
			return model, nil
		}
		delay := backoff(model.attempt)
		model.attempt++
		model.systemNotice(fmt.Sprintf("Disconnected (%v). Retrying in %s.", typedMessage.err, delay))
		return model, model.scheduleReconnect(delay)

	case reconnectMsg:
		if !model.isConnected {
			return model, model.connectCmd()
		}
		return model, nil
	}
	return model, nil
}

// backoff doubles from one second up to thirty.
func backoff(attempt int) time.Duration {
	delay := reconnectBase
	for i := 0; i < attempt && delay < reconnectMax; i++ {
		delay *= 2
	}
	if delay > reconnectMax {
		delay = reconnectMax
	}
	return delay
}

func (model *WatchModel) scheduleReconnect(delay time.Duration) tea.Cmd {
	return tea.Tick(delay, func(time.Time) tea.Msg {
		return reconnectMsg{}
	})
}

func (model *WatchModel) closeConn() {
	if model.conn == nil {
		return
	}
	model.writeMutex.Lock()
	_ = model.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	model.writeMutex.Unlock()
	_ = model.conn.Close()
	model.conn = nil
}

// connectCmd resolves the user when needed, dials the socket with the
// session token and announces the user with an authenticate event.
func (model *WatchModel) connectCmd() tea.Cmd {
	baseURL, socketURL, token, userID := model.baseURL, model.socketURL, model.token, model.userID
	return func() tea.Msg {
		msg := connectedMsg{userID: userID}
		me, err := apiMe(baseURL, token)
		if err != nil {
			return disconnectedMsg{err: err}
		}
		if msg.userID == "" {
			msg.userID = strconv.FormatInt(me.ID, 10)
		}
		msg.username = me.Username
		if friends, err := apiFriends(baseURL, token); err == nil {
			msg.friendsTotal = len(friends)
			for _, f := range friends {
				if f.Online {
					msg.friendsOnline++
				}
			}
		}

		header := http.Header{"Authorization": []string{"Bearer " + token}}
		conn, resp, err := websocket.DefaultDialer.Dial(socketURL, header)
		if err != nil {
			if resp != nil && resp.StatusCode == http.StatusUnauthorized {
				return disconnectedMsg{err: errUnauthorized}
			}
			return disconnectedMsg{err: err}
		}
		frame, err := realtime.EncodeEvent(realtime.EventAuthenticate, map[string]string{"userId": msg.userID})
		if err == nil {
			err = conn.WriteMessage(websocket.TextMessage, frame)
		}
		if err != nil {
			_ = conn.Close()
			return disconnectedMsg{err: err}
		}
		msg.conn = conn
		return msg
	}
}

// readOnceCmd reads a single frame; it is rescheduled after every event.
func (model *WatchModel) readOnceCmd() tea.Cmd {
	conn := model.conn
	return func() tea.Msg {
		if conn == nil {
			return disconnectedMsg{err: errors.New("websocket not connected")}
		}
		for {
			messageType, payload, err := conn.ReadMessage()
			if err != nil {
				return disconnectedMsg{err: err}
			}
			if messageType != websocket.TextMessage {
				continue
			}
			env, err := realtime.DecodeEnvelope(payload)
			if err != nil {
				env = realtime.Envelope{Event: "raw", Data: mustJSON(string(payload))}
			}
			return eventMsg(env)
		}
	}
}

func mustJSON(v any) json.RawMessage {
	raw, _ := json.Marshal(v)
	return raw
}

// summarizeEvent turns a known event into a one-line description.
func summarizeEvent(env realtime.Envelope) string {
	switch env.Event {
	case EventNewMessage:
		var msg storage.Message
		if json.Unmarshal(env.Data, &msg) == nil {
			return fmt.Sprintf("chat #%d, user %d: %s", msg.ChatID, msg.SenderID, msg.Content)
		}
	case EventFriendRequest:
		var payload struct {
			From storage.User `json:"from"`
		}
		if json.Unmarshal(env.Data, &payload) == nil {
			return "friend request from " + displayName(payload.From)
		}
	case EventFriendRequestAccepted:
		var payload struct {
			By storage.User `json:"by"`
		}
		if json.Unmarshal(env.Data, &payload) == nil {
			return displayName(payload.By) + " accepted your friend request"
		}
	case EventChatCreated:
		var chat storage.Chat
		if json.Unmarshal(env.Data, &chat) == nil {
			if chat.Name != "" {
				return fmt.Sprintf("added to %s chat %q", chat.Type, chat.Name)
			}
			return fmt.Sprintf("added to %s chat #%d", chat.Type, chat.ID)
		}
	case realtime.EventPong:
		return "pong"
	}
	if len(env.Data) == 0 {
		return env.Event
	}
	return string(env.Data)
}

func displayName(user storage.User) string {
	if user.Username != "" {
		return user.Username
	}
	return "user " + strconv.FormatInt(user.ID, 10)
}
