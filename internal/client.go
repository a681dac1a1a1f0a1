package internal

import (
	"errors"
	"net/url"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
)

// WatchOptions configures the watch client.
type WatchOptions struct {
	ServerURL string
	Token     string
	UserID    string
}

// RunWatch opens the event viewer and blocks until the user quits.
func RunWatch(opts WatchOptions) error {
	if opts.Token == "" {
		return errors.New("session token is required")
	}
	socketURL, err := SocketURL(opts.ServerURL)
	if err != nil {
		return err
	}
	model, err := NewWatchModel(socketURL, opts.Token, opts.UserID)
	if err != nil {
		return err
	}
	program := tea.NewProgram(model, tea.WithAltScreen())
	_, err = program.Run()
	return err
}

// SocketURL accepts an http(s) or ws(s) base and returns the /ws endpoint.
func SocketURL(base string) (string, error) {
	base = strings.TrimSpace(base)
	if base == "" {
		return "", errors.New("server URL is required")
	}
	parsed, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	switch parsed.Scheme {
	case "http":
		parsed.Scheme = "ws"
	case "https":
		parsed.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", errors.New("server URL must use http, https, ws or wss")
	}
	if parsed.Host == "" {
		return "", errors.New("server URL needs a host")
	}
	path := strings.TrimRight(parsed.Path, "/")
	if !strings.HasSuffix(path, "/ws") {
		path += "/ws"
	}
	parsed.Path = path
	parsed.RawQuery = ""
	parsed.Fragment = ""
	return parsed.String(), nil
}
