package app

import (
	"errors"
	"fmt"
	"os"

	intrnl "hermes/internal"
)

// ResolveWatch fills missing server and token values from the session
// file and, when asked, saves the resolved pair back.
func ResolveWatch(cfg WatchConfig) (WatchConfig, error) {
	if cfg.SessionPath == "" {
		cfg.SessionPath = DefaultSessionPath()
	}
	if cfg.Token == "" || cfg.ServerURL == "" {
		saved, err := intrnl.LoadSession(cfg.SessionPath)
		switch {
		case err == nil:
			if cfg.Token == "" {
				cfg.Token = saved.Token
			}
			if cfg.ServerURL == "" {
				cfg.ServerURL = saved.Server
			}
			if cfg.UserID == "" {
				cfg.UserID = saved.UserID
			}
		case errors.Is(err, os.ErrNotExist):
		default:
			return cfg, fmt.Errorf("read session file: %w", err)
		}
	}
	if cfg.ServerURL == "" {
		return cfg, errors.New("server URL is required")
	}
	if cfg.Token == "" {
		return cfg, errors.New("session token is required, pass --token or log in through the browser")
	}
	if cfg.Save {
		session := intrnl.SessionFile{Server: cfg.ServerURL, Token: cfg.Token, UserID: cfg.UserID}
		if err := intrnl.SaveSession(cfg.SessionPath, session); err != nil {
			return cfg, fmt.Errorf("save session: %w", err)
		}
	}
	return cfg, nil
}

// RunWatch launches the Bubble Tea event viewer.
func RunWatch(cfg WatchConfig) error {
	resolved, err := ResolveWatch(cfg)
	if err != nil {
		return err
	}
	return intrnl.RunWatch(intrnl.WatchOptions{
		ServerURL: resolved.ServerURL,
		Token:     resolved.Token,
		UserID:    resolved.UserID,
	})
}
