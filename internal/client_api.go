package internal

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"hermes/internal/storage"
)

var (
	httpTimeout = 5 * time.Second
)

// SessionFile is what the watch client persists between runs.
type SessionFile struct {
	Server string `json:"server"`
	Token  string `json:"token"`
	UserID string `json:"user_id,omitempty"`
}

func apiMe(baseURL, token string) (*storage.User, error) {
	var user storage.User
	if err := doJSONRequest(http.MethodGet, baseURL+"/api/me", token, nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

func apiFriends(baseURL, token string) ([]friendDTO, error) {
	var friends []friendDTO
	if err := doJSONRequest(http.MethodGet, baseURL+"/api/friends", token, nil, &friends); err != nil {
		return nil, err
	}
	return friends, nil
}

// doJSONRequest sends payload and unwraps the response envelope into out.
func doJSONRequest(method, endpoint, token string, payload interface{}, out interface{}) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, endpoint, body)
	if err != nil {
		return err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("User-Agent", "hermes-watch/"+Version)
	client := &http.Client{Timeout: httpTimeout}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var envelope struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
		Error   string          `json:"error"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&envelope); err != nil {
		return fmt.Errorf("%s: %w", resp.Status, err)
	}
	if resp.StatusCode >= 300 || !envelope.Success {
		msg := envelope.Error
		if msg == "" {
			msg = resp.Status
		}
		if resp.StatusCode == http.StatusUnauthorized {
			return fmt.Errorf("%w: %s", errUnauthorized, msg)
		}
		return errors.New(msg)
	}
	if out == nil || len(envelope.Data) == 0 {
		return nil
	}
	return json.Unmarshal(envelope.Data, out)
}

func httpBaseFromSocketURL(wsURL string) (string, error) {
	parsed, err := url.Parse(wsURL)
	if err != nil {
		return "", err
	}
	switch parsed.Scheme {
	case "ws":
		parsed.Scheme = "http"
	case "wss":
		parsed.Scheme = "https"
	default:
		return "", fmt.Errorf("unsupported scheme %s", parsed.Scheme)
	}
	parsed.Path = ""
	parsed.RawQuery = ""
	parsed.Fragment = ""
	return strings.TrimRight(parsed.String(), "/"), nil
}

// LoadSession reads a session written by SaveSession.
func LoadSession(path string) (*SessionFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var session SessionFile
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, err
	}
	if session.Token == "" {
		return nil, errors.New("session file incomplete")
	}
	return &session, nil
}

// SaveSession writes session atomically with owner-only permissions.
func SaveSession(path string, session SessionFile) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(session, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// DeleteSession removes the session file if present.
func DeleteSession(path string) error {
	if path == "" {
		return nil
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
