package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"
	"golang.org/x/oauth2/google"

	"hermes/internal/storage"
)

const (
	googleUserInfoURL  = "https://www.googleapis.com/oauth2/v3/userinfo"
	githubUserInfoURL  = "https://api.github.com/user"
	discordUserInfoURL = "https://discord.com/api/users/@me"
	discordAvatarURL   = "https://cdn.discordapp.com/avatars/%s/%s.png"

	maxProfileBytes = 1 << 20
)

var discordEndpoint = oauth2.Endpoint{
	AuthURL:  "https://discord.com/api/oauth2/authorize",
	TokenURL: "https://discord.com/api/oauth2/token",
}

// Profile is the subset of a provider account the server keeps.
type Profile struct {
	ID      string
	Name    string
	Picture string
}

// Credentials are the OAuth client id and secret of one provider.
type Credentials struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
}

// Enabled reports whether the provider has a client configured.
func (c Credentials) Enabled() bool {
	return c.ClientID != "" && c.ClientSecret != ""
}

// Provider couples an oauth2 config with the endpoint that returns the
// signed-in account.
type Provider struct {
	Name        storage.Provider
	Config      *oauth2.Config
	UserInfoURL string
	parse       func([]byte) (Profile, error)
}

// ProviderCredentials groups the client credentials of every provider.
type ProviderCredentials struct {
	Google  Credentials `yaml:"google"`
	GitHub  Credentials `yaml:"github"`
	Discord Credentials `yaml:"discord"`
}

// NewProviders builds every provider that has credentials. Callback URLs
// are publicURL + /auth/{provider}/callback.
func NewProviders(publicURL string, creds ProviderCredentials) map[storage.Provider]*Provider {
	base := strings.TrimRight(publicURL, "/")
	providers := make(map[storage.Provider]*Provider)
	add := func(name storage.Provider, c Credentials, endpoint oauth2.Endpoint, scopes []string, userInfo string, parse func([]byte) (Profile, error)) {
		if !c.Enabled() {
			return
		}
		providers[name] = &Provider{
			Name: name,
			Config: &oauth2.Config{
				ClientID:     c.ClientID,
				ClientSecret: c.ClientSecret,
				Endpoint:     endpoint,
				RedirectURL:  base + "/auth/" + string(name) + "/callback",
				Scopes:       scopes,
			},
			UserInfoURL: userInfo,
			parse:       parse,
		}
	}
	add(storage.ProviderGoogle, creds.Google, google.Endpoint, []string{"profile"}, googleUserInfoURL, parseGoogleProfile)
	add(storage.ProviderGitHub, creds.GitHub, github.Endpoint, []string{"read:user"}, githubUserInfoURL, parseGitHubProfile)
	add(storage.ProviderDiscord, creds.Discord, discordEndpoint, []string{"identify"}, discordUserInfoURL, parseDiscordProfile)
	return providers
}

// AuthCodeURL returns the provider consent page for state.
func (p *Provider) AuthCodeURL(state string) string {
	return p.Config.AuthCodeURL(state)
}

// Authenticate exchanges the callback code and fetches the account profile.
func (p *Provider) Authenticate(ctx context.Context, code string) (Profile, error) {
	if code == "" {
		return Profile{}, errors.New("missing authorization code")
	}
	token, err := p.Config.Exchange(ctx, code)
	if err != nil {
		return Profile{}, fmt.Errorf("exchange code: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.UserInfoURL, nil)
	if err != nil {
		return Profile{}, err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := p.Config.Client(ctx, token).Do(req)
	if err != nil {
		return Profile{}, fmt.Errorf("fetch %s profile: %w", p.Name, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Profile{}, fmt.Errorf("fetch %s profile: unexpected status %s", p.Name, resp.Status)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxProfileBytes))
	if err != nil {
		return Profile{}, err
	}
	profile, err := p.parse(body)
	if err != nil {
		return Profile{}, fmt.Errorf("decode %s profile: %w", p.Name, err)
	}
	if profile.ID == "" {
		return Profile{}, fmt.Errorf("%s profile has no id", p.Name)
	}
	return profile, nil
}

func parseGoogleProfile(body []byte) (Profile, error) {
	var payload struct {
		Sub     string `json:"sub"`
		Name    string `json:"name"`
		Picture string `json:"picture"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return Profile{}, err
	}
	return Profile{ID: payload.Sub, Name: payload.Name, Picture: payload.Picture}, nil
}

func parseGitHubProfile(body []byte) (Profile, error) {
	var payload struct {
		ID        int64  `json:"id"`
		Login     string `json:"login"`
		Name      string `json:"name"`
		AvatarURL string `json:"avatar_url"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return Profile{}, err
	}
	profile := Profile{Name: payload.Name, Picture: payload.AvatarURL}
	if payload.ID != 0 {
		profile.ID = strconv.FormatInt(payload.ID, 10)
	}
	if profile.Name == "" {
		profile.Name = payload.Login
	}
	return profile, nil
}

func parseDiscordProfile(body []byte) (Profile, error) {
	var payload struct {
		ID         string `json:"id"`
		Username   string `json:"username"`
		GlobalName string `json:"global_name"`
		Avatar     string `json:"avatar"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return Profile{}, err
	}
	profile := Profile{ID: payload.ID, Name: payload.GlobalName}
	if profile.Name == "" {
		profile.Name = payload.Username
	}
	if payload.Avatar != "" && payload.ID != "" {
		profile.Picture = fmt.Sprintf(discordAvatarURL, payload.ID, payload.Avatar)
	}
	return profile, nil
}
