package internal

import (
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"hermes/internal/auth"
	"hermes/internal/storage"
)

type sessionResponse struct {
	Token     string        `json:"token"`
	ExpiresAt time.Time     `json:"expires_at"`
	User      *storage.User `json:"user"`
}

func (s *Server) provider(r *http.Request) (*auth.Provider, error) {
	name := storage.Provider(mux.Vars(r)["provider"])
	p, ok := s.providers[name]
	if !ok {
		return nil, NotFoundError{Msg: "unknown login provider"}
	}
	return p, nil
}

// HandleLogin redirects to the provider consent page.
func (s *Server) HandleLogin(w http.ResponseWriter, r *http.Request) {
	p, err := s.provider(r)
	if err != nil {
		writeError(w, err)
		return
	}
	state, err := s.state.Issue(string(p.Name))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     auth.StateCookieName,
		Value:    state,
		Path:     "/auth",
		MaxAge:   int(s.state.TTL().Seconds()),
		HttpOnly: true,
		Secure:   s.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, p.AuthCodeURL(state), http.StatusFound)
}

// HandleCallback completes the OAuth flow and opens a session.
func (s *Server) HandleCallback(w http.ResponseWriter, r *http.Request) {
	p, err := s.provider(r)
	if err != nil {
		writeError(w, err)
		return
	}
	log := s.logger.With().Str("provider", string(p.Name)).Logger()

	query := r.URL.Query()
	if reason := query.Get("error"); reason != "" {
		log.Info().Str("reason", reason).Msg("Provider denied login")
		writeError(w, UnauthorizedError{Msg: "login was cancelled"})
		return
	}
	cookie, err := r.Cookie(auth.StateCookieName)
	state := query.Get("state")
	if err != nil || state == "" || cookie.Value != state {
		writeError(w, UnauthorizedError{Msg: "login state mismatch"})
		return
	}
	http.SetCookie(w, &http.Cookie{Name: auth.StateCookieName, Value: "", Path: "/auth", MaxAge: -1, HttpOnly: true})
	if err := s.state.Verify(state, string(p.Name)); err != nil {
		log.Warn().Err(err).Msg("Rejected OAuth state")
		writeError(w, UnauthorizedError{Msg: "login state mismatch"})
		return
	}

	profile, err := p.Authenticate(r.Context(), query.Get("code"))
	if err != nil {
		log.Warn().Err(err).Msg("OAuth exchange failed")
		writeError(w, UnauthorizedError{Msg: "login failed"})
		return
	}
	user, created, err := s.store.FindOrCreateOAuthUser(r.Context(), p.Name, profile.ID, profile.Picture)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if created {
		s.metrics.IncSignup()
		log.Info().Int64("user_id", user.ID).Msg("Created user")
	}
	token, expiresAt, err := s.sessions.Create(r.Context(), user.ID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.metrics.IncLogin()
	log.Info().Int64("user_id", user.ID).Msg("User logged in")

	http.SetCookie(w, &http.Cookie{
		Name:     auth.SessionCookieName,
		Value:    token,
		Path:     "/",
		Expires:  expiresAt,
		HttpOnly: true,
		Secure:   s.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})
	if s.frontendURL != "" {
		http.Redirect(w, r, s.frontendURL, http.StatusFound)
		return
	}
	writeSuccess(w, http.StatusOK, sessionResponse{Token: token, ExpiresAt: expiresAt, User: user})
}

// HandleLogout ends the current session.
func (s *Server) HandleLogout(w http.ResponseWriter, r *http.Request) {
	token := auth.TokenFromRequest(r)
	if err := s.sessions.Delete(r.Context(), token); err != nil && !errors.Is(err, auth.ErrSessionNotFound) {
		s.fail(w, r, err)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     auth.SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})
	s.metrics.IncLogout()
	s.logger.Info().Int64("user_id", currentUser(r)).Msg("User logged out")
	writeSuccess(w, http.StatusOK, nil)
}
