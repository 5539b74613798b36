package httpapi

import (
	"net/http"

	"slotbase.org/internal/auth"
)

const (
	refreshCookieName = "rt"
	refreshCookiePath = "/auth/refresh"
)

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type authResponse struct {
	User        auth.PublicUser `json:"user"`
	AccessToken string          `json:"accessToken"`
}

func (a *API) setRefreshCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookieName,
		Value:    token,
		Path:     refreshCookiePath,
		MaxAge:   int(a.codec.TTL(auth.RefreshToken).Seconds()),
		HttpOnly: true,
		Secure:   a.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}

func (a *API) clearRefreshCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookieName,
		Value:    "",
		Path:     refreshCookiePath,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   a.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}

func (a *API) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := a.allowAttempt(r, "register", req.Email); err != nil {
		writeAuthError(w, err)
		return
	}

	result, err := a.auth.Register(r.Context(), req.Email, req.Password)
	if err != nil {
		writeAuthError(w, err)
		return
	}

	a.setRefreshCookie(w, result.Tokens.RefreshToken)
	writeJSON(w, http.StatusCreated, authResponse{
		User:        result.User,
		AccessToken: result.Tokens.AccessToken,
	})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := a.allowAttempt(r, "login", req.Email); err != nil {
		writeAuthError(w, err)
		return
	}

	result, err := a.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeAuthError(w, err)
		return
	}

	a.setRefreshCookie(w, result.Tokens.RefreshToken)
	writeJSON(w, http.StatusOK, authResponse{
		User:        result.User,
		AccessToken: result.Tokens.AccessToken,
	})
}

// handleRefresh reads the refresh token cookie-first, body as fallback, and
// rotates it.
func (a *API) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var token string
	if c, err := r.Cookie(refreshCookieName); err == nil && c.Value != "" {
		token = c.Value
	} else {
		var req refreshRequest
		if err := decodeJSON(r, &req); err == nil {
			token = req.RefreshToken
		}
	}

	pair, err := a.auth.Refresh(r.Context(), token)
	if err != nil {
		// A reuse detection just revoked every session; the cookie is dead
		// either way.
		a.clearRefreshCookie(w)
		writeAuthError(w, err)
		return
	}

	a.setRefreshCookie(w, pair.RefreshToken)
	writeJSON(w, http.StatusOK, map[string]any{
		"accessToken": pair.AccessToken,
	})
}

func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	id, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeAuthError(w, auth.ErrUnauthenticated)
		return
	}
	writeJSON(w, http.StatusOK, id)
}

func (a *API) handleLogoutAll(w http.ResponseWriter, r *http.Request) {
	id, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeAuthError(w, auth.ErrUnauthenticated)
		return
	}
	if err := a.auth.RevokeAllSessions(r.Context(), id.UserID); err != nil {
		writeAuthError(w, err)
		return
	}
	a.clearRefreshCookie(w)
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// allowAttempt throttles a credential attempt by identifier and client IP.
func (a *API) allowAttempt(r *http.Request, scope, email string) error {
	ctx := r.Context()
	if err := a.throttle.Allow(ctx, scope, auth.NormalizeEmail(email)); err != nil {
		return err
	}
	return a.throttle.Allow(ctx, scope+"_ip", clientIP(r))
}
