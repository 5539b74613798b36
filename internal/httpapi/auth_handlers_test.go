package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"slotbase.org/internal/auth"
)

func newTestAPI(t *testing.T) *API {
	t.Helper()
	codec, err := auth.NewCodec(auth.CodecConfig{
		AccessSecret:  "access-secret-for-tests",
		RefreshSecret: "refresh-secret-for-tests",
	})
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}
	svc, err := auth.NewService(auth.NewMemStore(), codec)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return New(Config{Auth: svc, Codec: codec, Version: "test"})
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any, mod func(*http.Request)) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if mod != nil {
		mod(req)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
}

func refreshCookie(rec *httptest.ResponseRecorder) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == refreshCookieName {
			return c
		}
	}
	return nil
}

func registerUser(t *testing.T, api *API, email string) (access string, cookie *http.Cookie) {
	t.Helper()
	rec := doJSON(t, api.Handler(), http.MethodPost, "/auth/register",
		map[string]string{"email": email, "password": "hunter2hunter2"}, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("register: status %d body %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		AccessToken string `json:"accessToken"`
	}
	decodeBody(t, rec, &resp)
	c := refreshCookie(rec)
	if c == nil {
		t.Fatal("register did not set the refresh cookie")
	}
	return resp.AccessToken, c
}

func TestRegisterLoginFlow(t *testing.T) {
	api := newTestAPI(t)
	h := api.Handler()

	rec := doJSON(t, h, http.MethodPost, "/auth/register",
		map[string]string{"email": "flow@example.com", "password": "hunter2hunter2"}, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("register: status %d body %s", rec.Code, rec.Body.String())
	}
	var reg struct {
		User        auth.PublicUser `json:"user"`
		AccessToken string          `json:"accessToken"`
	}
	decodeBody(t, rec, &reg)
	if reg.User.Email != "flow@example.com" || reg.AccessToken == "" {
		t.Fatalf("unexpected register response: %+v", reg)
	}
	c := refreshCookie(rec)
	if c == nil || !c.HttpOnly || c.Path != refreshCookiePath {
		t.Fatalf("refresh cookie misconfigured: %+v", c)
	}
	if bytes.Contains(rec.Body.Bytes(), []byte(c.Value)) {
		t.Fatal("refresh token leaked into the response body")
	}

	// Duplicate registration.
	rec = doJSON(t, h, http.MethodPost, "/auth/register",
		map[string]string{"email": "flow@example.com", "password": "hunter2hunter2"}, nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("duplicate register: status %d", rec.Code)
	}

	// Weak password.
	rec = doJSON(t, h, http.MethodPost, "/auth/register",
		map[string]string{"email": "weak@example.com", "password": "short"}, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("weak password: status %d", rec.Code)
	}

	// Login.
	rec = doJSON(t, h, http.MethodPost, "/auth/login",
		map[string]string{"email": "flow@example.com", "password": "hunter2hunter2"}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("login: status %d body %s", rec.Code, rec.Body.String())
	}

	// Bad credentials are a 401 either way.
	rec = doJSON(t, h, http.MethodPost, "/auth/login",
		map[string]string{"email": "flow@example.com", "password": "wrong-password"}, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("bad password: status %d", rec.Code)
	}
	rec = doJSON(t, h, http.MethodPost, "/auth/login",
		map[string]string{"email": "nobody@example.com", "password": "hunter2hunter2"}, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("unknown email: status %d", rec.Code)
	}
}

func TestRefreshRotationViaCookie(t *testing.T) {
	api := newTestAPI(t)
	h := api.Handler()
	_, c1 := registerUser(t, api, "rotate@example.com")

	rec := doJSON(t, h, http.MethodPost, "/auth/refresh", nil, func(r *http.Request) {
		r.AddCookie(c1)
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("refresh: status %d body %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		AccessToken string `json:"accessToken"`
	}
	decodeBody(t, rec, &resp)
	if resp.AccessToken == "" {
		t.Fatal("refresh returned no access token")
	}
	c2 := refreshCookie(rec)
	if c2 == nil || c2.Value == c1.Value {
		t.Fatal("refresh must rotate the cookie")
	}

	// Replaying the consumed cookie kills the whole session family.
	rec = doJSON(t, h, http.MethodPost, "/auth/refresh", nil, func(r *http.Request) {
		r.AddCookie(c1)
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("replayed refresh: status %d", rec.Code)
	}
	if cleared := refreshCookie(rec); cleared == nil || cleared.MaxAge != -1 {
		t.Fatalf("replay must clear the cookie, got %+v", cleared)
	}

	// The rotated descendant is dead too.
	rec = doJSON(t, h, http.MethodPost, "/auth/refresh", nil, func(r *http.Request) {
		r.AddCookie(c2)
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("descendant refresh after reuse: status %d", rec.Code)
	}
}

func TestRefreshViaBodyFallback(t *testing.T) {
	api := newTestAPI(t)
	h := api.Handler()
	_, c1 := registerUser(t, api, "body@example.com")

	rec := doJSON(t, h, http.MethodPost, "/auth/refresh",
		map[string]string{"refreshToken": c1.Value}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("refresh via body: status %d body %s", rec.Code, rec.Body.String())
	}
}

func TestRefreshWithoutToken(t *testing.T) {
	api := newTestAPI(t)
	rec := doJSON(t, api.Handler(), http.MethodPost, "/auth/refresh", nil, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("refresh without token: status %d", rec.Code)
	}
}

func TestMeAndLogoutAll(t *testing.T) {
	api := newTestAPI(t)
	h := api.Handler()
	access, c1 := registerUser(t, api, "me@example.com")

	rec := doJSON(t, h, http.MethodGet, "/auth/me", nil, func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer "+access)
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("me: status %d body %s", rec.Code, rec.Body.String())
	}
	var id auth.Identity
	decodeBody(t, rec, &id)
	if id.Email != "me@example.com" || id.Role != auth.RoleCustomer {
		t.Fatalf("unexpected identity: %+v", id)
	}

	// Without a token the guard rejects.
	rec = doJSON(t, h, http.MethodGet, "/auth/me", nil, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("me without token: status %d", rec.Code)
	}

	rec = doJSON(t, h, http.MethodPost, "/auth/logout-all", nil, func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer "+access)
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("logout-all: status %d", rec.Code)
	}
	if cleared := refreshCookie(rec); cleared == nil || cleared.MaxAge != -1 {
		t.Fatal("logout-all must clear the refresh cookie")
	}

	// Every refresh session is gone.
	rec = doJSON(t, h, http.MethodPost, "/auth/refresh", nil, func(r *http.Request) {
		r.AddCookie(c1)
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("refresh after logout-all: status %d", rec.Code)
	}
}

func TestBusinessScope(t *testing.T) {
	api := newTestAPI(t)
	h := api.Handler()
	access, _ := registerUser(t, api, "tenant@example.com")
	outsider, _ := registerUser(t, api, "outsider@example.com")

	rec := doJSON(t, h, http.MethodPost, "/businesses",
		map[string]string{"name": "Corner Barbers"}, func(r *http.Request) {
			r.Header.Set("Authorization", "Bearer "+access)
		})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create business: status %d body %s", rec.Code, rec.Body.String())
	}
	var biz businessResponse
	decodeBody(t, rec, &biz)

	// Member sees their role in scope.
	rec = doJSON(t, h, http.MethodGet, "/businesses/me", nil, func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer "+access)
		r.Header.Set(businessHeader, biz.ID)
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("business me: status %d body %s", rec.Code, rec.Body.String())
	}
	var scope struct {
		BusinessID string    `json:"businessId"`
		Role       auth.Role `json:"role"`
	}
	decodeBody(t, rec, &scope)
	if scope.BusinessID != biz.ID || scope.Role != auth.RoleOwner {
		t.Fatalf("unexpected scope: %+v", scope)
	}

	// Authenticated but not a member: 403.
	rec = doJSON(t, h, http.MethodGet, "/businesses/me", nil, func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer "+outsider)
		r.Header.Set(businessHeader, biz.ID)
	})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("outsider: status %d", rec.Code)
	}

	// Missing scope header: 403.
	rec = doJSON(t, h, http.MethodGet, "/businesses/me", nil, func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer "+access)
	})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("missing scope header: status %d", rec.Code)
	}

	// Listing.
	rec = doJSON(t, h, http.MethodGet, "/businesses", nil, func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer "+access)
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("list businesses: status %d", rec.Code)
	}
	var list struct {
		Businesses []businessResponse `json:"businesses"`
	}
	decodeBody(t, rec, &list)
	if len(list.Businesses) != 1 || list.Businesses[0].ID != biz.ID {
		t.Fatalf("unexpected list: %+v", list)
	}
}

func TestHealthAndInfo(t *testing.T) {
	api := newTestAPI(t)
	h := api.Handler()

	rec := doJSON(t, h, http.MethodGet, "/healthz", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("healthz: status %d", rec.Code)
	}
	rec = doJSON(t, h, http.MethodGet, "/readyz", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("readyz: status %d", rec.Code)
	}
	rec = doJSON(t, h, http.MethodGet, "/v1/info", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("info: status %d", rec.Code)
	}
}
