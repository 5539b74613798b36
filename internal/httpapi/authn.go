package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"slotbase.org/internal/auth"
)

const (
	authHeader     = "Authorization"
	bearer         = "Bearer "
	businessHeader = "X-Business-Id"
)

// routeRoles declares, per protected route, the platform roles allowed to
// invoke it. The guard consults this table centrally; routes without an entry
// (or with a nil set) accept any authenticated identity. Business-scoped
// role checks happen against the membership, not this table.
var routeRoles = map[string][]auth.Role{
	"GET /auth/me":          nil,
	"POST /auth/logout-all": nil,
	"POST /businesses":      {auth.RoleOwner, auth.RoleManager, auth.RoleStaff, auth.RoleCustomer},
	"GET /businesses":       nil,
}

// authenticate is the first guard stage: it verifies the bearer access token
// and attaches the decoded identity to the request context.
func (a *API) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, err := extractBearerToken(r.Header.Get(authHeader))
		if err != nil {
			w.Header().Set("WWW-Authenticate", `Bearer realm="slotbase"`)
			writeError(w, http.StatusUnauthorized, err.Error())
			return
		}

		claims, err := a.codec.Verify(auth.AccessToken, token)
		if err != nil {
			w.Header().Set("WWW-Authenticate", `Bearer realm="slotbase", error="invalid_token"`)
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}

		ctx := auth.ContextWithIdentity(r.Context(), claims.Identity())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// restrict enforces the routeRoles declaration for the pattern.
func (a *API) restrict(pattern string, next http.Handler) http.Handler {
	return RequireRoles(routeRoles[pattern], next)
}

// RequireRoles rejects authenticated identities whose role is not in the set.
// An empty set admits every authenticated identity.
func RequireRoles(roles []auth.Role, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := auth.IdentityFromContext(r.Context())
		if !ok {
			w.Header().Set("WWW-Authenticate", `Bearer realm="slotbase"`)
			writeError(w, http.StatusUnauthorized, "authentication required")
			return
		}
		if len(roles) > 0 && !roleAllowed(roles, id.Role) {
			writeError(w, http.StatusForbidden, "role not permitted")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func roleAllowed(roles []auth.Role, role auth.Role) bool {
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}

type membershipContextKey struct{}

// requireMembership is the second guard stage for business-scoped routes:
// the request declares its tenant via the X-Business-Id header and the
// caller must hold a membership in it.
func (a *API) requireMembership(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := auth.IdentityFromContext(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, "authentication required")
			return
		}

		businessID := strings.TrimSpace(r.Header.Get(businessHeader))
		member, err := a.auth.Membership(r.Context(), id.UserID, businessID)
		if err != nil {
			if errors.Is(err, auth.ErrForbidden) {
				writeError(w, http.StatusForbidden, "no membership in business scope")
				return
			}
			writeError(w, http.StatusInternalServerError, "authorization error")
			return
		}

		ctx := context.WithValue(r.Context(), membershipContextKey{}, member)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// membershipFromContext returns the membership resolved by requireMembership.
func membershipFromContext(ctx context.Context) (*auth.Membership, bool) {
	m, ok := ctx.Value(membershipContextKey{}).(*auth.Membership)
	return m, ok && m != nil
}

func extractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errors.New("missing bearer token")
	}
	if !strings.HasPrefix(strings.ToLower(header), strings.ToLower(bearer)) {
		return "", errors.New("invalid authorization scheme")
	}
	token := strings.TrimSpace(header[len(bearer):])
	if token == "" {
		return "", errors.New("missing bearer token")
	}
	return token, nil
}
