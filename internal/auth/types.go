package auth

import "time"

// Role is the platform-level role carried inside tokens. Businesses grant
// finer-grained roles through memberships.
type Role string

const (
	RoleOwner    Role = "OWNER"
	RoleManager  Role = "MANAGER"
	RoleStaff    Role = "STAFF"
	RoleCustomer Role = "CUSTOMER"
)

// Valid reports whether the role is one of the known values.
func (r Role) Valid() bool {
	switch r {
	case RoleOwner, RoleManager, RoleStaff, RoleCustomer:
		return true
	}
	return false
}

// User is an identity record. PasswordHash never leaves the auth package.
type User struct {
	ID           string
	Email        string
	PasswordHash string
	Role         Role
	CreatedAt    time.Time
}

// PublicUser is the externally visible projection of a User.
type PublicUser struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"createdAt"`
}

// Public strips credentials from the user record.
func (u *User) Public() PublicUser {
	return PublicUser{ID: u.ID, Email: u.Email, Role: u.Role, CreatedAt: u.CreatedAt}
}

// RefreshSession tracks one issued refresh token by hash. A session is active
// while RevokedAt is nil and ExpiresAt is in the future. Sessions are never
// deleted, only revoked; the rows double as an audit trail.
type RefreshSession struct {
	ID        string
	UserID    string
	TokenHash string
	ExpiresAt time.Time
	RevokedAt *time.Time
	CreatedAt time.Time
}

// Active reports whether the session can still be redeemed at the given time.
func (s *RefreshSession) Active(now time.Time) bool {
	return s.RevokedAt == nil && now.Before(s.ExpiresAt)
}

// Business is a tenant scope. Protected business resources require a
// membership in it.
type Business struct {
	ID        string
	Name      string
	CreatedAt time.Time
}

// Membership links a user to a business with a business-scoped role.
type Membership struct {
	UserID     string
	BusinessID string
	Role       Role
	CreatedAt  time.Time
}

// AuditEntry is an append-only record of an auth-relevant action. Writing it
// is best-effort; failures never abort the flow being audited.
type AuditEntry struct {
	ID         string
	OccurredAt time.Time
	ActorID    string
	Action     string
	EntityType string
	EntityID   string
	RequestID  string
	Metadata   map[string]string
}

// Audit action tags, kept stable for downstream alerting.
const (
	ActionRegister          = "AUTH_REGISTER"
	ActionLoginSuccess      = "AUTH_LOGIN_SUCCESS"
	ActionLoginFail         = "AUTH_LOGIN_FAIL"
	ActionRefresh           = "AUTH_REFRESH"
	ActionRefreshReuse      = "AUTH_REFRESH_REUSE_DETECTED"
	ActionRevokeAllSessions = "AUTH_REVOKE_ALL_SESSIONS"
	ActionBusinessCreated   = "BUSINESS_CREATED"
)

// Identity is the decoded token subject attached to request contexts.
type Identity struct {
	UserID string `json:"sub"`
	Email  string `json:"email"`
	Role   Role   `json:"role"`
}

// TokenPair is one access/refresh issuance.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// AuthResult is returned by Register and Login.
type AuthResult struct {
	User   PublicUser
	Tokens TokenPair
}
