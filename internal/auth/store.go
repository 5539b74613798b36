package auth

import "context"

// Store describes persistence operations required by the auth subsystem.
type Store interface {
	Users(ctx context.Context) UserStore
	Sessions(ctx context.Context) SessionStore
	Businesses(ctx context.Context) BusinessStore
	Memberships(ctx context.Context) MembershipStore
	Audit(ctx context.Context) AuditStore
}

// UserStore manages identity records.
type UserStore interface {
	Create(ctx context.Context, u *User) error
	Find(ctx context.Context, id string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
}

// SessionStore manages refresh session lifecycle. There is deliberately no
// way to clear RevokedAt: a revoked session stays revoked.
type SessionStore interface {
	Create(ctx context.Context, s *RefreshSession) error

	// FindActive returns the session for (userID, tokenHash) only if it is
	// not revoked and not expired; ErrNotFound otherwise.
	FindActive(ctx context.Context, userID, tokenHash string) (*RefreshSession, error)

	// Revoke marks one session revoked. It is conditional on the session
	// still being active: of two concurrent revokes for the same session,
	// exactly one succeeds and the other gets ErrNotFound.
	Revoke(ctx context.Context, id string) error

	// RevokeAllActive revokes every active session of the user and returns
	// how many were affected. Idempotent.
	RevokeAllActive(ctx context.Context, userID string) (int64, error)
}

// BusinessStore manages tenant scopes.
type BusinessStore interface {
	Create(ctx context.Context, b *Business) error
	Find(ctx context.Context, id string) (*Business, error)
	ListByMember(ctx context.Context, userID string) ([]*Business, error)
}

// MembershipStore manages user-to-business grants.
type MembershipStore interface {
	Create(ctx context.Context, m *Membership) error
	Find(ctx context.Context, userID, businessID string) (*Membership, error)
}

// AuditStore appends immutable entries.
type AuditStore interface {
	Append(ctx context.Context, entry *AuditEntry) error
}
