package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"slotbase.org/internal/ids"
	"slotbase.org/internal/obs"
)

const minPasswordLength = 8

// dummyHash is compared against when the email is unknown so that login
// latency does not reveal whether an account exists. Cost matches bcryptCost.
const dummyHash = "$2a$12$R9h/cIPz0gi.URNNX3kh2OPST9/PgBkqquzi.Ss7KIUgO2t0jWMUW"

// Auditor receives best-effort audit entries. Implementations must never
// block the caller; failures stay on their own channel.
type Auditor interface {
	Record(ctx context.Context, entry AuditEntry)
}

// Service orchestrates the register/login/refresh/logout flows and owns the
// rotation-and-reuse-detection state machine.
type Service struct {
	store Store
	codec *Codec
	audit Auditor
	now   func() time.Time
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service)

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// WithAuditor wires the audit sink. Without one, audit is a no-op.
func WithAuditor(a Auditor) ServiceOption {
	return func(s *Service) {
		s.audit = a
	}
}

// NewService constructs the auth protocol engine.
func NewService(store Store, codec *Codec, opts ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, errors.New("auth: store is required")
	}
	if codec == nil {
		return nil, errors.New("auth: codec is required")
	}
	svc := &Service{store: store, codec: codec, now: time.Now}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// NormalizeEmail trims and lowercases an email for storage and lookup.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register creates a new lowest-privilege account and signs it in.
func (s *Service) Register(ctx context.Context, email, password string) (*AuthResult, error) {
	email = NormalizeEmail(email)
	if email == "" || len(password) < minPasswordLength {
		return nil, ErrValidation
	}

	users := s.store.Users(ctx)
	if _, err := users.FindByEmail(ctx, email); err == nil {
		return nil, ErrDuplicateUser
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	hash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}
	user := &User{
		ID:           ids.New(),
		Email:        email,
		PasswordHash: hash,
		Role:         RoleCustomer,
		CreatedAt:    s.now().UTC(),
	}
	if err := users.Create(ctx, user); err != nil {
		if errors.Is(err, ErrAlreadyExists) {
			return nil, ErrDuplicateUser
		}
		return nil, err
	}

	pair, err := s.issue(ctx, user)
	if err != nil {
		return nil, err
	}
	s.auditEvent(ctx, user.ID, ActionRegister, map[string]string{"email": email})

	return &AuthResult{User: user.Public(), Tokens: pair}, nil
}

// Login authenticates credentials and issues a fresh token pair. Unknown
// email and wrong password are indistinguishable to the caller.
func (s *Service) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	email = NormalizeEmail(email)

	user, err := s.store.Users(ctx).FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			// Burn the same bcrypt work as the real path.
			_ = VerifyPassword(dummyHash, password)
			obs.ObserveLogin("failure")
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if err := VerifyPassword(user.PasswordHash, password); err != nil {
		s.auditEvent(ctx, user.ID, ActionLoginFail, map[string]string{"email": email})
		obs.ObserveLogin("failure")
		return nil, ErrInvalidCredentials
	}

	pair, err := s.issue(ctx, user)
	if err != nil {
		return nil, err
	}
	s.auditEvent(ctx, user.ID, ActionLoginSuccess, map[string]string{"email": email})
	obs.ObserveLogin("success")

	return &AuthResult{User: user.Public(), Tokens: pair}, nil
}

// Refresh rotates a refresh token. A structurally valid token without an
// active session is treated as theft: every session of that user is revoked
// and the caller gets ErrTokenRevoked.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	claims, err := s.codec.Verify(RefreshToken, refreshToken)
	if err != nil {
		return nil, ErrInvalidToken
	}
	userID := claims.Subject
	tokenHash := HashToken(refreshToken)

	sessions := s.store.Sessions(ctx)
	sess, err := sessions.FindActive(ctx, userID, tokenHash)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, s.handleReuse(ctx, userID)
		}
		return nil, err
	}

	// Rotation: the presented token is consumed here. If a concurrent
	// refresh beat us to it, the conditional update fails and we fall into
	// the reuse branch instead of silently double-issuing.
	if err := sessions.Revoke(ctx, sess.ID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, s.handleReuse(ctx, userID)
		}
		return nil, err
	}

	user, err := s.store.Users(ctx).Find(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	pair, err := s.issue(ctx, user)
	if err != nil {
		return nil, err
	}
	s.auditEvent(ctx, userID, ActionRefresh, nil)
	obs.RefreshRotated()

	return &pair, nil
}

func (s *Service) handleReuse(ctx context.Context, userID string) error {
	n, err := s.store.Sessions(ctx).RevokeAllActive(ctx, userID)
	if err != nil {
		return err
	}
	s.auditEvent(ctx, userID, ActionRefreshReuse, nil)
	obs.ReuseDetected()
	obs.SessionsRevoked(n)
	return ErrTokenRevoked
}

// RevokeAllSessions is logout-everywhere. It is a successful no-op when the
// user has no active sessions.
func (s *Service) RevokeAllSessions(ctx context.Context, userID string) error {
	n, err := s.store.Sessions(ctx).RevokeAllActive(ctx, userID)
	if err != nil {
		return err
	}
	s.auditEvent(ctx, userID, ActionRevokeAllSessions, nil)
	obs.SessionsRevoked(n)
	return nil
}

// issue signs an access+refresh pair and persists the refresh session.
func (s *Service) issue(ctx context.Context, user *User) (TokenPair, error) {
	id := Identity{UserID: user.ID, Email: user.Email, Role: user.Role}

	access, err := s.codec.Sign(AccessToken, id)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, err := s.codec.Sign(RefreshToken, id)
	if err != nil {
		return TokenPair{}, err
	}

	sess := &RefreshSession{
		ID:        ids.New(),
		UserID:    user.ID,
		TokenHash: HashToken(refresh),
		ExpiresAt: s.now().UTC().Add(s.codec.TTL(RefreshToken)),
	}
	if err := s.store.Sessions(ctx).Create(ctx, sess); err != nil {
		return TokenPair{}, err
	}
	return TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

func (s *Service) auditEvent(ctx context.Context, actorID, action string, meta map[string]string) {
	if s.audit == nil {
		return
	}
	s.audit.Record(ctx, AuditEntry{
		OccurredAt: s.now().UTC(),
		ActorID:    actorID,
		Action:     action,
		EntityType: "AUTH",
		EntityID:   actorID,
		Metadata:   meta,
	})
}
