package auth

import (
	"context"
	"sync"
	"time"

	"slotbase.org/internal/ids"
)

var _ Store = (*MemStore)(nil)

// MemStore is an in-memory Store. It backs tests and the zero-config dev
// server; the conditional-revoke guarantee holds under the store mutex.
type MemStore struct {
	mu          sync.Mutex
	users       map[string]*User
	byEmail     map[string]string
	sessions    map[string]*RefreshSession
	businesses  map[string]*Business
	memberships map[string]map[string]*Membership
	audit       []*AuditEntry
}

func NewMemStore() *MemStore {
	return &MemStore{
		users:       make(map[string]*User),
		byEmail:     make(map[string]string),
		sessions:    make(map[string]*RefreshSession),
		businesses:  make(map[string]*Business),
		memberships: make(map[string]map[string]*Membership),
	}
}

func (s *MemStore) Users(context.Context) UserStore             { return (*memUserStore)(s) }
func (s *MemStore) Sessions(context.Context) SessionStore       { return (*memSessionStore)(s) }
func (s *MemStore) Businesses(context.Context) BusinessStore    { return (*memBusinessStore)(s) }
func (s *MemStore) Memberships(context.Context) MembershipStore { return (*memMembershipStore)(s) }
func (s *MemStore) Audit(context.Context) AuditStore            { return (*memAuditStore)(s) }

// AuditEntries returns a snapshot of appended entries, oldest first.
func (s *MemStore) AuditEntries() []*AuditEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*AuditEntry, len(s.audit))
	copy(out, s.audit)
	return out
}

type memUserStore MemStore

func (s *memUserStore) Create(_ context.Context, u *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u.ID == "" {
		u.ID = ids.New()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	if _, ok := s.byEmail[u.Email]; ok {
		return ErrAlreadyExists
	}
	cp := *u
	s.users[u.ID] = &cp
	s.byEmail[u.Email] = u.ID
	return nil
}

func (s *memUserStore) Find(_ context.Context, id string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *memUserStore) FindByEmail(_ context.Context, email string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byEmail[email]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *s.users[id]
	return &cp, nil
}

type memSessionStore MemStore

func (s *memSessionStore) Create(_ context.Context, sess *RefreshSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess.ID == "" {
		sess.ID = ids.New()
	}
	if sess.CreatedAt.IsZero() {
		sess.CreatedAt = time.Now().UTC()
	}
	cp := *sess
	s.sessions[sess.ID] = &cp
	return nil
}

func (s *memSessionStore) FindActive(_ context.Context, userID, tokenHash string) (*RefreshSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	for _, sess := range s.sessions {
		if sess.UserID == userID && sess.TokenHash == tokenHash && sess.Active(now) {
			cp := *sess
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *memSessionStore) Revoke(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok || sess.RevokedAt != nil {
		return ErrNotFound
	}
	now := time.Now().UTC()
	sess.RevokedAt = &now
	return nil
}

func (s *memSessionStore) RevokeAllActive(_ context.Context, userID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	var n int64
	for _, sess := range s.sessions {
		if sess.UserID == userID && sess.Active(now) {
			t := now
			sess.RevokedAt = &t
			n++
		}
	}
	return n, nil
}

type memBusinessStore MemStore

func (s *memBusinessStore) Create(_ context.Context, b *Business) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b.ID == "" {
		b.ID = ids.New()
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now().UTC()
	}
	cp := *b
	s.businesses[b.ID] = &cp
	return nil
}

func (s *memBusinessStore) Find(_ context.Context, id string) (*Business, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.businesses[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *b
	return &cp, nil
}

func (s *memBusinessStore) ListByMember(_ context.Context, userID string) ([]*Business, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var res []*Business
	for bizID := range s.memberships[userID] {
		if b, ok := s.businesses[bizID]; ok {
			cp := *b
			res = append(res, &cp)
		}
	}
	return res, nil
}

type memMembershipStore MemStore

func (s *memMembershipStore) Create(_ context.Context, m *Membership) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	byBiz, ok := s.memberships[m.UserID]
	if !ok {
		byBiz = make(map[string]*Membership)
		s.memberships[m.UserID] = byBiz
	}
	if _, exists := byBiz[m.BusinessID]; exists {
		return nil
	}
	cp := *m
	byBiz[m.BusinessID] = &cp
	return nil
}

func (s *memMembershipStore) Find(_ context.Context, userID, businessID string) (*Membership, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.memberships[userID][businessID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *m
	return &cp, nil
}

type memAuditStore MemStore

func (s *memAuditStore) Append(_ context.Context, entry *AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry.ID == "" {
		entry.ID = ids.New()
	}
	cp := *entry
	s.audit = append(s.audit, &cp)
	return nil
}
