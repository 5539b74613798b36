package auth

import (
	"context"
	"errors"
	"strings"
)

// Membership resolves the caller's grant in the requested business scope.
// A missing grant is ErrForbidden: authentication alone never implies tenant
// access.
func (s *Service) Membership(ctx context.Context, userID, businessID string) (*Membership, error) {
	businessID = strings.TrimSpace(businessID)
	if businessID == "" {
		return nil, ErrForbidden
	}
	m, err := s.store.Memberships(ctx).Find(ctx, userID, businessID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrForbidden
		}
		return nil, err
	}
	return m, nil
}

// CreateBusiness bootstraps a tenant: the creator becomes its OWNER member.
func (s *Service) CreateBusiness(ctx context.Context, ownerID, name string) (*Business, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrValidation
	}
	biz := &Business{Name: name, CreatedAt: s.now().UTC()}
	if err := s.store.Businesses(ctx).Create(ctx, biz); err != nil {
		return nil, err
	}
	member := &Membership{
		UserID:     ownerID,
		BusinessID: biz.ID,
		Role:       RoleOwner,
		CreatedAt:  s.now().UTC(),
	}
	if err := s.store.Memberships(ctx).Create(ctx, member); err != nil {
		return nil, err
	}
	s.auditEvent(ctx, ownerID, ActionBusinessCreated, map[string]string{"business_id": biz.ID, "name": name})
	return biz, nil
}

// MyBusinesses lists the businesses the user belongs to.
func (s *Service) MyBusinesses(ctx context.Context, userID string) ([]*Business, error) {
	return s.store.Businesses(ctx).ListByMember(ctx, userID)
}
