package auth

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"

	"slotbase.org/internal/ids"
)

var _ Store = (*PGStore)(nil)

// PGStore implements Store using PostgreSQL.
type PGStore struct {
	db *sql.DB
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) Users(context.Context) UserStore       { return &pgUserStore{db: s.db} }
func (s *PGStore) Sessions(context.Context) SessionStore { return &pgSessionStore{db: s.db} }
func (s *PGStore) Businesses(context.Context) BusinessStore {
	return &pgBusinessStore{db: s.db}
}
func (s *PGStore) Memberships(context.Context) MembershipStore {
	return &pgMembershipStore{db: s.db}
}
func (s *PGStore) Audit(context.Context) AuditStore { return &pgAuditStore{db: s.db} }

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// User store ---------------------------------------------------------------
type pgUserStore struct{ db *sql.DB }

func (s *pgUserStore) Create(ctx context.Context, u *User) error {
	if u.ID == "" {
		u.ID = ids.New()
	}
	_, err := s.db.ExecContext(ctx,
		`insert into users(id, email, password_hash, role) values($1,$2,$3,$4)`,
		u.ID, u.Email, u.PasswordHash, u.Role,
	)
	if isUniqueViolation(err) {
		return ErrAlreadyExists
	}
	return err
}

func (s *pgUserStore) Find(ctx context.Context, id string) (*User, error) {
	row := s.db.QueryRowContext(ctx,
		`select id, email, password_hash, role, created_at from users where id=$1`, id)
	return scanUser(row)
}

func (s *pgUserStore) FindByEmail(ctx context.Context, email string) (*User, error) {
	row := s.db.QueryRowContext(ctx,
		`select id, email, password_hash, role, created_at from users where email=$1`, email)
	return scanUser(row)
}

func scanUser(row *sql.Row) (*User, error) {
	var u User
	if err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Role, &u.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

// Session store ------------------------------------------------------------
type pgSessionStore struct{ db *sql.DB }

func (s *pgSessionStore) Create(ctx context.Context, sess *RefreshSession) error {
	if sess.ID == "" {
		sess.ID = ids.New()
	}
	_, err := s.db.ExecContext(ctx,
		`insert into refresh_sessions(id, user_id, token_hash, expires_at) values($1,$2,$3,$4)`,
		sess.ID, sess.UserID, sess.TokenHash, sess.ExpiresAt,
	)
	return err
}

func (s *pgSessionStore) FindActive(ctx context.Context, userID, tokenHash string) (*RefreshSession, error) {
	row := s.db.QueryRowContext(ctx,
		`select id, user_id, token_hash, expires_at, revoked_at, created_at
		 from refresh_sessions
		 where user_id=$1 and token_hash=$2 and revoked_at is null and expires_at > now()`,
		userID, tokenHash)
	var (
		sess    RefreshSession
		revoked sql.NullTime
	)
	if err := row.Scan(&sess.ID, &sess.UserID, &sess.TokenHash, &sess.ExpiresAt, &revoked, &sess.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if revoked.Valid {
		t := revoked.Time
		sess.RevokedAt = &t
	}
	return &sess, nil
}

// Revoke is the serialization point of the rotation protocol: the conditional
// update guarantees at most one caller consumes a given active session.
func (s *pgSessionStore) Revoke(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`update refresh_sessions set revoked_at=now() where id=$1 and revoked_at is null`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *pgSessionStore) RevokeAllActive(ctx context.Context, userID string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`update refresh_sessions set revoked_at=now() where user_id=$1 and revoked_at is null`, userID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Business store -----------------------------------------------------------
type pgBusinessStore struct{ db *sql.DB }

func (s *pgBusinessStore) Create(ctx context.Context, b *Business) error {
	if b.ID == "" {
		b.ID = ids.New()
	}
	_, err := s.db.ExecContext(ctx,
		`insert into businesses(id, name) values($1,$2)`, b.ID, b.Name)
	return err
}

func (s *pgBusinessStore) Find(ctx context.Context, id string) (*Business, error) {
	row := s.db.QueryRowContext(ctx,
		`select id, name, created_at from businesses where id=$1`, id)
	var b Business
	if err := row.Scan(&b.ID, &b.Name, &b.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &b, nil
}

func (s *pgBusinessStore) ListByMember(ctx context.Context, userID string) ([]*Business, error) {
	rows, err := s.db.QueryContext(ctx,
		`select b.id, b.name, b.created_at from businesses b
		 join memberships m on m.business_id=b.id
		 where m.user_id=$1 order by b.created_at`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []*Business
	for rows.Next() {
		var b Business
		if err := rows.Scan(&b.ID, &b.Name, &b.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, &b)
	}
	return res, rows.Err()
}

// Membership store ---------------------------------------------------------
type pgMembershipStore struct{ db *sql.DB }

func (s *pgMembershipStore) Create(ctx context.Context, m *Membership) error {
	_, err := s.db.ExecContext(ctx,
		`insert into memberships(user_id, business_id, role) values($1,$2,$3)
		 on conflict (user_id, business_id) do nothing`,
		m.UserID, m.BusinessID, m.Role,
	)
	return err
}

func (s *pgMembershipStore) Find(ctx context.Context, userID, businessID string) (*Membership, error) {
	row := s.db.QueryRowContext(ctx,
		`select user_id, business_id, role, created_at from memberships
		 where user_id=$1 and business_id=$2`, userID, businessID)
	var m Membership
	if err := row.Scan(&m.UserID, &m.BusinessID, &m.Role, &m.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &m, nil
}

// Audit store --------------------------------------------------------------
type pgAuditStore struct{ db *sql.DB }

func (s *pgAuditStore) Append(ctx context.Context, entry *AuditEntry) error {
	if entry.ID == "" {
		entry.ID = ids.New()
	}
	meta, _ := json.Marshal(entry.Metadata)
	_, err := s.db.ExecContext(ctx,
		`insert into audit_log(id, occurred_at, actor_id, action, entity_type, entity_id, request_id, metadata)
		 values($1,$2,$3,$4,$5,$6,$7,$8)`,
		entry.ID, entry.OccurredAt, entry.ActorID, entry.Action,
		entry.EntityType, entry.EntityID, entry.RequestID, meta,
	)
	return err
}
