package auth

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"slotbase.org/internal/ids"
)

// sqliteSchema mirrors the Postgres migration. SQLite is the single-node and
// development backend; the contract is identical.
const sqliteSchema = `
create table if not exists users (
	id text primary key,
	email text not null unique,
	password_hash text not null,
	role text not null,
	created_at timestamp not null default current_timestamp
);
create table if not exists refresh_sessions (
	id text primary key,
	user_id text not null references users(id),
	token_hash text not null,
	expires_at timestamp not null,
	revoked_at timestamp,
	created_at timestamp not null default current_timestamp
);
create index if not exists idx_refresh_sessions_lookup
	on refresh_sessions(user_id, token_hash) where revoked_at is null;
create table if not exists businesses (
	id text primary key,
	name text not null,
	created_at timestamp not null default current_timestamp
);
create table if not exists memberships (
	user_id text not null references users(id),
	business_id text not null references businesses(id),
	role text not null,
	created_at timestamp not null default current_timestamp,
	primary key (user_id, business_id)
);
create table if not exists audit_log (
	id text primary key,
	occurred_at timestamp not null,
	actor_id text not null,
	action text not null,
	entity_type text not null,
	entity_id text not null,
	request_id text,
	metadata text
);
`

var _ Store = (*SQLiteStore)(nil)

// SQLiteStore implements Store on an embedded SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the database at path and applies the
// schema.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// The driver serializes writes; a single connection avoids SQLITE_BUSY
	// under concurrent revokes.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply sqlite schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) Users(context.Context) UserStore       { return &liteUserStore{db: s.db} }
func (s *SQLiteStore) Sessions(context.Context) SessionStore { return &liteSessionStore{db: s.db} }
func (s *SQLiteStore) Businesses(context.Context) BusinessStore {
	return &liteBusinessStore{db: s.db}
}
func (s *SQLiteStore) Memberships(context.Context) MembershipStore {
	return &liteMembershipStore{db: s.db}
}
func (s *SQLiteStore) Audit(context.Context) AuditStore { return &liteAuditStore{db: s.db} }

// User store ---------------------------------------------------------------
type liteUserStore struct{ db *sql.DB }

func (s *liteUserStore) Create(ctx context.Context, u *User) error {
	if u.ID == "" {
		u.ID = ids.New()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`insert into users(id, email, password_hash, role, created_at) values(?,?,?,?,?)`,
		u.ID, u.Email, u.PasswordHash, string(u.Role), u.CreatedAt,
	)
	if err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return ErrAlreadyExists
	}
	return err
}

func (s *liteUserStore) Find(ctx context.Context, id string) (*User, error) {
	row := s.db.QueryRowContext(ctx,
		`select id, email, password_hash, role, created_at from users where id=?`, id)
	return scanLiteUser(row)
}

func (s *liteUserStore) FindByEmail(ctx context.Context, email string) (*User, error) {
	row := s.db.QueryRowContext(ctx,
		`select id, email, password_hash, role, created_at from users where email=?`, email)
	return scanLiteUser(row)
}

func scanLiteUser(row *sql.Row) (*User, error) {
	var (
		u    User
		role string
	)
	if err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &role, &u.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	u.Role = Role(role)
	return &u, nil
}

// Session store ------------------------------------------------------------
type liteSessionStore struct{ db *sql.DB }

func (s *liteSessionStore) Create(ctx context.Context, sess *RefreshSession) error {
	if sess.ID == "" {
		sess.ID = ids.New()
	}
	if sess.CreatedAt.IsZero() {
		sess.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`insert into refresh_sessions(id, user_id, token_hash, expires_at, created_at) values(?,?,?,?,?)`,
		sess.ID, sess.UserID, sess.TokenHash, sess.ExpiresAt.UTC(), sess.CreatedAt,
	)
	return err
}

func (s *liteSessionStore) FindActive(ctx context.Context, userID, tokenHash string) (*RefreshSession, error) {
	row := s.db.QueryRowContext(ctx,
		`select id, user_id, token_hash, expires_at, revoked_at, created_at
		 from refresh_sessions where user_id=? and token_hash=? and revoked_at is null`,
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
	// Expiry is enforced here rather than in SQL to avoid relying on text
	// timestamp comparison semantics.
	if !time.Now().UTC().Before(sess.ExpiresAt) {
		return nil, ErrNotFound
	}
	return &sess, nil
}

func (s *liteSessionStore) Revoke(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`update refresh_sessions set revoked_at=? where id=? and revoked_at is null`,
		time.Now().UTC(), id)
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

func (s *liteSessionStore) RevokeAllActive(ctx context.Context, userID string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`update refresh_sessions set revoked_at=? where user_id=? and revoked_at is null`,
		time.Now().UTC(), userID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Business store -----------------------------------------------------------
type liteBusinessStore struct{ db *sql.DB }

func (s *liteBusinessStore) Create(ctx context.Context, b *Business) error {
	if b.ID == "" {
		b.ID = ids.New()
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`insert into businesses(id, name, created_at) values(?,?,?)`, b.ID, b.Name, b.CreatedAt)
	return err
}

func (s *liteBusinessStore) Find(ctx context.Context, id string) (*Business, error) {
	row := s.db.QueryRowContext(ctx,
		`select id, name, created_at from businesses where id=?`, id)
	var b Business
	if err := row.Scan(&b.ID, &b.Name, &b.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &b, nil
}

func (s *liteBusinessStore) ListByMember(ctx context.Context, userID string) ([]*Business, error) {
	rows, err := s.db.QueryContext(ctx,
		`select b.id, b.name, b.created_at from businesses b
		 join memberships m on m.business_id=b.id
		 where m.user_id=? order by b.created_at`, userID)
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
type liteMembershipStore struct{ db *sql.DB }

func (s *liteMembershipStore) Create(ctx context.Context, m *Membership) error {
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`insert or ignore into memberships(user_id, business_id, role, created_at) values(?,?,?,?)`,
		m.UserID, m.BusinessID, string(m.Role), m.CreatedAt,
	)
	return err
}

func (s *liteMembershipStore) Find(ctx context.Context, userID, businessID string) (*Membership, error) {
	row := s.db.QueryRowContext(ctx,
		`select user_id, business_id, role, created_at from memberships
		 where user_id=? and business_id=?`, userID, businessID)
	var (
		m    Membership
		role string
	)
	if err := row.Scan(&m.UserID, &m.BusinessID, &role, &m.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	m.Role = Role(role)
	return &m, nil
}

// Audit store --------------------------------------------------------------
type liteAuditStore struct{ db *sql.DB }

func (s *liteAuditStore) Append(ctx context.Context, entry *AuditEntry) error {
	if entry.ID == "" {
		entry.ID = ids.New()
	}
	meta, _ := json.Marshal(entry.Metadata)
	_, err := s.db.ExecContext(ctx,
		`insert into audit_log(id, occurred_at, actor_id, action, entity_type, entity_id, request_id, metadata)
		 values(?,?,?,?,?,?,?,?)`,
		entry.ID, entry.OccurredAt.UTC(), entry.ActorID, entry.Action,
		entry.EntityType, entry.EntityID, entry.RequestID, string(meta),
	)
	return err
}
