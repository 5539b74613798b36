package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
)

func TestPGUserCreateUniqueViolation(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectExec("insert into users").
		WithArgs("u1", "dup@example.com", "hash", RoleCustomer).
		WillReturnError(&pgconn.PgError{Code: "23505"})

	store := NewPGStore(db)
	err = store.Users(context.Background()).Create(context.Background(), &User{
		ID: "u1", Email: "dup@example.com", PasswordHash: "hash", Role: RoleCustomer,
	})
	if !errors.Is(err, ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPGFindActiveSession(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	expires := time.Now().Add(time.Hour)
	created := time.Now().Add(-time.Minute)
	rows := sqlmock.NewRows([]string{"id", "user_id", "token_hash", "expires_at", "revoked_at", "created_at"}).
		AddRow("s1", "u1", "hash1", expires, nil, created)
	mock.ExpectQuery("select id, user_id, token_hash, expires_at, revoked_at, created_at").
		WithArgs("u1", "hash1").
		WillReturnRows(rows)

	store := NewPGStore(db)
	sess, err := store.Sessions(context.Background()).FindActive(context.Background(), "u1", "hash1")
	if err != nil {
		t.Fatalf("FindActive: %v", err)
	}
	if sess.ID != "s1" || sess.RevokedAt != nil {
		t.Fatalf("unexpected session: %+v", sess)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPGFindActiveMiss(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("select id, user_id, token_hash, expires_at, revoked_at, created_at").
		WithArgs("u1", "missing").
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "token_hash", "expires_at", "revoked_at", "created_at"}))

	store := NewPGStore(db)
	_, err = store.Sessions(context.Background()).FindActive(context.Background(), "u1", "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPGRevokeConditional(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	store := NewPGStore(db)
	ctx := context.Background()

	// First caller wins the conditional update.
	mock.ExpectExec("update refresh_sessions set revoked_at=now").
		WithArgs("s1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	if err := store.Sessions(ctx).Revoke(ctx, "s1"); err != nil {
		t.Fatalf("Revoke: %v", err)
	}

	// Second caller sees zero rows and must get ErrNotFound.
	mock.ExpectExec("update refresh_sessions set revoked_at=now").
		WithArgs("s1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	if err := store.Sessions(ctx).Revoke(ctx, "s1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on lost race, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPGRevokeAllActive(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectExec("update refresh_sessions set revoked_at=now").
		WithArgs("u1").
		WillReturnResult(sqlmock.NewResult(0, 3))

	store := NewPGStore(db)
	n, err := store.Sessions(context.Background()).RevokeAllActive(context.Background(), "u1")
	if err != nil {
		t.Fatalf("RevokeAllActive: %v", err)
	}
	if n != 3 {
		t.Fatalf("revoked %d sessions, want 3", n)
	}
}

func TestPGMembershipFind(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	rows := sqlmock.NewRows([]string{"user_id", "business_id", "role", "created_at"}).
		AddRow("u1", "b1", RoleOwner, time.Now())
	mock.ExpectQuery("select user_id, business_id, role, created_at from memberships").
		WithArgs("u1", "b1").
		WillReturnRows(rows)

	store := NewPGStore(db)
	m, err := store.Memberships(context.Background()).Find(context.Background(), "u1", "b1")
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if m.Role != RoleOwner {
		t.Fatalf("role = %s, want OWNER", m.Role)
	}
}
