package store

import (
	"testing"

	"github.com/stayverify/stayverify/internal/database"
)

func setupUserTestDB(t *testing.T) *UserStore {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewUserStore(db)
}

func TestUserCreateAndGet(t *testing.T) {
	us := setupUserTestDB(t)

	u, err := us.Create("alice@example.com", "Alice")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	if u.Email != "alice@example.com" {
		t.Errorf("email = %q, want %q", u.Email, "alice@example.com")
	}
	if u.IsAdmin {
		t.Error("new user should not be admin")
	}

	got, err := us.GetByEmail("alice@example.com")
	if err != nil {
		t.Fatalf("get by email: %v", err)
	}
	if got == nil || got.ID != u.ID {
		t.Errorf("get by email = %+v, want id %d", got, u.ID)
	}
}

func TestUserDuplicateEmail(t *testing.T) {
	us := setupUserTestDB(t)

	us.Create("alice@example.com", "Alice")
	if _, err := us.Create("alice@example.com", "Alice Again"); err == nil {
		t.Fatal("expected unique constraint error")
	}
}

func TestUserGetMissing(t *testing.T) {
	us := setupUserTestDB(t)

	u, err := us.GetByEmail("nobody@example.com")
	if err != nil {
		t.Fatalf("get by email: %v", err)
	}
	if u != nil {
		t.Error("expected nil for missing user")
	}
}

func TestUserPasswordHash(t *testing.T) {
	us := setupUserTestDB(t)

	u, _ := us.Create("alice@example.com", "Alice")

	hash, err := us.PasswordHash(u.ID)
	if err != nil {
		t.Fatalf("password hash: %v", err)
	}
	if hash != "" {
		t.Errorf("hash = %q, want empty before set", hash)
	}

	if err := us.SetPasswordHash(u.ID, "$2a$10$fakehash"); err != nil {
		t.Fatalf("set password hash: %v", err)
	}
	hash, _ = us.PasswordHash(u.ID)
	if hash != "$2a$10$fakehash" {
		t.Errorf("hash = %q, want stored value", hash)
	}
}

func TestUserUpdateProfile(t *testing.T) {
	us := setupUserTestDB(t)

	u, _ := us.Create("alice@example.com", "Alice")
	updated, err := us.UpdateProfile(u.ID, "Alice S.", "+1555999")
	if err != nil {
		t.Fatalf("update profile: %v", err)
	}
	if updated.DisplayName != "Alice S." || updated.Phone != "+1555999" {
		t.Errorf("profile = %q/%q, want updated values", updated.DisplayName, updated.Phone)
	}
}
