package handler

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stayverify/stayverify/internal/model"
)

func authFixture(t *testing.T) (*fixture, *AuthHandler) {
	t.Helper()
	f := newFixture(t)
	h := NewAuthHandler(f.users, f.sessions, f.tokens, f.mail, testLogger())
	return f, h
}

func TestRegisterCreatesUser(t *testing.T) {
	f, h := authFixture(t)

	req := httptest.NewRequest("POST", "/api/auth/register", jsonBody(t, map[string]string{
		"email":        "  New@Example.COM ",
		"display_name": "New Manager",
	}))
	rec := httptest.NewRecorder()
	h.Register(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	user, err := f.users.GetByEmail("new@example.com")
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if user == nil {
		t.Fatal("user was not created with normalized email")
	}
	if user.DisplayName != "New Manager" {
		t.Errorf("display name = %q, want %q", user.DisplayName, "New Manager")
	}
}

func TestRegisterExistingUserSameResponse(t *testing.T) {
	_, h := authFixture(t)

	req := httptest.NewRequest("POST", "/api/auth/register", jsonBody(t, map[string]string{
		"email": "owner@example.com",
	}))
	rec := httptest.NewRecorder()
	h.Register(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 for existing address", rec.Code)
	}
}

func TestVerifyRedeemsTokenOnce(t *testing.T) {
	f, h := authFixture(t)

	tok, err := f.tokens.Issue("owner@example.com")
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}

	body := map[string]string{"email": "owner@example.com", "token": tok.Token}
	req := httptest.NewRequest("POST", "/api/auth/verify", jsonBody(t, body))
	rec := httptest.NewRecorder()
	h.Verify(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	var sessionCookie *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == sessionCookieName {
			sessionCookie = c
		}
	}
	if sessionCookie == nil || sessionCookie.Value == "" {
		t.Fatal("no session cookie set")
	}
	sess, err := f.sessions.GetByToken(sessionCookie.Value)
	if err != nil || sess == nil {
		t.Fatalf("session not persisted: %v", err)
	}
	if sess.UserID != f.owner.ID {
		t.Errorf("session user = %d, want %d", sess.UserID, f.owner.ID)
	}

	// Replay is rejected.
	req = httptest.NewRequest("POST", "/api/auth/verify", jsonBody(t, body))
	rec = httptest.NewRecorder()
	h.Verify(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("replay status = %d, want 401", rec.Code)
	}
}

func TestVerifyWrongEmail(t *testing.T) {
	f, h := authFixture(t)

	tok, err := f.tokens.Issue("owner@example.com")
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}

	req := httptest.NewRequest("POST", "/api/auth/verify", jsonBody(t, map[string]string{
		"email": "other@example.com",
		"token": tok.Token,
	}))
	rec := httptest.NewRecorder()
	h.Verify(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}

	// The token survives a mismatched attempt and still works for its owner.
	req = httptest.NewRequest("POST", "/api/auth/verify", jsonBody(t, map[string]string{
		"email": "owner@example.com",
		"token": tok.Token,
	}))
	rec = httptest.NewRecorder()
	h.Verify(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("owner redeem after mismatch = %d, want 200", rec.Code)
	}
}

func TestVerifyUnknownToken(t *testing.T) {
	_, h := authFixture(t)

	req := httptest.NewRequest("POST", "/api/auth/verify", jsonBody(t, map[string]string{
		"email": "owner@example.com",
		"token": "deadbeef",
	}))
	rec := httptest.NewRecorder()
	h.Verify(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestVerifyExpiredLooksLikeUnknown(t *testing.T) {
	f, h := authFixture(t)

	now := time.Now().UTC()
	expired := model.AuthToken{
		Token:     "f0e1d2c3b4a5968778695a4b3c2d1e0f",
		Email:     "owner@example.com",
		CreatedAt: now.Add(-48 * time.Hour),
		ExpiresAt: now.Add(-24 * time.Hour),
	}
	if err := f.tokenRows.Put(expired); err != nil {
		t.Fatalf("put expired token: %v", err)
	}

	verify := func(tok string) *httptest.ResponseRecorder {
		req := httptest.NewRequest("POST", "/api/auth/verify", jsonBody(t, map[string]string{
			"email": "owner@example.com",
			"token": tok,
		}))
		rec := httptest.NewRecorder()
		h.Verify(rec, req)
		return rec
	}

	expiredRec := verify(expired.Token)
	unknownRec := verify("deadbeef")

	if expiredRec.Code != http.StatusUnauthorized {
		t.Fatalf("expired link status = %d, want 401", expiredRec.Code)
	}
	if unknownRec.Code != http.StatusUnauthorized {
		t.Fatalf("unknown link status = %d, want 401", unknownRec.Code)
	}
	// The caller must not be able to tell an expired link from an unknown one.
	if expiredRec.Body.String() != unknownRec.Body.String() {
		t.Errorf("expired body %q differs from unknown body %q",
			expiredRec.Body.String(), unknownRec.Body.String())
	}
}

func TestPasswordLoginFlow(t *testing.T) {
	f, h := authFixture(t)

	// Set a password as the signed-in owner.
	req := asUser(httptest.NewRequest("POST", "/api/auth/password", jsonBody(t, map[string]string{
		"password": "correct horse battery",
	})), f.owner.ID, false)
	rec := httptest.NewRecorder()
	h.SetPassword(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("set password status = %d: %s", rec.Code, rec.Body.String())
	}

	// Wrong password.
	req = httptest.NewRequest("POST", "/api/auth/login", jsonBody(t, map[string]string{
		"email": "owner@example.com", "password": "wrong",
	}))
	rec = httptest.NewRecorder()
	h.Login(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("wrong password status = %d, want 401", rec.Code)
	}

	// Right password.
	req = httptest.NewRequest("POST", "/api/auth/login", jsonBody(t, map[string]string{
		"email": "owner@example.com", "password": "correct horse battery",
	}))
	rec = httptest.NewRecorder()
	h.Login(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("login status = %d: %s", rec.Code, rec.Body.String())
	}
}

func TestLoginWithoutPasswordSet(t *testing.T) {
	_, h := authFixture(t)

	req := httptest.NewRequest("POST", "/api/auth/login", jsonBody(t, map[string]string{
		"email": "owner@example.com", "password": "anything",
	}))
	rec := httptest.NewRecorder()
	h.Login(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401 when no password is set", rec.Code)
	}
}

func TestSetPasswordTooShort(t *testing.T) {
	f, h := authFixture(t)

	req := asUser(httptest.NewRequest("POST", "/api/auth/password", jsonBody(t, map[string]string{
		"password": "short",
	})), f.owner.ID, false)
	rec := httptest.NewRecorder()
	h.SetPassword(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestLogoutDeletesSession(t *testing.T) {
	f, h := authFixture(t)

	sess, err := f.sessions.Create(f.owner.ID)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	req := httptest.NewRequest("POST", "/api/auth/logout", nil)
	req.AddCookie(&http.Cookie{Name: sessionCookieName, Value: sess.Token})
	rec := httptest.NewRecorder()
	h.Logout(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	got, err := f.sessions.GetByToken(sess.Token)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if got != nil {
		t.Error("session should be deleted after logout")
	}
}
