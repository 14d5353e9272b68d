package handler

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stayverify/stayverify/internal/model"
	"github.com/stayverify/stayverify/internal/push"
)

func pushFixture(t *testing.T) (*fixture, *http.ServeMux) {
	t.Helper()
	f := newFixture(t)
	h := NewPushHandler(f.pushSubs, push.NewService("test-public-key", "test-private-key"), testLogger())

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/push/vapid-key", h.VAPIDKey)
	mux.HandleFunc("POST /api/push/subscriptions", h.Subscribe)
	mux.HandleFunc("GET /api/push/subscriptions", h.List)
	mux.HandleFunc("DELETE /api/push/subscriptions/{id}", h.Unsubscribe)
	return f, mux
}

func TestPushSubscribeAndList(t *testing.T) {
	f, mux := pushFixture(t)

	req := f.asOwner(httptest.NewRequest("POST", "/api/push/subscriptions", jsonBody(t, map[string]any{
		"endpoint": "https://push.example.com/sub/1",
		"keys":     map[string]string{"p256dh": "key", "auth": "secret"},
	})))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, f.asOwner(httptest.NewRequest("GET", "/api/push/subscriptions", nil)))
	var subs []model.PushSubscription
	decodeBody(t, rec, &subs)
	if len(subs) != 1 || subs[0].Endpoint != "https://push.example.com/sub/1" {
		t.Errorf("subs = %+v", subs)
	}
}

func TestPushSubscribeValidation(t *testing.T) {
	f, mux := pushFixture(t)

	req := f.asOwner(httptest.NewRequest("POST", "/api/push/subscriptions", jsonBody(t, map[string]any{
		"endpoint": "",
	})))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestPushUnsubscribeScopedToUser(t *testing.T) {
	f, mux := pushFixture(t)
	sub, err := f.pushSubs.Subscribe(f.owner.ID, "https://push.example.com/sub/2", "key", "secret")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	other, err := f.users.Create("other@example.com", "Other")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}

	path := fmt.Sprintf("/api/push/subscriptions/%d", sub.ID)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, asUser(httptest.NewRequest("DELETE", path, nil), other.ID, false))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d", rec.Code)
	}

	// Scoped delete: the owner's subscription is untouched.
	subs, err := f.pushSubs.ListByUser(f.owner.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(subs) != 1 {
		t.Errorf("owner subs = %d, want 1", len(subs))
	}
}

func TestVAPIDKeyEndpoint(t *testing.T) {
	f, mux := pushFixture(t)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, f.asOwner(httptest.NewRequest("GET", "/api/push/vapid-key", nil)))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp map[string]string
	decodeBody(t, rec, &resp)
	if resp["public_key"] != "test-public-key" {
		t.Errorf("public key = %q", resp["public_key"])
	}
}
