package handler

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stayverify/stayverify/internal/auth"
	"github.com/stayverify/stayverify/internal/database"
	"github.com/stayverify/stayverify/internal/email"
	"github.com/stayverify/stayverify/internal/model"
	"github.com/stayverify/stayverify/internal/store"
	"github.com/stayverify/stayverify/internal/token"
	"github.com/stayverify/stayverify/internal/verification"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fixture struct {
	users       *store.UserStore
	sessions    *store.SessionStore
	properties  *store.PropertyStore
	submissions *store.SubmissionStore
	events      *store.WebhookEventStore
	pushSubs    *store.PushStore
	tokenRows   *store.TokenStore
	tokens      *token.Store
	mail        *email.Client
	svc         *verification.Service
	owner       *model.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	f := &fixture{
		users:       store.NewUserStore(db),
		sessions:    store.NewSessionStore(db),
		properties:  store.NewPropertyStore(db),
		submissions: store.NewSubmissionStore(db),
		events:      store.NewWebhookEventStore(db),
		pushSubs:    store.NewPushStore(db),
		mail:        email.NewClient("", "noreply@example.com", "http://localhost:8080"),
	}
	f.tokenRows = store.NewTokenStore(db)
	f.tokens = token.New(f.tokenRows, 0, testLogger())
	t.Cleanup(func() { f.tokens.Close() })
	f.svc = verification.New(f.submissions, f.users, nil, nil, nil, testLogger())

	f.owner, err = f.users.Create("owner@example.com", "Owner")
	if err != nil {
		t.Fatalf("create owner: %v", err)
	}
	return f
}

// activeProperty creates a property for the fixture owner with a current
// subscription.
func (f *fixture) activeProperty(t *testing.T) *model.Property {
	t.Helper()
	prop, err := f.properties.Create(f.owner.ID, "Seaside Villa", "1 Shore Road", "+15550100")
	if err != nil {
		t.Fatalf("create property: %v", err)
	}
	now := time.Now()
	prop, err = f.properties.ActivateSubscription(prop.ID, now.Add(-time.Hour), now.AddDate(1, 0, 0))
	if err != nil {
		t.Fatalf("activate subscription: %v", err)
	}
	return prop
}

func (f *fixture) seedSubmission(t *testing.T, propertyID int64, guests int) *model.Submission {
	t.Helper()
	sub, err := f.submissions.Create(store.NewSubmission{
		UserID:         f.owner.ID,
		PropertyID:     propertyID,
		PropertyName:   "Seaside Villa",
		BookingID:      "BK-1001",
		MainGuestName:  "Alice",
		MainGuestEmail: "alice@example.com",
		NumberOfGuests: guests,
		CheckInDate:    time.Now().AddDate(0, 0, 7),
		CheckOutDate:   time.Now().AddDate(0, 0, 10),
	})
	if err != nil {
		t.Fatalf("create submission: %v", err)
	}
	return sub
}

// asUser attaches an authenticated context, bypassing the session
// middleware the way the real mux layers it on.
func asUser(r *http.Request, userID int64, admin bool) *http.Request {
	return r.WithContext(auth.WithAuth(r.Context(), auth.AuthContext{UserID: userID, IsAdmin: admin}))
}

func (f *fixture) asOwner(r *http.Request) *http.Request {
	return asUser(r, f.owner.ID, false)
}

func jsonBody(t *testing.T, v any) *bytes.Reader {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	return bytes.NewReader(data)
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, out any) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}
