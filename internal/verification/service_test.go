package verification

import (
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stayverify/stayverify/internal/database"
	"github.com/stayverify/stayverify/internal/model"
	"github.com/stayverify/stayverify/internal/store"
)

type fakeMailer struct {
	mu         sync.Mutex
	approvals  []string
	rejections []string
	reasons    []string
	alerts     []string
}

func (m *fakeMailer) Configured() bool { return true }

func (m *fakeMailer) SendGuestApproval(to, propertyName, bookingID string, guestNumber int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.approvals = append(m.approvals, to)
	return nil
}

func (m *fakeMailer) SendGuestRejection(to, propertyName, bookingID string, guestNumber int, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rejections = append(m.rejections, to)
	m.reasons = append(m.reasons, reason)
	return nil
}

func (m *fakeMailer) SendSubmissionAlert(to, propertyName, bookingID string, guestNumber int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.alerts = append(m.alerts, to)
	return nil
}

type fakePusher struct {
	mu     sync.Mutex
	alerts int
}

func (p *fakePusher) SendUploadAlert(userID int64, propertyName, bookingID string, guestNumber int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.alerts++
	return nil
}

type fakeHub struct {
	mu      sync.Mutex
	updates int
}

func (h *fakeHub) SubmissionUpdated(userID int64, sub *model.Submission) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.updates++
}

type serviceFixture struct {
	svc  *Service
	subs *store.SubmissionStore
	mail *fakeMailer
	push *fakePusher
	hub  *fakeHub
	sub  *model.Submission
}

func setupService(t *testing.T) *serviceFixture {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	users := store.NewUserStore(db)
	owner, err := users.Create("owner@example.com", "Owner")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	props := store.NewPropertyStore(db)
	if _, err := props.Create(owner.ID, "Seaside Villa", "1 Beach Rd", "+1555000"); err != nil {
		t.Fatalf("create property: %v", err)
	}

	subs := store.NewSubmissionStore(db)
	sub, err := subs.Create(store.NewSubmission{
		UserID:               owner.ID,
		PropertyID:           1,
		PropertyName:         "Seaside Villa",
		BookingID:            "BK-1001",
		MainGuestName:        "Alice Smith",
		MainGuestEmail:       "alice@example.com",
		MainGuestPhoneNumber: "+1555123",
		NumberOfGuests:       2,
		CheckInDate:          time.Date(2026, 9, 10, 0, 0, 0, 0, time.UTC),
		CheckOutDate:         time.Date(2026, 9, 14, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("create submission: %v", err)
	}

	mail := &fakeMailer{}
	push := &fakePusher{}
	hub := &fakeHub{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return &serviceFixture{
		svc:  New(subs, users, mail, push, hub, logger),
		subs: subs,
		mail: mail,
		push: push,
		hub:  hub,
		sub:  sub,
	}
}

func TestAttachDocumentLatchesAndAlerts(t *testing.T) {
	f := setupService(t)

	sub, err := f.svc.AttachDocument(f.sub.PublicID, f.sub.Guests[0].ID, "docs/g1.jpg", "g1@example.com")
	if err != nil {
		t.Fatalf("attach document: %v", err)
	}
	if sub.Status != model.StatusPending {
		t.Errorf("status = %q, want %q", sub.Status, model.StatusPending)
	}
	if !sub.DocumentReceived {
		t.Error("document_received should be latched")
	}
	if sub.Guests[0].IDDocumentURL != "docs/g1.jpg" {
		t.Errorf("document url = %q", sub.Guests[0].IDDocumentURL)
	}
	if sub.Guests[0].GuestEmail != "g1@example.com" {
		t.Errorf("guest email = %q", sub.Guests[0].GuestEmail)
	}

	if len(f.mail.alerts) != 1 || f.mail.alerts[0] != "owner@example.com" {
		t.Errorf("alert emails = %v, want one to owner", f.mail.alerts)
	}
	if f.push.alerts != 1 {
		t.Errorf("push alerts = %d, want 1", f.push.alerts)
	}
	if f.hub.updates != 1 {
		t.Errorf("hub updates = %d, want 1", f.hub.updates)
	}

	// A second upload is not the first; no further manager alert.
	if _, err := f.svc.AttachDocument(f.sub.PublicID, f.sub.Guests[1].ID, "docs/g2.jpg", ""); err != nil {
		t.Fatalf("attach second document: %v", err)
	}
	if len(f.mail.alerts) != 1 {
		t.Errorf("alert emails after second upload = %d, want 1", len(f.mail.alerts))
	}
	if f.push.alerts != 1 {
		t.Errorf("push alerts after second upload = %d, want 1", f.push.alerts)
	}
}

func TestAttachDocumentUnknownTargets(t *testing.T) {
	f := setupService(t)

	if _, err := f.svc.AttachDocument("no-such-link", f.sub.Guests[0].ID, "docs/x.jpg", ""); !errors.Is(err, ErrSubmissionNotFound) {
		t.Errorf("err = %v, want ErrSubmissionNotFound", err)
	}
	if _, err := f.svc.AttachDocument(f.sub.PublicID, "no-such-guest", "docs/x.jpg", ""); !errors.Is(err, ErrGuestNotFound) {
		t.Errorf("err = %v, want ErrGuestNotFound", err)
	}
}

func TestRecordAssessment(t *testing.T) {
	f := setupService(t)

	// No document yet.
	_, err := f.svc.RecordAssessment(f.sub.ID, f.sub.Guests[0].ID, "looks fine", "")
	if !errors.Is(err, ErrNoDocument) {
		t.Fatalf("err = %v, want ErrNoDocument", err)
	}

	if _, err := f.svc.AttachDocument(f.sub.PublicID, f.sub.Guests[0].ID, "docs/g1.jpg", ""); err != nil {
		t.Fatalf("attach document: %v", err)
	}
	sub, err := f.svc.RecordAssessment(f.sub.ID, f.sub.Guests[0].ID, "Name and photo legible", "Expiry date unclear")
	if err != nil {
		t.Fatalf("record assessment: %v", err)
	}
	g := sub.GuestByID(f.sub.Guests[0].ID)
	if g.VerificationSummary != "Name and photo legible" {
		t.Errorf("summary = %q", g.VerificationSummary)
	}
	if g.VerificationIssues != "Expiry date unclear" {
		t.Errorf("issues = %q", g.VerificationIssues)
	}
	// Advisory only: the guest is still undecided.
	if g.Status != model.GuestPending {
		t.Errorf("guest status = %q, want %q", g.Status, model.GuestPending)
	}
	if sub.Status != model.StatusPending {
		t.Errorf("submission status = %q, want %q", sub.Status, model.StatusPending)
	}
}

func attachAll(t *testing.T, f *serviceFixture) {
	t.Helper()
	for i, g := range f.sub.Guests {
		if _, err := f.svc.AttachDocument(f.sub.PublicID, g.ID, "docs/g.jpg", ""); err != nil {
			t.Fatalf("attach document %d: %v", i+1, err)
		}
	}
}

func TestDecideAggregation(t *testing.T) {
	f := setupService(t)
	attachAll(t, f)

	sub, err := f.svc.Decide(f.sub.ID, f.sub.Guests[0].ID, model.GuestApproved, "", "")
	if err != nil {
		t.Fatalf("decide first guest: %v", err)
	}
	if sub.Status != model.StatusPending {
		t.Errorf("status after one decision = %q, want %q", sub.Status, model.StatusPending)
	}

	sub, err = f.svc.Decide(f.sub.ID, f.sub.Guests[1].ID, model.GuestApproved, "", "")
	if err != nil {
		t.Fatalf("decide second guest: %v", err)
	}
	if sub.Status != model.StatusApproved {
		t.Errorf("status = %q, want %q", sub.Status, model.StatusApproved)
	}
}

func TestDecideMixedOutcomes(t *testing.T) {
	f := setupService(t)
	attachAll(t, f)

	f.svc.Decide(f.sub.ID, f.sub.Guests[0].ID, model.GuestApproved, "", "")
	sub, err := f.svc.Decide(f.sub.ID, f.sub.Guests[1].ID, model.GuestRejected, "", "Document unreadable")
	if err != nil {
		t.Fatalf("decide: %v", err)
	}
	if sub.Status != model.StatusPartiallyApproved {
		t.Errorf("status = %q, want %q", sub.Status, model.StatusPartiallyApproved)
	}
	if len(f.mail.reasons) != 1 || f.mail.reasons[0] != "Document unreadable" {
		t.Errorf("rejection reasons = %v", f.mail.reasons)
	}
}

func TestDecideAllRejected(t *testing.T) {
	f := setupService(t)
	attachAll(t, f)

	f.svc.Decide(f.sub.ID, f.sub.Guests[0].ID, model.GuestRejected, "", "")
	sub, err := f.svc.Decide(f.sub.ID, f.sub.Guests[1].ID, model.GuestRejected, "", "")
	if err != nil {
		t.Fatalf("decide: %v", err)
	}
	if sub.Status != model.StatusRejected {
		t.Errorf("status = %q, want %q", sub.Status, model.StatusRejected)
	}
}

func TestDecideValidation(t *testing.T) {
	f := setupService(t)

	if _, err := f.svc.Decide(f.sub.ID, f.sub.Guests[0].ID, model.GuestPending, "", ""); !errors.Is(err, ErrInvalidOutcome) {
		t.Errorf("err = %v, want ErrInvalidOutcome", err)
	}
	if _, err := f.svc.Decide(f.sub.ID, f.sub.Guests[0].ID, "Maybe", "", ""); !errors.Is(err, ErrInvalidOutcome) {
		t.Errorf("err = %v, want ErrInvalidOutcome", err)
	}
	// No document uploaded yet.
	if _, err := f.svc.Decide(f.sub.ID, f.sub.Guests[0].ID, model.GuestApproved, "", ""); !errors.Is(err, ErrNoDocument) {
		t.Errorf("err = %v, want ErrNoDocument", err)
	}
}

func TestStaleWriteRereadsAndRetries(t *testing.T) {
	f := setupService(t)
	attachAll(t, f)

	guestID := f.sub.Guests[0].ID
	loads := 0
	sub, err := f.svc.apply(
		func() (*model.Submission, error) {
			loads++
			cur, err := f.subs.GetByID(f.sub.ID)
			if err != nil || cur == nil {
				return cur, err
			}
			if loads == 1 {
				// Another reviewer writes between our read and our write,
				// bumping the version out from under us.
				if _, err := f.subs.UpdateGuests(cur.ID, cur.Version, cur.Guests, cur.Status, cur.DocumentReceived); err != nil {
					return nil, err
				}
			}
			return cur, nil
		},
		func(sub *model.Submission) error {
			sub.GuestByID(guestID).Status = model.GuestApproved
			return nil
		},
	)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if loads != 2 {
		t.Errorf("loads = %d, want 2 (one stale write, one retry)", loads)
	}
	if got := sub.GuestByID(guestID).Status; got != model.GuestApproved {
		t.Errorf("guest status = %q, want %q", got, model.GuestApproved)
	}
}

func TestConcurrentDecisionsConverge(t *testing.T) {
	f := setupService(t)
	attachAll(t, f)

	outcomes := []model.GuestStatus{model.GuestApproved, model.GuestRejected}
	errs := make([]error, len(outcomes))
	var wg sync.WaitGroup
	for i, outcome := range outcomes {
		wg.Add(1)
		go func(i int, outcome model.GuestStatus) {
			defer wg.Done()
			_, errs[i] = f.svc.Decide(f.sub.ID, f.sub.Guests[i].ID, outcome, "", "")
		}(i, outcome)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("decide guest %d: %v", i+1, err)
		}
	}

	sub, err := f.subs.GetByID(f.sub.ID)
	if err != nil {
		t.Fatalf("reload submission: %v", err)
	}
	// Neither write may clobber the other.
	if got := sub.GuestByID(f.sub.Guests[0].ID).Status; got != model.GuestApproved {
		t.Errorf("guest 1 status = %q, want %q", got, model.GuestApproved)
	}
	if got := sub.GuestByID(f.sub.Guests[1].ID).Status; got != model.GuestRejected {
		t.Errorf("guest 2 status = %q, want %q", got, model.GuestRejected)
	}
	if sub.Status != model.StatusPartiallyApproved {
		t.Errorf("status = %q, want %q", sub.Status, model.StatusPartiallyApproved)
	}
}

func TestDecideRepeatResendsEmail(t *testing.T) {
	f := setupService(t)
	attachAll(t, f)

	if _, err := f.svc.Decide(f.sub.ID, f.sub.Guests[0].ID, model.GuestApproved, "", ""); err != nil {
		t.Fatalf("first decide: %v", err)
	}
	sub, err := f.svc.Decide(f.sub.ID, f.sub.Guests[0].ID, model.GuestApproved, "", "")
	if err != nil {
		t.Fatalf("second decide: %v", err)
	}
	if got := sub.GuestByID(f.sub.Guests[0].ID).Status; got != model.GuestApproved {
		t.Errorf("guest status = %q, want %q", got, model.GuestApproved)
	}
	if len(f.mail.approvals) != 2 {
		t.Errorf("approval emails = %d, want 2", len(f.mail.approvals))
	}
}

func TestDecideEmailFallsBackToMainGuest(t *testing.T) {
	f := setupService(t)

	// Guest uploads without leaving an email address.
	if _, err := f.svc.AttachDocument(f.sub.PublicID, f.sub.Guests[0].ID, "docs/g1.jpg", ""); err != nil {
		t.Fatalf("attach document: %v", err)
	}
	if _, err := f.svc.Decide(f.sub.ID, f.sub.Guests[0].ID, model.GuestApproved, "", ""); err != nil {
		t.Fatalf("decide: %v", err)
	}
	if len(f.mail.approvals) != 1 || f.mail.approvals[0] != "alice@example.com" {
		t.Errorf("approvals = %v, want main guest fallback", f.mail.approvals)
	}
}
