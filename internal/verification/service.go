package verification

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/stayverify/stayverify/internal/model"
	"github.com/stayverify/stayverify/internal/store"
)

var (
	ErrSubmissionNotFound = errors.New("submission not found")
	ErrGuestNotFound      = errors.New("guest not found")
	ErrNoDocument         = errors.New("guest has no document to review")
	ErrInvalidOutcome     = errors.New("outcome must be Approved or Rejected")
)

// maxWriteAttempts bounds the re-read-and-retry loop around versioned
// submission writes. Contention here is two people acting on the same
// booking at the same moment, so one retry almost always suffices.
const maxWriteAttempts = 3

// Mailer sends the notification email the verification flow produces.
// All sends are best effort; the service logs failures and moves on.
type Mailer interface {
	Configured() bool
	SendGuestApproval(to, propertyName, bookingID string, guestNumber int) error
	SendGuestRejection(to, propertyName, bookingID string, guestNumber int, reason string) error
	SendSubmissionAlert(to, propertyName, bookingID string, guestNumber int) error
}

// Pusher delivers browser push alerts to a property manager's devices.
type Pusher interface {
	SendUploadAlert(userID int64, propertyName, bookingID string, guestNumber int) error
}

// Broadcaster fans a changed submission out to the owner's open dashboards.
type Broadcaster interface {
	SubmissionUpdated(userID int64, sub *model.Submission)
}

// Service owns every write to a submission's guest list. Each operation
// re-reads the submission, applies its change, recomputes the aggregate
// status, and persists through the version guard so concurrent reviewers
// cannot silently overwrite each other.
type Service struct {
	subs   *store.SubmissionStore
	users  *store.UserStore
	mail   Mailer
	push   Pusher
	hub    Broadcaster
	logger *slog.Logger
}

func New(subs *store.SubmissionStore, users *store.UserStore, mail Mailer, push Pusher, hub Broadcaster, logger *slog.Logger) *Service {
	return &Service{
		subs:   subs,
		users:  users,
		mail:   mail,
		push:   push,
		hub:    hub,
		logger: logger.With("component", "verification"),
	}
}

// apply runs the read-mutate-write loop. load must return a fresh copy on
// every call; mutate edits it in place. A stale write re-reads and retries
// up to maxWriteAttempts.
func (s *Service) apply(load func() (*model.Submission, error), mutate func(*model.Submission) error) (*model.Submission, error) {
	for attempt := 1; ; attempt++ {
		sub, err := load()
		if err != nil {
			return nil, err
		}
		if sub == nil {
			return nil, ErrSubmissionNotFound
		}
		if err := mutate(sub); err != nil {
			return nil, err
		}

		status := Aggregate(sub.Guests, !sub.DocumentReceived)
		updated, err := s.subs.UpdateGuests(sub.ID, sub.Version, sub.Guests, status, sub.DocumentReceived)
		if errors.Is(err, store.ErrStale) && attempt < maxWriteAttempts {
			s.logger.Debug("stale submission write, retrying", "submission_id", sub.ID, "attempt", attempt)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("persist submission %d: %w", sub.ID, err)
		}
		return updated, nil
	}
}

// AttachDocument records a guest's uploaded ID document. The first upload on
// a submission latches it out of Awaiting Guest for good and alerts the
// property manager. The submission is addressed by its public link ID since
// the caller is the unauthenticated guest page.
func (s *Service) AttachDocument(publicID, guestID, documentURL, guestEmail string) (*model.Submission, error) {
	firstUpload := false
	var guestNumber int
	sub, err := s.apply(
		func() (*model.Submission, error) { return s.subs.GetByPublicID(publicID) },
		func(sub *model.Submission) error {
			g := sub.GuestByID(guestID)
			if g == nil {
				return ErrGuestNotFound
			}
			firstUpload = !sub.DocumentReceived
			guestNumber = g.GuestNumber
			g.IDDocumentURL = documentURL
			if guestEmail != "" {
				g.GuestEmail = guestEmail
			}
			sub.DocumentReceived = true
			return nil
		},
	)
	if err != nil {
		return nil, err
	}

	if firstUpload {
		s.notifyFirstUpload(sub, guestNumber)
	}
	s.broadcast(sub)
	return sub, nil
}

// RecordAssessment stores the automated review text for a guest. It is
// advisory only and never changes the guest's status.
func (s *Service) RecordAssessment(submissionID int64, guestID, summary, issues string) (*model.Submission, error) {
	sub, err := s.apply(
		func() (*model.Submission, error) { return s.subs.GetByID(submissionID) },
		func(sub *model.Submission) error {
			g := sub.GuestByID(guestID)
			if g == nil {
				return ErrGuestNotFound
			}
			if !g.HasDocument() {
				return ErrNoDocument
			}
			g.VerificationSummary = summary
			g.VerificationIssues = issues
			return nil
		},
	)
	if err != nil {
		return nil, err
	}
	s.broadcast(sub)
	return sub, nil
}

// Decide records the manager's approval or rejection of one guest and
// notifies the guest by email. Re-deciding an already decided guest is
// allowed and sends the notification again.
func (s *Service) Decide(submissionID int64, guestID string, outcome model.GuestStatus, summary, issues string) (*model.Submission, error) {
	if outcome != model.GuestApproved && outcome != model.GuestRejected {
		return nil, ErrInvalidOutcome
	}

	var decided model.Guest
	sub, err := s.apply(
		func() (*model.Submission, error) { return s.subs.GetByID(submissionID) },
		func(sub *model.Submission) error {
			g := sub.GuestByID(guestID)
			if g == nil {
				return ErrGuestNotFound
			}
			if !g.HasDocument() && g.Status == model.GuestPending {
				return ErrNoDocument
			}
			g.Status = outcome
			if summary != "" {
				g.VerificationSummary = summary
			}
			if issues != "" {
				g.VerificationIssues = issues
			}
			decided = *g
			return nil
		},
	)
	if err != nil {
		return nil, err
	}

	s.notifyDecision(sub, decided)
	s.broadcast(sub)
	return sub, nil
}

func (s *Service) notifyDecision(sub *model.Submission, g model.Guest) {
	if s.mail == nil || !s.mail.Configured() {
		return
	}
	to := g.GuestEmail
	if to == "" {
		to = sub.MainGuestEmail
	}
	if to == "" {
		s.logger.Debug("no email on file for decided guest",
			"submission_id", sub.ID, "guest_number", g.GuestNumber)
		return
	}

	var err error
	switch g.Status {
	case model.GuestApproved:
		err = s.mail.SendGuestApproval(to, sub.PropertyName, sub.BookingID, g.GuestNumber)
	case model.GuestRejected:
		err = s.mail.SendGuestRejection(to, sub.PropertyName, sub.BookingID, g.GuestNumber, g.VerificationIssues)
	}
	if err != nil {
		s.logger.Error("failed to send decision email",
			"submission_id", sub.ID, "guest_number", g.GuestNumber, "error", err)
	}
}

func (s *Service) notifyFirstUpload(sub *model.Submission, guestNumber int) {
	if s.mail != nil && s.mail.Configured() {
		owner, err := s.users.GetByID(sub.UserID)
		if err != nil || owner == nil {
			s.logger.Error("failed to load submission owner", "user_id", sub.UserID, "error", err)
		} else if err := s.mail.SendSubmissionAlert(owner.Email, sub.PropertyName, sub.BookingID, guestNumber); err != nil {
			s.logger.Error("failed to send upload alert email", "submission_id", sub.ID, "error", err)
		}
	}
	if s.push != nil {
		if err := s.push.SendUploadAlert(sub.UserID, sub.PropertyName, sub.BookingID, guestNumber); err != nil {
			s.logger.Error("failed to send upload push alert", "submission_id", sub.ID, "error", err)
		}
	}
}

func (s *Service) broadcast(sub *model.Submission) {
	if s.hub != nil {
		s.hub.SubmissionUpdated(sub.UserID, sub)
	}
}
