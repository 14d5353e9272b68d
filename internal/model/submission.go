package model

import "time"

// SubmissionStatus is the aggregate verification status of a booking.
type SubmissionStatus string

const (
	StatusAwaitingGuest     SubmissionStatus = "Awaiting Guest"
	StatusPending           SubmissionStatus = "Pending"
	StatusApproved          SubmissionStatus = "Approved"
	StatusRejected          SubmissionStatus = "Rejected"
	StatusPartiallyApproved SubmissionStatus = "Partially Approved"
)

// GuestStatus is the review outcome for a single guest's ID document.
type GuestStatus string

const (
	GuestPending  GuestStatus = "Pending"
	GuestApproved GuestStatus = "Approved"
	GuestRejected GuestStatus = "Rejected"
)

// PurgedSentinel replaces verification text when a guest's data is purged.
// The document URL is cleared outright; this marker survives so the UI can
// distinguish "never assessed" from "assessed, then purged".
const PurgedSentinel = "Data Purged for Compliance"

// Guest is one occupant's document-upload and review state within a Submission.
type Guest struct {
	ID                  string      `json:"id"`
	GuestNumber         int         `json:"guest_number"`
	GuestEmail          string      `json:"guest_email,omitempty"`
	IDDocumentURL       string      `json:"id_document_url,omitempty"`
	Status              GuestStatus `json:"status"`
	VerificationSummary string      `json:"verification_summary,omitempty"`
	VerificationIssues  string      `json:"verification_issues,omitempty"`
}

// HasDocument reports whether the guest currently holds an uploaded document.
func (g Guest) HasDocument() bool {
	return g.IDDocumentURL != ""
}

// Purged reports whether the guest's evidence was removed by the retention sweep.
func (g Guest) Purged() bool {
	return g.VerificationSummary == PurgedSentinel && g.IDDocumentURL == ""
}

// Submission is one booking's guest-verification record.
type Submission struct {
	ID                   int64            `json:"id"`
	PublicID             string           `json:"public_id"`
	UserID               int64            `json:"user_id"`
	PropertyID           int64            `json:"property_id"`
	PropertyName         string           `json:"property_name"`
	BookingID            string           `json:"booking_id"`
	MainGuestName        string           `json:"main_guest_name"`
	MainGuestEmail       string           `json:"main_guest_email,omitempty"`
	MainGuestPhoneNumber string           `json:"main_guest_phone_number"`
	NumberOfGuests       int              `json:"number_of_guests"`
	CheckInDate          time.Time        `json:"check_in_date"`
	CheckOutDate         time.Time        `json:"check_out_date"`
	TermsAndConditions   string           `json:"terms_and_conditions"`
	Status               SubmissionStatus `json:"status"`
	// DocumentReceived latches when the first guest uploads a document.
	// Once set, the submission never returns to Awaiting Guest, even after
	// every document has been purged.
	DocumentReceived bool      `json:"document_received"`
	Version          int64     `json:"version"`
	Guests           []Guest   `json:"guests"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// GuestByID returns the guest with the given ID, or nil.
func (s *Submission) GuestByID(guestID string) *Guest {
	for i := range s.Guests {
		if s.Guests[i].ID == guestID {
			return &s.Guests[i]
		}
	}
	return nil
}
