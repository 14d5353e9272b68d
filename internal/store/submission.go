package store

import (
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/stayverify/stayverify/internal/model"
)

// ErrStale is returned when a versioned submission write lost a race.
// Callers retry from a fresh read.
var ErrStale = errors.New("submission was modified concurrently")

type SubmissionStore struct {
	db *sql.DB
}

func NewSubmissionStore(db *sql.DB) *SubmissionStore {
	return &SubmissionStore{db: db}
}

func scanSubmission(scanner interface{ Scan(...any) error }) (*model.Submission, error) {
	var sub model.Submission
	var docReceived int
	err := scanner.Scan(
		&sub.ID, &sub.PublicID, &sub.UserID, &sub.PropertyID, &sub.PropertyName,
		&sub.BookingID, &sub.MainGuestName, &sub.MainGuestEmail, &sub.MainGuestPhoneNumber,
		&sub.NumberOfGuests, &sub.CheckInDate, &sub.CheckOutDate, &sub.TermsAndConditions,
		&sub.Status, &docReceived, &sub.Version, &sub.CreatedAt, &sub.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	sub.DocumentReceived = docReceived != 0
	return &sub, nil
}

const submissionCols = `id, public_id, user_id, property_id, property_name,
	booking_id, main_guest_name, main_guest_email, main_guest_phone_number,
	number_of_guests, check_in_date, check_out_date, terms_and_conditions,
	status, document_received, version, created_at, updated_at`

const guestCols = `id, guest_number, guest_email, id_document_url, status,
	verification_summary, verification_issues`

// NewSubmission carries the fields required to create a submission.
type NewSubmission struct {
	UserID               int64
	PropertyID           int64
	PropertyName         string
	BookingID            string
	MainGuestName        string
	MainGuestEmail       string
	MainGuestPhoneNumber string
	NumberOfGuests       int
	CheckInDate          time.Time
	CheckOutDate         time.Time
	TermsAndConditions   string
}

// Create inserts a submission with its full complement of Pending guest
// slots in one transaction. The public ID is a crypto-random link token.
func (s *SubmissionStore) Create(in NewSubmission) (*model.Submission, error) {
	idBytes := make([]byte, 32)
	if _, err := rand.Read(idBytes); err != nil {
		return nil, fmt.Errorf("generate public id: %w", err)
	}
	publicID := hex.EncodeToString(idBytes)

	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.Exec(
		`INSERT INTO submissions (public_id, user_id, property_id, property_name,
			booking_id, main_guest_name, main_guest_email, main_guest_phone_number,
			number_of_guests, check_in_date, check_out_date, terms_and_conditions, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		publicID, in.UserID, in.PropertyID, in.PropertyName,
		in.BookingID, in.MainGuestName, in.MainGuestEmail, in.MainGuestPhoneNumber,
		in.NumberOfGuests, in.CheckInDate.UTC(), in.CheckOutDate.UTC(), in.TermsAndConditions,
		model.StatusAwaitingGuest,
	)
	if err != nil {
		return nil, fmt.Errorf("insert submission: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}

	for n := 1; n <= in.NumberOfGuests; n++ {
		_, err := tx.Exec(
			`INSERT INTO guests (id, submission_id, guest_number, status) VALUES (?, ?, ?, ?)`,
			uuid.NewString(), id, n, model.GuestPending,
		)
		if err != nil {
			return nil, fmt.Errorf("insert guest %d: %w", n, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return s.GetByID(id)
}

func (s *SubmissionStore) GetByID(id int64) (*model.Submission, error) {
	row := s.db.QueryRow(`SELECT `+submissionCols+` FROM submissions WHERE id = ?`, id)
	return s.hydrate(row)
}

// GetByPublicID looks a submission up by its unguessable link identifier.
func (s *SubmissionStore) GetByPublicID(publicID string) (*model.Submission, error) {
	row := s.db.QueryRow(`SELECT `+submissionCols+` FROM submissions WHERE public_id = ?`, publicID)
	return s.hydrate(row)
}

func (s *SubmissionStore) hydrate(row *sql.Row) (*model.Submission, error) {
	sub, err := scanSubmission(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get submission: %w", err)
	}
	guests, err := s.loadGuests(sub.ID)
	if err != nil {
		return nil, err
	}
	sub.Guests = guests
	return sub, nil
}

func (s *SubmissionStore) loadGuests(submissionID int64) ([]model.Guest, error) {
	rows, err := s.db.Query(
		`SELECT `+guestCols+` FROM guests WHERE submission_id = ? ORDER BY guest_number ASC`,
		submissionID,
	)
	if err != nil {
		return nil, fmt.Errorf("load guests: %w", err)
	}
	defer rows.Close()

	var guests []model.Guest
	for rows.Next() {
		var g model.Guest
		err := rows.Scan(&g.ID, &g.GuestNumber, &g.GuestEmail, &g.IDDocumentURL,
			&g.Status, &g.VerificationSummary, &g.VerificationIssues)
		if err != nil {
			return nil, fmt.Errorf("scan guest: %w", err)
		}
		guests = append(guests, g)
	}
	return guests, rows.Err()
}

// ListByUser returns a user's submissions, newest first, optionally
// filtered to one property. Guests are loaded for each.
func (s *SubmissionStore) ListByUser(userID int64, propertyID *int64) ([]model.Submission, error) {
	query := `SELECT ` + submissionCols + ` FROM submissions WHERE user_id = ?`
	args := []any{userID}
	if propertyID != nil {
		query += ` AND property_id = ?`
		args = append(args, *propertyID)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}
	defer rows.Close()

	var subs []model.Submission
	for rows.Next() {
		sub, err := scanSubmission(rows)
		if err != nil {
			return nil, fmt.Errorf("scan submission: %w", err)
		}
		subs = append(subs, *sub)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range subs {
		guests, err := s.loadGuests(subs[i].ID)
		if err != nil {
			return nil, err
		}
		subs[i].Guests = guests
	}
	return subs, nil
}

// UpdateGuests writes the full guest set together with the recomputed
// aggregate status, guarded by the submission's version. Returns ErrStale
// when another writer got there first; the caller must re-read and retry.
func (s *SubmissionStore) UpdateGuests(id, version int64, guests []model.Guest, status model.SubmissionStatus, documentReceived bool) (*model.Submission, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	docReceived := 0
	if documentReceived {
		docReceived = 1
	}
	result, err := tx.Exec(
		`UPDATE submissions SET status = ?, document_received = ?, version = version + 1, updated_at = datetime('now')
		 WHERE id = ? AND version = ?`,
		status, docReceived, id, version,
	)
	if err != nil {
		return nil, fmt.Errorf("update submission: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return nil, ErrStale
	}

	for _, g := range guests {
		_, err := tx.Exec(
			`UPDATE guests SET guest_email = ?, id_document_url = ?, status = ?,
				verification_summary = ?, verification_issues = ?
			 WHERE id = ? AND submission_id = ?`,
			g.GuestEmail, g.IDDocumentURL, g.Status,
			g.VerificationSummary, g.VerificationIssues, g.ID, id,
		)
		if err != nil {
			return nil, fmt.Errorf("update guest %s: %w", g.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return s.GetByID(id)
}

// SetGuestEmail records a guest's contact address without bumping the
// submission version. It does not participate in the status machine.
func (s *SubmissionStore) SetGuestEmail(submissionID int64, guestID, email string) error {
	_, err := s.db.Exec(
		`UPDATE guests SET guest_email = ? WHERE submission_id = ? AND id = ?`,
		email, submissionID, guestID,
	)
	if err != nil {
		return fmt.Errorf("set guest email: %w", err)
	}
	return nil
}

func (s *SubmissionStore) Delete(id int64) error {
	_, err := s.db.Exec(`DELETE FROM submissions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete submission: %w", err)
	}
	return nil
}

// ListPurgeEligible returns submissions checked out before the cutoff that
// still hold at least one guest document.
func (s *SubmissionStore) ListPurgeEligible(cutoff time.Time) ([]model.Submission, error) {
	rows, err := s.db.Query(
		`SELECT `+submissionCols+` FROM submissions
		 WHERE check_out_date < ?
		   AND EXISTS (SELECT 1 FROM guests WHERE guests.submission_id = submissions.id AND guests.id_document_url != '')
		 ORDER BY check_out_date ASC`,
		cutoff.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("list purge eligible: %w", err)
	}
	defer rows.Close()

	var subs []model.Submission
	for rows.Next() {
		sub, err := scanSubmission(rows)
		if err != nil {
			return nil, fmt.Errorf("scan submission: %w", err)
		}
		subs = append(subs, *sub)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range subs {
		guests, err := s.loadGuests(subs[i].ID)
		if err != nil {
			return nil, err
		}
		subs[i].Guests = guests
	}
	return subs, nil
}
