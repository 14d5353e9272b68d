package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/stayverify/stayverify/internal/docstore"
	"github.com/stayverify/stayverify/internal/model"
	"github.com/stayverify/stayverify/internal/store"
	"github.com/stayverify/stayverify/internal/verification"
)

const maxUploadBytes = 10 << 20

var allowedDocumentTypes = map[string]bool{
	"image/jpeg":      true,
	"image/png":       true,
	"image/webp":      true,
	"application/pdf": true,
}

// GuestHandler serves the unauthenticated guest-facing routes. Access
// control is the unguessable public submission ID in the link the manager
// shares with the booking's main guest.
type GuestHandler struct {
	submissions *store.SubmissionStore
	docs        *docstore.Store
	svc         *verification.Service
	logger      *slog.Logger
}

func NewGuestHandler(ss *store.SubmissionStore, docs *docstore.Store, svc *verification.Service, logger *slog.Logger) *GuestHandler {
	return &GuestHandler{submissions: ss, docs: docs, svc: svc, logger: logger}
}

// publicGuest is the guest's own view of an occupant slot. Verification
// notes are reviewer-only and never leave the authenticated API.
type publicGuest struct {
	ID          string            `json:"id"`
	GuestNumber int               `json:"guest_number"`
	Status      model.GuestStatus `json:"status"`
	HasDocument bool              `json:"has_document"`
}

type publicSubmission struct {
	PublicID           string                 `json:"public_id"`
	PropertyName       string                 `json:"property_name"`
	BookingID          string                 `json:"booking_id"`
	MainGuestName      string                 `json:"main_guest_name"`
	NumberOfGuests     int                    `json:"number_of_guests"`
	CheckInDate        time.Time              `json:"check_in_date"`
	CheckOutDate       time.Time              `json:"check_out_date"`
	TermsAndConditions string                 `json:"terms_and_conditions"`
	Status             model.SubmissionStatus `json:"status"`
	Guests             []publicGuest          `json:"guests"`
}

func (h *GuestHandler) lookup(w http.ResponseWriter, r *http.Request) *model.Submission {
	publicID := r.PathValue("publicID")
	sub, err := h.submissions.GetByPublicID(publicID)
	if err != nil {
		h.logger.Error("get submission by public id", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return nil
	}
	if sub == nil {
		writeError(w, http.StatusNotFound, "submission not found")
		return nil
	}
	return sub
}

// Get handles GET /api/public/submissions/{publicID}: the page behind the
// link shared with the guest.
func (h *GuestHandler) Get(w http.ResponseWriter, r *http.Request) {
	sub := h.lookup(w, r)
	if sub == nil {
		return
	}

	resp := publicSubmission{
		PublicID:           sub.PublicID,
		PropertyName:       sub.PropertyName,
		BookingID:          sub.BookingID,
		MainGuestName:      sub.MainGuestName,
		NumberOfGuests:     sub.NumberOfGuests,
		CheckInDate:        sub.CheckInDate,
		CheckOutDate:       sub.CheckOutDate,
		TermsAndConditions: sub.TermsAndConditions,
		Status:             sub.Status,
		Guests:             make([]publicGuest, 0, len(sub.Guests)),
	}
	for _, g := range sub.Guests {
		resp.Guests = append(resp.Guests, publicGuest{
			ID:          g.ID,
			GuestNumber: g.GuestNumber,
			Status:      g.Status,
			HasDocument: g.HasDocument(),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// Upload handles POST /api/public/submissions/{publicID}/guests/{guestID}/document.
// Multipart form with a "document" file and an optional "guest_email" field.
// Re-uploading replaces the previous document and resets nothing else.
func (h *GuestHandler) Upload(w http.ResponseWriter, r *http.Request) {
	sub := h.lookup(w, r)
	if sub == nil {
		return
	}
	guest := sub.GuestByID(r.PathValue("guestID"))
	if guest == nil {
		writeError(w, http.StatusNotFound, "guest not found")
		return
	}
	if h.docs == nil || !h.docs.Configured() {
		writeError(w, http.StatusServiceUnavailable, "document storage is not configured")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "document must be smaller than 10MB")
		return
	}
	file, header, err := r.FormFile("document")
	if err != nil {
		writeError(w, http.StatusBadRequest, "a document file is required")
		return
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	if !allowedDocumentTypes[contentType] {
		writeError(w, http.StatusUnsupportedMediaType, "document must be a JPEG, PNG, WebP, or PDF")
		return
	}

	key, err := h.docs.Upload(r.Context(), sub.PublicID, guest.GuestNumber, header.Filename, contentType, file, header.Size)
	if err != nil {
		h.logger.Error("upload document", "error", err, "public_id", sub.PublicID)
		writeError(w, http.StatusBadGateway, "document upload failed")
		return
	}

	guestEmail := strings.ToLower(strings.TrimSpace(r.FormValue("guest_email")))
	updated, err := h.svc.AttachDocument(sub.PublicID, guest.ID, key, guestEmail)
	if err != nil {
		switch {
		case errors.Is(err, verification.ErrSubmissionNotFound), errors.Is(err, verification.ErrGuestNotFound):
			writeError(w, http.StatusNotFound, err.Error())
		default:
			h.logger.Error("attach document", "error", err)
			writeError(w, http.StatusInternalServerError, "internal error")
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"guest_id": guest.ID,
		"status":   updated.Status,
	})
}

// UpdateEmail handles PATCH /api/public/submissions/{publicID}/guests/{guestID}:
// lets a guest register a contact address before or after uploading.
func (h *GuestHandler) UpdateEmail(w http.ResponseWriter, r *http.Request) {
	sub := h.lookup(w, r)
	if sub == nil {
		return
	}
	guest := sub.GuestByID(r.PathValue("guestID"))
	if guest == nil {
		writeError(w, http.StatusNotFound, "guest not found")
		return
	}

	var req struct {
		GuestEmail string `json:"guest_email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	addr := strings.ToLower(strings.TrimSpace(req.GuestEmail))
	if addr == "" || !strings.Contains(addr, "@") {
		writeError(w, http.StatusBadRequest, "a valid guest_email is required")
		return
	}

	if err := h.submissions.SetGuestEmail(sub.ID, guest.ID, addr); err != nil {
		h.logger.Error("set guest email", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
