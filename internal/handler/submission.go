package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/stayverify/stayverify/internal/ai"
	"github.com/stayverify/stayverify/internal/auth"
	"github.com/stayverify/stayverify/internal/docstore"
	"github.com/stayverify/stayverify/internal/model"
	"github.com/stayverify/stayverify/internal/store"
	"github.com/stayverify/stayverify/internal/verification"
)

const maxGuestsPerSubmission = 10

// cleaner runs a retention sweep on demand.
type cleaner interface {
	Sweep(ctx context.Context) (int, error)
}

type SubmissionHandler struct {
	submissions *store.SubmissionStore
	properties  *store.PropertyStore
	svc         *verification.Service
	analysis    *ai.Client
	docs        *docstore.Store
	sweeper     cleaner
	logger      *slog.Logger
}

func NewSubmissionHandler(
	ss *store.SubmissionStore,
	ps *store.PropertyStore,
	svc *verification.Service,
	analysis *ai.Client,
	docs *docstore.Store,
	sweeper cleaner,
	logger *slog.Logger,
) *SubmissionHandler {
	return &SubmissionHandler{
		submissions: ss,
		properties:  ps,
		svc:         svc,
		analysis:    analysis,
		docs:        docs,
		sweeper:     sweeper,
		logger:      logger,
	}
}

// ownedSubmission loads a submission and checks the caller owns it.
func (h *SubmissionHandler) ownedSubmission(w http.ResponseWriter, r *http.Request) *model.Submission {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return nil
	}
	sub, err := h.submissions.GetByID(id)
	if err != nil {
		h.logger.Error("get submission", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return nil
	}
	if sub == nil || (sub.UserID != auth.UserID(r.Context()) && !auth.IsAdmin(r.Context())) {
		writeError(w, http.StatusNotFound, "submission not found")
		return nil
	}
	return sub
}

type createSubmissionRequest struct {
	PropertyID           int64     `json:"property_id"`
	BookingID            string    `json:"booking_id"`
	MainGuestName        string    `json:"main_guest_name"`
	MainGuestEmail       string    `json:"main_guest_email"`
	MainGuestPhoneNumber string    `json:"main_guest_phone_number"`
	NumberOfGuests       int       `json:"number_of_guests"`
	CheckInDate          time.Time `json:"check_in_date"`
	CheckOutDate         time.Time `json:"check_out_date"`
	TermsAndConditions   string    `json:"terms_and_conditions"`
}

// Create handles POST /api/submissions. The property must belong to the
// caller and carry a current subscription.
func (h *SubmissionHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createSubmissionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if strings.TrimSpace(req.MainGuestName) == "" || req.BookingID == "" {
		writeError(w, http.StatusBadRequest, "booking_id and main_guest_name are required")
		return
	}
	if req.NumberOfGuests < 1 || req.NumberOfGuests > maxGuestsPerSubmission {
		writeError(w, http.StatusBadRequest, "number_of_guests must be between 1 and 10")
		return
	}
	if !req.CheckOutDate.After(req.CheckInDate) {
		writeError(w, http.StatusBadRequest, "check_out_date must be after check_in_date")
		return
	}

	prop, err := h.properties.GetByID(req.PropertyID)
	if err != nil {
		h.logger.Error("get property", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if prop == nil || prop.OwnerID != auth.UserID(r.Context()) {
		writeError(w, http.StatusNotFound, "property not found")
		return
	}
	if !prop.SubscriptionCurrent(time.Now()) {
		writeError(w, http.StatusPaymentRequired, "property subscription is not active")
		return
	}

	sub, err := h.submissions.Create(store.NewSubmission{
		UserID:               auth.UserID(r.Context()),
		PropertyID:           prop.ID,
		PropertyName:         prop.Name,
		BookingID:            strings.TrimSpace(req.BookingID),
		MainGuestName:        strings.TrimSpace(req.MainGuestName),
		MainGuestEmail:       strings.ToLower(strings.TrimSpace(req.MainGuestEmail)),
		MainGuestPhoneNumber: strings.TrimSpace(req.MainGuestPhoneNumber),
		NumberOfGuests:       req.NumberOfGuests,
		CheckInDate:          req.CheckInDate,
		CheckOutDate:         req.CheckOutDate,
		TermsAndConditions:   req.TermsAndConditions,
	})
	if err != nil {
		h.logger.Error("create submission", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusCreated, sub)
}

// List handles GET /api/submissions with an optional property_id filter.
func (h *SubmissionHandler) List(w http.ResponseWriter, r *http.Request) {
	var propertyID *int64
	if raw := r.URL.Query().Get("property_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid property_id")
			return
		}
		propertyID = &id
	}

	subs, err := h.submissions.ListByUser(auth.UserID(r.Context()), propertyID)
	if err != nil {
		h.logger.Error("list submissions", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if subs == nil {
		subs = []model.Submission{}
	}
	writeJSON(w, http.StatusOK, subs)
}

// Get handles GET /api/submissions/{id}.
func (h *SubmissionHandler) Get(w http.ResponseWriter, r *http.Request) {
	sub := h.ownedSubmission(w, r)
	if sub == nil {
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

// Delete handles DELETE /api/submissions/{id}.
func (h *SubmissionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	sub := h.ownedSubmission(w, r)
	if sub == nil {
		return
	}
	if err := h.submissions.Delete(sub.ID); err != nil {
		h.logger.Error("delete submission", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Assess handles POST /api/submissions/{id}/guests/{guestID}/assess: asks
// the analysis API to summarize the guest's document and stores the result.
// The assessment is advisory; it never changes any status.
func (h *SubmissionHandler) Assess(w http.ResponseWriter, r *http.Request) {
	sub := h.ownedSubmission(w, r)
	if sub == nil {
		return
	}
	guest := sub.GuestByID(r.PathValue("guestID"))
	if guest == nil {
		writeError(w, http.StatusNotFound, "guest not found")
		return
	}
	if !guest.HasDocument() {
		writeError(w, http.StatusConflict, "guest has not uploaded a document")
		return
	}
	if h.analysis == nil || !h.analysis.Configured() {
		writeError(w, http.StatusServiceUnavailable, "document analysis is not configured")
		return
	}

	assessment, err := h.analysis.Summarize(r.Context(), guest.IDDocumentURL)
	if err != nil {
		h.logger.Error("summarize document", "error", err)
		writeError(w, http.StatusBadGateway, "document analysis failed")
		return
	}

	updated, err := h.svc.RecordAssessment(sub.ID, guest.ID, assessment.Summary, assessment.PotentialIssues)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

type verifyDocumentRequest struct {
	IDType string `json:"id_type"`
}

// VerifyDocument handles POST /api/submissions/{id}/guests/{guestID}/verify:
// asks the analysis API whether the document looks genuine for the claimed
// type. The result is returned to the reviewer, not persisted.
func (h *SubmissionHandler) VerifyDocument(w http.ResponseWriter, r *http.Request) {
	sub := h.ownedSubmission(w, r)
	if sub == nil {
		return
	}
	guest := sub.GuestByID(r.PathValue("guestID"))
	if guest == nil {
		writeError(w, http.StatusNotFound, "guest not found")
		return
	}
	if !guest.HasDocument() {
		writeError(w, http.StatusConflict, "guest has not uploaded a document")
		return
	}

	var req verifyDocumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if !ai.ValidIDType(req.IDType) {
		writeError(w, http.StatusBadRequest, "id_type must be Passport, Driving License, or Aadhar")
		return
	}
	if h.analysis == nil || !h.analysis.Configured() {
		writeError(w, http.StatusServiceUnavailable, "document analysis is not configured")
		return
	}

	result, err := h.analysis.VerifyAuthenticity(r.Context(), guest.IDDocumentURL, req.IDType)
	if err != nil {
		h.logger.Error("verify document", "error", err)
		writeError(w, http.StatusBadGateway, "document analysis failed")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type decisionRequest struct {
	Outcome model.GuestStatus `json:"outcome"`
	Summary string            `json:"summary"`
	Issues  string            `json:"issues"`
}

// Decide handles POST /api/submissions/{id}/guests/{guestID}/decision.
func (h *SubmissionHandler) Decide(w http.ResponseWriter, r *http.Request) {
	sub := h.ownedSubmission(w, r)
	if sub == nil {
		return
	}

	var req decisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	updated, err := h.svc.Decide(sub.ID, r.PathValue("guestID"), req.Outcome, req.Summary, req.Issues)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// Document handles GET /api/submissions/{id}/guests/{guestID}/document:
// streams the guest's uploaded ID document to the reviewer.
func (h *SubmissionHandler) Document(w http.ResponseWriter, r *http.Request) {
	sub := h.ownedSubmission(w, r)
	if sub == nil {
		return
	}
	guest := sub.GuestByID(r.PathValue("guestID"))
	if guest == nil {
		writeError(w, http.StatusNotFound, "guest not found")
		return
	}
	if !guest.HasDocument() {
		writeError(w, http.StatusNotFound, "guest has no document")
		return
	}
	if h.docs == nil || !h.docs.Configured() {
		writeError(w, http.StatusServiceUnavailable, "document storage is not configured")
		return
	}

	body, contentType, err := h.docs.Fetch(r.Context(), guest.IDDocumentURL)
	if err != nil {
		h.logger.Error("fetch document", "error", err, "key", guest.IDDocumentURL)
		writeError(w, http.StatusBadGateway, "document fetch failed")
		return
	}
	defer body.Close()

	if contentType != "" {
		w.Header().Set("Content-Type", contentType)
	}
	w.Header().Set("Cache-Control", "private, no-store")
	if _, err := io.Copy(w, body); err != nil {
		h.logger.Error("stream document", "error", err)
	}
}

// Cleanup handles POST /api/admin/cleanup: runs a retention sweep now.
func (h *SubmissionHandler) Cleanup(w http.ResponseWriter, r *http.Request) {
	purged, err := h.sweeper.Sweep(r.Context())
	if err != nil {
		h.logger.Error("manual retention sweep", "error", err)
		writeError(w, http.StatusInternalServerError, "cleanup failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"purged": purged})
}

func (h *SubmissionHandler) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, verification.ErrSubmissionNotFound), errors.Is(err, verification.ErrGuestNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, verification.ErrNoDocument):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, verification.ErrInvalidOutcome):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		h.logger.Error("verification service", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
