package handler

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/stripe/stripe-go/v82"

	"github.com/stayverify/stayverify/internal/email"
	"github.com/stayverify/stayverify/internal/model"
	"github.com/stayverify/stayverify/internal/payment"
	"github.com/stayverify/stayverify/internal/store"
)

const maxWebhookBodyBytes = 65536

// WebhookHandler receives payment-gateway events. Every event is recorded
// before processing so retries from the gateway stay idempotent.
type WebhookHandler struct {
	payments   *payment.Client
	events     *store.WebhookEventStore
	properties *store.PropertyStore
	users      *store.UserStore
	mail       *email.Client
	logger     *slog.Logger
}

func NewWebhookHandler(
	payments *payment.Client,
	events *store.WebhookEventStore,
	properties *store.PropertyStore,
	users *store.UserStore,
	mail *email.Client,
	logger *slog.Logger,
) *WebhookHandler {
	return &WebhookHandler{
		payments:   payments,
		events:     events,
		properties: properties,
		users:      users,
		mail:       mail,
		logger:     logger,
	}
}

// HandleStripe handles POST /api/webhooks/stripe.
func (h *WebhookHandler) HandleStripe(w http.ResponseWriter, r *http.Request) {
	if h.payments == nil || !h.payments.Configured() {
		writeError(w, http.StatusServiceUnavailable, "payments are not configured")
		return
	}

	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "read body failed")
		return
	}

	event, err := h.payments.ConstructWebhookEvent(payload, r.Header.Get("Stripe-Signature"))
	if err != nil {
		h.logger.Warn("webhook signature verification failed", "error", err)
		writeError(w, http.StatusBadRequest, "invalid signature")
		return
	}

	recorded, fresh, err := h.events.Record(event.ID, string(event.Type))
	if err != nil {
		h.logger.Error("record webhook event", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if !fresh {
		// Already seen. Acknowledge so the gateway stops retrying.
		writeJSON(w, http.StatusOK, map[string]string{"status": "duplicate"})
		return
	}

	if err := h.process(event); err != nil {
		h.logger.Error("process webhook event", "error", err, "event_id", event.ID, "type", event.Type)
		if markErr := h.events.MarkProcessed(recorded.ID, model.WebhookFailed, err.Error()); markErr != nil {
			h.logger.Error("mark webhook failed", "error", markErr)
		}
		// Still 200: the failure is ours to investigate, not the gateway's
		// to retry against a recorded event.
		writeJSON(w, http.StatusOK, map[string]string{"status": "error"})
		return
	}

	if err := h.events.MarkProcessed(recorded.ID, model.WebhookCompleted, ""); err != nil {
		h.logger.Error("mark webhook completed", "error", err)
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *WebhookHandler) process(event stripe.Event) error {
	switch event.Type {
	case "checkout.session.completed":
		return h.handleCheckoutCompleted(event)
	default:
		h.logger.Debug("ignoring webhook event", "type", event.Type)
		return nil
	}
}

func (h *WebhookHandler) handleCheckoutCompleted(event stripe.Event) error {
	var session stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		return fmt.Errorf("unmarshal checkout session: %w", err)
	}

	raw := session.Metadata["property_id"]
	if raw == "" {
		raw = session.ClientReferenceID
	}
	propertyID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return fmt.Errorf("parse property id %q: %w", raw, err)
	}

	now := time.Now()
	prop, err := h.properties.ActivateSubscription(propertyID, now, now.AddDate(1, 0, 0))
	if err != nil {
		return fmt.Errorf("activate subscription: %w", err)
	}
	if prop == nil {
		return fmt.Errorf("property %d not found", propertyID)
	}
	h.logger.Info("subscription activated", "property_id", prop.ID, "until", prop.SubscriptionEndDate)

	h.sendWelcome(prop)
	return nil
}

func (h *WebhookHandler) sendWelcome(prop *model.Property) {
	if h.mail == nil || !h.mail.Configured() {
		return
	}
	owner, err := h.users.GetByID(prop.OwnerID)
	if err != nil || owner == nil {
		h.logger.Error("load property owner for welcome email", "error", err, "property_id", prop.ID)
		return
	}
	if err := h.mail.SendSubscriptionWelcome(owner.Email, prop.Name); err != nil {
		h.logger.Error("send subscription welcome", "error", err, "property_id", prop.ID)
	}
}
