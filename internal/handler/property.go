package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/stayverify/stayverify/internal/auth"
	"github.com/stayverify/stayverify/internal/model"
	"github.com/stayverify/stayverify/internal/payment"
	"github.com/stayverify/stayverify/internal/store"
)

type PropertyHandler struct {
	properties *store.PropertyStore
	users      *store.UserStore
	payments   *payment.Client
	logger     *slog.Logger
}

func NewPropertyHandler(ps *store.PropertyStore, us *store.UserStore, pc *payment.Client, logger *slog.Logger) *PropertyHandler {
	return &PropertyHandler{
		properties: ps,
		users:      us,
		payments:   pc,
		logger:     logger,
	}
}

// ownedProperty loads a property and checks the caller owns it. Writes the
// error response and returns nil when the check fails.
func (h *PropertyHandler) ownedProperty(w http.ResponseWriter, r *http.Request) *model.Property {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return nil
	}
	prop, err := h.properties.GetByID(id)
	if err != nil {
		h.logger.Error("get property", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return nil
	}
	if prop == nil || (prop.OwnerID != auth.UserID(r.Context()) && !auth.IsAdmin(r.Context())) {
		writeError(w, http.StatusNotFound, "property not found")
		return nil
	}
	return prop
}

type propertyRequest struct {
	Name         string `json:"name"`
	Address      string `json:"address"`
	ContactPhone string `json:"contact_phone"`
	LogoURL      string `json:"logo_url"`
}

// Create handles POST /api/properties.
func (h *PropertyHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req propertyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	prop, err := h.properties.Create(auth.UserID(r.Context()), strings.TrimSpace(req.Name), strings.TrimSpace(req.Address), strings.TrimSpace(req.ContactPhone))
	if err != nil {
		h.logger.Error("create property", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusCreated, prop)
}

// List handles GET /api/properties.
func (h *PropertyHandler) List(w http.ResponseWriter, r *http.Request) {
	props, err := h.properties.ListByOwner(auth.UserID(r.Context()))
	if err != nil {
		h.logger.Error("list properties", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if props == nil {
		props = []model.Property{}
	}
	writeJSON(w, http.StatusOK, props)
}

// Get handles GET /api/properties/{id}.
func (h *PropertyHandler) Get(w http.ResponseWriter, r *http.Request) {
	prop := h.ownedProperty(w, r)
	if prop == nil {
		return
	}
	writeJSON(w, http.StatusOK, prop)
}

// Update handles PUT /api/properties/{id}.
func (h *PropertyHandler) Update(w http.ResponseWriter, r *http.Request) {
	prop := h.ownedProperty(w, r)
	if prop == nil {
		return
	}

	var req propertyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	updated, err := h.properties.Update(prop.ID, strings.TrimSpace(req.Name), strings.TrimSpace(req.Address), strings.TrimSpace(req.ContactPhone), strings.TrimSpace(req.LogoURL))
	if err != nil {
		h.logger.Error("update property", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// Delete handles DELETE /api/properties/{id}.
func (h *PropertyHandler) Delete(w http.ResponseWriter, r *http.Request) {
	prop := h.ownedProperty(w, r)
	if prop == nil {
		return
	}
	if err := h.properties.Delete(prop.ID); err != nil {
		h.logger.Error("delete property", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CreateCheckout handles POST /api/properties/{id}/checkout: starts a
// Stripe subscription checkout for the property and returns the hosted URL.
func (h *PropertyHandler) CreateCheckout(w http.ResponseWriter, r *http.Request) {
	prop := h.ownedProperty(w, r)
	if prop == nil {
		return
	}
	if h.payments == nil || !h.payments.Configured() {
		writeError(w, http.StatusServiceUnavailable, "payments are not configured")
		return
	}

	user, err := h.users.GetByID(auth.UserID(r.Context()))
	if err != nil || user == nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	customerID, err := h.payments.CreateCustomer(user.Email)
	if err != nil {
		h.logger.Error("create stripe customer", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to start checkout")
		return
	}

	url, err := h.payments.CreateCheckoutSession(customerID, prop.ID)
	if err != nil {
		h.logger.Error("create checkout session", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to start checkout")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"url": url})
}
