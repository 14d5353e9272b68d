package model

import "time"

type SubscriptionStatus string

const (
	SubscriptionActive   SubscriptionStatus = "active"
	SubscriptionInactive SubscriptionStatus = "inactive"
)

// Property is a managed accommodation owned by a user. Submissions are
// created against it; creating submissions requires an active subscription.
type Property struct {
	ID                    int64              `json:"id"`
	OwnerID               int64              `json:"owner_id"`
	Name                  string             `json:"name"`
	Address               string             `json:"address"`
	ContactPhone          string             `json:"contact_phone"`
	LogoURL               string             `json:"logo_url,omitempty"`
	SubscriptionStatus    SubscriptionStatus `json:"subscription_status"`
	SubscriptionStartDate *time.Time         `json:"subscription_start_date,omitempty"`
	SubscriptionEndDate   *time.Time         `json:"subscription_end_date,omitempty"`
	CreatedAt             time.Time          `json:"created_at"`
	UpdatedAt             time.Time          `json:"updated_at"`
}

// SubscriptionCurrent reports whether the property's subscription window
// covers the given instant.
func (p Property) SubscriptionCurrent(now time.Time) bool {
	if p.SubscriptionStatus != SubscriptionActive {
		return false
	}
	if p.SubscriptionEndDate != nil && now.After(*p.SubscriptionEndDate) {
		return false
	}
	return true
}
