package push

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/stayverify/stayverify/internal/model"
	"github.com/stayverify/stayverify/internal/store"
)

type sender interface {
	Send(sub *model.PushSubscription, payload Payload) error
}

// Alerter fans verification events out to all of a manager's registered
// browser endpoints. Expired endpoints are pruned as they are discovered.
type Alerter struct {
	service sender
	subs    *store.PushStore
	logger  *slog.Logger
}

func NewAlerter(service *Service, subs *store.PushStore, logger *slog.Logger) *Alerter {
	return &Alerter{
		service: service,
		subs:    subs,
		logger:  logger.With("component", "push"),
	}
}

// SendUploadAlert notifies a property manager that a guest uploaded an ID
// document.
func (a *Alerter) SendUploadAlert(userID int64, propertyName, bookingID string, guestNumber int) error {
	subs, err := a.subs.ListByUser(userID)
	if err != nil {
		return fmt.Errorf("list push subscriptions: %w", err)
	}

	payload := Payload{
		Title: "New ID document",
		Body:  fmt.Sprintf("Guest %d on booking %s at %s uploaded an ID document", guestNumber, bookingID, propertyName),
		URL:   "/dashboard",
		Tag:   fmt.Sprintf("upload-%s-%d", bookingID, guestNumber),
	}

	for _, sub := range subs {
		if err := a.service.Send(&sub, payload); err != nil {
			if errors.Is(err, ErrExpired) {
				a.subs.DeleteByEndpoint(sub.Endpoint)
				continue
			}
			a.logger.Warn("failed to send push alert", "endpoint", sub.Endpoint, "error", err)
		}
	}
	return nil
}
