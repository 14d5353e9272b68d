package verification

import "github.com/stayverify/stayverify/internal/model"

// Aggregate derives a submission's status from its guest list. It is the
// only place the aggregation rule lives; every write path that can change a
// guest recomputes and persists through it.
//
// awaitingGuest is true while no guest has ever uploaded a document. Once a
// document arrives the phase is exited for good, which callers track with
// the submission's DocumentReceived latch, so a later purge cannot bring
// "Awaiting Guest" back.
func Aggregate(guests []model.Guest, awaitingGuest bool) model.SubmissionStatus {
	if awaitingGuest && !anyDocument(guests) {
		return model.StatusAwaitingGuest
	}

	allApproved := true
	allDecided := true
	anyApproved := false
	anyRejected := false
	for _, g := range guests {
		switch g.Status {
		case model.GuestApproved:
			anyApproved = true
		case model.GuestRejected:
			anyRejected = true
			allApproved = false
		default:
			allApproved = false
			allDecided = false
		}
	}

	switch {
	case allApproved:
		return model.StatusApproved
	case allDecided && anyApproved && anyRejected:
		return model.StatusPartiallyApproved
	case allDecided && anyRejected:
		// Every guest was rejected.
		return model.StatusRejected
	default:
		return model.StatusPending
	}
}

func anyDocument(guests []model.Guest) bool {
	for _, g := range guests {
		if g.HasDocument() {
			return true
		}
	}
	return false
}
