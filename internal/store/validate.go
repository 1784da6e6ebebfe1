package store

import (
	"errors"
	"strings"
	"time"

	"curbside/internal/model"
)

// validateInsert enforces the store-side write rules shared by both
// implementations. Messages surface to the user verbatim.
func validateInsert(req model.ScheduledReservationRequest, now time.Time) error {
	if strings.TrimSpace(req.Pickup) == "" {
		return errors.New("Pickup location is required.")
	}
	if strings.TrimSpace(req.Dropoff) == "" {
		return errors.New("Dropoff location is required.")
	}
	if req.ScheduledAt.IsZero() {
		return errors.New("Scheduled date/time is invalid.")
	}
	if !req.ScheduledAt.After(now) {
		return errors.New("Scheduled date/time must be in the future.")
	}
	return nil
}
