package schedule

import (
	"fmt"
	"time"

	"curbside/internal/model"
)

// FormatDatetime renders a timestamp the way reservation rows display it,
// ex: "Mar 5, 2:24 PM".
func FormatDatetime(t time.Time) string {
	return t.Format("Jan 2, 3:04 PM")
}

// StatusLabel maps a status to its display label.
func StatusLabel(s model.Status) string {
	switch s {
	case model.StatusPending:
		return "Pending"
	case model.StatusAccepted:
		return "Accepted"
	case model.StatusCompleted:
		return "Completed"
	}
	return "Canceled"
}

// ShortID abbreviates long reservation ids for display.
func ShortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8] + "..."
}

// ConfirmationMessage echoes what was booked after a successful submission.
// The scheduled time is rendered in the viewer's local zone.
func ConfirmationMessage(req model.ScheduledReservationRequest) string {
	return fmt.Sprintf("Your %s ride is scheduled for %s.\n\n%s -> %s",
		req.RideClass, FormatDatetime(req.ScheduledAt.Local()), req.Pickup, req.Dropoff)
}
