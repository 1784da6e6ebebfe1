// Package schedule turns raw scheduling-form drafts into validated,
// serializable reservation requests.
package schedule

import (
	"strings"
	"time"

	"curbside/internal/clock"
	"curbside/internal/model"
)

// DefaultMinLeadTime is how far in the future a scheduled pickup must be.
const DefaultMinLeadTime = time.Hour

// ValidationCode identifies which check a draft failed.
type ValidationCode string

const (
	MissingPickup        ValidationCode = "missing_pickup"
	MissingDropoff       ValidationCode = "missing_dropoff"
	MissingRideClass     ValidationCode = "missing_ride_class"
	InsufficientLeadTime ValidationCode = "insufficient_lead_time"
)

// ValidationError is a local, pre-network failure. It is always recoverable
// by correcting input and never reaches the store.
type ValidationError struct {
	Code    ValidationCode
	Title   string
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// Builder validates drafts and produces reservation requests. It has no side
// effects; surfacing a ValidationError is the caller's job.
type Builder struct {
	Clock       clock.Clock
	MinLeadTime time.Duration
}

func NewBuilder(clk clock.Clock) *Builder {
	return &Builder{Clock: clk, MinLeadTime: DefaultMinLeadTime}
}

// BuildRequest runs the checks in order, stopping at the first failure:
// pickup, dropoff, ride class, lead time.
func (b *Builder) BuildRequest(d *model.ReservationDraft) (model.ScheduledReservationRequest, error) {
	pickup := strings.TrimSpace(d.Pickup)
	if pickup == "" {
		return model.ScheduledReservationRequest{}, &ValidationError{
			Code:    MissingPickup,
			Title:   "Missing pickup",
			Message: "Please enter a pickup location.",
		}
	}

	dropoff := strings.TrimSpace(d.Dropoff)
	if dropoff == "" {
		return model.ScheduledReservationRequest{}, &ValidationError{
			Code:    MissingDropoff,
			Title:   "Missing dropoff",
			Message: "Please enter a dropoff location.",
		}
	}

	if !d.RideClass.Valid() {
		return model.ScheduledReservationRequest{}, &ValidationError{
			Code:    MissingRideClass,
			Title:   "Missing ride type",
			Message: "Please select a ride type.",
		}
	}

	if b.leadTime(d) < b.minLead() {
		return model.ScheduledReservationRequest{}, &ValidationError{
			Code:    InsufficientLeadTime,
			Title:   "Invalid schedule time",
			Message: "Scheduled rides must be at least 1 hour from now at the pickup location.",
		}
	}

	return model.ScheduledReservationRequest{
		Kind:            model.KindScheduled,
		Pickup:          pickup,
		Dropoff:         dropoff,
		PickupLocation:  d.PickupLocation,
		DropoffLocation: d.DropoffLocation,
		RideClass:       d.RideClass,
		ScheduledAt:     d.ScheduledAt.UTC(),
	}, nil
}

func (b *Builder) minLead() time.Duration {
	if b.MinLeadTime > 0 {
		return b.MinLeadTime
	}
	return DefaultMinLeadTime
}

// leadTime measures how far ahead the draft's pickup is. When the pickup
// carries a known zone, both "now" and "scheduled" are compared as wall-clock
// readings at the pickup, so a ride for "8 AM tomorrow" three zones away is
// judged against 8 AM there rather than a raw UTC delta. With no zone (or an
// unloadable one) the exact absolute delta is used.
func (b *Builder) leadTime(d *model.ReservationDraft) time.Duration {
	now := b.Clock.Now()
	if d.PickupLocation != nil && d.PickupLocation.TimeZone != "" {
		if loc, err := time.LoadLocation(d.PickupLocation.TimeZone); err == nil {
			return wallClock(d.ScheduledAt, loc).Sub(wallClock(now, loc))
		}
	}
	return d.ScheduledAt.Sub(now)
}

// wallClock re-anchors t's civil reading in loc onto UTC so two readings in
// the same zone subtract cleanly.
func wallClock(t time.Time, loc *time.Location) time.Time {
	z := t.In(loc)
	return time.Date(z.Year(), z.Month(), z.Day(), z.Hour(), z.Minute(), z.Second(), 0, time.UTC)
}
