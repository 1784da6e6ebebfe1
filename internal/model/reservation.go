package model

import "time"

// RideClass is the closed set of service tiers a rider can request.
type RideClass string

const (
	RideClassEconomy   RideClass = "Economy"
	RideClassXL        RideClass = "XL"
	RideClassLuxury    RideClass = "Luxury"
	RideClassLuxurySUV RideClass = "Luxury SUV"
)

func (c RideClass) Valid() bool {
	switch c {
	case RideClassEconomy, RideClassXL, RideClassLuxury, RideClassLuxurySUV:
		return true
	}
	return false
}

// Kind distinguishes what a reservation is for.
type Kind string

const (
	KindImmediate Kind = "immediate"
	KindScheduled Kind = "scheduled"
	KindPackage   Kind = "package"
)

// Status is a reservation's lifecycle state. This client only ever writes the
// pending (create) and canceled (cancel) transitions; accepted and completed
// are produced by other actors and merely observed here.
type Status string

const (
	StatusPending   Status = "pending"
	StatusAccepted  Status = "accepted"
	StatusCompleted Status = "completed"
	StatusCanceled  Status = "canceled"
)

// Terminal reports whether no further transition is allowed out of s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCanceled
}

// CanTransitionTo implements the status machine:
// pending -> {accepted, canceled}; accepted -> {completed, canceled}.
func (s Status) CanTransitionTo(next Status) bool {
	switch s {
	case StatusPending:
		return next == StatusAccepted || next == StatusCanceled
	case StatusAccepted:
		return next == StatusCompleted || next == StatusCanceled
	}
	return false
}

// ReservationRecord is the durable entity owned by the remote store. Local
// copies are a lagging projection, replaced wholesale on every refresh.
type ReservationRecord struct {
	ID           string     `json:"id"`
	OwnerID      string     `json:"ownerId"`
	Kind         Kind       `json:"kind"`
	Status       Status     `json:"status"`
	RideClass    RideClass  `json:"rideClass"`
	PickupLabel  string     `json:"pickupLabel"`
	DropoffLabel string     `json:"dropoffLabel"`
	ScheduledAt  time.Time  `json:"scheduledAt"`
	CreatedAt    time.Time  `json:"createdAt"`
	CanceledAt   *time.Time `json:"canceledAt,omitempty"`
}

// ScheduledReservationRequest is the validated, serializable form of a draft.
// Build it through schedule.BuildRequest; the builder enforces the non-empty
// label and lead-time invariants so they are never re-checked downstream.
type ScheduledReservationRequest struct {
	Kind            Kind           `json:"kind"`
	Pickup          string         `json:"pickup"`
	Dropoff         string         `json:"dropoff"`
	PickupLocation  *LocationPoint `json:"pickupLocation,omitempty"`
	DropoffLocation *LocationPoint `json:"dropoffLocation,omitempty"`
	RideClass       RideClass      `json:"rideClass"`
	// ScheduledAt is normalized to UTC before submission.
	ScheduledAt time.Time `json:"scheduledAt"`
}
