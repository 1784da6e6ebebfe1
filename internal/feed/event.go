// Package feed carries row-level change notifications from the reservation
// store to listening clients.
package feed

import "curbside/internal/model"

// ScopeReservations is the change-feed channel for the reservations table.
const ScopeReservations = "reservations"

type Op string

const (
	OpInsert Op = "insert"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// Event is one row-level change, decoded once at the boundary. Before and
// After are the row images: an insert has only After, a delete only Before,
// an update both. Consumers inspect both since a row may transition into or
// out of relevance.
type Event struct {
	Op     Op                       `json:"op"`
	Before *model.ReservationRecord `json:"before,omitempty"`
	After  *model.ReservationRecord `json:"after,omitempty"`
}

func Inserted(after model.ReservationRecord) Event {
	return Event{Op: OpInsert, After: &after}
}

func Updated(before, after model.ReservationRecord) Event {
	return Event{Op: OpUpdate, Before: &before, After: &after}
}

func Deleted(before model.ReservationRecord) Event {
	return Event{Op: OpDelete, Before: &before}
}
