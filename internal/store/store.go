package store

import (
	"context"
	"errors"

	"curbside/internal/model"
)

// Store is the remote reservation persistence contract the engine runs
// against. Cross-actor concurrency is resolved here, never client-side:
// callers treat every read as the current truth.
type Store interface {
	// CreateReservation persists a validated request as a pending record
	// owned by ownerID and returns the new record id.
	CreateReservation(ctx context.Context, req model.ScheduledReservationRequest, ownerID string) (string, error)

	// ListOwn returns ownerID's most recent records, newest first.
	ListOwn(ctx context.Context, ownerID string, limit int) ([]model.ReservationRecord, error)

	// ListPending returns pending immediate/scheduled records across all
	// owners, newest first. This is the set drivers browse.
	ListPending(ctx context.Context, limit int) ([]model.ReservationRecord, error)

	// CancelReservation transitions a record to canceled with a timestamp.
	// It fails unless the row is owned by ownerID and currently pending or
	// accepted; on failure nothing is mutated.
	CancelReservation(ctx context.Context, id, ownerID string) (model.ReservationRecord, error)
}

var (
	ErrNotFound      = errors.New("reservation not found")
	ErrNotCancelable = errors.New("reservation can no longer be canceled")
)
