package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"curbside/internal/clock"
	"curbside/internal/feed"
	"curbside/internal/model"
)

// Memory is an in-memory store used when no DATABASE_URL is set, and the
// substrate for engine tests.
type Memory struct {
	mu     sync.Mutex
	rows   map[string]model.ReservationRecord // id -> record
	order  []string                           // ids in insertion order
	clock  clock.Clock
	broker feed.Broker // optional
}

func NewMemory(clk clock.Clock, broker feed.Broker) *Memory {
	return &Memory{
		rows:   map[string]model.ReservationRecord{},
		clock:  clk,
		broker: broker,
	}
}

func (m *Memory) CreateReservation(ctx context.Context, req model.ScheduledReservationRequest, ownerID string) (string, error) {
	if err := validateInsert(req, m.clock.Now()); err != nil {
		return "", err
	}

	now := m.clock.Now().UTC()
	rec := model.ReservationRecord{
		ID:           uuid.New().String(),
		OwnerID:      ownerID,
		Kind:         req.Kind,
		Status:       model.StatusPending,
		RideClass:    req.RideClass,
		PickupLabel:  req.Pickup,
		DropoffLabel: req.Dropoff,
		ScheduledAt:  req.ScheduledAt,
		CreatedAt:    now,
	}

	m.mu.Lock()
	m.rows[rec.ID] = rec
	m.order = append(m.order, rec.ID)
	m.mu.Unlock()

	m.publish(feed.Inserted(rec))
	return rec.ID, nil
}

func (m *Memory) ListOwn(ctx context.Context, ownerID string, limit int) ([]model.ReservationRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []model.ReservationRecord{}
	for i := len(m.order) - 1; i >= 0 && len(out) < limit; i-- {
		r := m.rows[m.order[i]]
		if r.OwnerID == ownerID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *Memory) ListPending(ctx context.Context, limit int) ([]model.ReservationRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []model.ReservationRecord{}
	for i := len(m.order) - 1; i >= 0 && len(out) < limit; i-- {
		r := m.rows[m.order[i]]
		if r.Status == model.StatusPending && (r.Kind == model.KindImmediate || r.Kind == model.KindScheduled) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *Memory) CancelReservation(ctx context.Context, id, ownerID string) (model.ReservationRecord, error) {
	m.mu.Lock()
	before, ok := m.rows[id]
	if !ok || before.OwnerID != ownerID {
		m.mu.Unlock()
		return model.ReservationRecord{}, ErrNotFound
	}
	if !before.Status.CanTransitionTo(model.StatusCanceled) {
		m.mu.Unlock()
		return model.ReservationRecord{}, ErrNotCancelable
	}
	now := m.clock.Now().UTC()
	after := before
	after.Status = model.StatusCanceled
	after.CanceledAt = &now
	m.rows[id] = after
	m.mu.Unlock()

	m.publish(feed.Updated(before, after))
	return after, nil
}

// TransitionStatus applies a transition produced by another actor (a driver
// accepting, a backend job completing). The engine never calls this for its
// own writes; seeds and tests use it to simulate the other side.
func (m *Memory) TransitionStatus(ctx context.Context, id string, next model.Status) (model.ReservationRecord, error) {
	m.mu.Lock()
	before, ok := m.rows[id]
	if !ok {
		m.mu.Unlock()
		return model.ReservationRecord{}, ErrNotFound
	}
	if !before.Status.CanTransitionTo(next) {
		m.mu.Unlock()
		return model.ReservationRecord{}, fmt.Errorf("cannot transition %s from %s to %s", id, before.Status, next)
	}
	after := before
	after.Status = next
	if next == model.StatusCanceled {
		now := m.clock.Now().UTC()
		after.CanceledAt = &now
	}
	m.rows[id] = after
	m.mu.Unlock()

	m.publish(feed.Updated(before, after))
	return after, nil
}

// Get returns a record by id, for tests and seeds.
func (m *Memory) Get(id string) (model.ReservationRecord, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rows[id]
	return r, ok
}

func (m *Memory) publish(evt feed.Event) {
	if m.broker != nil {
		m.broker.Publish(feed.ScopeReservations, evt)
	}
}
