package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/google/uuid"

	"curbside/internal/clock"
	"curbside/internal/feed"
	"curbside/internal/model"
)

const recordColumns = `id::text, owner_id, kind, status, ride_class, pickup_label, dropoff_label, scheduled_at, created_at, canceled_at`

// Postgres persists reservations in PostgreSQL via the pgx stdlib driver.
type Postgres struct {
	db     *sql.DB
	clock  clock.Clock
	broker feed.Broker // optional
}

func NewPostgres(dsn string, clk clock.Clock, broker feed.Broker) (*Postgres, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return &Postgres{db: db, clock: clk, broker: broker}, nil
}

func (p *Postgres) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

// MigrateDir applies every *.sql file in dir in lexical order (dev helper).
func (p *Postgres) MigrateDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	names := []string{}
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	for _, name := range names {
		b, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return err
		}
		if _, err := p.db.Exec(string(b)); err != nil {
			return err
		}
	}
	return nil
}

func (p *Postgres) CreateReservation(ctx context.Context, req model.ScheduledReservationRequest, ownerID string) (string, error) {
	if err := validateInsert(req, p.clock.Now()); err != nil {
		return "", err
	}

	id := uuid.New()
	now := p.clock.Now().UTC()

	var pickupLat, pickupLng, dropoffLat, dropoffLng any
	if req.PickupLocation != nil {
		pickupLat = req.PickupLocation.Latitude
		pickupLng = req.PickupLocation.Longitude
	}
	if req.DropoffLocation != nil {
		dropoffLat = req.DropoffLocation.Latitude
		dropoffLng = req.DropoffLocation.Longitude
	}

	_, err := p.db.ExecContext(ctx, `INSERT INTO reservations
		(id, owner_id, kind, status, ride_class, pickup_label, pickup_lat, pickup_lng, dropoff_label, dropoff_lat, dropoff_lng, scheduled_at, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
		id, ownerID, string(req.Kind), string(model.StatusPending), string(req.RideClass),
		req.Pickup, pickupLat, pickupLng, req.Dropoff, dropoffLat, dropoffLng,
		req.ScheduledAt, now)
	if err != nil {
		return "", err
	}

	p.publish(feed.Inserted(model.ReservationRecord{
		ID:           id.String(),
		OwnerID:      ownerID,
		Kind:         req.Kind,
		Status:       model.StatusPending,
		RideClass:    req.RideClass,
		PickupLabel:  req.Pickup,
		DropoffLabel: req.Dropoff,
		ScheduledAt:  req.ScheduledAt,
		CreatedAt:    now,
	}))
	return id.String(), nil
}

func (p *Postgres) ListOwn(ctx context.Context, ownerID string, limit int) ([]model.ReservationRecord, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT `+recordColumns+`
		FROM reservations WHERE owner_id=$1 ORDER BY created_at DESC LIMIT $2`, ownerID, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	return collectRecords(rows)
}

func (p *Postgres) ListPending(ctx context.Context, limit int) ([]model.ReservationRecord, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT `+recordColumns+`
		FROM reservations WHERE status='pending' AND kind IN ('immediate','scheduled')
		ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	return collectRecords(rows)
}

func (p *Postgres) CancelReservation(ctx context.Context, id, ownerID string) (model.ReservationRecord, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return model.ReservationRecord{}, err
	}
	defer func() { _ = tx.Rollback() }()

	before, err := scanRecord(tx.QueryRowContext(ctx, `SELECT `+recordColumns+`
		FROM reservations WHERE id=$1 AND owner_id=$2 FOR UPDATE`, id, ownerID))
	if errors.Is(err, sql.ErrNoRows) {
		return model.ReservationRecord{}, ErrNotFound
	}
	if err != nil {
		return model.ReservationRecord{}, err
	}
	if !before.Status.CanTransitionTo(model.StatusCanceled) {
		return model.ReservationRecord{}, ErrNotCancelable
	}

	now := p.clock.Now().UTC()
	if _, err := tx.ExecContext(ctx, `UPDATE reservations SET status='canceled', canceled_at=$2 WHERE id=$1`, id, now); err != nil {
		return model.ReservationRecord{}, err
	}
	if err := tx.Commit(); err != nil {
		return model.ReservationRecord{}, err
	}

	after := before
	after.Status = model.StatusCanceled
	after.CanceledAt = &now
	p.publish(feed.Updated(before, after))
	return after, nil
}

// TransitionStatus applies a transition produced by another actor. Seeds use
// it to build accepted/completed fixtures; the engine itself never writes
// these states.
func (p *Postgres) TransitionStatus(ctx context.Context, id string, next model.Status) (model.ReservationRecord, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return model.ReservationRecord{}, err
	}
	defer func() { _ = tx.Rollback() }()

	before, err := scanRecord(tx.QueryRowContext(ctx, `SELECT `+recordColumns+`
		FROM reservations WHERE id=$1 FOR UPDATE`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.ReservationRecord{}, ErrNotFound
	}
	if err != nil {
		return model.ReservationRecord{}, err
	}
	if !before.Status.CanTransitionTo(next) {
		return model.ReservationRecord{}, fmt.Errorf("cannot transition %s from %s to %s", id, before.Status, next)
	}

	after := before
	after.Status = next
	var canceledAt any
	if next == model.StatusCanceled {
		now := p.clock.Now().UTC()
		after.CanceledAt = &now
		canceledAt = now
	}
	if _, err := tx.ExecContext(ctx, `UPDATE reservations SET status=$2, canceled_at=COALESCE($3, canceled_at) WHERE id=$1`, id, string(next), canceledAt); err != nil {
		return model.ReservationRecord{}, err
	}
	if err := tx.Commit(); err != nil {
		return model.ReservationRecord{}, err
	}

	p.publish(feed.Updated(before, after))
	return after, nil
}

func (p *Postgres) publish(evt feed.Event) {
	if p.broker != nil {
		p.broker.Publish(feed.ScopeReservations, evt)
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (model.ReservationRecord, error) {
	var r model.ReservationRecord
	var kind, status, rideClass string
	var canceledAt sql.NullTime
	err := row.Scan(&r.ID, &r.OwnerID, &kind, &status, &rideClass,
		&r.PickupLabel, &r.DropoffLabel, &r.ScheduledAt, &r.CreatedAt, &canceledAt)
	if err != nil {
		return model.ReservationRecord{}, err
	}
	r.Kind = model.Kind(kind)
	r.Status = model.Status(status)
	r.RideClass = model.RideClass(rideClass)
	if canceledAt.Valid {
		t := canceledAt.Time
		r.CanceledAt = &t
	}
	return r, nil
}

func collectRecords(rows *sql.Rows) ([]model.ReservationRecord, error) {
	out := []model.ReservationRecord{}
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
