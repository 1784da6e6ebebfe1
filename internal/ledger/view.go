// Package ledger keeps a session's view of the reservation ledger consistent
// with the remote store: role-aware loading, change-feed reconciliation, a
// polling fallback for drivers, and cancellation.
package ledger

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"curbside/internal/feed"
	"curbside/internal/metrics"
	"curbside/internal/model"
	"curbside/internal/session"
	"curbside/internal/store"
)

// AuthorizationError is a role/ownership violation. It is fatal to the
// attempted action and never retried.
type AuthorizationError struct {
	Reason string
}

func (e *AuthorizationError) Error() string { return e.Reason }

var errCancelInFlight = errors.New("a cancellation is already in progress")

// RefreshOptions controls how a refresh presents itself.
type RefreshOptions struct {
	// ShowLoading marks a user-visible load. Background refreshes leave it
	// false so realtime updates never flash a spinner over content the user
	// is already viewing.
	ShowLoading bool
}

// View is one session's projection of the reservation ledger. It is a cache,
// never authoritative: every refresh replaces the whole list.
type View struct {
	store   store.Store
	feed    feed.Subscriber
	session session.Provider
	logger  *slog.Logger

	RiderLimit   int
	DriverLimit  int
	PollInterval time.Duration

	// limiter gates feed-triggered refreshes; events arriving beyond it
	// collapse into a single trailing refresh.
	limiter *rate.Limiter

	mu             sync.Mutex
	records        []model.ReservationRecord
	loading        bool
	cancelInFlight bool
	user           *session.User
	sub            *feed.Subscription
	stopPoll       chan struct{}
	cancel         context.CancelFunc
	// epoch increments on every teardown. A refresh started under an older
	// epoch must not write its result into the next session's projection.
	epoch  int
	remove func()
}

func NewView(st store.Store, fd feed.Subscriber, sess session.Provider, logger *slog.Logger) *View {
	return &View{
		store:        st,
		feed:         fd,
		session:      sess,
		logger:       logger,
		RiderLimit:   10,
		DriverLimit:  100,
		PollInterval: 15 * time.Second,
		limiter:      rate.NewLimiter(rate.Every(time.Second), 1),
	}
}

// Start wires the view to the session provider and begins observing for the
// currently signed-in user, if any.
func (v *View) Start(ctx context.Context) {
	v.remove = v.session.OnChange(func(u *session.User) { v.setUser(ctx, u) })
	v.setUser(ctx, v.session.Current())
}

// Stop detaches from the session and releases the feed subscription and poll.
func (v *View) Stop() {
	if v.remove != nil {
		v.remove()
		v.remove = nil
	}
	v.teardown()
}

// Records returns a copy of the current projection.
func (v *View) Records() []model.ReservationRecord {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]model.ReservationRecord, len(v.records))
	copy(out, v.records)
	return out
}

func (v *View) Loading() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.loading
}

func (v *View) CancelInFlight() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.cancelInFlight
}

// Refresh reloads the list for the current user. With no user signed in the
// list is simply cleared.
func (v *View) Refresh(ctx context.Context, opts RefreshOptions) {
	v.mu.Lock()
	u := v.user
	v.mu.Unlock()
	if u == nil {
		v.mu.Lock()
		v.records = nil
		v.loading = false
		v.mu.Unlock()
		return
	}
	v.refresh(ctx, *u, opts, "user")
}

// RefreshFor reloads after one of the session's own writes. It satisfies the
// coordinator's Refresher dependency.
func (v *View) RefreshFor(ctx context.Context, userID string) {
	v.mu.Lock()
	u := v.user
	v.mu.Unlock()
	if u == nil || u.ID != userID {
		// A write can land before the session listener has installed the
		// user here; fall back to the writer's identity.
		u = &session.User{ID: userID, Role: session.RoleRider}
	}
	v.refresh(ctx, *u, RefreshOptions{ShowLoading: true}, "write")
}

// Cancel transitions the caller's own pending/accepted reservation to
// canceled. It either fully succeeds (row updated, refresh triggered) or
// fails with a descriptive error and no partial state change.
func (v *View) Cancel(ctx context.Context, id string) error {
	v.mu.Lock()
	u := v.user
	if u == nil {
		v.mu.Unlock()
		return &AuthorizationError{Reason: "You need to be signed in to cancel a ride."}
	}
	if u.Role == session.RoleDriver {
		v.mu.Unlock()
		metrics.Cancels.WithLabelValues("denied").Inc()
		return &AuthorizationError{Reason: "Drivers cannot cancel rider reservations."}
	}
	if v.cancelInFlight {
		v.mu.Unlock()
		return errCancelInFlight
	}
	v.cancelInFlight = true
	usr := *u
	v.mu.Unlock()

	defer func() {
		v.mu.Lock()
		v.cancelInFlight = false
		v.mu.Unlock()
	}()

	if _, err := v.store.CancelReservation(ctx, id, usr.ID); err != nil {
		metrics.Cancels.WithLabelValues("error").Inc()
		v.logger.Warn("cancel failed", "id", id, "err", err)
		return err
	}

	metrics.Cancels.WithLabelValues("ok").Inc()
	v.refresh(ctx, usr, RefreshOptions{ShowLoading: true}, "write")
	return nil
}

func (v *View) setUser(ctx context.Context, u *session.User) {
	v.mu.Lock()
	if usersEqual(v.user, u) {
		v.mu.Unlock()
		return
	}
	v.mu.Unlock()

	v.teardown()
	if u == nil {
		return
	}

	sub := v.feed.Subscribe(feed.ScopeReservations)
	var stop chan struct{}
	if u.Role == session.RoleDriver {
		stop = make(chan struct{})
	}
	sctx, cancel := context.WithCancel(ctx)

	v.mu.Lock()
	v.user = u
	v.sub = sub
	v.stopPoll = stop
	v.cancel = cancel
	v.mu.Unlock()

	go v.consume(sctx, sub, *u)
	if stop != nil {
		go v.poll(sctx, stop, *u)
	}

	// Only this first, explicit load toggles the visible loading state.
	v.refresh(sctx, *u, RefreshOptions{ShowLoading: true}, "user")
}

// teardown releases the subscription and poll and resets the projection.
func (v *View) teardown() {
	v.mu.Lock()
	v.epoch++
	sub := v.sub
	stop := v.stopPoll
	cancel := v.cancel
	v.sub = nil
	v.stopPoll = nil
	v.cancel = nil
	v.user = nil
	v.records = nil
	v.loading = false
	v.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if sub != nil {
		sub.Close()
	}
	if stop != nil {
		close(stop)
	}
}

func (v *View) refresh(ctx context.Context, u session.User, opts RefreshOptions, trigger string) {
	metrics.Refreshes.WithLabelValues(string(u.Role), trigger).Inc()

	v.mu.Lock()
	epoch := v.epoch
	if opts.ShowLoading {
		v.loading = true
	}
	v.mu.Unlock()

	var recs []model.ReservationRecord
	var err error
	if u.Role == session.RoleDriver {
		recs, err = v.store.ListPending(ctx, v.DriverLimit)
	} else {
		recs, err = v.store.ListOwn(ctx, u.ID, v.RiderLimit)
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if opts.ShowLoading {
		v.loading = false
	}
	if v.epoch != epoch {
		// The session ended or changed identity while the list call was in
		// flight; its rows belong to the previous session.
		return
	}
	if err != nil {
		v.logger.Warn("unable to load reservations", "role", u.Role, "err", err)
		if opts.ShowLoading {
			// A user-visible load falls back to an empty list; a background
			// refresh failure keeps whatever was already displayed.
			v.records = []model.ReservationRecord{}
		}
		return
	}
	v.records = recs
}

func (v *View) consume(ctx context.Context, sub *feed.Subscription, u session.User) {
	gap := time.Second
	if l := v.limiter.Limit(); l > 0 {
		gap = time.Duration(float64(time.Second) / float64(l))
	}
	trailing := time.NewTimer(gap)
	trailing.Stop()
	armed := false
	defer trailing.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-trailing.C:
			armed = false
			v.refresh(ctx, u, RefreshOptions{}, "feed")
		case evt, ok := <-sub.C:
			if !ok {
				return
			}
			relevant := relevantTo(evt, u)
			metrics.FeedEvents.WithLabelValues(string(evt.Op), strconv.FormatBool(relevant)).Inc()
			if !relevant {
				continue
			}
			if v.limiter.Allow() {
				v.refresh(ctx, u, RefreshOptions{}, "feed")
				continue
			}
			// The rest of a burst collapses into one trailing refresh.
			if !armed {
				trailing.Reset(gap)
				armed = true
			}
		}
	}
}

func (v *View) poll(ctx context.Context, stop <-chan struct{}, u session.User) {
	ticker := time.NewTicker(v.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			v.refresh(ctx, u, RefreshOptions{}, "poll")
		}
	}
}

// relevantTo mirrors the row filter: riders care about rows they own;
// drivers additionally care about rows that are, or were, pending
// immediate/scheduled requests. Both images are inspected since a row can
// transition into or out of relevance. The cost of a miss is only a stale
// row until the next poll.
func relevantTo(evt feed.Event, u session.User) bool {
	touchesOwn := (evt.Before != nil && evt.Before.OwnerID == u.ID) ||
		(evt.After != nil && evt.After.OwnerID == u.ID)
	if touchesOwn {
		return true
	}
	if u.Role != session.RoleDriver {
		return false
	}
	return isPendingRide(evt.Before) || isPendingRide(evt.After)
}

func isPendingRide(r *model.ReservationRecord) bool {
	return r != nil && r.Status == model.StatusPending &&
		(r.Kind == model.KindImmediate || r.Kind == model.KindScheduled)
}

func usersEqual(a, b *session.User) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.ID == b.ID && a.Role == b.Role
}
