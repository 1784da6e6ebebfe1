package ledger

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"curbside/internal/clock"
	"curbside/internal/feed"
	"curbside/internal/model"
	"curbside/internal/session"
	"curbside/internal/store"
)

var testNow = time.Date(2026, 3, 5, 14, 0, 0, 0, time.UTC)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testRequest(kind model.Kind) model.ScheduledReservationRequest {
	return model.ScheduledReservationRequest{
		Kind:        kind,
		Pickup:      "Penn Station, Manhattan",
		Dropoff:     "LaGuardia Airport Terminal B",
		RideClass:   model.RideClassEconomy,
		ScheduledAt: testNow.Add(2 * time.Hour),
	}
}

// flaky wraps the memory store so list calls can be made to fail and counted.
type flaky struct {
	*store.Memory
	mu       sync.Mutex
	fail     bool
	listOwn  int
	listPend int

	gateEntered chan struct{} // closed when the next ListOwn starts
	gateRelease chan struct{} // that ListOwn blocks until this closes
}

func (f *flaky) setFail(v bool) {
	f.mu.Lock()
	f.fail = v
	f.mu.Unlock()
}

// gateNextListOwn makes the next ListOwn call block until release closes.
func (f *flaky) gateNextListOwn(entered, release chan struct{}) {
	f.mu.Lock()
	f.gateEntered = entered
	f.gateRelease = release
	f.mu.Unlock()
}

func (f *flaky) ListOwn(ctx context.Context, ownerID string, limit int) ([]model.ReservationRecord, error) {
	f.mu.Lock()
	f.listOwn++
	fail := f.fail
	entered := f.gateEntered
	release := f.gateRelease
	f.gateEntered = nil
	f.gateRelease = nil
	f.mu.Unlock()
	if entered != nil {
		close(entered)
		<-release
	}
	if fail {
		return nil, errors.New("store unavailable")
	}
	return f.Memory.ListOwn(ctx, ownerID, limit)
}

func (f *flaky) ListPending(ctx context.Context, limit int) ([]model.ReservationRecord, error) {
	f.mu.Lock()
	f.listPend++
	fail := f.fail
	f.mu.Unlock()
	if fail {
		return nil, errors.New("store unavailable")
	}
	return f.Memory.ListPending(ctx, limit)
}

func (f *flaky) pendingCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.listPend
}

func (f *flaky) ownCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.listOwn
}

type fixture struct {
	store  *flaky
	broker *feed.MemoryBroker
	sess   *session.MemoryProvider
	view   *View
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	broker := feed.NewMemoryBroker()
	st := &flaky{Memory: store.NewMemory(clock.NewFixed(testNow), broker)}
	sess := session.NewMemoryProvider()
	v := NewView(st, broker, sess, testLogger())
	t.Cleanup(v.Stop)
	return &fixture{store: st, broker: broker, sess: sess, view: v}
}

func eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestRiderSeesOwnRowsNewestFirst(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var last string
	for i := 0; i < 3; i++ {
		id, err := f.store.CreateReservation(ctx, testRequest(model.KindScheduled), "rider-1")
		if err != nil {
			t.Fatal(err)
		}
		last = id
	}
	if _, err := f.store.CreateReservation(ctx, testRequest(model.KindScheduled), "rider-2"); err != nil {
		t.Fatal(err)
	}

	f.sess.SignIn(session.User{ID: "rider-1", Role: session.RoleRider})
	f.view.Start(ctx)

	recs := f.view.Records()
	if len(recs) != 3 {
		t.Fatalf("got %d rows, want 3", len(recs))
	}
	if recs[0].ID != last {
		t.Error("newest row should come first")
	}
	for _, r := range recs {
		if r.OwnerID != "rider-1" {
			t.Errorf("foreign row leaked into rider view: %+v", r)
		}
	}
}

func TestRiderLimitApplies(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for i := 0; i < 12; i++ {
		if _, err := f.store.CreateReservation(ctx, testRequest(model.KindScheduled), "rider-1"); err != nil {
			t.Fatal(err)
		}
	}

	f.sess.SignIn(session.User{ID: "rider-1", Role: session.RoleRider})
	f.view.Start(ctx)

	if n := len(f.view.Records()); n != 10 {
		t.Fatalf("got %d rows, want the rider limit of 10", n)
	}
}

func TestDriverSeesOnlyPendingRides(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	pendingID, _ := f.store.CreateReservation(ctx, testRequest(model.KindImmediate), "rider-1")
	if _, err := f.store.CreateReservation(ctx, testRequest(model.KindPackage), "rider-1"); err != nil {
		t.Fatal(err)
	}
	acceptedID, _ := f.store.CreateReservation(ctx, testRequest(model.KindScheduled), "rider-2")
	if _, err := f.store.TransitionStatus(ctx, acceptedID, model.StatusAccepted); err != nil {
		t.Fatal(err)
	}

	f.sess.SignIn(session.User{ID: "driver-1", Role: session.RoleDriver})
	f.view.Start(ctx)

	recs := f.view.Records()
	if len(recs) != 1 || recs[0].ID != pendingID {
		t.Fatalf("driver view = %+v, want only the pending ride", recs)
	}
}

func TestSignOutClearsProjection(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.store.CreateReservation(ctx, testRequest(model.KindScheduled), "rider-1"); err != nil {
		t.Fatal(err)
	}

	f.sess.SignIn(session.User{ID: "rider-1", Role: session.RoleRider})
	f.view.Start(ctx)
	if len(f.view.Records()) != 1 {
		t.Fatal("precondition: rider row loaded")
	}

	f.sess.SignOut()
	if len(f.view.Records()) != 0 {
		t.Fatal("sign-out should clear the projection")
	}
}

func TestFeedEventRefreshesRider(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.sess.SignIn(session.User{ID: "rider-1", Role: session.RoleRider})
	f.view.Start(ctx)
	if len(f.view.Records()) != 0 {
		t.Fatal("precondition: empty ledger")
	}

	// Another device writes a row for the same user; the change feed should
	// bring it in without any poll.
	if _, err := f.store.CreateReservation(ctx, testRequest(model.KindScheduled), "rider-1"); err != nil {
		t.Fatal(err)
	}

	eventually(t, func() bool { return len(f.view.Records()) == 1 },
		"feed insert never reached the rider's projection")
}

func TestFeedEventRefreshesDriverOnForeignPendingRide(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.sess.SignIn(session.User{ID: "driver-1", Role: session.RoleDriver})
	f.view.Start(ctx)

	if _, err := f.store.CreateReservation(ctx, testRequest(model.KindImmediate), "rider-7"); err != nil {
		t.Fatal(err)
	}

	eventually(t, func() bool { return len(f.view.Records()) == 1 },
		"driver projection never picked up the new pending ride")
}

func TestBackgroundRefreshFailureKeepsRecords(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.store.CreateReservation(ctx, testRequest(model.KindScheduled), "rider-1"); err != nil {
		t.Fatal(err)
	}

	f.sess.SignIn(session.User{ID: "rider-1", Role: session.RoleRider})
	f.view.Start(ctx)
	if len(f.view.Records()) != 1 {
		t.Fatal("precondition: row loaded")
	}

	f.store.setFail(true)

	f.view.Refresh(ctx, RefreshOptions{})
	if len(f.view.Records()) != 1 {
		t.Fatal("background failure must keep the last good projection")
	}

	f.view.Refresh(ctx, RefreshOptions{ShowLoading: true})
	if len(f.view.Records()) != 0 {
		t.Fatal("a failed visible load falls back to an empty list")
	}
}

func TestInFlightRefreshDoesNotOutliveSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.store.CreateReservation(ctx, testRequest(model.KindScheduled), "rider-1"); err != nil {
		t.Fatal(err)
	}

	f.sess.SignIn(session.User{ID: "rider-1", Role: session.RoleRider})
	f.view.Start(ctx)
	if len(f.view.Records()) != 1 {
		t.Fatal("precondition: row loaded")
	}

	// Hold a background refresh inside the store call, sign out underneath
	// it, then let it finish. Its rows belong to the ended session and must
	// not repopulate the cleared projection.
	entered := make(chan struct{})
	release := make(chan struct{})
	f.store.gateNextListOwn(entered, release)

	done := make(chan struct{})
	go func() {
		f.view.Refresh(ctx, RefreshOptions{})
		close(done)
	}()
	<-entered

	f.sess.SignOut()
	if len(f.view.Records()) != 0 {
		t.Fatal("sign-out should clear the projection")
	}

	close(release)
	<-done

	if n := len(f.view.Records()); n != 0 {
		t.Fatalf("stale refresh repopulated a signed-out view with %d rows", n)
	}
}

func TestFeedBurstCoalescesIntoTrailingRefresh(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.sess.SignIn(session.User{ID: "rider-1", Role: session.RoleRider})
	f.view.Start(ctx)
	base := f.store.ownCalls()

	own := model.ReservationRecord{ID: "r1", OwnerID: "rider-1", Status: model.StatusPending, Kind: model.KindScheduled}
	for i := 0; i < 5; i++ {
		f.broker.Publish(feed.ScopeReservations, feed.Inserted(own))
	}

	// One leading refresh, then the rest of the burst collapses into a
	// single trailing one.
	eventually(t, func() bool { return f.store.ownCalls() >= base+2 },
		"trailing refresh never fired")
	time.Sleep(100 * time.Millisecond)
	if n := f.store.ownCalls(); n > base+2 {
		t.Fatalf("burst of 5 events produced %d refreshes, want 2", n-base)
	}
}

func TestDriverPollFallback(t *testing.T) {
	f := newFixture(t)
	f.view.PollInterval = 10 * time.Millisecond

	f.sess.SignIn(session.User{ID: "driver-1", Role: session.RoleDriver})
	f.view.Start(context.Background())

	eventually(t, func() bool { return f.store.pendingCalls() >= 3 },
		"driver poll never fired")
}

func TestRiderDoesNotPoll(t *testing.T) {
	f := newFixture(t)
	f.view.PollInterval = 10 * time.Millisecond

	f.sess.SignIn(session.User{ID: "rider-1", Role: session.RoleRider})
	f.view.Start(context.Background())

	f.view.mu.Lock()
	stop := f.view.stopPoll
	f.view.mu.Unlock()
	if stop != nil {
		t.Fatal("riders must rely on the feed alone, not a poll loop")
	}
}

func TestCancelAuthorization(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id, _ := f.store.CreateReservation(ctx, testRequest(model.KindScheduled), "rider-1")

	t.Run("signed out", func(t *testing.T) {
		f.view.Start(ctx)
		var aerr *AuthorizationError
		if err := f.view.Cancel(ctx, id); !errors.As(err, &aerr) {
			t.Fatalf("err = %v, want AuthorizationError", err)
		}
	})

	t.Run("driver", func(t *testing.T) {
		f.sess.SignIn(session.User{ID: "driver-1", Role: session.RoleDriver})
		var aerr *AuthorizationError
		err := f.view.Cancel(ctx, id)
		if !errors.As(err, &aerr) {
			t.Fatalf("err = %v, want AuthorizationError", err)
		}
		if aerr.Reason != "Drivers cannot cancel rider reservations." {
			t.Errorf("reason = %q", aerr.Reason)
		}
		if rec, _ := f.store.Get(id); rec.Status != model.StatusPending {
			t.Error("denied cancel must not touch the row")
		}
	})

	t.Run("non-owner", func(t *testing.T) {
		f.sess.SignIn(session.User{ID: "rider-2", Role: session.RoleRider})
		if err := f.view.Cancel(ctx, id); !errors.Is(err, store.ErrNotFound) {
			t.Fatalf("err = %v, want ErrNotFound", err)
		}
	})

	t.Run("owner", func(t *testing.T) {
		f.sess.SignIn(session.User{ID: "rider-1", Role: session.RoleRider})
		if err := f.view.Cancel(ctx, id); err != nil {
			t.Fatalf("Cancel: %v", err)
		}
		recs := f.view.Records()
		if len(recs) != 1 || recs[0].Status != model.StatusCanceled {
			t.Fatalf("projection after cancel = %+v", recs)
		}
		if f.view.CancelInFlight() {
			t.Error("cancel guard not released")
		}
	})

	t.Run("terminal row", func(t *testing.T) {
		if err := f.view.Cancel(ctx, id); !errors.Is(err, store.ErrNotCancelable) {
			t.Fatalf("err = %v, want ErrNotCancelable", err)
		}
	})
}

func TestRefreshForFallsBackToWriterIdentity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.store.CreateReservation(ctx, testRequest(model.KindScheduled), "rider-1"); err != nil {
		t.Fatal(err)
	}

	// No session listener has installed the user yet; the writer's own id
	// still produces a usable projection.
	f.view.RefreshFor(ctx, "rider-1")
	if len(f.view.Records()) != 1 {
		t.Fatalf("records = %+v", f.view.Records())
	}
}

func TestRelevantTo(t *testing.T) {
	rider := session.User{ID: "rider-1", Role: session.RoleRider}
	driver := session.User{ID: "driver-1", Role: session.RoleDriver}

	own := model.ReservationRecord{OwnerID: "rider-1", Status: model.StatusCompleted, Kind: model.KindPackage}
	foreignPending := model.ReservationRecord{OwnerID: "rider-2", Status: model.StatusPending, Kind: model.KindImmediate}
	foreignPackage := model.ReservationRecord{OwnerID: "rider-2", Status: model.StatusPending, Kind: model.KindPackage}
	foreignAccepted := model.ReservationRecord{OwnerID: "rider-2", Status: model.StatusAccepted, Kind: model.KindScheduled}

	cases := []struct {
		name string
		evt  feed.Event
		user session.User
		want bool
	}{
		{"rider own row", feed.Inserted(own), rider, true},
		{"rider foreign row", feed.Inserted(foreignPending), rider, false},
		{"driver foreign pending ride", feed.Inserted(foreignPending), driver, true},
		{"driver foreign package", feed.Inserted(foreignPackage), driver, false},
		{"driver foreign accepted", feed.Inserted(foreignAccepted), driver, false},
		// Leaving relevance matters as much as entering it: a pending ride
		// accepted elsewhere must vanish from the driver's list.
		{"driver ride leaves pending", feed.Updated(foreignPending, foreignAccepted), driver, true},
		{"driver pending ride deleted", feed.Deleted(foreignPending), driver, true},
		{"rider own row deleted", feed.Deleted(own), rider, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := relevantTo(tc.evt, tc.user); got != tc.want {
				t.Fatalf("relevantTo = %v, want %v", got, tc.want)
			}
		})
	}
}
