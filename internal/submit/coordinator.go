// Package submit owns reservation submission: the deferred-submission queue,
// the at-most-one-in-flight invariant, and post-success side effects.
package submit

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"curbside/internal/metrics"
	"curbside/internal/model"
	"curbside/internal/schedule"
	"curbside/internal/session"
	"curbside/internal/store"
)

// Screen names the UI surfaces the coordinator can route the user to.
type Screen string

const (
	ScreenHome     Screen = "home"
	ScreenSignIn   Screen = "signin"
	ScreenSchedule Screen = "schedule"
)

// Frontend is the presentation collaborator. The coordinator reports outcomes
// through it and never renders anything itself.
type Frontend interface {
	Alert(title, message string)
	Navigate(screen Screen)
}

// Refresher triggers a ledger reload after a successful write, so the user's
// own action is reflected at least as fast as any feed-triggered refresh.
type Refresher interface {
	RefreshFor(ctx context.Context, userID string)
}

// State is the coordinator's explicit submission state.
type State int

const (
	StateIdle State = iota
	StateValidating
	StateSubmitting
	StateAwaitingAuth
)

func (s State) String() string {
	switch s {
	case StateValidating:
		return "validating"
	case StateSubmitting:
		return "submitting"
	case StateAwaitingAuth:
		return "awaiting_auth"
	}
	return "idle"
}

// Coordinator drives a draft through validation, the authentication gate, and
// the store write. At most one submission is in flight per session; a request
// submitted while signed out is held and resubmitted once sign-in completes.
type Coordinator struct {
	store     store.Store
	session   session.Provider
	builder   *schedule.Builder
	frontend  Frontend
	refresher Refresher
	logger    *slog.Logger

	mu           sync.Mutex
	state        State
	pending      *model.ScheduledReservationRequest
	pendingDraft *model.ReservationDraft
	remove       func()
}

func NewCoordinator(st store.Store, sess session.Provider, b *schedule.Builder, fe Frontend, rf Refresher, logger *slog.Logger) *Coordinator {
	c := &Coordinator{
		store:     st,
		session:   sess,
		builder:   b,
		frontend:  fe,
		refresher: rf,
		logger:    logger,
		state:     StateIdle,
	}
	c.remove = sess.OnChange(c.onAuthChange)
	return c
}

// Close detaches the coordinator from the session provider.
func (c *Coordinator) Close() {
	if c.remove != nil {
		c.remove()
	}
}

func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// HasPending reports whether a submission is queued behind the auth gate.
func (c *Coordinator) HasPending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending != nil
}

// ClearPending drops any queued submission without submitting it.
func (c *Coordinator) ClearPending() {
	c.mu.Lock()
	c.pending = nil
	c.pendingDraft = nil
	if c.state == StateAwaitingAuth {
		c.state = StateIdle
	}
	c.mu.Unlock()
}

// SubmitDraft validates the draft and submits the result. A validation
// failure is surfaced through the frontend and goes no further; the store is
// never contacted.
func (c *Coordinator) SubmitDraft(ctx context.Context, d *model.ReservationDraft) {
	c.mu.Lock()
	if c.state == StateSubmitting {
		c.mu.Unlock()
		return
	}
	prev := c.state
	c.state = StateValidating
	c.mu.Unlock()

	req, err := c.builder.BuildRequest(d)

	c.mu.Lock()
	c.state = prev
	c.mu.Unlock()

	if err != nil {
		var verr *schedule.ValidationError
		if errors.As(err, &verr) {
			c.frontend.Alert(verr.Title, verr.Message)
		}
		return
	}

	c.submit(ctx, d, req, false)
}

// Submit sends an already-validated request.
func (c *Coordinator) Submit(ctx context.Context, d *model.ReservationDraft, req model.ScheduledReservationRequest) {
	c.submit(ctx, d, req, false)
}

func (c *Coordinator) submit(ctx context.Context, d *model.ReservationDraft, req model.ScheduledReservationRequest, resumed bool) {
	c.mu.Lock()
	if c.state == StateSubmitting {
		c.mu.Unlock()
		return
	}

	user := c.session.Current()
	if user == nil {
		if resumed {
			// The user signed out again before the resume ran; the sign-out
			// handler already dropped the queued request.
			c.mu.Unlock()
			return
		}
		c.pending = &req
		c.pendingDraft = d
		c.state = StateAwaitingAuth
		c.mu.Unlock()

		metrics.Submissions.WithLabelValues("queued").Inc()
		c.logger.Info("submission queued until sign-in", "rideClass", req.RideClass)
		c.frontend.Alert("Sign in required",
			"Sign in to schedule your ride. We'll submit it right after you sign in.")
		c.frontend.Navigate(ScreenSignIn)
		return
	}

	c.state = StateSubmitting
	c.mu.Unlock()

	id, err := c.store.CreateReservation(ctx, req, user.ID)
	if err != nil {
		metrics.Submissions.WithLabelValues("error").Inc()
		c.logger.Warn("reservation create failed", "resumed", resumed, "err", err)

		c.mu.Lock()
		if resumed {
			// Resuming is a one-shot, never a retry loop: drop the queued
			// request and hand control back to the user.
			c.pending = nil
			c.pendingDraft = nil
		}
		if c.pending != nil {
			c.state = StateAwaitingAuth
		} else {
			c.state = StateIdle
		}
		c.mu.Unlock()

		c.frontend.Alert("Could not schedule ride", err.Error())
		if resumed {
			c.frontend.Navigate(ScreenSchedule)
		}
		return
	}

	c.mu.Lock()
	c.pending = nil
	c.pendingDraft = nil
	c.state = StateIdle
	c.mu.Unlock()

	if d != nil {
		d.ResetAfterSubmit()
	}
	c.refresher.RefreshFor(ctx, user.ID)

	metrics.Submissions.WithLabelValues("created").Inc()
	c.logger.Info("reservation scheduled", "id", id, "rideClass", req.RideClass, "resumed", resumed)
	c.frontend.Alert("Ride scheduled", schedule.ConfirmationMessage(req))
	c.frontend.Navigate(ScreenHome)
}

// onAuthChange resumes a queued submission when sign-in completes and clears
// it on sign-out. The in-flight guard makes the resume idempotent against a
// racing user-initiated resubmission.
func (c *Coordinator) onAuthChange(u *session.User) {
	c.mu.Lock()
	if u == nil {
		c.pending = nil
		c.pendingDraft = nil
		if c.state == StateAwaitingAuth {
			c.state = StateIdle
		}
		c.mu.Unlock()
		return
	}
	req := c.pending
	d := c.pendingDraft
	c.mu.Unlock()

	if req != nil {
		c.submit(context.Background(), d, *req, true)
	}
}
