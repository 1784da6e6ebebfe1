package model

import "time"

// ReservationDraft is the in-progress, not-yet-persisted request a user is
// editing. The free-text fields and their attached locations must never
// silently diverge: editing the text discards the attached point.
type ReservationDraft struct {
	Pickup          string
	PickupLocation  *LocationPoint
	Dropoff         string
	DropoffLocation *LocationPoint
	RideClass       RideClass
	ScheduledAt     time.Time
}

// NewDraft returns a draft with the defaults the scheduling form starts from:
// Economy, scheduled at the top of the next hour.
func NewDraft(now time.Time) *ReservationDraft {
	return &ReservationDraft{
		RideClass:   RideClassEconomy,
		ScheduledAt: now.Truncate(time.Hour).Add(time.Hour),
	}
}

func (d *ReservationDraft) SetPickup(text string) {
	d.Pickup = text
	d.PickupLocation = nil
}

func (d *ReservationDraft) SetDropoff(text string) {
	d.Dropoff = text
	d.DropoffLocation = nil
}

func (d *ReservationDraft) AttachPickupLocation(p LocationPoint) {
	d.Pickup = p.Label
	d.PickupLocation = &p
}

func (d *ReservationDraft) AttachDropoffLocation(p LocationPoint) {
	d.Dropoff = p.Label
	d.DropoffLocation = &p
}

// ResetAfterSubmit prepares the draft for the next request after a successful
// submission. Pickup is deliberately kept so a rider can schedule several
// rides from the same spot without retyping it.
func (d *ReservationDraft) ResetAfterSubmit() {
	d.Dropoff = ""
	d.DropoffLocation = nil
	d.RideClass = RideClassEconomy
}
