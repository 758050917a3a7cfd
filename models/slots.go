package models

import "time"

// AvailabilitySlot is a derived, never-persisted bookable window.
type AvailabilitySlot struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
	Label string    `json:"label"`
}

// DayReason discriminates why a day yielded the slots it did, so callers can
// word the "no slots" message correctly.
type DayReason string

const (
	DayOpen        DayReason = "open"
	DayClosed      DayReason = "closed"       // date outside configured business hours
	DayFullyBooked DayReason = "fully_booked" // hours configured, every candidate taken
)

// DayAvailability is the result of computing slots for one provider/date.
type DayAvailability struct {
	Date   time.Time          `json:"date"`
	Reason DayReason          `json:"reason"`
	Slots  []AvailabilitySlot `json:"slots"`
}
