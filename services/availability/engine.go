package availability

import (
	"fmt"
	"time"

	"bookline/models"
)

// SlotRequest carries every input the slot computation depends on. The engine
// is a pure function of this struct: callers fetch existing reservations and
// business hours themselves, which keeps the engine trivially testable.
type SlotRequest struct {
	ProviderID      string
	ServiceDuration int // minutes
	Date            time.Time
	Hours           []models.BusinessHours
	Existing        []models.Appointment
	BufferMinutes   int
	Granularity     int       // minutes between candidate starts
	Now             time.Time // candidates before this are dropped when Date is today
}

// ComputeSlots generates the bookable slots for one provider/date.
// The result distinguishes "closed that day" from "fully booked" so callers
// can word the empty case correctly.
func ComputeSlots(req SlotRequest) (models.DayAvailability, error) {
	if req.ServiceDuration <= 0 {
		return models.DayAvailability{}, fmt.Errorf("invalid service duration: %d", req.ServiceDuration)
	}
	granularity := req.Granularity
	if granularity <= 0 {
		granularity = 30
	}

	day := models.DayAvailability{Date: req.Date}

	var hours models.BusinessHours
	found := false
	for _, h := range req.Hours {
		if h.Weekday == req.Date.Weekday() {
			hours = h
			found = true
			break
		}
	}
	if !found || hours.Close <= hours.Open {
		day.Reason = models.DayClosed
		return day, nil
	}

	midnight := time.Date(req.Date.Year(), req.Date.Month(), req.Date.Day(), 0, 0, 0, 0, req.Date.Location())
	open := midnight.Add(time.Duration(hours.Open) * time.Minute)
	close := midnight.Add(time.Duration(hours.Close) * time.Minute)
	duration := time.Duration(req.ServiceDuration) * time.Minute

	sameDay := req.Now.Year() == req.Date.Year() && req.Now.YearDay() == req.Date.YearDay()

	for start := open; !start.Add(duration).After(close); start = start.Add(time.Duration(granularity) * time.Minute) {
		if sameDay && start.Before(req.Now) {
			continue
		}
		end := start.Add(duration)

		taken := false
		for i := range req.Existing {
			appt := &req.Existing[i]
			if !appt.Status.Active() {
				continue
			}
			if appt.Overlaps(start, end, req.BufferMinutes) {
				taken = true
				break
			}
		}
		if taken {
			continue
		}

		day.Slots = append(day.Slots, models.AvailabilitySlot{
			Start: start,
			End:   end,
			Label: start.Format("03:04 PM"),
		})
	}

	if len(day.Slots) == 0 {
		day.Reason = models.DayFullyBooked
		return day, nil
	}
	day.Reason = models.DayOpen
	return day, nil
}
