package availability

import (
	"testing"
	"time"

	"bookline/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func businessDay(weekday time.Weekday, open, close int) []models.BusinessHours {
	return []models.BusinessHours{{Weekday: weekday, Open: open, Close: close}}
}

func appointmentAt(providerID string, start time.Time, minutes int, status models.AppointmentStatus) models.Appointment {
	appt := models.Appointment{ID: "a-" + start.Format("1504"), ProviderID: providerID, Status: status}
	appt.SetTimes(start, minutes)
	return appt
}

func TestComputeSlotsSkipsBookedCandidate(t *testing.T) {
	// Business hours 09:00-17:00, 30 minute slots, one reservation 10:00-10:30.
	date := time.Date(2026, 9, 7, 0, 0, 0, 0, time.UTC) // a Monday
	existing := []models.Appointment{
		appointmentAt("p1", date.Add(10*time.Hour), 30, models.StatusScheduled),
	}

	day, err := ComputeSlots(SlotRequest{
		ProviderID:      "p1",
		ServiceDuration: 30,
		Date:            date,
		Hours:           businessDay(time.Monday, 540, 1020),
		Existing:        existing,
		Granularity:     30,
		Now:             date.Add(-24 * time.Hour),
	})
	require.NoError(t, err)
	require.Equal(t, models.DayOpen, day.Reason)

	starts := make(map[string]bool)
	for _, s := range day.Slots {
		starts[s.Start.Format("15:04")] = true
	}
	assert.True(t, starts["09:00"])
	assert.True(t, starts["09:30"])
	assert.True(t, starts["10:30"])
	assert.True(t, starts["11:00"])
	assert.False(t, starts["10:00"], "booked candidate must be discarded")
	// 15 half-hour candidates fit 09:00-17:00 for a 30m service, one is taken.
	assert.Len(t, day.Slots, 15)
}

func TestComputeSlotsBufferExcludesNeighbours(t *testing.T) {
	date := time.Date(2026, 9, 7, 0, 0, 0, 0, time.UTC)
	existing := []models.Appointment{
		appointmentAt("p1", date.Add(12*time.Hour), 30, models.StatusConfirmed),
	}

	day, err := ComputeSlots(SlotRequest{
		ProviderID:      "p1",
		ServiceDuration: 30,
		Date:            date,
		Hours:           businessDay(time.Monday, 540, 1020),
		Existing:        existing,
		BufferMinutes:   15,
		Granularity:     30,
		Now:             date.Add(-24 * time.Hour),
	})
	require.NoError(t, err)

	for _, s := range day.Slots {
		assert.NotEqual(t, "11:30", s.Start.Format("15:04"), "slot inside buffer must be discarded")
		assert.NotEqual(t, "12:00", s.Start.Format("15:04"))
		assert.NotEqual(t, "12:30", s.Start.Format("15:04"))
	}
}

func TestComputeSlotsCancelledReservationFreesSlot(t *testing.T) {
	date := time.Date(2026, 9, 7, 0, 0, 0, 0, time.UTC)
	existing := []models.Appointment{
		appointmentAt("p1", date.Add(10*time.Hour), 30, models.StatusCancelled),
	}

	day, err := ComputeSlots(SlotRequest{
		ProviderID:      "p1",
		ServiceDuration: 30,
		Date:            date,
		Hours:           businessDay(time.Monday, 540, 1020),
		Existing:        existing,
		Granularity:     30,
		Now:             date.Add(-24 * time.Hour),
	})
	require.NoError(t, err)

	starts := make(map[string]bool)
	for _, s := range day.Slots {
		starts[s.Start.Format("15:04")] = true
	}
	assert.True(t, starts["10:00"], "cancelled reservation must not block the slot")
}

func TestComputeSlotsClosedVsFullyBooked(t *testing.T) {
	date := time.Date(2026, 9, 7, 0, 0, 0, 0, time.UTC)

	closed, err := ComputeSlots(SlotRequest{
		ProviderID:      "p1",
		ServiceDuration: 30,
		Date:            date,
		Hours:           businessDay(time.Tuesday, 540, 1020), // no Monday hours
		Granularity:     30,
		Now:             date.Add(-24 * time.Hour),
	})
	require.NoError(t, err)
	assert.Equal(t, models.DayClosed, closed.Reason)
	assert.Empty(t, closed.Slots)

	// A single reservation covering the whole window leaves nothing open.
	full, err := ComputeSlots(SlotRequest{
		ProviderID:      "p1",
		ServiceDuration: 30,
		Date:            date,
		Hours:           businessDay(time.Monday, 540, 600),
		Existing: []models.Appointment{
			appointmentAt("p1", date.Add(9*time.Hour), 60, models.StatusScheduled),
		},
		Granularity: 30,
		Now:         date.Add(-24 * time.Hour),
	})
	require.NoError(t, err)
	assert.Equal(t, models.DayFullyBooked, full.Reason)
	assert.Empty(t, full.Slots)
}

func TestComputeSlotsDropsPastCandidatesToday(t *testing.T) {
	date := time.Date(2026, 9, 7, 0, 0, 0, 0, time.UTC)
	now := date.Add(11*time.Hour + 10*time.Minute)

	day, err := ComputeSlots(SlotRequest{
		ProviderID:      "p1",
		ServiceDuration: 30,
		Date:            date,
		Hours:           businessDay(time.Monday, 540, 1020),
		Granularity:     30,
		Now:             now,
	})
	require.NoError(t, err)

	for _, s := range day.Slots {
		assert.False(t, s.Start.Before(now), "candidate before now must be dropped on the same day")
	}
	assert.Equal(t, "11:30", day.Slots[0].Start.Format("15:04"))
}

func TestComputeSlotsRejectsInvalidDuration(t *testing.T) {
	_, err := ComputeSlots(SlotRequest{ServiceDuration: 0, Date: time.Now()})
	require.Error(t, err)
}

func TestComputeSlotsNeverOverlapsActiveReservations(t *testing.T) {
	date := time.Date(2026, 9, 7, 0, 0, 0, 0, time.UTC)
	existing := []models.Appointment{
		appointmentAt("p1", date.Add(9*time.Hour+30*time.Minute), 45, models.StatusScheduled),
		appointmentAt("p1", date.Add(13*time.Hour), 90, models.StatusConfirmed),
		appointmentAt("p1", date.Add(15*time.Hour), 30, models.StatusCancelled),
	}

	day, err := ComputeSlots(SlotRequest{
		ProviderID:      "p1",
		ServiceDuration: 60,
		Date:            date,
		Hours:           businessDay(time.Monday, 540, 1020),
		Existing:        existing,
		BufferMinutes:   10,
		Granularity:     15,
		Now:             date.Add(-24 * time.Hour),
	})
	require.NoError(t, err)

	for _, s := range day.Slots {
		for i := range existing {
			if !existing[i].Status.Active() {
				continue
			}
			assert.False(t, existing[i].Overlaps(s.Start, s.End, 10),
				"slot %s overlaps reservation %s", s.Start, existing[i].Start)
		}
	}
}
