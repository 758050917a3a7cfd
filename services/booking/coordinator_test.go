package booking

import (
	"context"
	"sync"
	"testing"
	"time"

	appointmentRepo "bookline/database/repository/appointment"
	providerRepo "bookline/database/repository/provider"
	serviceRepo "bookline/database/repository/service"
	"bookline/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProviderRepo struct {
	providers map[string]*models.Provider
}

func (f *fakeProviderRepo) GetByID(_ context.Context, id string) (*models.Provider, error) {
	p, ok := f.providers[id]
	if !ok {
		return nil, providerRepo.ErrNotFound
	}
	return p, nil
}

func (f *fakeProviderRepo) ListActive(_ context.Context) ([]models.Provider, error) {
	var out []models.Provider
	for _, p := range f.providers {
		if p.Active {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (f *fakeProviderRepo) Upsert(_ context.Context, p *models.Provider) error {
	f.providers[p.ID] = p
	return nil
}

type fakeServiceRepo struct {
	services map[string]*models.ServiceOffering
}

func (f *fakeServiceRepo) GetByID(_ context.Context, id string) (*models.ServiceOffering, error) {
	s, ok := f.services[id]
	if !ok {
		return nil, serviceRepo.ErrNotFound
	}
	return s, nil
}

func (f *fakeServiceRepo) ListActive(_ context.Context) ([]models.ServiceOffering, error) {
	var out []models.ServiceOffering
	for _, s := range f.services {
		if s.Active {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (f *fakeServiceRepo) Upsert(_ context.Context, s *models.ServiceOffering) error {
	f.services[s.ID] = s
	return nil
}

func testCoordinator() (*DefaultCoordinator, *appointmentRepo.MemoryAppointmentRepo) {
	appts := appointmentRepo.NewMemoryAppointmentRepo()
	coord := &DefaultCoordinator{
		Appointments: appts,
		Providers: &fakeProviderRepo{providers: map[string]*models.Provider{
			"p1": {
				ID: "p1", Name: "Front desk", Active: true,
				Hours: []models.BusinessHours{{Weekday: time.Monday, Open: 540, Close: 1020}},
			},
		}},
		Services: &fakeServiceRepo{services: map[string]*models.ServiceOffering{
			"svc": {ID: "svc", Name: "Registration", DurationMinutes: 30, Price: 10, Currency: "usd", Active: true},
			"bad": {ID: "bad", Name: "Broken", DurationMinutes: 0, Active: true},
		}},
		Granularity: 30,
		Now:         func() time.Time { return time.Date(2026, 9, 1, 8, 0, 0, 0, time.UTC) },
	}
	return coord, appts
}

func TestReserveConcurrentSameSlotOneWinner(t *testing.T) {
	coord, _ := testCoordinator()
	start := time.Date(2026, 9, 7, 14, 0, 0, 0, time.UTC)

	var wg sync.WaitGroup
	results := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := coord.Reserve(context.Background(), ReserveRequest{
				ProviderID:   "p1",
				ServiceID:    "svc",
				Start:        start,
				ClientChatID: int64(100 + i),
			})
			results[i] = err
		}(i)
	}
	wg.Wait()

	winners := 0
	losers := 0
	for _, err := range results {
		switch err {
		case nil:
			winners++
		case ErrSlotUnavailable:
			losers++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, winners, "exactly one caller must win the slot")
	assert.Equal(t, 1, losers, "the other caller must see ErrSlotUnavailable")
}

func TestReserveOverlappingRangeLoses(t *testing.T) {
	coord, _ := testCoordinator()
	ctx := context.Background()

	first, err := coord.Reserve(ctx, ReserveRequest{
		ProviderID: "p1", ServiceID: "svc",
		Start: time.Date(2026, 9, 7, 10, 0, 0, 0, time.UTC), ClientChatID: 1,
	})
	require.NoError(t, err)
	require.Equal(t, models.StatusScheduled, first.Status)

	// Partially overlapping range must also lose.
	_, err = coord.Reserve(ctx, ReserveRequest{
		ProviderID: "p1", ServiceID: "svc",
		Start: time.Date(2026, 9, 7, 10, 15, 0, 0, time.UTC), ClientChatID: 2,
	})
	assert.ErrorIs(t, err, ErrSlotUnavailable)
}

func TestReserveNoProviderAndInvalidDuration(t *testing.T) {
	coord, _ := testCoordinator()
	ctx := context.Background()

	_, err := coord.Reserve(ctx, ReserveRequest{
		ProviderID: "ghost", ServiceID: "svc",
		Start: time.Date(2026, 9, 7, 10, 0, 0, 0, time.UTC),
	})
	assert.ErrorIs(t, err, ErrNoProviderAvailable)

	_, err = coord.Reserve(ctx, ReserveRequest{
		ProviderID: "p1", ServiceID: "bad",
		Start: time.Date(2026, 9, 7, 10, 0, 0, 0, time.UTC),
	})
	assert.ErrorIs(t, err, ErrInvalidDuration)
}

func TestCancelIsIdempotent(t *testing.T) {
	coord, _ := testCoordinator()
	ctx := context.Background()

	appt, err := coord.Reserve(ctx, ReserveRequest{
		ProviderID: "p1", ServiceID: "svc",
		Start: time.Date(2026, 9, 7, 11, 0, 0, 0, time.UTC), ClientChatID: 7,
	})
	require.NoError(t, err)

	first, did, err := coord.Cancel(ctx, appt.ID, "client", "changed plans")
	require.NoError(t, err)
	assert.True(t, did)
	assert.Equal(t, models.StatusCancelled, first.Status)
	require.NotNil(t, first.Cancellation)
	assert.Equal(t, "client", first.Cancellation.CancelledBy)

	second, did, err := coord.Cancel(ctx, appt.ID, "scheduler", "not confirmed in time")
	require.NoError(t, err)
	assert.False(t, did, "second cancel must be a reported no-op")
	assert.Equal(t, models.StatusCancelled, second.Status)
	assert.Equal(t, "client", second.Cancellation.CancelledBy, "original metadata must survive")
}

func TestCancelledSlotReappearsInAvailability(t *testing.T) {
	coord, _ := testCoordinator()
	ctx := context.Background()
	start := time.Date(2026, 9, 7, 10, 0, 0, 0, time.UTC)

	appt, err := coord.Reserve(ctx, ReserveRequest{
		ProviderID: "p1", ServiceID: "svc", Start: start, ClientChatID: 1,
	})
	require.NoError(t, err)

	day, err := coord.AvailableSlots(ctx, "p1", "svc", start)
	require.NoError(t, err)
	for _, s := range day.Slots {
		assert.False(t, s.Start.Equal(start), "booked slot must not be offered")
	}

	_, _, err = coord.Cancel(ctx, appt.ID, "scheduler", "not confirmed in time")
	require.NoError(t, err)

	day, err = coord.AvailableSlots(ctx, "p1", "svc", start)
	require.NoError(t, err)
	found := false
	for _, s := range day.Slots {
		if s.Start.Equal(start) {
			found = true
		}
	}
	assert.True(t, found, "cancelled slot must be offered again")
}

func TestApprovalFlowStatuses(t *testing.T) {
	coord, _ := testCoordinator()
	ctx := context.Background()

	svcRepo := coord.Services.(*fakeServiceRepo)
	svcRepo.services["gated"] = &models.ServiceOffering{
		ID: "gated", Name: "Vetted service", DurationMinutes: 30, Active: true, ApprovalRequired: true,
	}

	appt, err := coord.Reserve(ctx, ReserveRequest{
		ProviderID: "p1", ServiceID: "gated",
		Start: time.Date(2026, 9, 7, 12, 0, 0, 0, time.UTC), ClientChatID: 5,
	})
	require.NoError(t, err)
	assert.Equal(t, models.StatusPendingApproval, appt.Status)

	approved, err := coord.Apply(ctx, appt.ID, models.EventApprove)
	require.NoError(t, err)
	assert.Equal(t, models.StatusScheduled, approved.Status)

	// Once approved, rejecting is no longer a legal edge.
	_, err = coord.Apply(ctx, appt.ID, models.EventReject)
	assert.Error(t, err)
}
