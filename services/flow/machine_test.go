package flow

import (
	"context"
	"testing"
	"time"

	"bookline/bot/action"
	appointmentRepo "bookline/database/repository/appointment"
	paymentRepo "bookline/database/repository/payment"
	providerRepo "bookline/database/repository/provider"
	serviceRepo "bookline/database/repository/service"
	"bookline/models"
	"bookline/services/booking"
	"bookline/services/notification"
	"bookline/services/payment"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubProviders struct{ provider *models.Provider }

func (s *stubProviders) GetByID(_ context.Context, id string) (*models.Provider, error) {
	if s.provider == nil || s.provider.ID != id {
		return nil, providerRepo.ErrNotFound
	}
	return s.provider, nil
}

func (s *stubProviders) ListActive(_ context.Context) ([]models.Provider, error) {
	if s.provider == nil {
		return nil, nil
	}
	return []models.Provider{*s.provider}, nil
}

func (s *stubProviders) Upsert(_ context.Context, p *models.Provider) error {
	s.provider = p
	return nil
}

type stubServices struct{ services map[string]*models.ServiceOffering }

func (s *stubServices) GetByID(_ context.Context, id string) (*models.ServiceOffering, error) {
	svc, ok := s.services[id]
	if !ok {
		return nil, serviceRepo.ErrNotFound
	}
	return svc, nil
}

func (s *stubServices) ListActive(_ context.Context) ([]models.ServiceOffering, error) {
	var out []models.ServiceOffering
	for _, svc := range s.services {
		if svc.Active {
			out = append(out, *svc)
		}
	}
	return out, nil
}

func (s *stubServices) Upsert(_ context.Context, svc *models.ServiceOffering) error {
	s.services[svc.ID] = svc
	return nil
}

type stubSettlement struct{ received map[string]float64 }

func (s *stubSettlement) CreateCharge(_ context.Context, req payment.ChargeRequest) (*payment.ChargeDetails, error) {
	return &payment.ChargeDetails{Address: "addr-1", PayAmount: req.Amount, PayCurrency: req.Currency}, nil
}

func (s *stubSettlement) Quote(_ context.Context, amount float64, _ string) (float64, error) {
	return amount, nil
}

func (s *stubSettlement) Received(_ context.Context, address string) (float64, error) {
	return s.received[address], nil
}

type stubSender struct {
	pushed []string
}

func (s *stubSender) SendText(_ context.Context, _ int64, text string) error {
	s.pushed = append(s.pushed, text)
	return nil
}

func (s *stubSender) SendButtons(_ context.Context, _ int64, text string, _ [][]notification.Button) (int, error) {
	s.pushed = append(s.pushed, text)
	return 1, nil
}

func (s *stubSender) EditMessage(_ context.Context, _ int64, _ int, _ string, _ [][]notification.Button) error {
	return nil
}

func allWeekHours() []models.BusinessHours {
	var hours []models.BusinessHours
	for wd := time.Sunday; wd <= time.Saturday; wd++ {
		hours = append(hours, models.BusinessHours{Weekday: wd, Open: 540, Close: 1020})
	}
	return hours
}

func newTestMachine() (*Machine, *appointmentRepo.MemoryAppointmentRepo, *stubSettlement) {
	appts := appointmentRepo.NewMemoryAppointmentRepo()
	now := time.Date(2026, 9, 1, 8, 0, 0, 0, time.UTC)
	services := &stubServices{services: map[string]*models.ServiceOffering{
		"svc":  {ID: "svc", Name: "Registration", DurationMinutes: 30, Active: true},
		"paid": {ID: "paid", Name: "Premium", DurationMinutes: 30, Price: 10, Currency: "usd", Active: true, PaymentRequired: true},
	}}
	coord := &booking.DefaultCoordinator{
		Appointments: appts,
		Providers:    &stubProviders{provider: &models.Provider{ID: "p1", Name: "Desk", Active: true, Hours: allWeekHours()}},
		Services:     services,
		Granularity:  30,
		Now:          func() time.Time { return now },
	}
	settlement := &stubSettlement{received: map[string]float64{}}
	machine := &Machine{
		Sessions:   NewMemorySessionStore(),
		Coord:      coord,
		Services:   services,
		WindowDays: 7,
		Now:        func() time.Time { return now },
	}
	machine.Gate = &payment.DefaultGate{
		Payments:  paymentRepo.NewMemoryPaymentRepo(),
		Provider:  settlement,
		Fulfiller: machine,
		Expiry:    30 * time.Minute,
		Now:       func() time.Time { return now },
	}
	return machine, appts, settlement
}

func press(t *testing.T, m *Machine, chatID int64, act action.Action) Reply {
	t.Helper()
	reply, err := m.HandleAction(context.Background(), chatID, act)
	require.NoError(t, err)
	return reply
}

func enterAndKeep(t *testing.T, m *Machine, chatID int64, text string) Reply {
	t.Helper()
	reply, err := m.HandleText(context.Background(), chatID, text)
	require.NoError(t, err)
	require.Contains(t, reply.Text, ":", "expected a pending-value confirmation for %q", text)
	return press(t, m, chatID, action.Action{Kind: action.KindKeep})
}

func advanceToForm(t *testing.T, m *Machine, chatID int64, serviceID string) {
	t.Helper()
	ctx := context.Background()
	_, err := m.Start(ctx, chatID)
	require.NoError(t, err)
	press(t, m, chatID, action.Action{Kind: action.KindService, ID: serviceID})
	press(t, m, chatID, action.Action{Kind: action.KindDate, Value: "2026-09-02"})
	press(t, m, chatID, action.Action{Kind: action.KindTime, Value: "2026-09-02T10:00:00Z"})
}

func fillForm(t *testing.T, m *Machine, chatID int64) {
	t.Helper()
	enterAndKeep(t, m, chatID, "Alice")
	press(t, m, chatID, action.Action{Kind: action.KindSkip}) // middle name
	enterAndKeep(t, m, chatID, "Smith")
	enterAndKeep(t, m, chatID, "23/04/1991")
	press(t, m, chatID, action.Action{Kind: action.KindSkip}) // licence and its dates
	press(t, m, chatID, action.Action{Kind: action.KindSkip}) // suite
	enterAndKeep(t, m, chatID, "123")
	enterAndKeep(t, m, chatID, "Main Street")
	enterAndKeep(t, m, chatID, "Ottawa")
	enterAndKeep(t, m, chatID, "Ontario")
	enterAndKeep(t, m, chatID, "k1a0b1")
}

func TestSingleFlowBooksAppointment(t *testing.T) {
	m, appts, _ := newTestMachine()
	ctx := context.Background()
	chatID := int64(100)

	advanceToForm(t, m, chatID, "svc")
	fillForm(t, m, chatID)

	session, err := m.Sessions.Get(ctx, chatID)
	require.NoError(t, err)
	assert.Equal(t, models.StepSummary, session.Step)
	assert.Equal(t, "K1A 0B1", session.Fields["postal_code"], "postal code must be normalized")
	_, hasLicence := session.Fields["licence_number"]
	assert.False(t, hasLicence, "declined licence must not be committed")

	reply := press(t, m, chatID, action.Action{Kind: action.KindConfirm})
	assert.Contains(t, reply.Text, "booked")

	booked, err := appts.ListByClient(ctx, chatID)
	require.NoError(t, err)
	require.Len(t, booked, 1)
	assert.Equal(t, "Alice Smith", booked[0].ClientName)
	assert.Equal(t, models.StatusScheduled, booked[0].Status)
	assert.Equal(t, time.Date(2026, 9, 2, 10, 0, 0, 0, time.UTC), booked[0].Start.UTC())
}

func TestLicenceDeclineSkipsDependentFields(t *testing.T) {
	m, _, _ := newTestMachine()
	ctx := context.Background()
	chatID := int64(101)

	advanceToForm(t, m, chatID, "svc")
	enterAndKeep(t, m, chatID, "Alice")
	press(t, m, chatID, action.Action{Kind: action.KindSkip})
	enterAndKeep(t, m, chatID, "Smith")
	enterAndKeep(t, m, chatID, "23/04/1991")

	reply := press(t, m, chatID, action.Action{Kind: action.KindSkip})
	assert.Contains(t, reply.Text, "Suite", "declining the licence must land past its issue/expiry fields")

	session, err := m.Sessions.Get(ctx, chatID)
	require.NoError(t, err)
	field := formFields[session.FieldIndex]
	assert.Equal(t, "suite", field.Name)
}

func TestStrayTextIsIgnored(t *testing.T) {
	m, _, _ := newTestMachine()
	ctx := context.Background()
	chatID := int64(102)

	_, err := m.Start(ctx, chatID)
	require.NoError(t, err)

	// Service selection is button-driven; free text must not move the session.
	reply, err := m.HandleText(ctx, chatID, "hello?")
	require.NoError(t, err)
	assert.True(t, reply.Empty())

	session, err := m.Sessions.Get(ctx, chatID)
	require.NoError(t, err)
	assert.Equal(t, models.StepServiceSelect, session.Step)
}

func TestInvalidInputRepromptsSameField(t *testing.T) {
	m, _, _ := newTestMachine()
	ctx := context.Background()
	chatID := int64(103)

	advanceToForm(t, m, chatID, "svc")
	enterAndKeep(t, m, chatID, "Alice")
	press(t, m, chatID, action.Action{Kind: action.KindSkip})
	enterAndKeep(t, m, chatID, "Smith")

	reply, err := m.HandleText(ctx, chatID, "April 23rd 1991")
	require.NoError(t, err)
	assert.Contains(t, reply.Text, "DD/MM/YYYY")

	session, err := m.Sessions.Get(ctx, chatID)
	require.NoError(t, err)
	assert.True(t, session.AwaitingInput, "failed validation must keep the field awaiting input")
	assert.Equal(t, "date_of_birth", formFields[session.FieldIndex].Name)
}

func TestEditRewindsPendingValue(t *testing.T) {
	m, _, _ := newTestMachine()
	ctx := context.Background()
	chatID := int64(104)

	advanceToForm(t, m, chatID, "svc")

	reply, err := m.HandleText(ctx, chatID, "Alicw")
	require.NoError(t, err)
	assert.Contains(t, reply.Text, "Alicw")

	press(t, m, chatID, action.Action{Kind: action.KindEdit})
	session, err := m.Sessions.Get(ctx, chatID)
	require.NoError(t, err)
	assert.True(t, session.AwaitingInput)
	assert.Empty(t, session.PendingValue)
	assert.Empty(t, session.Fields["first_name"], "edited value must not have been committed")

	enterAndKeep(t, m, chatID, "Alice")
	session, err = m.Sessions.Get(ctx, chatID)
	require.NoError(t, err)
	assert.Equal(t, "Alice", session.Fields["first_name"])
}

func TestCancelEndsWithoutSideEffects(t *testing.T) {
	m, appts, _ := newTestMachine()
	ctx := context.Background()
	chatID := int64(105)

	advanceToForm(t, m, chatID, "svc")
	reply := press(t, m, chatID, action.Action{Kind: action.KindCancel})
	assert.Contains(t, reply.Text, "cancelled")

	_, err := m.Sessions.Get(ctx, chatID)
	assert.ErrorIs(t, err, ErrSessionExpired)

	booked, err := appts.ListByClient(ctx, chatID)
	require.NoError(t, err)
	assert.Empty(t, booked)
}

func TestBulkFlowSchedulesOnePerSubject(t *testing.T) {
	m, appts, _ := newTestMachine()
	ctx := context.Background()
	chatID := int64(106)

	roster := "Jane,Doe,01/02/1990\n\nJohn,Roe,03/04/1985\n"
	reply, err := m.StartBulk(ctx, chatID, roster)
	require.NoError(t, err)
	assert.Contains(t, reply.Text, "2 subjects")

	press(t, m, chatID, action.Action{Kind: action.KindService, ID: "svc"})

	slots := []string{"2026-09-02T10:00:00Z", "2026-09-02T11:00:00Z"}
	for _, slot := range slots {
		press(t, m, chatID, action.Action{Kind: action.KindDate, Value: "2026-09-02"})
		press(t, m, chatID, action.Action{Kind: action.KindTime, Value: slot})
		reply = press(t, m, chatID, action.Action{Kind: action.KindConfirm})
	}
	assert.Contains(t, reply.Text, "2 appointments")

	booked, err := appts.ListByClient(ctx, chatID)
	require.NoError(t, err)
	require.Len(t, booked, 2, "exactly one appointment per subject")

	names := map[string]bool{}
	for _, a := range booked {
		names[a.ClientName] = true
	}
	assert.True(t, names["Jane Doe"])
	assert.True(t, names["John Roe"])

	session, err := m.Sessions.Get(ctx, chatID)
	require.NoError(t, err)
	assert.Equal(t, models.StepDone, session.Step, "terminal only after every subject is scheduled")
}

func TestBulkRejectsMalformedRoster(t *testing.T) {
	m, _, _ := newTestMachine()
	reply, err := m.StartBulk(context.Background(), int64(107), "Jane Doe 01/02/1990")
	require.NoError(t, err)
	assert.Contains(t, reply.Text, "line 1")
}

func TestSlotRaceSendsUserBackToTimes(t *testing.T) {
	m, _, _ := newTestMachine()
	ctx := context.Background()

	// First chat books 10:00.
	advanceToForm(t, m, 108, "svc")
	fillForm(t, m, 108)
	press(t, m, 108, action.Action{Kind: action.KindConfirm})

	// Second chat reached the summary for the same slot before the first
	// confirmed; its confirm must lose gracefully.
	advanceToForm(t, m, 109, "svc")
	fillForm(t, m, 109)
	reply := press(t, m, 109, action.Action{Kind: action.KindConfirm})
	assert.Contains(t, reply.Text, "took that slot")

	session, err := m.Sessions.Get(ctx, 109)
	require.NoError(t, err)
	assert.Equal(t, models.StepTimeSelect, session.Step)
}

func TestPaymentGatedFlowDefersReservation(t *testing.T) {
	m, appts, settlement := newTestMachine()
	ctx := context.Background()
	chatID := int64(110)

	advanceToForm(t, m, chatID, "paid")
	fillForm(t, m, chatID)

	reply := press(t, m, chatID, action.Action{Kind: action.KindConfirm})
	assert.Contains(t, reply.Text, "pay 10.00 USD")

	session, err := m.Sessions.Get(ctx, chatID)
	require.NoError(t, err)
	assert.Equal(t, models.StepPaymentWait, session.Step)
	require.NotEmpty(t, session.PaymentID)

	booked, err := appts.ListByClient(ctx, chatID)
	require.NoError(t, err)
	assert.Empty(t, booked, "no appointment may exist before the payment confirms")

	// Partial payment keeps the slot unreserved.
	settlement.received["addr-1"] = 4
	reply = press(t, m, chatID, action.Action{Kind: action.KindCheckPayment, ID: session.PaymentID})
	assert.Contains(t, reply.Text, "Remaining balance: 6.00")

	// Full coverage triggers the deferred reservation.
	settlement.received["addr-1"] = 10
	reply = press(t, m, chatID, action.Action{Kind: action.KindCheckPayment, ID: session.PaymentID})
	assert.Contains(t, reply.Text, "booked")

	booked, err = appts.ListByClient(ctx, chatID)
	require.NoError(t, err)
	require.Len(t, booked, 1)
	assert.Equal(t, session.PaymentID, booked[0].PaymentID)
}

func TestSettledPaymentSurvivesSlotRace(t *testing.T) {
	m, appts, settlement := newTestMachine()
	sender := &stubSender{}
	m.Sender = sender
	ctx := context.Background()

	// The paying chat reaches the payment wait for 10:00.
	advanceToForm(t, m, 120, "paid")
	fillForm(t, m, 120)
	press(t, m, 120, action.Action{Kind: action.KindConfirm})
	session, err := m.Sessions.Get(ctx, 120)
	require.NoError(t, err)
	paymentID := session.PaymentID

	// A rival books 10:00 while the payment settles.
	advanceToForm(t, m, 121, "svc")
	fillForm(t, m, 121)
	press(t, m, 121, action.Action{Kind: action.KindConfirm})

	settlement.received["addr-1"] = 10
	reply := press(t, m, 120, action.Action{Kind: action.KindCheckPayment, ID: paymentID})
	assert.True(t, reply.Empty(), "the re-pick prompt is pushed, not returned as a booking claim")
	require.NotEmpty(t, sender.pushed)
	assert.Contains(t, sender.pushed[len(sender.pushed)-1], "taken while it settled")

	session, err = m.Sessions.Get(ctx, 120)
	require.NoError(t, err)
	assert.Equal(t, models.StepTimeSelect, session.Step)
	assert.True(t, session.PaymentSettled)

	// The payment is final: no sweep keeps retrying the lost slot, and no
	// second charge opens.
	res, err := m.Gate.PollStatus(ctx, paymentID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentConfirmed, res.Status)

	// A fresh slot pick skips the completed form and reserves against the
	// held funds.
	reply = press(t, m, 120, action.Action{Kind: action.KindTime, Value: "2026-09-02T11:00:00Z"})
	assert.Contains(t, reply.Text, "Please review")
	reply = press(t, m, 120, action.Action{Kind: action.KindConfirm})
	assert.Contains(t, reply.Text, "booked")

	booked, err := appts.ListByClient(ctx, 120)
	require.NoError(t, err)
	require.Len(t, booked, 1)
	assert.Equal(t, paymentID, booked[0].PaymentID)
	assert.Equal(t, time.Date(2026, 9, 2, 11, 0, 0, 0, time.UTC), booked[0].Start.UTC())
}

func TestBackFromFormReturnsToTimeSelection(t *testing.T) {
	m, _, _ := newTestMachine()
	ctx := context.Background()
	chatID := int64(111)

	advanceToForm(t, m, chatID, "svc")
	reply := press(t, m, chatID, action.Action{Kind: action.KindBack})
	assert.Contains(t, reply.Text, "Pick a time")

	session, err := m.Sessions.Get(ctx, chatID)
	require.NoError(t, err)
	assert.Equal(t, models.StepTimeSelect, session.Step)
}

func TestBackFromLaterFieldOffersCommittedValue(t *testing.T) {
	m, _, _ := newTestMachine()
	ctx := context.Background()
	chatID := int64(112)

	advanceToForm(t, m, chatID, "svc")
	enterAndKeep(t, m, chatID, "Alice")
	press(t, m, chatID, action.Action{Kind: action.KindSkip})

	// Now at last_name; back lands on the optional middle name so the user
	// can fill it in after all.
	reply := press(t, m, chatID, action.Action{Kind: action.KindBack})
	assert.Contains(t, reply.Text, "middle name")

	session, err := m.Sessions.Get(ctx, chatID)
	require.NoError(t, err)
	assert.Equal(t, "middle_name", formFields[session.FieldIndex].Name)
}

func TestParseRosterNormalizesLines(t *testing.T) {
	subjects, err := ParseRoster(" Jane , Doe , 01/02/1990 \nJohn,Roe,03/04/1985")
	require.NoError(t, err)
	require.Len(t, subjects, 2)
	assert.Equal(t, "Jane", subjects[0].FirstName)
	assert.Equal(t, "Doe", subjects[0].LastName)
	assert.Equal(t, "01/02/1990", subjects[0].DateOfBirth)

	_, err = ParseRoster("Jane,Doe,February 1st")
	var verr *booking.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "line 1", verr.Field)
}
