package flow

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"bookline/bot/action"
	serviceRepo "bookline/database/repository/service"
	"bookline/models"
	"bookline/services/booking"
	"bookline/services/notification"
	"bookline/services/payment"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Reply is what the machine wants shown to the user next. An empty reply
// means the input was ignored (stray text outside an awaiting step).
type Reply struct {
	Text    string
	Buttons [][]notification.Button
}

func (r Reply) Empty() bool {
	return r.Text == "" && len(r.Buttons) == 0
}

// Machine drives the booking conversation. All entry points serialize on a
// per-chat mutex so a double-tap cannot advance a session twice, and every
// state change round-trips through the session store before the reply is
// produced.
type Machine struct {
	Sessions   SessionStore
	Coord      booking.Coordinator
	Gate       payment.Gate
	Services   serviceRepo.ServiceRepository
	WindowDays int
	Location   *time.Location
	Logger     *zap.Logger
	Now        func() time.Time

	// Operator review: approval-gated reservations are announced to these
	// chats with approve/reject buttons. Best-effort.
	Sender    notification.ChatSender
	Operators []int64

	locks keyedMutex
}

const dayLayout = "2006-01-02"

func (m *Machine) now() time.Time {
	if m.Now != nil {
		return m.Now()
	}
	return time.Now()
}

func (m *Machine) location() *time.Location {
	if m.Location != nil {
		return m.Location
	}
	return time.UTC
}

// Start opens a fresh single-subject session, replacing any in-flight one.
func (m *Machine) Start(ctx context.Context, chatID int64) (Reply, error) {
	unlock := m.locks.lock(chatID)
	defer unlock()

	session := &models.BookingSession{
		ChatID:    chatID,
		SessionID: uuid.New().String(),
		Step:      models.StepServiceSelect,
		CreatedAt: m.now(),
	}
	if err := m.Sessions.Save(ctx, session); err != nil {
		return Reply{}, err
	}
	return m.servicePrompt(ctx, "Welcome! What would you like to book?")
}

// StartBulk opens a roster session: one appointment will be scheduled per
// subject, reusing the date/time/confirm steps for each.
func (m *Machine) StartBulk(ctx context.Context, chatID int64, roster string) (Reply, error) {
	unlock := m.locks.lock(chatID)
	defer unlock()

	subjects, err := ParseRoster(roster)
	if err != nil {
		var verr *booking.ValidationError
		if errors.As(err, &verr) {
			return Reply{Text: verr.Error() + ". Fix the file and upload it again."}, nil
		}
		return Reply{}, err
	}

	session := &models.BookingSession{
		ChatID:    chatID,
		SessionID: uuid.New().String(),
		Step:      models.StepServiceSelect,
		Bulk:      true,
		Subjects:  subjects,
		CreatedAt: m.now(),
	}
	if err := m.Sessions.Save(ctx, session); err != nil {
		return Reply{}, err
	}
	intro := fmt.Sprintf("Roster accepted: %d subjects. Which service are you booking for them?", len(subjects))
	return m.servicePrompt(ctx, intro)
}

// HandleText processes free text. Text is only meaningful while the current
// form field is awaiting input; anything else is deliberately ignored so a
// stray message cannot corrupt the flow.
func (m *Machine) HandleText(ctx context.Context, chatID int64, text string) (Reply, error) {
	unlock := m.locks.lock(chatID)
	defer unlock()

	session, err := m.Sessions.Get(ctx, chatID)
	if err != nil {
		return Reply{}, err
	}
	if session.Step != models.StepFormField || !session.AwaitingInput {
		return Reply{}, nil
	}

	field := formFields[session.FieldIndex]
	normalized, err := field.Validate(text)
	if err != nil {
		var verr *booking.ValidationError
		if errors.As(err, &verr) {
			reply := m.fieldPrompt(session, "That didn't work: "+verr.Reason+".")
			return reply, nil
		}
		return Reply{}, err
	}

	// Two-phase accept: hold the value until the user confirms it.
	session.PendingField = field.Name
	session.PendingValue = normalized
	session.AwaitingInput = false
	if err := m.Sessions.Save(ctx, session); err != nil {
		return Reply{}, err
	}
	return Reply{
		Text: fmt.Sprintf("%s: %s", field.Label, normalized),
		Buttons: [][]notification.Button{{
			{Label: "Keep", Token: action.Action{Kind: action.KindKeep}.Encode()},
			{Label: "Edit", Token: action.Action{Kind: action.KindEdit}.Encode()},
		}},
	}, nil
}

// HandleAction processes a decoded button press.
func (m *Machine) HandleAction(ctx context.Context, chatID int64, act action.Action) (Reply, error) {
	// Payment polling runs outside the chat lock: a confirmed payment calls
	// back into OnConfirmed, which takes the same lock.
	if act.Kind == action.KindCheckPayment {
		return m.checkPayment(ctx, chatID, act.ID)
	}

	unlock := m.locks.lock(chatID)
	defer unlock()

	if act.Kind == action.KindCancel {
		if err := m.Sessions.Delete(ctx, chatID); err != nil {
			return Reply{}, err
		}
		return Reply{Text: "Booking cancelled. Send /start whenever you want to try again."}, nil
	}

	session, err := m.Sessions.Get(ctx, chatID)
	if err != nil {
		return Reply{}, err
	}

	switch act.Kind {
	case action.KindService:
		return m.pickService(ctx, session, act.ID)
	case action.KindDate:
		return m.pickDate(ctx, session, act.Value)
	case action.KindTime:
		return m.pickTime(ctx, session, act.Value)
	case action.KindKeep:
		return m.keepPending(ctx, session)
	case action.KindEdit:
		return m.editPending(ctx, session)
	case action.KindSkip:
		return m.skipField(ctx, session)
	case action.KindBack:
		return m.goBack(ctx, session)
	case action.KindConfirm:
		return m.confirmBooking(ctx, session)
	default:
		return Reply{}, nil
	}
}

func (m *Machine) pickService(ctx context.Context, session *models.BookingSession, serviceID string) (Reply, error) {
	if session.Step != models.StepServiceSelect {
		return Reply{}, nil
	}
	svc, err := m.Services.GetByID(ctx, serviceID)
	if err != nil {
		if errors.Is(err, serviceRepo.ErrNotFound) {
			return m.servicePrompt(ctx, "That service is no longer offered. Pick another one.")
		}
		return Reply{}, err
	}
	session.ServiceID = svc.ID
	session.Step = models.StepDateSelect
	if err := m.Sessions.Save(ctx, session); err != nil {
		return Reply{}, err
	}
	return m.datePrompt(session, ""), nil
}

func (m *Machine) pickDate(ctx context.Context, session *models.BookingSession, date string) (Reply, error) {
	if session.Step != models.StepDateSelect {
		return Reply{}, nil
	}
	day, err := time.ParseInLocation(dayLayout, date, m.location())
	if err != nil {
		return m.datePrompt(session, "That date didn't parse. Pick a day from the buttons."), nil
	}

	availability, err := m.Coord.AvailableSlots(ctx, session.ProviderID, session.ServiceID, day)
	if err != nil {
		return Reply{}, err
	}
	switch availability.Reason {
	case models.DayClosed:
		return m.datePrompt(session, "We're closed that day. Pick another one."), nil
	case models.DayFullyBooked:
		return m.datePrompt(session, "That day is fully booked. Pick another one."), nil
	}

	session.Date = date
	session.Step = models.StepTimeSelect
	if err := m.Sessions.Save(ctx, session); err != nil {
		return Reply{}, err
	}
	return slotReply(availability, ""), nil
}

func (m *Machine) pickTime(ctx context.Context, session *models.BookingSession, value string) (Reply, error) {
	if session.Step != models.StepTimeSelect {
		return Reply{}, nil
	}
	start, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return Reply{Text: "That slot didn't parse. Pick a time from the buttons."}, nil
	}
	session.SlotStart = start

	// A completed form means the user is re-picking after a slot race; there
	// is nothing left to ask, so go straight back to the summary.
	if session.Bulk || session.FieldIndex >= len(formFields) {
		session.Step = models.StepSummary
		session.AwaitingInput = false
		if err := m.Sessions.Save(ctx, session); err != nil {
			return Reply{}, err
		}
		return m.summaryReply(session), nil
	}

	session.Step = models.StepFormField
	session.FieldIndex = 0
	session.AwaitingInput = true
	if err := m.Sessions.Save(ctx, session); err != nil {
		return Reply{}, err
	}
	return m.fieldPrompt(session, ""), nil
}

func (m *Machine) keepPending(ctx context.Context, session *models.BookingSession) (Reply, error) {
	if session.Step != models.StepFormField || session.PendingField == "" {
		return Reply{}, nil
	}
	session.SetField(session.PendingField, session.PendingValue)
	session.PendingField = ""
	session.PendingValue = ""
	return m.advanceField(ctx, session, 1)
}

func (m *Machine) editPending(ctx context.Context, session *models.BookingSession) (Reply, error) {
	if session.Step != models.StepFormField {
		return Reply{}, nil
	}
	session.PendingField = ""
	session.PendingValue = ""
	session.AwaitingInput = true
	if err := m.Sessions.Save(ctx, session); err != nil {
		return Reply{}, err
	}
	return m.fieldPrompt(session, ""), nil
}

func (m *Machine) skipField(ctx context.Context, session *models.BookingSession) (Reply, error) {
	if session.Step != models.StepFormField {
		return Reply{}, nil
	}
	field := formFields[session.FieldIndex]
	if !field.Optional {
		return m.fieldPrompt(session, "This field is required."), nil
	}
	// Declining an optional field also skips the fields that depend on it.
	return m.advanceField(ctx, session, 1+field.SkipWith)
}

func (m *Machine) advanceField(ctx context.Context, session *models.BookingSession, by int) (Reply, error) {
	session.FieldIndex += by
	if session.FieldIndex >= len(formFields) {
		session.Step = models.StepSummary
		session.AwaitingInput = false
		if err := m.Sessions.Save(ctx, session); err != nil {
			return Reply{}, err
		}
		return m.summaryReply(session), nil
	}
	session.AwaitingInput = true
	if err := m.Sessions.Save(ctx, session); err != nil {
		return Reply{}, err
	}
	return m.fieldPrompt(session, ""), nil
}

func (m *Machine) goBack(ctx context.Context, session *models.BookingSession) (Reply, error) {
	switch session.Step {
	case models.StepDateSelect:
		session.Step = models.StepServiceSelect
		if err := m.Sessions.Save(ctx, session); err != nil {
			return Reply{}, err
		}
		return m.servicePrompt(ctx, "What would you like to book?")
	case models.StepTimeSelect:
		session.Step = models.StepDateSelect
		if err := m.Sessions.Save(ctx, session); err != nil {
			return Reply{}, err
		}
		return m.datePrompt(session, ""), nil
	case models.StepFormField:
		if session.FieldIndex == 0 {
			session.Step = models.StepTimeSelect
			session.AwaitingInput = false
			if err := m.Sessions.Save(ctx, session); err != nil {
				return Reply{}, err
			}
			return m.reopenSlots(ctx, session)
		}
		return m.backToField(ctx, session, m.prevFieldIndex(session))
	case models.StepSummary:
		if session.Bulk {
			session.Step = models.StepTimeSelect
			if err := m.Sessions.Save(ctx, session); err != nil {
				return Reply{}, err
			}
			return m.reopenSlots(ctx, session)
		}
		return m.backToField(ctx, session, m.prevFieldIndex(session))
	default:
		return Reply{}, nil
	}
}

// prevFieldIndex walks back over fields that were never committed and are not
// optional, which is exactly the shape a declined licence leaves behind.
func (m *Machine) prevFieldIndex(session *models.BookingSession) int {
	start := session.FieldIndex - 1
	if session.Step == models.StepSummary {
		start = len(formFields) - 1
	}
	for i := start; i > 0; i-- {
		field := formFields[i]
		if _, ok := session.Fields[field.Name]; ok || field.Optional {
			return i
		}
	}
	return 0
}

// backToField restores a previous field. A committed value is re-presented as
// pending so the user can keep or edit it without retyping.
func (m *Machine) backToField(ctx context.Context, session *models.BookingSession, index int) (Reply, error) {
	session.Step = models.StepFormField
	session.FieldIndex = index
	field := formFields[index]

	if existing, ok := session.Fields[field.Name]; ok {
		session.PendingField = field.Name
		session.PendingValue = existing
		session.AwaitingInput = false
		if err := m.Sessions.Save(ctx, session); err != nil {
			return Reply{}, err
		}
		return Reply{
			Text: fmt.Sprintf("%s: %s", field.Label, existing),
			Buttons: [][]notification.Button{{
				{Label: "Keep", Token: action.Action{Kind: action.KindKeep}.Encode()},
				{Label: "Edit", Token: action.Action{Kind: action.KindEdit}.Encode()},
			}},
		}, nil
	}

	session.PendingField = ""
	session.PendingValue = ""
	session.AwaitingInput = true
	if err := m.Sessions.Save(ctx, session); err != nil {
		return Reply{}, err
	}
	return m.fieldPrompt(session, ""), nil
}

func (m *Machine) reopenSlots(ctx context.Context, session *models.BookingSession) (Reply, error) {
	day, err := time.ParseInLocation(dayLayout, session.Date, m.location())
	if err != nil {
		return m.datePrompt(session, ""), nil
	}
	availability, err := m.Coord.AvailableSlots(ctx, session.ProviderID, session.ServiceID, day)
	if err != nil {
		return Reply{}, err
	}
	if availability.Reason != models.DayOpen {
		session.Step = models.StepDateSelect
		if err := m.Sessions.Save(ctx, session); err != nil {
			return Reply{}, err
		}
		return m.datePrompt(session, "That day filled up in the meantime. Pick another one."), nil
	}
	return slotReply(availability, ""), nil
}

func (m *Machine) confirmBooking(ctx context.Context, session *models.BookingSession) (Reply, error) {
	if session.Step != models.StepSummary {
		return Reply{}, nil
	}
	svc, err := m.Services.GetByID(ctx, session.ServiceID)
	if err != nil {
		return Reply{}, err
	}

	if !session.Bulk && svc.PaymentRequired && m.Gate != nil && !session.PaymentSettled {
		return m.openPayment(ctx, session, svc)
	}
	return m.reserveCurrent(ctx, session, svc, session.PaymentID)
}

// openPayment defers the reservation behind a payment. No appointment row
// exists until the payment confirms, so an unpaid hold never blocks the slot.
func (m *Machine) openPayment(ctx context.Context, session *models.BookingSession, svc *models.ServiceOffering) (Reply, error) {
	p, err := m.Gate.RequirePayment(ctx, payment.ChargeRequest{
		Amount:      svc.Price,
		Currency:    svc.Currency,
		Description: svc.Name,
		PayerChatID: session.ChatID,
	}, strconv.FormatInt(session.ChatID, 10))
	if err != nil {
		return Reply{}, err
	}

	session.PaymentID = p.ID
	session.Step = models.StepPaymentWait
	if err := m.Sessions.Save(ctx, session); err != nil {
		return Reply{}, err
	}
	text := fmt.Sprintf(
		"To finish, pay %.2f %s.\nReference: %s\nThe request expires at %s.",
		p.Amount, strings.ToUpper(p.Currency), p.Address,
		p.ExpiresAt.In(m.location()).Format("15:04"))
	return Reply{
		Text: text,
		Buttons: [][]notification.Button{
			{{Label: "I've paid", Token: action.Action{Kind: action.KindCheckPayment, ID: p.ID}.Encode()}},
			{{Label: "Cancel", Token: action.Action{Kind: action.KindCancel}.Encode()}},
		},
	}, nil
}

// reserveCurrent performs the actual handoff to the coordinator for the
// current subject. Losing the slot race sends the user back to time selection
// rather than failing the flow.
func (m *Machine) reserveCurrent(ctx context.Context, session *models.BookingSession, svc *models.ServiceOffering, paymentID string) (Reply, error) {
	appt, err := m.Coord.Reserve(ctx, booking.ReserveRequest{
		ProviderID:   session.ProviderID,
		ServiceID:    svc.ID,
		Start:        session.SlotStart,
		ClientChatID: session.ChatID,
		ClientName:   m.clientName(session),
		PaymentID:    paymentID,
	})
	if err != nil {
		if errors.Is(err, booking.ErrSlotUnavailable) {
			session.Step = models.StepTimeSelect
			if saveErr := m.Sessions.Save(ctx, session); saveErr != nil {
				return Reply{}, saveErr
			}
			reply, rerr := m.reopenSlots(ctx, session)
			if rerr != nil {
				return Reply{}, rerr
			}
			reply.Text = "Someone just took that slot. Pick another time:\n" + reply.Text
			return reply, nil
		}
		return Reply{}, err
	}

	session.ScheduledIDs = append(session.ScheduledIDs, appt.ID)

	if session.Bulk {
		session.SubjectIndex++
		if _, more := session.CurrentSubject(); more {
			session.Step = models.StepDateSelect
			session.Date = ""
			session.SlotStart = time.Time{}
			if err := m.Sessions.Save(ctx, session); err != nil {
				return Reply{}, err
			}
			return m.datePrompt(session, fmt.Sprintf("Booked %s at %s.",
				appt.ClientName, appt.Start.In(m.location()).Format("Mon 02 Jan 15:04"))), nil
		}
		session.Step = models.StepDone
		if err := m.Sessions.Save(ctx, session); err != nil {
			return Reply{}, err
		}
		return Reply{Text: fmt.Sprintf("All done. %d appointments scheduled.", len(session.ScheduledIDs))}, nil
	}

	session.Step = models.StepDone
	if err := m.Sessions.Save(ctx, session); err != nil {
		return Reply{}, err
	}
	when := appt.Start.In(m.location()).Format("Monday 02 Jan at 15:04")
	if appt.Status == models.StatusPendingApproval {
		m.announceForReview(ctx, appt)
		return Reply{Text: fmt.Sprintf(
			"Request received for %s. An operator will review it shortly and you'll get a confirmation here.", when)}, nil
	}
	return Reply{Text: fmt.Sprintf("You're booked for %s. We'll remind you before your appointment.", when)}, nil
}

func (m *Machine) checkPayment(ctx context.Context, chatID int64, paymentID string) (Reply, error) {
	unlock := m.locks.lock(chatID)
	session, err := m.Sessions.Get(ctx, chatID)
	if err != nil {
		unlock()
		return Reply{}, err
	}
	waiting := session.Step == models.StepPaymentWait || session.Step == models.StepDone
	unlock()
	if !waiting {
		return Reply{}, nil
	}

	res, err := m.Gate.PollStatus(ctx, paymentID)
	if err != nil {
		return Reply{}, err
	}
	switch res.Status {
	case models.PaymentConfirmed:
		// The fulfiller may have lost the slot race and pushed a re-pick
		// prompt instead of reserving; don't claim a booking it didn't make.
		unlock = m.locks.lock(chatID)
		session, err = m.Sessions.Get(ctx, chatID)
		unlock()
		if err == nil && session.PaymentSettled && session.Step != models.StepDone {
			return Reply{}, nil
		}
		return Reply{Text: "Payment received, you're booked. We'll remind you before your appointment."}, nil
	case models.PaymentExpired:
		return Reply{Text: "That payment request expired before it was covered. Send /start to book again."}, nil
	default:
		if res.AmountReceived > 0 {
			return Reply{
				Text: fmt.Sprintf("Partial payment received: %.2f. Remaining balance: %.2f.", res.AmountReceived, res.Remaining),
				Buttons: [][]notification.Button{{
					{Label: "Check again", Token: action.Action{Kind: action.KindCheckPayment, ID: paymentID}.Encode()},
				}},
			}, nil
		}
		return Reply{
			Text: "No payment seen yet. It can take a minute to settle.",
			Buttons: [][]notification.Button{{
				{Label: "Check again", Token: action.Action{Kind: action.KindCheckPayment, ID: paymentID}.Encode()},
			}},
		}, nil
	}
}

// OnConfirmed is the payment fulfiller hook: the payment covered the amount,
// so the deferred reservation runs now from the cached session data.
func (m *Machine) OnConfirmed(ctx context.Context, p *models.Payment) (string, error) {
	chatID, err := strconv.ParseInt(p.SessionKey, 10, 64)
	if err != nil {
		return "", fmt.Errorf("bad session key on payment %s: %w", p.ID, err)
	}
	unlock := m.locks.lock(chatID)
	defer unlock()

	session, err := m.Sessions.Get(ctx, chatID)
	if err != nil {
		return "", fmt.Errorf("session gone before fulfillment: %w", err)
	}
	svc, err := m.Services.GetByID(ctx, session.ServiceID)
	if err != nil {
		return "", err
	}

	appt, err := m.Coord.Reserve(ctx, booking.ReserveRequest{
		ProviderID:   session.ProviderID,
		ServiceID:    svc.ID,
		Start:        session.SlotStart,
		ClientChatID: session.ChatID,
		ClientName:   m.clientName(session),
		PaymentID:    p.ID,
	})
	if err != nil {
		if errors.Is(err, booking.ErrSlotUnavailable) {
			// The slot went while the payment settled. The payment still
			// finalizes as confirmed (no appointment yet); the session holds
			// the reference and the next confirm reserves against it.
			return "", m.holdSettledPayment(ctx, session, p)
		}
		return "", err
	}

	session.ScheduledIDs = append(session.ScheduledIDs, appt.ID)
	session.Step = models.StepDone
	if err := m.Sessions.Save(ctx, session); err != nil {
		return "", err
	}
	if m.Logger != nil {
		m.Logger.Info("deferred reservation fulfilled",
			zap.String("paymentID", p.ID),
			zap.String("appointmentID", appt.ID))
	}
	return appt.ID, nil
}

// holdSettledPayment parks a fully funded payment whose reservation lost the
// slot race. The user is pushed straight to a fresh slot pick; the funds are
// never charged twice and never left retrying a slot that is gone.
func (m *Machine) holdSettledPayment(ctx context.Context, session *models.BookingSession, p *models.Payment) error {
	session.PaymentSettled = true
	session.Step = models.StepTimeSelect
	if err := m.Sessions.Save(ctx, session); err != nil {
		return err
	}
	reply, err := m.reopenSlots(ctx, session)
	if err != nil {
		return err
	}
	reply.Text = "Your payment is in, but that time was taken while it settled. Pick another slot; the payment stays on your booking.\n" + reply.Text
	m.push(ctx, session.ChatID, reply)
	if m.Logger != nil {
		m.Logger.Info("settled payment held for slot re-pick",
			zap.String("paymentID", p.ID),
			zap.Int64("chatID", session.ChatID))
	}
	return nil
}

// push delivers a machine-initiated message (as opposed to a Reply returned
// to the bot). Best-effort.
func (m *Machine) push(ctx context.Context, chatID int64, r Reply) {
	if m.Sender == nil || r.Empty() {
		return
	}
	var err error
	if len(r.Buttons) > 0 {
		_, err = m.Sender.SendButtons(ctx, chatID, r.Text, r.Buttons)
	} else {
		err = m.Sender.SendText(ctx, chatID, r.Text)
	}
	if err != nil && m.Logger != nil {
		m.Logger.Warn("push delivery failed", zap.Int64("chatID", chatID), zap.Error(err))
	}
}

// OnExpired rewinds the session to the summary so the user can retry; no
// appointment exists yet, so there is nothing to cancel here.
func (m *Machine) OnExpired(ctx context.Context, p *models.Payment) error {
	chatID, err := strconv.ParseInt(p.SessionKey, 10, 64)
	if err != nil {
		return nil
	}
	unlock := m.locks.lock(chatID)
	defer unlock()

	session, err := m.Sessions.Get(ctx, chatID)
	if err != nil {
		if errors.Is(err, ErrSessionExpired) {
			return nil
		}
		return err
	}
	if session.PaymentID != p.ID {
		return nil
	}
	session.PaymentID = ""
	session.Step = models.StepSummary
	return m.Sessions.Save(ctx, session)
}

// announceForReview pushes an approve/reject prompt to every operator chat.
func (m *Machine) announceForReview(ctx context.Context, appt *models.Appointment) {
	if m.Sender == nil {
		return
	}
	text := fmt.Sprintf("Review request: %s for %s on %s.",
		appt.ServiceName, appt.ClientName,
		appt.Start.In(m.location()).Format("Mon 02 Jan 15:04"))
	buttons := [][]notification.Button{{
		{Label: "Approve", Token: action.Action{Kind: action.KindApprove, ID: appt.ID}.Encode()},
		{Label: "Reject", Token: action.Action{Kind: action.KindReject, ID: appt.ID}.Encode()},
	}}
	for _, operatorID := range m.Operators {
		if _, err := m.Sender.SendButtons(ctx, operatorID, text, buttons); err != nil && m.Logger != nil {
			m.Logger.Warn("operator announcement failed",
				zap.Int64("operatorChatID", operatorID),
				zap.Error(err))
		}
	}
}

func (m *Machine) clientName(session *models.BookingSession) string {
	if session.Bulk {
		if subject, ok := session.CurrentSubject(); ok {
			return strings.TrimSpace(subject.FirstName + " " + subject.LastName)
		}
		return ""
	}
	return strings.TrimSpace(session.Fields["first_name"] + " " + session.Fields["last_name"])
}

func (m *Machine) servicePrompt(ctx context.Context, intro string) (Reply, error) {
	services, err := m.Services.ListActive(ctx)
	if err != nil {
		return Reply{}, err
	}
	if len(services) == 0 {
		return Reply{Text: "Nothing is bookable right now. Please check back later."}, nil
	}
	var rows [][]notification.Button
	for _, svc := range services {
		label := svc.Name
		if svc.Price > 0 {
			label = fmt.Sprintf("%s (%.2f %s)", svc.Name, svc.Price, strings.ToUpper(svc.Currency))
		}
		rows = append(rows, []notification.Button{{
			Label: label,
			Token: action.Action{Kind: action.KindService, ID: svc.ID}.Encode(),
		}})
	}
	rows = append(rows, cancelRow())
	return Reply{Text: intro, Buttons: rows}, nil
}

func (m *Machine) datePrompt(session *models.BookingSession, note string) Reply {
	text := "Pick a day:"
	if session.Bulk {
		if subject, ok := session.CurrentSubject(); ok {
			text = fmt.Sprintf("Subject %d of %d: %s %s. Pick a day:",
				session.SubjectIndex+1, len(session.Subjects), subject.FirstName, subject.LastName)
		}
	}
	if note != "" {
		text = note + "\n" + text
	}

	today := m.now().In(m.location())
	var rows [][]notification.Button
	var row []notification.Button
	days := m.WindowDays
	if days <= 0 {
		days = 7
	}
	for i := 0; i < days; i++ {
		day := today.AddDate(0, 0, i)
		row = append(row, notification.Button{
			Label: day.Format("Mon 02 Jan"),
			Token: action.Action{Kind: action.KindDate, Value: day.Format(dayLayout)}.Encode(),
		})
		if len(row) == 3 {
			rows = append(rows, row)
			row = nil
		}
	}
	if len(row) > 0 {
		rows = append(rows, row)
	}
	rows = append(rows, navRow(false))
	return Reply{Text: text, Buttons: rows}
}

func slotReply(day models.DayAvailability, note string) Reply {
	text := "Pick a time:"
	if note != "" {
		text = note + "\n" + text
	}
	var rows [][]notification.Button
	var row []notification.Button
	for _, slot := range day.Slots {
		row = append(row, notification.Button{
			Label: slot.Label,
			Token: action.Action{Kind: action.KindTime, Value: slot.Start.Format(time.RFC3339)}.Encode(),
		})
		if len(row) == 4 {
			rows = append(rows, row)
			row = nil
		}
	}
	if len(row) > 0 {
		rows = append(rows, row)
	}
	rows = append(rows, navRow(false))
	return Reply{Text: text, Buttons: rows}
}

func (m *Machine) fieldPrompt(session *models.BookingSession, note string) Reply {
	field := formFields[session.FieldIndex]
	text := field.Prompt
	if field.Example != "" {
		text += " For example: " + field.Example
	}
	if note != "" {
		text = note + "\n" + text
	}
	return Reply{Text: text, Buttons: [][]notification.Button{navRow(field.Optional)}}
}

func (m *Machine) summaryReply(session *models.BookingSession) Reply {
	var b strings.Builder
	b.WriteString("Please review:\n")
	if session.Bulk {
		if subject, ok := session.CurrentSubject(); ok {
			fmt.Fprintf(&b, "Subject: %s %s (born %s)\n", subject.FirstName, subject.LastName, subject.DateOfBirth)
		}
	} else {
		for _, name := range session.FieldOrder {
			field, _, ok := fieldByName(name)
			if !ok {
				continue
			}
			fmt.Fprintf(&b, "%s: %s\n", field.Label, session.Fields[name])
		}
	}
	fmt.Fprintf(&b, "When: %s", session.SlotStart.In(m.location()).Format("Monday 02 Jan at 15:04"))
	return Reply{
		Text: b.String(),
		Buttons: [][]notification.Button{
			{{Label: "Confirm", Token: action.Action{Kind: action.KindConfirm}.Encode()}},
			navRow(false),
		},
	}
}

func navRow(withSkip bool) []notification.Button {
	row := []notification.Button{}
	if withSkip {
		row = append(row, notification.Button{Label: "Skip", Token: action.Action{Kind: action.KindSkip}.Encode()})
	}
	row = append(row,
		notification.Button{Label: "Back", Token: action.Action{Kind: action.KindBack}.Encode()},
	)
	return append(row, cancelRow()...)
}

func cancelRow() []notification.Button {
	return []notification.Button{{Label: "Cancel", Token: action.Action{Kind: action.KindCancel}.Encode()}}
}
