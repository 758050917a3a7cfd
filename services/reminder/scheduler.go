package reminder

import (
	"context"
	"fmt"
	"time"

	"bookline/bot/action"
	appointmentRepo "bookline/database/repository/appointment"
	"bookline/models"
	"bookline/services/notification"
	"bookline/services/tasks"
	"bookline/utils"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

const reminderTemplate = "Hi {name}! Reminder: {service} on {when} ({lead} from now)."
const confirmTemplate = "Hi {name}! Your {service} starts at {when}. Please confirm within {deadline} minutes or the slot will be released."

// DeadlineEnqueuer schedules the one-shot confirmation deadline check.
type DeadlineEnqueuer interface {
	EnqueueConfirmDeadline(ctx context.Context, payload models.ReminderPayload, fireAt time.Time) error
}

// AsynqEnqueuer submits deadline checks to the task queue.
type AsynqEnqueuer struct {
	Client *asynq.Client
}

func (e *AsynqEnqueuer) EnqueueConfirmDeadline(ctx context.Context, payload models.ReminderPayload, fireAt time.Time) error {
	task, opts, err := tasks.NewConfirmDeadlineTask(payload, fireAt)
	if err != nil {
		return err
	}
	if _, err := e.Client.EnqueueContext(ctx, task, opts...); err != nil {
		return fmt.Errorf("failed to enqueue deadline check: %w", err)
	}
	return nil
}

// Scheduler walks upcoming appointments once per tick and sends staged
// reminders. The final interval flips the appointment to
// confirmation-required and arms the deadline check.
type Scheduler struct {
	Appointments appointmentRepo.AppointmentRepository
	Sender       notification.ChatSender
	Dedup        Dedup
	Enqueuer     DeadlineEnqueuer
	Intervals    []int // minutes before start, largest first
	Lookahead    time.Duration
	Deadline     time.Duration
	SendTimeout  time.Duration
	Location     *time.Location
	Logger       *zap.Logger
	Now          func() time.Time
}

func (s *Scheduler) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Scheduler) location() *time.Location {
	if s.Location != nil {
		return s.Location
	}
	return time.UTC
}

// finalInterval is the smallest configured stage, the one that demands
// confirmation.
func (s *Scheduler) finalInterval() int {
	final := s.Intervals[0]
	for _, m := range s.Intervals {
		if m < final {
			final = m
		}
	}
	return final
}

// Tick processes one scan. A failure on one appointment is logged and never
// stops the rest of the batch.
func (s *Scheduler) Tick(ctx context.Context) error {
	now := s.now()
	upcoming, err := s.Appointments.ListStartingWithin(ctx, now, now.Add(s.Lookahead))
	if err != nil {
		return fmt.Errorf("reminder scan failed: %w", err)
	}

	for i := range upcoming {
		appt := upcoming[i]
		if err := s.remind(ctx, &appt, now); err != nil && s.Logger != nil {
			s.Logger.Warn("reminder processing failed",
				zap.String("appointmentID", appt.ID),
				zap.Error(err))
		}
	}
	return nil
}

func (s *Scheduler) remind(ctx context.Context, appt *models.Appointment, now time.Time) error {
	until := appt.Start.Sub(now)
	if until <= 0 {
		return nil
	}

	// Fire the tightest interval whose window we are inside. Coarser stages
	// that were already passed are claimed silently, so a late-created
	// appointment does not get a burst of stale reminders across ticks.
	fire := 0
	for _, minutes := range s.Intervals {
		if until <= time.Duration(minutes)*time.Minute && (fire == 0 || minutes < fire) {
			fire = minutes
		}
	}
	if fire == 0 {
		return nil
	}
	for _, minutes := range s.Intervals {
		if minutes > fire && until <= time.Duration(minutes)*time.Minute {
			if _, err := s.Dedup.Claim(ctx, appt.ID, intervalLabel(minutes)); err != nil {
				return err
			}
		}
	}

	claimed, err := s.Dedup.Claim(ctx, appt.ID, intervalLabel(fire))
	if err != nil {
		return err
	}
	if !claimed {
		return nil
	}
	if fire == s.finalInterval() {
		return s.requireConfirmation(ctx, appt, now)
	}
	return s.sendStaged(ctx, appt, fire)
}

func (s *Scheduler) sendStaged(ctx context.Context, appt *models.Appointment, minutes int) error {
	body, err := utils.ProcessTemplate(reminderTemplate, map[string]string{
		"name":    appt.ClientName,
		"service": appt.ServiceName,
		"when":    appt.Start.In(s.location()).Format("Monday 02 Jan at 15:04"),
		"lead":    intervalLabel(minutes),
	})
	if err != nil {
		return err
	}

	sendCtx, cancel := s.sendContext(ctx)
	defer cancel()
	if err := s.Sender.SendText(sendCtx, appt.ClientChatID, body); err != nil {
		// Delivery is best-effort; the claim stands so we do not retry-spam.
		if s.Logger != nil {
			s.Logger.Warn("reminder delivery failed",
				zap.String("appointmentID", appt.ID),
				zap.String("interval", intervalLabel(minutes)),
				zap.Error(err))
		}
		return nil
	}
	if s.Logger != nil {
		s.Logger.Info("reminder sent",
			zap.String("appointmentID", appt.ID),
			zap.String("interval", intervalLabel(minutes)))
	}
	return nil
}

// requireConfirmation flips the appointment to confirmation-required, prompts
// the client, and arms the deadline check. MarkConfirmationRequired only
// succeeds once, so concurrent ticks cannot double-arm.
func (s *Scheduler) requireConfirmation(ctx context.Context, appt *models.Appointment, now time.Time) error {
	// Short token: it rides in callback data next to the appointment ID and
	// Telegram caps callback payloads at 64 bytes.
	token := uuid.New().String()[:8]
	flipped, err := s.Appointments.MarkConfirmationRequired(ctx, appt.ID, token, now)
	if err != nil {
		return err
	}
	if !flipped {
		return nil
	}

	body, err := utils.ProcessTemplate(confirmTemplate, map[string]string{
		"name":     appt.ClientName,
		"service":  appt.ServiceName,
		"when":     appt.Start.In(s.location()).Format("15:04"),
		"deadline": fmt.Sprintf("%d", int(s.Deadline.Minutes())),
	})
	if err != nil {
		return err
	}

	buttons := [][]notification.Button{{
		{Label: "Confirm", Token: action.Action{Kind: action.KindAttendConfirm, ID: appt.ID, Value: token}.Encode()},
		{Label: "Cancel", Token: action.Action{Kind: action.KindAttendCancel, ID: appt.ID}.Encode()},
	}}

	sendCtx, cancel := s.sendContext(ctx)
	defer cancel()
	if _, err := s.Sender.SendButtons(sendCtx, appt.ClientChatID, body, buttons); err != nil && s.Logger != nil {
		// The deadline is still armed: an unreachable client who never
		// confirms loses the slot the same way an ignoring one does.
		s.Logger.Warn("confirmation prompt delivery failed",
			zap.String("appointmentID", appt.ID),
			zap.Error(err))
	}

	if err := s.Enqueuer.EnqueueConfirmDeadline(ctx, models.ReminderPayload{
		AppointmentID: appt.ID,
		ChatID:        appt.ClientChatID,
		Interval:      intervalLabel(int(s.Deadline.Minutes())),
		Token:         token,
	}, now.Add(s.Deadline)); err != nil {
		return err
	}

	if s.Logger != nil {
		s.Logger.Info("confirmation required",
			zap.String("appointmentID", appt.ID),
			zap.Time("deadline", now.Add(s.Deadline)))
	}
	return nil
}

func (s *Scheduler) sendContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.SendTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.SendTimeout)
}

func intervalLabel(minutes int) string {
	if minutes%60 == 0 {
		return fmt.Sprintf("%dh", minutes/60)
	}
	return fmt.Sprintf("%dm", minutes)
}
