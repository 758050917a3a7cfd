package reminder

import (
	"context"
	"encoding/json"
	"errors"

	appointmentRepo "bookline/database/repository/appointment"
	"bookline/models"
	"bookline/services/booking"
	"bookline/services/notification"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// HandleConfirmDeadline is the worker handler for the confirmation window
// closing. It re-reads the appointment at fire time rather than trusting the
// state from when the task was enqueued: the client may have confirmed or
// cancelled in the meantime, in which case the check is a no-op.
func HandleConfirmDeadline(coord booking.Coordinator, appointments appointmentRepo.AppointmentRepository, sender notification.ChatSender, logger *zap.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, task *asynq.Task) error {
		var payload models.ReminderPayload
		if err := json.Unmarshal(task.Payload(), &payload); err != nil {
			logger.Error("invalid deadline payload", zap.Error(err))
			return err
		}

		appt, err := appointments.GetByID(ctx, payload.AppointmentID)
		if err != nil {
			if errors.Is(err, appointmentRepo.ErrNotFound) {
				return nil
			}
			return err
		}
		if appt.Confirmation == nil || appt.Confirmation.Token != payload.Token {
			return nil
		}
		if appt.Confirmation.Confirmed || appt.Status != models.StatusScheduled {
			return nil
		}

		_, cancelled, err := coord.Cancel(ctx, payload.AppointmentID, "scheduler", "not confirmed in time")
		if err != nil {
			return err
		}
		if !cancelled {
			return nil
		}

		logger.Info("unconfirmed appointment cancelled",
			zap.String("appointmentID", payload.AppointmentID))

		if sender != nil {
			notice := "Your appointment was cancelled because it wasn't confirmed in time. Send /start to book a new slot."
			if err := sender.SendText(ctx, payload.ChatID, notice); err != nil {
				logger.Warn("cancellation notice delivery failed",
					zap.String("appointmentID", payload.AppointmentID),
					zap.Error(err))
			}
		}
		return nil
	}
}
