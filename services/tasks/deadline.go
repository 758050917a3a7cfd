package tasks

import (
	"encoding/json"
	"time"

	"bookline/models"

	"github.com/hibiken/asynq"
)

const TypeConfirmDeadline = "appointment:confirm_deadline"

// NewConfirmDeadlineTask builds the one-shot check that fires when the
// confirmation window closes. The payload token pins the check to the prompt
// that opened the window, so a later prompt cannot be cancelled by an earlier
// deadline.
func NewConfirmDeadlineTask(payload models.ReminderPayload, fireAt time.Time) (*asynq.Task, []asynq.Option, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, nil, err
	}
	task := asynq.NewTask(TypeConfirmDeadline, b)
	opts := []asynq.Option{asynq.ProcessAt(fireAt)}

	return task, opts, nil
}
