package models

// ReminderPayload is the unit of work queued for reminder delivery
// and confirmation-deadline checks.
type ReminderPayload struct {
	AppointmentID string `json:"appointmentId"`
	ChatID        int64  `json:"chatId"`
	Interval      string `json:"interval,omitempty"` // e.g. "12h", "30m"
	Token         string `json:"token,omitempty"`    // confirmation token for the final interval
}
