package models

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidTransition signals an event that has no edge from the current
// status.
var ErrInvalidTransition = errors.New("invalid status transition")

// AppointmentStatus is the lifecycle state of an appointment.
type AppointmentStatus string

const (
	StatusPendingApproval AppointmentStatus = "pending_approval"
	StatusScheduled       AppointmentStatus = "scheduled"
	StatusConfirmed       AppointmentStatus = "confirmed"
	StatusInProgress      AppointmentStatus = "in_progress"
	StatusCompleted       AppointmentStatus = "completed"
	StatusCancelled       AppointmentStatus = "cancelled"
	StatusRejected        AppointmentStatus = "rejected"
	StatusNoShow          AppointmentStatus = "no_show"
)

// StatusEvent is something that happens to an appointment.
type StatusEvent string

const (
	EventApprove  StatusEvent = "approve"
	EventReject   StatusEvent = "reject"
	EventConfirm  StatusEvent = "confirm"
	EventStart    StatusEvent = "start"
	EventComplete StatusEvent = "complete"
	EventCancel   StatusEvent = "cancel"
	EventNoShow   StatusEvent = "no_show"
)

// transitions is the single source of truth for status changes. Every writer
// (conversation flow, payment polling, reminder scheduler, ops API) goes
// through Transition, so no path can move an appointment backwards or re-enter
// pending_approval/scheduled once left.
var transitions = map[AppointmentStatus]map[StatusEvent]AppointmentStatus{
	StatusPendingApproval: {
		EventApprove: StatusScheduled,
		EventReject:  StatusRejected,
	},
	StatusScheduled: {
		EventConfirm: StatusConfirmed,
		EventCancel:  StatusCancelled,
		EventNoShow:  StatusNoShow,
	},
	StatusConfirmed: {
		EventStart:  StatusInProgress,
		EventCancel: StatusCancelled,
	},
	StatusInProgress: {
		EventComplete: StatusCompleted,
	},
}

// Transition applies an event to a status and returns the resulting status.
func Transition(from AppointmentStatus, event StatusEvent) (AppointmentStatus, error) {
	next, ok := transitions[from][event]
	if !ok {
		return from, fmt.Errorf("%w: %s on %s", ErrInvalidTransition, event, from)
	}
	return next, nil
}

// Terminal reports whether no further transitions exist for the status.
func (s AppointmentStatus) Terminal() bool {
	return len(transitions[s]) == 0
}

// Active reports whether the appointment still occupies its slot.
// Only active appointments count against provider availability.
func (s AppointmentStatus) Active() bool {
	switch s {
	case StatusCancelled, StatusRejected, StatusNoShow:
		return false
	}
	return true
}

// CancellationMeta records who cancelled an appointment, why, and when.
type CancellationMeta struct {
	Reason      string    `bson:"reason" json:"reason"`
	CancelledBy string    `bson:"cancelledBy" json:"cancelledBy"` // "client", "operator", "scheduler", "payment"
	CancelledAt time.Time `bson:"cancelledAt" json:"cancelledAt"`
}

// ConfirmationMeta tracks the final-reminder acknowledgement handshake.
type ConfirmationMeta struct {
	Required  bool      `bson:"required" json:"required"`
	Token     string    `bson:"token,omitempty" json:"token,omitempty"`
	SentAt    time.Time `bson:"sentAt,omitempty" json:"sentAt,omitempty"`
	Confirmed bool      `bson:"confirmed" json:"confirmed"`
}

// Appointment is a confirmed or in-flight reservation of a provider's time.
type Appointment struct {
	ID           string            `bson:"id" json:"id"`
	ClientChatID int64             `bson:"clientChatId" json:"clientChatId"`
	ClientName   string            `bson:"clientName,omitempty" json:"clientName,omitempty"`
	ProviderID   string            `bson:"providerId" json:"providerId"`
	ServiceID    string            `bson:"serviceId" json:"serviceId"`
	ServiceName  string            `bson:"serviceName,omitempty" json:"serviceName,omitempty"`
	Start        time.Time         `bson:"start" json:"start"`
	End          time.Time         `bson:"end" json:"end"` // derived from Start+Duration, persisted for overlap queries
	Duration     int               `bson:"durationMinutes" json:"durationMinutes"` // minutes
	Status       AppointmentStatus `bson:"status" json:"status"`
	Price        float64           `bson:"price" json:"price"`
	Currency     string            `bson:"currency,omitempty" json:"currency,omitempty"`
	PaymentID    string            `bson:"paymentId,omitempty" json:"paymentId,omitempty"`
	Cancellation *CancellationMeta `bson:"cancellation,omitempty" json:"cancellation,omitempty"`
	Confirmation *ConfirmationMeta `bson:"confirmation,omitempty" json:"confirmation,omitempty"`
	CreatedAt    time.Time         `bson:"createdAt" json:"createdAt"`
	UpdatedAt    time.Time         `bson:"updatedAt" json:"updatedAt"`
}

// SetTimes stamps the time range from a start and a duration in minutes.
func (a *Appointment) SetTimes(start time.Time, durationMinutes int) {
	a.Start = start
	a.Duration = durationMinutes
	a.End = start.Add(time.Duration(durationMinutes) * time.Minute)
}

// Overlaps reports whether the appointment's [start, end) range intersects
// the given range, with bufferMinutes of padding on both sides of this
// appointment.
func (a *Appointment) Overlaps(start, end time.Time, bufferMinutes int) bool {
	buf := time.Duration(bufferMinutes) * time.Minute
	return a.Start.Add(-buf).Before(end) && a.End.Add(buf).After(start)
}
