package models

import "time"

// Step identifies a position in the booking conversation.
type Step string

const (
	StepServiceSelect Step = "service_select"
	StepDateSelect    Step = "date_select"
	StepTimeSelect    Step = "time_select"
	StepFormField     Step = "form_field"
	StepSummary       Step = "summary"
	StepPaymentWait   Step = "payment_wait"
	StepDone          Step = "done"
)

// Subject is the person an appointment is for. In the single flow it is the
// chat user; in the bulk flow each roster line becomes one subject.
type Subject struct {
	FirstName   string `json:"firstName"`
	MiddleName  string `json:"middleName,omitempty"`
	LastName    string `json:"lastName"`
	DateOfBirth string `json:"dateOfBirth,omitempty"` // DD/MM/YYYY
}

// BookingSession is the per-chat conversational state. It lives in Redis with
// a TTL; expiry is the documented abandonment boundary (ErrSessionExpired,
// never a silently fabricated session).
type BookingSession struct {
	ChatID        int64  `json:"chatId"`
	SessionID     string `json:"sessionId"`
	Step          Step   `json:"step"`
	FieldIndex    int    `json:"fieldIndex"` // position in the form when Step == form_field
	AwaitingInput bool   `json:"awaitingInput"`

	// Two-phase accept: a validated value is held here until the user taps
	// keep/edit, so a typo never commits a field.
	PendingField string `json:"pendingField,omitempty"`
	PendingValue string `json:"pendingValue,omitempty"`

	// Collected values, keyed by field name, with insertion order preserved
	// for summary rendering.
	Fields     map[string]string `json:"fields,omitempty"`
	FieldOrder []string          `json:"fieldOrder,omitempty"`

	ServiceID  string    `json:"serviceId,omitempty"`
	ProviderID string    `json:"providerId,omitempty"`
	Date       string    `json:"date,omitempty"` // YYYY-MM-DD
	SlotStart  time.Time `json:"slotStart,omitempty"`

	// In-flight payment, when the chosen service requires one. PaymentSettled
	// flips when the payment confirmed but the reservation still has to land,
	// so a re-picked slot reserves against the held funds instead of opening a
	// second charge.
	PaymentID      string `json:"paymentId,omitempty"`
	PaymentSettled bool   `json:"paymentSettled,omitempty"`

	// Bulk flow: remaining subjects and results so far.
	Bulk         bool      `json:"bulk,omitempty"`
	Subjects     []Subject `json:"subjects,omitempty"`
	SubjectIndex int       `json:"subjectIndex,omitempty"`
	ScheduledIDs []string  `json:"scheduledIds,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// SetField records a committed field value, preserving first-seen order.
func (s *BookingSession) SetField(name, value string) {
	if s.Fields == nil {
		s.Fields = make(map[string]string)
	}
	if _, seen := s.Fields[name]; !seen {
		s.FieldOrder = append(s.FieldOrder, name)
	}
	s.Fields[name] = value
}

// CurrentSubject returns the subject being scheduled in a bulk session.
func (s *BookingSession) CurrentSubject() (Subject, bool) {
	if !s.Bulk || s.SubjectIndex >= len(s.Subjects) {
		return Subject{}, false
	}
	return s.Subjects[s.SubjectIndex], true
}
