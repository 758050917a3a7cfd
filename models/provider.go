package models

import "time"

// BusinessHours is a provider's bookable window for one weekday,
// expressed as minutes from midnight in the provider's timezone.
type BusinessHours struct {
	Weekday time.Weekday `bson:"weekday" json:"weekday"`
	Open    int          `bson:"open" json:"open"`   // e.g. 540 for 09:00
	Close   int          `bson:"close" json:"close"` // e.g. 1020 for 17:00
}

// Provider is a bookable staff member or resource.
type Provider struct {
	ID            string          `bson:"id" json:"id"`
	Name          string          `bson:"name" json:"name"`
	Active        bool            `bson:"active" json:"active"`
	Hours         []BusinessHours `bson:"hours" json:"hours"`
	BufferMinutes int             `bson:"bufferMinutes" json:"bufferMinutes"`
	Timezone      string          `bson:"timezone,omitempty" json:"timezone,omitempty"`
}

// HoursFor returns the business hours for the given weekday, if configured.
func (p *Provider) HoursFor(day time.Weekday) (BusinessHours, bool) {
	for _, h := range p.Hours {
		if h.Weekday == day {
			return h, true
		}
	}
	return BusinessHours{}, false
}
