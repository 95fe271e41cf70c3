package webhook

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/foliosite/siterelay/internal/emailutil"
)

// Trigger is the booking lifecycle event a delivery reports
type Trigger string

const (
	TriggerPing               Trigger = "PING"
	TriggerBookingCreated     Trigger = "BOOKING_CREATED"
	TriggerBookingRescheduled Trigger = "BOOKING_RESCHEDULED"
	TriggerBookingCancelled   Trigger = "BOOKING_CANCELLED"
	TriggerBookingRequested   Trigger = "BOOKING_REQUESTED"
	TriggerBookingRejected    Trigger = "BOOKING_REJECTED"
	TriggerMeetingEnded       Trigger = "MEETING_ENDED"
)

// ErrMissingTrigger is returned for payloads without a triggerEvent
var ErrMissingTrigger = errors.New("payload has no triggerEvent")

// Person is an organizer or attendee of a booking
type Person struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	TimeZone string `json:"timeZone,omitempty"`
}

// BookingPayload holds the booking fields the site cares about. Unknown
// fields are ignored.
type BookingPayload struct {
	Type               string    `json:"type"`
	Title              string    `json:"title,omitempty"`
	UID                string    `json:"uid,omitempty"`
	Status             string    `json:"status,omitempty"`
	StartTime          time.Time `json:"startTime,omitzero"`
	EndTime            time.Time `json:"endTime,omitzero"`
	Organizer          *Person   `json:"organizer,omitempty"`
	Attendees          []Person  `json:"attendees,omitempty"`
	Location           string    `json:"location,omitempty"`
	CancellationReason string    `json:"cancellationReason,omitempty"`
}

// Event is one verified webhook delivery
type Event struct {
	TriggerEvent Trigger        `json:"triggerEvent"`
	CreatedAt    time.Time      `json:"createdAt,omitzero"`
	Payload      BookingPayload `json:"payload"`
}

// ParseEvent decodes a delivery body. Call it only after Verify succeeded.
func ParseEvent(rawBody []byte) (*Event, error) {
	var ev Event
	if err := json.Unmarshal(rawBody, &ev); err != nil {
		return nil, fmt.Errorf("decoding webhook payload: %w", err)
	}
	if ev.TriggerEvent == "" {
		return nil, ErrMissingTrigger
	}

	if ev.Payload.Organizer != nil {
		ev.Payload.Organizer.Email = emailutil.Normalize(ev.Payload.Organizer.Email)
	}
	for i := range ev.Payload.Attendees {
		ev.Payload.Attendees[i].Email = emailutil.Normalize(ev.Payload.Attendees[i].Email)
	}
	return &ev, nil
}
