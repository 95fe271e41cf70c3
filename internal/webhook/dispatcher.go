package webhook

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/foliosite/siterelay/internal/emailutil"
	"github.com/foliosite/siterelay/internal/log"
)

// Handler processes verified events
type Handler interface {
	HandleEvent(ctx context.Context, ev *Event) error
}

// HandlerFunc adapts a function to Handler
type HandlerFunc func(ctx context.Context, ev *Event) error

// HandleEvent implements Handler
func (f HandlerFunc) HandleEvent(ctx context.Context, ev *Event) error {
	return f(ctx, ev)
}

// Dispatcher routes events to the handlers registered for their trigger.
// Events with no registered handler go to the fallback, if any.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[Trigger][]Handler
	fallback Handler
}

// NewDispatcher creates a dispatcher with an optional fallback handler
func NewDispatcher(fallback Handler) *Dispatcher {
	return &Dispatcher{
		handlers: make(map[Trigger][]Handler),
		fallback: fallback,
	}
}

// On registers h for trigger
func (d *Dispatcher) On(trigger Trigger, h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[trigger] = append(d.handlers[trigger], h)
}

// Dispatch runs every handler for ev's trigger and joins their errors
func (d *Dispatcher) Dispatch(ctx context.Context, ev *Event) error {
	d.mu.RLock()
	handlers := d.handlers[ev.TriggerEvent]
	d.mu.RUnlock()

	if len(handlers) == 0 {
		if d.fallback == nil {
			return nil
		}
		handlers = []Handler{d.fallback}
	}

	var errs []error
	for _, h := range handlers {
		if err := h.HandleEvent(ctx, ev); err != nil {
			errs = append(errs, fmt.Errorf("%s handler: %w", ev.TriggerEvent, err))
		}
	}
	return errors.Join(errs...)
}

// LogHandler records bookings in the structured log. Addresses are masked.
func LogHandler() Handler {
	return HandlerFunc(func(_ context.Context, ev *Event) error {
		fields := map[string]any{
			"trigger":    string(ev.TriggerEvent),
			"event_type": ev.Payload.Type,
			"attendees":  len(ev.Payload.Attendees),
		}
		if ev.Payload.UID != "" {
			fields["booking_uid"] = ev.Payload.UID
		}
		if ev.Payload.Organizer != nil && ev.Payload.Organizer.Email != "" {
			fields["organizer"] = emailutil.Mask(ev.Payload.Organizer.Email)
		}
		if !ev.Payload.StartTime.IsZero() {
			fields["start"] = ev.Payload.StartTime.UTC().Format("2006-01-02T15:04Z")
		}
		log.LogInfoWithFields("webhook", "Booking event received", fields)
		return nil
	})
}

// CancellationHandler records cancelled and rejected bookings with the
// reason the guest or host gave.
func CancellationHandler() Handler {
	return HandlerFunc(func(_ context.Context, ev *Event) error {
		fields := map[string]any{
			"trigger":    string(ev.TriggerEvent),
			"event_type": ev.Payload.Type,
		}
		if ev.Payload.UID != "" {
			fields["booking_uid"] = ev.Payload.UID
		}
		if ev.Payload.CancellationReason != "" {
			fields["reason"] = ev.Payload.CancellationReason
		}
		log.LogWarnWithFields("webhook", "Booking withdrawn", fields)
		return nil
	})
}

// PingHandler acknowledges the test delivery sent when a webhook is saved
func PingHandler() Handler {
	return HandlerFunc(func(_ context.Context, ev *Event) error {
		log.LogInfoWithFields("webhook", "Webhook ping received", map[string]any{
			"trigger": string(ev.TriggerEvent),
		})
		return nil
	})
}

func unhandledTrigger() Handler {
	return HandlerFunc(func(_ context.Context, ev *Event) error {
		log.LogWarnWithFields("webhook", "No handler for trigger", map[string]any{
			"trigger": string(ev.TriggerEvent),
		})
		return nil
	})
}

// NewBookingDispatcher routes the booking lifecycle triggers to their
// handlers. Other triggers are accepted and logged.
func NewBookingDispatcher() *Dispatcher {
	d := NewDispatcher(unhandledTrigger())
	d.On(TriggerPing, PingHandler())
	for _, trigger := range []Trigger{TriggerBookingCreated, TriggerBookingRescheduled, TriggerBookingRequested, TriggerMeetingEnded} {
		d.On(trigger, LogHandler())
	}
	for _, trigger := range []Trigger{TriggerBookingCancelled, TriggerBookingRejected} {
		d.On(trigger, CancellationHandler())
	}
	return d
}
