package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/foliosite/siterelay/internal/ioutil"
	jsonwriter "github.com/foliosite/siterelay/internal/json"
	"github.com/foliosite/siterelay/internal/log"
	"github.com/foliosite/siterelay/internal/relay"
	"github.com/foliosite/siterelay/internal/webhook"
)

// WebhookHandlers receives booking webhooks from the scheduling service
type WebhookHandlers struct {
	secret       string
	maxBodyBytes int64
	dispatcher   *webhook.Dispatcher
}

// NewWebhookHandlers creates the webhook receiver. An empty secret makes
// every delivery fail with missing-configuration.
func NewWebhookHandlers(secret string, maxBodyBytes int64, dispatcher *webhook.Dispatcher) *WebhookHandlers {
	return &WebhookHandlers{
		secret:       secret,
		maxBodyBytes: maxBodyBytes,
		dispatcher:   dispatcher,
	}
}

type webhookAck struct {
	Received bool   `json:"received"`
	Trigger  string `json:"trigger,omitempty"`
}

// ReceiveHandler authenticates the raw body against the signature header
// before anything parses it.
func (h *WebhookHandlers) ReceiveHandler(w http.ResponseWriter, r *http.Request) {
	if h.secret == "" {
		log.LogErrorWithFields("webhook", "Webhook received but no secret is configured", nil)
		writeKindError(w, relay.KindMissingConfiguration, "webhook secret is not configured")
		return
	}

	rawBody, err := ioutil.ReadAtMost(r.Body, h.maxBodyBytes)
	if err != nil {
		if errors.Is(err, ioutil.ErrTooLarge) {
			jsonwriter.WriteError(w, http.StatusRequestEntityTooLarge, string(relay.KindBadRequest), "payload too large")
			return
		}
		writeKindError(w, relay.KindBadRequest, "failed to read payload")
		return
	}

	header := r.Header.Get(webhook.SignatureHeader)
	if strings.TrimSpace(header) == "" {
		log.LogWarnWithFields("webhook", "Webhook rejected", map[string]any{
			"reason":      string(relay.KindMissingSignature),
			"remote_addr": r.RemoteAddr,
		})
		writeKindError(w, relay.KindMissingSignature, "signature header is missing")
		return
	}

	if !webhook.Verify(rawBody, header, h.secret) {
		log.LogWarnWithFields("webhook", "Webhook rejected", map[string]any{
			"reason":      string(relay.KindBadSignature),
			"remote_addr": r.RemoteAddr,
			"body_bytes":  len(rawBody),
		})
		writeKindError(w, relay.KindBadSignature, "signature does not match payload")
		return
	}

	event, err := webhook.ParseEvent(rawBody)
	if err != nil {
		log.LogWarnWithFields("webhook", "Verified webhook has an unreadable payload", map[string]any{
			"error": err.Error(),
		})
		writeKindError(w, relay.KindBadRequest, "payload is not a valid event")
		return
	}

	if err := h.dispatcher.Dispatch(r.Context(), event); err != nil {
		log.LogErrorWithFields("webhook", "Webhook handler failed", map[string]any{
			"trigger": string(event.TriggerEvent),
			"error":   err.Error(),
		})
	}

	_ = jsonwriter.WriteResponse(w, http.StatusAccepted, webhookAck{
		Received: true,
		Trigger:  string(event.TriggerEvent),
	})
}

func writeKindError(w http.ResponseWriter, kind relay.Kind, message string) {
	jsonwriter.WriteError(w, kind.Status(), string(kind), message)
}
