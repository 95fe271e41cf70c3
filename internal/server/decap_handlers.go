package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/foliosite/siterelay/internal/bridge"
	"github.com/foliosite/siterelay/internal/config"
	"github.com/foliosite/siterelay/internal/cookie"
	"github.com/foliosite/siterelay/internal/crypto"
	"github.com/foliosite/siterelay/internal/ioutil"
	jsonwriter "github.com/foliosite/siterelay/internal/json"
	"github.com/foliosite/siterelay/internal/log"
	"github.com/foliosite/siterelay/internal/relay"
)

const maxTokenRequestBytes = 16 << 10

// DecapOptions carries the non-secret settings the relay handlers report
// and act on
type DecapOptions struct {
	Provider        string
	ProviderHost    string
	RedirectURI     string
	StateTTL        time.Duration
	ExchangeTimeout time.Duration
	SignedState     bool
	Configured      bool
	Storage         string
	AllowedOrigins  []string
}

// DecapHandlers serves the CMS OAuth relay under config.DecapBasePath
type DecapHandlers struct {
	authorizer *relay.Authorizer
	exchanger  *relay.Exchanger
	opts       DecapOptions
	cookiePath string
	tokenPath  string
	started    time.Time
}

// NewDecapHandlers creates the relay handlers. The callback page only
// delivers to openers in opts.AllowedOrigins; an empty list delivers to none.
func NewDecapHandlers(authorizer *relay.Authorizer, exchanger *relay.Exchanger, opts DecapOptions) *DecapHandlers {
	opts.AllowedOrigins = append([]string{}, opts.AllowedOrigins...)
	if len(opts.AllowedOrigins) == 0 {
		log.LogWarnWithFields("decap", "No allowed origins; the callback page will not deliver tokens", nil)
	}
	return &DecapHandlers{
		authorizer: authorizer,
		exchanger:  exchanger,
		opts:       opts,
		cookiePath: config.DecapBasePath,
		tokenPath:  config.DecapBasePath + "/token",
		started:    time.Now(),
	}
}

// tokenRequest is what the callback page posts
type tokenRequest struct {
	Code  string `json:"code"`
	State string `json:"state"`
}

// tokenResponse is returned on a successful exchange. Message is the
// encoded bridge message the page forwards verbatim to the CMS window.
type tokenResponse struct {
	Token    string `json:"token"`
	Provider string `json:"provider"`
	Message  string `json:"message"`
}

type tokenErrorResponse struct {
	jsonwriter.ErrorResponse
	Provider string `json:"provider"`
	Bridge   string `json:"bridge"`
}

type dryRunResponse struct {
	DryRun      bool   `json:"dry_run"`
	Provider    string `json:"provider"`
	RedirectURL string `json:"redirect_url"`
	Cookie      string `json:"cookie"`
}

// AuthorizeHandler starts an authorization attempt: it sets the state
// cookie and redirects to the provider. With ?dry_run=1 it reports the
// redirect target as JSON instead, without setting the cookie.
func (h *DecapHandlers) AuthorizeHandler(w http.ResponseWriter, r *http.Request) {
	dryRun := isTruthy(r.URL.Query().Get("dry_run"))

	auth, err := h.authorizer.Begin(dryRun)
	if err != nil {
		h.writeRelayError(w, err)
		return
	}

	if auth.DryRun {
		_ = jsonwriter.Write(w, dryRunResponse{
			DryRun:      true,
			Provider:    auth.Provider,
			RedirectURL: auth.RedirectURL,
			Cookie:      cookie.StateCookie,
		})
		return
	}

	cookie.SetState(w, auth.State, h.cookiePath, h.opts.StateTTL)
	http.Redirect(w, r, auth.RedirectURL, http.StatusFound)
}

// CallbackHandler renders the bridge page the provider redirects to. The
// page itself performs the exchange once the CMS window answers.
func (h *DecapHandlers) CallbackHandler(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	var failure string
	switch {
	case query.Get("error") != "":
		reason := query.Get("error_description")
		if reason == "" {
			reason = query.Get("error")
		}
		log.LogWarnWithFields("decap", "Provider returned an error on callback", map[string]any{
			"provider": h.opts.Provider,
			"error":    query.Get("error"),
		})
		failure = bridge.MustEncode(bridge.Failure{
			Provider: h.opts.Provider,
			Kind:     string(relay.KindProviderError),
			Reason:   reason,
		})
		cookie.ClearState(w, h.cookiePath)

	case query.Get("code") == "" || query.Get("state") == "":
		failure = bridge.MustEncode(bridge.Failure{
			Provider: h.opts.Provider,
			Kind:     string(relay.KindBadRequest),
			Reason:   "callback is missing the authorization code or state",
		})
		cookie.ClearState(w, h.cookiePath)
	}

	nonce, err := crypto.GenerateSecureToken()
	if err != nil {
		log.LogErrorWithFields("decap", "Failed to generate page nonce", map[string]any{
			"error": err.Error(),
		})
		jsonwriter.WriteInternalServerError(w, "Internal Server Error")
		return
	}

	data := CallbackPageData{
		Nonce:        nonce,
		Provider:     h.opts.Provider,
		TokenURL:     h.tokenPath,
		ReadyMessage: bridge.MustEncode(bridge.Ready{Provider: h.opts.Provider}),
		Failure:      failure,
		NetworkFailure: bridge.MustEncode(bridge.Failure{
			Provider: h.opts.Provider,
			Kind:     string(relay.KindNetworkError),
			Reason:   "could not reach the sign-in service",
		}),
		AllowedOrigins: h.opts.AllowedOrigins,
	}

	var buf bytes.Buffer
	if err := callbackPageTemplate.Execute(&buf, data); err != nil {
		log.LogErrorWithFields("decap", "Failed to render callback page", map[string]any{
			"error": err.Error(),
		})
		jsonwriter.WriteInternalServerError(w, "Internal Server Error")
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Content-Security-Policy",
		"default-src 'none'; script-src 'nonce-"+nonce+"'; style-src 'nonce-"+nonce+"'; "+
			"connect-src 'self'; base-uri 'none'; form-action 'none'; frame-ancestors 'none'")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

// TokenHandler exchanges the code posted by the callback page. The state
// cookie is cleared whatever the outcome: every attempt is single use.
func (h *DecapHandlers) TokenHandler(w http.ResponseWriter, r *http.Request) {
	cookieState := cookie.GetState(r)
	cookie.ClearState(w, h.cookiePath)

	body, err := ioutil.ReadAtMost(r.Body, maxTokenRequestBytes)
	if err != nil {
		msg := "failed to read request body"
		if errors.Is(err, ioutil.ErrTooLarge) {
			msg = "request body too large"
		}
		h.writeRelayError(w, relay.NewError(relay.KindBadRequest, msg))
		return
	}

	var req tokenRequest
	if err := json.Unmarshal(body, &req); err != nil {
		h.writeRelayError(w, relay.NewError(relay.KindBadRequest, "request body must be JSON with code and state"))
		return
	}

	result, err := h.exchanger.Exchange(r.Context(), relay.ExchangeRequest{
		Code:        req.Code,
		State:       req.State,
		CookieState: cookieState,
	})
	if err != nil {
		h.writeRelayError(w, err)
		return
	}

	message, err := bridge.Encode(bridge.Success{Provider: result.Provider, Token: result.Token})
	if err != nil {
		h.writeRelayError(w, err)
		return
	}

	_ = jsonwriter.Write(w, tokenResponse{
		Token:    result.Token,
		Provider: result.Provider,
		Message:  message,
	})
}

// HealthHandler reports whether the relay can serve sign-ins
func (h *DecapHandlers) HealthHandler(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	code := http.StatusOK
	if !h.opts.Configured {
		status = "misconfigured"
		code = http.StatusServiceUnavailable
	}
	_ = jsonwriter.WriteResponse(w, code, map[string]any{
		"status":     status,
		"provider":   h.opts.Provider,
		"configured": h.opts.Configured,
	})
}

// DiagHandler reports the non-secret relay configuration
func (h *DecapHandlers) DiagHandler(w http.ResponseWriter, r *http.Request) {
	_ = jsonwriter.Write(w, map[string]any{
		"provider":            h.opts.Provider,
		"provider_host":       h.opts.ProviderHost,
		"configured":          h.opts.Configured,
		"redirect_uri":        h.opts.RedirectURI,
		"state_signed":        h.opts.SignedState,
		"state_ttl_seconds":   int(h.opts.StateTTL.Seconds()),
		"exchange_timeout_ms": h.opts.ExchangeTimeout.Milliseconds(),
		"storage":             h.opts.Storage,
		"cookie":              cookie.StateCookie,
		"state_cookie_seen":   cookie.GetState(r) != "",
		"uptime_seconds":      int(time.Since(h.started).Seconds()),
	})
}

// PingHandler is a liveness probe for the relay routes
func (h *DecapHandlers) PingHandler(w http.ResponseWriter, r *http.Request) {
	_ = jsonwriter.Write(w, map[string]any{
		"pong": true,
		"time": time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *DecapHandlers) writeRelayError(w http.ResponseWriter, err error) {
	relayErr := relay.AsError(err)

	fields := map[string]any{
		"kind":   string(relayErr.Kind),
		"reason": relayErr.Reason(),
	}
	if relayErr.Kind == relay.KindServerError && relayErr.Err != nil {
		fields["error"] = relayErr.Err.Error()
	}
	log.LogWarnWithFields("decap", "Relay request failed", fields)

	message := relayErr.Message
	if message == "" {
		message = string(relayErr.Kind)
	}

	encoded, encodeErr := bridge.Encode(bridge.Failure{
		Provider: h.opts.Provider,
		Kind:     string(relayErr.Kind),
		Reason:   message,
	})
	if encodeErr != nil {
		encoded = ""
	}

	_ = jsonwriter.WriteResponse(w, relayErr.Status(), tokenErrorResponse{
		ErrorResponse: jsonwriter.ErrorResponse{
			Error:   string(relayErr.Kind),
			Message: message,
			Reason:  relayErr.Reason(),
		},
		Provider: h.opts.Provider,
		Bridge:   encoded,
	})
}

func isTruthy(v string) bool {
	switch v {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}
