// Package bridge implements the postMessage protocol between the OAuth
// callback popup and the CMS window that opened it.
package bridge

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

const (
	readyPrefix  = "authorizing:"
	resultPrefix = "authorization:"
)

var ErrUnknownMessage = errors.New("unrecognised bridge message")

// Message is one of Ready, Success or Failure
type Message interface {
	ProviderName() string
	isMessage()
}

// Ready announces the popup to its opener. The opener echoes it back,
// which tells the popup the origin it may deliver the result to.
type Ready struct {
	Provider string
}

// Success delivers the access token to the opener
type Success struct {
	Provider string
	Token    string
}

// Failure reports why the attempt failed. Kind is the machine-readable
// class, Reason the human-readable detail.
type Failure struct {
	Provider string
	Kind     string
	Reason   string
}

func (m Ready) ProviderName() string   { return m.Provider }
func (m Success) ProviderName() string { return m.Provider }
func (m Failure) ProviderName() string { return m.Provider }

func (Ready) isMessage()   {}
func (Success) isMessage() {}
func (Failure) isMessage() {}

type successBody struct {
	Token    string `json:"token"`
	Provider string `json:"provider"`
}

type failureBody struct {
	Error    string `json:"error"`
	Message  string `json:"message"`
	Provider string `json:"provider"`
}

// Encode renders m in the wire format the CMS listens for
func Encode(m Message) (string, error) {
	switch msg := m.(type) {
	case Ready:
		return readyPrefix + msg.Provider, nil

	case Success:
		body, err := json.Marshal(successBody{Token: msg.Token, Provider: msg.Provider})
		if err != nil {
			return "", fmt.Errorf("encoding success message: %w", err)
		}
		return resultPrefix + msg.Provider + ":success:" + string(body), nil

	case Failure:
		body, err := json.Marshal(failureBody{Error: msg.Kind, Message: msg.Reason, Provider: msg.Provider})
		if err != nil {
			return "", fmt.Errorf("encoding failure message: %w", err)
		}
		return resultPrefix + msg.Provider + ":error:" + string(body), nil

	default:
		return "", ErrUnknownMessage
	}
}

// Decode parses a wire message back into a Message
func Decode(s string) (Message, error) {
	if provider, ok := strings.CutPrefix(s, readyPrefix); ok {
		if provider == "" || strings.Contains(provider, ":") {
			return nil, ErrUnknownMessage
		}
		return Ready{Provider: provider}, nil
	}

	rest, ok := strings.CutPrefix(s, resultPrefix)
	if !ok {
		return nil, ErrUnknownMessage
	}
	provider, rest, ok := strings.Cut(rest, ":")
	if !ok || provider == "" {
		return nil, ErrUnknownMessage
	}
	status, payload, ok := strings.Cut(rest, ":")
	if !ok {
		return nil, ErrUnknownMessage
	}

	switch status {
	case "success":
		var body successBody
		if err := json.Unmarshal([]byte(payload), &body); err != nil {
			return nil, fmt.Errorf("decoding success message: %w", err)
		}
		return Success{Provider: provider, Token: body.Token}, nil

	case "error":
		var body failureBody
		if err := json.Unmarshal([]byte(payload), &body); err != nil {
			return nil, fmt.Errorf("decoding failure message: %w", err)
		}
		return Failure{Provider: provider, Kind: body.Error, Reason: body.Message}, nil

	default:
		return nil, ErrUnknownMessage
	}
}

// MustEncode is Encode for messages built from known-good values
func MustEncode(m Message) string {
	s, err := Encode(m)
	if err != nil {
		panic(err)
	}
	return s
}
