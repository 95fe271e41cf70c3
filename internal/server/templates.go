package server

import (
	_ "embed"
	"html/template"
)

//go:embed templates/callback.html
var callbackPageTemplateHTML string

var callbackPageTemplate = template.Must(template.New("callback").Parse(callbackPageTemplateHTML))

// CallbackPageData represents the data for the OAuth callback bridge page.
// Every string lands inside a script block and is escaped as a JS literal.
type CallbackPageData struct {
	Nonce          string
	Provider       string
	TokenURL       string
	ReadyMessage   string
	Failure        string // pre-encoded failure; when set, no exchange is attempted
	NetworkFailure string // delivered when the token endpoint cannot be reached
	AllowedOrigins []string
}
