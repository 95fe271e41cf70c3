package cookie

import (
	"net/http"
	"time"

	"github.com/foliosite/siterelay/internal/envutil"
	"github.com/foliosite/siterelay/internal/log"
)

// StateCookie carries the OAuth state issued for one authorization attempt.
const StateCookie = "decap_oauth_state"

// SetState stores the issued state in a short-lived httpOnly cookie scoped to path
func SetState(w http.ResponseWriter, value, path string, maxAge time.Duration) {
	secure := !envutil.IsDev()
	http.SetCookie(w, &http.Cookie{
		Name:     StateCookie,
		Value:    value,
		Path:     path,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(maxAge.Seconds()),
	})

	log.LogTraceWithFields("cookie", "State cookie set", map[string]any{
		"maxAge":   maxAge.String(),
		"secure":   secure,
		"path":     path,
		"sameSite": "Lax",
	})
}

// ClearState removes the state cookie so it cannot be presented twice
func ClearState(w http.ResponseWriter, path string) {
	http.SetCookie(w, &http.Cookie{
		Name:     StateCookie,
		Value:    "",
		Path:     path,
		HttpOnly: true,
		Secure:   !envutil.IsDev(),
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	})
}

// GetState retrieves the state cookie value, or "" when absent
func GetState(r *http.Request) string {
	c, err := r.Cookie(StateCookie)
	if err != nil {
		return ""
	}
	return c.Value
}
