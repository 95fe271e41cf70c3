package envutil

import (
	"os"
	"strings"
)

// IsDev checks if we're running in development mode, where cookies may be
// sent over plain HTTP to localhost.
func IsDev() bool {
	env := strings.ToLower(os.Getenv("SITERELAY_ENV"))
	return env == "development" || env == "dev"
}
