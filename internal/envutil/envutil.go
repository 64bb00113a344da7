package envutil

import (
	"os"
	"strings"
)

// EnvVar selects the runtime environment
const EnvVar = "AUTHCALLBACK_ENV"

// IsDev reports whether we run in development mode, where cookies may be
// sent over plain HTTP and the embedded provider is allowed
func IsDev() bool {
	env := strings.ToLower(os.Getenv(EnvVar))
	return env == "development" || env == "dev"
}
