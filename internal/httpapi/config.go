package httpapi

// maxBodyBytes caps request bodies on JSON endpoints. 1 MiB unless configured.
var maxBodyBytes int64 = 1 << 20

// SetMaxBodyBytes configures the request body cap. Values <= 0 restore the
// default.
func SetMaxBodyBytes(n int64) {
	if n <= 0 {
		maxBodyBytes = 1 << 20
		return
	}
	maxBodyBytes = n
}

// CORS is opt-in. When disabled no CORS middleware is mounted.
var (
	corsEnabled        bool
	corsAllowedOrigins []string
	corsAllowedMethods []string
	corsAllowedHeaders []string
)

// SetCORSOptions configures CORS for muxes built afterwards. Empty slices
// fall back to the cors package defaults.
func SetCORSOptions(enabled bool, origins, methods, headers []string) {
	corsEnabled = enabled
	corsAllowedOrigins = append([]string(nil), origins...)
	corsAllowedMethods = append([]string(nil), methods...)
	corsAllowedHeaders = append([]string(nil), headers...)
}
