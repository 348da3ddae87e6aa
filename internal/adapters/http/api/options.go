package api

// Default middleware settings.
const (
	DefaultMaxBodyBytes int64 = 32 << 20
	// maxMultipartMemory is the in-memory part of a CSV upload; the rest
	// spills to temporary files.
	maxMultipartMemory = 8 << 20
)

type options struct {
	maxBodyBytes int64
	corsOrigins  []string
}

func defaultOptions() options {
	return options{
		maxBodyBytes: DefaultMaxBodyBytes,
		corsOrigins:  []string{"*"},
	}
}

// Option configures a Server.
type Option func(*options)

// WithMaxBodyBytes caps request bodies. Non-positive values keep the default.
func WithMaxBodyBytes(n int64) Option {
	return func(o *options) {
		if n > 0 {
			o.maxBodyBytes = n
		}
	}
}

// WithCORSOrigins sets the allowed origins. "*" allows any origin; an empty
// list disables CORS headers.
func WithCORSOrigins(origins ...string) Option {
	return func(o *options) {
		o.corsOrigins = append([]string(nil), origins...)
	}
}
