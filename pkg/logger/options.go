package logger

import "io"

// Output formats.
const (
	FormatText = "text"
	FormatJSON = "json"
)

// Rotation defaults for file output.
const (
	defaultMaxSizeMB  = 100
	defaultMaxBackups = 5
	defaultMaxAgeDays = 28
)

type options struct {
	level      string
	format     string
	output     io.Writer
	file       string
	maxSizeMB  int
	maxBackups int
	maxAgeDays int
}

// Option configures InitWithOptions.
type Option func(*options)

// WithLevel sets the initial level (debug, info, warn, error).
func WithLevel(level string) Option {
	return func(o *options) { o.level = level }
}

// WithFormat selects text or json output.
func WithFormat(format string) Option {
	return func(o *options) { o.format = format }
}

// WithOutput replaces stdout as the primary sink.
func WithOutput(w io.Writer) Option {
	return func(o *options) { o.output = w }
}

// WithFile also writes to a size-rotated file at path.
func WithFile(path string) Option {
	return func(o *options) { o.file = path }
}

// WithRotation sets the file rotation limits; non-positive values keep the
// defaults.
func WithRotation(maxSizeMB, maxBackups, maxAgeDays int) Option {
	return func(o *options) {
		if maxSizeMB > 0 {
			o.maxSizeMB = maxSizeMB
		}
		if maxBackups > 0 {
			o.maxBackups = maxBackups
		}
		if maxAgeDays > 0 {
			o.maxAgeDays = maxAgeDays
		}
	}
}
