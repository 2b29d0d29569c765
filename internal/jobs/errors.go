package jobs

import (
	"errors"
	"fmt"
)

// Sentinel errors for job operations.
// These can be checked with errors.Is().
var (
	ErrJobNotFound = errors.New("job not found")

	// ErrCanceled is the cooperative cancellation signal. It is never
	// conflated with failure: any pipeline step returning it maps the
	// job to canceled, not failed.
	ErrCanceled = errors.New("job canceled")
)

// ConfigError is a validation failure detected before any external tool
// runs. Its text is shown to the user verbatim.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string { return e.Reason }

func configErrorf(format string, args ...any) error {
	return &ConfigError{Reason: fmt.Sprintf(format, args...)}
}

// AcquisitionError wraps a download or probe failure. The message carries
// the tail of the tool's output.
type AcquisitionError struct {
	Stage string
	Err   error
}

func (e *AcquisitionError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *AcquisitionError) Unwrap() error { return e.Err }
