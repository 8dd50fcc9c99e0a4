package driver

import "fmt"

// ConfigError is a custom error type for configuration errors
type ConfigError struct {
	msg string
}

func NewConfigError(msg string) *ConfigError {
	return &ConfigError{msg}
}

func (e *ConfigError) Error() string {
	return e.msg
}

// RuntimeError is returned when a helper binary cannot be located or started
type RuntimeError struct {
	msg string
}

func NewRuntimeError(msg string) *RuntimeError {
	return &RuntimeError{msg}
}

func (e *RuntimeError) Error() string {
	return e.msg
}

// CommunicationError reports a failed exchange with an instrument or receiver
// transport. It is never retried by the queue; the caller decides.
type CommunicationError struct {
	Device string // e.g. "N9310A", "RTL-SDR"
	Op     string // command or operation that failed
	Err    error
}

func NewCommunicationError(device, op string, err error) *CommunicationError {
	return &CommunicationError{Device: device, Op: op, Err: err}
}

func (e *CommunicationError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Device, e.Op, e.Err)
}

func (e *CommunicationError) Unwrap() error {
	return e.Err
}

// AcquisitionError reports dropped samples or a stalled capture.
type AcquisitionError struct {
	Device string
	Err    error
}

func NewAcquisitionError(device string, err error) *AcquisitionError {
	return &AcquisitionError{Device: device, Err: err}
}

func (e *AcquisitionError) Error() string {
	return fmt.Sprintf("%s: acquisition failed: %v", e.Device, e.Err)
}

func (e *AcquisitionError) Unwrap() error {
	return e.Err
}

// IdentityMismatchError is returned at connect time when the instrument does
// not identify as the expected family, or when no identity could be read at
// all. Err holds the transport failure in the latter case.
type IdentityMismatchError struct {
	Expected string
	Got      string
	Err      error
}

func (e *IdentityMismatchError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("no %s detected: %v", e.Expected, e.Err)
	case e.Got == "":
		return fmt.Sprintf("unexpected instrument: no identity response, want %s", e.Expected)
	}
	return fmt.Sprintf("unexpected instrument: %q, want %s", e.Got, e.Expected)
}

func (e *IdentityMismatchError) Unwrap() error {
	return e.Err
}
