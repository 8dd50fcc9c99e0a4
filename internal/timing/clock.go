package timing

import (
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/beevik/ntp"
)

const defaultNTPTimeout = 2 * time.Second

// Clock is the wall-clock source used to timestamp captures
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a plain function to a Clock
type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time {
	return f()
}

// SystemClock returns the local system clock in UTC
func SystemClock() Clock {
	return ClockFunc(func() time.Time {
		return time.Now().UTC()
	})
}

// WithNTPLogger sets the logger used to report NTP fallbacks
func WithNTPLogger(logger *slog.Logger) func(*NTPClock) {
	return func(c *NTPClock) {
		c.logger = logger.With(slog.String("ntpServer", c.server))
	}
}

// WithNTPTimeout sets the NTP query timeout
func WithNTPTimeout(timeout time.Duration) func(*NTPClock) {
	return func(c *NTPClock) {
		c.timeout = timeout
	}
}

// NTPClock queries an NTP server on every call and falls back to the system
// clock when the server cannot be reached.
type NTPClock struct {
	server   string
	timeout  time.Duration
	fallback Clock
	logger   *slog.Logger

	query func(server string, opts ntp.QueryOptions) (*ntp.Response, error)
}

// NewNTPClock creates a new NTPClock for the given server, e.g. "pool.ntp.org"
func NewNTPClock(server string, options ...func(*NTPClock)) *NTPClock {
	c := NTPClock{
		server:   server,
		timeout:  defaultNTPTimeout,
		fallback: SystemClock(),
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		query:    ntp.QueryWithOptions,
	}

	for _, option := range options {
		option(&c)
	}

	return &c
}

func (c *NTPClock) Now() time.Time {
	offset, err := c.offset()
	if err != nil {
		c.logger.Warn(fmt.Sprintf("unable to query NTP, using system time: %s", err.Error()))
		return c.fallback.Now()
	}

	return c.fallback.Now().Add(offset)
}

func (c *NTPClock) offset() (time.Duration, error) {
	resp, err := c.query(c.server, ntp.QueryOptions{Timeout: c.timeout})
	if err != nil {
		return 0, err
	}
	if err = resp.Validate(); err != nil {
		return 0, fmt.Errorf("invalid NTP response: %w", err)
	}

	return resp.ClockOffset, nil
}
