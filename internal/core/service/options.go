package service

import (
	"time"

	"github.com/benbjohnson/clock"
)

const (
	DefaultRingTimeout     = 40 * time.Second
	DefaultDisconnectGrace = 5 * time.Second
	DefaultSendRetryDelay  = 250 * time.Millisecond
	DefaultUpdateBuffer    = 64
)

type options struct {
	ringTimeout     time.Duration
	disconnectGrace time.Duration
	sendRetryDelay  time.Duration
	updateBuffer    int
	clock           clock.Clock
}

type Option func(*options)

func defaultOptions() options {
	return options{
		ringTimeout:     DefaultRingTimeout,
		disconnectGrace: DefaultDisconnectGrace,
		sendRetryDelay:  DefaultSendRetryDelay,
		updateBuffer:    DefaultUpdateBuffer,
		clock:           clock.New(),
	}
}

// WithRingTimeout bounds how long a call may ring before it counts as unanswered.
func WithRingTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.ringTimeout = d
		}
	}
}

// WithDisconnectGrace sets how long a lost signaling channel is tolerated
// during a connecting or active call.
func WithDisconnectGrace(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.disconnectGrace = d
		}
	}
}

// WithSendRetryDelay sets the pause before the single resend of a failed
// envelope. Zero retries immediately.
func WithSendRetryDelay(d time.Duration) Option {
	return func(o *options) {
		if d >= 0 {
			o.sendRetryDelay = d
		}
	}
}

func WithUpdateBuffer(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.updateBuffer = n
		}
	}
}

func WithClock(c clock.Clock) Option {
	return func(o *options) {
		if c != nil {
			o.clock = c
		}
	}
}
