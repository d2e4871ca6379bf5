// Package gate drives the verification state machine: it issues
// challenges on admission, scores answers, and resolves every session to
// exactly one terminal outcome.
package gate

import (
	"errors"
	"time"

	"github.com/jmcleod/chiralgate/session"
)

const (
	DefaultTimeout     = 120 * time.Second
	DefaultMaxAttempts = 3

	defaultRejectReason = "rejected by administrator"
	failedReason        = "chiral carbon verification failed"
	timeoutReason       = "verification timed out"
	supersededReason    = "superseded by a newer challenge"
)

var (
	// ErrNoSession is returned by admin operations naming a subject with no
	// live session.
	ErrNoSession = errors.New("no pending verification")
	// ErrInvalidInput is returned for malformed admin command arguments.
	ErrInvalidInput = errors.New("invalid input")
	// ErrDelivery wraps a failed transport action surfaced to the caller.
	ErrDelivery = errors.New("delivery failed")
)

// Config controls verification policy.
type Config struct {
	// Timeout is the answer window per session.
	Timeout time.Duration
	// MaxAttempts is the number of answers allowed per session.
	MaxAttempts int
	// AutoReject removes applicants who fail or time out. When false they
	// are left pending for an administrator.
	AutoReject bool
	// UsePrivate sends the challenge by private message first, falling
	// back to the group.
	UsePrivate bool
	// AdminIDs may run admin commands and receive operator notifications.
	AdminIDs []int64
}

func (c Config) withDefaults() Config {
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	return c
}

// AdmissionEvent reports a new applicant.
type AdmissionEvent struct {
	SubjectID int64
	GroupID   int64
	Admission session.Admission
}

// MessageEvent reports chat text. GroupID is zero for private messages.
type MessageEvent struct {
	SenderID int64
	GroupID  int64
	Text     string
}

// Private reports whether the message arrived in a private chat.
func (e MessageEvent) Private() bool { return e.GroupID == 0 }
