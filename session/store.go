package session

// Store is the registry of live sessions keyed by subject. Every method is
// linearisable with respect to every other; values returned are copies.
//
// Expiry is derived on each access: an expired session is never returned by
// Get, Claim or the attempt counters. Whoever observes it first moves it out
// of the live registry, and the next DrainExpired hands it out exactly once.
type Store interface {
	// Create inserts s, replacing any prior session for the subject. An
	// empty ID or zero CreatedAt is filled in.
	Create(s Session) Session
	// Get returns the live session for subject.
	Get(subjectID int64) (Session, bool)
	// Remove deletes whatever session is held for subject. Removing an
	// absent subject is a no-op.
	Remove(subjectID int64) (Session, bool)
	// Claim removes the live session for subject if its ID matches
	// sessionID (any ID when sessionID is empty). The caller that gets
	// true owns the session's terminal outcome.
	Claim(subjectID int64, sessionID string) (Session, bool)
	// IncrementAttempt bumps the attempt counter of the live session and
	// returns the new count, or 0 when there is none.
	IncrementAttempt(subjectID int64) int
	// IncrementAttemptFor is IncrementAttempt restricted to one session ID
	// (any when empty). When the counter reaches MaxAttempts the session is
	// removed in the same step and the returned copy has Remaining() == 0.
	IncrementAttemptFor(subjectID int64, sessionID string) (Session, bool)
	// DrainExpired removes and returns every expired session.
	DrainExpired() []Session
	// Snapshot lists live sessions ordered by creation time.
	Snapshot() []Session
	// Len is the number of live sessions.
	Len() int
}
