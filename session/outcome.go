package session

import (
	"time"

	"github.com/google/uuid"
)

// OutcomeKind identifies how a session ended.
type OutcomeKind string

const (
	OutcomePassed   OutcomeKind = "passed"
	OutcomeFailed   OutcomeKind = "failed"
	OutcomeExpired  OutcomeKind = "expired"
	OutcomeApproved OutcomeKind = "approved"
	OutcomeRejected OutcomeKind = "rejected"
)

// Outcome is the terminal record of a session. Exactly one is produced per
// session that is claimed out of the store.
type Outcome struct {
	ID        string      `json:"id"`
	SessionID string      `json:"session_id"`
	SubjectID int64       `json:"subject_id"`
	GroupID   int64       `json:"group_id"`
	Admission string      `json:"admission"`
	Kind      OutcomeKind `json:"kind"`
	Reason    string      `json:"reason,omitempty"`
	Attempts  int         `json:"attempts"`
	// Actor is the administrator who resolved the session, zero otherwise.
	Actor int64     `json:"actor,omitempty"`
	At    time.Time `json:"at"`
}

// NewOutcome builds the terminal record for s.
func NewOutcome(s Session, kind OutcomeKind, at time.Time) Outcome {
	return Outcome{
		ID:        uuid.NewString(),
		SessionID: s.ID,
		SubjectID: s.SubjectID,
		GroupID:   s.GroupID,
		Admission: s.Admission.Kind.String(),
		Kind:      kind,
		Attempts:  s.AttemptsUsed,
		At:        at.UTC(),
	}
}
