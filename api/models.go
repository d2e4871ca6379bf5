package api

import (
	"time"

	"github.com/jmcleod/chiralgate/session"
)

// PaginationMeta is embedded in paginated list responses.
type PaginationMeta struct {
	TotalCount int  `json:"total_count"`
	Limit      int  `json:"limit"`
	Offset     int  `json:"offset"`
	HasMore    bool `json:"has_more"`
}

// SessionView is a live session without its image payload.
type SessionView struct {
	ID          string    `json:"id"`
	SubjectID   int64     `json:"subject_id"`
	GroupID     int64     `json:"group_id"`
	Admission   string    `json:"admission"`
	QuestionID  string    `json:"question_id,omitempty"`
	Label       string    `json:"label,omitempty"`
	Attempts    int       `json:"attempts"`
	Remaining   int       `json:"remaining"`
	MaxAttempts int       `json:"max_attempts"`
	CreatedAt   time.Time `json:"created_at"`
	ExpiresAt   time.Time `json:"expires_at"`
}

func newSessionView(s session.Session) SessionView {
	return SessionView{
		ID:          s.ID,
		SubjectID:   s.SubjectID,
		GroupID:     s.GroupID,
		Admission:   s.Admission.Kind.String(),
		QuestionID:  s.Question.ID,
		Label:       s.Question.Label,
		Attempts:    s.AttemptsUsed,
		Remaining:   s.Remaining(),
		MaxAttempts: s.MaxAttempts,
		CreatedAt:   s.CreatedAt.UTC(),
		ExpiresAt:   s.ExpiresAt().UTC(),
	}
}

// ListSessionsResponse is returned by GET /sessions.
type ListSessionsResponse struct {
	Sessions []SessionView `json:"sessions"`
	PaginationMeta
}

// RejectRequest is the optional body of POST /sessions/{subject}/reject.
type RejectRequest struct {
	Reason string `json:"reason"`
}

// ActionResponse carries the operator-facing result of approve or reject.
type ActionResponse struct {
	Message string `json:"message"`
}

// SweepResponse is returned by POST /sweep.
type SweepResponse struct {
	Expired int `json:"expired"`
}

// ListOutcomesResponse is returned by the outcome history routes.
type ListOutcomesResponse struct {
	Outcomes []session.Outcome `json:"outcomes"`
	PaginationMeta
}

// ErrorResponse is returned for all error cases.
type ErrorResponse struct {
	Error string `json:"error"`
}
