// Package session tracks in-flight verification sessions, one per applicant.
package session

import (
	"time"

	"github.com/jmcleod/chiralgate/captcha"
)

// AdmissionKind says how an applicant reached the group, which decides how
// they are later admitted or removed.
type AdmissionKind int

const (
	// NoticeJoin: the applicant is already a member (join notice). Admission
	// is a no-op and removal is a kick.
	NoticeJoin AdmissionKind = iota
	// RequestJoin: the applicant filed a join request that is still pending
	// and is resolved through its action token.
	RequestJoin
)

func (k AdmissionKind) String() string {
	switch k {
	case NoticeJoin:
		return "notice"
	case RequestJoin:
		return "request"
	default:
		return "unknown"
	}
}

// Admission is the pending group action attached to a session.
type Admission struct {
	Kind AdmissionKind `json:"kind"`
	// Token is the transport handle for a pending join request; empty for
	// NoticeJoin.
	Token string `json:"token,omitempty"`
}

// Notice returns the admission for an applicant who already joined.
func Notice() Admission { return Admission{Kind: NoticeJoin} }

// Request returns the admission for a pending join request.
func Request(token string) Admission { return Admission{Kind: RequestJoin, Token: token} }

// Session is one applicant's in-progress verification.
type Session struct {
	// ID distinguishes successive sessions for the same subject.
	ID           string
	SubjectID    int64
	GroupID      int64
	Admission    Admission
	Question     captcha.Question
	AttemptsUsed int
	MaxAttempts  int
	CreatedAt    time.Time
	Timeout      time.Duration
}

// Expired reports whether more than Timeout has elapsed since CreatedAt.
func (s Session) Expired(now time.Time) bool {
	return now.Sub(s.CreatedAt) > s.Timeout
}

// ExpiresAt is the last instant at which the session is still live.
func (s Session) ExpiresAt() time.Time {
	return s.CreatedAt.Add(s.Timeout)
}

// Remaining is the number of answers the applicant may still give.
func (s Session) Remaining() int {
	if r := s.MaxAttempts - s.AttemptsUsed; r > 0 {
		return r
	}
	return 0
}
