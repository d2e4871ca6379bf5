package gate

import (
	"context"
	"strings"

	"github.com/jmcleod/chiralgate/captcha"
	"github.com/jmcleod/chiralgate/session"
)

// SegmentKind identifies a message segment.
type SegmentKind int

const (
	SegmentText SegmentKind = iota
	SegmentImage
	SegmentMention
)

// Segment is one piece of an outbound chat message.
type Segment struct {
	Kind SegmentKind
	Text string
	// Image is a base64 payload or data URI.
	Image  string
	UserID int64
}

// Text returns a text segment.
func Text(s string) Segment { return Segment{Kind: SegmentText, Text: s} }

// Image returns an image segment for a base64 payload.
func Image(encoded string) Segment { return Segment{Kind: SegmentImage, Image: encoded} }

// Mention returns an @mention segment.
func Mention(userID int64) Segment { return Segment{Kind: SegmentMention, UserID: userID} }

// Message is an outbound chat message.
type Message struct {
	Segments []Segment
}

// NewMessage builds a message from segments.
func NewMessage(segs ...Segment) Message { return Message{Segments: segs} }

// TextMessage is a message holding a single text segment.
func TextMessage(s string) Message { return NewMessage(Text(s)) }

// PlainText concatenates the text segments.
func (m Message) PlainText() string {
	var b strings.Builder
	for _, seg := range m.Segments {
		if seg.Kind == SegmentText {
			b.WriteString(seg.Text)
		}
	}
	return b.String()
}

// HasImage reports whether any segment carries an image.
func (m Message) HasImage() bool {
	for _, seg := range m.Segments {
		if seg.Kind == SegmentImage {
			return true
		}
	}
	return false
}

// Pending identifies the admission a membership action applies to.
type Pending struct {
	SubjectID int64
	GroupID   int64
	Admission session.Admission
}

// PendingFor returns the pending admission carried by s.
func PendingFor(s session.Session) Pending {
	return Pending{SubjectID: s.SubjectID, GroupID: s.GroupID, Admission: s.Admission}
}

// Messenger delivers chat messages.
type Messenger interface {
	SendPrivate(ctx context.Context, userID int64, msg Message) error
	SendGroup(ctx context.Context, groupID int64, msg Message) error
}

// Gatekeeper performs membership actions. Implementations decide how each
// admission kind is admitted or removed.
type Gatekeeper interface {
	Admit(ctx context.Context, p Pending) error
	Remove(ctx context.Context, p Pending, reason string) error
}

// Transport is the full chat capability the coordinator needs.
type Transport interface {
	Messenger
	Gatekeeper
}

// Provider issues captcha questions.
type Provider interface {
	Fetch(ctx context.Context) (captcha.Question, error)
}

// Recorder observes terminal outcomes.
type Recorder interface {
	Record(ctx context.Context, o session.Outcome)
}

// RecorderFunc adapts a function to Recorder.
type RecorderFunc func(ctx context.Context, o session.Outcome)

func (f RecorderFunc) Record(ctx context.Context, o session.Outcome) { f(ctx, o) }

// Recorders fans out to every non-nil recorder in order.
type Recorders []Recorder

func (rs Recorders) Record(ctx context.Context, o session.Outcome) {
	for _, r := range rs {
		if r != nil {
			r.Record(ctx, o)
		}
	}
}
