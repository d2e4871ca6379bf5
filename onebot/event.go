package onebot

import (
	"encoding/json"
	"fmt"

	"github.com/jmcleod/chiralgate/gate"
	"github.com/jmcleod/chiralgate/session"
)

type rawEvent struct {
	PostType    string          `json:"post_type"`
	NoticeType  string          `json:"notice_type"`
	RequestType string          `json:"request_type"`
	MessageType string          `json:"message_type"`
	SubType     string          `json:"sub_type"`
	SelfID      int64           `json:"self_id"`
	UserID      int64           `json:"user_id"`
	GroupID     int64           `json:"group_id"`
	Flag        string          `json:"flag"`
	Message     json.RawMessage `json:"message"`
	RawMessage  string          `json:"raw_message"`
}

// Event is a decoded report. At most one of Admission and Message is set;
// both are nil for reports the gate does not care about.
type Event struct {
	SelfID    int64
	Admission *gate.AdmissionEvent
	Message   *gate.MessageEvent
}

// Subject is the user the event concerns, used as the dispatch key.
func (e Event) Subject() int64 {
	switch {
	case e.Admission != nil:
		return e.Admission.SubjectID
	case e.Message != nil:
		return e.Message.SenderID
	}
	return 0
}

// Group is the group the event happened in, zero for private messages.
func (e Event) Group() int64 {
	switch {
	case e.Admission != nil:
		return e.Admission.GroupID
	case e.Message != nil:
		return e.Message.GroupID
	}
	return 0
}

// DecodeEvent parses an event report body.
func DecodeEvent(body []byte) (Event, error) {
	var raw rawEvent
	if err := json.Unmarshal(body, &raw); err != nil {
		return Event{}, fmt.Errorf("decode event: %w", err)
	}
	ev := Event{SelfID: raw.SelfID}

	switch raw.PostType {
	case "notice":
		if raw.NoticeType == "group_increase" && raw.UserID != 0 && raw.GroupID != 0 {
			ev.Admission = &gate.AdmissionEvent{
				SubjectID: raw.UserID,
				GroupID:   raw.GroupID,
				Admission: session.Notice(),
			}
		}
	case "request":
		if raw.RequestType == "group" && raw.SubType == "add" && raw.Flag != "" {
			ev.Admission = &gate.AdmissionEvent{
				SubjectID: raw.UserID,
				GroupID:   raw.GroupID,
				Admission: session.Request(raw.Flag),
			}
		}
	case "message":
		msg := &gate.MessageEvent{
			SenderID: raw.UserID,
			Text:     plainText(raw.Message, raw.RawMessage),
		}
		switch raw.MessageType {
		case "private":
			ev.Message = msg
		case "group":
			if raw.GroupID != 0 {
				msg.GroupID = raw.GroupID
				ev.Message = msg
			}
		}
	}
	return ev, nil
}
