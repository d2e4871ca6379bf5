package onebot

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"github.com/jmcleod/chiralgate/captcha"
	"github.com/jmcleod/chiralgate/gate"
)

type segment struct {
	Type string            `json:"type"`
	Data map[string]string `json:"data"`
}

func encodeMessage(m gate.Message) []segment {
	out := make([]segment, 0, len(m.Segments))
	for _, s := range m.Segments {
		switch s.Kind {
		case gate.SegmentText:
			if s.Text == "" {
				continue
			}
			out = append(out, segment{Type: "text", Data: map[string]string{"text": s.Text}})
		case gate.SegmentImage:
			if s.Image == "" {
				continue
			}
			out = append(out, segment{Type: "image", Data: map[string]string{"file": "base64://" + captcha.StripDataURI(s.Image)}})
		case gate.SegmentMention:
			out = append(out, segment{Type: "at", Data: map[string]string{"qq": strconv.FormatInt(s.UserID, 10)}})
		}
	}
	return out
}

var cqCode = regexp.MustCompile(`\[CQ:[^\]]*\]`)

var cqUnescape = strings.NewReplacer("&#91;", "[", "&#93;", "]", "&#44;", ",", "&amp;", "&")

// plainText extracts the text of a message field, which implementations
// send either as a segment array or as a CQ-coded string.
func plainText(raw json.RawMessage, fallback string) string {
	if len(raw) > 0 {
		var segs []struct {
			Type string `json:"type"`
			Data struct {
				Text string `json:"text"`
			} `json:"data"`
		}
		if err := json.Unmarshal(raw, &segs); err == nil {
			var b strings.Builder
			for _, s := range segs {
				if s.Type == "text" {
					b.WriteString(s.Data.Text)
				}
			}
			return strings.TrimSpace(b.String())
		}
		var str string
		if err := json.Unmarshal(raw, &str); err == nil {
			fallback = str
		}
	}
	return strings.TrimSpace(cqUnescape.Replace(cqCode.ReplaceAllString(fallback, "")))
}
