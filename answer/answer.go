// Package answer scores an applicant's reply against a captcha question.
package answer

import (
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/jmcleod/chiralgate/captcha"
)

// normalize trims whitespace and folds compatibility forms, so full-width
// digits typed by CJK input methods parse like ASCII ones.
func normalize(raw string) string {
	return strings.TrimSpace(norm.NFKC.String(strings.TrimSpace(raw)))
}

// Parse reads raw as a base-10 integer after normalisation.
func Parse(raw string) (int, bool) {
	n, err := strconv.Atoi(normalize(raw))
	if err != nil {
		return 0, false
	}
	return n, true
}

// LooksNumeric reports whether raw consists only of decimal digits once
// normalised. Group chat uses it to tell answers apart from conversation.
func LooksNumeric(raw string) bool {
	s := normalize(raw)
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// Evaluate scores raw against q. Text that is not an integer is a wrong
// answer. The message is sent to the applicant verbatim.
func Evaluate(q captcha.Question, raw string) (bool, string) {
	n, ok := Parse(raw)
	if !ok {
		return false, fmt.Sprintf(
			"❌ Please answer with a whole number, e.g. 2.\nYour answer: %q, correct answer: %d",
			normalize(raw), q.CorrectCount)
	}
	if n == q.CorrectCount {
		subject := "This molecule"
		if q.Label != "" {
			subject = "【" + q.Label + "】"
		}
		return true, fmt.Sprintf("✅ Correct!\n%s has %d chiral carbon(s).", subject, q.CorrectCount)
	}
	return false, fmt.Sprintf("❌ Wrong answer.\nYour answer: %d, correct answer: %d", n, q.CorrectCount)
}
