package gate

import (
	"fmt"
	"strings"
	"time"

	"github.com/jmcleod/chiralgate/session"
)

func challengeIntro(s session.Session) string {
	return fmt.Sprintf(
		"Welcome! To join group %d, please count the chiral carbons in the molecule below.\n"+
			"Reply with a whole number within %s. You have %d attempt(s).",
		s.GroupID, formatDuration(s.Timeout), s.MaxAttempts)
}

const challengeHint = "\nA chiral carbon is an sp3 carbon bonded to four different groups."

const privateNotice = " the verification question has been sent to you privately. Please check your messages."

func groupChallenge(s session.Session) Message {
	return NewMessage(
		Mention(s.SubjectID),
		Text(" "+challengeIntro(s)),
		Image(s.Question.Encoded),
		Text(challengeHint),
	)
}

func privateChallenge(s session.Session) Message {
	return NewMessage(
		Text(challengeIntro(s)),
		Image(s.Question.Encoded),
		Text(challengeHint),
	)
}

func remainingReply(feedback string, remaining int) string {
	return fmt.Sprintf("%s\nYou have %d attempt(s) left.", feedback, remaining)
}

func failedReply(feedback string, autoReject bool) string {
	if autoReject {
		return feedback + "\nNo attempts left. Your application has been declined."
	}
	return feedback + "\nNo attempts left. An administrator will review your application."
}

func helpText(cfg Config) string {
	var b strings.Builder
	b.WriteString("Chiral carbon verification\n")
	fmt.Fprintf(&b, "New members must count the chiral carbons in a molecule image within %s.\n", formatDuration(cfg.Timeout))
	fmt.Fprintf(&b, "Attempts per applicant: %d\n", cfg.MaxAttempts)
	if cfg.AutoReject {
		b.WriteString("Failing or timing out removes the applicant automatically.\n")
	} else {
		b.WriteString("Failing or timing out leaves the applicant for an administrator.\n")
	}
	b.WriteString("Admin commands:\n")
	b.WriteString("  /approve <user id>   (手动通过 <user id>)\n")
	b.WriteString("  /reject <user id> [reason]   (手动拒绝 <user id> [reason])")
	return b.String()
}

func formatDuration(d time.Duration) string {
	if d%time.Second == 0 {
		return fmt.Sprintf("%d seconds", int(d/time.Second))
	}
	return d.String()
}
