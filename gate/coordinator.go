package gate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/jmcleod/chiralgate/answer"
	"github.com/jmcleod/chiralgate/session"
)

// Coordinator reacts to admission and message events. It is safe for
// concurrent use; all session state lives in the store.
type Coordinator struct {
	cfg       Config
	store     session.Store
	provider  Provider
	transport Transport
	recorder  Recorder
	audit     *auditLogger
	logger    *slog.Logger
	now       func() time.Time
	admins    map[int64]bool
	selfID    int64
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithRecorder sets the sink for terminal outcomes.
func WithRecorder(r Recorder) Option {
	return func(c *Coordinator) { c.recorder = r }
}

// WithLogger sets the structured logger for audit events.
// If not set, a default JSON logger writing to stderr is used.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Coordinator) { c.logger = logger }
}

// WithClock overrides the time source used for outcome timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

// WithSelfID sets the bot's own account so its events are ignored.
func WithSelfID(id int64) Option {
	return func(c *Coordinator) { c.selfID = id }
}

// New creates a coordinator. Zero Timeout and MaxAttempts take defaults.
func New(cfg Config, store session.Store, provider Provider, transport Transport, opts ...Option) *Coordinator {
	c := &Coordinator{
		cfg:       cfg.withDefaults(),
		store:     store,
		provider:  provider,
		transport: transport,
		now:       time.Now,
		admins:    make(map[int64]bool, len(cfg.AdminIDs)),
	}
	for _, id := range cfg.AdminIDs {
		c.admins[id] = true
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.recorder == nil {
		c.recorder = Recorders(nil)
	}
	if c.logger == nil {
		c.logger = slog.New(slog.NewJSONHandler(os.Stderr, nil))
	}
	c.audit = newAuditLogger(c.logger, c.now)
	return c
}

// IsAdmin reports whether userID may run admin commands.
func (c *Coordinator) IsAdmin(userID int64) bool { return c.admins[userID] }

// Pending lists live sessions ordered by creation time.
func (c *Coordinator) Pending() []session.Session { return c.store.Snapshot() }

// HandleAdmission issues a challenge to a new applicant. When no question
// can be fetched the administrators are told and nothing else happens.
func (c *Coordinator) HandleAdmission(ctx context.Context, ev AdmissionEvent) error {
	if c.selfID != 0 && ev.SubjectID == c.selfID {
		return nil
	}

	q, err := c.provider.Fetch(ctx)
	if err != nil {
		c.audit.warn(ctx, AuditFetchFailed, ev.SubjectID, ev.GroupID, slog.String("error", err.Error()))
		c.NotifyAdmins(ctx, fmt.Sprintf(
			"⚠️ Could not fetch a verification question for user %d joining group %d: %v\nPlease verify this applicant manually.",
			ev.SubjectID, ev.GroupID, err))
		return fmt.Errorf("fetch question for %d: %w", ev.SubjectID, err)
	}

	s := c.store.Create(session.Session{
		SubjectID:   ev.SubjectID,
		GroupID:     ev.GroupID,
		Admission:   ev.Admission,
		Question:    q,
		MaxAttempts: c.cfg.MaxAttempts,
		Timeout:     c.cfg.Timeout,
	})
	c.deliverChallenge(ctx, s)
	return nil
}

func (c *Coordinator) deliverChallenge(ctx context.Context, s session.Session) {
	attrs := []slog.Attr{
		slog.String("session_id", s.ID),
		slog.String("question_id", s.Question.ID),
		slog.String("admission", s.Admission.Kind.String()),
	}

	if c.cfg.UsePrivate {
		err := c.transport.SendPrivate(ctx, s.SubjectID, privateChallenge(s))
		if err == nil {
			c.audit.info(ctx, AuditChallengeIssued, s.SubjectID, s.GroupID, append(attrs, slog.String("channel", "private"))...)
			if err := c.transport.SendGroup(ctx, s.GroupID, NewMessage(Mention(s.SubjectID), Text(privateNotice))); err != nil {
				c.audit.deliveryFailure(ctx, "group_notice", s.SubjectID, s.GroupID, err)
			}
			return
		}
		c.audit.deliveryFailure(ctx, "private_challenge", s.SubjectID, s.GroupID, err)
		c.audit.info(ctx, AuditChallengeFallback, s.SubjectID, s.GroupID, attrs...)
	}

	if err := c.transport.SendGroup(ctx, s.GroupID, groupChallenge(s)); err != nil {
		c.audit.deliveryFailure(ctx, "group_challenge", s.SubjectID, s.GroupID, err)
		return
	}
	c.audit.info(ctx, AuditChallengeIssued, s.SubjectID, s.GroupID, append(attrs, slog.String("channel", "group"))...)
}

// HandleMessage routes chat text: admin commands from privileged senders
// first, then help keywords, then answers to a live challenge.
func (c *Coordinator) HandleMessage(ctx context.Context, ev MessageEvent) {
	if c.selfID != 0 && ev.SenderID == c.selfID {
		return
	}
	text := strings.TrimSpace(ev.Text)
	if text == "" {
		return
	}

	if c.IsAdmin(ev.SenderID) {
		if cmd, ok, err := ParseCommand(text); ok {
			c.reply(ctx, ev, c.runCommand(ctx, ev.SenderID, cmd, err))
			return
		}
	}
	if IsHelp(text) {
		c.reply(ctx, ev, helpText(c.cfg))
		return
	}
	c.handleAnswer(ctx, ev, text)
}

func (c *Coordinator) handleAnswer(ctx context.Context, ev MessageEvent, text string) {
	s, ok := c.store.Get(ev.SenderID)
	if !ok {
		return
	}
	if !ev.Private() {
		if ev.GroupID != s.GroupID || !answer.LooksNumeric(text) {
			return
		}
	}

	correct, feedback := answer.Evaluate(s.Question, text)
	if correct {
		claimed, ok := c.store.Claim(ev.SenderID, s.ID)
		if !ok {
			return
		}
		c.pass(ctx, ev, claimed, feedback)
		return
	}

	after, ok := c.store.IncrementAttemptFor(ev.SenderID, s.ID)
	if !ok {
		return
	}
	if after.Remaining() > 0 {
		c.audit.info(ctx, AuditAnswerWrong, after.SubjectID, after.GroupID,
			slog.String("session_id", after.ID),
			slog.Int("attempts", after.AttemptsUsed),
			slog.Int("remaining", after.Remaining()),
		)
		c.reply(ctx, ev, remainingReply(feedback, after.Remaining()))
		return
	}
	c.fail(ctx, ev, after, feedback)
}

func (c *Coordinator) pass(ctx context.Context, ev MessageEvent, s session.Session, feedback string) {
	c.audit.info(ctx, AuditPassed, s.SubjectID, s.GroupID,
		slog.String("session_id", s.ID),
		slog.Int("attempts", s.AttemptsUsed+1),
	)
	c.reply(ctx, ev, feedback+"\nWelcome aboard!")
	if ev.Private() {
		if err := c.transport.SendGroup(ctx, s.GroupID, NewMessage(Mention(s.SubjectID), Text(" passed the chiral carbon verification. Welcome!"))); err != nil {
			c.audit.deliveryFailure(ctx, "group_notice", s.SubjectID, s.GroupID, err)
		}
	}

	o := session.NewOutcome(s, session.OutcomePassed, c.now())
	o.Attempts = s.AttemptsUsed + 1
	if err := c.transport.Admit(ctx, PendingFor(s)); err != nil {
		c.audit.deliveryFailure(ctx, "admit", s.SubjectID, s.GroupID, err)
		o.Reason = "admit failed: " + err.Error()
		c.NotifyAdmins(ctx, fmt.Sprintf("⚠️ User %d passed verification for group %d but could not be admitted: %v", s.SubjectID, s.GroupID, err))
		if err := c.transport.SendPrivate(ctx, s.SubjectID, TextMessage("You passed, but admission did not go through. An administrator has been notified.")); err != nil {
			c.audit.deliveryFailure(ctx, "private_reply", s.SubjectID, s.GroupID, err)
		}
	}
	c.recorder.Record(ctx, o)
}

func (c *Coordinator) fail(ctx context.Context, ev MessageEvent, s session.Session, feedback string) {
	c.audit.info(ctx, AuditFailed, s.SubjectID, s.GroupID,
		slog.String("session_id", s.ID),
		slog.Int("attempts", s.AttemptsUsed),
		slog.Bool("auto_reject", c.cfg.AutoReject),
	)
	c.reply(ctx, ev, failedReply(feedback, c.cfg.AutoReject))

	o := session.NewOutcome(s, session.OutcomeFailed, c.now())
	if c.cfg.AutoReject {
		o.Reason = failedReason
		if err := c.transport.Remove(ctx, PendingFor(s), failedReason); err != nil {
			c.audit.deliveryFailure(ctx, "remove", s.SubjectID, s.GroupID, err)
			c.NotifyAdmins(ctx, fmt.Sprintf("⚠️ User %d failed verification for group %d but could not be removed: %v", s.SubjectID, s.GroupID, err))
		}
	} else {
		c.NotifyAdmins(ctx, fmt.Sprintf("User %d used all %d attempts for group %d. Their application was left for you to review.", s.SubjectID, s.MaxAttempts, s.GroupID))
	}
	c.recorder.Record(ctx, o)
}

// ResolveExpired finalises sessions whose answer window has passed. It is
// the sweeper's resolve callback. A session replaced by a newer live one in
// the same group is recorded without any group action, so the applicant's
// current challenge is left alone.
func (c *Coordinator) ResolveExpired(ctx context.Context, expired []session.Session) {
	for _, s := range expired {
		o := session.NewOutcome(s, session.OutcomeExpired, c.now())
		if cur, ok := c.store.Get(s.SubjectID); ok && cur.ID != s.ID && cur.GroupID == s.GroupID {
			c.audit.info(ctx, AuditExpired, s.SubjectID, s.GroupID,
				slog.String("session_id", s.ID),
				slog.String("superseded_by", cur.ID),
			)
			o.Reason = supersededReason
			c.recorder.Record(ctx, o)
			continue
		}

		c.audit.info(ctx, AuditExpired, s.SubjectID, s.GroupID,
			slog.String("session_id", s.ID),
			slog.Int("attempts", s.AttemptsUsed),
			slog.Bool("auto_reject", c.cfg.AutoReject),
		)
		if c.cfg.AutoReject {
			o.Reason = timeoutReason
			if err := c.transport.SendGroup(ctx, s.GroupID, NewMessage(Mention(s.SubjectID), Text(" did not answer in time. Verification failed."))); err != nil {
				c.audit.deliveryFailure(ctx, "group_notice", s.SubjectID, s.GroupID, err)
			}
			if err := c.transport.Remove(ctx, PendingFor(s), timeoutReason); err != nil {
				c.audit.deliveryFailure(ctx, "remove", s.SubjectID, s.GroupID, err)
				c.NotifyAdmins(ctx, fmt.Sprintf("⚠️ User %d timed out in group %d but could not be removed: %v", s.SubjectID, s.GroupID, err))
			}
		}
		c.recorder.Record(ctx, o)
	}
}

// Approve admits subject regardless of attempts used. It returns a reply
// for the operator; an admit failure is wrapped in ErrDelivery.
func (c *Coordinator) Approve(ctx context.Context, caller, subject int64) (string, error) {
	s, ok := c.store.Claim(subject, "")
	if !ok {
		return fmt.Sprintf("User %d not found: no pending verification.", subject), fmt.Errorf("%w: user %d", ErrNoSession, subject)
	}
	c.audit.info(ctx, AuditApproved, s.SubjectID, s.GroupID,
		slog.String("session_id", s.ID),
		slog.Int64("actor", caller),
	)

	o := session.NewOutcome(s, session.OutcomeApproved, c.now())
	o.Actor = caller

	if err := c.transport.SendGroup(ctx, s.GroupID, NewMessage(Mention(s.SubjectID), Text(" was approved by an administrator."))); err != nil {
		c.audit.deliveryFailure(ctx, "group_notice", s.SubjectID, s.GroupID, err)
	}
	if err := c.transport.Admit(ctx, PendingFor(s)); err != nil {
		c.audit.deliveryFailure(ctx, "admit", s.SubjectID, s.GroupID, err)
		o.Reason = "admit failed: " + err.Error()
		c.recorder.Record(ctx, o)
		return fmt.Sprintf("Approved user %d but admission failed: %v", subject, err), fmt.Errorf("%w: admit %d: %v", ErrDelivery, subject, err)
	}
	c.recorder.Record(ctx, o)
	return fmt.Sprintf("Approved user %d for group %d.", subject, s.GroupID), nil
}

// Reject removes subject with reason, or the default reason when empty.
func (c *Coordinator) Reject(ctx context.Context, caller, subject int64, reason string) (string, error) {
	s, ok := c.store.Claim(subject, "")
	if !ok {
		return fmt.Sprintf("User %d not found: no pending verification.", subject), fmt.Errorf("%w: user %d", ErrNoSession, subject)
	}
	if strings.TrimSpace(reason) == "" {
		reason = defaultRejectReason
	}
	c.audit.info(ctx, AuditRejected, s.SubjectID, s.GroupID,
		slog.String("session_id", s.ID),
		slog.Int64("actor", caller),
		slog.String("reason", reason),
	)

	o := session.NewOutcome(s, session.OutcomeRejected, c.now())
	o.Actor = caller
	o.Reason = reason
	c.recorder.Record(ctx, o)

	if err := c.transport.SendGroup(ctx, s.GroupID, NewMessage(Mention(s.SubjectID), Text(" was rejected by an administrator: "+reason))); err != nil {
		c.audit.deliveryFailure(ctx, "group_notice", s.SubjectID, s.GroupID, err)
	}
	if err := c.transport.Remove(ctx, PendingFor(s), reason); err != nil {
		c.audit.deliveryFailure(ctx, "remove", s.SubjectID, s.GroupID, err)
		return fmt.Sprintf("Rejected user %d but removal failed: %v", subject, err), fmt.Errorf("%w: remove %d: %v", ErrDelivery, subject, err)
	}
	return fmt.Sprintf("Rejected user %d from group %d: %s", subject, s.GroupID, reason), nil
}

func (c *Coordinator) runCommand(ctx context.Context, caller int64, cmd Command, parseErr error) string {
	if parseErr != nil {
		return "⚠️ " + strings.TrimPrefix(parseErr.Error(), ErrInvalidInput.Error()+": ")
	}
	var (
		reply string
		err   error
	)
	switch cmd.Kind {
	case CommandApprove:
		reply, err = c.Approve(ctx, caller, cmd.Subject)
	case CommandReject:
		reply, err = c.Reject(ctx, caller, cmd.Subject, cmd.Reason)
	}
	if err != nil && !errors.Is(err, ErrNoSession) {
		reply = "⚠️ " + reply
	}
	return reply
}

// NotifyAdmins sends text privately to every administrator. Failures are
// logged and otherwise ignored.
func (c *Coordinator) NotifyAdmins(ctx context.Context, text string) {
	if len(c.cfg.AdminIDs) == 0 {
		c.logger.WarnContext(ctx, "no administrators configured for notification", "component", "gate", "text", text)
		return
	}
	for _, id := range c.cfg.AdminIDs {
		if err := c.transport.SendPrivate(ctx, id, TextMessage(text)); err != nil {
			c.audit.deliveryFailure(ctx, "admin_notify", id, 0, err)
		}
	}
}

func (c *Coordinator) reply(ctx context.Context, ev MessageEvent, text string) {
	var err error
	if ev.Private() {
		err = c.transport.SendPrivate(ctx, ev.SenderID, TextMessage(text))
	} else {
		err = c.transport.SendGroup(ctx, ev.GroupID, NewMessage(Mention(ev.SenderID), Text(" "+text)))
	}
	if err != nil {
		c.audit.deliveryFailure(ctx, "reply", ev.SenderID, ev.GroupID, err)
	}
}
