package gate

import (
	"context"
	"log/slog"
	"time"
)

// AuditEvent identifies a verification transition being logged.
type AuditEvent string

const (
	AuditChallengeIssued   AuditEvent = "challenge_issued"
	AuditChallengeFallback AuditEvent = "challenge_group_fallback"
	AuditFetchFailed       AuditEvent = "captcha_fetch_failed"
	AuditAnswerWrong       AuditEvent = "answer_wrong"
	AuditPassed            AuditEvent = "verification_passed"
	AuditFailed            AuditEvent = "verification_failed"
	AuditExpired           AuditEvent = "verification_expired"
	AuditApproved          AuditEvent = "manual_approve"
	AuditRejected          AuditEvent = "manual_reject"
	AuditDeliveryFailure   AuditEvent = "delivery_failure"
)

// auditLogger wraps slog.Logger for structured verification audit logging.
type auditLogger struct {
	logger *slog.Logger
	now    func() time.Time
}

func newAuditLogger(logger *slog.Logger, now func() time.Time) *auditLogger {
	return &auditLogger{
		logger: logger.With("component", "gate"),
		now:    now,
	}
}

func (al *auditLogger) log(ctx context.Context, level slog.Level, event AuditEvent, subject, group int64, attrs ...slog.Attr) {
	base := []slog.Attr{
		slog.String("event", string(event)),
		slog.Int64("subject_id", subject),
		slog.Int64("group_id", group),
		slog.String("timestamp", al.now().UTC().Format(time.RFC3339)),
	}
	al.logger.LogAttrs(ctx, level, "audit", append(base, attrs...)...)
}

func (al *auditLogger) info(ctx context.Context, event AuditEvent, subject, group int64, attrs ...slog.Attr) {
	al.log(ctx, slog.LevelInfo, event, subject, group, attrs...)
}

func (al *auditLogger) warn(ctx context.Context, event AuditEvent, subject, group int64, attrs ...slog.Attr) {
	al.log(ctx, slog.LevelWarn, event, subject, group, attrs...)
}

// deliveryFailure logs a transport action that did not go through.
func (al *auditLogger) deliveryFailure(ctx context.Context, action string, subject, group int64, err error) {
	al.warn(ctx, AuditDeliveryFailure, subject, group,
		slog.String("action", action),
		slog.String("error", err.Error()),
	)
}
