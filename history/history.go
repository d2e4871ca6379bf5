// Package history persists terminal verification outcomes.
package history

import (
	"context"
	"log/slog"

	"github.com/jmcleod/chiralgate/session"
)

// Store is an append-only outcome log.
type Store interface {
	// Append records o.
	Append(o session.Outcome) error
	// List returns up to limit outcomes newest first, skipping offset, and
	// the total number stored.
	List(limit, offset int) ([]session.Outcome, int, error)
	// ForSubject returns every outcome for subject, newest first.
	ForSubject(subjectID int64) ([]session.Outcome, error)
	Close() error
}

// Recorder writes outcomes to a Store. Write failures are logged; they never
// reach the verification path.
type Recorder struct {
	store  Store
	logger *slog.Logger
}

// NewRecorder returns a Recorder for store. A nil logger discards output.
func NewRecorder(store Store, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Recorder{store: store, logger: logger.With("component", "history")}
}

// Record appends o to the store.
func (r *Recorder) Record(ctx context.Context, o session.Outcome) {
	if err := r.store.Append(o); err != nil {
		r.logger.ErrorContext(ctx, "failed to persist outcome",
			"outcome_id", o.ID,
			"subject_id", o.SubjectID,
			"kind", string(o.Kind),
			"error", err,
		)
	}
}
