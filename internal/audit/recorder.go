package audit

import (
	"context"
	"time"
)

// writeTimeout bounds a single audit write.
const writeTimeout = 2 * time.Second

// Logger is the logging interface used by the recorder.
type Logger interface {
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Warn(string, ...any) {}

// Recorder writes audit entries on behalf of API handlers.
type Recorder struct {
	repo   Repository
	logger Logger
	now    func() time.Time
}

// NewRecorder creates a recorder over repo.
func NewRecorder(repo Repository) *Recorder {
	return &Recorder{repo: repo, logger: noopLogger{}, now: time.Now}
}

// SetLogger sets the logger used for failed writes.
func (r *Recorder) SetLogger(logger Logger) {
	if logger != nil {
		r.logger = logger
	}
}

// Record stores one entry. The write is detached from ctx cancellation so a
// client hanging up does not lose the trail; failures are logged.
func (r *Recorder) Record(ctx context.Context, userID, action, entityType, entityID string, details map[string]any) {
	if r == nil {
		return
	}
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), writeTimeout)
	defer cancel()

	entry := &Entry{
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		UserID:     userID,
		Source:     SourceAPI,
		Details:    details,
		CreatedAt:  r.now(),
	}
	if err := r.repo.Create(wctx, entry); err != nil {
		r.logger.Warn("audit entry not recorded",
			"action", action, "entity_type", entityType, "entity_id", entityID, "error", err)
	}
}

// List returns a page of entries.
func (r *Recorder) List(ctx context.Context, filter Filter) (*ListResult, error) {
	return r.repo.List(ctx, filter)
}
