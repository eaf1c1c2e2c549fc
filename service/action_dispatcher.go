package service

import (
	"context"
	"errors"
	"time"

	"devicegateway/models"

	"github.com/rs/zerolog/log"
)

// ActionRecorder persists action outcomes
type ActionRecorder interface {
	RecordAction(ctx context.Context, entry *models.ActionLog) (int64, error)
}

// InputRunner executes input commands on the device
type InputRunner interface {
	InjectInput(ctx context.Context, cmd models.InputCommand) (string, error)
}

const actionLogQueueSize = 100

// ActionDispatcher runs input commands synchronously and records their
// outcome asynchronously so a slow store never delays input.
type ActionDispatcher struct {
	session  InputRunner
	recorder ActionRecorder
	logQueue chan *models.ActionLog
}

// NewActionDispatcher creates a dispatcher. recorder may be nil, in which
// case outcomes are only logged.
func NewActionDispatcher(session InputRunner, recorder ActionRecorder) *ActionDispatcher {
	return &ActionDispatcher{
		session:  session,
		recorder: recorder,
		logQueue: make(chan *models.ActionLog, actionLogQueueSize),
	}
}

// Execute runs one command. It is never retried.
func (d *ActionDispatcher) Execute(ctx context.Context, cmd models.InputCommand) (string, error) {
	start := time.Now()
	out, err := d.session.InjectInput(ctx, cmd)
	elapsed := time.Since(start)

	entry := &models.ActionLog{
		ActionType: string(cmd.Kind),
		MethodUsed: "adb",
		Success:    err == nil,
		DurationMs: int(elapsed.Milliseconds()),
		ErrorType:  errorType(err),
		CreatedAt:  start.UTC(),
	}

	if err != nil {
		log.Debug().Err(err).Str("kind", string(cmd.Kind)).Msg("Action failed")
	}

	d.enqueue(entry)
	return out, err
}

func (d *ActionDispatcher) enqueue(entry *models.ActionLog) {
	if d.recorder == nil {
		return
	}
	select {
	case d.logQueue <- entry:
	default:
		log.Warn().Str("kind", entry.ActionType).Msg("⚠️ Action log queue full, dropping record")
	}
}

// Run drains the action log queue until ctx is cancelled
func (d *ActionDispatcher) Run(ctx context.Context) {
	if d.recorder == nil {
		<-ctx.Done()
		return
	}

	for {
		select {
		case <-ctx.Done():
			d.flush()
			return
		case entry := <-d.logQueue:
			d.record(ctx, entry)
		}
	}
}

// flush records whatever is still queued at shutdown
func (d *ActionDispatcher) flush() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for {
		select {
		case entry := <-d.logQueue:
			d.record(ctx, entry)
		default:
			return
		}
	}
}

func (d *ActionDispatcher) record(ctx context.Context, entry *models.ActionLog) {
	if _, err := d.recorder.RecordAction(ctx, entry); err != nil {
		log.Warn().Err(err).Str("kind", entry.ActionType).Msg("Failed to record action")
	}
}

// errorType classifies a failure for the action log
func errorType(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotConnected):
		return "not_connected"
	case errors.Is(err, ErrInvalidInput):
		return "invalid"
	case errors.Is(err, ErrTransport):
		return "transport"
	default:
		return "unknown"
	}
}
