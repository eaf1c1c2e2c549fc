package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"devicegateway/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubRunner struct {
	err error
}

func (r stubRunner) InjectInput(ctx context.Context, cmd models.InputCommand) (string, error) {
	return "ok", r.err
}

type memoryRecorder struct {
	mu      sync.Mutex
	entries []models.ActionLog
}

func (m *memoryRecorder) RecordAction(ctx context.Context, entry *models.ActionLog) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, *entry)
	return int64(len(m.entries)), nil
}

func (m *memoryRecorder) Entries() []models.ActionLog {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.ActionLog(nil), m.entries...)
}

func TestActionDispatcher_RecordsOutcomes(t *testing.T) {
	rec := &memoryRecorder{}
	d := NewActionDispatcher(stubRunner{}, rec)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	out, err := d.Execute(ctx, models.TapCommand(10, 20))
	require.NoError(t, err)
	assert.Equal(t, "ok", out)

	require.Eventually(t, func() bool { return len(rec.Entries()) == 1 }, time.Second, 5*time.Millisecond)
	entry := rec.Entries()[0]
	assert.Equal(t, "tap", entry.ActionType)
	assert.Equal(t, "adb", entry.MethodUsed)
	assert.True(t, entry.Success)
	assert.Empty(t, entry.ErrorType)
}

func TestActionDispatcher_ClassifiesErrors(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{ErrNotConnected, "not_connected"},
		{fmt.Errorf("%w: reset", ErrTransport), "transport"},
		{fmt.Errorf("%w: bad keycode", ErrInvalidInput), "invalid"},
		{fmt.Errorf("mystery"), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			rec := &memoryRecorder{}
			d := NewActionDispatcher(stubRunner{err: tt.err}, rec)

			_, err := d.Execute(context.Background(), models.KeyCommand("3"))
			assert.ErrorIs(t, err, tt.err)

			// drain synchronously
			ctx, cancel := context.WithCancel(context.Background())
			cancel()
			d.Run(ctx)

			entries := rec.Entries()
			require.Len(t, entries, 1)
			assert.False(t, entries[0].Success)
			assert.Equal(t, tt.want, entries[0].ErrorType)
		})
	}
}

func TestActionDispatcher_WithoutRecorder(t *testing.T) {
	d := NewActionDispatcher(stubRunner{}, nil)
	_, err := d.Execute(context.Background(), models.ShellCommand("ls"))
	assert.NoError(t, err)
	assert.Len(t, d.logQueue, 0)
}
