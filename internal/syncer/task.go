package syncer

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Task is the long-lived periodic sync loop. Every tick it checks whether a
// sync pass is due and runs one; errors are logged and the loop sleeps a
// cooldown instead of crashing, since the process must survive indefinitely.
type Task struct {
	tracker       *Tracker
	interval      time.Duration
	errorCooldown time.Duration
	logger        *zap.Logger
}

func NewTask(tracker *Tracker, interval, errorCooldown time.Duration, logger *zap.Logger) *Task {
	return &Task{
		tracker:       tracker,
		interval:      interval,
		errorCooldown: errorCooldown,
		logger:        logger,
	}
}

// Run loops until the context is cancelled.
func (t *Task) Run(ctx context.Context) {
	for {
		wait := t.interval
		if err := t.runOnce(ctx); err != nil {
			t.logger.Error("Sync cycle failed", zap.Error(err))
			wait = t.errorCooldown
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}

func (t *Task) runOnce(ctx context.Context) error {
	status, err := t.tracker.VerifySyncStatus(ctx)
	if err != nil {
		return err
	}
	if status.InSync {
		t.logger.Debug("Already in sync",
			zap.String("version", status.LocalVersion))
		return nil
	}

	t.logger.Info("Starting sync pass",
		zap.Int("pending", status.PendingRecords),
		zap.String("local_version", status.LocalVersion),
		zap.String("server_version", status.ServerVersion))

	result := t.tracker.PerformFullSync(ctx)
	if !result.Success {
		return fmt.Errorf("sync pass failed after %d records: %s", result.TotalSynced, result.Error)
	}
	t.logger.Info("Sync pass completed",
		zap.Int("total_synced", result.TotalSynced),
		zap.String("last_version", result.LastVersion))
	return nil
}
