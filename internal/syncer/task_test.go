package syncer_test

import (
	"context"
	"testing"
	"time"

	"zerosync/internal/syncer"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTask_DrainsPendingOnSchedule(t *testing.T) {
	repo := newFakeRecordsRepo()
	seedPending(repo, 3)
	api := newFakeSubmitter("2.0")

	tracker := syncer.NewTracker(repo, api, 10, zapNop())
	task := syncer.NewTask(tracker, 10*time.Millisecond, 10*time.Millisecond, zapNop())

	ctx, cancel := context.WithCancel(context.Background())
	go task.Run(ctx)

	require.Eventually(t, func() bool {
		return repo.pendingCount() == 0
	}, 2*time.Second, 10*time.Millisecond)
	cancel()
}

func TestTask_RetriesAfterFailure(t *testing.T) {
	repo := newFakeRecordsRepo()
	seedPending(repo, 2)
	api := newFakeSubmitter("2.0")
	api.failNext = 2

	tracker := syncer.NewTracker(repo, api, 10, zapNop())
	task := syncer.NewTask(tracker, 5*time.Millisecond, 5*time.Millisecond, zapNop())

	ctx, cancel := context.WithCancel(context.Background())
	go task.Run(ctx)

	// The first passes fail and the records stay pending; a later pass after
	// the cooldown drains them.
	require.Eventually(t, func() bool {
		return repo.pendingCount() == 0
	}, 2*time.Second, 10*time.Millisecond)
	cancel()

	assert.GreaterOrEqual(t, api.submissionCount(), 3)
}
