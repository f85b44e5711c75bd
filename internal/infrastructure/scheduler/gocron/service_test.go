package scheduler_test

import (
	"sync/atomic"
	"testing"
	"time"

	scheduler "github.com/lastword-games/roundd/internal/infrastructure/scheduler/gocron"
	"github.com/stretchr/testify/require"
)

func TestScheduler(t *testing.T) {
	svc := scheduler.NewScheduler()

	var runs atomic.Int32
	err := svc.ScheduleEvery(50*time.Millisecond, func() {
		runs.Add(1)
	})
	require.NoError(t, err)

	svc.Start()
	require.Eventually(t, func() bool {
		return runs.Load() >= 3
	}, 2*time.Second, 10*time.Millisecond)
	svc.Stop()

	err = svc.ScheduleEvery(0, func() {})
	require.Error(t, err)
}
