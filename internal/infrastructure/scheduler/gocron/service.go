package scheduler

import (
	"fmt"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/lastword-games/roundd/internal/core/ports"
)

type service struct {
	scheduler *gocron.Scheduler
}

func NewScheduler() ports.SchedulerService {
	svc := gocron.NewScheduler(time.UTC)
	return &service{svc}
}

func (s *service) Start() {
	s.scheduler.StartAsync()
}

func (s *service) Stop() {
	s.scheduler.Stop()
}

// ScheduleEvery runs task every interval. A run still in progress when the
// next one is due makes the scheduler skip it.
func (s *service) ScheduleEvery(interval time.Duration, task func()) error {
	if interval <= 0 {
		return fmt.Errorf("invalid interval %s", interval)
	}
	_, err := s.scheduler.Every(interval).SingletonMode().Do(task)
	return err
}
