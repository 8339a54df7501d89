package projection

import (
	"fmt"
	"time"

	"orderflow-be/internal/logger"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"
)

// Poller runs fn every interval until the returned stop func is called.
type Poller interface {
	Every(interval time.Duration, fn func()) (stop func(), err error)
}

// CronPoller schedules poll jobs on a shared gocron scheduler. Each view
// owns its own job.
type CronPoller struct {
	scheduler gocron.Scheduler
}

func NewCronPoller(opts ...gocron.SchedulerOption) (*CronPoller, error) {
	s, err := gocron.NewScheduler(opts...)
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}
	s.Start()
	return &CronPoller{scheduler: s}, nil
}

func (p *CronPoller) Every(interval time.Duration, fn func()) (func(), error) {
	job, err := p.scheduler.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(fn),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return nil, fmt.Errorf("schedule poll job: %w", err)
	}

	return func() {
		if err := p.scheduler.RemoveJob(job.ID()); err != nil {
			logger.Named("projection").Warn("failed to remove poll job", zap.Error(err))
		}
	}, nil
}

// Jobs reports how many poll jobs are scheduled.
func (p *CronPoller) Jobs() int {
	return len(p.scheduler.Jobs())
}

func (p *CronPoller) Shutdown() error {
	return p.scheduler.Shutdown()
}
