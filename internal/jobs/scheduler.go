package jobs

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

type enqueuer interface {
	Enqueue(ctx context.Context, task Task) error
}

// Scheduler periodically enqueues the orphan sweep.
type Scheduler struct {
	cron     *cron.Cron
	queue    enqueuer
	schedule string
	log      zerolog.Logger
}

func NewScheduler(queue enqueuer, schedule string, log zerolog.Logger) *Scheduler {
	return &Scheduler{
		cron:     cron.New(cron.WithSeconds()),
		queue:    queue,
		schedule: schedule,
		log:      log,
	}
}

func (s *Scheduler) Start() error {
	if s.queue == nil || s.schedule == "" {
		return nil
	}

	if _, err := s.cron.AddFunc(s.schedule, s.enqueueSweep); err != nil {
		return err
	}

	s.cron.Start()
	s.log.Info().Str("schedule", s.schedule).Msg("sweep scheduler started")
	return nil
}

// Stop waits for a running job to finish, at most five seconds.
func (s *Scheduler) Stop() {
	done := s.cron.Stop().Done()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		s.log.Warn().Msg("scheduler stop timed out")
	}
}

func (s *Scheduler) enqueueSweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.queue.Enqueue(ctx, Task{Type: TaskSweep}); err != nil {
		s.log.Error().Err(err).Msg("enqueue sweep failed")
	}
}
