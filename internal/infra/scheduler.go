package infra

import (
	"context"
	"log"
	"time"

	"github.com/robfig/cron/v3"
)

// DefaultRefreshSpec refreshes exchange filters at the top of every hour
const DefaultRefreshSpec = "0 0 * * * *"

// StepSizeRefresher reloads cached LOT_SIZE filters
type StepSizeRefresher interface {
	Refresh(ctx context.Context) int
}

// Scheduler manages scheduled tasks
type Scheduler struct {
	cron    *cron.Cron
	steps   StepSizeRefresher
	spec    string
	timeout time.Duration
}

// NewScheduler creates a new scheduler.
// spec defaults to DefaultRefreshSpec if empty.
func NewScheduler(steps StepSizeRefresher, spec string) *Scheduler {
	if spec == "" {
		spec = DefaultRefreshSpec
	}
	return &Scheduler{
		cron:    cron.New(cron.WithSeconds()),
		steps:   steps,
		spec:    spec,
		timeout: time.Minute,
	}
}

// Start registers the refresh job and starts the cron loop
func (s *Scheduler) Start() error {
	log.Printf("Starting scheduler... [Step size refresh: %s]", s.spec)

	if _, err := s.cron.AddFunc(s.spec, s.refreshStepSizes); err != nil {
		return err
	}

	s.cron.Start()
	log.Println("[OK] Scheduler started successfully")
	return nil
}

// Stop stops the scheduler and waits for a running job to finish
func (s *Scheduler) Stop() {
	log.Println("Stopping scheduler...")
	<-s.cron.Stop().Done()
	log.Println("[OK] Scheduler stopped")
}

func (s *Scheduler) refreshStepSizes() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	n := s.steps.Refresh(ctx)
	log.Printf("[CRON] Refreshed %d step sizes", n)
}
