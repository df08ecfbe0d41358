package refresh

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	appLog "freeslots/internal/log"
)

// Prefetcher is refreshed on every tick; *availability.Service implements it.
type Prefetcher interface {
	Prefetch(ctx context.Context) error
}

// Scheduler runs Prefetch on a cron schedule.
type Scheduler struct {
	cron    *cron.Cron
	target  Prefetcher
	timeout time.Duration
}

// New parses spec (standard 5-field cron, or descriptors like "@every 10m")
// and registers the refresh job. timeout bounds each run; zero means one minute.
func New(spec string, target Prefetcher, loc *time.Location, timeout time.Duration) (*Scheduler, error) {
	if loc == nil {
		loc = time.Local
	}
	if timeout <= 0 {
		timeout = time.Minute
	}
	s := &Scheduler{
		cron:    cron.New(cron.WithLocation(loc), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		target:  target,
		timeout: timeout,
	}
	if _, err := s.cron.AddFunc(spec, s.Run); err != nil {
		return nil, fmt.Errorf("refresh schedule %q: %w", spec, err)
	}
	return s, nil
}

// Run performs a single refresh.
func (s *Scheduler) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	started := time.Now()
	if err := s.target.Prefetch(ctx); err != nil {
		appLog.Error("refresh: some feeds failed", err, "elapsed", time.Since(started).String())
		return
	}
	appLog.Info("refresh: feeds updated", "elapsed", time.Since(started).String())
}

// Start runs the scheduler until ctx is done.
func (s *Scheduler) Start(ctx context.Context) {
	s.cron.Start()
	go func() {
		<-ctx.Done()
		<-s.cron.Stop().Done()
	}()
}

// Next reports when the job fires next.
func (s *Scheduler) Next() time.Time {
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}
