// Package scheduler runs the periodic jobs: the daily market report and
// quote ingestion.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/geraldosnetto/agro-sub002/internal/aggregate"
	"github.com/geraldosnetto/agro-sub002/internal/report"
	"github.com/geraldosnetto/agro-sub002/pkg/models"
)

// ErrUnknownJob is returned by Trigger for names that were never added.
var ErrUnknownJob = errors.New("scheduler: unknown job")

// Job is a named unit of periodic work.
type Job struct {
	Name    string
	Spec    string // cron expression or descriptor such as "@every 30m"
	Timeout time.Duration
	Run     func(ctx context.Context) error
}

// EntryInfo describes a scheduled job for status output.
type EntryInfo struct {
	Name string    `json:"name"`
	Spec string    `json:"spec"`
	Next time.Time `json:"next"`
	Prev time.Time `json:"prev,omitempty"`
}

// Scheduler wraps a cron runner whose jobs share one cancellable context.
type Scheduler struct {
	cron   *cron.Cron
	logger zerolog.Logger
	ctx    context.Context
	cancel context.CancelFunc

	mu   sync.Mutex
	jobs map[string]registered
}

type registered struct {
	job Job
	id  cron.EntryID
}

// New creates a scheduler evaluating specs in loc. Overlapping runs of the
// same job are skipped and panics are recovered.
func New(loc *time.Location, logger zerolog.Logger) *Scheduler {
	cl := cronLogger{logger}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
		jobs:   make(map[string]registered),
	}
}

// Add schedules a job. The spec is validated here.
func (s *Scheduler) Add(job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.jobs[job.Name]; dup {
		return fmt.Errorf("scheduler: duplicate job %q", job.Name)
	}
	id, err := s.cron.AddFunc(job.Spec, func() { s.run(job) })
	if err != nil {
		return fmt.Errorf("scheduler: job %q: invalid spec %q: %w", job.Name, job.Spec, err)
	}
	s.jobs[job.Name] = registered{job: job, id: id}
	return nil
}

func (s *Scheduler) run(job Job) {
	ctx := s.ctx
	if job.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, job.Timeout)
		defer cancel()
	}
	start := time.Now()
	err := job.Run(ctx)
	ev := s.logger.Info()
	if err != nil {
		ev = s.logger.Error().Err(err)
	}
	ev.Str("job", job.Name).Dur("elapsed", time.Since(start)).Msg("job finished")
}

// Trigger runs a job immediately, outside its schedule, and returns its error.
func (s *Scheduler) Trigger(ctx context.Context, name string) error {
	s.mu.Lock()
	r, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownJob, name)
	}
	if r.job.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.job.Timeout)
		defer cancel()
	}
	return r.job.Run(ctx)
}

// Entries lists scheduled jobs sorted by name.
func (s *Scheduler) Entries() []EntryInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]EntryInfo, 0, len(s.jobs))
	for name, r := range s.jobs {
		e := s.cron.Entry(r.id)
		out = append(out, EntryInfo{Name: name, Spec: r.job.Spec, Next: e.Next, Prev: e.Prev})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Start begins running jobs in the background.
func (s *Scheduler) Start() { s.cron.Start() }

// Stop prevents new runs and waits for running jobs. If ctx expires first,
// running jobs are cancelled and ctx's error is returned.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		s.cancel()
		return nil
	case <-ctx.Done():
		s.cancel()
		return ctx.Err()
	}
}

// ── Jobs ──

// ReportRunner generates reports.
type ReportRunner interface {
	Get(ctx context.Context, req report.Request) (models.AggregatedReport, error)
}

// Ingester stores live quotes.
type Ingester interface {
	IngestQuotes(ctx context.Context) (aggregate.IngestStats, error)
}

// Job names.
const (
	JobDailyReport = "daily-report"
	JobIngest      = "quote-ingest"
)

// DailyReportJob regenerates the daily report as a system run.
func DailyReportJob(spec string, gen ReportRunner, timeout time.Duration, logger zerolog.Logger) Job {
	return Job{
		Name:    JobDailyReport,
		Spec:    spec,
		Timeout: timeout,
		Run: func(ctx context.Context) error {
			r, err := gen.Get(ctx, report.Request{Kind: models.ReportDaily, Force: true})
			if err != nil {
				return err
			}
			logger.Info().Str("id", r.ID).Int("tokens", r.TokensUsed).Msg("daily report ready")
			return nil
		},
	}
}

// IngestJob scrapes and stores live quotes.
func IngestJob(spec string, ing Ingester, timeout time.Duration, logger zerolog.Logger) Job {
	return Job{
		Name:    JobIngest,
		Spec:    spec,
		Timeout: timeout,
		Run: func(ctx context.Context) error {
			stats, err := ing.IngestQuotes(ctx)
			if err != nil {
				return err
			}
			logger.Info().Int("commodities", stats.Commodities).Int("failed", stats.Failed).
				Int("inserted", stats.Inserted).Int("skipped", stats.Skipped).Msg("quotes ingested")
			return nil
		},
	}
}

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct{ l zerolog.Logger }

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.l.Debug().Fields(keysAndValues).Msg("cron: " + msg)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.l.Error().Err(err).Fields(keysAndValues).Msg("cron: " + msg)
}
