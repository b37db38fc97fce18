package export

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/randalmurphal/gh-backup/internal/config"
)

// Coordinator fans jobs out to a bounded worker pool and collects their
// outcomes into a Summary. Jobs are dispatched in listing order; once the
// context is cancelled, undispatched jobs are recorded as skipped without
// ever starting.
type Coordinator struct {
	worker  *Worker
	workers int
	log     *slog.Logger

	// OnOutcome, when set, is invoked after each outcome is recorded. It
	// may be called from multiple goroutines at once.
	OnOutcome func(out Outcome, finished, total int)
}

// NewCoordinator builds a coordinator running at most workers jobs at once.
func NewCoordinator(worker *Worker, workers int, log *slog.Logger) *Coordinator {
	if workers < config.MinWorkers {
		workers = config.MinWorkers
	}
	if log == nil {
		log = slog.Default()
	}
	return &Coordinator{worker: worker, workers: workers, log: log}
}

// Run executes all jobs and returns the finished summary. It always
// returns a summary with exactly one outcome per job, whatever mix of
// completion, failure, and cancellation the run saw.
func (c *Coordinator) Run(ctx context.Context, account string, accountType config.AccountType, jobs []Job) *Summary {
	summary := NewSummary(account, accountType, len(jobs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.workers)
	for _, job := range jobs {
		if ctx.Err() != nil {
			c.record(summary, skippedOutcome(job))
			continue
		}
		g.Go(func() error {
			// Re-check after waiting for a worker slot: cancellation may
			// have arrived while this job was queued.
			if ctx.Err() != nil {
				c.record(summary, skippedOutcome(job))
				return nil
			}
			c.record(summary, c.worker.Export(gctx, job))
			return nil
		})
	}
	g.Wait()

	summary.Finish()
	done, failed, cancelled, skipped := summary.Counts()
	c.log.Info("run complete",
		"status", summary.Overall(),
		"done", done,
		"failed", failed,
		"cancelled", cancelled,
		"skipped", skipped,
	)
	return summary
}

func (c *Coordinator) record(s *Summary, out Outcome) {
	s.Add(out)
	if c.OnOutcome != nil {
		done, failed, cancelled, skipped := s.Counts()
		c.OnOutcome(out, done+failed+cancelled+skipped, s.Total)
	}
}

func skippedOutcome(job Job) Outcome {
	return Outcome{
		Repo:   job.Repo.Name,
		Status: StatusSkipped,
		Clone:  StageSkipped,
		GC:     StageSkipped,
		Issues: StageSkipped,
	}
}
