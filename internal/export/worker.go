package export

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/randalmurphal/gh-backup/internal/config"
	"github.com/randalmurphal/gh-backup/internal/errors"
	"github.com/randalmurphal/gh-backup/internal/retry"
	"github.com/randalmurphal/gh-backup/internal/util"
)

// Cloner mirrors repositories onto local disk.
type Cloner interface {
	MirrorClone(cloneURL, dest string, shallow bool) error
	GC(clonePath string) error
	RemovePartial(dest string)
}

// IssueFetcher pulls raw issue and pull request records for a repo.
type IssueFetcher interface {
	FetchIssues(ctx context.Context, owner, repo string) ([]json.RawMessage, error)
	FetchPulls(ctx context.Context, owner, repo string) ([]json.RawMessage, error)
}

// Worker executes the per-repo pipeline: mirror clone with retry, optional
// gc, optional issue export. One Worker is shared across goroutines; it
// holds no per-job state.
type Worker struct {
	account string
	cloner  Cloner
	fetcher IssueFetcher
	runner  *retry.Runner
	cfg     *config.Config
	log     *slog.Logger
}

// NewWorker builds a worker. fetcher may be nil when issue export is
// disabled.
func NewWorker(account string, cloner Cloner, fetcher IssueFetcher, runner *retry.Runner, cfg *config.Config, log *slog.Logger) *Worker {
	if log == nil {
		log = slog.Default()
	}
	return &Worker{
		account: account,
		cloner:  cloner,
		fetcher: fetcher,
		runner:  runner,
		cfg:     cfg,
		log:     log,
	}
}

// Export runs the full pipeline for one job and returns its outcome. The
// clone stage is authoritative: if it fails the job fails and any partial
// clone directory is removed. GC and issue export degrade the outcome's
// stage status but never fail an otherwise successful job.
func (w *Worker) Export(ctx context.Context, job Job) Outcome {
	start := time.Now()
	out := Outcome{
		Repo:   job.Repo.Name,
		Clone:  StageSkipped,
		GC:     StageSkipped,
		Issues: StageSkipped,
	}
	log := w.log.With("repo", job.Repo.Name)

	attempts, err := w.runner.Do(ctx, "clone "+job.Repo.Name, func(ctx context.Context) error {
		if ctx.Err() != nil {
			return errors.Cancelled("clone interrupted")
		}
		return w.cloner.MirrorClone(job.Repo.CloneURL, job.ClonePath, w.cfg.Shallow)
	})
	out.Attempts = attempts
	if err != nil {
		w.cloner.RemovePartial(job.ClonePath)
		out.Clone = StageFailed
		out.Error = err.Error()
		out.Elapsed = time.Since(start)
		if errors.IsCancelled(err) {
			if attempts == 0 {
				out.Clone = StageSkipped
			}
			out.Status = StatusCancelled
			log.Info("clone cancelled")
		} else {
			out.Status = StatusFailed
			log.Error("clone failed", "attempts", attempts, "error", err)
		}
		return out
	}
	out.Clone = StageOK
	log.Debug("clone complete", "attempts", attempts)

	if w.cfg.GC {
		out.GC = w.runGC(ctx, log, job)
	}

	if !w.cfg.SkipIssues && w.fetcher != nil {
		out.Issues = w.exportIssues(ctx, log, job, &out)
	}

	out.Elapsed = time.Since(start)
	// Cancellation during gc or issue export terminates the job as
	// cancelled, not done. The per-stage tags keep the successful clone
	// visible.
	if ctx.Err() != nil {
		out.Status = StatusCancelled
		log.Info("interrupted after clone")
		return out
	}
	out.Status = StatusDone
	return out
}

func (w *Worker) runGC(ctx context.Context, log *slog.Logger, job Job) StageStatus {
	if ctx.Err() != nil {
		return StageSkipped
	}
	if err := w.cloner.GC(job.ClonePath); err != nil {
		log.Warn("gc failed, keeping unoptimized mirror", "error", err)
		return StageFailed
	}
	return StageOK
}

func (w *Worker) exportIssues(ctx context.Context, log *slog.Logger, job Job, out *Outcome) StageStatus {
	if ctx.Err() != nil {
		return StageSkipped
	}
	issues, err := w.fetcher.FetchIssues(ctx, w.account, job.Repo.Name)
	if err != nil {
		if errors.IsCancelled(err) {
			return StageSkipped
		}
		log.Warn("issue export failed", "error", err)
		return StageFailed
	}
	pulls, err := w.fetcher.FetchPulls(ctx, w.account, job.Repo.Name)
	if err != nil {
		if errors.IsCancelled(err) {
			return StageSkipped
		}
		log.Warn("pull request export failed", "error", err)
		return StageFailed
	}

	if err := os.MkdirAll(job.IssuesDir, 0o755); err != nil {
		log.Warn("issue export failed", "error", err)
		return StageFailed
	}
	if err := writeRecords(filepath.Join(job.IssuesDir, "issues.json"), issues); err != nil {
		log.Warn("issue export failed", "error", err)
		return StageFailed
	}
	if err := writeRecords(filepath.Join(job.IssuesDir, "pulls.json"), pulls); err != nil {
		log.Warn("pull request export failed", "error", err)
		return StageFailed
	}
	out.IssuesCount = len(issues)
	out.PullsCount = len(pulls)
	log.Debug("issues exported", "issues", len(issues), "pulls", len(pulls))
	return StageOK
}

// writeRecords serializes raw API records as a single JSON array, exactly
// as the API returned them. An empty fetch still writes "[]" so consumers
// can tell "no issues" apart from "export failed".
func writeRecords(path string, records []json.RawMessage) error {
	buf := make([]byte, 0, 1024)
	buf = append(buf, '[')
	for i, rec := range records {
		if i > 0 {
			buf = append(buf, ',', '\n')
		}
		buf = append(buf, rec...)
	}
	buf = append(buf, ']', '\n')
	if err := util.AtomicWriteFile(path, buf, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	return nil
}
