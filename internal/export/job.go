// Package export orchestrates the per-repository backup pipeline: a bounded
// pool of workers that clone, compact, and export issues, feeding a shared
// run summary.
package export

import (
	"path/filepath"
	"time"

	"github.com/randalmurphal/gh-backup/internal/github"
)

// Job is one unit of work: one repository. Jobs are immutable after
// creation and consumed exactly once by a worker.
type Job struct {
	Repo      github.Repo
	ClonePath string
	IssuesDir string
}

// Status is the terminal state of a processed Job.
type Status string

const (
	StatusDone      Status = "done"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
	// StatusSkipped marks jobs never dispatched because the run was
	// cancelled first.
	StatusSkipped Status = "skipped"
)

// StageStatus records the result of one pipeline stage within a job.
type StageStatus string

const (
	StageOK      StageStatus = "ok"
	StageFailed  StageStatus = "failed"
	StageSkipped StageStatus = "skipped"
)

// Outcome is the result of processing one Job. It is produced by a worker
// and owned thereafter by the coordinator; never mutated after creation.
// Per-stage results preserve partial success (clone ok, issues failed)
// instead of collapsing to a single boolean.
type Outcome struct {
	Repo    string        `json:"repo"`
	Status  Status        `json:"status"`
	Clone   StageStatus   `json:"clone"`
	GC      StageStatus   `json:"gc"`
	Issues  StageStatus   `json:"issues"`
	Error   string        `json:"error,omitempty"`
	Elapsed time.Duration `json:"elapsed_ns"`

	Attempts    int `json:"clone_attempts,omitempty"`
	IssuesCount int `json:"issues_exported"`
	PullsCount  int `json:"pulls_exported"`
}

// BuildJobs maps a filtered repository listing onto jobs with disjoint
// output subpaths under the export directory.
func BuildJobs(repos []github.Repo, exportDir string) []Job {
	jobs := make([]Job, 0, len(repos))
	for _, r := range repos {
		jobs = append(jobs, Job{
			Repo:      r,
			ClonePath: filepath.Join(exportDir, "repos", r.Name+".git"),
			IssuesDir: filepath.Join(exportDir, "issues", r.Name),
		})
	}
	return jobs
}
