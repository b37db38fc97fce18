package export

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/randalmurphal/gh-backup/internal/config"
)

// OverallStatus is the run-level outcome, derived purely from the multiset
// of per-job outcomes.
type OverallStatus string

const (
	// OverallSuccess: every job done (an empty job set also succeeds).
	OverallSuccess OverallStatus = "success"
	// OverallPartial: at least one job done and at least one not.
	OverallPartial OverallStatus = "partial_failure"
	// OverallFailure: no job completed.
	OverallFailure OverallStatus = "failure"
)

// ExitCode maps an overall status to the process exit code. Cancellation
// before any completion is handled separately by the CLI (exit 130).
func (s OverallStatus) ExitCode() int {
	switch s {
	case OverallSuccess:
		return 0
	case OverallPartial:
		return 2
	default:
		return 1
	}
}

// Summary accumulates job outcomes for one run. It is safe for concurrent
// use: workers append outcomes as they finish, and progress reporting may
// read counts while the run is live.
type Summary struct {
	RunID       string             `json:"run_id"`
	Account     string             `json:"account"`
	AccountType config.AccountType `json:"account_type"`
	StartedAt   time.Time          `json:"started_at"`
	FinishedAt  time.Time          `json:"finished_at,omitzero"`
	Total       int                `json:"total_repos"`

	mu       sync.Mutex
	Outcomes []Outcome `json:"outcomes"`
}

// NewSummary creates a Summary for a run over total jobs.
func NewSummary(account string, accountType config.AccountType, total int) *Summary {
	return &Summary{
		RunID:       uuid.NewString(),
		Account:     account,
		AccountType: accountType,
		StartedAt:   time.Now().UTC(),
		Total:       total,
	}
}

// Add appends one outcome. One call per job, from the worker that ran it.
func (s *Summary) Add(o Outcome) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Outcomes = append(s.Outcomes, o)
}

// Finish stamps the completion time.
func (s *Summary) Finish() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.FinishedAt = time.Now().UTC()
}

// Counts returns the outcome tally. The four counts always sum to the
// number of recorded outcomes.
func (s *Summary) Counts() (done, failed, cancelled, skipped int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range s.Outcomes {
		switch o.Status {
		case StatusDone:
			done++
		case StatusFailed:
			failed++
		case StatusCancelled:
			cancelled++
		case StatusSkipped:
			skipped++
		}
	}
	return done, failed, cancelled, skipped
}

// IssueTotals returns the summed issue and PR export counts.
func (s *Summary) IssueTotals() (issues, pulls int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range s.Outcomes {
		issues += o.IssuesCount
		pulls += o.PullsCount
	}
	return issues, pulls
}

// Failed returns the outcomes of jobs that did not complete, for the
// per-repository summary lines at run end.
func (s *Summary) Failed() []Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	var failed []Outcome
	for _, o := range s.Outcomes {
		if o.Status != StatusDone {
			failed = append(failed, o)
		}
	}
	return failed
}

// Overall derives the run status from the outcome multiset.
func (s *Summary) Overall() OverallStatus {
	done, failed, cancelled, skipped := s.Counts()
	notDone := failed + cancelled + skipped

	switch {
	case notDone == 0:
		return OverallSuccess
	case done > 0:
		return OverallPartial
	default:
		return OverallFailure
	}
}

// SummaryData is the serializable view of a Summary.
type SummaryData struct {
	RunID       string             `json:"run_id"`
	Account     string             `json:"account"`
	AccountType config.AccountType `json:"account_type"`
	StartedAt   time.Time          `json:"started_at"`
	FinishedAt  time.Time          `json:"finished_at,omitzero"`
	Total       int                `json:"total_repos"`
	Succeeded   int                `json:"succeeded"`
	Failed      int                `json:"failed"`
	Cancelled   int                `json:"cancelled"`
	Skipped     int                `json:"skipped"`
	Overall     OverallStatus      `json:"overall_status"`
	Outcomes    []Outcome          `json:"outcomes"`
}

// Snapshot returns a copy safe to serialize while workers are running.
func (s *Summary) Snapshot() SummaryData {
	done, failed, cancelled, skipped := s.Counts()
	overall := s.Overall()

	s.mu.Lock()
	defer s.mu.Unlock()
	out := SummaryData{
		RunID:       s.RunID,
		Account:     s.Account,
		AccountType: s.AccountType,
		StartedAt:   s.StartedAt,
		FinishedAt:  s.FinishedAt,
		Total:       s.Total,
		Succeeded:   done,
		Failed:      failed,
		Cancelled:   cancelled,
		Skipped:     skipped,
		Overall:     overall,
		Outcomes:    make([]Outcome, len(s.Outcomes)),
	}
	copy(out.Outcomes, s.Outcomes)
	return out
}
