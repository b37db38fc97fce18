package export

import (
	"path/filepath"
	"time"

	"github.com/randalmurphal/gh-backup/internal/config"
	"github.com/randalmurphal/gh-backup/internal/github"
	"github.com/randalmurphal/gh-backup/internal/util"
)

// MetadataFile is the name of the run manifest at the export root.
const MetadataFile = "metadata.json"

// RepoStats summarizes the repo listing that went into a run.
type RepoStats struct {
	Total    int `json:"total"`
	Private  int `json:"private"`
	Public   int `json:"public"`
	Forks    int `json:"forks"`
	Archived int `json:"archived"`
}

// SettingsSnapshot records the settings that shaped a run. Only fields
// that affect the exported content are included.
type SettingsSnapshot struct {
	Workers      int               `json:"workers"`
	Shallow      bool              `json:"shallow"`
	GC           bool              `json:"gc"`
	SkipIssues   bool              `json:"skip_issues"`
	SkipForks    bool              `json:"skip_forks"`
	SkipArchived bool              `json:"skip_archived"`
	Visibility   config.Visibility `json:"visibility"`
}

// Metadata is the run manifest written to metadata.json at the export
// root. It is written once when the run starts, so an interrupted run
// still identifies itself, and rewritten with the final summary when all
// jobs have settled.
type Metadata struct {
	Tool        string             `json:"tool"`
	Version     string             `json:"version"`
	Account     string             `json:"account"`
	AccountType config.AccountType `json:"account_type"`
	CreatedAt   time.Time          `json:"created_at"`
	Stats       RepoStats          `json:"stats"`
	Settings    SettingsSnapshot   `json:"settings"`
	Repos       []github.Repo      `json:"repos"`
	Summary     *SummaryData       `json:"summary,omitempty"`
}

// NewMetadata assembles the manifest for a run over the filtered listing.
func NewMetadata(version, account string, accountType config.AccountType, repos []github.Repo, cfg *config.Config) *Metadata {
	stats := RepoStats{Total: len(repos)}
	for _, r := range repos {
		if r.Private {
			stats.Private++
		} else {
			stats.Public++
		}
		if r.Fork {
			stats.Forks++
		}
		if r.Archived {
			stats.Archived++
		}
	}
	return &Metadata{
		Tool:        "gh-backup",
		Version:     version,
		Account:     account,
		AccountType: accountType,
		CreatedAt:   time.Now().UTC(),
		Stats:       stats,
		Settings: SettingsSnapshot{
			Workers:      cfg.Workers,
			Shallow:      cfg.Shallow,
			GC:           cfg.GC,
			SkipIssues:   cfg.SkipIssues,
			SkipForks:    cfg.SkipForks,
			SkipArchived: cfg.SkipArchived,
			Visibility:   cfg.Visibility,
		},
		Repos: repos,
	}
}

// Write persists the manifest into exportDir atomically.
func (m *Metadata) Write(exportDir string) error {
	return util.AtomicWriteJSON(filepath.Join(exportDir, MetadataFile), m, 0o644)
}

// Finalize attaches the finished run summary to the manifest.
func (m *Metadata) Finalize(s *Summary) {
	data := s.Snapshot()
	m.Summary = &data
}
