package export

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/gh-backup/internal/config"
	"github.com/randalmurphal/gh-backup/internal/github"
)

func TestNewMetadata_Stats(t *testing.T) {
	repos := []github.Repo{
		{Name: "api", Private: true},
		{Name: "web"},
		{Name: "old-fork", Fork: true},
		{Name: "attic", Archived: true, Private: true},
	}
	cfg := config.Default()
	cfg.Account = "my-org"

	meta := NewMetadata("0.1.0", "my-org", config.AccountOrg, repos, cfg)

	assert.Equal(t, "gh-backup", meta.Tool)
	assert.Equal(t, "0.1.0", meta.Version)
	assert.Equal(t, 4, meta.Stats.Total)
	assert.Equal(t, 2, meta.Stats.Private)
	assert.Equal(t, 2, meta.Stats.Public)
	assert.Equal(t, 1, meta.Stats.Forks)
	assert.Equal(t, 1, meta.Stats.Archived)
	assert.Nil(t, meta.Summary)
}

func TestMetadata_WriteAndFinalize(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Account = "my-org"
	repos := []github.Repo{{Name: "api", CloneURL: "https://github.com/my-org/api.git"}}

	meta := NewMetadata("0.1.0", "my-org", config.AccountOrg, repos, cfg)
	require.NoError(t, meta.Write(dir))

	// Initial manifest has no summary yet
	data, err := os.ReadFile(filepath.Join(dir, MetadataFile))
	require.NoError(t, err)
	var onDisk map[string]any
	require.NoError(t, json.Unmarshal(data, &onDisk))
	assert.Equal(t, "my-org", onDisk["account"])
	assert.NotContains(t, onDisk, "summary")

	s := NewSummary("my-org", config.AccountOrg, 1)
	s.Add(Outcome{Repo: "api", Status: StatusDone})
	s.Finish()
	meta.Finalize(s)
	require.NoError(t, meta.Write(dir))

	data, err = os.ReadFile(filepath.Join(dir, MetadataFile))
	require.NoError(t, err)
	var final Metadata
	require.NoError(t, json.Unmarshal(data, &final))
	require.NotNil(t, final.Summary)
	assert.Equal(t, 1, final.Summary.Succeeded)
	assert.Equal(t, OverallSuccess, final.Summary.Overall)
	require.Len(t, final.Repos, 1)
	assert.Equal(t, "api", final.Repos[0].Name)
}

func TestBuildJobs_Paths(t *testing.T) {
	repos := []github.Repo{{Name: "api"}, {Name: "web"}}
	jobs := BuildJobs(repos, "/tmp/export")
	require.Len(t, jobs, 2)

	assert.Equal(t, filepath.Join("/tmp/export", "repos", "api.git"), jobs[0].ClonePath)
	assert.Equal(t, filepath.Join("/tmp/export", "issues", "api"), jobs[0].IssuesDir)
	assert.Equal(t, filepath.Join("/tmp/export", "repos", "web.git"), jobs[1].ClonePath)
}
