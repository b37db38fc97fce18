package export

import (
	"fmt"
	"sort"
	"strings"

	"github.com/randalmurphal/gh-backup/internal/config"
	"github.com/randalmurphal/gh-backup/internal/github"
)

// FilterRepos applies the configured selection rules to the listing, in
// order: explicit name selection, fork/archived skips, then visibility.
// Listing order is preserved for everything that survives.
//
// When cfg.OnlyRepos names a repo that is not in the listing, the whole
// run is rejected: a backup that silently omits a requested repo is worse
// than one that refuses to start.
func FilterRepos(repos []github.Repo, cfg *config.Config) ([]github.Repo, error) {
	if len(cfg.OnlyRepos) > 0 {
		wanted := make(map[string]bool, len(cfg.OnlyRepos))
		for _, name := range cfg.OnlyRepos {
			key := strings.ToLower(strings.TrimSpace(name))
			if key != "" {
				wanted[key] = true
			}
		}
		selected := make([]github.Repo, 0, len(wanted))
		for _, r := range repos {
			if wanted[strings.ToLower(r.Name)] {
				selected = append(selected, r)
				delete(wanted, strings.ToLower(r.Name))
			}
		}
		if len(wanted) > 0 {
			missing := make([]string, 0, len(wanted))
			for name := range wanted {
				missing = append(missing, name)
			}
			sort.Strings(missing)
			return nil, fmt.Errorf("requested repos not found in account: %s", strings.Join(missing, ", "))
		}
		repos = selected
	}

	out := make([]github.Repo, 0, len(repos))
	for _, r := range repos {
		if cfg.SkipForks && r.Fork {
			continue
		}
		if cfg.SkipArchived && r.Archived {
			continue
		}
		switch cfg.Visibility {
		case config.VisibilityPublic:
			if r.Private {
				continue
			}
		case config.VisibilityPrivate:
			if !r.Private {
				continue
			}
		}
		out = append(out, r)
	}
	return out, nil
}
