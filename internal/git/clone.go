package git

import (
	"os"
	"strings"

	"github.com/randalmurphal/gh-backup/internal/errors"
)

// Cloner performs bare mirror clones and repository compaction.
type Cloner struct {
	runner CommandRunner
	token  string
}

// NewCloner creates a Cloner that injects token into HTTPS clone URLs.
func NewCloner(runner CommandRunner, token string) *Cloner {
	if runner == nil {
		runner = NewExecRunner()
	}
	return &Cloner{runner: runner, token: token}
}

// MirrorClone clones cloneURL as a bare mirror into dest. With shallow set,
// only the most recent commit of each ref is fetched. Any error text is
// token-redacted before it escapes this package.
func (c *Cloner) MirrorClone(cloneURL, dest string, shallow bool) error {
	args := []string{"clone", "--mirror"}
	if shallow {
		args = append(args, "--depth", "1")
	}
	args = append(args, c.authenticatedURL(cloneURL), dest)

	// GIT_TERMINAL_PROMPT=0 turns an interactive credential prompt into a
	// failure instead of hanging a worker.
	_, err := c.runner.Run([]string{"GIT_TERMINAL_PROMPT=0"}, "git", args...)
	if err != nil {
		return errors.Transient(errors.CodeCloneFailed,
			"git clone --mirror failed",
			sanitizedError(err, c.token))
	}
	return nil
}

// GC runs an aggressive repack on a bare clone to shrink pack files.
func (c *Cloner) GC(clonePath string) error {
	_, err := c.runner.Run(nil, "git", "-C", clonePath,
		"gc", "--aggressive", "--prune=now", "--quiet")
	if err != nil {
		return sanitizedError(err, c.token)
	}
	return nil
}

// RemovePartial deletes a partially written clone directory so a failed job
// never leaves a half-cloned repository on disk.
func (c *Cloner) RemovePartial(dest string) {
	_ = os.RemoveAll(dest)
}

// authenticatedURL embeds the token into an HTTPS clone URL. Non-HTTPS URLs
// pass through unchanged.
func (c *Cloner) authenticatedURL(cloneURL string) string {
	if c.token == "" || !strings.HasPrefix(cloneURL, "https://") {
		return cloneURL
	}
	return "https://oauth2:" + c.token + "@" + strings.TrimPrefix(cloneURL, "https://")
}

// sanitizedError rewraps err with all token material redacted. The original
// error is dropped on purpose: its message may embed the authenticated URL.
func sanitizedError(err error, token string) error {
	if err == nil {
		return nil
	}
	return &CommandError{
		Command: "git",
		Output:  errors.Redact(err.Error(), token),
	}
}
