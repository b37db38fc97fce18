// Package github provides GitHub authentication state and API access for
// gh-backup. Credentials come from the user's gh CLI session; everything
// else goes through the REST API.
package github

import (
	"bytes"
	"fmt"
	"os/exec"
	"regexp"
	"strings"

	"github.com/randalmurphal/gh-backup/internal/errors"
)

// AuthState describes the current gh CLI authentication session.
type AuthState struct {
	LoggedIn bool
	Account  string
	Hostname string
	Token    string
	Scopes   []string
}

var loggedInRe = regexp.MustCompile(`Logged in to (\S+) account (\S+)`)

// CheckAuth runs `gh auth status` and returns the current auth state.
// A logged-out session is not an error; a missing gh binary is.
func CheckAuth() (*AuthState, error) {
	cmd := exec.Command("gh", "auth", "status")
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if _, ok := err.(*exec.ExitError); !ok {
			return nil, errors.Fatal(errors.CodeAuthRequired,
				"GitHub CLI (gh) not found, install it from https://cli.github.com", err)
		}
		return &AuthState{Hostname: "github.com"}, nil
	}

	// gh auth status historically writes to stderr.
	output := stderr.String()
	if strings.TrimSpace(output) == "" {
		output = stdout.String()
	}

	state := parseAuthStatus(output)
	if token, err := Token(); err == nil {
		state.Token = token
	}
	return state, nil
}

func parseAuthStatus(output string) *AuthState {
	state := &AuthState{LoggedIn: true, Hostname: "github.com"}
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if m := loggedInRe.FindStringSubmatch(line); m != nil {
			state.Hostname = m[1]
			state.Account = strings.Trim(m[2], "()")
			continue
		}
		if strings.Contains(strings.ToLower(line), "token scopes:") {
			raw := line[strings.Index(line, ":")+1:]
			for _, s := range strings.Split(raw, ",") {
				s = strings.Trim(strings.TrimSpace(s), `'"`)
				if s != "" {
					state.Scopes = append(state.Scopes, s)
				}
			}
		}
	}
	return state
}

// Token returns the current GitHub auth token via `gh auth token`.
func Token() (string, error) {
	cmd := exec.Command("gh", "auth", "token")
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return "", errors.Fatal(errors.CodeAuthRequired,
			fmt.Sprintf("get GitHub token: %s", msg), err)
	}
	return strings.TrimSpace(stdout.String()), nil
}

// MissingScopeWarnings returns warnings for token scopes the export likely
// needs. Warnings are only produced when scopes were parsed successfully,
// to avoid false positives with fine-grained tokens.
func (s *AuthState) MissingScopeWarnings() []string {
	if len(s.Scopes) == 0 {
		return nil
	}
	var warnings []string
	if !hasScope(s.Scopes, "repo") {
		warnings = append(warnings,
			"token is missing the 'repo' scope, private repository clones will fail; run 'gh auth refresh -s repo' to add it")
	}
	if !hasScope(s.Scopes, "read:org") {
		warnings = append(warnings,
			"token is missing the 'read:org' scope, organization listing may fail; run 'gh auth refresh -s read:org' to add it")
	}
	return warnings
}

func hasScope(scopes []string, want string) bool {
	for _, s := range scopes {
		if s == want {
			return true
		}
	}
	return false
}
