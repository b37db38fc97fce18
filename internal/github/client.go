package github

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"

	gogithub "github.com/google/go-github/v82/github"
	"github.com/tidwall/gjson"

	"github.com/randalmurphal/gh-backup/internal/config"
	"github.com/randalmurphal/gh-backup/internal/errors"
)

const perPage = 100

// Client wraps the GitHub REST API for repository listing, account-type
// resolution, and raw issue/PR export.
type Client struct {
	gh    *gogithub.Client
	token string
}

// NewClient creates an authenticated Client. baseURL overrides the API root
// for GitHub Enterprise; empty means github.com.
func NewClient(token, baseURL string) (*Client, error) {
	httpClient := &http.Client{
		Transport: &bearerTransport{token: token},
	}
	gh := gogithub.NewClient(httpClient)

	if baseURL != "" {
		trimmed := strings.TrimSuffix(baseURL, "/")
		var err error
		gh.BaseURL, err = gh.BaseURL.Parse(trimmed + "/api/v3/")
		if err != nil {
			return nil, fmt.Errorf("parse base URL %q: %w", baseURL, err)
		}
	}

	return &Client{gh: gh, token: token}, nil
}

// bearerTransport adds an Authorization header to every request.
type bearerTransport struct {
	token string
	base  http.RoundTripper
}

func (t *bearerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req2 := req.Clone(req.Context())
	if t.token != "" {
		req2.Header.Set("Authorization", "Bearer "+t.token)
	}
	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}
	return base.RoundTrip(req2)
}

// SetBaseURL points the client at a different API root. Tests use this to
// target a local server.
func (c *Client) SetBaseURL(raw string) error {
	u, err := c.gh.BaseURL.Parse(raw)
	if err != nil {
		return err
	}
	c.gh.BaseURL = u
	return nil
}

// ResolveAccountType probes the API to decide whether account is an
// organization or a user. Orgs are probed first since they are the common
// backup target.
func (c *Client) ResolveAccountType(ctx context.Context, account string) (config.AccountType, error) {
	if _, _, err := c.gh.Organizations.Get(ctx, account); err == nil {
		return config.AccountOrg, nil
	}
	if _, _, err := c.gh.Users.Get(ctx, account); err == nil {
		return config.AccountUser, nil
	}
	return "", errors.Fatal(errors.CodeAccountNotFound,
		fmt.Sprintf("'%s' not found as an org or user, check the name and your permissions", account), nil)
}

// ListRepos returns every repository owned by account, paginated.
func (c *Client) ListRepos(ctx context.Context, account string, accountType config.AccountType) ([]Repo, error) {
	var repos []Repo

	switch accountType {
	case config.AccountUser:
		opts := &gogithub.RepositoryListByUserOptions{
			Type:        "owner",
			ListOptions: gogithub.ListOptions{PerPage: perPage},
		}
		for {
			page, resp, err := c.gh.Repositories.ListByUser(ctx, account, opts)
			if err != nil {
				return nil, classifyListErr(account, err)
			}
			repos = append(repos, convertRepos(page)...)
			if resp.NextPage == 0 {
				break
			}
			opts.Page = resp.NextPage
		}
	default:
		opts := &gogithub.RepositoryListByOrgOptions{
			Type:        "all",
			ListOptions: gogithub.ListOptions{PerPage: perPage},
		}
		for {
			page, resp, err := c.gh.Repositories.ListByOrg(ctx, account, opts)
			if err != nil {
				return nil, classifyListErr(account, err)
			}
			repos = append(repos, convertRepos(page)...)
			if resp.NextPage == 0 {
				break
			}
			opts.Page = resp.NextPage
		}
	}

	return repos, nil
}

func convertRepos(page []*gogithub.Repository) []Repo {
	out := make([]Repo, 0, len(page))
	for _, r := range page {
		out = append(out, Repo{
			Name:          r.GetName(),
			CloneURL:      r.GetCloneURL(),
			SSHURL:        r.GetSSHURL(),
			Private:       r.GetPrivate(),
			Fork:          r.GetFork(),
			Archived:      r.GetArchived(),
			Description:   r.GetDescription(),
			DefaultBranch: r.GetDefaultBranch(),
			DiskUsageKB:   r.GetSize(),
		})
	}
	return out
}

func classifyListErr(account string, err error) error {
	return errors.Fatal(errors.CodeListFailed,
		fmt.Sprintf("list repositories for %s", account), err)
}

// FetchIssues returns every issue of owner/repo (all states) as raw JSON
// records, preserving full API fidelity for the backup.
func (c *Client) FetchIssues(ctx context.Context, owner, repo string) ([]json.RawMessage, error) {
	return c.fetchPaginated(ctx, fmt.Sprintf("repos/%s/%s/issues", owner, repo))
}

// FetchPulls returns every pull request of owner/repo (all states) as raw
// JSON records.
func (c *Client) FetchPulls(ctx context.Context, owner, repo string) ([]json.RawMessage, error) {
	return c.fetchPaginated(ctx, fmt.Sprintf("repos/%s/%s/pulls", owner, repo))
}

// fetchPaginated walks every page of a list endpoint and splits each page
// into individual raw records.
func (c *Client) fetchPaginated(ctx context.Context, path string) ([]json.RawMessage, error) {
	var records []json.RawMessage

	page := 1
	for {
		u := fmt.Sprintf("%s?state=all&per_page=%d&page=%d", path, perPage, page)
		req, err := c.gh.NewRequest(http.MethodGet, u, nil)
		if err != nil {
			return nil, errors.Definitive(errors.CodeIssueExport, "build request", err)
		}

		var raw json.RawMessage
		resp, err := c.gh.Do(ctx, req, &raw)
		if err != nil {
			return nil, classifyAPIErr(path, err)
		}

		records = append(records, splitRecords(raw)...)

		if resp.NextPage == 0 {
			break
		}
		page = resp.NextPage
	}

	return records, nil
}

// splitRecords splits a raw JSON array page into its elements. A non-array
// page (single object) becomes one record.
func splitRecords(page json.RawMessage) []json.RawMessage {
	parsed := gjson.ParseBytes(page)
	if !parsed.IsArray() {
		if parsed.Type == gjson.Null || len(page) == 0 {
			return nil
		}
		return []json.RawMessage{json.RawMessage(parsed.Raw)}
	}

	items := parsed.Array()
	records := make([]json.RawMessage, 0, len(items))
	for _, item := range items {
		records = append(records, json.RawMessage(item.Raw))
	}
	return records
}

// classifyAPIErr maps API failures onto the retry taxonomy: rate limits are
// transient, auth and not-found are definitive, everything else (timeouts,
// connection resets, 5xx) is transient.
func classifyAPIErr(path string, err error) error {
	var rateErr *gogithub.RateLimitError
	var abuseErr *gogithub.AbuseRateLimitError
	if stderrors.As(err, &rateErr) || stderrors.As(err, &abuseErr) {
		return errors.Transient(errors.CodeRateLimited, fmt.Sprintf("rate limited fetching %s", path), err)
	}

	var respErr *gogithub.ErrorResponse
	if stderrors.As(err, &respErr) && respErr.Response != nil {
		switch respErr.Response.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			return errors.Definitive(errors.CodeAuthRequired, fmt.Sprintf("access denied fetching %s", path), err)
		case http.StatusNotFound, http.StatusGone:
			return errors.Definitive(errors.CodeRepoNotFound, fmt.Sprintf("not found: %s", path), err)
		default:
			if respErr.Response.StatusCode >= 400 && respErr.Response.StatusCode < 500 {
				return errors.Definitive(errors.CodeIssueExport, fmt.Sprintf("fetch %s", path), err)
			}
		}
	}

	return errors.Transient(errors.CodeNetwork, fmt.Sprintf("fetch %s", path), err)
}
