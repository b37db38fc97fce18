package github

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/gh-backup/internal/config"
	"github.com/randalmurphal/gh-backup/internal/errors"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := NewClient("test-token", "")
	require.NoError(t, err)
	require.NoError(t, client.SetBaseURL(srv.URL+"/"))
	return client, srv
}

func TestSplitRecords(t *testing.T) {
	page := json.RawMessage(`[{"number":1,"title":"a"},{"number":2,"title":"b"}]`)
	records := splitRecords(page)
	require.Len(t, records, 2)
	assert.JSONEq(t, `{"number":1,"title":"a"}`, string(records[0]))
	assert.JSONEq(t, `{"number":2,"title":"b"}`, string(records[1]))
}

func TestSplitRecords_EmptyArray(t *testing.T) {
	assert.Empty(t, splitRecords(json.RawMessage(`[]`)))
}

func TestSplitRecords_Null(t *testing.T) {
	assert.Empty(t, splitRecords(json.RawMessage(`null`)))
	assert.Empty(t, splitRecords(nil))
}

func TestSplitRecords_SingleObject(t *testing.T) {
	records := splitRecords(json.RawMessage(`{"number":7}`))
	require.Len(t, records, 1)
	assert.JSONEq(t, `{"number":7}`, string(records[0]))
}

func TestListRepos_OrgPagination(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/orgs/my-org/repos", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		switch r.URL.Query().Get("page") {
		case "", "1":
			w.Header().Set("Link", fmt.Sprintf(`<http://%s/orgs/my-org/repos?page=2>; rel="next"`, r.Host))
			fmt.Fprint(w, `[{"name":"api","clone_url":"https://github.com/my-org/api.git","private":true,"size":42}]`)
		default:
			fmt.Fprint(w, `[{"name":"web","clone_url":"https://github.com/my-org/web.git","fork":true,"archived":true}]`)
		}
	})
	client, _ := newTestClient(t, mux)

	repos, err := client.ListRepos(context.Background(), "my-org", config.AccountOrg)
	require.NoError(t, err)
	require.Len(t, repos, 2)

	assert.Equal(t, "api", repos[0].Name)
	assert.Equal(t, "https://github.com/my-org/api.git", repos[0].CloneURL)
	assert.True(t, repos[0].Private)
	assert.Equal(t, 42, repos[0].DiskUsageKB)

	assert.Equal(t, "web", repos[1].Name)
	assert.True(t, repos[1].Fork)
	assert.True(t, repos[1].Archived)
}

func TestListRepos_User(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/users/octocat/repos", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "owner", r.URL.Query().Get("type"))
		fmt.Fprint(w, `[{"name":"dotfiles","clone_url":"https://github.com/octocat/dotfiles.git"}]`)
	})
	client, _ := newTestClient(t, mux)

	repos, err := client.ListRepos(context.Background(), "octocat", config.AccountUser)
	require.NoError(t, err)
	require.Len(t, repos, 1)
	assert.Equal(t, "dotfiles", repos[0].Name)
}

func TestListRepos_FailureIsFatal(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/orgs/my-org/repos", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"Not Found"}`, http.StatusNotFound)
	})
	client, _ := newTestClient(t, mux)

	_, err := client.ListRepos(context.Background(), "my-org", config.AccountOrg)
	require.Error(t, err)
	assert.Equal(t, errors.KindFatal, errors.KindOf(err))
}

func TestResolveAccountType(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/orgs/my-org", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"login":"my-org"}`)
	})
	mux.HandleFunc("/orgs/octocat", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"Not Found"}`, http.StatusNotFound)
	})
	mux.HandleFunc("/users/octocat", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"login":"octocat","type":"User"}`)
	})
	mux.HandleFunc("/orgs/ghost", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"Not Found"}`, http.StatusNotFound)
	})
	mux.HandleFunc("/users/ghost", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"Not Found"}`, http.StatusNotFound)
	})
	client, _ := newTestClient(t, mux)

	got, err := client.ResolveAccountType(context.Background(), "my-org")
	require.NoError(t, err)
	assert.Equal(t, config.AccountOrg, got)

	got, err = client.ResolveAccountType(context.Background(), "octocat")
	require.NoError(t, err)
	assert.Equal(t, config.AccountUser, got)

	_, err = client.ResolveAccountType(context.Background(), "ghost")
	require.Error(t, err)
	assert.Equal(t, errors.KindFatal, errors.KindOf(err))
}

func TestFetchIssues_Pagination(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/my-org/api/issues", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "all", r.URL.Query().Get("state"))
		switch r.URL.Query().Get("page") {
		case "", "1":
			w.Header().Set("Link", fmt.Sprintf(`<http://%s/repos/my-org/api/issues?page=2>; rel="next"`, r.Host))
			fmt.Fprint(w, `[{"number":1},{"number":2}]`)
		default:
			fmt.Fprint(w, `[{"number":3}]`)
		}
	})
	client, _ := newTestClient(t, mux)

	records, err := client.FetchIssues(context.Background(), "my-org", "api")
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.JSONEq(t, `{"number":3}`, string(records[2]))
}

func TestFetchIssues_NotFoundIsDefinitive(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/my-org/gone/issues", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"Not Found"}`, http.StatusNotFound)
	})
	client, _ := newTestClient(t, mux)

	_, err := client.FetchIssues(context.Background(), "my-org", "gone")
	require.Error(t, err)
	assert.True(t, errors.IsDefinitive(err))
}

func TestFetchPulls_ServerErrorIsTransient(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/my-org/api/pulls", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"oops"}`, http.StatusBadGateway)
	})
	client, _ := newTestClient(t, mux)

	_, err := client.FetchPulls(context.Background(), "my-org", "api")
	require.Error(t, err)
	assert.Equal(t, errors.KindTransient, errors.KindOf(err))
}
