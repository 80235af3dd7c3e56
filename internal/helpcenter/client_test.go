// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package helpcenter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/kbsync/internal/httputil"
	"github.com/pdiddy/kbsync/pkg/types"
)

func init() {
	httputil.RetryBaseDelay = time.Millisecond
}

// pagedServer serves pages[i] for ?page=i+1 and counts requests.
func pagedServer(t *testing.T, pages [][]types.Article, calls *int32) *httptest.Server {
	t.Helper()
	var ts *httptest.Server
	ts = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(calls, 1)
		if r.URL.Path != "/api/v2/help_center/en-us/articles.json" {
			http.NotFound(w, r)
			return
		}
		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		if page < 1 || page > len(pages) {
			http.NotFound(w, r)
			return
		}
		var next *string
		if page < len(pages) {
			s := fmt.Sprintf("%s%s?page=%d", ts.URL, r.URL.Path, page+1)
			next = &s
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"articles":  pages[page-1],
			"next_page": next,
		})
	}))
	t.Cleanup(ts.Close)
	return ts
}

func article(id int64) types.Article {
	return types.Article{
		ID:        id,
		Title:     fmt.Sprintf("Article %d", id),
		Body:      "<p>body</p>",
		HTMLURL:   fmt.Sprintf("https://support.example.com/hc/en-us/articles/%d", id),
		UpdatedAt: "2024-01-01T00:00:00Z",
	}
}

func newTestClient(ts *httptest.Server) *Client {
	return NewClient(ts.Client(), types.HelpCenterConfig{BaseURL: ts.URL + "/", PerPage: 2}, nil)
}

func collect(t *testing.T, c *Client, lim Limits) ([]int64, error) {
	t.Helper()
	var ids []int64
	for a, err := range c.Articles(context.Background(), lim) {
		if err != nil {
			return ids, err
		}
		ids = append(ids, a.ID)
	}
	return ids, nil
}

func TestArticlesFollowsPagination(t *testing.T) {
	var calls int32
	ts := pagedServer(t, [][]types.Article{
		{article(1), article(2)},
		{article(3), article(4)},
		{article(5)},
	}, &calls)

	ids, err := collect(t, newTestClient(ts), Limits{MaxDocuments: 100, MaxPages: 10})
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 3, 4, 5}, ids)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestArticlesSkipsDraftsAndOutdated(t *testing.T) {
	draft := article(2)
	draft.Draft = true
	outdated := article(3)
	outdated.Outdated = true

	var calls int32
	ts := pagedServer(t, [][]types.Article{{article(1), draft, outdated, article(4)}}, &calls)

	// Filtered articles do not count toward MaxDocuments.
	ids, err := collect(t, newTestClient(ts), Limits{MaxDocuments: 2, MaxPages: 10})
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 4}, ids)
}

func TestArticlesMaxDocumentsShortCircuits(t *testing.T) {
	var calls int32
	ts := pagedServer(t, [][]types.Article{
		{article(1), article(2)},
		{article(3), article(4)},
	}, &calls)

	ids, err := collect(t, newTestClient(ts), Limits{MaxDocuments: 2, MaxPages: 10})
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2}, ids)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "second page must not be requested")
}

func TestArticlesMaxPagesBoundsRequests(t *testing.T) {
	var calls int32
	ts := pagedServer(t, [][]types.Article{
		{article(1)}, {article(2)}, {article(3)}, {article(4)},
	}, &calls)

	ids, err := collect(t, newTestClient(ts), Limits{MaxDocuments: 100, MaxPages: 2})
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2}, ids)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestArticlesErrorTruncates(t *testing.T) {
	var calls int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if n == 1 {
			next := "more"
			json.NewEncoder(w).Encode(map[string]any{"articles": []types.Article{article(1)}, "next_page": next})
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	ids, err := collect(t, newTestClient(ts), Limits{MaxDocuments: 100, MaxPages: 10})
	assert.Equal(t, []int64{1}, ids, "articles yielded before the failure are kept")

	var fe *FetchError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, 2, fe.Page)
	assert.Contains(t, fe.Error(), "HTTP 500")
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls), "failed page is not retried")
}

func TestArticlesDecodeError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, "{not json")
	}))
	defer ts.Close()

	ids, err := collect(t, newTestClient(ts), Limits{})
	assert.Empty(t, ids)
	var fe *FetchError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, 1, fe.Page)
}

func TestArticlesEarlyBreakStopsFetching(t *testing.T) {
	var calls int32
	ts := pagedServer(t, [][]types.Article{
		{article(1), article(2)},
		{article(3)},
	}, &calls)

	c := newTestClient(ts)
	for a, err := range c.Articles(context.Background(), Limits{MaxDocuments: 100, MaxPages: 10}) {
		require.NoError(t, err)
		if a.ID == 1 {
			break
		}
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestRequestHeaders(t *testing.T) {
	var got http.Header
	var query string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		query = r.URL.RawQuery
		fmt.Fprint(w, `{"articles":[],"next_page":null}`)
	}))
	defer ts.Close()

	c := NewClient(ts.Client(), types.HelpCenterConfig{
		HTTPConfig: types.HTTPConfig{UserAgent: "kbsync-test/1"},
		BaseURL:    ts.URL,
		Email:      "ops@example.com",
		APIToken:   "secret",
	}, nil)
	_, err := collect(t, c, Limits{})
	require.NoError(t, err)

	assert.Equal(t, "kbsync-test/1", got.Get("User-Agent"))
	assert.Equal(t, "Basic b3BzQGV4YW1wbGUuY29tL3Rva2VuOnNlY3JldA==", got.Get("Authorization"))
	assert.Contains(t, query, "per_page=100")
	assert.Contains(t, query, "page=1")
}

func TestArticleHTMLPrefersBody(t *testing.T) {
	assert.Equal(t, "<p>a</p>", types.Article{Body: "<p>a</p>", HTMLBody: "<p>b</p>"}.HTML())
	assert.Equal(t, "<p>b</p>", types.Article{HTMLBody: "<p>b</p>"}.HTML())
}
