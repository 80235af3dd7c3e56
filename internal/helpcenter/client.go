// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package helpcenter fetches published articles from a paginated help center API.
package helpcenter

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"iter"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/pdiddy/kbsync/internal/httputil"
	"github.com/pdiddy/kbsync/pkg/types"
)

// FetchError reports a transport or decode failure on one listing page.
// It ends the article sequence early; whatever was yielded before it is
// still valid.
type FetchError struct {
	Page int
	URL  string
	Err  error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetching page %d (%s): %v", e.Page, e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Limits bound a fetch. Zero or negative values use the defaults.
type Limits struct {
	// MaxDocuments caps the number of publishable articles yielded.
	MaxDocuments int

	// MaxPages caps the number of listing requests, regardless of next_page.
	MaxPages int
}

func (l Limits) withDefaults() Limits {
	if l.MaxDocuments <= 0 {
		l.MaxDocuments = types.DefaultMaxDocuments
	}
	if l.MaxPages <= 0 {
		l.MaxPages = types.DefaultMaxPages
	}
	return l
}

// listing is one page of the articles endpoint.
type listing struct {
	Articles []types.Article `json:"articles"`
	NextPage *string         `json:"next_page"`
	Page     int             `json:"page"`
	Count    int             `json:"count"`
}

// Client reads articles from a help center.
type Client struct {
	http *http.Client
	cfg  types.HelpCenterConfig
	log  *slog.Logger
}

// NewClient returns a client for cfg.BaseURL. A nil httpClient gets one with
// cfg.Timeout; a nil logger discards.
func NewClient(httpClient *http.Client, cfg types.HelpCenterConfig, log *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	if cfg.Locale == "" {
		cfg.Locale = types.DefaultLocale
	}
	if cfg.PerPage <= 0 {
		cfg.PerPage = types.DefaultPerPage
	}
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	return &Client{http: httpClient, cfg: cfg, log: log}
}

// Articles returns the publishable articles in listing order, fetched lazily
// one page at a time. Drafts and outdated articles are skipped and count
// toward neither limit. Pagination stops when next_page is empty, a page is
// empty, MaxPages requests have been made, or MaxDocuments articles have been
// yielded.
//
// A failing page yields a single (zero Article, *FetchError) pair and ends
// the sequence. Pages are not retried beyond HTTP throttling back-off.
func (c *Client) Articles(ctx context.Context, lim Limits) iter.Seq2[types.Article, error] {
	lim = lim.withDefaults()
	return func(yield func(types.Article, error) bool) {
		yielded := 0
		for page := 1; page <= lim.MaxPages; page++ {
			l, err := c.fetchPage(ctx, page)
			if err != nil {
				yield(types.Article{}, err)
				return
			}
			c.log.Debug("fetched page", "page", page, "articles", len(l.Articles))

			for _, a := range l.Articles {
				if !a.Publishable() {
					c.log.Debug("skipping unpublished article", "id", a.ID, "title", a.Title, "draft", a.Draft, "outdated", a.Outdated)
					continue
				}
				if !yield(a, nil) {
					return
				}
				yielded++
				if yielded >= lim.MaxDocuments {
					c.log.Info("document limit reached", "limit", lim.MaxDocuments)
					return
				}
			}

			if len(l.Articles) == 0 || l.NextPage == nil || *l.NextPage == "" {
				return
			}
		}
		c.log.Info("page limit reached", "limit", lim.MaxPages)
	}
}

// PageURL returns the listing URL for a 1-based page number.
func (c *Client) PageURL(page int) string {
	q := url.Values{
		"page":     {fmt.Sprintf("%d", page)},
		"per_page": {fmt.Sprintf("%d", c.cfg.PerPage)},
	}
	return fmt.Sprintf("%s/api/v2/help_center/%s/articles.json?%s",
		c.cfg.BaseURL, url.PathEscape(c.cfg.Locale), q.Encode())
}

func (c *Client) fetchPage(ctx context.Context, page int) (listing, error) {
	pageURL := c.PageURL(page)
	fail := func(err error) (listing, error) {
		return listing{}, &FetchError{Page: page, URL: pageURL, Err: err}
	}

	header := http.Header{}
	header.Set("Accept", "application/json")
	if c.cfg.UserAgent != "" {
		header.Set("User-Agent", c.cfg.UserAgent)
	}
	if c.cfg.Email != "" && c.cfg.APIToken != "" {
		creds := c.cfg.Email + "/token:" + c.cfg.APIToken
		header.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte(creds)))
	}

	resp, err := httputil.DoWithRetry(ctx, c.http, httputil.Get(pageURL, header), 0)
	if err != nil {
		return fail(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fail(fmt.Errorf("HTTP %d", resp.StatusCode))
	}

	var l listing
	if err := json.NewDecoder(resp.Body).Decode(&l); err != nil {
		return fail(fmt.Errorf("decoding listing: %w", err))
	}
	return l, nil
}
