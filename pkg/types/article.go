// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package types defines shared data structures for the kbsync pipeline:
// configuration, source articles, persisted documents, and sync state entries.
package types

import "time"

// Article is one record returned by the help center listing endpoint.
// It only exists during a fetch pass.
type Article struct {
	// ID is the remote article identifier.
	ID int64 `json:"id" yaml:"id"`

	// Title is the article title as published.
	Title string `json:"title" yaml:"title"`

	// Body is the rendered HTML body. Some help centers return html_body instead.
	Body     string `json:"body" yaml:"body"`
	HTMLBody string `json:"html_body,omitempty" yaml:"html_body,omitempty"`

	// HTMLURL is the canonical, human-facing article URL.
	HTMLURL string `json:"html_url" yaml:"html_url"`

	// URL is the API URL of the article record.
	URL string `json:"url" yaml:"url"`

	// UpdatedAt is the source update timestamp, kept verbatim.
	UpdatedAt string `json:"updated_at" yaml:"updated_at"`

	Draft    bool `json:"draft" yaml:"draft"`
	Outdated bool `json:"outdated" yaml:"outdated"`
}

// HTML returns the article body, preferring body over html_body.
func (a Article) HTML() string {
	if a.Body != "" {
		return a.Body
	}
	return a.HTMLBody
}

// Publishable reports whether the article should be mirrored.
func (a Article) Publishable() bool {
	return !a.Draft && !a.Outdated
}

// DocumentMeta is the metadata sidecar stored next to each persisted document.
type DocumentMeta struct {
	RemoteID           int64     `json:"remote_id" yaml:"remote_id"`
	Title              string    `json:"title" yaml:"title"`
	Slug               string    `json:"slug" yaml:"slug"`
	CanonicalURL       string    `json:"canonical_url" yaml:"canonical_url"`
	APIURL             string    `json:"api_url,omitempty" yaml:"api_url,omitempty"`
	UpdatedAt          string    `json:"updated_at" yaml:"updated_at"`
	ContentFingerprint string    `json:"content_fingerprint" yaml:"content_fingerprint"`
	LastMaterializedAt time.Time `json:"last_materialized_at" yaml:"last_materialized_at"`
}

// Document is a persisted, self-describing markdown document keyed by slug.
type Document struct {
	// Key is the document slug, the join key with sync state.
	Key string `json:"key" yaml:"key"`

	// Filename is the name the document is uploaded under (e.g. "my-article.md").
	Filename string `json:"filename" yaml:"filename"`

	// Content is the exact persisted bytes: front matter followed by the body.
	Content []byte `json:"-" yaml:"-"`

	Meta DocumentMeta `json:"meta" yaml:"meta"`

	// Err records a read failure when the document was listed but its content
	// could not be loaded. Such documents still take part in reconciliation
	// with empty content.
	Err error `json:"-" yaml:"-"`
}

// SyncEntry records what is live in the index for one document key.
type SyncEntry struct {
	DocumentKey        string    `json:"document_key" yaml:"document_key"`
	RemoteIndexID      string    `json:"remote_index_id" yaml:"remote_index_id"`
	ContentFingerprint string    `json:"content_fingerprint" yaml:"content_fingerprint"`
	LastSyncedAt       time.Time `json:"last_synced_at" yaml:"last_synced_at"`
	SourceFilename     string    `json:"source_filename" yaml:"source_filename"`
}
