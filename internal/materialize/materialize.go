// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package materialize turns fetched help center articles into persisted,
// self-describing markdown documents.
package materialize

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"time"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/kbsync/internal/docstore"
	"github.com/pdiddy/kbsync/internal/render"
	"github.com/pdiddy/kbsync/pkg/types"
)

// Fingerprint returns the hex SHA-256 of a document's persisted bytes.
func Fingerprint(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// frontMatter is the fixed header written at the top of every document.
// Field order is the serialized order.
type frontMatter struct {
	Title     string `yaml:"title"`
	ArticleID int64  `yaml:"article_id"`
	URL       string `yaml:"url"`
	UpdatedAt string `yaml:"updated_at"`
}

// Summary holds counts from one materialization pass.
type Summary struct {
	Written int
	Failed  int

	// Truncated is set when the article sequence ended on a fetch error.
	Truncated bool
}

// Total returns the number of articles processed.
func (s Summary) Total() int {
	return s.Written + s.Failed
}

// Materializer writes documents for one fetch pass. Slugs are unique within
// a pass: a title that collides with another article's slug falls back to
// article-{id}. Use a fresh Materializer per pass.
type Materializer struct {
	store    docstore.Store
	renderer render.Renderer
	log      *slog.Logger

	// Now is the clock stamped into last_materialized_at.
	Now func() time.Time

	seen map[string]int64
}

// New returns a Materializer writing to store.
func New(store docstore.Store, renderer render.Renderer, log *slog.Logger) *Materializer {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Materializer{
		store:    store,
		renderer: renderer,
		log:      log,
		Now:      time.Now,
		seen:     make(map[string]int64),
	}
}

// Key returns the document key for a, reserving it for the rest of the pass.
func (m *Materializer) Key(a types.Article) string {
	slug := render.SlugFor(a.Title, a.ID)
	if owner, ok := m.seen[slug]; ok && owner != a.ID {
		fallback := render.FallbackSlug(a.ID)
		// A title like "Article 7" may already hold the fallback.
		for n := 2; ; n++ {
			if o, taken := m.seen[fallback]; !taken || o == a.ID {
				break
			}
			fallback = fmt.Sprintf("%s-%d", render.FallbackSlug(a.ID), n)
		}
		m.log.Warn("slug collision", "slug", slug, "id", a.ID, "owner", owner, "using", fallback)
		slug = fallback
	}
	m.seen[slug] = a.ID
	return slug
}

// Materialize renders a, writes it under its slug, and returns the stored
// document. The document is overwritten even when its content is unchanged.
func (m *Materializer) Materialize(ctx context.Context, a types.Article) (types.Document, error) {
	key := m.Key(a)

	body, err := m.renderer.Render(a.HTML())
	if err != nil {
		return types.Document{}, fmt.Errorf("rendering article %d: %w", a.ID, err)
	}

	content, err := Compose(a, body)
	if err != nil {
		return types.Document{}, err
	}

	doc := types.Document{
		Key:      key,
		Filename: docstore.Filename(key),
		Content:  content,
		Meta: types.DocumentMeta{
			RemoteID:           a.ID,
			Title:              a.Title,
			Slug:               key,
			CanonicalURL:       a.HTMLURL,
			APIURL:             a.URL,
			UpdatedAt:          a.UpdatedAt,
			ContentFingerprint: Fingerprint(content),
			LastMaterializedAt: m.Now().UTC(),
		},
	}
	if err := m.store.Put(ctx, doc); err != nil {
		return types.Document{}, err
	}
	return doc, nil
}

// Compose builds the persisted bytes: YAML front matter, a title heading,
// the canonical URL line, then the rendered body. The output depends only on
// the article and body, so identical input always fingerprints the same.
func Compose(a types.Article, body string) ([]byte, error) {
	header, err := yaml.Marshal(frontMatter{
		Title:     a.Title,
		ArticleID: a.ID,
		URL:       a.HTMLURL,
		UpdatedAt: a.UpdatedAt,
	})
	if err != nil {
		return nil, fmt.Errorf("marshaling front matter for article %d: %w", a.ID, err)
	}

	var b bytes.Buffer
	b.WriteString("---\n")
	b.Write(header)
	b.WriteString("---\n\n")
	fmt.Fprintf(&b, "# %s\n\n", a.Title)
	fmt.Fprintf(&b, "**Article URL:** %s\n\n", a.HTMLURL)
	b.WriteString(body)
	b.WriteString("\n")
	return b.Bytes(), nil
}

// Run materializes every article in seq, printing one line per article to w.
// Per-article failures are counted and do not stop the pass. A fetch error
// from seq ends the pass; it is returned with the summary so the caller can
// decide whether a truncated fetch matters.
func (m *Materializer) Run(ctx context.Context, seq iter.Seq2[types.Article, error], w io.Writer) (Summary, error) {
	var summary Summary
	var fetchErr error

	for a, err := range seq {
		if err != nil {
			fetchErr = err
			summary.Truncated = true
			m.log.Error("fetch ended early", "error", err, "materialized", summary.Written)
			break
		}
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		doc, err := m.Materialize(ctx, a)
		if err != nil {
			fmt.Fprintf(w, "failed:  %d %s (%v)\n", a.ID, a.Title, err)
			m.log.Error("materialize failed", "id", a.ID, "error", err)
			summary.Failed++
			continue
		}
		fmt.Fprintf(w, "materialized: %s\n", doc.Key)
		m.log.Debug("materialized", "key", doc.Key, "id", a.ID, "fingerprint", doc.Meta.ContentFingerprint)
		summary.Written++
	}

	fmt.Fprintf(w, "\nFetch summary: %d written, %d failed (total: %d)\n",
		summary.Written, summary.Failed, summary.Total())
	if summary.Truncated {
		fmt.Fprintln(w, "warning: fetch ended early; results may be incomplete")
	}
	return summary, fetchErr
}
