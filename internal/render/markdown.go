// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package render holds the pure text transforms used during materialization:
// HTML-to-markdown conversion and slug generation.
package render

import (
	"fmt"
	"net/url"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
)

// Renderer converts an article's HTML body to markdown.
type Renderer interface {
	Render(html string) (string, error)
}

// Markdown renders help center HTML as ATX-heading, dash-bullet markdown.
// Relative links are resolved against the help center host.
type Markdown struct {
	conv *md.Converter
}

// NewMarkdown returns a renderer. baseURL may be empty; when set, its host is
// used to absolutize relative links and images.
func NewMarkdown(baseURL string) *Markdown {
	domain := ""
	if u, err := url.Parse(baseURL); err == nil && u.Host != "" {
		domain = u.Host
	}
	conv := md.NewConverter(domain, true, &md.Options{
		HeadingStyle:     "atx",
		BulletListMarker: "-",
		CodeBlockStyle:   "fenced",
	})
	return &Markdown{conv: conv}
}

// Render strips scripts, styles, and article-body wrappers, then converts
// the remaining HTML. Empty input renders as "".
func (m *Markdown) Render(html string) (string, error) {
	if strings.TrimSpace(html) == "" {
		return "", nil
	}

	cleaned, err := clean(html)
	if err != nil {
		return "", err
	}

	out, err := m.conv.ConvertString(cleaned)
	if err != nil {
		return "", fmt.Errorf("converting HTML to markdown: %w", err)
	}
	return strings.TrimSpace(out), nil
}

// clean removes markup that should never reach the index.
func clean(html string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", fmt.Errorf("parsing HTML: %w", err)
	}

	doc.Find("script, style, noscript").Remove()
	doc.Find("div.article-body").Each(func(_ int, s *goquery.Selection) {
		s.Contents().Unwrap()
	})

	body, err := doc.Find("body").Html()
	if err != nil {
		return "", fmt.Errorf("serializing cleaned HTML: %w", err)
	}
	return body, nil
}
