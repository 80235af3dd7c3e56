// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package render

import (
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// MaxSlugLength bounds generated slugs.
const MaxSlugLength = 100

// asciiFold decomposes accented characters and drops everything outside ASCII,
// so "Café Déjà" becomes "Cafe Deja".
var asciiFold = transform.Chain(
	norm.NFKD,
	runes.Remove(runes.Predicate(func(r rune) bool { return r > unicode.MaxASCII })),
)

// Slugify turns text into a lowercase, filesystem-safe identifier made of
// [a-z0-9] runs joined by single dashes. It returns "" when nothing survives.
func Slugify(text string) string {
	folded, _, err := transform.String(asciiFold, text)
	if err != nil {
		folded = text
	}

	var b strings.Builder
	pendingDash := false
	for _, r := range strings.ToLower(folded) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			if pendingDash && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingDash = false
			b.WriteRune(r)
			continue
		}
		pendingDash = true
	}

	slug := b.String()
	if len(slug) > MaxSlugLength {
		slug = strings.TrimRight(slug[:MaxSlugLength], "-")
	}
	return slug
}

// FallbackSlug is the key used when a title yields no slug or collides with
// another article's slug.
func FallbackSlug(remoteID int64) string {
	return fmt.Sprintf("article-%d", remoteID)
}

// SlugFor returns the slug for a title, or FallbackSlug when the title is empty
// after normalization.
func SlugFor(title string, remoteID int64) string {
	if s := Slugify(title); s != "" {
		return s
	}
	return FallbackSlug(remoteID)
}
