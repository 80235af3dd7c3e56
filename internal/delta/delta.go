// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package delta reconciles persisted documents against the sync state and
// drives the index through the resulting adds, replacements, and no-ops.
package delta

import (
	"sort"

	"github.com/pdiddy/kbsync/internal/materialize"
	"github.com/pdiddy/kbsync/internal/state"
	"github.com/pdiddy/kbsync/pkg/types"
)

// Kind classifies one document against the prior sync state.
type Kind int

const (
	// Skipped documents match their recorded fingerprint.
	Skipped Kind = iota
	// Added documents have no state entry.
	Added
	// Updated documents have an entry with a different fingerprint.
	Updated
)

func (k Kind) String() string {
	switch k {
	case Added:
		return "added"
	case Updated:
		return "updated"
	default:
		return "skipped"
	}
}

// FingerprintFunc computes a document's content fingerprint.
type FingerprintFunc func(types.Document) string

// ContentFingerprint hashes the persisted bytes. Unreadable documents hash
// as empty content.
func ContentFingerprint(doc types.Document) string {
	return materialize.Fingerprint(doc.Content)
}

// Action is the decision for one document.
type Action struct {
	Doc         types.Document
	Kind        Kind
	Fingerprint string

	// Prior is the existing state entry; only meaningful when Kind is
	// Updated or Skipped.
	Prior types.SyncEntry
}

// Classify decides, for each document, whether it is new, changed, or
// unchanged. Every document lands in exactly one class. Actions are
// returned in key order.
func Classify(docs []types.Document, snap state.Snapshot, fp FingerprintFunc) []Action {
	if fp == nil {
		fp = ContentFingerprint
	}
	sorted := make([]types.Document, len(docs))
	copy(sorted, docs)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Key < sorted[j].Key })

	actions := make([]Action, 0, len(sorted))
	for _, doc := range sorted {
		a := Action{Doc: doc, Fingerprint: fp(doc)}
		prior, ok := snap[doc.Key]
		switch {
		case !ok:
			a.Kind = Added
		case prior.ContentFingerprint == a.Fingerprint:
			a.Kind = Skipped
			a.Prior = prior
		default:
			a.Kind = Updated
			a.Prior = prior
		}
		actions = append(actions, a)
	}
	return actions
}

// Stale returns the state keys with no matching document, sorted.
func Stale(docs []types.Document, snap state.Snapshot) []string {
	present := make(map[string]bool, len(docs))
	for _, d := range docs {
		present[d.Key] = true
	}
	var stale []string
	for _, k := range snap.Keys() {
		if !present[k] {
			stale = append(stale, k)
		}
	}
	return stale
}
