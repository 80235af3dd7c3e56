// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/kbsync/internal/docstore"
	"github.com/pdiddy/kbsync/internal/httputil"
	"github.com/pdiddy/kbsync/internal/logger"
	"github.com/pdiddy/kbsync/internal/materialize"
	"github.com/pdiddy/kbsync/internal/secrets"
	"github.com/pdiddy/kbsync/internal/state"
	"github.com/pdiddy/kbsync/pkg/types"
)

func init() {
	httputil.RetryBaseDelay = time.Millisecond
}

func TestLoadConfigPrecedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kbsync.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
helpcenter:
  base_url: https://support.example.com
  max_documents: 50
  timeout: 30s
index:
  vector_store_id: vs_from_file
sync:
  workers: 2
`), 0o644))

	v := viper.New()
	v.SetConfigFile(path)
	setupEnv(v)
	require.NoError(t, v.ReadInConfig())
	t.Setenv("KBSYNC_INDEX_VECTOR_STORE_ID", "vs_from_env")
	t.Setenv("KBSYNC_STATE_DSN", "sqlite://state.db")

	cmd := &cobra.Command{Use: "test"}
	cmd.Flags().Int("workers", 0, "")
	bindFlag(cmd, false, "workers", "sync.workers")
	require.NoError(t, cmd.Flags().Set("workers", "4"))

	cfg, err := loadConfig(v, cmd)
	require.NoError(t, err)

	assert.Equal(t, "https://support.example.com", cfg.HelpCenter.BaseURL)
	assert.Equal(t, 50, cfg.HelpCenter.MaxDocuments)
	assert.Equal(t, 30*time.Second, cfg.HelpCenter.Timeout)
	assert.Equal(t, "vs_from_env", cfg.Index.VectorStoreID, "env beats file")
	assert.Equal(t, "sqlite://state.db", cfg.State.DSN)
	assert.Equal(t, 4, cfg.Sync.Workers, "flag beats file")

	// Defaults fill the rest.
	assert.Equal(t, types.DefaultMaxPages, cfg.HelpCenter.MaxPages)
	assert.Equal(t, types.DocumentsFile, cfg.Documents.Backend)
	assert.Equal(t, types.DefaultIndexBaseURL, cfg.Index.BaseURL)
}

func TestApplySecrets(t *testing.T) {
	cfg := types.Config{Index: types.IndexConfig{VectorStoreID: "vs_explicit"}}
	s := secrets.Secrets{
		secrets.OpenAIAPIKey:        "sk-file",
		secrets.OpenAIVectorStoreID: "vs_file",
		secrets.HelpCenterAPIToken:  "tok",
	}
	got := applySecrets(cfg, s)
	assert.Equal(t, "sk-file", got.Index.APIKey)
	assert.Equal(t, "vs_explicit", got.Index.VectorStoreID)
	assert.Equal(t, "tok", got.HelpCenter.APIToken)
	assert.Empty(t, got.HelpCenter.Email)
}

// helpCenter serves a single page of articles whose bodies can be changed.
type helpCenter struct {
	mu       sync.Mutex
	articles []types.Article
	fail     bool
}

func (h *helpCenter) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.fail {
		w.WriteHeader(http.StatusBadGateway)
		return
	}
	json.NewEncoder(w).Encode(map[string]any{"articles": h.articles, "next_page": nil})
}

// vectorStore counts uploads, deletes, and batches.
type vectorStore struct {
	mu      sync.Mutex
	uploads int
	deletes int
	batches int
}

func (v *vectorStore) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	v.mu.Lock()
	defer v.mu.Unlock()
	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/files":
		io.Copy(io.Discard, r.Body)
		v.uploads++
		fmt.Fprintf(w, `{"id":"file-%d"}`, v.uploads)
	case r.Method == http.MethodDelete:
		v.deletes++
		fmt.Fprint(w, `{"deleted":true}`)
	case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/file_batches"):
		v.batches++
		fmt.Fprint(w, `{"id":"vsfb_1","status":"completed","file_counts":{"completed":1,"total":1}}`)
	default:
		http.NotFound(w, r)
	}
}

func testConfig(t *testing.T, hcURL, indexURL string) types.Config {
	t.Helper()
	dir := t.TempDir()
	return types.Config{
		HelpCenter: types.HelpCenterConfig{BaseURL: hcURL},
		Documents:  types.DocumentsConfig{Dir: filepath.Join(dir, "articles")},
		State:      types.StateConfig{DSN: filepath.Join(dir, "kb_state.json")},
		Index: types.IndexConfig{
			BaseURL:       indexURL,
			APIKey:        "sk-test",
			VectorStoreID: "vs_1",
			PollInterval:  time.Millisecond,
		},
	}.WithDefaults()
}

func TestSyncOnceEndToEnd(t *testing.T) {
	hc := &helpCenter{articles: []types.Article{
		{ID: 1, Title: "Getting Started", Body: "<p>Welcome</p>", HTMLURL: "https://support.example.com/a/1", UpdatedAt: "2024-01-01T00:00:00Z"},
		{ID: 2, Title: "Billing", Body: "<p>Invoices</p>", HTMLURL: "https://support.example.com/a/2", UpdatedAt: "2024-01-01T00:00:00Z"},
		{ID: 3, Title: "Draft", Body: "<p>wip</p>", Draft: true},
	}}
	hcSrv := httptest.NewServer(hc)
	defer hcSrv.Close()
	vs := &vectorStore{}
	vsSrv := httptest.NewServer(vs)
	defer vsSrv.Close()

	cfg := testConfig(t, hcSrv.URL, vsSrv.URL)
	ctx := context.Background()
	quiet := logger.Discard()

	var out bytes.Buffer
	require.NoError(t, syncOnce(ctx, cfg, quiet, &out))
	assert.Equal(t, 2, vs.uploads)
	assert.Equal(t, 1, vs.batches)
	assert.Contains(t, out.String(), "Sync summary: 2 added, 0 updated, 0 skipped, 0 failed (total: 2)")

	// Unchanged source: nothing is uploaded.
	out.Reset()
	require.NoError(t, syncOnce(ctx, cfg, quiet, &out))
	assert.Equal(t, 2, vs.uploads)
	assert.Equal(t, 0, vs.deletes)
	assert.Equal(t, 1, vs.batches)
	assert.Contains(t, out.String(), "0 added, 0 updated, 2 skipped")

	// One article changes: one delete and one upload.
	hc.mu.Lock()
	hc.articles[1].Body = "<p>Invoices and receipts</p>"
	hc.articles[1].UpdatedAt = "2024-02-01T00:00:00Z"
	hc.mu.Unlock()
	out.Reset()
	require.NoError(t, syncOnce(ctx, cfg, quiet, &out))
	assert.Equal(t, 3, vs.uploads)
	assert.Equal(t, 1, vs.deletes)
	assert.Contains(t, out.String(), "0 added, 1 updated, 1 skipped")

	backend, err := state.Open(cfg.State.DSN)
	require.NoError(t, err)
	snap, err := backend.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"billing", "getting-started"}, snap.Keys())
	assert.Equal(t, "file-3", snap["billing"].RemoteIndexID)
}

func TestSyncOnceUnreachableSource(t *testing.T) {
	hcSrv := httptest.NewServer(&helpCenter{fail: true})
	defer hcSrv.Close()
	vs := &vectorStore{}
	vsSrv := httptest.NewServer(vs)
	defer vsSrv.Close()

	cfg := testConfig(t, hcSrv.URL, vsSrv.URL)
	err := syncOnce(context.Background(), cfg, logger.Discard(), io.Discard)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "content source unreachable")
	assert.Equal(t, 0, vs.uploads)

	_, statErr := os.Stat(cfg.State.DSN)
	assert.True(t, os.IsNotExist(statErr), "state is not written when the source is unreachable")
}

func TestSyncOnceMissingCredentials(t *testing.T) {
	cfg := testConfig(t, "http://unused.invalid", "http://unused.invalid")
	cfg.Index.APIKey = ""
	err := syncOnce(context.Background(), cfg, logger.Discard(), io.Discard)
	assert.ErrorContains(t, err, "API key")
}

func TestDryRunSyncLeavesStateAlone(t *testing.T) {
	hcSrv := httptest.NewServer(&helpCenter{articles: []types.Article{
		{ID: 1, Title: "One", Body: "<p>1</p>"},
	}})
	defer hcSrv.Close()

	cfg := testConfig(t, hcSrv.URL, "http://unused.invalid")
	cfg.Sync.DryRun = true
	cfg.Index.APIKey = ""

	var out bytes.Buffer
	require.NoError(t, syncOnce(context.Background(), cfg, logger.Discard(), &out))
	assert.Contains(t, out.String(), "1 added")
	_, err := os.Stat(cfg.State.DSN)
	assert.True(t, os.IsNotExist(err))
}

func TestBuildStatus(t *testing.T) {
	cfg := testConfig(t, "", "")
	ctx := context.Background()
	store, err := docstore.Open(cfg.Documents)
	require.NoError(t, err)
	defer store.Close()

	put := func(key, body, title string) {
		require.NoError(t, store.Put(ctx, types.Document{Key: key, Content: []byte(body), Meta: types.DocumentMeta{Title: title}}))
	}
	put("same", "s", "Same")
	put("changed", "new", "変更された記事")
	put("fresh", "f", "Fresh")

	backend, err := state.Open(cfg.State.DSN)
	require.NoError(t, err)
	synced := time.Date(2024, 1, 2, 3, 4, 0, 0, time.UTC)
	require.NoError(t, backend.Save(ctx, state.Snapshot{
		"same":    {RemoteIndexID: "file-1", ContentFingerprint: fingerprintOf("s"), LastSyncedAt: synced},
		"changed": {RemoteIndexID: "file-2", ContentFingerprint: fingerprintOf("old"), LastSyncedAt: synced},
		"gone":    {RemoteIndexID: "file-3", ContentFingerprint: "x", LastSyncedAt: synced},
	}))

	rows, err := buildStatus(ctx, cfg, store)
	require.NoError(t, err)

	got := map[string]string{}
	for _, r := range rows {
		got[r.Key] = r.Status
	}
	assert.Equal(t, map[string]string{"same": "synced", "changed": "changed", "fresh": "new", "gone": "stale"}, got)

	var out bytes.Buffer
	require.NoError(t, formatStatus(&out, rows, false))
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	assert.True(t, strings.HasPrefix(lines[0], "KEY"))
	assert.Contains(t, out.String(), "1 new, 1 changed, 1 synced, 1 stale (total: 4)")

	// Columns line up: STATUS starts at the same display column on every row.
	col := strings.Index(lines[0], "STATUS")
	for _, line := range lines[2:6] {
		assert.Equal(t, " ", string(line[col-1]), line)
	}

	out.Reset()
	require.NoError(t, formatStatus(&out, rows, true))
	var decoded []statusRow
	require.NoError(t, json.Unmarshal(out.Bytes(), &decoded))
	assert.Len(t, decoded, 4)
}

func fingerprintOf(s string) string {
	return materialize.Fingerprint([]byte(s))
}

func TestRelevantEvent(t *testing.T) {
	tests := []struct {
		ev   fsnotify.Event
		want bool
	}{
		{fsnotify.Event{Name: "articles/faq.md", Op: fsnotify.Write}, true},
		{fsnotify.Event{Name: "articles/faq.meta.yaml", Op: fsnotify.Create}, true},
		{fsnotify.Event{Name: "articles/faq.md", Op: fsnotify.Remove}, true},
		{fsnotify.Event{Name: "articles/.faq.md.tmp-123", Op: fsnotify.Create}, false},
		{fsnotify.Event{Name: "articles/notes.txt", Op: fsnotify.Write}, false},
		{fsnotify.Event{Name: "articles/faq.md", Op: fsnotify.Chmod}, false},
	}
	for _, tt := range tests {
		t.Run(tt.ev.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, relevantEvent(tt.ev))
		})
	}
}

func TestWatchLoopDebounces(t *testing.T) {
	events := make(chan fsnotify.Event)
	errs := make(chan error)
	changes := make(chan struct{}, 10)

	w := &watchLoop{
		debounce: 20 * time.Millisecond,
		onChange: func() error { changes <- struct{}{}; return nil },
		onTick:   func() error { return nil },
		log:      logger.Discard(),
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() { done <- w.run(ctx, events, errs) }()

	for range 5 {
		events <- fsnotify.Event{Name: "articles/a.md", Op: fsnotify.Write}
	}
	errs <- fmt.Errorf("overflow")

	select {
	case <-changes:
	case <-time.After(2 * time.Second):
		t.Fatal("reconcile was not triggered")
	}
	select {
	case <-changes:
		t.Fatal("burst of events should trigger a single reconcile")
	case <-time.After(100 * time.Millisecond):
	}

	cancel()
	require.NoError(t, <-done)
}

func TestWatchLoopRunsScheduledSync(t *testing.T) {
	ticks := make(chan struct{}, 10)
	w := &watchLoop{
		debounce:  time.Millisecond,
		interval:  10 * time.Millisecond,
		onChange:  func() error { return nil },
		onTick:    func() error { ticks <- struct{}{}; return fmt.Errorf("source down") },
		log:       logger.Discard(),
		immediate: true,
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() { done <- w.run(ctx, nil, nil) }()

	for range 3 {
		select {
		case <-ticks:
		case <-time.After(2 * time.Second):
			t.Fatal("scheduled sync did not run")
		}
	}
	cancel()
	require.NoError(t, <-done, "sync errors do not stop the loop")
}

func TestWriteVersion(t *testing.T) {
	var out bytes.Buffer
	writeVersion(&out, "v1.2.0", &debug.BuildInfo{Settings: []debug.BuildSetting{
		{Key: "vcs.revision", Value: "abc123"},
		{Key: "vcs.modified", Value: "true"},
	}})
	assert.Contains(t, out.String(), "kbsync v1.2.0\n")
	assert.Contains(t, out.String(), "go:     go")
	assert.Contains(t, out.String(), "commit: abc123 (modified)")

	out.Reset()
	writeVersion(&out, "dev", nil)
	assert.NotContains(t, out.String(), "commit:")
}
