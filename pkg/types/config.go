// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// HTTPConfig holds shared HTTP settings used by clients that make network requests.
type HTTPConfig struct {
	// Timeout is the per-request HTTP timeout.
	Timeout time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout"`

	// UserAgent is the User-Agent header sent with HTTP requests (e.g. "kbsync/0.1").
	UserAgent string `json:"user_agent" yaml:"user_agent" mapstructure:"user_agent"`
}

// HelpCenterConfig holds settings for the content fetcher.
type HelpCenterConfig struct {
	HTTPConfig `yaml:",inline" mapstructure:",squash"`

	// BaseURL is the help center root, e.g. "https://support.example.com".
	BaseURL string `json:"base_url" yaml:"base_url" mapstructure:"base_url"`

	// Locale selects the article locale (default "en-us").
	Locale string `json:"locale" yaml:"locale" mapstructure:"locale"`

	// MaxDocuments caps the number of articles yielded per fetch (default 30).
	MaxDocuments int `json:"max_documents" yaml:"max_documents" mapstructure:"max_documents"`

	// MaxPages caps the number of listing pages requested (default 10).
	MaxPages int `json:"max_pages" yaml:"max_pages" mapstructure:"max_pages"`

	// PerPage is the page size requested from the listing endpoint (default 100).
	PerPage int `json:"per_page" yaml:"per_page" mapstructure:"per_page"`

	// Email and APIToken enable basic auth for private help centers. Optional.
	Email    string `json:"email,omitempty" yaml:"email,omitempty" mapstructure:"email"`
	APIToken string `json:"-" yaml:"-" mapstructure:"api_token"`
}

// DocumentBackend identifies where materialized documents are persisted.
type DocumentBackend string

const (
	DocumentsFile DocumentBackend = "file"
	DocumentsBolt DocumentBackend = "bolt"
)

// DocumentsConfig holds settings for the persisted document store.
type DocumentsConfig struct {
	// Backend selects the store: file (markdown + YAML sidecar per key) or bolt.
	Backend DocumentBackend `json:"backend" yaml:"backend" mapstructure:"backend"`

	// Dir is the directory for the file backend (default "articles").
	Dir string `json:"dir" yaml:"dir" mapstructure:"dir"`

	// BoltPath is the database file for the bolt backend (default "articles.db").
	BoltPath string `json:"bolt_path" yaml:"bolt_path" mapstructure:"bolt_path"`
}

// StateConfig holds settings for the sync state store.
type StateConfig struct {
	// DSN selects the backend: a bare path or file:// (JSON), sqlite://,
	// postgres://, or memory://. Default "kb_state.json".
	DSN string `json:"dsn" yaml:"dsn" mapstructure:"dsn"`
}

// IndexConfig holds settings for the external vector-store index.
type IndexConfig struct {
	HTTPConfig `yaml:",inline" mapstructure:",squash"`

	// BaseURL is the API root (default "https://api.openai.com/v1").
	BaseURL string `json:"base_url" yaml:"base_url" mapstructure:"base_url"`

	// APIKey authenticates index requests.
	APIKey string `json:"-" yaml:"-" mapstructure:"api_key"`

	// VectorStoreID is the target vector store.
	VectorStoreID string `json:"vector_store_id" yaml:"vector_store_id" mapstructure:"vector_store_id"`

	// PollInterval is the delay between batch status polls (default 2s).
	PollInterval time.Duration `json:"poll_interval" yaml:"poll_interval" mapstructure:"poll_interval"`

	// BatchTimeout bounds how long a batch attach is polled (default 10m).
	BatchTimeout time.Duration `json:"batch_timeout" yaml:"batch_timeout" mapstructure:"batch_timeout"`

	// MaxRetries is the number of retries for rate-limited calls (default 5).
	MaxRetries int `json:"max_retries" yaml:"max_retries" mapstructure:"max_retries"`
}

// SyncConfig holds settings for the reconciliation pass.
type SyncConfig struct {
	// Workers bounds concurrent per-document index calls (default 1, sequential).
	Workers int `json:"workers" yaml:"workers" mapstructure:"workers"`

	// Prune removes state entries, and their index files, for documents that
	// no longer exist locally. Off by default.
	Prune bool `json:"prune" yaml:"prune" mapstructure:"prune"`

	// DryRun replaces the index client with one that performs no network calls
	// and leaves the state untouched.
	DryRun bool `json:"dry_run" yaml:"dry_run" mapstructure:"dry_run"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	// Level is one of debug, info, warn, error (default info).
	Level string `json:"level" yaml:"level" mapstructure:"level"`

	// Format is text or json (default text).
	Format string `json:"format" yaml:"format" mapstructure:"format"`

	// File, when set, receives a copy of every log record.
	File string `json:"file,omitempty" yaml:"file,omitempty" mapstructure:"file"`
}

// Config groups all settings. It is built once at startup and threaded
// through constructors.
type Config struct {
	HelpCenter HelpCenterConfig `json:"helpcenter" yaml:"helpcenter" mapstructure:"helpcenter"`
	Documents  DocumentsConfig  `json:"documents" yaml:"documents" mapstructure:"documents"`
	State      StateConfig      `json:"state" yaml:"state" mapstructure:"state"`
	Index      IndexConfig      `json:"index" yaml:"index" mapstructure:"index"`
	Sync       SyncConfig       `json:"sync" yaml:"sync" mapstructure:"sync"`
	Log        LogConfig        `json:"log" yaml:"log" mapstructure:"log"`
}

const (
	DefaultUserAgent    = "kbsync/0.1"
	DefaultLocale       = "en-us"
	DefaultMaxDocuments = 30
	DefaultMaxPages     = 10
	DefaultPerPage      = 100
	DefaultDocumentsDir = "articles"
	DefaultBoltPath     = "articles.db"
	DefaultStateDSN     = "kb_state.json"
	DefaultIndexBaseURL = "https://api.openai.com/v1"
)

// WithDefaults returns a copy of c with zero values replaced by defaults.
func (c Config) WithDefaults() Config {
	hc := &c.HelpCenter
	if hc.Timeout <= 0 {
		hc.Timeout = 15 * time.Second
	}
	if hc.UserAgent == "" {
		hc.UserAgent = DefaultUserAgent
	}
	if hc.Locale == "" {
		hc.Locale = DefaultLocale
	}
	if hc.MaxDocuments <= 0 {
		hc.MaxDocuments = DefaultMaxDocuments
	}
	if hc.MaxPages <= 0 {
		hc.MaxPages = DefaultMaxPages
	}
	if hc.PerPage <= 0 {
		hc.PerPage = DefaultPerPage
	}

	if c.Documents.Backend == "" {
		c.Documents.Backend = DocumentsFile
	}
	if c.Documents.Dir == "" {
		c.Documents.Dir = DefaultDocumentsDir
	}
	if c.Documents.BoltPath == "" {
		c.Documents.BoltPath = DefaultBoltPath
	}

	if c.State.DSN == "" {
		c.State.DSN = DefaultStateDSN
	}

	ix := &c.Index
	if ix.Timeout <= 0 {
		ix.Timeout = 60 * time.Second
	}
	if ix.UserAgent == "" {
		ix.UserAgent = DefaultUserAgent
	}
	if ix.BaseURL == "" {
		ix.BaseURL = DefaultIndexBaseURL
	}
	if ix.PollInterval <= 0 {
		ix.PollInterval = 2 * time.Second
	}
	if ix.BatchTimeout <= 0 {
		ix.BatchTimeout = 10 * time.Minute
	}
	if ix.MaxRetries <= 0 {
		ix.MaxRetries = 5
	}

	if c.Sync.Workers <= 0 {
		c.Sync.Workers = 1
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
	return c
}
