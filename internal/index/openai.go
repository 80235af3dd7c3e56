// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package index

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"github.com/pdiddy/kbsync/internal/httputil"
	"github.com/pdiddy/kbsync/pkg/types"
)

const uploadPurpose = "assistants"

// OpenAI talks to an OpenAI-compatible files and vector-store API.
type OpenAI struct {
	http *http.Client
	cfg  types.IndexConfig
	log  *slog.Logger
}

// NewOpenAI returns a client for cfg. APIKey and VectorStoreID are required.
func NewOpenAI(httpClient *http.Client, cfg types.IndexConfig, log *slog.Logger) (*OpenAI, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("index API key is not set")
	}
	if strings.TrimSpace(cfg.VectorStoreID) == "" {
		return nil, errors.New("vector store id is not set")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = types.DefaultIndexBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.BatchTimeout <= 0 {
		cfg.BatchTimeout = 10 * time.Minute
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &OpenAI{http: httpClient, cfg: cfg, log: log}, nil
}

func (c *OpenAI) header(contentType string) http.Header {
	h := http.Header{}
	h.Set("Authorization", "Bearer "+c.cfg.APIKey)
	h.Set("OpenAI-Beta", "assistants=v2")
	h.Set("Accept", "application/json")
	if c.cfg.UserAgent != "" {
		h.Set("User-Agent", c.cfg.UserAgent)
	}
	if contentType != "" {
		h.Set("Content-Type", contentType)
	}
	return h
}

func (c *OpenAI) vectorStoreURL(parts ...string) string {
	escaped := make([]string, 0, len(parts)+2)
	escaped = append(escaped, c.cfg.BaseURL, "vector_stores", url.PathEscape(c.cfg.VectorStoreID))
	for _, p := range parts {
		escaped = append(escaped, url.PathEscape(p))
	}
	return strings.Join(escaped, "/")
}

// request builds a RequestFunc that replays body on every attempt.
func (c *OpenAI) request(method, target, contentType string, body []byte) httputil.RequestFunc {
	return func(ctx context.Context) (*http.Request, error) {
		var r io.Reader
		if body != nil {
			r = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, target, r)
		if err != nil {
			return nil, err
		}
		req.Header = c.header(contentType)
		return req, nil
	}
}

// do sends the request and decodes a 2xx JSON response into out.
func (c *OpenAI) do(ctx context.Context, newReq httputil.RequestFunc, out any) error {
	resp, err := httputil.DoWithRetry(ctx, c.http, newReq, c.cfg.MaxRetries)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return statusError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// StatusError is a non-2xx response from the index service.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

func statusError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var apiErr struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	msg := strings.TrimSpace(string(data))
	if json.Unmarshal(data, &apiErr) == nil && apiErr.Error.Message != "" {
		msg = apiErr.Error.Message
	}
	return &StatusError{StatusCode: resp.StatusCode, Message: msg}
}

// Upload posts the document bytes to the files endpoint.
func (c *OpenAI) Upload(ctx context.Context, doc types.Document) (string, error) {
	filename := doc.Filename
	if filename == "" {
		filename = doc.Key + ".md"
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := mw.WriteField("purpose", uploadPurpose); err != nil {
		return "", &UploadError{Key: doc.Key, Err: err}
	}
	part := textproto.MIMEHeader{}
	part.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filename))
	part.Set("Content-Type", "text/markdown")
	w, err := mw.CreatePart(part)
	if err != nil {
		return "", &UploadError{Key: doc.Key, Err: err}
	}
	if _, err := w.Write(doc.Content); err != nil {
		return "", &UploadError{Key: doc.Key, Err: err}
	}
	if err := mw.Close(); err != nil {
		return "", &UploadError{Key: doc.Key, Err: err}
	}

	var out struct {
		ID string `json:"id"`
	}
	newReq := c.request(http.MethodPost, c.cfg.BaseURL+"/files", mw.FormDataContentType(), buf.Bytes())
	if err := c.do(ctx, newReq, &out); err != nil {
		return "", &UploadError{Key: doc.Key, Err: err}
	}
	if out.ID == "" {
		return "", &UploadError{Key: doc.Key, Err: errors.New("response has no file id")}
	}
	c.log.Debug("uploaded file", "key", doc.Key, "file_id", out.ID, "bytes", len(doc.Content))
	return out.ID, nil
}

// Delete detaches a file from the vector store. A 404 means it is already
// gone and counts as success.
func (c *OpenAI) Delete(ctx context.Context, remoteID string) error {
	err := c.do(ctx, c.request(http.MethodDelete, c.vectorStoreURL("files", remoteID), "", nil), nil)
	var se *StatusError
	if errors.As(err, &se) && se.StatusCode == http.StatusNotFound {
		c.log.Debug("file already absent from vector store", "file_id", remoteID)
		return nil
	}
	if err != nil {
		return &DeleteError{RemoteID: remoteID, Err: err}
	}
	return nil
}

type fileBatch struct {
	ID         string `json:"id"`
	Status     string `json:"status"`
	FileCounts struct {
		InProgress int `json:"in_progress"`
		Completed  int `json:"completed"`
		Failed     int `json:"failed"`
		Cancelled  int `json:"cancelled"`
		Total      int `json:"total"`
	} `json:"file_counts"`
}

func (b fileBatch) result() BatchResult {
	return BatchResult{
		ID:         b.ID,
		Status:     b.Status,
		Completed:  b.FileCounts.Completed,
		Failed:     b.FileCounts.Failed,
		InProgress: b.FileCounts.InProgress,
		Cancelled:  b.FileCounts.Cancelled,
		Total:      b.FileCounts.Total,
	}
}

// AttachBatch creates a file batch and polls it until it leaves
// in_progress or BatchTimeout elapses. On timeout the last observed result
// is returned along with the error.
func (c *OpenAI) AttachBatch(ctx context.Context, remoteIDs []string) (BatchResult, error) {
	if len(remoteIDs) == 0 {
		return BatchResult{Status: BatchCompleted}, nil
	}

	body, err := json.Marshal(map[string][]string{"file_ids": remoteIDs})
	if err != nil {
		return BatchResult{}, err
	}

	var batch fileBatch
	if err := c.do(ctx, c.request(http.MethodPost, c.vectorStoreURL("file_batches"), "application/json", body), &batch); err != nil {
		return BatchResult{}, fmt.Errorf("creating file batch: %w", err)
	}
	c.log.Info("file batch created", "batch_id", batch.ID, "files", len(remoteIDs))

	ctx, cancel := context.WithTimeout(ctx, c.cfg.BatchTimeout)
	defer cancel()

	for batch.Status == BatchInProgress {
		select {
		case <-ctx.Done():
			return batch.result(), fmt.Errorf("waiting for file batch %s: %w", batch.ID, ctx.Err())
		case <-time.After(c.cfg.PollInterval):
		}

		var next fileBatch
		if err := c.do(ctx, c.request(http.MethodGet, c.vectorStoreURL("file_batches", batch.ID), "", nil), &next); err != nil {
			return batch.result(), fmt.Errorf("polling file batch %s: %w", batch.ID, err)
		}
		batch = next
		c.log.Debug("file batch status", "batch_id", batch.ID, "status", batch.Status,
			"completed", batch.FileCounts.Completed, "in_progress", batch.FileCounts.InProgress)
	}
	return batch.result(), nil
}
