// Package wsinfer implements a modeladapter.Adapter that submits batches to
// a remote inference gateway over a single persistent WebSocket connection,
// correlating responses to requests by batch id.
package wsinfer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/streamxcribe/pipeline/pkg/modeladapter"
)

const defaultDialTimeout = 10 * time.Second

// Option configures an Adapter.
type Option func(*Adapter)

// WithAPIKey sets a bearer token sent as an Authorization header on dial.
func WithAPIKey(key string) Option {
	return func(a *Adapter) { a.apiKey = key }
}

// Adapter implements modeladapter.Adapter over a single long-lived WebSocket
// connection to a remote inference gateway. Requests are correlated to
// responses by batch id so a single connection can multiplex overlapping
// TranscribeBatch calls from concurrent executor workers.
type Adapter struct {
	endpoint string
	apiKey   string

	mu      sync.Mutex
	conn    *websocket.Conn
	pending map[string]chan batchResponse

	nextReqID uint64
}

// request is the wire shape sent for one TranscribeBatch call.
type request struct {
	RequestID string   `json:"request_id"`
	Paths     []string `json:"paths"`
}

// batchResponse is the wire shape of one response frame, carrying every
// item's result for the correlated request.
type batchResponse struct {
	RequestID string         `json:"request_id"`
	Items     []itemResponse `json:"items"`
	Error     string         `json:"error,omitempty"`
}

type itemResponse struct {
	Success         bool    `json:"success"`
	Text            string  `json:"text"`
	Confidence      float64 `json:"confidence"`
	ProcessingTimeS float64 `json:"processing_time_s"`
	Error           string  `json:"error,omitempty"`
}

// New dials endpoint (e.g. "wss://inference.example.com/v1/batch") and
// starts the adapter's read loop.
func New(ctx context.Context, endpoint string, opts ...Option) (*Adapter, error) {
	if endpoint == "" {
		return nil, errors.New("wsinfer: endpoint must not be empty")
	}
	a := &Adapter{
		endpoint: endpoint,
		pending:  make(map[string]chan batchResponse),
	}
	for _, o := range opts {
		o(a)
	}

	dialCtx, cancel := context.WithTimeout(ctx, defaultDialTimeout)
	defer cancel()

	headers := http.Header{}
	if a.apiKey != "" {
		headers.Set("Authorization", "Bearer "+a.apiKey)
	}

	conn, _, err := websocket.Dial(dialCtx, endpoint, &websocket.DialOptions{HTTPHeader: headers})
	if err != nil {
		return nil, fmt.Errorf("wsinfer: dial: %w", err)
	}
	a.conn = conn

	go a.readLoop()
	return a, nil
}

// Close terminates the underlying connection.
func (a *Adapter) Close() error {
	return a.conn.Close(websocket.StatusNormalClosure, "adapter closed")
}

// IsReady reports whether the connection is still open by checking for a
// prior readLoop exit; since coder/websocket has no direct "connected"
// probe, a lightweight ping is used instead.
func (a *Adapter) IsReady(ctx context.Context) bool {
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return a.conn.Ping(pingCtx) == nil
}

// TranscribeBatch sends one request frame containing every path and waits
// for the correlated response frame, translating wire items into the tagged
// ItemResult variant.
func (a *Adapter) TranscribeBatch(ctx context.Context, paths []string) ([]modeladapter.ItemResult, error) {
	reqID := a.allocateRequestID()
	ch := make(chan batchResponse, 1)

	a.mu.Lock()
	a.pending[reqID] = ch
	a.mu.Unlock()
	defer func() {
		a.mu.Lock()
		delete(a.pending, reqID)
		a.mu.Unlock()
	}()

	payload, err := json.Marshal(request{RequestID: reqID, Paths: paths})
	if err != nil {
		return nil, fmt.Errorf("wsinfer: encode request: %w", err)
	}

	if err := a.conn.Write(ctx, websocket.MessageText, payload); err != nil {
		return nil, fmt.Errorf("wsinfer: write request: %w", err)
	}

	select {
	case resp := <-ch:
		if resp.Error != "" {
			return nil, fmt.Errorf("wsinfer: gateway error: %s", resp.Error)
		}
		if len(resp.Items) != len(paths) {
			return nil, fmt.Errorf("wsinfer: response item count %d does not match request %d", len(resp.Items), len(paths))
		}
		return toItemResults(resp.Items), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func toItemResults(items []itemResponse) []modeladapter.ItemResult {
	out := make([]modeladapter.ItemResult, len(items))
	for i, item := range items {
		if item.Success {
			out[i] = modeladapter.NewSuccess(item.Text, item.Confidence, item.ProcessingTimeS)
		} else {
			out[i] = modeladapter.NewFailure(errors.New(item.Error))
		}
	}
	return out
}

func (a *Adapter) allocateRequestID() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.nextReqID++
	return fmt.Sprintf("req-%d", a.nextReqID)
}

// readLoop receives response frames from the gateway and routes each one to
// the pending TranscribeBatch call waiting on its request id.
func (a *Adapter) readLoop() {
	ctx := context.Background()
	for {
		_, msg, err := a.conn.Read(ctx)
		if err != nil {
			a.failAllPending(err)
			return
		}

		var resp batchResponse
		if err := json.Unmarshal(msg, &resp); err != nil {
			continue
		}

		a.mu.Lock()
		ch, ok := a.pending[resp.RequestID]
		a.mu.Unlock()
		if !ok {
			continue
		}

		select {
		case ch <- resp:
		default:
		}
	}
}

// failAllPending unblocks every in-flight TranscribeBatch call with an error
// response once the connection drops.
func (a *Adapter) failAllPending(err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for id, ch := range a.pending {
		select {
		case ch <- batchResponse{RequestID: id, Error: fmt.Sprintf("connection closed: %v", err)}:
		default:
		}
	}
}
