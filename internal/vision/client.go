package vision

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"civid/pkg/domain"
	dErrors "civid/pkg/domain-errors"
	"civid/pkg/platform/circuit"
)

// HTTPClient calls the vision provider over HTTP. A shared circuit breaker
// guards all three endpoints: once the provider misbehaves, submissions stop
// waiting on it and degrade to manual review immediately.
type HTTPClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
	breaker *circuit.Breaker
	logger  *slog.Logger

	// While the breaker is open, one probe request is let through per
	// probeInterval so the circuit can close again after recovery.
	probeInterval time.Duration
	mu            sync.Mutex
	lastProbe     time.Time
}

// ErrCircuitOpen is wrapped into upstream errors while the breaker is open.
var errCircuitOpen = dErrors.New(dErrors.CodeUpstream, "vision service circuit open")

func NewHTTPClient(baseURL, apiKey string, timeout time.Duration, logger *slog.Logger) *HTTPClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPClient{
		baseURL:       baseURL,
		apiKey:        apiKey,
		client:        &http.Client{Timeout: timeout},
		breaker:       circuit.New("vision"),
		logger:        logger,
		probeInterval: 30 * time.Second,
	}
}

type extractRequest struct {
	ImageURL string `json:"image_url"`
}

type compareRequest struct {
	SourceURL string `json:"source_url"`
	TargetURL string `json:"target_url"`
}

type compareResponse struct {
	Confidence float64 `json:"confidence"`
}

type indexRequest struct {
	ImageURL   string `json:"image_url"`
	Collection string `json:"collection"`
}

type indexResponse struct {
	FaceID string `json:"face_id"`
}

func (c *HTTPClient) ExtractFields(ctx context.Context, imageURL string) (*Extraction, error) {
	var out Extraction
	if err := c.post(ctx, "/v1/extract", extractRequest{ImageURL: imageURL}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) CompareFaces(ctx context.Context, documentURL, selfieURL string) (float64, error) {
	var out compareResponse
	if err := c.post(ctx, "/v1/compare", compareRequest{SourceURL: documentURL, TargetURL: selfieURL}, &out); err != nil {
		return 0, err
	}
	if out.Confidence < 0 || out.Confidence > 100 {
		return 0, dErrors.New(dErrors.CodeUpstream, fmt.Sprintf("vision service returned confidence out of range: %v", out.Confidence))
	}
	return out.Confidence, nil
}

func (c *HTTPClient) IndexFace(ctx context.Context, imageURL, collection string) (domain.FaceID, error) {
	var out indexResponse
	if err := c.post(ctx, "/v1/index", indexRequest{ImageURL: imageURL, Collection: collection}, &out); err != nil {
		return "", err
	}
	return domain.FaceID(out.FaceID), nil
}

func (c *HTTPClient) post(ctx context.Context, path string, payload, out any) error {
	if c.breaker.IsOpen() && !c.allowProbe() {
		return errCircuitOpen
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "encode vision request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "build vision request")
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		c.recordFailure(path)
		return dErrors.Wrap(err, dErrors.CodeUpstream, "vision service unreachable")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		// 4xx means our request was bad; only provider-side failures trip
		// the breaker.
		if resp.StatusCode >= 500 {
			c.recordFailure(path)
		}
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return dErrors.New(dErrors.CodeUpstream, fmt.Sprintf("vision service %s returned %d: %s", path, resp.StatusCode, snippet))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		c.recordFailure(path)
		return dErrors.Wrap(err, dErrors.CodeUpstream, "decode vision response")
	}

	if c.breaker.RecordSuccess() && c.logger != nil {
		c.logger.Info("vision service circuit closed")
	}
	return nil
}

// allowProbe lets one request through per probe interval while open.
func (c *HTTPClient) allowProbe() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if time.Since(c.lastProbe) < c.probeInterval {
		return false
	}
	c.lastProbe = time.Now()
	return true
}

func (c *HTTPClient) recordFailure(path string) {
	if opened := c.breaker.RecordFailure(); opened {
		c.mu.Lock()
		c.lastProbe = time.Now()
		c.mu.Unlock()
		if c.logger != nil {
			c.logger.Warn("vision service circuit opened", "path", path)
		}
	}
}
