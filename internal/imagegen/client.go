// Package imagegen talks to the upstream text-to-image API.
//
// Client performs exactly one prediction call per Generate and classifies the
// result into an Outcome. Retrier wraps a Generator with credential rotation
// and bounded back-off; see retry.go.
package imagegen

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/tbourn/go-genart-backend/internal/keypool"
)

// Status classifies a single generation attempt.
type Status int

const (
	StatusFailed Status = iota
	StatusSuccess
	StatusEmpty
	StatusRateLimited
	StatusUnavailable
)

// String returns the metric/log label for s.
func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusEmpty:
		return "empty"
	case StatusRateLimited:
		return "rate_limited"
	case StatusUnavailable:
		return "unavailable"
	default:
		return "failed"
	}
}

// Outcome is the result of one attempt. Image is set only for StatusSuccess;
// Err carries the reason for StatusFailed.
type Outcome struct {
	Status Status
	Image  []byte
	Err    error
}

// Generator performs a single generation attempt with the given credential.
type Generator interface {
	Generate(ctx context.Context, prompt string, cred keypool.Credential) Outcome
}

// Options configures Client.
type Options struct {
	BaseURL          string
	Model            string
	SampleCount      int
	PersonGeneration string
	AspectRatio      string
	HTTPClient       *http.Client
	RequestTimeout   time.Duration
	// RPS paces outbound calls across all requests. Zero disables pacing.
	RPS    float64
	Logger *zerolog.Logger
}

// Client calls the `{BaseURL}/models/{Model}:predict` endpoint.
type Client struct {
	baseURL          string
	model            string
	sampleCount      int
	personGeneration string
	aspectRatio      string
	httpClient       *http.Client
	limiter          *rate.Limiter
	logger           *zerolog.Logger
}

type predictRequest struct {
	Instances  []predictInstance `json:"instances"`
	Parameters predictParams     `json:"parameters"`
}

type predictInstance struct {
	Prompt string `json:"prompt"`
}

type predictParams struct {
	SampleCount      int    `json:"sampleCount"`
	PersonGeneration string `json:"personGeneration,omitempty"`
	AspectRatio      string `json:"aspectRatio,omitempty"`
}

type predictResponse struct {
	Predictions []struct {
		BytesBase64Encoded string `json:"bytesBase64Encoded"`
		MimeType           string `json:"mimeType"`
	} `json:"predictions"`
}

// NewClient constructs a Client with defaults for unset options.
func NewClient(opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.RequestTimeout
		if timeout <= 0 {
			timeout = 60 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = "https://generativelanguage.googleapis.com/v1beta"
	}
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = "imagen-3.0-generate-002"
	}
	sampleCount := opts.SampleCount
	if sampleCount <= 0 {
		sampleCount = 1
	}
	limit := rate.Inf
	burst := 1
	if opts.RPS > 0 {
		limit = rate.Limit(opts.RPS)
		burst = max(1, int(opts.RPS))
	}
	logger := opts.Logger
	if logger == nil {
		l := zerolog.Nop()
		logger = &l
	}
	return &Client{
		baseURL:          baseURL,
		model:            model,
		sampleCount:      sampleCount,
		personGeneration: strings.TrimSpace(opts.PersonGeneration),
		aspectRatio:      strings.TrimSpace(opts.AspectRatio),
		httpClient:       httpClient,
		limiter:          rate.NewLimiter(limit, burst),
		logger:           logger,
	}
}

// Model returns the configured model identifier.
func (c *Client) Model() string { return c.model }

// Generate issues one prediction request and classifies the response.
func (c *Client) Generate(ctx context.Context, prompt string, cred keypool.Credential) Outcome {
	if err := c.limiter.Wait(ctx); err != nil {
		return Outcome{Status: StatusFailed, Err: fmt.Errorf("imagegen: pacing: %w", err)}
	}

	body, err := json.Marshal(predictRequest{
		Instances: []predictInstance{{Prompt: prompt}},
		Parameters: predictParams{
			SampleCount:      c.sampleCount,
			PersonGeneration: c.personGeneration,
			AspectRatio:      c.aspectRatio,
		},
	})
	if err != nil {
		return Outcome{Status: StatusFailed, Err: fmt.Errorf("imagegen: encode request: %w", err)}
	}

	endpoint := fmt.Sprintf("%s/models/%s:predict?key=%s", c.baseURL, url.PathEscape(c.model), url.QueryEscape(cred.Secret))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return Outcome{Status: StatusFailed, Err: errors.New("imagegen: build request failed")}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Outcome{Status: StatusFailed, Err: fmt.Errorf("imagegen: request: %w", scrubURLError(err))}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		_, _ = io.Copy(io.Discard, resp.Body)
		return Outcome{Status: StatusRateLimited}
	case resp.StatusCode == http.StatusServiceUnavailable:
		_, _ = io.Copy(io.Discard, resp.Body)
		return Outcome{Status: StatusUnavailable}
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		c.logger.Debug().
			Int("status", resp.StatusCode).
			Str("credential", cred.Name).
			Str("body", strings.TrimSpace(string(snippet))).
			Msg("imagegen upstream error")
		return Outcome{Status: StatusFailed, Err: fmt.Errorf("imagegen: upstream status %d", resp.StatusCode)}
	}

	// A 2xx body without usable image data is Empty; Err keeps the cause for logs.
	var out predictResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Outcome{Status: StatusEmpty, Err: fmt.Errorf("imagegen: decode response: %w", err)}
	}
	if len(out.Predictions) == 0 || out.Predictions[0].BytesBase64Encoded == "" {
		return Outcome{Status: StatusEmpty}
	}
	img, err := base64.StdEncoding.DecodeString(out.Predictions[0].BytesBase64Encoded)
	if err != nil {
		return Outcome{Status: StatusEmpty, Err: fmt.Errorf("imagegen: decode image: %w", err)}
	}
	if len(img) == 0 {
		return Outcome{Status: StatusEmpty}
	}
	return Outcome{Status: StatusSuccess, Image: img}
}

// scrubURLError drops the query string (which carries the API key) from
// transport errors.
func scrubURLError(err error) error {
	var ue *url.Error
	if !errors.As(err, &ue) {
		return err
	}
	u := ue.URL
	if i := strings.IndexByte(u, '?'); i >= 0 {
		u = u[:i]
	}
	return &url.Error{Op: ue.Op, URL: u, Err: ue.Err}
}
