// Package client talks to the analysis API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/shyim/carbon-analyzer/internal/models"
)

// FailureMessage is what users see when the API answers with a non-success status.
const FailureMessage = "Analysis failed"

var ErrMalformedResponse = errors.New("malformed analysis response")

// RequestError is returned when the API answered with a non-2xx status.
type RequestError struct {
	StatusCode int
	// Detail is the optional {"detail": ...} message from the server.
	Detail string
}

func (e *RequestError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("analysis request failed with status %d: %s", e.StatusCode, e.Detail)
	}
	return fmt.Sprintf("analysis request failed with status %d", e.StatusCode)
}

// TransportError is returned when no HTTP response was received at all.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return e.Err.Error()
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// UserMessage reduces an Analyze error to the text shown to the user.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		return FailureMessage
	}
	return err.Error()
}

type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.httpClient = c
	}
}

// WithTimeout bounds a whole request. Zero disables the timeout.
func WithTimeout(d time.Duration) Option {
	return func(cl *Client) {
		// copy so a caller-supplied client is left untouched
		c := *cl.httpClient
		c.Timeout = d
		cl.httpClient = &c
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(cl *Client) {
		cl.logger = l
	}
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Analyze submits url to POST /analyze. There are no retries.
func (c *Client) Analyze(ctx context.Context, url string) (*models.AnalysisResult, error) {
	body, err := json.Marshal(models.AnalyzeRequest{URL: url})
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/analyze", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	c.logger.Debug("submitting analysis", zap.String("url", url), zap.String("api", c.baseURL))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		reqErr := &RequestError{StatusCode: resp.StatusCode}
		var e models.ErrorResponse
		if raw, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10)); err == nil && json.Unmarshal(raw, &e) == nil {
			reqErr.Detail = e.Detail
		}
		c.logger.Debug("analysis rejected", zap.Int("status", resp.StatusCode), zap.String("detail", reqErr.Detail))
		return nil, reqErr
	}

	var result models.AnalysisResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if err := validate(&result); err != nil {
		return nil, err
	}

	c.logger.Debug("analysis completed", zap.Float64("total_co2", result.TotalCO2))
	return &result, nil
}

func validate(r *models.AnalysisResult) error {
	if r.Metrics == nil {
		return fmt.Errorf("%w: missing metrics", ErrMalformedResponse)
	}
	m := r.Metrics
	if m.PageSize < 0 || m.ImagesSize < 0 || m.JSSize < 0 || r.TotalCO2 < 0 {
		return fmt.Errorf("%w: negative size", ErrMalformedResponse)
	}
	return nil
}
