// Package analyzer measures the carbon-relevant properties of a web page:
// how many bytes it pulls in, whether responses are cacheable and whether
// an edge network serves them.
package analyzer

import (
	"context"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/shyim/carbon-analyzer/internal/models"
)

const (
	// CO2PerMB is grams of CO2 emitted per megabyte transferred.
	CO2PerMB = 0.2

	bytesPerMB = 1024 * 1024

	defaultTimeout      = 30 * time.Second
	defaultMaxDocument  = 10 << 20
	defaultMaxResources = 200
	defaultConcurrency  = 8
	userAgent           = "Mozilla/5.0 (compatible; CarbonFootprintAnalyzer/1.0)"
)

var tracer = otel.Tracer("github.com/shyim/carbon-analyzer/internal/analyzer")

// FetchError is returned when the page itself could not be retrieved.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("fetch %s: unexpected status %d", e.URL, e.StatusCode)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

type Analyzer struct {
	client       *http.Client
	logger       *zap.Logger
	maxDocument  int64
	maxResources int
	concurrency  int
}

type Option func(*Analyzer)

func WithHTTPClient(c *http.Client) Option {
	return func(a *Analyzer) {
		a.client = c
	}
}

func WithTimeout(d time.Duration) Option {
	return func(a *Analyzer) {
		// copy so a caller-supplied client is left untouched
		c := *a.client
		c.Timeout = d
		a.client = &c
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(a *Analyzer) {
		a.logger = l
	}
}

// WithMaxResources caps how many subresources are measured per page.
func WithMaxResources(n int) Option {
	return func(a *Analyzer) {
		a.maxResources = n
	}
}

func WithConcurrency(n int) Option {
	return func(a *Analyzer) {
		if n > 0 {
			a.concurrency = n
		}
	}
}

func New(opts ...Option) *Analyzer {
	a := &Analyzer{
		client: &http.Client{
			Timeout:   defaultTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		logger:       zap.NewNop(),
		maxDocument:  defaultMaxDocument,
		maxResources: defaultMaxResources,
		concurrency:  defaultConcurrency,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *Analyzer) Analyze(ctx context.Context, rawURL string) (result *models.AnalysisResult, err error) {
	ctx, span := tracer.Start(ctx, "analyzer.Analyze", trace.WithAttributes(attribute.String("page.url", rawURL)))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	start := time.Now()

	doc, err := a.fetchDocument(ctx, rawURL)
	if err != nil {
		return nil, err
	}

	refs, err := extractResources(doc.body, doc.finalURL)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", rawURL, err)
	}

	sizes := a.measure(ctx, refs)

	total := int64(len(doc.body)) + sizes.total()
	pageMB := float64(total) / bytesPerMB
	edge := detectCDN(doc.header)

	location := models.LocationEstimated
	if edge.pop != "" {
		location = edge.pop
	}

	m := &models.Metrics{
		PageSize:       round(pageMB, 2),
		ImagesSize:     round(float64(sizes[kindImage])/bytesPerMB, 2),
		JSSize:         round(float64(sizes[kindScript])/bytesPerMB, 2),
		Caching:        gradeCaching(doc.header, time.Now()),
		CDNUsage:       edge.detected,
		ServerLocation: location,
		JSCount:        refs.count(kindScript),
		CSSCount:       refs.count(kindStylesheet),
		ImageCount:     refs.count(kindImage),
	}

	span.SetAttributes(
		attribute.Float64("page.size_mb", m.PageSize),
		attribute.Int("page.resources", len(refs)),
		attribute.Bool("page.cdn", m.CDNUsage),
		attribute.String("page.cdn_provider", edge.provider),
	)

	a.logger.Info("page analyzed",
		zap.String("url", rawURL),
		zap.Float64("page_size_mb", m.PageSize),
		zap.Int("resources", len(refs)),
		zap.String("caching", m.Caching),
		zap.Bool("cdn", m.CDNUsage),
		zap.String("cdn_provider", edge.provider),
		zap.Duration("took", time.Since(start)),
	)

	return &models.AnalysisResult{
		TotalCO2: round(pageMB*CO2PerMB, 3),
		Metrics:  m,
	}, nil
}

type document struct {
	finalURL *url.URL
	header   http.Header
	body     []byte
}

func (a *Analyzer) fetchDocument(ctx context.Context, rawURL string) (*document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, &FetchError{URL: rawURL, Err: err}
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, &FetchError{URL: rawURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &FetchError{URL: rawURL, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, a.maxDocument))
	if err != nil {
		return nil, &FetchError{URL: rawURL, Err: err}
	}

	return &document{
		finalURL: resp.Request.URL,
		header:   resp.Header,
		body:     body,
	}, nil
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

func hasScheme(u *url.URL) bool {
	s := strings.ToLower(u.Scheme)
	return s == "http" || s == "https"
}
