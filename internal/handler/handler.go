package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/shyim/carbon-analyzer/internal/models"
	"github.com/shyim/carbon-analyzer/internal/storage"
)

type PageAnalyzer interface {
	Analyze(ctx context.Context, url string) (*models.AnalysisResult, error)
}

// ReportStore archives analysis results. See storage.Service.
type ReportStore interface {
	PutReport(ctx context.Context, id string, r *models.AnalysisResult) error
	DownloadReport(ctx context.Context, id, destinationPath string) error
	DeleteReport(ctx context.Context, id string) error
}

type Handler struct {
	analyzer  PageAnalyzer
	store     ReportStore
	cacheDir  string
	authToken string
	logger    *zap.Logger
	flights   singleflight.Group
	now       func() time.Time
}

type Option func(*Handler)

// WithReportStore enables report archiving; downloaded reports are cached in cacheDir.
func WithReportStore(store ReportStore, cacheDir string) Option {
	return func(h *Handler) {
		h.store = store
		h.cacheDir = cacheDir
	}
}

// WithAuthToken protects /api routes with a bearer token.
func WithAuthToken(token string) Option {
	return func(h *Handler) {
		h.authToken = token
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(h *Handler) {
		h.logger = l
	}
}

func NewHandler(analyzer PageAnalyzer, opts ...Option) *Handler {
	h := &Handler{
		analyzer: analyzer,
		logger:   zap.NewNop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Routes registers every endpoint. limiter guards POST /analyze.
func (h *Handler) Routes(limiter *rate.Limiter) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", h.HandleRoot)
	mux.HandleFunc("GET /hello", h.HandleHello)
	mux.Handle("POST /analyze", RateLimitMiddleware(limiter, http.HandlerFunc(h.HandleAnalyze)))
	mux.Handle("GET /metrics", promhttp.Handler())

	if h.store != nil {
		mux.HandleFunc("GET /result/{id}", h.HandleGetResult)
		mux.HandleFunc("DELETE /api/result/{id}", h.HandleDeleteResult)
	}

	return h.AuthMiddleware(mux)
}

func (h *Handler) HandleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, models.StatusResponse{
		Status:    "ok",
		Message:   "Carbon Footprint Analyzer API",
		Timestamp: h.now().UTC().Format(time.RFC3339),
	})
}

func (h *Handler) HandleHello(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, models.MessageResponse{Message: "Hello from Carbon Footprint Analyzer!"})
}

func (h *Handler) HandleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req models.AnalyzeRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 64<<10)).Decode(&req); err != nil {
		renderError(w, "Invalid Request Body", http.StatusUnprocessableEntity)
		return
	}

	target, err := validateURL(req.URL)
	if err != nil {
		renderError(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}

	start := time.Now()
	h.logger.Info("starting analysis", zap.String("url", target))

	// Identical in-flight analyses share one page fetch. The shared call must
	// not die with whichever client disconnects first.
	v, err, shared := h.flights.Do(target, func() (any, error) {
		return h.analyzer.Analyze(context.WithoutCancel(r.Context()), target)
	})
	analysisDuration.Observe(time.Since(start).Seconds())
	if shared {
		analysesShared.Inc()
	}
	result, _ := v.(*models.AnalysisResult)
	if err == nil && result == nil {
		err = errors.New("analysis produced no result")
	}
	if err != nil {
		analysesTotal.WithLabelValues("error").Inc()
		h.logger.Warn("analysis failed", zap.String("url", target), zap.Error(err))
		renderError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	analysesTotal.WithLabelValues("success").Inc()

	if h.store != nil {
		id := uuid.NewString()
		if err := h.store.PutReport(r.Context(), id, result); err != nil {
			h.logger.Warn("failed to archive report", zap.String("id", id), zap.Error(err))
		} else {
			w.Header().Set("X-Analysis-Id", id)
			w.Header().Set("Location", "/result/"+id)
		}
	}

	h.logger.Info("analysis completed",
		zap.String("url", target),
		zap.Float64("total_co2", result.TotalCO2),
		zap.Duration("took", time.Since(start)),
	)
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) HandleGetResult(w http.ResponseWriter, r *http.Request) {
	id, ok := reportID(w, r)
	if !ok {
		return
	}

	cachePath := filepath.Join(h.cacheDir, id+".json")

	if _, err := os.Stat(cachePath); os.IsNotExist(err) {
		if err := os.MkdirAll(h.cacheDir, 0o755); err != nil {
			h.logger.Error("failed to create report cache", zap.Error(err))
			renderError(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		if err := h.store.DownloadReport(r.Context(), id, cachePath); err != nil {
			if !errors.Is(err, storage.ErrNotFound) {
				h.logger.Warn("failed to download report", zap.String("id", id), zap.Error(err))
			}
			renderError(w, "Report not found", http.StatusNotFound)
			return
		}
	}

	file, err := os.Open(cachePath)
	if err != nil {
		renderError(w, "Report not found", http.StatusNotFound)
		return
	}
	defer file.Close()

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "public, max-age=604800")
	if info, err := file.Stat(); err == nil {
		w.Header().Set("Last-Modified", info.ModTime().UTC().Format(http.TimeFormat))
	}

	io.Copy(w, file)
}

func (h *Handler) HandleDeleteResult(w http.ResponseWriter, r *http.Request) {
	id, ok := reportID(w, r)
	if !ok {
		return
	}

	// the cached copy is dropped even when the archive delete fails
	os.Remove(filepath.Join(h.cacheDir, id+".json"))

	if err := h.store.DeleteReport(r.Context(), id); err != nil {
		h.logger.Warn("failed to delete report", zap.String("id", id), zap.Error(err))
		renderError(w, "Failed to delete report", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
}

func reportID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		renderError(w, "Invalid ID", http.StatusBadRequest)
		return "", false
	}
	return id.String(), true
}

// validateURL accepts absolute http and https URLs only.
func validateURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", errors.New("url is required")
	}
	u, err := url.ParseRequestURI(raw)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return "", fmt.Errorf("invalid URL: %s", raw)
	}
	return u.String(), nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func renderError(w http.ResponseWriter, msg string, status int) {
	writeJSON(w, status, models.ErrorResponse{Detail: msg})
}
