package storage

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/minio"

	"github.com/shyim/carbon-analyzer/internal/models"
)

func newMinioService(t *testing.T) *Service {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping minio integration test in short mode")
	}

	ctx := context.Background()
	container, err := minio.Run(ctx, "minio/minio:RELEASE.2024-01-16T16-07-38Z",
		minio.WithUsername("carbon"),
		minio.WithPassword("carbon-secret"),
	)
	testcontainers.CleanupContainer(t, container)
	require.NoError(t, err)

	endpoint, err := container.ConnectionString(ctx)
	require.NoError(t, err)

	svc, err := NewService(ctx, Options{
		ServiceURL: "http://" + endpoint,
		AccessKey:  "carbon",
		SecretKey:  "carbon-secret",
		BucketName: "carbon-results",
	})
	require.NoError(t, err)
	require.NoError(t, svc.EnsureBucket(ctx))
	// second call must be a no-op
	require.NoError(t, svc.EnsureBucket(ctx))

	return svc
}

func TestReportRoundTrip(t *testing.T) {
	svc := newMinioService(t)
	ctx := context.Background()

	report := &models.AnalysisResult{
		TotalCO2: 0.42,
		Metrics:  &models.Metrics{PageSize: 2.1, Caching: "Good", CDNUsage: true, ServerLocation: "FRA"},
	}
	require.NoError(t, svc.PutReport(ctx, "abc", report))

	dest := filepath.Join(t.TempDir(), "abc.json")
	require.NoError(t, svc.DownloadReport(ctx, "abc", dest))

	raw, err := os.ReadFile(dest)
	require.NoError(t, err)

	var got models.AnalysisResult
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.Equal(t, report, &got)

	require.NoError(t, svc.DeleteReport(ctx, "abc"))
	assert.ErrorIs(t, svc.DownloadReport(ctx, "abc", dest+"2"), ErrNotFound)
	_, err = os.Stat(dest + "2")
	assert.True(t, os.IsNotExist(err))
}

func TestReportKey(t *testing.T) {
	assert.Equal(t, "results/123/analysis.json", reportKey("123"))
}

// slowS3 serves a single stored report over the S3 path-style API and answers
// NoSuchKey for anything else.
func slowS3(t *testing.T, id, body string, delay time.Duration) *Service {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/carbon-results/"+reportKey(id) {
			w.Header().Set("Content-Type", "application/xml")
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`<?xml version="1.0" encoding="UTF-8"?><Error><Code>NoSuchKey</Code><Message>The specified key does not exist.</Message></Error>`))
			return
		}
		time.Sleep(delay)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)

	svc, err := NewService(context.Background(), Options{
		ServiceURL: srv.URL,
		AccessKey:  "carbon",
		SecretKey:  "carbon-secret",
		BucketName: "carbon-results",
	})
	require.NoError(t, err)
	return svc
}

func TestDownloadReport_Concurrent(t *testing.T) {
	const body = `{"total_co2":0.42,"metrics":{"pageSize":2.1}}`
	svc := slowS3(t, "abc", body, 50*time.Millisecond)
	dir := t.TempDir()
	dest := filepath.Join(dir, "abc.json")

	for round := 0; round < 5; round++ {
		var wg sync.WaitGroup
		errs := make([]error, 4)
		for i := range errs {
			wg.Add(1)
			go func() {
				defer wg.Done()
				errs[i] = svc.DownloadReport(context.Background(), "abc", dest)
			}()
		}
		wg.Wait()

		for _, err := range errs {
			require.NoError(t, err)
		}
		raw, err := os.ReadFile(dest)
		require.NoError(t, err)
		assert.JSONEq(t, body, string(raw))
	}

	// no part files are left behind
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "abc.json", entries[0].Name())
}

func TestDownloadReport_MissingKey(t *testing.T) {
	svc := slowS3(t, "abc", `{}`, 0)
	dest := filepath.Join(t.TempDir(), "other.json")

	assert.ErrorIs(t, svc.DownloadReport(context.Background(), "other", dest), ErrNotFound)
	assert.NoFileExists(t, dest)
}
