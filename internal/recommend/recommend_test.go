package recommend

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shyim/carbon-analyzer/internal/models"
)

func titles(recs []models.Recommendation) []string {
	out := make([]string, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.Title)
	}
	return out
}

func find(recs []models.Recommendation, title string) (models.Recommendation, bool) {
	for _, r := range recs {
		if r.Title == title {
			return r, true
		}
	}
	return models.Recommendation{}, false
}

func TestDerive_LargeImages(t *testing.T) {
	for _, size := range []float64{1.0001, 1.5, 2, 42} {
		recs := Derive(models.Metrics{ImagesSize: size, CDNUsage: true, Caching: models.CachingGood})
		rec, ok := find(recs, "Optimize Images")
		require.True(t, ok, "imagesSize=%v", size)
		assert.Equal(t, models.ImpactHigh, rec.Impact)
		assert.Len(t, rec.Details, 3)
	}
}

func TestDerive_ImagesAtThresholdDoNotFire(t *testing.T) {
	recs := Derive(models.Metrics{ImagesSize: 1, CDNUsage: true})
	_, ok := find(recs, "Optimize Images")
	assert.False(t, ok)
}

func TestDerive_SmallJavaScript(t *testing.T) {
	for _, size := range []float64{0, 0.1, 0.5} {
		recs := Derive(models.Metrics{JSSize: size, CDNUsage: true})
		_, ok := find(recs, "Optimize JavaScript")
		assert.False(t, ok, "jsSize=%v", size)
	}

	recs := Derive(models.Metrics{JSSize: 0.51, CDNUsage: true})
	rec, ok := find(recs, "Optimize JavaScript")
	require.True(t, ok)
	assert.Equal(t, models.ImpactMedium, rec.Impact)
}

func TestDerive_PoorCachingOnly(t *testing.T) {
	recs := Derive(models.Metrics{Caching: "Poor", CDNUsage: true})
	require.Len(t, recs, 1)
	assert.Equal(t, "Implement Caching", recs[0].Title)
	assert.Equal(t, models.ImpactHigh, recs[0].Impact)
	assert.Equal(t, []string{
		"Set appropriate cache headers",
		"Implement browser caching",
		"Use service workers for offline functionality",
	}, recs[0].Details)
}

func TestDerive_CachingIsCaseSensitive(t *testing.T) {
	recs := Derive(models.Metrics{Caching: "poor", CDNUsage: true})
	assert.Empty(t, recs)
}

func TestDerive_AllRulesInOrder(t *testing.T) {
	recs := Derive(models.Metrics{ImagesSize: 2, JSSize: 1, Caching: "Poor", CDNUsage: false})
	assert.Equal(t, []string{
		"Optimize Images",
		"Optimize JavaScript",
		"Implement Caching",
		"Use a CDN",
	}, titles(recs))
	assert.Equal(t, models.ImpactMedium, recs[3].Impact)
}

func TestDerive_HealthyPage(t *testing.T) {
	recs := Derive(models.Metrics{ImagesSize: 0.5, JSSize: 0.4, Caching: "Good", CDNUsage: true})
	assert.NotNil(t, recs)
	assert.Empty(t, recs)
}

func TestDerive_Deterministic(t *testing.T) {
	m := models.Metrics{ImagesSize: 3, JSSize: 0.7, Caching: "Poor"}
	first := Derive(m)
	second := Derive(m)
	assert.Equal(t, first, second)

	// mutating one result must not leak into the next call
	first[0].Details[0] = "changed"
	assert.NotEqual(t, "changed", Derive(m)[0].Details[0])
}

func TestForResult(t *testing.T) {
	assert.Empty(t, ForResult(nil))
	assert.Empty(t, ForResult(&models.AnalysisResult{}))

	recs := ForResult(&models.AnalysisResult{
		TotalCO2: 0.4,
		Metrics:  &models.Metrics{CDNUsage: false, Caching: "Good"},
	})
	assert.Equal(t, []string{"Use a CDN"}, titles(recs))
}
