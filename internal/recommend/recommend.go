// Package recommend turns page metrics into improvement suggestions.
package recommend

import "github.com/shyim/carbon-analyzer/internal/models"

const (
	// ImagesSizeThreshold and JSSizeThreshold are in megabytes.
	ImagesSizeThreshold = 1.0
	JSSizeThreshold     = 0.5
)

// Derive evaluates the four recommendation rules in a fixed order. Every rule
// is independent, so any combination of them may fire.
func Derive(m models.Metrics) []models.Recommendation {
	recs := []models.Recommendation{}

	if m.ImagesSize > ImagesSizeThreshold {
		recs = append(recs, models.Recommendation{
			Title:       "Optimize Images",
			Description: "Large images contribute significantly to your carbon footprint. Consider:",
			Details: []string{
				"Compress images using modern formats like WebP",
				"Implement lazy loading for images below the fold",
				"Use responsive images for different screen sizes",
			},
			Impact: models.ImpactHigh,
		})
	}

	if m.JSSize > JSSizeThreshold {
		recs = append(recs, models.Recommendation{
			Title:       "Optimize JavaScript",
			Description: "Reduce JavaScript payload to improve efficiency:",
			Details: []string{
				"Implement code splitting",
				"Remove unused code through tree shaking",
				"Minimize and compress JavaScript files",
			},
			Impact: models.ImpactMedium,
		})
	}

	if m.Caching == models.CachingPoor {
		recs = append(recs, models.Recommendation{
			Title:       "Implement Caching",
			Description: "Proper caching can significantly reduce server load:",
			Details: []string{
				"Set appropriate cache headers",
				"Implement browser caching",
				"Use service workers for offline functionality",
			},
			Impact: models.ImpactHigh,
		})
	}

	if !m.CDNUsage {
		recs = append(recs, models.Recommendation{
			Title:       "Use a CDN",
			Description: "Content Delivery Networks reduce server load and transmission distance:",
			Details: []string{
				"Implement a CDN for static assets",
				"Choose green CDN providers",
				"Enable CDN caching",
			},
			Impact: models.ImpactMedium,
		})
	}

	return recs
}

// ForResult is Derive for an optional result; no result means no advice.
func ForResult(r *models.AnalysisResult) []models.Recommendation {
	if r == nil || r.Metrics == nil {
		return []models.Recommendation{}
	}
	return Derive(*r.Metrics)
}
