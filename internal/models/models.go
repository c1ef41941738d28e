package models

type AnalyzeRequest struct {
	URL string `json:"url"`
}

type ErrorResponse struct {
	Detail string `json:"detail"`
}

type StatusResponse struct {
	Status    string `json:"status"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp,omitempty"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

// AnalysisResult is the body of a successful POST /analyze.
type AnalysisResult struct {
	TotalCO2 float64  `json:"total_co2"`
	Metrics  *Metrics `json:"metrics"`
}

// Metrics sizes are in megabytes.
type Metrics struct {
	PageSize       float64 `json:"pageSize"`
	ImagesSize     float64 `json:"imagesSize"`
	JSSize         float64 `json:"jsSize"`
	Caching        string  `json:"caching"`
	CDNUsage       bool    `json:"cdnUsage"`
	ServerLocation string  `json:"serverLocation"`
	JSCount        int     `json:"jsCount"`
	CSSCount       int     `json:"cssCount"`
	ImageCount     int     `json:"imageCount"`
}

const (
	CachingGood = "Good"
	CachingFair = "Fair"
	CachingPoor = "Poor"

	LocationEstimated = "Estimated"
)

type Impact string

const (
	ImpactHigh   Impact = "high"
	ImpactMedium Impact = "medium"
)

type Recommendation struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Details     []string `json:"details"`
	Impact      Impact   `json:"impact"`
}
