package models

import "time"

// DashboardSummary aggregates counters shown on the landing view. Counts are
// already scoped to the viewer's visibility before caching.
type DashboardSummary struct {
	SchoolName     string        `json:"school_name,omitempty"`
	ExamCount      int           `json:"exam_count"`
	TeacherCount   int           `json:"teacher_count"`
	AdminCount     int           `json:"admin_count"`
	RecentActivity []ActivityLog `json:"recent_activity"`
	GeneratedAt    time.Time     `json:"generated_at"`
}

// SystemMetrics is a lightweight aggregate snapshot for operational checks.
type SystemMetrics struct {
	CacheHitRatio            float64   `json:"cache_hit_ratio"`
	CacheHits                uint64    `json:"cache_hits"`
	CacheMisses              uint64    `json:"cache_misses"`
	RequestsTotal            uint64    `json:"requests_total"`
	AverageRequestDurationMs float64   `json:"average_request_duration_ms"`
	GenerationsTotal         uint64    `json:"generations_total"`
	GenerationFailures       uint64    `json:"generation_failures"`
	GenerationsInFlight      int64     `json:"generations_in_flight"`
	Goroutines               int       `json:"goroutines"`
	GeneratedAt              time.Time `json:"generated_at"`
}
