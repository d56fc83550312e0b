package httpclient

import (
	"net/http"
	"testing"
	"time"
)

func TestParseMeshRateLimitHeaders(t *testing.T) {
	tests := []struct {
		name     string
		headers  map[string]string
		expected RateLimitInfo
	}{
		{
			name:     "empty_headers",
			headers:  map[string]string{},
			expected: RateLimitInfo{},
		},
		{
			name: "retry_after_seconds",
			headers: map[string]string{
				"Retry-After": "30",
			},
			expected: RateLimitInfo{
				RetryAfter: 30 * time.Second,
			},
		},
		{
			name: "retry_after_invalid",
			headers: map[string]string{
				"Retry-After": "invalid",
			},
			expected: RateLimitInfo{},
		},
		{
			name: "reset_time",
			headers: map[string]string{
				"X-RateLimit-Reset": "1640995200",
			},
			expected: RateLimitInfo{
				ResetTime: 1640995200,
			},
		},
		{
			name: "reset_time_invalid",
			headers: map[string]string{
				"X-RateLimit-Reset": "invalid",
			},
			expected: RateLimitInfo{},
		},
		{
			name: "remaining_requests",
			headers: map[string]string{
				"X-RateLimit-Remaining": "100",
			},
			expected: RateLimitInfo{
				RequestsRemaining: 100,
			},
		},
		{
			name: "remaining_requests_invalid",
			headers: map[string]string{
				"X-RateLimit-Remaining": "invalid",
			},
			expected: RateLimitInfo{},
		},
		{
			name: "complete_mesh_rate_limit_headers",
			headers: map[string]string{
				"Retry-After":           "60",
				"X-RateLimit-Reset":     "1640995200",
				"X-RateLimit-Remaining": "50",
			},
			expected: RateLimitInfo{
				RetryAfter:        60 * time.Second,
				ResetTime:         1640995200,
				RequestsRemaining: 50,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			headers := http.Header{}
			for key, value := range tt.headers {
				headers.Set(key, value)
			}

			result := ParseMeshRateLimitHeaders(headers)

			if result.RetryAfter != tt.expected.RetryAfter {
				t.Errorf("ParseMeshRateLimitHeaders() RetryAfter = %v, want %v", result.RetryAfter, tt.expected.RetryAfter)
			}
			if result.ResetTime != tt.expected.ResetTime {
				t.Errorf("ParseMeshRateLimitHeaders() ResetTime = %d, want %d", result.ResetTime, tt.expected.ResetTime)
			}
			if result.RequestsRemaining != tt.expected.RequestsRemaining {
				t.Errorf("ParseMeshRateLimitHeaders() RequestsRemaining = %d, want %d", result.RequestsRemaining, tt.expected.RequestsRemaining)
			}
		})
	}
}

func TestParseMeshRateLimitHeaders_CaseInsensitive(t *testing.T) {
	headers := http.Header{}
	headers.Set("retry-after", "30")
	headers.Set("x-ratelimit-reset", "1640995200")
	headers.Set("x-ratelimit-remaining", "100")

	result := ParseMeshRateLimitHeaders(headers)

	if result.RetryAfter != 30*time.Second {
		t.Errorf("RetryAfter = %v, want 30s", result.RetryAfter)
	}
	if result.ResetTime != 1640995200 {
		t.Errorf("ResetTime = %d, want 1640995200", result.ResetTime)
	}
	if result.RequestsRemaining != 100 {
		t.Errorf("RequestsRemaining = %d, want 100", result.RequestsRemaining)
	}
}

func TestParseMeshRateLimitHeaders_RealWorldScenario(t *testing.T) {
	// Mirrors the headers pkg/ratelimit's addRateLimitHeaders attaches to a
	// 429 response: exhausted quota, reset a minute out.
	headers := http.Header{}
	headers.Set("Retry-After", "60")
	headers.Set("X-RateLimit-Limit", "100")
	headers.Set("X-RateLimit-Remaining", "0")
	headers.Set("X-RateLimit-Reset", "1640995200")

	info := ParseMeshRateLimitHeaders(headers)

	if info.RetryAfter != 60*time.Second {
		t.Errorf("RetryAfter = %v, want 60s", info.RetryAfter)
	}
	if info.ResetTime != 1640995200 {
		t.Errorf("ResetTime = %d, want 1640995200", info.ResetTime)
	}
	if info.RequestsRemaining != 0 {
		t.Errorf("RequestsRemaining = %d, want 0", info.RequestsRemaining)
	}
}
