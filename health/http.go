package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// ReportResponse is the JSON form of a Report.
type ReportResponse struct {
	Status    string                   `json:"status"`
	Timestamp string                   `json:"timestamp"`
	Checks    map[string]CheckResponse `json:"checks,omitempty"`
}

// CheckResponse is the JSON form of a Result.
type CheckResponse struct {
	Status   string         `json:"status"`
	Message  string         `json:"message,omitempty"`
	Duration string         `json:"duration,omitempty"`
	Details  map[string]any `json:"details,omitempty"`
	Error    string         `json:"error,omitempty"`
}

// NewReportResponse converts report for encoding.
func NewReportResponse(report Report) ReportResponse {
	resp := ReportResponse{
		Status:    report.Status.String(),
		Timestamp: report.CheckedAt.UTC().Format(time.RFC3339),
		Checks:    make(map[string]CheckResponse, len(report.Results)),
	}
	for name, r := range report.Results {
		check := CheckResponse{
			Status:   r.Status.String(),
			Message:  r.Message,
			Duration: r.Duration.String(),
			Details:  r.Details,
		}
		if r.Error != nil {
			check.Error = r.Error.Error()
		}
		resp.Checks[name] = check
	}
	return resp
}

// Handler serves the aggregator's report as JSON. Unhealthy reports use
// status 503; healthy and degraded use 200.
func Handler(agg *Aggregator) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
		defer cancel()

		report := agg.Run(ctx)

		w.Header().Set("Content-Type", "application/json")
		if report.Status == StatusUnhealthy {
			w.WriteHeader(http.StatusServiceUnavailable)
		} else {
			w.WriteHeader(http.StatusOK)
		}
		_ = json.NewEncoder(w).Encode(NewReportResponse(report))
	})
}
