package models

import (
	"fmt"
	"time"
)

// Health states reported for an upstream surface.
const (
	HealthUnknown  = "unknown"
	HealthHealthy  = "healthy"
	HealthDegraded = "degraded"
)

// baselineWeight is the smoothing factor of the latency baseline.
const baselineWeight = 0.2

// SurfaceHealth tracks how one upstream surface (IMS, classic or modern
// API) has been answering. A call counts as failed when it never got a
// response or got a 5xx; 4xx answers mean the surface is up.
type SurfaceHealth struct {
	Surface            string        `json:"surface"`
	LastCheckedAt      time.Time     `json:"last_checked_at"`
	BaselineLatency    time.Duration `json:"baseline_latency"`
	CurrentLatency     time.Duration `json:"current_latency"`
	ErrorRate          float64       `json:"error_rate"`
	ConsecutiveErrors  int           `json:"consecutive_errors"`
	SuccessfulRequests int64         `json:"successful_requests"`
	FailedRequests     int64         `json:"failed_requests"`
	TotalRequests      int64         `json:"total_requests"`
	LastStatus         int           `json:"last_status,omitempty"`
	LastError          string        `json:"last_error,omitempty"`
}

// Validate checks if the health record is consistent.
func (h *SurfaceHealth) Validate() error {
	if h.Surface == "" {
		return fmt.Errorf("surface is required")
	}
	if h.ErrorRate < 0 || h.ErrorRate > 1 {
		return fmt.Errorf("error rate must be between 0 and 1")
	}
	if h.BaselineLatency < 0 {
		return fmt.Errorf("baseline latency cannot be negative")
	}
	if h.CurrentLatency < 0 {
		return fmt.Errorf("current latency cannot be negative")
	}
	return nil
}

// IsHealthy returns true while the error rate stays under errorThreshold and
// the latest call succeeded.
func (h *SurfaceHealth) IsHealthy(errorThreshold float64) bool {
	return h.ErrorRate < errorThreshold && h.ConsecutiveErrors == 0
}

// State returns HealthUnknown before the first call, otherwise healthy or
// degraded per IsHealthy.
func (h *SurfaceHealth) State(errorThreshold float64) string {
	if h.TotalRequests == 0 {
		return HealthUnknown
	}
	if h.IsHealthy(errorThreshold) {
		return HealthHealthy
	}
	return HealthDegraded
}

// LatencySpike returns true if current latency is significantly higher than baseline.
func (h *SurfaceHealth) LatencySpike(multiplier float64) bool {
	if h.BaselineLatency == 0 {
		return false
	}
	return float64(h.CurrentLatency) > float64(h.BaselineLatency)*multiplier
}

// UpdateErrorRate recalculates the error rate.
func (h *SurfaceHealth) UpdateErrorRate() {
	total := h.SuccessfulRequests + h.FailedRequests
	if total == 0 {
		h.ErrorRate = 0
		return
	}
	h.ErrorRate = float64(h.FailedRequests) / float64(total)
}

// RecordSuccess records a call that got an answer from the surface.
func (h *SurfaceHealth) RecordSuccess(status int, latency time.Duration, at time.Time) {
	h.SuccessfulRequests++
	h.TotalRequests++
	h.CurrentLatency = latency
	if h.BaselineLatency == 0 {
		h.BaselineLatency = latency
	} else {
		h.BaselineLatency = time.Duration(float64(h.BaselineLatency)*(1-baselineWeight) + float64(latency)*baselineWeight)
	}
	h.ConsecutiveErrors = 0
	h.LastStatus = status
	h.LastError = ""
	h.UpdateErrorRate()
	h.LastCheckedAt = at
}

// RecordFailure records a call that failed at the network level or with a
// 5xx. status is zero when no response arrived.
func (h *SurfaceHealth) RecordFailure(status int, latency time.Duration, message string, at time.Time) {
	h.FailedRequests++
	h.TotalRequests++
	h.CurrentLatency = latency
	h.ConsecutiveErrors++
	h.LastStatus = status
	h.LastError = message
	h.UpdateErrorRate()
	h.LastCheckedAt = at
}
