// Package health keeps a rolling view of how each upstream surface has been
// answering, fed by the transport client.
package health

import (
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/SatoshiInoue/aem-assets-mcp-server/internal/models"
)

// DefaultErrorThreshold is the error rate at which a surface turns degraded.
const DefaultErrorThreshold = 0.5

// Report is the aggregate served by the status endpoint.
type Report struct {
	Status    string                 `json:"status"`
	CheckedAt time.Time              `json:"checked_at"`
	Surfaces  []models.SurfaceHealth `json:"surfaces"`
}

// Tracker records upstream outcomes per surface. It is safe for concurrent
// use.
type Tracker struct {
	mu        sync.RWMutex
	surfaces  map[string]*models.SurfaceHealth
	threshold float64
	now       func() time.Time
}

// NewTracker creates a Tracker. A threshold outside (0, 1] falls back to
// DefaultErrorThreshold.
func NewTracker(threshold float64) *Tracker {
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultErrorThreshold
	}
	return &Tracker{
		surfaces:  make(map[string]*models.SurfaceHealth),
		threshold: threshold,
		now:       time.Now,
	}
}

// ObserveUpstream records one outbound call. status is zero when no
// response arrived.
func (t *Tracker) ObserveUpstream(surface string, status int, latency time.Duration, err error) {
	if surface == "" {
		surface = "unknown"
	}
	at := t.now()

	t.mu.Lock()
	defer t.mu.Unlock()

	h, ok := t.surfaces[surface]
	if !ok {
		h = &models.SurfaceHealth{Surface: surface}
		t.surfaces[surface] = h
	}

	switch {
	case status == 0:
		msg := "no response"
		if err != nil {
			msg = err.Error()
		}
		h.RecordFailure(0, latency, msg, at)
	case status >= http.StatusInternalServerError:
		h.RecordFailure(status, latency, http.StatusText(status), at)
	default:
		h.RecordSuccess(status, latency, at)
	}
}

// Surface returns a copy of the record for one surface.
func (t *Tracker) Surface(name string) (models.SurfaceHealth, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	h, ok := t.surfaces[name]
	if !ok {
		return models.SurfaceHealth{}, false
	}
	return *h, true
}

// Report snapshots every surface. The aggregate is degraded when any
// surface is, unknown before the first call and healthy otherwise.
func (t *Tracker) Report() Report {
	t.mu.RLock()
	defer t.mu.RUnlock()

	report := Report{
		Status:    models.HealthUnknown,
		CheckedAt: t.now(),
		Surfaces:  make([]models.SurfaceHealth, 0, len(t.surfaces)),
	}
	for _, h := range t.surfaces {
		report.Surfaces = append(report.Surfaces, *h)
		switch h.State(t.threshold) {
		case models.HealthDegraded:
			report.Status = models.HealthDegraded
		case models.HealthHealthy:
			if report.Status == models.HealthUnknown {
				report.Status = models.HealthHealthy
			}
		}
	}
	sort.Slice(report.Surfaces, func(i, j int) bool {
		return report.Surfaces[i].Surface < report.Surfaces[j].Surface
	})
	return report
}
