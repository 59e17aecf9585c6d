// Package bulk applies one metadata patch to every asset in a folder.
package bulk

import (
	"context"
	"fmt"

	"github.com/SatoshiInoue/aem-assets-mcp-server/internal/logging"
	"github.com/SatoshiInoue/aem-assets-mcp-server/internal/metrics"
	"github.com/SatoshiInoue/aem-assets-mcp-server/internal/models"
)

// AssetStore is the part of the gateway the runner needs.
type AssetStore interface {
	GetAssetsByFolder(ctx context.Context, path string) ([]models.Asset, error)
	UpdateAssetMetadata(ctx context.Context, path string, fields map[string]any) (*models.Asset, error)
}

// Runner updates assets one at a time in listing order. A failed asset is
// recorded and the run continues; nothing is rolled back.
type Runner struct {
	assets  AssetStore
	logger  *logging.Logger
	metrics *metrics.Metrics
	audit   logging.AuditStore
}

type Option func(*Runner)

func WithLogger(logger *logging.Logger) Option {
	return func(r *Runner) {
		r.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Runner) {
		r.metrics = m
	}
}

// WithAuditStore records one BULK_UPDATE event per run.
func WithAuditStore(store logging.AuditStore) Option {
	return func(r *Runner) {
		r.audit = store
	}
}

func NewRunner(assets AssetStore, opts ...Option) *Runner {
	r := &Runner{
		assets: assets,
		logger: logging.NewLogger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// BulkUpdate lists the folder and updates each asset sequentially. Only a
// listing failure is returned as an error. If ctx is cancelled mid-run the
// remaining assets are recorded as failed, so the ledger always has one entry
// per listed asset.
func (r *Runner) BulkUpdate(ctx context.Context, folderPath string, fields map[string]any) (*models.BulkUpdateResult, error) {
	assets, err := r.assets.GetAssetsByFolder(ctx, folderPath)
	if err != nil {
		return nil, err
	}

	result := models.NewBulkUpdateResult(len(assets))
	for _, asset := range assets {
		id := asset.Identifier()

		var uerr error
		if cerr := ctx.Err(); cerr != nil {
			uerr = fmt.Errorf("bulk update cancelled: %w", cerr)
		} else {
			_, uerr = r.assets.UpdateAssetMetadata(ctx, id, fields)
		}

		result.Record(id, uerr)
		if uerr != nil {
			r.metrics.RecordBulkItem(models.BulkStatusFailed)
			r.logger.WarnWithContext(ctx, "bulk item failed", "asset", id, "error", uerr.Error())
		} else {
			r.metrics.RecordBulkItem(models.BulkStatusSuccess)
		}
	}

	r.logger.InfoWithContext(ctx, "bulk update finished",
		"folder", folderPath,
		"updated", result.Updated,
		"failed", result.Failed,
	)
	r.recordAudit(ctx, folderPath, result)
	return result, nil
}

func (r *Runner) recordAudit(ctx context.Context, folderPath string, result *models.BulkUpdateResult) {
	if r.audit == nil {
		return
	}
	event := logging.NewAuditEvent(logging.BulkUpdate, "bulk_update_metadata", logging.StatusSuccess).
		WithResource(folderPath).
		WithContext(ctx).
		WithDetails(map[string]interface{}{
			"total":   result.Total(),
			"updated": result.Updated,
			"failed":  result.Failed,
		})
	if result.Failed > 0 {
		event.WithSeverity(logging.SeverityWarning)
	}
	r.audit.SaveEventAsync(event)
}
