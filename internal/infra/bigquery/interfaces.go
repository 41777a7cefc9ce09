package bigquery

import (
	"context"

	"github.com/dvloznov/expense-sync/internal/domain"
)

// TimelineExporter writes a merged timeline to the analytics warehouse.
type TimelineExporter interface {
	// ExportTimeline inserts txs and returns the number of rows written.
	ExportTimeline(ctx context.Context, txs []domain.Transaction) (int, error)

	// Close releases the exporter's resources.
	Close() error
}
