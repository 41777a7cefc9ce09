package bigquery

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"

	"github.com/dvloznov/expense-sync/internal/domain"
	"github.com/dvloznov/expense-sync/internal/logger"
)

// BigQueryTimelineExporter streams timelines into one table.
type BigQueryTimelineExporter struct {
	client    *bigquery.Client
	projectID string
	datasetID string
	tableID   string
	now       func() time.Time
}

// NewBigQueryTimelineExporter creates an exporter with its own client.
func NewBigQueryTimelineExporter(ctx context.Context, projectID, datasetID, tableID string) (*BigQueryTimelineExporter, error) {
	client, err := bigquery.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("NewBigQueryTimelineExporter: creating client: %w", err)
	}
	return &BigQueryTimelineExporter{
		client:    client,
		projectID: projectID,
		datasetID: datasetID,
		tableID:   tableID,
		now:       time.Now,
	}, nil
}

// Close closes the BigQuery client connection.
func (e *BigQueryTimelineExporter) Close() error {
	if e.client != nil {
		return e.client.Close()
	}
	return nil
}

// ExportTimeline inserts one row per transaction. The transaction id is the
// insert id, so re-exporting within BigQuery's deduplication window does not
// duplicate rows.
func (e *BigQueryTimelineExporter) ExportTimeline(ctx context.Context, txs []domain.Transaction) (int, error) {
	if len(txs) == 0 {
		return 0, nil
	}

	savers := TimelineSavers(txs, e.now())

	// Use fully qualified table name to avoid project ID issues
	table := e.client.DatasetInProject(e.projectID, e.datasetID).Table(e.tableID)
	if err := table.Inserter().Put(ctx, savers); err != nil {
		return 0, fmt.Errorf("ExportTimeline: inserting rows: %w", err)
	}

	log := logger.FromContext(ctx)
	log.Info().
		Int("count", len(savers)).
		Str("table", fmt.Sprintf("%s.%s.%s", e.projectID, e.datasetID, e.tableID)).
		Msg("Exported timeline")
	return len(savers), nil
}

// TimelineSavers maps txs to insertable rows keyed by transaction id.
func TimelineSavers(txs []domain.Transaction, exportedAt time.Time) []*bigquery.StructSaver {
	savers := make([]*bigquery.StructSaver, 0, len(txs))
	for _, tx := range txs {
		row := NewTimelineRow(tx, exportedAt)
		savers = append(savers, &bigquery.StructSaver{Struct: row, InsertID: row.TransactionID})
	}
	return savers
}

// Ensure BigQueryTimelineExporter implements TimelineExporter interface.
var _ TimelineExporter = (*BigQueryTimelineExporter)(nil)
