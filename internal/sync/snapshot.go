package sync

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/clearfork/marketsync/internal/domain"
)

// SnapshotExporter writes a CSV of recently resolved markets to object
// storage after a resolution run. Best-effort: export failures are logged,
// never surfaced as run failures.
type SnapshotExporter struct {
	markets domain.MarketStore
	writer  domain.BlobWriter
	logger  *slog.Logger
}

// NewSnapshotExporter creates a SnapshotExporter.
func NewSnapshotExporter(markets domain.MarketStore, writer domain.BlobWriter, logger *slog.Logger) *SnapshotExporter {
	return &SnapshotExporter{
		markets: markets,
		writer:  writer,
		logger:  logger,
	}
}

// Export uploads a CSV of markets resolved since the given time.
func (e *SnapshotExporter) Export(ctx context.Context, since time.Time) {
	if e == nil {
		return
	}

	markets, err := e.markets.ListResolvedSince(ctx, since)
	if err != nil {
		e.logger.Warn("snapshot export: list failed", slog.String("error", err.Error()))
		return
	}
	if len(markets) == 0 {
		return
	}

	data, err := marketsToCSV(markets)
	if err != nil {
		e.logger.Warn("snapshot export: encode failed", slog.String("error", err.Error()))
		return
	}

	path := fmt.Sprintf("snapshots/resolved/%s.csv", time.Now().UTC().Format("2006-01-02T15-04-05"))
	if err := e.writer.PutMultipart(ctx, path, bytes.NewReader(data), 0); err != nil {
		e.logger.Warn("snapshot export: upload failed",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		return
	}

	e.logger.Info("snapshot export complete",
		slog.Int("markets", len(markets)),
		slog.String("path", path),
	)
}

// marketsToCSV converts resolved markets to CSV bytes with a header row.
func marketsToCSV(markets []domain.Market) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	header := []string{"condition_id", "event_id", "question", "slug", "neg_risk", "updated_at"}
	if err := w.Write(header); err != nil {
		return nil, fmt.Errorf("writing CSV header: %w", err)
	}

	for _, m := range markets {
		row := []string{
			m.ConditionID,
			strconv.FormatInt(m.EventID, 10),
			m.Question,
			m.Slug,
			strconv.FormatBool(m.NegRisk),
			m.UpdatedAt.UTC().Format(time.RFC3339),
		}
		if err := w.Write(row); err != nil {
			return nil, fmt.Errorf("writing CSV row: %w", err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flushing CSV writer: %w", err)
	}
	return buf.Bytes(), nil
}
