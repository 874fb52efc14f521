package history

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/m-mizutani/arcana/pkg/model"
	"github.com/m-mizutani/arcana/pkg/repository"
	"github.com/m-mizutani/arcana/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
)

// ErrNoBigQuery is returned by ExportBigQuery without WithBigQuery
var ErrNoBigQuery = goerr.New("bigquery is not configured")

type readingRow struct {
	ID             string           `bigquery:"id"`
	CreatedAt      time.Time        `bigquery:"created_at"`
	SpreadType     string           `bigquery:"spread_type"`
	Cards          []readingCardRow `bigquery:"cards"`
	Interpretation string           `bigquery:"interpretation"`
	Favorite       bool             `bigquery:"favorite"`
	ExportedAt     time.Time        `bigquery:"exported_at"`
}

type readingCardRow struct {
	ID       int    `bigquery:"id"`
	Name     string `bigquery:"name"`
	Arcana   string `bigquery:"arcana"`
	Suit     string `bigquery:"suit"`
	Position string `bigquery:"position"`
}

func newReadingRow(r *model.Reading, exportedAt time.Time) *readingRow {
	row := &readingRow{
		ID:             r.ID.String(),
		CreatedAt:      r.CreatedAt().UTC(),
		SpreadType:     string(r.SpreadType),
		Cards:          make([]readingCardRow, len(r.Cards)),
		Interpretation: r.Interpretation,
		Favorite:       r.Favorite,
		ExportedAt:     exportedAt,
	}
	for i, c := range r.Cards {
		row.Cards[i] = readingCardRow{
			ID:       c.Card.ID,
			Name:     c.Card.Name,
			Arcana:   string(c.Card.Arcana),
			Suit:     string(c.Card.Suit),
			Position: string(c.Position),
		}
	}
	return row
}

// ExportBigQuery appends the whole history to a BigQuery table, creating it
// when missing
func (uc *UseCase) ExportBigQuery(ctx context.Context, datasetID, tableID string) (int, error) {
	if uc.bigquery == nil {
		return 0, goerr.Wrap(ErrNoBigQuery, "failed to export history")
	}

	schema, err := bigquery.InferSchema(readingRow{})
	if err != nil {
		return 0, goerr.Wrap(err, "failed to infer schema")
	}
	if err := uc.bigquery.EnsureTable(ctx, datasetID, tableID, schema); err != nil {
		return 0, goerr.Wrap(err, "failed to prepare table")
	}

	readings, err := uc.repo.ListReadings(ctx, 0, repository.MaxReadings)
	if err != nil {
		return 0, goerr.Wrap(err, "failed to list readings")
	}
	if len(readings) == 0 {
		fmt.Fprintln(uc.output, "No readings to export")
		return 0, nil
	}

	now := time.Now().UTC()
	rows := make([]*readingRow, len(readings))
	for i, r := range readings {
		rows[i] = newReadingRow(r, now)
	}

	if err := uc.bigquery.Insert(ctx, datasetID, tableID, rows); err != nil {
		return 0, goerr.Wrap(err, "failed to export history")
	}

	logging.From(ctx).Info("exported history to bigquery", "dataset", datasetID, "table", tableID, "count", len(rows))
	fmt.Fprintf(uc.output, "Exported %d readings to %s.%s\n", len(rows), datasetID, tableID)
	return len(rows), nil
}
