package history

import (
	"context"
	"io"
	"os"

	"github.com/m-mizutani/arcana/pkg/adapter"
	"github.com/m-mizutani/arcana/pkg/model"
	"github.com/m-mizutani/arcana/pkg/repository"
	"github.com/m-mizutani/goerr/v2"
)

// UseCase provides history operations
type UseCase struct {
	repo     repository.Repository
	storage  adapter.Storage
	bigquery adapter.BigQuery
	output   io.Writer
}

// Option is a functional option for UseCase
type Option func(*UseCase)

// WithStorage sets the archive storage used by Export and Import
func WithStorage(s adapter.Storage) Option {
	return func(uc *UseCase) {
		uc.storage = s
	}
}

// WithBigQuery sets the client used by ExportBigQuery
func WithBigQuery(bq adapter.BigQuery) Option {
	return func(uc *UseCase) {
		uc.bigquery = bq
	}
}

// WithOutput sets the output writer
func WithOutput(w io.Writer) Option {
	return func(uc *UseCase) {
		uc.output = w
	}
}

// New creates a new history UseCase instance
func New(repo repository.Repository, opts ...Option) *UseCase {
	uc := &UseCase{
		repo:   repo,
		output: os.Stdout,
	}

	for _, opt := range opts {
		opt(uc)
	}

	return uc
}

// List returns readings newest first. A non-positive limit returns all.
func (uc *UseCase) List(ctx context.Context, offset, limit int) ([]*model.Reading, error) {
	if offset < 0 {
		offset = 0
	}
	readings, err := uc.repo.ListReadings(ctx, offset, limit)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list readings", goerr.V("offset", offset), goerr.V("limit", limit))
	}
	return readings, nil
}

func (uc *UseCase) Count(ctx context.Context) (int, error) {
	n, err := uc.repo.CountReadings(ctx)
	if err != nil {
		return 0, goerr.Wrap(err, "failed to count readings")
	}
	return n, nil
}

func (uc *UseCase) Show(ctx context.Context, id model.ReadingID) (*model.Reading, error) {
	reading, err := uc.repo.GetReading(ctx, id)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to show reading", goerr.V("id", id))
	}
	return reading, nil
}

// ToggleFavorite flips the favorite flag and returns the updated reading
func (uc *UseCase) ToggleFavorite(ctx context.Context, id model.ReadingID) (*model.Reading, error) {
	reading, err := uc.repo.ToggleFavorite(ctx, id)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to toggle favorite", goerr.V("id", id))
	}
	return reading, nil
}

func (uc *UseCase) Delete(ctx context.Context, id model.ReadingID) error {
	if err := uc.repo.DeleteReading(ctx, id); err != nil {
		return goerr.Wrap(err, "failed to delete reading", goerr.V("id", id))
	}
	return nil
}

// Clear removes every reading and returns how many were removed
func (uc *UseCase) Clear(ctx context.Context) (int, error) {
	n, err := uc.repo.CountReadings(ctx)
	if err != nil {
		return 0, goerr.Wrap(err, "failed to count readings")
	}
	if err := uc.repo.ClearReadings(ctx); err != nil {
		return 0, goerr.Wrap(err, "failed to clear readings")
	}
	return n, nil
}
