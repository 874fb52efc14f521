package repository

import (
	"context"

	"github.com/m-mizutani/arcana/pkg/model"
)

// MaxReadings is the number of most recent readings kept in history
const MaxReadings = 100

// Repository defines the interface for reading history persistence. Readings
// are ordered newest first by insertion.
type Repository interface {
	// PutReading inserts a reading at the front of history and drops entries
	// beyond MaxReadings. Putting an existing ID replaces it and moves it to
	// the front.
	PutReading(ctx context.Context, reading *model.Reading) error

	// GetReading retrieves a reading by ID
	GetReading(ctx context.Context, id model.ReadingID) (*model.Reading, error)

	// ListReadings retrieves readings newest first
	ListReadings(ctx context.Context, offset, limit int) ([]*model.Reading, error)

	CountReadings(ctx context.Context) (int, error)

	// UpdateFavorite sets the favorite flag, the only mutable field of a reading
	UpdateFavorite(ctx context.Context, id model.ReadingID, favorite bool) error

	// ToggleFavorite flips the favorite flag atomically and returns the
	// updated reading
	ToggleFavorite(ctx context.Context, id model.ReadingID) (*model.Reading, error)

	DeleteReading(ctx context.Context, id model.ReadingID) error

	ClearReadings(ctx context.Context) error
}
