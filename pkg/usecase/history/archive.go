package history

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"time"

	"github.com/m-mizutani/arcana/pkg/model"
	"github.com/m-mizutani/arcana/pkg/repository"
	"github.com/m-mizutani/arcana/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
)

const archiveVersion = 1

// ErrNoStorage is returned by Export and Import without WithStorage
var ErrNoStorage = goerr.New("archive storage is not configured")

// archive is the exported history document. Readings are newest first.
type archive struct {
	Version    int              `json:"version"`
	ExportedAt time.Time        `json:"exportedAt"`
	Readings   []*model.Reading `json:"readings"`
}

// Export writes the whole history as a JSON archive under key
func (uc *UseCase) Export(ctx context.Context, key string) (int, error) {
	if uc.storage == nil {
		return 0, goerr.Wrap(ErrNoStorage, "failed to export history")
	}

	readings, err := uc.repo.ListReadings(ctx, 0, repository.MaxReadings)
	if err != nil {
		return 0, goerr.Wrap(err, "failed to list readings")
	}

	w, err := uc.storage.Put(ctx, key)
	if err != nil {
		return 0, goerr.Wrap(err, "failed to open archive", goerr.V("key", key))
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(&archive{
		Version:    archiveVersion,
		ExportedAt: time.Now().UTC(),
		Readings:   readings,
	}); err != nil {
		_ = w.Close()
		return 0, goerr.Wrap(err, "failed to encode archive", goerr.V("key", key))
	}
	if err := w.Close(); err != nil {
		return 0, goerr.Wrap(err, "failed to save archive", goerr.V("key", key))
	}

	logging.From(ctx).Info("exported history", "key", key, "count", len(readings))
	fmt.Fprintf(uc.output, "Exported %d readings to %s\n", len(readings), key)
	return len(readings), nil
}

// Import loads an archive and puts its readings into history, keeping their
// order. Readings already in history are replaced. Besides the versioned
// archive, a bare array of readings (the app's persisted history, newest
// first) is accepted.
func (uc *UseCase) Import(ctx context.Context, key string) (int, error) {
	if uc.storage == nil {
		return 0, goerr.Wrap(ErrNoStorage, "failed to import history")
	}

	r, err := uc.storage.Get(ctx, key)
	if err != nil {
		return 0, goerr.Wrap(err, "failed to open archive", goerr.V("key", key))
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return 0, goerr.Wrap(err, "failed to read archive", goerr.V("key", key))
	}

	readings, err := decodeArchive(data)
	if err != nil {
		return 0, goerr.Wrap(err, "failed to decode archive", goerr.V("key", key))
	}

	logger := logging.From(ctx)
	imported := 0
	// oldest first so the newest reading ends up at the front
	for _, reading := range slices.Backward(readings) {
		if reading == nil {
			continue
		}
		if err := reading.Validate(); err != nil {
			logger.Warn("skip invalid reading in archive", "id", reading.ID, "error", err)
			continue
		}
		if err := uc.repo.PutReading(ctx, reading); err != nil {
			return imported, goerr.Wrap(err, "failed to import reading", goerr.V("id", reading.ID))
		}
		imported++
	}

	logger.Info("imported history", "key", key, "count", imported)
	fmt.Fprintf(uc.output, "Imported %d readings from %s\n", imported, key)
	return imported, nil
}

func decodeArchive(data []byte) ([]*model.Reading, error) {
	if trimmed := bytes.TrimSpace(data); len(trimmed) > 0 && trimmed[0] == '[' {
		var readings []*model.Reading
		if err := json.Unmarshal(trimmed, &readings); err != nil {
			return nil, goerr.Wrap(err, "invalid reading list")
		}
		return readings, nil
	}

	var doc archive
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, goerr.Wrap(err, "invalid archive")
	}
	if doc.Version != archiveVersion {
		return nil, goerr.New("unsupported archive version", goerr.V("version", doc.Version))
	}
	return doc.Readings, nil
}
