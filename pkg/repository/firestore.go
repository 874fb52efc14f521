package repository

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/m-mizutani/arcana/pkg/model"
	"github.com/m-mizutani/goerr/v2"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const collectionReadings = "readings"

// Firestore keeps history in a Firestore collection
type Firestore struct {
	client *firestore.Client
}

var _ Repository = (*Firestore)(nil)

type readingDoc struct {
	Reading *model.Reading `firestore:"reading"`
	// Seq orders documents by insertion
	Seq int64 `firestore:"seq"`
}

func NewFirestore(ctx context.Context, projectID, databaseID string) (*Firestore, error) {
	client, err := firestore.NewClientWithDatabase(ctx, projectID, databaseID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create firestore client",
			goerr.V("project_id", projectID),
			goerr.V("database_id", databaseID),
		)
	}
	return &Firestore{client: client}, nil
}

func (r *Firestore) Close() error {
	return r.client.Close()
}

func (r *Firestore) collection() *firestore.CollectionRef {
	return r.client.Collection(collectionReadings)
}

func isNotFound(err error) bool {
	return status.Code(err) == codes.NotFound
}

func (r *Firestore) PutReading(ctx context.Context, reading *model.Reading) error {
	if err := reading.Validate(); err != nil {
		return goerr.Wrap(err, "failed to put reading")
	}

	doc := readingDoc{Reading: reading, Seq: time.Now().UnixNano()}
	if _, err := r.collection().Doc(reading.ID.String()).Set(ctx, doc); err != nil {
		return goerr.Wrap(err, "failed to put reading", goerr.V("id", reading.ID))
	}

	if err := r.trim(ctx); err != nil {
		return goerr.Wrap(err, "failed to trim history")
	}
	return nil
}

// trim deletes documents beyond MaxReadings
func (r *Firestore) trim(ctx context.Context) error {
	iter := r.collection().OrderBy("seq", firestore.Desc).Offset(MaxReadings).Documents(ctx)
	defer iter.Stop()

	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			return nil
		}
		if err != nil {
			return goerr.Wrap(err, "failed to iterate old readings")
		}
		if _, err := snap.Ref.Delete(ctx); err != nil {
			return goerr.Wrap(err, "failed to delete old reading", goerr.V("id", snap.Ref.ID))
		}
	}
}

func (r *Firestore) GetReading(ctx context.Context, id model.ReadingID) (*model.Reading, error) {
	snap, err := r.collection().Doc(id.String()).Get(ctx)
	if isNotFound(err) {
		return nil, goerr.Wrap(model.ErrReadingNotFound, "failed to get reading", goerr.V("id", id))
	}
	if err != nil {
		return nil, goerr.Wrap(err, "failed to get reading", goerr.V("id", id))
	}

	var doc readingDoc
	if err := snap.DataTo(&doc); err != nil {
		return nil, goerr.Wrap(err, "failed to decode reading", goerr.V("id", id))
	}
	if doc.Reading == nil {
		return nil, goerr.New("reading document is empty", goerr.V("id", id))
	}
	return doc.Reading, nil
}

func (r *Firestore) ListReadings(ctx context.Context, offset, limit int) ([]*model.Reading, error) {
	q := r.collection().OrderBy("seq", firestore.Desc)
	if offset > 0 {
		q = q.Offset(offset)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}

	iter := q.Documents(ctx)
	defer iter.Stop()

	readings := []*model.Reading{}
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to iterate readings")
		}

		var doc readingDoc
		if err := snap.DataTo(&doc); err != nil {
			return nil, goerr.Wrap(err, "failed to decode reading", goerr.V("id", snap.Ref.ID))
		}
		if doc.Reading != nil {
			readings = append(readings, doc.Reading)
		}
	}
	return readings, nil
}

func (r *Firestore) CountReadings(ctx context.Context) (int, error) {
	iter := r.collection().Select().Documents(ctx)
	defer iter.Stop()

	n := 0
	for {
		_, err := iter.Next()
		if err == iterator.Done {
			return n, nil
		}
		if err != nil {
			return 0, goerr.Wrap(err, "failed to count readings")
		}
		n++
	}
}

func (r *Firestore) UpdateFavorite(ctx context.Context, id model.ReadingID, favorite bool) error {
	_, err := r.collection().Doc(id.String()).Update(ctx, []firestore.Update{
		{Path: "reading.favorite", Value: favorite},
	})
	if isNotFound(err) {
		return goerr.Wrap(model.ErrReadingNotFound, "failed to update favorite", goerr.V("id", id))
	}
	if err != nil {
		return goerr.Wrap(err, "failed to update favorite", goerr.V("id", id))
	}
	return nil
}

func (r *Firestore) ToggleFavorite(ctx context.Context, id model.ReadingID) (*model.Reading, error) {
	ref := r.collection().Doc(id.String())

	var reading *model.Reading
	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if err != nil {
			return err
		}

		var doc readingDoc
		if err := snap.DataTo(&doc); err != nil {
			return goerr.Wrap(err, "failed to decode reading")
		}
		if doc.Reading == nil {
			return goerr.New("reading document is empty")
		}

		doc.Reading.Favorite = !doc.Reading.Favorite
		reading = doc.Reading
		return tx.Update(ref, []firestore.Update{
			{Path: "reading.favorite", Value: reading.Favorite},
		})
	})
	if isNotFound(err) {
		return nil, goerr.Wrap(model.ErrReadingNotFound, "failed to toggle favorite", goerr.V("id", id))
	}
	if err != nil {
		return nil, goerr.Wrap(err, "failed to toggle favorite", goerr.V("id", id))
	}
	return reading, nil
}

func (r *Firestore) DeleteReading(ctx context.Context, id model.ReadingID) error {
	_, err := r.collection().Doc(id.String()).Delete(ctx, firestore.Exists)
	if isNotFound(err) {
		return goerr.Wrap(model.ErrReadingNotFound, "failed to delete reading", goerr.V("id", id))
	}
	if err != nil {
		return goerr.Wrap(err, "failed to delete reading", goerr.V("id", id))
	}
	return nil
}

func (r *Firestore) ClearReadings(ctx context.Context) error {
	iter := r.collection().Select().Documents(ctx)
	defer iter.Stop()

	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			return nil
		}
		if err != nil {
			return goerr.Wrap(err, "failed to iterate readings")
		}
		if _, err := snap.Ref.Delete(ctx); err != nil {
			return goerr.Wrap(err, "failed to delete reading", goerr.V("id", snap.Ref.ID))
		}
	}
}
