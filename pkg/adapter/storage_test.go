package adapter_test

import (
	"context"
	"errors"
	"io"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/m-mizutani/arcana/pkg/adapter"
	"github.com/m-mizutani/gt"
)

func testStorage(t *testing.T, s adapter.Storage, key string) {
	ctx := context.Background()

	w, err := s.Put(ctx, key)
	gt.NoError(t, err)
	_, err = io.WriteString(w, `{"readings":[]}`)
	gt.NoError(t, err)
	gt.NoError(t, w.Close())

	r, err := s.Get(ctx, key)
	gt.NoError(t, err)
	defer r.Close()
	data, err := io.ReadAll(r)
	gt.NoError(t, err)
	gt.Equal(t, string(data), `{"readings":[]}`)

	_, err = s.Get(ctx, key+".missing")
	gt.True(t, errors.Is(err, adapter.ErrObjectNotFound))
}

func TestFileStorage(t *testing.T) {
	testStorage(t, adapter.NewFileStorage(t.TempDir()), "archive/history.json")
}

func TestCloudStorage(t *testing.T) {
	bucket := os.Getenv("TEST_GCS_BUCKET")
	if bucket == "" {
		t.Skip("TEST_GCS_BUCKET is not set")
	}

	s, err := adapter.NewStorage(context.Background(), bucket)
	gt.NoError(t, err)
	testStorage(t, s, "arcana-test/"+uuid.NewString()+".json")
}
