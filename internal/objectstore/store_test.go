package objectstore_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"castsync/internal/config"
	"castsync/internal/logging"
	"castsync/internal/objectstore"
	"castsync/internal/services"
)

func backends(t *testing.T) map[string]objectstore.Store {
	t.Helper()
	ctx := context.Background()

	dir, err := objectstore.NewDir(t.TempDir())
	require.NoError(t, err)

	sqlite, err := objectstore.OpenSQLite(ctx, filepath.Join(t.TempDir(), "objects.db"))
	require.NoError(t, err)

	bdg, err := objectstore.OpenBadger("", logging.NewNop())
	require.NoError(t, err)

	stores := map[string]objectstore.Store{
		"memory": objectstore.NewMemory(),
		"dir":    dir,
		"sqlite": sqlite,
		"badger": bdg,
	}
	t.Cleanup(func() {
		for _, s := range stores {
			_ = s.Close()
		}
	})
	return stores
}

func TestStoreContract(t *testing.T) {
	ctx := context.Background()
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ok, err := store.Exists(ctx, "demo/abc.json")
			require.NoError(t, err)
			assert.False(t, ok)

			_, err = store.Get(ctx, "demo/abc.json")
			require.Error(t, err)
			assert.True(t, errors.Is(err, services.ErrNotFound), "expected ErrNotFound, got %v", err)

			require.NoError(t, store.Put(ctx, "demo/abc.json", []byte(`{"id":"abc"}`), objectstore.ContentTypeJSON))
			require.NoError(t, store.Put(ctx, "demo/abc.mp3", []byte("ID3"), objectstore.ContentTypeMP3))
			require.NoError(t, store.Put(ctx, "demo/state/items.limiter", []byte(`{}`), objectstore.ContentTypeJSON))
			require.NoError(t, store.Put(ctx, "other/zzz.json", []byte(`{}`), objectstore.ContentTypeJSON))
			require.NoError(t, store.Put(ctx, "demo/aaa.json", []byte(`{"id":"aaa"}`), objectstore.ContentTypeJSON))

			ok, err = store.Exists(ctx, "demo/abc.json")
			require.NoError(t, err)
			assert.True(t, ok)

			data, err := store.Get(ctx, "demo/abc.json")
			require.NoError(t, err)
			assert.JSONEq(t, `{"id":"abc"}`, string(data))

			require.NoError(t, store.Put(ctx, "demo/abc.json", []byte(`{"id":"abc","v":2}`), objectstore.ContentTypeJSON))
			data, err = store.Get(ctx, "demo/abc.json")
			require.NoError(t, err)
			assert.JSONEq(t, `{"id":"abc","v":2}`, string(data))

			keys, err := store.ListKeysBySuffix(ctx, "demo/", ".json")
			require.NoError(t, err)
			assert.Equal(t, []string{"demo/aaa.json", "demo/abc.json"}, keys)

			all, err := store.ListKeysBySuffix(ctx, "", ".json")
			require.NoError(t, err)
			assert.Equal(t, []string{"demo/aaa.json", "demo/abc.json", "other/zzz.json"}, all)
		})
	}
}

func TestStoreRejectsTraversalKeys(t *testing.T) {
	ctx := context.Background()
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			for _, key := range []string{"", "../escape.json", "demo/../../x", "demo//double"} {
				err := store.Put(ctx, key, []byte("x"), "")
				require.Error(t, err, "key %q", key)
				assert.True(t, errors.Is(err, services.ErrValidation))
			}
		})
	}
}

func TestPutFileStreamsOrFallsBack(t *testing.T) {
	ctx := context.Background()
	src := filepath.Join(t.TempDir(), "episode.mp3")
	require.NoError(t, os.WriteFile(src, []byte("audio-bytes"), 0o644))

	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, objectstore.PutFile(ctx, store, "demo/episode.mp3", src, objectstore.ContentTypeMP3))
			data, err := store.Get(ctx, "demo/episode.mp3")
			require.NoError(t, err)
			assert.Equal(t, "audio-bytes", string(data))
		})
	}
}

func TestMemoryRecordsContentType(t *testing.T) {
	mem := objectstore.NewMemory()
	require.NoError(t, mem.Put(context.Background(), "demo/podcast.xml", []byte("<rss/>"), objectstore.ContentTypeXML))
	assert.Equal(t, objectstore.ContentTypeXML, mem.ContentType("demo/podcast.xml"))
}

func TestSQLiteReopenKeepsData(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "objects.db")

	first, err := objectstore.OpenSQLite(ctx, path)
	require.NoError(t, err)
	require.NoError(t, first.Put(ctx, "demo/a.json", []byte("{}"), objectstore.ContentTypeJSON))
	require.NoError(t, first.Close())

	second, err := objectstore.OpenSQLite(ctx, path)
	require.NoError(t, err)
	defer second.Close()
	ok, err := second.Exists(ctx, "demo/a.json")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestPublicURL(t *testing.T) {
	assert.Equal(t, "https://cdn.example.com/podcasts/demo/abc%20def.mp3",
		objectstore.PublicURL("https://cdn.example.com/podcasts/", "demo/abc def.mp3"))
	assert.Equal(t, "https://s3.example.com/bucket/podcast.xml",
		objectstore.PublicURL("https://s3.example.com/bucket", "/podcast.xml"))
}

func TestOpenSelectsBackend(t *testing.T) {
	cfg := config.Default()
	cfg.Storage.Backend = config.BackendMemory
	store, err := objectstore.Open(context.Background(), &cfg, logging.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &objectstore.Memory{}, store)

	cfg.Storage.Backend = "ftp"
	_, err = objectstore.Open(context.Background(), &cfg, logging.NewNop())
	require.Error(t, err)
	assert.True(t, errors.Is(err, services.ErrConfiguration))

	cfg.Storage.Backend = config.BackendS3
	cfg.Storage.S3.Endpoint = "s3.example.com"
	cfg.Storage.S3.Bucket = "podcasts"
	store, err = objectstore.Open(context.Background(), &cfg, logging.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &objectstore.S3{}, store)
}
