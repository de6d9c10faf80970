package storage

import (
	"context"
	"io"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestLocalStorePutAndOpen(t *testing.T) {
	store, err := NewLocalStore(t.TempDir(), "http://localhost:8080/files/", zaptest.NewLogger(t))
	require.NoError(t, err)

	object, err := store.Put(context.Background(), "exports/org/job.csv", []byte("a,b\n1,2\n"))
	require.NoError(t, err)
	assert.Equal(t, int64(8), object.Size)
	assert.Equal(t, "http://localhost:8080/files/exports/org/job.csv", object.URL)

	written, err := os.ReadFile(object.Path)
	require.NoError(t, err)
	assert.Equal(t, "a,b\n1,2\n", string(written))

	file, err := store.Open(context.Background(), "exports/org/job.csv")
	require.NoError(t, err)
	defer file.Close()
	read, err := io.ReadAll(file)
	require.NoError(t, err)
	assert.Equal(t, written, read)
}

func TestLocalStoreOverwrites(t *testing.T) {
	store, err := NewLocalStore(t.TempDir(), "", nil)
	require.NoError(t, err)

	_, err = store.Put(context.Background(), "a.json", []byte(`{"v":1}`))
	require.NoError(t, err)
	object, err := store.Put(context.Background(), "a.json", []byte(`{"v":2}`))
	require.NoError(t, err)

	written, err := os.ReadFile(object.Path)
	require.NoError(t, err)
	assert.Equal(t, `{"v":2}`, string(written))
}

func TestLocalStoreRejectsEscapingKeys(t *testing.T) {
	store, err := NewLocalStore(t.TempDir(), "", nil)
	require.NoError(t, err)

	for _, key := range []string{"", "/", "../secret", "exports/../../x"} {
		_, err := store.Put(context.Background(), key, []byte("x"))
		assert.ErrorIs(t, err, ErrInvalidKey, "key %q", key)
	}
}

func TestLocalStoreHonoursCancelledContext(t *testing.T) {
	store, err := NewLocalStore(t.TempDir(), "", nil)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = store.Put(ctx, "a.txt", []byte("x"))
	assert.ErrorIs(t, err, context.Canceled)
}
