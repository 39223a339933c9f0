package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wizenheimer/wayback/internal/core"
)

func TestPutThenGetRoundTrips(t *testing.T) {
	t.Parallel()

	store := NewBlobStore()

	uri, err := store.PutObject(context.Background(), "content/abc/12/7", "text/plain", []byte("hello"))
	require.NoError(t, err)
	require.Equal(t, "memory://content/abc/12/7", uri)

	data, err := store.GetObject(context.Background(), "content/abc/12/7")
	require.NoError(t, err)
	require.Equal(t, []byte("hello"), data)
}

func TestGetMissingObjectReturnsSentinel(t *testing.T) {
	t.Parallel()

	store := NewBlobStore()

	_, err := store.GetObject(context.Background(), "content/missing/12/7")
	require.ErrorIs(t, err, core.ErrObjectNotFound)
}

func TestGetReturnsCopy(t *testing.T) {
	t.Parallel()

	store := NewBlobStore()
	_, err := store.PutObject(context.Background(), "p", "text/plain", []byte("orig"))
	require.NoError(t, err)

	data, err := store.GetObject(context.Background(), "p")
	require.NoError(t, err)
	data[0] = 'X'

	again, err := store.GetObject(context.Background(), "p")
	require.NoError(t, err)
	require.Equal(t, []byte("orig"), again)
}
