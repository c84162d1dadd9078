package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBlobStoreRoundTrip(t *testing.T) {
	t.Parallel()

	store := NewBlobStore()
	uri, err := store.PutObject(context.Background(), "exhibitions.json", "application/json", []byte("[]"))
	require.NoError(t, err)
	require.Equal(t, "memory://exhibitions.json", uri)

	data, ok := store.Object("exhibitions.json")
	require.True(t, ok)
	require.Equal(t, "[]", string(data))
	require.Equal(t, 1, store.Writes())

	_, err = store.PutObject(context.Background(), "", "", nil)
	require.Error(t, err)
}
