package gcs

import (
	"testing"

	"cloud.google.com/go/storage"
	"github.com/stretchr/testify/require"
)

func TestNewValidatesInputs(t *testing.T) {
	t.Parallel()

	_, err := New(nil, Config{Bucket: "b"})
	require.Error(t, err)

	_, err = New(&storage.Client{}, Config{})
	require.Error(t, err)
}

func TestObjectNameJoinsPrefix(t *testing.T) {
	t.Parallel()

	s, err := New(&storage.Client{}, Config{Bucket: "exhibitions", Prefix: "/snapshots/"})
	require.NoError(t, err)
	require.Equal(t, "snapshots/exhibitions.json", s.ObjectName("/exhibitions.json"))

	bare, err := New(&storage.Client{}, Config{Bucket: "exhibitions"})
	require.NoError(t, err)
	require.Equal(t, "exhibitions.json", bare.ObjectName("exhibitions.json"))
}
