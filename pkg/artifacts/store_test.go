package artifacts_test

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/visualearn/visualearn/pkg/artifacts"
	"github.com/visualearn/visualearn/pkg/models"
)

func newStore(t *testing.T) *artifacts.Store {
	t.Helper()

	store, err := artifacts.NewStore(t.TempDir(), 1024, slog.Default())
	require.NoError(t, err)

	return store
}

func TestStoreRoundTrip(t *testing.T) {
	t.Parallel()

	store := newStore(t)
	content := []byte("<svg>diagram</svg>")

	handle, err := store.Persist(context.Background(), content, models.FormatSVG)
	require.NoError(t, err)

	assert.NotEmpty(t, handle.ID)
	assert.Equal(t, models.FormatSVG, handle.Format)
	assert.Equal(t, int64(len(content)), handle.SizeBytes)

	got, format, err := store.Retrieve(context.Background(), handle.ID)
	require.NoError(t, err)

	assert.Equal(t, content, got)
	assert.Equal(t, models.FormatSVG, format)
}

func TestStoreIDsAreUnique(t *testing.T) {
	t.Parallel()

	store := newStore(t)

	first, err := store.Persist(context.Background(), []byte("a"), models.FormatXML)
	require.NoError(t, err)

	second, err := store.Persist(context.Background(), []byte("a"), models.FormatXML)
	require.NoError(t, err)

	assert.NotEqual(t, first.ID, second.ID)
}

func TestStoreRejectsOversizedContent(t *testing.T) {
	t.Parallel()

	store := newStore(t)

	_, err := store.Persist(context.Background(), make([]byte, 2048), models.FormatSVG)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds maximum")
}

func TestStoreRejectsUnknownFormat(t *testing.T) {
	t.Parallel()

	store := newStore(t)

	_, err := store.Persist(context.Background(), []byte("x"), "exe")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid artifact format")
}

func TestRetrieveUnknownID(t *testing.T) {
	t.Parallel()

	store := newStore(t)

	_, _, err := store.Retrieve(context.Background(), "0c9cd123-0b85-47ae-9b2f-1a4f4a5f3a10")
	assert.ErrorIs(t, err, artifacts.ErrNotFound)
}

func TestRetrieveRejectsMalformedIDs(t *testing.T) {
	t.Parallel()

	store := newStore(t)

	ids := []string{
		"",
		"not-a-uuid",
		"../../../etc/passwd",
		"0c9cd123-0b85-47ae-9b2f-1a4f4a5f3a10.svg",
		"0C9CD123-0B85-47AE-9B2F-1A4F4A5F3A10",
		"0c9cd123/0b85/47ae/9b2f/1a4f4a5f3a10",
	}

	for _, id := range ids {
		_, _, err := store.Retrieve(context.Background(), id)
		assert.ErrorIs(t, err, artifacts.ErrNotFound, "id %q must be rejected", id)
	}
}

func TestDeleteIsIdempotent(t *testing.T) {
	t.Parallel()

	store := newStore(t)

	handle, err := store.Persist(context.Background(), []byte("x"), models.FormatSVG)
	require.NoError(t, err)

	require.NoError(t, store.Delete(context.Background(), handle.ID))
	require.NoError(t, store.Delete(context.Background(), handle.ID))

	_, _, err = store.Retrieve(context.Background(), handle.ID)
	assert.ErrorIs(t, err, artifacts.ErrNotFound)
}

func TestRetrieveAfterExternalRemoval(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	store, err := artifacts.NewStore(dir, 1024, slog.Default())
	require.NoError(t, err)

	handle, err := store.Persist(context.Background(), []byte("x"), models.FormatPNG)
	require.NoError(t, err)

	require.NoError(t, os.Remove(filepath.Join(dir, handle.ID+".png")))

	_, _, err = store.Retrieve(context.Background(), handle.ID)
	assert.ErrorIs(t, err, artifacts.ErrNotFound)
}

func TestStoreLeavesNoTempFiles(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	store, err := artifacts.NewStore(dir, 1024, slog.Default())
	require.NoError(t, err)

	_, err = store.Persist(context.Background(), []byte("x"), models.FormatSVG)
	require.NoError(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.NotContains(t, entries[0].Name(), ".tmp-")
}
