package artifacts_test

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/visualearn/visualearn/pkg/artifacts"
	"github.com/visualearn/visualearn/pkg/models"
)

func TestSweepRemovesExpiredArtifacts(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	store, err := artifacts.NewStore(dir, 1024, slog.Default())
	require.NoError(t, err)

	expired, err := store.Persist(context.Background(), []byte("old"), models.FormatSVG)
	require.NoError(t, err)

	fresh, err := store.Persist(context.Background(), []byte("new"), models.FormatSVG)
	require.NoError(t, err)

	// Age the first artifact past the ttl.
	stale := time.Now().Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(filepath.Join(dir, expired.ID+".svg"), stale, stale))

	sweeper := artifacts.NewSweeper(store, time.Hour, time.Minute, slog.Default())
	sweeper.Sweep()

	_, _, err = store.Retrieve(context.Background(), expired.ID)
	assert.ErrorIs(t, err, artifacts.ErrNotFound)

	_, _, err = store.Retrieve(context.Background(), fresh.ID)
	assert.NoError(t, err)
}

func TestSweepIsIdempotent(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	store, err := artifacts.NewStore(dir, 1024, slog.Default())
	require.NoError(t, err)

	handle, err := store.Persist(context.Background(), []byte("keep"), models.FormatXML)
	require.NoError(t, err)

	sweeper := artifacts.NewSweeper(store, time.Hour, time.Minute, slog.Default())
	sweeper.Sweep()
	sweeper.Sweep()

	_, _, err = store.Retrieve(context.Background(), handle.ID)
	assert.NoError(t, err)
}

func TestSweepRemovesStaleTempFiles(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	store, err := artifacts.NewStore(dir, 1024, slog.Default())
	require.NoError(t, err)

	temp := filepath.Join(dir, ".tmp-abandoned")
	require.NoError(t, os.WriteFile(temp, []byte("partial"), 0o644))

	stale := time.Now().Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(temp, stale, stale))

	sweeper := artifacts.NewSweeper(store, time.Hour, time.Minute, slog.Default())
	sweeper.Sweep()

	_, err = os.Stat(temp)
	assert.True(t, os.IsNotExist(err))
}

func TestSweeperStartAndStop(t *testing.T) {
	t.Parallel()

	store, err := artifacts.NewStore(t.TempDir(), 1024, slog.Default())
	require.NoError(t, err)

	sweeper := artifacts.NewSweeper(store, time.Hour, time.Minute, slog.Default())
	require.NoError(t, sweeper.Start())
	sweeper.Stop()
}
