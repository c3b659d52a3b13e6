// Package artifacts persists run outputs under opaque identifiers with a
// bounded lifetime enforced by a background sweep.
package artifacts

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/google/uuid"

	"github.com/visualearn/visualearn/pkg/models"
)

// ErrNotFound is returned when no artifact exists for an id, including when
// the sweep deleted it between lookup and read.
var ErrNotFound = errors.New("artifact not found")

// tmpPrefix marks in-progress writes so the sweep can distinguish them.
const tmpPrefix = ".tmp-"

// idPattern is the naming grammar for artifact identifiers: a canonical
// UUID. Anything else, in particular anything containing a path separator
// or a dot, is rejected before the filesystem is touched.
var idPattern = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)

// formatWhitelist restricts the extensions the store will ever write or read.
var formatWhitelist = map[string]struct{}{
	models.FormatSVG: {},
	models.FormatXML: {},
	models.FormatPNG: {},
}

// Store writes artifacts atomically into a single flat directory. It is safe
// for concurrent use by many runs and the sweeper: writes go through a temp
// file plus rename, and reads treat vanished files as not found.
type Store struct {
	root    string
	maxSize int64
	logger  *slog.Logger
}

// NewStore creates the artifact directory if needed.
func NewStore(root string, maxSize int64, logger *slog.Logger) (*Store, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create artifact directory: %w", err)
	}

	return &Store{
		root:    root,
		maxSize: maxSize,
		logger:  logger,
	}, nil
}

// Persist stores content under a fresh random identifier.
func (s *Store) Persist(_ context.Context, content []byte, format string) (models.ArtifactHandle, error) {
	if _, ok := formatWhitelist[format]; !ok {
		return models.ArtifactHandle{}, fmt.Errorf("invalid artifact format %q", format)
	}

	if int64(len(content)) > s.maxSize {
		return models.ArtifactHandle{}, fmt.Errorf("artifact size %d exceeds maximum %d", len(content), s.maxSize)
	}

	id := uuid.NewString()

	tmp, err := os.CreateTemp(s.root, tmpPrefix+"*")
	if err != nil {
		return models.ArtifactHandle{}, fmt.Errorf("create temp file: %w", err)
	}

	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())

		return models.ArtifactHandle{}, fmt.Errorf("write artifact: %w", err)
	}

	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return models.ArtifactHandle{}, fmt.Errorf("close artifact: %w", err)
	}

	// Rename is atomic, so a partially written artifact is never visible
	// under its final name.
	final := filepath.Join(s.root, id+"."+format)
	if err := os.Rename(tmp.Name(), final); err != nil {
		os.Remove(tmp.Name())
		return models.ArtifactHandle{}, fmt.Errorf("finalize artifact: %w", err)
	}

	handle := models.ArtifactHandle{
		ID:        id,
		Format:    format,
		CreatedAt: time.Now().UTC(),
		SizeBytes: int64(len(content)),
	}

	s.logger.Info("artifact stored", "id", id, "format", format, "size_bytes", handle.SizeBytes)

	return handle, nil
}

// Retrieve returns the stored bytes and format for an id. The id is checked
// against the naming grammar before any filesystem access.
func (s *Store) Retrieve(_ context.Context, id string) ([]byte, string, error) {
	if !idPattern.MatchString(id) {
		return nil, "", fmt.Errorf("invalid artifact id: %w", ErrNotFound)
	}

	for format := range formatWhitelist {
		content, err := os.ReadFile(filepath.Join(s.root, id+"."+format))
		if err == nil {
			return content, format, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, "", fmt.Errorf("read artifact %s: %w", id, err)
		}
	}

	return nil, "", ErrNotFound
}

// Delete removes an artifact if it exists. Deleting an absent artifact is
// not an error, which keeps failure cleanup and the sweep idempotent.
func (s *Store) Delete(_ context.Context, id string) error {
	if !idPattern.MatchString(id) {
		return fmt.Errorf("invalid artifact id: %w", ErrNotFound)
	}

	for format := range formatWhitelist {
		err := os.Remove(filepath.Join(s.root, id+"."+format))
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("delete artifact %s: %w", id, err)
		}
	}

	return nil
}

// sweepOnce deletes everything older than ttl, including stale temp files
// from writes that never completed. Returns the number of files removed.
func (s *Store) sweepOnce(ttl time.Duration) (int, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return 0, fmt.Errorf("list artifact directory: %w", err)
	}

	deleted := 0
	cutoff := time.Now().Add(-ttl)

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			// Vanished between list and stat; somebody else removed it.
			continue
		}

		if info.ModTime().After(cutoff) {
			continue
		}

		err = os.Remove(filepath.Join(s.root, entry.Name()))
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			s.logger.Warn("sweep failed to remove file", "file", entry.Name(), "error", err)
			continue
		}

		deleted++
	}

	return deleted, nil
}
