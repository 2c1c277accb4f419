package manifest

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	sberrors "git.home.luguber.info/inful/sitebuilder/internal/errors"
)

const manifestFileName = "manifest.json"

// Store persists the manifest under <cacheDir>/cache/manifest.json.
//
// Single-writer discipline: only the build orchestrator calls Save during a
// cycle, never concurrently. AppendPendingInvalidation is the one exception
// and is intended for the standalone invalidate command, which runs in its
// own process and does not overlap a build.
type Store struct {
	dir    string
	logger *slog.Logger
}

// NewStore creates the cache directory if needed. Failure to create or open
// it is the only fatal error class in the engine.
func NewStore(cacheDir string) (*Store, error) {
	dir := filepath.Join(cacheDir, "cache")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, sberrors.FatalFS(err, "cannot create cache directory").WithContext("dir", dir)
	}
	return &Store{dir: dir, logger: slog.Default()}, nil
}

// WithLogger sets a custom logger.
func (s *Store) WithLogger(logger *slog.Logger) *Store {
	s.logger = logger
	return s
}

// Path returns the manifest file location.
func (s *Store) Path() string {
	return filepath.Join(s.dir, manifestFileName)
}

// Load reads the manifest from disk. A missing file, unreadable JSON, or a
// schema version mismatch all degrade to an empty manifest (full rebuild)
// rather than failing; the engine never trusts partially valid state.
func (s *Store) Load() *Manifest {
	data, err := os.ReadFile(s.Path())
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn("Manifest unreadable; starting cold", "path", s.Path(), "error", err)
		}
		return New()
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		s.logger.Warn("Manifest corrupt; discarding", "path", s.Path(), "error", err)
		return New()
	}
	if m.SchemaVersion != SchemaVersion {
		s.logger.Warn("Manifest schema mismatch; discarding",
			"found", m.SchemaVersion, "want", SchemaVersion)
		return New()
	}
	if m.Entries == nil {
		m.Entries = make(map[string]*PageCacheEntry)
	}
	return &m
}

// Save writes the manifest atomically: marshal to a temp file in the same
// directory, fsync, then rename over the previous manifest. A crash mid-write
// leaves the prior manifest intact.
func (s *Store) Save(m *Manifest) error {
	m.SchemaVersion = SchemaVersion
	m.GeneratedAt = time.Now().UTC()

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return sberrors.Wrap(err, sberrors.CategoryManifest, sberrors.SeverityError, "marshal manifest")
	}

	tmp, err := os.CreateTemp(s.dir, manifestFileName+".tmp-*")
	if err != nil {
		return sberrors.Wrap(err, sberrors.CategoryManifest, sberrors.SeverityError, "create temp manifest")
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return sberrors.Wrap(err, sberrors.CategoryManifest, sberrors.SeverityError, "write temp manifest")
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return sberrors.Wrap(err, sberrors.CategoryManifest, sberrors.SeverityError, "sync temp manifest")
	}
	if err := tmp.Close(); err != nil {
		return sberrors.Wrap(err, sberrors.CategoryManifest, sberrors.SeverityError, "close temp manifest")
	}

	if err := os.Rename(tmpName, s.Path()); err != nil {
		return sberrors.Wrap(err, sberrors.CategoryManifest, sberrors.SeverityError,
			fmt.Sprintf("rename manifest into place at %s", s.Path()))
	}
	return nil
}

// AppendPendingInvalidation durably records an invalidation request,
// independent of any build cycle. The record survives restarts until a
// future build consumes it.
func (s *Store) AppendPendingInvalidation(rec PendingInvalidation) error {
	m := s.Load()
	m.AppendPending(rec)
	return s.Save(m)
}
