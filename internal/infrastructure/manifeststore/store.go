package manifeststore

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/secopshq/survivault/internal/domain/errors"
	"github.com/secopshq/survivault/internal/domain/manifest"
)

// Store keeps pending remediation proposals under a date-partitioned
// directory, one YAML file per entity:
//
//	<root>/<YYYYMMDD>/<entity-id>.yaml
//
// File presence is the persistence signal for "pending"; Discard removes
// the file once the proposal is resolved. The store enforces at most one
// pending manifest per entity across all date partitions, and Stage
// rejects (never overwrites) while one exists: re-running the evaluator
// before a prior proposal is resolved must not silently duplicate it.
type Store struct {
	root   string
	mu     sync.Mutex
	logger *zap.Logger
	now    func() time.Time
}

func NewStore(root string, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{root: root, logger: logger, now: time.Now}
}

// WithClock overrides the partition clock; tests use it to pin dates.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

// Stage persists a pending manifest and returns its id. Returns
// ErrManifestPending when the entity already has an unresolved proposal.
func (s *Store) Stage(m manifest.Manifest) (uuid.UUID, error) {
	if err := m.Validate(); err != nil {
		return uuid.Nil, errors.NewValidationError("MANIFEST_INVALID", err.Error())
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.list()
	if err != nil {
		return uuid.Nil, err
	}
	for _, prev := range existing {
		if prev.EntityID == m.EntityID {
			return uuid.Nil, errors.ErrManifestPending
		}
	}

	dir := filepath.Join(s.root, s.now().Format("20060102"))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return uuid.Nil, errors.Wrap(err, "creating manifest partition")
	}

	m.Status = manifest.StatusPending
	raw, err := yaml.Marshal(m)
	if err != nil {
		return uuid.Nil, errors.Wrap(err, "marshaling manifest")
	}
	path := filepath.Join(dir, m.EntityID+".yaml")
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return uuid.Nil, errors.Wrap(err, fmt.Sprintf("writing manifest %s", path))
	}

	s.logger.Info("manifest staged",
		zap.String("entity_id", m.EntityID),
		zap.String("manifest_id", m.ID.String()),
		zap.String("action", m.ProposedAction.String()))
	return m.ID, nil
}

// List returns every pending manifest, oldest partition first.
func (s *Store) List() ([]manifest.Manifest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.list()
}

func (s *Store) list() ([]manifest.Manifest, error) {
	var out []manifest.Manifest

	entries, err := os.ReadDir(s.root)
	if os.IsNotExist(err) {
		return out, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "reading manifest root")
	}

	var dirs []string
	for _, e := range entries {
		if e.IsDir() {
			dirs = append(dirs, e.Name())
		}
	}
	sort.Strings(dirs)

	for _, d := range dirs {
		files, err := os.ReadDir(filepath.Join(s.root, d))
		if err != nil {
			return nil, errors.Wrap(err, "reading manifest partition")
		}
		for _, f := range files {
			name := f.Name()
			if f.IsDir() || (!strings.HasSuffix(name, ".yaml") && !strings.HasSuffix(name, ".yml")) {
				continue
			}
			path := filepath.Join(s.root, d, name)
			raw, err := os.ReadFile(path)
			if err != nil {
				return nil, errors.Wrap(err, fmt.Sprintf("reading manifest %s", path))
			}
			var m manifest.Manifest
			if err := yaml.Unmarshal(raw, &m); err != nil {
				// A corrupt manifest is logged and skipped, never
				// guessed at.
				s.logger.Error("skipping unparseable manifest",
					zap.String("path", path), zap.Error(err))
				continue
			}
			m.Status = manifest.StatusPending
			out = append(out, m)
		}
	}
	return out, nil
}

// HasPending reports whether an unresolved proposal exists for the entity.
func (s *Store) HasPending(entityID string) (bool, error) {
	all, err := s.List()
	if err != nil {
		return false, err
	}
	for _, m := range all {
		if m.EntityID == entityID {
			return true, nil
		}
	}
	return false, nil
}

// MarkFailed records a non-retryable failure class on a staged manifest
// so later passes know not to re-apply it. Marking an already resolved
// manifest is a not-found error: the caller's view is stale.
func (s *Store) MarkFailed(id uuid.UUID, failure string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path, err := s.findPath(id)
	if err != nil {
		return err
	}
	if path == "" {
		return errors.ErrManifestNotFound
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrap(err, fmt.Sprintf("reading manifest %s", path))
	}
	var m manifest.Manifest
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return errors.Wrap(err, fmt.Sprintf("parsing manifest %s", path))
	}
	m.LastFailure = failure
	out, err := yaml.Marshal(m)
	if err != nil {
		return errors.Wrap(err, "marshaling manifest")
	}
	if err := os.WriteFile(path, out, 0o644); err != nil {
		return errors.Wrap(err, fmt.Sprintf("writing manifest %s", path))
	}

	s.logger.Warn("manifest marked failed",
		zap.String("manifest_id", id.String()),
		zap.String("failure", failure))
	return nil
}

// Discard resolves a manifest by removing its file. Discarding an already
// absent manifest is a no-op: resolution is idempotent.
func (s *Store) Discard(id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path, err := s.findPath(id)
	if err != nil {
		return err
	}
	if path == "" {
		return nil
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, fmt.Sprintf("removing manifest %s", path))
	}
	s.logger.Info("manifest discarded", zap.String("manifest_id", id.String()))
	return nil
}

func (s *Store) findPath(id uuid.UUID) (string, error) {
	var found string
	err := filepath.WalkDir(s.root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return filepath.SkipAll
			}
			return err
		}
		if d.IsDir() || found != "" {
			return nil
		}
		if !strings.HasSuffix(path, ".yaml") && !strings.HasSuffix(path, ".yml") {
			return nil
		}
		raw, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		var m manifest.Manifest
		if err := yaml.Unmarshal(raw, &m); err != nil {
			return nil
		}
		if m.ID == id {
			found = path
		}
		return nil
	})
	if err != nil {
		return "", errors.Wrap(err, "locating manifest")
	}
	return found, nil
}
