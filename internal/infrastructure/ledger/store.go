package ledger

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/secopshq/survivault/internal/domain/entity"
	"github.com/secopshq/survivault/internal/domain/errors"
)

// Store persists one entity ledger: a mapping of entity records keyed by
// id. The whole file is read into memory and rewritten atomically (temp
// file + rename) on every save; there is no incremental patching. A
// store-level mutex enforces single-writer discipline, and passes save
// after each entity's reconciliation so a killed process always leaves a
// resumable ledger behind.
type Store struct {
	path   string
	mu     sync.Mutex
	logger *zap.Logger
}

type document struct {
	Entities map[string]*entity.Entity `yaml:"entities"`
}

func NewStore(path string, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{path: path, logger: logger}
}

func (s *Store) Path() string { return s.path }

// Load reads the full ledger. A missing or unparseable file is a
// ConfigError: scoring and remediation must abort before any write.
func (s *Store) Load() (map[string]*entity.Entity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := os.ReadFile(s.path)
	if err != nil {
		return nil, errors.NewConfigError("LEDGER_UNREADABLE",
			fmt.Sprintf("reading ledger %s", s.path)).WithCause(err)
	}
	return s.decode(raw)
}

// LoadOrEmpty is Load for seeding paths (member sync, agent detection): a
// missing file yields an empty ledger instead of an error.
func (s *Store) LoadOrEmpty() (map[string]*entity.Entity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return map[string]*entity.Entity{}, nil
	}
	if err != nil {
		return nil, errors.NewConfigError("LEDGER_UNREADABLE",
			fmt.Sprintf("reading ledger %s", s.path)).WithCause(err)
	}
	return s.decode(raw)
}

func (s *Store) decode(raw []byte) (map[string]*entity.Entity, error) {
	var doc document
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, errors.NewConfigError("LEDGER_INVALID",
			fmt.Sprintf("parsing ledger %s", s.path)).WithCause(err)
	}
	if doc.Entities == nil {
		doc.Entities = map[string]*entity.Entity{}
	}
	// The map key is authoritative for the id.
	for id, e := range doc.Entities {
		if e == nil {
			delete(doc.Entities, id)
			continue
		}
		e.ID = id
	}
	return doc.Entities, nil
}

// Save rewrites the entire ledger atomically.
func (s *Store) Save(entities map[string]*entity.Entity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := yaml.Marshal(document{Entities: entities})
	if err != nil {
		return errors.Wrap(err, "marshaling ledger")
	}
	if err := atomicWrite(s.path, raw); err != nil {
		return errors.Wrap(err, fmt.Sprintf("writing ledger %s", s.path))
	}
	s.logger.Debug("ledger saved",
		zap.String("path", s.path),
		zap.Int("entities", len(entities)))
	return nil
}

// atomicWrite replaces path via a temp file in the same directory so
// readers never observe a half-written ledger.
func atomicWrite(path string, raw []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, path)
}
