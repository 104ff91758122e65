package ledger

import (
	"fmt"
	"os"
	"sync"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/secopshq/survivault/internal/domain/errors"
	"github.com/secopshq/survivault/internal/domain/product"
)

// ProductStore persists the product ledger with the same whole-file
// atomic-replace discipline as the entity stores.
type ProductStore struct {
	path   string
	mu     sync.Mutex
	logger *zap.Logger
}

type productDocument struct {
	Products map[string]*product.Product `yaml:"products"`
}

func NewProductStore(path string, logger *zap.Logger) *ProductStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProductStore{path: path, logger: logger}
}

func (s *ProductStore) Path() string { return s.path }

// LoadOrEmpty reads the product ledger; a missing file is an empty ledger
// since products are seeded by detection, not required up front.
func (s *ProductStore) LoadOrEmpty() (map[string]*product.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return map[string]*product.Product{}, nil
	}
	if err != nil {
		return nil, errors.NewConfigError("LEDGER_UNREADABLE",
			fmt.Sprintf("reading product ledger %s", s.path)).WithCause(err)
	}

	var doc productDocument
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, errors.NewConfigError("LEDGER_INVALID",
			fmt.Sprintf("parsing product ledger %s", s.path)).WithCause(err)
	}
	if doc.Products == nil {
		doc.Products = map[string]*product.Product{}
	}
	for id, p := range doc.Products {
		if p == nil {
			delete(doc.Products, id)
			continue
		}
		p.ID = id
	}
	return doc.Products, nil
}

// Save rewrites the product ledger atomically.
func (s *ProductStore) Save(products map[string]*product.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := yaml.Marshal(productDocument{Products: products})
	if err != nil {
		return errors.Wrap(err, "marshaling product ledger")
	}
	if err := atomicWrite(s.path, raw); err != nil {
		return errors.Wrap(err, fmt.Sprintf("writing product ledger %s", s.path))
	}
	s.logger.Debug("product ledger saved",
		zap.String("path", s.path),
		zap.Int("products", len(products)))
	return nil
}
