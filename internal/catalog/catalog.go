// Package catalog is the read side of the cached stores and products, and
// the single write that replaces them after a refresh from the web service.
package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/joostmulder/AuditPro/internal/model"
	"github.com/joostmulder/AuditPro/internal/store"
	"github.com/joostmulder/AuditPro/internal/tables"
	"github.com/sirupsen/logrus"
)

// ErrStoreNotFound is returned when a store id is not in the catalog.
var ErrStoreNotFound = errors.New("store not found")

// Config holds repository options.
type Config struct {
	Logger logrus.FieldLogger
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Logger: logrus.StandardLogger().WithField("component", "catalog"),
	}
}

// Repository reads and replaces the cached catalog.
type Repository struct {
	db       *store.DB
	stores   *tables.StoreTable
	products *tables.ProductTable
	logger   logrus.FieldLogger

	// step runs between the writes of ApplyRefresh.
	step func(op string) error
}

// New creates a repository with the default configuration.
func New(db *store.DB) *Repository {
	return NewWithConfig(db, DefaultConfig())
}

// NewWithConfig creates a repository with custom configuration.
func NewWithConfig(db *store.DB, cfg *Config) *Repository {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = DefaultConfig().Logger
	}
	return &Repository{
		db:       db,
		stores:   tables.NewStoreTable(db),
		products: tables.NewProductTable(db),
		logger:   logger,
		step:     func(string) error { return nil },
	}
}

// IsEmpty reports whether no store has been cached yet.
func (r *Repository) IsEmpty(ctx context.Context) (bool, error) {
	empty, err := r.stores.IsEmpty(ctx)
	if err != nil {
		r.logger.WithError(err).WithField("op", "is empty").Error("catalog query failed")
		return false, err
	}
	return empty, nil
}

// GetStores returns every cached store.
func (r *Repository) GetStores(ctx context.Context) ([]model.Store, error) {
	list, err := r.stores.List(ctx)
	if err != nil {
		r.logger.WithError(err).WithField("op", "stores").Error("catalog query failed")
		return nil, err
	}
	return list, nil
}

// GetStore returns the store with id, or nil.
func (r *Repository) GetStore(ctx context.Context, id int64) (*model.Store, error) {
	s, err := r.stores.Get(ctx, id)
	if err != nil {
		r.logger.WithError(err).WithFields(logrus.Fields{"op": "store", "store_id": id}).Error("catalog query failed")
		return nil, err
	}
	return s, nil
}

// GetProductsForStore returns the products the store's client carries at
// the store's chain.
func (r *Repository) GetProductsForStore(ctx context.Context, storeID int64) ([]model.Product, error) {
	s, err := r.GetStore(ctx, storeID)
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, fmt.Errorf("%w: %d", ErrStoreNotFound, storeID)
	}

	list, err := r.products.ListFor(ctx, s.ClientID, s.ChainID)
	if err != nil {
		r.logger.WithError(err).WithFields(logrus.Fields{"op": "products", "store_id": storeID}).Error("catalog query failed")
		return nil, err
	}
	return list, nil
}

// GetChains returns the distinct chains of the cached stores.
func (r *Repository) GetChains(ctx context.Context) ([]model.Chain, error) {
	list, err := r.stores.Chains(ctx)
	if err != nil {
		r.logger.WithError(err).WithField("op", "chains").Error("catalog query failed")
		return nil, err
	}
	return list, nil
}

// Counts returns the number of cached stores and products.
func (r *Repository) Counts(ctx context.Context) (stores, products int, err error) {
	if stores, err = r.stores.Count(ctx); err != nil {
		return 0, 0, err
	}
	if products, err = r.products.Count(ctx); err != nil {
		return 0, 0, err
	}
	return stores, products, nil
}

// ApplyRefresh replaces the whole catalog in one transaction. On any
// failure the previous catalog is left as it was.
func (r *Repository) ApplyRefresh(ctx context.Context, stores []model.Store, products []model.Product) error {
	err := r.db.WithTx(ctx, func(tx *sql.Tx) error {
		st := r.stores.WithTx(tx)
		pt := r.products.WithTx(tx)

		if err := st.DeleteAll(ctx); err != nil {
			return err
		}
		if err := r.step("stores:deleted"); err != nil {
			return err
		}
		for _, s := range stores {
			if err := st.Insert(ctx, s); err != nil {
				return err
			}
		}
		if err := r.step("stores:inserted"); err != nil {
			return err
		}
		if err := pt.DeleteAll(ctx); err != nil {
			return err
		}
		for _, p := range products {
			if err := pt.Insert(ctx, p); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		r.logger.WithError(err).WithField("op", "refresh").Error("catalog refresh failed")
		return fmt.Errorf("failed to update catalog: %w", err)
	}

	r.logger.WithFields(logrus.Fields{"stores": len(stores), "products": len(products)}).Info("catalog refreshed")
	return nil
}
