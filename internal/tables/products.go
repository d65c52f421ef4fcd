package tables

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/joostmulder/AuditPro/internal/model"
	"github.com/joostmulder/AuditPro/internal/store"
)

const productsDDL = `
CREATE TABLE IF NOT EXISTS products (
	chain_x_product_id INTEGER PRIMARY KEY,
	client_id INTEGER NOT NULL,
	chain_id INTEGER NOT NULL,
	product_id INTEGER NOT NULL,
	brand_name TEXT,
	brand_name_short TEXT,
	product_name TEXT,
	upc TEXT,
	msrp REAL,
	is_random_weight INTEGER NOT NULL DEFAULT 0,
	retail_price_min REAL,
	retail_price_max REAL,
	retail_price_average REAL,
	category_name TEXT,
	subcategory_name TEXT,
	product_type_name TEXT,
	current_reorder_code TEXT,
	previous_reorder_code TEXT,
	brand_sku TEXT,
	last_scanned_at TEXT,
	last_scanned_price REAL,
	last_scan_was_sale INTEGER,
	chain_sku TEXT,
	in_stock_price_min REAL,
	in_stock_price_max REAL
)`

const productColumns = `chain_x_product_id, client_id, chain_id, product_id, brand_name, brand_name_short,
	product_name, upc, msrp, is_random_weight, retail_price_min, retail_price_max, retail_price_average,
	category_name, subcategory_name, product_type_name, current_reorder_code, previous_reorder_code,
	brand_sku, last_scanned_at, last_scanned_price, last_scan_was_sale, chain_sku,
	in_stock_price_min, in_stock_price_max`

// ProductTable caches the products carried by each chain.
type ProductTable struct {
	q store.Querier
}

// NewProductTable binds the table to db.
func NewProductTable(db *store.DB) *ProductTable {
	return &ProductTable{q: db.Querier()}
}

// WithTx returns a copy bound to tx.
func (t *ProductTable) WithTx(tx *sql.Tx) *ProductTable {
	return &ProductTable{q: tx}
}

func (t *ProductTable) Name() string { return "products" }

func (t *ProductTable) Create(ctx context.Context, q store.Querier) error {
	return execAll(ctx, q, productsDDL,
		`CREATE INDEX IF NOT EXISTS idx_products_client_chain ON products(client_id, chain_id)`)
}

func (t *ProductTable) Upgrade(ctx context.Context, q store.Querier, from int) error {
	if from < 2 {
		return addColumns(ctx, q, "products",
			"chain_sku TEXT", "in_stock_price_min REAL", "in_stock_price_max REAL")
	}
	return nil
}

// Insert adds one product.
func (t *ProductTable) Insert(ctx context.Context, p model.Product) error {
	query := `INSERT INTO products (` + productColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := t.q.ExecContext(ctx, query,
		p.ID, p.ClientID, p.ChainID, p.ProductID,
		p.BrandName, p.BrandNameShort, p.ProductName, p.UPC,
		store.NullFloat(p.MSRP), p.IsRandomWeight,
		store.NullFloat(p.RetailPriceMin), store.NullFloat(p.RetailPriceMax), store.NullFloat(p.RetailPriceAverage),
		p.CategoryName, p.SubcategoryName, p.ProductTypeName,
		p.CurrentReorderCode, p.PreviousReorderCode, p.BrandSKU,
		store.NullTime(p.LastScannedAt), store.NullFloat(p.LastScannedPrice), store.NullBool(p.LastScanWasSale),
		p.ChainSKU, store.NullFloat(p.InStockPriceMin), store.NullFloat(p.InStockPriceMax),
	)
	if err != nil {
		return fmt.Errorf("failed to insert product %d: %w", p.ID, err)
	}
	return nil
}

// DeleteAll empties the table.
func (t *ProductTable) DeleteAll(ctx context.Context) error {
	if _, err := t.q.ExecContext(ctx, `DELETE FROM products`); err != nil {
		return fmt.Errorf("failed to delete products: %w", err)
	}
	return nil
}

// ListFor returns the products a client carries at a chain.
func (t *ProductTable) ListFor(ctx context.Context, clientID, chainID int64) ([]model.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products
	WHERE client_id = ? AND chain_id = ?
	ORDER BY brand_name, product_name, chain_x_product_id`
	rows, err := t.q.QueryContext(ctx, query, clientID, chainID)
	if err != nil {
		return nil, fmt.Errorf("failed to query products: %w", err)
	}
	defer rows.Close()

	var products []model.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		products = append(products, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating products: %w", err)
	}
	return products, nil
}

// Get returns the product with id, or nil.
func (t *ProductTable) Get(ctx context.Context, id int64) (*model.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE chain_x_product_id = ?`
	p, err := scanProduct(t.q.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get product %d: %w", id, err)
	}
	return p, nil
}

// Count returns the number of cached products.
func (t *ProductTable) Count(ctx context.Context) (int, error) {
	var count int
	if err := t.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM products`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count products: %w", err)
	}
	return count, nil
}

func scanProduct(row rowScanner) (*model.Product, error) {
	var (
		p                                   model.Product
		brand, brandShort, name, upc        sql.NullString
		category, subcategory, productType  sql.NullString
		currentCode, previousCode, brandSKU sql.NullString
		chainSKU, lastScannedAt             sql.NullString
		msrp, rMin, rMax, rAvg              sql.NullFloat64
		lastPrice, inMin, inMax             sql.NullFloat64
		lastWasSale                         sql.NullBool
	)
	err := row.Scan(&p.ID, &p.ClientID, &p.ChainID, &p.ProductID,
		&brand, &brandShort, &name, &upc, &msrp, &p.IsRandomWeight,
		&rMin, &rMax, &rAvg, &category, &subcategory, &productType,
		&currentCode, &previousCode, &brandSKU, &lastScannedAt, &lastPrice, &lastWasSale,
		&chainSKU, &inMin, &inMax)
	if err != nil {
		return nil, err
	}

	p.BrandName = brand.String
	p.BrandNameShort = brandShort.String
	p.ProductName = name.String
	p.UPC = upc.String
	p.MSRP = store.FloatPtr(msrp)
	p.RetailPriceMin = store.FloatPtr(rMin)
	p.RetailPriceMax = store.FloatPtr(rMax)
	p.RetailPriceAverage = store.FloatPtr(rAvg)
	p.CategoryName = category.String
	p.SubcategoryName = subcategory.String
	p.ProductTypeName = productType.String
	p.CurrentReorderCode = currentCode.String
	p.PreviousReorderCode = previousCode.String
	p.BrandSKU = brandSKU.String
	p.LastScannedAt = store.TimePtr(lastScannedAt)
	p.LastScannedPrice = store.FloatPtr(lastPrice)
	p.LastScanWasSale = store.BoolPtr(lastWasSale)
	p.ChainSKU = chainSKU.String
	p.InStockPriceMin = store.FloatPtr(inMin)
	p.InStockPriceMax = store.FloatPtr(inMax)
	return &p, nil
}
