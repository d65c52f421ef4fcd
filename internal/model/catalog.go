package model

import (
	"fmt"
	"strings"
	"time"
)

// Store is a retail location the auditor may visit.
type Store struct {
	ID              int64          `json:"store_id" validate:"gt=0"`
	ClientID        int64          `json:"client_id" validate:"gt=0"`
	ChainID         int64          `json:"chain_id" validate:"gt=0"`
	ChainName       string         `json:"chain_name"`
	ChainCode       string         `json:"chain_code"`
	StoreName       string         `json:"store_name" validate:"required"`
	StoreIdentifier string         `json:"store_identifier"`
	Address         string         `json:"store_street_address_1"`
	Address2        string         `json:"store_street_address_2"`
	City            string         `json:"store_city"`
	Zip             string         `json:"store_zip"`
	Latitude        *float64       `json:"store_lat"`
	Longitude       *float64       `json:"store_lon"`
	History         []AuditHistory `json:"audit_history"`
}

// Description is the label copied onto an audit when it starts.
func (s Store) Description() string {
	res := s.StoreName
	if res == "" {
		res = s.ChainName
	}
	if s.StoreIdentifier != "" {
		if res == "" {
			res = s.StoreIdentifier
		} else {
			res += fmt.Sprintf(" (%s)", s.StoreIdentifier)
		}
	}
	if res == "" {
		return fmt.Sprintf("%d", s.ID)
	}
	return res
}

// CityZip formats the city and zip as one line.
func (s Store) CityZip() string {
	city := strings.TrimSpace(s.City)
	zip := strings.TrimSpace(s.Zip)
	switch {
	case city == "":
		return zip
	case zip == "":
		return city
	default:
		return city + " " + zip
	}
}

// AuditHistory summarizes an earlier audit of a store, as reported by the
// web service.
type AuditHistory struct {
	AuditID            string `json:"audit_id"`
	AuditCounter       int    `json:"audit_counter"`
	UserEmail          string `json:"user_email"`
	AuditNote          string `json:"audit_note"`
	AuditStoreNote     string `json:"audit_store_note"`
	PercentInStock     int    `json:"percent_in_stock"`
	PercentVoid        int    `json:"percent_void"`
	AuditDurationTotal string `json:"audit_duration_total"`
	DaysSinceAudit     int    `json:"days_since_audit"`
	LastAuditDate      string `json:"last_audit_date"`
}

// Chain is the distinct retail chain a set of stores belongs to.
type Chain struct {
	ID   int64
	Name string
	Code string
}

// Product is a SKU carried by a chain for a client.
type Product struct {
	ID                  int64      `json:"chain_x_product_id" validate:"gt=0"`
	ClientID            int64      `json:"client_id" validate:"gt=0"`
	ChainID             int64      `json:"chain_id" validate:"gt=0"`
	ProductID           int64      `json:"product_id" validate:"gt=0"`
	BrandName           string     `json:"brand_name"`
	BrandNameShort      string     `json:"brand_name_short"`
	ProductName         string     `json:"product_name" validate:"required"`
	UPC                 string     `json:"upc"`
	MSRP                *float64   `json:"msrp"`
	IsRandomWeight      bool       `json:"is_random_weight"`
	RetailPriceMin      *float64   `json:"retail_price_min"`
	RetailPriceMax      *float64   `json:"retail_price_max"`
	RetailPriceAverage  *float64   `json:"retail_price_average"`
	CategoryName        string     `json:"category_name"`
	SubcategoryName     string     `json:"subcategory_name"`
	ProductTypeName     string     `json:"product_type_name"`
	CurrentReorderCode  string     `json:"current_reorder_code"`
	PreviousReorderCode string     `json:"previous_reorder_code"`
	BrandSKU            string     `json:"brand_sku"`
	LastScannedAt       *time.Time `json:"last_scanned_at"`
	LastScannedPrice    *float64   `json:"last_scanned_price"`
	LastScanWasSale     *bool      `json:"last_scan_was_sale"`
	ChainSKU            string     `json:"chain_sku"`
	InStockPriceMin     *float64   `json:"in_stock_price_min"`
	InStockPriceMax     *float64   `json:"in_stock_price_max"`
}

// ReorderCode is the code printed for a product on a receipt, falling back
// from the current code to the previous one to "--".
func (p Product) ReorderCode() string {
	if c := strings.TrimSpace(p.CurrentReorderCode); c != "" {
		return c
	}
	if c := strings.TrimSpace(p.PreviousReorderCode); c != "" {
		return c
	}
	return "--"
}

// InStockPrice reports whether price falls inside the product's in-stock
// price range. Open bounds always match.
func (p Product) InStockPrice(price float64) bool {
	if p.InStockPriceMin != nil && price < *p.InStockPriceMin {
		return false
	}
	if p.InStockPriceMax != nil && price > *p.InStockPriceMax {
		return false
	}
	return true
}
