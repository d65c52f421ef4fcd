package model

import (
	"time"

	"github.com/google/uuid"
)

// Scan records the prices observed for one product during an audit.
// ProductName and BrandName are copied from the catalog so the scan can be
// shown after the catalog changes.
type Scan struct {
	ID          uuid.UUID
	AuditID     uuid.UUID
	ProductID   int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
	RetailPrice *float64
	SalePrice   *float64
	ScanData    *string
	ScanTypeID  ScanType
	ProductName string
	BrandName   string
}

// NewScan records a first observation of product within audit.
func NewScan(auditID uuid.UUID, product Product, scanData *string, retail, sale *float64, now time.Time) Scan {
	now = now.UTC()
	return Scan{
		ID:          uuid.New(),
		AuditID:     auditID,
		ProductID:   product.ID,
		CreatedAt:   now,
		UpdatedAt:   now,
		RetailPrice: retail,
		SalePrice:   sale,
		ScanData:    scanData,
		ScanTypeID:  ScanTypeFor(scanData),
		ProductName: product.ProductName,
		BrandName:   product.BrandName,
	}
}

// Rescan returns an updated copy of source carrying the new observation, or
// nil when scan data and both prices are unchanged.
func Rescan(source Scan, scanData *string, retail, sale *float64, now time.Time) *Scan {
	// Scan data is compared with the incoming value, so a changed barcode alone counts.
	if equalString(scanData, source.ScanData) &&
		equalFloat(retail, source.RetailPrice) &&
		equalFloat(sale, source.SalePrice) {
		return nil
	}
	rescan := source
	rescan.UpdatedAt = now.UTC()
	rescan.ScanData = scanData
	rescan.ScanTypeID = ScanTypeFor(scanData)
	rescan.RetailPrice = retail
	rescan.SalePrice = sale
	return &rescan
}

// DisplayPrice is the sale price when present, else the retail price.
func (s Scan) DisplayPrice() *float64 {
	if s.SalePrice != nil {
		return s.SalePrice
	}
	return s.RetailPrice
}

func equalString(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func equalFloat(a, b *float64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
