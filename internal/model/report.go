package model

import (
	"time"

	"github.com/google/uuid"
)

// ReportRecord is a persisted reorder status for one product in one audit.
// A zero ID marks a record that has not been saved yet.
type ReportRecord struct {
	ID              uuid.UUID
	AuditID         uuid.UUID
	ScanID          *uuid.UUID
	ProductID       int64
	ReorderStatusID ReorderStatus
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// NewReportRecord returns an unsaved report for product.
func NewReportRecord(auditID uuid.UUID, productID int64, scanID *uuid.UUID, status ReorderStatus, now time.Time) ReportRecord {
	now = now.UTC()
	return ReportRecord{
		AuditID:         auditID,
		ScanID:          scanID,
		ProductID:       productID,
		ReorderStatusID: status,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// Persisted reports whether the record has been assigned an id.
func (r ReportRecord) Persisted() bool {
	return r.ID != uuid.Nil
}

// Report is the resolved disposition for a product. The concrete type is one
// of Explicit, ImpliedInStock or ImpliedOutOfStock.
type Report interface {
	ProductID() int64
	Status() ReorderStatus
	ScanID() *uuid.UUID
	CreatedAt() time.Time
	UpdatedAt() time.Time

	sealed()
}

// Explicit wraps a report the auditor saved.
type Explicit struct {
	Record ReportRecord
}

func (e Explicit) ProductID() int64      { return e.Record.ProductID }
func (e Explicit) Status() ReorderStatus { return e.Record.ReorderStatusID }
func (e Explicit) ScanID() *uuid.UUID    { return e.Record.ScanID }
func (e Explicit) CreatedAt() time.Time  { return e.Record.CreatedAt }
func (e Explicit) UpdatedAt() time.Time  { return e.Record.UpdatedAt }
func (Explicit) sealed()                 {}

// ImpliedInStock is derived from a scan that has no explicit report: a
// product that was scanned is on the shelf.
type ImpliedInStock struct {
	Scan Scan
}

func (i ImpliedInStock) ProductID() int64     { return i.Scan.ProductID }
func (ImpliedInStock) Status() ReorderStatus  { return StatusInStock }
func (i ImpliedInStock) CreatedAt() time.Time { return i.Scan.CreatedAt }
func (ImpliedInStock) sealed()                {}

func (i ImpliedInStock) ScanID() *uuid.UUID {
	id := i.Scan.ID
	return &id
}

// UpdatedAt falls back to the scan's creation time when it was never updated.
func (i ImpliedInStock) UpdatedAt() time.Time {
	if i.Scan.UpdatedAt.IsZero() {
		return i.Scan.CreatedAt
	}
	return i.Scan.UpdatedAt
}

// ImpliedOutOfStock is derived from a catalog product that was neither
// scanned nor reported.
type ImpliedOutOfStock struct {
	Product Product
	At      time.Time
}

func (o ImpliedOutOfStock) ProductID() int64     { return o.Product.ID }
func (ImpliedOutOfStock) Status() ReorderStatus  { return StatusOutOfStock }
func (ImpliedOutOfStock) ScanID() *uuid.UUID     { return nil }
func (o ImpliedOutOfStock) CreatedAt() time.Time { return o.At }
func (o ImpliedOutOfStock) UpdatedAt() time.Time { return o.At }
func (ImpliedOutOfStock) sealed()                {}

// IsImplied reports whether r was synthesized rather than loaded.
func IsImplied(r Report) bool {
	_, ok := r.(Explicit)
	return !ok
}
