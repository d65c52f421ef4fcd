// Package model defines the records an auditor works with in the field.
//
// Audit-side records (Audit, Scan, ReportRecord, Notes, ConditionSet) are
// owned by a single audit and are created, mutated and deleted locally until
// the audit is uploaded. Catalog records (Store, Product) arrive from the web
// service and are replaced wholesale on every catalog refresh.
//
// Values in this package are plain data. Persistence lives in
// internal/tables, and business rules that span records live in
// internal/audit and internal/catalog.
//
// Reports are modelled as a sealed variant:
//
//	Explicit          a persisted ReportRecord
//	ImpliedInStock    a scan without an explicit report
//	ImpliedOutOfStock a catalog product with neither scan nor report
//
// Callers switch on the concrete type instead of testing for a missing id.
package model
