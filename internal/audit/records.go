package audit

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/joostmulder/AuditPro/internal/model"
	"github.com/sirupsen/logrus"
)

// AddScan inserts a new scan. It never looks for an earlier scan of the same
// product; use GetScan and UpdateScan for a rescan.
func (r *Repository) AddScan(ctx context.Context, s model.Scan) error {
	if err := r.scans.Insert(ctx, s); err != nil {
		r.logFailure(err, "add scan", logrus.Fields{"audit_id": s.AuditID, "product_id": s.ProductID})
		return err
	}
	return nil
}

// UpdateScan rewrites an existing scan.
func (r *Repository) UpdateScan(ctx context.Context, s model.Scan) error {
	ok, err := r.scans.Update(ctx, s)
	if err != nil {
		r.logFailure(err, "update scan", logrus.Fields{"scan_id": s.ID, "product_id": s.ProductID})
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrScanNotFound, s.ID)
	}
	return nil
}

// GetScan returns the latest scan of productID in a, or nil.
func (r *Repository) GetScan(ctx context.Context, a model.Audit, productID int64) (*model.Scan, error) {
	s, err := r.scans.Get(ctx, a.ID, productID)
	if err != nil {
		r.logFailure(err, "get scan", logrus.Fields{"audit_id": a.ID, "product_id": productID})
		return nil, err
	}
	return s, nil
}

// GetScans returns every scan of a in the order they were taken.
func (r *Repository) GetScans(ctx context.Context, a model.Audit) ([]model.Scan, error) {
	list, err := r.scans.List(ctx, a.ID)
	if err != nil {
		r.logFailure(err, "list scans", logrus.Fields{"audit_id": a.ID})
		return nil, err
	}
	return list, nil
}

// UpsertReport saves rep. A report without an id is inserted under a new
// one; otherwise the row with that id is updated. The saved value is
// returned.
func (r *Repository) UpsertReport(ctx context.Context, rep model.ReportRecord) (model.ReportRecord, error) {
	if !rep.Persisted() {
		rep.ID = uuid.New()
		if err := r.reports.Insert(ctx, rep); err != nil {
			r.logFailure(err, "insert report", logrus.Fields{"audit_id": rep.AuditID, "product_id": rep.ProductID})
			return model.ReportRecord{}, err
		}
		return rep, nil
	}

	ok, err := r.reports.Update(ctx, rep)
	if err != nil {
		r.logFailure(err, "update report", logrus.Fields{"report_id": rep.ID, "product_id": rep.ProductID})
		return model.ReportRecord{}, err
	}
	if !ok {
		return model.ReportRecord{}, fmt.Errorf("%w: %s", ErrReportNotFound, rep.ID)
	}
	return rep, nil
}

// GetReport returns the explicit report for productID in a, or nil.
func (r *Repository) GetReport(ctx context.Context, a model.Audit, productID int64) (*model.ReportRecord, error) {
	rep, err := r.reports.Get(ctx, a.ID, productID)
	if err != nil {
		r.logFailure(err, "get report", logrus.Fields{"audit_id": a.ID, "product_id": productID})
		return nil, err
	}
	return rep, nil
}

// GetAllReports returns the reports of a. With a nil products list only the
// persisted reports come back. Otherwise every scanned product without a
// report is added as implied in stock, and every remaining product as
// implied out of stock, so the result covers the whole list.
func (r *Repository) GetAllReports(ctx context.Context, a model.Audit, products []model.Product) ([]model.Report, error) {
	records, err := r.reports.List(ctx, a.ID)
	if err != nil {
		r.logFailure(err, "list reports", logrus.Fields{"audit_id": a.ID})
		return nil, err
	}

	records = latestReports(records)
	res := make([]model.Report, 0, len(records)+len(products))
	seen := make(map[int64]bool, len(records))
	for _, rec := range records {
		seen[rec.ProductID] = true
		res = append(res, model.Explicit{Record: rec})
	}
	if products == nil {
		return res, nil
	}

	scans, err := r.scans.List(ctx, a.ID)
	if err != nil {
		r.logFailure(err, "list scans", logrus.Fields{"audit_id": a.ID})
		return nil, err
	}
	implied := make(map[int64]int)
	for _, s := range scans {
		if seen[s.ProductID] {
			continue
		}
		if i, ok := implied[s.ProductID]; ok {
			res[i] = model.ImpliedInStock{Scan: s}
			continue
		}
		implied[s.ProductID] = len(res)
		res = append(res, model.ImpliedInStock{Scan: s})
	}
	for id := range implied {
		seen[id] = true
	}

	now := r.now().UTC()
	for _, p := range products {
		if seen[p.ID] {
			continue
		}
		seen[p.ID] = true
		res = append(res, model.ImpliedOutOfStock{Product: p, At: now})
	}
	return res, nil
}

// latestReports keeps one record per product: the one updated last. The
// result follows the order in which products first appear in records.
func latestReports(records []model.ReportRecord) []model.ReportRecord {
	index := make(map[int64]int, len(records))
	res := make([]model.ReportRecord, 0, len(records))
	for _, rec := range records {
		i, ok := index[rec.ProductID]
		if !ok {
			index[rec.ProductID] = len(res)
			res = append(res, rec)
			continue
		}
		if !rec.UpdatedAt.Before(res[i].UpdatedAt) {
			res[i] = rec
		}
	}
	return res
}

// GetSelectedSKUConditions returns the conditions selected for productID in
// a, or nil when none are.
func (r *Repository) GetSelectedSKUConditions(ctx context.Context, a model.Audit, productID int64) (model.ConditionSet, error) {
	c, err := r.conditions.Get(ctx, a.ID, productID)
	if err != nil {
		r.logFailure(err, "get conditions", logrus.Fields{"audit_id": a.ID, "product_id": productID})
		return nil, err
	}
	if c == nil {
		return nil, nil
	}
	return c.Conditions, nil
}

// GetAllSKUConditions returns every condition selection of a.
func (r *Repository) GetAllSKUConditions(ctx context.Context, a model.Audit) ([]model.ConditionSelection, error) {
	list, err := r.conditions.List(ctx, a.ID)
	if err != nil {
		r.logFailure(err, "list conditions", logrus.Fields{"audit_id": a.ID})
		return nil, err
	}
	return list, nil
}

// UpdateSelectedSKUConditions replaces the conditions selected for productID
// in a. An empty set removes the selection.
func (r *Repository) UpdateSelectedSKUConditions(ctx context.Context, a model.Audit, productID int64, conditions model.ConditionSet) error {
	now := r.now().UTC()
	err := r.db.WithTx(ctx, func(tx *sql.Tx) error {
		table := r.conditions.WithTx(tx)
		existing, err := table.Get(ctx, a.ID, productID)
		if err != nil {
			return err
		}

		switch {
		case len(conditions) == 0 && existing == nil:
			return nil
		case len(conditions) == 0:
			return table.Delete(ctx, existing.ID)
		case existing == nil:
			return table.Insert(ctx, model.ConditionSelection{
				ID:         uuid.New(),
				AuditID:    a.ID,
				ProductID:  productID,
				Conditions: conditions,
				CreatedAt:  now,
				UpdatedAt:  now,
			})
		default:
			existing.Conditions = conditions
			existing.UpdatedAt = now
			_, err := table.Update(ctx, *existing)
			return err
		}
	})
	if err != nil {
		r.logFailure(err, "update conditions", logrus.Fields{"audit_id": a.ID, "product_id": productID})
		return err
	}
	return nil
}

// GetNotes returns the notes of a. When none were saved yet the result has
// no id and empty contents; UpdateNotes inserts it on first save.
func (r *Repository) GetNotes(ctx context.Context, a model.Audit) (model.Notes, error) {
	n, err := r.notes.Get(ctx, a.ID)
	if err != nil {
		r.logFailure(err, "get notes", logrus.Fields{"audit_id": a.ID})
		return model.Notes{}, err
	}
	if n == nil {
		return model.Notes{AuditID: a.ID}, nil
	}
	return *n, nil
}

// UpdateNotes saves new contents into notes, inserting the row on first
// save. notes is updated in place on success. The result is a message for
// the auditor, empty when the save worked.
func (r *Repository) UpdateNotes(ctx context.Context, notes *model.Notes, contents, store string) string {
	next := *notes
	next.Contents = contents
	next.Store = store

	method := "update"
	var err error
	if next.ID == uuid.Nil {
		method = "create"
		next.ID = uuid.New()
		err = r.notes.Insert(ctx, next)
	} else {
		var ok bool
		ok, err = r.notes.Update(ctx, next)
		if err == nil && !ok {
			err = fmt.Errorf("notes %s not found", next.ID)
		}
	}
	if err != nil {
		r.logFailure(err, method+" notes", logrus.Fields{"audit_id": notes.AuditID})
		return fmt.Sprintf("Failed to %s notes for audit %s in database", method, notes.AuditID)
	}

	*notes = next
	return ""
}
