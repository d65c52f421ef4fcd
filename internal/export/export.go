// Package export writes an audit's resolved reports to a spreadsheet.
package export

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/joostmulder/AuditPro/internal/model"
	"github.com/joostmulder/AuditPro/internal/session"
	"github.com/xuri/excelize/v2"
)

const (
	reportsSheet = "Reports"
	auditSheet   = "Audit"
	timeLayout   = "2006-01-02 15:04:05"
)

var reportHeaders = []any{
	"Brand", "Product", "UPC", "Reorder Code", "Status", "Source",
	"Retail Price", "Sale Price", "Scan Data", "Conditions", "Updated",
}

// Source is the audit data an export reads.
type Source interface {
	Session() *session.Session
	GetAllReports(ctx context.Context, a model.Audit, products []model.Product) ([]model.Report, error)
	GetScans(ctx context.Context, a model.Audit) ([]model.Scan, error)
	GetAllSKUConditions(ctx context.Context, a model.Audit) ([]model.ConditionSelection, error)
	GetNotes(ctx context.Context, a model.Audit) (model.Notes, error)
}

// Row is one report line of the export.
type Row struct {
	Brand       string
	Product     string
	UPC         string
	ReorderCode string
	Status      model.ReorderStatus
	Implied     bool
	RetailPrice *float64
	SalePrice   *float64
	ScanData    string
	Conditions  []string
	Updated     string
}

// Rows resolves every report of a against products, sorted by brand and
// product name.
func Rows(ctx context.Context, src Source, a model.Audit, products []model.Product) ([]Row, error) {
	reports, err := src.GetAllReports(ctx, a, products)
	if err != nil {
		return nil, fmt.Errorf("failed to load reports: %w", err)
	}
	scans, err := src.GetScans(ctx, a)
	if err != nil {
		return nil, fmt.Errorf("failed to load scans: %w", err)
	}
	selections, err := src.GetAllSKUConditions(ctx, a)
	if err != nil {
		return nil, fmt.Errorf("failed to load conditions: %w", err)
	}

	byProduct := make(map[int64]model.Product, len(products))
	for _, p := range products {
		byProduct[p.ID] = p
	}
	byScan := make(map[uuid.UUID]model.Scan, len(scans))
	for _, s := range scans {
		byScan[s.ID] = s
	}
	conditions := make(map[int64]model.ConditionSet, len(selections))
	for _, sel := range selections {
		conditions[sel.ProductID] = sel.Conditions
	}

	sess := src.Session()
	rows := make([]Row, 0, len(reports))
	for _, r := range reports {
		row := Row{
			Status:  r.Status(),
			Implied: model.IsImplied(r),
			Updated: r.UpdatedAt().Local().Format(timeLayout),
		}
		if p, ok := byProduct[r.ProductID()]; ok {
			row.Brand, row.Product, row.UPC, row.ReorderCode = p.BrandName, p.ProductName, p.UPC, p.ReorderCode()
		}
		if id := r.ScanID(); id != nil {
			if s, ok := byScan[*id]; ok {
				if row.Product == "" {
					row.Brand, row.Product = s.BrandName, s.ProductName
				}
				row.RetailPrice, row.SalePrice = s.RetailPrice, s.SalePrice
				if s.ScanData != nil {
					row.ScanData = *s.ScanData
				}
			}
		}
		if row.Product == "" {
			row.Product = fmt.Sprintf("Product %d", r.ProductID())
		}
		for _, id := range conditions[r.ProductID()].IDs() {
			name := fmt.Sprintf("#%d", id)
			if sess != nil {
				if c, ok := sess.SKUCondition(id); ok {
					name = c.Name
				}
			}
			row.Conditions = append(row.Conditions, name)
		}
		rows = append(rows, row)
	}

	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].Brand != rows[j].Brand {
			return rows[i].Brand < rows[j].Brand
		}
		return rows[i].Product < rows[j].Product
	})
	return rows, nil
}

// Write renders the audit as an xlsx workbook to w.
func Write(ctx context.Context, src Source, a model.Audit, products []model.Product, w io.Writer) error {
	f, err := Build(ctx, src, a, products)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

// SaveAs renders the audit as an xlsx workbook at path.
func SaveAs(ctx context.Context, src Source, a model.Audit, products []model.Product, path string) error {
	f, err := Build(ctx, src, a, products)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("failed to save workbook: %w", err)
	}
	return nil
}

// Build assembles the workbook: a Reports sheet with one row per product
// and an Audit sheet with the visit summary.
func Build(ctx context.Context, src Source, a model.Audit, products []model.Product) (*excelize.File, error) {
	rows, err := Rows(ctx, src, a, products)
	if err != nil {
		return nil, err
	}
	notes, err := src.GetNotes(ctx, a)
	if err != nil {
		return nil, fmt.Errorf("failed to load notes: %w", err)
	}

	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", reportsSheet); err != nil {
		f.Close()
		return nil, err
	}
	if err := writeReports(f, rows); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to write reports sheet: %w", err)
	}
	if err := writeSummary(f, a, notes, len(rows)); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to write audit sheet: %w", err)
	}
	return f, nil
}

func writeReports(f *excelize.File, rows []Row) error {
	if err := f.SetSheetRow(reportsSheet, "A1", &reportHeaders); err != nil {
		return err
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}
	last, _ := excelize.CoordinatesToCellName(len(reportHeaders), 1)
	if err := f.SetCellStyle(reportsSheet, "A1", last, bold); err != nil {
		return err
	}

	for i, r := range rows {
		source := "Explicit"
		if r.Implied {
			source = "Implied"
		}
		values := []any{
			r.Brand, r.Product, r.UPC, r.ReorderCode, r.Status.String(), source,
			price(r.RetailPrice), price(r.SalePrice), r.ScanData,
			strings.Join(r.Conditions, ", "), r.Updated,
		}
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(reportsSheet, cell, &values); err != nil {
			return err
		}
	}

	if err := f.SetPanes(reportsSheet, &excelize.Panes{
		Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft",
	}); err != nil {
		return err
	}
	return f.SetColWidth(reportsSheet, "A", "B", 28)
}

func writeSummary(f *excelize.File, a model.Audit, notes model.Notes, count int) error {
	if _, err := f.NewSheet(auditSheet); err != nil {
		return err
	}
	ended := ""
	if a.EndedAt != nil {
		ended = a.EndedAt.Local().Format(timeLayout)
	}
	summary := [][]any{
		{"Store", a.StoreDescription},
		{"Audit ID", a.ID.String()},
		{"Started", a.StartedAt.Local().Format(timeLayout)},
		{"Ended", ended},
		{"Products", count},
		{"Notes", notes.Contents},
		{"Store Note", notes.Store},
	}
	for i, row := range summary {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow(auditSheet, cell, &row); err != nil {
			return err
		}
	}
	return f.SetColWidth(auditSheet, "A", "A", 14)
}

// price leaves missing prices as blank cells.
func price(p *float64) any {
	if p == nil {
		return nil
	}
	return *p
}
