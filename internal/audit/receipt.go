package audit

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/joostmulder/AuditPro/internal/model"
	"github.com/sirupsen/logrus"
)

// ReceiptLine is one product on the reorder receipt.
type ReceiptLine struct {
	ReorderCode string
	ProductName string
}

// ConditionSection groups the products flagged with one SKU condition.
type ConditionSection struct {
	Condition model.SKUCondition
	Lines     []ReceiptLine
}

// Receipt is the reorder list left with the store after an audit.
type Receipt struct {
	ClientName string
	StoreName  string
	AuditedAt  time.Time
	OutOfStock []ReceiptLine
	Voids      []ReceiptLine
	Conditions []ConditionSection
	StoreNotes string
}

// BuildReceipt collects the receipt contents for a from its explicit
// reports. Void lines, condition sections and the store note are included
// according to the client settings of the session.
func (r *Repository) BuildReceipt(ctx context.Context, a model.Audit, products []model.Product) (*Receipt, error) {
	if r.session == nil {
		return nil, ErrNoSession
	}
	settings := r.session.Settings()
	printVoids := settings.PrintVoids()
	printConditions := settings.PrintConditions()
	printNotes := settings.AllowStoreNotes()

	records, err := r.reports.List(ctx, a.ID)
	if err != nil {
		r.logFailure(err, "receipt", logrus.Fields{"audit_id": a.ID})
		return nil, err
	}
	status := make(map[int64]model.ReorderStatus, len(records))
	for _, rec := range latestReports(records) {
		status[rec.ProductID] = rec.ReorderStatusID
	}

	var selections map[int64]model.ConditionSet
	if printConditions {
		list, err := r.conditions.List(ctx, a.ID)
		if err != nil {
			r.logFailure(err, "receipt", logrus.Fields{"audit_id": a.ID})
			return nil, err
		}
		selections = make(map[int64]model.ConditionSet, len(list))
		for _, c := range list {
			selections[c.ProductID] = c.Conditions
		}
	}

	sorted := make([]model.Product, len(products))
	copy(sorted, products)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].ProductName < sorted[j].ProductName
	})

	receipt := &Receipt{
		ClientName: r.session.User.ClientName,
		StoreName:  a.StoreDescription,
		AuditedAt:  a.StartedAt,
	}
	if a.EndedAt != nil {
		receipt.AuditedAt = *a.EndedAt
	}

	sections := make(map[int]*ConditionSection)
	for _, p := range sorted {
		line := ReceiptLine{ReorderCode: p.ReorderCode(), ProductName: p.ProductName}
		switch status[p.ID] {
		case model.StatusOutOfStock:
			receipt.OutOfStock = append(receipt.OutOfStock, line)
		case model.StatusVoid:
			if printVoids {
				receipt.Voids = append(receipt.Voids, line)
			}
		}

		for _, id := range selections[p.ID].IDs() {
			sec, ok := sections[id]
			if !ok {
				cond, known := r.session.SKUCondition(id)
				if !known {
					continue
				}
				sec = &ConditionSection{Condition: cond}
				sections[id] = sec
			}
			sec.Lines = append(sec.Lines, line)
		}
	}

	ids := make([]int, 0, len(sections))
	for id := range sections {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	for _, id := range ids {
		receipt.Conditions = append(receipt.Conditions, *sections[id])
	}

	if printNotes {
		n, err := r.notes.Get(ctx, a.ID)
		if err != nil {
			r.logFailure(err, "receipt", logrus.Fields{"audit_id": a.ID})
			return nil, err
		}
		if n != nil && strings.TrimSpace(n.Store) != "" {
			receipt.StoreNotes = n.Store
		}
	}
	return receipt, nil
}

// Empty reports whether the receipt has nothing to reorder or report.
func (rc *Receipt) Empty() bool {
	return len(rc.OutOfStock) == 0 && len(rc.Voids) == 0 && len(rc.Conditions) == 0 && rc.StoreNotes == ""
}

// Lines renders the receipt as plain text lines.
func (rc *Receipt) Lines() []string {
	lines := []string{
		fmt.Sprintf("%s Reorder List For", rc.ClientName),
		fmt.Sprintf("%s %s", rc.StoreName, rc.AuditedAt.Local().Format("Jan 2, 2006")),
		"",
	}

	section := func(title string, items []ReceiptLine) {
		if len(items) == 0 {
			return
		}
		lines = append(lines, strings.ToUpper(title))
		for _, it := range items {
			lines = append(lines, fmt.Sprintf("  %-12s %s", it.ReorderCode, it.ProductName))
		}
		lines = append(lines, "")
	}
	section(model.StatusOutOfStock.String(), rc.OutOfStock)
	for _, c := range rc.Conditions {
		section(c.Condition.Name, c.Lines)
	}
	section(model.StatusVoid.String(), rc.Voids)

	if rc.StoreNotes != "" {
		lines = append(lines, "NOTES:", rc.StoreNotes, "")
	}
	return lines
}
