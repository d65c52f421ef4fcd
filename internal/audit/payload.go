package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/joostmulder/AuditPro/internal/model"
	"github.com/joostmulder/AuditPro/internal/store"
	"github.com/sirupsen/logrus"
)

// Payload is the upload body for one audit. Nullable values are pointers
// without omitempty so they encode as JSON null.
type Payload struct {
	ID               string              `json:"id"`
	StoreID          int64               `json:"storeId"`
	AuditStartedAt   string              `json:"auditStartedAt"`
	AuditEndedAt     *string             `json:"auditEndedAt"`
	LatitudeAtStart  *float64            `json:"latitudeAtStart"`
	LongitudeAtStart *float64            `json:"longitudeAtStart"`
	LatitudeAtEnd    *float64            `json:"latitudeAtEnd"`
	LongitudeAtEnd   *float64            `json:"longitudeAtEnd"`
	User             PayloadUser         `json:"user"`
	Scans            []PayloadScan       `json:"scans"`
	Reports          []PayloadReport     `json:"reports"`
	SKUConditions    []PayloadConditions `json:"skuConditions"`
	Notes            string              `json:"notes"`
	StoreNote        string              `json:"audit_store_note"`
}

// PayloadUser identifies the uploader.
type PayloadUser struct {
	UserID   int64 `json:"userId"`
	ClientID int64 `json:"clientId"`
}

// PayloadScan is one scan in the upload body.
type PayloadScan struct {
	ScanID          string   `json:"scanId"`
	CreatedAt       string   `json:"createdAt"`
	UpdatedAt       string   `json:"updatedAt"`
	ChainXProductID int64    `json:"chainXProductId"`
	RetailPrice     *float64 `json:"retailPrice"`
	SalePrice       *float64 `json:"salePrice"`
	ScanData        *string  `json:"scanData"`
	ScanTypeID      int      `json:"scanTypeId"`
	ProductName     string   `json:"productName"`
	BrandName       string   `json:"brandName"`
}

// PayloadReport is one explicit report in the upload body.
type PayloadReport struct {
	ReportID        string  `json:"reportId"`
	CreatedAt       string  `json:"createdAt"`
	UpdatedAt       string  `json:"updatedAt"`
	ChainXProductID int64   `json:"chainXProductId"`
	ReorderStatusID int     `json:"reorderStatusId"`
	ScanID          *string `json:"scanId"`
}

// PayloadConditions lists the conditions selected for one product.
type PayloadConditions struct {
	ChainXProductID int64 `json:"chainXProductId"`
	SKUConditionIDs []int `json:"skuConditionIds"`
}

// BuildPayload gathers everything uploaded for a. Only persisted reports are
// included; implied ones are derived again on the server.
func (r *Repository) BuildPayload(ctx context.Context, a model.Audit) (*Payload, error) {
	if r.session == nil {
		return nil, ErrNoSession
	}

	scans, err := r.scans.List(ctx, a.ID)
	if err != nil {
		return nil, err
	}
	reports, err := r.reports.List(ctx, a.ID)
	if err != nil {
		return nil, err
	}
	conditions, err := r.conditions.List(ctx, a.ID)
	if err != nil {
		return nil, err
	}
	notes, err := r.notes.Get(ctx, a.ID)
	if err != nil {
		return nil, err
	}

	p := &Payload{
		ID:               a.ID.String(),
		StoreID:          a.StoreID,
		AuditStartedAt:   store.FormatTime(a.StartedAt),
		LatitudeAtStart:  a.LatitudeAtStart,
		LongitudeAtStart: a.LongitudeAtStart,
		LatitudeAtEnd:    a.LatitudeAtEnd,
		LongitudeAtEnd:   a.LongitudeAtEnd,
		User: PayloadUser{
			UserID:   r.session.User.ID,
			ClientID: r.session.User.ClientID,
		},
		Scans:         make([]PayloadScan, 0, len(scans)),
		Reports:       make([]PayloadReport, 0, len(reports)),
		SKUConditions: make([]PayloadConditions, 0, len(conditions)),
	}
	if a.EndedAt != nil {
		ended := store.FormatTime(*a.EndedAt)
		p.AuditEndedAt = &ended
	}
	if notes != nil {
		p.Notes = notes.Contents
		p.StoreNote = notes.Store
	}

	for _, s := range scans {
		p.Scans = append(p.Scans, PayloadScan{
			ScanID:          s.ID.String(),
			CreatedAt:       store.FormatTime(s.CreatedAt),
			UpdatedAt:       store.FormatTime(s.UpdatedAt),
			ChainXProductID: s.ProductID,
			RetailPrice:     s.RetailPrice,
			SalePrice:       s.SalePrice,
			ScanData:        s.ScanData,
			ScanTypeID:      int(s.ScanTypeID),
			ProductName:     s.ProductName,
			BrandName:       s.BrandName,
		})
	}
	for _, rep := range reports {
		var scanID *string
		if rep.ScanID != nil {
			id := rep.ScanID.String()
			scanID = &id
		}
		p.Reports = append(p.Reports, PayloadReport{
			ReportID:        rep.ID.String(),
			CreatedAt:       store.FormatTime(rep.CreatedAt),
			UpdatedAt:       store.FormatTime(rep.UpdatedAt),
			ChainXProductID: rep.ProductID,
			ReorderStatusID: int(rep.ReorderStatusID),
			ScanID:          scanID,
		})
	}
	for _, c := range conditions {
		p.SKUConditions = append(p.SKUConditions, PayloadConditions{
			ChainXProductID: c.ProductID,
			SKUConditionIDs: c.Conditions.IDs(),
		})
	}
	return p, nil
}

// Serialize returns the JSON upload body for a. On any failure the result
// is empty; a partial payload is never returned.
func (r *Repository) Serialize(ctx context.Context, a model.Audit) (string, error) {
	p, err := r.BuildPayload(ctx, a)
	if err != nil {
		r.logFailure(err, "serialize", logrus.Fields{"audit_id": a.ID})
		return "", fmt.Errorf("failed to get details for audit %s: %w", a.ID, err)
	}
	data, err := json.Marshal(p)
	if err != nil {
		r.logFailure(err, "serialize", logrus.Fields{"audit_id": a.ID})
		return "", fmt.Errorf("failed to serialize audit %s: %w", a.ID, err)
	}
	return string(data), nil
}
