package model

import "fmt"

// ReorderStatus is the auditor's disposition for one product.
type ReorderStatus int

const (
	StatusNone       ReorderStatus = 0
	StatusInStock    ReorderStatus = 1
	StatusOutOfStock ReorderStatus = 2
	StatusVoid       ReorderStatus = 3
)

// ReorderStatuses lists every status in display order.
var ReorderStatuses = []ReorderStatus{StatusNone, StatusInStock, StatusOutOfStock, StatusVoid}

// String returns the display name.
func (s ReorderStatus) String() string {
	switch s {
	case StatusNone:
		return "None"
	case StatusInStock:
		return "In Stock"
	case StatusOutOfStock:
		return "Out of Stock"
	case StatusVoid:
		return "Void"
	default:
		return fmt.Sprintf("Unknown(%d)", int(s))
	}
}

// Abbrev returns the short code shown in product lists.
func (s ReorderStatus) Abbrev() string {
	switch s {
	case StatusInStock:
		return "I"
	case StatusOutOfStock:
		return "OOS"
	case StatusVoid:
		return "V"
	default:
		return ""
	}
}

// Valid reports whether s is a known status.
func (s ReorderStatus) Valid() bool {
	return s >= StatusNone && s <= StatusVoid
}

// ParseReorderStatus accepts a status name, abbreviation or numeric id.
func ParseReorderStatus(v string) (ReorderStatus, error) {
	for _, s := range ReorderStatuses {
		if v == s.String() || (s.Abbrev() != "" && v == s.Abbrev()) || v == fmt.Sprint(int(s)) {
			return s, nil
		}
	}
	switch v {
	case "none":
		return StatusNone, nil
	case "in-stock", "instock", "in_stock":
		return StatusInStock, nil
	case "out-of-stock", "oos", "out_of_stock":
		return StatusOutOfStock, nil
	case "void":
		return StatusVoid, nil
	}
	return StatusNone, fmt.Errorf("unknown reorder status %q", v)
}

// ScanType tells a barcode scan apart from a manual price entry.
type ScanType int

const (
	ScanTypeScanned ScanType = 1
	ScanTypeManual  ScanType = 2
)

func (t ScanType) String() string {
	switch t {
	case ScanTypeScanned:
		return "Scanned"
	case ScanTypeManual:
		return "Manual"
	default:
		return fmt.Sprintf("Unknown(%d)", int(t))
	}
}

// ScanTypeFor derives the scan type from the raw scanner payload.
func ScanTypeFor(scanData *string) ScanType {
	if scanData == nil {
		return ScanTypeManual
	}
	return ScanTypeScanned
}

// AuditType classifies a store visit.
type AuditType int

const (
	AuditTypeStandard AuditType = 1
	AuditTypeDemo     AuditType = 2
	AuditTypeResearch AuditType = 3
)

func (t AuditType) String() string {
	switch t {
	case AuditTypeStandard:
		return "Standard"
	case AuditTypeDemo:
		return "Demo"
	case AuditTypeResearch:
		return "Research"
	default:
		return fmt.Sprintf("Unknown(%d)", int(t))
	}
}
