package session

import (
	"strconv"
	"strings"

	"github.com/joostmulder/AuditPro/internal/model"
)

// Client setting names as sent by the web service.
const (
	SettingInStockRequiresScan = "in_stock_requires_scan"
	SettingScanForcesInStock   = "scan_forces_in_stock"
	SettingAllowChainSKU       = "allow_chain_sku"
	SettingAllowSmartScan      = "allow_smart_scan"
	SettingNoNotesWarning      = "no_notes_warning"
	SettingAllowStoreNotes     = "allow_store_notes"
	SettingPrintVoids          = "print_voids"
	SettingPrintConditions     = "print_conditions"
	SettingPrintStoreNotes     = "print_store_notes"
	SettingAutosyncWifi        = "autosync_wifi"
	SettingAutoDecimal         = "auto_decimal"
	SettingInStockPriceMin     = "in_stock_price_min"
	SettingInStockPriceMax     = "in_stock_price_max"
	SettingAuditDistanceMax    = "audit_distance_max_miles"
)

// Settings is a read-only view of the client settings.
type Settings map[string]string

// NewSettings indexes a settings list by name. Later entries win.
func NewSettings(list []model.Setting) Settings {
	s := make(Settings, len(list))
	for _, e := range list {
		s[e.Name] = e.Value
	}
	return s
}

// Bool returns a boolean setting, or def when it is missing or unreadable.
func (s Settings) Bool(name string, def bool) bool {
	v, ok := s[name]
	if !ok {
		return def
	}
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes":
		return true
	case "0", "false", "no":
		return false
	}
	return def
}

// Float returns a numeric setting, or nil when it is missing or unreadable.
func (s Settings) Float(name string) *float64 {
	v, ok := s[name]
	if !ok {
		return nil
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return nil
	}
	return &f
}

func (s Settings) InStockRequiresScan() bool { return s.Bool(SettingInStockRequiresScan, false) }
func (s Settings) ScanForcesInStock() bool   { return s.Bool(SettingScanForcesInStock, false) }
func (s Settings) AllowChainSKU() bool       { return s.Bool(SettingAllowChainSKU, false) }
func (s Settings) AllowSmartScan() bool      { return s.Bool(SettingAllowSmartScan, false) }
func (s Settings) NoNotesWarning() bool      { return s.Bool(SettingNoNotesWarning, false) }
func (s Settings) AllowStoreNotes() bool     { return s.Bool(SettingAllowStoreNotes, false) }
func (s Settings) PrintVoids() bool          { return s.Bool(SettingPrintVoids, false) }
func (s Settings) PrintConditions() bool     { return s.Bool(SettingPrintConditions, false) }
func (s Settings) PrintStoreNotes() bool     { return s.Bool(SettingPrintStoreNotes, false) }
func (s Settings) AutosyncWifi() bool        { return s.Bool(SettingAutosyncWifi, false) }
func (s Settings) AutoDecimal() bool         { return s.Bool(SettingAutoDecimal, false) }

func (s Settings) InStockPriceMin() *float64  { return s.Float(SettingInStockPriceMin) }
func (s Settings) InStockPriceMax() *float64  { return s.Float(SettingInStockPriceMax) }
func (s Settings) AuditDistanceMax() *float64 { return s.Float(SettingAuditDistanceMax) }
