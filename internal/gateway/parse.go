package gateway

import (
	"strconv"
	"strings"
	"time"

	"github.com/joostmulder/AuditPro/internal/model"
	"github.com/tidwall/gjson"
)

// lastScannedLayout is the layout of product last_scanned_at values.
const lastScannedLayout = "2006-01-02T15:04:05Z07:00"

// The service is loose about numbers: ids and prices arrive as JSON
// numbers or as numeric strings, and missing values as null or "".

func optInt(r gjson.Result, key string) int64 {
	v := r.Get(key)
	switch v.Type {
	case gjson.Number:
		return v.Int()
	case gjson.String:
		n, err := strconv.ParseInt(strings.TrimSpace(v.Str), 10, 64)
		if err != nil {
			return 0
		}
		return n
	}
	return 0
}

func optFloat(r gjson.Result, key string) *float64 {
	v := r.Get(key)
	switch v.Type {
	case gjson.Number:
		f := v.Float()
		return &f
	case gjson.String:
		f, err := strconv.ParseFloat(strings.TrimSpace(v.Str), 64)
		if err != nil {
			return nil
		}
		return &f
	}
	return nil
}

func optString(r gjson.Result, key string) string {
	v := r.Get(key)
	if v.Type == gjson.Null {
		return ""
	}
	return v.String()
}

func optBool(r gjson.Result, key string) *bool {
	v := r.Get(key)
	if !v.Exists() || v.Type == gjson.Null {
		return nil
	}
	b := v.Bool()
	return &b
}

func parseUser(r gjson.Result) model.User {
	u := model.User{
		ID:         optInt(r, "user_id"),
		FirstName:  strings.TrimSpace(optString(r, "user_first_name")),
		LastName:   strings.TrimSpace(optString(r, "user_last_name")),
		Email:      strings.TrimSpace(optString(r, "user_email")),
		RoleID:     optInt(r, "role_id"),
		RoleName:   strings.TrimSpace(optString(r, "role_name")),
		RoleRank:   int(optInt(r, "role_rank")),
		ClientID:   optInt(r, "client_id"),
		ClientName: strings.TrimSpace(optString(r, "client_name")),
	}

	r.Get("client_settings").ForEach(func(_, s gjson.Result) bool {
		name := optString(s, "setting_name")
		if name != "" {
			u.Settings = append(u.Settings, model.Setting{Name: name, Value: optString(s, "setting_value")})
		}
		return true
	})
	r.Get("sku_conditions").ForEach(func(_, c gjson.Result) bool {
		cond := model.SKUCondition{
			ID:          int(optInt(c, "sku_condition_id")),
			Name:        optString(c, "sku_condition_name"),
			Description: optString(c, "sku_condition_description"),
		}
		if cond.ID > 0 && cond.Name != "" {
			u.SKUConditions = append(u.SKUConditions, cond)
		}
		return true
	})
	return u
}

func parseStore(r gjson.Result) model.Store {
	s := model.Store{
		ID:              optInt(r, "store_id"),
		ClientID:        optInt(r, "client_id"),
		ChainID:         optInt(r, "chain_id"),
		ChainName:       optString(r, "chain_name"),
		ChainCode:       optString(r, "chain_code"),
		StoreName:       optString(r, "store_name"),
		StoreIdentifier: optString(r, "store_identifier"),
		Address:         optString(r, "store_street_address_1"),
		Address2:        optString(r, "store_street_address_2"),
		City:            optString(r, "store_city"),
		Zip:             optString(r, "store_zip"),
	}

	lat, lon := optFloat(r, "store_lat"), optFloat(r, "store_lon")
	if lat != nil && lon != nil {
		s.Latitude, s.Longitude = lat, lon
	}

	r.Get("audit_history").ForEach(func(_, h gjson.Result) bool {
		if !h.IsObject() {
			return true
		}
		s.History = append(s.History, model.AuditHistory{
			AuditID:            optString(h, "audit_id"),
			AuditCounter:       int(optInt(h, "audit_counter")),
			UserEmail:          optString(h, "user_email"),
			AuditNote:          optString(h, "audit_note"),
			AuditStoreNote:     optString(h, "audit_store_note"),
			PercentInStock:     int(optInt(h, "percent_in_stock")),
			PercentVoid:        int(optInt(h, "percent_void")),
			AuditDurationTotal: optString(h, "audit_duration_total"),
			DaysSinceAudit:     int(optInt(h, "days_since_audit")),
			LastAuditDate:      optString(h, "last_audit_date"),
		})
		return true
	})
	return s
}

func parseProduct(r gjson.Result) model.Product {
	p := model.Product{
		ID:                  optInt(r, "chain_x_product_id"),
		ClientID:            optInt(r, "client_id"),
		ChainID:             optInt(r, "chain_id"),
		ProductID:           optInt(r, "product_id"),
		BrandName:           optString(r, "brand_name"),
		BrandNameShort:      optString(r, "brand_name_short"),
		ProductName:         optString(r, "product_name"),
		UPC:                 optString(r, "upc"),
		MSRP:                optFloat(r, "msrp"),
		RetailPriceMin:      optFloat(r, "retail_price_min"),
		RetailPriceMax:      optFloat(r, "retail_price_max"),
		RetailPriceAverage:  optFloat(r, "retail_price_average"),
		CategoryName:        optString(r, "category_name"),
		SubcategoryName:     optString(r, "subcategory_name"),
		ProductTypeName:     optString(r, "product_type_name"),
		CurrentReorderCode:  optString(r, "current_reorder_code"),
		PreviousReorderCode: optString(r, "previous_reorder_code"),
		BrandSKU:            optString(r, "brand_sku"),
		LastScannedPrice:    optFloat(r, "last_scanned_price"),
		LastScanWasSale:     optBool(r, "last_scan_was_sale"),
		ChainSKU:            optString(r, "chain_sku"),
		InStockPriceMin:     optFloat(r, "in_stock_price_min"),
		InStockPriceMax:     optFloat(r, "in_stock_price_max"),
	}
	if b := optBool(r, "is_random_weight"); b != nil {
		p.IsRandomWeight = *b
	}
	if ts := optString(r, "last_scanned_at"); ts != "" {
		if t, err := time.Parse(lastScannedLayout, ts); err == nil {
			t = t.UTC()
			p.LastScannedAt = &t
		}
	}
	return p
}
