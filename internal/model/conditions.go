package model

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

// ConditionSet is the set of SKU condition ids selected for one product.
type ConditionSet map[int]struct{}

// NewConditionSet builds a set from ids, dropping duplicates.
func NewConditionSet(ids ...int) ConditionSet {
	s := make(ConditionSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

// Has reports whether id is selected.
func (s ConditionSet) Has(id int) bool {
	_, ok := s[id]
	return ok
}

// IDs returns the selected ids in ascending order.
func (s ConditionSet) IDs() []int {
	ids := make([]int, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// ConditionSelection is a persisted set of SKU conditions for a product
// within an audit.
type ConditionSelection struct {
	ID         uuid.UUID
	AuditID    uuid.UUID
	ProductID  int64
	Conditions ConditionSet
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// SKUCondition describes one condition a client lets auditors flag.
type SKUCondition struct {
	ID          int    `json:"sku_condition_id" toml:"id" validate:"gt=0"`
	Name        string `json:"sku_condition_name" toml:"name" validate:"required"`
	Description string `json:"sku_condition_description" toml:"description"`
}
