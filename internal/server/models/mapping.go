package models

import "time"

// MappingKind distinguishes what the learned key refers to.
type MappingKind string

const (
	MappingMerchant MappingKind = "merchant"
	MappingItem     MappingKind = "item"
)

// CategoryMapping is one learned observation count: within a scope, how
// often a normalized merchant or item name was filed under a category.
// Suggestions pick the mapping with the highest SeenCount for a key.
type CategoryMapping struct {
	Scope     Scope       `json:"scope"`
	Kind      MappingKind `json:"kind"`
	Key       string      `json:"key"`
	Category  string      `json:"category"`
	SeenCount int64       `json:"seen_count"`
	LastSeen  time.Time   `json:"last_seen"`
}
