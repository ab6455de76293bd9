// internal/model/filter.go
package model

// FilterCriteria is the typed lead-selection predicate. Fields are optional
// and AND-combined; an absent field places no constraint. Archived leads are
// excluded unconditionally regardless of criteria.
type FilterCriteria struct {
	Niche            string `json:"niche,omitempty"`
	City             string `json:"city,omitempty"`
	Status           string `json:"status,omitempty" validate:"omitempty,oneof=new contacted qualified converted lost"`
	MinScore         *int   `json:"minScore,omitempty" validate:"omitempty,gte=0"`
	MaxDaysOld       *int   `json:"maxDaysOld,omitempty" validate:"omitempty,gt=0"`
	ExcludeContacted bool   `json:"excludeContacted,omitempty"`
}
