package model

import "time"

// ApprovedDrug is a drug record sourced from the external drug registry.
// Read-only within the pipeline.
type ApprovedDrug struct {
	ID           string     `json:"id"`
	Key          string     `json:"key"`
	GenericName  string     `json:"generic_name"`
	BrandName    string     `json:"brand_name,omitempty"`
	Manufacturer string     `json:"manufacturer,omitempty"`
	ApprovalDate *time.Time `json:"approval_date,omitempty"`
	Indication   string     `json:"indication,omitempty"`
}

// DisplayName prefers the brand name when present.
func (d ApprovedDrug) DisplayName() string {
	if d.BrandName != "" {
		return d.BrandName
	}
	return d.GenericName
}
