// Package catalog serves the read-only reference data the workflow engine
// consults: work roles, suppliers, glass requirements and the enumerations
// used to validate rejection and issue payloads.
package catalog

import "errors"

// Role is a work category (e.g. PVC joinery, aluminium, glass balcony).
type Role struct {
	ID                string          `json:"id"`
	Key               string          `json:"key"`
	Name              string          `json:"name"`
	RequiresGlass     bool            `json:"requires_glass"`
	DefaultSupplierID string          `json:"default_supplier_id,omitempty"`
	AssemblyStages    []AssemblyStage `json:"assembly_stages,omitempty"`
}

// AssemblyStage defines one ordered assembly step for a role.
type AssemblyStage struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Order int    `json:"order"`
}

// Supplier is an outsourced production or glass vendor.
type Supplier struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Kind  string `json:"kind"`
	Phone string `json:"phone,omitempty"`
}

// LabeledCode is a coded enumeration entry with a display label.
// Used for cancel reasons, issue types and fault sources.
type LabeledCode struct {
	Code  string `json:"code"`
	Label string `json:"label"`
}

// GenericLabel is returned when a code is not in the catalog; unknown codes
// fall back to it rather than failing the operation.
const GenericLabel = "Diğer"

// ErrRoleNotFound indicates an unknown role id.
var ErrRoleNotFound = errors.New("catalog: role not found")
