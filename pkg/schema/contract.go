package schema

import "slices"

// Schema is the per-model validation contract: which fields a write must
// carry, which fields are excluded from the API entirely, and which are
// derived server-side and therefore read-only.
type Schema struct {
	Required []string `json:"required,omitempty" yaml:"required,omitempty"`
	Excluded []string `json:"excluded,omitempty" yaml:"excluded,omitempty"`
	DumpOnly []string `json:"dumpOnly,omitempty" yaml:"dumpOnly,omitempty"`
}

// AccessMode distinguishes filtering/projection (read) from updates (write)
// when deriving the forbidden field set.
type AccessMode int

const (
	Read AccessMode = iota
	Write
)

// Forbidden returns the fields that may not be touched in the given mode.
// Excluded fields are forbidden in both modes; dump-only fields only for
// writes. A nil schema forbids nothing.
func (s *Schema) Forbidden(mode AccessMode) []string {
	if s == nil {
		return nil
	}
	forbidden := slices.Clone(s.Excluded)
	if mode == Write {
		forbidden = append(forbidden, s.DumpOnly...)
	}
	return forbidden
}

// IsForbidden reports whether field is in the forbidden set for mode.
func (s *Schema) IsForbidden(field string, mode AccessMode) bool {
	return slices.Contains(s.Forbidden(mode), field)
}
