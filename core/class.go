// Package core defines the shared data model for the memory ingestion
// pipeline: segments, candidates, duplicates, resolutions, and the
// per-call ingestion configuration.
package core

import "strings"

// MemoryClass is the access-control and encryption partition a memory
// belongs to. Similarity search never crosses class boundaries.
type MemoryClass string

// Known memory classes.
const (
	ClassPersonal  MemoryClass = "personal"
	ClassWork      MemoryClass = "work"
	ClassHealth    MemoryClass = "health"
	ClassFinancial MemoryClass = "financial"
	ClassOther     MemoryClass = "other"
	ClassCustom    MemoryClass = "custom"
)

// ParseClass maps a free-form category label (typically a model response)
// to a MemoryClass. Empty or "other" labels map to ClassOther; any label
// that is not a known class maps to ClassCustom.
func ParseClass(label string) MemoryClass {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "personal":
		return ClassPersonal
	case "work":
		return ClassWork
	case "health":
		return ClassHealth
	case "financial":
		return ClassFinancial
	case "", "other":
		return ClassOther
	default:
		return ClassCustom
	}
}

// Valid reports whether c is one of the known classes.
func (c MemoryClass) Valid() bool {
	switch c {
	case ClassPersonal, ClassWork, ClassHealth, ClassFinancial, ClassOther, ClassCustom:
		return true
	}
	return false
}

func (c MemoryClass) String() string {
	return string(c)
}
