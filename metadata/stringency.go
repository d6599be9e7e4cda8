package metadata

import (
	"github.com/pkg/errors"
)

// Stringency controls how a detected inconsistency in input data or
// metadata is treated: as a fatal error, as a logged warning, or
// silently tolerated.
type Stringency int

const (
	// Strict treats any inconsistency as a fatal error.
	Strict Stringency = iota
	// Lenient logs the inconsistency and continues.
	Lenient
	// Silent continues without logging.
	Silent
)

// String returns the canonical upper-case name of the stringency.
func (s Stringency) String() string {
	switch s {
	case Strict:
		return "STRICT"
	case Lenient:
		return "LENIENT"
	case Silent:
		return "SILENT"
	}
	return "UNKNOWN"
}

// ParseStringency parses "STRICT", "LENIENT", or "SILENT".
func ParseStringency(str string) (Stringency, error) {
	switch str {
	case "STRICT":
		return Strict, nil
	case "LENIENT":
		return Lenient, nil
	case "SILENT":
		return Silent, nil
	}
	return Strict, errors.Errorf("unknown validation stringency %q", str)
}
