package metadata

import (
	"fmt"

	"github.com/grailbio/base/log"
)

// TypeMismatchError reports a compound header line whose declared
// scalar type conflicts with the registry's canonical declaration for
// the same identifier. Fatal only under Strict stringency.
type TypeMismatchError struct {
	Input    HeaderLine
	Expected HeaderLine
}

func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("header line %s conflicts with supported line %s",
		e.Input, e.Expected)
}

// CleanHeaderLines produces the final header-line set for a merged
// variant dataset. It is applied once at the dataset level, after the
// per-file header lines have been concatenated:
//
//  1. The merged list is deduplicated by full structural equality.
//  2. Each compound (FORMAT or INFO) line whose identifier appears in
//     SupportedHeaderLines is compared against the registry's line of
//     the same kind. Matching type: the input line is dropped as
//     redundant (the registry copy is appended below). Conflicting
//     type: under Strict the clean fails with a *TypeMismatchError;
//     under Lenient a warning is logged and the input line is kept
//     with its identifier renamed to "BAD_<id>"; under Silent the same
//     rename happens without logging.
//  3. Filter and other lines pass through unchanged.
//  4. The full SupportedHeaderLines registry is appended, so every
//     registry declaration is present exactly once in the result even
//     for empty input.
//
// The "BAD_"-prefixed rename is an escape hatch that preserves the
// conflicting declaration for inspection; nothing in this module reads
// the renamed identifier back.
func CleanHeaderLines(lines []HeaderLine, stringency Stringency) ([]HeaderLine, error) {
	deduped := make([]HeaderLine, 0, len(lines))
	seen := make(map[HeaderLine]bool, len(lines))
	for _, l := range lines {
		if seen[l] {
			continue
		}
		seen[l] = true
		deduped = append(deduped, l)
	}

	cleaned := make([]HeaderLine, 0, len(deduped)+len(SupportedHeaderLines))
	for _, l := range deduped {
		switch l.Kind {
		case FormatLine, InfoLine:
			expected, known := supportedByKey[lineKey{l.Kind, l.ID}]
			if !known {
				cleaned = append(cleaned, l)
				continue
			}
			if l.Type == expected.Type {
				// Redundant with the registry copy appended below.
				continue
			}
			if stringency == Strict {
				return nil, &TypeMismatchError{Input: l, Expected: expected}
			}
			if stringency == Lenient {
				log.Error.Printf("renaming conflicting header line %s to BAD_%s (expected %s)",
					l, l.ID, expected)
			}
			renamed := l
			renamed.ID = "BAD_" + l.ID
			cleaned = append(cleaned, renamed)
		case FilterLine, OtherLine:
			cleaned = append(cleaned, l)
		default:
			// The kind set is sealed; anything else is a programming error.
			return nil, fmt.Errorf("unknown header line kind %d", int(l.Kind))
		}
	}
	cleaned = append(cleaned, SupportedHeaderLines...)
	return cleaned, nil
}
