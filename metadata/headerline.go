package metadata

import "fmt"

// LineKind distinguishes the sealed set of variant header line shapes.
// FormatLine and InfoLine are compound declarations carrying an
// identifier, a count specification, a scalar type, and a description;
// FilterLine carries an identifier and description; OtherLine is any
// remaining raw "##" declaration.
type LineKind int

const (
	// FormatLine is a ##FORMAT declaration.
	FormatLine LineKind = iota
	// InfoLine is a ##INFO declaration.
	InfoLine
	// FilterLine is a ##FILTER declaration.
	FilterLine
	// OtherLine is any other ## declaration, carried verbatim in Raw.
	OtherLine
)

// String returns the VCF keyword for the kind.
func (k LineKind) String() string {
	switch k {
	case FormatLine:
		return "FORMAT"
	case InfoLine:
		return "INFO"
	case FilterLine:
		return "FILTER"
	case OtherLine:
		return "OTHER"
	}
	return fmt.Sprintf("LineKind(%d)", int(k))
}

// HeaderLine is one typed declaration from a variant-format header.
// For compound lines (FormatLine, InfoLine) the identifier is the
// uniqueness key; Number holds the count specification ("0", "1", "A",
// "R", "G", or "."), and Type one of the VCF scalar types ("Integer",
// "Float", "Flag", "Character", "String"). Filter lines use ID and
// Description only. Other lines carry the raw declaration text.
//
// HeaderLine is a value type; two lines are the same declaration iff
// they are equal under ==.
type HeaderLine struct {
	Kind        LineKind
	ID          string
	Number      string
	Type        string
	Description string
	Raw         string
}

// String renders the line in VCF header syntax.
func (l HeaderLine) String() string {
	switch l.Kind {
	case FormatLine, InfoLine:
		return fmt.Sprintf("##%s=<ID=%s,Number=%s,Type=%s,Description=%q>",
			l.Kind, l.ID, l.Number, l.Type, l.Description)
	case FilterLine:
		return fmt.Sprintf("##FILTER=<ID=%s,Description=%q>", l.ID, l.Description)
	default:
		return l.Raw
	}
}

// compound reports whether the line is a FORMAT or INFO declaration.
func (l HeaderLine) compound() bool {
	return l.Kind == FormatLine || l.Kind == InfoLine
}
