// Package records defines the unified, format-neutral record types
// produced by the dataset loaders. They are passive value types:
// decoding from native file formats happens in the loaders, and the
// columnar store persists them as-is.
package records

// Flags holds SAM-style alignment flag bits. The bit layout matches
// the SAM specification so that native flag words convert directly.
type Flags uint16

const (
	// Paired indicates the read is one of a sequencing template pair.
	Paired Flags = 1 << iota
	// ProperPair indicates both reads of the pair aligned consistently.
	ProperPair
	// Unmapped indicates the read did not align.
	Unmapped
	// MateUnmapped indicates the read's mate did not align.
	MateUnmapped
	// Reverse indicates the read aligned to the reverse strand.
	Reverse
	// MateReverse indicates the mate aligned to the reverse strand.
	MateReverse
	// Read1 marks the first read of a template.
	Read1
	// Read2 marks the second read of a template.
	Read2
	// Secondary marks a secondary alignment.
	Secondary
	// QCFail marks a read failing platform quality checks.
	QCFail
	// Duplicate marks a PCR or optical duplicate.
	Duplicate
	// Supplementary marks a supplementary alignment.
	Supplementary
)

// Has reports whether all bits of f2 are set.
func (f Flags) Has(f2 Flags) bool { return f&f2 == f2 }

// Alignment is the unified representation of one aligned or unaligned
// read. Coordinates are 0-based half-open; Start is -1 for unmapped
// reads.
type Alignment struct {
	Name              string
	Flags             Flags
	ReferenceName     string
	Start             int64
	End               int64
	MappingQuality    byte
	Cigar             string
	MateReferenceName string
	MateStart         int64
	TemplateLength    int
	Sequence          string
	// Quality is the base quality string in ASCII phred+33 encoding.
	Quality     string
	RecordGroup string
	// Attributes carries the remaining native tags as "TAG:TYPE:VALUE"
	// strings.
	Attributes []string
}

// Genotype is one sample's call for a variant.
type Genotype struct {
	SampleID string
	// Alleles indexes into {ref, alt...}; -1 is a no-call.
	Alleles []int
	Phased  bool
	// Fields holds the raw FORMAT values keyed by FORMAT identifier.
	Fields map[string]string
}

// VariantContext is the unified representation of one variant record
// together with its per-sample genotypes. Coordinates are 0-based
// half-open.
type VariantContext struct {
	ReferenceName    string
	Start            int64
	End              int64
	Names            []string
	ReferenceAllele  string
	AlternateAlleles []string
	Quality          float64
	HasQuality       bool
	// Filters is empty when the record is unfiltered; a passing record
	// carries the single entry "PASS".
	Filters []string
	// Info holds INFO values typed according to the dataset's cleaned
	// header-line set: int, float64, string, bool, or a []interface{}
	// of those for multi-valued counts.
	Info           map[string]interface{}
	GenotypeFormat []string
	Genotypes      []Genotype
}

// Feature is one interval annotation from a text feature format.
// Coordinates are 0-based half-open regardless of the source format's
// convention.
type Feature struct {
	ReferenceName string
	Start         int64
	End           int64
	Name          string
	Source        string
	Type          string
	Score         float64
	HasScore      bool
	// Strand is '+', '-', or '.' when unstranded.
	Strand byte
	// Frame is 0, 1, or 2; -1 when not applicable.
	Frame      int
	Attributes map[string]string
}

// Fragment groups the reads of one sequencing template.
type Fragment struct {
	Name       string
	Alignments []Alignment
}

// SequenceFragment is a slice of reference sequence: one contig, or a
// piece of one when the source splits long contigs.
type SequenceFragment struct {
	Name        string
	Description string
	// Index is the fragment's ordinal within its contig.
	Index int
	// Start is the 0-based offset of Bases within the contig.
	Start       int64
	Bases       string
	TotalLength int64
}
