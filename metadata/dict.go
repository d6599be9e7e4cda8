// Package metadata defines the reconciled metadata bundle attached to a
// loaded genomic dataset: the sequence dictionary, sample list, record
// group dictionary, and typed variant header lines, together with the
// merge and cleaning rules that combine per-file metadata into one
// consistent dataset-level view.
package metadata

import (
	"fmt"
	"strings"
)

// Contig is one entry of a sequence dictionary: a named reference
// sequence with its length and optional descriptive metadata. A Length
// of zero means the length is unknown (e.g. a dictionary inferred from
// a headerless text format).
type Contig struct {
	Name     string
	Length   int64
	MD5      string
	URI      string
	Assembly string
	Species  string
}

// SequenceDictionary is an ordered set of contigs. Within a single
// source file contig names are unique; a merged dictionary may carry
// same-named entries whose other fields disagree, since merging never
// reconciles beyond full structural equality.
type SequenceDictionary struct {
	Contigs []Contig
}

// NewSequenceDictionary returns a dictionary over the given contigs.
func NewSequenceDictionary(contigs []Contig) SequenceDictionary {
	return SequenceDictionary{Contigs: contigs}
}

// Len returns the number of entries.
func (d SequenceDictionary) Len() int { return len(d.Contigs) }

// ByName returns the first contig with the given name.
func (d SequenceDictionary) ByName(name string) (Contig, bool) {
	for _, c := range d.Contigs {
		if c.Name == name {
			return c, true
		}
	}
	return Contig{}, false
}

// Union merges two dictionaries by concatenation followed by
// deduplication under full structural equality. Entries are never
// silently dropped: two entries sharing a name but differing in any
// field are both kept as independent entries. Union is associative and
// yields a set-equal result regardless of merge order.
func (d SequenceDictionary) Union(other SequenceDictionary) SequenceDictionary {
	merged := make([]Contig, 0, len(d.Contigs)+len(other.Contigs))
	seen := make(map[Contig]bool, len(d.Contigs)+len(other.Contigs))
	for _, contigs := range [][]Contig{d.Contigs, other.Contigs} {
		for _, c := range contigs {
			if seen[c] {
				continue
			}
			seen[c] = true
			merged = append(merged, c)
		}
	}
	return SequenceDictionary{Contigs: merged}
}

// String renders a short human-readable summary.
func (d SequenceDictionary) String() string {
	var b strings.Builder
	for i, c := range d.Contigs {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%s:%d", c.Name, c.Length)
	}
	return b.String()
}
