// Package fasta parses FASTA reference sequence. Briefly, FASTA files
// consist of a number of named sequences that may be interrupted by
// newlines:
//
//	>chr7 optional description
//	ACGTAC
//	GAGGAC
//	>chr8
//	ACGT
//
// A sequence name is the stretch of characters excluding spaces
// immediately after '>'; anything after the first space is the
// description. The parse is eager and order-preserving; loaders turn
// the result into sequence fragments plus a sequence dictionary.
package fasta

import (
	"bufio"
	"io"
	"strings"

	"github.com/grailbio/gds/metadata"
	"github.com/grailbio/gds/records"
	"github.com/pkg/errors"
)

// Sequence is one named sequence of a FASTA file.
type Sequence struct {
	Name        string
	Description string
	Bases       string
}

// Parse reads all sequences from r, in file order.
func Parse(r io.Reader) ([]Sequence, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(nil, 1<<28)
	var seqs []Sequence
	var cur *Sequence
	var bases strings.Builder
	flush := func() {
		if cur != nil {
			cur.Bases = bases.String()
			seqs = append(seqs, *cur)
			bases.Reset()
			cur = nil
		}
	}
	for scanner.Scan() {
		line := scanner.Text()
		if len(line) == 0 {
			continue
		}
		if line[0] == '>' {
			flush()
			name, desc := line[1:], ""
			if i := strings.IndexByte(name, ' '); i >= 0 {
				name, desc = name[:i], strings.TrimSpace(name[i+1:])
			}
			if name == "" {
				return nil, errors.New("malformed FASTA: empty sequence name")
			}
			cur = &Sequence{Name: name, Description: desc}
			continue
		}
		if cur == nil {
			return nil, errors.Errorf("malformed FASTA: sequence data before first header: %.20q", line)
		}
		bases.WriteString(line)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "couldn't read FASTA data")
	}
	flush()
	return seqs, nil
}

// Fragments converts parsed sequences to sequence fragment records,
// splitting sequences longer than maxFragmentLength. A
// maxFragmentLength of zero keeps each sequence whole.
func Fragments(seqs []Sequence, maxFragmentLength int64) []records.SequenceFragment {
	var frags []records.SequenceFragment
	for _, s := range seqs {
		total := int64(len(s.Bases))
		if maxFragmentLength <= 0 || total <= maxFragmentLength {
			frags = append(frags, records.SequenceFragment{
				Name:        s.Name,
				Description: s.Description,
				Bases:       s.Bases,
				TotalLength: total,
			})
			continue
		}
		for index, start := 0, int64(0); start < total; index, start = index+1, start+maxFragmentLength {
			end := start + maxFragmentLength
			if end > total {
				end = total
			}
			frags = append(frags, records.SequenceFragment{
				Name:        s.Name,
				Description: s.Description,
				Index:       index,
				Start:       start,
				Bases:       s.Bases[start:end],
				TotalLength: total,
			})
		}
	}
	return frags
}

// Dictionary derives the sequence dictionary of the parsed sequences.
func Dictionary(seqs []Sequence) metadata.SequenceDictionary {
	contigs := make([]metadata.Contig, len(seqs))
	for i, s := range seqs {
		contigs[i] = metadata.Contig{Name: s.Name, Length: int64(len(s.Bases))}
	}
	return metadata.NewSequenceDictionary(contigs)
}
