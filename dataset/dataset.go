// Package dataset defines the logical datasets produced by one load
// call: a lazy record stream paired with the reconciled metadata
// bundle for its data kind. Records and metadata are computed
// independently and combined only at construction; a dataset is
// immutable afterwards, and no entity is shared across loads.
package dataset

import (
	"github.com/grailbio/gds/metadata"
	"github.com/grailbio/gds/records"
	"github.com/grailbio/gds/stream"
)

// Alignments is a loaded set of aligned or unaligned reads.
type Alignments struct {
	Reads        stream.Stream[records.Alignment]
	Sequences    metadata.SequenceDictionary
	RecordGroups metadata.RecordGroupDictionary
}

// Variants is a loaded set of variant calls with genotypes.
type Variants struct {
	Variants  stream.Stream[records.VariantContext]
	Sequences metadata.SequenceDictionary
	Samples   []metadata.Sample
	// HeaderLines is the cleaned header-line set: deduplicated,
	// reconciled against the supported-line registry, and containing
	// every registry line.
	HeaderLines []metadata.HeaderLine
}

// Features is a loaded set of interval annotations.
type Features struct {
	Features  stream.Stream[records.Feature]
	Sequences metadata.SequenceDictionary
}

// Fragments is a loaded set of reads grouped by sequencing template.
type Fragments struct {
	Fragments    stream.Stream[records.Fragment]
	Sequences    metadata.SequenceDictionary
	RecordGroups metadata.RecordGroupDictionary
	// QuerynameGrouped reports that every input declared queryname
	// sort order, so grouping was done with the cheap linear pass
	// instead of a full regroup.
	QuerynameGrouped bool
}

// Sequences is a loaded set of reference sequence fragments.
type Sequences struct {
	Fragments stream.Stream[records.SequenceFragment]
	Sequences metadata.SequenceDictionary
}
