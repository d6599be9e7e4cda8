// Package fileformat classifies genomic data files by their trailing
// extension and knows how to strip and unwrap recognized compression
// suffixes before classification.
package fileformat

import (
	"io"
	"strings"

	"github.com/grailbio/base/compress"
	"github.com/grailbio/hts/bgzf"
)

// Format identifies a supported genomic file format. Unknown means the
// path did not match any entry of the extension table and should be
// treated as the generic self-describing columnar format.
type Format int

const (
	// Unknown routes to the self-describing columnar fallback.
	Unknown Format = iota
	// BAM is the binary alignment format.
	BAM
	// CRAM is the reference-compressed alignment format.
	CRAM
	// SAM is the text alignment format.
	SAM
	// FASTA is reference sequence text.
	FASTA
	// FASTQ is unaligned read text.
	FASTQ
	// InterleavedFASTQ is FASTQ with alternating R1/R2 reads.
	InterleavedFASTQ
	// VCF is the variant call format.
	VCF
	// BED is the browser extensible data interval format.
	BED
	// GFF3 is the general feature format, version 3.
	GFF3
	// GTF is the gene transfer format (GFF version 2).
	GTF
	// NarrowPeak is the ENCODE narrowPeak BED6+4 format.
	NarrowPeak
	// IntervalList is the Picard interval list format.
	IntervalList
	// TwoBit is the UCSC packed reference sequence format.
	TwoBit
)

var formatNames = map[Format]string{
	Unknown:          "columnar",
	BAM:              "BAM",
	CRAM:             "CRAM",
	SAM:              "SAM",
	FASTA:            "FASTA",
	FASTQ:            "FASTQ",
	InterleavedFASTQ: "interleaved FASTQ",
	VCF:              "VCF",
	BED:              "BED",
	GFF3:             "GFF3",
	GTF:              "GTF",
	NarrowPeak:       "narrowPeak",
	IntervalList:     "interval list",
	TwoBit:           "2bit",
}

func (f Format) String() string { return formatNames[f] }

// compressionSuffixes are the suffixes stripped before extension
// matching, i.e. the extensions the codec registry has a codec for.
var compressionSuffixes = []string{".gz", ".bgzf", ".bgz", ".bz2", ".zst"}

// CompressionSuffix returns the recognized compression suffix of the
// path, or "".
func CompressionSuffix(path string) string {
	for _, s := range compressionSuffixes {
		if strings.HasSuffix(path, s) {
			return s
		}
	}
	return ""
}

// StripCompression removes one recognized compression suffix.
func StripCompression(path string) string {
	return strings.TrimSuffix(path, CompressionSuffix(path))
}

// extensions is the fixed classification table. Longer suffixes are
// listed before their tails (".gff3" before ".gff") and matching is
// first-hit in order, so no two tags can claim one suffix.
var extensions = []struct {
	suffix string
	format Format
}{
	{".bam", BAM},
	{".cram", CRAM},
	{".sam", SAM},
	{".fasta", FASTA},
	{".fa", FASTA},
	{".fastq", FASTQ},
	{".fq", FASTQ},
	{".ifq", InterleavedFASTQ},
	{".vcf", VCF},
	{".bed", BED},
	{".gff3", GFF3},
	{".gtf", GTF},
	{".gff", GTF},
	// Exactly these two literal spellings; no general case folding.
	{".narrowpeak", NarrowPeak},
	{".narrowPeak", NarrowPeak},
	{".interval_list", IntervalList},
	{".2bit", TwoBit},
}

// Classify maps a path name to its format tag. A recognized
// compression suffix is stripped first, so "calls.vcf.bgz" classifies
// as VCF. Matching is case-sensitive. Paths matching no table entry
// return Unknown.
func Classify(path string) Format {
	stripped := StripCompression(path)
	for _, e := range extensions {
		if strings.HasSuffix(stripped, e.suffix) {
			return e.format
		}
	}
	return Unknown
}

// IsAlignment reports whether the format carries alignment records
// with an embedded binary/text header.
func (f Format) IsAlignment() bool {
	return f == BAM || f == CRAM || f == SAM
}

// IsFeature reports whether the format is a line-oriented interval or
// annotation text format.
func (f Format) IsFeature() bool {
	switch f {
	case BED, GFF3, GTF, NarrowPeak, IntervalList:
		return true
	}
	return false
}

// NewDecompressedReader wraps r with the codec matching the path's
// compression suffix, if any. The bgzf family is unwrapped with the
// bgzf codec (the plain gzip codec would also accept it but loses
// block structure diagnostics); the remaining suffixes go through the
// codec registry keyed by path. The returned closer must be closed by
// the caller; it does not close r.
func NewDecompressedReader(r io.Reader, path string) (io.ReadCloser, error) {
	switch CompressionSuffix(path) {
	case ".bgzf", ".bgz":
		bz, err := bgzf.NewReader(r, 1)
		if err != nil {
			return nil, err
		}
		return bz, nil
	case "":
		return io.NopCloser(r), nil
	}
	if u := compress.NewReaderPath(r, path); u != nil {
		return u, nil
	}
	return io.NopCloser(r), nil
}
