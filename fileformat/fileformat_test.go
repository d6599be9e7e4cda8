package fileformat

import (
	"testing"

	"github.com/grailbio/testutil/expect"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		path string
		want Format
	}{
		{"reads.bam", BAM},
		{"reads.cram", CRAM},
		{"reads.sam", SAM},
		{"s3://bucket/dir/reads.bam", BAM},
		{"ref.fa", FASTA},
		{"ref.fasta", FASTA},
		{"ref.fasta.gz", FASTA},
		{"reads.fq", FASTQ},
		{"reads.fastq.gz", FASTQ},
		{"reads.ifq", InterleavedFASTQ},
		{"calls.vcf", VCF},
		{"calls.vcf.gz", VCF},
		{"calls.vcf.bgz", VCF},
		{"calls.vcf.bgzf", VCF},
		{"targets.bed", BED},
		{"genes.gff3", GFF3},
		{"genes.gtf", GTF},
		{"genes.gff", GTF},
		{"peaks.narrowpeak", NarrowPeak},
		{"peaks.narrowPeak", NarrowPeak},
		{"targets.interval_list", IntervalList},
		{"ref.2bit", TwoBit},
		{"dataset.alignments", Unknown},
		{"reads.BAM", Unknown}, // case-sensitive
		{"peaks.NarrowPeak", Unknown},
	}
	for _, tc := range tests {
		expect.EQ(t, Classify(tc.path), tc.want, "path %s", tc.path)
	}
}

func TestStripCompression(t *testing.T) {
	expect.EQ(t, StripCompression("calls.vcf.gz"), "calls.vcf")
	expect.EQ(t, StripCompression("calls.vcf.bgzf"), "calls.vcf")
	expect.EQ(t, StripCompression("reads.bam"), "reads.bam")
	expect.EQ(t, CompressionSuffix("a.fq.gz"), ".gz")
	expect.EQ(t, CompressionSuffix("a.fq"), "")
}
