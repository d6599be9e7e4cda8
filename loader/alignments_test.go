package loader_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/grailbio/gds/datapath"
	"github.com/grailbio/gds/loader"
	"github.com/grailbio/gds/metadata"
	"github.com/grailbio/gds/records"
	"github.com/grailbio/gds/stream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSAM = `@HD	VN:1.6	SO:coordinate
@SQ	SN:chr1	LN:1000	AS:test
@SQ	SN:chr2	LN:800
@RG	ID:rg1	SM:NA12878	LB:lib1	PL:ILLUMINA
r1	99	chr1	100	60	4M	=	150	54	ACGT	IIII	RG:Z:rg1
r2	0	chr1	200	60	4M	*	0	0	ACGT	IIII
r3	4	*	0	0	*	*	0	0	ACGT	IIII
`

func writeTestFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o600))
	return p
}

func TestLoadAlignmentsSAM(t *testing.T) {
	ctx := context.Background()
	p := writeTestFile(t, t.TempDir(), "reads.sam", testSAM)
	s := loader.New(loader.Opts{})

	ds, err := s.LoadAlignments(ctx, p, loader.LoadOpts{})
	require.NoError(t, err)

	require.Equal(t, 2, ds.Sequences.Len())
	assert.Equal(t, metadata.Contig{Name: "chr1", Length: 1000, Assembly: "test"}, ds.Sequences.Contigs[0])
	require.Len(t, ds.RecordGroups.Groups, 1)
	assert.Equal(t, "NA12878", ds.RecordGroups.Groups[0].Sample)
	assert.Equal(t, "ILLUMINA", ds.RecordGroups.Groups[0].Platform)

	reads, err := stream.Collect(ds.Reads)
	require.NoError(t, err)
	require.Len(t, reads, 3)

	r1 := reads[0]
	assert.Equal(t, "r1", r1.Name)
	assert.Equal(t, records.Flags(99), r1.Flags)
	assert.True(t, r1.Flags.Has(records.Paired|records.Read1))
	assert.Equal(t, "chr1", r1.ReferenceName)
	assert.Equal(t, int64(99), r1.Start)
	assert.Equal(t, int64(103), r1.End)
	assert.Equal(t, "4M", r1.Cigar)
	assert.Equal(t, int64(149), r1.MateStart)
	assert.Equal(t, "chr1", r1.MateReferenceName)
	assert.Equal(t, "rg1", r1.RecordGroup)
	assert.Equal(t, "ACGT", r1.Sequence)
	assert.Equal(t, "IIII", r1.Quality)

	assert.Equal(t, "", reads[1].MateReferenceName)
	assert.Equal(t, int64(-1), reads[1].MateStart)

	r3 := reads[2]
	assert.True(t, r3.Flags.Has(records.Unmapped))
	assert.Equal(t, "", r3.ReferenceName)
	assert.Equal(t, int64(-1), r3.Start)
}

func TestLoadAlignmentsRegionFilter(t *testing.T) {
	ctx := context.Background()
	p := writeTestFile(t, t.TempDir(), "reads.sam", testSAM)
	s := loader.New(loader.Opts{})

	ds, err := s.LoadAlignments(ctx, p, loader.LoadOpts{
		Regions: []records.ReferenceRegion{{Name: "chr1", Start: 150, End: 300}},
	})
	require.NoError(t, err)
	reads, err := stream.Collect(ds.Reads)
	require.NoError(t, err)
	require.Len(t, reads, 1)
	assert.Equal(t, "r2", reads[0].Name)
}

func TestLoadAlignmentsMergesHeaders(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	writeTestFile(t, dir, "a.sam", testSAM)
	writeTestFile(t, dir, "b.sam", `@SQ	SN:chr3	LN:500
@RG	ID:rg2	SM:NA12877
rX	0	chr3	1	60	4M	*	0	0	ACGT	IIII
`)
	// Sibling files a directory sweep must skip.
	writeTestFile(t, dir, "a.sam.bai", "not an index")
	s := loader.New(loader.Opts{})

	ds, err := s.LoadAlignments(ctx, filepath.Join(dir, "*.sam"), loader.LoadOpts{})
	require.NoError(t, err)
	assert.Equal(t, 3, ds.Sequences.Len())
	assert.Len(t, ds.RecordGroups.Groups, 2)
	samples := ds.RecordGroups.Samples()
	require.Len(t, samples, 2)

	reads, err := stream.Collect(ds.Reads)
	require.NoError(t, err)
	assert.Len(t, reads, 4)
}

func TestLoadAlignmentsSkipsBadHeader(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	writeTestFile(t, dir, "good.sam", testSAM)
	writeTestFile(t, dir, "bad.sam", "@SQ\tthis is not a header\nnor a record line at all")
	s := loader.New(loader.Opts{})

	ds, err := s.LoadAlignments(ctx, filepath.Join(dir, "*.sam"), loader.LoadOpts{})
	require.NoError(t, err)
	assert.Equal(t, 2, ds.Sequences.Len())
	reads, err := stream.Collect(ds.Reads)
	require.NoError(t, err)
	assert.Len(t, reads, 3)
}

func TestLoadAlignmentsNotFound(t *testing.T) {
	s := loader.New(loader.Opts{})
	_, err := s.LoadAlignments(context.Background(), filepath.Join(t.TempDir(), "absent.sam"), loader.LoadOpts{})
	var nf *datapath.NotFoundError
	require.True(t, errors.As(err, &nf))
}

const fastqR1 = `@read1/1
ACGTA
+
IIIII
@read2/1
CCGTA
+
IIIII
@read3/1
GGGTA
+
IIIII
`

const fastqR2 = `@read1/2
TTGCA
+
IIIII
@read2/2
AAGCA
+
IIIII
`

func TestLoadFastqAlignments(t *testing.T) {
	ctx := context.Background()
	p := writeTestFile(t, t.TempDir(), "reads.fq", fastqR1)
	s := loader.New(loader.Opts{})

	ds, err := s.LoadAlignments(ctx, p, loader.LoadOpts{})
	require.NoError(t, err)
	reads, err := stream.Collect(ds.Reads)
	require.NoError(t, err)
	require.Len(t, reads, 3)
	assert.Equal(t, "read1", reads[0].Name)
	assert.True(t, reads[0].Flags.Has(records.Unmapped))
	assert.False(t, reads[0].Flags.Has(records.Paired))
	assert.Equal(t, int64(-1), reads[0].Start)
	assert.Equal(t, "ACGTA", reads[0].Sequence)
}

func TestLoadPairedFastq(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	p1 := writeTestFile(t, dir, "r1.fq", `@read1/1
ACGTA
+
IIIII
@read2/1
CCGTA
+
IIIII
`)
	p2 := writeTestFile(t, dir, "r2.fq", fastqR2)
	s := loader.New(loader.Opts{})

	ds, err := s.LoadPairedFastq(ctx, p1, p2)
	require.NoError(t, err)
	reads, err := stream.Collect(ds.Reads)
	require.NoError(t, err)
	require.Len(t, reads, 4)
	assert.Equal(t, "read1", reads[0].Name)
	assert.True(t, reads[0].Flags.Has(records.Paired|records.Read1))
	assert.Equal(t, "read1", reads[1].Name)
	assert.True(t, reads[1].Flags.Has(records.Paired|records.Read2))
	assert.Equal(t, "read2", reads[2].Name)
}

func TestLoadPairedFastqCountMismatch(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	p1 := writeTestFile(t, dir, "r1.fq", fastqR1) // 3 reads
	p2 := writeTestFile(t, dir, "r2.fq", fastqR2) // 2 reads

	strict := loader.New(loader.Opts{Stringency: metadata.Strict})
	ds, err := strict.LoadPairedFastq(ctx, p1, p2)
	require.NoError(t, err)
	_, err = stream.Collect(ds.Reads)
	var mismatch *loader.RecordCountMismatchError
	require.True(t, errors.As(err, &mismatch))
	assert.Equal(t, int64(3), mismatch.Count1)
	assert.Equal(t, int64(2), mismatch.Count2)

	lenient := loader.New(loader.Opts{Stringency: metadata.Lenient})
	ds, err = lenient.LoadPairedFastq(ctx, p1, p2)
	require.NoError(t, err)
	reads, err := stream.Collect(ds.Reads)
	require.NoError(t, err)
	assert.Len(t, reads, 5) // 2 full pairs plus the unpaired remainder
	assert.Equal(t, "read3", reads[4].Name)
}
