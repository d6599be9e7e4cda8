package loader_test

import (
	"context"
	"errors"
	"testing"

	"github.com/grailbio/gds/loader"
	"github.com/grailbio/gds/metadata"
	"github.com/grailbio/gds/records"
	"github.com/grailbio/gds/stream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const querynameSAM = `@HD	VN:1.6	SO:queryname
@SQ	SN:chr1	LN:1000
a	99	chr1	101	60	4M	=	151	54	ACGT	IIII
a	147	chr1	151	60	4M	=	101	-54	GGGG	IIII
b	0	chr1	201	60	4M	*	0	0	TTTT	IIII
`

func TestLoadFragmentsQuerynameSorted(t *testing.T) {
	ctx := context.Background()
	p := writeTestFile(t, t.TempDir(), "reads.sam", querynameSAM)
	s := loader.New(loader.Opts{})

	ds, err := s.LoadFragments(ctx, p, loader.LoadOpts{})
	require.NoError(t, err)
	assert.True(t, ds.QuerynameGrouped)
	require.Equal(t, 1, ds.Sequences.Len())

	frags, err := stream.Collect(ds.Fragments)
	require.NoError(t, err)
	require.Len(t, frags, 2)
	assert.Equal(t, "a", frags[0].Name)
	require.Len(t, frags[0].Alignments, 2)
	assert.Equal(t, int64(100), frags[0].Alignments[0].Start)
	assert.Equal(t, int64(150), frags[0].Alignments[1].Start)
	assert.Equal(t, "b", frags[1].Name)
	assert.Len(t, frags[1].Alignments, 1)
}

const coordinateSAM = `@HD	VN:1.6	SO:coordinate
@SQ	SN:chr1	LN:1000
a	99	chr1	101	60	4M	=	151	54	ACGT	IIII
b	0	chr1	120	60	4M	*	0	0	TTTT	IIII
a	147	chr1	151	60	4M	=	101	-54	GGGG	IIII
`

func TestLoadFragmentsRegroups(t *testing.T) {
	ctx := context.Background()
	p := writeTestFile(t, t.TempDir(), "reads.sam", coordinateSAM)
	s := loader.New(loader.Opts{})

	ds, err := s.LoadFragments(ctx, p, loader.LoadOpts{})
	require.NoError(t, err)
	assert.False(t, ds.QuerynameGrouped)

	frags, err := stream.Collect(ds.Fragments)
	require.NoError(t, err)
	require.Len(t, frags, 2)
	// First appearance order, reads gathered across the gap.
	assert.Equal(t, "a", frags[0].Name)
	assert.Len(t, frags[0].Alignments, 2)
	assert.Equal(t, "b", frags[1].Name)
}

const interleavedFastq = `@tpl1/1
ACGTA
+
IIIII
@tpl1/2
TTTTT
+
IIIII
@tpl2/1
GGGGG
+
IIIII
@tpl2/2
CCCCC
+
IIIII
`

func TestLoadFragmentsInterleaved(t *testing.T) {
	ctx := context.Background()
	p := writeTestFile(t, t.TempDir(), "reads.ifq", interleavedFastq)
	s := loader.New(loader.Opts{})

	ds, err := s.LoadFragments(ctx, p, loader.LoadOpts{})
	require.NoError(t, err)
	assert.True(t, ds.QuerynameGrouped)

	frags, err := stream.Collect(ds.Fragments)
	require.NoError(t, err)
	require.Len(t, frags, 2)
	assert.Equal(t, "tpl1", frags[0].Name)
	require.Len(t, frags[0].Alignments, 2)
	assert.Equal(t, "ACGTA", frags[0].Alignments[0].Sequence)
	assert.True(t, frags[0].Alignments[0].Flags.Has(records.Read1))
	assert.True(t, frags[0].Alignments[1].Flags.Has(records.Read2))
	assert.Equal(t, "tpl2", frags[1].Name)
}

func TestLoadFragmentsInterleavedOddCount(t *testing.T) {
	ctx := context.Background()
	odd := interleavedFastq + "@tpl3/1\nAAAAA\n+\nIIIII\n"
	dir := t.TempDir()
	p := writeTestFile(t, dir, "reads.ifq", odd)

	strict := loader.New(loader.Opts{Stringency: metadata.Strict})
	ds, err := strict.LoadFragments(ctx, p, loader.LoadOpts{})
	require.NoError(t, err)
	_, err = stream.Collect(ds.Fragments)
	var malformed *loader.MalformedRecordError
	require.True(t, errors.As(err, &malformed))

	lenient := loader.New(loader.Opts{Stringency: metadata.Lenient})
	ds, err = lenient.LoadFragments(ctx, p, loader.LoadOpts{})
	require.NoError(t, err)
	frags, err := stream.Collect(ds.Fragments)
	require.NoError(t, err)
	assert.Len(t, frags, 2)
}

func TestLoadFragmentsFastqSingles(t *testing.T) {
	ctx := context.Background()
	p := writeTestFile(t, t.TempDir(), "reads.fastq", fastqR1)
	s := loader.New(loader.Opts{})

	ds, err := s.LoadFragments(ctx, p, loader.LoadOpts{})
	require.NoError(t, err)
	assert.True(t, ds.QuerynameGrouped)
	frags, err := stream.Collect(ds.Fragments)
	require.NoError(t, err)
	require.Len(t, frags, 3)
	for _, f := range frags {
		assert.Len(t, f.Alignments, 1)
	}
}
