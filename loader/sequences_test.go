package loader_test

import (
	"context"
	"testing"

	"github.com/grailbio/gds/loader"
	"github.com/grailbio/gds/metadata"
	"github.com/grailbio/gds/stream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testFasta = `>chr1 assembled from long reads
ACGTACGTAC
GTACGTACGT
ACGTA
>chr2
TTTTGGGG
`

func TestLoadSequences(t *testing.T) {
	ctx := context.Background()
	p := writeTestFile(t, t.TempDir(), "ref.fasta", testFasta)
	s := loader.New(loader.Opts{SequenceFragmentLength: 10})

	ds, err := s.LoadSequences(ctx, p, loader.LoadOpts{})
	require.NoError(t, err)

	require.Equal(t, 2, ds.Sequences.Len())
	assert.Equal(t, metadata.Contig{Name: "chr1", Length: 25}, ds.Sequences.Contigs[0])
	assert.Equal(t, metadata.Contig{Name: "chr2", Length: 8}, ds.Sequences.Contigs[1])

	frags, err := stream.Collect(ds.Fragments)
	require.NoError(t, err)
	require.Len(t, frags, 4)

	// chr1 splits into three fragments of at most 10 bases.
	assert.Equal(t, "chr1", frags[0].Name)
	assert.Equal(t, "assembled from long reads", frags[0].Description)
	assert.Equal(t, 0, frags[0].Index)
	assert.Equal(t, int64(0), frags[0].Start)
	assert.Equal(t, "ACGTACGTAC", frags[0].Bases)
	assert.Equal(t, int64(25), frags[0].TotalLength)
	assert.Equal(t, 1, frags[1].Index)
	assert.Equal(t, int64(10), frags[1].Start)
	assert.Equal(t, 2, frags[2].Index)
	assert.Equal(t, "ACGTA", frags[2].Bases)

	// chr2 fits in one whole fragment.
	assert.Equal(t, "chr2", frags[3].Name)
	assert.Equal(t, 0, frags[3].Index)
	assert.Equal(t, "TTTTGGGG", frags[3].Bases)
}

func TestLoadSequencesMalformed(t *testing.T) {
	ctx := context.Background()
	p := writeTestFile(t, t.TempDir(), "ref.fasta", "ACGT\n>chr1\nACGT\n")
	s := loader.New(loader.Opts{Stringency: metadata.Lenient})

	// A FASTA parse failure poisons the whole file, so it is fatal
	// regardless of stringency.
	_, err := s.LoadSequences(ctx, p, loader.LoadOpts{})
	require.Error(t, err)
}
