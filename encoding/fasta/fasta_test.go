package fasta

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fa = `>chr1 test chromosome
ACGTAC
GAGGAC
GCG
>chr2
ACGT
`

func TestParse(t *testing.T) {
	seqs, err := Parse(strings.NewReader(fa))
	require.NoError(t, err)
	require.Len(t, seqs, 2)
	assert.Equal(t, "chr1", seqs[0].Name)
	assert.Equal(t, "test chromosome", seqs[0].Description)
	assert.Equal(t, "ACGTACGAGGACGCG", seqs[0].Bases)
	assert.Equal(t, "chr2", seqs[1].Name)
	assert.Equal(t, "ACGT", seqs[1].Bases)
}

func TestParseMalformed(t *testing.T) {
	_, err := Parse(strings.NewReader("ACGT\n"))
	assert.Error(t, err)
	_, err = Parse(strings.NewReader("> \nACGT\n"))
	assert.Error(t, err)
}

func TestFragments(t *testing.T) {
	seqs, err := Parse(strings.NewReader(fa))
	require.NoError(t, err)

	whole := Fragments(seqs, 0)
	require.Len(t, whole, 2)
	assert.Equal(t, int64(15), whole[0].TotalLength)
	assert.Equal(t, 0, whole[0].Index)

	split := Fragments(seqs, 6)
	require.Len(t, split, 4) // 15 -> 6+6+3, 4 -> 4
	assert.Equal(t, "ACGTAC", split[0].Bases)
	assert.Equal(t, "GAGGAC", split[1].Bases)
	assert.Equal(t, 1, split[1].Index)
	assert.Equal(t, int64(6), split[1].Start)
	assert.Equal(t, "GCG", split[2].Bases)
	assert.Equal(t, int64(15), split[2].TotalLength)
	assert.Equal(t, "ACGT", split[3].Bases)
}

func TestDictionary(t *testing.T) {
	seqs, err := Parse(strings.NewReader(fa))
	require.NoError(t, err)
	d := Dictionary(seqs)
	require.Equal(t, 2, d.Len())
	c, ok := d.ByName("chr1")
	require.True(t, ok)
	assert.Equal(t, int64(15), c.Length)
}
