package loader_test

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/grailbio/gds/loader"
	"github.com/grailbio/gds/metadata"
	"github.com/grailbio/gds/records"
	"github.com/grailbio/gds/stream"
	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testVCFHeader = `##fileformat=VCFv4.2
##contig=<ID=chr1,length=1000>
##contig=<ID=chr2,length=800>
##INFO=<ID=DP,Number=1,Type=Integer,Description="depth">
##INFO=<ID=AF,Number=A,Type=Float,Description="freq">
##INFO=<ID=CUSTOM,Number=1,Type=String,Description="custom annotation">
##FORMAT=<ID=GT,Number=1,Type=String,Description="genotype">
##FORMAT=<ID=GQ,Number=1,Type=Integer,Description="genotype quality">
##FILTER=<ID=q10,Description="low quality">
#CHROM	POS	ID	REF	ALT	QUAL	FILTER	INFO	FORMAT	NA12878	NA12877
`

const testVCF = testVCFHeader + `chr1	101	rs1	A	T	50	PASS	DP=20;AF=0.5;CUSTOM=hit	GT:GQ	0|1:99	1/1:30
chr1	201	.	G	C,T	30	q10	AF=0.3,0.2	GT:GQ	0/1:12	0/0:40
chr2	51	.	C	A	20	.	DP=7	GT	0/0	0/1
`

func TestLoadVariants(t *testing.T) {
	ctx := context.Background()
	p := writeTestFile(t, t.TempDir(), "calls.vcf", testVCF)
	s := loader.New(loader.Opts{})

	ds, err := s.LoadVariants(ctx, p, loader.LoadOpts{})
	require.NoError(t, err)

	require.Equal(t, 2, ds.Sequences.Len())
	assert.Equal(t, metadata.Contig{Name: "chr1", Length: 1000}, ds.Sequences.Contigs[0])
	require.Len(t, ds.Samples, 2)
	assert.Equal(t, "NA12878", ds.Samples[0].ID)

	// The cleaned set carries the unknown line, and exactly one
	// canonical declaration per registry identifier.
	var customs, gqs int
	for _, l := range ds.HeaderLines {
		switch {
		case l.ID == "CUSTOM":
			customs++
		case l.Kind == metadata.FormatLine && l.ID == "GQ":
			gqs++
			assert.Equal(t, "Integer", l.Type)
		}
	}
	assert.Equal(t, 1, customs)
	assert.Equal(t, 1, gqs)

	vars, err := stream.Collect(ds.Variants)
	require.NoError(t, err)
	require.Len(t, vars, 3)

	v1 := vars[0]
	assert.Equal(t, "chr1", v1.ReferenceName)
	assert.Equal(t, int64(100), v1.Start)
	assert.Equal(t, int64(101), v1.End)
	assert.Equal(t, []string{"rs1"}, v1.Names)
	assert.Equal(t, "A", v1.ReferenceAllele)
	assert.Equal(t, []string{"T"}, v1.AlternateAlleles)
	assert.True(t, v1.HasQuality)
	assert.Equal(t, 50.0, v1.Quality)
	assert.Equal(t, []string{"PASS"}, v1.Filters)
	assert.Equal(t, 20, v1.Info["DP"])
	assert.Equal(t, 0.5, v1.Info["AF"])
	assert.Equal(t, "hit", v1.Info["CUSTOM"])
	assert.Equal(t, []string{"GT", "GQ"}, v1.GenotypeFormat)
	require.Len(t, v1.Genotypes, 2)
	assert.Equal(t, "NA12878", v1.Genotypes[0].SampleID)
	assert.Equal(t, []int{0, 1}, v1.Genotypes[0].Alleles)
	assert.True(t, v1.Genotypes[0].Phased)
	assert.Equal(t, "99", v1.Genotypes[0].Fields["GQ"])
	assert.Equal(t, []int{1, 1}, v1.Genotypes[1].Alleles)
	assert.False(t, v1.Genotypes[1].Phased)

	v2 := vars[1]
	assert.Empty(t, v2.Names)
	assert.Equal(t, []string{"C", "T"}, v2.AlternateAlleles)
	assert.Equal(t, []string{"q10"}, v2.Filters)
	assert.Equal(t, []interface{}{0.3, 0.2}, v2.Info["AF"])

	assert.Empty(t, vars[2].Filters)
}

func TestLoadVariantsRegionFilter(t *testing.T) {
	ctx := context.Background()
	p := writeTestFile(t, t.TempDir(), "calls.vcf", testVCF)
	s := loader.New(loader.Opts{})

	ds, err := s.LoadVariants(ctx, p, loader.LoadOpts{
		Regions: []records.ReferenceRegion{{Name: "chr1", Start: 150, End: 300}},
	})
	require.NoError(t, err)
	vars, err := stream.Collect(ds.Variants)
	require.NoError(t, err)
	require.Len(t, vars, 1)
	assert.Equal(t, int64(200), vars[0].Start)
}

func TestLoadVariantsCompressed(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	_, err := gz.Write([]byte(testVCF))
	require.NoError(t, err)
	require.NoError(t, gz.Close())
	p := filepath.Join(dir, "calls.vcf.gz")
	require.NoError(t, os.WriteFile(p, buf.Bytes(), 0o600))
	s := loader.New(loader.Opts{})

	ds, err := s.LoadVariants(ctx, p, loader.LoadOpts{
		Regions: []records.ReferenceRegion{{Name: "chr2", Start: 0, End: 100}},
	})
	require.NoError(t, err)
	vars, err := stream.Collect(ds.Variants)
	require.NoError(t, err)
	require.Len(t, vars, 1)
	assert.Equal(t, "chr2", vars[0].ReferenceName)
}

func TestLoadVariantsTypeMismatch(t *testing.T) {
	ctx := context.Background()
	// GQ declared Float conflicts with the canonical Integer
	// declaration.
	vcf := `##fileformat=VCFv4.2
##contig=<ID=chr1,length=1000>
##FORMAT=<ID=GT,Number=1,Type=String,Description="genotype">
##FORMAT=<ID=GQ,Number=1,Type=Float,Description="genotype quality">
#CHROM	POS	ID	REF	ALT	QUAL	FILTER	INFO	FORMAT	NA12878
chr1	101	.	A	T	50	PASS	.	GT:GQ	0/1:12.5
`
	p := writeTestFile(t, t.TempDir(), "calls.vcf", vcf)

	strict := loader.New(loader.Opts{Stringency: metadata.Strict})
	_, err := strict.LoadVariants(ctx, p, loader.LoadOpts{})
	var mismatch *metadata.TypeMismatchError
	require.True(t, errors.As(err, &mismatch))
	assert.Equal(t, "GQ", mismatch.Input.ID)

	lenient := loader.New(loader.Opts{Stringency: metadata.Lenient})
	ds, err := lenient.LoadVariants(ctx, p, loader.LoadOpts{})
	require.NoError(t, err)
	var badGQ, canonicalGQ bool
	for _, l := range ds.HeaderLines {
		if l.Kind != metadata.FormatLine {
			continue
		}
		switch l.ID {
		case "BAD_GQ":
			badGQ = true
			assert.Equal(t, "Float", l.Type)
		case "GQ":
			canonicalGQ = true
			assert.Equal(t, "Integer", l.Type)
		}
	}
	assert.True(t, badGQ)
	assert.True(t, canonicalGQ)
}

func TestLoadVariantsMalformedRecord(t *testing.T) {
	ctx := context.Background()
	vcf := testVCF + "chr2\t60\n" // truncated line
	p := writeTestFile(t, t.TempDir(), "calls.vcf", vcf)

	strict := loader.New(loader.Opts{Stringency: metadata.Strict})
	ds, err := strict.LoadVariants(ctx, p, loader.LoadOpts{})
	require.NoError(t, err)
	_, err = stream.Collect(ds.Variants)
	require.Error(t, err)

	silent := loader.New(loader.Opts{Stringency: metadata.Silent})
	ds, err = silent.LoadVariants(ctx, p, loader.LoadOpts{})
	require.NoError(t, err)
	vars, err := stream.Collect(ds.Variants)
	require.NoError(t, err)
	assert.Len(t, vars, 3)
}

func TestLoadVariantsBadHeaderFatal(t *testing.T) {
	ctx := context.Background()
	p := writeTestFile(t, t.TempDir(), "calls.vcf", "not a vcf at all\n")
	s := loader.New(loader.Opts{})
	_, err := s.LoadVariants(ctx, p, loader.LoadOpts{})
	var hpe *loader.HeaderParseError
	require.True(t, errors.As(err, &hpe))
}
