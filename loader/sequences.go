package loader

import (
	"context"

	"github.com/grailbio/base/file"
	"github.com/grailbio/gds/colstore"
	"github.com/grailbio/gds/dataset"
	"github.com/grailbio/gds/encoding/fasta"
	"github.com/grailbio/gds/encoding/twobit"
	"github.com/grailbio/gds/fileformat"
	"github.com/grailbio/gds/metadata"
	"github.com/grailbio/gds/records"
	"github.com/grailbio/gds/stream"
	"github.com/pkg/errors"
)

// LoadSequences loads reference sequence from a FASTA, 2bit, or
// columnar path pattern. Contigs longer than the configured fragment
// length are split into indexed fragments. The parse is eager: the
// dictionary carries real contig lengths, which are only known after
// reading the bases.
func (s *Session) LoadSequences(ctx context.Context, pattern string, opts LoadOpts) (*dataset.Sequences, error) {
	format := fileformat.Classify(pattern)
	switch format {
	case fileformat.Unknown:
		return s.loadColumnarSequences(ctx, pattern, opts)
	case fileformat.FASTA, fileformat.TwoBit:
	default:
		return nil, &UnsupportedFormatError{Path: pattern, Format: format}
	}
	paths, err := elaborate(ctx, pattern, format)
	if err != nil {
		return nil, err
	}
	var frags []records.SequenceFragment
	var dict metadata.SequenceDictionary
	for _, p := range paths {
		seqs, err := readSequences(ctx, p, format)
		if err != nil {
			return nil, err
		}
		frags = append(frags, fasta.Fragments(seqs, s.opts.SequenceFragmentLength)...)
		dict = dict.Union(fasta.Dictionary(seqs))
	}
	return &dataset.Sequences{
		Fragments: stream.FromSlice(frags),
		Sequences: dict,
	}, nil
}

func readSequences(ctx context.Context, p string, format fileformat.Format) (seqs []fasta.Sequence, err error) {
	var f file.File
	if f, err = file.Open(ctx, p); err != nil {
		return nil, errors.Wrapf(err, "open %s", p)
	}
	defer file.CloseAndReport(ctx, f, &err)
	if format == fileformat.TwoBit {
		native, terr := twobit.Read(f.Reader(ctx))
		if terr != nil {
			return nil, &HeaderParseError{Path: p, Err: terr}
		}
		for _, seq := range native {
			seqs = append(seqs, fasta.Sequence{Name: seq.Name, Bases: seq.Bases})
		}
		return seqs, nil
	}
	rc, rerr := fileformat.NewDecompressedReader(f.Reader(ctx), p)
	if rerr != nil {
		return nil, &HeaderParseError{Path: p, Err: rerr}
	}
	defer rc.Close()
	if seqs, err = fasta.Parse(rc); err != nil {
		return nil, &MalformedRecordError{Path: p, Err: err}
	}
	return seqs, nil
}

func (s *Session) loadColumnarSequences(ctx context.Context, pattern string, opts LoadOpts) (*dataset.Sequences, error) {
	recs, meta, err := loadColumnar(ctx, pattern, colstore.SchemaSequences, colstore.ScanOpts[records.SequenceFragment]{
		DropFields: opts.DropFields,
	})
	if err != nil {
		return nil, err
	}
	return &dataset.Sequences{Fragments: recs, Sequences: meta.Sequences}, nil
}
