package loader

import (
	"context"
	"io"

	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	"github.com/grailbio/gds/colstore"
	"github.com/grailbio/gds/dataset"
	"github.com/grailbio/gds/encoding/fastq"
	"github.com/grailbio/gds/fileformat"
	"github.com/grailbio/gds/metadata"
	"github.com/grailbio/gds/records"
	"github.com/grailbio/gds/stream"
	"github.com/grailbio/hts/sam"
	"github.com/pkg/errors"
)

// LoadFragments loads reads grouped by sequencing template. For
// alignment inputs whose headers all declare queryname sort order,
// records of one template are contiguous within each file, so grouping
// is a cheap linear pass per file; otherwise every record is read and
// regrouped by template name. The QuerynameGrouped flag on the result
// reports which path was taken.
func (s *Session) LoadFragments(ctx context.Context, pattern string, opts LoadOpts) (*dataset.Fragments, error) {
	format := fileformat.Classify(pattern)
	switch format {
	case fileformat.Unknown:
		return s.loadColumnarFragments(ctx, pattern, opts)
	case fileformat.InterleavedFASTQ:
		return s.loadInterleavedFragments(ctx, pattern)
	case fileformat.FASTQ:
		return s.loadFastqFragments(ctx, pattern)
	case fileformat.BAM, fileformat.SAM:
	default:
		return nil, &UnsupportedFormatError{Path: pattern, Format: format}
	}
	paths, err := elaborate(ctx, pattern, format)
	if err != nil {
		return nil, err
	}
	var dict metadata.SequenceDictionary
	var groups metadata.RecordGroupDictionary
	querynameSorted := len(paths) > 0
	var usable []string
	for _, p := range paths {
		d, g, order, err := readAlignmentHeader(ctx, p)
		if err != nil {
			if hpe, ok := err.(*HeaderParseError); ok {
				log.Error.Printf("skipping %s: %v", p, hpe)
				continue
			}
			return nil, err
		}
		dict = dict.Union(d)
		groups = groups.Merge(g)
		if order != sam.QueryName {
			querynameSorted = false
		}
		usable = append(usable, p)
	}
	if querynameSorted && len(usable) > 0 {
		var streams []stream.Stream[records.Fragment]
		for _, p := range usable {
			streams = append(streams, &groupScanner{src: s.alignmentStream(ctx, p, format, opts.Regions)})
		}
		return &dataset.Fragments{
			Fragments:        stream.Union(streams...),
			Sequences:        dict,
			RecordGroups:     groups,
			QuerynameGrouped: true,
		}, nil
	}
	var all []records.Alignment
	for _, p := range usable {
		recs, err := stream.Collect(s.alignmentStream(ctx, p, format, opts.Regions))
		if err != nil {
			return nil, err
		}
		all = append(all, recs...)
	}
	return &dataset.Fragments{
		Fragments:    stream.FromSlice(regroup(all)),
		Sequences:    dict,
		RecordGroups: groups,
	}, nil
}

func (s *Session) loadColumnarFragments(ctx context.Context, pattern string, opts LoadOpts) (*dataset.Fragments, error) {
	recs, meta, err := loadColumnar(ctx, pattern, colstore.SchemaFragments, colstore.ScanOpts[records.Fragment]{
		DropFields: opts.DropFields,
	})
	if err != nil {
		return nil, err
	}
	return &dataset.Fragments{
		Fragments:    recs,
		Sequences:    meta.Sequences,
		RecordGroups: meta.RecordGroups,
	}, nil
}

// regroup collects the reads of each template, preserving the order of
// first appearance.
func regroup(alignments []records.Alignment) []records.Fragment {
	index := make(map[string]int)
	var frags []records.Fragment
	for _, a := range alignments {
		if i, ok := index[a.Name]; ok {
			frags[i].Alignments = append(frags[i].Alignments, a)
			continue
		}
		index[a.Name] = len(frags)
		frags = append(frags, records.Fragment{Name: a.Name, Alignments: []records.Alignment{a}})
	}
	return frags
}

// groupScanner folds a queryname-contiguous alignment stream into
// fragments with a single pass.
type groupScanner struct {
	src     stream.Stream[records.Alignment]
	pending *records.Alignment
	cur     records.Fragment
	err     error
	done    bool
}

func (s *groupScanner) Scan() bool {
	if s.err != nil || s.done {
		return false
	}
	var frag records.Fragment
	if s.pending != nil {
		frag = records.Fragment{Name: s.pending.Name, Alignments: []records.Alignment{*s.pending}}
		s.pending = nil
	}
	for s.src.Scan() {
		a := s.src.Record()
		if len(frag.Alignments) == 0 {
			frag = records.Fragment{Name: a.Name, Alignments: []records.Alignment{a}}
			continue
		}
		if a.Name == frag.Name {
			frag.Alignments = append(frag.Alignments, a)
			continue
		}
		s.pending = &a
		s.cur = frag
		return true
	}
	s.done = true
	s.err = s.src.Err()
	if s.err == nil && len(frag.Alignments) > 0 {
		s.cur = frag
		return true
	}
	return false
}

func (s *groupScanner) Record() records.Fragment { return s.cur }
func (s *groupScanner) Err() error               { return s.err }
func (s *groupScanner) Close() error {
	if err := s.src.Close(); err != nil && s.err == nil {
		s.err = err
	}
	return s.err
}

// loadInterleavedFragments pairs consecutive reads of interleaved
// FASTQ files into two-read fragments. A trailing unpaired read is a
// malformed record: fatal under STRICT, dropped otherwise.
func (s *Session) loadInterleavedFragments(ctx context.Context, pattern string) (*dataset.Fragments, error) {
	paths, err := elaborate(ctx, pattern, fileformat.InterleavedFASTQ)
	if err != nil {
		return nil, err
	}
	var streams []stream.Stream[records.Fragment]
	for _, p := range paths {
		streams = append(streams, s.interleavedStream(ctx, p))
	}
	return &dataset.Fragments{
		Fragments:        stream.Union(streams...),
		QuerynameGrouped: true,
	}, nil
}

func (s *Session) interleavedStream(ctx context.Context, p string) stream.Stream[records.Fragment] {
	return stream.Deferred(func() (stream.Stream[records.Fragment], error) {
		f, rc, sc, err := openFastq(ctx, p)
		if err != nil {
			return nil, err
		}
		return &interleavedScanner{s: s, ctx: ctx, path: p, f: f, closer: rc, sc: sc}, nil
	})
}

type interleavedScanner struct {
	s      *Session
	ctx    context.Context
	path   string
	f      file.File
	closer io.Closer
	sc     *fastq.Scanner
	cur    records.Fragment
	err    error
	done   bool
}

func (s *interleavedScanner) Scan() bool {
	if s.err != nil || s.done {
		return false
	}
	var r1, r2 fastq.Read
	if !s.sc.Scan(&r1) {
		s.done = true
		if err := s.sc.Err(); err != nil {
			s.err = s.s.handleMalformed(&MalformedRecordError{Path: s.path, Err: err})
		}
		return false
	}
	if !s.sc.Scan(&r2) {
		s.done = true
		err := s.sc.Err()
		if err == nil {
			err = errors.Errorf("interleaved file ends with unpaired read %s", r1.Name())
		}
		s.err = s.s.handleMalformed(&MalformedRecordError{Path: s.path, Err: err})
		return false
	}
	s.cur = records.Fragment{
		Name: r1.Name(),
		Alignments: []records.Alignment{
			r1.ToAlignment(read1Flags),
			r2.ToAlignment(read2Flags),
		},
	}
	return true
}

func (s *interleavedScanner) Record() records.Fragment { return s.cur }
func (s *interleavedScanner) Err() error               { return s.err }
func (s *interleavedScanner) Close() error {
	if s.closer != nil {
		_ = s.closer.Close()
	}
	if s.f != nil {
		if err := s.f.Close(s.ctx); err != nil && s.err == nil {
			s.err = err
		}
		s.f = nil
	}
	return s.err
}

// loadFastqFragments loads plain FASTQ with one single-read fragment
// per read.
func (s *Session) loadFastqFragments(ctx context.Context, pattern string) (*dataset.Fragments, error) {
	ds, err := s.loadFastqAlignments(ctx, pattern, fileformat.FASTQ)
	if err != nil {
		return nil, err
	}
	frags := stream.Map(ds.Reads, func(a records.Alignment) (records.Fragment, error) {
		return records.Fragment{Name: a.Name, Alignments: []records.Alignment{a}}, nil
	})
	return &dataset.Fragments{Fragments: frags, QuerynameGrouped: true}, nil
}
