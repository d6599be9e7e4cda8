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
	"github.com/grailbio/hts/bam"
	"github.com/grailbio/hts/bgzf"
	"github.com/grailbio/hts/sam"
	"github.com/pkg/errors"
)

// LoadAlignments loads a dataset of aligned or unaligned reads from a
// BAM, SAM, FASTQ, or columnar path pattern. Per-file headers merge
// into one dictionary and record-group set; a header that fails to
// parse skips its file with a log line. Regions restrict the stream
// through the BAM index when the companion .bai exists.
func (s *Session) LoadAlignments(ctx context.Context, pattern string, opts LoadOpts) (*dataset.Alignments, error) {
	format := fileformat.Classify(pattern)
	switch format {
	case fileformat.Unknown:
		return s.loadColumnarAlignments(ctx, pattern, opts)
	case fileformat.FASTQ, fileformat.InterleavedFASTQ:
		return s.loadFastqAlignments(ctx, pattern, format)
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
	var streams []stream.Stream[records.Alignment]
	for _, p := range paths {
		d, g, _, err := readAlignmentHeader(ctx, p)
		if err != nil {
			if hpe, ok := err.(*HeaderParseError); ok {
				log.Error.Printf("skipping %s: %v", p, hpe)
				continue
			}
			return nil, err
		}
		dict = dict.Union(d)
		groups = groups.Merge(g)
		streams = append(streams, s.alignmentStream(ctx, p, format, opts.Regions))
	}
	return &dataset.Alignments{
		Reads:        stream.Union(streams...),
		Sequences:    dict,
		RecordGroups: groups,
	}, nil
}

func (s *Session) loadColumnarAlignments(ctx context.Context, pattern string, opts LoadOpts) (*dataset.Alignments, error) {
	recs, meta, err := loadColumnar(ctx, pattern, colstore.SchemaAlignments, colstore.ScanOpts[records.Alignment]{
		Predicate:  alignmentPredicate(opts.Regions),
		DropFields: opts.DropFields,
	})
	if err != nil {
		return nil, err
	}
	return &dataset.Alignments{
		Reads:        recs,
		Sequences:    meta.Sequences,
		RecordGroups: meta.RecordGroups,
	}, nil
}

func alignmentPredicate(regions []records.ReferenceRegion) func(*records.Alignment) bool {
	if len(regions) == 0 {
		return nil
	}
	return func(a *records.Alignment) bool {
		return overlapsAny(regions, a.ReferenceName, a.Start, a.End)
	}
}

func overlapsAny(regions []records.ReferenceRegion, name string, start, end int64) bool {
	for _, r := range regions {
		if r.Overlaps(name, start, end) {
			return true
		}
	}
	return false
}

// loadColumnar resolves pattern to columnar dataset directories and
// returns the merged sidecar metadata with a lazy scan of the given
// schema.
func loadColumnar[T any](ctx context.Context, pattern, schema string, opts colstore.ScanOpts[T]) (stream.Stream[T], colstore.Metadata, error) {
	dirs, err := columnarDirs(ctx, pattern)
	if err != nil {
		return nil, colstore.Metadata{}, err
	}
	meta, err := columnarMetadata(ctx, dirs)
	if err != nil {
		return nil, colstore.Metadata{}, err
	}
	return colstore.Scan(ctx, dirs, schema, opts), meta, nil
}

// readAlignmentHeader reads the embedded header of one BAM or SAM file
// without touching the record body.
func readAlignmentHeader(ctx context.Context, p string) (dict metadata.SequenceDictionary, groups metadata.RecordGroupDictionary, order sam.SortOrder, err error) {
	order = sam.UnknownOrder
	var f file.File
	if f, err = file.Open(ctx, p); err != nil {
		err = errors.Wrapf(err, "open %s", p)
		return
	}
	defer file.CloseAndReport(ctx, f, &err)

	var h *sam.Header
	switch fileformat.Classify(p) {
	case fileformat.BAM:
		var br *bam.Reader
		if br, err = bam.NewReader(f.Reader(ctx), 1); err != nil {
			err = &HeaderParseError{Path: p, Err: err}
			return
		}
		h = br.Header()
		defer br.Close()
	case fileformat.SAM:
		var rc io.ReadCloser
		if rc, err = fileformat.NewDecompressedReader(f.Reader(ctx), p); err != nil {
			err = &HeaderParseError{Path: p, Err: err}
			return
		}
		defer rc.Close()
		var sr *sam.Reader
		if sr, err = sam.NewReader(rc); err != nil {
			err = &HeaderParseError{Path: p, Err: err}
			return
		}
		h = sr.Header()
	default:
		err = &UnsupportedFormatError{Path: p, Format: fileformat.Classify(p)}
		return
	}
	var text []byte
	if text, err = h.MarshalText(); err != nil {
		err = &HeaderParseError{Path: p, Err: err}
		return
	}
	dict, groups = parseHeaderText(string(text))
	order = h.SortOrder
	return
}

// QuerynameSorted reports whether every listed alignment file declares
// queryname sort order in its header. Callers use it the same way
// LoadFragments does: a true result means records of one template are
// contiguous within each file.
func QuerynameSorted(ctx context.Context, paths []string) (bool, error) {
	for _, p := range paths {
		_, _, order, err := readAlignmentHeader(ctx, p)
		if err != nil {
			return false, err
		}
		if order != sam.QueryName {
			return false, nil
		}
	}
	return len(paths) > 0, nil
}

var rgTag = sam.Tag{'R', 'G'}

// convertSAMRecord lifts one native record into the unified alignment
// representation.
func convertSAMRecord(rec *sam.Record) records.Alignment {
	a := records.Alignment{
		Name:           rec.Name,
		Flags:          records.Flags(rec.Flags),
		Start:          -1,
		End:            -1,
		MateStart:      -1,
		MappingQuality: rec.MapQ,
		Cigar:          rec.Cigar.String(),
		TemplateLength: rec.TempLen,
		Sequence:       string(rec.Seq.Expand()),
		Quality:        phredString(rec.Qual),
	}
	if rec.Ref != nil && rec.Pos >= 0 {
		a.ReferenceName = rec.Ref.Name()
		a.Start = int64(rec.Pos)
		a.End = int64(rec.End())
	}
	if rec.MateRef != nil && rec.MatePos >= 0 {
		a.MateReferenceName = rec.MateRef.Name()
		a.MateStart = int64(rec.MatePos)
	}
	for _, aux := range rec.AuxFields {
		if aux.Tag() == rgTag {
			if rg, ok := aux.Value().(string); ok {
				a.RecordGroup = rg
				continue
			}
		}
		a.Attributes = append(a.Attributes, aux.String())
	}
	return a
}

func phredString(qual []byte) string {
	if len(qual) == 0 {
		return ""
	}
	buf := make([]byte, len(qual))
	for i, q := range qual {
		if q == 0xff { // quality absent
			return ""
		}
		buf[i] = q + 33
	}
	return string(buf)
}

// alignmentStream returns the lazy per-file record stream. Opening,
// index probing, and seeking happen on the first Scan.
func (s *Session) alignmentStream(ctx context.Context, p string, format fileformat.Format, regions []records.ReferenceRegion) stream.Stream[records.Alignment] {
	return stream.Deferred(func() (stream.Stream[records.Alignment], error) {
		f, err := file.Open(ctx, p)
		if err != nil {
			return nil, errors.Wrapf(err, "open %s", p)
		}
		switch format {
		case fileformat.BAM:
			br, err := bam.NewReader(f.Reader(ctx), 1)
			if err != nil {
				_ = f.Close(ctx)
				return nil, &HeaderParseError{Path: p, Err: err}
			}
			if len(regions) > 0 {
				chunks, ok, err := s.bamChunks(ctx, p, br, regions)
				if err != nil {
					_ = f.Close(ctx)
					return nil, err
				}
				if ok {
					iter, err := bam.NewIterator(br, chunks)
					if err != nil {
						_ = f.Close(ctx)
						return nil, errors.Wrapf(err, "%s: indexed read", p)
					}
					next := func() (*sam.Record, error) {
						if !iter.Next() {
							if err := iter.Error(); err != nil {
								return nil, err
							}
							return nil, io.EOF
						}
						return iter.Record(), nil
					}
					return &alignScanner{ctx: ctx, f: f, next: next, regions: regions}, nil
				}
			}
			return &alignScanner{ctx: ctx, f: f, next: br.Read, regions: regions}, nil
		case fileformat.SAM:
			rc, err := fileformat.NewDecompressedReader(f.Reader(ctx), p)
			if err != nil {
				_ = f.Close(ctx)
				return nil, &HeaderParseError{Path: p, Err: err}
			}
			sr, err := sam.NewReader(rc)
			if err != nil {
				_ = rc.Close()
				_ = f.Close(ctx)
				return nil, &HeaderParseError{Path: p, Err: err}
			}
			return &alignScanner{ctx: ctx, f: f, closer: rc, next: sr.Read, regions: regions}, nil
		}
		_ = f.Close(ctx)
		return nil, &UnsupportedFormatError{Path: p, Format: format}
	})
}

// bamChunks resolves regions to physical chunks through the companion
// index. ok is false when no index file exists, in which case the
// caller falls back to a filtered sequential scan.
func (s *Session) bamChunks(ctx context.Context, p string, br *bam.Reader, regions []records.ReferenceRegion) ([]bgzf.Chunk, bool, error) {
	idxPath := s.opts.AlignmentIndex(p)
	if _, err := file.Stat(ctx, idxPath); err != nil {
		return nil, false, nil
	}
	idxFile, err := file.Open(ctx, idxPath)
	if err != nil {
		return nil, false, errors.Wrapf(err, "open %s", idxPath)
	}
	defer file.CloseAndReport(ctx, idxFile, &err)
	idx, err := bam.ReadIndex(idxFile.Reader(ctx))
	if err != nil {
		return nil, false, &HeaderParseError{Path: idxPath, Err: err}
	}
	refs := make(map[string]*sam.Reference)
	for _, ref := range br.Header().Refs() {
		refs[ref.Name()] = ref
	}
	var chunks []bgzf.Chunk
	for _, r := range regions {
		ref := refs[r.Name]
		if ref == nil {
			continue
		}
		start, end := int(r.Start), int(r.End)
		if end <= 0 || end > ref.Len() {
			end = ref.Len()
		}
		c, err := idx.Chunks(ref, start, end)
		if err != nil {
			continue // no index data for this interval
		}
		chunks = append(chunks, c...)
	}
	return chunks, true, nil
}

// alignScanner adapts a native record reader into an alignment stream,
// applying the region overlap filter above whatever restriction the
// index pushdown already made.
type alignScanner struct {
	ctx     context.Context
	f       file.File
	closer  io.Closer
	next    func() (*sam.Record, error)
	regions []records.ReferenceRegion
	cur     records.Alignment
	err     error
}

func (s *alignScanner) Scan() bool {
	if s.err != nil {
		return false
	}
	for {
		rec, err := s.next()
		if err == io.EOF || (err == nil && rec == nil) {
			return false
		}
		if err != nil {
			s.err = err
			return false
		}
		a := convertSAMRecord(rec)
		if len(s.regions) > 0 && !overlapsAny(s.regions, a.ReferenceName, a.Start, a.End) {
			continue
		}
		s.cur = a
		return true
	}
}

func (s *alignScanner) Record() records.Alignment { return s.cur }
func (s *alignScanner) Err() error                { return s.err }

func (s *alignScanner) Close() error {
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

// loadFastqAlignments loads FASTQ reads as unmapped alignments. Plain
// FASTQ reads are unpaired; interleaved FASTQ alternates Read1/Read2
// with pairing flags set.
func (s *Session) loadFastqAlignments(ctx context.Context, pattern string, format fileformat.Format) (*dataset.Alignments, error) {
	paths, err := elaborate(ctx, pattern, format)
	if err != nil {
		return nil, err
	}
	var streams []stream.Stream[records.Alignment]
	for _, p := range paths {
		interleaved := format == fileformat.InterleavedFASTQ
		streams = append(streams, s.fastqStream(ctx, p, interleaved))
	}
	return &dataset.Alignments{Reads: stream.Union(streams...)}, nil
}

func (s *Session) fastqStream(ctx context.Context, p string, interleaved bool) stream.Stream[records.Alignment] {
	return stream.Deferred(func() (stream.Stream[records.Alignment], error) {
		f, err := file.Open(ctx, p)
		if err != nil {
			return nil, errors.Wrapf(err, "open %s", p)
		}
		rc, err := fileformat.NewDecompressedReader(f.Reader(ctx), p)
		if err != nil {
			_ = f.Close(ctx)
			return nil, &HeaderParseError{Path: p, Err: err}
		}
		fs := &fastqScanner{
			s: s, ctx: ctx, path: p, f: f, closer: rc,
			sc: fastq.NewScanner(rc), interleaved: interleaved,
		}
		return fs, nil
	})
}

type fastqScanner struct {
	s           *Session
	ctx         context.Context
	path        string
	f           file.File
	closer      io.Closer
	sc          *fastq.Scanner
	interleaved bool
	cur         records.Alignment
	err         error
	done        bool
}

func (s *fastqScanner) Scan() bool {
	if s.err != nil || s.done {
		return false
	}
	var read fastq.Read
	if !s.sc.Scan(&read) {
		s.done = true
		if err := s.sc.Err(); err != nil {
			s.err = s.s.handleMalformed(&MalformedRecordError{Path: s.path, Err: err})
		}
		return false
	}
	flags := records.Unmapped
	if s.interleaved {
		flags |= records.Paired | records.MateUnmapped
		if s.sc.Count()%2 == 1 {
			flags |= records.Read1
		} else {
			flags |= records.Read2
		}
	}
	s.cur = read.ToAlignment(flags)
	return true
}

func (s *fastqScanner) Record() records.Alignment { return s.cur }
func (s *fastqScanner) Err() error                { return s.err }

func (s *fastqScanner) Close() error {
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

// LoadPairedFastq loads matching R1/R2 FASTQ files as one stream of
// unmapped, paired alignments, interleaved read-by-read. The two files
// must hold the same number of reads: a mismatch is fatal under STRICT
// and emits the longer file's remainder (with a log line under
// LENIENT) otherwise.
func (s *Session) LoadPairedFastq(ctx context.Context, path1, path2 string) (*dataset.Alignments, error) {
	p1, err := singleFile(ctx, path1, fileformat.FASTQ)
	if err != nil {
		return nil, err
	}
	p2, err := singleFile(ctx, path2, fileformat.FASTQ)
	if err != nil {
		return nil, err
	}
	reads := stream.Deferred(func() (stream.Stream[records.Alignment], error) {
		ps := &pairedFastqScanner{s: s, ctx: ctx, path1: p1, path2: p2}
		if err := ps.open(); err != nil {
			return nil, err
		}
		return ps, nil
	})
	return &dataset.Alignments{Reads: reads}, nil
}

func singleFile(ctx context.Context, pattern string, format fileformat.Format) (string, error) {
	paths, err := elaborate(ctx, pattern, format)
	if err != nil {
		return "", err
	}
	if len(paths) != 1 {
		return "", errors.Errorf("%s: expected exactly one file, matched %d", pattern, len(paths))
	}
	return paths[0], nil
}

type pairedFastqScanner struct {
	s            *Session
	ctx          context.Context
	path1, path2 string
	f1, f2       file.File
	rc1, rc2     io.ReadCloser
	sc1, sc2     *fastq.Scanner

	pending *records.Alignment
	// tail is the scanner still draining after the other was
	// exhausted: 0 none, 1 or 2.
	tail int
	cur  records.Alignment
	err  error
	done bool
}

func (s *pairedFastqScanner) open() error {
	var err error
	if s.f1, s.rc1, s.sc1, err = openFastq(s.ctx, s.path1); err != nil {
		return err
	}
	if s.f2, s.rc2, s.sc2, err = openFastq(s.ctx, s.path2); err != nil {
		s.closeFiles()
		return err
	}
	return nil
}

func openFastq(ctx context.Context, p string) (file.File, io.ReadCloser, *fastq.Scanner, error) {
	f, err := file.Open(ctx, p)
	if err != nil {
		return nil, nil, nil, errors.Wrapf(err, "open %s", p)
	}
	rc, err := fileformat.NewDecompressedReader(f.Reader(ctx), p)
	if err != nil {
		_ = f.Close(ctx)
		return nil, nil, nil, &HeaderParseError{Path: p, Err: err}
	}
	return f, rc, fastq.NewScanner(rc), nil
}

const (
	read1Flags = records.Paired | records.Read1 | records.Unmapped | records.MateUnmapped
	read2Flags = records.Paired | records.Read2 | records.Unmapped | records.MateUnmapped
)

func (s *pairedFastqScanner) Scan() bool {
	if s.err != nil || s.done {
		return false
	}
	if s.pending != nil {
		s.cur, s.pending = *s.pending, nil
		return true
	}
	if s.tail != 0 {
		return s.scanTail()
	}
	var r1, r2 fastq.Read
	ok1 := s.sc1.Scan(&r1)
	ok2 := s.sc2.Scan(&r2)
	if ok1 && ok2 {
		s.cur = r1.ToAlignment(read1Flags)
		a2 := r2.ToAlignment(read2Flags)
		s.pending = &a2
		return true
	}
	if err := s.scanErrs(); err != nil {
		s.err = err
		return false
	}
	if ok1 == ok2 { // both exhausted
		s.done = true
		return false
	}
	// Cardinality mismatch. Count the longer file out before deciding.
	mismatch := &RecordCountMismatchError{Path1: s.path1, Path2: s.path2}
	if ok1 {
		s.tail = 1
		s.cur = r1.ToAlignment(read1Flags)
	} else {
		s.tail = 2
		s.cur = r2.ToAlignment(read2Flags)
	}
	if s.s.opts.Stringency == metadata.Strict {
		s.drainTail()
		mismatch.Count1, mismatch.Count2 = s.sc1.Count(), s.sc2.Count()
		s.err = mismatch
		return false
	}
	if s.s.opts.Stringency == metadata.Lenient {
		log.Error.Printf("paired fastq: %s and %s have different read counts; emitting remainder unpaired", s.path1, s.path2)
	}
	return true
}

func (s *pairedFastqScanner) scanTail() bool {
	sc, flags := s.sc1, read1Flags
	if s.tail == 2 {
		sc, flags = s.sc2, read2Flags
	}
	var read fastq.Read
	if !sc.Scan(&read) {
		s.done = true
		if err := s.scanErrs(); err != nil {
			s.err = err
		}
		return false
	}
	s.cur = read.ToAlignment(flags)
	return true
}

func (s *pairedFastqScanner) drainTail() {
	sc := s.sc1
	if s.tail == 2 {
		sc = s.sc2
	}
	var read fastq.Read
	for sc.Scan(&read) {
	}
}

func (s *pairedFastqScanner) scanErrs() error {
	if err := s.sc1.Err(); err != nil {
		return s.s.handleMalformed(&MalformedRecordError{Path: s.path1, Err: err})
	}
	if err := s.sc2.Err(); err != nil {
		return s.s.handleMalformed(&MalformedRecordError{Path: s.path2, Err: err})
	}
	return nil
}

func (s *pairedFastqScanner) Record() records.Alignment { return s.cur }
func (s *pairedFastqScanner) Err() error                { return s.err }

func (s *pairedFastqScanner) Close() error {
	s.closeFiles()
	return s.err
}

func (s *pairedFastqScanner) closeFiles() {
	if s.rc1 != nil {
		_ = s.rc1.Close()
	}
	if s.rc2 != nil {
		_ = s.rc2.Close()
	}
	if s.f1 != nil {
		_ = s.f1.Close(s.ctx)
		s.f1 = nil
	}
	if s.f2 != nil {
		_ = s.f2.Close(s.ctx)
		s.f2 = nil
	}
}
