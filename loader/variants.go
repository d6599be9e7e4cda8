package loader

import (
	"bufio"
	"context"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/brentp/vcfgo"
	"github.com/grailbio/base/file"
	"github.com/grailbio/gds/colstore"
	"github.com/grailbio/gds/dataset"
	"github.com/grailbio/gds/fileformat"
	"github.com/grailbio/gds/metadata"
	"github.com/grailbio/gds/records"
	"github.com/grailbio/gds/stream"
	"github.com/grailbio/hts/bgzf"
	"github.com/grailbio/hts/tabix"
	"github.com/klauspost/compress/gzip"
	"github.com/pkg/errors"
)

// LoadVariants loads a dataset of variant calls from a VCF or columnar
// path pattern. Unlike alignment loads, a variant header that fails to
// parse is fatal: the cleaned header-line set is threaded into every
// record conversion, so a missing contribution would silently change
// record typing. Regions push down to the companion .tbi index when
// the file is bgzf-compressed and the index exists.
func (s *Session) LoadVariants(ctx context.Context, pattern string, opts LoadOpts) (*dataset.Variants, error) {
	format := fileformat.Classify(pattern)
	switch format {
	case fileformat.Unknown:
		return s.loadColumnarVariants(ctx, pattern, opts)
	case fileformat.VCF:
	default:
		return nil, &UnsupportedFormatError{Path: pattern, Format: format}
	}
	paths, err := elaborate(ctx, pattern, format)
	if err != nil {
		return nil, err
	}
	var dict metadata.SequenceDictionary
	var samples []metadata.Sample
	var lines []metadata.HeaderLine
	for _, p := range paths {
		d, ss, ls, err := readVariantHeader(ctx, p)
		if err != nil {
			return nil, err
		}
		dict = dict.Union(d)
		samples = append(samples, ss...)
		lines = append(lines, ls...)
	}
	cleaned, err := metadata.CleanHeaderLines(lines, s.opts.Stringency)
	if err != nil {
		return nil, err
	}
	var streams []stream.Stream[records.VariantContext]
	for _, p := range paths {
		streams = append(streams, s.variantStream(ctx, p, cleaned, opts.Regions))
	}
	return &dataset.Variants{
		Variants:    stream.Union(streams...),
		Sequences:   dict,
		Samples:     samples,
		HeaderLines: cleaned,
	}, nil
}

func (s *Session) loadColumnarVariants(ctx context.Context, pattern string, opts LoadOpts) (*dataset.Variants, error) {
	recs, meta, err := loadColumnar(ctx, pattern, colstore.SchemaVariants, colstore.ScanOpts[records.VariantContext]{
		Predicate:  variantPredicate(opts.Regions),
		DropFields: opts.DropFields,
	})
	if err != nil {
		return nil, err
	}
	cleaned, err := metadata.CleanHeaderLines(meta.HeaderLines, s.opts.Stringency)
	if err != nil {
		return nil, err
	}
	return &dataset.Variants{
		Variants:    recs,
		Sequences:   meta.Sequences,
		Samples:     meta.Samples,
		HeaderLines: cleaned,
	}, nil
}

func variantPredicate(regions []records.ReferenceRegion) func(*records.VariantContext) bool {
	if len(regions) == 0 {
		return nil
	}
	return func(v *records.VariantContext) bool {
		return overlapsAny(regions, v.ReferenceName, v.Start, v.End)
	}
}

// readVariantHeader reads only the header block of one VCF file.
func readVariantHeader(ctx context.Context, p string) (dict metadata.SequenceDictionary, samples []metadata.Sample, lines []metadata.HeaderLine, err error) {
	var f file.File
	if f, err = file.Open(ctx, p); err != nil {
		err = errors.Wrapf(err, "open %s", p)
		return
	}
	defer file.CloseAndReport(ctx, f, &err)
	var rc io.ReadCloser
	if rc, err = fileformat.NewDecompressedReader(f.Reader(ctx), p); err != nil {
		err = &HeaderParseError{Path: p, Err: err}
		return
	}
	defer rc.Close()
	vr, verr := vcfgo.NewReader(rc, false)
	if verr != nil {
		err = &HeaderParseError{Path: p, Err: verr}
		return
	}
	dict = vcfContigDictionary(vr.Header)
	for _, name := range vr.Header.SampleNames {
		samples = append(samples, metadata.Sample{ID: name})
	}
	lines = vcfHeaderLines(vr.Header)
	return
}

func vcfContigDictionary(h *vcfgo.Header) metadata.SequenceDictionary {
	var dict metadata.SequenceDictionary
	for _, c := range h.Contigs {
		length, _ := strconv.ParseInt(c["length"], 10, 64)
		dict.Contigs = append(dict.Contigs, metadata.Contig{
			Name:     c["ID"],
			Length:   length,
			MD5:      c["md5"],
			URI:      c["URL"],
			Assembly: c["assembly"],
			Species:  c["species"],
		})
	}
	return dict
}

// vcfHeaderLines lifts the parsed header maps into typed lines. The
// native parser stores compound lines in maps, so within each kind the
// original file order is gone; lines are emitted in identifier order
// to keep the result deterministic.
func vcfHeaderLines(h *vcfgo.Header) []metadata.HeaderLine {
	var lines []metadata.HeaderLine
	for _, id := range sortedKeys(h.Filters) {
		lines = append(lines, metadata.HeaderLine{
			Kind:        metadata.FilterLine,
			ID:          id,
			Description: h.Filters[id],
		})
	}
	formatIDs := make([]string, 0, len(h.SampleFormats))
	for id := range h.SampleFormats {
		formatIDs = append(formatIDs, id)
	}
	sort.Strings(formatIDs)
	for _, id := range formatIDs {
		f := h.SampleFormats[id]
		lines = append(lines, metadata.HeaderLine{
			Kind:        metadata.FormatLine,
			ID:          f.Id,
			Number:      f.Number,
			Type:        f.Type,
			Description: f.Description,
		})
	}
	infoIDs := make([]string, 0, len(h.Infos))
	for id := range h.Infos {
		infoIDs = append(infoIDs, id)
	}
	sort.Strings(infoIDs)
	for _, id := range infoIDs {
		i := h.Infos[id]
		lines = append(lines, metadata.HeaderLine{
			Kind:        metadata.InfoLine,
			ID:          i.Id,
			Number:      i.Number,
			Type:        i.Type,
			Description: i.Description,
		})
	}
	for _, extra := range h.Extras {
		lines = append(lines, metadata.HeaderLine{
			Kind: metadata.OtherLine,
			Raw:  extra,
		})
	}
	return lines
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// variantStream returns the lazy per-file record stream, with the
// cleaned header-line set threaded into record conversion.
func (s *Session) variantStream(ctx context.Context, p string, cleaned []metadata.HeaderLine, regions []records.ReferenceRegion) stream.Stream[records.VariantContext] {
	infoTypes := make(map[string]metadata.HeaderLine)
	for _, l := range cleaned {
		if l.Kind == metadata.InfoLine {
			infoTypes[l.ID] = l
		}
	}
	return stream.Deferred(func() (stream.Stream[records.VariantContext], error) {
		f, err := file.Open(ctx, p)
		if err != nil {
			return nil, errors.Wrapf(err, "open %s", p)
		}
		if len(regions) > 0 && isBgzf(p) {
			vs, ok, err := s.indexedVariantStream(ctx, p, f, infoTypes, regions)
			if err != nil {
				_ = f.Close(ctx)
				return nil, err
			}
			if ok {
				return vs, nil
			}
		}
		rc, err := fileformat.NewDecompressedReader(f.Reader(ctx), p)
		if err != nil {
			_ = f.Close(ctx)
			return nil, &HeaderParseError{Path: p, Err: err}
		}
		vr, err := vcfgo.NewReader(rc, false)
		if err != nil {
			_ = rc.Close()
			_ = f.Close(ctx)
			return nil, &HeaderParseError{Path: p, Err: err}
		}
		return &variantScanner{
			s: s, ctx: ctx, path: p, f: f, closer: rc, vr: vr,
			infoTypes: infoTypes, regions: regions,
		}, nil
	})
}

func isBgzf(p string) bool {
	switch fileformat.CompressionSuffix(p) {
	case ".gz", ".bgzf", ".bgz":
		return true
	}
	return false
}

// indexedVariantStream restricts the scan with the companion tabix
// index: it reads the header text, seeks the bgzf reader to the first
// chunk overlapping the regions, and replays the header in front of
// the seeked body so the native reader sees a well-formed file. ok is
// false when no index file exists.
func (s *Session) indexedVariantStream(ctx context.Context, p string, f file.File, infoTypes map[string]metadata.HeaderLine, regions []records.ReferenceRegion) (stream.Stream[records.VariantContext], bool, error) {
	idxPath := s.opts.VariantIndex(p)
	if _, err := file.Stat(ctx, idxPath); err != nil {
		return nil, false, nil
	}
	idx, err := readTabixIndex(ctx, idxPath)
	if err != nil {
		return nil, false, err
	}
	var chunks []bgzf.Chunk
	for _, r := range regions {
		c, err := idx.Chunks(r.Name, int(r.Start), int(r.End))
		if err != nil {
			continue // contig absent from the index
		}
		chunks = append(chunks, c...)
	}
	bz, err := bgzf.NewReader(f.Reader(ctx), 1)
	if err != nil {
		return nil, false, &HeaderParseError{Path: p, Err: err}
	}
	headerText, err := readVCFHeaderText(bz)
	if err != nil {
		return nil, false, &HeaderParseError{Path: p, Err: err}
	}
	if len(chunks) > 0 {
		if err := bz.Seek(chunks[0].Begin); err != nil {
			return nil, false, errors.Wrapf(err, "%s: indexed read", p)
		}
	}
	body := io.Reader(bz)
	if len(chunks) == 0 {
		body = strings.NewReader("") // nothing overlaps
	}
	vr, err := vcfgo.NewReader(io.MultiReader(strings.NewReader(headerText), body), false)
	if err != nil {
		return nil, false, &HeaderParseError{Path: p, Err: err}
	}
	return &variantScanner{
		s: s, ctx: ctx, path: p, f: f, closer: bz, vr: vr,
		infoTypes: infoTypes, regions: regions, earlyStop: true,
	}, true, nil
}

func readTabixIndex(ctx context.Context, idxPath string) (idx *tabix.Index, err error) {
	var f file.File
	if f, err = file.Open(ctx, idxPath); err != nil {
		return nil, errors.Wrapf(err, "open %s", idxPath)
	}
	defer file.CloseAndReport(ctx, f, &err)
	gz, gerr := gzip.NewReader(f.Reader(ctx))
	if gerr != nil {
		return nil, &HeaderParseError{Path: idxPath, Err: gerr}
	}
	defer gz.Close()
	if idx, err = tabix.ReadFrom(gz); err != nil {
		return nil, &HeaderParseError{Path: idxPath, Err: err}
	}
	return idx, nil
}

// readVCFHeaderText consumes r through the #CHROM column line and
// returns everything read.
func readVCFHeaderText(r io.Reader) (string, error) {
	var sb strings.Builder
	br := bufio.NewReader(r)
	for {
		line, err := br.ReadString('\n')
		sb.WriteString(line)
		if strings.HasPrefix(line, "#CHROM") {
			return sb.String(), nil
		}
		if err == io.EOF {
			return "", errors.New("no #CHROM line in header")
		}
		if err != nil {
			return "", err
		}
	}
}

type variantScanner struct {
	s         *Session
	ctx       context.Context
	path      string
	f         file.File
	closer    io.Closer
	vr        *vcfgo.Reader
	infoTypes map[string]metadata.HeaderLine
	regions   []records.ReferenceRegion
	// earlyStop stops the scan once the seeked read has passed beyond
	// every region; only set for index-restricted reads.
	earlyStop bool
	matched   bool
	line      int
	cur       records.VariantContext
	err       error
	done      bool
}

func (s *variantScanner) Scan() bool {
	if s.err != nil || s.done {
		return false
	}
	for {
		v := s.vr.Read()
		if v == nil {
			s.done = true
			if err := s.vr.Error(); err != nil {
				s.err = s.s.handleMalformed(&MalformedRecordError{Path: s.path, Err: err})
			}
			return false
		}
		s.line++
		if err := s.vr.Error(); err != nil {
			s.vr.Clear()
			if s.err = s.s.handleMalformed(&MalformedRecordError{Path: s.path, Line: s.line, Err: err}); s.err != nil {
				return false
			}
			continue
		}
		vc := convertVariant(v, s.infoTypes)
		if len(s.regions) > 0 {
			if !overlapsAny(s.regions, vc.ReferenceName, vc.Start, vc.End) {
				if s.earlyStop && s.matched && !regionContig(s.regions, vc.ReferenceName) {
					s.done = true
					return false
				}
				continue
			}
			s.matched = true
		}
		s.cur = vc
		return true
	}
}

func regionContig(regions []records.ReferenceRegion, name string) bool {
	for _, r := range regions {
		if r.Name == name {
			return true
		}
	}
	return false
}

func (s *variantScanner) Record() records.VariantContext { return s.cur }
func (s *variantScanner) Err() error                     { return s.err }

func (s *variantScanner) Close() error {
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

// convertVariant lifts one native variant into the unified
// representation, typing INFO values against the cleaned header-line
// set rather than the raw per-file declarations.
func convertVariant(v *vcfgo.Variant, infoTypes map[string]metadata.HeaderLine) records.VariantContext {
	start := int64(v.Pos) - 1
	vc := records.VariantContext{
		ReferenceName:    v.Chromosome,
		Start:            start,
		End:              start + int64(len(v.Reference)),
		ReferenceAllele:  v.Reference,
		AlternateAlleles: v.Alternate,
		Quality:          float64(v.Quality),
		HasQuality:       v.Quality >= 0,
		Info:             parseInfo(v.Info().String(), infoTypes),
		GenotypeFormat:   v.Format,
	}
	if id := v.Id(); id != "" && id != "." {
		vc.Names = strings.Split(id, ";")
	}
	switch v.Filter {
	case "", ".":
	default:
		vc.Filters = strings.Split(v.Filter, ";")
	}
	if end, ok := vc.Info["END"].(int); ok {
		vc.End = int64(end)
	}
	sampleNames := v.Header.SampleNames
	for i, sg := range v.Samples {
		g := records.Genotype{}
		if i < len(sampleNames) {
			g.SampleID = sampleNames[i]
		}
		if sg != nil {
			g.Alleles = sg.GT
			g.Phased = sg.Phased
			g.Fields = sg.Fields
		}
		vc.Genotypes = append(vc.Genotypes, g)
	}
	return vc
}

// parseInfo types the raw INFO column text. Identifiers declared by
// the cleaned header lines get their declared scalar type; counts
// other than 0 and 1 yield a []interface{} of scalars; undeclared
// identifiers stay strings (or true for bare flags).
func parseInfo(raw string, infoTypes map[string]metadata.HeaderLine) map[string]interface{} {
	if raw == "" || raw == "." {
		return nil
	}
	info := make(map[string]interface{})
	for _, field := range strings.Split(raw, ";") {
		if field == "" {
			continue
		}
		eq := strings.IndexByte(field, '=')
		if eq < 0 {
			info[field] = true
			continue
		}
		key, val := field[:eq], field[eq+1:]
		line, ok := infoTypes[key]
		if !ok {
			info[key] = val
			continue
		}
		if strings.ContainsRune(val, ',') && line.Number != "0" && line.Number != "1" {
			parts := strings.Split(val, ",")
			vals := make([]interface{}, len(parts))
			for i, p := range parts {
				vals[i] = typeScalar(p, line.Type)
			}
			info[key] = vals
			continue
		}
		info[key] = typeScalar(val, line.Type)
	}
	return info
}

func typeScalar(val, typ string) interface{} {
	switch typ {
	case "Integer":
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	case "Float":
		if x, err := strconv.ParseFloat(val, 64); err == nil {
			return x
		}
	case "Flag":
		return true
	}
	return val
}
