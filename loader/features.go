package loader

import (
	"bufio"
	"context"
	"io"
	"strconv"
	"strings"

	"github.com/exascience/pargo/pipeline"
	"github.com/grailbio/base/file"
	"github.com/grailbio/gds/colstore"
	"github.com/grailbio/gds/dataset"
	"github.com/grailbio/gds/fileformat"
	"github.com/grailbio/gds/metadata"
	"github.com/grailbio/gds/records"
	"github.com/grailbio/gds/stream"
	"github.com/pkg/errors"
)

// LoadFeatures loads a dataset of interval annotations from a BED,
// GFF3, GTF, narrowPeak, interval_list, or columnar path pattern. The
// text formats carry no contig-length header by convention, so the
// dictionary is inferred from the contig names the records mention;
// interval_list is the exception, its embedded @SQ header does carry
// lengths and is used directly. Parsing is eager (the inferred
// dictionary is part of the result) and parallel across lines.
func (s *Session) LoadFeatures(ctx context.Context, pattern string, opts LoadOpts) (*dataset.Features, error) {
	format := fileformat.Classify(pattern)
	switch {
	case format == fileformat.Unknown:
		return s.loadColumnarFeatures(ctx, pattern, opts)
	case format.IsFeature():
	default:
		return nil, &UnsupportedFormatError{Path: pattern, Format: format}
	}
	paths, err := elaborate(ctx, pattern, format)
	if err != nil {
		return nil, err
	}
	var all []records.Feature
	var dict metadata.SequenceDictionary
	for _, p := range paths {
		feats, headerDict, err := s.parseFeatureFile(ctx, p, format)
		if err != nil {
			return nil, err
		}
		all = append(all, feats...)
		dict = dict.Union(headerDict)
	}
	if len(opts.Regions) > 0 {
		kept := all[:0]
		for _, f := range all {
			if overlapsAny(opts.Regions, f.ReferenceName, f.Start, f.End) {
				kept = append(kept, f)
			}
		}
		all = kept
	}
	if format != fileformat.IntervalList {
		dict = inferDictionary(all)
	}
	return &dataset.Features{Features: stream.FromSlice(all), Sequences: dict}, nil
}

func (s *Session) loadColumnarFeatures(ctx context.Context, pattern string, opts LoadOpts) (*dataset.Features, error) {
	recs, meta, err := loadColumnar(ctx, pattern, colstore.SchemaFeatures, colstore.ScanOpts[records.Feature]{
		Predicate:  featurePredicate(opts.Regions),
		DropFields: opts.DropFields,
	})
	if err != nil {
		return nil, err
	}
	return &dataset.Features{Features: recs, Sequences: meta.Sequences}, nil
}

func featurePredicate(regions []records.ReferenceRegion) func(*records.Feature) bool {
	if len(regions) == 0 {
		return nil
	}
	return func(f *records.Feature) bool {
		return overlapsAny(regions, f.ReferenceName, f.Start, f.End)
	}
}

// inferDictionary builds a dictionary of the contig names observed in
// the records, in order of first appearance, with unknown lengths.
func inferDictionary(feats []records.Feature) metadata.SequenceDictionary {
	var dict metadata.SequenceDictionary
	seen := make(map[string]bool)
	for _, f := range feats {
		if !seen[f.ReferenceName] {
			seen[f.ReferenceName] = true
			dict.Contigs = append(dict.Contigs, metadata.Contig{Name: f.ReferenceName})
		}
	}
	return dict
}

// parseFeatureFile parses one text feature file, parallelizing the
// line parse across batches. For interval_list the embedded SAM-style
// @ header is consumed first and contributes the dictionary.
func (s *Session) parseFeatureFile(ctx context.Context, p string, format fileformat.Format) (feats []records.Feature, headerDict metadata.SequenceDictionary, err error) {
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

	br := bufio.NewReader(rc)
	source := io.Reader(br)
	if format == fileformat.IntervalList {
		var firstData string
		if headerDict, firstData, err = readIntervalListHeader(br); err != nil {
			err = &HeaderParseError{Path: p, Err: err}
			return
		}
		if firstData == "" {
			return
		}
		source = io.MultiReader(strings.NewReader(firstData), br)
	}

	parse := lineParser(format)
	var pl pipeline.Pipeline
	pl.Source(pipeline.NewScanner(source))
	pl.Add(pipeline.LimitedPar(s.opts.Parallelism, pipeline.Receive(func(_ int, data interface{}) interface{} {
		lines := data.([]string)
		out := make([]records.Feature, 0, len(lines))
		for _, line := range lines {
			line = strings.TrimSuffix(line, "\r")
			if skippableLine(line) {
				continue
			}
			feat, perr := parse(line)
			if perr != nil {
				if herr := s.handleMalformed(&MalformedRecordError{Path: p, Err: perr}); herr != nil {
					pl.SetErr(herr)
					return out
				}
				continue
			}
			out = append(out, feat)
		}
		return out
	})))
	pl.Add(pipeline.Ord(pipeline.Slice(&feats)))
	pl.Run()
	err = pl.Err()
	return
}

func skippableLine(line string) bool {
	return line == "" || line[0] == '#' || line[0] == '@' ||
		strings.HasPrefix(line, "track") || strings.HasPrefix(line, "browser")
}

// readIntervalListHeader consumes the leading @ lines and returns the
// dictionary they declare plus the first data line, "" when the file
// holds nothing but header.
func readIntervalListHeader(br *bufio.Reader) (metadata.SequenceDictionary, string, error) {
	var header strings.Builder
	for {
		line, err := br.ReadString('\n')
		trimmed := strings.TrimSuffix(strings.TrimSuffix(line, "\n"), "\r")
		if strings.HasPrefix(trimmed, "@") {
			header.WriteString(trimmed)
			header.WriteByte('\n')
		} else if trimmed != "" {
			dict, _ := parseHeaderText(header.String())
			return dict, line, nil
		}
		if err == io.EOF {
			dict, _ := parseHeaderText(header.String())
			return dict, "", nil
		}
		if err != nil {
			return metadata.SequenceDictionary{}, "", err
		}
	}
}

func lineParser(format fileformat.Format) func(string) (records.Feature, error) {
	switch format {
	case fileformat.BED:
		return parseBEDLine
	case fileformat.NarrowPeak:
		return parseNarrowPeakLine
	case fileformat.GFF3:
		return func(line string) (records.Feature, error) { return parseGFFLine(line, true) }
	case fileformat.GTF:
		return func(line string) (records.Feature, error) { return parseGFFLine(line, false) }
	case fileformat.IntervalList:
		return parseIntervalListLine
	}
	return func(string) (records.Feature, error) {
		return records.Feature{}, errors.Errorf("no line parser for %v", format)
	}
}

// parseBEDLine parses one BED line of 3 to 12 columns. BED is already
// 0-based half-open. Columns past the strand keep their conventional
// names as attributes.
func parseBEDLine(line string) (records.Feature, error) {
	fields := strings.Split(line, "\t")
	if len(fields) < 3 {
		return records.Feature{}, errors.Errorf("BED line has %d columns, want at least 3", len(fields))
	}
	feat, err := baseFeature(fields[0], fields[1], fields[2], false)
	if err != nil {
		return records.Feature{}, err
	}
	if len(fields) > 3 && fields[3] != "." {
		feat.Name = fields[3]
	}
	if err := parseScore(&feat, fields, 4); err != nil {
		return records.Feature{}, err
	}
	parseStrand(&feat, fields, 5)
	bedExtras := []string{"thickStart", "thickEnd", "itemRgb", "blockCount", "blockSizes", "blockStarts"}
	for i, name := range bedExtras {
		col := 6 + i
		if len(fields) > col && fields[col] != "" {
			if feat.Attributes == nil {
				feat.Attributes = make(map[string]string)
			}
			feat.Attributes[name] = fields[col]
		}
	}
	return feat, nil
}

// parseNarrowPeakLine parses one ENCODE narrowPeak (BED6+4) line.
func parseNarrowPeakLine(line string) (records.Feature, error) {
	fields := strings.Split(line, "\t")
	if len(fields) < 10 {
		return records.Feature{}, errors.Errorf("narrowPeak line has %d columns, want 10", len(fields))
	}
	feat, err := baseFeature(fields[0], fields[1], fields[2], false)
	if err != nil {
		return records.Feature{}, err
	}
	if fields[3] != "." {
		feat.Name = fields[3]
	}
	if err := parseScore(&feat, fields, 4); err != nil {
		return records.Feature{}, err
	}
	parseStrand(&feat, fields, 5)
	feat.Attributes = map[string]string{
		"signalValue": fields[6],
		"pValue":      fields[7],
		"qValue":      fields[8],
		"peak":        fields[9],
	}
	return feat, nil
}

// parseGFFLine parses one GFF3 or GTF line. Both are 1-based closed,
// so start shifts down by one. The two dialects differ only in the
// attribute column syntax.
func parseGFFLine(line string, gff3 bool) (records.Feature, error) {
	fields := strings.Split(line, "\t")
	if len(fields) < 8 {
		return records.Feature{}, errors.Errorf("GFF line has %d columns, want at least 8", len(fields))
	}
	feat, err := baseFeature(fields[0], fields[3], fields[4], true)
	if err != nil {
		return records.Feature{}, err
	}
	if fields[1] != "." {
		feat.Source = fields[1]
	}
	if fields[2] != "." {
		feat.Type = fields[2]
	}
	if fields[5] != "." {
		score, err := strconv.ParseFloat(fields[5], 64)
		if err != nil {
			return records.Feature{}, errors.Wrapf(err, "score %q", fields[5])
		}
		feat.Score, feat.HasScore = score, true
	}
	parseStrand(&feat, fields, 6)
	if fields[7] != "." {
		frame, err := strconv.Atoi(fields[7])
		if err != nil {
			return records.Feature{}, errors.Wrapf(err, "frame %q", fields[7])
		}
		feat.Frame = frame
	}
	if len(fields) > 8 && fields[8] != "" && fields[8] != "." {
		if gff3 {
			feat.Attributes = parseGFF3Attributes(fields[8])
			if name, ok := feat.Attributes["Name"]; ok {
				feat.Name = name
			} else if id, ok := feat.Attributes["ID"]; ok {
				feat.Name = id
			}
		} else {
			feat.Attributes = parseGTFAttributes(fields[8])
			if id, ok := feat.Attributes["gene_id"]; ok {
				feat.Name = id
			}
		}
	}
	return feat, nil
}

func parseGFF3Attributes(s string) map[string]string {
	attrs := make(map[string]string)
	for _, kv := range strings.Split(s, ";") {
		kv = strings.TrimSpace(kv)
		if eq := strings.IndexByte(kv, '='); eq > 0 {
			attrs[kv[:eq]] = kv[eq+1:]
		}
	}
	return attrs
}

func parseGTFAttributes(s string) map[string]string {
	attrs := make(map[string]string)
	for _, kv := range strings.Split(s, ";") {
		kv = strings.TrimSpace(kv)
		if kv == "" {
			continue
		}
		if sp := strings.IndexByte(kv, ' '); sp > 0 {
			attrs[kv[:sp]] = strings.Trim(kv[sp+1:], `"`)
		}
	}
	return attrs
}

// parseIntervalListLine parses one Picard interval line: chrom, start,
// end, strand, name, 1-based closed.
func parseIntervalListLine(line string) (records.Feature, error) {
	fields := strings.Split(line, "\t")
	if len(fields) < 5 {
		return records.Feature{}, errors.Errorf("interval line has %d columns, want 5", len(fields))
	}
	feat, err := baseFeature(fields[0], fields[1], fields[2], true)
	if err != nil {
		return records.Feature{}, err
	}
	parseStrand(&feat, fields, 3)
	if fields[4] != "." {
		feat.Name = fields[4]
	}
	return feat, nil
}

// baseFeature parses the coordinate columns shared by every format.
// oneBased shifts start down to the 0-based half-open model; closed
// ends need no shift since half-open ends are exclusive.
func baseFeature(chrom, startCol, endCol string, oneBased bool) (records.Feature, error) {
	start, err := strconv.ParseInt(startCol, 10, 64)
	if err != nil {
		return records.Feature{}, errors.Wrapf(err, "start %q", startCol)
	}
	end, err := strconv.ParseInt(endCol, 10, 64)
	if err != nil {
		return records.Feature{}, errors.Wrapf(err, "end %q", endCol)
	}
	if oneBased {
		start--
	}
	if chrom == "" || start < 0 || end < start {
		return records.Feature{}, errors.Errorf("invalid interval %s:%s-%s", chrom, startCol, endCol)
	}
	return records.Feature{
		ReferenceName: chrom,
		Start:         start,
		End:           end,
		Strand:        '.',
		Frame:         -1,
	}, nil
}

func parseScore(feat *records.Feature, fields []string, col int) error {
	if len(fields) <= col || fields[col] == "." || fields[col] == "" {
		return nil
	}
	score, err := strconv.ParseFloat(fields[col], 64)
	if err != nil {
		return errors.Wrapf(err, "score %q", fields[col])
	}
	feat.Score, feat.HasScore = score, true
	return nil
}

func parseStrand(feat *records.Feature, fields []string, col int) {
	if len(fields) > col && len(fields[col]) == 1 {
		feat.Strand = fields[col][0]
	}
}
