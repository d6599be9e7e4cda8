// Package loader implements the dataset load entry points: each one
// elaborates a path pattern, sniffs the format, reads per-file
// metadata, reconciles it into one bundle, and pairs it with a lazy
// unified record stream.
package loader

import (
	"context"
	"path"
	"runtime"
	"sort"
	"strings"

	"github.com/grailbio/base/log"
	"github.com/grailbio/gds/colstore"
	"github.com/grailbio/gds/datapath"
	"github.com/grailbio/gds/fileformat"
	"github.com/grailbio/gds/metadata"
	"github.com/grailbio/gds/records"
)

// Opts configures a Session. The zero value is usable: STRICT
// stringency, default parallelism, conventional index paths.
type Opts struct {
	// Stringency selects how malformed inputs are handled.
	Stringency metadata.Stringency
	// Parallelism bounds parallel text parsing; 0 means GOMAXPROCS.
	Parallelism int
	// SequenceFragmentLength is the maximum bases per sequence
	// fragment when loading references; 0 means 10000.
	SequenceFragmentLength int64
	// AlignmentIndex maps an alignment file path to its index path.
	// Nil means path+".bai".
	AlignmentIndex func(path string) string
	// VariantIndex maps a variant file path to its index path. Nil
	// means path+".tbi".
	VariantIndex func(path string) string
}

// LoadOpts modifies one load call. Regions restrict the stream to
// overlapping records, through the companion index when one exists and
// by stream filtering otherwise. DropFields applies only to columnar
// inputs.
type LoadOpts struct {
	Regions    []records.ReferenceRegion
	DropFields []string
}

// Session is a configured set of load entry points. It holds no
// mutable state; load calls are independent and a Session is safe for
// concurrent use.
type Session struct {
	opts Opts
}

// New returns a Session with the given options.
func New(opts Opts) *Session {
	if opts.Parallelism <= 0 {
		opts.Parallelism = runtime.GOMAXPROCS(0)
	}
	if opts.SequenceFragmentLength == 0 {
		opts.SequenceFragmentLength = 10000
	}
	if opts.AlignmentIndex == nil {
		opts.AlignmentIndex = func(p string) string { return p + ".bai" }
	}
	if opts.VariantIndex == nil {
		opts.VariantIndex = func(p string) string { return p + ".tbi" }
	}
	return &Session{opts: opts}
}

// handleMalformed applies the session stringency to one undecodable
// record: the error under STRICT, nil (drop) otherwise, with a log
// line under LENIENT.
func (s *Session) handleMalformed(err *MalformedRecordError) error {
	switch s.opts.Stringency {
	case metadata.Strict:
		return err
	case metadata.Lenient:
		log.Error.Printf("dropping record: %v", err)
	}
	return nil
}

// elaborate resolves pattern to the files classifying as format,
// skipping sibling files (indexes, checksums) a directory or glob
// match may sweep in.
func elaborate(ctx context.Context, pattern string, format fileformat.Format) ([]string, error) {
	return datapath.Elaborate(ctx, pattern, func(name string) bool {
		return fileformat.Classify(name) == format
	})
}

// columnarDirs resolves pattern to the dataset directories holding its
// matched part files.
func columnarDirs(ctx context.Context, pattern string) ([]string, error) {
	files, err := datapath.Elaborate(ctx, pattern, isPartFile)
	if err != nil {
		return nil, err
	}
	seen := map[string]bool{}
	var dirs []string
	for _, f := range files {
		dir := path.Dir(f)
		if !seen[dir] {
			seen[dir] = true
			dirs = append(dirs, dir)
		}
	}
	sort.Strings(dirs)
	return dirs, nil
}

func isPartFile(name string) bool {
	return strings.HasPrefix(name, "part-") && strings.HasSuffix(name, ".rio")
}

// DetectSchema resolves pattern to columnar dataset directories and
// reports the schema name stamped in their part files. It is how
// callers with no extension to go on (a bare dataset directory) learn
// which record kind the dataset holds.
func DetectSchema(ctx context.Context, pattern string) (string, error) {
	dirs, err := columnarDirs(ctx, pattern)
	if err != nil {
		return "", err
	}
	if len(dirs) == 0 {
		return "", &datapath.NotFoundError{Pattern: pattern}
	}
	return colstore.Schema(ctx, dirs[0])
}

// columnarMetadata folds the sidecar bundles of the matched dataset
// directories with the standard merge: dictionary union, record-group
// and sample concatenation, header-line concatenation. Sidecar read
// failures are fatal.
func columnarMetadata(ctx context.Context, dirs []string) (colstore.Metadata, error) {
	var merged colstore.Metadata
	for _, dir := range dirs {
		meta, err := colstore.ReadMetadata(ctx, dir)
		if err != nil {
			return colstore.Metadata{}, &HeaderParseError{Path: dir, Err: err}
		}
		merged.Sequences = merged.Sequences.Union(meta.Sequences)
		merged.Samples = append(merged.Samples, meta.Samples...)
		merged.RecordGroups = merged.RecordGroups.Merge(meta.RecordGroups)
		merged.HeaderLines = append(merged.HeaderLines, meta.HeaderLines...)
	}
	return merged, nil
}
