package loader

import (
	"fmt"

	"github.com/grailbio/gds/fileformat"
)

// HeaderParseError reports a file whose embedded header or metadata
// sidecar could not be parsed. Alignment loads skip the offending file
// with a log line; variant loads and sidecar reads fail with it.
type HeaderParseError struct {
	Path string
	Err  error
}

func (e *HeaderParseError) Error() string {
	return fmt.Sprintf("%s: parsing header: %v", e.Path, e.Err)
}

func (e *HeaderParseError) Unwrap() error { return e.Err }

// MalformedRecordError reports one record that could not be decoded.
// Fatal under STRICT, dropped with a log line under LENIENT, dropped
// silently under SILENT.
type MalformedRecordError struct {
	Path string
	Line int
	Err  error
}

func (e *MalformedRecordError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s:%d: malformed record: %v", e.Path, e.Line, e.Err)
	}
	return fmt.Sprintf("%s: malformed record: %v", e.Path, e.Err)
}

func (e *MalformedRecordError) Unwrap() error { return e.Err }

// RecordCountMismatchError reports paired inputs of unequal
// cardinality, such as R1/R2 FASTQ files with different read counts.
type RecordCountMismatchError struct {
	Path1, Path2   string
	Count1, Count2 int64
}

func (e *RecordCountMismatchError) Error() string {
	return fmt.Sprintf("record count mismatch: %s has %d records, %s has %d",
		e.Path1, e.Count1, e.Path2, e.Count2)
}

// UnsupportedFormatError reports a recognized format this package
// cannot decode, or a format routed to the wrong load entry point.
type UnsupportedFormatError struct {
	Path   string
	Format fileformat.Format
}

func (e *UnsupportedFormatError) Error() string {
	return fmt.Sprintf("%s: unsupported format %s", e.Path, e.Format)
}
