// Package fastq reads FASTQ and interleaved-FASTQ data and converts
// reads to the unified alignment representation. FASTQ carries
// unaligned reads, so every produced alignment is unmapped; pairing
// flags are set by the paired and interleaved entry points in the
// loader.
package fastq

import (
	"bufio"
	"io"

	"github.com/grailbio/gds/records"
	"github.com/pkg/errors"
)

var (
	// ErrShort is returned when a truncated FASTQ file is encountered.
	ErrShort = errors.New("short FASTQ file")
	// ErrInvalid is returned when an invalid FASTQ file is encountered.
	ErrInvalid = errors.New("invalid FASTQ file")
)

// A Read is one FASTQ read: an ID line, sequence, line 3 ("unknown"),
// and a quality string.
type Read struct {
	ID, Seq, Unk, Qual string
}

// Name returns the read name: the ID line without its "@" marker and
// without the trailing comment or pair suffix ("/1", "/2").
func (r *Read) Name() string {
	name := r.ID
	if len(name) > 0 && name[0] == '@' {
		name = name[1:]
	}
	for i := 0; i < len(name); i++ {
		if name[i] == ' ' || name[i] == '\t' {
			name = name[:i]
			break
		}
	}
	if n := len(name); n >= 2 && name[n-2] == '/' && (name[n-1] == '1' || name[n-1] == '2') {
		name = name[:n-2]
	}
	return name
}

// ToAlignment converts the read to an unmapped alignment record with
// the given pairing flags or'd in.
func (r *Read) ToAlignment(flags records.Flags) records.Alignment {
	return records.Alignment{
		Name:      r.Name(),
		Flags:     records.Unmapped | flags,
		Start:     -1,
		End:       -1,
		MateStart: -1,
		Sequence:  r.Seq,
		Quality:   r.Qual,
	}
}

var errEOF = errors.New("eof")

// Scanner reads FASTQ data record by record. The Scan method returns
// the next read, returning a boolean indicating whether the read
// succeeded. Scanner validates record framing (ID lines begin with
// "@", line 3 begins with "+") but nothing further. Scanners are not
// threadsafe.
type Scanner struct {
	b     *bufio.Scanner
	err   error
	count int64
}

// NewScanner constructs a Scanner reading raw FASTQ data from r.
func NewScanner(r io.Reader) *Scanner {
	return &Scanner{b: bufio.NewScanner(r)}
}

// Scan the next read into the provided read, returning whether the
// scan succeeded. Once Scan returns false, it never returns true
// again; check Err to distinguish the end of the stream from an
// error.
func (f *Scanner) Scan(read *Read) bool {
	if f.err != nil {
		return false
	}
	if !f.b.Scan() {
		if f.err = f.b.Err(); f.err == nil {
			f.err = errEOF
		}
		return false
	}
	id := f.b.Text()
	if len(id) == 0 || id[0] != '@' {
		f.err = ErrInvalid
		return false
	}
	read.ID = id
	if !f.scan() {
		return false
	}
	read.Seq = f.b.Text()
	if !f.scan() {
		return false
	}
	unk := f.b.Text()
	if len(unk) == 0 || unk[0] != '+' {
		f.err = ErrInvalid
		return false
	}
	read.Unk = unk
	if !f.scan() {
		return false
	}
	read.Qual = f.b.Text()
	f.count++
	return true
}

func (f *Scanner) scan() bool {
	ok := f.b.Scan()
	if !ok {
		if f.err = f.b.Err(); f.err == nil {
			f.err = ErrShort
		}
	}
	return ok
}

// Count returns the number of complete reads scanned so far. The
// paired loader uses it to report cardinality mismatches by file.
func (f *Scanner) Count() int64 { return f.count }

// Err returns the scanning error, if any.
func (f *Scanner) Err() error {
	if f.err == errEOF {
		return nil
	}
	return f.err
}
