// Package twobit decodes the UCSC .2bit packed reference sequence
// format: a 16 byte header, a name/offset index, and per-sequence
// records packing four bases per byte with N-run and mask-run side
// tables.
package twobit

import (
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
)

const signature = 0x1A412743

// Sequence is one decoded 2bit sequence.
type Sequence struct {
	Name  string
	Bases string
}

var baseByCode = [4]byte{'T', 'C', 'A', 'G'}

// Read decodes every sequence of a 2bit file, in index order. Only
// little-endian files are supported (the byte order written by
// faToTwoBit and every tool in common use).
func Read(r io.Reader) ([]Sequence, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	if len(data) < 16 {
		return nil, errors.New("2bit: truncated header")
	}
	if binary.LittleEndian.Uint32(data[0:4]) != signature {
		return nil, errors.Errorf("2bit: bad signature %#x", binary.LittleEndian.Uint32(data[0:4]))
	}
	if v := binary.LittleEndian.Uint32(data[4:8]); v != 0 {
		return nil, errors.Errorf("2bit: unsupported version %d", v)
	}
	count := int(binary.LittleEndian.Uint32(data[8:12]))

	type indexEntry struct {
		name   string
		offset uint32
	}
	index := make([]indexEntry, 0, count)
	pos := 16
	for i := 0; i < count; i++ {
		if pos >= len(data) {
			return nil, errors.New("2bit: truncated index")
		}
		nameLen := int(data[pos])
		pos++
		if pos+nameLen+4 > len(data) {
			return nil, errors.New("2bit: truncated index")
		}
		name := string(data[pos : pos+nameLen])
		pos += nameLen
		offset := binary.LittleEndian.Uint32(data[pos : pos+4])
		pos += 4
		index = append(index, indexEntry{name, offset})
	}

	seqs := make([]Sequence, 0, count)
	for _, e := range index {
		bases, err := decodeSequence(data, int(e.offset))
		if err != nil {
			return nil, errors.Wrapf(err, "2bit: sequence %s", e.name)
		}
		seqs = append(seqs, Sequence{Name: e.name, Bases: bases})
	}
	return seqs, nil
}

func decodeSequence(data []byte, pos int) (string, error) {
	u32 := func() (uint32, error) {
		if pos+4 > len(data) {
			return 0, errors.New("truncated record")
		}
		v := binary.LittleEndian.Uint32(data[pos : pos+4])
		pos += 4
		return v, nil
	}
	dnaSize, err := u32()
	if err != nil {
		return "", err
	}
	readBlocks := func() (starts, sizes []uint32, err error) {
		n, err := u32()
		if err != nil {
			return nil, nil, err
		}
		starts = make([]uint32, n)
		sizes = make([]uint32, n)
		for i := range starts {
			if starts[i], err = u32(); err != nil {
				return nil, nil, err
			}
		}
		for i := range sizes {
			if sizes[i], err = u32(); err != nil {
				return nil, nil, err
			}
		}
		return starts, sizes, nil
	}
	nStarts, nSizes, err := readBlocks()
	if err != nil {
		return "", err
	}
	// Mask blocks record soft-masked (lower case) runs; the unified
	// representation keeps bases upper case, so they are skipped over.
	if _, _, err := readBlocks(); err != nil {
		return "", err
	}
	if _, err := u32(); err != nil { // reserved
		return "", err
	}
	packed := (int(dnaSize) + 3) / 4
	if pos+packed > len(data) {
		return "", errors.New("truncated packed bases")
	}
	bases := make([]byte, dnaSize)
	for i := 0; i < int(dnaSize); i++ {
		b := data[pos+i/4]
		shift := uint(6 - 2*(i%4))
		bases[i] = baseByCode[(b>>shift)&3]
	}
	for i, start := range nStarts {
		end := start + nSizes[i]
		if int(end) > len(bases) {
			return "", errors.New("N block out of range")
		}
		for j := start; j < end; j++ {
			bases[j] = 'N'
		}
	}
	return string(bases), nil
}
