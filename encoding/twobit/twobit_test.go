package twobit

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var codeByBase = map[byte]byte{'T': 0, 'C': 1, 'A': 2, 'G': 3}

// write2bit encodes named sequences (which may contain N runs) in the
// 2bit layout.
func write2bit(t *testing.T, seqs []Sequence) []byte {
	t.Helper()
	var buf bytes.Buffer
	u32 := func(v uint32) { require.NoError(t, binary.Write(&buf, binary.LittleEndian, v)) }
	u32(0x1A412743)
	u32(0)
	u32(uint32(len(seqs)))
	u32(0)

	// Index size: per entry 1 + len(name) + 4.
	offset := 16
	for _, s := range seqs {
		offset += 1 + len(s.Name) + 4
	}
	var bodies [][]byte
	offsets := make([]uint32, len(seqs))
	for i, s := range seqs {
		offsets[i] = uint32(offset)
		body := encodeSequence(t, s.Bases)
		bodies = append(bodies, body)
		offset += len(body)
	}
	for i, s := range seqs {
		buf.WriteByte(byte(len(s.Name)))
		buf.WriteString(s.Name)
		u32(offsets[i])
	}
	for _, b := range bodies {
		buf.Write(b)
	}
	return buf.Bytes()
}

func encodeSequence(t *testing.T, bases string) []byte {
	t.Helper()
	var buf bytes.Buffer
	u32 := func(v uint32) { require.NoError(t, binary.Write(&buf, binary.LittleEndian, v)) }
	u32(uint32(len(bases)))
	var nStarts, nSizes []uint32
	for i := 0; i < len(bases); {
		if bases[i] != 'N' {
			i++
			continue
		}
		start := i
		for i < len(bases) && bases[i] == 'N' {
			i++
		}
		nStarts = append(nStarts, uint32(start))
		nSizes = append(nSizes, uint32(i-start))
	}
	u32(uint32(len(nStarts)))
	for _, v := range nStarts {
		u32(v)
	}
	for _, v := range nSizes {
		u32(v)
	}
	u32(0) // no mask blocks
	u32(0) // reserved
	var b byte
	for i := 0; i < len(bases); i++ {
		code := codeByBase[bases[i]] // N runs encode as arbitrary bases
		b |= code << uint(6-2*(i%4))
		if i%4 == 3 {
			buf.WriteByte(b)
			b = 0
		}
	}
	if len(bases)%4 != 0 {
		buf.WriteByte(b)
	}
	return buf.Bytes()
}

func TestReadRoundTrip(t *testing.T) {
	want := []Sequence{
		{Name: "chr1", Bases: "ACGTACGTTGCANNNACGT"},
		{Name: "chrM", Bases: "GGCC"},
	}
	encoded := write2bit(t, want)
	got, err := Read(bytes.NewReader(encoded))
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestReadBadSignature(t *testing.T) {
	_, err := Read(bytes.NewReader([]byte{1, 2, 3, 4, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0}))
	assert.Error(t, err)
	_, err = Read(bytes.NewReader([]byte{1, 2}))
	assert.Error(t, err)
}
