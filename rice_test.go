package fitsrs

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

// bitWriter packs bits MSB-first into a byte stream, the inverse of the
// window RICEDecoder consumes from.
type bitWriter struct {
	acc   uint64
	nbits int
	out   []byte
}

func (w *bitWriter) writeBits(value uint32, n int) {
	w.acc = (w.acc << uint(n)) | uint64(value&((1<<uint(n))-1))
	w.nbits += n
	for w.nbits >= 8 {
		w.nbits -= 8
		w.out = append(w.out, byte(w.acc>>uint(w.nbits)))
	}
}

func (w *bitWriter) flush() {
	if w.nbits > 0 {
		w.out = append(w.out, byte(w.acc<<uint(8-w.nbits)))
		w.nbits = 0
	}
}

func zigzag(diff int32) uint32 {
	if diff >= 0 {
		return uint32(diff) << 1
	}
	return uint32(^(diff << 1))
}

// encodeRiceNormal is a reference encoder for RICEDecoder's "normal" decode
// path (the fs-coded branch, never the low/high-entropy shortcuts): an
// oracle for the round-trip invariant (§8), not a byte-for-byte CFITSIO
// encoder. seed is the raw predictor pixel written ahead of the bitstream;
// pixels is the nx-length recurrence the decoder reconstructs from it.
func encodeRiceNormal(seed int32, pixels []int32, nblock, fsbits, fs int32) []byte {
	var raw bytes.Buffer
	switch fsbits {
	case 3:
		raw.WriteByte(byte(seed))
	case 4:
		v := uint16(int16(seed))
		raw.WriteByte(byte(v >> 8))
		raw.WriteByte(byte(v))
	default:
		v := uint32(seed)
		raw.WriteByte(byte(v >> 24))
		raw.WriteByte(byte(v >> 16))
		raw.WriteByte(byte(v >> 8))
		raw.WriteByte(byte(v))
	}

	bw := &bitWriter{}
	lastpix := seed
	for i := 0; i < len(pixels); i += int(nblock) {
		end := i + int(nblock)
		if end > len(pixels) {
			end = len(pixels)
		}
		bw.writeBits(uint32(fs+1), int(fsbits))
		for _, v := range pixels[i:end] {
			zz := zigzag(v - lastpix)
			nzero := zz >> uint(fs)
			for k := uint32(0); k < nzero; k++ {
				bw.writeBits(0, 1)
			}
			bw.writeBits(1, 1)
			bw.writeBits(zz&((1<<uint(fs))-1), int(fs))
			lastpix = v
		}
	}
	bw.flush()
	return append(raw.Bytes(), bw.out...)
}

func TestRICEDecoderInt32RoundTrip(t *testing.T) {
	seed := int32(100)
	pixels := []int32{101, 99, 100, 105, 95, 100, 100, 100, 103, 97}
	encoded := encodeRiceNormal(seed, pixels, 32, 5, 4)

	dec := NewRICEDecoder[int32](bytes.NewReader(encoded), 32, int32(len(pixels)))
	out := make([]byte, len(pixels)*4)
	n, err := dec.Read(out)
	require.NoError(t, err)
	require.Equal(t, len(out), n)

	for i, want := range pixels {
		got := int32(uint32(out[i*4]) | uint32(out[i*4+1])<<8 | uint32(out[i*4+2])<<16 | uint32(out[i*4+3])<<24)
		require.Equalf(t, want, got, "pixel %d", i)
	}
}

func TestRICEDecoderInt16RoundTrip(t *testing.T) {
	seed := int32(1000)
	pixels := []int32{1001, 998, 1000, 1010, 990, 1000}
	encoded := encodeRiceNormal(seed, pixels, 32, 4, 3)

	dec := NewRICEDecoder[int16](bytes.NewReader(encoded), 32, int32(len(pixels)))
	out := make([]byte, len(pixels)*2)
	n, err := dec.Read(out)
	require.NoError(t, err)
	require.Equal(t, len(out), n)

	for i, want := range pixels {
		got := int16(uint16(out[i*2]) | uint16(out[i*2+1])<<8)
		require.EqualValues(t, want, got)
	}
}

func TestRICEDecoderUint8RoundTrip(t *testing.T) {
	seed := int32(50)
	pixels := []int32{51, 49, 50, 52, 48, 50}
	encoded := encodeRiceNormal(seed, pixels, 32, 3, 2)

	dec := NewRICEDecoder[uint8](bytes.NewReader(encoded), 32, int32(len(pixels)))
	out := make([]byte, len(pixels))
	n, err := dec.Read(out)
	require.NoError(t, err)
	require.Equal(t, len(out), n)

	for i, want := range pixels {
		require.EqualValues(t, want, out[i])
	}
}
