package bridge

import (
	"bytes"
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameRoundTrip(t *testing.T) {
	req := &Frame{
		NBands: 2, NT: 1, NY: 2, NX: 3,
		NoData: math.NaN(),
		Data:   []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, math.NaN()},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, req))
	assert.Equal(t, 8+28+12*8, buf.Len())

	got, err := ReadFrame(&buf)
	require.NoError(t, err)
	assert.Equal(t, req.NBands, got.NBands)
	assert.Equal(t, req.NT, got.NT)
	assert.Equal(t, req.NY, got.NY)
	assert.Equal(t, req.NX, got.NX)
	assert.True(t, math.IsNaN(got.NoData))
	for i := 0; i < 11; i++ {
		assert.Equal(t, req.Data[i], got.Data[i])
	}
	assert.True(t, math.IsNaN(got.Data[11]))
}

func TestFramePayloadMismatch(t *testing.T) {
	var buf bytes.Buffer
	err := WriteFrame(&buf, &Frame{NBands: 2, NT: 2, NY: 2, NX: 2, Data: []float64{1}})
	require.Error(t, err)
}

// rawFrame assembles frame bytes directly so tests can lie in any field.
func rawFrame(frameLen uint64, nb, nt, ny, nx, tag uint32, payload []byte) []byte {
	var buf bytes.Buffer
	hdr := make([]byte, 36)
	binary.LittleEndian.PutUint64(hdr[0:], frameLen)
	binary.LittleEndian.PutUint32(hdr[8:], nb)
	binary.LittleEndian.PutUint32(hdr[12:], nt)
	binary.LittleEndian.PutUint32(hdr[16:], ny)
	binary.LittleEndian.PutUint32(hdr[20:], nx)
	binary.LittleEndian.PutUint32(hdr[24:], tag)
	binary.LittleEndian.PutUint64(hdr[28:], math.Float64bits(-1))
	buf.Write(hdr)
	buf.Write(payload)
	return buf.Bytes()
}

func TestReadFrameWidensInt16(t *testing.T) {
	payload := make([]byte, 4*2)
	for i, v := range []int16{-3, 0, 7, 32767} {
		binary.LittleEndian.PutUint16(payload[i*2:], uint16(v))
	}
	raw := rawFrame(28+8, 1, 1, 2, 2, TypeInt16, payload)

	f, err := ReadFrame(bytes.NewReader(raw))
	require.NoError(t, err)
	assert.Equal(t, []float64{-3, 0, 7, 32767}, f.Data)
	assert.Equal(t, -1.0, f.NoData)
}

func TestReadFrameMalformed(t *testing.T) {
	cases := []struct {
		name string
		raw  []byte
	}{
		{"length below header", rawFrame(8, 1, 1, 1, 1, TypeFloat64, nil)},
		{"length exceeds cap", rawFrame(1 << 40, 1, 1, 1, 1, TypeFloat64, nil)},
		{"length shape mismatch", rawFrame(28+8, 2, 2, 2, 2, TypeFloat64, make([]byte, 8))},
		{"unknown type tag", rawFrame(28+8, 1, 1, 1, 1, 99, make([]byte, 8))},
		{"truncated payload", rawFrame(28+32, 1, 1, 2, 2, TypeFloat64, make([]byte, 8))},
		// shape product wraps to zero in 64 bits, matching an empty payload
		{"shape product overflow", rawFrame(28, 1 << 16, 1 << 16, 1 << 16, 1 << 16, TypeFloat64, nil)},
		{"truncated header", []byte{0, 1, 2}},
	}
	for _, tc := range cases {
		_, err := ReadFrame(bytes.NewReader(tc.raw))
		assert.Error(t, err, tc.name)
	}
}
