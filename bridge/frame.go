// Package bridge exchanges chunks with out-of-process workers over a
// length-prefixed binary frame on the worker's standard streams. The format
// is deliberately runtime agnostic: a worker in any language only needs
// plain file IO to speak it.
package bridge

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"unsafe"
)

// Element type tags of the frame payload.
const (
	TypeUint8   uint32 = 1
	TypeInt16   uint32 = 2
	TypeUInt16  uint32 = 3
	TypeFloat32 uint32 = 4
	TypeFloat64 uint32 = 5
)

const (
	headerSize = 28 // 5 uint32 + 1 float64
	// maxPayload guards against a corrupt length field allocating the
	// whole machine.
	maxPayload = 1 << 32
)

const SizeofFloat64 = 8

// Frame is one chunk on the wire: shape header plus a dense payload laid
// out band-major, then time, then y, then x. The host always emits float64;
// worker replies may use any tag and are widened on read.
type Frame struct {
	NBands, NT, NY, NX int
	NoData             float64
	Data               []float64
}

func elemSize(tag uint32) (int, error) {
	switch tag {
	case TypeUint8:
		return 1, nil
	case TypeInt16, TypeUInt16:
		return 2, nil
	case TypeFloat32:
		return 4, nil
	case TypeFloat64:
		return 8, nil
	}
	return 0, fmt.Errorf("unknown element type tag %d", tag)
}

// WriteFrame writes one frame. Byte order is little endian, the native
// order of every supported target.
func WriteFrame(w io.Writer, f *Frame) error {
	n := f.NBands * f.NT * f.NY * f.NX
	if len(f.Data) != n {
		return fmt.Errorf("frame payload has %d samples, header says %d", len(f.Data), n)
	}

	var hdr [8 + headerSize]byte
	binary.LittleEndian.PutUint64(hdr[0:], uint64(headerSize+n*SizeofFloat64))
	binary.LittleEndian.PutUint32(hdr[8:], uint32(f.NBands))
	binary.LittleEndian.PutUint32(hdr[12:], uint32(f.NT))
	binary.LittleEndian.PutUint32(hdr[16:], uint32(f.NY))
	binary.LittleEndian.PutUint32(hdr[20:], uint32(f.NX))
	binary.LittleEndian.PutUint32(hdr[24:], TypeFloat64)
	binary.LittleEndian.PutUint64(hdr[28:], math.Float64bits(f.NoData))
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}

	if n == 0 {
		return nil
	}
	payload := unsafe.Slice((*byte)(unsafe.Pointer(&f.Data[0])), len(f.Data)*SizeofFloat64)
	_, err := w.Write(payload)
	return err
}

// ReadFrame reads and validates one frame, widening the payload to
// float64. Any disagreement between the length prefix, the header shape
// and the payload size is an error.
func ReadFrame(r io.Reader) (*Frame, error) {
	var pre [8]byte
	if _, err := io.ReadFull(r, pre[:]); err != nil {
		return nil, err
	}
	frameLen := binary.LittleEndian.Uint64(pre[:])
	if frameLen < headerSize || frameLen > maxPayload {
		return nil, fmt.Errorf("implausible frame length %d", frameLen)
	}

	var hdr [headerSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, fmt.Errorf("short frame header: %v", err)
	}
	f := &Frame{
		NBands: int(binary.LittleEndian.Uint32(hdr[0:])),
		NT:     int(binary.LittleEndian.Uint32(hdr[4:])),
		NY:     int(binary.LittleEndian.Uint32(hdr[8:])),
		NX:     int(binary.LittleEndian.Uint32(hdr[12:])),
		NoData: math.Float64frombits(binary.LittleEndian.Uint64(hdr[20:])),
	}
	tag := binary.LittleEndian.Uint32(hdr[16:])
	size, err := elemSize(tag)
	if err != nil {
		return nil, err
	}

	// bound each factor before multiplying so a hostile header cannot
	// overflow the sample count
	n64 := uint64(1)
	ok := true
	for _, d := range [4]int{f.NBands, f.NT, f.NY, f.NX} {
		if d < 0 || uint64(d) > maxPayload {
			ok = false
			break
		}
		n64 *= uint64(d)
		if n64 > maxPayload {
			ok = false
			break
		}
	}
	if !ok || n64*uint64(size) != frameLen-headerSize {
		return nil, fmt.Errorf("frame length %d does not match header shape (%d,%d,%d,%d) of type %d",
			frameLen, f.NBands, f.NT, f.NY, f.NX, tag)
	}
	n := int(n64)

	payload := make([]byte, n*size)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, fmt.Errorf("short frame payload: %v", err)
	}

	f.Data = make([]float64, n)
	switch tag {
	case TypeUint8:
		for i := 0; i < n; i++ {
			f.Data[i] = float64(payload[i])
		}
	case TypeInt16:
		for i := 0; i < n; i++ {
			f.Data[i] = float64(int16(binary.LittleEndian.Uint16(payload[i*2:])))
		}
	case TypeUInt16:
		for i := 0; i < n; i++ {
			f.Data[i] = float64(binary.LittleEndian.Uint16(payload[i*2:]))
		}
	case TypeFloat32:
		for i := 0; i < n; i++ {
			f.Data[i] = float64(math.Float32frombits(binary.LittleEndian.Uint32(payload[i*4:])))
		}
	case TypeFloat64:
		for i := 0; i < n; i++ {
			f.Data[i] = math.Float64frombits(binary.LittleEndian.Uint64(payload[i*8:]))
		}
	}
	return f, nil
}
