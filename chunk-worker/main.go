// chunk-worker is the reference external worker. It loops reading chunk
// frames from stdin, applies the op named on the command line and writes a
// result frame to stdout, until stdin reaches EOF.
//
// Ops:
//
//	identity              echo the chunk back unchanged
//	scale OFFSET FACTOR   v*FACTOR + OFFSET per valid sample
//	corrupt-header        reply with a malformed frame (protocol tests)
package main

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"log"
	"math"
	"os"
	"strconv"

	"github.com/nci/geocube/bridge"
)

func main() {
	log.SetOutput(os.Stderr)
	args := os.Args[1:]
	if len(args) == 0 {
		args = []string{"identity"}
	}

	apply, err := makeOp(args)
	if err != nil {
		log.Fatalf("chunk-worker: %v", err)
	}

	in := bufio.NewReader(os.Stdin)
	out := bufio.NewWriter(os.Stdout)
	for {
		frame, err := bridge.ReadFrame(in)
		if err == io.EOF {
			return
		}
		if err != nil {
			log.Fatalf("chunk-worker: reading frame: %v", err)
		}

		if err := apply(out, frame); err != nil {
			log.Fatalf("chunk-worker: %v", err)
		}
		if err := out.Flush(); err != nil {
			log.Fatalf("chunk-worker: writing frame: %v", err)
		}
	}
}

type op func(w io.Writer, f *bridge.Frame) error

func makeOp(args []string) (op, error) {
	switch args[0] {
	case "identity":
		return func(w io.Writer, f *bridge.Frame) error {
			return bridge.WriteFrame(w, f)
		}, nil
	case "scale":
		if len(args) != 3 {
			return nil, fmt.Errorf("usage: chunk-worker scale OFFSET FACTOR")
		}
		offset, err := strconv.ParseFloat(args[1], 64)
		if err != nil {
			return nil, fmt.Errorf("bad offset %q: %v", args[1], err)
		}
		factor, err := strconv.ParseFloat(args[2], 64)
		if err != nil {
			return nil, fmt.Errorf("bad factor %q: %v", args[2], err)
		}
		return func(w io.Writer, f *bridge.Frame) error {
			for i, v := range f.Data {
				if v == f.NoData || (math.IsNaN(v) && math.IsNaN(f.NoData)) {
					continue
				}
				f.Data[i] = v*factor + offset
			}
			return bridge.WriteFrame(w, f)
		}, nil
	case "corrupt-header":
		return corruptHeader, nil
	default:
		return nil, fmt.Errorf("unknown op %q", args[0])
	}
}

// corruptHeader replies with a frame whose declared payload length does not
// match its shape. Hosts must reject it.
func corruptHeader(w io.Writer, f *bridge.Frame) error {
	var hdr [36]byte
	binary.LittleEndian.PutUint64(hdr[0:], 12345)
	binary.LittleEndian.PutUint32(hdr[8:], uint32(f.NBands))
	binary.LittleEndian.PutUint32(hdr[12:], uint32(f.NT))
	binary.LittleEndian.PutUint32(hdr[16:], uint32(f.NY))
	binary.LittleEndian.PutUint32(hdr[20:], uint32(f.NX))
	binary.LittleEndian.PutUint32(hdr[24:], bridge.TypeFloat64)
	binary.LittleEndian.PutUint64(hdr[28:], math.Float64bits(f.NoData))
	_, err := w.Write(hdr[:])
	return err
}
