package sink

import (
	"fmt"
	"sync"

	"github.com/nci/geocube/cube"
	"github.com/nci/geocube/cubeview"
)

// Memory collects chunks in a map, mainly for tests and in-process
// consumers.
type Memory struct {
	mu     sync.Mutex
	chunks map[cubeview.Coord]*cube.ChunkBuffer
	closed bool
}

func NewMemory() *Memory {
	return &Memory{chunks: make(map[cubeview.Coord]*cube.ChunkBuffer)}
}

func (s *Memory) Write(coord cubeview.Coord, buf *cube.ChunkBuffer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("memory sink: write after close")
	}
	if _, ok := s.chunks[coord]; ok {
		return fmt.Errorf("memory sink: duplicate chunk %v", coord)
	}
	s.chunks[coord] = buf
	return nil
}

// Chunk returns the buffer stored for coord, or nil.
func (s *Memory) Chunk(coord cubeview.Coord) *cube.ChunkBuffer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.chunks[coord]
}

func (s *Memory) NumChunks() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.chunks)
}

func (s *Memory) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
