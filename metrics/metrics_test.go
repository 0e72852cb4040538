package metrics

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestCollector(t *testing.T) {
	c := NewMetricsCollector(nil)
	c.Verbose = true
	c.Info.NumChunks = 3

	c.AddChunk(&ChunkInfo{Coord: "(0,0,0)", Node: "source", Duration: time.Millisecond})
	c.AddChunk(&ChunkInfo{Coord: "(0,0,1)", Node: "source", Error: "boom"})
	c.AddChunk(&ChunkInfo{Coord: "(0,1,0)", Node: "source"})

	if c.Info.NumComputed != 2 {
		t.Errorf("NumComputed = %d, want 2", c.Info.NumComputed)
	}
	if c.Info.NumMissing != 1 {
		t.Errorf("NumMissing = %d, want 1", c.Info.NumMissing)
	}
	if len(c.Info.Chunks) != 3 {
		t.Errorf("verbose collector kept %d chunk records, want 3", len(c.Info.Chunks))
	}

	c.Log() // nil logger is a no-op
}

func TestQuietCollectorDropsChunkRecords(t *testing.T) {
	c := NewMetricsCollector(nil)
	c.AddChunk(&ChunkInfo{Coord: "(0,0,0)"})
	if len(c.Info.Chunks) != 0 {
		t.Errorf("quiet collector kept %d chunk records", len(c.Info.Chunks))
	}
}

func TestToJSON(t *testing.T) {
	info := &MetricsInfo{
		StartTime: "2020-01-01T00:00:00.000Z",
		Node:      "reduce_median",
		Threads:   4,
		NumChunks: 8,
	}
	s, err := info.ToJSON()
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasSuffix(s, "\n") {
		t.Error("ToJSON output is not newline terminated")
	}

	var round MetricsInfo
	if err := json.Unmarshal([]byte(s), &round); err != nil {
		t.Fatal(err)
	}
	if round.Node != "reduce_median" || round.Threads != 4 {
		t.Errorf("round trip lost fields: %+v", round)
	}
}
