package metrics

import (
	"bytes"
	"encoding/json"
	"time"
)

// ChunkInfo records the computation of a single chunk.
type ChunkInfo struct {
	Coord    string        `json:"coord"`
	Node     string        `json:"node"`
	Duration time.Duration `json:"duration"`
	Samples  int           `json:"samples"`
	Error    string        `json:"error,omitempty"`
}

type MetricsInfo struct {
	StartTime   string        `json:"start_time"`
	Duration    time.Duration `json:"duration"`
	Node        string        `json:"node"`
	Threads     int           `json:"threads"`
	NumChunks   int           `json:"num_chunks"`
	NumComputed int           `json:"num_computed"`
	NumMissing  int           `json:"num_missing"`
	Chunks      []*ChunkInfo  `json:"chunks,omitempty"`
	Error       string        `json:"error,omitempty"`
}

// MetricsCollector accumulates one evaluation's record and hands it to the
// logger once the run completes. AddChunk is not synchronised; the caller
// serialises access.
type MetricsCollector struct {
	Info    *MetricsInfo
	Verbose bool
	logger  Logger
}

func NewMetricsCollector(logger Logger) *MetricsCollector {
	return &MetricsCollector{
		Info:   &MetricsInfo{},
		logger: logger,
	}
}

func (m *MetricsCollector) AddChunk(info *ChunkInfo) {
	if info.Error == "" {
		m.Info.NumComputed++
	} else {
		m.Info.NumMissing++
	}
	if m.Verbose {
		m.Info.Chunks = append(m.Info.Chunks, info)
	}
}

func (m *MetricsCollector) Log() {
	if m.logger != nil {
		m.logger.Log(m.Info)
	}
}

func (i *MetricsInfo) ToJSON() (string, error) {
	buf := new(bytes.Buffer)
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	err := enc.Encode(i)
	if err == nil {
		return buf.String(), nil
	} else {
		return "", err
	}
}
