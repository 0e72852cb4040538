package scheduler

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nci/geocube/cube"
	"github.com/nci/geocube/cubeview"
	"github.com/nci/geocube/metrics"
)

const DefaultThreads = 4

// Sink receives computed chunks. Write is called concurrently and in no
// particular coordinate order.
type Sink interface {
	Write(coord cubeview.Coord, buf *cube.ChunkBuffer) error
	Close() error
}

type Config struct {
	// Threads is the number of worker goroutines. Results are identical
	// for any thread count; each chunk is computed end to end on a
	// single goroutine.
	Threads int

	// ContinueOnError records failed chunks as missing instead of
	// aborting the evaluation.
	ContinueOnError bool

	// Verbose attaches per-chunk records to the metrics output.
	Verbose bool

	Metrics metrics.Logger
}

// Result summarises one evaluation.
type Result struct {
	NumChunks int
	Computed  int
	Missing   []cubeview.Coord
}

// Evaluate pulls every chunk of root through a fixed pool of workers and
// delivers each computed chunk to sink. By default the first failed chunk
// cancels the evaluation; with cfg.ContinueOnError failed chunks are
// skipped and reported in Result.Missing. Evaluate does not close sink.
func Evaluate(ctx context.Context, root cube.Node, sink Sink, cfg Config) (*Result, error) {
	if cfg.Threads <= 0 {
		cfg.Threads = DefaultThreads
	}

	coords := cube.Coords(root)

	collector := metrics.NewMetricsCollector(cfg.Metrics)
	collector.Verbose = cfg.Verbose
	collector.Info.StartTime = time.Now().Format(cubeview.ISOFormat)
	collector.Info.Node = root.Kind()
	collector.Info.Threads = cfg.Threads
	collector.Info.NumChunks = len(coords)
	evalStart := time.Now()

	res := &Result{NumChunks: len(coords)}
	var mu sync.Mutex

	grp, gctx := errgroup.WithContext(ctx)

	coordQueue := make(chan cubeview.Coord, len(coords))
	for _, coord := range coords {
		coordQueue <- coord
	}
	close(coordQueue)

	for i := 0; i < cfg.Threads; i++ {
		grp.Go(func() error {
			for coord := range coordQueue {
				select {
				case <-gctx.Done():
					return gctx.Err()
				default:
				}

				err := evaluateChunk(gctx, root, sink, coord, collector, res, &mu)
				if err == nil {
					continue
				}
				if !cfg.ContinueOnError {
					return err
				}
				log.Printf("scheduler: chunk %v failed, continuing: %v", coord, err)
			}
			return nil
		})
	}

	err := grp.Wait()

	mu.Lock()
	sort.Slice(res.Missing, func(i, j int) bool {
		a, b := res.Missing[i], res.Missing[j]
		if a.T != b.T {
			return a.T < b.T
		}
		if a.Y != b.Y {
			return a.Y < b.Y
		}
		return a.X < b.X
	})
	collector.Info.Duration = time.Since(evalStart)
	if err != nil {
		collector.Info.Error = err.Error()
	}
	mu.Unlock()
	collector.Log()

	if err != nil {
		return res, err
	}
	return res, nil
}

func evaluateChunk(ctx context.Context, root cube.Node, sink Sink, coord cubeview.Coord, collector *metrics.MetricsCollector, res *Result, mu *sync.Mutex) error {
	start := time.Now()
	buf, err := root.Read(ctx, coord)
	if err == nil {
		err = sink.Write(coord, buf)
		if err != nil {
			err = fmt.Errorf("sink write for chunk %v: %v", coord, err)
		}
	} else {
		err = fmt.Errorf("%s chunk %v: %w", root.Kind(), coord, err)
	}

	info := &metrics.ChunkInfo{
		Coord:    coord.String(),
		Node:     root.Kind(),
		Duration: time.Since(start),
	}
	if buf != nil {
		info.Samples = len(buf.Data.Elements)
	}
	if err != nil {
		info.Error = err.Error()
	}

	mu.Lock()
	collector.AddChunk(info)
	if err != nil {
		res.Missing = append(res.Missing, coord)
	} else {
		res.Computed++
	}
	mu.Unlock()

	return err
}
