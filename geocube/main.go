package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nci/geocube/bridge"
	"github.com/nci/geocube/catalog"
	"github.com/nci/geocube/cube"
	"github.com/nci/geocube/cubeview"
	"github.com/nci/geocube/driver"
	"github.com/nci/geocube/metrics"
	"github.com/nci/geocube/scheduler"
	"github.com/nci/geocube/sink"
	"github.com/nci/geocube/utils"
)

var (
	configFile = flag.String("config", "", "service config file (JSON)")
	recipeFile = flag.String("recipe", "", "recipe file (YAML)")
	outFile    = flag.String("out", "", "output NetCDF file, overrides the recipe's output")
	threads    = flag.Int("threads", 0, "worker threads, overrides the service config")
	keepGoing  = flag.Bool("keep_going", false, "record failed chunks as missing instead of aborting")
	verbose    = flag.Bool("verbose", false, "verbose logging")
)

type evaluation struct {
	root    cube.Node
	out     string
	pools   []*bridge.Pool
	indexes []catalog.Index
}

func main() {
	flag.Parse()

	if *recipeFile == "" {
		log.Fatal("usage: geocube -recipe recipe.yaml [-config config.json] [-out out.nc]")
	}

	var config utils.Config
	if *configFile != "" {
		if err := config.LoadConfigFile(*configFile); err != nil {
			log.Fatal(err)
		}
	}
	svc := config.ServiceConfig

	var recipe utils.Recipe
	if err := recipe.LoadRecipeFile(*recipeFile); err != nil {
		log.Fatal(err)
	}

	ev, err := buildEvaluation(&recipe, &svc)
	if err != nil {
		log.Fatal(err)
	}
	defer ev.close()

	out := ev.out
	if *outFile != "" {
		out = *outFile
	}
	if out == "" {
		log.Fatal("no output file: set -out or the recipe's output field")
	}

	nThreads := svc.Threads
	if *threads > 0 {
		nThreads = *threads
	}

	var logger metrics.Logger
	if svc.LogDir != "" {
		logger = metrics.NewFileLogger(svc.LogDir, svc.MaxLogFileSize, svc.MaxLogFiles, *verbose)
	} else {
		logger = metrics.NewStdoutLogger()
	}

	ncSink, err := sink.NewNetCDF(out, ev.root, cube.NoDataNaN)
	if err != nil {
		log.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigs
		log.Printf("caught signal, cancelling evaluation")
		cancel()
	}()

	start := time.Now()
	res, err := scheduler.Evaluate(ctx, ev.root, ncSink, scheduler.Config{
		Threads:         nThreads,
		ContinueOnError: *keepGoing,
		Verbose:         *verbose,
		Metrics:         logger,
	})
	if err != nil {
		ncSink.Close()
		os.Remove(out)
		log.Fatal(err)
	}
	if err := ncSink.Close(); err != nil {
		log.Fatal(err)
	}

	log.Printf("%s: %d/%d chunks in %v", out, res.Computed, res.NumChunks, time.Since(start))
	for _, coord := range res.Missing {
		log.Printf("missing chunk %v", coord)
	}
}

func buildEvaluation(recipe *utils.Recipe, svc *utils.ServiceConfig) (*evaluation, error) {
	view, err := cubeview.NewView(recipe.View)
	if err != nil {
		return nil, err
	}

	if svc.CatalogDSN == "" {
		return nil, fmt.Errorf("no catalog: set catalog_dsn in the service config")
	}

	pool := driver.NewPool(svc.HandlePoolSize)
	ev := &evaluation{out: recipe.Output}

	var inputs []cube.Node
	for _, in := range recipe.Inputs {
		idx, err := openIndex(svc, in.Collection)
		if err != nil {
			ev.close()
			return nil, err
		}
		ev.indexes = append(ev.indexes, idx)

		var node cube.Node
		node, err = cube.NewSource(idx, view, in.Bands, cube.WithHandlePool(pool))
		if err != nil {
			ev.close()
			return nil, err
		}
		for _, op := range in.Ops {
			if node, err = ev.applyOp(svc, node, op); err != nil {
				ev.close()
				return nil, err
			}
		}
		inputs = append(inputs, node)
	}

	root := inputs[0]
	if len(inputs) > 1 {
		if root, err = cube.NewJoinBands(inputs...); err != nil {
			ev.close()
			return nil, err
		}
	}
	for _, op := range recipe.Ops {
		if root, err = ev.applyOp(svc, root, op); err != nil {
			ev.close()
			return nil, err
		}
	}

	ev.root = root
	return ev, nil
}

func openIndex(svc *utils.ServiceConfig, collection string) (catalog.Index, error) {
	idx, err := catalog.NewPGIndex(catalog.PGConfig{
		DSN:        svc.CatalogDSN,
		Collection: collection,
	})
	if err != nil {
		return nil, err
	}
	if svc.Memcache != "" {
		return catalog.NewCachedIndex(idx, svc.Memcache), nil
	}
	return idx, nil
}

func (ev *evaluation) applyOp(svc *utils.ServiceConfig, node cube.Node, op utils.OpRecipe) (cube.Node, error) {
	switch op.Op {
	case "select_bands":
		return cube.NewSelectBands(node, op.Bands)
	case "apply_pixel":
		return cube.NewApplyPixel([]cube.Node{node}, op.Expressions)
	case "reduce":
		return cube.NewReduce(node, op.Reducer)
	case "apply_chunk":
		opts := []cube.ApplyChunkOption{}
		if len(op.OutputBands) > 0 {
			opts = append(opts, cube.WithOutputBands(op.OutputBands))
		}
		if op.TimeoutSecs > 0 {
			opts = append(opts, cube.WithTimeout(time.Duration(op.TimeoutSecs)*time.Second))
		}
		if svc.WorkerPoolSize > 0 {
			pool, err := bridge.NewPool(svc.WorkerPoolSize, op.Command, nil)
			if err != nil {
				return nil, err
			}
			ev.pools = append(ev.pools, pool)
			opts = append(opts, cube.WithWorkerPool(pool))
		}
		return cube.NewApplyChunk(node, op.Command, opts...)
	default:
		return nil, fmt.Errorf("unknown recipe op %q", op.Op)
	}
}

func (ev *evaluation) close() {
	for _, pool := range ev.pools {
		pool.Close()
	}
	for _, idx := range ev.indexes {
		idx.Close()
	}
}
