package utils

import (
	"io/ioutil"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := ioutil.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadConfigFile(t *testing.T) {
	path := writeFile(t, "config.json", `{
	  "service_config": {
	    "catalog_dsn": "postgres://geocube@localhost/catalog",
	    "memcache": "localhost:11211",
	    "handle_pool_size": 16,
	    "worker_pool_size": 4,
	    "threads": 8,
	    "log_dir": "/var/log/geocube"
	  }
	}`)

	var config Config
	if err := config.LoadConfigFile(path); err != nil {
		t.Fatal(err)
	}
	svc := config.ServiceConfig
	if svc.CatalogDSN != "postgres://geocube@localhost/catalog" {
		t.Errorf("CatalogDSN = %q", svc.CatalogDSN)
	}
	if svc.Threads != 8 || svc.HandlePoolSize != 16 || svc.WorkerPoolSize != 4 {
		t.Errorf("pool sizes not decoded: %+v", svc)
	}

	if err := config.LoadConfigFile(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("missing config file not rejected")
	}
	bad := writeFile(t, "bad.json", "{")
	if err := config.LoadConfigFile(bad); err == nil {
		t.Error("malformed config file not rejected")
	}
}

func TestLoadRecipeFile(t *testing.T) {
	path := writeFile(t, "recipe.yaml", `
view:
  left: 140
  right: 142
  bottom: -34
  top: -32
  width: 256
  height: 256
  projection: "+proj=longlat +datum=WGS84 +no_defs"
  start: "2020-01-01T00:00:00.000Z"
  end: "2020-02-01T00:00:00.000Z"
  step_days: 1
  chunk_t: 4
  chunk_y: 128
  chunk_x: 128
inputs:
  - collection: modis_lst
    bands: [LST_DAY, LST_NIGHT]
    ops:
      - op: apply_pixel
        expressions:
          - name: diurnal_range
            formula: "0.02 * (LST_DAY - LST_NIGHT)"
ops:
  - op: reduce
    reducer: median
  - op: apply_chunk
    command: [chunk-worker, scale, "0", "10"]
    timeout_secs: 60
output: diurnal.nc
`)

	var recipe Recipe
	if err := recipe.LoadRecipeFile(path); err != nil {
		t.Fatal(err)
	}

	if recipe.View.Width != 256 || recipe.View.StepDays != 1 {
		t.Errorf("view not decoded: %+v", recipe.View)
	}
	if len(recipe.Inputs) != 1 {
		t.Fatalf("inputs = %d, want 1", len(recipe.Inputs))
	}
	in := recipe.Inputs[0]
	if in.Collection != "modis_lst" || len(in.Bands) != 2 {
		t.Errorf("input not decoded: %+v", in)
	}
	if len(in.Ops) != 1 || in.Ops[0].Expressions[0].Name != "diurnal_range" {
		t.Errorf("input ops not decoded: %+v", in.Ops)
	}
	if len(recipe.Ops) != 2 || recipe.Ops[0].Reducer != "median" {
		t.Errorf("top-level ops not decoded: %+v", recipe.Ops)
	}
	if len(recipe.Ops[1].Command) != 4 || recipe.Ops[1].TimeoutSecs != 60 {
		t.Errorf("apply_chunk op not decoded: %+v", recipe.Ops[1])
	}
	if recipe.Output != "diurnal.nc" {
		t.Errorf("output = %q", recipe.Output)
	}

	empty := writeFile(t, "empty.yaml", "view: {}\n")
	if err := recipe.LoadRecipeFile(empty); err == nil {
		t.Error("recipe without inputs not rejected")
	}
}
