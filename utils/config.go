package utils

import (
	"encoding/json"
	"fmt"
	"io/ioutil"

	"gopkg.in/yaml.v2"

	"github.com/nci/geocube/cube"
	"github.com/nci/geocube/cubeview"
)

// ServiceConfig holds the deployment-level settings: where the catalog
// lives and how much parallelism the process may use.
type ServiceConfig struct {
	CatalogDSN     string `json:"catalog_dsn"`
	Memcache       string `json:"memcache"`
	HandlePoolSize int    `json:"handle_pool_size"`
	WorkerPoolSize int    `json:"worker_pool_size"`
	Threads        int    `json:"threads"`
	LogDir         string `json:"log_dir"`
	MaxLogFileSize int64  `json:"max_log_file_size"`
	MaxLogFiles    int    `json:"max_log_files"`
}

type Config struct {
	ServiceConfig ServiceConfig `json:"service_config"`
}

func (config *Config) LoadConfigFile(configFile string) error {
	*config = Config{}
	cfg, err := ioutil.ReadFile(configFile)
	if err != nil {
		return fmt.Errorf("Error while reading config file: %s. Error: %v", configFile, err)
	}

	err = json.Unmarshal(cfg, config)
	if err != nil {
		return fmt.Errorf("Error at JSON parsing config document: %s. Error: %v", configFile, err)
	}
	return nil
}

// OpRecipe is one step in a recipe chain. Op selects which fields apply:
// select_bands (bands), apply_pixel (expressions), reduce (reducer),
// apply_chunk (command, output_bands, timeout_secs).
type OpRecipe struct {
	Op          string      `yaml:"op"`
	Bands       []string    `yaml:"bands"`
	Expressions []cube.Expr `yaml:"expressions"`
	Reducer     string      `yaml:"reducer"`
	Command     []string    `yaml:"command"`
	OutputBands []string    `yaml:"output_bands"`
	TimeoutSecs int         `yaml:"timeout_secs"`
}

// InputRecipe is one source chain. Multiple inputs are joined band-wise
// before the recipe's top-level ops run.
type InputRecipe struct {
	Collection string     `yaml:"collection"`
	Bands      []string   `yaml:"bands"`
	Ops        []OpRecipe `yaml:"ops"`
}

// Recipe is the YAML description of a cube evaluation: the view, one or
// more source chains and a final op chain.
type Recipe struct {
	View   cubeview.Config `yaml:"view"`
	Inputs []InputRecipe   `yaml:"inputs"`
	Ops    []OpRecipe      `yaml:"ops"`
	Output string          `yaml:"output"`
}

func (recipe *Recipe) LoadRecipeFile(recipeFile string) error {
	*recipe = Recipe{}
	data, err := ioutil.ReadFile(recipeFile)
	if err != nil {
		return fmt.Errorf("Error while reading recipe file: %s. Error: %v", recipeFile, err)
	}

	err = yaml.Unmarshal(data, recipe)
	if err != nil {
		return fmt.Errorf("Error at YAML parsing recipe document: %s. Error: %v", recipeFile, err)
	}
	if len(recipe.Inputs) == 0 {
		return fmt.Errorf("Recipe %s declares no inputs", recipeFile)
	}
	return nil
}
