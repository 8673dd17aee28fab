// Package config handles configuration loading for the heatmap server.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config represents the server configuration.
type Config struct {
	Server ServerConfig `yaml:"server"`
	Data   DataConfig   `yaml:"data"`
	Cache  CacheConfig  `yaml:"cache"`
	Render RenderConfig `yaml:"render"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port        int      `yaml:"port"`
	CORSOrigins []string `yaml:"cors_origins"`
	Title       string   `yaml:"title"`
}

// DatasetConfig locates one dataset's three stage tables.
type DatasetConfig struct {
	L1File    string `yaml:"l1_file"`
	L4File    string `yaml:"l4_file"`
	D1File    string `yaml:"d1_file"`
	Separator string `yaml:"separator"`
}

// DataConfig contains data source settings. Two YAML layouts are accepted:
// the legacy form with l1_file/l4_file/d1_file directly under data:, and the
// multi-dataset form mapping dataset IDs to per-dataset entries. The first
// dataset in YAML order becomes the default.
type DataConfig struct {
	DefaultDataset string
	Datasets       map[string]DatasetConfig
	order          []string
}

// CacheConfig contains caching settings.
type CacheConfig struct {
	ImageSizeMB     int `yaml:"image_size_mb"`
	TTLMinutes      int `yaml:"ttl_minutes"`
	ResultCacheSize int `yaml:"result_cache_size"`
}

// RenderConfig contains rendering settings.
type RenderConfig struct {
	CellSize int  `yaml:"cell_size"`
	Legend   bool `yaml:"legend"`
	MaxRows  int  `yaml:"max_rows"`
	MaxCols  int  `yaml:"max_cols"`
}

// legacyDataKeys are the field names of the single-dataset layout.
var legacyDataKeys = map[string]bool{
	"l1_file":   true,
	"l4_file":   true,
	"d1_file":   true,
	"separator": true,
}

// UnmarshalYAML decodes either data layout, preserving dataset order.
func (d *DataConfig) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.MappingNode {
		return fmt.Errorf("data section must be a mapping")
	}

	legacy := false
	for i := 0; i < len(value.Content); i += 2 {
		if legacyDataKeys[value.Content[i].Value] {
			legacy = true
			break
		}
	}

	d.Datasets = make(map[string]DatasetConfig)
	if legacy {
		var ds DatasetConfig
		if err := value.Decode(&ds); err != nil {
			return err
		}
		d.Datasets["default"] = ds
		d.order = []string{"default"}
		d.DefaultDataset = "default"
		return nil
	}

	for i := 0; i < len(value.Content); i += 2 {
		id := value.Content[i].Value
		var ds DatasetConfig
		if err := value.Content[i+1].Decode(&ds); err != nil {
			return fmt.Errorf("dataset %q: %w", id, err)
		}
		d.Datasets[id] = ds
		d.order = append(d.order, id)
	}
	if len(d.order) > 0 {
		d.DefaultDataset = d.order[0]
	}
	return nil
}

// DatasetIDs returns all dataset IDs in config order.
func (d *DataConfig) DatasetIDs() []string {
	return d.order
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		// Return default config if file doesn't exist
		return DefaultConfig(), nil
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	applyDefaults(&cfg)

	return &cfg, nil
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:        8080,
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
			Title:       "Stage Pattern Heatmaps",
		},
		Data: DataConfig{
			DefaultDataset: "default",
			Datasets: map[string]DatasetConfig{
				"default": {
					L1File: "./data/L1CENGEN.csv",
					L4File: "./data/L4CENGEN.csv",
					D1File: "./data/D1CENGEN.csv",
				},
			},
			order: []string{"default"},
		},
		Cache: CacheConfig{
			ImageSizeMB:     128,
			TTLMinutes:      10,
			ResultCacheSize: 256,
		},
		Render: RenderConfig{
			CellSize: 6,
			Legend:   true,
			MaxRows:  2000,
			MaxCols:  2000,
		},
	}
}

func applyDefaults(cfg *Config) {
	defaults := DefaultConfig()

	if cfg.Server.Port == 0 {
		cfg.Server.Port = defaults.Server.Port
	}
	if len(cfg.Server.CORSOrigins) == 0 {
		cfg.Server.CORSOrigins = defaults.Server.CORSOrigins
	}
	if cfg.Server.Title == "" {
		cfg.Server.Title = defaults.Server.Title
	}
	if len(cfg.Data.Datasets) == 0 {
		cfg.Data = defaults.Data
	}
	if cfg.Cache.ImageSizeMB == 0 {
		cfg.Cache.ImageSizeMB = defaults.Cache.ImageSizeMB
	}
	if cfg.Cache.TTLMinutes == 0 {
		cfg.Cache.TTLMinutes = defaults.Cache.TTLMinutes
	}
	if cfg.Cache.ResultCacheSize == 0 {
		cfg.Cache.ResultCacheSize = defaults.Cache.ResultCacheSize
	}
	if cfg.Render.CellSize == 0 {
		cfg.Render.CellSize = defaults.Render.CellSize
	}
	if cfg.Render.MaxRows == 0 {
		cfg.Render.MaxRows = defaults.Render.MaxRows
	}
	if cfg.Render.MaxCols == 0 {
		cfg.Render.MaxCols = defaults.Render.MaxCols
	}
}
