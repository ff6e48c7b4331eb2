// Package config loads and merges the YAML configuration documents of
// spec §6: multiple config paths are read in order, later files merge
// recursively into earlier ones (maps merge key-by-key, lists
// concatenate, scalars overwrite), and CLI overrides layer on top as a
// final synthetic document.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"

	"github.com/bcdev/nc2zarr/nzerr"
)

type RetryConfig struct {
	Tries    int     `yaml:"tries"`
	Delay    float64 `yaml:"delay"`
	Backoff  float64 `yaml:"backoff"`
	MaxDelay float64 `yaml:"max_delay"`
	Jitter   float64 `yaml:"jitter"`
}

type S3Config struct {
	Key         string `yaml:"key"`
	Secret      string `yaml:"secret"`
	EndpointURL string `yaml:"endpoint_url"`
	RegionName  string `yaml:"region_name"`
}

type InputConfig struct {
	Paths              []string `yaml:"paths"`
	MultiFile          bool     `yaml:"multi_file"`
	ConcatDim          string   `yaml:"concat_dim"`
	Engine             string   `yaml:"engine"`
	DecodeCF           bool     `yaml:"decode_cf"`
	SortBy             string   `yaml:"sort_by"`
	Variables          []string `yaml:"variables"`
	DatetimeFormat     string   `yaml:"datetime_format"`
	CustomPreprocessor string   `yaml:"custom_preprocessor"`
	PrefetchChunks     bool     `yaml:"prefetch_chunks"`
}

type ProcessConfig struct {
	Rename          map[string]string      `yaml:"rename"`
	Rechunk         map[string]interface{} `yaml:"rechunk"`
	CustomProcessor string                  `yaml:"custom_processor"`
}

type OutputConfig struct {
	Path                string                             `yaml:"path"`
	Overwrite           bool                                `yaml:"overwrite"`
	Append              bool                                `yaml:"append"`
	AppendDim           string                              `yaml:"append_dim"`
	AppendMode          string                              `yaml:"append_mode"`
	AdjustMetadata      bool                                `yaml:"adjust_metadata"`
	Metadata            map[string]interface{}              `yaml:"metadata"`
	Encoding            map[string]map[string]interface{}   `yaml:"encoding"`
	Consolidated        bool                                `yaml:"consolidated"`
	CustomPostprocessor string                              `yaml:"custom_postprocessor"`
	S3                  S3Config                            `yaml:"s3"`
	Retry               RetryConfig                         `yaml:"retry"`
}

// Config is the top-level, recognized configuration document of spec
// §6.
type Config struct {
	Input        InputConfig   `yaml:"input"`
	Process      ProcessConfig `yaml:"process"`
	Output       OutputConfig  `yaml:"output"`
	DryRun       bool          `yaml:"dry_run"`
	Verbosity    int           `yaml:"verbosity"`
	FinalizeOnly bool          `yaml:"finalize_only"`
}

// Load reads each of paths in order, recursively merges them (later
// wins), and decodes the merged document into a Config.
func Load(paths ...string) (*Config, error) {
	var merged map[string]interface{}
	for _, p := range paths {
		raw, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %s", nzerr.ConfigError, p, err)
		}
		var doc map[string]interface{}
		if err := yaml.Unmarshal(raw, &doc); err != nil {
			return nil, fmt.Errorf("%w: %s: %s", nzerr.ConfigError, p, err)
		}
		merged = Merge(merged, normalize(doc).(map[string]interface{}))
	}
	return decode(merged)
}

// Merge recursively merges src into dst (src wins): maps merge
// key-by-key, lists concatenate, scalars overwrite. dst may be nil.
func Merge(dst, src map[string]interface{}) map[string]interface{} {
	if dst == nil {
		dst = map[string]interface{}{}
	}
	for k, sv := range src {
		dv, exists := dst[k]
		if !exists {
			dst[k] = sv
			continue
		}
		switch svt := sv.(type) {
		case map[string]interface{}:
			if dvt, ok := dv.(map[string]interface{}); ok {
				dst[k] = Merge(dvt, svt)
				continue
			}
			dst[k] = svt
		case []interface{}:
			if dvt, ok := dv.([]interface{}); ok {
				dst[k] = append(append([]interface{}{}, dvt...), svt...)
				continue
			}
			dst[k] = svt
		default:
			dst[k] = sv
		}
	}
	return dst
}

// normalize recursively converts yaml.v2's map[interface{}]interface{}
// nodes into map[string]interface{} so Merge can operate uniformly.
func normalize(v interface{}) interface{} {
	switch vv := v.(type) {
	case map[interface{}]interface{}:
		out := map[string]interface{}{}
		for k, val := range vv {
			out[fmt.Sprintf("%v", k)] = normalize(val)
		}
		return out
	case map[string]interface{}:
		out := map[string]interface{}{}
		for k, val := range vv {
			out[k] = normalize(val)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(vv))
		for i, val := range vv {
			out[i] = normalize(val)
		}
		return out
	default:
		return v
	}
}

func decode(merged map[string]interface{}) (*Config, error) {
	raw, err := yaml.Marshal(merged)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", nzerr.ConfigError, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("%w: %s", nzerr.ConfigError, err)
	}
	return &cfg, nil
}

// Overlay builds a synthetic config document from CLI overrides and
// merges it on top of base, per spec §6 ("CLI overrides layer on top
// as a final config").
func Overlay(base *Config, overrides map[string]interface{}) (*Config, error) {
	raw, err := yaml.Marshal(base)
	if err != nil {
		return nil, err
	}
	var doc map[string]interface{}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	merged := Merge(normalize(doc).(map[string]interface{}), normalize(overrides).(map[string]interface{}))
	return decode(merged)
}
