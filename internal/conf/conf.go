// Copyright SAP SE
// SPDX-License-Identifier: Apache-2.0

package conf

import (
	"encoding/json"
	"errors"
	"io"
	"io/fs"
	"os"
)

// Configuration for structured logging.
type LoggingConfig struct {
	// The log level to use (debug, info, warn, error).
	LevelStr string `json:"level"`
	// The log format to use (json, text). If empty, text is used on a
	// terminal and json otherwise.
	Format string `json:"format"`
}

// Database configuration.
type DBConfig struct {
	// The database driver to use (postgres, sqlite).
	Driver   string `json:"driver"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Database string `json:"database"`
	User     string `json:"user"`
	Password string `json:"password"`
	// Path to the database file when using sqlite.
	Path string `json:"path"`
}

// Configuration for the monitoring module.
type MonitoringConfig struct {
	// The labels to add to all metrics.
	Labels map[string]string `json:"labels"`

	// The port to expose the metrics on. Zero disables the metrics server.
	Port int `json:"port"`
}

// Configuration for the results store.
type ResultsConfig struct {
	// Whether run results should be written to the database.
	Enabled bool `json:"enabled"`
	// Human readable name of the run.
	RunName string `json:"runName"`
}

// Configuration of the simulated datacenter.
type SimulationConfig struct {
	// Hosts whose previous utilization exceeds this fraction are overloaded.
	OverloadThreshold float64 `json:"overloadThreshold"`
	// Cloudlet utilization used when disabling components would drop it to zero or below.
	ComponentUtilizationFloor float64 `json:"componentUtilizationFloor"`
	// Simulated time between two ticks.
	SchedulingInterval float64 `json:"schedulingInterval"`
	// Idle host counts are sampled at times t with (t - offset) mod period == 0.
	SamplingPeriod float64 `json:"samplingPeriod"`
	SamplingOffset float64 `json:"samplingOffset"`
	// Conversion constant between host bandwidth and migration transfer rate.
	BandwidthConversion float64 `json:"bandwidthConversion"`
	// If set, the allocation policy is never asked for migrations.
	DisableMigrations bool `json:"disableMigrations"`
	// Name of the optional component selection strategy.
	SelectionStrategy string `json:"selectionStrategy"`
	// Simulated time after which the run stops. Zero runs until quiescence.
	Duration float64 `json:"duration"`
}

// Configuration values used when the config file leaves them out.
func DefaultSimulationConfig() SimulationConfig {
	return SimulationConfig{
		OverloadThreshold:         0.8,
		ComponentUtilizationFloor: 0.001,
		SchedulingInterval:        300,
		SamplingPeriod:            300,
		SamplingOffset:            0.1,
		BandwidthConversion:       8000,
		SelectionStrategy:         "nearest",
		Duration:                  86400,
	}
}

// Configuration for the brownout simulator.
type Config struct {
	SimulationConfig `json:"simulation"`
	LoggingConfig    `json:"logging"`
	DBConfig         `json:"db"`
	MonitoringConfig `json:"monitoring"`
	ResultsConfig    `json:"results"`
}

// Configuration used for values missing in the config files.
func DefaultConfig() Config {
	return Config{SimulationConfig: DefaultSimulationConfig()}
}

// Create a new configuration from a config json file and an optional
// override json file (e.g. holding secrets).
//
// The values read from the override file will override the values in the
// config file. Values missing in both files keep the defaults of C.
func GetConfigOrDie[C any](defaults C, confPath, overridePath string) C {
	// Note: We need to read the config as a raw map first, to avoid golang
	// unmarshalling default values for the fields.
	baseConf, err := readRawConfig(confPath)
	if err != nil {
		panic(err)
	}
	overrideConf := map[string]any{}
	if overridePath != "" {
		overrideConf, err = readRawConfig(overridePath)
		if errors.Is(err, fs.ErrNotExist) {
			overrideConf = map[string]any{}
		} else if err != nil {
			panic(err)
		}
	}
	return newConfigFromMaps(defaults, baseConf, overrideConf)
}

func newConfigFromMaps[C any](defaults C, base, override map[string]any) C {
	// Merge the base config with the override config.
	mergedConf := mergeMaps(base, override)
	// Marshal again, and then unmarshal into the config struct.
	mergedBytes, err := json.Marshal(mergedConf)
	if err != nil {
		panic(err)
	}
	c := defaults
	if err := json.Unmarshal(mergedBytes, &c); err != nil {
		panic(err)
	}
	return c
}

// Read the json as a map from the given file path.
func readRawConfig(filepath string) (map[string]any, error) {
	file, err := os.Open(filepath)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	bytes, err := io.ReadAll(file)
	if err != nil {
		return nil, err
	}
	return readRawConfigFromBytes(bytes)
}

func readRawConfigFromBytes(data []byte) (map[string]any, error) {
	var conf map[string]any
	if err := json.Unmarshal(data, &conf); err != nil {
		return nil, err
	}
	return conf, nil
}

// mergeMaps recursively overrides dst with src (in-place)
func mergeMaps(dst, src map[string]any) map[string]any {
	if dst == nil {
		dst = map[string]any{}
	}
	result := dst
	for k, v := range src {
		if v == nil {
			// If src value is nil, skip override
			continue
		}
		if dstVal, ok := dst[k]; ok {
			// If both are maps, merge recursively
			dstMap, dstIsMap := dstVal.(map[string]any)
			srcMap, srcIsMap := v.(map[string]any)
			if dstIsMap && srcIsMap {
				result[k] = mergeMaps(dstMap, srcMap)
				continue
			}
		}
		// Otherwise, override
		result[k] = v
	}
	return result
}
