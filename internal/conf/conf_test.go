// Copyright SAP SE
// SPDX-License-Identifier: Apache-2.0

package conf

import (
	"os"
	"path/filepath"
	"testing"
)

func createTempConfigFile(t *testing.T, content string) string {
	tmpDir := t.TempDir()
	tmpfile, err := os.CreateTemp(tmpDir, "json")
	if err != nil {
		t.Fatal(err)
	}

	if _, err := tmpfile.Write([]byte(content)); err != nil {
		t.Fatal(err)
	}
	if err := tmpfile.Close(); err != nil {
		t.Fatal(err)
	}

	return tmpfile.Name()
}

func TestGetConfigOrDie(t *testing.T) {
	content := `
{
  "simulation": {
    "overloadThreshold": 0.9,
    "selectionStrategy": "lowest-price",
    "disableMigrations": true
  },
  "logging": {
    "level": "debug",
    "format": "text"
  },
  "db": {
    "driver": "postgres",
    "host": "brownout-postgresql",
    "port": 5432,
    "user": "postgres",
    "password": "",
    "database": "postgres"
  },
  "monitoring": {
    "port": 2112,
    "labels": {
      "github_org": "cobaltcore-dev",
      "github_repo": "brownout"
    }
  }
}`
	secrets := `{"db": {"password": "secret"}}`
	confPath := createTempConfigFile(t, content)
	secretsPath := createTempConfigFile(t, secrets)

	config := GetConfigOrDie(DefaultConfig(), confPath, secretsPath)

	if config.OverloadThreshold != 0.9 {
		t.Errorf("expected threshold 0.9, got %v", config.OverloadThreshold)
	}
	if config.SelectionStrategy != "lowest-price" {
		t.Errorf("expected lowest-price, got %s", config.SelectionStrategy)
	}
	if !config.DisableMigrations {
		t.Error("expected migrations to be disabled")
	}
	// Values not given in the file keep their defaults.
	if config.SchedulingInterval != 300 {
		t.Errorf("expected default scheduling interval, got %v", config.SchedulingInterval)
	}
	if config.BandwidthConversion != 8000 {
		t.Errorf("expected default bandwidth conversion, got %v", config.BandwidthConversion)
	}
	if config.DBConfig.Password != "secret" {
		t.Errorf("expected password from override, got %q", config.DBConfig.Password)
	}
	if config.DBConfig.Host != "brownout-postgresql" {
		t.Errorf("expected db host to be kept, got %q", config.DBConfig.Host)
	}
	if config.MonitoringConfig.Port != 2112 {
		t.Errorf("expected monitoring port 2112, got %d", config.MonitoringConfig.Port)
	}
	if config.MonitoringConfig.Labels["github_repo"] != "brownout" {
		t.Errorf("expected monitoring labels, got %v", config.MonitoringConfig.Labels)
	}
	if config.LevelStr != "debug" {
		t.Errorf("expected debug level, got %s", config.LevelStr)
	}
}

func TestGetConfigOrDie_MissingOverride(t *testing.T) {
	confPath := createTempConfigFile(t, `{"simulation": {"duration": 600}}`)
	missing := filepath.Join(t.TempDir(), "does-not-exist.json")
	config := GetConfigOrDie(DefaultConfig(), confPath, missing)
	if config.Duration != 600 {
		t.Errorf("expected duration 600, got %v", config.Duration)
	}
}

func TestGetConfigOrDie_MissingConfigPanics(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Errorf("The code did not panic")
		}
	}()
	GetConfigOrDie(DefaultConfig(), filepath.Join(t.TempDir(), "nope.json"), "")
}

func TestMergeMaps(t *testing.T) {
	dst := map[string]any{
		"a": 1,
		"nested": map[string]any{
			"keep":     "x",
			"override": "y",
		},
	}
	src := map[string]any{
		"b":   2,
		"nil": nil,
		"nested": map[string]any{
			"override": "z",
		},
	}
	merged := mergeMaps(dst, src)
	if merged["a"] != 1 || merged["b"] != 2 {
		t.Errorf("unexpected top level values: %v", merged)
	}
	if _, ok := merged["nil"]; ok {
		t.Error("expected nil values to be skipped")
	}
	nested := merged["nested"].(map[string]any)
	if nested["keep"] != "x" || nested["override"] != "z" {
		t.Errorf("unexpected nested values: %v", nested)
	}
	if got := mergeMaps(nil, src); got["b"] != 2 {
		t.Errorf("expected merge into nil map to work, got %v", got)
	}
}

func TestReadRawConfigFromBytes_Invalid(t *testing.T) {
	if _, err := readRawConfigFromBytes([]byte("{not json")); err == nil {
		t.Error("expected error for invalid json")
	}
}
