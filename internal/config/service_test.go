package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestEmptyConfigDefaults(t *testing.T) {
	cfg := EmptyServiceConfig()

	if cfg.GetListenAddr() != ":8080" {
		t.Errorf("GetListenAddr() = %q, want :8080", cfg.GetListenAddr())
	}
	if cfg.GetDBPath() != "forest.db" {
		t.Errorf("GetDBPath() = %q, want forest.db", cfg.GetDBPath())
	}
	if cfg.GetCircleVertices() != 48 {
		t.Errorf("GetCircleVertices() = %d, want 48", cfg.GetCircleVertices())
	}
	if cfg.GetRandomRetryMultiplier() != 50 {
		t.Errorf("GetRandomRetryMultiplier() = %d, want 50", cfg.GetRandomRetryMultiplier())
	}
	if cfg.GetGridSpacingM() != 10 {
		t.Errorf("GetGridSpacingM() = %g, want 10", cfg.GetGridSpacingM())
	}
	if cfg.GetSeedlingMaxDiameterCM() != 7 {
		t.Errorf("GetSeedlingMaxDiameterCM() = %g, want 7", cfg.GetSeedlingMaxDiameterCM())
	}
	if cfg.GetShutdownTimeout() != 5*time.Second {
		t.Errorf("GetShutdownTimeout() = %v, want 5s", cfg.GetShutdownTimeout())
	}
	if !strings.Contains(cfg.GetChartAssetsHost(), "go-echarts") {
		t.Errorf("GetChartAssetsHost() = %q", cfg.GetChartAssetsHost())
	}
}

func TestLoadConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "service.json")

	testJSON := `{
  "listen_addr": ":9090",
  "db_path": "/tmp/test-forest.db",
  "circle_vertices": 64,
  "random_retry_multiplier": 25,
  "grid_spacing_m": 12.5,
  "seedling_max_diameter_cm": 5.0,
  "shutdown_timeout": "10s"
}`
	if err := os.WriteFile(configPath, []byte(testJSON), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.GetListenAddr() != ":9090" {
		t.Errorf("GetListenAddr() = %q, want :9090", cfg.GetListenAddr())
	}
	if cfg.GetDBPath() != "/tmp/test-forest.db" {
		t.Errorf("GetDBPath() = %q", cfg.GetDBPath())
	}
	if cfg.GetCircleVertices() != 64 {
		t.Errorf("GetCircleVertices() = %d, want 64", cfg.GetCircleVertices())
	}
	if cfg.GetRandomRetryMultiplier() != 25 {
		t.Errorf("GetRandomRetryMultiplier() = %d, want 25", cfg.GetRandomRetryMultiplier())
	}
	if cfg.GetGridSpacingM() != 12.5 {
		t.Errorf("GetGridSpacingM() = %g, want 12.5", cfg.GetGridSpacingM())
	}
	if cfg.GetSeedlingMaxDiameterCM() != 5 {
		t.Errorf("GetSeedlingMaxDiameterCM() = %g, want 5", cfg.GetSeedlingMaxDiameterCM())
	}
	if cfg.GetShutdownTimeout() != 10*time.Second {
		t.Errorf("GetShutdownTimeout() = %v, want 10s", cfg.GetShutdownTimeout())
	}
}

func TestLoadConfig_PartialKeepsDefaults(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "partial.json")
	if err := os.WriteFile(configPath, []byte(`{"listen_addr": ":7070"}`), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.GetListenAddr() != ":7070" {
		t.Errorf("GetListenAddr() = %q, want :7070", cfg.GetListenAddr())
	}
	if cfg.GetGridSpacingM() != 10 || cfg.GetCircleVertices() != 48 {
		t.Errorf("omitted fields lost their defaults: %+v", cfg)
	}
}

func TestLoadConfig_Rejections(t *testing.T) {
	tmpDir := t.TempDir()

	// Wrong extension.
	badExt := filepath.Join(tmpDir, "config.yaml")
	os.WriteFile(badExt, []byte(`{}`), 0644)
	if _, err := Load(badExt); err == nil || !strings.Contains(err.Error(), ".json extension") {
		t.Errorf("Load(yaml) error = %v", err)
	}

	// Missing file.
	if _, err := Load(filepath.Join(tmpDir, "missing.json")); err == nil {
		t.Error("Load(missing) succeeded")
	}

	// Malformed JSON.
	badJSON := filepath.Join(tmpDir, "bad.json")
	os.WriteFile(badJSON, []byte(`{listen`), 0644)
	if _, err := Load(badJSON); err == nil {
		t.Error("Load(malformed) succeeded")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		cfg  ServiceConfig
		ok   bool
	}{
		{"empty", ServiceConfig{}, true},
		{"vertices below minimum", ServiceConfig{CircleVertices: ptrInt(16)}, false},
		{"vertices at minimum", ServiceConfig{CircleVertices: ptrInt(32)}, true},
		{"zero retry multiplier", ServiceConfig{RandomRetryMultiplier: ptrInt(0)}, false},
		{"negative spacing", ServiceConfig{GridSpacingM: ptrFloat64(-2)}, false},
		{"negative seedling cut", ServiceConfig{SeedlingMaxDiameterCM: ptrFloat64(-1)}, false},
		{"bad shutdown timeout", ServiceConfig{ShutdownTimeout: ptrString("soon")}, false},
		{"good shutdown timeout", ServiceConfig{ShutdownTimeout: ptrString("30s")}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.ok && err != nil {
				t.Errorf("Validate() = %v, want nil", err)
			}
			if !tt.ok && err == nil {
				t.Error("Validate() accepted an invalid config")
			}
		})
	}
}
