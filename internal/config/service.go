// Package config loads the service configuration. All fields are optional
// in the JSON file; the Get* accessors fall back to built-in defaults so a
// partial config is always safe.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rakuri2026/forest-management-sub001/internal/sampling"
	"github.com/rakuri2026/forest-management-sub001/internal/treegrid"
)

// ServiceConfig is the root configuration of the forest service. The schema
// matches the /api/config endpoint so the same JSON works for startup
// configuration and for inspecting a running instance.
type ServiceConfig struct {
	// HTTP server params
	ListenAddr      *string `json:"listen_addr,omitempty"`
	ShutdownTimeout *string `json:"shutdown_timeout,omitempty"` // duration string like "5s"

	// Storage params
	DBPath *string `json:"db_path,omitempty"`

	// Sampling params
	CircleVertices        *int `json:"circle_vertices,omitempty"`
	RandomRetryMultiplier *int `json:"random_retry_multiplier,omitempty"`

	// Competition params
	GridSpacingM          *float64 `json:"grid_spacing_m,omitempty"`
	SeedlingMaxDiameterCM *float64 `json:"seedling_max_diameter_cm,omitempty"`

	// Chart params
	ChartAssetsHost *string `json:"chart_assets_host,omitempty"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyServiceConfig returns a ServiceConfig with all fields set to nil.
func EmptyServiceConfig() *ServiceConfig {
	return &ServiceConfig{}
}

// Load reads a ServiceConfig from a JSON file. The file must carry a .json
// extension and stay under the size cap; omitted fields keep their
// defaults.
func Load(path string) (*ServiceConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyServiceConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks the configuration values that are set.
func (c *ServiceConfig) Validate() error {
	if c.CircleVertices != nil && *c.CircleVertices < sampling.MinCircleVertices {
		return fmt.Errorf("circle_vertices must be at least %d, got %d", sampling.MinCircleVertices, *c.CircleVertices)
	}
	if c.RandomRetryMultiplier != nil && *c.RandomRetryMultiplier < 1 {
		return fmt.Errorf("random_retry_multiplier must be at least 1, got %d", *c.RandomRetryMultiplier)
	}
	if c.GridSpacingM != nil && *c.GridSpacingM <= 0 {
		return fmt.Errorf("grid_spacing_m must be positive, got %g", *c.GridSpacingM)
	}
	if c.SeedlingMaxDiameterCM != nil && *c.SeedlingMaxDiameterCM < 0 {
		return fmt.Errorf("seedling_max_diameter_cm must be non-negative, got %g", *c.SeedlingMaxDiameterCM)
	}
	if c.ShutdownTimeout != nil && *c.ShutdownTimeout != "" {
		if _, err := time.ParseDuration(*c.ShutdownTimeout); err != nil {
			return fmt.Errorf("invalid shutdown_timeout '%s': %w", *c.ShutdownTimeout, err)
		}
	}
	return nil
}

// GetListenAddr returns the listen address or the default.
func (c *ServiceConfig) GetListenAddr() string {
	if c.ListenAddr == nil || *c.ListenAddr == "" {
		return ":8080"
	}
	return *c.ListenAddr
}

// GetShutdownTimeout parses and returns the ShutdownTimeout as a duration.
func (c *ServiceConfig) GetShutdownTimeout() time.Duration {
	if c.ShutdownTimeout == nil || *c.ShutdownTimeout == "" {
		return 5 * time.Second
	}
	d, err := time.ParseDuration(*c.ShutdownTimeout)
	if err != nil {
		return 5 * time.Second
	}
	return d
}

// GetDBPath returns the SQLite database path or the default.
func (c *ServiceConfig) GetDBPath() string {
	if c.DBPath == nil || *c.DBPath == "" {
		return "forest.db"
	}
	return *c.DBPath
}

// GetCircleVertices returns the circular plot polygonisation or the default.
func (c *ServiceConfig) GetCircleVertices() int {
	if c.CircleVertices == nil {
		return sampling.DefaultCircleVertices
	}
	return *c.CircleVertices
}

// GetRandomRetryMultiplier returns the rejection sampling budget multiplier
// or the default.
func (c *ServiceConfig) GetRandomRetryMultiplier() int {
	if c.RandomRetryMultiplier == nil {
		return sampling.DefaultRetryMultiplier
	}
	return *c.RandomRetryMultiplier
}

// GetGridSpacingM returns the competition cell edge length or the default.
func (c *ServiceConfig) GetGridSpacingM() float64 {
	if c.GridSpacingM == nil {
		return treegrid.DefaultSpacingM
	}
	return *c.GridSpacingM
}

// GetSeedlingMaxDiameterCM returns the seedling diameter cut or the default.
func (c *ServiceConfig) GetSeedlingMaxDiameterCM() float64 {
	if c.SeedlingMaxDiameterCM == nil {
		return treegrid.DefaultSeedlingMaxDiameterCM
	}
	return *c.SeedlingMaxDiameterCM
}

// GetChartAssetsHost returns the echarts assets host or the default CDN.
func (c *ServiceConfig) GetChartAssetsHost() string {
	if c.ChartAssetsHost == nil || *c.ChartAssetsHost == "" {
		return "https://go-echarts.github.io/go-echarts-assets/assets/"
	}
	return *c.ChartAssetsHost
}
