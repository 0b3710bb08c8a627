package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/EthanOConnor/ml-georeferencer/internal/units"
)

// Config represents the root configuration for the georeferencer.
// The schema uses pointer-typed optional fields so that a partial JSON
// file overrides only the values it names; the Get* accessors supply
// defaults for everything else.
type Config struct {
	// Solver params
	RANSACThreshold  *float64 `json:"ransac_threshold,omitempty"`
	RANSACIterations *int     `json:"ransac_iterations,omitempty"`
	DefaultFitMethod *string  `json:"default_fit_method,omitempty"` // "similarity" or "affine"

	// Reporting params
	DefaultUnit *string  `json:"default_unit,omitempty"` // pixels, meters or mapmm
	MapScale    *float64 `json:"map_scale,omitempty"`    // scale denominator, e.g. 24000 for 1:24k

	// Hosting params
	DBPath         *string `json:"db_path,omitempty"`
	ListenAddr     *string `json:"listen_addr,omitempty"`
	GRPCListenAddr *string `json:"grpc_listen_addr,omitempty"`

	// Output params
	ChartDir   *string  `json:"chart_dir,omitempty"`
	ExportDirs []string `json:"export_dirs,omitempty"` // extra directories exports may write to
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyConfig returns a Config with all fields set to nil.
// Every accessor falls back to its documented default.
func EmptyConfig() *Config {
	return &Config{}
}

// DefaultConfig returns a Config with every field explicitly set to its
// default value. Useful as a starting point for writing a config file.
func DefaultConfig() *Config {
	return &Config{
		RANSACThreshold:  ptrFloat64(3.0),
		RANSACIterations: ptrInt(200),
		DefaultFitMethod: ptrString("similarity"),
		DefaultUnit:      ptrString(units.Pixels),
		DBPath:           ptrString("georef.db"),
		ListenAddr:       ptrString(":8080"),
		GRPCListenAddr:   ptrString(":50051"),
		ChartDir:         ptrString("charts"),
	}
}

// LoadConfig loads a Config from a JSON file.
// The file is validated to ensure it has a .json extension and is under the max file size.
// Fields omitted from the JSON file retain their default values, so
// partial configs are safe.
func LoadConfig(path string) (*Config, error) {
	// Validate the config file path.
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	// Check file size for safety (max 1MB)
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

	// Parse JSON into empty config. The Get* methods provide fallback
	// defaults for any fields not specified in the JSON.
	cfg := EmptyConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	// Validate the configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that the configuration values are valid.
func (c *Config) Validate() error {
	// Validate RANSACThreshold if set
	if c.RANSACThreshold != nil {
		if *c.RANSACThreshold <= 0 {
			return fmt.Errorf("ransac_threshold must be positive, got %f", *c.RANSACThreshold)
		}
	}

	// Validate RANSACIterations if set
	if c.RANSACIterations != nil {
		if *c.RANSACIterations <= 0 {
			return fmt.Errorf("ransac_iterations must be positive, got %d", *c.RANSACIterations)
		}
	}

	// Validate DefaultFitMethod if set
	if c.DefaultFitMethod != nil && *c.DefaultFitMethod != "" {
		if *c.DefaultFitMethod != "similarity" && *c.DefaultFitMethod != "affine" {
			return fmt.Errorf("default_fit_method must be 'similarity' or 'affine', got %q", *c.DefaultFitMethod)
		}
	}

	// Validate DefaultUnit if set
	if c.DefaultUnit != nil && *c.DefaultUnit != "" {
		if !units.IsValid(*c.DefaultUnit) {
			return fmt.Errorf("default_unit must be one of %s, got %q", units.GetValidUnitsString(), *c.DefaultUnit)
		}
	}

	// Validate MapScale if set
	if c.MapScale != nil {
		if *c.MapScale <= 0 {
			return fmt.Errorf("map_scale must be positive, got %f", *c.MapScale)
		}
	}

	return nil
}

// GetRANSACThreshold returns the ransac_threshold value or the default.
func (c *Config) GetRANSACThreshold() float64 {
	if c.RANSACThreshold == nil {
		return 3.0 // default
	}
	return *c.RANSACThreshold
}

// GetRANSACIterations returns the ransac_iterations value or the default.
func (c *Config) GetRANSACIterations() int {
	if c.RANSACIterations == nil {
		return 200 // default
	}
	return *c.RANSACIterations
}

// GetDefaultFitMethod returns the default_fit_method value or the default.
func (c *Config) GetDefaultFitMethod() string {
	if c.DefaultFitMethod == nil || *c.DefaultFitMethod == "" {
		return "similarity"
	}
	return *c.DefaultFitMethod
}

// GetDefaultUnit returns the default_unit value or the default.
func (c *Config) GetDefaultUnit() string {
	if c.DefaultUnit == nil || *c.DefaultUnit == "" {
		return units.Pixels
	}
	return *c.DefaultUnit
}

// GetMapScale returns the map_scale value, or 0 when no scale is configured.
func (c *Config) GetMapScale() float64 {
	if c.MapScale == nil {
		return 0 // unknown scale
	}
	return *c.MapScale
}

// GetDBPath returns the db_path value or the default.
func (c *Config) GetDBPath() string {
	if c.DBPath == nil || *c.DBPath == "" {
		return "georef.db"
	}
	return *c.DBPath
}

// GetListenAddr returns the listen_addr value or the default.
func (c *Config) GetListenAddr() string {
	if c.ListenAddr == nil || *c.ListenAddr == "" {
		return ":8080"
	}
	return *c.ListenAddr
}

// GetGRPCListenAddr returns the grpc_listen_addr value or the default.
func (c *Config) GetGRPCListenAddr() string {
	if c.GRPCListenAddr == nil || *c.GRPCListenAddr == "" {
		return ":50051"
	}
	return *c.GRPCListenAddr
}

// GetChartDir returns the chart_dir value or the default.
func (c *Config) GetChartDir() string {
	if c.ChartDir == nil || *c.ChartDir == "" {
		return "charts"
	}
	return *c.ChartDir
}

// GetExportDirs returns the configured export directories, or nil when
// exports are limited to the temp and working directories.
func (c *Config) GetExportDirs() []string {
	return c.ExportDirs
}
