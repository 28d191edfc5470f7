// Package config loads the optional JSON settings of the datdump replay tool.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/banshee-data/cardash/internal/obd"
	"github.com/banshee-data/cardash/internal/units"
)

// ChartConfig controls plots, charts and exports. Every field is optional;
// the Get* methods supply defaults for fields left out of the file.
type ChartConfig struct {
	// PIDs names the parameters to plot ("rpm", "speed" or a hex address).
	PIDs []string `json:"pids,omitempty"`

	Title    *string `json:"title,omitempty"`
	Units    *string `json:"units,omitempty"`    // speed units, see units.ValidUnits
	Timezone *string `json:"timezone,omitempty"` // for GPS time stamps; "Local" or a tz name

	// Image size of PNG plots in centimetres.
	WidthCm  *float64 `json:"width_cm,omitempty"`
	HeightCm *float64 `json:"height_cm,omitempty"`

	// Bucket averages samples over this duration before plotting, e.g. "1s".
	// Empty plots every sample.
	Bucket *string `json:"bucket,omitempty"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrString(v string) *string    { return &v }

// DefaultChartConfig returns a config with every field set to its default.
func DefaultChartConfig() *ChartConfig {
	return &ChartConfig{
		PIDs:     []string{"rpm", "speed", "throt", "ectemp"},
		Title:    ptrString("cardash"),
		Units:    ptrString(units.KMPH),
		Timezone: ptrString("Local"),
		WidthCm:  ptrFloat64(24),
		HeightCm: ptrFloat64(12),
		Bucket:   ptrString(""),
	}
}

// LoadChartConfig loads a ChartConfig from a JSON file.
// The file is validated to ensure it has a .json extension and is under the max file size.
func LoadChartConfig(path string) (*ChartConfig, error) {
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

	cfg := &ChartConfig{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that the configuration values are valid.
func (c *ChartConfig) Validate() error {
	for _, name := range c.PIDs {
		if _, err := obd.ParsePID(name); err != nil {
			return fmt.Errorf("pids: %w", err)
		}
	}

	if c.Units != nil && !units.IsValid(*c.Units) {
		return fmt.Errorf("units must be one of %s, got %q", units.GetValidUnitsString(), *c.Units)
	}

	if c.Timezone != nil && *c.Timezone != "" && *c.Timezone != "Local" && !units.IsTimezoneValid(*c.Timezone) {
		return fmt.Errorf("unknown timezone %q", *c.Timezone)
	}

	if c.WidthCm != nil && *c.WidthCm <= 0 {
		return fmt.Errorf("width_cm must be positive, got %f", *c.WidthCm)
	}
	if c.HeightCm != nil && *c.HeightCm <= 0 {
		return fmt.Errorf("height_cm must be positive, got %f", *c.HeightCm)
	}

	if c.Bucket != nil && *c.Bucket != "" {
		d, err := time.ParseDuration(*c.Bucket)
		if err != nil {
			return fmt.Errorf("invalid bucket '%s': %w", *c.Bucket, err)
		}
		if d < 0 {
			return fmt.Errorf("bucket must be non-negative, got %s", d)
		}
	}

	return nil
}

// GetPIDs returns the parameters to plot. Unknown names are skipped.
func (c *ChartConfig) GetPIDs() []obd.PID {
	names := c.PIDs
	if len(names) == 0 {
		names = DefaultChartConfig().PIDs
	}
	out := make([]obd.PID, 0, len(names))
	for _, n := range names {
		if p, err := obd.ParsePID(n); err == nil {
			out = append(out, p)
		}
	}
	return out
}

// GetTitle returns the title value or the default.
func (c *ChartConfig) GetTitle() string {
	if c.Title == nil || *c.Title == "" {
		return "cardash"
	}
	return *c.Title
}

// GetUnits returns the speed units or the default.
func (c *ChartConfig) GetUnits() string {
	if c.Units == nil || !units.IsValid(*c.Units) {
		return units.KMPH
	}
	return *c.Units
}

// GetLocation returns the configured time zone, falling back to local time.
func (c *ChartConfig) GetLocation() *time.Location {
	if c.Timezone == nil {
		return time.Local
	}
	loc, err := units.Location(*c.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// GetWidthCm returns the plot width or the default.
func (c *ChartConfig) GetWidthCm() float64 {
	if c.WidthCm == nil || *c.WidthCm <= 0 {
		return 24
	}
	return *c.WidthCm
}

// GetHeightCm returns the plot height or the default.
func (c *ChartConfig) GetHeightCm() float64 {
	if c.HeightCm == nil || *c.HeightCm <= 0 {
		return 12
	}
	return *c.HeightCm
}

// GetBucket parses and returns the Bucket as a time.Duration.
func (c *ChartConfig) GetBucket() time.Duration {
	if c.Bucket == nil || *c.Bucket == "" {
		return 0
	}
	d, err := time.ParseDuration(*c.Bucket)
	if err != nil || d < 0 {
		return 0 // default on parse error
	}
	return d
}
