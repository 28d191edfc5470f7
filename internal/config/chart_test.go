package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/banshee-data/cardash/internal/obd"
	"github.com/banshee-data/cardash/internal/units"
)

func TestDefaultChartConfig(t *testing.T) {
	cfg := DefaultChartConfig()

	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults do not validate: %v", err)
	}
	if diff := cmp.Diff([]obd.PID{obd.RPM, obd.Speed, obd.Throttle, obd.Coolant}, cfg.GetPIDs()); diff != "" {
		t.Errorf("GetPIDs() mismatch (-want +got):\n%s", diff)
	}
	if cfg.GetUnits() != units.KMPH {
		t.Errorf("GetUnits() = %s, want %s", cfg.GetUnits(), units.KMPH)
	}
	if cfg.GetLocation() != time.Local {
		t.Errorf("GetLocation() = %v, want Local", cfg.GetLocation())
	}
	if cfg.GetWidthCm() != 24 || cfg.GetHeightCm() != 12 {
		t.Errorf("size = %vx%v, want 24x12", cfg.GetWidthCm(), cfg.GetHeightCm())
	}
	if cfg.GetBucket() != 0 {
		t.Errorf("GetBucket() = %v, want 0", cfg.GetBucket())
	}
}

func TestEmptyChartConfigGetters(t *testing.T) {
	cfg := &ChartConfig{}
	if len(cfg.GetPIDs()) != 4 {
		t.Errorf("GetPIDs() = %v, want the 4 defaults", cfg.GetPIDs())
	}
	if cfg.GetTitle() != "cardash" {
		t.Errorf("GetTitle() = %q", cfg.GetTitle())
	}
	if cfg.GetUnits() != units.KMPH {
		t.Errorf("GetUnits() = %q", cfg.GetUnits())
	}
}

func TestLoadChartConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "chart.json")

	testJSON := `{
  "pids": ["speed", "0x105"],
  "title": "morning drive",
  "units": "mph",
  "timezone": "Europe/Rome",
  "width_cm": 30,
  "bucket": "2s"
}`
	if err := os.WriteFile(configPath, []byte(testJSON), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	cfg, err := LoadChartConfig(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if diff := cmp.Diff([]obd.PID{obd.Speed, obd.Coolant}, cfg.GetPIDs()); diff != "" {
		t.Errorf("GetPIDs() mismatch (-want +got):\n%s", diff)
	}
	if cfg.GetTitle() != "morning drive" {
		t.Errorf("GetTitle() = %q", cfg.GetTitle())
	}
	if cfg.GetUnits() != units.MPH {
		t.Errorf("GetUnits() = %q", cfg.GetUnits())
	}
	if cfg.GetLocation().String() != "Europe/Rome" {
		t.Errorf("GetLocation() = %v", cfg.GetLocation())
	}
	if cfg.GetWidthCm() != 30 || cfg.GetHeightCm() != 12 {
		t.Errorf("size = %vx%v, want 30x12", cfg.GetWidthCm(), cfg.GetHeightCm())
	}
	if cfg.GetBucket() != 2*time.Second {
		t.Errorf("GetBucket() = %v", cfg.GetBucket())
	}
}

func TestLoadChartConfigErrors(t *testing.T) {
	tmpDir := t.TempDir()
	write := func(name, body string) string {
		p := filepath.Join(tmpDir, name)
		if err := os.WriteFile(p, []byte(body), 0644); err != nil {
			t.Fatal(err)
		}
		return p
	}

	tests := []struct {
		name string
		path string
		want string
	}{
		{"missing", "/nonexistent/chart.json", "stat"},
		{"wrong extension", write("chart.yaml", "{}"), ".json extension"},
		{"bad json", write("bad.json", `{"units": `), "parse"},
		{"invalid values", write("invalid.json", `{"units": "furlongs"}`), "invalid configuration"},
		{"too large", write("big.json", `{"title": "`+strings.Repeat("x", 1024*1024)+`"}`), "too large"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadChartConfig(tt.path)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("LoadChartConfig() error = %v, want it to mention %q", err, tt.want)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *ChartConfig
		wantErr bool
	}{
		{"empty config is valid", &ChartConfig{}, false},
		{"unknown pid", &ChartConfig{PIDs: []string{"rpm", "warp"}}, true},
		{"bad units", &ChartConfig{Units: ptrString("furlongs")}, true},
		{"bad timezone", &ChartConfig{Timezone: ptrString("Mars/Olympus")}, true},
		{"local timezone", &ChartConfig{Timezone: ptrString("Local")}, false},
		{"zero width", &ChartConfig{WidthCm: ptrFloat64(0)}, true},
		{"negative height", &ChartConfig{HeightCm: ptrFloat64(-1)}, true},
		{"bad bucket", &ChartConfig{Bucket: ptrString("soon")}, true},
		{"negative bucket", &ChartConfig{Bucket: ptrString("-1s")}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
