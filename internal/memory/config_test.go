package memory

import (
	"runtime/debug"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.HighWaterMark >= cfg.CriticalWaterMark {
		t.Errorf("Expected high watermark %v below critical %v", cfg.HighWaterMark, cfg.CriticalWaterMark)
	}
	if cfg.CheckInterval <= 0 {
		t.Errorf("Expected positive check interval, got %v", cfg.CheckInterval)
	}
}

func TestConfigureFromEnvWithoutLimit(t *testing.T) {
	t.Setenv("GOMEMLIMIT", "")
	t.Setenv("MEMORY_LIMIT", "")

	result := ConfigureFromEnv()
	if result.Configured {
		t.Error("Expected nothing configured without env vars")
	}
	if result.Source != "none" {
		t.Errorf("Expected source none, got %q", result.Source)
	}
}

func TestConfigureFromEnvMemoryLimit(t *testing.T) {
	prev := debug.SetMemoryLimit(-1)
	defer debug.SetMemoryLimit(prev)

	t.Setenv("GOMEMLIMIT", "")
	t.Setenv("MEMORY_LIMIT", "1073741824")
	t.Setenv("MEMORY_RATIO", "0.5")

	result := ConfigureFromEnv()
	if !result.Configured || result.Source != "MEMORY_LIMIT" {
		t.Fatalf("Expected MEMORY_LIMIT configuration, got %+v", result)
	}
	if result.GoMemLimit != 536870912 {
		t.Errorf("Expected 512MiB limit, got %d", result.GoMemLimit)
	}
	if got := debug.SetMemoryLimit(-1); got != 536870912 {
		t.Errorf("Expected runtime limit applied, got %d", got)
	}
}

func TestConfigureFromEnvInvalidValues(t *testing.T) {
	prev := debug.SetMemoryLimit(-1)
	defer debug.SetMemoryLimit(prev)

	t.Setenv("GOMEMLIMIT", "")
	t.Setenv("MEMORY_LIMIT", "lots")
	if result := ConfigureFromEnv(); result.Configured {
		t.Error("Expected invalid MEMORY_LIMIT to be ignored")
	}

	t.Setenv("MEMORY_LIMIT", "1000")
	t.Setenv("MEMORY_RATIO", "7")
	result := ConfigureFromEnv()
	if result.Ratio != DefaultMemoryRatio {
		t.Errorf("Expected default ratio for out-of-range value, got %v", result.Ratio)
	}
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		in       int64
		expected string
	}{
		{512, "512 B"},
		{1024, "1.0 KiB"},
		{1536, "1.5 KiB"},
		{1073741824, "1.0 GiB"},
	}
	for _, tt := range tests {
		if got := formatBytes(tt.in); got != tt.expected {
			t.Errorf("formatBytes(%d) = %q, expected %q", tt.in, got, tt.expected)
		}
	}
}

func TestPlanFromEnv(t *testing.T) {
	tests := []struct {
		name     string
		env      map[string]string
		source   string
		limit    int64
		ratio    float64
		warnings int
	}{
		{"nothing set", nil, SourceNone, 0, 0, 0},
		{"explicit GOMEMLIMIT wins", map[string]string{"GOMEMLIMIT": "1GiB", "MEMORY_LIMIT": "4Gi"}, SourceGoMemLimit, 0, 0, 0},
		{"plain bytes", map[string]string{"MEMORY_LIMIT": "1000"}, SourceMemoryLimit, 400, DefaultMemoryRatio, 0},
		{"binary quantity", map[string]string{"MEMORY_LIMIT": "2Gi", "MEMORY_RATIO": "0.25"}, SourceMemoryLimit, 512 << 20, 0.25, 0},
		{"decimal quantity", map[string]string{"MEMORY_LIMIT": "1G", "MEMORY_RATIO": "0.5"}, SourceMemoryLimit, 500_000_000, 0.5, 0},
		{"bad ratio falls back", map[string]string{"MEMORY_LIMIT": "1000", "MEMORY_RATIO": "1.5"}, SourceMemoryLimit, 400, DefaultMemoryRatio, 1},
		{"garbage limit", map[string]string{"MEMORY_LIMIT": "plenty"}, SourceNone, 0, 0, 1},
		{"negative limit", map[string]string{"MEMORY_LIMIT": "-5Mi"}, SourceNone, 0, 0, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, warnings := planFromEnv(func(key string) string { return tt.env[key] })
			if result.Source != tt.source {
				t.Errorf("Source = %q, expected %q", result.Source, tt.source)
			}
			if result.GoMemLimit != tt.limit {
				t.Errorf("GoMemLimit = %d, expected %d", result.GoMemLimit, tt.limit)
			}
			if result.Ratio != tt.ratio {
				t.Errorf("Ratio = %v, expected %v", result.Ratio, tt.ratio)
			}
			if len(warnings) != tt.warnings {
				t.Errorf("Expected %d warnings, got %v", tt.warnings, warnings)
			}
		})
	}
}

func TestParseQuantity(t *testing.T) {
	tests := map[string]int64{
		"1024":  1024,
		"512Mi": 512 << 20,
		"1.5Gi": 3 << 29,
		"2k":    2000,
		"3M":    3_000_000,
	}
	for in, expected := range tests {
		got, err := parseQuantity(in)
		if err != nil || got != expected {
			t.Errorf("parseQuantity(%q) = %d, %v; expected %d", in, got, err, expected)
		}
	}
	if _, err := parseQuantity("Gi"); err == nil {
		t.Error("Expected an error for a bare suffix")
	}
}
