package property

import (
	"testing"
	"time"
)

func TestIsAfterHours(t *testing.T) {
	cfg := &Config{
		ID:             "prop-1",
		OperatingHours: &OperatingHours{Start: "09:00", End: "18:00", Timezone: "Asia/Kuala_Lumpur"},
	}

	tests := []struct {
		name string
		at   time.Time
		want bool
	}{
		{"mid morning", time.Date(2026, 3, 2, 2, 0, 0, 0, time.UTC), false}, // 10:00 local
		{"opening hour", time.Date(2026, 3, 2, 1, 0, 0, 0, time.UTC), false}, // 09:00 local
		{"before opening", time.Date(2026, 3, 2, 0, 59, 0, 0, time.UTC), true}, // 08:59 local
		{"closing hour", time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC), true},  // 18:00 local
		{"late night", time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC), true},    // 23:00 local
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := cfg.IsAfterHours(tt.at); got != tt.want {
				t.Errorf("IsAfterHours(%s) = %v, want %v", tt.at, got, tt.want)
			}
		})
	}
}

func TestIsAfterHoursOvernightWindow(t *testing.T) {
	cfg := &Config{
		ID:             "prop-1",
		OperatingHours: &OperatingHours{Start: "22:00", End: "06:00", Timezone: "Asia/Kuala_Lumpur"},
	}

	tests := []struct {
		name string
		at   time.Time
		want bool
	}{
		{"before opening", time.Date(2026, 3, 2, 13, 0, 0, 0, time.UTC), true}, // 21:00 local
		{"opening hour", time.Date(2026, 3, 2, 14, 0, 0, 0, time.UTC), false},  // 22:00 local
		{"late night", time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC), false},    // 23:00 local
		{"small hours", time.Date(2026, 3, 2, 19, 0, 0, 0, time.UTC), false},   // 03:00 local
		{"closing hour", time.Date(2026, 3, 2, 22, 0, 0, 0, time.UTC), true},   // 06:00 local
		{"midday", time.Date(2026, 3, 3, 4, 0, 0, 0, time.UTC), true},          // 12:00 local
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := cfg.IsAfterHours(tt.at); got != tt.want {
				t.Errorf("IsAfterHours(%s) = %v, want %v", tt.at, got, tt.want)
			}
		})
	}
}

func TestIsAfterHoursWithoutHours(t *testing.T) {
	cfg := &Config{ID: "prop-1"}
	if cfg.IsAfterHours(time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC)) {
		t.Error("expected property without hours to never be after hours")
	}

	var nilCfg *Config
	if nilCfg.IsAfterHours(time.Now()) {
		t.Error("expected nil config to never be after hours")
	}
}

func TestIsAfterHoursBadInput(t *testing.T) {
	cfg := &Config{OperatingHours: &OperatingHours{Start: "nine", End: "18:00", Timezone: "Asia/Kuala_Lumpur"}}
	if cfg.IsAfterHours(time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC)) {
		t.Error("expected unparseable hours to fall back to not after hours")
	}

	cfg = &Config{OperatingHours: &OperatingHours{Start: "09:00", End: "18:00", Timezone: "Mars/Olympus"}}
	if cfg.IsAfterHours(time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC)) {
		t.Error("expected unknown timezone to fall back to not after hours")
	}
}

func TestHoursLabel(t *testing.T) {
	var cfg *Config
	if got := cfg.HoursLabel(); got != "9am - 6pm" {
		t.Errorf("nil config label = %q", got)
	}

	cfg = &Config{OperatingHours: &OperatingHours{Start: "08:00", End: "22:00"}}
	if got := cfg.HoursLabel(); got != "08:00 - 22:00" {
		t.Errorf("label = %q", got)
	}
}
