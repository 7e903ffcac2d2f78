package profile

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

const sampleProfile = `
antennas:
  - port: 0
    power: 2700
    dwell: 500
    physical_port: 1
  - port: 1
    cycles: 3
singulation:
  algorithm: fixed_q
  start_q: 3
  min_q: 0
  max_q: 7
  session: 1
  target: B
link_profile: 2
guard_mode: true
auto_repeat: true
motion_threshold: 45
age_threshold: 20
`

func TestParse(t *testing.T) {
	cfg, err := Parse([]byte(sampleProfile))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(cfg.Antennas) != 2 {
		t.Fatalf("got %d antennas, want 2", len(cfg.Antennas))
	}
	a0, a1 := cfg.Antennas[0], cfg.Antennas[1]
	if a0.PowerCdBm != 2700 || a0.DwellMs != 500 || a0.PhysicalPort != 1 {
		t.Errorf("antenna 0 = %+v", a0)
	}
	if a1.PowerCdBm != DefaultPowerCdBm || a1.DwellMs != DefaultDwellMs || a1.InventoryCycles != 3 {
		t.Errorf("antenna 1 defaults not applied: %+v", a1)
	}
	if cfg.Singulation.Algorithm != AlgorithmFixedQ || cfg.Singulation.Target != "B" {
		t.Errorf("singulation = %+v", cfg.Singulation)
	}
	if !cfg.GuardMode || !cfg.AutoRepeat || cfg.LinkProfile != 2 {
		t.Errorf("flags = guard %v repeat %v link %d", cfg.GuardMode, cfg.AutoRepeat, cfg.LinkProfile)
	}
	if cfg.MotionThreshold != 45 || cfg.AgeThreshold != 20 {
		t.Errorf("thresholds = %d/%d", cfg.MotionThreshold, cfg.AgeThreshold)
	}
}

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse([]byte("antennas:\n  - port: 2\n"))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if cfg.Singulation.Algorithm != AlgorithmDynamicQ {
		t.Errorf("Algorithm = %q, want dynamic_q", cfg.Singulation.Algorithm)
	}
	if cfg.MotionThreshold != DefaultMotionThreshold || cfg.AgeThreshold != DefaultAgeThreshold {
		t.Errorf("thresholds = %d/%d", cfg.MotionThreshold, cfg.AgeThreshold)
	}
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"no antennas", "auto_repeat: true\n"},
		{"port out of range", "antennas:\n  - port: 16\n"},
		{"duplicate port", "antennas:\n  - port: 1\n  - port: 1\n"},
		{"bad algorithm", "antennas:\n  - port: 0\nsingulation:\n  algorithm: aloha\n"},
		{"bad q", "antennas:\n  - port: 0\nsingulation:\n  start_q: 9\n  max_q: 5\n"},
		{"bad session", "antennas:\n  - port: 0\nsingulation:\n  session: 4\n"},
		{"bad target", "antennas:\n  - port: 0\nsingulation:\n  target: C\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			if !errors.Is(err, ErrInvalidProfile) {
				t.Errorf("Parse() error = %v, want ErrInvalidProfile", err)
			}
		})
	}
}

func TestParse_Malformed(t *testing.T) {
	if _, err := Parse([]byte("antennas: [")); err == nil {
		t.Error("Parse() should fail on malformed YAML")
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profile.yaml")
	if err := os.WriteFile(path, []byte(sampleProfile), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(cfg.Antennas) != 2 {
		t.Errorf("got %d antennas, want 2", len(cfg.Antennas))
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Load() of a missing file should fail")
	}
}

func TestDefault(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Errorf("Default().Validate() = %v", err)
	}
}
