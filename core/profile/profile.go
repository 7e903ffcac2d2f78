// Package profile loads the device profile: the antenna, singulation and
// tag-tracking settings injected into the engine for one operating cycle.
package profile

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

const (
	DefaultPowerCdBm       = 3000 // 30.0 dBm, in tenths
	DefaultDwellMs         = 2000
	DefaultInventoryCycles = 0 // Bounded by dwell only
	DefaultMotionThreshold = 30
	DefaultAgeThreshold    = 10
	DefaultLinkProfile     = 1
	DefaultStartQ          = 4
	DefaultMaxQ            = 15

	// MaxAntennaPorts is the number of logical ports the module supports.
	MaxAntennaPorts = 16
)

var ErrInvalidProfile = errors.New("invalid profile")

// Algorithm is the singulation (anti-collision) algorithm.
type Algorithm string

const (
	AlgorithmFixedQ   Algorithm = "fixed_q"
	AlgorithmDynamicQ Algorithm = "dynamic_q"
)

// ID returns the module's numeric identifier for the algorithm.
func (a Algorithm) ID() uint32 {
	if a == AlgorithmDynamicQ {
		return 3
	}
	return 0
}

// Antenna configures one logical antenna port.
type Antenna struct {
	Port            uint8  `yaml:"port"`
	PowerCdBm       uint16 `yaml:"power"`  // Tenths of dBm
	DwellMs         uint16 `yaml:"dwell"`  // Milliseconds
	InventoryCycles uint16 `yaml:"cycles"` // 0 = until dwell expires
	PhysicalPort    uint8  `yaml:"physical_port"`
}

// Singulation holds the anti-collision algorithm and its parameters.
type Singulation struct {
	Algorithm    Algorithm `yaml:"algorithm"`
	StartQ       uint8     `yaml:"start_q"`
	MinQ         uint8     `yaml:"min_q"`
	MaxQ         uint8     `yaml:"max_q"`
	Session      uint8     `yaml:"session"`
	Target       string    `yaml:"target"` // "A" or "B"
	ToggleTarget bool      `yaml:"toggle_target"`
}

// Config is the device profile.
type Config struct {
	Antennas    []Antenna   `yaml:"antennas"`
	Singulation Singulation `yaml:"singulation"`
	LinkProfile uint8       `yaml:"link_profile"`
	GuardMode   bool        `yaml:"guard_mode"`
	AutoRepeat  bool        `yaml:"auto_repeat"`
	// MotionThreshold is the RSSI delta in tenths of dB.
	MotionThreshold int `yaml:"motion_threshold"`
	// AgeThreshold is in seconds.
	AgeThreshold uint32 `yaml:"age_threshold"`
}

// Default returns a single-antenna profile with default settings.
func Default() *Config {
	cfg := &Config{Antennas: []Antenna{{Port: 0}}}
	cfg.applyDefaults()
	return cfg
}

// Load reads and validates a YAML profile from path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading profile: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("profile %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes and validates a YAML profile. Missing values take their
// defaults.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing profile: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	for i := range c.Antennas {
		a := &c.Antennas[i]
		if a.PowerCdBm == 0 {
			a.PowerCdBm = DefaultPowerCdBm
		}
		if a.DwellMs == 0 {
			a.DwellMs = DefaultDwellMs
		}
	}
	s := &c.Singulation
	if s.Algorithm == "" {
		s.Algorithm = AlgorithmDynamicQ
	}
	if s.StartQ == 0 {
		s.StartQ = DefaultStartQ
	}
	if s.MaxQ == 0 {
		s.MaxQ = DefaultMaxQ
	}
	if s.Target == "" {
		s.Target = "A"
	}
	if c.LinkProfile == 0 {
		c.LinkProfile = DefaultLinkProfile
	}
	if c.MotionThreshold == 0 {
		c.MotionThreshold = DefaultMotionThreshold
	}
	if c.AgeThreshold == 0 {
		c.AgeThreshold = DefaultAgeThreshold
	}
}

// Validate checks the profile for values the module would reject.
func (c *Config) Validate() error {
	if len(c.Antennas) == 0 {
		return fmt.Errorf("%w: at least one antenna port is required", ErrInvalidProfile)
	}
	seen := make(map[uint8]bool, len(c.Antennas))
	for _, a := range c.Antennas {
		if a.Port >= MaxAntennaPorts {
			return fmt.Errorf("%w: antenna port %d out of range", ErrInvalidProfile, a.Port)
		}
		if seen[a.Port] {
			return fmt.Errorf("%w: antenna port %d configured twice", ErrInvalidProfile, a.Port)
		}
		seen[a.Port] = true
	}
	s := c.Singulation
	switch s.Algorithm {
	case AlgorithmFixedQ, AlgorithmDynamicQ:
	default:
		return fmt.Errorf("%w: unknown singulation algorithm %q", ErrInvalidProfile, s.Algorithm)
	}
	if s.MaxQ > 15 || s.MinQ > s.MaxQ || s.StartQ < s.MinQ || s.StartQ > s.MaxQ {
		return fmt.Errorf("%w: Q values must satisfy min <= start <= max <= 15", ErrInvalidProfile)
	}
	if s.Session > 3 {
		return fmt.Errorf("%w: session must be 0-3", ErrInvalidProfile)
	}
	if s.Target != "A" && s.Target != "B" {
		return fmt.Errorf("%w: target must be A or B", ErrInvalidProfile)
	}
	if c.MotionThreshold < 0 {
		return fmt.Errorf("%w: motion threshold must not be negative", ErrInvalidProfile)
	}
	return nil
}
