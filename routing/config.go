package routing

import (
	"errors"
	"fmt"
	"time"

	"github.com/BurntSushi/toml"
)

// Config controls the queries the gateway submits.
type Config struct {
	EngineConfig string   `toml:"engine_config"`
	ServiceURL   string   `toml:"service_url"`
	Costing      string   `toml:"costing"`
	Timeout      Duration `toml:"timeout"`
	Locations    []LatLon `toml:"locations"`
}

// Duration decodes TOML strings such as "30s".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// DefaultConfig routes between Sant Julia de Loria and Andorra la Vella using
// the bundled Andorra extract.
func DefaultConfig() Config {
	return Config{
		EngineConfig: "valhalla-data/valhalla.json",
		Costing:      CostingAuto,
		Timeout:      Duration{30 * time.Second},
		Locations: []LatLon{
			{Lat: 42.50107335756198, Lon: 1.510341967860551},
			{Lat: 42.50627089323736, Lon: 1.521734167223563},
		},
	}
}

// LoadConfig overlays the TOML file at path on top of DefaultConfig.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return Config{}, fmt.Errorf("loading routing config %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return Config{}, fmt.Errorf("loading routing config %s: unknown key %q", path, undecoded[0].String())
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("routing config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the configuration is usable.
func (c Config) Validate() error {
	if c.EngineConfig == "" {
		return errors.New("engine_config is required")
	}
	if c.Costing == "" {
		return errors.New("costing is required")
	}
	if len(c.Locations) < 2 {
		return fmt.Errorf("at least two locations are required, got %d", len(c.Locations))
	}
	for i, ll := range c.Locations {
		if ll.Lat < -90 || ll.Lat > 90 || ll.Lon < -180 || ll.Lon > 180 {
			return fmt.Errorf("location %d out of range: %v,%v", i, ll.Lat, ll.Lon)
		}
	}
	if c.Timeout.Duration < 0 {
		return errors.New("timeout must not be negative")
	}
	return nil
}
