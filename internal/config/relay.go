package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

// RelayConfig configures the signaling relay.
type RelayConfig struct {
	// Listen is the HTTP listen address.
	// Default: :8080
	Listen string `yaml:"listen"`

	// AllowedOrigins restricts websocket origins. Empty allows all.
	AllowedOrigins []string `yaml:"allowed_origins"`

	// Rooms configures the room registry.
	Rooms RoomsConfig `yaml:"rooms"`

	// NameAttempts bounds display name collision retries.
	// Default: 100
	NameAttempts int `yaml:"name_attempts"`

	// SendBuffer is the per-connection outbound queue length.
	// Default: 256
	SendBuffer int `yaml:"send_buffer"`
}

// RoomsConfig configures room creation and lookup.
type RoomsConfig struct {
	// Strict rejects unknown room IDs instead of creating an implicit room.
	Strict bool `yaml:"strict"`

	// TTL is how long a created room may stay unjoined.
	// Default: 10m
	TTL time.Duration `yaml:"ttl"`

	// MinIDLength and MaxIDLength bound generated room IDs.
	// Default: 6 and 6
	MinIDLength int `yaml:"min_id_length"`
	MaxIDLength int `yaml:"max_id_length"`
}

// DefaultRelay returns the relay defaults, matching the legacy server.
func DefaultRelay() *RelayConfig {
	return &RelayConfig{
		Listen: ":8080",
		Rooms: RoomsConfig{
			TTL:         10 * time.Minute,
			MinIDLength: 6,
			MaxIDLength: 6,
		},
		NameAttempts: 100,
		SendBuffer:   256,
	}
}

// RelayFlags holds the command-line overrides for LoadRelay.
type RelayFlags struct {
	ConfigPath string
	cfg        RelayConfig
	origins    string
	set        *pflag.FlagSet
}

// AddFlags registers the relay flags on fs.
func (f *RelayFlags) AddFlags(fs *pflag.FlagSet) {
	d := DefaultRelay()
	f.set = fs
	fs.StringVarP(&f.ConfigPath, "config", "c", "", "path to a YAML config file (env: SHAREMESH_RELAY_CONFIG)")
	fs.StringVar(&f.cfg.Listen, "listen", d.Listen, "HTTP listen address")
	fs.StringVar(&f.origins, "allowed-origins", "", "comma-separated list of allowed websocket origins")
	fs.BoolVar(&f.cfg.Rooms.Strict, "strict-rooms", false, "reject joins to rooms that were never created")
	fs.DurationVar(&f.cfg.Rooms.TTL, "room-ttl", d.Rooms.TTL, "how long a created room may stay unjoined")
	fs.IntVar(&f.cfg.Rooms.MinIDLength, "room-id-min", d.Rooms.MinIDLength, "minimum generated room ID length")
	fs.IntVar(&f.cfg.Rooms.MaxIDLength, "room-id-max", d.Rooms.MaxIDLength, "maximum generated room ID length")
	fs.IntVar(&f.cfg.NameAttempts, "name-attempts", d.NameAttempts, "display name collision retries")
	fs.IntVar(&f.cfg.SendBuffer, "send-buffer", d.SendBuffer, "per-connection outbound queue length")
}

// LoadRelay builds the relay configuration. Later layers win:
// defaults, YAML file, environment, explicitly set flags.
func LoadRelay(flags *RelayFlags) (*RelayConfig, error) {
	cfg := DefaultRelay()

	path := ""
	if flags != nil {
		path = flags.ConfigPath
	}
	if path == "" {
		path = os.Getenv("SHAREMESH_RELAY_CONFIG")
	}
	if path != "" {
		if err := loadRelayFile(path, cfg); err != nil {
			return nil, err
		}
	}

	if err := applyRelayEnv(cfg); err != nil {
		return nil, err
	}

	if flags != nil && flags.set != nil {
		flags.apply(cfg)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadRelayFile(path string, cfg *RelayConfig) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading relay config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parsing relay config %s: %w", path, err)
	}
	return nil
}

func applyRelayEnv(cfg *RelayConfig) error {
	if v := os.Getenv("SHAREMESH_LISTEN"); v != "" {
		cfg.Listen = v
	}
	if v := os.Getenv("SHAREMESH_ALLOWED_ORIGINS"); v != "" {
		cfg.AllowedOrigins = splitList(v)
	}
	if v := os.Getenv("SHAREMESH_STRICT_ROOMS"); v != "" {
		strict, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid SHAREMESH_STRICT_ROOMS %q: %w", v, err)
		}
		cfg.Rooms.Strict = strict
	}
	if v := os.Getenv("SHAREMESH_ROOM_TTL"); v != "" {
		ttl, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid SHAREMESH_ROOM_TTL %q: %w", v, err)
		}
		cfg.Rooms.TTL = ttl
	}
	return nil
}

func (f *RelayFlags) apply(cfg *RelayConfig) {
	f.set.Visit(func(fl *pflag.Flag) {
		switch fl.Name {
		case "listen":
			cfg.Listen = f.cfg.Listen
		case "allowed-origins":
			cfg.AllowedOrigins = splitList(f.origins)
		case "strict-rooms":
			cfg.Rooms.Strict = f.cfg.Rooms.Strict
		case "room-ttl":
			cfg.Rooms.TTL = f.cfg.Rooms.TTL
		case "room-id-min":
			cfg.Rooms.MinIDLength = f.cfg.Rooms.MinIDLength
		case "room-id-max":
			cfg.Rooms.MaxIDLength = f.cfg.Rooms.MaxIDLength
		case "name-attempts":
			cfg.NameAttempts = f.cfg.NameAttempts
		case "send-buffer":
			cfg.SendBuffer = f.cfg.SendBuffer
		}
	})
}

// Validate reports configuration values the relay cannot run with.
func (c *RelayConfig) Validate() error {
	var errs []error
	if c.Listen == "" {
		errs = append(errs, errors.New("listen address is required"))
	}
	if c.Rooms.MinIDLength <= 0 {
		errs = append(errs, fmt.Errorf("rooms.min_id_length must be positive, got %d", c.Rooms.MinIDLength))
	}
	if c.Rooms.MaxIDLength < c.Rooms.MinIDLength {
		errs = append(errs, fmt.Errorf("rooms.max_id_length %d is below min_id_length %d", c.Rooms.MaxIDLength, c.Rooms.MinIDLength))
	}
	if c.Rooms.TTL <= 0 {
		errs = append(errs, fmt.Errorf("rooms.ttl must be positive, got %s", c.Rooms.TTL))
	}
	if c.NameAttempts <= 0 {
		errs = append(errs, fmt.Errorf("name_attempts must be positive, got %d", c.NameAttempts))
	}
	if c.SendBuffer <= 0 {
		errs = append(errs, fmt.Errorf("send_buffer must be positive, got %d", c.SendBuffer))
	}
	return errors.Join(errs...)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
