package local

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	"github.com/nspcc-dev/hsm-http-gw/hsmerr"
	"github.com/nspcc-dev/hsm-http-gw/resource"
)

// LayoutRAID1 replicates every object on repl_count media.
const LayoutRAID1 = "raid1"

// Alias is a named PUT profile.
type Alias struct {
	Family string   `mapstructure:"family" validate:"omitempty,oneof=dir tape rados_pool"`
	Layout string   `mapstructure:"layout" validate:"omitempty,oneof=raid1"`
	Tags   []string `mapstructure:"tags"`
}

// Config configures the engine.
type Config struct {
	// Hostname identifies this node in locks, os.Hostname() by default.
	Hostname      string           `mapstructure:"hostname"`
	DefaultFamily string           `mapstructure:"default_family" validate:"omitempty,oneof=dir tape rados_pool"`
	DefaultLayout string           `mapstructure:"default_layout" validate:"omitempty,oneof=raid1"`
	Aliases       map[string]Alias `mapstructure:"aliases" validate:"dive"`
}

var validate = validator.New()

// DecodeConfig builds a Config out of a generic settings map, e.g. a viper
// sub-tree, and validates it.
func DecodeConfig(raw map[string]any) (Config, error) {
	var cfg Config
	if err := mapstructure.Decode(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("%w: invalid engine config: %v", hsmerr.ErrInvalidArgument, err)
	}

	if err := cfg.applyDefaults(); err != nil {
		return cfg, err
	}

	return cfg, nil
}

func (c *Config) applyDefaults() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: invalid engine config: %v", hsmerr.ErrInvalidArgument, err)
	}

	if c.Hostname == "" {
		host, err := os.Hostname()
		if err != nil {
			return fmt.Errorf("could not get hostname: %w", err)
		}
		c.Hostname = host
	}
	if c.DefaultFamily == "" {
		c.DefaultFamily = resource.FamilyDir.String()
	}
	if c.DefaultLayout == "" {
		c.DefaultLayout = LayoutRAID1
	}

	return nil
}

func (c *Config) defaultFamily() resource.Family {
	f, _ := resource.ParseFamily(c.DefaultFamily)
	return f
}
