// Package config loads the runtime configuration file.
//
// The file is TOML, read once at startup from $HOME/.hayride/config.toml or
// the path in HAYRIDE_CONFIG. Keys absent from the file keep their defaults;
// unknown keys are rejected.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
	"github.com/hayride-dev/hayride-go/contract"
	domainerrors "github.com/hayride-dev/hayride-go/domain/errors"
)

// EnvConfigPath overrides the well-known config location.
const EnvConfigPath = "HAYRIDE_CONFIG"

// validate is a package-level singleton; building a validator is expensive.
var validate = validator.New()

// Config is the complete runtime configuration.
type Config struct {
	Paths    PathsConfig    `toml:"paths"`
	Features FeaturesConfig `toml:"features"`
	Silo     SiloConfig     `toml:"silo"`
	Pipeline PipelineConfig `toml:"pipeline"`
	Agent    AgentConfig    `toml:"agent"`
	Backend  BackendConfig  `toml:"backend"`
	Serve    ServeConfig    `toml:"serve"`
	Logging  LoggingConfig  `toml:"logging"`
	Version  string         `toml:"version" validate:"required"`
}

// PathsConfig locates on-disk state. Relative paths resolve against Home.
type PathsConfig struct {
	Home     string `toml:"home" validate:"required"`
	Registry string `toml:"registry" validate:"required"`
	Models   string `toml:"models" validate:"required"`
	OutDir   string `toml:"out_dir" validate:"required"`
}

// FeaturesConfig switches host interface groups on or off.
type FeaturesConfig struct {
	AI   bool `toml:"ai"`
	Silo bool `toml:"silo"`
	Wac  bool `toml:"wac"`
	Core bool `toml:"core"`
	WASI bool `toml:"wasi"`
	DB   bool `toml:"db"`
}

// SiloConfig bounds the silo manager.
type SiloConfig struct {
	EnvGrants   []string      `toml:"env_grants" validate:"dive,required"`
	StopTimeout time.Duration `toml:"stop_timeout" validate:"gt=0"`
	MaxSilos    int           `toml:"max_silos" validate:"gte=0"`
	MaxOutput   int           `toml:"max_output" validate:"gt=0"`
	AllowShell  bool          `toml:"allow_shell"`
}

// PipelineConfig sizes streams.
type PipelineConfig struct {
	DefaultCapacity int `toml:"default_capacity" validate:"gt=0"`
}

// AgentConfig tunes the orchestrator loop.
type AgentConfig struct {
	Model         string        `toml:"model"`
	SystemPrompt  string        `toml:"system_prompt"`
	RagTable      string        `toml:"rag_table"`
	ToolTimeout   time.Duration `toml:"tool_timeout" validate:"gt=0"`
	MaxIterations int           `toml:"max_iterations" validate:"gt=0"`
	RagLimit      int           `toml:"rag_limit" validate:"gt=0"`
}

// BackendConfig bounds model backend admission.
type BackendConfig struct {
	MaxConcurrent int64 `toml:"max_concurrent" validate:"gt=0"`
}

// ServeConfig tunes the listener for server and websocket components.
// An empty Address leaves the choice to the component's config export.
type ServeConfig struct {
	Address           string        `toml:"address"`
	ReadHeaderTimeout time.Duration `toml:"read_header_timeout" validate:"gt=0"`
	ShutdownTimeout   time.Duration `toml:"shutdown_timeout" validate:"gt=0"`
	MaxBodySize       int64         `toml:"max_body_size" validate:"gt=0"`
}

// LoggingConfig selects the process log handler.
type LoggingConfig struct {
	Level   string `toml:"level" validate:"oneof=debug info warn error"`
	Format  string `toml:"format" validate:"oneof=text json"`
	NoColor bool   `toml:"no_color"`
}

// Default returns the configuration used when no file is present. home is
// the runtime home directory, usually DefaultHome().
func Default(home string) Config {
	return Config{
		Version: contract.HayrideVersion,
		Paths: PathsConfig{
			Home:     home,
			Registry: "registry",
			Models:   "ai/models",
			OutDir:   "out",
		},
		Features: FeaturesConfig{AI: true, Silo: true, Wac: true, Core: true, WASI: true, DB: true},
		Silo: SiloConfig{
			StopTimeout: 5 * time.Second,
			MaxSilos:    0,
			MaxOutput:   1 << 20,
		},
		Pipeline: PipelineConfig{DefaultCapacity: 64},
		Agent: AgentConfig{
			ToolTimeout:   30 * time.Second,
			MaxIterations: 10,
			RagLimit:      3,
		},
		Backend: BackendConfig{MaxConcurrent: 1},
		Serve: ServeConfig{
			ReadHeaderTimeout: 10 * time.Second,
			ShutdownTimeout:   5 * time.Second,
			MaxBodySize:       10 << 20,
		},
		Logging: LoggingConfig{Level: "info", Format: "text"},
	}
}

// DefaultHome returns $HOME/.hayride.
func DefaultHome() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("locate home directory: %w", err)
	}
	return filepath.Join(home, ".hayride"), nil
}

// Path returns the config file location: HAYRIDE_CONFIG when set, else
// config.toml inside home.
func Path(home string) string {
	if p := strings.TrimSpace(os.Getenv(EnvConfigPath)); p != "" {
		return p
	}
	return filepath.Join(home, "config.toml")
}

// Load reads the config at the well-known path. A missing file yields the
// defaults; a file that exists must parse and validate.
func Load() (Config, error) {
	home, err := DefaultHome()
	if err != nil {
		return Config{}, err
	}
	path := Path(home)
	cfg, err := LoadFile(path, home)
	if errors.Is(err, fs.ErrNotExist) && os.Getenv(EnvConfigPath) == "" {
		cfg = Default(home)
		return cfg, cfg.finish()
	}
	return cfg, err
}

// LoadFile reads path over the defaults for home.
func LoadFile(path, home string) (Config, error) {
	cfg := Default(home)
	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Config{}, err
		}
		return Config{}, &domainerrors.ConfigError{Kind: domainerrors.KindInvalid, Field: path, Err: err}
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return Config{}, &domainerrors.ConfigError{
			Kind:  domainerrors.KindInvalid,
			Field: path,
			Err:   fmt.Errorf("unknown keys: %s", strings.Join(keys, ", ")),
		}
	}
	return cfg, cfg.finish()
}

// Decode parses TOML text over the defaults for home.
func Decode(data, home string) (Config, error) {
	cfg := Default(home)
	meta, err := toml.Decode(data, &cfg)
	if err != nil {
		return Config{}, &domainerrors.ConfigError{Kind: domainerrors.KindInvalid, Err: err}
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Config{}, &domainerrors.ConfigError{Kind: domainerrors.KindInvalid, Field: undecoded[0].String(), Err: errors.New("unknown key")}
	}
	return cfg, cfg.finish()
}

// finish resolves relative paths and validates.
func (c *Config) finish() error {
	c.Paths.Home = expandHome(c.Paths.Home)
	for _, p := range []*string{&c.Paths.Registry, &c.Paths.Models, &c.Paths.OutDir} {
		*p = expandHome(*p)
		if *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(c.Paths.Home, *p)
		}
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	return c.Validate()
}

// Validate checks the struct tags.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return &domainerrors.ConfigError{Kind: domainerrors.KindInvalid, Err: fmt.Errorf("config validation failed: %w", err)}
	}
	return nil
}

// EnvPermit reports whether key is granted to process silos.
func (c SiloConfig) EnvPermit(_ string, key string) bool {
	for _, g := range c.EnvGrants {
		if g == key {
			return true
		}
	}
	return false
}

func expandHome(p string) string {
	if p == "~" || strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(p, "~"))
		}
	}
	return p
}
