package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// DeadCodePolicy decides what the validator does with unreachable code.
type DeadCodePolicy string

const (
	DeadCodeWarn   DeadCodePolicy = "warn"
	DeadCodeReject DeadCodePolicy = "reject"
)

// Engine names accepted by Config.Engine.
const (
	EngineVM       = "vm"
	EngineTreeWalk = "tree-walk"
)

// Config is the runtime configuration shared by the CLI, the service and
// the embedding API.
type Config struct {
	// Debug enables ownership instrumentation in both engines.
	Debug bool `yaml:"debug" toml:"debug"`

	// Engine selects the default backend ("vm" or "tree-walk").
	Engine string `yaml:"engine" toml:"engine"`

	// DeadCode is the validator policy for unreachable instructions.
	DeadCode DeadCodePolicy `yaml:"dead_code" toml:"dead_code"`

	// MaxStackDepth is the validator's operand stack ceiling per function.
	MaxStackDepth int `yaml:"max_stack_depth" toml:"max_stack_depth"`

	// MaxCallDepth bounds nested user function calls in both engines.
	MaxCallDepth int `yaml:"max_call_depth" toml:"max_call_depth"`

	// Journal is the sqlite file evaluations are recorded to; empty disables it.
	Journal string `yaml:"journal,omitempty" toml:"journal"`

	// Listen is the address of the gRPC evaluation service.
	Listen string `yaml:"listen,omitempty" toml:"listen"`

	// LogVerbosity follows commonlog: 0 is quiet, 2 info, 4 debug.
	LogVerbosity int `yaml:"log_verbosity" toml:"log_verbosity"`
}

const (
	DefaultMaxStackDepth = 256
	DefaultMaxCallDepth  = 1024
	DefaultListen        = "127.0.0.1:7433"
)

// Default returns a release configuration running on the VM.
func Default() Config {
	return Config{
		Engine:        EngineVM,
		DeadCode:      DeadCodeWarn,
		MaxStackDepth: DefaultMaxStackDepth,
		MaxCallDepth:  DefaultMaxCallDepth,
		Listen:        DefaultListen,
	}
}

// Load reads a YAML (.yaml/.yml) or TOML (.toml) configuration file.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading config %s: %w", path, err)
	}
	return Parse(data, path)
}

// Parse decodes data using the format implied by path's extension. Missing
// fields keep their defaults.
func Parse(data []byte, path string) (Config, error) {
	cfg := Default()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parsing %s: %w", path, err)
		}
	case ".yaml", ".yml", "":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parsing %s: %w", path, err)
		}
	default:
		return Config{}, fmt.Errorf("parsing %s: unsupported config format %q", path, filepath.Ext(path))
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Validate rejects values no component can run with.
func (c Config) Validate() error {
	switch c.Engine {
	case EngineVM, EngineTreeWalk:
	default:
		return fmt.Errorf("unknown engine %q (want %q or %q)", c.Engine, EngineVM, EngineTreeWalk)
	}
	switch c.DeadCode {
	case DeadCodeWarn, DeadCodeReject:
	default:
		return fmt.Errorf("unknown dead_code policy %q", c.DeadCode)
	}
	if c.MaxStackDepth <= 0 {
		return fmt.Errorf("max_stack_depth must be positive, got %d", c.MaxStackDepth)
	}
	if c.MaxCallDepth <= 0 {
		return fmt.Errorf("max_call_depth must be positive, got %d", c.MaxCallDepth)
	}
	return nil
}

// Find walks up from dir looking for duet.yaml, duet.yml or duet.toml.
// It returns "" when none exists.
func Find(dir string) (string, error) {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolving directory: %w", err)
	}
	for {
		for _, name := range ConfigFileNames {
			candidate := filepath.Join(dir, name)
			if _, err := os.Stat(candidate); err == nil {
				return candidate, nil
			}
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", nil
		}
		dir = parent
	}
}
