// Package config resolves cluster configuration through the same
// defaults -> file -> env -> CLI hierarchy the rest of the retrieval
// pack uses, trimmed to the concerns this system actually has.
package config

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"gopkg.in/yaml.v3"
)

// ServerConfig groups network listener settings.
type ServerConfig struct {
	// HTTPAddr is the TCP address the HTTP control surface binds to.
	HTTPAddr string `yaml:"httpAddr"`
}

// ClusterConfig groups the default shape of the emulated cluster.
type ClusterConfig struct {
	// DefaultBackplaneCount is how many backplanes a fresh cluster starts with.
	DefaultBackplaneCount int `yaml:"defaultBackplaneCount"`

	// DefaultNodesPerBackplane is the node count of each default backplane.
	DefaultNodesPerBackplane int `yaml:"defaultNodesPerBackplane"`

	// BusLatency is the delivery latency applied to every backplane's bus.
	BusLatency time.Duration `yaml:"busLatency"`
}

// SimConfig groups default simulation timing.
type SimConfig struct {
	// DefaultTimestepUs is the tick period used when /api/snn/start omits
	// an explicit timestep_us.
	DefaultTimestepUs int64 `yaml:"defaultTimestepUs"`
}

// CompilerConfig groups default topology-compiler behavior.
type CompilerConfig struct {
	// DefaultSeed seeds the compiler's deterministic weight sampler for
	// every topology compiled by the HTTP surface.
	DefaultSeed int64 `yaml:"defaultSeed"`

	// DefaultStrategy is the node-assignment strategy used when a topology
	// document omits node_assignment.strategy.
	DefaultStrategy string `yaml:"defaultStrategy"`
}

// SecurityConfig groups HTTP request-limiting settings.
type SecurityConfig struct {
	// AllowedOrigins controls the CORS Access-Control-Allow-Origin header.
	AllowedOrigins string `yaml:"allowedOrigins"`

	// MaxRequestBody is the maximum allowed HTTP request body size in bytes.
	MaxRequestBody int64 `yaml:"maxRequestBody"`

	// ReadTimeout is the maximum duration for reading an entire request.
	ReadTimeout time.Duration `yaml:"readTimeout"`

	// WriteTimeout is the maximum duration before timing out a response write.
	WriteTimeout time.Duration `yaml:"writeTimeout"`
}

// Config is the root configuration object for a cluster host process.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Cluster  ClusterConfig  `yaml:"cluster"`
	Sim      SimConfig      `yaml:"sim"`
	Compiler CompilerConfig `yaml:"compiler"`
	Security SecurityConfig `yaml:"security"`
}

// DefaultConfig returns a Config populated with production-safe defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPAddr: ":8000",
		},
		Cluster: ClusterConfig{
			DefaultBackplaneCount:    1,
			DefaultNodesPerBackplane: 16,
			BusLatency:               1 * time.Millisecond,
		},
		Sim: SimConfig{
			DefaultTimestepUs: 1000,
		},
		Compiler: CompilerConfig{
			DefaultSeed:     1,
			DefaultStrategy: "balanced",
		},
		Security: SecurityConfig{
			AllowedOrigins: "*",
			MaxRequestBody: 1 << 20, // 1 MB
			ReadTimeout:    30 * time.Second,
			WriteTimeout:   30 * time.Second,
		},
	}
}

// ConfigFromFile reads a YAML configuration file and merges it on top of
// the built-in defaults. Fields absent from the file retain their defaults.
func ConfigFromFile(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	return cfg, nil
}

// ConfigFromEnv applies environment variable overrides to the given Config.
// If cfg is nil a new default Config is created first.
//
// Environment variable mapping (all optional, prefix Z1_):
//
//	Z1_HTTP_ADDR              -> Server.HTTPAddr
//	Z1_BACKPLANE_COUNT        -> Cluster.DefaultBackplaneCount
//	Z1_NODES_PER_BACKPLANE    -> Cluster.DefaultNodesPerBackplane
//	Z1_BUS_LATENCY            -> Cluster.BusLatency (duration string)
//	Z1_TIMESTEP_US            -> Sim.DefaultTimestepUs
//	Z1_COMPILER_SEED          -> Compiler.DefaultSeed
//	Z1_COMPILER_STRATEGY      -> Compiler.DefaultStrategy
//	Z1_ALLOWED_ORIGINS        -> Security.AllowedOrigins
//	Z1_MAX_REQUEST_BODY       -> Security.MaxRequestBody (bytes)
//	Z1_READ_TIMEOUT           -> Security.ReadTimeout (duration string)
//	Z1_WRITE_TIMEOUT          -> Security.WriteTimeout (duration string)
func ConfigFromEnv(cfg *Config) *Config {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	setEnvStr("Z1_HTTP_ADDR", &cfg.Server.HTTPAddr)

	setEnvInt("Z1_BACKPLANE_COUNT", &cfg.Cluster.DefaultBackplaneCount)
	setEnvInt("Z1_NODES_PER_BACKPLANE", &cfg.Cluster.DefaultNodesPerBackplane)
	setEnvDuration("Z1_BUS_LATENCY", &cfg.Cluster.BusLatency)

	setEnvInt64("Z1_TIMESTEP_US", &cfg.Sim.DefaultTimestepUs)

	setEnvInt64("Z1_COMPILER_SEED", &cfg.Compiler.DefaultSeed)
	setEnvStr("Z1_COMPILER_STRATEGY", &cfg.Compiler.DefaultStrategy)

	setEnvStr("Z1_ALLOWED_ORIGINS", &cfg.Security.AllowedOrigins)
	setEnvInt64("Z1_MAX_REQUEST_BODY", &cfg.Security.MaxRequestBody)
	setEnvDuration("Z1_READ_TIMEOUT", &cfg.Security.ReadTimeout)
	setEnvDuration("Z1_WRITE_TIMEOUT", &cfg.Security.WriteTimeout)

	return cfg
}

// LoadConfig implements the configuration hierarchy:
//
//  1. Start with built-in defaults.
//  2. If configPath is non-empty, overlay the YAML file.
//  3. Apply environment variable overrides.
//  4. The caller may then apply CLI flag overrides via ApplyCLIOverrides.
func LoadConfig(configPath string) (*Config, error) {
	var cfg *Config

	if configPath != "" {
		var err error
		cfg, err = ConfigFromFile(configPath)
		if err != nil {
			return nil, err
		}
	} else {
		cfg = DefaultConfig()
	}

	cfg = ConfigFromEnv(cfg)
	return cfg, nil
}

// Validate performs structural validation of the entire configuration.
// Returns a descriptive error for the first invalid field encountered.
func (c *Config) Validate() error {
	if c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.httpAddr must not be empty")
	}

	if c.Cluster.DefaultBackplaneCount < 1 {
		return fmt.Errorf("cluster.defaultBackplaneCount must be >= 1, got %d", c.Cluster.DefaultBackplaneCount)
	}
	if c.Cluster.DefaultNodesPerBackplane < 1 || c.Cluster.DefaultNodesPerBackplane > 16 {
		return fmt.Errorf("cluster.defaultNodesPerBackplane must be between 1 and 16, got %d", c.Cluster.DefaultNodesPerBackplane)
	}
	if c.Cluster.BusLatency < 0 {
		return fmt.Errorf("cluster.busLatency must be >= 0")
	}

	if c.Sim.DefaultTimestepUs <= 0 {
		return fmt.Errorf("sim.defaultTimestepUs must be > 0, got %d", c.Sim.DefaultTimestepUs)
	}

	strategy := strings.ToLower(strings.TrimSpace(c.Compiler.DefaultStrategy))
	if strategy != "balanced" && strategy != "layer_based" {
		return fmt.Errorf("compiler.defaultStrategy must be one of balanced|layer_based, got %q", c.Compiler.DefaultStrategy)
	}
	c.Compiler.DefaultStrategy = strategy

	if c.Security.MaxRequestBody < 0 {
		return fmt.Errorf("security.maxRequestBody must be >= 0 (0 = unlimited, not recommended)")
	}
	if c.Security.ReadTimeout <= 0 {
		return fmt.Errorf("security.readTimeout must be > 0")
	}
	if c.Security.WriteTimeout <= 0 {
		return fmt.Errorf("security.writeTimeout must be > 0")
	}

	return nil
}

// CLIOverrides carries optional values set via command-line flags. Pointer
// fields are nil when the flag was not explicitly provided, allowing the
// caller to distinguish "not set" from the zero value.
type CLIOverrides struct {
	ConfigPath               *string
	HTTPAddr                 *string
	DefaultBackplaneCount    *int
	DefaultNodesPerBackplane *int
	BusLatency               *time.Duration
	DefaultTimestepUs        *int64
	CompilerSeed             *int64
	CompilerStrategy         *string
}

// ApplyCLIOverrides patches the Config with any explicitly-set CLI flags.
// Only non-nil fields in the CLIOverrides are applied, preserving all
// values resolved from earlier hierarchy layers.
func (c *Config) ApplyCLIOverrides(o *CLIOverrides) {
	if o == nil {
		return
	}
	if o.HTTPAddr != nil {
		c.Server.HTTPAddr = *o.HTTPAddr
	}
	if o.DefaultBackplaneCount != nil {
		c.Cluster.DefaultBackplaneCount = *o.DefaultBackplaneCount
	}
	if o.DefaultNodesPerBackplane != nil {
		c.Cluster.DefaultNodesPerBackplane = *o.DefaultNodesPerBackplane
	}
	if o.BusLatency != nil {
		c.Cluster.BusLatency = *o.BusLatency
	}
	if o.DefaultTimestepUs != nil {
		c.Sim.DefaultTimestepUs = *o.DefaultTimestepUs
	}
	if o.CompilerSeed != nil {
		c.Compiler.DefaultSeed = *o.CompilerSeed
	}
	if o.CompilerStrategy != nil {
		c.Compiler.DefaultStrategy = *o.CompilerStrategy
	}
}

func setEnvStr(key string, target *string) {
	if v := os.Getenv(key); v != "" {
		*target = v
	}
}

func setEnvInt(key string, target *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*target = n
		}
	}
}

func setEnvInt64(key string, target *int64) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*target = n
		}
	}
}

func setEnvDuration(key string, target *time.Duration) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*target = d
		}
	}
}

// WaitForShutdown blocks until either ctx is done or the process receives
// SIGINT/SIGTERM, in which case it calls cancel to begin a graceful shutdown.
func WaitForShutdown(ctx context.Context, cancel context.CancelFunc) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigChan:
		cancel()
	case <-ctx.Done():
	}
}

// PrintBanner prints a short identifying banner to stdout at startup.
func PrintBanner() {
	fmt.Println(`z1cluster - distributed neuromorphic cluster host`)
}
