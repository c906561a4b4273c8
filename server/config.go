package server

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/goccy/go-yaml"
	"github.com/n9te9/federation-benchmark/gateway"
	"github.com/n9te9/federation-benchmark/services"
)

// EnvPrefix prefixes every environment variable that overrides the
// configuration file, e.g. BENCH_PORT.
const EnvPrefix = "BENCH_"

type Config struct {
	Host                  string              `yaml:"host"                    env:"HOST"`
	Port                  int                 `yaml:"port"                    env:"PORT"`
	LogLevel              string              `yaml:"log_level"               env:"LOG_LEVEL"`
	ParseCacheSize        int                 `yaml:"parse_cache_size"        env:"PARSE_CACHE_SIZE"`
	ComplementRequestID   bool                `yaml:"complement_request_id"   env:"COMPLEMENT_REQUEST_ID"`
	ForwardRequestHeaders bool                `yaml:"forward_request_headers" env:"FORWARD_REQUEST_HEADERS"`
	SubgraphTimeout       string              `yaml:"subgraph_timeout"        env:"SUBGRAPH_TIMEOUT"`
	SDLFetch              gateway.RetryOption `yaml:"sdl_fetch"               envPrefix:"SDL_FETCH_"`
	Services              ServicesConfig      `yaml:"services"                envPrefix:"SERVICES_"`
	Opentelemetry         OpentelemetryConfig `yaml:"opentelemetry"           envPrefix:"OTEL_"`
}

// ServicesConfig lists the subgraph services. Embedded services are served
// by this process on Host; otherwise every entry needs the URL of a running
// service.
type ServicesConfig struct {
	Embedded bool            `yaml:"embedded" env:"EMBEDDED"`
	Host     string          `yaml:"host"     env:"HOST"`
	List     []ServiceConfig `yaml:"list"`
}

type ServiceConfig struct {
	Name string `yaml:"name"`
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type OpentelemetryConfig struct {
	Tracing TracingConfig `yaml:"tracing" envPrefix:"TRACING_"`
}

type TracingConfig struct {
	Enable   bool   `yaml:"enable"   env:"ENABLE"`
	Endpoint string `yaml:"endpoint" env:"ENDPOINT"`
}

// DefaultConfig serves the three routes on 0.0.0.0:3000 in front of the
// embedded demo services.
func DefaultConfig() *Config {
	cfg := &Config{
		Host:            "0.0.0.0",
		Port:            3000,
		LogLevel:        "info",
		SubgraphTimeout: "3s",
		SDLFetch:        gateway.RetryOption{Attempts: 3, Timeout: "5s"},
		Services: ServicesConfig{
			Embedded: true,
			Host:     "127.0.0.1",
		},
	}
	for _, opt := range services.DefaultOptions() {
		cfg.Services.List = append(cfg.Services.List, ServiceConfig{Name: opt.Name, Port: opt.Port})
	}
	return cfg
}

// LoadConfig reads the YAML file at path over the defaults and applies
// BENCH_* environment overrides. An empty path skips the file.
func LoadConfig(path string) (*Config, error) {
	return loadConfig(path, env.Options{Prefix: EnvPrefix})
}

func loadConfig(path string, opts env.Options) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		src, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(src, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.LogLevel)
	}

	if _, err := time.ParseDuration(c.SubgraphTimeout); err != nil {
		return fmt.Errorf("invalid subgraph_timeout %q: %w", c.SubgraphTimeout, err)
	}
	if _, err := time.ParseDuration(c.SDLFetch.Timeout); err != nil {
		return fmt.Errorf("invalid sdl_fetch.timeout %q: %w", c.SDLFetch.Timeout, err)
	}

	if len(c.Services.List) == 0 {
		return errors.New("no services configured")
	}
	seen := make(map[string]bool)
	for _, s := range c.Services.List {
		if s.Name == "" {
			return errors.New("service without name")
		}
		if seen[s.Name] {
			return fmt.Errorf("duplicate service %q", s.Name)
		}
		seen[s.Name] = true

		if c.Services.Embedded {
			if s.Port < 0 || s.Port > 65535 {
				return fmt.Errorf("invalid port %d for service %s", s.Port, s.Name)
			}
		} else if s.Host == "" {
			return fmt.Errorf("service %s needs a host when services are not embedded", s.Name)
		}
	}

	return nil
}

// Address is the host:port the harness listens on.
func (c *Config) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// ServiceOptions returns the embedded services to start.
func (c *Config) ServiceOptions() []services.Option {
	options := make([]services.Option, 0, len(c.Services.List))
	for _, s := range c.Services.List {
		options = append(options, services.Option{Name: s.Name, Port: s.Port})
	}
	return options
}

// GatewayServices returns the services of a non-embedded setup.
func (c *Config) GatewayServices() []gateway.GatewayService {
	list := make([]gateway.GatewayService, 0, len(c.Services.List))
	for _, s := range c.Services.List {
		list = append(list, gateway.GatewayService{Name: s.Name, Host: s.Host})
	}
	return list
}
