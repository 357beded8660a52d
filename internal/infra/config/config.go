// Package config loads and validates the gateway's YAML configuration.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"mcpgw/internal/domain"
)

// BreakerConfig is one circuit breaker's profile.
type BreakerConfig struct {
	TimeoutSeconds    int     `mapstructure:"timeoutSeconds"`
	ErrorRate         float64 `mapstructure:"errorRate"`
	MinVolume         int     `mapstructure:"minVolume"`
	ResetDelaySeconds int     `mapstructure:"resetDelaySeconds"`
}

func (b BreakerConfig) Timeout() time.Duration    { return time.Duration(b.TimeoutSeconds) * time.Second }
func (b BreakerConfig) ResetDelay() time.Duration { return time.Duration(b.ResetDelaySeconds) * time.Second }

type BreakersConfig struct {
	ToolCall     BreakerConfig `mapstructure:"toolCall"`
	ResourceRead BreakerConfig `mapstructure:"resourceRead"`
	PromptGet    BreakerConfig `mapstructure:"promptGet"`
}

type CacheConfig struct {
	TTLSeconds   int `mapstructure:"ttlSeconds"`
	MaxSize      int `mapstructure:"maxSize"`
	SweepSeconds int `mapstructure:"sweepSeconds"`
}

func (c CacheConfig) TTL() time.Duration       { return time.Duration(c.TTLSeconds) * time.Second }
func (c CacheConfig) SweepTick() time.Duration { return time.Duration(c.SweepSeconds) * time.Second }

type SamplingConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	Provider     string `mapstructure:"provider"`
	Model        string `mapstructure:"model"`
	APIKey       string `mapstructure:"apiKey"`
	APIKeyEnvVar string `mapstructure:"apiKeyEnvVar"`
	BaseURL      string `mapstructure:"baseUrl"`
}

type ElicitationConfig struct {
	// Mode selects the handler: "queue" parks requests for an operator,
	// "cancel" answers everything with a cancel action.
	Mode               string `mapstructure:"mode"`
	WaitTimeoutSeconds int    `mapstructure:"waitTimeoutSeconds"`
}

func (e ElicitationConfig) WaitTimeout() time.Duration {
	return time.Duration(e.WaitTimeoutSeconds) * time.Second
}

type Config struct {
	ListenAddress         string            `mapstructure:"listenAddress"`
	MetricsAddress        string            `mapstructure:"metricsAddress"`
	AuthHeader            string            `mapstructure:"authHeader"`
	StorePath             string            `mapstructure:"storePath"`
	CatalogTimeoutSeconds int               `mapstructure:"catalogTimeoutSeconds"`
	Breakers              BreakersConfig    `mapstructure:"breakers"`
	Cache                 CacheConfig       `mapstructure:"cache"`
	SchemeRoutes          map[string]string `mapstructure:"schemeRoutes"`
	Sampling              SamplingConfig    `mapstructure:"sampling"`
	Elicitation           ElicitationConfig `mapstructure:"elicitation"`
}

func (c Config) CatalogTimeout() time.Duration {
	return time.Duration(c.CatalogTimeoutSeconds) * time.Second
}

func newConfigViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("MCPGW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	return v
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("listenAddress", domain.DefaultListenAddress)
	v.SetDefault("metricsAddress", domain.DefaultMetricsAddress)
	v.SetDefault("authHeader", "x-caller-id")
	v.SetDefault("storePath", "data/presets.db")
	v.SetDefault("catalogTimeoutSeconds", int(domain.DefaultCatalogTimeout/time.Second))

	v.SetDefault("breakers.toolCall.timeoutSeconds", int(domain.DefaultToolCallTimeout/time.Second))
	v.SetDefault("breakers.resourceRead.timeoutSeconds", int(domain.DefaultResourceReadTimeout/time.Second))
	v.SetDefault("breakers.promptGet.timeoutSeconds", int(domain.DefaultPromptGetTimeout/time.Second))
	for _, category := range []string{"toolCall", "resourceRead", "promptGet"} {
		v.SetDefault("breakers."+category+".errorRate", domain.DefaultBreakerErrorRate)
		v.SetDefault("breakers."+category+".minVolume", domain.DefaultBreakerMinVolume)
		v.SetDefault("breakers."+category+".resetDelaySeconds", int(domain.DefaultBreakerResetDelay/time.Second))
	}

	v.SetDefault("cache.ttlSeconds", int(domain.DefaultCacheTTL/time.Second))
	v.SetDefault("cache.maxSize", domain.DefaultCacheMaxSize)
	v.SetDefault("cache.sweepSeconds", int(domain.DefaultCacheSweepTick/time.Second))

	v.SetDefault("elicitation.mode", "cancel")
	v.SetDefault("elicitation.waitTimeoutSeconds", 120)
}

// Load reads, decodes and validates the config file at path. An empty path
// yields the defaults.
func Load(path string) (Config, error) {
	v := newConfigViper()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := v.ReadConfig(bytes.NewReader(data)); err != nil {
			return Config{}, fmt.Errorf("parse config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports every invalid field at once.
func (c Config) Validate() error {
	var problems []string
	if strings.TrimSpace(c.ListenAddress) == "" {
		problems = append(problems, "listenAddress is required")
	}
	if c.CatalogTimeoutSeconds <= 0 {
		problems = append(problems, "catalogTimeoutSeconds must be > 0")
	}
	if c.Cache.TTLSeconds <= 0 {
		problems = append(problems, "cache.ttlSeconds must be > 0")
	}
	if c.Cache.MaxSize <= 0 {
		problems = append(problems, "cache.maxSize must be > 0")
	}
	for name, breaker := range map[string]BreakerConfig{
		"breakers.toolCall":     c.Breakers.ToolCall,
		"breakers.resourceRead": c.Breakers.ResourceRead,
		"breakers.promptGet":    c.Breakers.PromptGet,
	} {
		if breaker.TimeoutSeconds <= 0 {
			problems = append(problems, name+".timeoutSeconds must be > 0")
		}
		if breaker.ErrorRate <= 0 || breaker.ErrorRate > 1 {
			problems = append(problems, name+".errorRate must be in (0, 1]")
		}
		if breaker.MinVolume <= 0 {
			problems = append(problems, name+".minVolume must be > 0")
		}
		if breaker.ResetDelaySeconds <= 0 {
			problems = append(problems, name+".resetDelaySeconds must be > 0")
		}
	}
	for scheme, backendID := range c.SchemeRoutes {
		if strings.TrimSpace(scheme) == "" || strings.TrimSpace(backendID) == "" {
			problems = append(problems, "schemeRoutes entries need a scheme and a backend id")
			break
		}
	}
	switch c.Elicitation.Mode {
	case "queue", "cancel":
	default:
		problems = append(problems, "elicitation.mode must be queue or cancel")
	}
	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}
