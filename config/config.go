// Package config provides configuration loading and management for
// autopress.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/c360studio/autopress/llm"
)

// Config is the complete autopress configuration.
type Config struct {
	LLM      LLMConfig      `yaml:"llm"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	NATS     NATSConfig     `yaml:"nats"`
	Web      WebConfig      `yaml:"web"`
	Entities EntityConfig   `yaml:"entities"`
}

// LLMConfig maps capabilities to endpoint chains.
type LLMConfig struct {
	// Endpoints defines named model endpoints.
	Endpoints map[string]*llm.EndpointConfig `yaml:"endpoints"`
	// Capabilities maps a capability to an ordered preference chain of
	// endpoint names. The first healthy endpoint wins.
	Capabilities map[string][]string `yaml:"capabilities"`
	// Timeout is the maximum time to wait for model responses.
	Timeout time.Duration `yaml:"timeout"`
}

// PipelineConfig holds the pipeline thresholds.
type PipelineConfig struct {
	// CoverageThreshold is the spec coverage percentage below which the
	// LLM gap-fill runs.
	CoverageThreshold float64 `yaml:"coverage_threshold"`
	// JudgePassScore is the overall quality score at which a draft ships.
	JudgePassScore float64 `yaml:"judge_pass_score"`
	// MaxImproveAttempts bounds the judge-and-improve loop.
	MaxImproveAttempts int `yaml:"max_improve_attempts"`
}

// NATSConfig configures the article store connection.
type NATSConfig struct {
	// URL is the NATS server URL. Empty disables persistence.
	URL string `yaml:"url"`
}

// WebConfig configures web context gathering.
type WebConfig struct {
	// Timeout is the per-page fetch timeout.
	Timeout time.Duration `yaml:"timeout"`
	// MaxPageBytes bounds a fetched page body.
	MaxPageBytes int64 `yaml:"max_page_bytes"`
	// MaxContextChars caps the combined gathered context.
	MaxContextChars int `yaml:"max_context_chars"`
}

// EntityConfig configures the brand alias table.
type EntityConfig struct {
	// AliasFile is the path to a YAML brand alias file. Empty uses the
	// built-in table.
	AliasFile string `yaml:"alias_file"`
	// Watch reloads the alias file on change.
	Watch bool `yaml:"watch"`
}

// DefaultConfig returns a Config with sensible defaults: a local Ollama
// endpoint serving every capability.
func DefaultConfig() *Config {
	return &Config{
		LLM: LLMConfig{
			Endpoints: map[string]*llm.EndpointConfig{
				"local": {
					Provider: "ollama",
					URL:      "http://localhost:11434/v1",
					Model:    "qwen2.5:14b",
				},
			},
			Capabilities: map[string][]string{
				string(llm.CapabilityWriting):    {"local"},
				string(llm.CapabilityJudging):    {"local"},
				string(llm.CapabilityExtraction): {"local"},
				string(llm.CapabilityFast):       {"local"},
			},
			Timeout: 3 * time.Minute,
		},
		Pipeline: PipelineConfig{
			CoverageThreshold:  70,
			JudgePassScore:     7.0,
			MaxImproveAttempts: 2,
		},
		Web: WebConfig{
			Timeout:         20 * time.Second,
			MaxPageBytes:    2 * 1024 * 1024,
			MaxContextChars: 12000,
		},
	}
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if len(c.LLM.Endpoints) == 0 {
		return fmt.Errorf("llm.endpoints must define at least one endpoint")
	}
	for name, ep := range c.LLM.Endpoints {
		if ep == nil || ep.Provider == "" {
			return fmt.Errorf("llm.endpoints.%s: provider is required", name)
		}
		if ep.Model == "" {
			return fmt.Errorf("llm.endpoints.%s: model is required", name)
		}
	}
	for capName, chain := range c.LLM.Capabilities {
		if !llm.Capability(capName).IsValid() {
			return fmt.Errorf("llm.capabilities: unknown capability %q", capName)
		}
		for _, name := range chain {
			if _, ok := c.LLM.Endpoints[name]; !ok {
				return fmt.Errorf("llm.capabilities.%s references undefined endpoint %q", capName, name)
			}
		}
	}
	if c.Pipeline.CoverageThreshold < 0 || c.Pipeline.CoverageThreshold > 100 {
		return fmt.Errorf("pipeline.coverage_threshold must be between 0 and 100")
	}
	if c.Pipeline.JudgePassScore < 1 || c.Pipeline.JudgePassScore > 10 {
		return fmt.Errorf("pipeline.judge_pass_score must be between 1 and 10")
	}
	if c.Pipeline.MaxImproveAttempts < 0 {
		return fmt.Errorf("pipeline.max_improve_attempts must not be negative")
	}
	return nil
}

// Registry builds the LLM endpoint registry from the configuration.
func (c *Config) Registry() *llm.Registry {
	chains := make(map[llm.Capability][]string, len(c.LLM.Capabilities))
	for capName, chain := range c.LLM.Capabilities {
		chains[llm.Capability(capName)] = chain
	}
	return llm.NewRegistry(chains, c.LLM.Endpoints)
}

// LoadFromFile loads configuration from a YAML file. Environment variable
// references ($VAR, ${VAR}) are expanded before parsing, so API keys and
// server URLs can live outside the file.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	config := DefaultConfig()
	if err := yaml.Unmarshal([]byte(expanded), config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	return config, nil
}

// SaveToFile saves configuration to a YAML file.
func (c *Config) SaveToFile(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Merge merges another config into this one (other takes precedence for
// non-zero values; endpoint and capability maps merge per key).
func (c *Config) Merge(other *Config) {
	if other == nil {
		return
	}

	for name, ep := range other.LLM.Endpoints {
		if c.LLM.Endpoints == nil {
			c.LLM.Endpoints = make(map[string]*llm.EndpointConfig)
		}
		c.LLM.Endpoints[name] = ep
	}
	for capName, chain := range other.LLM.Capabilities {
		if c.LLM.Capabilities == nil {
			c.LLM.Capabilities = make(map[string][]string)
		}
		c.LLM.Capabilities[capName] = chain
	}
	if other.LLM.Timeout != 0 {
		c.LLM.Timeout = other.LLM.Timeout
	}

	if other.Pipeline.CoverageThreshold != 0 {
		c.Pipeline.CoverageThreshold = other.Pipeline.CoverageThreshold
	}
	if other.Pipeline.JudgePassScore != 0 {
		c.Pipeline.JudgePassScore = other.Pipeline.JudgePassScore
	}
	if other.Pipeline.MaxImproveAttempts != 0 {
		c.Pipeline.MaxImproveAttempts = other.Pipeline.MaxImproveAttempts
	}

	if other.NATS.URL != "" {
		c.NATS.URL = other.NATS.URL
	}

	if other.Web.Timeout != 0 {
		c.Web.Timeout = other.Web.Timeout
	}
	if other.Web.MaxPageBytes != 0 {
		c.Web.MaxPageBytes = other.Web.MaxPageBytes
	}
	if other.Web.MaxContextChars != 0 {
		c.Web.MaxContextChars = other.Web.MaxContextChars
	}

	if other.Entities.AliasFile != "" {
		c.Entities.AliasFile = other.Entities.AliasFile
	}
	if other.Entities.Watch {
		c.Entities.Watch = true
	}
}
