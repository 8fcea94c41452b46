// Package config loads and validates experiment configuration. The
// runtime core consumes only the env section's counts; the policy,
// trainer and saving sections are validated here and handed to the
// training-loop collaborator untouched.
package config

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Algorithm names accepted in the policy section.
const (
	AlgorithmA2C = "a2c"
	AlgorithmPPO = "ppo"
)

// Config is the experiment configuration file. Top-level sections are
// fixed; unknown keys are rejected by the strict decoder.
type Config struct {
	Env     EnvConfig     `yaml:"env"`
	Trainer TrainerConfig `yaml:"trainer"`
	Policy  PolicyConfig  `yaml:"policy"`
	Saving  SavingConfig  `yaml:"saving"`
}

// EnvConfig is the problem shape the core consumes.
type EnvConfig struct {
	NumEnvs       int `yaml:"num_envs"`
	NumAgents     int `yaml:"num_agents"`
	EpisodeLength int `yaml:"episode_length"`
}

// TrainerConfig is consumed by the external training loop.
type TrainerConfig struct {
	NumIterations int   `yaml:"num_iterations"`
	BatchSize     int   `yaml:"batch_size"`
	Seed          int64 `yaml:"seed"`
}

// PolicyConfig describes the policy the external trainer optimizes.
type PolicyConfig struct {
	ToTrain   bool    `yaml:"to_train"`
	Algorithm string  `yaml:"algorithm"`
	Gamma     float64 `yaml:"gamma"`
	LR        float64 `yaml:"lr"`
	Model     Model   `yaml:"model"`
}

// Model is the network shape descriptor: hidden layer widths.
type Model struct {
	HiddenSizes []int `yaml:"hidden_sizes"`
}

// SavingConfig controls where traces and checkpoints land.
type SavingConfig struct {
	Dir      string `yaml:"dir"`
	TagName  string `yaml:"tag"`
	LogLevel string `yaml:"log_level"`
	LogJSON  bool   `yaml:"log_json"`
}

// Load reads and validates a configuration file.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes configuration bytes strictly: unknown keys anywhere in
// the document are an error, not silently ignored.
func Parse(data []byte) (Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: decode: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the configuration invariants the runtime depends on.
func (c Config) Validate() error {
	if c.Env.NumEnvs <= 0 {
		return fmt.Errorf("config: env.num_envs must be positive, got %d", c.Env.NumEnvs)
	}
	if c.Env.NumAgents <= 0 {
		return fmt.Errorf("config: env.num_agents must be positive, got %d", c.Env.NumAgents)
	}
	if c.Env.EpisodeLength <= 0 {
		return fmt.Errorf("config: env.episode_length must be positive, got %d", c.Env.EpisodeLength)
	}
	switch c.Policy.Algorithm {
	case "", AlgorithmA2C, AlgorithmPPO:
	default:
		return fmt.Errorf("config: policy.algorithm %q not recognized (accepted: %s, %s)",
			c.Policy.Algorithm, AlgorithmA2C, AlgorithmPPO)
	}
	if c.Policy.Gamma < 0 || c.Policy.Gamma > 1 {
		return fmt.Errorf("config: policy.gamma %v outside [0, 1]", c.Policy.Gamma)
	}
	return nil
}

// Default returns a small working configuration used by the CLI when no
// file is given.
func Default() Config {
	return Config{
		Env:     EnvConfig{NumEnvs: 2, NumAgents: 3, EpisodeLength: 16},
		Trainer: TrainerConfig{NumIterations: 10, BatchSize: 1, Seed: 1},
		Policy:  PolicyConfig{Algorithm: AlgorithmA2C, Gamma: 0.99, LR: 3e-4},
		Saving:  SavingConfig{Dir: "runs", LogLevel: "info"},
	}
}
