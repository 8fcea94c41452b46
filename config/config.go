// Copyright 2025 Stampede Runtime. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package config provides the public experiment configuration surface.
package config

import (
	"github.com/stampede-rl/stampede/internal/config"
)

// Config is the experiment configuration with env, trainer, policy and
// saving sections.
type Config = config.Config

// Section types.
type (
	EnvConfig     = config.EnvConfig
	TrainerConfig = config.TrainerConfig
	PolicyConfig  = config.PolicyConfig
	SavingConfig  = config.SavingConfig
	Model         = config.Model
)

// Accepted policy algorithms.
const (
	AlgorithmA2C = config.AlgorithmA2C
	AlgorithmPPO = config.AlgorithmPPO
)

// Load reads and validates a configuration file.
func Load(path string) (Config, error) {
	return config.Load(path)
}

// Parse decodes configuration bytes strictly.
func Parse(data []byte) (Config, error) {
	return config.Parse(data)
}

// Default returns a small working configuration.
func Default() Config {
	return config.Default()
}
