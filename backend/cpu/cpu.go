// Copyright 2025 Stampede Runtime. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package cpu provides the reference execution backend: host memory,
// Go kernel functions, and zero-copy host views. Use it for tests and
// machines without a GPU.
//
// Example:
//
//	backend := cpu.New()
//	rt, err := runtime.New(config.Default(), backend)
package cpu

import (
	internalcpu "github.com/stampede-rl/stampede/internal/backend/cpu"
)

// Backend runs kernels on the host with the device launch geometry.
type Backend = internalcpu.Backend

// New creates a reference backend.
func New() *Backend {
	return internalcpu.New()
}
