// Copyright 2025 Stampede Runtime. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package webgpu provides the WebGPU execution backend. Kernels are
// WGSL compute shaders compiled against the fixed launch geometry and
// dispatched one workgroup per environment replica.
//
// Example:
//
//	gpu, err := webgpu.New()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	rt, err := runtime.New(config.Default(), gpu)
package webgpu

import (
	internalwebgpu "github.com/stampede-rl/stampede/internal/backend/webgpu"
)

// Backend executes WGSL kernels on a WebGPU device queue.
type Backend = internalwebgpu.Backend

// New creates a WebGPU backend, or an error if no adapter is available.
func New() (*Backend, error) {
	return internalwebgpu.New()
}

// IsAvailable checks if WebGPU is available on this system.
func IsAvailable() bool {
	return internalwebgpu.IsAvailable()
}
