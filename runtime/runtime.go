// Copyright 2025 Stampede Runtime. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package runtime provides the public API of the Stampede execution
// runtime: construct a Runtime on a backend, push arrays, load kernels,
// and drive simulation steps entirely on device.
//
// Example:
//
//	backend := cpu.New()
//	rt, err := runtime.New(config.Default(), backend)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer rt.Close()
package runtime

import (
	"log/slog"

	"github.com/stampede-rl/stampede/internal/config"
	"github.com/stampede-rl/stampede/internal/device"
	"github.com/stampede-rl/stampede/internal/runtime"
	"github.com/stampede-rl/stampede/internal/store"
)

// Runtime owns all simulation state and dispatch machinery for one
// experiment.
type Runtime = runtime.Runtime

// Stats is a point-in-time resource report.
type Stats = runtime.Stats

// Descriptor is the transfer descriptor consumed by Push.
type Descriptor = store.Descriptor

// Program is a bundle of kernels loaded as one module.
type Program = device.Program

// Kernel is one device-executable entry point.
type Kernel = device.Kernel

// New builds a runtime on the given backend.
func New(cfg config.Config, backend device.Backend, opts ...runtime.Option) (*Runtime, error) {
	return runtime.New(cfg, backend, opts...)
}

// WithLogger attaches a structured logger to a new runtime.
func WithLogger(log *slog.Logger) runtime.Option {
	return runtime.WithLogger(log)
}

// WithHostVisible exposes a pushed allocation as a zero-copy host view
// when the backend has the aliasing capability.
func WithHostVisible() store.PushOption {
	return store.WithHostVisible()
}
