// Copyright 2025 Stampede Runtime. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package sim provides the public core types of the Stampede runtime:
// shapes, element kinds, host payloads, and launch geometry.
//
// Example:
//
//	geom, _ := sim.FixGeometry(1024, 5, 64)
//	fmt.Println(geom.GridDim, geom.BlockDim) // 1024 64
package sim

import (
	"github.com/stampede-rl/stampede/internal/sim"
)

// Shape represents the dimensions of a device array, leading dimension
// conventionally the environment count.
type Shape = sim.Shape

// DataType is the on-device element kind.
type DataType = sim.DataType

// Canonical element kinds.
const (
	Float32 DataType = sim.Float32
	Int32   DataType = sim.Int32
)

// HostArray is a host-resident payload for push and pull transfers.
type HostArray = sim.HostArray

// Geometry is the environment-per-group, agent-per-thread launch shape.
type Geometry = sim.Geometry

// NewHostArray allocates a zero-filled host array.
func NewHostArray(shape Shape, dtype DataType) (*HostArray, error) {
	return sim.NewHostArray(shape, dtype)
}

// FromPayload normalizes a host payload (including 64-bit inputs) into
// a HostArray with a canonical 32-bit element kind.
func FromPayload(shape Shape, payload any) (*HostArray, error) {
	return sim.FromPayload(shape, payload)
}

// FixGeometry derives the launch geometry from the problem shape.
func FixGeometry(numEnvs, numAgents, laneMultiple int) (Geometry, error) {
	return sim.FixGeometry(numEnvs, numAgents, laneMultiple)
}
