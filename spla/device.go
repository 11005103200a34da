// Copyright 2026 spla authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package spla

import (
	"sync"

	"golang.org/x/sys/cpu"
)

// DeviceType is the class of compute device requested by Config, mirroring
// the device_type enumeration.
type DeviceType int

const (
	DeviceGPU DeviceType = iota
	DeviceCPU
	DeviceAccelerator
)

// DeviceInfo describes one entry the manager can hand out. Features is a
// small bag of capability strings; for CPU-class devices it is populated
// from golang.org/x/sys/cpu feature bits, here used to describe, not
// dispatch on, the device.
type DeviceInfo struct {
	ID       int
	Type     DeviceType
	Name     string
	Features []string
}

// DeviceManager holds the set of compute devices available to a Library and
// hands out a device ID per task via round-robin or fixed-allocation.
type DeviceManager struct {
	mu      sync.Mutex
	devices []DeviceInfo
	counter uint64
}

func newDeviceManager(devices []DeviceInfo) *DeviceManager {
	return &DeviceManager{devices: devices}
}

// detectCPUFeatures builds the Features list for a host CPU device entry
// from runtime x/sys/cpu feature bits.
func detectCPUFeatures() []string {
	var feats []string
	if cpu.X86.HasAVX2 {
		feats = append(feats, "avx2")
	}
	if cpu.X86.HasAVX512F {
		feats = append(feats, "avx512f")
	}
	if cpu.X86.HasSSE42 {
		feats = append(feats, "sse4.2")
	}
	if cpu.ARM64.HasASIMD {
		feats = append(feats, "neon")
	}
	if cpu.ARM64.HasSVE {
		feats = append(feats, "sve")
	}
	if len(feats) == 0 {
		feats = append(feats, "scalar")
	}
	return feats
}

// DeviceCount returns the number of devices this manager holds.
func (m *DeviceManager) DeviceCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.devices)
}

// Devices returns a copy of the device list for introspection.
func (m *DeviceManager) Devices() []DeviceInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]DeviceInfo, len(m.devices))
	copy(out, m.devices)
	return out
}

// deviceHint is the subset of a node's effective descriptor the manager
// consults; kept separate from Descriptor to avoid an import cycle-shaped
// dependency between device.go and descriptor.go's richer type.
type deviceHint struct {
	pinned       bool
	pinnedID     int
	fixedPolicy  bool
}

// FetchDevice chooses a device ID for a single task, following the same
// precedence as FetchDevices: pinned device id (falling back if out of
// range), else fixed-strategy (a single task is position 0, so device 0),
// else round-robin.
func (m *DeviceManager) FetchDevice(hint deviceHint) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.devices) == 0 {
		return 0, errf(ErrKindDeviceNotPresent, "FetchDevice", "no devices registered")
	}
	if hint.pinned && hint.pinnedID >= 0 && hint.pinnedID < len(m.devices) {
		return hint.pinnedID, nil
	}
	if hint.fixedPolicy {
		return 0, nil
	}
	id := int(m.counter % uint64(len(m.devices)))
	m.counter++
	return id, nil
}

// FetchDevices returns a vector of length k used when a node emits k
// equally-complex per-block tasks. Within one call, positions are
// consistent with each other (round-robin advances per position) but not
// with any other call.
func (m *DeviceManager) FetchDevices(k int, hint deviceHint) ([]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.devices) == 0 {
		return nil, errf(ErrKindDeviceNotPresent, "FetchDevices", "no devices registered")
	}
	out := make([]int, k)
	n := len(m.devices)
	if hint.pinned && hint.pinnedID >= 0 && hint.pinnedID < n {
		for i := range out {
			out[i] = hint.pinnedID
		}
		return out, nil
	}
	if hint.fixedPolicy {
		for i := range out {
			out[i] = i % n
		}
		return out, nil
	}
	for i := range out {
		out[i] = int(m.counter % uint64(n))
		m.counter++
	}
	return out, nil
}
