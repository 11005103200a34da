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

import "runtime"

// DeviceAmount selects how many devices of the requested DeviceType a
// Library instance acquires at construction, per the device_amount enum.
type DeviceAmount int

const (
	DeviceAmountOne DeviceAmount = iota
	DeviceAmountAll
)

// Config enumerates everything Library.New validates and acts on, matching
// the field list one for one.
type Config struct {
	DeviceType    DeviceType
	DeviceAmount  DeviceAmount
	PlatformName  string
	DeviceNames   []string
	BlockSize     int
	WorkersCount  int // 0 means runtime.GOMAXPROCS(0)
	LogFile       string
}

// Library is the process-instance root every public constructor takes: the
// type/operator catalogue, the device manager, the algorithm registry, the
// task pool, and the library-owned logger all live here, not behind package
// globals.
type Library struct {
	catalogue *Catalogue
	devices   *DeviceManager
	registry  *Registry
	pool      *Pool
	log       *logger
	defaults  *Descriptor
	blockSize int
}

// New validates config and constructs a Library. An empty resulting device
// selection fails with DeviceNotPresent.
func New(config Config) (*Library, error) {
	if config.BlockSize <= 0 {
		return nil, errf(ErrKindInvalidArgument, "Library.New", "block size must be positive, got %d", config.BlockSize)
	}
	devices := selectDevices(config)
	if len(devices) == 0 {
		return nil, newErr(ErrKindDeviceNotPresent, "Library.New", nil)
	}
	lg, err := newLogger(config.LogFile)
	if err != nil {
		return nil, err
	}
	workers := config.WorkersCount
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	lib := &Library{
		catalogue: newCatalogue(),
		devices:   newDeviceManager(devices),
		registry:  newRegistry(lg),
		pool:      newPool(workers),
		log:       lg,
		defaults:  NewDescriptor(),
		blockSize: config.BlockSize,
	}
	lib.log.log(logInfo, "library constructed: %d device(s), %d worker(s), block_size=%d", len(devices), workers, config.BlockSize)
	return lib, nil
}

// selectDevices builds the DeviceInfo list per config.DeviceType/DeviceAmount.
// There being no real accelerator in a hosted build, every requested device
// type resolves to a host-process entry; DeviceNames, when given, is taken
// as the authoritative count, one entry per name.
func selectDevices(config Config) []DeviceInfo {
	names := config.DeviceNames
	if len(names) == 0 {
		switch config.DeviceAmount {
		case DeviceAmountAll:
			names = []string{"default"}
			if config.DeviceType == DeviceCPU {
				n := runtime.NumCPU()
				names = make([]string, n)
				for i := range names {
					names[i] = "cpu"
				}
			}
		default:
			names = []string{"default"}
		}
	}
	feats := detectCPUFeatures()
	out := make([]DeviceInfo, len(names))
	for i, name := range names {
		out[i] = DeviceInfo{ID: i, Type: config.DeviceType, Name: name, Features: feats}
	}
	return out
}

// Catalogue exposes the library's type/operator catalogue to the public
// Type/FunctionBinary/FunctionUnary/FunctionSelect constructors.
func (lib *Library) Catalogue() *Catalogue { return lib.catalogue }

// Devices exposes the library's device manager for introspection.
func (lib *Library) Devices() *DeviceManager { return lib.devices }

// Defaults returns the library-wide default descriptor, the lowest layer of
// the effectiveDescriptor stack.
func (lib *Library) Defaults() *Descriptor { return lib.defaults }

// Submit accepts a built Expression, runs the scheduler synchronously up to
// the point the composite task graph is dispatched to the pool, and returns
// immediately; the caller observes completion via Expression.Wait/.State.
func (lib *Library) Submit(expr *Expression) error {
	return lib.schedule(expr)
}

// Close shuts down the library's worker pool. Safe to call once after every
// submitted expression has been waited on.
func (lib *Library) Close() {
	lib.pool.Close()
}
