// SPDX-License-Identifier: MIT

package exi

import "sync"

// Handle is the opaque token handed across the host boundary in place of a
// device pointer. Handles are paired: every Register must eventually be
// matched by a Release; nothing is cleaned up automatically.
type Handle uint64

var (
	registryMu sync.Mutex
	registry   = make(map[Handle]*Device)
	nextHandle Handle = 1
)

// Register stores the device and returns its handle.
func Register(d *Device) Handle {
	registryMu.Lock()
	defer registryMu.Unlock()

	h := nextHandle
	nextHandle++
	registry[h] = d
	return h
}

// Get looks up a live device by handle.
func Get(h Handle) (*Device, bool) {
	registryMu.Lock()
	defer registryMu.Unlock()

	d, ok := registry[h]
	return d, ok
}

// Release removes the handle and closes its device. Returns false when the
// handle is unknown or already released.
func Release(h Handle) bool {
	registryMu.Lock()
	d, ok := registry[h]
	delete(registry, h)
	registryMu.Unlock()

	if !ok {
		return false
	}
	_ = d.Close()
	return true
}
