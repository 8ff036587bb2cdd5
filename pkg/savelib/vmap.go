package savelib

import "sync"

// VMap is a mutex-guarded generic map safe for concurrent use.
type VMap[kT comparable, vT any] struct {
	kv map[kT]vT
	mu sync.RWMutex
}

// NewVMap returns an initialized VMap.
func NewVMap[kT comparable, vT any]() *VMap[kT, vT] {
	return &VMap[kT, vT]{kv: make(map[kT]vT)}
}

// Set stores a value for the given key.
func (vm *VMap[kT, vT]) Set(key kT, val vT) {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	vm.kv[key] = val
}

// Get retrieves the value for the given key, reporting whether it exists.
func (vm *VMap[kT, vT]) Get(key kT) (val vT, ok bool) {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	val, ok = vm.kv[key]
	return
}

// SetIfAbsent stores val only when key has no value yet and reports
// whether the store happened.
func (vm *VMap[kT, vT]) SetIfAbsent(key kT, val vT) bool {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	if _, ok := vm.kv[key]; ok {
		return false
	}
	vm.kv[key] = val
	return true
}

// Delete removes a key from the map. Missing keys are a no-op.
func (vm *VMap[kT, vT]) Delete(key kT) {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	delete(vm.kv, key)
}

// Len returns the number of stored entries.
func (vm *VMap[kT, vT]) Len() int {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return len(vm.kv)
}

// Range iterates over all entries. Iteration stops early when f returns
// false. The map must not be modified from within f.
func (vm *VMap[kT, vT]) Range(f func(key kT, val vT) bool) {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	for k, v := range vm.kv {
		if !f(k, v) {
			return
		}
	}
}
