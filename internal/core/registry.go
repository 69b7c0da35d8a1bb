package core

import (
	"cmp"
	"fmt"
	"slices"
	"sync"
)

// registry holds every module compiled into the binary, keyed by ID.
type registry struct {
	mu   sync.RWMutex
	byID map[ModuleID]ModuleInfo
}

var modules = &registry{byID: make(map[ModuleID]ModuleInfo)}

func (r *registry) add(info ModuleInfo) error {
	switch {
	case info.ID == "":
		return fmt.Errorf("module ID must not be empty")
	case info.New == nil:
		return fmt.Errorf("module %s: New function must not be nil", info.ID)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.byID[info.ID]; dup {
		return fmt.Errorf("module already registered: %s", info.ID)
	}
	r.byID[info.ID] = info
	return nil
}

// list returns the modules accepted by keep, ordered by ID.
func (r *registry) list(keep func(ModuleID) bool) []ModuleInfo {
	r.mu.RLock()
	out := make([]ModuleInfo, 0, len(r.byID))
	for id, info := range r.byID {
		if keep == nil || keep(id) {
			out = append(out, info)
		}
	}
	r.mu.RUnlock()

	slices.SortFunc(out, func(a, b ModuleInfo) int { return cmp.Compare(a.ID, b.ID) })
	return out
}

// RegisterModule records a module under the ID from its ModuleInfo. Call it
// from init(); an empty, duplicate or constructor-less module panics.
func RegisterModule(instance Module) {
	if err := modules.add(instance.ModuleInfo()); err != nil {
		panic(err.Error())
	}
}

// GetModule looks a module up by ID.
func GetModule(id string) (ModuleInfo, bool) {
	modules.mu.RLock()
	defer modules.mu.RUnlock()
	info, ok := modules.byID[ModuleID(id)]
	return info, ok
}

// GetModules returns every registered module ordered by ID.
func GetModules() []ModuleInfo {
	return modules.list(nil)
}

// GetModulesByNamespace returns the registered modules of one namespace,
// ordered by ID. Config validation uses it to find the snapshot backends.
func GetModulesByNamespace(namespace string) []ModuleInfo {
	return modules.list(func(id ModuleID) bool { return id.Namespace() == namespace })
}

// resetRegistry empties the registry between tests.
func resetRegistry() {
	modules.mu.Lock()
	defer modules.mu.Unlock()
	modules.byID = make(map[ModuleID]ModuleInfo)
}
