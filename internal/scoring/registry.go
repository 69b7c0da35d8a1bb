package scoring

import (
	"fmt"
	"slices"
	"sync"
)

// DefaultPolicy is used when the configuration names no policy.
const DefaultPolicy = PolicyQualitative

// Built-in policy names.
const (
	PolicyQualitative   = "qualitative"
	PolicyHeuristicText = "heuristic-text"
)

var (
	policies   = make(map[string]*Policy)
	policiesMu sync.RWMutex
)

func init() {
	Register(Qualitative())
	Register(HeuristicText())
}

// Register makes a policy selectable by name. It panics on a duplicate
// name; intended for init().
func Register(p *Policy) {
	policiesMu.Lock()
	defer policiesMu.Unlock()

	if _, exists := policies[p.Name()]; exists {
		panic(fmt.Sprintf("scoring: policy already registered: %s", p.Name()))
	}
	policies[p.Name()] = p
}

// Lookup returns the registered policy with the given name.
func Lookup(name string) (*Policy, error) {
	policiesMu.RLock()
	defer policiesMu.RUnlock()

	p, ok := policies[name]
	if !ok {
		return nil, fmt.Errorf("scoring: unknown policy %q (available: %v)", name, namesLocked())
	}
	return p, nil
}

// Names lists the registered policy names, sorted.
func Names() []string {
	policiesMu.RLock()
	defer policiesMu.RUnlock()
	return namesLocked()
}

func namesLocked() []string {
	names := make([]string, 0, len(policies))
	for name := range policies {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
