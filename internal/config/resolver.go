package config

import (
	"cmp"
	"slices"

	"github.com/flemzord/qaindex/internal/core"
)

// provisionRank orders namespaces whose services are needed by later
// modules during Provision: the tracer, then the snapshot backend the
// store opens, then the store. Everything else (gateway, scheduler)
// resolves its dependencies at Start and loads last.
var provisionRank = map[string]int{
	"telemetry": 0,
	"snapshot":  1,
	"store":     2,
}

func rank(id string) int {
	if r, ok := provisionRank[core.ModuleID(id).Namespace()]; ok {
		return r
	}
	return len(provisionRank)
}

// Resolve returns the configured module IDs in load order: by namespace
// rank, then by ID.
func Resolve(cfg *Config) []string {
	ids := make([]string, 0, len(cfg.Modules))
	for id := range cfg.Modules {
		ids = append(ids, id)
	}
	slices.SortFunc(ids, func(a, b string) int {
		return cmp.Or(cmp.Compare(rank(a), rank(b)), cmp.Compare(a, b))
	})
	return ids
}
