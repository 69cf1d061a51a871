package pipeline

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
)

// PostHook analyses a collected data directory.
type PostHook func(ctx context.Context, dataDir string) error

// Hooks maps post-analysis names to their implementation.
type Hooks map[string]PostHook

// Lookup returns nil for "" and "none".
func (h Hooks) Lookup(name string) (PostHook, error) {
	if name == "" || name == "none" {
		return nil, nil
	}
	hook, ok := h[name]
	if !ok {
		names := slices.Sorted(maps.Keys(h))
		return nil, fmt.Errorf("unknown post-analysis %q (available: %s)", name, strings.Join(append(names, "none"), ", "))
	}
	return hook, nil
}
