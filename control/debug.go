// control/debug.go
// Author: momentics <momentics@gmail.com>
//
// Named probes evaluated on demand for state dumps.

package control

import (
	"fmt"
	"io"
	"sort"
	"sync"
)

// DebugProbes holds registered probe functions.
type DebugProbes struct {
	mu     sync.RWMutex
	probes map[string]func() any
}

// NewDebugProbes creates a probe registry.
func NewDebugProbes() *DebugProbes {
	return &DebugProbes{
		probes: make(map[string]func() any),
	}
}

// RegisterProbe inserts a named debug hook, replacing one of the same name.
func (dp *DebugProbes) RegisterProbe(name string, fn func() any) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.probes[name] = fn
}

// DumpState returns output of all probes.
func (dp *DebugProbes) DumpState() map[string]any {
	dp.mu.RLock()
	defer dp.mu.RUnlock()
	out := make(map[string]any, len(dp.probes))
	for k, fn := range dp.probes {
		out[k] = fn()
	}
	return out
}

// WriteTo writes one "name: value" line per probe, sorted by name.
func (dp *DebugProbes) WriteTo(w io.Writer) (int64, error) {
	state := dp.DumpState()
	names := make([]string, 0, len(state))
	for k := range state {
		names = append(names, k)
	}
	sort.Strings(names)
	var total int64
	for _, k := range names {
		n, err := fmt.Fprintf(w, "%s: %v\n", k, state[k])
		total += int64(n)
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
