//go:build unix

// control/platform_unix.go
// Author: momentics <momentics@gmail.com>
//
// Process-level probes.

package control

import (
	"os"
	"runtime"
)

// RegisterPlatformProbes adds host and runtime probes.
func RegisterPlatformProbes(dp *DebugProbes) {
	dp.RegisterProbe("platform.cpus", func() any {
		return runtime.NumCPU()
	})
	dp.RegisterProbe("platform.pid", func() any {
		return os.Getpid()
	})
	dp.RegisterProbe("runtime.goroutines", func() any {
		return runtime.NumGoroutine()
	})
}
