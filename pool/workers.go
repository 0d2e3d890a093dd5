package pool

import (
	"runtime"

	"github.com/klauspost/cpuid/v2"
)

// DefaultWorkerCount sizes the pool's goroutine count off physical CPU
// topology rather than a bare runtime.NumCPU() call: on hybrid
// architectures it prefers physical cores (inference work is compute
// bound, not hyperthread-friendly), falling back to logical cores when
// the physical count can't be determined, same fallback order
// GetOptimalThreadCount uses.
func DefaultWorkerCount() int {
	available := runtime.NumCPU()

	if cpuid.CPU.PhysicalCores > 0 {
		if cpuid.CPU.PhysicalCores < available {
			return cpuid.CPU.PhysicalCores
		}
		return available
	}

	if cpuid.CPU.LogicalCores > 0 && cpuid.CPU.LogicalCores < available {
		return cpuid.CPU.LogicalCores
	}
	return available
}
