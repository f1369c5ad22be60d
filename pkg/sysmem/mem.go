// Package sysmem detects system memory so batch aggregation can warn
// before the host table outgrows the machine.
package sysmem

// DefaultMemoryBytes is the fallback (4 GiB) used when detection fails
// or the platform is unsupported.
const DefaultMemoryBytes uint64 = 4 * 1024 * 1024 * 1024

// Result holds the result of memory detection.
type Result struct {
	TotalBytes uint64

	// Reliable is false when TotalBytes is the fallback default.
	Reliable bool
}

// Total returns the total system memory.
func Total() Result {
	bytes, ok := totalSystemMemory()
	if !ok || bytes == 0 {
		return Result{TotalBytes: DefaultMemoryBytes}
	}
	return Result{TotalBytes: bytes, Reliable: true}
}

// TotalBytes returns just the memory value.
func TotalBytes() uint64 {
	return Total().TotalBytes
}

// Budget returns fraction of total memory, clamped to [0, 1].
// The batch aggregator warns once its estimated footprint crosses it.
func Budget(fraction float64) uint64 {
	switch {
	case fraction <= 0:
		return 0
	case fraction > 1:
		fraction = 1
	}
	return uint64(float64(TotalBytes()) * fraction)
}
