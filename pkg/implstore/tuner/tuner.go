// Package tuner detects system resources and derives worker counts for the
// implementation store's walk, hashing and audit pools.
package tuner

// SystemResources contains detected system resources.
type SystemResources struct {
	// CPUCores is the number of logical CPU cores available.
	CPUCores int

	// TotalRAM is the total physical RAM in bytes.
	TotalRAM int64

	// AvailableRAM is the free RAM in bytes. It may be an estimate.
	AvailableRAM int64
}

// defaultTotalRAM is used when memory cannot be detected.
const defaultTotalRAM = 8 * 1024 * 1024 * 1024
