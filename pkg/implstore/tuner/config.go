package tuner

// Worker configuration limits.
const (
	maxWorkers      = 64
	minWalkWorkers  = 8
	minHashWorkers  = 4
	minAuditWorkers = 2
	maxAuditWorkers = 16
)

// Copy buffer bounds. Every hash or copy worker holds one buffer.
const (
	minCopyBuffer = 64 * 1024
	maxCopyBuffer = 1024 * 1024

	// copyMemoryFraction is the share of available RAM all buffers may use.
	copyMemoryFraction = 0.01
)

// OptimalConfig holds worker counts tuned to the detected resources.
type OptimalConfig struct {
	// WalkWorkers bounds parallel directory enumeration.
	WalkWorkers int

	// HashWorkers bounds files hashed or copied at once within one tree.
	HashWorkers int

	// AuditWorkers bounds store entries verified at once.
	AuditWorkers int

	// CopyBufferSize is the per-worker buffer used when copying files.
	CopyBufferSize int
}

// Calculate returns the configuration for resources.
//
//   - WalkWorkers: max(NumCPU, 8); enumeration is metadata-bound.
//   - HashWorkers: NumCPU * 2; hashing alternates between disk and CPU.
//   - AuditWorkers: NumCPU / 2, between 2 and 16; each entry already
//     hashes with HashWorkers.
//   - CopyBufferSize: a small fraction of available RAM split across the
//     hash workers.
func Calculate(resources SystemResources) OptimalConfig {
	cores := max(resources.CPUCores, 1)

	walk := min(max(cores, minWalkWorkers), maxWorkers)
	hash := min(max(cores*2, minHashWorkers), maxWorkers)
	audit := min(max(cores/2, minAuditWorkers), maxAuditWorkers)

	return OptimalConfig{
		WalkWorkers:    walk,
		HashWorkers:    hash,
		AuditWorkers:   audit,
		CopyBufferSize: calculateCopyBuffer(resources.AvailableRAM, hash),
	}
}

// CalculateWithOverrides applies user overrides to the calculated config.
// Values of zero or less keep the calculated count; larger values are capped
// at 64.
func CalculateWithOverrides(resources SystemResources, hashWorkers, auditWorkers int) OptimalConfig {
	config := Calculate(resources)
	if hashWorkers > 0 {
		config.HashWorkers = min(hashWorkers, maxWorkers)
		config.WalkWorkers = max(config.HashWorkers, 1)
	}
	if auditWorkers > 0 {
		config.AuditWorkers = min(auditWorkers, maxWorkers)
	}
	return config
}

// Auto detects resources and applies overrides. Detection errors fall back
// to defaults.
func Auto(hashWorkers, auditWorkers int) OptimalConfig {
	resources, err := Detect()
	if err != nil || resources.TotalRAM <= 0 {
		resources.TotalRAM = defaultTotalRAM
		resources.AvailableRAM = defaultTotalRAM / 2
	}
	return CalculateWithOverrides(resources, hashWorkers, auditWorkers)
}

func calculateCopyBuffer(availableRAM int64, workers int) int {
	budget := float64(availableRAM) * copyMemoryFraction / float64(max(workers, 1))
	size := int(budget)
	size = max(size, minCopyBuffer)
	size = min(size, maxCopyBuffer)
	return size
}
