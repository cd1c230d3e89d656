// Package sysmem detects physical memory and derives batch sizes that keep
// a single in-flight batch well inside it.
package sysmem

// FallbackTotalBytes is assumed when detection is unsupported or fails.
const FallbackTotalBytes uint64 = 4 << 30

// Result holds the detected memory total.
type Result struct {
	TotalBytes uint64
	// Detected is false when TotalBytes is FallbackTotalBytes.
	Detected bool
}

// Total reports physical memory.
func Total() Result {
	n, ok := physicalMemory()
	if !ok || n == 0 {
		return Result{TotalBytes: FallbackTotalBytes}
	}
	return Result{TotalBytes: n, Detected: true}
}

// BatchBudget caps a requested batch row count so that rows*bytesPerRow stays
// under fraction of total memory. The result is always at least minRows.
func BatchBudget(total uint64, requested int, bytesPerRow int64, fraction float64, minRows int) int {
	if requested < minRows {
		requested = minRows
	}
	if bytesPerRow <= 0 || fraction <= 0 {
		return requested
	}
	limit := int64(float64(total) * fraction / float64(bytesPerRow))
	if limit < int64(minRows) {
		return minRows
	}
	if int64(requested) > limit {
		return int(limit)
	}
	return requested
}
