package sysmem

import "runtime"

// Heap is a sample of Go runtime memory usage.
type Heap struct {
	Alloc uint64
	Sys   uint64
	NumGC uint32
}

// ReadHeap samples runtime memory statistics. It briefly stops the world,
// so call it between batches rather than per row.
func ReadHeap() Heap {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return Heap{Alloc: m.HeapAlloc, Sys: m.Sys, NumGC: m.NumGC}
}

// PeakTracker remembers the largest heap allocation it has observed. It is
// not safe for concurrent use.
type PeakTracker struct {
	peak uint64
}

// Observe samples the heap and updates the peak.
func (t *PeakTracker) Observe() Heap {
	h := ReadHeap()
	t.peak = max(t.peak, h.Alloc)
	return h
}

// Peak returns the largest HeapAlloc seen by Observe.
func (t *PeakTracker) Peak() uint64 { return t.peak }
