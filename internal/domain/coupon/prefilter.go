package coupon

import (
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
)

// CodeFilter is a bloom filter over every stored coupon code. A negative
// answer is definite, so unknown codes are rejected without a database
// lookup. Codes are only ever added; deleted codes stay as false positives
// until the next Reset.
type CodeFilter struct {
	capacity uint
	fpr      float64

	mu     sync.RWMutex
	filter *bloom.BloomFilter
}

// NewCodeFilter returns an empty filter sized for capacity codes at the given
// false positive rate. Until Reset is called it answers "maybe" for every code.
func NewCodeFilter(capacity uint, fpr float64) *CodeFilter {
	return &CodeFilter{capacity: capacity, fpr: fpr}
}

// Reset replaces the filter contents with codes.
func (f *CodeFilter) Reset(codes []string) {
	n := f.capacity
	if uint(len(codes)) > n {
		n = uint(len(codes)) * 2
	}
	bf := bloom.NewWithEstimates(n, f.fpr)
	for _, code := range codes {
		bf.AddString(NormalizeCode(code))
	}

	f.mu.Lock()
	f.filter = bf
	f.mu.Unlock()
}

// Add records code in the filter. It is a no-op before the first Reset.
func (f *CodeFilter) Add(code string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.filter != nil {
		f.filter.AddString(NormalizeCode(code))
	}
}

// MayContain reports whether code might be stored.
func (f *CodeFilter) MayContain(code string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.filter == nil {
		return true
	}
	return f.filter.TestString(NormalizeCode(code))
}
