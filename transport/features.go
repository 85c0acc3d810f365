package transport

import (
	"strconv"
	"sync"
)

// FeatureFlag is a bit recording that a client feature was used.
type FeatureFlag uint32

// Feature flags reported in the SdkVersion header.
const (
	NoneFlag           FeatureFlag = 0
	RedirectHandler    FeatureFlag = 1 << 0
	RetryHandler       FeatureFlag = 1 << 1
	AuthHandler        FeatureFlag = 1 << 2
	DefaultHTTPClient  FeatureFlag = 1 << 3
	LoggingHandler     FeatureFlag = 1 << 4
	FileUploadFlag     FeatureFlag = 1 << 5
	BatchRequestFlag   FeatureFlag = 1 << 6
	URLReplacementFlag FeatureFlag = 1 << 7
)

// FeatureUsage accumulates the features a client used. It is passed to the
// components that set flags; nothing reads it from global state.
type FeatureUsage struct {
	mu    sync.Mutex
	flags FeatureFlag
}

// NewFeatureUsage returns an accumulator with the given flags already set.
func NewFeatureUsage(flags ...FeatureFlag) *FeatureUsage {
	f := &FeatureUsage{}
	f.Set(flags...)
	return f
}

// Set adds flags to the accumulator.
func (f *FeatureUsage) Set(flags ...FeatureFlag) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, flag := range flags {
		f.flags |= flag
	}
}

// Flags returns the accumulated bitmask.
func (f *FeatureUsage) Flags() FeatureFlag {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.flags
}

// Has ...
func (f *FeatureUsage) Has(flag FeatureFlag) bool {
	return f.Flags()&flag == flag
}

// String returns the bitmask as lowercase hex, the way it is sent on the wire.
func (f *FeatureUsage) String() string {
	return strconv.FormatUint(uint64(f.Flags()), 16)
}
