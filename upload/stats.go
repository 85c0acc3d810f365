package upload

import (
	"sync"
	"time"
)

// Stats tracks slice upload timings for logging and reporting.
type Stats struct {
	sum            time.Duration
	finishedSlices int64
	uploadedBytes  int64
	mu             sync.Mutex
}

// NewStats creates a new Stats instance.
func NewStats() *Stats {
	return &Stats{}
}

// Update records an accepted slice of the given size.
func (s *Stats) Update(d time.Duration, size int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sum += d
	s.finishedSlices++
	s.uploadedBytes += size
}

// Average returns the average upload duration of accepted slices.
func (s *Stats) Average() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.finishedSlices == 0 {
		return 0
	}
	return s.sum / time.Duration(s.finishedSlices)
}

// FinishedCount returns the number of accepted slices.
func (s *Stats) FinishedCount() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finishedSlices
}

// UploadedBytes returns the number of bytes sent in accepted slices.
func (s *Stats) UploadedBytes() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.uploadedBytes
}

// TotalDuration returns the sum of all slice upload durations.
func (s *Stats) TotalDuration() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sum
}
