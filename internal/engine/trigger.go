package engine

import "time"

// shouldFlush is the trigger evaluator: flush when the batch reaches the
// size threshold or has been open longer than the age threshold. It is
// evaluated after every successful add; the manual fire path bypasses it.
func shouldFlush(size int, age time.Duration, sizeThreshold int, ageThreshold time.Duration) bool {
	if size <= 0 {
		return false
	}
	return size >= sizeThreshold || age > ageThreshold
}

// inQuietWindow reports whether hour falls inside [start, end), wrapping
// midnight when start > end. Equal bounds mean the window is disabled.
func inQuietWindow(hour, start, end int) bool {
	if start == end {
		return false
	}
	if start < end {
		return hour >= start && hour < end
	}
	return hour >= start || hour < end
}
