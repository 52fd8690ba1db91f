package tickrtos

// Duration is a signed millisecond duration, the kernel's native time unit
// (mirrors original_source/src/Config.hpp's `duration = std::chrono::
// duration<int32_t, std::milli>`). A 32-bit signed millisecond range is
// about 24.8 days, ample for a sleep/timeout argument.
type Duration int32

// TimePoint is a 64-bit absolute time point, counted in Duration units
// since the scheduler started (original_source's `time_point`).
type TimePoint int64

// Startup is the TimePoint the scheduler starts at.
const Startup TimePoint = 0

// Add returns t advanced by d.
func (t TimePoint) Add(d Duration) TimePoint { return t + TimePoint(d) }

// Sub returns the signed Duration from other to t (t - other).
func (t TimePoint) Sub(other TimePoint) Duration { return Duration(t - other) }

// Before reports whether t is strictly earlier than other.
func (t TimePoint) Before(other TimePoint) bool { return t < other }
