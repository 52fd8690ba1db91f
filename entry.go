package tickrtos

// Entry is a task's entry point, or a scheduler-start hook callback
// (original_source/src/Callback.hpp's fixed-size inline callback box).
//
// A Go func value is already a small, fixed-size (two-word) descriptor
// that does not heap-box its captured state per call the way
// std::function does; there is no allocation win left to chase by
// wrapping it further, so Entry is simply func() rather than a hand-rolled
// inline-buffer type. See DESIGN.md for the full reasoning.
type Entry func()
