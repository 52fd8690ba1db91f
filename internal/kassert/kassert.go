// Package kassert is this kernel's stand-in for original_source's liberal
// use of C++ `assert` at kernel contract boundaries (Scheduler.cpp,
// Mutex.cpp, ConditionVariable.cpp all assert on misuse rather than
// returning an error). Go has no build-mode-gated assert and no UB escape
// hatch to compile these out in a release build; a failed assertion here
// always panics, documented as "this indicates a kernel contract
// violation made by the calling code, not a recoverable runtime
// condition."
package kassert

// That reports a kernel contract violation: msg describes the invariant
// that was broken. Grounded on the original's assert call sites, which
// this package's call sites mirror one-for-one (see DESIGN.md).
func That(cond bool, msg string) {
	if !cond {
		panic("tickrtos: kernel contract violation: " + msg)
	}
}
