package tickrtos_test

import (
	"sync"
	"testing"
	"time"

	"tickrtos"
	"tickrtos/arch"
	"tickrtos/archsim"
)

func TestMutexExcludesConcurrentIncrement(t *testing.T) {
	cpu := archsim.New()
	sched := tickrtos.New(tickrtos.DefaultConfig(), cpu)
	mu := sched.NewMutex(tickrtos.PriorityNormal)

	counter := 0
	const perTask = 200
	var wg sync.WaitGroup
	wg.Add(2)

	var a, b *tickrtos.Task
	a = sched.Spawn("a", tickrtos.PriorityNormal, func() {
		defer wg.Done()
		for i := 0; i < perTask; i++ {
			mu.Lock(a)
			counter++
			mu.Unlock()
			sched.Yield()
		}
	})
	b = sched.Spawn("b", tickrtos.PriorityNormal, func() {
		defer wg.Done()
		for i := 0; i < perTask; i++ {
			mu.Lock(b)
			counter++
			mu.Unlock()
			sched.Yield()
		}
	})

	sched.Start(nil)

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("incrementers never finished")
	}

	if counter != 2*perTask {
		t.Fatalf("expected counter=%d, got %d", 2*perTask, counter)
	}
}

func TestMutexNeverLowersAnOuterMask(t *testing.T) {
	cpu := archsim.New()
	sched := tickrtos.New(tickrtos.DefaultConfig(), cpu)
	inner := sched.NewMutex(tickrtos.PriorityLowest)
	outer := sched.EnterCritical()
	before := cpu.BasePriority()

	var holder *tickrtos.Task
	holder = sched.Spawn("holder", tickrtos.PriorityNormal, func() {})

	inner.Lock(holder)
	if got := cpu.BasePriority(); got != before {
		t.Fatalf("inner lock at a weaker ceiling must not lower the mask: before=%v after=%v", before, got)
	}
	inner.Unlock()
	if got := cpu.BasePriority(); got != before {
		t.Fatalf("unlock of a no-op inner lock must not change the mask: before=%v after=%v", before, got)
	}
	outer.Release()
}

// TestFullLockDisablesInterruptsOutright verifies NewMutex(PriorityHighest)
// takes a full lock by disabling every maskable interrupt outright
// (CortexM::disableInterrupts(), per original_source/src/PriorityMutex.cpp),
// rather than merely raising the base-priority mask to 0 — which on real
// hardware would mean "masking disabled", the opposite of a lock.
func TestFullLockDisablesInterruptsOutright(t *testing.T) {
	cpu := archsim.New()
	sched := tickrtos.New(tickrtos.DefaultConfig(), cpu)
	mu := sched.NewMutex(tickrtos.PriorityHighest)

	var holder *tickrtos.Task
	holder = sched.Spawn("holder", tickrtos.PriorityNormal, func() {})

	if cpu.Primask() {
		t.Fatal("PRIMASK must be clear before the full lock is taken")
	}
	mu.Lock(holder)
	if !cpu.Primask() {
		t.Fatal("full lock must disable interrupts (PRIMASK=1), not merely raise the base-priority mask")
	}
	mu.Unlock()
	if cpu.Primask() {
		t.Fatal("Unlock of a full lock must re-enable interrupts")
	}
}

// TestTaskOnlyMutexExcludesViaCriticalSection verifies NewTaskOnlyMutex
// (the "none" ceiling row) works purely via EnterCritical/Release — no
// ISR priority at all: Lock raises the mask and Unlock restores it.
// TestTaskOnlyMutexFromIsrPanics covers the ISR-context assertion
// (PriorityMutex.cpp's assert(CortexM::ipsr() == 0)).
func TestTaskOnlyMutexExcludesViaCriticalSection(t *testing.T) {
	cpu := archsim.New()
	sched := tickrtos.New(tickrtos.DefaultConfig(), cpu)
	mu := sched.NewTaskOnlyMutex()

	var holder *tickrtos.Task
	holder = sched.Spawn("holder", tickrtos.PriorityNormal, func() {})

	before := cpu.BasePriority()
	mu.Lock(holder)
	if got := cpu.BasePriority(); got == before {
		t.Fatal("task-only Mutex.Lock must raise the mask via a critical section")
	}
	mu.Unlock()
	if got := cpu.BasePriority(); got != before {
		t.Fatalf("task-only Mutex.Unlock must restore the mask: before=%v after=%v", before, got)
	}
}

func TestTaskOnlyMutexFromIsrPanics(t *testing.T) {
	cpu := archsim.New()
	sched := tickrtos.New(tickrtos.DefaultConfig(), cpu)
	mu := sched.NewTaskOnlyMutex()

	leave := cpu.EnterISR(arch.IsrPriority(5))
	defer leave()

	defer func() {
		if recover() == nil {
			t.Fatal("expected Lock on a task-only mutex from simulated ISR context to panic")
		}
	}()
	mu.Lock(nil)
}
