package tickrtos_test

import (
	"testing"
	"time"

	"tickrtos"
	"tickrtos/archsim"
)

func TestTerminateRemovesTaskFromAllTasks(t *testing.T) {
	cpu := archsim.New()
	sched := tickrtos.New(tickrtos.DefaultConfig(), cpu)

	done := make(chan struct{})
	task := sched.Spawn("ephemeral", tickrtos.PriorityNormal, func() {
		close(done)
	})
	sched.Start(nil)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("ephemeral task never ran")
	}

	// Give the scheduler a moment to finish the Terminate call that
	// immediately follows the entry function returning.
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		found := false
		for _, tc := range sched.AllTasks() {
			if tc == task {
				found = true
			}
		}
		if !found {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("terminated task was never removed from AllTasks")
}

func TestSchedulerFallsBackToIdleWhenNothingReady(t *testing.T) {
	cpu := archsim.New()
	sched := tickrtos.New(tickrtos.DefaultConfig(), cpu)

	idleRan := make(chan struct{}, 1)
	var once bool
	idle := sched.Start(func() {
		if !once {
			once = true
			select {
			case idleRan <- struct{}{}:
			default:
			}
		}
	})
	if idle == nil {
		t.Fatal("expected a non-nil idle task handle")
	}

	select {
	case <-idleRan:
	case <-time.After(time.Second):
		t.Fatal("idle entry never ran with no tasks spawned")
	}
}
