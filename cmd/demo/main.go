// Command demo boots a tickrtos kernel on the host simulation and runs a
// small producer/consumer scenario across a handful of simulated ticks,
// in the same spirit as the teacher's cmd/ticksched demo: construct a
// scheduler from a config, start it, drive it for a while, print what
// happened.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"tickrtos"
	"tickrtos/archsim"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML kernel config (defaults built in if empty)")
	ticks := flag.Int("ticks", 50, "number of simulated system ticks to run")
	flag.Parse()

	cfg, err := tickrtos.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "demo:", err)
		os.Exit(1)
	}

	cpu := archsim.New()
	trace := tickrtos.NewTraceHooks(os.Stdout)
	sched := tickrtos.New(cfg, cpu, tickrtos.WithHooks(trace))
	trace.AttachScheduler(sched)

	buf := make(chan int, 4)
	mu := sched.NewMutex(tickrtos.PriorityNormal)
	notEmpty := sched.NewConditionVariable()
	notFull := sched.NewConditionVariable()

	var producer, consumer *tickrtos.Task

	producer = sched.Spawn("producer", tickrtos.PriorityHigh, func() {
		for i := 0; i < 20; i++ {
			mu.Lock(producer)
			for len(buf) == cap(buf) {
				notFull.Wait(producer, mu)
			}
			buf <- i
			notEmpty.NotifyOne()
			mu.Unlock()
			sched.SleepFor(tickrtos.Duration(2))
		}
	})

	consumer = sched.Spawn("consumer", tickrtos.PriorityNormal, func() {
		for i := 0; i < 20; i++ {
			mu.Lock(consumer)
			for len(buf) == 0 {
				notEmpty.Wait(consumer, mu)
			}
			v := <-buf
			notFull.NotifyOne()
			mu.Unlock()
			fmt.Printf("[t=%d] consumed %d\n", sched.Now(), v)
			sched.SleepFor(tickrtos.Duration(3))
		}
	})

	sched.Start(nil)
	cpu.Start(time.Millisecond)
	defer cpu.Stop()

	time.Sleep(time.Duration(*ticks) * time.Millisecond)

	fmt.Println("--- final snapshot ---")
	for _, snap := range sched.Snapshot() {
		fmt.Printf("%-10s prio=%#x state=%s\n", snap.Name, snap.Priority, snap.State)
	}
}
