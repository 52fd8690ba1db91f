// Package archsim implements arch.Controller on a development host using
// goroutines, channels, and a time.Ticker, so the kernel can run and be
// exercised without real Cortex-M silicon. It plays the same role the
// teacher's tickclock.go TickClock plays for vrunq's scheduler: a software
// stand-in for a hardware clock, here extended to also stand in for the
// NVIC base-priority register and the PendSV/SysTick exception trampoline.
package archsim

import (
	"sync"
	"time"

	"tickrtos/arch"
)

// CPU is a simulated single-core Cortex-M interrupt controller. The zero
// value is not usable; construct with New.
type CPU struct {
	mu           sync.Mutex
	basePriority arch.IsrPriority
	primask      bool
	isrStack     []arch.IsrPriority // nested simulated-ISR priorities; empty = thread mode
	pendSVPend   bool

	priorities map[arch.Exception]arch.IsrPriority

	pendSVHandler  func()
	systickHandler func()

	ticker *time.Ticker
	stopCh chan struct{}
}

// New constructs a CPU with the base-priority mask at its reset value
// (lowest priority, i.e. nothing masked).
func New() *CPU {
	return &CPU{
		basePriority: arch.LowestPriority,
		priorities:   make(map[arch.Exception]arch.IsrPriority),
	}
}

func (c *CPU) SetPriority(exc arch.Exception, p arch.IsrPriority) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.priorities[exc] = p
}

func (c *CPU) Priority(exc arch.Exception) arch.IsrPriority {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.priorities[exc]
}

func (c *CPU) SetBasePriority(p arch.IsrPriority) arch.IsrPriority {
	c.mu.Lock()
	defer c.mu.Unlock()
	prev := c.basePriority
	c.basePriority = p
	return prev
}

func (c *CPU) BasePriority() arch.IsrPriority {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.basePriority
}

func (c *CPU) CurrentPriority() (arch.IsrPriority, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.isrStack) == 0 {
		return 0, false
	}
	return c.isrStack[len(c.isrStack)-1], true
}

// EnterISR simulates taking an interrupt at the given priority, for tests
// and demo code that want to exercise ISR-context kernel calls (e.g.
// ConditionVariable.NotifyOne from "inside an ISR"). Callers must call the
// returned leave function exactly once, on the same goroutine, before
// returning from the simulated handler.
func (c *CPU) EnterISR(p arch.IsrPriority) (leave func()) {
	c.mu.Lock()
	c.isrStack = append(c.isrStack, p)
	c.mu.Unlock()
	return func() {
		c.mu.Lock()
		c.isrStack = c.isrStack[:len(c.isrStack)-1]
		c.mu.Unlock()
	}
}

// SetPendSVHandler / SetSystickHandler wire the kernel's context-switch
// callback and system-tick handler. A real target instead routes
// PendSV_Handler/SysTick_Handler to equivalent entry points.
func (c *CPU) SetPendSVHandler(fn func())  { c.mu.Lock(); c.pendSVHandler = fn; c.mu.Unlock() }
func (c *CPU) SetSystickHandler(fn func()) { c.mu.Lock(); c.systickHandler = fn; c.mu.Unlock() }

// TriggerPendSV services the pending-switch handler synchronously: there
// is no real asynchronous exception to wait for in the simulation, and
// PendSV is by construction the lowest-priority exception, so servicing it
// immediately once the triggering context releases the scheduler's lock is equivalent
// to "it will run as soon as nothing else is pending."
func (c *CPU) TriggerPendSV() {
	c.mu.Lock()
	handler := c.pendSVHandler
	c.pendSVPend = false
	c.mu.Unlock()
	if handler != nil {
		handler()
	}
}

func (c *CPU) ClearPendSV() {
	c.mu.Lock()
	c.pendSVPend = false
	c.mu.Unlock()
}

func (c *CPU) DisableInterrupts() {
	c.mu.Lock()
	c.primask = true
	c.mu.Unlock()
}

func (c *CPU) EnableInterrupts() {
	c.mu.Lock()
	c.primask = false
	c.mu.Unlock()
}

func (c *CPU) Primask() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.primask
}

// EnableSystick ignores the reload value; the simulated tick source is
// actually started by Start, since only it knows the wall-clock period to
// drive the simulation at.
func (c *CPU) EnableSystick(reload uint32) {}

// Start begins emitting system ticks every period by calling the
// registered systick handler, simulating the 1kHz SysTick interrupt at
// whatever rate is convenient for a test or demo.
func (c *CPU) Start(period time.Duration) {
	c.mu.Lock()
	if c.ticker != nil {
		c.mu.Unlock()
		return
	}
	c.ticker = time.NewTicker(period)
	c.stopCh = make(chan struct{})
	ticker := c.ticker
	stop := c.stopCh
	c.mu.Unlock()

	go func() {
		for {
			select {
			case <-ticker.C:
				c.mu.Lock()
				h := c.systickHandler
				c.mu.Unlock()
				if h != nil {
					h()
				}
			case <-stop:
				return
			}
		}
	}()
}

// Stop halts the simulated tick source. Safe to call even if Start was
// never called.
func (c *CPU) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ticker != nil {
		c.ticker.Stop()
	}
	if c.stopCh != nil {
		close(c.stopCh)
		c.stopCh = nil
	}
	c.ticker = nil
}

// Tick drives exactly one simulated system tick synchronously, for tests
// that want deterministic control over time instead of a real ticker.
func (c *CPU) Tick() {
	c.mu.Lock()
	h := c.systickHandler
	c.mu.Unlock()
	if h != nil {
		h()
	}
}

var _ arch.Controller = (*CPU)(nil)
