package tickrtos

import (
	"fmt"
	"os"

	yaml "github.com/goccy/go-yaml"

	"tickrtos/arch"
)

// Config is the kernel's compile-time configuration surface (spec.md §6).
// It mirrors the shape of the teacher's sched.Config/Load, generalized to
// the fields this kernel actually needs.
type Config struct {
	// CoreClockHz is the CPU core clock, in Hz. Must be a multiple of
	// 1000 so the 1ms system tick divides it exactly.
	CoreClockHz uint32 `yaml:"core_clock_hz"`

	// PriorityBits is the number of NVIC priority bits implemented by the
	// target (at most 8).
	PriorityBits uint8 `yaml:"priority_bits"`

	// PreemptionBits is how many of PriorityBits are devoted to
	// preemption priority (the rest are sub-priority); must be <=
	// PriorityBits.
	PreemptionBits uint8 `yaml:"preemption_bits"`

	// KernelPreemptionLevel is the preemption level the kernel's service
	// call and systick exceptions run at; must be < 2^PreemptionBits.
	KernelPreemptionLevel uint8 `yaml:"kernel_preemption_level"`

	// DurationUnitMS is the wall-clock duration, in milliseconds, of one
	// Duration unit (default 1).
	DurationUnitMS int32 `yaml:"duration_unit_ms"`

	// MutexImplementation names the concrete Mutex implementation this
	// project uses. "priority" (the default) is the only implementation
	// this module ships; the field exists so alternate implementations
	// (e.g. a multi-processor semaphore-backed mutex) can be selected by
	// configuration without changing call sites, per spec.md §6.
	MutexImplementation string `yaml:"mutex_implementation"`
}

// DefaultConfig returns the configuration used when no file is loaded,
// matching original_source/src/Config.hpp's defaults (4 priority bits, 2
// preemption bits, kernel at preemption level 1, 1ms duration unit).
func DefaultConfig() Config {
	return Config{
		CoreClockHz:           16_000_000,
		PriorityBits:          4,
		PreemptionBits:        2,
		KernelPreemptionLevel: 1,
		DurationUnitMS:        1,
		MutexImplementation:   "priority",
	}
}

// LoadConfig reads YAML from path and overlays it onto DefaultConfig; an
// empty path returns the defaults unchanged. Unlike the teacher's Load,
// parse and range problems are returned as an error rather than silently
// clamped, since a malformed kernel configuration is a start-up-time
// caller mistake worth surfacing (spec.md §7).
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("tickrtos: reading config %q: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("tickrtos: parsing config %q: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks the static_assert-equivalent constraints from
// original_source/src/Config.hpp and spec.md §6.
func (c Config) Validate() error {
	if c.PriorityBits == 0 || c.PriorityBits > arch.MaxPreemptionBits {
		return fmt.Errorf("tickrtos: priority_bits (%d) must be in 1..%d", c.PriorityBits, arch.MaxPreemptionBits)
	}
	if c.PreemptionBits > c.PriorityBits {
		return fmt.Errorf("tickrtos: preemption_bits (%d) exceeds priority_bits (%d)", c.PreemptionBits, c.PriorityBits)
	}
	if uint16(c.KernelPreemptionLevel) >= uint16(1)<<c.PreemptionBits {
		return fmt.Errorf("tickrtos: kernel_preemption_level (%d) out of range for %d preemption bits", c.KernelPreemptionLevel, c.PreemptionBits)
	}
	if c.CoreClockHz%1000 != 0 {
		return fmt.Errorf("tickrtos: core_clock_hz (%d) must be a multiple of 1000", c.CoreClockHz)
	}
	if c.DurationUnitMS <= 0 {
		return fmt.Errorf("tickrtos: duration_unit_ms must be positive, got %d", c.DurationUnitMS)
	}
	return nil
}

// SystickReload computes the SysTick reload value for a 1ms tick period
// (spec.md §6: "system tick reload = core_clock_hz / 1000").
func (c Config) SystickReload() uint32 {
	return c.CoreClockHz / 1000
}

func (c Config) minSub() uint8 {
	if c.PriorityBits <= c.PreemptionBits {
		return 0
	}
	return uint8((1 << (c.PriorityBits - c.PreemptionBits)) - 1)
}

// ServiceCallPriority is the kernel preemption level with the highest
// (numerically lowest) sub-priority, per original_source Scheduler.hpp's
// kServiceCallPriority.
func (c Config) ServiceCallPriority() arch.IsrPriority {
	return arch.FromPreemptSub(c.PreemptionBits, c.KernelPreemptionLevel, 0)
}

// SystickPriority is the kernel preemption level with the lowest
// sub-priority, per kSystickPriority: the tick handler is preemptible by
// the service call but not by ordinary task code.
func (c Config) SystickPriority() arch.IsrPriority {
	return arch.FromPreemptSub(c.PreemptionBits, c.KernelPreemptionLevel, c.minSub())
}

// PendSVPriority is the absolute lowest priority available, per
// kPendSvPriority.
func (c Config) PendSVPriority() arch.IsrPriority {
	return arch.LowestPriority
}
