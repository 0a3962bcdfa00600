// Package config builds and validates a single run's configuration record
// (spec §6 "Config inputs"), the way the teacher's cgra.DeviceBuilder
// assembles a device: a chainable, value-receiver Builder that only
// produces a usable object through Build, which performs eager validation.
package config

import "fmt"

// TraversalScheme selects the coalescer's admission-control policy.
type TraversalScheme int

const (
	BFS TraversalScheme = iota
	DFS
)

func (s TraversalScheme) String() string {
	if s == DFS {
		return "DFS"
	}
	return "BFS"
}

// WeightScheme selects how DFS admission ranks revealed children.
type WeightScheme int

const (
	WeightTotal WeightScheme = iota
	WeightAverage
	WeightInvNumRays
	WeightAppearanceOrder
)

// Config is the validated configuration for one simulation run (spec §6).
type Config struct {
	SceneName string

	NumThreads int
	NumTPs     int
	NumTMs     int
	NumRTCores int

	L1Size          uint64
	L1Associativity int
	L1InOrder       bool

	L2Size          uint64
	L2Associativity int
	L2InOrder       bool

	FramebufferWidth  int
	FramebufferHeight int

	PregenRays   bool
	PregenBounce bool

	TraversalScheme  TraversalScheme
	WeightScheme     WeightScheme
	MaxActiveSetSize uint64

	RaysOnChip bool
	WarmL2     bool

	LoggingInterval uint64
}

// ValidationError names the offending config field and its expected range,
// per §7 "Configuration errors": a human-readable abort at construction
// time, before simulation begins.
type ValidationError struct {
	Field    string
	Value    interface{}
	Expected string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: field %q has value %v, expected %s", e.Field, e.Value, e.Expected)
}

// Builder assembles a Config through chainable With* calls. NewBuilder
// seeds teacher-style defaults; Build rejects any field left out of range.
type Builder struct {
	cfg Config
}

func NewBuilder() Builder {
	return Builder{cfg: Config{
		NumThreads:        1,
		NumTPs:            1,
		NumTMs:            1,
		NumRTCores:        1,
		L1Associativity:   1,
		L2Associativity:   1,
		FramebufferWidth:  64,
		FramebufferHeight: 64,
		TraversalScheme:   BFS,
		WeightScheme:      WeightTotal,
		MaxActiveSetSize:  1 << 30,
		LoggingInterval:   1000,
	}}
}

func (b Builder) WithSceneName(name string) Builder {
	b.cfg.SceneName = name
	return b
}

func (b Builder) WithThreadCounts(numThreads, numTPs, numTMs, numRTCores int) Builder {
	b.cfg.NumThreads = numThreads
	b.cfg.NumTPs = numTPs
	b.cfg.NumTMs = numTMs
	b.cfg.NumRTCores = numRTCores
	return b
}

func (b Builder) WithL1(size uint64, associativity int, inOrder bool) Builder {
	b.cfg.L1Size = size
	b.cfg.L1Associativity = associativity
	b.cfg.L1InOrder = inOrder
	return b
}

func (b Builder) WithL2(size uint64, associativity int, inOrder bool) Builder {
	b.cfg.L2Size = size
	b.cfg.L2Associativity = associativity
	b.cfg.L2InOrder = inOrder
	return b
}

func (b Builder) WithFramebuffer(width, height int) Builder {
	b.cfg.FramebufferWidth = width
	b.cfg.FramebufferHeight = height
	return b
}

func (b Builder) WithPregen(rays, bounce bool) Builder {
	b.cfg.PregenRays = rays
	b.cfg.PregenBounce = bounce
	return b
}

func (b Builder) WithTraversalScheme(scheme TraversalScheme) Builder {
	b.cfg.TraversalScheme = scheme
	return b
}

func (b Builder) WithWeightScheme(scheme WeightScheme) Builder {
	b.cfg.WeightScheme = scheme
	return b
}

func (b Builder) WithMaxActiveSetSize(bytes uint64) Builder {
	b.cfg.MaxActiveSetSize = bytes
	return b
}

func (b Builder) WithRaysOnChip(onChip bool) Builder {
	b.cfg.RaysOnChip = onChip
	return b
}

func (b Builder) WithWarmL2(warm bool) Builder {
	b.cfg.WarmL2 = warm
	return b
}

func (b Builder) WithLoggingInterval(cycles uint64) Builder {
	b.cfg.LoggingInterval = cycles
	return b
}

// Build validates the accumulated configuration and returns it, or the
// first ValidationError encountered.
func (b Builder) Build() (*Config, error) {
	c := b.cfg

	if c.SceneName == "" {
		return nil, &ValidationError{"SceneName", c.SceneName, "non-empty"}
	}
	if c.NumThreads <= 0 {
		return nil, &ValidationError{"NumThreads", c.NumThreads, "> 0"}
	}
	if c.NumTPs <= 0 {
		return nil, &ValidationError{"NumTPs", c.NumTPs, "> 0"}
	}
	if c.NumTMs <= 0 {
		return nil, &ValidationError{"NumTMs", c.NumTMs, "> 0"}
	}
	if c.NumRTCores <= 0 {
		return nil, &ValidationError{"NumRTCores", c.NumRTCores, "> 0"}
	}
	if c.L1Associativity <= 0 {
		return nil, &ValidationError{"L1Associativity", c.L1Associativity, "> 0"}
	}
	if c.L2Associativity <= 0 {
		return nil, &ValidationError{"L2Associativity", c.L2Associativity, "> 0"}
	}
	if c.L1Size != 0 && c.L1Size%uint64(c.L1Associativity) != 0 {
		return nil, &ValidationError{"L1Size", c.L1Size, "a multiple of L1Associativity"}
	}
	if c.L2Size != 0 && c.L2Size%uint64(c.L2Associativity) != 0 {
		return nil, &ValidationError{"L2Size", c.L2Size, "a multiple of L2Associativity"}
	}
	if c.FramebufferWidth <= 0 || c.FramebufferHeight <= 0 {
		return nil, &ValidationError{"Framebuffer", fmt.Sprintf("%dx%d", c.FramebufferWidth, c.FramebufferHeight), "positive width and height"}
	}
	if c.TraversalScheme != BFS && c.TraversalScheme != DFS {
		return nil, &ValidationError{"TraversalScheme", c.TraversalScheme, "0 (BFS) or 1 (DFS)"}
	}
	if c.WeightScheme < WeightTotal || c.WeightScheme > WeightAppearanceOrder {
		return nil, &ValidationError{"WeightScheme", c.WeightScheme, "0..3"}
	}
	if c.MaxActiveSetSize == 0 {
		return nil, &ValidationError{"MaxActiveSetSize", c.MaxActiveSetSize, "> 0"}
	}
	if c.LoggingInterval == 0 {
		return nil, &ValidationError{"LoggingInterval", c.LoggingInterval, "> 0"}
	}

	return &c, nil
}
