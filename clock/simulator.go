package clock

// Group is a dependency group: an ordered set of Units visited together.
// Groups exist so the DRAM-and-cache feedback loop resolves in a fixed
// order; within a group, Fall order is irrelevant since no Unit reads
// another's update before the next Rise.
type Group struct {
	name  string
	units []Unit
}

// Add registers a Unit into this group, in call order.
func (g *Group) Add(u Unit) {
	g.units = append(g.units, u)
}

// Name returns the group's name.
func (g *Group) Name() string { return g.name }

// DeltaLog accumulates per-cycle counters since the last flush. Units
// mutate it through Simulator.Log during Rise/Fall; the poll callback
// receives a fresh one every logging interval.
type DeltaLog struct {
	Counters map[string]int64
}

func newDeltaLog() *DeltaLog {
	return &DeltaLog{Counters: make(map[string]int64)}
}

// Add increments a named counter in the current delta log.
func (d *DeltaLog) Add(name string, delta int64) {
	d.Counters[name] += delta
}

// Simulator sweeps all registered Units' Rise handlers, then all Fall
// handlers, once per cycle, advancing a monotonic cycle counter.
type Simulator struct {
	groups []*Group
	cycle  uint64
	log    *DeltaLog
}

// NewSimulator creates an empty Simulator.
func NewSimulator() *Simulator {
	return &Simulator{log: newDeltaLog()}
}

// NewGroup creates and registers a new dependency group, appended after any
// existing groups. Units are visited group-by-group, in group registration
// order, then unit registration order within the group — resolving the
// "registration order" open question explicitly rather than leaving it to
// incidental call order.
func (s *Simulator) NewGroup(name string) *Group {
	g := &Group{name: name}
	s.groups = append(s.groups, g)
	return g
}

// Cycle returns the current cycle count.
func (s *Simulator) Cycle() uint64 { return s.cycle }

// Log returns the in-progress delta log for the current logging interval.
func (s *Simulator) Log() *DeltaLog { return s.log }

// Step advances the simulator by exactly one cycle: every Unit's Rise in
// registration order, then every Unit's Fall in registration order.
func (s *Simulator) Step() {
	for _, g := range s.groups {
		for _, u := range g.units {
			u.Rise(s.cycle)
		}
	}
	for _, g := range s.groups {
		for _, u := range g.units {
			u.Fall(s.cycle)
		}
	}
	s.cycle++
}

// PollFunc is invoked every delta cycles with the cycle count reached and
// the accumulated delta log since the previous call. The log is reset after
// each call.
type PollFunc func(cycle uint64, log *DeltaLog)

// Run executes up to budget cycles (0 means unbounded), invoking poll every
// delta cycles, until stop returns true or the budget is exhausted. A
// Violation panic is recovered and re-panicked unchanged (Abort already
// stamped its cycle); any other panic is wrapped in a Violation stamped with
// the current cycle, so callers see a single diagnostic.
func (s *Simulator) Run(budget uint64, delta uint64, stop func() bool, poll PollFunc) (ran uint64) {
	defer func() {
		if r := recover(); r != nil {
			if v, ok := r.(*Violation); ok {
				panic(v)
			}
			panic(&Violation{Cycle: s.cycle, Unit: "simulator", Message: toMessage(r)})
		}
	}()

	for budget == 0 || ran < budget {
		s.Step()
		ran++

		if delta != 0 && s.cycle%delta == 0 {
			poll(s.cycle, s.log)
			s.log = newDeltaLog()
		}

		if stop != nil && stop() {
			break
		}
	}

	if delta != 0 && poll != nil && len(s.log.Counters) > 0 {
		poll(s.cycle, s.log)
		s.log = newDeltaLog()
	}

	return ran
}

func toMessage(r any) string {
	if err, ok := r.(error); ok {
		return err.Error()
	}
	if s, ok := r.(string); ok {
		return s
	}
	return "panic in unit"
}
