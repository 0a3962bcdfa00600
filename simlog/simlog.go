// Package simlog provides the structured, leveled logging and the
// cycle-by-cycle counter accumulation used to produce the final textual
// report (spec §6 "Output"). It follows the teacher's core package:
// log/slog with a custom LevelTrace level, and a CycleAccumulator-style
// per-unit buffer, here scoped to counters rather than per-PE port traces.
package simlog

import (
	"context"
	"log/slog"
)

// LevelTrace is one step above Info, for per-cycle diagnostics kept
// distinct from Debug. A handler at Info emits trace records; a handler at
// LevelTrace emits them and drops plain Info records.
const LevelTrace slog.Level = slog.LevelInfo + 1

// Trace logs msg at LevelTrace.
func Trace(msg string, args ...any) {
	slog.Log(context.Background(), LevelTrace, msg, args...)
}

// CycleAccumulator collects per-cycle counter deltas for one unit,
// flushed to a polling callback every Config.LoggingInterval cycles.
type CycleAccumulator struct {
	UnitName string
	Cycle    uint64
	Counters map[string]int64
	Changed  bool
}

// NewCycleAccumulator creates a fresh accumulator for unitName at cycle.
func NewCycleAccumulator(unitName string, cycle uint64) *CycleAccumulator {
	return &CycleAccumulator{
		UnitName: unitName,
		Cycle:    cycle,
		Counters: make(map[string]int64),
	}
}

// Add accumulates delta into the named counter for this cycle.
func (a *CycleAccumulator) Add(name string, delta int64) {
	a.Counters[name] += delta
	a.Changed = true
}

// PollFunc is the user's periodic callback, invoked every
// Config.LoggingInterval cycles with the accumulated deltas since the last
// call.
type PollFunc func(cycle uint64, totals map[string]map[string]int64)

// Poller batches CycleAccumulator updates and invokes a PollFunc every
// interval cycles, the way the teacher's waveform log batches PEStateLog
// entries per cycle rather than emitting one slog record per port update.
type Poller struct {
	interval uint64
	lastPoll uint64
	fn       PollFunc
	pending  map[string]map[string]int64 // unit -> counter -> total
}

// NewPoller constructs a Poller invoking fn every interval cycles.
func NewPoller(interval uint64, fn PollFunc) *Poller {
	if interval == 0 {
		interval = 1
	}
	return &Poller{interval: interval, fn: fn, pending: make(map[string]map[string]int64)}
}

// Record folds an accumulator's counters into the pending batch.
func (p *Poller) Record(acc *CycleAccumulator) {
	if !acc.Changed {
		return
	}
	totals, ok := p.pending[acc.UnitName]
	if !ok {
		totals = make(map[string]int64)
		p.pending[acc.UnitName] = totals
	}
	for k, v := range acc.Counters {
		totals[k] += v
	}
}

// Tick should be called once per cycle after recording that cycle's
// accumulators; it invokes fn and resets the batch once interval cycles
// have elapsed.
func (p *Poller) Tick(cycle uint64) {
	if cycle+1-p.lastPoll < p.interval {
		return
	}
	p.lastPoll = cycle + 1
	if p.fn == nil || len(p.pending) == 0 {
		p.pending = make(map[string]map[string]int64)
		return
	}
	p.fn(cycle, p.pending)
	p.pending = make(map[string]map[string]int64)
}
