package iconn

// Pipeline is a fixed-latency stage: a value written at cycle c becomes
// available at cycle c+latency. Used for the node-intersect (3 cycles) and
// triangle-intersect (22 cycles) pipelines in the RT-core, and for cache
// data-array access latency.
type Pipeline[T any] struct {
	latency uint64
	slots   []pipelineSlot[T]
}

type pipelineSlot[T any] struct {
	value     T
	readyAt   uint64
	occupied  bool
}

// NewPipeline creates a Pipeline with the given fixed latency in cycles.
// Latency must be at least 1.
func NewPipeline[T any](latency uint64) *Pipeline[T] {
	if latency == 0 {
		panic("iconn: pipeline latency must be >= 1")
	}
	return &Pipeline[T]{latency: latency}
}

// Push inserts a value at the given cycle; it emerges at cycle+latency.
func (p *Pipeline[T]) Push(now uint64, value T) {
	p.slots = append(p.slots, pipelineSlot[T]{
		value:    value,
		readyAt:  now + p.latency,
		occupied: true,
	})
}

// Pop drains and returns every value whose latency has elapsed as of now.
// Order of emergence matches order of insertion.
func (p *Pipeline[T]) Pop(now uint64) []T {
	var ready []T
	rest := p.slots[:0]
	for _, s := range p.slots {
		if s.occupied && s.readyAt <= now {
			ready = append(ready, s.value)
			continue
		}
		rest = append(rest, s)
	}
	p.slots = rest
	return ready
}

// Len returns the number of values still in flight.
func (p *Pipeline[T]) Len() int { return len(p.slots) }

// Latency returns the pipeline's fixed latency.
func (p *Pipeline[T]) Latency() uint64 { return p.latency }
