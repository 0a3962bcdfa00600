package iconn

// Arbiter resolves contention for a single shared resource among N
// requesting sources using round-robin priority. It guarantees the
// crossbar-fairness property of §8.6: over any window of C cycles with N
// contending sources, each source is granted at least ⌊C/N⌋ − 1 times.
type Arbiter struct {
	numSources int
	last       int
}

// NewArbiter creates a round-robin Arbiter over numSources sources.
func NewArbiter(numSources int) *Arbiter {
	if numSources <= 0 {
		panic("iconn: arbiter needs at least one source")
	}
	return &Arbiter{numSources: numSources, last: numSources - 1}
}

// Grant returns the index of the granted source among those whose bit is
// set in requesting, starting the scan just after the last granted source,
// or -1 if no source is requesting. The granted source becomes the new
// starting point for the next call.
func (a *Arbiter) Grant(requesting []bool) int {
	if len(requesting) != a.numSources {
		panic("iconn: requesting vector length mismatch")
	}
	for i := 1; i <= a.numSources; i++ {
		idx := (a.last + i) % a.numSources
		if requesting[idx] {
			a.last = idx
			return idx
		}
	}
	return -1
}
