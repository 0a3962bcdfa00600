package rtcore

import "github.com/sarchlab/rtxsim/treelet"

// StackEntry is one node-traversal stack frame: the entry t-value used for
// pop-cull, and the tagged child reference it resumes from.
type StackEntry struct {
	T    float32
	Slot treelet.ChildSlot
}

// fetchKind distinguishes what an in-flight memory fetch is assembling.
type fetchKind int

const (
	fetchNone fetchKind = iota
	fetchNode
	fetchLeaf
)

// rayState is one in-flight ray's complete traversal state, held in a Core's
// ray-slot array.
type rayState struct {
	occupied bool

	ray    Ray
	invDir [3]float32
	hit    Hit

	stack        []StackEntry
	globalIndex  uint32
	treeletIndex uint32
	segmentID    uint32
	phase        Phase
	orderHint    uint8 // treelet hops so far, bumped each dispatchToCoalescer (§4.5 priority weight)

	fetch        fetchKind
	fetchBuf     []byte
	fetchWant    int
	fetchBase    uint64 // DRAM address the in-flight fetch started at
	fetchCount   uint32 // K (leaf) or Width (node), needed to decode
	fetchLeafIdx uint32 // PrimIndex of the leaf being fetched
}

func (s *rayState) reset() {
	*s = rayState{}
}

// fetchBaseAddr returns the DRAM address an in-flight fetch's next sub-read
// should start at.
func (s *rayState) fetchBaseAddr() uint64 {
	return s.fetchBase + uint64(len(s.fetchBuf))
}

func (s *rayState) pushStack(t float32, slot treelet.ChildSlot) {
	s.stack = append(s.stack, StackEntry{T: t, Slot: slot})
}

// popStack removes and returns the top of the stack (LIFO).
func (s *rayState) popStack() (StackEntry, bool) {
	if len(s.stack) == 0 {
		return StackEntry{}, false
	}
	top := s.stack[len(s.stack)-1]
	s.stack = s.stack[:len(s.stack)-1]
	return top, true
}

// insertNearFirst inserts entry into the stack by simple insertion sort,
// keeping t descending from bottom to top so the nearest entry pops first.
// The scan runs over the whole stack, not only the entries pushed for the
// current node.
func (s *rayState) insertNearFirst(entry StackEntry) {
	i := len(s.stack)
	s.stack = append(s.stack, entry)
	for i > 0 && s.stack[i-1].T < entry.T {
		s.stack[i] = s.stack[i-1]
		i--
	}
	s.stack[i] = entry
}
