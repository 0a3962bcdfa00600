// Package coalescer implements the ray coalescer and treelet scheduler: the
// unit that sits between RT-cores and DRAM, batching rays bound for the same
// treelet into fixed-size buckets, deciding which treelets are active, and
// dispatching batched rays back out to requesting RT-cores.
package coalescer

// BucketSize is the on-disk/in-SRAM size of one bucket in bytes (§3/§6).
const BucketSize = 1024

// bucketRayIDBytes is the encoded width of one ray id slot.
const bucketRayIDBytes = 4

// BucketCapacity is the number of ray ids one bucket holds.
const BucketCapacity = BucketSize / bucketRayIDBytes

// BucketState enforces the "a bucket is never simultaneously open for
// writing and queued for dispatch" invariant of §3.
type BucketState int

const (
	BucketOpen BucketState = iota
	BucketQueued
	BucketInFlight
)

func (s BucketState) String() string {
	switch s {
	case BucketOpen:
		return "OPEN"
	case BucketQueued:
		return "QUEUED"
	case BucketInFlight:
		return "IN_FLIGHT"
	default:
		return "UNKNOWN"
	}
}

// Bucket is a fixed-capacity container of ray ids addressed to one segment.
type Bucket struct {
	SegmentID uint32
	RayIDs    []uint32
	State     BucketState
}

func newBucket(segmentID uint32) *Bucket {
	return &Bucket{SegmentID: segmentID, State: BucketOpen, RayIDs: make([]uint32, 0, BucketCapacity)}
}

// Full reports whether the bucket has reached BucketCapacity ray ids.
func (b *Bucket) Full() bool { return len(b.RayIDs) >= BucketCapacity }

// Append adds a ray id. It panics if the bucket is not BucketOpen or is
// already full — both are protocol violations at the coalescer call sites,
// which always check Full()/State before appending.
func (b *Bucket) Append(rayID uint32) {
	if b.State != BucketOpen {
		panic("coalescer: append to a non-open bucket")
	}
	if b.Full() {
		panic("coalescer: append to a full bucket")
	}
	b.RayIDs = append(b.RayIDs, rayID)
}
