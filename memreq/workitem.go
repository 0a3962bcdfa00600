package memreq

// WorkItem is the message an RT-core emits to the ray coalescer when a
// ray's traversal reaches a child-treelet reference: the ray stops
// traversing locally and is handed off to whichever RT-core eventually
// drains the bucket the coalescer routes it into.
type WorkItem struct {
	RayID     uint32
	SegmentID uint32
	OrderHint uint8
}

// BucketComplete is the notification an RT-core sends the coalescer when it
// finishes draining a bucket it was handed, used to advance the owning
// segment's retired-bucket count (§4.5 "Completion").
type BucketComplete struct {
	SegmentID uint32
}
