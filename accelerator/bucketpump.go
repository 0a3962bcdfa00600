package accelerator

import "github.com/sarchlab/rtxsim/coalescer"

// bucketPump keeps a dispatch port's request cascade topped up with
// coalescer.BucketRequests, writing one every Fall while the cascade has
// room, so a request is always parked there: an RT-core has no
// explicit "I want a bucket" output of its own (spec §4.4 has it drain
// coalescer.Coalescer.RetOut passively through BucketIn), so something
// must drive the coalescer's pull-based dispatch handshake. Backpressure
// still applies correctly: the coalescer only dispatches a bucket's rays
// into BucketIn's cascade, whose capacity the RT-core drains at its own
// pace (rtcore.Core.ingestBucketRay only admits when a ray slot is free).
type bucketPump struct {
	name string
	port int
	req  *coalescer.Coalescer
}

func newBucketPump(name string, port int, c *coalescer.Coalescer) *bucketPump {
	return &bucketPump{name: name, port: port, req: c}
}

func (p *bucketPump) Name() string { return p.name }

func (p *bucketPump) Rise(cycle uint64) {}

func (p *bucketPump) Fall(cycle uint64) {
	q := p.req.ReqIn[p.port]
	if q.IsWriteValid() {
		q.Write(coalescer.BucketRequest{Port: p.port})
	}
}
