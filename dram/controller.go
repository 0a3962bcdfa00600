package dram

import (
	"fmt"

	"github.com/sarchlab/rtxsim/iconn"
	"github.com/sarchlab/rtxsim/memreq"
)

// Controller bridges the cycle-stepped simulator to a black-box Model,
// exposing the standard {request_port_write_valid, write_request,
// return_port_read_valid, peek_return, read_return} interface (§4.6).
type Controller struct {
	name  string
	model Model
	addrs *AddrMap

	pendingReq *memreq.Request // request awaiting acceptance by the model
	returns    *iconn.Cascade[memreq.Return]

	nextReturnID uint64
	inFlight     map[uint64]*memreq.Request // returnID -> originating request

	lastErr error
}

// NewController wraps model behind the cycle-level interface, routing
// channels with addrs.
func NewController(name string, model Model, addrs *AddrMap) *Controller {
	return &Controller{
		name:     name,
		model:    model,
		addrs:    addrs,
		returns:  iconn.NewCascade[memreq.Return](64),
		inFlight: make(map[uint64]*memreq.Request),
	}
}

func (c *Controller) Name() string { return c.name }

// IsRequestPortWriteValid reports whether WriteRequest would currently be
// accepted.
func (c *Controller) IsRequestPortWriteValid() bool {
	return c.pendingReq == nil
}

// WriteRequest submits a memory-level request for translation into a
// controller-level Command. It must only be called when
// IsRequestPortWriteValid returns true.
func (c *Controller) WriteRequest(req memreq.Request) {
	if c.pendingReq != nil {
		panic("dram: write_request while port busy")
	}
	r := req
	c.pendingReq = &r
}

// Rise translates any pending request into a Command and attempts to send
// it; on the model's internal rejection the request remains pending and is
// retried next cycle (§7: external faults surface, they are not silently
// retried against a different channel, only resubmitted verbatim).
func (c *Controller) Rise(cycle uint64) {
	c.model.Tick(cycle)

	if c.pendingReq == nil {
		return
	}

	kind := Read
	if c.pendingReq.Kind == memreq.STORE {
		kind = Write
	}

	returnID := c.nextReturnID
	cmd := Command{
		Addr:     c.pendingReq.Addr,
		Kind:     kind,
		SourceID: c.pendingReq.Port,
		ReturnID: returnID,
		Channel:  c.addrs.Channel(c.pendingReq.Addr),
	}

	if err := c.model.Send(cmd); err != nil {
		c.lastErr = fmt.Errorf("dram controller %s: send failed for return id %d: %w", c.name, returnID, err)
		return
	}

	c.inFlight[returnID] = c.pendingReq
	c.nextReturnID++
	c.pendingReq = nil
}

// Fall drains completions signalled by the model this cycle and enqueues
// the corresponding Returns onto the return cascade.
func (c *Controller) Fall(cycle uint64) {
	for _, comp := range c.model.PollCompletions() {
		req, ok := c.inFlight[comp.ReturnID]
		if !ok {
			continue
		}
		delete(c.inFlight, comp.ReturnID)

		var payload [memreq.MaxBlockSize]byte
		copy(payload[:], comp.Data)

		if !c.returns.IsWriteValid() {
			// Response crossbar busy: in a faithful model this would stall
			// the DRAM's own pipeline; here the cascade capacity is sized
			// generously and a full cascade indicates a misconfiguration.
			panic("dram: return cascade overflow")
		}
		c.returns.Write(memreq.FromRequest(req, payload))
	}
}

// IsReturnPortReadValid reports whether a Return is available.
func (c *Controller) IsReturnPortReadValid() bool {
	return c.returns.IsReadValid()
}

// PeekReturn returns the head of the return queue without consuming it.
func (c *Controller) PeekReturn() (memreq.Return, bool) {
	return c.returns.Peek()
}

// ReadReturn consumes and returns the head of the return queue.
func (c *Controller) ReadReturn() (memreq.Return, bool) {
	return c.returns.Read()
}

// LastError returns the most recent external-fault error surfaced by the
// model, if any, without clearing it.
func (c *Controller) LastError() error { return c.lastErr }

// Power returns the model's aggregate power counters.
func (c *Controller) Power() PowerCounters { return c.model.Power() }
