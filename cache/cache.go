package cache

import (
	"github.com/sarchlab/rtxsim/iconn"
	"github.com/sarchlab/rtxsim/memreq"
)

// NonBlocking is a complete non-blocking cache level: a bank-indexed
// request crossbar, one Bank per bank (each with its own MSHR pool and tag
// array), and a response crossbar merging every bank's returns onto the
// single Downstream port (its selector always picks output 0; the
// destination stack is not consulted). It is a clock.Unit.
type NonBlocking struct {
	name string
	cfg  NonBlockingConfig

	reqXbar *iconn.Crossbar[memreq.Request]
	retXbar *iconn.Crossbar[memreq.Return]
	banks   []*Bank

	// upstream-facing ports (from requesters, to requesters)
	Upstream *iconn.Cascade[memreq.Request]
	Downstream *iconn.Cascade[memreq.Return]

	// downstream-facing ports (to next level, from next level)
	NextLevelOut *iconn.Cascade[memreq.Request]
	NextLevelIn  *iconn.Cascade[memreq.Return]
}

// NewNonBlocking builds a NonBlocking cache with cfg.NumBanks banks,
// selecting a bank by the low bits of the block address (a bit-mask pext
// in hardware terms, here a modulo since bank count is a power of two in
// every configuration the scheduler generates).
func NewNonBlocking(name string, cfg NonBlockingConfig) *NonBlocking {
	if cfg.NumBanks <= 0 {
		cfg.NumBanks = 1
	}

	nb := &NonBlocking{
		name:         name,
		cfg:          cfg,
		Upstream:     iconn.NewCascade[memreq.Request](16),
		Downstream:   iconn.NewCascade[memreq.Return](16),
		NextLevelOut: iconn.NewCascade[memreq.Request](16),
		NextLevelIn:  iconn.NewCascade[memreq.Return](16),
	}

	bankOf := func(addr uint64) int {
		return int((addr / cfg.Config.BlockSize) % uint64(cfg.NumBanks))
	}

	nb.reqXbar = iconn.NewCrossbar[memreq.Request](1, cfg.NumBanks, func(r memreq.Request) int {
		return bankOf(r.Addr)
	})
	nb.retXbar = iconn.NewCrossbar[memreq.Return](cfg.NumBanks, 1, func(r memreq.Return) int {
		return 0
	})

	for i := 0; i < cfg.NumBanks; i++ {
		bank := NewBank(bankName(name, i), cfg.Config, cfg.NumMSHRs, cfg.LFB, cfg.DataArrayLat)
		bank.ReqIn = iconn.NewCascade[memreq.Request](4)
		bank.RetIn = iconn.NewCascade[memreq.Return](4)
		bank.MissOut = nb.NextLevelOut
		bank.RetOut = iconn.NewCascade[memreq.Return](4)
		nb.banks = append(nb.banks, bank)
	}

	return nb
}

func bankName(parent string, i int) string {
	return parent + ".Bank" + itoa(i)
}

func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	neg := i < 0
	if neg {
		i = -i
	}
	var buf [20]byte
	p := len(buf)
	for i > 0 {
		p--
		buf[p] = byte('0' + i%10)
		i /= 10
	}
	if neg {
		p--
		buf[p] = '-'
	}
	return string(buf[p:])
}

func (nb *NonBlocking) Name() string { return nb.name }

// Banks exposes the per-bank state for reporting and testing.
func (nb *NonBlocking) Banks() []*Bank { return nb.banks }

// Rise moves requests from Upstream into the request crossbar, routes the
// crossbar, feeds each bank its admitted request, drains next-level fills
// into the per-bank fill cascades, and lets every bank process its
// ingress/fill for this cycle.
func (nb *NonBlocking) Rise(cycle uint64) {
	if nb.Upstream.IsReadValid() {
		if req, ok := nb.Upstream.Peek(); ok && !nb.reqXbar.HasPending(0) {
			nb.Upstream.Read()
			nb.reqXbar.Enqueue(0, req)
		}
	}
	nb.reqXbar.Route()

	for i, bank := range nb.banks {
		if msg, ok := nb.reqXbar.Peek(i); ok && bank.ReqIn.IsWriteValid() {
			bank.ReqIn.Write(msg)
		}
	}

	if nb.NextLevelIn.IsReadValid() {
		ret, _ := nb.NextLevelIn.Peek()
		bankIdx := int((ret.Addr / nb.cfg.Config.BlockSize) % uint64(nb.cfg.NumBanks))
		if nb.banks[bankIdx].RetIn.IsWriteValid() {
			nb.NextLevelIn.Read()
			nb.banks[bankIdx].RetIn.Write(ret)
		}
	}

	for _, bank := range nb.banks {
		bank.Rise(cycle)
	}
}

// Fall lets every bank commit, then routes completed bank returns through
// the response crossbar back out Downstream.
func (nb *NonBlocking) Fall(cycle uint64) {
	for _, bank := range nb.banks {
		bank.Fall(cycle)
	}

	for i, bank := range nb.banks {
		if !nb.retXbar.HasPending(i) {
			if ret, ok := bank.RetOut.Read(); ok {
				nb.retXbar.Enqueue(i, ret)
			}
		}
	}
	nb.retXbar.Route()

	if msg, ok := nb.retXbar.Peek(0); ok && nb.Downstream.IsWriteValid() {
		nb.Downstream.Write(msg)
	}
}

// AggregateStats sums per-bank Stats for the final report.
func (nb *NonBlocking) AggregateStats() Stats {
	var s Stats
	for _, b := range nb.banks {
		s.Hits += b.Stats.Hits
		s.HalfMiss += b.Stats.HalfMiss
		s.LFBHits += b.Stats.LFBHits
		s.Misses += b.Stats.Misses
		s.MSHRStall += b.Stats.MSHRStall
	}
	return s
}
