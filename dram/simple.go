package dram

// SimpleModel is a minimal reference Model: fixed read/write latency, a
// flat backing store, and activation/precharge counters that charge once
// per command (no open-row tracking). It exists for tests and for
// configurations that don't need the full timing/power black box — the
// real model is an external collaborator (§1).
type SimpleModel struct {
	latency uint64
	storage map[uint64][]byte // addr -> block bytes, sparse
	blockSz uint64

	inFlight []simpleInFlight
	power    PowerCounters
	now      uint64
}

type simpleInFlight struct {
	cmd     Command
	readyAt uint64
}

// NewSimpleModel creates a SimpleModel with the given fixed command
// latency and block size (used to size backdoor reads/writes).
func NewSimpleModel(latency, blockSize uint64) *SimpleModel {
	return &SimpleModel{
		latency: latency,
		storage: make(map[uint64][]byte),
		blockSz: blockSize,
	}
}

func (m *SimpleModel) blockAddr(addr uint64) uint64 {
	return addr &^ (m.blockSz - 1)
}

func (m *SimpleModel) block(addr uint64) []byte {
	b := m.blockAddr(addr)
	buf, ok := m.storage[b]
	if !ok {
		buf = make([]byte, m.blockSz)
		m.storage[b] = buf
	}
	return buf
}

// Tick advances the model's clock.
func (m *SimpleModel) Tick(cycle uint64) {
	m.now = cycle
}

// Send accepts cmd unconditionally (no queue limit) and schedules its
// completion latency cycles from now.
func (m *SimpleModel) Send(cmd Command) error {
	if cmd.Kind == Read {
		m.power.Activations++
		m.power.Reads++
	} else {
		m.power.Activations++
		m.power.Writes++
	}
	m.power.Precharges++

	m.inFlight = append(m.inFlight, simpleInFlight{cmd: cmd, readyAt: m.now + m.latency})
	return nil
}

// PollCompletions returns commands whose latency has elapsed.
func (m *SimpleModel) PollCompletions() []Completion {
	var done []Completion
	rest := m.inFlight[:0]
	for _, f := range m.inFlight {
		if f.readyAt > m.now {
			rest = append(rest, f)
			continue
		}
		data := make([]byte, m.blockSz)
		copy(data, m.block(f.cmd.Addr))
		done = append(done, Completion{ReturnID: f.cmd.ReturnID, Data: data})
	}
	m.inFlight = rest
	return done
}

// Peek performs an untimed backdoor read.
func (m *SimpleModel) Peek(addr uint64, size uint64) ([]byte, error) {
	out := make([]byte, size)
	blk := m.block(addr)
	off := addr % m.blockSz
	copy(out, blk[off:])
	return out, nil
}

// Write performs an untimed backdoor write, used by test setup to seed the
// backing store (e.g. the kernel-args block, treelet bytes).
func (m *SimpleModel) Write(addr uint64, data []byte) {
	for len(data) > 0 {
		blk := m.block(addr)
		off := addr % m.blockSz
		n := copy(blk[off:], data)
		data = data[n:]
		addr += uint64(n)
	}
}

// Power returns the aggregate counters.
func (m *SimpleModel) Power() PowerCounters { return m.power }
