// Package cache implements the non-blocking cache hierarchy: the shared
// tag/data array base (§4.2) and the MSHR-based non-blocking cache on top
// of it (§4.3).
package cache

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/sarchlab/rtxsim/dram"
)

// Policy selects a cache's victim-replacement discipline.
type Policy int

const (
	LRU Policy = iota
	RANDOM
)

func (p Policy) String() string {
	if p == RANDOM {
		return "RANDOM"
	}
	return "LRU"
}

// Config describes a cache instance's geometry.
type Config struct {
	TotalSize     uint64
	BlockSize     uint64
	Associativity int
	SectorSize    uint64 // defaults to BlockSize if zero (unsectored)
	Policy        Policy
	Seed          uint64 // RNG seed for RANDOM policy, never wall-clock derived
	Level         int    // cache level this instance sits at (0 = L1, 1 = L2, ...), checked against memreq.BypassFlags
	InOrder       bool   // if set, returns drain in request-admission order rather than completion order
}

func (c Config) sectorSize() uint64 {
	if c.SectorSize == 0 {
		return c.BlockSize
	}
	return c.SectorSize
}

func (c Config) numSets() int {
	return int(c.TotalSize / c.BlockSize / uint64(c.Associativity))
}

func (c Config) sectorsPerBlock() int {
	return int(c.BlockSize / c.sectorSize())
}

// BlockMeta is the per-way tag-array record.
type BlockMeta struct {
	Tag     uint64 // 48 significant bits
	LRU     uint8
	Dirty   uint64 // one bit per sector; sectorsPerBlock() bits significant
	Valid   uint64 // one bit per sector
	present bool
}

// Victim describes a way evicted by allocate_block, present only if the
// evicted way held a valid block.
type Victim struct {
	Addr  uint64
	Data  []byte
	Dirty uint64
	Valid uint64
}

// Base is the tag+data array shared by every cache configuration: LRU or
// random replacement, sectored or unsectored valid/dirty tracking.
type Base struct {
	cfg  Config
	tags [][]BlockMeta // [set][way]
	data [][][]byte    // [set][way] -> BlockSize bytes
	rng  *hashRNG
}

// NewBase constructs an empty cache array for the given geometry.
func NewBase(cfg Config) *Base {
	sets := cfg.numSets()
	b := &Base{
		cfg:  cfg,
		tags: make([][]BlockMeta, sets),
		data: make([][][]byte, sets),
		rng:  newHashRNG(cfg.Seed),
	}
	for s := 0; s < sets; s++ {
		b.tags[s] = make([]BlockMeta, cfg.Associativity)
		b.data[s] = make([][]byte, cfg.Associativity)
		for w := 0; w < cfg.Associativity; w++ {
			b.data[s][w] = make([]byte, cfg.BlockSize)
		}
	}
	return b
}

func (b *Base) blockAddr(addr uint64) uint64 {
	return addr &^ (b.cfg.BlockSize - 1)
}

func (b *Base) sectorIndex(addr uint64) int {
	off := addr % b.cfg.BlockSize
	return int(off / b.cfg.sectorSize())
}

func (b *Base) setIndex(blockAddr uint64) int {
	return int((blockAddr / b.cfg.BlockSize) % uint64(len(b.tags)))
}

func (b *Base) findWay(set int, blockAddr uint64) int {
	for w, meta := range b.tags[set] {
		if meta.present && meta.Tag == blockAddr {
			return w
		}
	}
	return -1
}

// ReadSector searches the set for a matching tag with the sector's valid
// bit set. On hit it updates LRU and returns the sector bytes; on miss it
// returns ok=false.
func (b *Base) ReadSector(sectorAddr uint64) (data []byte, ok bool) {
	blockAddr := b.blockAddr(sectorAddr)
	set := b.setIndex(blockAddr)
	way := b.findWay(set, blockAddr)
	if way < 0 {
		return nil, false
	}

	sector := b.sectorIndex(sectorAddr)
	if b.tags[set][way].Valid&(1<<uint(sector)) == 0 {
		return nil, false
	}

	b.touchLRU(set, way)
	secSize := b.cfg.sectorSize()
	start := uint64(sector) * secSize
	return b.data[set][way][start : start+secSize], true
}

// WriteSector finds the matching tag, marks the sector valid (and dirty if
// requested), and copies data into the sector.
func (b *Base) WriteSector(sectorAddr uint64, data []byte, setDirty bool) bool {
	blockAddr := b.blockAddr(sectorAddr)
	set := b.setIndex(blockAddr)
	way := b.findWay(set, blockAddr)
	if way < 0 {
		return false
	}

	sector := b.sectorIndex(sectorAddr)
	secSize := b.cfg.sectorSize()
	start := uint64(sector) * secSize
	copy(b.data[set][way][start:start+secSize], data)

	b.tags[set][way].Valid |= 1 << uint(sector)
	if setDirty {
		b.tags[set][way].Dirty |= 1 << uint(sector)
	}
	b.touchLRU(set, way)
	return true
}

// AllocateBlock ensures blockAddr has a tag-array entry: if already
// present, it refreshes LRU and returns (nil, false). Otherwise it selects
// a victim way by policy, evicts it (returning a Victim if the way held a
// valid block), and rewrites the way's metadata to the new tag with clear
// valid/dirty bitmaps.
func (b *Base) AllocateBlock(blockAddr uint64) (victim *Victim, evicted bool) {
	set := b.setIndex(blockAddr)

	if way := b.findWay(set, blockAddr); way >= 0 {
		b.touchLRU(set, way)
		return nil, false
	}

	way := b.selectVictimWay(set)
	meta := b.tags[set][way]
	if meta.present && meta.Valid != 0 {
		buf := make([]byte, b.cfg.BlockSize)
		copy(buf, b.data[set][way])
		victim = &Victim{Addr: meta.Tag, Data: buf, Dirty: meta.Dirty, Valid: meta.Valid}
		evicted = true
	}

	// LRU starts at the maximum so touchLRU ages every other way in the set.
	b.tags[set][way] = BlockMeta{Tag: blockAddr, present: true, LRU: ^uint8(0)}
	b.touchLRU(set, way)
	return victim, evicted
}

func (b *Base) touchLRU(set, way int) {
	if b.cfg.Policy != LRU {
		return
	}
	cur := b.tags[set][way].LRU
	for w := range b.tags[set] {
		if w != way && b.tags[set][w].LRU < cur {
			b.tags[set][w].LRU++
		}
	}
	b.tags[set][way].LRU = 0
}

func (b *Base) selectVictimWay(set int) int {
	for w, meta := range b.tags[set] {
		if !meta.present {
			return w
		}
	}

	switch b.cfg.Policy {
	case RANDOM:
		return int(b.rng.next() % uint64(b.cfg.Associativity))
	default: // LRU
		maxLRU := -1
		victim := 0
		for w, meta := range b.tags[set] {
			if int(meta.LRU) > maxLRU {
				maxLRU = int(meta.LRU)
				victim = w
			}
		}
		return victim
	}
}

// Serialize writes the tag array to w in a flat binary format: one record
// per (set, way) of {Tag, LRU, Dirty, Valid, present}. The data array is
// not dumped; Deserialize rehydrates it by re-reading DRAM.
func (b *Base) Serialize(w io.Writer) error {
	for _, set := range b.tags {
		for _, meta := range set {
			if err := binary.Write(w, binary.LittleEndian, meta.Tag); err != nil {
				return err
			}
			if err := binary.Write(w, binary.LittleEndian, meta.LRU); err != nil {
				return err
			}
			if err := binary.Write(w, binary.LittleEndian, meta.Dirty); err != nil {
				return err
			}
			if err := binary.Write(w, binary.LittleEndian, meta.Valid); err != nil {
				return err
			}
			if err := binary.Write(w, binary.LittleEndian, meta.present); err != nil {
				return err
			}
		}
	}
	return nil
}

// Deserialize rehydrates the tag array from r, then re-reads every valid
// sector from model to populate the data array. Used to warm a cache
// before timing a short run (§6 warm_l2).
func (b *Base) Deserialize(r io.Reader, model dram.Model) error {
	for s := range b.tags {
		for w := range b.tags[s] {
			var meta BlockMeta
			if err := binary.Read(r, binary.LittleEndian, &meta.Tag); err != nil {
				return err
			}
			if err := binary.Read(r, binary.LittleEndian, &meta.LRU); err != nil {
				return err
			}
			if err := binary.Read(r, binary.LittleEndian, &meta.Dirty); err != nil {
				return err
			}
			if err := binary.Read(r, binary.LittleEndian, &meta.Valid); err != nil {
				return err
			}
			if err := binary.Read(r, binary.LittleEndian, &meta.present); err != nil {
				return err
			}
			b.tags[s][w] = meta

			if !meta.present {
				continue
			}
			secSize := b.cfg.sectorSize()
			for sec := 0; sec < b.cfg.sectorsPerBlock(); sec++ {
				if meta.Valid&(1<<uint(sec)) == 0 {
					continue
				}
				addr := meta.Tag + uint64(sec)*secSize
				buf, err := model.Peek(addr, secSize)
				if err != nil {
					return fmt.Errorf("cache: warm read at 0x%x: %w", addr, err)
				}
				start := uint64(sec) * secSize
				copy(b.data[s][w][start:start+secSize], buf)
			}
		}
	}
	return nil
}
