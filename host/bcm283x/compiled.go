// Copyright 2018 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package bcm283x

import (
	"time"

	"github.com/keybuk/SignalBox-sub002/dcc"
	"github.com/keybuk/SignalBox-sub002/host/videocore"
)

// dmaBufAllocator allocates the uncached memory a committed stream lives
// in. It is replaced in unit tests.
var dmaBufAllocator = videocore.Alloc

// queuedBitstream is a bitstream compiled into a DMA control block program
// and, once committed, materialised in uncached memory the DMA engine can
// traverse.
//
// Pre-commit, control block srcAddr fields hold byte offsets into data,
// nextCB fields hold byte offsets into cbs, and the dstAddr fields listed
// in dstData hold byte offsets into data; commit rebases all of them to bus
// addresses. data[0] is a sentinel word: the Start control block of each
// entry path writes +1 to it and every End control block writes -1, so the
// driver can observe the stream starting and completing over the DMA
// engine's shoulder.
type queuedBitstream struct {
	// railComMask and debugMask select the GPIO bits written by marker
	// events; they must be set before parsing.
	railComMask uint32
	debugMask   uint32

	duration    time.Duration
	cbs         []controlBlock
	data        []uint32
	breakpoints []breakpoint
	dstData     []int // control blocks whose dstAddr is a data offset

	// Parse time bookkeeping, discarded on commit.
	states      []stateRecord
	wordOffsets map[uint32]uint32

	// Committed state.
	mem     *videocore.Mem
	busAddr uint32
	cbsM    []controlBlock
	dataM   []uint32
}

// commit copies the program into freshly allocated uncached memory and
// rewrites every offset into an absolute bus address. The stream must not
// be committed twice.
func (q *queuedBitstream) commit() error {
	if q.mem != nil {
		panic("bcm283x-dcc: bitstream committed twice")
	}
	size := (len(q.cbs)*cbBytes + len(q.data)*4 + 0xFFF) &^ 0xFFF
	mem, err := dmaBufAllocator(size)
	if err != nil {
		return err
	}
	var cbsM []controlBlock
	if err := mem.AsPOD(&cbsM); err != nil {
		mem.Close()
		return err
	}
	busAddr := uint32(mem.PhysAddr())
	dataBus := busAddr + uint32(len(q.cbs))*cbBytes

	for i, cb := range q.cbs {
		cb.srcAddr += dataBus
		if cb.nextCB != 0 {
			cb.nextCB += busAddr
		}
		cbsM[i] = cb
	}
	for _, i := range q.dstData {
		cbsM[i].dstAddr += dataBus
	}
	dataM := mem.Uint32()[len(q.cbs)*cbBytes/4:]
	copy(dataM, q.data)

	q.mem = mem
	q.busAddr = busAddr
	q.cbsM = cbsM[:len(q.cbs)]
	q.dataM = dataM[:len(q.data)]
	q.states = nil
	q.wordOffsets = nil
	return nil
}

// busAddress returns the bus address of the stream's first control block.
func (q *queuedBitstream) busAddress() uint32 {
	if q.mem == nil {
		panic("bcm283x-dcc: bus address of uncommitted bitstream")
	}
	return q.busAddr
}

// isTransmitting reports whether the DMA engine has entered the stream.
func (q *queuedBitstream) isTransmitting() bool {
	return q.mem != nil && int32(q.dataM[0]) > 0
}

// isRepeating reports whether at least one complete transmission has
// finished.
func (q *queuedBitstream) isRepeating() bool {
	return q.mem != nil && int32(q.dataM[0]) < 0
}

// release frees the uncached memory backing the stream. The DMA engine must
// no longer reference it.
func (q *queuedBitstream) release() error {
	if q.mem == nil {
		return nil
	}
	err := q.mem.Close()
	q.mem = nil
	q.cbsM = nil
	q.dataM = nil
	return err
}

// transferFrom compiles b into q with one entry path per breakpoint of
// prev, each starting from that breakpoint's serialiser state, and returns
// the entry control block indices in breakpoint order. Breakpoints sharing
// a state share an entry path.
func (q *queuedBitstream) transferFrom(prev *queuedBitstream, b *dcc.Bitstream, repeating bool) ([]int, error) {
	entries := make([]int, len(prev.breakpoints))
	type seedKey struct {
		rng     uint32
		pending pendingQueue
	}
	seen := map[seedKey]int{}
	for i, bp := range prev.breakpoints {
		k := seedKey{rng: bp.rng, pending: bp.pending}
		if idx, ok := seen[k]; ok {
			entries[i] = idx
			continue
		}
		idx, err := q.parseFrom(b, bp.rng, bp.pending, repeating)
		if err != nil {
			return nil, err
		}
		seen[k] = idx
		entries[i] = idx
	}
	return entries, nil
}

// transferTo rewrites the committed control blocks at q's breakpoints so
// the DMA engine jumps into next at the paired entry points instead of
// looping within q.
//
// With endOnly, only End control block breakpoints are rewritten; they are
// only reached after a complete transmission, so resplicing them is always
// safe. The remaining breakpoints must not be rewritten until isRepeating
// has been observed, otherwise the current pass could be abandoned partway
// through. Both orders of the DMA engine passing a breakpoint and the CPU
// rewriting it are safe: the stream either hands over now or after one more
// repeat.
func (q *queuedBitstream) transferTo(next *queuedBitstream, entries []int, endOnly bool) {
	for i, bp := range q.breakpoints {
		if endOnly && !bp.endCB {
			continue
		}
		q.cbsM[bp.cbIndex].nextCB = next.busAddress() + uint32(entries[i])*cbBytes
	}
}
