// Copyright 2018 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// This file turns a dcc.Bitstream into a DMA control block program.
//
// The program pushes 32 bit words into the PWM FIFO, paced by the PWM DREQ,
// and interleaves unpaced register writes: the channel 1 range register when
// the word size changes, and the GPIO set/clear registers for the RailCom
// gate and debug pins. Because the serialiser only outputs a word once at
// least one more word has passed through the FIFO, a GPIO write scheduled
// between two words must be emitted after the second following word; the
// parser tracks these in-flight events in a pending queue.
//
// The end of the stream loops back into its own body. Since the pending
// queue at the end of a pass usually differs from the start of that pass,
// the parser unrolls further passes until it reaches a previously emitted
// state, then points the last control block at it.

package bcm283x

import (
	"errors"

	"github.com/keybuk/SignalBox-sub002/dcc"
)

// eventDelay is the number of FIFO words between the DMA engine writing a
// word and the serialiser outputting it.
const eventDelay = 2

// maxPending bounds the in-flight marker events; eventDelay words expire
// entries faster than realistic streams can queue them.
const maxPending = 8

// Errors returned while parsing a bitstream.
var (
	// ErrContainsNoData means the bitstream had no Data event; prepending
	// a preamble recovers.
	ErrContainsNoData = errors.New("bcm283x-dcc: bitstream contains no data")
	// ErrBreakpointAtStart means a breakpoint preceded the first data word
	// so there is no control block to hand over from.
	ErrBreakpointAtStart = errors.New("bcm283x-dcc: breakpoint before any data")
)

// pendingEvent is one marker event whose effect is still inside the
// serialiser pipeline.
type pendingEvent struct {
	kind      dcc.EventKind
	countdown int
}

// pendingQueue is the ordered list of in-flight marker events. It is a
// fixed size array so parser states and breakpoints can be compared for
// equality; unused entries are always zero.
type pendingQueue struct {
	n      int
	events [maxPending]pendingEvent
}

func (p *pendingQueue) push(kind dcc.EventKind) {
	if p.n == len(p.events) {
		panic("bcm283x-dcc: pending event queue overflow")
	}
	p.events[p.n] = pendingEvent{kind: kind, countdown: eventDelay}
	p.n++
}

// tick decrements every countdown and removes the events that become due,
// returning them in queue order.
func (p *pendingQueue) tick() []dcc.EventKind {
	var due []dcc.EventKind
	old := p.n
	out := 0
	for i := 0; i < old; i++ {
		e := p.events[i]
		e.countdown--
		if e.countdown == 0 {
			due = append(due, e.kind)
			continue
		}
		p.events[out] = e
		out++
	}
	for i := out; i < old; i++ {
		p.events[i] = pendingEvent{}
	}
	p.n = out
	return due
}

// parseState keys one word emission: the source event index, the serialiser
// range in effect and the events still in flight. When the parser is about
// to emit a word under a state it has already emitted one under, the two
// continuations are identical and the graph can close into a loop.
type parseState struct {
	index   int
	rng     uint32
	pending pendingQueue
}

// matches returns whether the recorded state s can serve as a jump target
// for the current state c.
//
// A recorded range of 0 is the uninitialised state at the head of a fresh
// stream and matches any range: the recorded control block starts with the
// initial range write, so re-running it from a stream whose range is
// already programmed is harmless. The rule is deliberately one-way; a
// recorded nonzero range never accepts an unknown current range.
func (s parseState) matches(c parseState) bool {
	if s.index != c.index || s.pending != c.pending {
		return false
	}
	return s.rng == c.rng || s.rng == 0
}

// stateRecord maps a parse state to the control block processing of that
// word started with.
type stateRecord struct {
	state   parseState
	cbIndex int
}

// breakpoint is a safe handover point: the control block whose nextCB field
// a successor stream may be spliced into, and the serialiser state a
// successor entry path must be compiled from.
type breakpoint struct {
	cbIndex int
	rng     uint32
	pending pendingQueue
	// endCB is set when cbIndex is an End control block; those may be
	// respliced before a full transmission has been observed.
	endCB bool
}

// parser walks one entry path of a bitstream through a queuedBitstream.
type parser struct {
	q         *queuedBitstream
	repeating bool
	shift     uint // left shift aligning words to the serialiser MSB

	rng     uint32
	pending pendingQueue

	last    int  // index of the most recently appended control block
	dataCB  int  // index of the open Data control block, -1 when closed
	sawData bool // a data control block exists on this path
}

func (q *queuedBitstream) lookupState(c parseState) (int, bool) {
	for _, r := range q.states {
		if r.state.matches(c) {
			return r.cbIndex, true
		}
	}
	return 0, false
}

func (q *queuedBitstream) recordState(s parseState, cbIndex int) {
	q.states = append(q.states, stateRecord{state: s, cbIndex: cbIndex})
}

// parse compiles b as the stream's main body, starting from the
// uninitialised serialiser state.
func (q *queuedBitstream) parse(b *dcc.Bitstream, repeating bool) error {
	_, err := q.parseFrom(b, 0, pendingQueue{}, repeating)
	return err
}

// parseFrom compiles one entry path of b starting from the given serialiser
// state, sharing control blocks with paths already compiled into q. It
// returns the index of the path's first control block.
func (q *queuedBitstream) parseFrom(b *dcc.Bitstream, rng uint32, pending pendingQueue, repeating bool) (int, error) {
	if q.mem != nil {
		panic("bcm283x-dcc: parse after commit")
	}
	if len(q.data) == 0 {
		// data[0] is the transmission sentinel the driver polls.
		q.data = append(q.data, 0)
	}
	w := b.WordSize
	if w == 0 {
		w = dcc.WordSize
	}
	p := parser{
		q:         q,
		repeating: repeating,
		shift:     32 - w,
		rng:       rng,
		pending:   pending,
		last:      -1,
		dataCB:    -1,
	}
	q.duration = b.Duration()

	entry := p.appendCB(controlBlock{
		transferInfo: dmaNoWideBursts | dmaWaitResp,
		srcAddr:      q.wordOffset(transmittingSentinel),
		dstAddr:      0, // data[0]; rebased at commit
		txLen:        4,
	})
	q.dstData = append(q.dstData, entry)

	loopStart := 0
	for i, e := range b.Events {
		if e.Kind == dcc.LoopStart {
			loopStart = i + 1
		}
	}
	loopHasData := false
	for _, e := range b.Events[loopStart:] {
		if e.Kind == dcc.Data {
			loopHasData = true
			break
		}
	}

	i := 0
	for {
		if i == len(b.Events) {
			if !p.sawData {
				return 0, ErrContainsNoData
			}
			if p.repeating && !loopHasData {
				return 0, ErrContainsNoData
			}
			p.closeData()
			end := p.appendCB(controlBlock{
				transferInfo: dmaNoWideBursts | dmaWaitResp,
				srcAddr:      q.wordOffset(repeatingSentinel),
				dstAddr:      0, // data[0]; rebased at commit
				txLen:        4,
			})
			q.dstData = append(q.dstData, end)
			q.breakpoints = append(q.breakpoints, breakpoint{
				cbIndex: end,
				rng:     p.rng,
				pending: p.pending,
				endCB:   true,
			})
			if !p.repeating {
				// nextCB stays 0 and becomes the stop sentinel.
				return entry, nil
			}
			i = loopStart
			continue
		}
		e := b.Events[i]
		switch e.Kind {
		case dcc.Data:
			closed, err := p.data(i, e)
			if err != nil {
				return 0, err
			}
			if closed {
				return entry, nil
			}
		case dcc.LoopStart:
			p.closeData()
		case dcc.Breakpoint:
			if !p.sawData {
				return 0, ErrBreakpointAtStart
			}
			p.closeData()
			p.q.breakpoints = append(p.q.breakpoints, breakpoint{
				cbIndex: p.last,
				rng:     p.rng,
				pending: p.pending,
			})
		case dcc.RailComCutoutStart, dcc.RailComCutoutEnd, dcc.DebugStart, dcc.DebugEnd:
			p.closeData()
			p.pending.push(e.Kind)
		}
		i++
	}
}

// data processes one Data event. It returns closed when the graph was
// closed into a loop, ending the walk.
func (p *parser) data(i int, e dcc.Event) (bool, error) {
	key := parseState{index: i, rng: p.rng, pending: p.pending}
	if target, ok := p.q.lookupState(key); ok {
		p.closeData()
		p.q.cbs[p.last].nextCB = uint32(target) * cbBytes
		return true, nil
	}
	size := uint32(e.Size)
	newCB := p.dataCB == -1 || size != p.rng
	if newCB {
		p.closeData()
		p.q.recordState(key, len(p.q.cbs))
		if size != p.rng {
			p.appendCB(controlBlock{
				transferInfo: dmaNoWideBursts | dmaWaitResp,
				srcAddr:      p.q.wordOffset(size),
				dstAddr:      pwmRng1BusAddr(),
				txLen:        4,
			})
			p.rng = size
		}
	}
	p.appendWord(e.Word << p.shift)
	if due := p.pending.tick(); len(due) != 0 {
		p.closeData()
		p.appendGPIO(due)
	}
	return false, nil
}

// appendWord pushes one serialiser word, opening a Data control block if
// none is in progress.
func (p *parser) appendWord(word uint32) {
	if p.dataCB == -1 {
		p.dataCB = p.appendCB(controlBlock{
			transferInfo: dmaNoWideBursts | dmaPWM | dmaSrcInc | dmaDstDReq | dmaWaitResp,
			srcAddr:      uint32(len(p.q.data)) * 4,
			dstAddr:      pwmFifoBusAddr(),
		})
		p.sawData = true
	}
	p.q.data = append(p.q.data, word)
	p.q.cbs[p.dataCB].txLen += 4
}

// closeData seals the open Data control block, if any.
func (p *parser) closeData() {
	p.dataCB = -1
}

// appendGPIO emits one control block applying the due marker events: a 2D
// transfer writing the set register pair then the clear register pair, with
// only the final state of each pin represented.
func (p *parser) appendGPIO(due []dcc.EventKind) {
	var set, clear uint32
	for _, kind := range due {
		var mask uint32
		var on bool
		switch kind {
		case dcc.RailComCutoutStart:
			mask, on = p.q.railComMask, false
		case dcc.RailComCutoutEnd:
			mask, on = p.q.railComMask, true
		case dcc.DebugStart:
			mask, on = p.q.debugMask, true
		case dcc.DebugEnd:
			mask, on = p.q.debugMask, false
		}
		if on {
			set |= mask
			clear &^= mask
		} else {
			clear |= mask
			set &^= mask
		}
	}
	src := uint32(len(p.q.data)) * 4
	p.q.data = append(p.q.data, set, 0, clear, 0)
	p.appendCB(controlBlock{
		transferInfo: dmaNoWideBursts | dmaSrcInc | dmaDstInc | dmaWaitResp | dmaTransfer2DMode,
		srcAddr:      src,
		dstAddr:      gpioSetBusAddr(),
		txLen:        2<<16 | 8, // 2 rows of 2 words
		stride:       4 << 16,   // skip a register between the pairs
	})
}

// appendCB appends a control block, linking the previous block of this path
// to it, and returns its index.
func (p *parser) appendCB(cb controlBlock) int {
	idx := len(p.q.cbs)
	p.q.cbs = append(p.q.cbs, cb)
	if p.last >= 0 && p.q.cbs[p.last].nextCB == 0 {
		p.q.cbs[p.last].nextCB = uint32(idx) * cbBytes
	}
	p.last = idx
	return idx
}

// Sentinel words written to data[0] by the Start and End control blocks;
// the driver polls the sentinel as a signed value.
const (
	transmittingSentinel = 1
	repeatingSentinel    = 0xFFFFFFFF
)

// wordOffset returns the byte offset of a data word holding value,
// appending it if the value has not been used yet.
func (q *queuedBitstream) wordOffset(value uint32) uint32 {
	if q.wordOffsets == nil {
		q.wordOffsets = map[uint32]uint32{}
	}
	if off, ok := q.wordOffsets[value]; ok {
		return off
	}
	if len(q.data) == 0 {
		q.data = append(q.data, 0)
	}
	off := uint32(len(q.data)) * 4
	q.data = append(q.data, value)
	q.wordOffsets[value] = off
	return off
}
