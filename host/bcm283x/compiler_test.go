// Copyright 2018 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package bcm283x

import (
	"testing"

	"github.com/keybuk/SignalBox-sub002/dcc"
)

const (
	testRailComMask = 1 << 17
	testDebugMask   = 1 << 19
)

func newTestQueued() *queuedBitstream {
	return &queuedBitstream{railComMask: testRailComMask, debugMask: testDebugMask}
}

func TestParse_ContainsNoData(t *testing.T) {
	b := &dcc.Bitstream{}
	b.AppendBits(0b1, 0)
	q := newTestQueued()
	if err := q.parse(b, false); err != ErrContainsNoData {
		t.Fatal(err)
	}
}

func TestParse_BreakpointAtStart(t *testing.T) {
	b := &dcc.Bitstream{}
	b.AppendEvent(dcc.Breakpoint)
	b.AppendLogicalBit(dcc.One)
	q := newTestQueued()
	if err := q.parse(b, false); err != ErrBreakpointAtStart {
		t.Fatal(err)
	}
}

func TestParse_EmptyLoop(t *testing.T) {
	b := &dcc.Bitstream{}
	b.AppendRepeating(dcc.One, 32)
	b.AppendEvent(dcc.LoopStart)
	q := newTestQueued()
	if err := q.parse(b, true); err != ErrContainsNoData {
		t.Fatal(err)
	}
}

// TestParse_Simple checks the full control block layout of a two word non
// repeating stream.
func TestParse_Simple(t *testing.T) {
	b := &dcc.Bitstream{}
	b.AppendRepeating(dcc.One, 64)
	q := newTestQueued()
	if err := q.parse(b, false); err != nil {
		t.Fatal(err)
	}
	if len(q.cbs) != 4 {
		t.Fatalf("%d control blocks", len(q.cbs))
	}
	// Start control block raises the sentinel.
	if cb := q.cbs[0]; cb.srcAddr != 4 || cb.dstAddr != 0 || cb.txLen != 4 || cb.nextCB != 1*cbBytes {
		t.Fatalf("start: %#v", cb)
	}
	if len(q.dstData) != 2 || q.dstData[0] != 0 || q.dstData[1] != 3 {
		t.Fatalf("dstData: %v", q.dstData)
	}
	// Initial range change to a full word.
	if cb := q.cbs[1]; cb.dstAddr != pwmRng1BusAddr() || q.data[cb.srcAddr/4] != 32 || cb.nextCB != 2*cbBytes {
		t.Fatalf("range: %#v", cb)
	}
	// Both words coalesce into a single Data control block.
	if cb := q.cbs[2]; cb.dstAddr != pwmFifoBusAddr() || cb.txLen != 8 || cb.nextCB != 3*cbBytes {
		t.Fatalf("data: %#v", cb)
	}
	if cb := q.cbs[2]; q.data[cb.srcAddr/4] != 0xFFFFFFFF || q.data[cb.srcAddr/4+1] != 0xFFFFFFFF {
		t.Fatalf("data words: %#v", q.data)
	}
	if cb := q.cbs[2]; cb.transferInfo != dmaNoWideBursts|dmaPWM|dmaSrcInc|dmaDstDReq|dmaWaitResp {
		t.Fatalf("data flags: %s", cb.transferInfo)
	}
	// End control block lowers the sentinel and stops.
	if cb := q.cbs[3]; q.data[cb.srcAddr/4] != 0xFFFFFFFF || cb.dstAddr != 0 || cb.nextCB != 0 {
		t.Fatalf("end: %#v", cb)
	}
	if len(q.breakpoints) != 1 {
		t.Fatalf("%v", q.breakpoints)
	}
	if bp := q.breakpoints[0]; bp.cbIndex != 3 || bp.rng != 32 || bp.pending.n != 0 || !bp.endCB {
		t.Fatalf("%+v", bp)
	}
	if q.data[0] != 0 {
		t.Fatal("sentinel must start clear")
	}
}

// TestParse_EventDelay verifies a marker takes effect two words after its
// position in the stream.
func TestParse_EventDelay(t *testing.T) {
	b := &dcc.Bitstream{}
	b.AppendRepeating(dcc.One, 64)
	b.AppendEvent(dcc.RailComCutoutStart)
	b.AppendRepeating(dcc.Zero, 64)
	q := newTestQueued()
	if err := q.parse(b, false); err != nil {
		t.Fatal(err)
	}
	// start, range, data(w0 w1), data(w2 w3), gpio, end.
	if len(q.cbs) != 6 {
		t.Fatalf("%d control blocks", len(q.cbs))
	}
	if cb := q.cbs[2]; cb.txLen != 8 || cb.dstAddr != pwmFifoBusAddr() {
		t.Fatalf("%#v", cb)
	}
	// The marker does not interrupt the word flow; the second Data control
	// block transfers both words after it.
	if cb := q.cbs[3]; cb.txLen != 8 || cb.dstAddr != pwmFifoBusAddr() {
		t.Fatalf("%#v", cb)
	}
	// The cutout gate clears only after the second following word.
	cb := q.cbs[4]
	if cb.dstAddr != gpioSetBusAddr() || cb.txLen != 2<<16|8 || cb.stride != 4<<16 {
		t.Fatalf("%#v", cb)
	}
	if cb.transferInfo != dmaNoWideBursts|dmaSrcInc|dmaDstInc|dmaWaitResp|dmaTransfer2DMode {
		t.Fatalf("%s", cb.transferInfo)
	}
	i := cb.srcAddr / 4
	if set, clear := q.data[i], q.data[i+2]; set != 0 || clear != testRailComMask {
		t.Fatalf("set %#x clear %#x", set, clear)
	}
	if q.data[i+1] != 0 || q.data[i+3] != 0 {
		t.Fatal("high bank registers must stay clear")
	}
}

// TestParse_OperationsModePacket checks loop closure and unrolling on a
// real packet: 28 step speed, address 3, forward at step 14.
func TestParse_OperationsModePacket(t *testing.T) {
	b := &dcc.Bitstream{}
	b.AppendOperationsModePacket(dcc.Packet{0x03, 0x78, 0x7B}, false)
	q := newTestQueued()
	if err := q.parse(b, true); err != nil {
		t.Fatal(err)
	}
	// One pass plus a partially unrolled second pass until the state at
	// the fourteenth word repeats.
	//
	//  0 start        +1 sentinel
	//  1 range 32
	//  2 data w0..w12
	//  3 range 12
	//  4 data w13
	//  5 range 30
	//  6 data w14
	//  7 end          -1 sentinel
	//  8 range 32
	//  9 data w0
	// 10 gpio         RailCom gate off
	// 11 data w1
	// 12 gpio         RailCom gate on
	// 13 data w2..w12, loops back to 3
	if len(q.cbs) != 14 {
		t.Fatalf("%d control blocks", len(q.cbs))
	}
	ranges := []struct {
		cb    int
		value uint32
	}{{1, 32}, {3, 12}, {5, 30}, {8, 32}}
	for _, line := range ranges {
		cb := q.cbs[line.cb]
		if cb.dstAddr != pwmRng1BusAddr() || q.data[cb.srcAddr/4] != line.value {
			t.Fatalf("cb %d: %#v", line.cb, cb)
		}
	}
	words := []struct {
		cb    int
		count uint32
	}{{2, 13}, {4, 1}, {6, 1}, {9, 1}, {11, 1}, {13, 11}}
	for _, line := range words {
		cb := q.cbs[line.cb]
		if cb.dstAddr != pwmFifoBusAddr() || cb.txLen != dmaTransferLen(4*line.count) {
			t.Fatalf("cb %d: %#v", line.cb, cb)
		}
	}
	// Exactly one gate off and one gate on write.
	off := q.cbs[10]
	if i := off.srcAddr / 4; q.data[i] != 0 || q.data[i+2] != testRailComMask {
		t.Fatalf("%#v", off)
	}
	on := q.cbs[12]
	if i := on.srcAddr / 4; q.data[i] != testRailComMask || q.data[i+2] != 0 {
		t.Fatalf("%#v", on)
	}
	// The unrolled pass closes into itself, skipping the head.
	if q.cbs[13].nextCB != 3*cbBytes {
		t.Fatalf("loop closes to %#x", q.cbs[13].nextCB)
	}
	// The End control block is the only breakpoint.
	if len(q.breakpoints) != 1 || q.breakpoints[0].cbIndex != 7 || !q.breakpoints[0].endCB {
		t.Fatalf("%+v", q.breakpoints)
	}
	if bp := q.breakpoints[0]; bp.rng != 30 || bp.pending.n != 2 {
		t.Fatalf("%+v", bp)
	}
}

// TestParse_Breakpoint checks a mid stream breakpoint snapshots the state a
// successor entry path must be compiled from.
func TestParse_Breakpoint(t *testing.T) {
	b := &dcc.Bitstream{}
	b.AppendRepeating(dcc.One, 64)
	b.AppendEvent(dcc.DebugStart)
	b.AppendRepeating(dcc.Zero, 32)
	b.AppendEvent(dcc.Breakpoint)
	b.AppendRepeating(dcc.Zero, 32)
	q := newTestQueued()
	if err := q.parse(b, false); err != nil {
		t.Fatal(err)
	}
	// The explicit breakpoint plus the implicit one at the End block.
	if len(q.breakpoints) != 2 {
		t.Fatalf("%+v", q.breakpoints)
	}
	bp := q.breakpoints[0]
	if bp.endCB {
		t.Fatal("marker breakpoints are not End control blocks")
	}
	// The DebugStart event has one word left on its countdown when the
	// breakpoint is recorded.
	if bp.rng != 32 || bp.pending.n != 1 || bp.pending.events[0].countdown != 1 {
		t.Fatalf("%+v", bp)
	}
	// Its control block is the just closed Data block, whose nextCB a
	// splice overwrites.
	if cb := q.cbs[bp.cbIndex]; cb.dstAddr != pwmFifoBusAddr() {
		t.Fatalf("%#v", cb)
	}
	if !q.breakpoints[1].endCB {
		t.Fatalf("%+v", q.breakpoints[1])
	}
}

func TestParse_LoopStart(t *testing.T) {
	b := &dcc.Bitstream{}
	b.AppendRepeating(dcc.One, 32)
	b.AppendEvent(dcc.LoopStart)
	b.AppendRepeating(dcc.Zero, 32)
	q := newTestQueued()
	if err := q.parse(b, true); err != nil {
		t.Fatal(err)
	}
	// start, range, data w0, data w1, end; the loop excludes the prefix
	// before LoopStart.
	if len(q.cbs) != 5 {
		t.Fatalf("%d control blocks", len(q.cbs))
	}
	if q.cbs[4].nextCB != 3*cbBytes {
		t.Fatalf("loop closes to %#x", q.cbs[4].nextCB)
	}
}

// simulate walks the compiled graph the way the DMA engine would, starting
// at control block entry, recording the words pushed to the FIFO and, for
// each GPIO write, the number of words pushed before it. It stops after
// maxWords words.
func simulate(t *testing.T, q *queuedBitstream, entry, maxWords int) (words []uint32, gpio []int, rng []int) {
	i := entry
	visitedStop := false
	for len(words) < maxWords && !visitedStop {
		cb := q.cbs[i]
		switch {
		case cb.dstAddr == pwmFifoBusAddr():
			for n := uint32(0); n < uint32(cb.txLen)/4; n++ {
				words = append(words, q.data[cb.srcAddr/4+n])
			}
		case cb.dstAddr == pwmRng1BusAddr():
			rng = append(rng, len(words))
		case cb.dstAddr == gpioSetBusAddr():
			gpio = append(gpio, len(words))
		case cb.dstAddr == 0:
			// Sentinel write.
		default:
			t.Fatalf("cb %d: unexpected destination %#x", i, cb.dstAddr)
		}
		if cb.nextCB == 0 {
			visitedStop = true
			break
		}
		i = int(cb.nextCB / cbBytes)
	}
	return words, gpio, rng
}

// TestParse_Waveform replays the compiled graph and checks it reproduces
// the bitstream's words with every marker two words late.
func TestParse_Waveform(t *testing.T) {
	b := &dcc.Bitstream{}
	b.AppendOperationsModePacket(dcc.Packet{0x03, 0x78, 0x7B}, false)
	q := newTestQueued()
	if err := q.parse(b, true); err != nil {
		t.Fatal(err)
	}

	// The source word sequence and the word offsets of the two markers.
	var src []uint32
	var markers []int
	for _, e := range b.Events {
		switch e.Kind {
		case dcc.Data:
			src = append(src, e.Word)
		case dcc.RailComCutoutStart, dcc.RailComCutoutEnd:
			markers = append(markers, len(src))
		}
	}

	words, gpio, _ := simulate(t, q, 0, 3*len(src))
	for i, w := range words {
		if expected := src[i%len(src)]; w != expected {
			t.Fatalf("word %d: %#x != %#x", i, w, expected)
		}
	}
	// Every marker effect lands eventDelay words after its position, on
	// every pass through the loop.
	var expectedGPIO []int
	for pass := 0; pass < 3; pass++ {
		for _, m := range markers {
			if at := pass*len(src) + m + eventDelay; at <= 3*len(src) {
				expectedGPIO = append(expectedGPIO, at)
			}
		}
	}
	if len(gpio) < 2 {
		t.Fatalf("%v", gpio)
	}
	for i, at := range gpio {
		if i < len(expectedGPIO) && at != expectedGPIO[i] {
			t.Fatalf("gpio %d at word %d, expected %d", i, at, expectedGPIO[i])
		}
	}
}
