// Copyright 2018 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package dcc

import (
	"reflect"
	"testing"
	"time"
)

func TestAppendBits_ZeroCount(t *testing.T) {
	b := Bitstream{}
	b.AppendBits(0b1, 0)
	if len(b.Events) != 0 {
		t.Fatalf("count = 0 must not emit events, got %v", b.Events)
	}
	if d := b.Duration(); d != 0 {
		t.Fatal(d)
	}
}

func TestAppendBits_Merge(t *testing.T) {
	a := Bitstream{}
	a.AppendBits(0b1100, 4)
	a.AppendBits(0b1010, 4)
	b := Bitstream{}
	b.AppendBits(0b11001010, 8)
	if !reflect.DeepEqual(a.Events, b.Events) {
		t.Fatalf("%v != %v", a.Events, b.Events)
	}
	if len(a.Events) != 1 {
		t.Fatal(a.Events)
	}
	if e := a.Events[0]; e.Word != 0b11001010<<24 || e.Size != 8 {
		t.Fatalf("%#08x/%d", e.Word, e.Size)
	}
}

func TestAppendBits_WordBoundary(t *testing.T) {
	b := Bitstream{WordSize: 3}
	b.AppendBits(0b11110000, 8)
	expected := []Event{
		{Kind: Data, Word: 0b111, Size: 3},
		{Kind: Data, Word: 0b100, Size: 3},
		{Kind: Data, Word: 0b000, Size: 2},
	}
	if !reflect.DeepEqual(b.Events, expected) {
		t.Fatalf("%v", b.Events)
	}
}

func TestAppendBits_LongRun(t *testing.T) {
	b := Bitstream{}
	b.AppendRepeating(One, 70)
	expected := []Event{
		{Kind: Data, Word: 0xFFFFFFFF, Size: 32},
		{Kind: Data, Word: 0xFFFFFFFF, Size: 32},
		{Kind: Data, Word: 0xFC000000, Size: 6},
	}
	if !reflect.DeepEqual(b.Events, expected) {
		t.Fatalf("%v", b.Events)
	}
	if d := b.Duration(); d != time.Duration(70*14.5*1000)*time.Nanosecond {
		t.Fatal(d)
	}
}

func TestAppendBits_Invariants(t *testing.T) {
	b := Bitstream{WordSize: 5}
	b.AppendBits(0b1011011, 7)
	b.AppendEvent(Breakpoint)
	b.AppendRepeating(Zero, 3)
	b.AppendRepeating(One, 6)
	for i, e := range b.Events {
		if e.Kind != Data {
			continue
		}
		if e.Size < 1 || e.Size > 5 {
			t.Fatalf("event #%d size %d", i, e.Size)
		}
		if e.Word&(1<<(5-e.Size)-1) != 0 {
			t.Fatalf("event #%d has trailing bits set: %#x/%d", i, e.Word, e.Size)
		}
	}
}

func TestAppendEvent_Seals(t *testing.T) {
	b := Bitstream{WordSize: 8}
	b.AppendBits(0b101, 3)
	b.AppendEvent(RailComCutoutStart)
	b.AppendBits(0b1, 1)
	expected := []Event{
		{Kind: Data, Word: 0b101 << 5, Size: 3},
		{Kind: RailComCutoutStart},
		{Kind: Data, Word: 0b1 << 7, Size: 1},
	}
	if !reflect.DeepEqual(b.Events, expected) {
		t.Fatalf("%v", b.Events)
	}
}

func TestAppendEvent_ZeroBitsAfterMarker(t *testing.T) {
	a := Bitstream{WordSize: 8}
	a.AppendBits(0b101, 3)
	a.AppendEvent(Breakpoint)
	a.AppendBits(0, 0)
	b := Bitstream{WordSize: 8}
	b.AppendBits(0b101, 3)
	b.AppendEvent(Breakpoint)
	if !reflect.DeepEqual(a.Events, b.Events) {
		t.Fatalf("%v != %v", a.Events, b.Events)
	}
}

// TestAppendBits_RoundTrip verifies the packed words concatenate back to the
// original bit sequence.
func TestAppendBits_RoundTrip(t *testing.T) {
	for _, w := range []uint{3, 5, 8, 32} {
		b := Bitstream{WordSize: w}
		// 0b1101_0011_1010_0110_0101_1100 over several calls.
		b.AppendBits(0b1101, 4)
		b.AppendBits(0b00111010, 8)
		b.AppendBits(0b011001011100, 12)
		var bits []Bit
		for _, e := range b.Events {
			for i := uint(0); i < e.Size; i++ {
				bits = append(bits, Bit(e.Word>>(w-1-i)&1 != 0))
			}
		}
		const in = 0b110100111010011001011100
		if len(bits) != 24 {
			t.Fatalf("w=%d: %d bits", w, len(bits))
		}
		for i, bit := range bits {
			if expected := Bit(in>>(23-i)&1 != 0); bit != expected {
				t.Fatalf("w=%d: bit %d is %s", w, i, bit)
			}
		}
		if d := b.Duration(); d != time.Duration(24*14.5*1000)*time.Nanosecond {
			t.Fatalf("w=%d: %s", w, d)
		}
	}
}

func TestEventKind_String(t *testing.T) {
	data := []struct {
		k EventKind
		s string
	}{
		{Data, "Data"},
		{LoopStart, "LoopStart"},
		{Breakpoint, "Breakpoint"},
		{RailComCutoutStart, "RailComCutoutStart"},
		{RailComCutoutEnd, "RailComCutoutEnd"},
		{DebugStart, "DebugStart"},
		{DebugEnd, "DebugEnd"},
		{EventKind(200), "EventKind(200)"},
	}
	for _, line := range data {
		if s := line.k.String(); s != line.s {
			t.Fatal(s)
		}
	}
}

func TestBit_String(t *testing.T) {
	if Zero.String() != "0" || One.String() != "1" {
		t.Fatal("Bit.String() mismatch")
	}
}
