// Copyright 2016 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package gpio

import "testing"

func TestInvalid(t *testing.T) {
	if INVALID.In(Float, None) != errInvalidPin {
		t.Fatal("INVALID.In() should fail with errInvalidPin")
	}
	if INVALID.Out(High) != errInvalidPin {
		t.Fatal("INVALID.Out() should fail with errInvalidPin")
	}
	if INVALID.Read() != Low {
		t.Fatal("INVALID.Read() should be Low")
	}
	if INVALID.Pull() != PullNoChange {
		t.Fatal("INVALID.Pull() should be PullNoChange")
	}
}

func TestLevelString(t *testing.T) {
	if Low.String() != "Low" || High.String() != "High" {
		t.Fatal("Level.String() mismatch")
	}
}

func TestPullString(t *testing.T) {
	if Float.String() != "Float" || Up.String() != "Up" || Down.String() != "Down" {
		t.Fatal("Pull.String() mismatch")
	}
}

func TestEdgeString(t *testing.T) {
	if None.String() != "None" || Rising.String() != "Rising" || Both.String() != "Both" {
		t.Fatal("Edge.String() mismatch")
	}
}
