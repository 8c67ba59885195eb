// Copyright 2025 The Felix Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build !arm64

package fexshm

// CycleCounterFrequency returns the frequency of the hardware cycle
// counter FEX stamps its time counters with. Outside arm64 the
// counter frequency is not directly readable, so this reports 1 and
// load percentages degrade to zero.
func CycleCounterFrequency() uint64 {
	return 1
}
