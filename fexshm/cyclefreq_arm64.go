// Copyright 2025 The Felix Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package fexshm

// cntfrq reads CNTFRQ_EL0, the generic timer frequency. Implemented
// in cyclefreq_arm64.s; always readable from EL0.
func cntfrq() uint64

// CycleCounterFrequency returns the frequency of the hardware cycle
// counter FEX stamps its time counters with.
func CycleCounterFrequency() uint64 {
	return cntfrq()
}
