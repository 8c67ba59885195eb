// Copyright 2025 The Felix Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package fexshm reads the statistics shared-memory segment published
// by a running FEX-Emu process.
//
// The segment lives at /dev/shm/fex-<pid>-stats and contains a fixed
// header followed by a singly linked list of per-thread counter
// records. FEX updates both concurrently with no lock, so all access
// goes through word-granularity atomic loads; see Reader for the
// consistency guarantees this does and does not provide.
package fexshm // import "github.com/fexprof/felix/fexshm"
