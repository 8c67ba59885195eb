// Copyright 2025 The Felix Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package fexmaps

import (
	"sync"
	"time"

	"go.uber.org/atomic"
	"go.uber.org/zap"
)

// A Worker samples smaps on its own schedule, decoupled from the
// counter sampling period, and publishes the most recent snapshot.
//
// Only the latest value matters, so publication is a single
// mutex-guarded cell rather than a channel: Latest copies the cell
// under the lock and the critical section never exceeds that copy.
type Worker struct {
	mu     sync.Mutex
	latest MemSnapshot

	shutdown atomic.Bool
	wg       sync.WaitGroup
	sampler  *Sampler
	log      *zap.Logger
}

// StartWorker opens the smaps file for pid and starts the background
// sampling goroutine. period controls how often a fresh snapshot is
// taken.
func StartWorker(pid int32, period time.Duration, log *zap.Logger) (*Worker, error) {
	sampler, err := NewSampler(pid)
	if err != nil {
		return nil, err
	}
	return startWorker(sampler, period, log), nil
}

func startWorker(sampler *Sampler, period time.Duration, log *zap.Logger) *Worker {
	if log == nil {
		log = zap.NewNop()
	}
	w := &Worker{sampler: sampler, log: log}
	w.wg.Add(1)
	go w.run(period)
	return w
}

func (w *Worker) run(period time.Duration) {
	defer w.wg.Done()
	for !w.shutdown.Load() {
		snap, err := w.sampler.Sample()
		if err != nil {
			// The target may have exited or revoked access; keep
			// publishing the previous snapshot.
			w.log.Debug("smaps sample failed", zap.Error(err))
		} else {
			w.mu.Lock()
			w.latest = *snap
			w.mu.Unlock()
		}
		time.Sleep(period)
	}
}

// Latest returns a copy of the most recently published snapshot. It
// never fails: before the first successful sample, or after the target
// exits, it simply returns the last (possibly zero) snapshot.
func (w *Worker) Latest() MemSnapshot {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.latest
}

// Shutdown stops the sampling goroutine and joins it, then closes the
// smaps handle. The join guarantees no sample is in flight when
// Shutdown returns. Safe to call more than once.
func (w *Worker) Shutdown() {
	if w.shutdown.Swap(true) {
		return
	}
	w.wg.Wait()
	w.sampler.Close()
}
