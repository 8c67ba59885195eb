// Copyright 2025 The Felix Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package recfile

import (
	"time"

	"github.com/fexprof/felix/sampler"
	"github.com/fexprof/felix/session"
)

// A ReplaySource paces frames out of a loaded recording. It implements
// session.DataSource, so consumers drive it exactly like a live
// session.
//
// Pacing is consumed-frame-relative: each emission resets the clock to
// now, so a single slow poll does not accumulate drift, and time lost
// to an external stall is not made up afterwards.
type ReplaySource struct {
	reader *Reader

	currentIndex  int
	playbackSpeed float64
	lastEmitted   time.Time
	paused        bool

	now func() time.Time
}

// NewReplaySource starts replay at the first frame, speed 1.0,
// unpaused.
func NewReplaySource(reader *Reader) *ReplaySource {
	return &ReplaySource{
		reader:        reader,
		playbackSpeed: 1.0,
		lastEmitted:   time.Now(),
		now:           time.Now,
	}
}

// SetSpeed sets the playback speed multiplier.
func (s *ReplaySource) SetSpeed(speed float64) {
	s.playbackSpeed = speed
}

// TogglePause flips the paused flag. Un-pausing resets the emission
// clock so playback resumes with a full pacing interval instead of
// firing immediately.
func (s *ReplaySource) TogglePause() {
	s.paused = !s.paused
	if !s.paused {
		s.lastEmitted = s.now()
	}
}

// SeekTo jumps to the given frame index, clamped to
// [0, FrameCount], and resets the emission clock.
func (s *ReplaySource) SeekTo(index int) {
	if index < 0 {
		index = 0
	}
	if index > s.reader.FrameCount() {
		index = s.reader.FrameCount()
	}
	s.currentIndex = index
	s.lastEmitted = s.now()
}

func (s *ReplaySource) IsPaused() bool { return s.paused }

func (s *ReplaySource) CurrentIndex() int { return s.currentIndex }

func (s *ReplaySource) TotalFrames() int { return s.reader.FrameCount() }

// IsFinished reports whether replay has consumed every frame.
func (s *ReplaySource) IsFinished() bool {
	return s.currentIndex >= s.reader.FrameCount()
}

// NextFrame returns the next frame once frame.SamplePeriodNS/speed
// real nanoseconds have elapsed since the last emission, and nil
// before that or while paused. Each successful call consumes exactly
// one frame.
func (s *ReplaySource) NextFrame() (*sampler.Frame, error) {
	if s.paused {
		return nil, nil
	}

	frame := s.reader.FrameAt(s.currentIndex)
	if frame == nil {
		return nil, nil
	}

	required := time.Duration(float64(frame.Computed.SamplePeriodNS) / s.playbackSpeed)
	if s.now().Sub(s.lastEmitted) < required {
		return nil, nil
	}

	s.currentIndex++
	s.lastEmitted = s.now()
	return frame, nil
}

func (s *ReplaySource) Metadata() *session.SessionMetadata {
	return s.reader.Metadata()
}

func (s *ReplaySource) IsLive() bool { return false }
