package app

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/meshcall/internal/core"
	"github.com/dkeye/meshcall/internal/domain"
)

var errMediaBusy = errors.New("media operation in flight")

// ToggleListener observes local enable/disable flips so the coordinator can
// broadcast them to the room.
type ToggleListener func(kind domain.MediaKind, enabled bool)

// MediaSource owns the local capture handle. It acquires at most once per
// supervisor lifetime; toggling flips track-level enablement on the held
// handle and never reacquires the device.
type MediaSource struct {
	device core.MediaDevice

	mu       sync.Mutex
	busy     bool
	handle   core.MediaStreamHandle
	audioOn  bool
	videoOn  bool
	onToggle ToggleListener
}

func NewMediaSource(device core.MediaDevice) *MediaSource {
	return &MediaSource{device: device, audioOn: true, videoOn: true}
}

// OnToggle registers the toggle listener. Must be set before Acquire.
func (s *MediaSource) OnToggle(fn ToggleListener) {
	s.mu.Lock()
	s.onToggle = fn
	s.mu.Unlock()
}

// Acquire opens the device on first call and returns the held handle after
// that. Failure wraps core.ErrDeviceUnavailable and is not retried here;
// the caller must re-invoke explicitly.
func (s *MediaSource) Acquire(ctx context.Context) (core.MediaStreamHandle, error) {
	s.mu.Lock()
	if s.busy {
		s.mu.Unlock()
		return nil, errMediaBusy
	}
	if s.handle != nil {
		h := s.handle
		s.mu.Unlock()
		return h, nil
	}
	s.busy = true
	s.mu.Unlock()

	h, err := s.device.Open(ctx)

	s.mu.Lock()
	s.busy = false
	if err != nil {
		s.mu.Unlock()
		return nil, fmt.Errorf("acquire local media: %w", err)
	}
	h.SetEnabled(domain.KindAudio, s.audioOn)
	h.SetEnabled(domain.KindVideo, s.videoOn)
	s.handle = h
	s.mu.Unlock()

	log.Info().Str("module", "app.media").Msg("local media acquired")
	return h, nil
}

// Handle returns the held capture handle, or nil before acquisition.
func (s *MediaSource) Handle() core.MediaStreamHandle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handle
}

func (s *MediaSource) AudioEnabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.audioOn
}

func (s *MediaSource) VideoEnabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.videoOn
}

// SetAudioEnabled flips audio enablement on the held handle and returns the
// new effective state. Never blocks on the device.
func (s *MediaSource) SetAudioEnabled(enabled bool) bool {
	return s.setEnabled(domain.KindAudio, enabled)
}

// SetVideoEnabled flips video enablement on the held handle and returns the
// new effective state.
func (s *MediaSource) SetVideoEnabled(enabled bool) bool {
	return s.setEnabled(domain.KindVideo, enabled)
}

// ToggleAudio atomically inverts the audio flag and returns the new state.
func (s *MediaSource) ToggleAudio() bool {
	s.mu.Lock()
	next := !s.audioOn
	s.mu.Unlock()
	return s.setEnabled(domain.KindAudio, next)
}

// ToggleVideo atomically inverts the video flag and returns the new state.
func (s *MediaSource) ToggleVideo() bool {
	s.mu.Lock()
	next := !s.videoOn
	s.mu.Unlock()
	return s.setEnabled(domain.KindVideo, next)
}

func (s *MediaSource) setEnabled(kind domain.MediaKind, enabled bool) bool {
	s.mu.Lock()
	switch kind {
	case domain.KindAudio:
		s.audioOn = enabled
	case domain.KindVideo:
		s.videoOn = enabled
	}
	if s.handle != nil {
		s.handle.SetEnabled(kind, enabled)
	}
	fn := s.onToggle
	s.mu.Unlock()

	log.Debug().Str("module", "app.media").Str("kind", string(kind)).Bool("enabled", enabled).Msg("local media toggled")
	if fn != nil {
		fn(kind, enabled)
	}
	return enabled
}

// Release stops all tracks and clears the handle. Idempotent; releasing an
// already-released source is a no-op.
func (s *MediaSource) Release() {
	s.mu.Lock()
	if s.handle == nil || s.busy {
		s.mu.Unlock()
		return
	}
	h := s.handle
	s.handle = nil
	s.busy = true
	s.mu.Unlock()

	if err := h.Close(); err != nil {
		log.Error().Err(err).Str("module", "app.media").Msg("release local media")
	} else {
		log.Info().Str("module", "app.media").Msg("local media released")
	}

	s.mu.Lock()
	s.busy = false
	s.mu.Unlock()
}
