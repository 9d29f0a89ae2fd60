package device

import (
	"context"
	"fmt"
	"sync"

	"github.com/pion/mediadevices"
	"github.com/pion/mediadevices/pkg/codec/opus"
	"github.com/pion/mediadevices/pkg/codec/vpx"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/meshcall/internal/core"
	"github.com/dkeye/meshcall/internal/domain"

	// Driver registration. Required for camera/microphone discovery.
	_ "github.com/pion/mediadevices/pkg/driver/camera"
	_ "github.com/pion/mediadevices/pkg/driver/microphone"
)

// Capture implements core.MediaDevice over pion/mediadevices with opus audio
// and VP8 video.
type Capture struct {
	selector *mediadevices.CodecSelector
}

func NewCapture() (*Capture, error) {
	opusParams, err := opus.NewParams()
	if err != nil {
		return nil, fmt.Errorf("opus params: %w", err)
	}
	vp8Params, err := vpx.NewVP8Params()
	if err != nil {
		return nil, fmt.Errorf("vp8 params: %w", err)
	}
	vp8Params.BitRate = 500_000

	return &Capture{
		selector: mediadevices.NewCodecSelector(
			mediadevices.WithAudioEncoders(&opusParams),
			mediadevices.WithVideoEncoders(&vp8Params),
		),
	}, nil
}

// Open acquires camera and microphone once. Permission or device failure
// wraps core.ErrDeviceUnavailable and is fatal to the join attempt.
func (c *Capture) Open(_ context.Context) (core.MediaStreamHandle, error) {
	stream, err := mediadevices.GetUserMedia(mediadevices.MediaStreamConstraints{
		Audio: func(_ *mediadevices.MediaTrackConstraints) {},
		Video: func(_ *mediadevices.MediaTrackConstraints) {},
		Codec: c.selector,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrDeviceUnavailable, err)
	}
	log.Info().Str("module", "device").Int("tracks", len(stream.GetTracks())).Msg("capture opened")
	return &handle{
		stream:  stream,
		enabled: map[domain.MediaKind]bool{domain.KindAudio: true, domain.KindVideo: true},
	}, nil
}

type handle struct {
	stream mediadevices.MediaStream

	mu      sync.Mutex
	enabled map[domain.MediaKind]bool
	once    sync.Once
}

func (h *handle) Tracks() []webrtc.TrackLocal {
	tracks := h.stream.GetTracks()
	out := make([]webrtc.TrackLocal, 0, len(tracks))
	for _, t := range tracks {
		out = append(out, t)
	}
	return out
}

// SetEnabled flips track-level enablement without touching the device.
// Capture keeps running; peers are told via toggle events and renderers on
// the far side drop the muted kind.
func (h *handle) SetEnabled(kind domain.MediaKind, enabled bool) {
	h.mu.Lock()
	h.enabled[kind] = enabled
	h.mu.Unlock()
}

func (h *handle) Enabled(kind domain.MediaKind) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.enabled[kind]
}

// Close stops every track exactly once.
func (h *handle) Close() error {
	var firstErr error
	h.once.Do(func() {
		for _, t := range h.stream.GetTracks() {
			if err := t.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		log.Info().Str("module", "device").Msg("capture closed")
	})
	return firstErr
}
