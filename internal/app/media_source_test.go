package app

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/meshcall/internal/core"
	"github.com/dkeye/meshcall/internal/domain"
)

func TestMediaSourceAcquireOnce(t *testing.T) {
	dev := &fakeDevice{}
	src := NewMediaSource(dev)

	h1, err := src.Acquire(context.Background())
	require.NoError(t, err)
	h2, err := src.Acquire(context.Background())
	require.NoError(t, err)

	assert.Same(t, h1, h2)
	assert.Equal(t, 1, dev.openCount())
}

func TestMediaSourceDeviceError(t *testing.T) {
	dev := &fakeDevice{err: fmt.Errorf("%w: permission denied", core.ErrDeviceUnavailable)}
	src := NewMediaSource(dev)

	_, err := src.Acquire(context.Background())
	require.ErrorIs(t, err, core.ErrDeviceUnavailable)
	assert.Nil(t, src.Handle())
}

func TestMediaSourceToggleTwiceKeepsHandle(t *testing.T) {
	dev := &fakeDevice{}
	src := NewMediaSource(dev)

	h, err := src.Acquire(context.Background())
	require.NoError(t, err)
	require.True(t, src.AudioEnabled())

	assert.False(t, src.ToggleAudio())
	assert.True(t, src.ToggleAudio())

	assert.True(t, src.AudioEnabled())
	assert.Same(t, h, src.Handle())
	assert.Equal(t, 1, dev.openCount())
}

func TestMediaSourceTogglePropagatesToHandle(t *testing.T) {
	dev := &fakeDevice{}
	src := NewMediaSource(dev)

	_, err := src.Acquire(context.Background())
	require.NoError(t, err)

	src.SetVideoEnabled(false)
	assert.False(t, dev.handle.isEnabled(domain.KindVideo))
	assert.True(t, dev.handle.isEnabled(domain.KindAudio))
}

func TestMediaSourceToggleListener(t *testing.T) {
	dev := &fakeDevice{}
	src := NewMediaSource(dev)

	var gotKind domain.MediaKind
	var gotEnabled bool
	src.OnToggle(func(kind domain.MediaKind, enabled bool) {
		gotKind = kind
		gotEnabled = enabled
	})

	src.SetAudioEnabled(false)
	assert.Equal(t, domain.KindAudio, gotKind)
	assert.False(t, gotEnabled)
}

func TestMediaSourceReleaseIdempotent(t *testing.T) {
	dev := &fakeDevice{}
	src := NewMediaSource(dev)

	_, err := src.Acquire(context.Background())
	require.NoError(t, err)

	src.Release()
	src.Release()

	assert.Equal(t, 1, dev.handle.closeCount())
	assert.Nil(t, src.Handle())
}

func TestMediaSourceReleaseBeforeAcquire(t *testing.T) {
	src := NewMediaSource(&fakeDevice{})
	src.Release() // no-op, must not panic
}
