package registry

import (
	"context"
	"errors"
	"testing"

	"github.com/calvan/enf-analysis/pkg/frame"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errRejected = errors.New("rejected")

type calls map[string]int

type rejectingFactory struct{ calls calls }

func (f rejectingFactory) OpenSource(ctx context.Context, path string) (frame.Source, error) {
	f.calls["rejecting"]++
	return nil, errRejected
}

type videoFactory struct{ calls calls }

func (f videoFactory) OpenSource(ctx context.Context, path string) (frame.Source, error) {
	f.calls["video"]++
	if path != "a.mp4" {
		return nil, errRejected
	}
	return frame.NewSliceSource(frame.Info{FPS: 30}, nil), nil
}

type fallbackFactory struct{ calls calls }

func (f *fallbackFactory) OpenSource(ctx context.Context, path string) (frame.Source, error) {
	f.calls["fallback"]++
	if path != "b.mp4" {
		return nil, errRejected
	}
	return frame.NewSliceSource(frame.Info{FPS: 25}, nil), nil
}

func TestOpenSourceAuto(t *testing.T) {
	ctx := context.Background()
	c := calls{}
	RegisterSourceFactory(10, rejectingFactory{calls: c})
	RegisterSourceFactory(1, &fallbackFactory{calls: c})
	RegisterSourceFactory(5, videoFactory{calls: c})

	assert.Panics(t, func() { RegisterSourceFactory(2, &videoFactory{calls: c}) })

	factories := SourceFactories()
	require.Len(t, factories, 3)
	assert.IsType(t, rejectingFactory{}, factories[0])
	assert.IsType(t, videoFactory{}, factories[1])
	assert.IsType(t, &fallbackFactory{}, factories[2])

	fps := func(src frame.Source) int {
		info, err := src.Info(ctx)
		require.NoError(t, err)
		return info.FPS
	}

	t.Run("priority", func(t *testing.T) {
		src, err := OpenSourceAuto(ctx, "a.mp4")
		require.NoError(t, err)
		assert.Equal(t, 30, fps(src))
		assert.Equal(t, calls{"rejecting": 1, "video": 1}, c)
	})

	t.Run("last_successful_first", func(t *testing.T) {
		_, err := OpenSourceAuto(ctx, "a.mp4")
		require.NoError(t, err)
		assert.Equal(t, calls{"rejecting": 1, "video": 2}, c)
	})

	t.Run("fallback", func(t *testing.T) {
		src, err := OpenSourceAuto(ctx, "b.mp4")
		require.NoError(t, err)
		assert.Equal(t, 25, fps(src))
		assert.Equal(t, calls{"rejecting": 2, "video": 4, "fallback": 1}, c)
		assert.IsType(t, &fallbackFactory{}, getLastSuccessfulSourceFactory())
	})

	t.Run("all_failed", func(t *testing.T) {
		_, err := OpenSourceAuto(ctx, "c.mp4")
		require.Error(t, err)
		assert.ErrorIs(t, err, errRejected)
		for _, name := range []string{"rejectingFactory", "videoFactory", "fallbackFactory"} {
			assert.Contains(t, err.Error(), name)
		}
	})
}
