package audio_source

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory(t *testing.T) {
	t.Run("it yields fixed frames and pads the last one", func(t *testing.T) {
		src := NewMemory([]int16{1, 2, 3, 4, 5}, 16000, 2)
		require.NoError(t, src.Open())

		var frames [][]int16
		for {
			frame, err := src.Read()
			if err == io.EOF {
				break
			}

			require.NoError(t, err)
			frames = append(frames, frame)
		}

		assert.Equal(t, [][]int16{{1, 2}, {3, 4}, {5, 0}}, frames)
	})

	t.Run("reading a closed source fails", func(t *testing.T) {
		src := NewMemory([]int16{1}, 16000, 1)

		_, err := src.Read()
		assert.ErrorIs(t, err, ErrClosed)
	})
}

func TestReadWAV(t *testing.T) {
	t.Run("it keeps the first channel of a stereo file", func(t *testing.T) {
		fs := afero.NewMemMapFs()
		f, err := fs.Create("/stereo.wav")
		require.NoError(t, err)

		enc := wav.NewEncoder(f, 16000, 16, 2, 1)
		require.NoError(t, enc.Write(&audio.IntBuffer{
			Format:         &audio.Format{NumChannels: 2, SampleRate: 16000},
			Data:           []int{10, -10, 20, -20, 30, -30},
			SourceBitDepth: 16,
		}))
		require.NoError(t, enc.Close())
		require.NoError(t, f.Close())

		samples, rate, err := ReadWAV(fs, "/stereo.wav")
		require.NoError(t, err)
		assert.Equal(t, 16000, rate)
		assert.Equal(t, []int16{10, 20, 30}, samples)
	})

	t.Run("a sample rate mismatch is rejected", func(t *testing.T) {
		fs := afero.NewMemMapFs()
		f, err := fs.Create("/fast.wav")
		require.NoError(t, err)

		enc := wav.NewEncoder(f, 44100, 16, 1, 1)
		require.NoError(t, enc.Write(&audio.IntBuffer{
			Format:         &audio.Format{NumChannels: 1, SampleRate: 44100},
			Data:           []int{1, 2, 3},
			SourceBitDepth: 16,
		}))
		require.NoError(t, enc.Close())
		require.NoError(t, f.Close())

		_, err = NewWAVFile(fs, "/fast.wav", 16000, 512)
		assert.ErrorContains(t, err, "does not match")
	})
}

func TestOwner(t *testing.T) {
	t.Run("only one lease is live at a time", func(t *testing.T) {
		owner := NewOwner(NewMemory(make([]int16, 8), 16000, 4))

		first, ok := owner.TryAcquire("wake")
		require.True(t, ok)
		assert.Equal(t, "wake", owner.Holder())

		_, ok = owner.TryAcquire("capture")
		assert.False(t, ok)

		first.Release()
		assert.Equal(t, "", owner.Holder())

		second, ok := owner.TryAcquire("capture")
		require.True(t, ok)
		second.Release()
	})

	t.Run("reading after release fails and release is idempotent", func(t *testing.T) {
		src := NewMemory(make([]int16, 8), 16000, 4)
		require.NoError(t, src.Open())
		owner := NewOwner(src)

		lease, err := owner.Acquire(context.Background(), "capture")
		require.NoError(t, err)

		_, err = lease.Read()
		require.NoError(t, err)

		lease.Release()
		lease.Release()

		_, err = lease.Read()
		assert.ErrorIs(t, err, ErrLeaseReleased)

		again, ok := owner.TryAcquire("wake")
		require.True(t, ok)
		again.Release()
	})

	t.Run("acquire honours context cancellation", func(t *testing.T) {
		owner := NewOwner(NewMemory(nil, 16000, 4))
		held, ok := owner.TryAcquire("wake")
		require.True(t, ok)
		defer held.Release()

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()

		_, err := owner.Acquire(ctx, "capture")
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})

	t.Run("reopen resumes a memory source", func(t *testing.T) {
		src := NewMemory([]int16{1, 2, 3, 4}, 16000, 2)
		require.NoError(t, src.Open())
		owner := NewOwner(src)

		lease, ok := owner.TryAcquire("wake")
		require.True(t, ok)
		defer lease.Release()

		_, err := lease.Read()
		require.NoError(t, err)
		require.NoError(t, lease.Reopen())

		frame, err := lease.Read()
		require.NoError(t, err)
		assert.Equal(t, []int16{3, 4}, frame)
	})
}
