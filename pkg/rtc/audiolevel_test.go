package rtc

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAudioLevelObserver(t *testing.T) {
	t.Run("no change until a window closes", func(t *testing.T) {
		o := NewAudioLevelObserver(0.01)

		for i := 0; i < observeFrames-1; i++ {
			_, changed := o.Observe(0.5)
			require.False(t, changed)
		}

		level, changed := o.Observe(0.5)
		require.True(t, changed)
		require.Greater(t, level, 0.0)
		require.LessOrEqual(t, level, 0.5)
	})

	t.Run("all-silent window reports silence", func(t *testing.T) {
		o := NewAudioLevelObserver(0.01)

		var level float64
		var changed bool
		for i := 0; i < observeFrames; i++ {
			level, changed = o.Observe(0.0)
		}
		require.False(t, changed) // stayed at silence
		require.Equal(t, 0.0, level)
		require.False(t, o.IsActive())
	})

	t.Run("sparse activity is discounted below the peak", func(t *testing.T) {
		o := NewAudioLevelObserver(0.01)

		var sparse float64
		for i := 0; i < observeFrames; i++ {
			if i == 0 {
				sparse, _ = o.Observe(0.8)
			} else {
				sparse, _ = o.Observe(0.0)
			}
		}

		o2 := NewAudioLevelObserver(0.01)
		var dense float64
		for i := 0; i < observeFrames; i++ {
			dense, _ = o2.Observe(0.8)
		}

		require.Less(t, sparse, dense)
		require.Equal(t, 0.8, dense)
	})
}
