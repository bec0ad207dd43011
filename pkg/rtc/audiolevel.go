package rtc

import (
	"math"

	"go.uber.org/atomic"
)

const (
	// observation window, sized for one level report per 20ms opus frame
	observeFrames = 25

	silentLevel = 0.0
)

// AudioLevelObserver folds per-frame audio levels (0.0 silent to 1.0 loudest)
// into a windowed level so that a single loud frame does not flap the
// reported value.
type AudioLevelObserver struct {
	activeLevel  float64
	currentLevel atomic.Float64

	// window accumulation, callers must observe from a single goroutine
	windowPeak   float64
	activeFrames uint32
	numFrames    uint32
}

func NewAudioLevelObserver(activeLevel float64) *AudioLevelObserver {
	return &AudioLevelObserver{
		activeLevel: activeLevel,
	}
}

// Observe folds one frame's level into the window. It returns the new
// windowed level and true when a window closed and the level changed.
func (o *AudioLevelObserver) Observe(level float64) (float64, bool) {
	o.numFrames++

	if level >= o.activeLevel {
		o.activeFrames++
		if level > o.windowPeak {
			o.windowPeak = level
		}
	}

	if o.numFrames < observeFrames {
		return o.currentLevel.Load(), false
	}

	// close the window
	computed := silentLevel
	if o.activeFrames > 0 {
		// discount the peak by how sparse activity was within the window
		computed = o.windowPeak * math.Sqrt(float64(o.activeFrames)/observeFrames)
	}
	o.windowPeak = 0
	o.activeFrames = 0
	o.numFrames = 0

	prev := o.currentLevel.Swap(computed)
	return computed, computed != prev
}

// Level returns the most recent windowed level.
func (o *AudioLevelObserver) Level() float64 {
	return o.currentLevel.Load()
}

// IsActive reports whether the current level counts as speech.
func (o *AudioLevelObserver) IsActive() bool {
	return o.currentLevel.Load() >= o.activeLevel
}
