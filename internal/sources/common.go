// Package sources contains the built-in source plugins. Every generator is
// a pure function of the absolute sample index so a held note rendered in
// offset-addressed chunks stays phase-continuous across chunk seams.
package sources

import (
	"math"

	"github.com/blooperdaw/bloom/internal/plugin"
)

// middleC is the reference frequency for root-note pitch scaling.
const middleC = 261.63

// filterWarmup is the minimum pre-roll replayed into a lowpass before a
// continuation chunk, keeping filter state across chunk seams.
const filterWarmup = 64

type waveShape int

const (
	shapeSine waveShape = iota
	shapeSquare
	shapeSaw
	shapeTriangle
	shapeNone
)

var waveNames = []string{"SINE", "SQUARE", "SAW", "TRIANGLE", "NONE"}

func shapeByName(name string) waveShape {
	switch name {
	case "SINE":
		return shapeSine
	case "SQUARE":
		return shapeSquare
	case "SAW":
		return shapeSaw
	case "TRIANGLE":
		return shapeTriangle
	}
	return shapeNone
}

// waveAt evaluates a waveform at a phase given in cycles.
func waveAt(s waveShape, phase float64) float64 {
	switch s {
	case shapeSine:
		return math.Sin(2 * math.Pi * phase)
	case shapeSquare:
		if math.Mod(phase, 1.0) < 0.5 {
			return 1.0
		}
		return -1.0
	case shapeSaw:
		return 2.0*frac(phase) - 1.0
	case shapeTriangle:
		return 2.0*math.Abs(2.0*frac(phase)-1.0) - 1.0
	}
	return 0
}

func frac(v float64) float64 {
	f := math.Mod(v, 1.0)
	if f < 0 {
		f += 1.0
	}
	return f
}

// pitchScale is the frequency multiplier for a note against a root note.
func pitchScale(note, rootNote, transpose int) float64 {
	return math.Pow(2, float64(note-rootNote+transpose)/12.0)
}

// chunkFrames resolves how many frames a source call must produce: the
// streaming request when set, otherwise the one-shot envelope length.
func chunkFrames(rctx plugin.RenderContext, oneShotSeconds float64) int {
	if rctx.Frames > 0 {
		return rctx.Frames
	}
	n := int(oneShotSeconds * float64(rctx.SampleRate))
	if n <= 0 {
		n = 512
	}
	return n
}

// noiseAt is deterministic white noise addressed by sample index, so
// chunked renders reproduce the identical sequence. SplitMix64 mix.
func noiseAt(seed uint64, index int) float64 {
	z := seed + uint64(index)*0x9E3779B97F4A7C15
	z = (z ^ (z >> 30)) * 0xBF58476D1CE4E5B9
	z = (z ^ (z >> 27)) * 0x94D049BB133111EB
	z ^= z >> 31
	return float64(z>>11)/float64(1<<53)*2.0 - 1.0
}

// onePoleLP runs a first-order lowpass over buf. A warmup pre-roll is
// replayed through gen first so chunk seams carry filter state; its
// length scales with the filter time constant, long enough that the
// unknown starting state decays below -80 dB.
func onePoleLP(buf []float32, gen func(i int) float64, start int, cutoffHz float64, sampleRate int) {
	if cutoffHz <= 0 {
		return
	}
	rc := 1.0 / (2.0 * math.Pi * cutoffHz)
	dt := 1.0 / float64(sampleRate)
	alpha := dt / (rc + dt)
	warmup := int(10.0 / alpha)
	if warmup < filterWarmup {
		warmup = filterWarmup
	} else if warmup > 8192 {
		warmup = 8192
	}
	state := 0.0
	from := start - warmup
	if from < 0 {
		from = 0
	}
	for i := from; i < start; i++ {
		state += alpha * (gen(i) - state)
	}
	for i := range buf {
		state += alpha * (gen(start+i) - state)
		buf[i] = float32(state)
	}
}
