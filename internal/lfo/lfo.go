// Package lfo provides low-frequency modulation as pure functions of an
// absolute sample index. Sources render held notes in offset-addressed
// chunks, so modulation must be computable from (index, rate) alone with
// no per-oscillator state carried between chunks.
package lfo

import "math"

// Waveform selects the modulation shape.
type Waveform int

const (
	Sine Waveform = iota
	Triangle
	Saw
	Square
)

// Value returns the waveform value in [-1, 1] at the given absolute sample
// index for the given rate. Rate or sample-rate of zero yields zero.
func Value(w Waveform, rateHz float64, sampleIndex int, sampleRate int) float64 {
	if rateHz == 0 || sampleRate <= 0 {
		return 0
	}
	phase := math.Mod(float64(sampleIndex)*rateHz/float64(sampleRate), 1.0)
	if phase < 0 {
		phase += 1.0
	}
	switch w {
	case Sine:
		return math.Sin(2 * math.Pi * phase)
	case Triangle:
		if phase < 0.5 {
			return 4.0*phase - 1.0
		}
		return 3.0 - 4.0*phase
	case Saw:
		return 1.0 - 2.0*phase
	case Square:
		if phase < 0.5 {
			return 1.0
		}
		return -1.0
	}
	return 0
}
