package sources

import (
	"math"

	"github.com/blooperdaw/bloom/internal/plugin"
)

// wavetableSize is the single-cycle table length, read with linear
// interpolation for the characteristic 8-bit grit.
const wavetableSize = 32

var wavetables = map[string][wavetableSize]float64{
	"SINE": buildTable(func(p float64) float64 { return math.Sin(2 * math.Pi * p) }),
	"SQUARE": buildTable(func(p float64) float64 {
		if p < 0.5 {
			return 1
		}
		return -1
	}),
	"SAW":      buildTable(func(p float64) float64 { return 2*p - 1 }),
	"TRIANGLE": buildTable(func(p float64) float64 { return 2*math.Abs(2*p-1) - 1 }),
}

func buildTable(f func(p float64) float64) [wavetableSize]float64 {
	var t [wavetableSize]float64
	for i := range t {
		t[i] = f(float64(i) / wavetableSize)
	}
	return t
}

// Wavetable is an 8-bit style wavetable synth reading a 32-sample single
// cycle with linear interpolation.
type Wavetable struct{}

// NewWavetable returns the WAVETABLE_SYNTH source.
func NewWavetable() plugin.Processor { return &Wavetable{} }

func (w *Wavetable) Metadata() plugin.Metadata {
	return plugin.Metadata{
		ID:       "WAVETABLE_SYNTH",
		Name:     "Wavetable Synth",
		Category: plugin.Source,
		Parameters: []plugin.ParameterSpec{
			{Name: "shape", Type: plugin.Enum, Default: "SINE", EnumValues: []string{"SINE", "SQUARE", "SAW", "TRIANGLE"}},
			{Name: "decay", Type: plugin.Float, Default: 0.5, Min: 0.05, Max: 5.0, Unit: "s"},
			{Name: "gain", Type: plugin.Float, Default: 0.7, Min: 0, Max: 1},
			{Name: "root_note", Type: plugin.Int, Default: 60, Min: 0, Max: 127},
			{Name: "transpose", Type: plugin.Int, Default: 0, Min: -24, Max: 24, Unit: "st"},
		},
	}
}

func (w *Wavetable) Process(in []float32, params map[string]any, note *plugin.NoteContext, rctx plugin.RenderContext) ([]float32, error) {
	if note == nil {
		return nil, nil
	}
	decay := plugin.FloatValue(params, "decay", 0.5)
	frames := chunkFrames(rctx, decay)
	out := make([]float32, frames)

	table := wavetables[plugin.StringValue(params, "shape", "SINE")]
	scale := pitchScale(note.Pitch, plugin.IntValue(params, "root_note", 60), plugin.IntValue(params, "transpose", 0))
	freq := middleC * scale

	sr := float64(rctx.SampleRate)
	phaseInc := freq * wavetableSize / sr
	streaming := rctx.Frames > 0
	decaySamples := int(decay * sr)
	amp := 0.5 * plugin.FloatValue(params, "gain", 0.7) * float64(note.Velocity) / 127.0

	for i := range out {
		abs := rctx.Offset + i
		phase := math.Mod(float64(abs)*phaseInc, wavetableSize)
		idx := int(phase)
		next := (idx + 1) % wavetableSize
		fr := phase - float64(idx)
		s := (1.0-fr)*table[idx] + fr*table[next]
		env := 1.0
		if !streaming && decaySamples > 0 {
			env = math.Exp(-6.0 * float64(abs) / float64(decaySamples))
		}
		out[i] = float32(s * env * amp)
	}
	return out, nil
}
