package sources

import (
	"math"

	"github.com/blooperdaw/bloom/internal/lfo"
	"github.com/blooperdaw/bloom/internal/plugin"
)

// DualOsc is a two-oscillator subtractive synth: independent waveforms,
// interval/detune on the second oscillator, a one-pole lowpass, an
// attack/length envelope, and optional vibrato.
type DualOsc struct{}

// NewDualOsc returns the DUAL_OSC source.
func NewDualOsc() plugin.Processor { return &DualOsc{} }

func (d *DualOsc) Metadata() plugin.Metadata {
	return plugin.Metadata{
		ID:       "DUAL_OSC",
		Name:     "Dual Oscillator",
		Category: plugin.Source,
		Parameters: []plugin.ParameterSpec{
			{Name: "osc1_type", Type: plugin.Enum, Default: "SAW", EnumValues: waveNames},
			{Name: "osc2_type", Type: plugin.Enum, Default: "SINE", EnumValues: waveNames},
			{Name: "osc2_interval", Type: plugin.Int, Default: 0, Min: -24, Max: 24, Unit: "st"},
			{Name: "osc2_detune", Type: plugin.Float, Default: 10.0, Min: -50, Max: 50, Unit: "cents"},
			{Name: "osc_mix", Type: plugin.Float, Default: 0.5, Min: 0, Max: 1},
			{Name: "filter_cutoff", Type: plugin.Float, Default: 5000.0, Min: 50, Max: 12000, Unit: "Hz"},
			{Name: "attack", Type: plugin.Float, Default: 0.01, Min: 0.001, Max: 2.0, Unit: "s"},
			{Name: "length", Type: plugin.Float, Default: 0.5, Min: 0.01, Max: 5.0, Unit: "s"},
			{Name: "gain", Type: plugin.Float, Default: 0.7, Min: 0, Max: 1},
			{Name: "root_note", Type: plugin.Int, Default: 60, Min: 0, Max: 127},
			{Name: "transpose", Type: plugin.Int, Default: 0, Min: -24, Max: 24, Unit: "st"},
			{Name: "vibrato_depth", Type: plugin.Float, Default: 0.0, Min: 0, Max: 2, Unit: "st"},
			{Name: "vibrato_rate", Type: plugin.Float, Default: 5.0, Min: 0.1, Max: 20, Unit: "Hz"},
		},
	}
}

func (d *DualOsc) Process(in []float32, params map[string]any, note *plugin.NoteContext, rctx plugin.RenderContext) ([]float32, error) {
	if note == nil {
		return nil, nil
	}
	attack := plugin.FloatValue(params, "attack", 0.01)
	length := plugin.FloatValue(params, "length", 0.5)
	frames := chunkFrames(rctx, attack+length)
	out := make([]float32, frames)

	scale := pitchScale(note.Pitch, plugin.IntValue(params, "root_note", 60), plugin.IntValue(params, "transpose", 0))
	freq1 := middleC * scale
	interval := float64(plugin.IntValue(params, "osc2_interval", 0))
	detune := plugin.FloatValue(params, "osc2_detune", 10.0) / 100.0
	freq2 := freq1 * math.Pow(2, (interval+detune)/12.0)

	osc1 := shapeByName(plugin.StringValue(params, "osc1_type", "SAW"))
	osc2 := shapeByName(plugin.StringValue(params, "osc2_type", "SINE"))
	mix := plugin.FloatValue(params, "osc_mix", 0.5)

	vibDepth := plugin.FloatValue(params, "vibrato_depth", 0)
	vibRate := plugin.FloatValue(params, "vibrato_rate", 5.0)
	// Phase-modulation vibrato keeps the signal a pure function of the
	// absolute sample index; the deviation amplitude matches vibDepth
	// semitones of peak frequency excursion.
	var phaseDev float64
	if vibDepth > 0 && vibRate > 0 {
		phaseDev = freq1 * (math.Pow(2, vibDepth/12.0) - 1.0) / (2 * math.Pi * vibRate)
	}

	sr := float64(rctx.SampleRate)
	gen := func(i int) float64 {
		t := float64(i) / sr
		mod := phaseDev * lfo.Value(lfo.Sine, vibRate, i, rctx.SampleRate)
		return waveAt(osc1, freq1*t+mod)*(1.0-mix) + waveAt(osc2, freq2*t+mod)*mix
	}

	cutoff := plugin.FloatValue(params, "filter_cutoff", 5000.0)
	if cutoff < float64(rctx.SampleRate)/2.0*0.95 {
		onePoleLP(out, gen, rctx.Offset, cutoff, rctx.SampleRate)
	} else {
		for i := range out {
			out[i] = float32(gen(rctx.Offset + i))
		}
	}

	// Envelope: linear attack, then sustain while streaming or exponential
	// decay over the one-shot length.
	attackSamples := int(attack * sr)
	streaming := rctx.Frames > 0
	decaySamples := int(length * sr)
	vel := float32(note.Velocity) / 127.0
	gain := float32(plugin.FloatValue(params, "gain", 0.7))
	for i := range out {
		abs := rctx.Offset + i
		env := 1.0
		if abs < attackSamples {
			env = float64(abs) / float64(attackSamples)
		} else if !streaming {
			rel := abs - attackSamples
			if decaySamples > 0 {
				env = math.Exp(-6.0 * float64(rel) / float64(decaySamples))
			}
		}
		out[i] *= float32(env) * gain * vel
	}
	return out, nil
}
