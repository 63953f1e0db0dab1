package sources

import (
	"math"

	"github.com/blooperdaw/bloom/internal/plugin"
)

// NoiseDrum synthesizes kicks, toms and hats from filtered noise with a
// pitch-swept body. One-shot: the drum's own length bounds its output, a
// streaming request past the end yields silence.
type NoiseDrum struct{}

// NewNoiseDrum returns the NOISE_DRUM source.
func NewNoiseDrum() plugin.Processor { return &NoiseDrum{} }

func (n *NoiseDrum) Metadata() plugin.Metadata {
	return plugin.Metadata{
		ID:       "NOISE_DRUM",
		Name:     "Noise Drum",
		Category: plugin.Source,
		Parameters: []plugin.ParameterSpec{
			{Name: "type", Type: plugin.Enum, Default: "DRUM", EnumValues: []string{"DRUM", "HAT"}},
			{Name: "color", Type: plugin.Enum, Default: "WHITE", EnumValues: []string{"WHITE", "PINK", "BROWN"}},
			{Name: "pitch_hpf", Type: plugin.Float, Default: 60.0, Min: 20, Max: 2000, Unit: "Hz"},
			{Name: "length", Type: plugin.Float, Default: 0.3, Min: 0.01, Max: 2.0, Unit: "s"},
			{Name: "gain", Type: plugin.Float, Default: 0.8, Min: 0, Max: 1},
			{Name: "root_note", Type: plugin.Int, Default: 60, Min: 0, Max: 127},
			{Name: "transpose", Type: plugin.Int, Default: 0, Min: -24, Max: 24, Unit: "st"},
		},
	}
}

func (n *NoiseDrum) Process(in []float32, params map[string]any, note *plugin.NoteContext, rctx plugin.RenderContext) ([]float32, error) {
	if note == nil {
		return nil, nil
	}
	length := plugin.FloatValue(params, "length", 0.3)
	sr := float64(rctx.SampleRate)
	total := int(length * sr)
	if total <= 0 {
		total = 512
	}
	frames := chunkFrames(rctx, length)
	out := make([]float32, frames)
	if rctx.Offset >= total {
		return out, nil
	}

	scale := pitchScale(note.Pitch, plugin.IntValue(params, "root_note", 60), plugin.IntValue(params, "transpose", 0))
	pitch := plugin.FloatValue(params, "pitch_hpf", 60.0) * scale
	drumType := plugin.StringValue(params, "type", "DRUM")
	color := plugin.StringValue(params, "color", "WHITE")

	// Seed ties the noise sequence to the note so retriggers sound alike
	// and chunked renders reproduce the same samples.
	seed := uint64(note.Pitch)<<32 | uint64(note.Velocity)<<16 | 0xD3

	colored := func(i int) float64 { return noiseAt(seed, i) }
	switch color {
	case "PINK":
		// One-pole lowpassed white noise approximates pink.
		colored = func(i int) float64 {
			v := 0.0
			for k := 0; k < 8; k++ {
				v = v*0.6 + noiseAt(seed, i-k)*0.4*0.6
			}
			return v * 2.5
		}
	case "BROWN":
		// Short leaky integral of white noise approximates brown.
		colored = func(i int) float64 {
			v := 0.0
			for k := 15; k >= 0; k-- {
				v = v*0.9 + noiseAt(seed, i-k)*0.1
			}
			return v * 3.0
		}
	}

	vel := plugin.FloatValue(params, "gain", 0.8) * float64(note.Velocity) / 127.0
	if drumType == "DRUM" {
		freqStart := pitch * 4.0
		freqEnd := math.Max(20.0, pitch)
		// Analytic phase integral of the exponential pitch sweep, pure in t.
		sweepPhase := func(t float64) float64 {
			return freqEnd*t + (freqStart-freqEnd)*(length/8.0)*(1.0-math.Exp(-8.0*t/length))
		}
		body := func(i int) float64 {
			t := float64(i) / sr
			return math.Sin(2 * math.Pi * sweepPhase(t))
		}
		onePoleLP(out, colored, rctx.Offset, pitch*4.0, rctx.SampleRate)
		for i := range out {
			abs := rctx.Offset + i
			if abs >= total {
				out[i] = 0
				continue
			}
			t := float64(abs) / sr
			env := math.Exp(-6.0 * t / length)
			out[i] = float32((float64(out[i])*0.7 + body(abs)*0.3) * env * vel)
		}
	} else {
		// HAT: highpass = white minus lowpassed, fast decay.
		onePoleLP(out, colored, rctx.Offset, math.Max(500.0, pitch), rctx.SampleRate)
		for i := range out {
			abs := rctx.Offset + i
			if abs >= total {
				out[i] = 0
				continue
			}
			t := float64(abs) / sr
			env := math.Exp(-12.0 * t / length)
			out[i] = float32((colored(abs) - float64(out[i])) * env * vel)
		}
	}
	return out, nil
}
