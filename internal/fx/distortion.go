package fx

import (
	"math"

	"github.com/blooperdaw/bloom/internal/plugin"
)

// Distortion is tanh waveshaping with drive, output trim and an optional
// lowpass to tame harmonics.
type Distortion struct {
	lpState float32
}

// NewDistortion returns the DISTORTION effect.
func NewDistortion() plugin.Processor { return &Distortion{} }

func (d *Distortion) Metadata() plugin.Metadata {
	return plugin.Metadata{
		ID:       "DISTORTION",
		Name:     "Distortion",
		Category: plugin.Effect,
		Parameters: []plugin.ParameterSpec{
			{Name: "drive", Type: plugin.Float, Default: 4.0, Min: 1, Max: 50},
			{Name: "level", Type: plugin.Float, Default: 0.5, Min: 0, Max: 1},
			{Name: "lpf_cutoff", Type: plugin.Float, Default: 8000.0, Min: 0, Max: 20000, Unit: "Hz"},
			{Name: "mix", Type: plugin.Float, Default: 1.0, Min: 0, Max: 1},
		},
	}
}

func (d *Distortion) Process(in []float32, params map[string]any, note *plugin.NoteContext, rctx plugin.RenderContext) ([]float32, error) {
	if len(in) == 0 {
		return in, nil
	}
	drive := float32(plugin.FloatValue(params, "drive", 4))
	level := float32(plugin.FloatValue(params, "level", 0.5))
	cutoff := plugin.FloatValue(params, "lpf_cutoff", 8000)
	mix := float32(plugin.FloatValue(params, "mix", 1))

	alpha := float32(0)
	if cutoff > 0 && cutoff < float64(rctx.SampleRate)/2 {
		rc := 1 / (2 * math.Pi * cutoff)
		dt := 1 / float64(rctx.SampleRate)
		alpha = float32(dt / (rc + dt))
	}

	out := make([]float32, len(in))
	for i, dry := range in {
		wet := float32(math.Tanh(float64(dry*drive))) * level
		if alpha > 0 {
			d.lpState += alpha * (wet - d.lpState)
			wet = d.lpState
		}
		out[i] = dry*(1-mix) + wet*mix
	}
	return out, nil
}

func (d *Distortion) Reset() { d.lpState = 0 }
