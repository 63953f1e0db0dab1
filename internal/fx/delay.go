// Package fx contains the built-in effect plugins. Effects are stateful:
// each track's chain slot owns its own instance, and internal buffers
// persist across blocks so feedback tails keep ringing after input ends.
package fx

import (
	"math"

	"github.com/blooperdaw/bloom/internal/plugin"
)

// Delay is a feedback delay with a tone control in the feedback path.
type Delay struct {
	buf      []float32
	writePos int
	lpState  float32
}

// NewDelay returns the DELAY effect.
func NewDelay() plugin.Processor { return &Delay{} }

func (d *Delay) Metadata() plugin.Metadata {
	return plugin.Metadata{
		ID:       "DELAY",
		Name:     "Delay",
		Category: plugin.Effect,
		Parameters: []plugin.ParameterSpec{
			{Name: "delay_time", Type: plugin.Float, Default: 0.5, Min: 0.05, Max: 5.0, Unit: "s"},
			{Name: "feedback", Type: plugin.Float, Default: 0.5, Min: 0, Max: 0.95},
			{Name: "mix", Type: plugin.Float, Default: 0.5, Min: 0, Max: 1},
			{Name: "tone", Type: plugin.Float, Default: 0.7, Min: 0, Max: 1},
		},
	}
}

func (d *Delay) Process(in []float32, params map[string]any, note *plugin.NoteContext, rctx plugin.RenderContext) ([]float32, error) {
	if len(in) == 0 {
		return in, nil
	}
	delayTime := plugin.FloatValue(params, "delay_time", 0.5)
	feedback := float32(plugin.FloatValue(params, "feedback", 0.5))
	mix := float32(plugin.FloatValue(params, "mix", 0.5))
	tone := float32(plugin.FloatValue(params, "tone", 0.7))

	samples := int(delayTime * float64(rctx.SampleRate))
	if samples < 1 {
		samples = 1
	}
	if len(d.buf) != samples {
		// Delay-time changes rebuild the line; also sizes it on first use.
		d.buf = make([]float32, samples)
		d.writePos = 0
	}

	out := make([]float32, len(in))
	for i, dry := range in {
		wet := d.buf[d.writePos]
		// Tone: one-pole lowpass inside the feedback loop; darker echoes
		// at low settings.
		d.lpState += tone * (wet - d.lpState)
		d.buf[d.writePos] = dry + d.lpState*feedback
		d.writePos++
		if d.writePos >= len(d.buf) {
			d.writePos = 0
		}
		out[i] = dry*(1-mix) + wet*mix
	}
	return out, nil
}

// TailSamples reports enough line round trips for the feedback to decay
// below audibility.
func (d *Delay) TailSamples(params map[string]any, rctx plugin.RenderContext) int {
	delayTime := plugin.FloatValue(params, "delay_time", 0.5)
	feedback := plugin.FloatValue(params, "feedback", 0.5)
	if feedback <= 0 {
		return int(delayTime * float64(rctx.SampleRate))
	}
	// Echo count until -60 dB: fb^n < 1e-3.
	n := math.Log(1e-3) / math.Log(feedback)
	return int(delayTime * float64(rctx.SampleRate) * math.Ceil(n))
}

func (d *Delay) Reset() {
	for i := range d.buf {
		d.buf[i] = 0
	}
	d.writePos = 0
	d.lpState = 0
}
