package fx

import (
	"math"

	"github.com/blooperdaw/bloom/internal/plugin"
)

// EQ is a 3-band equalizer built from one-pole crossover filters.
type EQ struct {
	lpState float32
	hpState float32
}

// NewEQ returns the EQ effect.
func NewEQ() plugin.Processor { return &EQ{} }

func (e *EQ) Metadata() plugin.Metadata {
	return plugin.Metadata{
		ID:       "EQ",
		Name:     "3-Band EQ",
		Category: plugin.Effect,
		Parameters: []plugin.ParameterSpec{
			{Name: "low_gain", Type: plugin.Float, Default: 1.0, Min: 0, Max: 2.0},
			{Name: "mid_gain", Type: plugin.Float, Default: 1.0, Min: 0, Max: 2.0},
			{Name: "high_gain", Type: plugin.Float, Default: 1.0, Min: 0, Max: 2.0},
			{Name: "low_freq", Type: plugin.Float, Default: 300.0, Min: 40, Max: 1000, Unit: "Hz"},
			{Name: "high_freq", Type: plugin.Float, Default: 3000.0, Min: 1000, Max: 12000, Unit: "Hz"},
			{Name: "mix", Type: plugin.Float, Default: 1.0, Min: 0, Max: 1},
		},
	}
}

func (e *EQ) Process(in []float32, params map[string]any, note *plugin.NoteContext, rctx plugin.RenderContext) ([]float32, error) {
	if len(in) == 0 {
		return in, nil
	}
	lowGain := float32(plugin.FloatValue(params, "low_gain", 1.0))
	midGain := float32(plugin.FloatValue(params, "mid_gain", 1.0))
	highGain := float32(plugin.FloatValue(params, "high_gain", 1.0))
	mix := float32(plugin.FloatValue(params, "mix", 1.0))

	dt := 1.0 / float64(rctx.SampleRate)
	lpRC := 1.0 / (2.0 * math.Pi * plugin.FloatValue(params, "low_freq", 300.0))
	hpRC := 1.0 / (2.0 * math.Pi * plugin.FloatValue(params, "high_freq", 3000.0))
	lpAlpha := float32(dt / (lpRC + dt))
	hpAlpha := float32(dt / (hpRC + dt))

	out := make([]float32, len(in))
	for i, dry := range in {
		e.lpState += lpAlpha * (dry - e.lpState)
		low := e.lpState
		e.hpState += hpAlpha * (dry - e.hpState)
		high := dry - e.hpState
		mid := dry - low - high
		wet := low*lowGain + mid*midGain + high*highGain
		out[i] = dry*(1-mix) + wet*mix
	}
	return out, nil
}

func (e *EQ) Reset() {
	e.lpState = 0
	e.hpState = 0
}
