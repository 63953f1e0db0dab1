package fx

import (
	"github.com/blooperdaw/bloom/internal/plugin"
)

// Reverb is a Schroeder reverberator: four parallel combs into two series
// allpasses, prime-ish delay ratios to avoid stacked resonances.
type Reverb struct {
	combs    [4]combFilter
	allpass  [2]allpassFilter
	built    bool
	lastRoom float64
}

type combFilter struct {
	buf []float32
	pos int
	fb  float32
}

func (c *combFilter) process(in float32) float32 {
	out := c.buf[c.pos]
	c.buf[c.pos] = in + out*c.fb
	c.pos++
	if c.pos >= len(c.buf) {
		c.pos = 0
	}
	return out
}

type allpassFilter struct {
	buf []float32
	pos int
	fb  float32
}

func (a *allpassFilter) process(in float32) float32 {
	delayed := a.buf[a.pos]
	out := delayed - in*a.fb
	a.buf[a.pos] = in + delayed*a.fb
	a.pos++
	if a.pos >= len(a.buf) {
		a.pos = 0
	}
	return out
}

// NewReverb returns the REVERB effect.
func NewReverb() plugin.Processor { return &Reverb{} }

func (r *Reverb) Metadata() plugin.Metadata {
	return plugin.Metadata{
		ID:       "REVERB",
		Name:     "Reverb",
		Category: plugin.Effect,
		Parameters: []plugin.ParameterSpec{
			{Name: "room_size", Type: plugin.Float, Default: 0.5, Min: 0.05, Max: 1.0},
			{Name: "decay", Type: plugin.Float, Default: 0.7, Min: 0, Max: 0.95},
			{Name: "mix", Type: plugin.Float, Default: 0.25, Min: 0, Max: 1},
		},
	}
}

func (r *Reverb) build(roomSize, decay float64, sampleRate int) {
	base := int(float64(sampleRate) * roomSize * 0.05)
	if base < 10 {
		base = 10
	}
	combLens := [4]int{base, base * 1117 / 1000, base * 1271 / 1000, base * 1437 / 1000}
	for i := range r.combs {
		r.combs[i] = combFilter{buf: make([]float32, combLens[i]), fb: float32(decay)}
	}
	apLens := [2]int{base * 347 / 1000, base * 213 / 1000}
	for i := range r.allpass {
		if apLens[i] < 1 {
			apLens[i] = 1
		}
		r.allpass[i] = allpassFilter{buf: make([]float32, apLens[i]), fb: 0.5}
	}
	r.built = true
	r.lastRoom = roomSize
}

func (r *Reverb) Process(in []float32, params map[string]any, note *plugin.NoteContext, rctx plugin.RenderContext) ([]float32, error) {
	if len(in) == 0 {
		return in, nil
	}
	roomSize := plugin.FloatValue(params, "room_size", 0.5)
	decay := plugin.FloatValue(params, "decay", 0.7)
	mix := float32(plugin.FloatValue(params, "mix", 0.25))

	if !r.built || r.lastRoom != roomSize {
		r.build(roomSize, decay, rctx.SampleRate)
	} else {
		for i := range r.combs {
			r.combs[i].fb = float32(decay)
		}
	}

	out := make([]float32, len(in))
	for i, dry := range in {
		var wet float32
		for c := range r.combs {
			wet += r.combs[c].process(dry)
		}
		wet *= 0.25
		for a := range r.allpass {
			wet = r.allpass[a].process(wet)
		}
		out[i] = dry*(1-mix) + wet*mix
	}
	return out, nil
}

// TailSamples covers the comb feedback ring-out at the current decay.
func (r *Reverb) TailSamples(params map[string]any, rctx plugin.RenderContext) int {
	roomSize := plugin.FloatValue(params, "room_size", 0.5)
	decay := plugin.FloatValue(params, "decay", 0.7)
	// Longest comb is ~roomSize*0.072s; ring-out scales with 1/(1-decay).
	longest := roomSize * 0.072 * float64(rctx.SampleRate)
	if decay >= 0.95 {
		decay = 0.95
	}
	return int(longest * (1.0 + 7.0*decay/(1.0-decay)))
}

func (r *Reverb) Reset() {
	for i := range r.combs {
		for j := range r.combs[i].buf {
			r.combs[i].buf[j] = 0
		}
		r.combs[i].pos = 0
	}
	for i := range r.allpass {
		for j := range r.allpass[i].buf {
			r.allpass[i].buf[j] = 0
		}
		r.allpass[i].pos = 0
	}
}
