package fx

import (
	"math"

	"github.com/blooperdaw/bloom/internal/plugin"
)

// Chorus is a modulated delay line read at a fractional, LFO-swept
// position.
type Chorus struct {
	buf      []float32
	writePos int
	phase    float64
}

// NewChorus returns the CHORUS effect.
func NewChorus() plugin.Processor { return &Chorus{} }

func (c *Chorus) Metadata() plugin.Metadata {
	return plugin.Metadata{
		ID:       "CHORUS",
		Name:     "Chorus",
		Category: plugin.Effect,
		Parameters: []plugin.ParameterSpec{
			{Name: "delay_ms", Type: plugin.Float, Default: 15.0, Min: 1, Max: 40, Unit: "ms"},
			{Name: "depth_ms", Type: plugin.Float, Default: 3.0, Min: 0, Max: 10, Unit: "ms"},
			{Name: "rate", Type: plugin.Float, Default: 0.8, Min: 0.05, Max: 8, Unit: "Hz"},
			{Name: "feedback", Type: plugin.Float, Default: 0.2, Min: 0, Max: 0.9},
			{Name: "mix", Type: plugin.Float, Default: 0.5, Min: 0, Max: 1},
		},
	}
}

func (c *Chorus) Process(in []float32, params map[string]any, note *plugin.NoteContext, rctx plugin.RenderContext) ([]float32, error) {
	if len(in) == 0 {
		return in, nil
	}
	sr := float64(rctx.SampleRate)
	base := plugin.FloatValue(params, "delay_ms", 15) * sr / 1000
	depth := plugin.FloatValue(params, "depth_ms", 3) * sr / 1000
	rate := plugin.FloatValue(params, "rate", 0.8)
	feedback := float32(plugin.FloatValue(params, "feedback", 0.2))
	mix := float32(plugin.FloatValue(params, "mix", 0.5))

	size := int(base+depth) + 2
	if size < 4 {
		size = 4
	}
	if len(c.buf) != size {
		c.buf = make([]float32, size)
		c.writePos = 0
	}
	step := 2 * math.Pi * rate / sr

	out := make([]float32, len(in))
	for i, dry := range in {
		c.buf[c.writePos] = dry
		mod := math.Sin(c.phase) * depth
		c.phase += step
		if c.phase > 2*math.Pi {
			c.phase -= 2 * math.Pi
		}

		readPos := float64(c.writePos) - (base + mod)
		for readPos < 0 {
			readPos += float64(size)
		}
		idx := int(readPos)
		frac := float32(readPos - float64(idx))
		idx2 := idx + 1
		if idx2 >= size {
			idx2 = 0
		}
		wet := c.buf[idx]*(1-frac) + c.buf[idx2]*frac

		c.buf[c.writePos] += wet * feedback
		c.writePos++
		if c.writePos >= size {
			c.writePos = 0
		}
		out[i] = dry*(1-mix) + wet*mix
	}
	return out, nil
}

// TailSamples covers the delay line one more time around.
func (c *Chorus) TailSamples(params map[string]any, rctx plugin.RenderContext) int {
	ms := plugin.FloatValue(params, "delay_ms", 15) + plugin.FloatValue(params, "depth_ms", 3)
	return int(ms * float64(rctx.SampleRate) / 1000)
}

func (c *Chorus) Reset() {
	for i := range c.buf {
		c.buf[i] = 0
	}
	c.writePos = 0
	c.phase = 0
}
