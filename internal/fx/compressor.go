package fx

import (
	"math"

	"github.com/blooperdaw/bloom/internal/plugin"
)

// Compressor is a feed-forward compressor with an envelope follower and
// makeup gain.
type Compressor struct {
	env float32
}

// NewCompressor returns the COMPRESSOR effect.
func NewCompressor() plugin.Processor { return &Compressor{} }

func (c *Compressor) Metadata() plugin.Metadata {
	return plugin.Metadata{
		ID:       "COMPRESSOR",
		Name:     "Compressor",
		Category: plugin.Effect,
		Parameters: []plugin.ParameterSpec{
			{Name: "threshold", Type: plugin.Float, Default: -20.0, Min: -60, Max: 0, Unit: "dB"},
			{Name: "ratio", Type: plugin.Float, Default: 4.0, Min: 1, Max: 20},
			{Name: "attack", Type: plugin.Float, Default: 10.0, Min: 0.1, Max: 200, Unit: "ms"},
			{Name: "release", Type: plugin.Float, Default: 100.0, Min: 5, Max: 2000, Unit: "ms"},
			{Name: "makeup", Type: plugin.Float, Default: 0.0, Min: 0, Max: 24, Unit: "dB"},
		},
	}
}

func (c *Compressor) Process(in []float32, params map[string]any, note *plugin.NoteContext, rctx plugin.RenderContext) ([]float32, error) {
	if len(in) == 0 {
		return in, nil
	}
	sr := float64(rctx.SampleRate)
	threshold := float32(plugin.DBToLinear(plugin.FloatValue(params, "threshold", -20)))
	ratio := plugin.FloatValue(params, "ratio", 4)
	attack := float32(1 - math.Exp(-1000/(plugin.FloatValue(params, "attack", 10)*sr)))
	release := float32(1 - math.Exp(-1000/(plugin.FloatValue(params, "release", 100)*sr)))
	makeup := float32(plugin.DBToLinear(plugin.FloatValue(params, "makeup", 0)))

	out := make([]float32, len(in))
	for i, s := range in {
		level := s
		if level < 0 {
			level = -level
		}
		if level > c.env {
			c.env += attack * (level - c.env)
		} else {
			c.env += release * (level - c.env)
		}
		gain := float32(1)
		if c.env > threshold && threshold > 0 {
			over := float64(c.env / threshold)
			gain = float32(math.Pow(over, 1/ratio-1))
		}
		out[i] = s * gain * makeup
	}
	return out, nil
}

func (c *Compressor) Reset() { c.env = 0 }
