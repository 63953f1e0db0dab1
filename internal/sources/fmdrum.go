package sources

import (
	"math"

	"github.com/blooperdaw/bloom/internal/plugin"
)

// FMDrum synthesizes kicks, toms and electronic percussion by phase
// modulation: a carrier bent by a modulator whose depth collapses faster
// than the body decays, so the attack is bright and the tail rings out as
// a near-pure carrier. One-shot like NoiseDrum.
type FMDrum struct{}

// NewFMDrum returns the FM_DRUM source.
func NewFMDrum() plugin.Processor { return &FMDrum{} }

func (f *FMDrum) Metadata() plugin.Metadata {
	return plugin.Metadata{
		ID:       "FM_DRUM",
		Name:     "FM Drum",
		Category: plugin.Source,
		Parameters: []plugin.ParameterSpec{
			{Name: "fm_ratio", Type: plugin.Float, Default: 3.5, Min: 0.1, Max: 10.0},
			{Name: "fm_depth", Type: plugin.Float, Default: 5.0, Min: 0, Max: 20.0},
			{Name: "length", Type: plugin.Float, Default: 0.3, Min: 0.05, Max: 2.0, Unit: "s"},
			{Name: "gain", Type: plugin.Float, Default: 0.8, Min: 0, Max: 1},
			{Name: "root_note", Type: plugin.Int, Default: 60, Min: 0, Max: 127},
			{Name: "transpose", Type: plugin.Int, Default: 0, Min: -24, Max: 24, Unit: "st"},
		},
	}
}

func (f *FMDrum) Process(in []float32, params map[string]any, note *plugin.NoteContext, rctx plugin.RenderContext) ([]float32, error) {
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

	// Drums sit at 100 Hz when the note matches the root.
	scale := pitchScale(note.Pitch, plugin.IntValue(params, "root_note", 60), plugin.IntValue(params, "transpose", 0))
	carrier := 100.0 * scale
	modulator := carrier * plugin.FloatValue(params, "fm_ratio", 3.5)
	depth := plugin.FloatValue(params, "fm_depth", 5.0)
	vel := plugin.FloatValue(params, "gain", 0.8) * float64(note.Velocity) / 127.0

	for i := range out {
		abs := rctx.Offset + i
		if abs >= total {
			break
		}
		t := float64(abs) / sr
		index := depth * math.Exp(-15.0*t/length)
		mod := math.Sin(2*math.Pi*modulator*t) * index
		body := math.Sin(2*math.Pi*carrier*t + mod)
		out[i] = float32(body * math.Exp(-8.0*t/length) * vel)
	}
	return out, nil
}
