package bloom

import (
	"fmt"

	"github.com/blooperdaw/bloom/internal/plugin"
	"github.com/blooperdaw/bloom/internal/song"
)

const offlineBlockFrames = 512

// RenderSong bounces an arrangement offline through the same render path
// the device callback uses, returning interleaved stereo float32. The
// bounce runs from tick 0 past the arrangement end until every voice and
// effect tail has drained. maxSeconds caps runaway arrangements; 0 means
// no cap.
func RenderSong(reg *plugin.Registry, s *song.Song, sampleRate int, maxSeconds float64) ([]float32, error) {
	e, err := NewEngine(reg, sampleRate, WithAutoFinish())
	if err != nil {
		return nil, err
	}
	if err := e.SetSong(s); err != nil {
		return nil, err
	}
	e.Play(0)

	maxFrames := -1
	if maxSeconds > 0 {
		maxFrames = int(maxSeconds * float64(sampleRate))
	}
	var out []float32
	block := make([]float32, 2*offlineBlockFrames)
	for !e.Finished() {
		e.RenderBlock(block)
		out = append(out, block...)
		if maxFrames >= 0 && len(out)/2 >= maxFrames {
			return out, fmt.Errorf("bounce exceeded %v second cap", maxSeconds)
		}
	}
	return out, nil
}
