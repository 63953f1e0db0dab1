// Package voice renders sounding notes into per-voice sample buffers and
// mixes them through per-track effect chains into a stereo master bus.
package voice

import (
	"math"

	"github.com/blooperdaw/bloom/internal/plugin"
	"github.com/blooperdaw/bloom/internal/song"
)

// Lifecycle states of a live voice.
type voiceState int

const (
	statePreRendering voiceState = iota
	stateSustaining
	stateReleasing
	stateFinished
)

const (
	// Initial pre-render window and the chunk size of each extension.
	preRenderSeconds = 2.0
	extendSeconds    = 1.0

	// Normal release and the fast release used for retriggers and
	// transport jumps.
	releaseSeconds     = 0.3
	fastReleaseSeconds = 0.05
)

// liveVoice owns the rendered sample buffer for one sounding note. The
// read cursor never passes the write cursor; extensions grow the buffer
// in whole chunks while the voice sustains.
type liveVoice struct {
	track  int
	note   song.Note
	source plugin.Processor
	params map[string]any

	state voiceState
	seq   uint64 // creation order, used for eviction

	buf         []float32
	readCursor  int // next sample to hand to the mixer
	writeCursor int // samples rendered so far

	releaseStart   int // read position where the release began
	releaseSamples int
	releaseEnd     int // min(releaseStart+releaseSamples, writeCursor)
}

func (v *liveVoice) sounding() bool {
	return v.state == stateSustaining || v.state == statePreRendering
}

// render asks the source for frames covering [v.writeCursor,
// v.writeCursor+frames) and appends them. Sources address samples by
// absolute offset, so chunk seams stay phase continuous.
func (v *liveVoice) render(frames int, rctx plugin.RenderContext) error {
	rctx.Offset = v.writeCursor
	rctx.Frames = frames
	out, err := v.source.Process(nil, v.params, &plugin.NoteContext{
		Pitch:         v.note.Pitch,
		Velocity:      v.note.OnVelocity,
		DurationTicks: v.note.DurationTicks,
	}, rctx)
	if err != nil {
		return err
	}
	v.buf = append(v.buf, out...)
	v.writeCursor += len(out)
	if len(out) < frames {
		// Source ran out of signal; pad so cursor math stays uniform.
		pad := make([]float32, frames-len(out))
		v.buf = append(v.buf, pad...)
		v.writeCursor += len(pad)
	}
	if v.state == statePreRendering {
		v.state = stateSustaining
	}
	return nil
}

// release begins the exponential fade. The tail is clamped to the
// rendered length so the read cursor can never overtake the writer.
func (v *liveVoice) release(sampleRate int, fast bool) {
	if v.state == stateReleasing || v.state == stateFinished {
		return
	}
	secs := releaseSeconds
	if fast {
		secs = fastReleaseSeconds
	}
	v.state = stateReleasing
	v.releaseStart = v.readCursor
	v.releaseSamples = int(secs * float64(sampleRate))
	if v.releaseSamples < 1 {
		v.releaseSamples = 1
	}
	v.releaseEnd = v.releaseStart + v.releaseSamples
	if v.releaseEnd > v.writeCursor {
		v.releaseEnd = v.writeCursor
	}
}

// mixInto accumulates up to n samples into dst, advancing the read
// cursor and applying the release envelope when active. Returns true
// once the voice has nothing left to contribute.
func (v *liveVoice) mixInto(dst []float32, n int) (finished bool) {
	if v.state == stateFinished {
		return true
	}
	limit := v.writeCursor
	if v.state == stateReleasing && v.releaseEnd < limit {
		limit = v.releaseEnd
	}
	for i := 0; i < n; i++ {
		if v.readCursor >= limit {
			break
		}
		s := v.buf[v.readCursor]
		if v.state == stateReleasing {
			t := float64(v.readCursor-v.releaseStart) / float64(v.releaseSamples)
			s *= float32(math.Exp(-6.0 * t))
		}
		dst[i] += s
		v.readCursor++
	}
	if v.state == stateReleasing && v.readCursor >= v.releaseEnd {
		v.state = stateFinished
		return true
	}
	return false
}

// remaining reports how many rendered samples are still unread.
func (v *liveVoice) remaining() int { return v.writeCursor - v.readCursor }
