package voice

import (
	"fmt"
	"math"

	"github.com/blooperdaw/bloom/internal/plugin"
	"github.com/blooperdaw/bloom/internal/song"
	"github.com/blooperdaw/bloom/internal/tempo"
)

const (
	// DefaultMaxVoices caps simultaneous voices across all tracks.
	DefaultMaxVoices = 64
	// DefaultMaxExtensionsPerBlock bounds how many proactive buffer
	// extensions run in a single block. Extensions a block cannot do
	// without always run.
	DefaultMaxExtensionsPerBlock = 4
)

// Option configures an Engine.
type Option func(*Engine)

// WithMaxVoices overrides the polyphony cap.
func WithMaxVoices(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxVoices = n
		}
	}
}

// WithMaxExtensionsPerBlock overrides the proactive extension budget.
func WithMaxExtensionsPerBlock(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxExtensions = n
		}
	}
}

// WithErrorFunc installs a callback invoked when a plugin fails during
// rendering. The failing voice is force finished; everything else keeps
// playing.
func WithErrorFunc(f func(track int, pluginID string, err error)) Option {
	return func(e *Engine) { e.onError = f }
}

type fxSlot struct {
	id     string
	proc   plugin.Processor
	params map[string]any
}

type trackStrip struct {
	sourceID     string
	source       plugin.Processor
	sourceParams map[string]any
	chain        []fxSlot
	gainL, gainR float32
	audible      bool
}

// Engine turns scheduler events into sounding voices and mixes them into
// a stereo master bus. It is driven from the render context only; it is
// not safe for concurrent use.
type Engine struct {
	reg        *plugin.Registry
	sampleRate int

	maxVoices     int
	maxExtensions int
	onError       func(track int, pluginID string, err error)

	strips  []*trackStrip
	tpqn    int
	curBPM  float64
	curTick int

	voices    []*liveVoice
	nextSeq   uint64
	extCursor int

	trackBuf []float32

	sourceRenders uint64
	evictions     uint64
}

// NewEngine returns an engine with no song configured.
func NewEngine(reg *plugin.Registry, sampleRate int, opts ...Option) *Engine {
	e := &Engine{
		reg:           reg,
		sampleRate:    sampleRate,
		maxVoices:     DefaultMaxVoices,
		maxExtensions: DefaultMaxExtensionsPerBlock,
		tpqn:          song.DefaultTPQN,
		curBPM:        tempo.DefaultBPM,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// SetSong resolves every track's source and effect chain against the
// registry and installs the mix parameters. Resolution failures surface
// here, at configuration time, never mid-render.
func (e *Engine) SetSong(s *song.Song) error {
	strips := make([]*trackStrip, len(s.Tracks))
	anySolo := s.AnySoloed()
	for i := range s.Tracks {
		t := &s.Tracks[i]
		src, err := e.reg.Resolve(t.SourceID)
		if err != nil {
			return fmt.Errorf("track %d source: %w", i, err)
		}
		meta, _ := e.reg.Metadata(t.SourceID)
		params := meta.DefaultParams()
		for k, v := range t.SourceParams {
			params[k] = v
		}
		strip := &trackStrip{
			sourceID:     t.SourceID,
			source:       src,
			sourceParams: params,
		}
		for _, slot := range t.Effects {
			if !slot.Active {
				continue
			}
			proc, err := e.reg.Resolve(slot.PluginID)
			if err != nil {
				return fmt.Errorf("track %d effect %q: %w", i, slot.PluginID, err)
			}
			fxMeta, _ := e.reg.Metadata(slot.PluginID)
			fxParams := fxMeta.DefaultParams()
			for k, v := range slot.Params {
				fxParams[k] = v
			}
			strip.chain = append(strip.chain, fxSlot{id: slot.PluginID, proc: proc, params: fxParams})
		}
		angle := (t.Pan + 1) * math.Pi / 4
		vol := float32(plugin.DBToLinear(t.VolumeDB))
		strip.gainL = float32(math.Cos(angle)) * vol
		strip.gainR = float32(math.Sin(angle)) * vol
		strip.audible = !t.Muted && (!anySolo || t.Soloed)
		strips[i] = strip
	}
	e.strips = strips
	e.tpqn = s.TPQN
	return nil
}

// SetTiming updates the tempo context used for subsequent renders. The
// transport calls this at the top of every block.
func (e *Engine) SetTiming(bpm float64, tick int) {
	if bpm > 0 {
		e.curBPM = bpm
	}
	e.curTick = tick
}

func (e *Engine) renderCtx() plugin.RenderContext {
	return plugin.RenderContext{
		SampleRate:  e.sampleRate,
		BPM:         e.curBPM,
		TPQN:        e.tpqn,
		CurrentTick: e.curTick,
	}
}

// ActiveVoices returns the number of live voices, releasing included.
func (e *Engine) ActiveVoices() int { return len(e.voices) }

// SourceRenders returns how many source render calls have run. Test and
// telemetry hook.
func (e *Engine) SourceRenders() uint64 { return e.sourceRenders }

// Evictions returns how many voices were dropped to honor the polyphony
// cap.
func (e *Engine) Evictions() uint64 { return e.evictions }

// NoteOn starts a voice for a scheduled note. A voice already sounding
// at the same track and pitch gets a fast release first; the new voice
// plays alongside its tail.
func (e *Engine) NoteOn(track int, n song.Note) {
	if track < 0 || track >= len(e.strips) {
		return
	}
	for _, v := range e.voices {
		if v.track == track && v.note.Pitch == n.Pitch && v.sounding() {
			v.release(e.sampleRate, true)
		}
	}
	e.evictFor()
	strip := e.strips[track]
	v := &liveVoice{
		track:  track,
		note:   n,
		source: strip.source,
		params: strip.sourceParams,
		state:  statePreRendering,
		seq:    e.nextSeq,
	}
	e.nextSeq++
	if err := e.renderVoice(v, int(preRenderSeconds*float64(e.sampleRate))); err != nil {
		e.reportError(track, strip.sourceID, err)
		return
	}
	e.voices = append(e.voices, v)
}

// NoteOff releases the oldest sounding voice at the track and pitch.
func (e *Engine) NoteOff(track int, n song.Note) {
	for _, v := range e.voices {
		if v.track == track && v.note.Pitch == n.Pitch && v.sounding() {
			v.release(e.sampleRate, false)
			return
		}
	}
}

// LoopJump drops every voice outright; the landing position replays its
// own notes, and nothing from before the jump bleeds across it. Effect
// state survives so delay and reverb tails carry over the boundary.
func (e *Engine) LoopJump(fromTick, toTick int) { e.voices = e.voices[:0] }

// ReleaseAll puts every sounding voice into release.
func (e *Engine) ReleaseAll(fast bool) {
	for _, v := range e.voices {
		v.release(e.sampleRate, fast)
	}
}

// Reset drops all voices immediately and clears effect state.
func (e *Engine) Reset() {
	e.voices = e.voices[:0]
	for _, strip := range e.strips {
		for _, fx := range strip.chain {
			if r, ok := fx.proc.(plugin.Resetter); ok {
				r.Reset()
			}
		}
	}
}

func (e *Engine) renderVoice(v *liveVoice, frames int) error {
	e.sourceRenders++
	return v.render(frames, e.renderCtx())
}

func (e *Engine) reportError(track int, pluginID string, err error) {
	if e.onError != nil {
		e.onError(track, pluginID, err)
	}
}

// evictFor makes room for one more voice. The oldest releasing voice
// goes first; with none releasing, the oldest voice overall.
func (e *Engine) evictFor() {
	if len(e.voices) < e.maxVoices {
		return
	}
	idx := -1
	for i, v := range e.voices {
		if v.state != stateReleasing {
			continue
		}
		if idx < 0 || v.seq < e.voices[idx].seq {
			idx = i
		}
	}
	if idx < 0 {
		for i, v := range e.voices {
			if idx < 0 || v.seq < e.voices[idx].seq {
				idx = i
			}
		}
	}
	if idx >= 0 {
		e.voices = append(e.voices[:idx], e.voices[idx+1:]...)
		e.evictions++
	}
}

// extendVoices tops up voice buffers before a block of the given length.
// Voices that would underrun this block extend unconditionally; voices
// merely running low extend round-robin within the per-block budget.
func (e *Engine) extendVoices(frames int) {
	if len(e.voices) == 0 {
		return
	}
	lead := e.sampleRate / 10
	if lead < 2*frames {
		lead = 2 * frames
	}
	budget := e.maxExtensions
	extFrames := int(extendSeconds * float64(e.sampleRate))
	n := len(e.voices)
	start := e.extCursor % n
	for i := 0; i < n; i++ {
		v := e.voices[(start+i)%n]
		if v.state != stateSustaining {
			continue
		}
		mandatory := v.remaining() < frames
		if !mandatory && (budget <= 0 || v.remaining() >= lead) {
			continue
		}
		if err := e.renderVoice(v, extFrames); err != nil {
			e.reportError(v.track, e.strips[v.track].sourceID, err)
			v.state = stateFinished
			continue
		}
		budget--
	}
	e.extCursor = (start + 1) % n
}

// RenderBlock renders one block of interleaved stereo samples into dst.
// len(dst) must be even; the block length is len(dst)/2 frames.
func (e *Engine) RenderBlock(dst []float32) {
	frames := len(dst) / 2
	for i := range dst {
		dst[i] = 0
	}
	if frames == 0 {
		return
	}
	e.extendVoices(frames)
	if cap(e.trackBuf) < frames {
		e.trackBuf = make([]float32, frames)
	}
	rctx := e.renderCtx()

	for ti, strip := range e.strips {
		buf := e.trackBuf[:frames]
		for i := range buf {
			buf[i] = 0
		}
		active := false
		for _, v := range e.voices {
			if v.track != ti {
				continue
			}
			active = true
			if v.mixInto(buf, frames) {
				v.state = stateFinished
			}
		}
		if !active && len(strip.chain) == 0 {
			continue
		}
		for _, fx := range strip.chain {
			out, err := fx.proc.Process(buf, fx.params, nil, rctx)
			if err != nil {
				e.reportError(ti, fx.id, err)
				continue
			}
			buf = out
		}
		if !strip.audible {
			continue
		}
		for i := 0; i < frames && i < len(buf); i++ {
			dst[2*i] += buf[i] * strip.gainL
			dst[2*i+1] += buf[i] * strip.gainR
		}
	}

	// Drop finished voices.
	n := 0
	for _, v := range e.voices {
		if v.state != stateFinished {
			e.voices[n] = v
			n++
		}
	}
	e.voices = e.voices[:n]

	// Hard clip the master bus.
	for i := range dst {
		if dst[i] > 1 {
			dst[i] = 1
		} else if dst[i] < -1 {
			dst[i] = -1
		}
	}
}

// TailFrames reports the longest effect tail across all tracks, used by
// offline rendering to size the run-out after the last note.
func (e *Engine) TailFrames() int {
	rctx := e.renderCtx()
	max := 0
	for _, strip := range e.strips {
		for _, fx := range strip.chain {
			if ts, ok := fx.proc.(plugin.TailSampler); ok {
				if n := ts.TailSamples(fx.params, rctx); n > max {
					max = n
				}
			}
		}
	}
	return max
}
