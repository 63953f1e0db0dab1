// Package bloom is the sound-generation core of a desktop music
// workstation: it turns arrangement snapshots and live performance
// events into sample-accurate stereo audio.
//
// Two execution contexts share an Engine. The input context (UI,
// hardware MIDI, transport buttons) only enqueues requests into a
// bounded queue. The render context, which runs inside the audio device
// callback, drains that queue at the top of every block and is the sole
// writer of scheduler, voice and mixer state.
package bloom

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/blooperdaw/bloom/internal/audio"
	"github.com/blooperdaw/bloom/internal/plugin"
	"github.com/blooperdaw/bloom/internal/sched"
	"github.com/blooperdaw/bloom/internal/song"
	"github.com/blooperdaw/bloom/internal/tempo"
	"github.com/blooperdaw/bloom/internal/voice"
)

const (
	// DefaultSampleRate matches the workstation's project default.
	DefaultSampleRate = 44100

	defaultQueueCapacity = 1024
)

// ErrQueueFull is returned when the input queue cannot accept a request.
// Live note events are dropped silently instead; this surfaces only from
// calls that must not vanish, like SetSong.
var ErrQueueFull = fmt.Errorf("engine input queue full")

// LiveEvent is one raw performance event from an input device.
type LiveEvent struct {
	Channel   int // 0-15
	Pitch     int // 0-127
	Velocity  int // 0-127
	NoteOn    bool
	Timestamp time.Time
}

type eventKind int

const (
	evLiveOn eventKind = iota
	evLiveOff
	evPlay
	evStop
	evSeek
	evLoopRegion
	evLoopEnabled
	evAllNotesOff
	evSetSong
)

type inputEvent struct {
	kind     eventKind
	channel  int
	pitch    int
	velocity int
	tick     int
	endTick  int
	flag     bool
	song     *song.Song
}

// Option configures an Engine.
type Option func(*Engine)

// WithQueueCapacity sizes the bounded input queue.
func WithQueueCapacity(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.queueCap = n
		}
	}
}

// WithErrorFunc installs a callback for render failures. It runs on the
// render goroutine; keep it brief.
func WithErrorFunc(f func(track int, pluginID string, err error)) Option {
	return func(e *Engine) { e.onError = f }
}

// WithMaxVoices forwards the polyphony cap to the voice engine.
func WithMaxVoices(n int) Option {
	return func(e *Engine) { e.voiceOpts = append(e.voiceOpts, voice.WithMaxVoices(n)) }
}

// WithAutoFinish makes the engine stop itself, and report Finished, once
// a non-looping arrangement has played past its end and every voice and
// effect tail has drained. Sequenced playback tools use this; a live rig
// never finishes.
func WithAutoFinish() Option {
	return func(e *Engine) { e.autoFinish = true }
}

// Engine orchestrates the scheduler, voice engine and input queue. It
// implements audio.BlockSource: the device callback is the render
// context.
type Engine struct {
	sampleRate int
	reg        *plugin.Registry
	queueCap   int
	autoFinish bool
	onError    func(track int, pluginID string, err error)
	voiceOpts  []voice.Option

	queue chan inputEvent

	// Render-context-owned. Nothing outside RenderBlock touches these.
	song          *song.Song
	tmap          *tempo.Map
	sc            *sched.Scheduler
	voices        *voice.Engine
	tailRemaining int

	playing  atomic.Bool
	finished atomic.Bool
	tel      Telemetry

	mu     sync.Mutex
	output *audio.Output
}

// NewEngine builds an engine over the given plugin registry.
func NewEngine(reg *plugin.Registry, sampleRate int, opts ...Option) (*Engine, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate %d must be positive", sampleRate)
	}
	e := &Engine{
		sampleRate:    sampleRate,
		reg:           reg,
		queueCap:      defaultQueueCapacity,
		tailRemaining: -1,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.queue = make(chan inputEvent, e.queueCap)
	vopts := append([]voice.Option{voice.WithErrorFunc(e.renderFailure)}, e.voiceOpts...)
	e.voices = voice.NewEngine(reg, sampleRate, vopts...)
	e.sc = sched.New(nil)
	return e, nil
}

func (e *Engine) renderFailure(track int, pluginID string, err error) {
	e.tel.renderFailures.Add(1)
	if e.onError != nil {
		e.onError(track, pluginID, err)
	}
}

// SampleRate returns the configured output rate.
func (e *Engine) SampleRate() int { return e.sampleRate }

// ValidateSong checks an arrangement against a registry the way SetSong
// does: structural invariants, known plugin IDs in the right category,
// and well-typed parameter values.
func ValidateSong(reg *plugin.Registry, s *song.Song) error {
	if err := s.Validate(); err != nil {
		return err
	}
	for ti := range s.Tracks {
		tr := &s.Tracks[ti]
		meta, err := reg.Metadata(tr.SourceID)
		if err != nil {
			return fmt.Errorf("track %d: %w", ti, err)
		}
		if meta.Category != plugin.Source {
			return fmt.Errorf("track %d: plugin %q is not a source", ti, tr.SourceID)
		}
		if err := meta.ValidateParams(tr.SourceParams); err != nil {
			return fmt.Errorf("track %d: %w", ti, err)
		}
		for si, slot := range tr.Effects {
			fxMeta, err := reg.Metadata(slot.PluginID)
			if err != nil {
				return fmt.Errorf("track %d effect %d: %w", ti, si, err)
			}
			if fxMeta.Category != plugin.Effect {
				return fmt.Errorf("track %d effect %d: plugin %q is not an effect", ti, si, slot.PluginID)
			}
			if err := fxMeta.ValidateParams(slot.Params); err != nil {
				return fmt.Errorf("track %d effect %d: %w", ti, si, err)
			}
		}
	}
	return nil
}

// SetSong installs an arrangement snapshot. Configuration problems are
// returned here, before anything reaches the render context; the swap
// itself lands at the next block boundary. The caller must treat the
// snapshot as immutable afterward.
func (e *Engine) SetSong(s *song.Song) error {
	if err := ValidateSong(e.reg, s); err != nil {
		return err
	}
	return e.submit(inputEvent{kind: evSetSong, song: s})
}

// Play starts playback from the given tick at the next block boundary.
func (e *Engine) Play(fromTick int) { e.enqueue(inputEvent{kind: evPlay, tick: fromTick}) }

// Stop halts the transport and clears every voice before the next block.
func (e *Engine) Stop() { e.enqueue(inputEvent{kind: evStop}) }

// Seek moves the playhead, fading out whatever is sounding.
func (e *Engine) Seek(tick int) { e.enqueue(inputEvent{kind: evSeek, tick: tick}) }

// SetLoopRegion sets the loop bounds; end 0 means the arrangement end.
func (e *Engine) SetLoopRegion(start, end int) {
	e.enqueue(inputEvent{kind: evLoopRegion, tick: start, endTick: end})
}

// SetLoopEnabled toggles looping.
func (e *Engine) SetLoopEnabled(enabled bool) {
	e.enqueue(inputEvent{kind: evLoopEnabled, flag: enabled})
}

// AllNotesOff releases every sounding voice.
func (e *Engine) AllNotesOff() { e.enqueue(inputEvent{kind: evAllNotesOff}) }

// LiveInput feeds one performance event into the queue. Routing happens
// on the render context; events nothing listens for are dropped there.
func (e *Engine) LiveInput(ev LiveEvent) {
	kind := evLiveOff
	if ev.NoteOn {
		kind = evLiveOn
	}
	e.enqueue(inputEvent{kind: kind, channel: ev.Channel, pitch: ev.Pitch, velocity: ev.Velocity})
}

func (e *Engine) enqueue(ev inputEvent) {
	if err := e.submit(ev); err != nil {
		e.tel.droppedInputs.Add(1)
	}
}

func (e *Engine) submit(ev inputEvent) error {
	select {
	case e.queue <- ev:
		return nil
	default:
		return ErrQueueFull
	}
}

// Playing reports the transport state as of the last rendered block.
func (e *Engine) Playing() bool { return e.playing.Load() }

// Finished reports auto-finish completion; see WithAutoFinish.
func (e *Engine) Finished() bool { return e.finished.Load() }

// PlayheadTick is the tick position the last rendered block ended at.
func (e *Engine) PlayheadTick() int { return int(e.tel.playheadTick.Load()) }

// Telemetry returns a snapshot of the engine counters.
func (e *Engine) Telemetry() TelemetrySnapshot { return e.tel.Snapshot() }

// Start opens the audio device and begins pulling blocks.
func (e *Engine) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.output != nil {
		return nil
	}
	out, err := audio.NewOutput(e.sampleRate, e)
	if err != nil {
		return err
	}
	e.output = out
	out.Start()
	return nil
}

// Close stops the device. The engine can keep rendering offline.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.output == nil {
		return nil
	}
	err := e.output.Close()
	e.output = nil
	return err
}

// RenderBlock renders one block of interleaved stereo float32. This is
// the whole render context: drain inputs, advance the scheduler, render
// and mix voices. It never blocks and always fills dst.
func (e *Engine) RenderBlock(dst []float32) {
	started := time.Now()
	frames := len(dst) / 2

	e.drain()

	if e.playing.Load() && e.tmap != nil {
		pos := e.sc.Pos()
		bpm := e.tmap.BPMAt(int(pos))
		e.voices.SetTiming(bpm, int(pos))
		secs := float64(frames) / float64(e.sampleRate)
		next := e.tmap.AdvanceTicks(pos, secs)
		e.sc.Advance(next-pos, e.voices)
	}

	e.voices.RenderBlock(dst)
	e.maybeFinish(frames)

	e.tel.blocksRendered.Add(1)
	e.tel.activeVoices.Store(int64(e.voices.ActiveVoices()))
	e.tel.voiceEvictions.Store(e.voices.Evictions())
	e.tel.playheadTick.Store(int64(e.sc.Tick()))

	budget := time.Duration(float64(frames) / float64(e.sampleRate) * float64(time.Second))
	if frames > 0 && time.Since(started) > budget {
		e.tel.timingViolations.Add(1)
	}
}

func (e *Engine) drain() {
	for {
		select {
		case ev := <-e.queue:
			e.apply(ev)
		default:
			return
		}
	}
}

func (e *Engine) apply(ev inputEvent) {
	switch ev.kind {
	case evLiveOn, evLiveOff:
		e.routeLive(ev)
	case evPlay:
		e.voices.Reset()
		e.sc.Play(ev.tick)
		e.tailRemaining = -1
		e.finished.Store(false)
		e.playing.Store(true)
	case evStop:
		e.sc.Stop()
		e.voices.Reset()
		e.playing.Store(false)
	case evSeek:
		e.voices.ReleaseAll(true)
		e.sc.Seek(ev.tick)
	case evLoopRegion:
		e.sc.SetLoopRegion(ev.tick, ev.endTick)
	case evLoopEnabled:
		e.sc.SetLoopEnabled(ev.flag)
	case evAllNotesOff:
		e.voices.ReleaseAll(false)
	case evSetSong:
		e.applySong(ev.song)
	}
}

func (e *Engine) applySong(s *song.Song) {
	if err := e.voices.SetSong(s); err != nil {
		// Already validated in SetSong; only a registry raced out from
		// under us can land here.
		e.renderFailure(-1, "", err)
		return
	}
	e.song = s
	e.tmap = s.Map()
	e.sc.SetSong(s)
}

// routeLive fans one event out to every track whose channel and note
// range accept it. No match, no sound.
func (e *Engine) routeLive(ev inputEvent) {
	if e.song == nil {
		return
	}
	n := song.Note{Pitch: ev.pitch, OnVelocity: ev.velocity}
	for ti := range e.song.Tracks {
		if !e.song.Tracks[ti].AcceptsLive(ev.channel, ev.pitch) {
			continue
		}
		if ev.kind == evLiveOn {
			e.voices.NoteOn(ti, n)
		} else {
			e.voices.NoteOff(ti, n)
		}
	}
}

// maybeFinish drives the auto-finish state: past the arrangement end
// with no looping, wait for voices, then run out the longest effect
// tail before stopping.
func (e *Engine) maybeFinish(frames int) {
	if !e.autoFinish || !e.playing.Load() || e.song == nil {
		return
	}
	if _, _, looping := e.sc.LoopRegion(); looping {
		return
	}
	if e.sc.Tick() < e.song.EndTick() || e.voices.ActiveVoices() > 0 {
		e.tailRemaining = -1
		return
	}
	if e.tailRemaining < 0 {
		e.tailRemaining = e.voices.TailFrames()
	}
	e.tailRemaining -= frames
	if e.tailRemaining <= 0 {
		e.sc.Stop()
		e.playing.Store(false)
		e.finished.Store(true)
	}
}
