// Package sched advances a playhead across a sequenced arrangement in
// tempo-aware tick increments, emitting note-on/off and loop-jump events
// into a sink owned by the render context.
package sched

import (
	"math"
	"sort"

	"github.com/blooperdaw/bloom/internal/song"
)

// State is the transport state of the scheduler.
type State int

const (
	Stopped State = iota
	Playing
)

// Sink receives scheduling events. LoopJump implies every sounding voice
// is force-released before the next block renders.
type Sink interface {
	NoteOn(track int, n song.Note)
	NoteOff(track int, n song.Note)
	LoopJump(fromTick, toTick int)
}

type trackCursor struct {
	notes []song.Note // sorted by StartTick
	index int
}

type pendingOff struct {
	tick  int
	track int
	note  song.Note
}

// Scheduler walks the arrangement. It is owned by the render context;
// nothing here is safe for concurrent use.
type Scheduler struct {
	song    *song.Song
	cursors []trackCursor
	offs    []pendingOff

	state    State
	pos      float64 // fractional playhead in ticks
	emitFrom int     // next integer tick not yet dispatched

	loopEnabled bool
	loopStart   int
	loopEnd     int // 0 means the arrangement end
}

// New returns a stopped scheduler over the given arrangement snapshot.
func New(s *song.Song) *Scheduler {
	sc := &Scheduler{}
	sc.SetSong(s)
	return sc
}

// SetSong replaces the arrangement snapshot. Mid-playback replacement
// takes effect immediately at the current playhead: cursors rebuild, past
// events are not re-emitted, pending note-offs for removed notes still
// fire so nothing hangs.
func (sc *Scheduler) SetSong(s *song.Song) {
	sc.song = s
	sc.rebuildCursors()
}

func (sc *Scheduler) rebuildCursors() {
	if sc.song == nil {
		sc.cursors = nil
		return
	}
	sc.cursors = make([]trackCursor, len(sc.song.Tracks))
	for i := range sc.song.Tracks {
		notes := make([]song.Note, len(sc.song.Tracks[i].Notes))
		copy(notes, sc.song.Tracks[i].Notes)
		sort.SliceStable(notes, func(a, b int) bool { return notes[a].StartTick < notes[b].StartTick })
		idx := sort.Search(len(notes), func(j int) bool { return notes[j].StartTick >= sc.emitFrom })
		sc.cursors[i] = trackCursor{notes: notes, index: idx}
	}
}

// State returns the transport state.
func (sc *Scheduler) State() State { return sc.state }

// Tick returns the integer playhead position.
func (sc *Scheduler) Tick() int { return int(sc.pos) }

// Pos returns the fractional playhead position in ticks.
func (sc *Scheduler) Pos() float64 { return sc.pos }

// LoopRegion returns the configured loop region; end 0 means the
// arrangement end.
func (sc *Scheduler) LoopRegion() (start, end int, enabled bool) {
	return sc.loopStart, sc.loopEnd, sc.loopEnabled
}

// Play starts (or restarts) playback from the given tick. A note starting
// exactly at fromTick fires on the first advance.
func (sc *Scheduler) Play(fromTick int) {
	if fromTick < 0 {
		fromTick = 0
	}
	sc.state = Playing
	sc.jumpTo(fromTick)
}

// Stop halts playback and discards pending note-offs. Stopping twice is
// the same as stopping once; the caller clears live voices on the
// transition.
func (sc *Scheduler) Stop() {
	sc.state = Stopped
	sc.offs = sc.offs[:0]
}

// Seek moves the playhead without changing transport state. The caller
// clears live voices, so pending note-offs are discarded.
func (sc *Scheduler) Seek(tick int) {
	if tick < 0 {
		tick = 0
	}
	sc.jumpTo(tick)
}

func (sc *Scheduler) jumpTo(tick int) {
	sc.pos = float64(tick)
	sc.emitFrom = tick
	sc.offs = sc.offs[:0]
	sc.rebuildCursors()
}

// SetLoopRegion configures the loop bounds. end <= 0 selects the default:
// the arrangement length.
func (sc *Scheduler) SetLoopRegion(start, end int) {
	if start < 0 {
		start = 0
	}
	if end <= 0 {
		end = 0
	} else if end <= start {
		end = start + 1
	}
	sc.loopStart = start
	sc.loopEnd = end
}

// SetLoopEnabled toggles looping.
func (sc *Scheduler) SetLoopEnabled(enabled bool) { sc.loopEnabled = enabled }

func (sc *Scheduler) effectiveLoopEnd() int {
	if sc.loopEnd > 0 {
		return sc.loopEnd
	}
	if sc.song != nil {
		return sc.song.EndTick()
	}
	return song.DefaultLengthTicks
}

// Advance moves the playhead forward by deltaTicks, dispatching events in
// the spanned half-open tick window. Loop wrap emits a LoopJump and lands
// at loopStart plus the remainder past the loop end.
func (sc *Scheduler) Advance(deltaTicks float64, sink Sink) {
	if sc.state != Playing || deltaTicks <= 0 {
		return
	}
	next := sc.pos + deltaTicks
	if sc.loopEnabled {
		loopEnd := sc.effectiveLoopEnd()
		if next >= float64(loopEnd) && loopEnd > sc.loopStart {
			// Dispatch up to the loop boundary, then wrap.
			sc.dispatchWindow(sc.emitFrom, loopEnd, sink)
			remainder := next - float64(loopEnd)
			// Guard degenerate regions shorter than one block.
			span := float64(loopEnd - sc.loopStart)
			remainder = math.Mod(remainder, span)
			from := sc.Tick()
			sc.jumpTo(sc.loopStart)
			sc.pos = float64(sc.loopStart) + remainder
			sink.LoopJump(from, sc.Tick())
			sc.dispatchWindow(sc.emitFrom, int(sc.pos)+1, sink)
			sc.emitFrom = int(sc.pos) + 1
			return
		}
	}
	sc.dispatchWindow(sc.emitFrom, int(next)+1, sink)
	sc.emitFrom = int(next) + 1
	sc.pos = next
}

// dispatchWindow fires all events with ticks in [from, to). Same-tick
// ordering is note-off before note-on, except a zero-duration note's own
// off, which follows its on within the same step.
func (sc *Scheduler) dispatchWindow(from, to int, sink Sink) {
	if to <= from {
		return
	}
	for t := from; t < to; t++ {
		sc.fireOffs(t, sink)
		for ti := range sc.cursors {
			cur := &sc.cursors[ti]
			for cur.index < len(cur.notes) && cur.notes[cur.index].StartTick <= t {
				n := cur.notes[cur.index]
				cur.index++
				if n.StartTick < t {
					continue // behind the playhead after a snapshot swap
				}
				sink.NoteOn(ti, n)
				sc.scheduleOff(pendingOff{tick: n.EndTick(), track: ti, note: n})
			}
		}
		sc.fireOffs(t, sink)
	}
}

func (sc *Scheduler) fireOffs(tick int, sink Sink) {
	n := 0
	for _, off := range sc.offs {
		if off.tick <= tick {
			sink.NoteOff(off.track, off.note)
		} else {
			sc.offs[n] = off
			n++
		}
	}
	sc.offs = sc.offs[:n]
}

func (sc *Scheduler) scheduleOff(off pendingOff) {
	// Insertion keeps the nearly sorted slice ordered without a full sort
	// per step.
	sc.offs = append(sc.offs, off)
	for i := len(sc.offs) - 1; i > 0 && sc.offs[i-1].tick > sc.offs[i].tick; i-- {
		sc.offs[i-1], sc.offs[i] = sc.offs[i], sc.offs[i-1]
	}
}
