package tempo

import "sort"

// DefaultBPM is used when a song carries no tempo segments at all.
const DefaultBPM = 120.0

// Segment is a tempo/time-signature override starting at a tick position.
// A segment stays in effect until the next segment's StartTick.
type Segment struct {
	StartTick int
	BPM       float64
	TSNum     int
	TSDenom   int
}

// Map resolves tick positions to wall-clock time and tempo. Segments fully
// partition the tick axis: the first segment always starts at tick 0 (a
// default segment is synthesized when the input list starts later or is
// empty), segments are sorted and deduplicated on StartTick.
type Map struct {
	segments []Segment
	tpqn     int
}

// NewMap builds a tempo map from sparse per-measure overrides.
// tpqn is the tick resolution (ticks per quarter note).
func NewMap(tpqn int, defaultBPM float64, segments []Segment) *Map {
	if tpqn <= 0 {
		tpqn = 480
	}
	if defaultBPM <= 0 {
		defaultBPM = DefaultBPM
	}
	segs := make([]Segment, 0, len(segments)+1)
	for _, s := range segments {
		if s.BPM <= 0 || s.StartTick < 0 {
			continue
		}
		if s.TSNum <= 0 {
			s.TSNum = 4
		}
		if s.TSDenom <= 0 {
			s.TSDenom = 4
		}
		segs = append(segs, s)
	}
	sort.SliceStable(segs, func(i, j int) bool { return segs[i].StartTick < segs[j].StartTick })
	// Deduplicate: later entries win, matching edit-replaces semantics.
	out := segs[:0]
	for _, s := range segs {
		if n := len(out); n > 0 && out[n-1].StartTick == s.StartTick {
			out[n-1] = s
			continue
		}
		out = append(out, s)
	}
	if len(out) == 0 || out[0].StartTick != 0 {
		out = append([]Segment{{StartTick: 0, BPM: defaultBPM, TSNum: 4, TSDenom: 4}}, out...)
	}
	return &Map{segments: out, tpqn: tpqn}
}

// TPQN returns the tick resolution of the map.
func (m *Map) TPQN() int { return m.tpqn }

// Segments returns the normalized segment list.
func (m *Map) Segments() []Segment { return m.segments }

func (m *Map) segmentIndexAt(tick int) int {
	// Binary search for the last segment with StartTick <= tick.
	lo, hi := 0, len(m.segments)-1
	for lo < hi {
		mid := (lo + hi + 1) / 2
		if m.segments[mid].StartTick <= tick {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	return lo
}

// SegmentAt returns the segment in effect at tick.
func (m *Map) SegmentAt(tick int) Segment {
	if tick < 0 {
		tick = 0
	}
	return m.segments[m.segmentIndexAt(tick)]
}

// BPMAt returns the tempo in effect at tick.
func (m *Map) BPMAt(tick int) float64 {
	return m.SegmentAt(tick).BPM
}

// SecondsPerTick returns the duration of one tick at the given position.
func (m *Map) SecondsPerTick(tick int) float64 {
	return 60.0 / (m.BPMAt(tick) * float64(m.tpqn))
}

// TicksToSeconds integrates tick duration over every segment spanned by
// [fromTick, toTick]. The mapping is continuous and monotonic across
// segment boundaries. A reversed interval yields a negative duration.
func (m *Map) TicksToSeconds(fromTick, toTick float64) float64 {
	if toTick < fromTick {
		return -m.TicksToSeconds(toTick, fromTick)
	}
	if fromTick < 0 {
		fromTick = 0
	}
	if toTick < 0 {
		toTick = 0
	}
	var secs float64
	idx := m.segmentIndexAt(int(fromTick))
	pos := fromTick
	for pos < toTick {
		seg := m.segments[idx]
		end := toTick
		if idx+1 < len(m.segments) && float64(m.segments[idx+1].StartTick) < end {
			end = float64(m.segments[idx+1].StartTick)
		}
		secs += (end - pos) * 60.0 / (seg.BPM * float64(m.tpqn))
		pos = end
		idx++
		if idx >= len(m.segments) {
			// Final segment extends to infinity.
			secs += (toTick - pos) * 60.0 / (seg.BPM * float64(m.tpqn))
			break
		}
	}
	return secs
}

// AdvanceTicks converts elapsed wall-clock seconds starting at fromTick into
// a new (fractional) tick position, walking segment boundaries so a tempo
// change mid-block still converts exactly. This is the inverse of
// TicksToSeconds and is what the fixed-rate audio clock calls each block.
func (m *Map) AdvanceTicks(fromTick float64, seconds float64) float64 {
	if seconds <= 0 {
		return fromTick
	}
	if fromTick < 0 {
		fromTick = 0
	}
	pos := fromTick
	idx := m.segmentIndexAt(int(pos))
	remaining := seconds
	for {
		seg := m.segments[idx]
		ticksPerSec := seg.BPM * float64(m.tpqn) / 60.0
		if idx+1 >= len(m.segments) {
			return pos + remaining*ticksPerSec
		}
		boundary := float64(m.segments[idx+1].StartTick)
		secsToBoundary := (boundary - pos) / ticksPerSec
		if remaining < secsToBoundary {
			return pos + remaining*ticksPerSec
		}
		remaining -= secsToBoundary
		pos = boundary
		idx++
	}
}
