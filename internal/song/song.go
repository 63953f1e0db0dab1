// Package song holds the immutable arrangement model the engine plays.
// Edits replace values, never mutate them in place, so a snapshot handed
// to the render context stays valid for its lifetime.
package song

import (
	"fmt"

	"github.com/blooperdaw/bloom/internal/tempo"
)

const (
	// MaxTracks bounds an arrangement, matching the 16-strip mixer.
	MaxTracks = 16

	// DefaultTPQN is the tick resolution used when a song does not set one.
	DefaultTPQN = 480

	// DefaultLengthTicks is one 4/4 bar at DefaultTPQN.
	DefaultLengthTicks = 1920
)

// Note is one scored note on a track. Times are in ticks from the
// arrangement start.
type Note struct {
	Pitch         int
	StartTick     int
	DurationTicks int
	OnVelocity    int
	OffVelocity   int
}

// EndTick is the tick at which the note's note-off falls.
func (n Note) EndTick() int { return n.StartTick + n.DurationTicks }

// Validate checks the MIDI-range invariants of the note.
func (n Note) Validate() error {
	if n.Pitch < 0 || n.Pitch > 127 {
		return fmt.Errorf("note pitch %d out of range 0-127", n.Pitch)
	}
	if n.DurationTicks < 0 {
		return fmt.Errorf("note duration %d is negative", n.DurationTicks)
	}
	if n.OnVelocity < 1 || n.OnVelocity > 127 {
		return fmt.Errorf("note on-velocity %d out of range 1-127", n.OnVelocity)
	}
	if n.OffVelocity < 0 || n.OffVelocity > 127 {
		return fmt.Errorf("note off-velocity %d out of range 0-127", n.OffVelocity)
	}
	return nil
}

// EffectSlot is one effect plugin reference in a track's chain.
type EffectSlot struct {
	PluginID string
	Params   map[string]any
	Active   bool
}

// Track is an ordered set of notes bound to a source plugin, an effect
// chain, a mixer strip, and live-input routing state.
type Track struct {
	Name string

	SourceID     string
	SourceParams map[string]any
	Effects      []EffectSlot

	Notes []Note

	// Mixer strip.
	VolumeDB float64
	Pan      float64 // -1 left .. +1 right
	Muted    bool
	Soloed   bool

	// Live performance routing.
	MIDIChannel      int
	NoteRangeMin     int
	NoteRangeMax     int
	ReceiveLiveInput bool
}

// AcceptsLive reports whether a live event on (channel, pitch) routes to
// this track. Unmatched events are dropped by the caller.
func (t *Track) AcceptsLive(channel, pitch int) bool {
	return t.ReceiveLiveInput &&
		t.MIDIChannel == channel &&
		pitch >= t.NoteRangeMin && pitch <= t.NoteRangeMax
}

// Song is a whole-arrangement snapshot: tracks, tick resolution, default
// tempo and the sparse tempo-segment overrides.
type Song struct {
	Name        string
	TPQN        int
	BPM         float64
	TSNum       int
	TSDenom     int
	LengthTicks int
	Tracks      []Track
	TempoMap    []tempo.Segment
}

// New returns a song with the workstation defaults filled in.
func New(name string) *Song {
	return &Song{
		Name:        name,
		TPQN:        DefaultTPQN,
		BPM:         tempo.DefaultBPM,
		TSNum:       4,
		TSDenom:     4,
		LengthTicks: DefaultLengthTicks,
	}
}

// Validate checks the structural invariants of the arrangement.
func (s *Song) Validate() error {
	if s.BPM <= 0 {
		return fmt.Errorf("song bpm %v must be positive", s.BPM)
	}
	if s.TPQN <= 0 {
		return fmt.Errorf("song tpqn %d must be positive", s.TPQN)
	}
	if len(s.Tracks) > MaxTracks {
		return fmt.Errorf("song has %d tracks, maximum is %d", len(s.Tracks), MaxTracks)
	}
	for ti := range s.Tracks {
		tr := &s.Tracks[ti]
		if tr.NoteRangeMin > tr.NoteRangeMax {
			return fmt.Errorf("track %d: note range %d-%d inverted", ti, tr.NoteRangeMin, tr.NoteRangeMax)
		}
		for ni, n := range tr.Notes {
			if err := n.Validate(); err != nil {
				return fmt.Errorf("track %d note %d: %w", ti, ni, err)
			}
		}
	}
	return nil
}

// EndTick returns the larger of the declared arrangement length and the
// last note-off, so loop defaults never truncate sounding notes.
func (s *Song) EndTick() int {
	end := s.LengthTicks
	for ti := range s.Tracks {
		for _, n := range s.Tracks[ti].Notes {
			if e := n.EndTick(); e > end {
				end = e
			}
		}
	}
	return end
}

// Map builds the tempo map for this song.
func (s *Song) Map() *tempo.Map {
	return tempo.NewMap(s.TPQN, s.BPM, s.TempoMap)
}

// AnySoloed reports whether any track in the song is soloed.
func (s *Song) AnySoloed() bool {
	for i := range s.Tracks {
		if s.Tracks[i].Soloed {
			return true
		}
	}
	return false
}
