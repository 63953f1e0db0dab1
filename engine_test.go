package bloom

import (
	"testing"

	"github.com/blooperdaw/bloom/internal/song"
)

func renderBlocks(e *Engine, n int) {
	dst := make([]float32, 2*512)
	for i := 0; i < n; i++ {
		e.RenderBlock(dst)
	}
}

func liveSong() *song.Song {
	s := song.New("live")
	s.Tracks = append(s.Tracks,
		song.Track{
			Name: "bass", SourceID: "DUAL_OSC",
			ReceiveLiveInput: true, MIDIChannel: 0, NoteRangeMin: 0, NoteRangeMax: 59,
		},
		song.Track{
			Name: "lead", SourceID: "DUAL_OSC",
			ReceiveLiveInput: true, MIDIChannel: 0, NoteRangeMin: 60, NoteRangeMax: 127,
		},
		song.Track{
			Name: "drums", SourceID: "NOISE_DRUM",
			ReceiveLiveInput: true, MIDIChannel: 9, NoteRangeMin: 0, NoteRangeMax: 127,
		},
	)
	return s
}

func newLiveEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := NewEngine(DefaultRegistry(), DefaultSampleRate)
	if err != nil {
		t.Fatal(err)
	}
	if err := e.SetSong(liveSong()); err != nil {
		t.Fatal(err)
	}
	return e
}

func TestLiveEventRoutesByChannelAndRange(t *testing.T) {
	e := newLiveEngine(t)
	e.LiveInput(LiveEvent{Channel: 0, Pitch: 40, Velocity: 100, NoteOn: true})
	renderBlocks(e, 1)
	if got := e.Telemetry().ActiveVoices; got != 1 {
		t.Fatalf("ActiveVoices = %d, want 1 (bass only)", got)
	}

	// Pitch 90 on channel 0 hits the lead split instead.
	e.LiveInput(LiveEvent{Channel: 0, Pitch: 90, Velocity: 100, NoteOn: true})
	renderBlocks(e, 1)
	if got := e.Telemetry().ActiveVoices; got != 2 {
		t.Fatalf("ActiveVoices = %d, want 2", got)
	}
}

func TestLiveEventWithNoMatchingTrackIsDropped(t *testing.T) {
	e := newLiveEngine(t)
	e.LiveInput(LiveEvent{Channel: 5, Pitch: 40, Velocity: 100, NoteOn: true})
	renderBlocks(e, 1)
	if got := e.Telemetry().ActiveVoices; got != 0 {
		t.Fatalf("ActiveVoices = %d, want 0 for unroutable event", got)
	}
}

func TestLiveNoteOffReleasesVoice(t *testing.T) {
	e := newLiveEngine(t)
	e.LiveInput(LiveEvent{Channel: 0, Pitch: 40, Velocity: 100, NoteOn: true})
	renderBlocks(e, 1)
	e.LiveInput(LiveEvent{Channel: 0, Pitch: 40, NoteOn: false})
	// 0.5s covers the 0.3s release tail.
	renderBlocks(e, 44)
	if got := e.Telemetry().ActiveVoices; got != 0 {
		t.Fatalf("ActiveVoices = %d after release, want 0", got)
	}
}

func TestStopTwiceLeavesEmptyVoiceSet(t *testing.T) {
	e := newLiveEngine(t)
	e.LiveInput(LiveEvent{Channel: 0, Pitch: 40, Velocity: 100, NoteOn: true})
	e.Play(0)
	renderBlocks(e, 2)

	e.Stop()
	e.Stop()
	renderBlocks(e, 1)
	tel := e.Telemetry()
	if tel.ActiveVoices != 0 {
		t.Fatalf("ActiveVoices = %d after double stop, want 0", tel.ActiveVoices)
	}
	if e.Playing() {
		t.Fatal("still reported playing after stop")
	}
}

func TestPlayheadAdvancesTempoAware(t *testing.T) {
	e := newLiveEngine(t)
	e.Play(0)

	// 120 BPM at 480 TPQN is 960 ticks per second. 87 blocks of 512
	// frames is 1.0101 seconds.
	renderBlocks(e, 87)
	tick := e.PlayheadTick()
	if tick < 955 || tick > 985 {
		t.Fatalf("playhead = %d ticks after ~1s, want ~970", tick)
	}
}

func TestSetSongRejectsUnknownPluginBeforeRender(t *testing.T) {
	e, err := NewEngine(DefaultRegistry(), DefaultSampleRate)
	if err != nil {
		t.Fatal(err)
	}
	s := song.New("bad")
	s.Tracks = append(s.Tracks, song.Track{Name: "t0", SourceID: "NO_SUCH_SYNTH"})
	if err := e.SetSong(s); err == nil {
		t.Fatal("SetSong accepted an unknown source plugin")
	}

	s2 := song.New("badparam")
	s2.Tracks = append(s2.Tracks, song.Track{
		Name:         "t0",
		SourceID:     "DUAL_OSC",
		SourceParams: map[string]any{"gain": 99.0},
	})
	if err := e.SetSong(s2); err == nil {
		t.Fatal("SetSong accepted an out-of-range parameter")
	}

	s3 := song.New("effectassource")
	s3.Tracks = append(s3.Tracks, song.Track{Name: "t0", SourceID: "DELAY"})
	if err := e.SetSong(s3); err == nil {
		t.Fatal("SetSong accepted an effect plugin as a track source")
	}
}

func TestQueueOverflowDropsAndCounts(t *testing.T) {
	e, err := NewEngine(DefaultRegistry(), DefaultSampleRate, WithQueueCapacity(1))
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		e.LiveInput(LiveEvent{Channel: 0, Pitch: 40, Velocity: 100, NoteOn: true})
	}
	if got := e.Telemetry().DroppedInputs; got != 2 {
		t.Fatalf("DroppedInputs = %d, want 2", got)
	}
}

func TestSequencedPlaybackProducesAudio(t *testing.T) {
	e, err := NewEngine(DefaultRegistry(), DefaultSampleRate)
	if err != nil {
		t.Fatal(err)
	}
	s := song.New("seq")
	s.Tracks = append(s.Tracks, song.Track{
		Name:     "t0",
		SourceID: "DUAL_OSC",
		Notes: []song.Note{
			{Pitch: 60, StartTick: 0, DurationTicks: 480, OnVelocity: 100},
		},
	})
	if err := e.SetSong(s); err != nil {
		t.Fatal(err)
	}
	e.Play(0)

	dst := make([]float32, 2*512)
	var peak float32
	for i := 0; i < 20; i++ {
		e.RenderBlock(dst)
		for _, v := range dst {
			if v > peak {
				peak = v
			}
			if v > 1 || v < -1 {
				t.Fatalf("output sample %v escapes [-1,1]", v)
			}
		}
	}
	if peak == 0 {
		t.Fatal("sequenced note produced silence")
	}
}
