package bloom

import (
	"testing"

	"github.com/blooperdaw/bloom/internal/song"
)

func TestRenderSongBouncesToCompletion(t *testing.T) {
	s := song.New("bounce")
	s.LengthTicks = 960
	s.Tracks = append(s.Tracks, song.Track{
		Name:     "lead",
		SourceID: "DUAL_OSC",
		Notes: []song.Note{
			{Pitch: 60, StartTick: 0, DurationTicks: 480, OnVelocity: 100},
			{Pitch: 67, StartTick: 480, DurationTicks: 480, OnVelocity: 90},
		},
	})
	s.Tracks = append(s.Tracks, song.Track{
		Name:     "kick",
		SourceID: "NOISE_DRUM",
		Notes: []song.Note{
			{Pitch: 36, StartTick: 0, DurationTicks: 120, OnVelocity: 110},
			{Pitch: 36, StartTick: 480, DurationTicks: 120, OnVelocity: 110},
		},
	})

	out, err := RenderSong(DefaultRegistry(), s, DefaultSampleRate, 30)
	if err != nil {
		t.Fatal(err)
	}

	// 960 ticks at 120 BPM is one second; the bounce must cover that plus
	// the last note's release.
	minFrames := int(1.0 * DefaultSampleRate)
	if len(out)/2 < minFrames {
		t.Fatalf("bounce is %d frames, want at least %d", len(out)/2, minFrames)
	}

	var peak float32
	for _, v := range out {
		if v > peak {
			peak = v
		}
		if v > 1 || v < -1 {
			t.Fatalf("sample %v escapes [-1,1]", v)
		}
	}
	if peak < 0.01 {
		t.Fatalf("bounce peak %v, expected audible signal", peak)
	}
}

func TestRenderSongEmptyArrangementFinishes(t *testing.T) {
	s := song.New("short")
	s.LengthTicks = 480
	s.Tracks = append(s.Tracks, song.Track{Name: "t0", SourceID: "DUAL_OSC"})
	out, err := RenderSong(DefaultRegistry(), s, DefaultSampleRate, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(out) == 0 {
		t.Fatal("empty bounce")
	}
}

func TestRenderSongEffectTailExtendsBounce(t *testing.T) {
	dry := song.New("dry")
	dry.LengthTicks = 480
	dry.Tracks = append(dry.Tracks, song.Track{
		Name:     "t0",
		SourceID: "DUAL_OSC",
		Notes:    []song.Note{{Pitch: 60, StartTick: 0, DurationTicks: 240, OnVelocity: 100}},
	})
	wet := song.New("wet")
	wet.LengthTicks = 480
	wet.Tracks = append(wet.Tracks, song.Track{
		Name:     "t0",
		SourceID: "DUAL_OSC",
		Notes:    []song.Note{{Pitch: 60, StartTick: 0, DurationTicks: 240, OnVelocity: 100}},
		Effects: []song.EffectSlot{{
			PluginID: "DELAY",
			Params:   map[string]any{"delay_time": 0.4, "feedback": 0.6, "mix": 0.5},
			Active:   true,
		}},
	})

	dryOut, err := RenderSong(DefaultRegistry(), dry, DefaultSampleRate, 30)
	if err != nil {
		t.Fatal(err)
	}
	wetOut, err := RenderSong(DefaultRegistry(), wet, DefaultSampleRate, 30)
	if err != nil {
		t.Fatal(err)
	}
	if len(wetOut) <= len(dryOut) {
		t.Fatalf("delay tail did not extend the bounce: wet %d frames, dry %d", len(wetOut)/2, len(dryOut)/2)
	}
}
