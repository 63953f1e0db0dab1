package project

import (
	"bytes"
	"errors"
	"path/filepath"
	"testing"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/blooperdaw/bloom/internal/song"
	"github.com/blooperdaw/bloom/internal/tempo"
)

func demoSong() *song.Song {
	s := song.New("demo")
	s.BPM = 90
	s.LengthTicks = 3840
	s.TempoMap = []tempo.Segment{{StartTick: 1920, BPM: 140, TSNum: 3, TSDenom: 4}}
	s.Tracks = append(s.Tracks, song.Track{
		Name:     "lead",
		SourceID: "DUAL_OSC",
		SourceParams: map[string]any{
			"osc1_type": "SAW",
			"gain":      0.8,
		},
		Effects: []song.EffectSlot{
			{PluginID: "DELAY", Params: map[string]any{"mix": 0.25}, Active: true},
			{PluginID: "REVERB", Active: false},
		},
		Notes: []song.Note{
			{Pitch: 60, StartTick: 0, DurationTicks: 480, OnVelocity: 100},
			{Pitch: 64, StartTick: 480, DurationTicks: 480, OnVelocity: 90, OffVelocity: 64},
		},
		VolumeDB:         -3,
		Pan:              -0.5,
		MIDIChannel:      0,
		NoteRangeMax:     127,
		ReceiveLiveInput: true,
	})
	return s
}

func TestRoundTrip(t *testing.T) {
	orig := demoSong()
	var buf bytes.Buffer
	if err := Write(&buf, orig); err != nil {
		t.Fatal(err)
	}
	got, err := Read(&buf)
	if err != nil {
		t.Fatal(err)
	}

	if got.Name != orig.Name || got.BPM != orig.BPM || got.LengthTicks != orig.LengthTicks {
		t.Fatalf("header mismatch: %+v", got)
	}
	if len(got.TempoMap) != 1 || got.TempoMap[0] != orig.TempoMap[0] {
		t.Fatalf("tempo map = %+v, want %+v", got.TempoMap, orig.TempoMap)
	}
	if len(got.Tracks) != 1 {
		t.Fatalf("tracks = %d, want 1", len(got.Tracks))
	}
	tr := got.Tracks[0]
	want := orig.Tracks[0]
	if tr.Name != want.Name || tr.SourceID != want.SourceID ||
		tr.VolumeDB != want.VolumeDB || tr.Pan != want.Pan ||
		tr.ReceiveLiveInput != want.ReceiveLiveInput {
		t.Fatalf("track mismatch: %+v", tr)
	}
	if len(tr.Notes) != 2 || tr.Notes[1] != want.Notes[1] {
		t.Fatalf("notes = %+v", tr.Notes)
	}
	if len(tr.Effects) != 2 || tr.Effects[0].PluginID != "DELAY" || !tr.Effects[0].Active || tr.Effects[1].Active {
		t.Fatalf("effects = %+v", tr.Effects)
	}
	if v, ok := tr.SourceParams["gain"].(float64); !ok || v != 0.8 {
		t.Fatalf("source params = %+v", tr.SourceParams)
	}
}

func TestSaveLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "demo"+FileExtension)
	if err := Save(path, demoSong()); err != nil {
		t.Fatal(err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if got.Name != "demo" {
		t.Fatalf("loaded name = %q", got.Name)
	}
}

func TestRoundTripKeepsZeroNoteRangeMax(t *testing.T) {
	s := song.New("narrow")
	// [0,0] is a legal single-note range and must not widen to 127.
	s.Tracks = append(s.Tracks, song.Track{
		Name:             "kick only",
		SourceID:         "NOISE_DRUM",
		ReceiveLiveInput: true,
		NoteRangeMin:     0,
		NoteRangeMax:     0,
	})
	var buf bytes.Buffer
	if err := Write(&buf, s); err != nil {
		t.Fatal(err)
	}
	got, err := Read(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if got.Tracks[0].NoteRangeMax != 0 {
		t.Fatalf("NoteRangeMax = %d after round trip, want 0", got.Tracks[0].NoteRangeMax)
	}
}

func TestReadRejectsBadMagic(t *testing.T) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	if err := enc.Encode(map[string]any{"magic": "NOPE"}); err != nil {
		t.Fatal(err)
	}
	if _, err := Read(&buf); !errors.Is(err, ErrBadMagic) {
		t.Fatalf("err = %v, want ErrBadMagic", err)
	}
}

func TestReadRejectsNewerMajor(t *testing.T) {
	var buf bytes.Buffer
	env := envelope{Magic: Magic, Major: FormatMajor + 1, Song: toFile(song.New("v2"))}
	enc := msgpack.NewEncoder(&buf)
	if err := enc.Encode(&env); err != nil {
		t.Fatal(err)
	}
	if _, err := Read(&buf); !errors.Is(err, ErrIncompatibleVersion) {
		t.Fatalf("err = %v, want ErrIncompatibleVersion", err)
	}
}

func TestReadAppliesDefaultsForOmittedFields(t *testing.T) {
	// A minimal file, as an older writer would produce: no tpqn, no
	// length, a track with no note range.
	var buf bytes.Buffer
	env := map[string]any{
		"magic":        Magic,
		"format_major": FormatMajor,
		"format_minor": 99, // newer minor must still load
		"song": map[string]any{
			"name": "sparse",
			"bpm":  100.0,
			"tracks": []map[string]any{
				{"name": "t0", "source_id": "DUAL_OSC"},
			},
		},
	}
	enc := msgpack.NewEncoder(&buf)
	if err := enc.Encode(env); err != nil {
		t.Fatal(err)
	}
	got, err := Read(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if got.TPQN != song.DefaultTPQN {
		t.Errorf("TPQN = %d, want default %d", got.TPQN, song.DefaultTPQN)
	}
	if got.LengthTicks != song.DefaultLengthTicks {
		t.Errorf("LengthTicks = %d, want default %d", got.LengthTicks, song.DefaultLengthTicks)
	}
	if got.BPM != 100 {
		t.Errorf("BPM = %v, want 100", got.BPM)
	}
	if got.Tracks[0].NoteRangeMax != 127 {
		t.Errorf("NoteRangeMax = %d, want 127", got.Tracks[0].NoteRangeMax)
	}
}
