package sched

import (
	"fmt"
	"testing"

	"github.com/blooperdaw/bloom/internal/song"
)

type recordedEvent struct {
	kind  string // "on", "off", "loop"
	track int
	tick  int // StartTick for on, EndTick for off, landing tick for loop
	pitch int
}

type recordingSink struct {
	events []recordedEvent
}

func (r *recordingSink) NoteOn(track int, n song.Note) {
	r.events = append(r.events, recordedEvent{kind: "on", track: track, tick: n.StartTick, pitch: n.Pitch})
}

func (r *recordingSink) NoteOff(track int, n song.Note) {
	r.events = append(r.events, recordedEvent{kind: "off", track: track, tick: n.EndTick(), pitch: n.Pitch})
}

func (r *recordingSink) LoopJump(from, to int) {
	r.events = append(r.events, recordedEvent{kind: "loop", tick: to})
}

func oneTrackSong(notes ...song.Note) *song.Song {
	s := song.New("test")
	s.Tracks = append(s.Tracks, song.Track{Name: "t0", SourceID: "DUAL_OSC", Notes: notes})
	return s
}

func TestNoteOnAndOffAcrossBlocks(t *testing.T) {
	s := oneTrackSong(song.Note{Pitch: 60, StartTick: 0, DurationTicks: 480, OnVelocity: 100})
	sc := New(s)
	sc.Play(0)

	sink := &recordingSink{}
	// Ten advances of 48.1 ticks comfortably cross tick 480.
	for i := 0; i < 10; i++ {
		sc.Advance(48.1, sink)
	}

	want := []recordedEvent{
		{kind: "on", track: 0, tick: 0, pitch: 60},
		{kind: "off", track: 0, tick: 480, pitch: 60},
	}
	if len(sink.events) != len(want) {
		t.Fatalf("events = %v, want %v", sink.events, want)
	}
	for i, ev := range want {
		if sink.events[i] != ev {
			t.Errorf("event[%d] = %v, want %v", i, sink.events[i], ev)
		}
	}
}

func TestOffBeforeOnAtSameTick(t *testing.T) {
	s := oneTrackSong(
		song.Note{Pitch: 60, StartTick: 0, DurationTicks: 240, OnVelocity: 100},
		song.Note{Pitch: 62, StartTick: 240, DurationTicks: 240, OnVelocity: 100},
	)
	sc := New(s)
	sc.Play(0)
	sink := &recordingSink{}
	sc.Advance(500, sink)

	var atBoundary []string
	for _, ev := range sink.events {
		if ev.tick == 240 && ev.kind != "loop" {
			atBoundary = append(atBoundary, fmt.Sprintf("%s:%d", ev.kind, ev.pitch))
		}
	}
	if len(atBoundary) != 2 || atBoundary[0] != "off:60" || atBoundary[1] != "on:62" {
		t.Fatalf("boundary order = %v, want [off:60 on:62]", atBoundary)
	}
}

func TestZeroDurationNoteEmitsOnThenOff(t *testing.T) {
	s := oneTrackSong(song.Note{Pitch: 36, StartTick: 120, DurationTicks: 0, OnVelocity: 90})
	sc := New(s)
	sc.Play(0)
	sink := &recordingSink{}
	sc.Advance(200, sink)

	if len(sink.events) != 2 {
		t.Fatalf("got %d events, want 2: %v", len(sink.events), sink.events)
	}
	if sink.events[0].kind != "on" || sink.events[1].kind != "off" {
		t.Fatalf("order = %s,%s, want on,off", sink.events[0].kind, sink.events[1].kind)
	}
	if sink.events[0].tick != 120 || sink.events[1].tick != 120 {
		t.Fatalf("ticks = %d,%d, want 120,120", sink.events[0].tick, sink.events[1].tick)
	}
}

func TestLoopJumpLandsAtRemainder(t *testing.T) {
	s := oneTrackSong()
	s.LengthTicks = 1920
	sc := New(s)
	sc.SetLoopRegion(0, 1920)
	sc.SetLoopEnabled(true)
	sc.Play(1900)

	sink := &recordingSink{}
	sc.Advance(50, sink)

	if got := sc.Tick(); got != 30 {
		t.Fatalf("playhead after loop = %d, want 30", got)
	}
	found := false
	for _, ev := range sink.events {
		if ev.kind == "loop" {
			found = true
			if ev.tick != 30 {
				t.Errorf("loop landing = %d, want 30", ev.tick)
			}
		}
	}
	if !found {
		t.Fatal("no loop-jump event emitted")
	}
}

func TestLoopDefaultEndIsArrangementLength(t *testing.T) {
	s := oneTrackSong()
	s.LengthTicks = 960
	sc := New(s)
	sc.SetLoopRegion(0, 0)
	sc.SetLoopEnabled(true)
	sc.Play(950)

	sink := &recordingSink{}
	sc.Advance(20, sink)
	if got := sc.Tick(); got != 10 {
		t.Fatalf("playhead = %d, want 10 (looped at arrangement end 960)", got)
	}
}

func TestLoopEmitsNotesBeforeBoundaryAndAfterLanding(t *testing.T) {
	s := oneTrackSong(
		song.Note{Pitch: 64, StartTick: 1910, DurationTicks: 60, OnVelocity: 100},
		song.Note{Pitch: 65, StartTick: 10, DurationTicks: 60, OnVelocity: 100},
	)
	s.LengthTicks = 1920
	sc := New(s)
	sc.SetLoopRegion(0, 1920)
	sc.SetLoopEnabled(true)
	sc.Play(1900)

	sink := &recordingSink{}
	sc.Advance(50, sink) // lands at 30

	var kinds []string
	for _, ev := range sink.events {
		kinds = append(kinds, fmt.Sprintf("%s:%d", ev.kind, ev.pitch))
	}
	want := []string{"on:64", "loop:0", "on:65"}
	if len(kinds) != len(want) {
		t.Fatalf("events = %v, want %v", kinds, want)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Fatalf("events = %v, want %v", kinds, want)
		}
	}
}

func TestStopDiscardsPendingOffs(t *testing.T) {
	s := oneTrackSong(song.Note{Pitch: 60, StartTick: 0, DurationTicks: 480, OnVelocity: 100})
	sc := New(s)
	sc.Play(0)
	sink := &recordingSink{}
	sc.Advance(10, sink)

	sc.Stop()
	sc.Stop() // idempotent
	if sc.State() != Stopped {
		t.Fatal("state != Stopped after double stop")
	}

	before := len(sink.events)
	sc.Advance(1000, sink)
	if len(sink.events) != before {
		t.Fatalf("events emitted while stopped: %v", sink.events[before:])
	}
}

func TestSeekSkipsInterveningNotes(t *testing.T) {
	s := oneTrackSong(
		song.Note{Pitch: 60, StartTick: 100, DurationTicks: 50, OnVelocity: 100},
		song.Note{Pitch: 62, StartTick: 1000, DurationTicks: 50, OnVelocity: 100},
	)
	sc := New(s)
	sc.Play(0)
	sink := &recordingSink{}
	sc.Seek(900)
	sc.Advance(150, sink)

	for _, ev := range sink.events {
		if ev.pitch == 60 {
			t.Fatalf("note before the seek target fired: %v", sink.events)
		}
	}
	found := false
	for _, ev := range sink.events {
		if ev.kind == "on" && ev.pitch == 62 {
			found = true
		}
	}
	if !found {
		t.Fatalf("note at 1000 did not fire after seek: %v", sink.events)
	}
}

func TestSetSongMidPlayback(t *testing.T) {
	s1 := oneTrackSong(song.Note{Pitch: 60, StartTick: 500, DurationTicks: 50, OnVelocity: 100})
	sc := New(s1)
	sc.Play(0)
	sink := &recordingSink{}
	sc.Advance(100, sink)

	s2 := oneTrackSong(
		song.Note{Pitch: 50, StartTick: 50, DurationTicks: 10, OnVelocity: 100}, // behind playhead
		song.Note{Pitch: 72, StartTick: 200, DurationTicks: 50, OnVelocity: 100},
	)
	sc.SetSong(s2)
	sc.Advance(200, sink)

	for _, ev := range sink.events {
		if ev.pitch == 50 {
			t.Fatalf("past note re-emitted after snapshot swap: %v", sink.events)
		}
		if ev.pitch == 60 {
			t.Fatalf("removed note emitted: %v", sink.events)
		}
	}
	foundOn := false
	for _, ev := range sink.events {
		if ev.kind == "on" && ev.pitch == 72 {
			foundOn = true
		}
	}
	if !foundOn {
		t.Fatalf("future note from the new snapshot did not fire: %v", sink.events)
	}
}
