// Package project reads and writes arrangement files. The on-disk
// format is a MessagePack envelope carrying a format version and the
// song body; minor version bumps add optional fields with defaults,
// major bumps may change meaning and are refused on load.
package project

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/blooperdaw/bloom/internal/song"
	"github.com/blooperdaw/bloom/internal/tempo"
)

const (
	// Magic identifies a project file.
	Magic = "BLOOM"

	// FormatMajor changes only with incompatible layout changes.
	FormatMajor = 1
	// FormatMinor tracks additive, defaultable fields.
	FormatMinor = 0

	// FileExtension is the conventional project file suffix.
	FileExtension = ".bloom"
)

var (
	ErrBadMagic            = errors.New("not a project file")
	ErrIncompatibleVersion = errors.New("incompatible project format version")
)

type envelope struct {
	Magic string   `msgpack:"magic"`
	Major int      `msgpack:"format_major"`
	Minor int      `msgpack:"format_minor"`
	Song  fileSong `msgpack:"song"`
}

type fileSong struct {
	Name        string             `msgpack:"name"`
	TPQN        int                `msgpack:"tpqn"`
	BPM         float64            `msgpack:"bpm"`
	TSNum       int                `msgpack:"ts_num"`
	TSDenom     int                `msgpack:"ts_denom"`
	LengthTicks int                `msgpack:"length_ticks"`
	Tempo       []fileTempoSegment `msgpack:"tempo,omitempty"`
	Tracks      []fileTrack        `msgpack:"tracks"`
}

type fileTempoSegment struct {
	StartTick int     `msgpack:"start_tick"`
	BPM       float64 `msgpack:"bpm"`
	TSNum     int     `msgpack:"ts_num,omitempty"`
	TSDenom   int     `msgpack:"ts_denom,omitempty"`
}

type fileTrack struct {
	Name         string           `msgpack:"name"`
	SourceID     string           `msgpack:"source_id"`
	SourceParams map[string]any   `msgpack:"source_params,omitempty"`
	Effects      []fileEffectSlot `msgpack:"effects,omitempty"`
	Notes        []fileNote       `msgpack:"notes,omitempty"`
	VolumeDB     float64          `msgpack:"volume_db"`
	Pan          float64          `msgpack:"pan"`
	Muted        bool             `msgpack:"muted,omitempty"`
	Soloed       bool             `msgpack:"soloed,omitempty"`

	MIDIChannel  int `msgpack:"midi_channel,omitempty"`
	NoteRangeMin int `msgpack:"note_range_min,omitempty"`
	// Pointer so an explicit 0 (legal range top) survives the round trip
	// while files from before the field still default to 127.
	NoteRangeMax     *int `msgpack:"note_range_max,omitempty"`
	ReceiveLiveInput bool `msgpack:"receive_live_input,omitempty"`
}

type fileEffectSlot struct {
	PluginID string         `msgpack:"plugin_id"`
	Params   map[string]any `msgpack:"params,omitempty"`
	Active   bool           `msgpack:"active"`
}

type fileNote struct {
	Pitch         int `msgpack:"pitch"`
	StartTick     int `msgpack:"start_tick"`
	DurationTicks int `msgpack:"duration_ticks"`
	OnVelocity    int `msgpack:"on_velocity"`
	OffVelocity   int `msgpack:"off_velocity,omitempty"`
}

// Write encodes the song to w.
func Write(w io.Writer, s *song.Song) error {
	env := envelope{
		Magic: Magic,
		Major: FormatMajor,
		Minor: FormatMinor,
		Song:  toFile(s),
	}
	enc := msgpack.NewEncoder(w)
	if err := enc.Encode(&env); err != nil {
		return fmt.Errorf("encode project: %w", err)
	}
	return nil
}

// Read decodes a song from r, applying defaults for fields a newer
// minor version may have omitted.
func Read(r io.Reader) (*song.Song, error) {
	var env envelope
	dec := msgpack.NewDecoder(r)
	if err := dec.Decode(&env); err != nil {
		return nil, fmt.Errorf("decode project: %w", err)
	}
	if env.Magic != Magic {
		return nil, ErrBadMagic
	}
	if env.Major != FormatMajor {
		return nil, fmt.Errorf("%w: file is v%d.%d, engine reads v%d.x",
			ErrIncompatibleVersion, env.Major, env.Minor, FormatMajor)
	}
	s := fromFile(&env.Song)
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("invalid project: %w", err)
	}
	return s, nil
}

// Save writes the song to path, replacing any existing file atomically.
func Save(path string, s *song.Song) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if err := Write(f, s); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

// Load reads the song at path.
func Load(path string) (*song.Song, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Read(f)
}

func toFile(s *song.Song) fileSong {
	fs := fileSong{
		Name:        s.Name,
		TPQN:        s.TPQN,
		BPM:         s.BPM,
		TSNum:       s.TSNum,
		TSDenom:     s.TSDenom,
		LengthTicks: s.LengthTicks,
	}
	for _, seg := range s.TempoMap {
		fs.Tempo = append(fs.Tempo, fileTempoSegment(seg))
	}
	for _, t := range s.Tracks {
		ft := fileTrack{
			Name:             t.Name,
			SourceID:         t.SourceID,
			SourceParams:     t.SourceParams,
			VolumeDB:         t.VolumeDB,
			Pan:              t.Pan,
			Muted:            t.Muted,
			Soloed:           t.Soloed,
			MIDIChannel:      t.MIDIChannel,
			NoteRangeMin:     t.NoteRangeMin,
			ReceiveLiveInput: t.ReceiveLiveInput,
		}
		rangeMax := t.NoteRangeMax
		ft.NoteRangeMax = &rangeMax
		for _, e := range t.Effects {
			ft.Effects = append(ft.Effects, fileEffectSlot(e))
		}
		for _, n := range t.Notes {
			ft.Notes = append(ft.Notes, fileNote(n))
		}
		fs.Tracks = append(fs.Tracks, ft)
	}
	return fs
}

func fromFile(fs *fileSong) *song.Song {
	s := song.New(fs.Name)
	if fs.TPQN > 0 {
		s.TPQN = fs.TPQN
	}
	if fs.BPM > 0 {
		s.BPM = fs.BPM
	}
	if fs.TSNum > 0 {
		s.TSNum = fs.TSNum
	}
	if fs.TSDenom > 0 {
		s.TSDenom = fs.TSDenom
	}
	if fs.LengthTicks > 0 {
		s.LengthTicks = fs.LengthTicks
	}
	for _, seg := range fs.Tempo {
		s.TempoMap = append(s.TempoMap, tempo.Segment(seg))
	}
	for _, ft := range fs.Tracks {
		t := song.Track{
			Name:             ft.Name,
			SourceID:         ft.SourceID,
			SourceParams:     ft.SourceParams,
			VolumeDB:         ft.VolumeDB,
			Pan:              ft.Pan,
			Muted:            ft.Muted,
			Soloed:           ft.Soloed,
			MIDIChannel:      ft.MIDIChannel,
			NoteRangeMin:     ft.NoteRangeMin,
			NoteRangeMax:     127,
			ReceiveLiveInput: ft.ReceiveLiveInput,
		}
		if ft.NoteRangeMax != nil {
			t.NoteRangeMax = *ft.NoteRangeMax
		}
		for _, e := range ft.Effects {
			t.Effects = append(t.Effects, song.EffectSlot(e))
		}
		for _, n := range ft.Notes {
			t.Notes = append(t.Notes, song.Note(n))
		}
		s.Tracks = append(s.Tracks, t)
	}
	return s
}
