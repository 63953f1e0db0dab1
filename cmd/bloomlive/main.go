package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"time"

	"github.com/blooperdaw/bloom"
	"github.com/blooperdaw/bloom/internal/midiin"
	"github.com/blooperdaw/bloom/internal/project"
	"github.com/blooperdaw/bloom/internal/song"
)

func main() {
	var (
		sampleRate = flag.Int("sample-rate", bloom.DefaultSampleRate, "output sample rate")
		path       = flag.String("file", "", "optional project file to load track routing from")
		port       = flag.String("port", "", "MIDI input port name substring (empty = first port)")
		listPorts  = flag.Bool("list-ports", false, "list MIDI input ports and exit")
		source     = flag.String("source", "DUAL_OSC", "source plugin for the default instrument")
		stats      = flag.Bool("stats", false, "print engine telemetry once per second")
	)
	flag.Parse()

	if *listPorts {
		for _, name := range midiin.Ports() {
			fmt.Println(name)
		}
		return
	}

	s, err := loadOrDefaultSong(*path, *source)
	if err != nil {
		log.Fatal(err)
	}

	engine, err := bloom.NewEngine(bloom.DefaultRegistry(), *sampleRate,
		bloom.WithErrorFunc(func(track int, pluginID string, err error) {
			log.Printf("render failure on track %d plugin %s: %v", track, pluginID, err)
		}),
	)
	if err != nil {
		log.Fatal(err)
	}
	if err := engine.SetSong(s); err != nil {
		log.Fatal(err)
	}
	if err := engine.Start(); err != nil {
		log.Fatal(err)
	}
	defer engine.Close()

	in, err := midiin.Open(*port, func(channel, pitch, velocity int, noteOn bool) {
		engine.LiveInput(bloom.LiveEvent{
			Channel:   channel,
			Pitch:     pitch,
			Velocity:  velocity,
			NoteOn:    noteOn,
			Timestamp: time.Now(),
		})
	})
	if err != nil {
		log.Fatal(err)
	}
	defer in.Close()

	fmt.Printf("listening on %q, ctrl-c to quit\n", in.Name())

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt)
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-sig:
			fmt.Println("\nbye")
			engine.AllNotesOff()
			time.Sleep(350 * time.Millisecond)
			return
		case <-ticker.C:
			if *stats {
				t := engine.Telemetry()
				fmt.Printf("voices %d  blocks %d  violations %d  dropped %d\n",
					t.ActiveVoices, t.BlocksRendered, t.TimingViolations, t.DroppedInputs)
			}
		}
	}
}

// loadOrDefaultSong returns the routing from a project file, or a
// minimal live rig: one instrument on channel 0 and drums on channel 9.
func loadOrDefaultSong(path, sourceID string) (*song.Song, error) {
	if path != "" {
		return project.Load(path)
	}
	s := song.New("live")
	s.Tracks = append(s.Tracks,
		song.Track{
			Name:             "keys",
			SourceID:         sourceID,
			ReceiveLiveInput: true,
			MIDIChannel:      0,
			NoteRangeMin:     0,
			NoteRangeMax:     127,
		},
		song.Track{
			Name:             "drums",
			SourceID:         "NOISE_DRUM",
			ReceiveLiveInput: true,
			MIDIChannel:      9,
			NoteRangeMin:     0,
			NoteRangeMax:     127,
			VolumeDB:         -2,
		},
	)
	return s, nil
}
