package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"time"

	"github.com/blooperdaw/bloom"
	"github.com/blooperdaw/bloom/internal/project"
)

func main() {
	var (
		sampleRate = flag.Int("sample-rate", bloom.DefaultSampleRate, "output sample rate")
		path       = flag.String("file", "", "path to a "+project.FileExtension+" project file")
		fromTick   = flag.Int("from", 0, "start playback at this tick")
		loop       = flag.Bool("loop", false, "loop playback")
		loopStart  = flag.Int("loop-start", 0, "loop region start tick")
		loopEnd    = flag.Int("loop-end", 0, "loop region end tick (0 = arrangement end)")
		stats      = flag.Bool("stats", false, "print engine telemetry once per second")
	)
	flag.Parse()

	if *path == "" {
		log.Fatal("usage: bloomplay -file song" + project.FileExtension)
	}
	s, err := project.Load(*path)
	if err != nil {
		log.Fatal(err)
	}

	opts := []bloom.Option{
		bloom.WithErrorFunc(func(track int, pluginID string, err error) {
			log.Printf("render failure on track %d plugin %s: %v", track, pluginID, err)
		}),
	}
	if !*loop {
		opts = append(opts, bloom.WithAutoFinish())
	}
	engine, err := bloom.NewEngine(bloom.DefaultRegistry(), *sampleRate, opts...)
	if err != nil {
		log.Fatal(err)
	}
	if err := engine.SetSong(s); err != nil {
		log.Fatal(err)
	}
	if *loop {
		engine.SetLoopRegion(*loopStart, *loopEnd)
		engine.SetLoopEnabled(true)
	}
	if err := engine.Start(); err != nil {
		log.Fatal(err)
	}
	defer engine.Close()

	fmt.Printf("playing %q (%d tracks)\n", s.Name, len(s.Tracks))
	engine.Play(*fromTick)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt)
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-sig:
			fmt.Println("\nstopping")
			engine.Stop()
			time.Sleep(100 * time.Millisecond)
			return
		case <-ticker.C:
			if *stats {
				t := engine.Telemetry()
				fmt.Printf("tick %d  voices %d  blocks %d  violations %d\n",
					t.PlayheadTick, t.ActiveVoices, t.BlocksRendered, t.TimingViolations)
			}
			if engine.Finished() {
				fmt.Println("playback completed")
				return
			}
		}
	}
}
