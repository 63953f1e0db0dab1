// Package midiin connects hardware MIDI inputs to the engine's live
// event queue. Device enumeration stays here; the engine only ever sees
// (channel, pitch, velocity, on/off) tuples.
package midiin

import (
	"fmt"
	"strings"

	gomidi "gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
	_ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv" // register MIDI driver
)

// Handler receives one live note event. It runs on the driver's callback
// goroutine, so it must only hand the event off, never block.
type Handler func(channel, pitch, velocity int, noteOn bool)

// Ports lists the names of the available MIDI input ports.
func Ports() []string {
	ins := gomidi.GetInPorts()
	names := make([]string, 0, len(ins))
	for _, in := range ins {
		names = append(names, in.String())
	}
	return names
}

// Input is one open MIDI input feeding a Handler.
type Input struct {
	port drivers.In
	stop func()
}

// Open finds the first input port whose name contains name
// (case-insensitive; empty matches the first port) and starts listening.
func Open(name string, h Handler) (*Input, error) {
	port, err := findPort(name)
	if err != nil {
		return nil, err
	}
	stop, err := gomidi.ListenTo(port, func(msg gomidi.Message, timestampms int32) {
		var channel, note, velocity uint8
		switch {
		case msg.GetNoteOn(&channel, &note, &velocity) && velocity > 0:
			h(int(channel), int(note), int(velocity), true)
		case msg.GetNoteOff(&channel, &note, &velocity):
			h(int(channel), int(note), int(velocity), false)
		case msg.GetNoteOn(&channel, &note, &velocity):
			// Running-status note-on with velocity zero is a note-off.
			h(int(channel), int(note), 0, false)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("open input %q: %w", port.String(), err)
	}
	return &Input{port: port, stop: stop}, nil
}

func findPort(name string) (drivers.In, error) {
	ins := gomidi.GetInPorts()
	if len(ins) == 0 {
		return nil, fmt.Errorf("no MIDI input ports available")
	}
	if name == "" {
		return ins[0], nil
	}
	needle := strings.ToLower(name)
	for _, in := range ins {
		if strings.Contains(strings.ToLower(in.String()), needle) {
			return in, nil
		}
	}
	return nil, fmt.Errorf("no MIDI input port matching %q", name)
}

// Name returns the underlying port name.
func (i *Input) Name() string { return i.port.String() }

// Close stops listening. The port itself stays owned by the driver.
func (i *Input) Close() error {
	if i.stop != nil {
		i.stop()
		i.stop = nil
	}
	return nil
}
