// Package audio bridges the render context to the platform audio device.
// The device callback pulls interleaved stereo float32 blocks from a
// BlockSource; everything upstream stays sample-format agnostic.
package audio

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"sync"
	"time"

	ebitaudio "github.com/hajimehoshi/ebiten/v2/audio"
)

// BlockSource renders one block of interleaved stereo samples into dst.
// The callback goroutine calls this; implementations own their locking.
type BlockSource interface {
	RenderBlock(dst []float32)
}

// FinishingSource additionally reports end of playback. Once Finished
// returns true the stream answers io.EOF and the output drains.
type FinishingSource interface {
	BlockSource
	Finished() bool
}

// Stream adapts a BlockSource to the io.Reader the device consumes:
// little-endian float32, two channels, eight bytes per frame.
type Stream struct {
	mu     sync.Mutex
	source BlockSource
	buf    []float32
}

func NewStream(source BlockSource) *Stream {
	return &Stream{source: source}
}

func (s *Stream) Read(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	frames := len(p) / 8
	if frames == 0 {
		return 0, nil
	}
	need := frames * 2
	if cap(s.buf) < need {
		s.buf = make([]float32, need)
	}
	s.buf = s.buf[:need]
	s.source.RenderBlock(s.buf)
	for i := 0; i < need; i++ {
		binary.LittleEndian.PutUint32(p[i*4:], math.Float32bits(s.buf[i]))
	}
	n := frames * 8
	if fs, ok := s.source.(FinishingSource); ok && fs.Finished() {
		return n, io.EOF
	}
	return n, nil
}

func (s *Stream) Close() error { return nil }

// The device context is process global; a second sample rate cannot be
// opened once the first is live.
var (
	deviceOnce sync.Once
	deviceCtx  *ebitaudio.Context
	deviceRate int
)

func sharedContext(sampleRate int) (*ebitaudio.Context, error) {
	deviceOnce.Do(func() {
		deviceRate = sampleRate
		deviceCtx = ebitaudio.NewContext(sampleRate)
	})
	if deviceRate != sampleRate {
		return nil, fmt.Errorf("audio device already open at %d Hz (requested %d Hz)", deviceRate, sampleRate)
	}
	return deviceCtx, nil
}

// Output owns the device-side player for one stream.
type Output struct {
	player *ebitaudio.Player
	stream io.ReadCloser
}

// NewOutput opens the shared device at the given rate and wires the
// source to it. Playback starts only on Start.
func NewOutput(sampleRate int, source BlockSource) (*Output, error) {
	ctx, err := sharedContext(sampleRate)
	if err != nil {
		return nil, err
	}
	stream := NewStream(source)
	pl, err := ctx.NewPlayerF32(stream)
	if err != nil {
		return nil, err
	}
	return &Output{player: pl, stream: stream}, nil
}

func (o *Output) Start()        { o.player.Play() }
func (o *Output) Pause()        { o.player.Pause() }
func (o *Output) Playing() bool { return o.player.IsPlaying() }

// Position is the device playback position, which trails the render
// position by the device buffer.
func (o *Output) Position() time.Duration { return o.player.Position() }

// SetDeviceBuffer adjusts the device-side buffer. Smaller buffers cut
// live input latency at the cost of underrun headroom.
func (o *Output) SetDeviceBuffer(d time.Duration) { o.player.SetBufferSize(d) }

func (o *Output) Close() error {
	o.player.Pause()
	if err := o.player.Close(); err != nil {
		return err
	}
	return o.stream.Close()
}
