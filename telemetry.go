package bloom

import "sync/atomic"

// Telemetry aggregates engine health counters. The render context writes
// them; any goroutine may read a snapshot. Everything here is best
// effort and never gates rendering.
type Telemetry struct {
	blocksRendered   atomic.Uint64
	timingViolations atomic.Uint64
	droppedInputs    atomic.Uint64
	renderFailures   atomic.Uint64
	voiceEvictions   atomic.Uint64
	activeVoices     atomic.Int64
	playheadTick     atomic.Int64
}

// TelemetrySnapshot is a point-in-time copy of the counters.
type TelemetrySnapshot struct {
	BlocksRendered   uint64
	TimingViolations uint64
	DroppedInputs    uint64
	RenderFailures   uint64
	VoiceEvictions   uint64
	ActiveVoices     int
	PlayheadTick     int
}

// Snapshot copies the counters. Values are individually atomic, not
// mutually consistent.
func (t *Telemetry) Snapshot() TelemetrySnapshot {
	return TelemetrySnapshot{
		BlocksRendered:   t.blocksRendered.Load(),
		TimingViolations: t.timingViolations.Load(),
		DroppedInputs:    t.droppedInputs.Load(),
		RenderFailures:   t.renderFailures.Load(),
		VoiceEvictions:   t.voiceEvictions.Load(),
		ActiveVoices:     int(t.activeVoices.Load()),
		PlayheadTick:     int(t.playheadTick.Load()),
	}
}
