// Package plugin defines the processing contract every source and effect
// implements, plus the registry that resolves plugin IDs to instances.
package plugin

import (
	"fmt"
	"math"
)

// ParameterType enumerates the value types a parameter can carry.
type ParameterType string

const (
	Float ParameterType = "float"
	Int   ParameterType = "int"
	Bool  ParameterType = "bool"
	Enum  ParameterType = "enum"
)

// Category splits plugins into audio generators and audio processors.
type Category string

const (
	Source Category = "source"
	Effect Category = "effect"
)

// ParameterSpec declares one parameter. The editor UI is generated from
// these specs; the engine uses them to validate track configuration.
type ParameterSpec struct {
	Name       string
	Type       ParameterType
	Default    any
	Min        float64
	Max        float64
	EnumValues []string
	Unit       string
}

func (p ParameterSpec) validate() error {
	if p.Name == "" {
		return fmt.Errorf("parameter name is required")
	}
	switch p.Type {
	case Float, Int:
		if p.Min >= p.Max {
			return fmt.Errorf("parameter %s: min %v must be below max %v", p.Name, p.Min, p.Max)
		}
		def, ok := toFloat(p.Default)
		if !ok {
			return fmt.Errorf("parameter %s: default %v is not numeric", p.Name, p.Default)
		}
		if def < p.Min || def > p.Max {
			return fmt.Errorf("parameter %s: default %v outside %v..%v", p.Name, def, p.Min, p.Max)
		}
	case Bool:
		if _, ok := p.Default.(bool); !ok {
			return fmt.Errorf("parameter %s: default %v is not a bool", p.Name, p.Default)
		}
	case Enum:
		if len(p.EnumValues) == 0 {
			return fmt.Errorf("parameter %s: enum type requires values", p.Name)
		}
		def, ok := p.Default.(string)
		if !ok {
			return fmt.Errorf("parameter %s: enum default must be a string", p.Name)
		}
		found := false
		for _, v := range p.EnumValues {
			if v == def {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("parameter %s: default %q not in enum values", p.Name, def)
		}
	default:
		return fmt.Errorf("parameter %s: unknown type %q", p.Name, p.Type)
	}
	return nil
}

// Metadata is a plugin's identity and ordered parameter list.
type Metadata struct {
	ID         string
	Name       string
	Category   Category
	Parameters []ParameterSpec
}

// Validate checks the metadata invariants enforced at registration time.
func (m Metadata) Validate() error {
	if m.ID == "" {
		return fmt.Errorf("plugin id is required")
	}
	if m.Name == "" {
		return fmt.Errorf("plugin %s: display name is required", m.ID)
	}
	if m.Category != Source && m.Category != Effect {
		return fmt.Errorf("plugin %s: unknown category %q", m.ID, m.Category)
	}
	seen := make(map[string]struct{}, len(m.Parameters))
	for _, p := range m.Parameters {
		if err := p.validate(); err != nil {
			return fmt.Errorf("plugin %s: %w", m.ID, err)
		}
		if _, dup := seen[p.Name]; dup {
			return fmt.Errorf("plugin %s: duplicate parameter %q", m.ID, p.Name)
		}
		seen[p.Name] = struct{}{}
	}
	return nil
}

// Spec returns the parameter spec with the given name, if declared.
func (m Metadata) Spec(name string) (ParameterSpec, bool) {
	for _, p := range m.Parameters {
		if p.Name == name {
			return p, true
		}
	}
	return ParameterSpec{}, false
}

// DefaultParams returns a fresh flat mapping of every declared default.
func (m Metadata) DefaultParams() map[string]any {
	out := make(map[string]any, len(m.Parameters))
	for _, p := range m.Parameters {
		out[p.Name] = p.Default
	}
	return out
}

// ValidateParams checks a flat value mapping against the metadata: unknown
// names, wrong types, and out-of-range numerics are rejected. This runs at
// track-configuration time so malformed parameters never reach a render.
func (m Metadata) ValidateParams(params map[string]any) error {
	for name, val := range params {
		spec, ok := m.Spec(name)
		if !ok {
			return fmt.Errorf("plugin %s: unknown parameter %q", m.ID, name)
		}
		switch spec.Type {
		case Float, Int:
			f, ok := toFloat(val)
			if !ok {
				return fmt.Errorf("plugin %s: parameter %q: %v is not numeric", m.ID, name, val)
			}
			if f < spec.Min || f > spec.Max {
				return fmt.Errorf("plugin %s: parameter %q: %v outside %v..%v", m.ID, name, f, spec.Min, spec.Max)
			}
		case Bool:
			if _, ok := val.(bool); !ok {
				return fmt.Errorf("plugin %s: parameter %q: %v is not a bool", m.ID, name, val)
			}
		case Enum:
			s, ok := val.(string)
			if !ok {
				return fmt.Errorf("plugin %s: parameter %q: %v is not a string", m.ID, name, val)
			}
			found := false
			for _, v := range spec.EnumValues {
				if v == s {
					found = true
					break
				}
			}
			if !found {
				return fmt.Errorf("plugin %s: parameter %q: %q not in enum values", m.ID, name, s)
			}
		}
	}
	return nil
}

// NoteContext carries the note a source plugin is rendering.
// Nil for effect plugins.
type NoteContext struct {
	Pitch         int
	Velocity      int
	DurationTicks int
}

// RenderContext is the per-call processing context. Offset is the sample
// position of the requested chunk within the voice; a source continuing a
// held note receives a non-zero Offset and must stay phase-continuous with
// the samples it produced before. Frames, when non-zero, is the chunk
// length a streaming source must return; at zero a source derives its
// length from the note duration and its own envelope parameters.
type RenderContext struct {
	SampleRate  int
	BPM         float64
	TPQN        int
	CurrentTick int
	Offset      int
	Frames      int
}

// Processor is the uniform contract for sources and effects.
//
// Sources receive in == nil and a non-nil note, and return a freshly
// allocated buffer. Effects receive the buffer to process and a nil note,
// and must return a buffer of identical length. Implementations are
// stateless between calls unless they hold internal buffers keyed by the
// track or voice that owns them.
type Processor interface {
	Metadata() Metadata
	Process(in []float32, params map[string]any, note *NoteContext, rctx RenderContext) ([]float32, error)
}

// TailSampler is implemented by stateful effects whose output outlives
// their input (delays, reverbs). The engine keeps the chain running for
// this many extra samples after input falls silent.
type TailSampler interface {
	TailSamples(params map[string]any, rctx RenderContext) int
}

// Resetter is implemented by stateful processors that can drop their
// internal buffers, called on transport stop.
type Resetter interface {
	Reset()
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int8:
		return float64(x), true
	case int16:
		return float64(x), true
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	case uint8:
		return float64(x), true
	case uint16:
		return float64(x), true
	case uint32:
		return float64(x), true
	case uint64:
		return float64(x), true
	}
	return 0, false
}

// FloatValue reads a float parameter with a fallback default, accepting
// any numeric wire representation.
func FloatValue(params map[string]any, name string, def float64) float64 {
	if v, ok := params[name]; ok {
		if f, ok := toFloat(v); ok {
			return f
		}
	}
	return def
}

// IntValue reads an int parameter with a fallback default.
func IntValue(params map[string]any, name string, def int) int {
	if v, ok := params[name]; ok {
		if f, ok := toFloat(v); ok {
			return int(f)
		}
	}
	return def
}

// BoolValue reads a bool parameter with a fallback default.
func BoolValue(params map[string]any, name string, def bool) bool {
	if v, ok := params[name]; ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return def
}

// StringValue reads an enum parameter with a fallback default.
func StringValue(params map[string]any, name string, def string) string {
	if v, ok := params[name]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return def
}

// MIDIToFreq converts a MIDI note number to its frequency in Hz (A4=440).
func MIDIToFreq(note int) float64 {
	return 440.0 * math.Pow(2, float64(note-69)/12.0)
}

// DBToLinear converts decibels to a linear gain multiplier.
func DBToLinear(db float64) float64 {
	return math.Pow(10, db/20.0)
}
