package plugin

import (
	"errors"
	"math"
	"testing"
)

func metaOK() Metadata {
	return Metadata{
		ID:       "TEST_SYNTH",
		Name:     "Test Synth",
		Category: Source,
		Parameters: []ParameterSpec{
			{Name: "gain", Type: Float, Default: 0.7, Min: 0, Max: 1},
			{Name: "octave", Type: Int, Default: 0, Min: -4, Max: 4},
			{Name: "retrigger", Type: Bool, Default: false},
			{Name: "shape", Type: Enum, Default: "SINE", EnumValues: []string{"SINE", "SAW"}},
		},
	}
}

func TestMetadataValidate(t *testing.T) {
	if err := metaOK().Validate(); err != nil {
		t.Fatalf("valid metadata rejected: %v", err)
	}

	cases := []struct {
		name   string
		mutate func(*Metadata)
	}{
		{"missing id", func(m *Metadata) { m.ID = "" }},
		{"missing name", func(m *Metadata) { m.Name = "" }},
		{"bad category", func(m *Metadata) { m.Category = "whatever" }},
		{"default above max", func(m *Metadata) { m.Parameters[0].Default = 2.0 }},
		{"min above max", func(m *Metadata) { m.Parameters[0].Min = 5 }},
		{"enum default not listed", func(m *Metadata) { m.Parameters[3].Default = "SQUARE" }},
		{"enum without values", func(m *Metadata) { m.Parameters[3].EnumValues = nil }},
		{"duplicate parameter", func(m *Metadata) { m.Parameters[1].Name = "gain" }},
		{"unnamed parameter", func(m *Metadata) { m.Parameters[0].Name = "" }},
	}
	for _, tc := range cases {
		m := metaOK()
		tc.mutate(&m)
		if err := m.Validate(); err == nil {
			t.Errorf("%s: metadata accepted", tc.name)
		}
	}
}

func TestValidateParams(t *testing.T) {
	m := metaOK()
	good := map[string]any{"gain": 0.5, "octave": int64(2), "retrigger": true, "shape": "SAW"}
	if err := m.ValidateParams(good); err != nil {
		t.Fatalf("valid params rejected: %v", err)
	}

	bad := []map[string]any{
		{"nope": 1.0},
		{"gain": "loud"},
		{"gain": 1.5},
		{"retrigger": 1},
		{"shape": "TRIANGLE"},
		{"shape": 3},
	}
	for _, params := range bad {
		if err := m.ValidateParams(params); err == nil {
			t.Errorf("params %v accepted", params)
		}
	}
}

func TestDefaultParamsIsFreshCopy(t *testing.T) {
	m := metaOK()
	a := m.DefaultParams()
	a["gain"] = 0.1
	b := m.DefaultParams()
	if b["gain"] != 0.7 {
		t.Fatalf("DefaultParams shares state: %v", b["gain"])
	}
}

func TestParamAccessors(t *testing.T) {
	params := map[string]any{
		"f": float32(0.25),
		"i": int64(7),
		"b": true,
		"s": "SAW",
	}
	if got := FloatValue(params, "f", 9); got != 0.25 {
		t.Errorf("FloatValue = %v", got)
	}
	if got := FloatValue(params, "missing", 9); got != 9 {
		t.Errorf("FloatValue default = %v", got)
	}
	if got := IntValue(params, "i", 0); got != 7 {
		t.Errorf("IntValue = %v", got)
	}
	if got := BoolValue(params, "b", false); !got {
		t.Error("BoolValue = false")
	}
	if got := StringValue(params, "s", "SINE"); got != "SAW" {
		t.Errorf("StringValue = %v", got)
	}
	if got := StringValue(params, "b", "SINE"); got != "SINE" {
		t.Errorf("StringValue wrong-type fallback = %v", got)
	}
}

func TestMIDIToFreq(t *testing.T) {
	if got := MIDIToFreq(69); got != 440 {
		t.Errorf("A4 = %v, want 440", got)
	}
	if got := MIDIToFreq(81); math.Abs(got-880) > 1e-9 {
		t.Errorf("A5 = %v, want 880", got)
	}
	if got := MIDIToFreq(60); math.Abs(got-261.6255653) > 1e-4 {
		t.Errorf("middle C = %v", got)
	}
}

func TestDBToLinear(t *testing.T) {
	if got := DBToLinear(0); got != 1 {
		t.Errorf("0 dB = %v", got)
	}
	if got := DBToLinear(-6.0205999); math.Abs(got-0.5) > 1e-6 {
		t.Errorf("-6 dB = %v, want ~0.5", got)
	}
}

type stubProc struct{ meta Metadata }

func (s *stubProc) Metadata() Metadata { return s.meta }
func (s *stubProc) Process(in []float32, params map[string]any, note *NoteContext, rctx RenderContext) ([]float32, error) {
	return in, nil
}

func TestRegistryResolveReturnsFreshInstances(t *testing.T) {
	reg := NewRegistry()
	meta := metaOK()
	if err := reg.Register(func() Processor { return &stubProc{meta: meta} }); err != nil {
		t.Fatal(err)
	}
	a, err := reg.Resolve("TEST_SYNTH")
	if err != nil {
		t.Fatal(err)
	}
	b, err := reg.Resolve("TEST_SYNTH")
	if err != nil {
		t.Fatal(err)
	}
	if a == b {
		t.Fatal("Resolve returned a shared instance")
	}
}

func TestRegistryUnknownID(t *testing.T) {
	reg := NewRegistry()
	if _, err := reg.Resolve("MISSING"); !errors.Is(err, ErrUnknown) {
		t.Fatalf("Resolve err = %v, want ErrUnknown", err)
	}
	if _, err := reg.Metadata("MISSING"); !errors.Is(err, ErrUnknown) {
		t.Fatalf("Metadata err = %v, want ErrUnknown", err)
	}
	if reg.Has("MISSING") {
		t.Fatal("Has reported an unregistered id")
	}
}

func TestRegistryRejectsInvalidAndDuplicate(t *testing.T) {
	reg := NewRegistry()
	bad := metaOK()
	bad.ID = ""
	if err := reg.Register(func() Processor { return &stubProc{meta: bad} }); err == nil {
		t.Fatal("registered plugin with invalid metadata")
	}

	good := metaOK()
	if err := reg.Register(func() Processor { return &stubProc{meta: good} }); err != nil {
		t.Fatal(err)
	}
	if err := reg.Register(func() Processor { return &stubProc{meta: good} }); err == nil {
		t.Fatal("registered the same id twice")
	}
}

func TestRegistryIDsByCategory(t *testing.T) {
	reg := NewRegistry()
	src := metaOK()
	fx := metaOK()
	fx.ID = "A_FX"
	fx.Category = Effect
	if err := reg.Register(func() Processor { return &stubProc{meta: src} }); err != nil {
		t.Fatal(err)
	}
	if err := reg.Register(func() Processor { return &stubProc{meta: fx} }); err != nil {
		t.Fatal(err)
	}
	srcs := reg.IDsByCategory(Source)
	if len(srcs) != 1 || srcs[0] != "TEST_SYNTH" {
		t.Fatalf("sources = %v", srcs)
	}
	fxs := reg.IDsByCategory(Effect)
	if len(fxs) != 1 || fxs[0] != "A_FX" {
		t.Fatalf("effects = %v", fxs)
	}
	if got := len(reg.IDs()); got != 2 {
		t.Fatalf("IDs len = %d", got)
	}
}
