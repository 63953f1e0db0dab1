package bloom

import (
	"github.com/blooperdaw/bloom/internal/fx"
	"github.com/blooperdaw/bloom/internal/plugin"
	"github.com/blooperdaw/bloom/internal/sources"
)

// DefaultRegistry returns a registry with every built-in source and
// effect installed.
func DefaultRegistry() *plugin.Registry {
	reg := plugin.NewRegistry()
	for _, f := range []plugin.Factory{
		sources.NewDualOsc,
		sources.NewNoiseDrum,
		sources.NewFMDrum,
		sources.NewWavetable,
		fx.NewDelay,
		fx.NewEQ,
		fx.NewReverb,
		fx.NewChorus,
		fx.NewCompressor,
		fx.NewDistortion,
	} {
		if err := reg.Register(f); err != nil {
			// Built-in metadata is static; a failure here is a programming
			// error caught by the registry tests.
			panic(err)
		}
	}
	return reg
}
