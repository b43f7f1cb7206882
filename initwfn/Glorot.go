package initwfn

import G "gorgonia.org/gorgonia"

// GlorotUConfig describes Glorot initialization drawing weights from a
// uniform distribution scaled by the argument gain.
type GlorotUConfig struct {
	Gain float64
}

// NewGlorotU returns a new uniform Glorot weight initializer
func NewGlorotU(gain float64) (*InitWFn, error) {
	config := GlorotUConfig{
		Gain: gain,
	}

	return newInitWFn(config)
}

// Type returns which initialization algorithm the configuration
// describes
func (g GlorotUConfig) Type() Type {
	return GlorotU
}

// Create materializes the configuration as a Gorgonia InitWFn
func (g GlorotUConfig) Create() G.InitWFn {
	return G.GlorotU(g.Gain)
}

// GlorotNConfig describes Glorot initialization drawing weights from a
// normal distribution scaled by the argument gain.
type GlorotNConfig struct {
	Gain float64
}

// NewGlorotN returns a new normal Glorot weight initializer
func NewGlorotN(gain float64) (*InitWFn, error) {
	config := GlorotNConfig{
		Gain: gain,
	}

	return newInitWFn(config)
}

// Type returns which initialization algorithm the configuration
// describes
func (g GlorotNConfig) Type() Type {
	return GlorotN
}

// Create materializes the configuration as a Gorgonia InitWFn
func (g GlorotNConfig) Create() G.InitWFn {
	return G.GlorotN(g.Gain)
}
