// ABOUTME: Sample-by-sample automatic gain control
// ABOUTME: Attack/release gain tracking over caller-owned state
package dsp

import "math"

// Gain bounds applied after every update
const (
	MinGain = 0.1
	MaxGain = 10.0
)

// Reference AGC constants
const (
	DefaultAttack  = 0.01
	DefaultRelease = 0.003
	DefaultTarget  = 0.3
)

// GainState is the running state of one AGC loop. The caller owns it; the
// playout engine keeps one per stream.
type GainState struct {
	Gain    float64
	Attack  float64
	Release float64
	Target  float64
}

// NewGainState returns unity gain with the reference constants
func NewGainState() GainState {
	return GainState{Gain: 1, Attack: DefaultAttack, Release: DefaultRelease, Target: DefaultTarget}
}

// Process updates the gain from one input sample and returns the scaled sample.
// Input above the target shrinks the gain by the attack factor, anything else
// grows it by the release factor.
func (g *GainState) Process(s float64) float64 {
	if math.Abs(s) > g.Target {
		g.Gain *= 1 - g.Attack
	} else {
		g.Gain *= 1 + g.Release
	}
	if g.Gain < MinGain {
		g.Gain = MinGain
	} else if g.Gain > MaxGain {
		g.Gain = MaxGain
	}
	return s * g.Gain
}

// ProcessBlock runs Process over samples in place
func ProcessBlock[T Number](g *GainState, samples []T) {
	for i, s := range samples {
		samples[i] = T(g.Process(float64(s)))
	}
}

// Reset returns the gain to unity, keeping the constants
func (g *GainState) Reset() {
	g.Gain = 1
}
