// ABOUTME: Synthetic signal generators for the simulator
// ABOUTME: Produces a noisy test tone and a spectrum with moving carriers
package simulator

import (
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/h1sdr/websdr-go/pkg/dsp"
)

const (
	toneAmplitude  = 0.4
	noiseAmplitude = 0.05
	noiseTaps      = 31
	noiseFloorDB   = -95.0
	carrierDB      = -35.0
)

// toneSource generates a sine tone with band-limited noise
type toneSource struct {
	mu         sync.Mutex
	sampleRate int
	frequency  float64
	index      uint64
	rng        *rand.Rand
	taps       []float64
}

func newToneSource(sampleRate int, frequency float64) *toneSource {
	t := &toneSource{
		sampleRate: sampleRate,
		frequency:  frequency,
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	t.setBandwidth(float64(sampleRate))
	return t
}

// setBandwidth shapes the noise with a low-pass at half the demod bandwidth
func (t *toneSource) setBandwidth(bw float64) {
	if bw <= 0 {
		return
	}
	cutoff := math.Min(bw/2, 0.45*float64(t.sampleRate))
	taps, err := dsp.LowPass(cutoff, float64(t.sampleRate), noiseTaps)
	if err != nil {
		return
	}
	t.mu.Lock()
	t.taps = taps
	t.mu.Unlock()
}

func (t *toneSource) next(d time.Duration) []float32 {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := int(int64(t.sampleRate) * int64(d) / int64(time.Second))
	noise := make([]float64, n)
	for i := range noise {
		noise[i] = t.rng.NormFloat64() * noiseAmplitude
	}
	if t.taps != nil {
		noise = dsp.Convolve(noise, t.taps)
	}

	samples := make([]float32, n)
	for i := range samples {
		phase := 2 * math.Pi * t.frequency * float64(t.index+uint64(i)) / float64(t.sampleRate)
		samples[i] = float32(toneAmplitude*math.Sin(phase) + noise[i])
	}
	t.index += uint64(n)
	return samples
}

// spectrumSource draws a noise floor with one fixed and one drifting carrier
type spectrumSource struct {
	size  int
	rng   *rand.Rand
	shape []float64
	drift float64
}

func newSpectrumSource(size int) *spectrumSource {
	return &spectrumSource{
		size:  size,
		rng:   rand.New(rand.NewSource(time.Now().UnixNano())),
		shape: dsp.Window(dsp.Hann, 9),
	}
}

func (s *spectrumSource) next() []float32 {
	line := make([]float32, s.size)
	for i := range line {
		line[i] = float32(noiseFloorDB + s.rng.Float64()*4)
	}

	s.drift += 0.01
	fixed := s.size/2 + s.size/8
	moving := s.size/2 + int(float64(s.size/4)*math.Sin(s.drift))
	s.carrier(line, fixed, carrierDB)
	s.carrier(line, moving, carrierDB-10)
	return line
}

func (s *spectrumSource) carrier(line []float32, bin int, peakDB float64) {
	half := len(s.shape) / 2
	for k, w := range s.shape {
		i := bin + k - half
		if i < 0 || i >= len(line) {
			continue
		}
		v := float32(peakDB + 60*(w-1))
		if v > line[i] {
			line[i] = v
		}
	}
}

// waterfallLine scales a dB line to intensities between its 5th and 95th
// percentiles
func waterfallLine(line []float32) []uint8 {
	lo, hi := dsp.AutoScale(line, 5, 95)
	if hi-lo < 1 {
		hi = lo + 1
	}
	return dsp.NormalizeWaterfall(line, lo, hi)
}
