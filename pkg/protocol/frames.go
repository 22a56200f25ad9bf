// ABOUTME: Binary frame codec for spectrum, waterfall and audio channels
// ABOUTME: Little-endian fixed headers followed by a counted element array
package protocol

import (
	"encoding/binary"
	"math"
)

const (
	// SpectrumHeaderSize covers timestamp, sample rate, center frequency and fft size
	SpectrumHeaderSize = 16
	// WaterfallHeaderSize covers timestamp and fft size
	WaterfallHeaderSize = 8
	// AudioHeaderSize covers timestamp, sample rate and sample count
	AudioHeaderSize = 12
)

// Frame is a decoded binary payload. Implementations: AudioFrame, SpectrumFrame, WaterfallFrame.
type Frame interface {
	Channel() ChannelKind
	isFrame()
}

// AudioFrame is a block of demodulated mono audio in [-1, 1]
type AudioFrame struct {
	Timestamp  uint32
	SampleRate float32
	Samples    []float32
}

// SpectrumFrame is one FFT line of power values in dB
type SpectrumFrame struct {
	Timestamp       uint32
	SampleRate      float32
	CenterFrequency float32
	Spectrum        []float32
}

// WaterfallFrame is one FFT line pre-scaled to 0..255 intensity
type WaterfallFrame struct {
	Timestamp uint32
	Data      []uint8
}

func (AudioFrame) Channel() ChannelKind     { return ChannelAudio }
func (SpectrumFrame) Channel() ChannelKind  { return ChannelSpectrum }
func (WaterfallFrame) Channel() ChannelKind { return ChannelWaterfall }

func (AudioFrame) isFrame()     {}
func (SpectrumFrame) isFrame()  {}
func (WaterfallFrame) isFrame() {}

// FFTSize returns the number of bins in the line
func (f SpectrumFrame) FFTSize() int { return len(f.Spectrum) }

// FFTSize returns the number of bins in the line
func (f WaterfallFrame) FFTSize() int { return len(f.Data) }

// Resolution returns the bin width in Hz
func (f SpectrumFrame) Resolution() float64 {
	if len(f.Spectrum) == 0 {
		return 0
	}
	return float64(f.SampleRate) / float64(len(f.Spectrum))
}

// BinFrequency returns the frequency of bin i. The axis is never transmitted.
func (f SpectrumFrame) BinFrequency(i int) float64 {
	return float64(f.CenterFrequency) - float64(f.SampleRate)/2 + float64(i)*f.Resolution()
}

// Frequencies returns the full frequency axis for the line
func (f SpectrumFrame) Frequencies() []float64 {
	freqs := make([]float64, len(f.Spectrum))
	for i := range freqs {
		freqs[i] = f.BinFrequency(i)
	}
	return freqs
}

// FrequencyBin returns the bin closest to freq, clamped to the line
func (f SpectrumFrame) FrequencyBin(freq float64) int {
	n := len(f.Spectrum)
	if n == 0 {
		return 0
	}
	start := float64(f.CenterFrequency) - float64(f.SampleRate)/2
	bin := int(math.Round((freq - start) / f.Resolution()))
	if bin < 0 {
		return 0
	}
	if bin >= n {
		return n - 1
	}
	return bin
}

// Decode parses a binary payload received on the given channel
func Decode(kind ChannelKind, data []byte) (Frame, error) {
	switch kind {
	case ChannelSpectrum:
		return decodeSpectrum(data)
	case ChannelWaterfall:
		return decodeWaterfall(data)
	case ChannelAudio:
		return decodeAudio(data)
	default:
		return nil, newError(ErrUnsupportedChannel, kind, "binary payload of %d bytes", len(data))
	}
}

func decodeSpectrum(data []byte) (SpectrumFrame, error) {
	if len(data) < SpectrumHeaderSize {
		return SpectrumFrame{}, newError(ErrTruncated, ChannelSpectrum, "header needs %d bytes, got %d", SpectrumHeaderSize, len(data))
	}
	count := binary.LittleEndian.Uint32(data[12:16])
	if err := checkCount(ChannelSpectrum, data[SpectrumHeaderSize:], count, 4); err != nil {
		return SpectrumFrame{}, err
	}

	f := SpectrumFrame{
		Timestamp:       binary.LittleEndian.Uint32(data[0:4]),
		SampleRate:      readFloat32(data[4:8]),
		CenterFrequency: readFloat32(data[8:12]),
		Spectrum:        readFloats(data[SpectrumHeaderSize:], int(count)),
	}
	return f, nil
}

func decodeWaterfall(data []byte) (WaterfallFrame, error) {
	if len(data) < WaterfallHeaderSize {
		return WaterfallFrame{}, newError(ErrTruncated, ChannelWaterfall, "header needs %d bytes, got %d", WaterfallHeaderSize, len(data))
	}
	count := binary.LittleEndian.Uint32(data[4:8])
	if err := checkCount(ChannelWaterfall, data[WaterfallHeaderSize:], count, 1); err != nil {
		return WaterfallFrame{}, err
	}

	line := make([]uint8, count)
	copy(line, data[WaterfallHeaderSize:])
	return WaterfallFrame{
		Timestamp: binary.LittleEndian.Uint32(data[0:4]),
		Data:      line,
	}, nil
}

func decodeAudio(data []byte) (AudioFrame, error) {
	if len(data) < AudioHeaderSize {
		return AudioFrame{}, newError(ErrTruncated, ChannelAudio, "header needs %d bytes, got %d", AudioHeaderSize, len(data))
	}
	count := binary.LittleEndian.Uint32(data[8:12])
	if err := checkCount(ChannelAudio, data[AudioHeaderSize:], count, 4); err != nil {
		return AudioFrame{}, err
	}

	return AudioFrame{
		Timestamp:  binary.LittleEndian.Uint32(data[0:4]),
		SampleRate: readFloat32(data[4:8]),
		Samples:    readFloats(data[AudioHeaderSize:], int(count)),
	}, nil
}

// checkCount verifies the body holds exactly count elements of size bytes.
// Any mismatch between the declared count and the body length is ErrTruncated.
func checkCount(kind ChannelKind, body []byte, count uint32, size int) error {
	need := uint64(count) * uint64(size)
	have := uint64(len(body))
	switch {
	case have < need:
		return newError(ErrTruncated, kind, "declared %d elements (%d bytes), %d bytes remain", count, need, have)
	case have > need:
		return newError(ErrTruncated, kind, "%d trailing bytes after %d elements", have-need, count)
	}
	return nil
}

// EncodeFrame serializes a frame into its wire layout
func EncodeFrame(f Frame) []byte {
	switch f := f.(type) {
	case AudioFrame:
		buf := make([]byte, AudioHeaderSize+4*len(f.Samples))
		binary.LittleEndian.PutUint32(buf[0:4], f.Timestamp)
		putFloat32(buf[4:8], f.SampleRate)
		binary.LittleEndian.PutUint32(buf[8:12], uint32(len(f.Samples)))
		putFloats(buf[AudioHeaderSize:], f.Samples)
		return buf

	case SpectrumFrame:
		buf := make([]byte, SpectrumHeaderSize+4*len(f.Spectrum))
		binary.LittleEndian.PutUint32(buf[0:4], f.Timestamp)
		putFloat32(buf[4:8], f.SampleRate)
		putFloat32(buf[8:12], f.CenterFrequency)
		binary.LittleEndian.PutUint32(buf[12:16], uint32(len(f.Spectrum)))
		putFloats(buf[SpectrumHeaderSize:], f.Spectrum)
		return buf

	case WaterfallFrame:
		buf := make([]byte, WaterfallHeaderSize+len(f.Data))
		binary.LittleEndian.PutUint32(buf[0:4], f.Timestamp)
		binary.LittleEndian.PutUint32(buf[4:8], uint32(len(f.Data)))
		copy(buf[WaterfallHeaderSize:], f.Data)
		return buf
	}
	return nil
}

func readFloat32(b []byte) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(b))
}

func putFloat32(b []byte, v float32) {
	binary.LittleEndian.PutUint32(b, math.Float32bits(v))
}

func readFloats(b []byte, n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = readFloat32(b[i*4:])
	}
	return out
}

func putFloats(b []byte, values []float32) {
	for i, v := range values {
		putFloat32(b[i*4:], v)
	}
}
