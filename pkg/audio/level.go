package audio

import (
	"encoding/binary"
	"math"
)

// RMSLevel computes the root-mean-square energy of 16-bit signed little-endian
// PCM audio, normalised to [0.0, 1.0]. An empty or odd-length-truncated buffer
// yields 0.
func RMSLevel(pcm []byte) float64 {
	n := len(pcm) / 2
	if n == 0 {
		return 0
	}
	var sum float64
	for i := range n {
		sample := int16(binary.LittleEndian.Uint16(pcm[i*2 : i*2+2]))
		v := float64(sample) / 32768.0
		sum += v * v
	}
	return math.Sqrt(sum / float64(n))
}

// Float32ToPCM converts normalised float32 samples to 16-bit signed
// little-endian PCM bytes, clamping values outside [-1.0, 1.0].
func Float32ToPCM(samples []float32) []byte {
	pcm := make([]byte, len(samples)*2)
	for i, s := range samples {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(int16(s*32767)))
	}
	return pcm
}

// PCMToFloat32 converts 16-bit signed little-endian PCM bytes to float32
// samples normalised to [-1.0, 1.0]. Any trailing odd byte is ignored.
func PCMToFloat32(pcm []byte) []float32 {
	n := len(pcm) / 2
	samples := make([]float32, n)
	for i := range n {
		sample := int16(binary.LittleEndian.Uint16(pcm[i*2 : i*2+2]))
		samples[i] = float32(sample) / 32768.0
	}
	return samples
}
