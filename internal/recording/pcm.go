package recording

import "encoding/binary"

// TargetSampleRate is the rate the transcription socket expects.
const TargetSampleRate = 16000

// EncodePCM16 converts interleaved s16le audio captured at sampleRate with
// the given channel count into 16 kHz mono s16le. Capture rates below the
// target are rejected by config validation, so only downsampling is done.
func EncodePCM16(data []byte, sampleRate, channels int) []byte {
	if channels <= 0 {
		channels = 1
	}
	samples := downmix(data, channels)
	if sampleRate > TargetSampleRate {
		samples = downsample(samples, sampleRate, TargetSampleRate)
	}

	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

func downmix(data []byte, channels int) []int16 {
	frameBytes := 2 * channels
	n := len(data) / frameBytes
	samples := make([]int16, n)
	for i := 0; i < n; i++ {
		var sum int32
		for c := 0; c < channels; c++ {
			off := i*frameBytes + c*2
			sum += int32(int16(binary.LittleEndian.Uint16(data[off:])))
		}
		samples[i] = int16(sum / int32(channels))
	}
	return samples
}

// downsample averages each window of input samples that maps onto one
// output sample.
func downsample(in []int16, fromRate, toRate int) []int16 {
	outLen := len(in) * toRate / fromRate
	out := make([]int16, outLen)

	pos := 0
	for i := 0; i < outLen; i++ {
		next := (i + 1) * fromRate / toRate
		if next > len(in) {
			next = len(in)
		}
		var sum int64
		count := 0
		for ; pos < next; pos++ {
			sum += int64(in[pos])
			count++
		}
		if count > 0 {
			out[i] = int16(sum / int64(count))
		}
	}
	return out
}
