package audio_utils

import "github.com/pkg/errors"

// Convert remixes the buffer to numChannels and resamples it to sampleRate.
// The input buffer is left untouched.
func Convert(buf *PCMBuffer, sampleRate int, numChannels int) (*PCMBuffer, error) {
	if sampleRate <= 0 || numChannels <= 0 {
		return nil, errors.Errorf("invalid target format %d Hz / %d channels", sampleRate, numChannels)
	}
	if buf.SampleRate <= 0 || buf.NumChannels <= 0 {
		return nil, errors.Errorf("invalid source format %d Hz / %d channels", buf.SampleRate, buf.NumChannels)
	}
	out := remix(buf, numChannels)
	return resample(out, sampleRate), nil
}

func remix(buf *PCMBuffer, numChannels int) *PCMBuffer {
	if buf.NumChannels == numChannels {
		return buf
	}
	frames := buf.SamplesPerChannel()
	samples := make([]int16, frames*numChannels)
	for i := 0; i < frames; i++ {
		in := buf.Samples[i*buf.NumChannels : (i+1)*buf.NumChannels]
		if numChannels == 1 {
			sum := 0
			for _, s := range in {
				sum += int(s)
			}
			samples[i] = int16(sum / len(in))
			continue
		}
		for ch := 0; ch < numChannels; ch++ {
			// Missing channels repeat the last source channel.
			src := ch
			if src >= len(in) {
				src = len(in) - 1
			}
			samples[i*numChannels+ch] = in[src]
		}
	}
	return &PCMBuffer{Samples: samples, SampleRate: buf.SampleRate, NumChannels: numChannels}
}

// resample uses linear interpolation between neighbouring samples of each channel.
func resample(buf *PCMBuffer, sampleRate int) *PCMBuffer {
	if buf.SampleRate == sampleRate {
		return buf
	}
	inFrames := buf.SamplesPerChannel()
	outFrames := int(int64(inFrames) * int64(sampleRate) / int64(buf.SampleRate))
	channels := buf.NumChannels
	samples := make([]int16, outFrames*channels)
	ratio := float64(buf.SampleRate) / float64(sampleRate)
	for i := 0; i < outFrames; i++ {
		pos := float64(i) * ratio
		idx := int(pos)
		frac := pos - float64(idx)
		next := idx + 1
		if next >= inFrames {
			next = inFrames - 1
		}
		for ch := 0; ch < channels; ch++ {
			a := float64(buf.Samples[idx*channels+ch])
			b := float64(buf.Samples[next*channels+ch])
			samples[i*channels+ch] = int16(a + (b-a)*frac)
		}
	}
	return &PCMBuffer{Samples: samples, SampleRate: sampleRate, NumChannels: channels}
}
