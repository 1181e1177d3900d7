package audio_utils

import (
	"github.com/petrzlen/vocode-plugins/pkg/models"
)

// DefaultSamplesPerChannel gives 100ms frames.
func DefaultSamplesPerChannel(sampleRate int) int {
	return sampleRate / 10
}

// SplitFrames cuts the buffer into frames of samplesPerChannel, the last frame may be shorter.
func SplitFrames(buf *PCMBuffer, samplesPerChannel int) []models.AudioFrame {
	if samplesPerChannel <= 0 || buf.NumChannels <= 0 {
		return nil
	}
	step := samplesPerChannel * buf.NumChannels
	data := buf.Bytes()
	frames := make([]models.AudioFrame, 0, len(buf.Samples)/step+1)
	for start := 0; start < len(buf.Samples); start += step {
		end := start + step
		if end > len(buf.Samples) {
			end = len(buf.Samples)
		}
		frames = append(frames, models.NewAudioFrame(data[2*start:2*end], buf.SampleRate, buf.NumChannels))
	}
	return frames
}

// MergeFrames concatenates frames sharing one format back into a PCMBuffer.
func MergeFrames(frames []models.AudioFrame) *PCMBuffer {
	if len(frames) == 0 {
		return &PCMBuffer{}
	}
	result := &PCMBuffer{SampleRate: frames[0].SampleRate, NumChannels: frames[0].NumChannels}
	for _, f := range frames {
		result.Samples = append(result.Samples, twoByteDataToInt16Slice(f.Data)...)
	}
	return result
}
