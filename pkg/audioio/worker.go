package audioio

import (
	"bytes"
	"time"

	"github.com/petrzlen/vocode-plugins/pkg/audio_utils"
	"github.com/petrzlen/vocode-plugins/pkg/models"
	"github.com/rs/zerolog/log"
)

// PlayAudioChunksRoutine gathers frames until the final one of each request and plays the utterance in one go.
// Frames in a different format than the device are converted first. Returns once audioChan is closed.
func PlayAudioChunksRoutine(outputDevice OutputDevice, audioChan <-chan models.SynthesizedAudio) {
	log.Info().Msgf("playAudioChunksRoutine started")

	var utterance []models.AudioFrame
	played := 0
	for audio := range audioChan {
		utterance = append(utterance, audio.Frame)
		if !audio.IsFinal {
			continue
		}
		played++
		audio.Trace.Log()
		playUtterance(outputDevice, audio.RequestID, utterance)
		utterance = nil
	}
	if len(utterance) > 0 {
		log.Warn().Int("frames", len(utterance)).Msg("audio channel closed mid utterance, playing what we have")
		playUtterance(outputDevice, "", utterance)
	}
	log.Info().Int("utterances", played).Msgf("playAudioChunksRoutine finished")
}

func playUtterance(outputDevice OutputDevice, requestID string, frames []models.AudioFrame) {
	startTime := time.Now()
	pcm, err := audio_utils.Convert(audio_utils.MergeFrames(frames), outputDevice.SampleRate(), outputDevice.NumChannels())
	if err != nil {
		log.Error().Err(err).Str("request_id", requestID).Msg("cannot convert utterance for the output device, skipping")
		return
	}

	waitTilDone, err := outputDevice.Play(bytes.NewReader(pcm.Bytes())) // Sub-millisecond time
	if err != nil {
		log.Error().Err(err).Str("request_id", requestID).Msg("cannot play utterance")
		return
	}
	if waitTilDone != nil {
		waitTilDone.Wait()
	}
	var audioDuration time.Duration
	for _, frame := range frames {
		audioDuration += frame.Duration()
	}
	log.Debug().Str("request_id", requestID).Int("frames", len(frames)).Dur("audio_duration", audioDuration).Dur("duration", time.Since(startTime)).Msg("player DONE")
}
