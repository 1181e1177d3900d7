package synthesizer

import (
	"context"

	"github.com/petrzlen/vocode-plugins/pkg/models"
	"github.com/rs/zerolog/log"
)

// MinTextBufferForTtsCharLength is mostly to prevent saying like "1,"
// in other cases it's best to just start as soon as first chat completions arrive.
const MinTextBufferForTtsCharLength = 3

func isPunctuationMarkAtEnd(s string) bool {
	if len(s) == 0 {
		return false
	}
	lastChar := s[len(s)-1]
	switch lastChar {
	case ',', '.', '?', '!', ';', ':':
		return true
	default:
		return false
	}
}

// SynthesizeRoutine buffers incoming text up to a punctuation mark and synthesizes each sentence in order.
// Failed sentences are logged and skipped. It returns once textChan is closed and flushed, or ctx is done.
func SynthesizeRoutine(ctx context.Context, tts Synthesizer, connOptions ConnOptions, textChan <-chan string, audioOutputChan chan<- models.SynthesizedAudio) {
	log.Info().Msgf("synthesizeRoutine started")
	var buffer string

	i := 0
	for {
		select {
		case <-ctx.Done():
			log.Info().Err(ctx.Err()).Msg("synthesizeRoutine cancelled")
			return
		case text, ok := <-textChan:
			if ok {
				buffer += text
			}
			if (len(buffer) > MinTextBufferForTtsCharLength && isPunctuationMarkAtEnd(buffer)) || (!ok && buffer != "") {
				i++
				if err := synthesizeInto(ctx, tts, connOptions, buffer, audioOutputChan); err != nil {
					log.Error().Err(err).Int("sentence", i).Str("kind", KindOf(err).String()).Msgf("cannot synthesize text %s", buffer)
				}
				buffer = "" // Clear the buffer after processing
			}
			if !ok {
				log.Info().Msgf("synthesizeRoutine ended")
				return
			}
		}
	}
}

func synthesizeInto(ctx context.Context, tts Synthesizer, connOptions ConnOptions, text string, out chan<- models.SynthesizedAudio) error {
	stream, err := tts.Synthesize(ctx, text, connOptions)
	if err != nil {
		return err
	}
	defer func() { dbg(stream.Close()) }()

	for audio := range stream.Frames() {
		select {
		case out <- audio:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return stream.Err()
}

func dbg(err error) {
	if err != nil {
		log.Debug().Err(err).Msg("sth non-essential failed")
	}
}
