// convert decodes an mp3, wav or flac file and writes it as a mono wav at the given rate,
// using the same decoding path as the synthesizers.
//
// Usage:
//
//	convert --in output/tts-1.mp3 --out output/tts-1.wav --rate 8000
package main

import (
	"bytes"
	"flag"
	"path/filepath"
	"strings"

	"github.com/petrzlen/vocode-plugins/internal/utils"
	"github.com/petrzlen/vocode-plugins/pkg/audio_utils"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
)

func main() {
	in := flag.String("in", "", "input audio file (mp3, wav or flac)")
	out := flag.String("out", "", "output wav file")
	sampleRate := flag.Int("rate", 16000, "output sample rate in Hz")
	channels := flag.Int("channels", 1, "output channel count")
	flag.Parse()

	utils.SetupZerolog("info", utils.LogFormatConsole)
	if *in == "" || *out == "" {
		log.Fatal().Msg("both --in and --out are required")
	}
	ftl(convertFile(afero.NewOsFs(), *in, *out, *sampleRate, *channels))
}

func convertFile(fs afero.Fs, in string, out string, sampleRate int, numChannels int) error {
	format := audio_utils.Format(strings.TrimPrefix(strings.ToLower(filepath.Ext(in)), "."))
	input, err := afero.ReadFile(fs, in)
	if err != nil {
		return errors.Wrapf(err, "cannot read %s", in)
	}

	decoded, err := audio_utils.Decode(format, bytes.NewReader(input), audio_utils.Hint{})
	if err != nil {
		return errors.Wrapf(err, "cannot decode %s", in)
	}
	converted, err := audio_utils.Convert(decoded, sampleRate, numChannels)
	if err != nil {
		return err
	}
	wavBytes, err := audio_utils.EncodeWav(converted)
	if err != nil {
		return err
	}
	log.Info().Str("in", in).Int("in_sample_rate", decoded.SampleRate).Int("in_channels", decoded.NumChannels).Str("out", out).Int("out_sample_rate", sampleRate).Int("out_channels", numChannels).Msg("converted")
	return afero.WriteFile(fs, out, wavBytes, 0644)
}

func ftl(err error) {
	if err != nil {
		log.Fatal().Err(err).Msg("sth essential failed")
	}
}
