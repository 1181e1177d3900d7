// say reads text from stdin and synthesizes it with the configured vendor.
//
// Usage:
//
//	echo "Hello there." | say --out output/hello.wav
//	say --config configs/vocode.yaml --speakers
package main

import (
	"bufio"
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/petrzlen/vocode-plugins/internal/config"
	"github.com/petrzlen/vocode-plugins/internal/utils"
	"github.com/petrzlen/vocode-plugins/pkg/audioio"
	"github.com/petrzlen/vocode-plugins/pkg/models"
	"github.com/petrzlen/vocode-plugins/pkg/synthesizer"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
)

func main() {
	configFile := flag.String("config", "", "path to config file, defaults to ./vocode.yaml")
	outFile := flag.String("out", "", "write the synthesized audio into this wav file")
	useSpeakers := flag.Bool("speakers", false, "play the synthesized audio on the default output device")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	ftl(err)
	utils.SetupZerolog(cfg.Logging.Level, cfg.Logging.Format)
	if *outFile == "" && !*useSpeakers {
		log.Fatal().Msg("nothing to do, pass --out and/or --speakers")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	tts, err := cfg.TTS.NewSynthesizer()
	ftl(err)
	defer func() { dbg(tts.Close()) }()

	var outputs []audioio.OutputDevice
	var recorder *audioio.WavRecorder
	if *outFile != "" {
		recorder = audioio.NewWavRecorder(tts.SampleRate(), tts.NumChannels())
		outputs = append(outputs, recorder)
	}
	if *useSpeakers {
		speakers, err := audioio.NewSpeakers(tts.SampleRate(), tts.NumChannels())
		ftl(err)
		outputs = append(outputs, speakers)
	}

	textChan := make(chan string)
	go readLines(ctx, textChan)

	audioChan := make(chan models.SynthesizedAudio, 100)
	go func() {
		synthesizer.SynthesizeRoutine(ctx, tts, cfg.TTS.ConnOptions(), textChan, audioChan)
		close(audioChan)
	}()

	// Fan out so every device sees the full stream.
	var deviceChans []chan models.SynthesizedAudio
	done := make(chan struct{}, len(outputs))
	for _, output := range outputs {
		deviceChan := make(chan models.SynthesizedAudio, 100)
		deviceChans = append(deviceChans, deviceChan)
		go func(output audioio.OutputDevice) {
			audioio.PlayAudioChunksRoutine(output, deviceChan)
			done <- struct{}{}
		}(output)
	}
	for audio := range audioChan {
		for _, deviceChan := range deviceChans {
			deviceChan <- audio
		}
	}
	for _, deviceChan := range deviceChans {
		close(deviceChan)
	}
	for range outputs {
		<-done
	}

	if recorder != nil {
		log.Info().Dur("duration", recorder.Duration()).Msg("synthesized audio")
		ftl(recorder.Save(afero.NewOsFs(), *outFile))
	}
}

func readLines(ctx context.Context, textChan chan<- string) {
	defer close(textChan)
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		select {
		// leading space keeps words apart when lines get buffered together
		case textChan <- " " + line:
		case <-ctx.Done():
			return
		}
	}
	dbg(scanner.Err())
}

func ftl(err error) {
	if err != nil {
		log.Fatal().Err(err).Msg("sth essential failed")
	}
}

func dbg(err error) {
	if err != nil {
		log.Debug().Err(err).Msg("sth non-essential failed")
	}
}
