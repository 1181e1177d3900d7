// twilio serves Twilio media streams on /ws and greets every caller with the configured text.
package main

import (
	"context"
	"flag"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/petrzlen/vocode-plugins/internal/config"
	"github.com/petrzlen/vocode-plugins/internal/networking"
	"github.com/petrzlen/vocode-plugins/internal/utils"
	"github.com/petrzlen/vocode-plugins/pkg/audioio"
	"github.com/rs/zerolog/log"
)

func main() {
	configFile := flag.String("config", "", "path to config file, defaults to ./vocode.yaml")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	ftl(err)
	utils.SetupZerolog(cfg.Logging.Level, cfg.Logging.Format)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// One synthesizer shared by all calls, adapters are safe for concurrent use.
	tts, err := cfg.TTS.NewSynthesizer()
	ftl(err)
	defer func() {
		if err := tts.Close(); err != nil {
			log.Debug().Err(err).Msg("sth non-essential failed")
		}
	}()

	twilioHandlerFactory := func(requestCtx context.Context) networking.WebsocketMessageHandler {
		return audioio.NewTwilioHandler(requestCtx, tts, cfg.TTS.ConnOptions(), cfg.Twilio.Greeting)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", networking.NewWebsocketHandlerFunc(twilioHandlerFactory))
	ftl(networking.ListenAndServe(ctx, cfg.Twilio.ListenAddr, mux))
}

func ftl(err error) {
	if err != nil {
		log.Fatal().Err(err).Msg("sth essential failed")
	}
}
