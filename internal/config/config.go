// Package config loads the vocode settings from .env, an optional yaml file and VOCODE_* environment variables.
package config

import (
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/petrzlen/vocode-plugins/pkg/audio_utils"
	"github.com/petrzlen/vocode-plugins/pkg/synthesizer"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

const (
	VendorGoogle = "google"
	VendorRime   = "rime"
	VendorOpenAI = "openai"
)

type Config struct {
	Logging LoggingConfig `mapstructure:"logging"`
	TTS     TTSConfig     `mapstructure:"tts"`
	Twilio  TwilioConfig  `mapstructure:"twilio"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`  // trace, debug, info, warn, error
	Format string `mapstructure:"format"` // console, json
}

// TTSConfig selects the vendor, only the matching section is used.
type TTSConfig struct {
	Vendor  string        `mapstructure:"vendor"`
	Timeout time.Duration `mapstructure:"timeout"`

	Google GoogleConfig `mapstructure:"google"`
	Rime   RimeConfig   `mapstructure:"rime"`
	OpenAI OpenAIConfig `mapstructure:"openai"`
}

type GoogleConfig struct {
	Language         string  `mapstructure:"language"`
	Gender           string  `mapstructure:"gender"`
	VoiceName        string  `mapstructure:"voice_name"`
	SampleRate       int     `mapstructure:"sample_rate"`
	Pitch            float64 `mapstructure:"pitch"`
	EffectsProfileID string  `mapstructure:"effects_profile_id"`
	SpeakingRate     float64 `mapstructure:"speaking_rate"`
	Encoding         string  `mapstructure:"encoding"`
	CredentialsFile  string  `mapstructure:"credentials_file"`
	// CredentialsJSON holds the service account key inline and wins over CredentialsFile.
	CredentialsJSON string `mapstructure:"credentials_json"`
}

type RimeConfig struct {
	APIKey        string  `mapstructure:"api_key"`
	APIURL        string  `mapstructure:"api_url"`
	Model         string  `mapstructure:"model"`
	Speaker       string  `mapstructure:"speaker"`
	SampleRate    int     `mapstructure:"sample_rate"`
	SpeedAlpha    float64 `mapstructure:"speed_alpha"`
	ReduceLatency bool    `mapstructure:"reduce_latency"`

	PauseBetweenBrackets     bool `mapstructure:"pause_between_brackets"`
	PhonemizeBetweenBrackets bool `mapstructure:"phonemize_between_brackets"`
}

type OpenAIConfig struct {
	APIKey         string  `mapstructure:"api_key"`
	BaseURL        string  `mapstructure:"base_url"`
	Model          string  `mapstructure:"model"`
	Voice          string  `mapstructure:"voice"`
	ResponseFormat string  `mapstructure:"response_format"`
	Speed          float64 `mapstructure:"speed"`
}

type TwilioConfig struct {
	ListenAddr string `mapstructure:"listen_addr"`
	Greeting   string `mapstructure:"greeting"`
}

// Load reads the configuration. configFile may be empty, then ./vocode.yaml and ./configs/vocode.yaml are tried.
// envFiles are handed to godotenv, by default ./.env; a missing .env file is not an error.
func Load(configFile string, envFiles ...string) (*Config, error) {
	if err := godotenv.Load(envFiles...); err != nil {
		log.Debug().Err(err).Msg("no .env loaded, relying on the environment")
	}

	v := viper.New()

	v.SetDefault("logging.level", "debug")
	v.SetDefault("logging.format", "console")
	v.SetDefault("tts.vendor", VendorGoogle)
	v.SetDefault("tts.timeout", synthesizer.DefaultTimeout)

	v.SetDefault("tts.google.language", "en-US")
	v.SetDefault("tts.google.gender", synthesizer.GoogleGenderNeutral)
	v.SetDefault("tts.google.voice_name", "")
	v.SetDefault("tts.google.sample_rate", 24000)
	v.SetDefault("tts.google.pitch", 0.0)
	v.SetDefault("tts.google.effects_profile_id", "")
	v.SetDefault("tts.google.speaking_rate", 1.0)
	v.SetDefault("tts.google.encoding", string(audio_utils.FormatWav))
	v.SetDefault("tts.google.credentials_file", "${GOOGLE_APPLICATION_CREDENTIALS}")
	v.SetDefault("tts.google.credentials_json", "")

	v.SetDefault("tts.rime.api_key", "${RIME_API_KEY}")
	v.SetDefault("tts.rime.api_url", synthesizer.RimeDefaultAPIURL)
	v.SetDefault("tts.rime.model", synthesizer.RimeModelMist)
	v.SetDefault("tts.rime.speaker", "lagoon")
	v.SetDefault("tts.rime.sample_rate", 22050)
	v.SetDefault("tts.rime.speed_alpha", 1.0)
	v.SetDefault("tts.rime.reduce_latency", false)
	v.SetDefault("tts.rime.pause_between_brackets", false)
	v.SetDefault("tts.rime.phonemize_between_brackets", false)

	v.SetDefault("tts.openai.api_key", "${OPEN_AI_API_KEY}")
	v.SetDefault("tts.openai.base_url", "")
	v.SetDefault("tts.openai.model", "tts-1")
	v.SetDefault("tts.openai.voice", "alloy")
	v.SetDefault("tts.openai.response_format", string(audio_utils.FormatMp3))
	// Speed 1.15 was reverse engineered from the ChatGPT app
	v.SetDefault("tts.openai.speed", 1.15)

	v.SetDefault("twilio.listen_addr", ":8081")
	v.SetDefault("twilio.greeting", "Hello, thanks for calling. How can I help you today?")

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("vocode")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
	}

	// VOCODE_TTS_VENDOR, VOCODE_TTS_RIME_SPEAKER, ...
	v.SetEnvPrefix("VOCODE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, errors.Wrap(err, "cannot read config file")
		}
		log.Debug().Msg("no config file found, using defaults and environment variables")
	} else {
		log.Debug().Str("path", v.ConfigFileUsed()).Msg("loaded config file")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "cannot unmarshal config")
	}

	cfg.TTS.Google.CredentialsFile = resolveEnvRef(cfg.TTS.Google.CredentialsFile)
	cfg.TTS.Google.CredentialsJSON = resolveEnvRef(cfg.TTS.Google.CredentialsJSON)
	cfg.TTS.Rime.APIKey = resolveEnvRef(cfg.TTS.Rime.APIKey)
	cfg.TTS.OpenAI.APIKey = resolveEnvRef(cfg.TTS.OpenAI.APIKey)
	return &cfg, nil
}

// resolveEnvRef replaces a whole "${VAR_NAME}" value with that variable, empty when it is unset.
func resolveEnvRef(val string) string {
	if strings.HasPrefix(val, "${") && strings.HasSuffix(val, "}") {
		return os.Getenv(val[2 : len(val)-1])
	}
	return val
}

func (c TTSConfig) ConnOptions() synthesizer.ConnOptions {
	return synthesizer.ConnOptions{Timeout: c.Timeout}
}

func (c TTSConfig) googleOptions() synthesizer.GoogleOptions {
	opts := synthesizer.GoogleOptions{
		Language:         c.Google.Language,
		Gender:           c.Google.Gender,
		VoiceName:        c.Google.VoiceName,
		SampleRate:       c.Google.SampleRate,
		Pitch:            c.Google.Pitch,
		EffectsProfileID: c.Google.EffectsProfileID,
		SpeakingRate:     c.Google.SpeakingRate,
		Encoding:         audio_utils.Format(c.Google.Encoding),
		CredentialsFile:  c.Google.CredentialsFile,
	}
	if c.Google.CredentialsJSON != "" {
		opts.CredentialsJSON = []byte(c.Google.CredentialsJSON)
	}
	return opts
}

func (c TTSConfig) rimeOptions() synthesizer.RimeOptions {
	return synthesizer.RimeOptions{
		APIKey:                   c.Rime.APIKey,
		APIURL:                   c.Rime.APIURL,
		Model:                    c.Rime.Model,
		Speaker:                  c.Rime.Speaker,
		SampleRate:               c.Rime.SampleRate,
		SpeedAlpha:               c.Rime.SpeedAlpha,
		ReduceLatency:            c.Rime.ReduceLatency,
		PauseBetweenBrackets:     c.Rime.PauseBetweenBrackets,
		PhonemizeBetweenBrackets: c.Rime.PhonemizeBetweenBrackets,
	}
}

func (c TTSConfig) openAIOptions() synthesizer.OpenAIOptions {
	return synthesizer.OpenAIOptions{
		APIKey:         c.OpenAI.APIKey,
		BaseURL:        c.OpenAI.BaseURL,
		Model:          c.OpenAI.Model,
		Voice:          c.OpenAI.Voice,
		ResponseFormat: audio_utils.Format(c.OpenAI.ResponseFormat),
		Speed:          c.OpenAI.Speed,
	}
}

// NewSynthesizer builds the adapter for the configured vendor.
func (c TTSConfig) NewSynthesizer() (synthesizer.Synthesizer, error) {
	log.Info().Str("vendor", c.Vendor).Dur("timeout", c.Timeout).Msg("creating synthesizer")
	switch c.Vendor {
	case VendorGoogle:
		tts, err := synthesizer.NewGoogleTTS(c.googleOptions())
		if err != nil {
			return nil, err
		}
		return tts, nil
	case VendorRime:
		tts, err := synthesizer.NewRimeTTS(c.rimeOptions())
		if err != nil {
			return nil, err
		}
		return tts, nil
	case VendorOpenAI:
		tts, err := synthesizer.NewOpenAITTS(c.openAIOptions())
		if err != nil {
			return nil, err
		}
		return tts, nil
	default:
		return nil, errors.Errorf("unknown tts vendor %q, expected one of %s, %s or %s", c.Vendor, VendorGoogle, VendorRime, VendorOpenAI)
	}
}
