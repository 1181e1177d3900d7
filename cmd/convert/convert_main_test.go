package main

import (
	"bytes"
	"testing"

	"github.com/petrzlen/vocode-plugins/pkg/audio_utils"
	"github.com/spf13/afero"
)

func TestConvertFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	stereo := &audio_utils.PCMBuffer{SampleRate: 16000, NumChannels: 2}
	for i := 0; i < 1600; i++ {
		stereo.Samples = append(stereo.Samples, 400, 200)
	}
	wavBytes, err := audio_utils.EncodeWav(stereo)
	if err != nil {
		t.Fatalf("EncodeWav: %v", err)
	}
	if err := afero.WriteFile(fs, "in/Greeting.WAV", wavBytes, 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	if err := convertFile(fs, "in/Greeting.WAV", "out.wav", 8000, 1); err != nil {
		t.Fatalf("convertFile: %v", err)
	}
	out, err := afero.ReadFile(fs, "out.wav")
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	decoded, err := audio_utils.Decode(audio_utils.FormatWav, bytes.NewReader(out), audio_utils.Hint{})
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if decoded.SampleRate != 8000 || decoded.NumChannels != 1 || decoded.SamplesPerChannel() != 800 {
		t.Fatalf("got %d Hz %d ch %d samples", decoded.SampleRate, decoded.NumChannels, decoded.SamplesPerChannel())
	}
	if decoded.Samples[0] != 300 {
		t.Errorf("downmixed sample: got %d, want 300", decoded.Samples[0])
	}
}

func TestConvertFileErrors(t *testing.T) {
	fs := afero.NewMemMapFs()
	if err := convertFile(fs, "missing.mp3", "out.wav", 8000, 1); err == nil {
		t.Error("expected an error for a missing input")
	}
	if err := afero.WriteFile(fs, "notes.txt", []byte("hello"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := convertFile(fs, "notes.txt", "out.wav", 8000, 1); err == nil {
		t.Error("expected an error for an unknown extension")
	}
}
