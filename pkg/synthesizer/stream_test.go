package synthesizer

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/petrzlen/vocode-plugins/pkg/audio_utils"
	"github.com/petrzlen/vocode-plugins/pkg/models"
	"github.com/pkg/errors"
)

// silentMp3 builds MPEG-1 Layer III mono frames at 128kbps / 44.1kHz with zeroed side info and main data.
func silentMp3(numFrames int) []byte {
	const frameSize = 417
	frame := make([]byte, frameSize)
	copy(frame, []byte{0xFF, 0xFB, 0x90, 0xC0})
	return bytes.Repeat(frame, numFrames)
}

func rampWav(t *testing.T, samplesPerChannel int, sampleRate int) []byte {
	t.Helper()
	buf := &audio_utils.PCMBuffer{SampleRate: sampleRate, NumChannels: 1}
	for i := 0; i < samplesPerChannel; i++ {
		buf.Samples = append(buf.Samples, int16(i%1000))
	}
	wavBytes, err := audio_utils.EncodeWav(buf)
	if err != nil {
		t.Fatalf("EncodeWav: %v", err)
	}
	return wavBytes
}

func testFrame(samples int) models.AudioFrame {
	return models.NewAudioFrame(make([]byte, samples*2), 16000, 1)
}

func assertFinalOnlyLast(t *testing.T, frames []models.SynthesizedAudio) {
	t.Helper()
	if len(frames) == 0 {
		t.Fatal("expected at least one frame")
	}
	for i, frame := range frames {
		if frame.IsFinal != (i == len(frames)-1) {
			t.Errorf("frame %d: IsFinal = %v", i, frame.IsFinal)
		}
		if frame.RequestID != frames[0].RequestID {
			t.Errorf("frame %d: request id %q differs from %q", i, frame.RequestID, frames[0].RequestID)
		}
	}
}

func TestChunkedStreamMarksLastFrameFinal(t *testing.T) {
	run := func(ctx context.Context, emitter *Emitter) error {
		for i := 0; i < 3; i++ {
			if err := emitter.Push(testFrame(1600)); err != nil {
				return err
			}
		}
		return nil
	}
	stream := newChunkedStream(context.Background(), "test", "hello", ConnOptions{}, run)
	frames, err := stream.Collect()
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if len(frames) != 3 {
		t.Fatalf("got %d frames, want 3", len(frames))
	}
	assertFinalOnlyLast(t, frames)
	if frames[0].RequestID != stream.RequestID() {
		t.Errorf("request id: got %q, want %q", frames[0].RequestID, stream.RequestID())
	}
	if frames[0].Trace.Processor != "test" {
		t.Errorf("processor: got %q", frames[0].Trace.Processor)
	}
	if stream.InputText() != "hello" {
		t.Errorf("input text: got %q", stream.InputText())
	}
}

func TestChunkedStreamNoFrames(t *testing.T) {
	run := func(ctx context.Context, emitter *Emitter) error { return nil }
	frames, err := newChunkedStream(context.Background(), "test", "hello", ConnOptions{}, run).Collect()
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if len(frames) != 0 {
		t.Errorf("got %d frames, want none", len(frames))
	}
}

func TestChunkedStreamUnknownErrorIsConnection(t *testing.T) {
	run := func(ctx context.Context, emitter *Emitter) error {
		if err := emitter.Push(testFrame(160)); err != nil {
			return err
		}
		return errors.New("socket closed")
	}
	frames, err := newChunkedStream(context.Background(), "test", "hello", ConnOptions{}, run).Collect()
	if KindOf(err) != KindConnection {
		t.Fatalf("kind: got %v (%v), want connection", KindOf(err), err)
	}
	// The held back frame is never sent once the request failed.
	if len(frames) != 0 {
		t.Errorf("got %d frames after failure, want none", len(frames))
	}
}

func TestChunkedStreamTimeout(t *testing.T) {
	run := func(ctx context.Context, emitter *Emitter) error {
		<-ctx.Done()
		return ctx.Err()
	}
	start := time.Now()
	_, err := newChunkedStream(context.Background(), "test", "hello", ConnOptions{Timeout: 20 * time.Millisecond}, run).Collect()
	if KindOf(err) != KindTimeout {
		t.Fatalf("kind: got %v (%v), want timeout", KindOf(err), err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("timeout took %v", elapsed)
	}
}

func TestChunkedStreamCustomMapper(t *testing.T) {
	vendorErr := errors.New("quota exceeded")
	mapper := func(err error) (error, bool) {
		if errors.Is(err, vendorErr) {
			return NewAPIStatusError("quota", 429, "req-1", "", err), true
		}
		return nil, false
	}
	run := func(ctx context.Context, emitter *Emitter) error {
		return errors.Wrap(vendorErr, "vendor call")
	}
	_, err := newChunkedStream(context.Background(), "test", "hello", ConnOptions{}, run, mapper).Collect()
	code, ok := StatusCode(err)
	if !ok || code != 429 {
		t.Fatalf("status code: got %d %v (%v), want 429", code, ok, err)
	}
}

func TestChunkedStreamCloseStopsRun(t *testing.T) {
	stopped := make(chan struct{})
	run := func(ctx context.Context, emitter *Emitter) error {
		defer close(stopped)
		for {
			if err := emitter.Push(testFrame(160)); err != nil {
				return err
			}
		}
	}
	stream := newChunkedStream(context.Background(), "test", "hello", ConnOptions{}, run)
	<-stream.Frames()
	if err := stream.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("run did not stop after Close")
	}
}

func TestChunkedStreamErrBeforeReadingFrames(t *testing.T) {
	// more frames than the channel buffers
	run := func(ctx context.Context, emitter *Emitter) error {
		for i := 0; i < 40; i++ {
			if err := emitter.Push(testFrame(160)); err != nil {
				return err
			}
		}
		return errors.New("vendor hung up")
	}
	stream := newChunkedStream(context.Background(), "test", "hello", ConnOptions{}, run)

	errChan := make(chan error, 1)
	go func() { errChan <- stream.Err() }()
	select {
	case err := <-errChan:
		if KindOf(err) != KindConnection {
			t.Fatalf("kind: got %v (%v)", KindOf(err), err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Err blocked on unread frames")
	}
	if _, ok := <-stream.Frames(); ok {
		t.Error("frames should be drained and closed")
	}
}

func TestPushDecodedSplitsIntoFrames(t *testing.T) {
	run := func(ctx context.Context, emitter *Emitter) error {
		return pushDecoded(emitter, audio_utils.FormatWav, bytes.NewReader(rampWav(t, 4000, 16000)), audio_utils.Hint{}, 16000, 1)
	}
	frames, err := newChunkedStream(context.Background(), "test", "hello", ConnOptions{}, run).Collect()
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if len(frames) != 3 {
		t.Fatalf("got %d frames, want 3", len(frames))
	}
	assertFinalOnlyLast(t, frames)
	for i, want := range []int{1600, 1600, 800} {
		if got := frames[i].Frame.SamplesPerChannel; got != want {
			t.Errorf("frame %d: got %d samples, want %d", i, got, want)
		}
	}
}
