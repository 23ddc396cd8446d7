package stt

import (
	"context"
	"io"
	"time"
)

// Listener captures one spoken answer from the audience.
type Listener interface {
	// Listen returns the cleaned transcript, or "" when nothing usable was
	// said before timeout elapsed.
	Listen(ctx context.Context, timeout time.Duration) (string, error)
}

// Transcriber converts a captured utterance (16-bit mono PCM) to text.
type Transcriber interface {
	Transcribe(ctx context.Context, pcm []byte, sampleRate int) (string, error)

	// Name identifies the provider in logs and metrics
	Name() string
}

// Recorder opens a stream of raw 16-bit little-endian mono PCM from the
// microphone. Closing the stream stops the capture.
type Recorder interface {
	Open(ctx context.Context) (io.ReadCloser, error)
}

// TranscriptionResult is one result message from a streaming provider.
type TranscriptionResult struct {
	Text       string
	IsFinal    bool
	Confidence float64
}
