package speech

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
)

// Whisper is a BatchTranscriber backed by the OpenAI audio transcription
// API. Provider failures are reported as [ErrTransient]: the window simply
// has no replacement transcript and the pipeline retries at the next one.
type Whisper struct {
	client *openai.Client
	model  string
}

var _ BatchTranscriber = (*Whisper)(nil)

// WhisperOption configures a Whisper transcriber.
type WhisperOption func(*Whisper)

// WithWhisperModel overrides the default "whisper-1".
func WithWhisperModel(model string) WhisperOption {
	return func(w *Whisper) { w.model = model }
}

// NewWhisper creates a Whisper batch transcriber.
func NewWhisper(apiKey string, opts ...WhisperOption) *Whisper {
	client := openai.NewClient(option.WithAPIKey(apiKey))
	w := &Whisper{client: &client, model: openai.AudioModelWhisper1}
	for _, o := range opts {
		o(w)
	}
	return w
}

// Transcribe sends one WAV window and returns its transcript.
func (w *Whisper) Transcribe(ctx context.Context, wav []byte, language string) (string, error) {
	if len(wav) == 0 {
		return "", nil
	}
	params := openai.AudioTranscriptionNewParams{
		Model: w.model,
		File:  openai.File(bytes.NewReader(wav), "window.wav", "audio/wav"),
	}
	if language != "" {
		params.Language = param.NewOpt(language)
	}
	resp, err := w.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return "", err
		}
		return "", fmt.Errorf("%w: %v", ErrTransient, err)
	}
	return resp.Text, nil
}
