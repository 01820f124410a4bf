// Package native implements a modeladapter.Adapter using the whisper.cpp Go
// CGO bindings directly, in-process — no HTTP hop, one shared model across
// all transcription calls.
//
// The whisper.cpp static library and headers must be available at link time
// via LIBRARY_PATH and C_INCLUDE_PATH, as with any other whisper.cpp CGO
// consumer.
package native

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"
	"github.com/streamxcribe/pipeline/pkg/modeladapter"
)

// Option configures an Adapter.
type Option func(*Adapter)

// WithLanguage sets the BCP-47 language code used for every transcription
// call. Defaults to "en".
func WithLanguage(lang string) Option {
	return func(a *Adapter) { a.language = lang }
}

// Adapter implements modeladapter.Adapter using an in-process whisper.cpp
// model, loaded once and shared across every TranscribeBatch call. Each call
// creates its own whisper.cpp context, since a context is not safe for
// concurrent use but the underlying model is.
type Adapter struct {
	model    whisperlib.Model
	language string
}

// New loads the whisper.cpp model at modelPath. The caller must call Close
// when the adapter is no longer needed.
func New(modelPath string, opts ...Option) (*Adapter, error) {
	if modelPath == "" {
		return nil, errors.New("native: modelPath must not be empty")
	}
	model, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("native: load model %q: %w", modelPath, err)
	}

	a := &Adapter{model: model, language: "en"}
	for _, o := range opts {
		o(a)
	}
	return a, nil
}

// Close releases the whisper model.
func (a *Adapter) Close() error {
	if a.model == nil {
		return nil
	}
	return a.model.Close()
}

// IsReady reports whether the model was loaded successfully.
func (a *Adapter) IsReady(context.Context) bool {
	return a.model != nil
}

// TranscribeBatch runs one whisper.cpp inference per path, sequentially,
// sharing the loaded model across calls (true batch inference is not
// exposed by the whisper.cpp bindings). A missing or undecodable file yields
// a Failure item rather than aborting the batch.
func (a *Adapter) TranscribeBatch(ctx context.Context, paths []string) ([]modeladapter.ItemResult, error) {
	results := make([]modeladapter.ItemResult, len(paths))

	for i, path := range paths {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		samples, err := loadMonoFloat32WAV(path)
		if err != nil {
			results[i] = modeladapter.NewFailure(fmt.Errorf("native: %w", err))
			continue
		}

		text, err := a.infer(samples)
		if err != nil {
			results[i] = modeladapter.NewFailure(err)
			continue
		}
		results[i] = modeladapter.NewSuccess(text, 0.95, 0)
	}

	return results, nil
}

// infer creates a fresh whisper.cpp context over the shared model and
// transcribes samples, returning the concatenated segment text.
func (a *Adapter) infer(samples []float32) (string, error) {
	wctx, err := a.model.NewContext()
	if err != nil {
		return "", fmt.Errorf("native: create context: %w", err)
	}

	if err := wctx.SetLanguage(a.language); err != nil {
		return "", fmt.Errorf("native: set language %q: %w", a.language, err)
	}

	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return "", fmt.Errorf("native: process audio: %w", err)
	}

	var parts []string
	for {
		seg, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("native: read segment: %w", err)
		}
		text := strings.TrimSpace(seg.Text)
		if text != "" {
			parts = append(parts, text)
		}
	}

	return strings.Join(parts, " "), nil
}

// loadMonoFloat32WAV reads a 16-bit mono PCM WAV file (the format the
// slicer collaborator is expected to produce) and converts it to the
// normalized float32 samples whisper.cpp expects.
func loadMonoFloat32WAV(path string) ([]float32, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	if len(data) < 44 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil, errors.New("not a RIFF/WAVE file")
	}

	pcm := data[44:]
	n := len(pcm) / 2
	samples := make([]float32, n)
	for i := 0; i < n; i++ {
		v := int16(binary.LittleEndian.Uint16(pcm[i*2 : i*2+2]))
		samples[i] = float32(v) / 32768.0
	}
	return samples, nil
}
