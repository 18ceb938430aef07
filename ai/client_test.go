package ai

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"github.com/lisuiheng/zenflow-go/audio"
	"github.com/lisuiheng/zenflow-go/core"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

type generateCall struct {
	model    string
	contents []*genai.Content
	config   *genai.GenerateContentConfig
}

type fakeGenerator struct {
	calls []generateCall
	resp  *genai.GenerateContentResponse
	err   error
}

func (f *fakeGenerator) GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.calls = append(f.calls, generateCall{model: model, contents: contents, config: config})
	return f.resp, f.err
}

func textResponse(text string, tokens int32) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []*genai.Part{{Text: text}}},
		}},
		UsageMetadata: &genai.GenerateContentResponseUsageMetadata{TotalTokenCount: tokens},
	}
}

func promptOf(t *testing.T, call generateCall) string {
	t.Helper()
	require.Len(t, call.contents, 1)
	require.NotEmpty(t, call.contents[0].Parts)
	return call.contents[0].Parts[0].Text
}

func TestGenerateText(t *testing.T) {
	gen := &fakeGenerator{resp: textResponse("  Breathe in.  ", 321)}
	c := NewClientWithGenerator(gen, Config{}, newTestLogger())

	res, err := c.GenerateText(context.Background(), GenerationParams{
		Topic: "Letting go", Language: "en", Style: "Calm", Duration: 10,
	})
	require.NoError(t, err)
	assert.Equal(t, "Breathe in.", res.Content)
	assert.Equal(t, DefaultTextModel, res.Model)
	assert.Equal(t, 321, res.UsageTokens)

	require.Len(t, gen.calls, 1)
	call := gen.calls[0]
	assert.Equal(t, DefaultTextModel, call.model)
	require.NotNil(t, call.config.Temperature)
	assert.InDelta(t, 0.7, *call.config.Temperature, 1e-6)
	assert.InDelta(t, 0.9, *call.config.TopP, 1e-6)

	prompt := promptOf(t, call)
	assert.Contains(t, prompt, "Topic: Letting go")
	assert.Contains(t, prompt, "Estimated Duration: 10 minutes")
	assert.Contains(t, prompt, "appropriate for a Calm meditation")
}

func TestGenerateText_Errors(t *testing.T) {
	gen := &fakeGenerator{err: errors.New("quota exceeded")}
	c := NewClientWithGenerator(gen, Config{TextModel: "m"}, newTestLogger())

	_, err := c.GenerateText(context.Background(), GenerationParams{Topic: "x", Duration: 5})
	assert.ErrorContains(t, err, "quota exceeded")

	_, err = c.GenerateText(context.Background(), GenerationParams{Duration: 5})
	assert.ErrorContains(t, err, "topic is required")
	assert.Len(t, gen.calls, 1)
}

func TestSynthesizeSpeech(t *testing.T) {
	pcm := audio.FloatToPCM16([]float32{0.5, -0.5, 0})
	gen := &fakeGenerator{resp: &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []*genai.Part{
				{InlineData: &genai.Blob{MIMEType: "audio/pcm;rate=24000", Data: pcm}},
			}},
		}},
	}}
	c := NewClientWithGenerator(gen, Config{}, newTestLogger())

	res, err := c.SynthesizeSpeech(context.Background(), "Relax.", SpeechParams{})
	require.NoError(t, err)
	assert.Equal(t, audio.EncodeBase64(pcm), res.Data)
	assert.Equal(t, 24000, res.SampleRate)
	assert.Equal(t, SpeechFormat, res.Format)
	assert.Equal(t, DefaultVoice, res.Voice)

	call := gen.calls[0]
	assert.Equal(t, DefaultTTSModel, call.model)
	assert.Equal(t, []string{"AUDIO"}, call.config.ResponseModalities)
	assert.Equal(t, DefaultVoice, call.config.SpeechConfig.VoiceConfig.PrebuiltVoiceConfig.VoiceName)
	assert.Equal(t, speechInstruction+"Relax.", promptOf(t, call))
}

func TestSynthesizeSpeech_TruncatesAndHints(t *testing.T) {
	gen := &fakeGenerator{resp: &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []*genai.Part{{InlineData: &genai.Blob{Data: []byte{0, 0}}}}},
		}},
	}}
	c := NewClientWithGenerator(gen, Config{Voice: "Puck"}, newTestLogger())

	long := strings.Repeat("静", 3500)
	res, err := c.SynthesizeSpeech(context.Background(), long, SpeechParams{SpeakingRate: 0.8, Pitch: -2})
	require.NoError(t, err)
	assert.Equal(t, "Puck", res.Voice)

	prompt := promptOf(t, gen.calls[0])
	assert.Equal(t, 3000, strings.Count(prompt, "静"))
	assert.Contains(t, prompt, "speaking rate 0.80x")
	assert.Contains(t, prompt, "pitch -2.0 semitones")
}

func TestSynthesizeSpeech_NoAudio(t *testing.T) {
	tests := []struct {
		name string
		gen  *fakeGenerator
	}{
		{"text only", &fakeGenerator{resp: textResponse("sorry", 1)}},
		{"no candidates", &fakeGenerator{resp: &genai.GenerateContentResponse{}}},
		{"request failed", &fakeGenerator{err: errors.New("boom")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewClientWithGenerator(tt.gen, Config{}, newTestLogger())
			_, err := c.SynthesizeSpeech(context.Background(), "hi", SpeechParams{Voice: "Kore"})
			assert.ErrorIs(t, err, core.ErrSynthesisFailure)
		})
	}
}

func TestTruncateRunes(t *testing.T) {
	assert.Equal(t, "abc", truncateRunes("abc", 5))
	assert.Equal(t, "ab", truncateRunes("abc", 2))
	assert.Equal(t, "冥想", truncateRunes("冥想引导", 2))
}
