// Package ai 封装一次性的文本生成和语音合成请求
package ai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"google.golang.org/genai"

	"github.com/lisuiheng/zenflow-go/audio"
	"github.com/lisuiheng/zenflow-go/core"
)

const (
	DefaultTextModel = "gemini-3-flash-preview"
	DefaultTTSModel  = "gemini-2.5-flash-preview-tts"
	DefaultVoice     = "Kore"

	// SpeechFormat 合成结果为 24kHz 单声道 PCM16
	SpeechFormat = "audio/pcm"

	textTemperature = 0.7
	textTopP        = 0.9
)

// Generator 是 genai.Models 中用到的部分
type Generator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

type Config struct {
	APIKey    string
	BaseURL   string // 为空时使用默认地址
	TextModel string
	TTSModel  string
	Voice     string
}

// TextResult 生成的引导稿
type TextResult struct {
	Content     string
	Model       string
	UsageTokens int
}

// SpeechResult 合成的语音，Data 为 base64 编码的 PCM16
type SpeechResult struct {
	Data       string
	SampleRate int
	Format     string
	Voice      string
}

type Client struct {
	models    Generator
	textModel string
	ttsModel  string
	voice     string
	logger    *slog.Logger
}

// NewClient 创建基于 Gemini API 的客户端
func NewClient(ctx context.Context, cfg Config, logger *slog.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("gemini api key is required")
	}
	gc, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      cfg.APIKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{BaseURL: cfg.BaseURL},
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return NewClientWithGenerator(gc.Models, cfg, logger), nil
}

func NewClientWithGenerator(models Generator, cfg Config, logger *slog.Logger) *Client {
	c := &Client{
		models:    models,
		textModel: cfg.TextModel,
		ttsModel:  cfg.TTSModel,
		voice:     cfg.Voice,
		logger:    logger,
	}
	if c.textModel == "" {
		c.textModel = DefaultTextModel
	}
	if c.ttsModel == "" {
		c.ttsModel = DefaultTTSModel
	}
	if c.voice == "" {
		c.voice = DefaultVoice
	}
	return c
}

// GenerateText 生成一篇引导稿
func (c *Client) GenerateText(ctx context.Context, params GenerationParams) (TextResult, error) {
	if err := params.Validate(); err != nil {
		return TextResult{}, err
	}

	resp, err := c.models.GenerateContent(ctx, c.textModel, genai.Text(buildScriptPrompt(params)), &genai.GenerateContentConfig{
		Temperature: genai.Ptr[float32](textTemperature),
		TopP:        genai.Ptr[float32](textTopP),
	})
	if err != nil {
		return TextResult{}, fmt.Errorf("generate text: %w", err)
	}

	result := TextResult{
		Content: strings.TrimSpace(resp.Text()),
		Model:   c.textModel,
	}
	if resp.UsageMetadata != nil {
		result.UsageTokens = int(resp.UsageMetadata.TotalTokenCount)
	}

	c.logger.Info("Generated meditation script",
		"topic", params.Topic,
		"model", result.Model,
		"tokens", result.UsageTokens)
	return result, nil
}

// SynthesizeSpeech 把文本合成为语音，只取前 3000 个字符
func (c *Client) SynthesizeSpeech(ctx context.Context, text string, params SpeechParams) (SpeechResult, error) {
	voice := params.Voice
	if voice == "" {
		voice = c.voice
	}

	contents := []*genai.Content{
		genai.NewContentFromText(buildSpeechPrompt(text, params), genai.RoleUser),
	}
	resp, err := c.models.GenerateContent(ctx, c.ttsModel, contents, &genai.GenerateContentConfig{
		ResponseModalities: []string{"AUDIO"},
		SpeechConfig: &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: voice},
			},
		},
	})
	if err != nil {
		return SpeechResult{}, fmt.Errorf("%w: %w", core.ErrSynthesisFailure, err)
	}

	data := firstInlineAudio(resp)
	if len(data) == 0 {
		return SpeechResult{}, core.ErrSynthesisFailure
	}

	c.logger.Info("Synthesized speech", "voice", voice, "bytes", len(data))
	return SpeechResult{
		Data:       audio.EncodeBase64(data),
		SampleRate: audio.OutputSampleRate,
		Format:     SpeechFormat,
		Voice:      voice,
	}, nil
}

func firstInlineAudio(resp *genai.GenerateContentResponse) []byte {
	if resp == nil {
		return nil
	}
	for _, cand := range resp.Candidates {
		if cand == nil || cand.Content == nil {
			continue
		}
		for _, p := range cand.Content.Parts {
			if p != nil && p.InlineData != nil && len(p.InlineData.Data) > 0 {
				return p.InlineData.Data
			}
		}
	}
	return nil
}
