// Package guide 管理冥想引导稿的生成、合成和保存，并提供两种实时会话的配置
package guide

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/lisuiheng/zenflow-go/ai"
	"github.com/lisuiheng/zenflow-go/audio"
)

const audioFormat = "wav"

// Store 是引导稿和设置的持久化接口
type Store interface {
	List(ctx context.Context) ([]Guide, error)
	Get(ctx context.Context, id string) (Guide, error)
	Create(ctx context.Context, g Guide) error
	Update(ctx context.Context, g Guide) error
	Delete(ctx context.Context, id string) error
	GetSettings(ctx context.Context) (Settings, error)
	SaveSettings(ctx context.Context, s Settings) error
}

// Generator 提供一次性的文本生成和语音合成
type Generator interface {
	GenerateText(ctx context.Context, params GenerationParams) (ai.TextResult, error)
	SynthesizeSpeech(ctx context.Context, text string, params SpeechParams) (ai.SpeechResult, error)
}

type Service struct {
	store    Store
	gen      Generator
	audioDir string
	logger   *slog.Logger
	clock    func() time.Time
	newID    func() string
}

func NewService(store Store, gen Generator, audioDir string, logger *slog.Logger) *Service {
	if audioDir == "" {
		audioDir = "audio"
	}
	return &Service{
		store:    store,
		gen:      gen,
		audioDir: audioDir,
		logger:   logger,
		clock:    time.Now,
		newID:    uuid.NewString,
	}
}

// Create 生成引导稿并保存，生成失败时不写入任何记录
func (s *Service) Create(ctx context.Context, params GenerationParams) (Guide, error) {
	style := StyleCalm
	if params.Style != "" {
		var err error
		if style, err = ParseStyle(params.Style); err != nil {
			return Guide{}, err
		}
	}
	params.Style = string(style)
	if params.Duration == 0 {
		params.Duration = DefaultDuration
	}

	if params.Language == "" {
		settings, err := s.store.GetSettings(ctx)
		if err != nil {
			return Guide{}, err
		}
		params.Language = settings.Language.DisplayName()
	}

	result, err := s.gen.GenerateText(ctx, params)
	if err != nil {
		return Guide{}, err
	}

	g := Guide{
		ID:          s.newID(),
		Topic:       params.Topic,
		Language:    params.Language,
		Style:       style,
		Duration:    params.Duration,
		Model:       result.Model,
		Content:     result.Content,
		UsageTokens: result.UsageTokens,
		Status:      StatusSuccess,
		CreatedAt:   s.clock(),
		Audios:      []AudioMetadata{},
	}
	if err := s.store.Create(ctx, g); err != nil {
		return Guide{}, err
	}

	s.logger.Info("Guide created", "id", g.ID, "topic", g.Topic, "style", g.Style)
	return g, nil
}

func (s *Service) Get(ctx context.Context, id string) (Guide, error) {
	return s.store.Get(ctx, id)
}

// Synthesize 合成语音，写成 WAV 文件并追加到引导稿的音频列表
func (s *Service) Synthesize(ctx context.Context, id string, params SpeechParams) (AudioMetadata, error) {
	g, err := s.store.Get(ctx, id)
	if err != nil {
		return AudioMetadata{}, err
	}
	if strings.TrimSpace(g.Content) == "" {
		return AudioMetadata{}, ErrNoContent
	}

	speech, err := s.gen.SynthesizeSpeech(ctx, g.Content, params)
	if err != nil {
		return AudioMetadata{}, err
	}

	pcm, err := audio.DecodeBase64(speech.Data)
	if err != nil {
		return AudioMetadata{}, err
	}
	buf, err := audio.DecodeBuffer(pcm, speech.SampleRate, 1)
	if err != nil {
		return AudioMetadata{}, err
	}

	meta := AudioMetadata{
		ID:        s.newID(),
		VoiceID:   speech.Voice,
		Format:    audioFormat,
		Duration:  buf.Duration().Seconds(),
		CreatedAt: s.clock(),
	}
	meta.URL, err = s.writeWAV(meta.ID, buf)
	if err != nil {
		return AudioMetadata{}, err
	}

	g.Audios = append(g.Audios, meta)
	if err := s.store.Update(ctx, g); err != nil {
		if rmErr := os.Remove(meta.URL); rmErr != nil {
			s.logger.Warn("Failed to remove orphaned audio file", "path", meta.URL, "error", rmErr)
		}
		return AudioMetadata{}, err
	}

	s.logger.Info("Guide audio synthesized",
		"id", g.ID,
		"audio", meta.ID,
		"voice", meta.VoiceID,
		"duration", buf.Duration())
	return meta, nil
}

// writeWAV 先写临时文件再改名，避免留下不完整的文件
func (s *Service) writeWAV(audioID string, buf *audio.Buffer) (string, error) {
	if err := os.MkdirAll(s.audioDir, 0o755); err != nil {
		return "", fmt.Errorf("create audio dir: %w", err)
	}
	path := filepath.Join(s.audioDir, audioID+"."+audioFormat)

	tmp, err := os.CreateTemp(s.audioDir, audioID+"-*.tmp")
	if err != nil {
		return "", fmt.Errorf("create audio file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := audio.WriteWAV(tmp, buf); err != nil {
		tmp.Close()
		return "", fmt.Errorf("write wav: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("write wav: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("write wav: %w", err)
	}
	return path, nil
}

// Search 按主题或正文过滤，不区分大小写。空查询返回全部
func (s *Service) Search(ctx context.Context, query string) ([]Guide, error) {
	guides, err := s.store.List(ctx)
	if err != nil {
		return nil, err
	}
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return guides, nil
	}

	var matched []Guide
	for _, g := range guides {
		if strings.Contains(strings.ToLower(g.Topic), q) || strings.Contains(strings.ToLower(g.Content), q) {
			matched = append(matched, g)
		}
	}
	return matched, nil
}

// Delete 删除记录及其音频文件，文件删除失败只记录日志
func (s *Service) Delete(ctx context.Context, id string) error {
	g, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}

	for _, a := range g.Audios {
		if err := os.Remove(a.URL); err != nil && !errors.Is(err, os.ErrNotExist) {
			s.logger.Warn("Failed to remove audio file", "path", a.URL, "error", err)
		}
	}
	s.logger.Info("Guide deleted", "id", id, "audios", len(g.Audios))
	return nil
}

func (s *Service) Settings(ctx context.Context) (Settings, error) {
	return s.store.GetSettings(ctx)
}

func (s *Service) SaveSettings(ctx context.Context, settings Settings) error {
	switch settings.Language {
	case LanguageChinese, LanguageEnglish:
	default:
		return fmt.Errorf("unsupported language %q", settings.Language)
	}
	return s.store.SaveSettings(ctx, settings)
}
