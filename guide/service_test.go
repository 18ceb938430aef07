package guide

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lisuiheng/zenflow-go/ai"
	"github.com/lisuiheng/zenflow-go/audio"
	"github.com/lisuiheng/zenflow-go/core"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

// memStore 是内存中的 Store
type memStore struct {
	guides    map[string]Guide
	settings  *Settings
	updateErr error
}

func newMemStore() *memStore {
	return &memStore{guides: make(map[string]Guide)}
}

func (m *memStore) List(ctx context.Context) ([]Guide, error) {
	var out []Guide
	for _, g := range m.guides {
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *memStore) Get(ctx context.Context, id string) (Guide, error) {
	g, ok := m.guides[id]
	if !ok {
		return Guide{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return g, nil
}

func (m *memStore) Create(ctx context.Context, g Guide) error {
	if _, ok := m.guides[g.ID]; ok {
		return errors.New("duplicate id")
	}
	m.guides[g.ID] = g
	return nil
}

func (m *memStore) Update(ctx context.Context, g Guide) error {
	if m.updateErr != nil {
		return m.updateErr
	}
	if _, ok := m.guides[g.ID]; !ok {
		return ErrNotFound
	}
	m.guides[g.ID] = g
	return nil
}

func (m *memStore) Delete(ctx context.Context, id string) error {
	if _, ok := m.guides[id]; !ok {
		return ErrNotFound
	}
	delete(m.guides, id)
	return nil
}

func (m *memStore) GetSettings(ctx context.Context) (Settings, error) {
	if m.settings == nil {
		return DefaultSettings(), nil
	}
	return *m.settings, nil
}

func (m *memStore) SaveSettings(ctx context.Context, s Settings) error {
	m.settings = &s
	return nil
}

type fakeGenerator struct {
	textParams []GenerationParams
	speechText []string
	textErr    error
	speech     ai.SpeechResult
	speechErr  error
}

func (f *fakeGenerator) GenerateText(ctx context.Context, params GenerationParams) (ai.TextResult, error) {
	f.textParams = append(f.textParams, params)
	if f.textErr != nil {
		return ai.TextResult{}, f.textErr
	}
	return ai.TextResult{Content: "Breathe in. Breathe out.", Model: "text-model", UsageTokens: 42}, nil
}

func (f *fakeGenerator) SynthesizeSpeech(ctx context.Context, text string, params SpeechParams) (ai.SpeechResult, error) {
	f.speechText = append(f.speechText, text)
	if f.speechErr != nil {
		return ai.SpeechResult{}, f.speechErr
	}
	return f.speech, nil
}

type testService struct {
	*Service
	store *memStore
	gen   *fakeGenerator
	dir   string
}

func newTestService(t *testing.T) *testService {
	t.Helper()
	store := newMemStore()
	gen := &fakeGenerator{}
	dir := filepath.Join(t.TempDir(), "audio")
	svc := NewService(store, gen, dir, newTestLogger())

	n := 0
	svc.newID = func() string {
		n++
		return fmt.Sprintf("id-%d", n)
	}
	now := time.Date(2026, 5, 1, 7, 0, 0, 0, time.UTC)
	svc.clock = func() time.Time {
		now = now.Add(time.Second)
		return now
	}
	return &testService{Service: svc, store: store, gen: gen, dir: dir}
}

func TestService_Create(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	g, err := s.Create(ctx, GenerationParams{Topic: "Ocean waves", Style: "sleep", Duration: 15})
	require.NoError(t, err)
	assert.Equal(t, "id-1", g.ID)
	assert.Equal(t, StyleSleep, g.Style)
	assert.Equal(t, "Chinese", g.Language)
	assert.Equal(t, "text-model", g.Model)
	assert.Equal(t, 42, g.UsageTokens)
	assert.Equal(t, StatusSuccess, g.Status)
	assert.Empty(t, g.Audios)

	require.Len(t, s.gen.textParams, 1)
	assert.Equal(t, "Sleep", s.gen.textParams[0].Style)
	assert.Equal(t, "Chinese", s.gen.textParams[0].Language)

	stored, err := s.Get(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, g.Content, stored.Content)
}

func TestService_CreateDefaults(t *testing.T) {
	s := newTestService(t)
	require.NoError(t, s.SaveSettings(context.Background(), Settings{Language: LanguageEnglish}))

	g, err := s.Create(context.Background(), GenerationParams{Topic: "Focus"})
	require.NoError(t, err)
	assert.Equal(t, StyleCalm, g.Style)
	assert.Equal(t, DefaultDuration, g.Duration)
	assert.Equal(t, "English", g.Language)
}

func TestService_CreateFailures(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	_, err := s.Create(ctx, GenerationParams{Topic: "x", Style: "Chaotic"})
	assert.ErrorIs(t, err, ErrInvalidStyle)

	s.gen.textErr = errors.New("quota")
	_, err = s.Create(ctx, GenerationParams{Topic: "x"})
	assert.ErrorContains(t, err, "quota")
	assert.Empty(t, s.store.guides)
}

func TestService_Synthesize(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	g, err := s.Create(ctx, GenerationParams{Topic: "Body scan"})
	require.NoError(t, err)

	// 0.5 秒的 24kHz 音频
	samples := make([]float32, 12000)
	s.gen.speech = ai.SpeechResult{
		Data:       audio.EncodeBase64(audio.FloatToPCM16(samples)),
		SampleRate: 24000,
		Format:     ai.SpeechFormat,
		Voice:      "Kore",
	}

	meta, err := s.Synthesize(ctx, g.ID, SpeechParams{})
	require.NoError(t, err)
	assert.Equal(t, "wav", meta.Format)
	assert.Equal(t, "Kore", meta.VoiceID)
	assert.InDelta(t, 0.5, meta.Duration, 1e-9)
	assert.Equal(t, filepath.Join(s.dir, meta.ID+".wav"), meta.URL)

	data, err := os.ReadFile(meta.URL)
	require.NoError(t, err)
	assert.Len(t, data, 44+12000*2)
	assert.Equal(t, "RIFF", string(data[0:4]))

	stored, err := s.Get(ctx, g.ID)
	require.NoError(t, err)
	require.Len(t, stored.Audios, 1)
	assert.Equal(t, meta.ID, stored.Audios[0].ID)

	// 第二次合成追加在末尾
	meta2, err := s.Synthesize(ctx, g.ID, SpeechParams{Voice: "Puck"})
	require.NoError(t, err)
	stored, _ = s.Get(ctx, g.ID)
	require.Len(t, stored.Audios, 2)
	assert.Equal(t, meta2.ID, stored.Audios[1].ID)
	assert.Equal(t, []string{g.Content, g.Content}, s.gen.speechText)

	entries, err := os.ReadDir(s.dir)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestService_SynthesizeFailures(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	_, err := s.Synthesize(ctx, "missing", SpeechParams{})
	assert.ErrorIs(t, err, ErrNotFound)

	g, err := s.Create(ctx, GenerationParams{Topic: "x"})
	require.NoError(t, err)

	s.gen.speechErr = core.ErrSynthesisFailure
	_, err = s.Synthesize(ctx, g.ID, SpeechParams{})
	assert.ErrorIs(t, err, core.ErrSynthesisFailure)

	s.gen.speechErr = nil
	s.gen.speech = ai.SpeechResult{Data: "%%%", SampleRate: 24000}
	_, err = s.Synthesize(ctx, g.ID, SpeechParams{})
	assert.ErrorIs(t, err, audio.ErrDecode)

	// 更新失败时不留下音频文件
	s.gen.speech = ai.SpeechResult{Data: audio.EncodeBase64([]byte{0, 0, 0, 0}), SampleRate: 24000, Voice: "Kore"}
	s.store.updateErr = errors.New("disk full")
	_, err = s.Synthesize(ctx, g.ID, SpeechParams{})
	assert.ErrorContains(t, err, "disk full")
	entries, _ := os.ReadDir(s.dir)
	assert.Empty(t, entries)

	stored, _ := s.Get(ctx, g.ID)
	assert.Empty(t, stored.Audios)
}

func TestService_SynthesizeEmptyContent(t *testing.T) {
	s := newTestService(t)
	s.store.guides["g"] = Guide{ID: "g", Content: "  "}

	_, err := s.Synthesize(context.Background(), "g", SpeechParams{})
	assert.ErrorIs(t, err, ErrNoContent)
	assert.Empty(t, s.gen.speechText)
}

func TestService_Search(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	s.store.guides["a"] = Guide{ID: "a", Topic: "Deep Sleep", Content: "waves", CreatedAt: time.Unix(1, 0)}
	s.store.guides["b"] = Guide{ID: "b", Topic: "Morning", Content: "Gentle SUNLIGHT", CreatedAt: time.Unix(2, 0)}
	s.store.guides["c"] = Guide{ID: "c", Topic: "Work break", Content: "shoulders", CreatedAt: time.Unix(3, 0)}

	tests := []struct {
		query string
		want  []string
	}{
		{"", []string{"c", "b", "a"}},
		{"sleep", []string{"a"}},
		{"sunlight", []string{"b"}},
		{"  WAVES ", []string{"a"}},
		{"nothing", nil},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			got, err := s.Search(ctx, tt.query)
			require.NoError(t, err)
			var ids []string
			for _, g := range got {
				ids = append(ids, g.ID)
			}
			assert.Equal(t, tt.want, ids)
		})
	}
}

func TestService_Delete(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	g, err := s.Create(ctx, GenerationParams{Topic: "x"})
	require.NoError(t, err)
	s.gen.speech = ai.SpeechResult{Data: audio.EncodeBase64([]byte{0, 0}), SampleRate: 24000, Voice: "Kore"}
	meta, err := s.Synthesize(ctx, g.ID, SpeechParams{})
	require.NoError(t, err)

	require.NoError(t, s.Delete(ctx, g.ID))
	_, err = os.Stat(meta.URL)
	assert.True(t, errors.Is(err, os.ErrNotExist))
	assert.ErrorIs(t, s.Delete(ctx, g.ID), ErrNotFound)
}

func TestService_Settings(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	got, err := s.Settings(ctx)
	require.NoError(t, err)
	assert.Equal(t, LanguageChinese, got.Language)

	assert.Error(t, s.SaveSettings(ctx, Settings{Language: "fr"}))
	require.NoError(t, s.SaveSettings(ctx, Settings{Language: LanguageEnglish, BaseURL: "https://proxy"}))
	got, err = s.Settings(ctx)
	require.NoError(t, err)
	assert.Equal(t, "https://proxy", got.BaseURL)
}
