package guide

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lisuiheng/zenflow-go/ai"
)

var (
	ErrNotFound     = errors.New("guide not found")
	ErrInvalidStyle = errors.New("invalid meditation style")
	ErrInvalidPlan  = errors.New("invalid meditation plan")
	ErrNoContent    = errors.New("guide has no content to synthesize")
)

// MeditationStyle 冥想风格
type MeditationStyle string

const (
	StyleCalm       MeditationStyle = "Calm"
	StyleEnergizing MeditationStyle = "Energizing"
	StyleSleep      MeditationStyle = "Sleep"
	StyleMindful    MeditationStyle = "Mindful"
	StyleBreathwork MeditationStyle = "Breathwork"
)

// Styles 按展示顺序列出所有风格
var Styles = []MeditationStyle{StyleCalm, StyleEnergizing, StyleSleep, StyleMindful, StyleBreathwork}

// ParseStyle 不区分大小写
func ParseStyle(s string) (MeditationStyle, error) {
	for _, style := range Styles {
		if strings.EqualFold(string(style), strings.TrimSpace(s)) {
			return style, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidStyle, s)
}

type Status string

const (
	StatusSuccess Status = "Success"
	StatusFailed  Status = "Failed"
	StatusPending Status = "Pending"
)

type Language string

const (
	LanguageEnglish Language = "en"
	LanguageChinese Language = "zh"
)

// AudioMetadata 描述一次合成得到的音频文件
type AudioMetadata struct {
	ID        string    `json:"id"`
	URL       string    `json:"url"` // 本地文件路径
	VoiceID   string    `json:"voiceId"`
	Format    string    `json:"format"`
	Duration  float64   `json:"duration,omitempty"` // 秒
	CreatedAt time.Time `json:"createdAt"`
}

// Guide 是一篇已生成的冥想引导稿
type Guide struct {
	ID          string
	Topic       string
	Language    string
	Style       MeditationStyle
	Duration    int // 分钟
	Model       string
	Content     string
	UsageTokens int
	Status      Status
	CreatedAt   time.Time
	Audios      []AudioMetadata
}

// Settings 应用设置，BaseURL 为空时使用默认服务地址
type Settings struct {
	Language Language
	BaseURL  string
}

func DefaultSettings() Settings {
	return Settings{Language: LanguageChinese}
}

type (
	GenerationParams = ai.GenerationParams
	SpeechParams     = ai.SpeechParams
)

// Plan 是规划会话通过工具调用给出的结果
type Plan struct {
	Topic    string
	Style    MeditationStyle
	Duration int
}

// DisplayName 是生成引导稿时写入提示词的语言名
func (l Language) DisplayName() string {
	if l == LanguageChinese {
		return "Chinese"
	}
	return "English"
}
