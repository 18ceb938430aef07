package ai

import (
	"fmt"
	"strings"
)

const (
	// maxSpeechRunes 超出部分不会被合成
	maxSpeechRunes = 3000

	speechInstruction = "Say in a calm, meditative voice: "
)

// GenerationParams 描述一篇冥想引导稿
type GenerationParams struct {
	Topic    string
	Language string
	Style    string
	Duration int // 分钟
}

func (p GenerationParams) Validate() error {
	if strings.TrimSpace(p.Topic) == "" {
		return fmt.Errorf("topic is required")
	}
	if p.Duration <= 0 {
		return fmt.Errorf("duration must be positive, got %d", p.Duration)
	}
	return nil
}

// SpeechParams 语音合成参数，零值表示默认
type SpeechParams struct {
	Voice        string
	SpeakingRate float64 // 1.0 为正常语速
	Pitch        float64 // 0 为正常音高
}

func buildScriptPrompt(p GenerationParams) string {
	var b strings.Builder
	b.WriteString("Create a detailed meditation guide script.\n")
	fmt.Fprintf(&b, "Topic: %s\n", p.Topic)
	fmt.Fprintf(&b, "Language: %s\n", p.Language)
	fmt.Fprintf(&b, "Style: %s\n", p.Style)
	fmt.Fprintf(&b, "Estimated Duration: %d minutes\n\n", p.Duration)
	b.WriteString("The script should be structured with:\n")
	b.WriteString("1. An introduction to settle in.\n")
	b.WriteString("2. The core meditation practice (breathing, visualization, or affirmation).\n")
	b.WriteString("3. A gentle conclusion.\n\n")
	fmt.Fprintf(&b, "Use soothing, descriptive language appropriate for a %s meditation.", p.Style)
	return b.String()
}

func buildSpeechPrompt(text string, p SpeechParams) string {
	var b strings.Builder
	b.WriteString(speechInstruction)
	b.WriteString(truncateRunes(text, maxSpeechRunes))

	var hints []string
	if p.SpeakingRate > 0 && p.SpeakingRate != 1 {
		hints = append(hints, fmt.Sprintf("speaking rate %.2fx", p.SpeakingRate))
	}
	if p.Pitch != 0 {
		hints = append(hints, fmt.Sprintf("pitch %+.1f semitones", p.Pitch))
	}
	if len(hints) > 0 {
		fmt.Fprintf(&b, "\n\n(Delivery: %s.)", strings.Join(hints, ", "))
	}
	return b.String()
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
