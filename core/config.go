package core

import (
	"errors"
	"fmt"

	"github.com/lisuiheng/zenflow-go/audio"
)

// Config 是客户端配置结构（与 YAML 文件结构对应）
type Config struct {
	Gemini struct {
		APIKey    string `mapstructure:"api_key"`
		BaseURL   string `mapstructure:"base_url"`
		LiveURL   string `mapstructure:"live_url"`
		TextModel string `mapstructure:"text_model"`
		TTSModel  string `mapstructure:"tts_model"`
		LiveModel string `mapstructure:"live_model"`
		Voice     string `mapstructure:"voice"`
	} `mapstructure:"gemini"`

	Audio AudioConfig `mapstructure:"audio"`

	Storage struct {
		Path     string `mapstructure:"path"`
		AudioDir string `mapstructure:"audio_dir"`
	} `mapstructure:"storage"`

	Logging struct {
		Level   string   `mapstructure:"level"`
		Outputs []string `mapstructure:"outputs"`
	} `mapstructure:"logging"`
}

// AudioConfig 实时会话的音频参数
type AudioConfig struct {
	InputSampleRate  int `mapstructure:"input_sample_rate"`
	OutputSampleRate int `mapstructure:"output_sample_rate"`
	FrameSize        int `mapstructure:"frame_size"`
}

// DefaultAudioConfig 采集 16kHz、播放 24kHz、每帧 4096 个样本
func DefaultAudioConfig() AudioConfig {
	return AudioConfig{
		InputSampleRate:  audio.InputSampleRate,
		OutputSampleRate: audio.OutputSampleRate,
		FrameSize:        audio.DefaultFrameSize,
	}
}

func (c AudioConfig) Validate() error {
	var errs []error
	if c.InputSampleRate <= 0 {
		errs = append(errs, fmt.Errorf("audio.input_sample_rate must be positive, got %d", c.InputSampleRate))
	}
	if c.OutputSampleRate <= 0 {
		errs = append(errs, fmt.Errorf("audio.output_sample_rate must be positive, got %d", c.OutputSampleRate))
	}
	if c.FrameSize <= 0 {
		errs = append(errs, fmt.Errorf("audio.frame_size must be positive, got %d", c.FrameSize))
	}
	return errors.Join(errs...)
}

func (c Config) Validate() error {
	var errs []error
	if c.Gemini.APIKey == "" {
		errs = append(errs, errors.New("gemini.api_key is required"))
	}
	if err := c.Audio.Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.Storage.Path == "" {
		errs = append(errs, errors.New("storage.path is required"))
	}
	return errors.Join(errs...)
}
