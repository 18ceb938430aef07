// Package gemini 实现 Gemini Live 双向流式协议 (BidiGenerateContent)。
// 音频以 base64 PCM 分片收发，工具调用和转写以事件形式交给会话控制器。
package gemini

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/lisuiheng/zenflow-go/core"
	"github.com/lisuiheng/zenflow-go/pkg/interfaces"
	"github.com/lisuiheng/zenflow-go/protocols/websocket"
)

var _ core.LiveProvider = (*Provider)(nil)

const (
	DefaultModel   = "gemini-2.5-flash-native-audio-preview-12-2025"
	DefaultBaseURL = "wss://generativelanguage.googleapis.com/ws"
	DefaultVoice   = "Kore"

	defaultSendQueueSize    = 64
	defaultHandshakeTimeout = 15 * time.Second

	bidiPath = "/google.ai.generativelanguage.v1beta.GenerativeService.BidiGenerateContent"
)

type Option func(*Provider)

func WithModel(model string) Option {
	return func(p *Provider) { p.model = model }
}

// WithBaseURL 覆盖服务端地址，测试中指向本地服务
func WithBaseURL(baseURL string) Option {
	return func(p *Provider) { p.baseURL = strings.TrimRight(baseURL, "/") }
}

// WithVoice 设置会话未指定音色时使用的默认音色
func WithVoice(voice string) Option {
	return func(p *Provider) { p.voice = voice }
}

// WithSendQueueSize 设置出站队列长度，队列满时 SendAudio 返回 ErrSendQueueFull
func WithSendQueueSize(n int) Option {
	return func(p *Provider) {
		if n > 0 {
			p.queueSize = n
		}
	}
}

func WithHandshakeTimeout(d time.Duration) Option {
	return func(p *Provider) { p.handshakeTimeout = d }
}

// Provider 建立 Gemini Live 会话
type Provider struct {
	apiKey           string
	model            string
	baseURL          string
	voice            string
	queueSize        int
	handshakeTimeout time.Duration
	logger           *slog.Logger
}

func New(apiKey string, logger *slog.Logger, opts ...Option) *Provider {
	p := &Provider{
		apiKey:           apiKey,
		model:            DefaultModel,
		baseURL:          DefaultBaseURL,
		voice:            DefaultVoice,
		queueSize:        defaultSendQueueSize,
		handshakeTimeout: defaultHandshakeTimeout,
		logger:           logger,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

func (p *Provider) endpoint() string {
	return p.baseURL + bidiPath + "?key=" + url.QueryEscape(p.apiKey)
}

// Dial 建立连接并发送 setup 消息。setupComplete 以 EventReady 的形式送达
func (p *Provider) Dial(ctx context.Context, cfg core.SessionConfig) (core.LiveSession, error) {
	transport, err := websocket.NewWebSocketProtocol(websocket.Config{
		URL:              p.endpoint(),
		Header:           http.Header{"Content-Type": []string{"application/json"}},
		HandshakeTimeout: p.handshakeTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrTransport, err)
	}

	if err := transport.Connect(ctx); err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrTransport, err)
	}

	setup, err := p.setupPayload(cfg)
	if err != nil {
		_ = transport.Close()
		return nil, err
	}
	if err := transport.Send(setup, interfaces.MsgText); err != nil {
		_ = transport.Close()
		return nil, fmt.Errorf("%w: send setup: %w", core.ErrTransport, err)
	}

	p.logger.Info("Gemini live session connected", "model", p.model)
	return newSession(transport, p.queueSize, p.logger), nil
}

func (p *Provider) setupPayload(cfg core.SessionConfig) ([]byte, error) {
	voice := cfg.Voice
	if voice == "" {
		voice = p.voice
	}

	msg := setupMessage{
		Setup: setupConfig{
			Model: "models/" + p.model,
			GenerationConfig: generationConfig{
				ResponseModalities: []string{"AUDIO"},
			},
			InputAudioTranscription:  &struct{}{},
			OutputAudioTranscription: &struct{}{},
		},
	}
	if voice != "" {
		msg.Setup.GenerationConfig.SpeechConfig = &speechConfig{
			VoiceConfig: voiceConfig{PrebuiltVoiceConfig: prebuiltVoiceConfig{VoiceName: voice}},
		}
	}
	if cfg.Instructions != "" {
		msg.Setup.SystemInstruction = &systemInstruction{Parts: []part{{Text: cfg.Instructions}}}
	}
	if len(cfg.Tools) > 0 {
		decls := make([]functionDeclaration, len(cfg.Tools))
		for i, t := range cfg.Tools {
			decls[i] = functionDeclaration{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			}
		}
		msg.Setup.Tools = []tool{{FunctionDeclarations: decls}}
	}
	return marshal(msg)
}
