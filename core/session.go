package core

import (
	"context"

	"github.com/lisuiheng/zenflow-go/audio"
)

// ToolDeclaration 描述会话中模型可以调用的函数
type ToolDeclaration struct {
	Name        string
	Description string
	Parameters  map[string]any // JSON Schema
}

// SessionConfig 一次实时会话的配置
type SessionConfig struct {
	Voice        string
	Instructions string
	Tools        []ToolDeclaration
	// ToolResult 是确认工具调用时回传给模型的结果文本
	ToolResult string
}

// LiveSession 是一条已建立的双向流式连接
type LiveSession interface {
	// SendAudio 不阻塞，帧按调用顺序发出
	SendAudio(frame audio.EncodedFrame) error
	SendToolResult(id, name string, response map[string]any) error
	// Events 在会话结束后关闭
	Events() <-chan Event
	// Close 可重复调用，关闭后仍在途的收发被丢弃
	Close() error
}

// LiveProvider 建立实时会话
type LiveProvider interface {
	Dial(ctx context.Context, cfg SessionConfig) (LiveSession, error)
}

// OutputFactory 为每次会话打开一个输出设备
type OutputFactory func(sampleRate, channels int) (audio.Output, error)
