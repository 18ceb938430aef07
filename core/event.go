package core

import (
	"encoding/json"
	"fmt"

	"github.com/lisuiheng/zenflow-go/audio"
)

// EventKind 区分实时会话的入站事件
type EventKind int

const (
	EventReady       EventKind = iota // 握手完成
	EventAudio                        // 一帧模型输出音频
	EventTranscript                   // 增量转写文本
	EventToolCall                     // 结构化工具调用
	EventInterrupted                  // 远端输出被新的输入打断
	EventClosed                       // 远端关闭会话
	EventError                        // 传输或协议错误
)

func (k EventKind) String() string {
	switch k {
	case EventReady:
		return "ready"
	case EventAudio:
		return "audio"
	case EventTranscript:
		return "transcript"
	case EventToolCall:
		return "tool_call"
	case EventInterrupted:
		return "interrupted"
	case EventClosed:
		return "closed"
	case EventError:
		return "error"
	default:
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
}

// TranscriptSide 转写属于用户输入还是模型输出
type TranscriptSide string

const (
	TranscriptInput  TranscriptSide = "input"
	TranscriptOutput TranscriptSide = "output"
)

// ToolCall 是远端请求调用的函数
type ToolCall struct {
	ID   string
	Name string
	Args json.RawMessage
}

// Event 只有与 Kind 对应的字段有效
type Event struct {
	Kind     EventKind
	Audio    audio.EncodedFrame
	Side     TranscriptSide
	Text     string
	ToolCall ToolCall
	Err      error
}
