package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/lisuiheng/zenflow-go/audio"
	"github.com/lisuiheng/zenflow-go/core"
	"github.com/lisuiheng/zenflow-go/pkg/interfaces"
)

var _ core.LiveSession = (*session)(nil)

var errRemoteClosed = errors.New("remote closed the session")

// session 由读、写两个 goroutine 驱动，任一出错即结束整个会话
type session struct {
	transport interfaces.TransportProtocol
	logger    *slog.Logger

	outbound chan []byte
	events   chan core.Event

	// ctx 只在本地 Close 时取消，gctx 在任一循环结束时取消
	ctx    context.Context
	cancel context.CancelFunc
	group  *errgroup.Group
	gctx   context.Context

	closeOnce sync.Once
}

func newSession(transport interfaces.TransportProtocol, queueSize int, logger *slog.Logger) *session {
	ctx, cancel := context.WithCancel(context.Background())
	group, gctx := errgroup.WithContext(ctx)

	s := &session{
		transport: transport,
		logger:    logger,
		outbound:  make(chan []byte, queueSize),
		events:    make(chan core.Event, 64),
		ctx:       ctx,
		cancel:    cancel,
		group:     group,
		gctx:      gctx,
	}

	group.Go(s.readLoop)
	group.Go(s.writeLoop)
	go s.supervise()
	return s
}

func (s *session) supervise() {
	err := s.group.Wait()
	switch {
	case s.ctx.Err() != nil:
		// 本地关闭，不再上报
	case errors.Is(err, errRemoteClosed):
		s.logger.Info("Gemini live session closed by remote")
		s.emit(core.Event{Kind: core.EventClosed})
	case err != nil:
		s.logger.Error("Gemini live session failed", "error", err)
		s.emit(core.Event{Kind: core.EventError, Err: err})
	}
	_ = s.transport.Close()
	close(s.events)
}

func (s *session) writeLoop() error {
	for {
		select {
		case <-s.gctx.Done():
			return nil
		case data := <-s.outbound:
			if err := s.transport.Send(data, interfaces.MsgText); err != nil {
				// 关闭连接以结束读循环
				_ = s.transport.Close()
				return fmt.Errorf("%w: write: %w", core.ErrTransport, err)
			}
		}
	}
}

func (s *session) readLoop() error {
	messages := s.transport.Receive()
	for {
		select {
		case <-s.gctx.Done():
			return nil
		case msg, ok := <-messages:
			if !ok {
				if err := s.transport.Err(); err != nil {
					return fmt.Errorf("%w: read: %w", core.ErrTransport, err)
				}
				return errRemoteClosed
			}
			if msg.Type == interfaces.MsgControl {
				continue
			}
			if err := s.handleMessage(msg.Payload); err != nil {
				return err
			}
		}
	}
}

// handleMessage 按 音频、打断、输入转写、输出转写、工具调用 的顺序产生事件
func (s *session) handleMessage(payload []byte) error {
	var msg serverMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		s.logger.Warn("Skipping malformed server message", "error", err, "size", len(payload))
		return nil
	}

	if msg.Error != nil {
		return fmt.Errorf("%w: server error %d %s: %s",
			core.ErrTransport, msg.Error.Code, msg.Error.Status, msg.Error.Message)
	}

	if msg.SetupComplete != nil {
		s.emit(core.Event{Kind: core.EventReady})
	}

	if sc := msg.ServerContent; sc != nil {
		if sc.ModelTurn != nil {
			for _, p := range sc.ModelTurn.Parts {
				if p.InlineData == nil || p.InlineData.Data == "" {
					continue
				}
				s.emit(core.Event{Kind: core.EventAudio, Audio: audio.EncodedFrame{
					Data:     p.InlineData.Data,
					MIMEType: p.InlineData.MIMEType,
				}})
			}
		}
		if sc.Interrupted {
			s.emit(core.Event{Kind: core.EventInterrupted})
		}
		if sc.InputTranscription != nil && sc.InputTranscription.Text != "" {
			s.emit(core.Event{Kind: core.EventTranscript, Side: core.TranscriptInput, Text: sc.InputTranscription.Text})
		}
		if sc.OutputTranscription != nil && sc.OutputTranscription.Text != "" {
			s.emit(core.Event{Kind: core.EventTranscript, Side: core.TranscriptOutput, Text: sc.OutputTranscription.Text})
		}
	}

	if msg.ToolCall != nil {
		for _, fc := range msg.ToolCall.FunctionCalls {
			s.emit(core.Event{Kind: core.EventToolCall, ToolCall: core.ToolCall{
				ID:   fc.ID,
				Name: fc.Name,
				Args: fc.Args,
			}})
		}
	}
	return nil
}

// emit 在本地关闭后丢弃事件
func (s *session) emit(ev core.Event) {
	select {
	case s.events <- ev:
	case <-s.ctx.Done():
	}
}

func (s *session) SendAudio(frame audio.EncodedFrame) error {
	data, err := marshal(realtimeInputMessage{
		RealtimeInput: realtimeInput{
			MediaChunks: []inlineData{{MIMEType: frame.MIMEType, Data: frame.Data}},
		},
	})
	if err != nil {
		return err
	}
	if err := s.live(); err != nil {
		return err
	}

	select {
	case s.outbound <- data:
		return nil
	default:
		return core.ErrSendQueueFull
	}
}

// SendToolResult 等待队列空位，工具确认不能丢
func (s *session) SendToolResult(id, name string, response map[string]any) error {
	data, err := marshal(toolResponseMessage{
		ToolResponse: toolResponse{
			FunctionResponses: []functionResponse{{ID: id, Name: name, Response: response}},
		},
	})
	if err != nil {
		return err
	}
	if err := s.live(); err != nil {
		return err
	}

	select {
	case s.outbound <- data:
		return nil
	case <-s.gctx.Done():
		return core.ErrSessionClosed
	}
}

func (s *session) live() error {
	if s.gctx.Err() != nil {
		return core.ErrSessionClosed
	}
	return nil
}

func (s *session) Events() <-chan core.Event {
	return s.events
}

// Close 可重复调用
func (s *session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.cancel()
		err = s.transport.Close()
	})
	return err
}

func marshal(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("gemini: marshal: %w", err)
	}
	return data, nil
}
