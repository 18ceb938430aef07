package core

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/lisuiheng/zenflow-go/audio"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

type toolAck struct {
	id       string
	name     string
	response map[string]any
}

// fakeSession 由测试直接注入入站事件
type fakeSession struct {
	mu      sync.Mutex
	events  chan Event
	frames  []audio.EncodedFrame
	acks    []toolAck
	sendErr error
	closed  int
	done    bool
}

func newFakeSession() *fakeSession {
	return &fakeSession{events: make(chan Event, 16)}
}

func (s *fakeSession) SendAudio(frame audio.EncodedFrame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sendErr != nil {
		return s.sendErr
	}
	s.frames = append(s.frames, frame)
	return nil
}

func (s *fakeSession) SendToolResult(id, name string, response map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.acks = append(s.acks, toolAck{id: id, name: name, response: response})
	return nil
}

func (s *fakeSession) Events() <-chan Event { return s.events }

func (s *fakeSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed++
	return nil
}

func (s *fakeSession) emit(ev Event) { s.events <- ev }

// hangUp 模拟远端关闭连接
func (s *fakeSession) hangUp() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.done {
		s.done = true
		close(s.events)
	}
}

func (s *fakeSession) frameCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.frames)
}

func (s *fakeSession) ackList() []toolAck {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]toolAck(nil), s.acks...)
}

func (s *fakeSession) closeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

type fakeProvider struct {
	mu       sync.Mutex
	sessions []*fakeSession
	cfgs     []SessionConfig
	dialErr  error
	// dialing 非空时 Dial 先通知再阻塞到 ctx 取消
	dialing chan struct{}
}

func (p *fakeProvider) Dial(ctx context.Context, cfg SessionConfig) (LiveSession, error) {
	p.mu.Lock()
	dialing := p.dialing
	p.mu.Unlock()
	if dialing != nil {
		close(dialing)
		<-ctx.Done()
		return nil, ctx.Err()
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.dialErr != nil {
		return nil, p.dialErr
	}
	s := newFakeSession()
	p.sessions = append(p.sessions, s)
	p.cfgs = append(p.cfgs, cfg)
	return s, nil
}

func (p *fakeProvider) last() *fakeSession {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sessions[len(p.sessions)-1]
}

func (p *fakeProvider) dialCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.sessions)
}

type fakeMicrophone struct {
	mu      sync.Mutex
	openErr error
	onData  func([]float32)
	opened  int
	closed  int
}

func (m *fakeMicrophone) Open(cfg audio.MicConfig, onData func([]float32)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.openErr != nil {
		return m.openErr
	}
	m.onData = onData
	m.opened++
	return nil
}

func (m *fakeMicrophone) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed++
	return nil
}

func (m *fakeMicrophone) push(samples []float32) {
	m.mu.Lock()
	fn := m.onData
	m.mu.Unlock()
	if fn != nil {
		fn(samples)
	}
}

func (m *fakeMicrophone) closeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

type fakeVoice struct {
	mu      sync.Mutex
	onEnded func()
	stopped bool
}

func (v *fakeVoice) Stop() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.stopped = true
}

func (v *fakeVoice) isStopped() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.stopped
}

// fakeOutput 记录所有排期，播放结束由测试手动触发
type fakeOutput struct {
	mu     sync.Mutex
	now    time.Duration
	voices []*fakeVoice
	closed int
}

func (o *fakeOutput) Now() time.Duration {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.now
}

func (o *fakeOutput) Play(buf *audio.Buffer, at time.Duration, onEnded func()) audio.Voice {
	o.mu.Lock()
	defer o.mu.Unlock()
	v := &fakeVoice{onEnded: onEnded}
	o.voices = append(o.voices, v)
	return v
}

func (o *fakeOutput) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.closed++
	return nil
}

func (o *fakeOutput) voiceList() []*fakeVoice {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]*fakeVoice(nil), o.voices...)
}

// finishAll 让所有未停止的 Voice 自然结束
func (o *fakeOutput) finishAll() {
	for _, v := range o.voiceList() {
		if !v.isStopped() {
			v.onEnded()
		}
	}
}

func (o *fakeOutput) closeCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.closed
}
