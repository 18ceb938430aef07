package audio

import (
	"io"
	"log/slog"
	"sync"
	"time"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

// fakeOutput 是手动推进时钟的输出设备
type fakeOutput struct {
	mu     sync.Mutex
	now    time.Duration
	voices []*fakeVoice
}

type fakeVoice struct {
	buf     *Buffer
	at      time.Duration
	onEnded func()
	stopped bool
}

func (v *fakeVoice) Stop() { v.stopped = true }

func (o *fakeOutput) Now() time.Duration {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.now
}

func (o *fakeOutput) Play(buf *Buffer, at time.Duration, onEnded func()) Voice {
	o.mu.Lock()
	defer o.mu.Unlock()
	v := &fakeVoice{buf: buf, at: at, onEnded: onEnded}
	o.voices = append(o.voices, v)
	return v
}

func (o *fakeOutput) Close() error { return nil }

func (o *fakeOutput) advance(d time.Duration) {
	o.mu.Lock()
	o.now += d
	o.mu.Unlock()
}

// fakeMicrophone 允许测试直接推送样本
type fakeMicrophone struct {
	mu      sync.Mutex
	openErr error
	cfg     MicConfig
	onData  func([]float32)
	opened  int
	closed  int
}

func (m *fakeMicrophone) Open(cfg MicConfig, onData func([]float32)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.openErr != nil {
		return m.openErr
	}
	m.cfg = cfg
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
	fn(samples)
}
