package audio

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// Capture 将连续的麦克风信号切分为固定长度的帧，编码后交给处理函数
type Capture struct {
	mic        Microphone
	sampleRate int
	logger     *slog.Logger

	mu        sync.Mutex
	running   bool
	frameSize int
	pending   []float32
	handler   FrameHandler
}

func NewCapture(mic Microphone, sampleRate int, logger *slog.Logger) *Capture {
	return &Capture{
		mic:        mic,
		sampleRate: sampleRate,
		logger:     logger,
	}
}

// Start 打开麦克风并开始按 frameSize 个样本一帧地产出 EncodedFrame
func (c *Capture) Start(frameSize int, handler FrameHandler) error {
	if frameSize <= 0 {
		return fmt.Errorf("invalid frame size: %d", frameSize)
	}
	if handler == nil {
		return errors.New("frame handler cannot be nil")
	}

	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return ErrCaptureRunning
	}
	c.running = true
	c.frameSize = frameSize
	c.pending = make([]float32, 0, frameSize)
	c.handler = handler
	c.mu.Unlock()

	err := c.mic.Open(MicConfig{
		SampleRate: c.sampleRate,
		Channels:   1,
		PeriodSize: frameSize,
	}, c.onSamples)
	if err != nil {
		c.mu.Lock()
		c.reset()
		c.mu.Unlock()
		return err
	}

	c.logger.Info("Audio capture started",
		"sample_rate", c.sampleRate,
		"frame_size", frameSize)
	return nil
}

// Stop 释放麦克风，未满一帧的剩余样本被丢弃。未启动时调用无副作用
func (c *Capture) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.reset()
	c.mu.Unlock()

	if err := c.mic.Close(); err != nil {
		c.logger.Error("Failed to release microphone", "error", err)
	}
	c.logger.Info("Audio capture stopped")
}

// Running 报告采集是否在进行
func (c *Capture) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

func (c *Capture) reset() {
	c.running = false
	c.pending = nil
	c.handler = nil
}

func (c *Capture) onSamples(samples []float32) {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}

	var frames []EncodedFrame
	for len(samples) > 0 {
		n := min(c.frameSize-len(c.pending), len(samples))
		c.pending = append(c.pending, samples[:n]...)
		samples = samples[n:]
		if len(c.pending) == c.frameSize {
			frames = append(frames, EncodeFrame(c.pending, c.sampleRate))
			c.pending = c.pending[:0]
		}
	}
	handler := c.handler
	c.mu.Unlock()

	// 设备回调是串行的，锁外调用仍保持帧顺序
	for _, frame := range frames {
		if !c.Running() {
			return
		}
		handler(frame)
	}
}
