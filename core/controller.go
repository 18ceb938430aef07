package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/lisuiheng/zenflow-go/audio"
)

// State 表示实时会话状态
type State string

const (
	StateIdle       State = "idle"
	StateConnecting State = "connecting"
	StateListening  State = "listening"
	StateSpeaking   State = "speaking"
	StateDone       State = "done" // 已收到最终的结构化结果
	StateClosed     State = "closed"
	StateError      State = "error"
)

// streaming 状态下麦克风数据才会发往远端
func (s State) streaming() bool {
	return s == StateListening || s == StateSpeaking || s == StateDone
}

const defaultToolResult = "ok"

// ToolResult 是解码后的工具调用
type ToolResult struct {
	ID   string
	Name string
	Args map[string]any
}

// Callbacks 在控制器自己的 goroutine 上调用，回调里可以调用 Close
type Callbacks struct {
	OnState      func(state State)
	OnTranscript func(side TranscriptSide, text string)
	OnResult     func(result ToolResult)
	OnError      func(err error)
}

// Controller 管理一次实时语音会话的生命周期：采集 → 发送，接收 → 排期播放
type Controller struct {
	provider   LiveProvider
	mic        audio.Microphone
	openOutput OutputFactory
	audioCfg   AudioConfig
	logger     *slog.Logger

	mu          sync.Mutex
	state       State
	run         *liveRun
	last        *liveRun // 最近一次 Open 的会话，结束后仍用它通知回到 idle
	transcripts map[TranscriptSide]*strings.Builder
	result      *ToolResult
}

// liveRun 持有一次 Open 获得的全部资源，Close 时统一释放
type liveRun struct {
	cfg       SessionConfig
	callbacks Callbacks
	ctx       context.Context
	cancel    context.CancelFunc

	capture   *audio.Capture
	output    audio.Output
	scheduler *audio.Scheduler
	session   LiveSession
	closed    bool
}

// NewController 创建会话控制器
func NewController(provider LiveProvider, mic audio.Microphone, openOutput OutputFactory, cfg AudioConfig, log *slog.Logger) (*Controller, error) {
	if log == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if provider == nil || mic == nil || openOutput == nil {
		return nil, errors.New("provider, microphone and output factory are required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &Controller{
		provider:    provider,
		mic:         mic,
		openOutput:  openOutput,
		audioCfg:    cfg,
		logger:      log,
		state:       StateIdle,
		transcripts: newTranscripts(),
	}, nil
}

func newTranscripts() map[TranscriptSide]*strings.Builder {
	return map[TranscriptSide]*strings.Builder{
		TranscriptInput:  {},
		TranscriptOutput: {},
	}
}

// Open 获取输出设备和麦克风，建立远端会话。已有会话会先被关闭。
// 握手完成后状态由 connecting 进入 listening。
func (c *Controller) Open(ctx context.Context, cfg SessionConfig, cb Callbacks) error {
	if err := c.Close(); err != nil {
		c.logger.Warn("Failed to close previous session", "error", err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	r := &liveRun{cfg: cfg, callbacks: cb, ctx: runCtx, cancel: cancel}

	c.mu.Lock()
	c.run = r
	c.last = r
	c.transcripts = newTranscripts()
	c.result = nil
	notify := c.setStateLocked(r, StateConnecting)
	c.mu.Unlock()
	notify()

	output, err := c.openOutput(c.audioCfg.OutputSampleRate, 1)
	if err != nil {
		return c.abort(r, fmt.Errorf("open audio output: %w", err))
	}
	scheduler := audio.NewScheduler(output, c.audioCfg.OutputSampleRate, c.logger)
	scheduler.OnIdle(func() { c.onPlaybackIdle(r) })
	capture := audio.NewCapture(c.mic, c.audioCfg.InputSampleRate, c.logger)

	c.mu.Lock()
	r.output = output
	r.scheduler = scheduler
	r.capture = capture
	closed := r.closed
	c.mu.Unlock()
	if closed {
		c.release(r)
		return ErrSessionClosed
	}

	if err := capture.Start(c.audioCfg.FrameSize, c.forwardFrame(r)); err != nil {
		return c.abort(r, fmt.Errorf("start audio capture: %w", err))
	}

	// Close 会取消握手
	dialCtx, dialCancel := context.WithCancel(ctx)
	stop := context.AfterFunc(runCtx, dialCancel)
	session, err := c.provider.Dial(dialCtx, cfg)
	stop()
	dialCancel()
	if err != nil {
		return c.abort(r, fmt.Errorf("%w: open live session: %w", ErrTransport, err))
	}

	c.mu.Lock()
	r.session = session
	closed = r.closed
	c.mu.Unlock()
	if closed {
		c.release(r)
		return ErrSessionClosed
	}

	c.logger.Info("Live session opened", "voice", cfg.Voice, "tools", len(cfg.Tools))
	go c.dispatch(r, session)
	return nil
}

// Close 释放采集、播放和远端会话，状态回到 idle。任何状态下都可以调用。
func (c *Controller) Close() error {
	c.mu.Lock()
	r := c.run
	c.run = nil
	notify := func() {}
	if r != nil {
		r.closed = true
		notify = c.setStateLocked(r, StateIdle)
	} else if c.last != nil {
		// 远端关闭或出错后，run 已经脱离
		notify = c.setStateLocked(c.last, StateIdle)
	} else if c.state != StateIdle {
		c.logger.Info("State changed", "from", c.state, "to", StateIdle)
		c.state = StateIdle
	}
	c.mu.Unlock()

	if r != nil {
		c.release(r)
		c.logger.Info("Live session closed")
	}
	notify()
	return nil
}

// State 获取当前会话状态
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Transcript 返回当前(或最近一次)会话某一侧累积的转写文本
func (c *Controller) Transcript(side TranscriptSide) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if b, ok := c.transcripts[side]; ok {
		return b.String()
	}
	return ""
}

// Result 返回最近一次会话中收到的结构化结果
func (c *Controller) Result() (ToolResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.result == nil {
		return ToolResult{}, false
	}
	return *c.result, true
}

// setStateLocked 必须持有 mu，返回的函数在锁外调用以通知回调
func (c *Controller) setStateLocked(r *liveRun, newState State) func() {
	oldState := c.state
	if oldState == newState {
		return func() {}
	}
	c.state = newState
	c.logger.Info("State changed",
		"from", oldState,
		"to", newState)

	onState := r.callbacks.OnState
	if onState == nil {
		return func() {}
	}
	return func() { onState(newState) }
}

// transition 仅当 r 仍是当前会话且状态属于 from 时切换到 to
func (c *Controller) transition(r *liveRun, to State, from ...State) bool {
	c.mu.Lock()
	if !c.currentLocked(r) || (len(from) > 0 && !c.stateIn(from)) {
		c.mu.Unlock()
		return false
	}
	notify := c.setStateLocked(r, to)
	c.mu.Unlock()
	notify()
	return true
}

func (c *Controller) stateIn(states []State) bool {
	for _, s := range states {
		if c.state == s {
			return true
		}
	}
	return false
}

func (c *Controller) currentLocked(r *liveRun) bool {
	return c.run == r && !r.closed
}

func (c *Controller) current(r *liveRun) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentLocked(r)
}

// forwardFrame 把采集到的帧发往远端，握手完成前的帧被丢弃
func (c *Controller) forwardFrame(r *liveRun) audio.FrameHandler {
	return func(frame audio.EncodedFrame) {
		c.mu.Lock()
		session := r.session
		live := c.currentLocked(r) && session != nil && c.state.streaming()
		c.mu.Unlock()
		if !live {
			return
		}

		if err := session.SendAudio(frame); err != nil {
			if errors.Is(err, ErrSendQueueFull) {
				c.logger.Warn("Audio send queue full, dropping frame")
				return
			}
			// 不能在采集回调里同步停止采集
			go c.fail(r, fmt.Errorf("send audio: %w", err))
		}
	}
}

// dispatch 是会话唯一的事件处理 goroutine，事件按到达顺序处理
func (c *Controller) dispatch(r *liveRun, session LiveSession) {
	events := session.Events()
	for {
		select {
		case <-r.ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				c.handleRemoteClose(r)
				return
			}
			c.handleEvent(r, ev)
		}
	}
}

func (c *Controller) handleEvent(r *liveRun, ev Event) {
	if !c.current(r) {
		return
	}
	c.logger.Debug("Handling event", "kind", ev.Kind)

	switch ev.Kind {
	case EventReady:
		c.transition(r, StateListening, StateConnecting)
	case EventAudio:
		c.handleAudio(r, ev.Audio)
	case EventInterrupted:
		r.scheduler.InterruptAll()
		c.transition(r, StateListening, StateSpeaking)
	case EventTranscript:
		c.appendTranscript(r, ev.Side, ev.Text)
	case EventToolCall:
		c.handleToolCall(r, ev.ToolCall)
	case EventClosed:
		c.handleRemoteClose(r)
	case EventError:
		err := ev.Err
		if err == nil {
			err = errors.New("unknown session error")
		}
		if !errors.Is(err, ErrTransport) {
			err = fmt.Errorf("%w: %w", ErrTransport, err)
		}
		c.fail(r, err)
	default:
		c.logger.Warn("Unknown event kind received", "kind", ev.Kind)
	}
}

func (c *Controller) handleAudio(r *liveRun, frame audio.EncodedFrame) {
	if _, err := r.scheduler.Schedule(frame); err != nil {
		c.fail(r, fmt.Errorf("schedule audio: %w", err))
		return
	}
	c.transition(r, StateSpeaking, StateListening)
}

// onPlaybackIdle 在播放队列清空后回到 listening
func (c *Controller) onPlaybackIdle(r *liveRun) {
	c.mu.Lock()
	if !c.currentLocked(r) || c.state != StateSpeaking || r.scheduler.Active() > 0 {
		c.mu.Unlock()
		return
	}
	notify := c.setStateLocked(r, StateListening)
	c.mu.Unlock()
	notify()
}

func (c *Controller) appendTranscript(r *liveRun, side TranscriptSide, text string) {
	c.mu.Lock()
	b, ok := c.transcripts[side]
	if !c.currentLocked(r) || !ok {
		c.mu.Unlock()
		return
	}
	b.WriteString(text)
	full := b.String()
	c.mu.Unlock()

	if r.callbacks.OnTranscript != nil {
		r.callbacks.OnTranscript(side, full)
	}
}

func (c *Controller) handleToolCall(r *liveRun, call ToolCall) {
	var args map[string]any
	if len(call.Args) > 0 {
		if err := json.Unmarshal(call.Args, &args); err != nil {
			c.fail(r, fmt.Errorf("%w: tool call %s arguments: %v", ErrDecode, call.Name, err))
			return
		}
	}
	result := ToolResult{ID: call.ID, Name: call.Name, Args: args}

	c.mu.Lock()
	if !c.currentLocked(r) {
		c.mu.Unlock()
		return
	}
	c.result = &result
	notify := c.setStateLocked(r, StateDone)
	session := r.session
	c.mu.Unlock()

	c.logger.Info("Tool call received", "name", call.Name, "id", call.ID)
	notify()
	if r.callbacks.OnResult != nil {
		r.callbacks.OnResult(result)
	}

	message := r.cfg.ToolResult
	if message == "" {
		message = defaultToolResult
	}
	if err := session.SendToolResult(call.ID, call.Name, map[string]any{"result": message}); err != nil {
		c.fail(r, fmt.Errorf("%w: acknowledge tool call %s: %w", ErrTransport, call.ID, err))
	}
}

func (c *Controller) handleRemoteClose(r *liveRun) {
	c.mu.Lock()
	if !c.currentLocked(r) {
		c.mu.Unlock()
		return
	}
	r.closed = true
	c.run = nil
	notify := c.setStateLocked(r, StateClosed)
	c.mu.Unlock()

	c.release(r)
	c.logger.Info("Live session closed by remote")
	notify()
}

// fail 释放资源并进入 error 状态，不做自动重试
func (c *Controller) fail(r *liveRun, err error) {
	c.mu.Lock()
	if !c.currentLocked(r) {
		c.mu.Unlock()
		return
	}
	r.closed = true
	c.run = nil
	notify := c.setStateLocked(r, StateError)
	c.mu.Unlock()

	c.release(r)
	c.logger.Error("Live session failed", "error", err)
	notify()
	if r.callbacks.OnError != nil {
		r.callbacks.OnError(err)
	}
}

// abort 处理 Open 过程中的失败；如果期间已被 Close，只释放资源
func (c *Controller) abort(r *liveRun, err error) error {
	if !c.current(r) {
		c.release(r)
		return fmt.Errorf("%w: %w", ErrSessionClosed, err)
	}
	c.fail(r, err)
	return err
}

// release 可以多次调用，每个资源只关闭一次；Open 过程中被 Close 时由 Open 再次调用
func (c *Controller) release(r *liveRun) {
	r.cancel()

	c.mu.Lock()
	capture, scheduler := r.capture, r.scheduler
	output, session := r.output, r.session
	r.output, r.session = nil, nil
	c.mu.Unlock()

	if capture != nil {
		capture.Stop()
	}
	if scheduler != nil {
		scheduler.Reset()
	}
	if output != nil {
		if err := output.Close(); err != nil {
			c.logger.Error("Failed to close audio output", "error", err)
		}
	}
	if session != nil {
		if err := session.Close(); err != nil {
			c.logger.Error("Failed to close live session", "error", err)
		}
	}
}
