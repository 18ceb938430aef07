package audio

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gordonklaus/portaudio"
)

var _ Output = (*PCMPlayer)(nil)

// PCMPlayer PortAudio实现的输出设备，在按样本计数的时间线上混合已排期的 Voice
type PCMPlayer struct {
	sampleRate int
	channels   int
	logger     *slog.Logger
	stream     *portaudio.Stream
	ended      chan func()
	done       chan struct{}
	closeOnce  sync.Once

	mu       sync.Mutex
	position int64 // 已渲染的帧数，即输出时钟
	voices   map[uint64]*voice
	nextID   uint64
	closed   bool
}

type voice struct {
	id      uint64
	player  *PCMPlayer
	buf     *Buffer
	start   int64
	onEnded func()
}

func (v *voice) Stop() {
	v.player.mu.Lock()
	delete(v.player.voices, v.id)
	v.player.mu.Unlock()
}

// NewPCMPlayer 创建并启动 PortAudio 输出流
func NewPCMPlayer(sampleRate, channels int, logger *slog.Logger) (*PCMPlayer, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("%w: failed to initialize PortAudio: %v", ErrDeviceUnavailable, err)
	}

	player := &PCMPlayer{
		sampleRate: sampleRate,
		channels:   channels,
		logger:     logger,
		ended:      make(chan func(), 64),
		done:       make(chan struct{}),
		voices:     make(map[uint64]*voice),
	}

	stream, err := portaudio.OpenDefaultStream(
		0,                   // 输入通道数(0表示不录音)
		channels,            // 输出通道数
		float64(sampleRate), // 采样率
		0,                   // 让PortAudio选择最佳缓冲区大小
		player.render,
	)
	if err != nil {
		portaudio.Terminate()
		return nil, fmt.Errorf("%w: failed to open audio stream: %v", ErrDeviceUnavailable, err)
	}
	player.stream = stream

	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return nil, fmt.Errorf("%w: failed to start audio stream: %v", ErrDeviceUnavailable, err)
	}

	go player.notifyLoop()
	return player, nil
}

// render 是 PortAudio 回调，out 按声道分开
func (p *PCMPlayer) render(out [][]float32) {
	for ch := range out {
		clear(out[ch])
	}
	if len(out) == 0 {
		return
	}
	frames := int64(len(out[0]))

	p.mu.Lock()
	var finished []func()
	for id, v := range p.voices {
		mixVoice(out, v, p.position, frames)
		if p.position+frames >= v.start+int64(v.buf.Len()) {
			delete(p.voices, id)
			if v.onEnded != nil {
				finished = append(finished, v.onEnded)
			}
		}
	}
	p.position += frames
	p.mu.Unlock()

	for _, fn := range finished {
		select {
		case p.ended <- fn:
		default:
			go fn()
		}
	}
}

// mixVoice 将 v 落在 [position, position+frames) 内的部分叠加到 out
func mixVoice(out [][]float32, v *voice, position, frames int64) {
	from := max(v.start-position, 0)
	for i := from; i < frames; i++ {
		idx := int(position + i - v.start)
		if idx >= v.buf.Len() {
			return
		}
		for ch := range out {
			src := min(ch, v.buf.Channels()-1)
			out[ch][i] += v.buf.Sample(src, idx)
		}
	}
}

// notifyLoop 在音频线程之外执行播放结束回调
func (p *PCMPlayer) notifyLoop() {
	for {
		select {
		case fn := <-p.ended:
			fn()
		case <-p.done:
			return
		}
	}
}

func (p *PCMPlayer) Now() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.framesToDuration(p.position)
}

func (p *PCMPlayer) Play(buf *Buffer, at time.Duration, onEnded func()) Voice {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.nextID++
	v := &voice{
		id:      p.nextID,
		player:  p,
		buf:     buf,
		start:   max(p.durationToFrames(at), p.position),
		onEnded: onEnded,
	}
	if p.closed {
		return v
	}
	p.voices[v.id] = v
	return v
}

func (p *PCMPlayer) framesToDuration(frames int64) time.Duration {
	return time.Duration(frames) * time.Second / time.Duration(p.sampleRate)
}

func (p *PCMPlayer) durationToFrames(d time.Duration) int64 {
	// 四舍五入，避免累计的纳秒截断在相邻帧之间留下一个样本的空隙
	return (int64(d)*int64(p.sampleRate) + int64(time.Second)/2) / int64(time.Second)
}

func (p *PCMPlayer) Close() error {
	var err error
	p.closeOnce.Do(func() {
		p.mu.Lock()
		p.closed = true
		clear(p.voices)
		p.mu.Unlock()
		close(p.done)

		// 停止并关闭音频流
		if stopErr := p.stream.Stop(); stopErr != nil {
			p.logger.Error("failed to stop audio stream", "error", stopErr)
		}
		if closeErr := p.stream.Close(); closeErr != nil {
			p.logger.Error("failed to close audio stream", "error", closeErr)
			err = closeErr
		}

		// 终止PortAudio
		portaudio.Terminate()
	})
	return err
}
