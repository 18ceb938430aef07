package audio

import (
	"log/slog"
	"sync"
	"time"
)

// Scheduler 将远端送来的音频帧首尾相接地排到同一条输出时间线上。
// 游标和活动集合只在 mu 保护下修改，读游标、计算起点、推进游标、登记 Voice 是一个原子步骤。
//
// 游标累加的是截断到纳秒的帧时长，每帧误差小于 1ns。24kHz 下一个样本约 41667ns，
// 输出端按最近样本取整，误差累积到半个样本需要两万帧以上。
type Scheduler struct {
	out        Output
	sampleRate int
	logger     *slog.Logger

	mu     sync.Mutex
	cursor time.Duration
	active map[uint64]Voice
	nextID uint64
	onIdle func()
}

func NewScheduler(out Output, sampleRate int, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		out:        out,
		sampleRate: sampleRate,
		logger:     logger,
		active:     make(map[uint64]Voice),
	}
}

// OnIdle 注册活动集合自然播放完毕时的回调
func (s *Scheduler) OnIdle(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onIdle = fn
}

// Schedule 解码一帧并排在时间线末尾，返回该帧的开始时间。
// 调用顺序即播放顺序，调用方需要串行调用。
func (s *Scheduler) Schedule(frame EncodedFrame) (time.Duration, error) {
	pcm, err := frame.PCM()
	if err != nil {
		return 0, err
	}
	buf, err := DecodeBuffer(pcm, s.sampleRate, 1)
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	start := max(s.cursor, s.out.Now())
	if buf.Len() == 0 {
		return start, nil
	}

	s.nextID++
	id := s.nextID
	s.active[id] = s.out.Play(buf, start, func() { s.finished(id) })
	s.cursor = start + buf.Duration()

	s.logger.Debug("Scheduled audio frame",
		"start", start,
		"duration", buf.Duration(),
		"active", len(s.active))
	return start, nil
}

func (s *Scheduler) finished(id uint64) {
	s.mu.Lock()
	if _, ok := s.active[id]; !ok {
		s.mu.Unlock()
		return
	}
	delete(s.active, id)
	idle := len(s.active) == 0
	onIdle := s.onIdle
	s.mu.Unlock()

	if idle && onIdle != nil {
		onIdle()
	}
}

// InterruptAll 立即停止所有 Voice，清空活动集合，并把游标拉回到当前时钟
func (s *Scheduler) InterruptAll() {
	s.mu.Lock()
	stopped := s.active
	s.active = make(map[uint64]Voice)
	s.cursor = s.out.Now()
	s.mu.Unlock()

	for _, v := range stopped {
		v.Stop()
	}
	if len(stopped) > 0 {
		s.logger.Debug("Interrupted playback", "stopped", len(stopped))
	}
}

// Reset 停止播放并把时间线归零
func (s *Scheduler) Reset() {
	s.InterruptAll()
	s.mu.Lock()
	s.cursor = 0
	s.mu.Unlock()
}

// Active 返回正在播放或等待播放的 Voice 数
func (s *Scheduler) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}
