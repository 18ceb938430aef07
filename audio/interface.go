// audio/interface.go
package audio

import "time"

// FrameHandler 接收采集管线按顺序产生的编码帧
type FrameHandler func(frame EncodedFrame)

// MicConfig 麦克风采集参数
type MicConfig struct {
	SampleRate int
	Channels   int
	PeriodSize int // 设备回调周期(样本数)
}

// Microphone 定义音频采集设备接口
type Microphone interface {
	// Open 独占麦克风，onData 在设备线程上按时间顺序被调用
	Open(cfg MicConfig, onData func(samples []float32)) error
	Close() error
}

// Voice 是输出设备上一段已排期的播放
type Voice interface {
	// Stop 立即停止播放，被停止的 Voice 不会触发 onEnded
	Stop()
}

// Output 定义带时钟的音频输出设备接口
type Output interface {
	// Now 返回输出时钟的当前时间
	Now() time.Duration
	// Play 在时间 at 开始播放 buf。onEnded 必须异步调用，不能在 Play 内部调用
	Play(buf *Buffer, at time.Duration, onEnded func()) Voice
	Close() error
}
