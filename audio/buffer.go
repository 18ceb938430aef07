package audio

import (
	"errors"
	"fmt"
	"time"
)

// Buffer 是完全解码后的音频，构造后不可修改
type Buffer struct {
	sampleRate int
	data       [][]float32
}

// NewBuffer 以每声道样本创建缓冲区，样本会被复制
func NewBuffer(sampleRate int, channels [][]float32) (*Buffer, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("invalid sample rate: %d", sampleRate)
	}
	if len(channels) == 0 {
		return nil, errors.New("buffer needs at least one channel")
	}

	length := len(channels[0])
	data := make([][]float32, len(channels))
	for i, ch := range channels {
		if len(ch) != length {
			return nil, fmt.Errorf("channel %d has %d samples, want %d", i, len(ch), length)
		}
		data[i] = append([]float32(nil), ch...)
	}
	return &Buffer{sampleRate: sampleRate, data: data}, nil
}

// DecodeBuffer 将交错的 PCM16 数据解码为按声道分开的浮点样本
func DecodeBuffer(pcm []byte, sampleRate, channels int) (*Buffer, error) {
	if channels <= 0 {
		return nil, fmt.Errorf("%w: invalid channel count %d", ErrDecode, channels)
	}
	if sampleRate <= 0 {
		return nil, fmt.Errorf("%w: invalid sample rate %d", ErrDecode, sampleRate)
	}

	samples := PCM16ToFloat(pcm)
	frames := len(samples) / channels
	data := make([][]float32, channels)
	for ch := range data {
		data[ch] = make([]float32, frames)
		for i := 0; i < frames; i++ {
			data[ch][i] = samples[i*channels+ch]
		}
	}
	return &Buffer{sampleRate: sampleRate, data: data}, nil
}

func (b *Buffer) SampleRate() int { return b.sampleRate }
func (b *Buffer) Channels() int   { return len(b.data) }

// Len 返回每声道的样本数
func (b *Buffer) Len() int { return len(b.data[0]) }

// Sample 返回指定声道的第 i 个样本
func (b *Buffer) Sample(channel, i int) float32 { return b.data[channel][i] }

// Channel 返回声道数据的副本
func (b *Buffer) Channel(channel int) []float32 {
	return append([]float32(nil), b.data[channel]...)
}

// Duration 返回播放时长，向下截断到纳秒
func (b *Buffer) Duration() time.Duration {
	return time.Duration(b.Len()) * time.Second / time.Duration(b.sampleRate)
}
