package audio

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"math"
)

const (
	InputSampleRate  = 16000 // 采集: 16kHz 单声道
	OutputSampleRate = 24000 // 播放: 24kHz 单声道
	DefaultFrameSize = 4096  // 每帧样本数
)

// EncodeBase64 将任意字节编码为可传输的文本
func EncodeBase64(b []byte) string {
	return base64.StdEncoding.EncodeToString(b)
}

// DecodeBase64 是 EncodeBase64 的逆操作
func DecodeBase64(s string) ([]byte, error) {
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: base64: %v", ErrDecode, err)
	}
	return b, nil
}

// PCM16ToFloat 将小端 int16 样本映射到 [-1.0, 1.0)，末尾不完整的字节被丢弃
func PCM16ToFloat(b []byte) []float32 {
	n := len(b) / 2
	samples := make([]float32, n)
	for i := 0; i < n; i++ {
		samples[i] = float32(int16(binary.LittleEndian.Uint16(b[i*2:]))) / 32768
	}
	return samples
}

// FloatToPCM16 将浮点样本转换为小端 int16 字节
func FloatToPCM16(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(floatToInt16(s)))
	}
	return out
}

// floatToInt16 先限幅再按正负不对称缩放，负数 ×32768，非负数 ×32767
func floatToInt16(s float32) int16 {
	v := float64(s)
	switch {
	case math.IsNaN(v):
		return 0
	case v < -1:
		v = -1
	case v > 1:
		v = 1
	}
	if v < 0 {
		return int16(v * 32768)
	}
	return int16(v * 32767)
}

// bytesToFloat32 解析 malgo F32 格式的小端采集数据
func bytesToFloat32(b []byte) []float32 {
	n := len(b) / 4
	samples := make([]float32, n)
	for i := 0; i < n; i++ {
		samples[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return samples
}

// EncodedFrame 是一帧 PCM16 音频的文本形式，附带 MIME 描述
type EncodedFrame struct {
	Data     string
	MIMEType string
}

// PCMMIMEType 返回形如 audio/pcm;rate=16000 的描述
func PCMMIMEType(sampleRate int) string {
	return fmt.Sprintf("audio/pcm;rate=%d", sampleRate)
}

// EncodeFrame 将浮点样本编码为可发送的帧
func EncodeFrame(samples []float32, sampleRate int) EncodedFrame {
	return EncodedFrame{
		Data:     EncodeBase64(FloatToPCM16(samples)),
		MIMEType: PCMMIMEType(sampleRate),
	}
}

// PCM 返回帧携带的原始 PCM16 字节
func (f EncodedFrame) PCM() ([]byte, error) {
	return DecodeBase64(f.Data)
}
