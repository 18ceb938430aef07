package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

const wavHeaderSize = 44

// wavHeader 标准 PCM WAV 文件头
type wavHeader struct {
	RiffMark      [4]byte // "RIFF"
	FileSize      uint32  // 文件总大小-8
	WaveMark      [4]byte // "WAVE"
	FmtMark       [4]byte // "fmt "
	FmtSize       uint32  // fmt chunk大小(16)
	AudioFormat   uint16  // 1=PCM
	NumChannels   uint16
	SampleRate    uint32
	ByteRate      uint32  // SampleRate * NumChannels * BitsPerSample/8
	BlockAlign    uint16  // NumChannels * BitsPerSample/8
	BitsPerSample uint16  // 16
	DataMark      [4]byte // "data"
	DataSize      uint32  // 原始数据大小
}

func newWavHeader(sampleRate, channels, frames int) wavHeader {
	header := wavHeader{
		RiffMark:      [4]byte{'R', 'I', 'F', 'F'},
		WaveMark:      [4]byte{'W', 'A', 'V', 'E'},
		FmtMark:       [4]byte{'f', 'm', 't', ' '},
		FmtSize:       16,
		AudioFormat:   1, // PCM
		NumChannels:   uint16(channels),
		SampleRate:    uint32(sampleRate),
		BitsPerSample: 16,
		DataMark:      [4]byte{'d', 'a', 't', 'a'},
	}
	header.ByteRate = header.SampleRate * uint32(header.NumChannels) * uint32(header.BitsPerSample) / 8
	header.BlockAlign = header.NumChannels * header.BitsPerSample / 8
	header.DataSize = uint32(frames) * uint32(header.BlockAlign)
	header.FileSize = wavHeaderSize - 8 + header.DataSize
	return header
}

// EncodeWAV 将缓冲区序列化为完整的 WAV 文件
func EncodeWAV(buf *Buffer) []byte {
	var out bytes.Buffer
	out.Grow(wavHeaderSize + buf.Len()*buf.Channels()*2)
	_ = WriteWAV(&out, buf) // bytes.Buffer 写入不会失败
	return out.Bytes()
}

// WriteWAV 写入文件头和交错的 PCM16 样本
func WriteWAV(w io.Writer, buf *Buffer) error {
	channels := buf.Channels()
	header := newWavHeader(buf.SampleRate(), channels, buf.Len())
	if err := binary.Write(w, binary.LittleEndian, &header); err != nil {
		return fmt.Errorf("failed to write WAV header: %w", err)
	}

	pcm := make([]byte, int(header.DataSize))
	pos := 0
	for i := 0; i < buf.Len(); i++ {
		for ch := 0; ch < channels; ch++ {
			binary.LittleEndian.PutUint16(pcm[pos:], uint16(floatToInt16(buf.data[ch][i])))
			pos += 2
		}
	}
	if _, err := w.Write(pcm); err != nil {
		return fmt.Errorf("failed to write WAV data: %w", err)
	}
	return nil
}
