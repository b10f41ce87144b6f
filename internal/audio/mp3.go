package audio

import (
	"bytes"
	"fmt"
	"io"

	"github.com/hajimehoshi/go-mp3"
)

// DecodeMP3 将 MP3 数据解码为单声道 float32 样本。
// go-mp3 的输出固定为立体声 signed 16-bit LE PCM，
// 每帧 4 字节：左声道 2 字节 + 右声道 2 字节。
// 返回样本数据和采样率（Hz）。
func DecodeMP3(data []byte) ([]float32, int, error) {
	if len(data) == 0 {
		return nil, 0, fmt.Errorf("[audio] MP3 数据为空")
	}

	decoder, err := mp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return nil, 0, fmt.Errorf("[audio] MP3 解码失败: %w", err)
	}

	sampleRate := decoder.SampleRate()

	pcmData, err := io.ReadAll(decoder)
	if err != nil {
		return nil, 0, fmt.Errorf("[audio] 读取 PCM 数据失败: %w", err)
	}

	const bytesPerFrame = 4
	if len(pcmData)%bytesPerFrame != 0 {
		// 截掉不完整的尾部帧
		pcmData = pcmData[:len(pcmData)/bytesPerFrame*bytesPerFrame]
	}

	stereo := BytesToInt16(pcmData)
	samples := make([]float32, len(stereo)/2)
	for i := range samples {
		// 左右声道取平均得到单声道，归一化到 [-1.0, 1.0]
		mono := (float32(stereo[2*i]) + float32(stereo[2*i+1])) / 2.0
		samples[i] = mono / 32768.0
	}

	return samples, sampleRate, nil
}
