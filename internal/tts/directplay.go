package tts

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/skylark-tts/skylark/internal/logger"
)

// sentinelAudio 直接播放模式的固定返回值，表示"已播放，无音频产物"。
// 长度必须大于 0 且不大于 SentinelMaxBytes。
var sentinelAudio = []byte("played")

// Sentinel 返回哨兵数据的副本。
func Sentinel() []byte {
	out := make([]byte, len(sentinelAudio))
	copy(out, sentinelAudio)
	return out
}

// IsSentinel 判断合成结果是否为直接播放的哨兵数据。
// 调用方据此决定是把结果交给音频输出，还是视为已播放完毕。
func IsSentinel(data []byte) bool {
	return len(data) > 0 && len(data) <= SentinelMaxBytes
}

const (
	// speechCharsPerSecond 估算语速：约每秒 17 个字符。
	speechCharsPerSecond = 17
	minSpeechEstimate    = time.Second
	maxSpeechEstimate    = 30 * time.Second

	completionPollInterval = 100 * time.Millisecond
	completionGrace        = 2 * time.Second
)

// estimateSpeechDuration 按文本长度估算播放时长，钳位到 [1s, 30s]。
func estimateSpeechDuration(text string) time.Duration {
	chars := len([]rune(text))
	d := time.Duration(float64(chars) / speechCharsPerSecond * float64(time.Second))
	if d < minSpeechEstimate {
		return minSpeechEstimate
	}
	if d > maxSpeechEstimate {
		return maxSpeechEstimate
	}
	return d
}

// waitForCompletion 以固定间隔轮询 done，直到播放完成、stopped 置位、
// ctx 取消或超过估算时长加宽限期。
// 超时按"已完成"处理：部分引擎的完成回调不可靠，
// 检测不到完成不应作为失败暴露给用户。
func waitForCompletion(ctx context.Context, text string, done func() bool, stopped *atomic.Bool) error {
	deadline := time.Now().Add(estimateSpeechDuration(text) + completionGrace)

	ticker := time.NewTicker(completionPollInterval)
	defer ticker.Stop()

	for {
		if done() {
			return nil
		}
		if stopped != nil && stopped.Load() {
			logger.Debugf("[tts] 播放被 Stop 打断")
			return nil
		}
		if time.Now().After(deadline) {
			logger.Warnf("[tts] 等待播放完成超时（估算 %s），按已完成处理",
				estimateSpeechDuration(text))
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// synthesisOutcome 合成决策的命名结果，便于单独测试各分支。
type synthesisOutcome int

const (
	// outcomeFileSynthesis 文件合成成功，返回了真实音频。
	outcomeFileSynthesis synthesisOutcome = iota
	// outcomeDirectPlay 文件合成不可用，已回退为直接播放，返回哨兵。
	outcomeDirectPlay
	// outcomeFailed 两条路径都失败。
	outcomeFailed
)

var outcomeNames = [...]string{"file_synthesis", "direct_play", "failed"}

func (o synthesisOutcome) String() string {
	if int(o) < len(outcomeNames) {
		return outcomeNames[o]
	}
	return "unknown"
}
