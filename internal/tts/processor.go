package tts

import (
	"context"
	"sync/atomic"

	"github.com/skylark-tts/skylark/internal/config"
)

// Processor 定义单个合成引擎的统一契约。
// 实现必须能被多个 goroutine 并发调用 Stop/Dispose，
// 但同一实例不会并发执行多个 SynthesizeToAudio（由编排器保证）。
type Processor interface {
	// EngineName 返回引擎的固定标识。
	EngineName() string

	// AvailableVoices 返回引擎当前可用的语音目录，经共享缓存。
	AvailableVoices(ctx context.Context) ([]Voice, error)

	// SynthesizeToAudio 将请求合成为音频字节。
	// 直接播放模式返回哨兵数据（IsSentinel 为真）；
	// 真实音频永远大于哨兵上限。
	SynthesizeToAudio(ctx context.Context, req Request) ([]byte, error)

	// Stop 尽力而为地停止当前合成/播放，失败只记录日志。
	Stop()

	// Dispose 幂等释放；之后所有其他方法立即返回 disposed 错误。
	Dispose() error
}

// AudioSink 本地音频输出协作方，云引擎的直接播放回退经由它发声。
type AudioSink interface {
	// Play 解码并播放 MP3 数据，阻塞直到播完或被 Stop/ctx 打断。
	Play(ctx context.Context, mp3Data []byte) error
	Stop()
}

// Deps 各处理器共享的协作对象。Cache 与 Temp 必填且进程内共享；
// Sink 可为 nil（无本地输出设备时云引擎没有直接播放回退）；
// Browser 仅浏览器引擎需要，由宿主注入。
type Deps struct {
	Cache   *Cache
	Temp    *TempFiles
	Sink    AudioSink
	Browser SpeechSynthesizer
}

// 引擎名常量。
const (
	EngineEdge    = "edge"
	EngineTencent = "tencent"
	EngineSystem  = "system"
	EngineBrowser = "browser"
)

// Engines 返回所有已知引擎名。
func Engines() []string {
	return []string{EngineEdge, EngineTencent, EngineSystem, EngineBrowser}
}

// NewProcessor 按引擎名创建处理器。未知引擎名返回 init_failed。
func NewProcessor(engine string, deps Deps, cfg *config.Config) (Processor, error) {
	switch engine {
	case EngineEdge:
		return NewEdgeProcessor(cfg.TTS.Edge.Voice, deps), nil
	case EngineTencent:
		return NewTencentProcessor(TencentOptions{
			SecretID:  cfg.TTS.Tencent.SecretID,
			SecretKey: cfg.TTS.Tencent.SecretKey,
			Region:    cfg.TTS.Tencent.Region,
			VoiceType: cfg.TTS.Tencent.VoiceType,
		}, deps)
	case EngineSystem:
		return NewSystemProcessor(cfg.TTS.System.Voice, deps)
	case EngineBrowser:
		return NewBrowserProcessor(deps.Browser, deps)
	default:
		return nil, newError(CodeInitFailed, "不支持的引擎: %s", engine)
	}
}

// loadVoices 经共享缓存获取引擎语音目录：命中直接返回；
// 未命中调用 fetch 取原始数据，解析去重后写入缓存。
// 解析结果为空视为语音列表失败。
func loadVoices(ctx context.Context, cache *Cache, engineName string,
	fetch func(ctx context.Context) ([]map[string]interface{}, error)) ([]Voice, error) {

	if voices, ok := cache.Voices(engineName); ok {
		return voices, nil
	}

	raw, err := fetch(ctx)
	if err != nil {
		return nil, wrapError(CodeVoiceListFailed, err, "获取 %s 引擎语音列表失败", engineName)
	}

	voices := ParseVoices(raw)
	if len(voices) == 0 {
		return nil, newError(CodeVoiceListFailed, "%s 引擎未解析到任何语音", engineName)
	}

	cache.PutVoices(engineName, voices)
	return voices, nil
}

// disposeFlag 处理器释放标记。
type disposeFlag struct {
	v atomic.Bool
}

// dispose 置位标记，首次调用返回 true。
func (d *disposeFlag) dispose() bool { return d.v.CompareAndSwap(false, true) }

// check 已释放时返回 disposed 错误。
func (d *disposeFlag) check(engineName string) error {
	if d.v.Load() {
		return newError(CodeDisposed, "%s 引擎已释放", engineName)
	}
	return nil
}
