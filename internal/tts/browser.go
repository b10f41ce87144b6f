package tts

import (
	"context"
	"sync/atomic"

	"github.com/skylark-tts/skylark/internal/logger"
)

// SpeechSynthesizer 是宿主（内嵌浏览器 / webview 绑定层）注入的
// Web Speech 合成契约。该引擎不产出任何可取回的音频字节，
// 只能直接播放。
type SpeechSynthesizer interface {
	// Voices 返回原始语音条目（voiceURI/name/lang 等形态）。
	Voices(ctx context.Context) ([]map[string]interface{}, error)
	// Speak 以引擎原生单位开始朗读并立即返回。
	Speak(ctx context.Context, text, voiceURI string, rate, pitch, volume float64) error
	// Speaking 返回是否仍在朗读。部分宿主的完成事件不可靠，
	// 调用方需自带超时。
	Speaking() bool
	Cancel() error
}

// browserNativeNormalRate 浏览器宿主的正常语速原生值。
// 请求的 1.0 须换算为 0.5，换算由处理器负责，调用方无感知。
const browserNativeNormalRate = 0.5

// browserRate 把请求语速换算为原生值，钳位到 [0.1, 1.0]。
func browserRate(rate float64) float64 {
	v := rate * browserNativeNormalRate
	if v < 0.1 {
		return 0.1
	}
	if v > 1.0 {
		return 1.0
	}
	return v
}

// browserPitch 音调原生正常值即 1.0，仅做钳位。
func browserPitch(pitch float64) float64 {
	if pitch < 0.5 {
		return 0.5
	}
	if pitch > 2.0 {
		return 2.0
	}
	return pitch
}

func browserVolume(volume float64) float64 {
	if volume < 0 {
		return 0
	}
	if volume > 1 {
		return 1
	}
	return volume
}

// browserUnsupportedLocales 已知在浏览器引擎上缺失的地区，
// 解析失败时用于标记 voice_not_found 错误。
var browserUnsupportedLocales = []string{"ar-SA", "ar-EG", "hi-IN", "el-GR"}

// BrowserProcessor 浏览器语音处理器。仅直接播放，
// 合成结果永远是哨兵数据。
type BrowserProcessor struct {
	synth    SpeechSynthesizer
	deps     Deps
	resolver *Resolver
	disposed disposeFlag
	stopped  atomic.Bool
}

// NewBrowserProcessor 创建浏览器处理器。宿主未注入合成器时
// 返回 init_failed。
func NewBrowserProcessor(synth SpeechSynthesizer, deps Deps) (*BrowserProcessor, error) {
	if synth == nil {
		return nil, newError(CodeInitFailed, "browser 引擎需要宿主注入 SpeechSynthesizer")
	}
	return &BrowserProcessor{
		synth:    synth,
		deps:     deps,
		resolver: NewResolver(browserUnsupportedLocales),
	}, nil
}

func (p *BrowserProcessor) EngineName() string { return EngineBrowser }

// AvailableVoices 解析宿主报告的语音目录，经共享缓存。
func (p *BrowserProcessor) AvailableVoices(ctx context.Context) ([]Voice, error) {
	if err := p.disposed.check(EngineBrowser); err != nil {
		return nil, err
	}
	return loadVoices(ctx, p.deps.Cache, EngineBrowser, p.synth.Voices)
}

func (p *BrowserProcessor) SynthesizeToAudio(ctx context.Context, req Request) ([]byte, error) {
	if err := p.disposed.check(EngineBrowser); err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	voices, err := p.AvailableVoices(ctx)
	if err != nil {
		return nil, err
	}
	voice, err := p.resolver.Resolve(req.voiceQuery(), voices)
	if err != nil {
		return nil, err
	}

	p.stopped.Store(false)

	err = p.synth.Speak(ctx, req.Text, voice.ID,
		browserRate(req.Rate), browserPitch(req.Pitch), browserVolume(req.Volume))
	if err != nil {
		return nil, wrapError(CodeSpeakFailed, err, "browser 朗读失败")
	}

	done := func() bool { return !p.synth.Speaking() }
	if err := waitForCompletion(ctx, req.Text, done, &p.stopped); err != nil {
		p.cancel()
		return nil, wrapError(CodeSpeakFailed, err, "browser 朗读被取消")
	}
	if p.stopped.Load() {
		p.cancel()
	}

	logger.Debugf("[tts] browser: %s 完成 voice=%s", outcomeDirectPlay, voice.ID)
	return Sentinel(), nil
}

// Stop 打断进行中的朗读。取消失败只记录日志。
func (p *BrowserProcessor) Stop() {
	p.stopped.Store(true)
	p.cancel()
}

func (p *BrowserProcessor) cancel() {
	if err := p.synth.Cancel(); err != nil {
		logger.Warnf("[tts] browser: 取消朗读失败（忽略）: %v", err)
	}
}

// Dispose 幂等释放。
func (p *BrowserProcessor) Dispose() error {
	if p.disposed.dispose() {
		p.Stop()
		logger.Debugf("[tts] browser 引擎已释放")
	}
	return nil
}
