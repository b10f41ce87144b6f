package tts

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"os"
	"sync/atomic"

	"github.com/pp-group/edge-tts-go/biz/service/tts/edge"

	"github.com/skylark-tts/skylark/internal/logger"
)

// edgeClient 定义与 Edge TTS 服务的最小交互面，测试中替换为计数替身。
// rate/volume/pitch 为服务端原生的增量串（如 "+0%"、"+0Hz"），
// 换算由处理器负责。
type edgeClient interface {
	// Synthesize 合成整段 MP3 音频。
	Synthesize(ctx context.Context, text, voice, rate, volume, pitch string) ([]byte, error)
}

// edgeTTSClient 通过 edge-tts-go 的 websocket 流式接口取回 MP3。
type edgeTTSClient struct{}

func (edgeTTSClient) Synthesize(ctx context.Context, text, voice, rate, volume, pitch string) ([]byte, error) {
	comm, err := edge.NewCommunicate(text,
		edge.WithVoice(voice),
		edge.WithRate(rate),
		edge.WithVolume(volume),
		edge.WithPitch(pitch),
	)
	if err != nil {
		return nil, fmt.Errorf("edge-tts 创建实例失败: %w", err)
	}

	ch, err := comm.Stream()
	if err != nil {
		return nil, fmt.Errorf("edge-tts 开始流式合成失败: %w", err)
	}

	// Stream() 返回的 map 中，type=="audio" 的条目包含音频数据
	var buf bytes.Buffer
	for msg := range ch {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		if msgType, ok := msg["type"].(string); ok && msgType == "audio" {
			if data, ok := msg["data"].([]byte); ok {
				buf.Write(data)
			}
		}
	}

	if buf.Len() == 0 {
		return nil, fmt.Errorf("edge-tts 未收到音频数据")
	}
	return buf.Bytes(), nil
}

// edgeRate 把请求语速换算为服务端的百分比增量串，1.0 对应 "+0%"。
// 服务端只接受 [+-]数字% 形式；换算 (rate-1)*100，钳位 [-50, +100]。
func edgeRate(rate float64) string {
	return edgePercent((rate-1)*100, -50, 100)
}

// edgeVolume 把请求音量 [0,1] 换算为百分比增量串，1.0 对应 "+0%"。
func edgeVolume(volume float64) string {
	return edgePercent((volume-1)*100, -100, 100)
}

// edgePitch 把请求音调换算为 Hz 增量串，1.0 对应 "+0Hz"，
// 每 1% 偏移约 1Hz，钳位 [-50, +50]。
func edgePitch(pitch float64) string {
	n := int(math.Round((pitch - 1) * 100))
	if n < -50 {
		n = -50
	}
	if n > 50 {
		n = 50
	}
	return fmt.Sprintf("%+dHz", n)
}

func edgePercent(v, lo, hi float64) string {
	n := int(math.Round(v))
	if n < int(lo) {
		n = int(lo)
	}
	if n > int(hi) {
		n = int(hi)
	}
	return fmt.Sprintf("%+d%%", n)
}

// EdgeProcessor 微软 Edge 神经语音处理器。云端引擎，
// 正常路径合成到临时文件并取回字节；文件路径失败时
// 回退为经本地音频输出的直接播放。
type EdgeProcessor struct {
	client       edgeClient
	deps         Deps
	resolver     *Resolver
	defaultVoice string
	disposed     disposeFlag
	stopped      atomic.Bool
}

// NewEdgeProcessor 创建 Edge 处理器。defaultVoice 为空时
// 请求必须自带语音名或语言名。
func NewEdgeProcessor(defaultVoice string, deps Deps) *EdgeProcessor {
	return &EdgeProcessor{
		client:       edgeTTSClient{},
		deps:         deps,
		resolver:     NewResolver(nil),
		defaultVoice: defaultVoice,
	}
}

func (p *EdgeProcessor) EngineName() string { return EngineEdge }

// AvailableVoices 返回内置的 Edge 神经语音目录，经共享缓存。
func (p *EdgeProcessor) AvailableVoices(ctx context.Context) ([]Voice, error) {
	if err := p.disposed.check(EngineEdge); err != nil {
		return nil, err
	}
	return loadVoices(ctx, p.deps.Cache, EngineEdge,
		func(context.Context) ([]map[string]interface{}, error) {
			return edgeVoiceCatalog, nil
		})
}

func (p *EdgeProcessor) SynthesizeToAudio(ctx context.Context, req Request) ([]byte, error) {
	if err := p.disposed.check(EngineEdge); err != nil {
		return nil, err
	}
	if err := p.validate(req); err != nil {
		return nil, err
	}

	voices, err := p.AvailableVoices(ctx)
	if err != nil {
		return nil, err
	}
	voice, err := p.resolver.Resolve(p.query(req), voices)
	if err != nil {
		return nil, err
	}

	if cached, ok := p.deps.Cache.Audio(req.Text, voice.ID, req.format()); ok {
		logger.Debugf("[tts] edge: 缓存命中 voice=%s", voice.ID)
		return cached, nil
	}

	p.stopped.Store(false)

	// 第一步：文件合成
	data, fileErr := p.synthesizeToFile(ctx, req, voice)
	if fileErr == nil {
		p.deps.Cache.PutAudio(req.Text, voice.ID, req.format(), data)
		logger.Debugf("[tts] edge: %s 完成，%d 字节", outcomeFileSynthesis, len(data))
		return data, nil
	}
	if ctx.Err() != nil {
		return nil, wrapError(CodeSynthesisFailed, fileErr, "edge 合成被取消")
	}
	logger.Warnf("[tts] edge: 文件合成失败，回退为直接播放: %v", fileErr)

	// 第二步：直接播放回退
	return p.directPlay(ctx, req, voice, fileErr)
}

// synthesizeToFile 合成到限定作用域的临时文件，校验非空后读回字节。
func (p *EdgeProcessor) synthesizeToFile(ctx context.Context, req Request, voice Voice) ([]byte, error) {
	var data []byte
	err := p.deps.Temp.WithFile("skylark-edge-", "."+req.format(), func(path string) error {
		audio, err := p.client.Synthesize(ctx, req.Text, voice.ID,
			edgeRate(req.Rate), edgeVolume(req.Volume), edgePitch(req.Pitch))
		if err != nil {
			return err
		}
		if err := os.WriteFile(path, audio, 0600); err != nil {
			return fmt.Errorf("写入临时文件失败: %w", err)
		}

		info, err := os.Stat(path)
		if err != nil {
			return fmt.Errorf("校验临时文件失败: %w", err)
		}
		if info.Size() == 0 {
			return fmt.Errorf("合成结果为空文件")
		}

		data, err = os.ReadFile(path)
		return err
	})
	if err != nil {
		return nil, err
	}
	return data, nil
}

// directPlay 重新合成并经本地音频输出播放，返回哨兵数据。
// 没有输出设备时直接报告合成失败。
func (p *EdgeProcessor) directPlay(ctx context.Context, req Request, voice Voice, fileErr error) ([]byte, error) {
	if p.deps.Sink == nil {
		return nil, wrapError(CodeSynthesisFailed, fileErr, "edge 合成失败且无本地播放回退")
	}

	audio, err := p.client.Synthesize(ctx, req.Text, voice.ID,
		edgeRate(req.Rate), edgeVolume(req.Volume), edgePitch(req.Pitch))
	if err != nil {
		logger.Errorf("[tts] edge: %s voice=%s: %v", outcomeFailed, voice.ID, err)
		return nil, wrapError(CodeSynthesisFailed, err, "edge 直接播放回退合成失败")
	}

	playCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var done atomic.Bool
	var playErr error
	go func() {
		playErr = p.deps.Sink.Play(playCtx, audio)
		done.Store(true)
	}()

	if err := waitForCompletion(ctx, req.Text, done.Load, &p.stopped); err != nil {
		p.deps.Sink.Stop()
		return nil, wrapError(CodeSpeakFailed, err, "edge 直接播放被取消")
	}
	if p.stopped.Load() {
		p.deps.Sink.Stop()
	}
	if done.Load() && playErr != nil && !p.stopped.Load() && playCtx.Err() == nil {
		return nil, wrapError(CodeSpeakFailed, playErr, "edge 直接播放失败")
	}

	logger.Debugf("[tts] edge: %s 完成 voice=%s", outcomeDirectPlay, voice.ID)
	return Sentinel(), nil
}

// Stop 打断进行中的直接播放等待。失败不传播。
func (p *EdgeProcessor) Stop() {
	p.stopped.Store(true)
	if p.deps.Sink != nil {
		p.deps.Sink.Stop()
	}
}

// Dispose 幂等释放。
func (p *EdgeProcessor) Dispose() error {
	if p.disposed.dispose() {
		p.Stop()
		logger.Debugf("[tts] edge 引擎已释放")
	}
	return nil
}

func (p *EdgeProcessor) validate(req Request) error {
	err := req.Validate()
	if err == nil {
		return nil
	}
	// 配置了默认语音时允许请求不带语音名
	if p.defaultVoice != "" && IsCode(err, CodeEmptyInput) && req.Text != "" {
		return nil
	}
	return err
}

func (p *EdgeProcessor) query(req Request) string {
	if q := req.voiceQuery(); q != "" {
		return q
	}
	return p.defaultVoice
}

// edgeVoiceCatalog 内置的 Edge 神经语音目录（常用子集），
// 保持服务端返回的原始字段形态。
var edgeVoiceCatalog = []map[string]interface{}{
	{"ShortName": "en-US-AriaNeural", "Gender": "Female", "Locale": "en-US", "FriendlyName": "Microsoft Aria Online (Natural) - English (United States)"},
	{"ShortName": "en-US-GuyNeural", "Gender": "Male", "Locale": "en-US", "FriendlyName": "Microsoft Guy Online (Natural) - English (United States)"},
	{"ShortName": "en-US-JennyNeural", "Gender": "Female", "Locale": "en-US", "FriendlyName": "Microsoft Jenny Online (Natural) - English (United States)"},
	{"ShortName": "en-GB-SoniaNeural", "Gender": "Female", "Locale": "en-GB", "FriendlyName": "Microsoft Sonia Online (Natural) - English (United Kingdom)"},
	{"ShortName": "en-AU-NatashaNeural", "Gender": "Female", "Locale": "en-AU", "FriendlyName": "Microsoft Natasha Online (Natural) - English (Australia)"},
	{"ShortName": "zh-CN-XiaoxiaoNeural", "Gender": "Female", "Locale": "zh-CN", "FriendlyName": "Microsoft Xiaoxiao Online (Natural) - Chinese (Mainland)"},
	{"ShortName": "zh-CN-YunxiNeural", "Gender": "Male", "Locale": "zh-CN", "FriendlyName": "Microsoft Yunxi Online (Natural) - Chinese (Mainland)"},
	{"ShortName": "zh-TW-HsiaoChenNeural", "Gender": "Female", "Locale": "zh-TW", "FriendlyName": "Microsoft HsiaoChen Online (Natural) - Chinese (Taiwan)"},
	{"ShortName": "ja-JP-NanamiNeural", "Gender": "Female", "Locale": "ja-JP", "FriendlyName": "Microsoft Nanami Online (Natural) - Japanese (Japan)"},
	{"ShortName": "ko-KR-SunHiNeural", "Gender": "Female", "Locale": "ko-KR", "FriendlyName": "Microsoft SunHi Online (Natural) - Korean (Korea)"},
	{"ShortName": "fr-FR-DeniseNeural", "Gender": "Female", "Locale": "fr-FR", "FriendlyName": "Microsoft Denise Online (Natural) - French (France)"},
	{"ShortName": "de-DE-KatjaNeural", "Gender": "Female", "Locale": "de-DE", "FriendlyName": "Microsoft Katja Online (Natural) - German (Germany)"},
	{"ShortName": "es-ES-ElviraNeural", "Gender": "Female", "Locale": "es-ES", "FriendlyName": "Microsoft Elvira Online (Natural) - Spanish (Spain)"},
	{"ShortName": "it-IT-ElsaNeural", "Gender": "Female", "Locale": "it-IT", "FriendlyName": "Microsoft Elsa Online (Natural) - Italian (Italy)"},
	{"ShortName": "pt-BR-FranciscaNeural", "Gender": "Female", "Locale": "pt-BR", "FriendlyName": "Microsoft Francisca Online (Natural) - Portuguese (Brazil)"},
	{"ShortName": "ru-RU-SvetlanaNeural", "Gender": "Female", "Locale": "ru-RU", "FriendlyName": "Microsoft Svetlana Online (Natural) - Russian (Russia)"},
	{"ShortName": "ar-SA-ZariyahNeural", "Gender": "Female", "Locale": "ar-SA", "FriendlyName": "Microsoft Zariyah Online (Natural) - Arabic (Saudi Arabia)"},
	{"ShortName": "ar-EG-SalmaNeural", "Gender": "Female", "Locale": "ar-EG", "FriendlyName": "Microsoft Salma Online (Natural) - Arabic (Egypt)"},
	{"ShortName": "hi-IN-SwaraNeural", "Gender": "Female", "Locale": "hi-IN", "FriendlyName": "Microsoft Swara Online (Natural) - Hindi (India)"},
	{"ShortName": "el-GR-AthinaNeural", "Gender": "Female", "Locale": "el-GR", "FriendlyName": "Microsoft Athina Online (Natural) - Greek (Greece)"},
	{"ShortName": "tr-TR-EmelNeural", "Gender": "Female", "Locale": "tr-TR", "FriendlyName": "Microsoft Emel Online (Natural) - Turkish (Turkey)"},
	{"ShortName": "nl-NL-ColetteNeural", "Gender": "Female", "Locale": "nl-NL", "FriendlyName": "Microsoft Colette Online (Natural) - Dutch (Netherlands)"},
	{"ShortName": "pl-PL-ZofiaNeural", "Gender": "Female", "Locale": "pl-PL", "FriendlyName": "Microsoft Zofia Online (Natural) - Polish (Poland)"},
	{"ShortName": "th-TH-PremwadeeNeural", "Gender": "Female", "Locale": "th-TH", "FriendlyName": "Microsoft Premwadee Online (Natural) - Thai (Thailand)"},
	{"ShortName": "vi-VN-HoaiMyNeural", "Gender": "Female", "Locale": "vi-VN", "FriendlyName": "Microsoft HoaiMy Online (Natural) - Vietnamese (Vietnam)"},
}
