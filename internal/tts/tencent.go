package tts

import (
	"context"
	"encoding/base64"
	"fmt"
	"strconv"

	"github.com/tencentcloud/tencentcloud-sdk-go/tencentcloud/common"
	"github.com/tencentcloud/tencentcloud-sdk-go/tencentcloud/common/profile"
	tctts "github.com/tencentcloud/tencentcloud-sdk-go/tencentcloud/tts/v20190823"

	"github.com/skylark-tts/skylark/internal/logger"
)

// tencentAPI 定义与腾讯云 TTS 的最小交互面，测试中替换为计数替身。
type tencentAPI interface {
	// TextToVoice 合成音频并返回解码后的字节。
	TextToVoice(ctx context.Context, text string, voiceType int64, speed, volume float64, codec string) ([]byte, error)
}

// tencentClient 包装腾讯云 SDK 客户端。
type tencentClient struct {
	client *tctts.Client
}

func newTencentClient(secretID, secretKey, region string) (*tencentClient, error) {
	credential := common.NewCredential(secretID, secretKey)
	cpf := profile.NewClientProfile()
	cpf.HttpProfile.Endpoint = "tts.tencentcloudapi.com"

	client, err := tctts.NewClient(credential, region, cpf)
	if err != nil {
		return nil, fmt.Errorf("创建腾讯云 TTS 客户端失败: %w", err)
	}
	return &tencentClient{client: client}, nil
}

func (c *tencentClient) TextToVoice(_ context.Context, text string, voiceType int64, speed, volume float64, codec string) ([]byte, error) {
	request := tctts.NewTextToVoiceRequest()
	request.Text = common.StringPtr(text)
	request.VoiceType = common.Int64Ptr(voiceType)
	request.Codec = common.StringPtr(codec)
	request.Speed = common.Float64Ptr(speed)
	request.Volume = common.Float64Ptr(volume)

	response, err := c.client.TextToVoice(request)
	if err != nil {
		return nil, fmt.Errorf("腾讯云 TTS 合成失败: %w", err)
	}
	if response.Response == nil || response.Response.Audio == nil {
		return nil, fmt.Errorf("腾讯云 TTS 未返回音频数据")
	}

	data, err := base64.StdEncoding.DecodeString(*response.Response.Audio)
	if err != nil {
		return nil, fmt.Errorf("Base64 解码失败: %w", err)
	}
	return data, nil
}

// TencentOptions 腾讯云处理器配置。
type TencentOptions struct {
	SecretID  string
	SecretKey string
	Region    string
	// VoiceType 默认音色，0 表示 1001（智瑜，女声）。
	VoiceType int64
}

// TencentProcessor 腾讯云 TTS 处理器。云端引擎，API 直接返回
// 音频字节，无需临时文件，也没有直接播放路径。
type TencentProcessor struct {
	api          tencentAPI
	deps         Deps
	resolver     *Resolver
	defaultVoice string
	disposed     disposeFlag
}

// NewTencentProcessor 创建腾讯云处理器。缺少凭据时返回 init_failed。
func NewTencentProcessor(opts TencentOptions, deps Deps) (*TencentProcessor, error) {
	if opts.SecretID == "" || opts.SecretKey == "" {
		return nil, newError(CodeInitFailed, "腾讯云 TTS 需要 SecretID 和 SecretKey")
	}
	if opts.VoiceType == 0 {
		opts.VoiceType = 1001
	}
	if opts.Region == "" {
		opts.Region = "ap-guangzhou"
	}

	client, err := newTencentClient(opts.SecretID, opts.SecretKey, opts.Region)
	if err != nil {
		return nil, wrapError(CodeInitFailed, err, "腾讯云 TTS 引擎初始化失败")
	}

	logger.Infof("[tts] 腾讯云 TTS 引擎已初始化 (voice=%d, region=%s)", opts.VoiceType, opts.Region)

	return &TencentProcessor{
		api:          client,
		deps:         deps,
		resolver:     NewResolver(nil),
		defaultVoice: strconv.FormatInt(opts.VoiceType, 10),
	}, nil
}

func (p *TencentProcessor) EngineName() string { return EngineTencent }

// AvailableVoices 返回内置的腾讯云音色目录，经共享缓存。
func (p *TencentProcessor) AvailableVoices(ctx context.Context) ([]Voice, error) {
	if err := p.disposed.check(EngineTencent); err != nil {
		return nil, err
	}
	return loadVoices(ctx, p.deps.Cache, EngineTencent,
		func(context.Context) ([]map[string]interface{}, error) {
			return tencentVoiceCatalog, nil
		})
}

func (p *TencentProcessor) SynthesizeToAudio(ctx context.Context, req Request) ([]byte, error) {
	if err := p.disposed.check(EngineTencent); err != nil {
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
		logger.Debugf("[tts] tencent: 缓存命中 voice=%s", voice.ID)
		return cached, nil
	}

	voiceType, err := strconv.ParseInt(voice.ID, 10, 64)
	if err != nil {
		return nil, wrapError(CodeSynthesisFailed, err, "音色 id 不是合法的腾讯云音色编号: %s", voice.ID)
	}

	codec := req.format()
	if codec != "mp3" && codec != "wav" {
		codec = "mp3"
	}

	data, err := p.api.TextToVoice(ctx, req.Text, voiceType,
		tencentSpeed(req.Rate), tencentVolume(req.Volume), codec)
	if err != nil {
		return nil, wrapError(CodeSynthesisFailed, err, "tencent 合成失败")
	}
	if len(data) == 0 {
		return nil, newError(CodeSynthesisFailed, "tencent 返回了空音频")
	}

	p.deps.Cache.PutAudio(req.Text, voice.ID, req.format(), data)
	logger.Debugf("[tts] tencent: %s 完成，%d 字节", outcomeFileSynthesis, len(data))
	return data, nil
}

// Stop 云端 API 没有进行中的任务可停，记录即可。
func (p *TencentProcessor) Stop() {
	logger.Debugf("[tts] tencent: Stop 是空操作")
}

// Dispose 幂等释放。
func (p *TencentProcessor) Dispose() error {
	if p.disposed.dispose() {
		logger.Debugf("[tts] tencent 引擎已释放")
	}
	return nil
}

func (p *TencentProcessor) validate(req Request) error {
	err := req.Validate()
	if err == nil {
		return nil
	}
	if p.defaultVoice != "" && IsCode(err, CodeEmptyInput) && req.Text != "" {
		return nil
	}
	return err
}

func (p *TencentProcessor) query(req Request) string {
	if q := req.voiceQuery(); q != "" {
		return q
	}
	return p.defaultVoice
}

// tencentSpeed 把请求语速（1.0 正常）换算为腾讯云 Speed：
// 0 为正常，取值 [-2, 6]。
func tencentSpeed(rate float64) float64 {
	speed := 2 * (rate - 1.0)
	if speed < -2 {
		return -2
	}
	if speed > 6 {
		return 6
	}
	return speed
}

// tencentVolume 把请求音量 [0,1] 换算为腾讯云 Volume [0,10]。
func tencentVolume(volume float64) float64 {
	v := volume * 10
	if v < 0 {
		return 0
	}
	if v > 10 {
		return 10
	}
	return v
}

// tencentVoiceCatalog 内置的腾讯云音色目录（常用子集）。
var tencentVoiceCatalog = []map[string]interface{}{
	{"id": "1001", "name": "智瑜", "lang": "zh-CN", "gender": "female"},
	{"id": "1002", "name": "智聆", "lang": "zh-CN", "gender": "female"},
	{"id": "1003", "name": "智美", "lang": "zh-CN", "gender": "female"},
	{"id": "1017", "name": "智蓉", "lang": "zh-CN", "gender": "female"},
	{"id": "1018", "name": "智靖", "lang": "zh-CN", "gender": "male"},
	{"id": "1050", "name": "WeJack", "lang": "en-US", "gender": "male"},
	{"id": "1051", "name": "WeRose", "lang": "en-US", "gender": "female"},
	{"id": "101001", "name": "智瑜（精品）", "lang": "zh-CN", "gender": "female", "quality": "premium"},
	{"id": "101002", "name": "智聆（精品）", "lang": "zh-CN", "gender": "female", "quality": "premium"},
	{"id": "101050", "name": "WeJack（精品）", "lang": "en-US", "gender": "male", "quality": "premium"},
}
