package tts

import (
	"strings"
)

// Request 描述一次合成请求。构造后不可变，由发起调用的一方独占。
type Request struct {
	// Text 待合成文本，不能为空。
	Text string
	// VoiceName 语音 id 或可模糊匹配的名称。
	VoiceName string
	// LanguageName VoiceName 为空时按语言名解析语音，如 "English (United States)"。
	LanguageName string
	// Format 音频格式标记，如 mp3/wav。不支持该格式的引擎忽略但不报错。
	Format string
	// Rate 语速，1.0 为正常。各引擎自行换算原生单位。
	Rate float64
	// Pitch 音调，1.0 为正常。
	Pitch float64
	// Volume 音量，范围 [0, 1]，1.0 为正常。
	Volume float64
}

// NewRequest 以默认参数构造请求：mp3 格式，正常语速/音调/音量。
func NewRequest(text, voiceName string) Request {
	return Request{
		Text:      text,
		VoiceName: voiceName,
		Format:    "mp3",
		Rate:      1.0,
		Pitch:     1.0,
		Volume:    1.0,
	}
}

// Validate 校验请求。校验失败立即返回，不触发任何合成或缓存操作。
func (r Request) Validate() error {
	if strings.TrimSpace(r.Text) == "" {
		return newError(CodeEmptyInput, "合成文本不能为空")
	}
	if strings.TrimSpace(r.VoiceName) == "" && strings.TrimSpace(r.LanguageName) == "" {
		return newError(CodeEmptyInput, "语音名称不能为空")
	}
	return nil
}

// voiceQuery 返回用于解析语音的查询串，优先语音名，其次语言名。
func (r Request) voiceQuery() string {
	if strings.TrimSpace(r.VoiceName) != "" {
		return strings.TrimSpace(r.VoiceName)
	}
	return strings.TrimSpace(r.LanguageName)
}

// format 返回请求的格式标记，为空时回落到 mp3。
func (r Request) format() string {
	if r.Format == "" {
		return "mp3"
	}
	return r.Format
}
