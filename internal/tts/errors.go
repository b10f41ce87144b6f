package tts

import (
	"errors"
	"fmt"
	"strings"
)

// Code 是错误的稳定机器码，跨版本保持不变，供调用方编程判断。
type Code string

const (
	// CodeEmptyInput 请求文本或语音名为空。
	CodeEmptyInput Code = "empty_input"
	// CodeVoiceNotFound 请求的语音在引擎目录中无法解析。
	CodeVoiceNotFound Code = "voice_not_found"
	// CodePlatformNotSupported 目标语言在当前引擎平台上已知不受支持。
	CodePlatformNotSupported Code = "platform_not_supported"
	// CodeInitFailed 引擎不可用或配置错误。
	CodeInitFailed Code = "init_failed"
	// CodeVoiceListFailed 获取或解析语音目录失败。
	CodeVoiceListFailed Code = "voice_list_failed"
	// CodeSynthesisFailed 原生合成调用失败。
	CodeSynthesisFailed Code = "synthesis_failed"
	// CodeSpeakFailed 播放失败或状态不允许播放。
	CodeSpeakFailed Code = "speak_failed"
	// CodeStopFailed 停止失败。仅用于日志，永不向调用方传播。
	CodeStopFailed Code = "stop_failed"
	// CodeDisposed 在已释放的对象上调用方法。
	CodeDisposed Code = "disposed"
)

// Error 是本包所有错误的统一结构：
// 稳定机器码 + 人类可读消息 + 可选的底层原因。
type Error struct {
	Code    Code
	Message string
	Cause   error

	// Candidates 供诊断的候选语音 id（最多 5 个），
	// 仅 voice_not_found 错误携带。
	Candidates []string
	// UnsupportedLocale 目标语言在该引擎平台的已知不支持集合中。
	UnsupportedLocale bool
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Code))
	b.WriteString(": ")
	b.WriteString(e.Message)
	if len(e.Candidates) > 0 {
		fmt.Fprintf(&b, " (可用语音: %s)", strings.Join(e.Candidates, ", "))
	}
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Cause }

// newError 构造不带底层原因的错误。
func newError(code Code, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// wrapError 构造包装底层原因的错误，支持 errors.Is/As 链式匹配。
func wrapError(code Code, cause error, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// CodeOf 返回错误链中第一个 *Error 的机器码，不是本包错误时返回空串。
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsCode 判断错误链中是否存在指定机器码的 *Error。
func IsCode(err error, code Code) bool {
	for err != nil {
		var e *Error
		if !errors.As(err, &e) {
			return false
		}
		if e.Code == code {
			return true
		}
		err = e.Cause
	}
	return false
}
