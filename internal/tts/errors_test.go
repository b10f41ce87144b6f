package tts

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestError_MessageAndCode(t *testing.T) {
	err := newError(CodeVoiceNotFound, "未找到语音: %s", "xx-ZZ")
	if CodeOf(err) != CodeVoiceNotFound {
		t.Errorf("expected code voice_not_found, got %s", CodeOf(err))
	}
	if !strings.Contains(err.Error(), "xx-ZZ") {
		t.Errorf("message should mention the request, got %q", err.Error())
	}
	if !strings.HasPrefix(err.Error(), "voice_not_found: ") {
		t.Errorf("message should lead with the machine code, got %q", err.Error())
	}
}

func TestError_WrapChain(t *testing.T) {
	cause := errors.New("connection refused")
	mid := wrapError(CodeSynthesisFailed, cause, "合成失败")
	outer := wrapError(CodeSpeakFailed, mid, "播放失败")

	if !errors.Is(outer, cause) {
		t.Error("errors.Is must reach the root cause through the chain")
	}
	if CodeOf(outer) != CodeSpeakFailed {
		t.Errorf("CodeOf returns the outermost code, got %s", CodeOf(outer))
	}
	if !IsCode(outer, CodeSynthesisFailed) {
		t.Error("IsCode must find codes deeper in the chain")
	}
	if IsCode(outer, CodeInitFailed) {
		t.Error("IsCode must not report absent codes")
	}
}

func TestError_WrappedByFmt(t *testing.T) {
	inner := newError(CodeDisposed, "对象已释放")
	wrapped := fmt.Errorf("speak: %w", inner)

	if CodeOf(wrapped) != CodeDisposed {
		t.Errorf("CodeOf must see through fmt wrapping, got %s", CodeOf(wrapped))
	}
	if !IsCode(wrapped, CodeDisposed) {
		t.Error("IsCode must see through fmt wrapping")
	}
}

func TestError_Candidates(t *testing.T) {
	err := &Error{
		Code:       CodeVoiceNotFound,
		Message:    "未找到匹配的语音",
		Candidates: []string{"a", "b", "c"},
	}
	msg := err.Error()
	for _, id := range err.Candidates {
		if !strings.Contains(msg, id) {
			t.Errorf("diagnostic message should list candidate %s, got %q", id, msg)
		}
	}
}

func TestCodeOf_ForeignError(t *testing.T) {
	if CodeOf(errors.New("plain")) != "" {
		t.Error("foreign errors have no code")
	}
	if CodeOf(nil) != "" {
		t.Error("nil error has no code")
	}
	if IsCode(nil, CodeDisposed) {
		t.Error("nil error matches no code")
	}
}
