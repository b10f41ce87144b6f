package tts

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/skylark-tts/skylark/internal/logger"
)

// systemCommand 抽象平台语音命令（macOS say / Linux espeak-ng），
// 测试中替换为计数替身。
type systemCommand interface {
	// ListVoices 返回原始语音条目。
	ListVoices(ctx context.Context) ([]map[string]interface{}, error)
	// SynthesizeToFile 合成到指定文件。
	SynthesizeToFile(ctx context.Context, text, voice, path string, rateWPM int) error
	// Speak 启动直接播放并立即返回。wait 阻塞到进程结束，
	// stop 终止进程。
	Speak(ctx context.Context, text, voice string, rateWPM int) (wait func() error, stop func(), err error)
}

// systemBaseWPM 平台命令的正常语速（每分钟词数），请求的 1.0 映射到它。
const systemBaseWPM = 175

// systemRateWPM 把请求语速换算为 wpm，钳位到 [80, 500]。
func systemRateWPM(rate float64) int {
	wpm := int(systemBaseWPM * rate)
	if wpm < 80 {
		return 80
	}
	if wpm > 500 {
		return 500
	}
	return wpm
}

// newPlatformCommand 按操作系统选择语音命令。
// 命令不存在时返回 init_failed。
func newPlatformCommand() (systemCommand, error) {
	switch runtime.GOOS {
	case "darwin":
		if _, err := exec.LookPath("say"); err != nil {
			return nil, wrapError(CodeInitFailed, err, "say 命令不可用")
		}
		return sayCommand{}, nil
	default:
		if _, err := exec.LookPath("espeak-ng"); err != nil {
			return nil, wrapError(CodeInitFailed, err, "espeak-ng 命令不可用")
		}
		return espeakCommand{}, nil
	}
}

// sayCommand 驱动 macOS 内置 say 命令。
type sayCommand struct{}

// sayVoiceLine 匹配 `say -v ?` 输出行，如
// "Samantha            en_US    # Hello, my name is Samantha."
var sayVoiceLine = regexp.MustCompile(`^(\S[^#]*?)\s{2,}([a-zA-Z]{2}[-_][a-zA-Z]{2,4})\s*#\s*(.*)$`)

func (sayCommand) ListVoices(ctx context.Context) ([]map[string]interface{}, error) {
	out, err := exec.CommandContext(ctx, "say", "-v", "?").Output()
	if err != nil {
		return nil, fmt.Errorf("执行 say -v ? 失败: %w", err)
	}

	var raw []map[string]interface{}
	for _, line := range strings.Split(string(out), "\n") {
		m := sayVoiceLine.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		raw = append(raw, map[string]interface{}{
			"name":   strings.TrimSpace(m[1]),
			"locale": m[2],
			"note":   m[3],
		})
	}
	return raw, nil
}

func (sayCommand) SynthesizeToFile(ctx context.Context, text, voice, path string, rateWPM int) error {
	args := []string{"-o", path, "-r", strconv.Itoa(rateWPM)}
	if voice != "" {
		args = append(args, "-v", voice)
	}
	args = append(args, text)

	cmd := exec.CommandContext(ctx, "say", args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("say 执行失败: %w, stderr: %s", err, stderr.String())
	}
	return nil
}

func (sayCommand) Speak(ctx context.Context, text, voice string, rateWPM int) (func() error, func(), error) {
	args := []string{"-r", strconv.Itoa(rateWPM)}
	if voice != "" {
		args = append(args, "-v", voice)
	}
	args = append(args, text)

	cmd := exec.CommandContext(ctx, "say", args...)
	if err := cmd.Start(); err != nil {
		return nil, nil, fmt.Errorf("say 启动失败: %w", err)
	}
	stop := func() {
		if cmd.Process != nil {
			_ = cmd.Process.Kill()
		}
	}
	return cmd.Wait, stop, nil
}

// espeakCommand 驱动 espeak-ng。
type espeakCommand struct{}

func (espeakCommand) ListVoices(ctx context.Context) ([]map[string]interface{}, error) {
	out, err := exec.CommandContext(ctx, "espeak-ng", "--voices").Output()
	if err != nil {
		return nil, fmt.Errorf("执行 espeak-ng --voices 失败: %w", err)
	}

	// 输出为定宽表格: Pty Language Age/Gender VoiceName File Other
	var raw []map[string]interface{}
	lines := strings.Split(string(out), "\n")
	for i, line := range lines {
		if i == 0 {
			continue // 表头
		}
		fields := strings.Fields(line)
		if len(fields) < 4 {
			continue
		}
		gender := ""
		if parts := strings.SplitN(fields[2], "/", 2); len(parts) == 2 {
			gender = parts[1]
		}
		raw = append(raw, map[string]interface{}{
			"name":     fields[3],
			"language": fields[1],
			"gender":   gender,
		})
	}
	return raw, nil
}

func (espeakCommand) SynthesizeToFile(ctx context.Context, text, voice, path string, rateWPM int) error {
	args := []string{"-w", path, "-s", strconv.Itoa(rateWPM)}
	if voice != "" {
		args = append(args, "-v", voice)
	}
	args = append(args, text)

	cmd := exec.CommandContext(ctx, "espeak-ng", args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("espeak-ng 执行失败: %w, stderr: %s", err, stderr.String())
	}
	return nil
}

func (espeakCommand) Speak(ctx context.Context, text, voice string, rateWPM int) (func() error, func(), error) {
	args := []string{"-s", strconv.Itoa(rateWPM)}
	if voice != "" {
		args = append(args, "-v", voice)
	}
	args = append(args, text)

	cmd := exec.CommandContext(ctx, "espeak-ng", args...)
	if err := cmd.Start(); err != nil {
		return nil, nil, fmt.Errorf("espeak-ng 启动失败: %w", err)
	}
	stop := func() {
		if cmd.Process != nil {
			_ = cmd.Process.Kill()
		}
	}
	return cmd.Wait, stop, nil
}

// SystemProcessor 系统命令处理器。正常路径合成到临时文件，
// 命令或文件校验失败（如沙箱限制）时回退为平台直接播放。
type SystemProcessor struct {
	cmd          systemCommand
	deps         Deps
	resolver     *Resolver
	defaultVoice string
	disposed     disposeFlag
	stopped      atomic.Bool

	mu       sync.Mutex
	stopProc func()
}

// NewSystemProcessor 创建系统引擎处理器。
// 平台语音命令不可用时返回 init_failed。
func NewSystemProcessor(defaultVoice string, deps Deps) (*SystemProcessor, error) {
	cmd, err := newPlatformCommand()
	if err != nil {
		return nil, err
	}
	return newSystemProcessor(cmd, defaultVoice, deps), nil
}

// newSystemProcessor 供测试直接注入命令替身。
func newSystemProcessor(cmd systemCommand, defaultVoice string, deps Deps) *SystemProcessor {
	return &SystemProcessor{
		cmd:          cmd,
		deps:         deps,
		resolver:     NewResolver(nil),
		defaultVoice: defaultVoice,
	}
}

func (p *SystemProcessor) EngineName() string { return EngineSystem }

// AvailableVoices 解析平台命令报告的语音目录，经共享缓存。
func (p *SystemProcessor) AvailableVoices(ctx context.Context) ([]Voice, error) {
	if err := p.disposed.check(EngineSystem); err != nil {
		return nil, err
	}
	return loadVoices(ctx, p.deps.Cache, EngineSystem, p.cmd.ListVoices)
}

func (p *SystemProcessor) SynthesizeToAudio(ctx context.Context, req Request) ([]byte, error) {
	if err := p.disposed.check(EngineSystem); err != nil {
		return nil, err
	}
	if err := p.validate(req); err != nil {
		return nil, err
	}

	// 查询串为空表示使用系统默认语音，跳过目录解析
	var voice Voice
	if q := p.query(req); q != "" {
		voices, err := p.AvailableVoices(ctx)
		if err != nil {
			return nil, err
		}
		voice, err = p.resolver.Resolve(q, voices)
		if err != nil {
			return nil, err
		}
	}

	if cached, ok := p.deps.Cache.Audio(req.Text, voice.ID, req.format()); ok {
		logger.Debugf("[tts] system: 缓存命中 voice=%s", voice.ID)
		return cached, nil
	}

	p.stopped.Store(false)
	wpm := systemRateWPM(req.Rate)

	// 第一步：文件合成
	data, fileErr := p.synthesizeToFile(ctx, req, voice, wpm)
	if fileErr == nil {
		p.deps.Cache.PutAudio(req.Text, voice.ID, req.format(), data)
		logger.Debugf("[tts] system: %s 完成，%d 字节", outcomeFileSynthesis, len(data))
		return data, nil
	}
	if ctx.Err() != nil {
		return nil, wrapError(CodeSynthesisFailed, fileErr, "system 合成被取消")
	}
	logger.Warnf("[tts] system: 文件合成失败，回退为直接播放: %v", fileErr)

	// 第二步：直接播放回退
	return p.directPlay(ctx, req, voice, wpm)
}

func (p *SystemProcessor) synthesizeToFile(ctx context.Context, req Request, voice Voice, wpm int) ([]byte, error) {
	var data []byte
	err := p.deps.Temp.WithFile("skylark-system-", p.fileSuffix(req), func(path string) error {
		if err := p.cmd.SynthesizeToFile(ctx, req.Text, voice.ID, path, wpm); err != nil {
			return err
		}

		info, err := os.Stat(path)
		if err != nil {
			return fmt.Errorf("校验输出文件失败: %w", err)
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

// fileSuffix 返回平台命令实际产出的文件后缀。
// say 只写 AIFF，espeak-ng 只写 WAV；请求的 format 字段被接受但不生效。
func (p *SystemProcessor) fileSuffix(Request) string {
	if runtime.GOOS == "darwin" {
		return ".aiff"
	}
	return ".wav"
}

func (p *SystemProcessor) directPlay(ctx context.Context, req Request, voice Voice, wpm int) ([]byte, error) {
	wait, stop, err := p.cmd.Speak(ctx, req.Text, voice.ID, wpm)
	if err != nil {
		logger.Errorf("[tts] system: %s voice=%s: %v", outcomeFailed, voice.ID, err)
		return nil, wrapError(CodeSpeakFailed, err, "system 直接播放失败")
	}

	p.mu.Lock()
	p.stopProc = stop
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		p.stopProc = nil
		p.mu.Unlock()
	}()

	var done atomic.Bool
	go func() {
		_ = wait()
		done.Store(true)
	}()

	if err := waitForCompletion(ctx, req.Text, done.Load, &p.stopped); err != nil {
		stop()
		return nil, wrapError(CodeSpeakFailed, err, "system 直接播放被取消")
	}
	if p.stopped.Load() {
		stop()
	}

	logger.Debugf("[tts] system: %s 完成 voice=%s", outcomeDirectPlay, voice.ID)
	return Sentinel(), nil
}

// Stop 打断直接播放。终止进程失败只会在 wait 侧留下日志，不传播。
func (p *SystemProcessor) Stop() {
	p.stopped.Store(true)

	p.mu.Lock()
	stop := p.stopProc
	p.mu.Unlock()
	if stop != nil {
		stop()
	}
}

// Dispose 幂等释放。
func (p *SystemProcessor) Dispose() error {
	if p.disposed.dispose() {
		p.Stop()
		logger.Debugf("[tts] system 引擎已释放")
	}
	return nil
}

func (p *SystemProcessor) validate(req Request) error {
	err := req.Validate()
	if err == nil {
		return nil
	}
	// 系统默认语音存在时允许请求不带语音名
	if IsCode(err, CodeEmptyInput) && req.Text != "" {
		return nil
	}
	return err
}

func (p *SystemProcessor) query(req Request) string {
	if q := req.voiceQuery(); q != "" {
		return q
	}
	return p.defaultVoice
}
