package tts

import (
	"context"
	"sync"

	"github.com/skylark-tts/skylark/internal/logger"
)

// State 表示编排器的生命周期状态。
type State int

const (
	// StateUninitialized — 尚未初始化。
	StateUninitialized State = iota
	// StateInitializing — 正在创建/探测处理器。
	StateInitializing
	// StateReady — 就绪，可接受 Speak。
	StateReady
	// StateSpeaking — 一次 Speak 进行中。
	StateSpeaking
	// StateDisposed — 已释放，终态。
	StateDisposed
)

var stateNames = [...]string{
	"Uninitialized",
	"Initializing",
	"Ready",
	"Speaking",
	"Disposed",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "Unknown"
}

// ProcessorFactory 按引擎名创建处理器。
type ProcessorFactory func(engine string) (Processor, error)

// Orchestrator 管理活动处理器的选择与生命周期，对外暴露
// Speak/Stop/SwitchEngine。同一实例同时只执行一次合成：
// Speaking 状态下的 Speak 调用被确定性拒绝（speak_failed），
// 不排队。任何错误后都会回到 Ready，不会卡在 Speaking。
type Orchestrator struct {
	factory ProcessorFactory

	mu        sync.Mutex
	state     State
	engine    string
	processor Processor
}

// NewOrchestrator 创建编排器，defaultEngine 为 Initialize 使用的引擎。
func NewOrchestrator(factory ProcessorFactory, defaultEngine string) *Orchestrator {
	return &Orchestrator{
		factory: factory,
		state:   StateUninitialized,
		engine:  defaultEngine,
	}
}

// State 返回当前状态。
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Engine 返回当前活动引擎名。
func (o *Orchestrator) Engine() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.engine
}

// Initialize 创建默认引擎的处理器并用一次语音目录获取作为探测。
// 失败时回到 Uninitialized 并返回 init_failed。
func (o *Orchestrator) Initialize(ctx context.Context) error {
	o.mu.Lock()
	switch o.state {
	case StateDisposed:
		o.mu.Unlock()
		return newError(CodeDisposed, "编排器已释放")
	case StateUninitialized:
	default:
		o.mu.Unlock()
		return nil // 已初始化
	}
	o.state = StateInitializing
	engine := o.engine
	o.mu.Unlock()

	proc, err := o.probe(ctx, engine)
	if err != nil {
		o.mu.Lock()
		if o.state == StateInitializing {
			o.state = StateUninitialized
		}
		o.mu.Unlock()
		return err
	}

	o.mu.Lock()
	if o.state == StateDisposed {
		o.mu.Unlock()
		_ = proc.Dispose()
		return newError(CodeDisposed, "编排器已释放")
	}
	o.processor = proc
	o.state = StateReady
	o.mu.Unlock()

	logger.Infof("[tts] 编排器就绪，引擎: %s", engine)
	return nil
}

// probe 创建处理器并通过一次 AvailableVoices 验证其可用。
func (o *Orchestrator) probe(ctx context.Context, engine string) (Processor, error) {
	proc, err := o.factory(engine)
	if err != nil {
		return nil, wrapError(CodeInitFailed, err, "创建 %s 引擎失败", engine)
	}
	if _, err := proc.AvailableVoices(ctx); err != nil {
		_ = proc.Dispose()
		return nil, wrapError(CodeInitFailed, err, "%s 引擎初始化探测失败", engine)
	}
	return proc, nil
}

// Speak 分发合成请求到活动处理器。仅在 Ready 状态合法；
// 调用期间进入 Speaking，完成或出错后回到 Ready。
func (o *Orchestrator) Speak(ctx context.Context, req Request) ([]byte, error) {
	o.mu.Lock()
	switch o.state {
	case StateDisposed:
		o.mu.Unlock()
		return nil, newError(CodeDisposed, "编排器已释放")
	case StateSpeaking:
		o.mu.Unlock()
		return nil, newError(CodeSpeakFailed, "已有播放进行中，拒绝并发 speak")
	case StateReady:
	default:
		o.mu.Unlock()
		return nil, newError(CodeSpeakFailed, "编排器未就绪（当前状态 %s）", o.state)
	}
	o.state = StateSpeaking
	proc := o.processor
	o.mu.Unlock()

	data, err := proc.SynthesizeToAudio(ctx, req)

	o.mu.Lock()
	if o.state == StateSpeaking {
		o.state = StateReady
	}
	o.mu.Unlock()

	return data, err
}

// Stop 尽力而为地停止当前合成/播放，永不返回错误。
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	proc := o.processor
	o.mu.Unlock()

	if proc != nil {
		proc.Stop()
	}
}

// AvailableVoices 返回活动引擎的语音目录。
func (o *Orchestrator) AvailableVoices(ctx context.Context) ([]Voice, error) {
	o.mu.Lock()
	proc := o.processor
	state := o.state
	o.mu.Unlock()

	if state == StateDisposed {
		return nil, newError(CodeDisposed, "编排器已释放")
	}
	if proc == nil {
		return nil, newError(CodeInitFailed, "编排器未初始化")
	}
	return proc.AvailableVoices(ctx)
}

// SwitchEngine 切换活动引擎：Ready → Initializing → Ready。
// 新引擎探测失败时保留旧引擎并返回 init_failed；
// 旧引擎在 CacheManager 中的语音目录保持原样，便于切回时复用。
func (o *Orchestrator) SwitchEngine(ctx context.Context, engine string) error {
	o.mu.Lock()
	switch o.state {
	case StateDisposed:
		o.mu.Unlock()
		return newError(CodeDisposed, "编排器已释放")
	case StateReady:
	default:
		o.mu.Unlock()
		return newError(CodeSpeakFailed, "仅 Ready 状态可切换引擎（当前状态 %s）", o.state)
	}
	o.state = StateInitializing
	old := o.processor
	o.mu.Unlock()

	proc, err := o.probe(ctx, engine)
	if err != nil {
		// 保留旧引擎
		o.mu.Lock()
		if o.state == StateInitializing {
			o.state = StateReady
		}
		o.mu.Unlock()
		return err
	}

	o.mu.Lock()
	if o.state == StateDisposed {
		o.mu.Unlock()
		_ = proc.Dispose()
		return newError(CodeDisposed, "编排器已释放")
	}
	o.processor = proc
	o.engine = engine
	o.state = StateReady
	o.mu.Unlock()

	if old != nil {
		if err := old.Dispose(); err != nil {
			logger.Warnf("[tts] 释放旧引擎失败（忽略）: %v", err)
		}
	}

	logger.Infof("[tts] 已切换引擎: %s", engine)
	return nil
}

// Dispose 从任意状态可达的终态。释放活动处理器，幂等。
// 释放子资源的错误在全部清理尝试完成后汇总返回，不中断清理。
func (o *Orchestrator) Dispose() error {
	o.mu.Lock()
	if o.state == StateDisposed {
		o.mu.Unlock()
		return nil
	}
	o.state = StateDisposed
	proc := o.processor
	o.processor = nil
	o.mu.Unlock()

	var err error
	if proc != nil {
		err = proc.Dispose()
	}
	logger.Infof("[tts] 编排器已释放")
	return err
}
