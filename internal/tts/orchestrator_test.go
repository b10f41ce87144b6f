package tts

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// fakeProcessor 可编程的处理器替身。
type fakeProcessor struct {
	name     string
	voices   []Voice
	voiceErr error

	audio    []byte
	synthErr error
	block    chan struct{} // 非 nil 时 SynthesizeToAudio 阻塞到通道关闭

	synthCalls atomic.Int32
	stopCalls  atomic.Int32
	disposed   atomic.Bool
	disposeErr error
}

func (f *fakeProcessor) EngineName() string { return f.name }

func (f *fakeProcessor) AvailableVoices(ctx context.Context) ([]Voice, error) {
	if f.voiceErr != nil {
		return nil, f.voiceErr
	}
	return f.voices, nil
}

func (f *fakeProcessor) SynthesizeToAudio(ctx context.Context, req Request) ([]byte, error) {
	f.synthCalls.Add(1)
	if f.block != nil {
		<-f.block
	}
	if f.synthErr != nil {
		return nil, f.synthErr
	}
	return f.audio, nil
}

func (f *fakeProcessor) Stop() { f.stopCalls.Add(1) }

func (f *fakeProcessor) Dispose() error {
	f.disposed.Store(true)
	return f.disposeErr
}

// fakeFactory 按引擎名分发替身，记录创建次数。
type fakeFactory struct {
	mu         sync.Mutex
	processors map[string]*fakeProcessor
	errs       map[string]error
	creates    map[string]int
}

func newFakeFactory() *fakeFactory {
	return &fakeFactory{
		processors: make(map[string]*fakeProcessor),
		errs:       make(map[string]error),
		creates:    make(map[string]int),
	}
}

func (f *fakeFactory) factory(engine string) (Processor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creates[engine]++
	if err := f.errs[engine]; err != nil {
		return nil, err
	}
	if p, ok := f.processors[engine]; ok {
		return p, nil
	}
	return nil, errors.New("unknown engine " + engine)
}

func readyOrchestrator(t *testing.T, f *fakeFactory, engine string) *Orchestrator {
	t.Helper()
	o := NewOrchestrator(f.factory, engine)
	if err := o.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	if o.State() != StateReady {
		t.Fatalf("expected Ready after Initialize, got %s", o.State())
	}
	return o
}

func TestOrchestrator_InitializeLifecycle(t *testing.T) {
	f := newFakeFactory()
	f.processors["edge"] = &fakeProcessor{name: "edge", voices: []Voice{{ID: "v"}}}

	o := NewOrchestrator(f.factory, "edge")
	if o.State() != StateUninitialized {
		t.Fatalf("expected Uninitialized, got %s", o.State())
	}

	// 未初始化时 Speak 非法
	_, err := o.Speak(context.Background(), NewRequest("hi", "v"))
	if !IsCode(err, CodeSpeakFailed) {
		t.Fatalf("expected speak_failed before Initialize, got %v", err)
	}

	if err := o.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	if o.State() != StateReady {
		t.Fatalf("expected Ready, got %s", o.State())
	}

	// 重复初始化是无害的空操作
	if err := o.Initialize(context.Background()); err != nil {
		t.Fatalf("re-Initialize should be a no-op: %v", err)
	}
	if f.creates["edge"] != 1 {
		t.Errorf("expected 1 create, got %d", f.creates["edge"])
	}
}

func TestOrchestrator_InitializeFailureReturnsToUninitialized(t *testing.T) {
	f := newFakeFactory()
	f.errs["edge"] = errors.New("engine unavailable")

	o := NewOrchestrator(f.factory, "edge")
	err := o.Initialize(context.Background())
	if !IsCode(err, CodeInitFailed) {
		t.Fatalf("expected init_failed, got %v", err)
	}
	if o.State() != StateUninitialized {
		t.Fatalf("failed Initialize must return to Uninitialized, got %s", o.State())
	}

	// 修好后可以重试
	delete(f.errs, "edge")
	f.processors["edge"] = &fakeProcessor{name: "edge", voices: []Voice{{ID: "v"}}}
	if err := o.Initialize(context.Background()); err != nil {
		t.Fatalf("retry Initialize failed: %v", err)
	}
}

func TestOrchestrator_ProbeFailureDisposesProcessor(t *testing.T) {
	f := newFakeFactory()
	proc := &fakeProcessor{name: "edge", voiceErr: errors.New("catalog broken")}
	f.processors["edge"] = proc

	o := NewOrchestrator(f.factory, "edge")
	err := o.Initialize(context.Background())
	if !IsCode(err, CodeInitFailed) {
		t.Fatalf("expected init_failed, got %v", err)
	}
	if !proc.disposed.Load() {
		t.Error("processor that fails the probe must be disposed")
	}
}

func TestOrchestrator_SpeakRoundTrip(t *testing.T) {
	f := newFakeFactory()
	audio := bytes.Repeat([]byte{7}, 100)
	f.processors["edge"] = &fakeProcessor{name: "edge", voices: []Voice{{ID: "v"}}, audio: audio}
	o := readyOrchestrator(t, f, "edge")

	got, err := o.Speak(context.Background(), NewRequest("hi", "v"))
	if err != nil {
		t.Fatalf("Speak failed: %v", err)
	}
	if !bytes.Equal(got, audio) {
		t.Error("Speak returned wrong audio")
	}
	if o.State() != StateReady {
		t.Fatalf("expected Ready after Speak, got %s", o.State())
	}
}

func TestOrchestrator_SpeakErrorReturnsToReady(t *testing.T) {
	f := newFakeFactory()
	f.processors["edge"] = &fakeProcessor{
		name: "edge", voices: []Voice{{ID: "v"}},
		synthErr: newError(CodeSynthesisFailed, "boom"),
	}
	o := readyOrchestrator(t, f, "edge")

	_, err := o.Speak(context.Background(), NewRequest("hi", "v"))
	if !IsCode(err, CodeSynthesisFailed) {
		t.Fatalf("expected synthesis_failed, got %v", err)
	}
	if o.State() != StateReady {
		t.Fatalf("failed Speak must return to Ready, got %s", o.State())
	}
}

func TestOrchestrator_ConcurrentSpeakRejected(t *testing.T) {
	f := newFakeFactory()
	block := make(chan struct{})
	proc := &fakeProcessor{
		name: "edge", voices: []Voice{{ID: "v"}},
		audio: bytes.Repeat([]byte{1}, 100), block: block,
	}
	f.processors["edge"] = proc
	o := readyOrchestrator(t, f, "edge")

	firstDone := make(chan error, 1)
	go func() {
		_, err := o.Speak(context.Background(), NewRequest("first", "v"))
		firstDone <- err
	}()

	// 等第一次 Speak 进入 Speaking
	deadline := time.Now().Add(time.Second)
	for o.State() != StateSpeaking {
		if time.Now().After(deadline) {
			t.Fatal("first Speak never reached Speaking")
		}
		time.Sleep(time.Millisecond)
	}

	// 进行中的播放确定性拒绝第二次 Speak，不排队
	_, err := o.Speak(context.Background(), NewRequest("second", "v"))
	if !IsCode(err, CodeSpeakFailed) {
		t.Fatalf("expected speak_failed for concurrent Speak, got %v", err)
	}

	close(block)
	if err := <-firstDone; err != nil {
		t.Fatalf("first Speak failed: %v", err)
	}
	if o.State() != StateReady {
		t.Fatalf("expected Ready after first Speak, got %s", o.State())
	}
	if proc.synthCalls.Load() != 1 {
		t.Errorf("rejected Speak must not reach the processor, got %d calls", proc.synthCalls.Load())
	}
}

func TestOrchestrator_StopNeverFails(t *testing.T) {
	f := newFakeFactory()
	proc := &fakeProcessor{name: "edge", voices: []Voice{{ID: "v"}}}
	f.processors["edge"] = proc

	// 未初始化时 Stop 也是安全的空操作
	o := NewOrchestrator(f.factory, "edge")
	o.Stop()

	if err := o.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	o.Stop()
	if proc.stopCalls.Load() != 1 {
		t.Errorf("expected Stop to reach the processor once, got %d", proc.stopCalls.Load())
	}
}

func TestOrchestrator_SwitchEngine(t *testing.T) {
	f := newFakeFactory()
	edgeProc := &fakeProcessor{name: "edge", voices: []Voice{{ID: "e"}}}
	sysProc := &fakeProcessor{name: "system", voices: []Voice{{ID: "s"}}}
	f.processors["edge"] = edgeProc
	f.processors["system"] = sysProc
	o := readyOrchestrator(t, f, "edge")

	if err := o.SwitchEngine(context.Background(), "system"); err != nil {
		t.Fatalf("SwitchEngine failed: %v", err)
	}
	if o.Engine() != "system" {
		t.Errorf("expected active engine system, got %s", o.Engine())
	}
	if o.State() != StateReady {
		t.Fatalf("expected Ready after switch, got %s", o.State())
	}
	if !edgeProc.disposed.Load() {
		t.Error("old processor must be disposed after a successful switch")
	}

	voices, err := o.AvailableVoices(context.Background())
	if err != nil {
		t.Fatalf("AvailableVoices failed: %v", err)
	}
	if len(voices) != 1 || voices[0].ID != "s" {
		t.Errorf("voices must come from the new engine, got %+v", voices)
	}
}

func TestOrchestrator_SwitchEngineFailureKeepsOld(t *testing.T) {
	f := newFakeFactory()
	edgeProc := &fakeProcessor{
		name: "edge", voices: []Voice{{ID: "e"}},
		audio: bytes.Repeat([]byte{1}, 100),
	}
	f.processors["edge"] = edgeProc
	f.errs["system"] = errors.New("not installed")
	o := readyOrchestrator(t, f, "edge")

	err := o.SwitchEngine(context.Background(), "system")
	if !IsCode(err, CodeInitFailed) {
		t.Fatalf("expected init_failed, got %v", err)
	}
	if o.Engine() != "edge" {
		t.Errorf("failed switch must keep the old engine, got %s", o.Engine())
	}
	if o.State() != StateReady {
		t.Fatalf("expected Ready after failed switch, got %s", o.State())
	}
	if edgeProc.disposed.Load() {
		t.Error("old processor must survive a failed switch")
	}

	// 旧引擎照常可用
	if _, err := o.Speak(context.Background(), NewRequest("hi", "e")); err != nil {
		t.Fatalf("Speak via the kept engine failed: %v", err)
	}
}

func TestOrchestrator_SwitchKeepsOldCatalogInCache(t *testing.T) {
	cache := NewCache(0, 0)
	cache.PutVoices("edge", []Voice{{ID: "e"}})

	f := newFakeFactory()
	f.processors["edge"] = &fakeProcessor{name: "edge", voices: []Voice{{ID: "e"}}}
	f.processors["system"] = &fakeProcessor{name: "system", voices: []Voice{{ID: "s"}}}
	o := readyOrchestrator(t, f, "edge")

	if err := o.SwitchEngine(context.Background(), "system"); err != nil {
		t.Fatalf("SwitchEngine failed: %v", err)
	}

	// 切走后旧引擎的目录仍驻留在共享缓存里，切回时免重新获取
	if _, ok := cache.Voices("edge"); !ok {
		t.Error("old engine's catalog must survive the switch")
	}
}

func TestOrchestrator_DisposeTerminal(t *testing.T) {
	f := newFakeFactory()
	proc := &fakeProcessor{name: "edge", voices: []Voice{{ID: "v"}}}
	f.processors["edge"] = proc
	o := readyOrchestrator(t, f, "edge")

	if err := o.Dispose(); err != nil {
		t.Fatalf("Dispose failed: %v", err)
	}
	if !proc.disposed.Load() {
		t.Error("active processor must be disposed")
	}
	if o.State() != StateDisposed {
		t.Fatalf("expected Disposed, got %s", o.State())
	}

	// 终态：所有操作立即拒绝
	if err := o.Dispose(); err != nil {
		t.Fatalf("Dispose must be idempotent: %v", err)
	}
	if _, err := o.Speak(context.Background(), NewRequest("hi", "v")); !IsCode(err, CodeDisposed) {
		t.Errorf("expected disposed from Speak, got %v", err)
	}
	if err := o.Initialize(context.Background()); !IsCode(err, CodeDisposed) {
		t.Errorf("expected disposed from Initialize, got %v", err)
	}
	if err := o.SwitchEngine(context.Background(), "system"); !IsCode(err, CodeDisposed) {
		t.Errorf("expected disposed from SwitchEngine, got %v", err)
	}
	if _, err := o.AvailableVoices(context.Background()); !IsCode(err, CodeDisposed) {
		t.Errorf("expected disposed from AvailableVoices, got %v", err)
	}
}

func TestOrchestrator_DisposeReportsSubResourceError(t *testing.T) {
	f := newFakeFactory()
	proc := &fakeProcessor{
		name: "edge", voices: []Voice{{ID: "v"}},
		disposeErr: errors.New("device busy"),
	}
	f.processors["edge"] = proc
	o := readyOrchestrator(t, f, "edge")

	err := o.Dispose()
	if err == nil {
		t.Fatal("sub-resource dispose error must be reported")
	}
	// 即使出错也已进入终态
	if o.State() != StateDisposed {
		t.Fatalf("expected Disposed despite the error, got %s", o.State())
	}
}

func TestStateString(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateUninitialized, "Uninitialized"},
		{StateInitializing, "Initializing"},
		{StateReady, "Ready"},
		{StateSpeaking, "Speaking"},
		{StateDisposed, "Disposed"},
		{State(99), "Unknown"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String(): expected %s, got %s", tt.state, tt.want, got)
		}
	}
}
