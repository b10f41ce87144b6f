package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/skylark-tts/skylark/internal/audio"
	"github.com/skylark-tts/skylark/internal/config"
	"github.com/skylark-tts/skylark/internal/logger"
	"github.com/skylark-tts/skylark/internal/tts"
)

func main() {
	configPath := flag.String("config", "", "配置文件路径（可选）")
	engine := flag.String("engine", "", "合成引擎: edge/tencent/system/browser")
	voice := flag.String("voice", "", "语音 id 或可模糊匹配的名称")
	lang := flag.String("lang", "", "语言名称，如 \"English (United States)\"")
	format := flag.String("format", "mp3", "音频格式标记")
	rate := flag.Float64("rate", 1.0, "语速，1.0 为正常")
	pitch := flag.Float64("pitch", 1.0, "音调，1.0 为正常")
	volume := flag.Float64("volume", 1.0, "音量 [0,1]")
	listVoices := flag.Bool("voices", false, "列出当前引擎的语音后退出")
	outPath := flag.String("out", "", "把合成音频写入文件而不是播放")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
	}
	if *engine != "" {
		cfg.TTS.Engine = *engine
	}

	if err := logger.Init(logger.Config{
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSize:    cfg.Log.MaxSize,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAge:     cfg.Log.MaxAge,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "初始化日志失败: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	deps := tts.Deps{
		Cache: tts.NewCache(cfg.Cache.MaxEntries, time.Duration(cfg.Cache.TTLSeconds)*time.Second),
		Temp:  tts.NewTempFiles(""),
	}

	// 无音频设备（无头环境）时继续运行，云引擎失去直接播放回退
	player, err := audio.NewPlayer()
	if err != nil {
		logger.Warnf("[main] 音频输出不可用: %v", err)
	} else {
		deps.Sink = player
		defer player.Close()
	}

	orch := tts.NewOrchestrator(func(name string) (tts.Processor, error) {
		return tts.NewProcessor(name, deps, cfg)
	}, cfg.TTS.Engine)

	// 监听系统信号：第一次打断播放，第二次退出
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Infof("[main] 收到信号，停止播放...")
		orch.Stop()
		<-sigCh
		cancel()
	}()

	if err := orch.Initialize(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "初始化引擎失败: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if err := orch.Dispose(); err != nil {
			logger.Warnf("[main] 释放引擎出错: %v", err)
		}
	}()

	if *listVoices {
		voices, err := orch.AvailableVoices(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "获取语音列表失败: %v\n", err)
			os.Exit(1)
		}
		for _, v := range voices {
			fmt.Printf("%-28s %-8s %-8s %s\n", v.ID, v.LanguageCode, v.Gender, v.DisplayName)
		}
		return
	}

	text := strings.Join(flag.Args(), " ")
	if strings.TrimSpace(text) == "" {
		fmt.Fprintln(os.Stderr, "用法: skylark [flags] <要朗读的文本>")
		flag.PrintDefaults()
		os.Exit(2)
	}

	req := tts.NewRequest(text, *voice)
	req.LanguageName = *lang
	req.Format = *format
	req.Rate = *rate
	req.Pitch = *pitch
	req.Volume = *volume

	data, err := orch.Speak(ctx, req)
	if err != nil {
		fmt.Fprintf(os.Stderr, "合成失败: %v\n", err)
		os.Exit(1)
	}

	switch {
	case tts.IsSentinel(data):
		logger.Infof("[main] 已直接播放，无音频产物")
	case *outPath != "":
		if err := os.WriteFile(*outPath, data, 0644); err != nil {
			fmt.Fprintf(os.Stderr, "写入 %s 失败: %v\n", *outPath, err)
			os.Exit(1)
		}
		logger.Infof("[main] 已写入 %s (%d 字节)", *outPath, len(data))
	case player != nil:
		if err := player.Play(ctx, data); err != nil && ctx.Err() == nil {
			fmt.Fprintf(os.Stderr, "播放失败: %v\n", err)
			os.Exit(1)
		}
	default:
		fmt.Fprintln(os.Stderr, "无音频输出设备，请用 -out 保存音频")
		os.Exit(1)
	}
}
