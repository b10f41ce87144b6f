package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config 是 skylark 的顶层配置结构。
type Config struct {
	TTS   TTSConfig   `yaml:"tts"`
	Cache CacheConfig `yaml:"cache"`
	Log   LogConfig   `yaml:"log"`
}

// TTSConfig 语音合成配置。
type TTSConfig struct {
	// Engine 默认引擎: edge, tencent, system, browser。
	Engine  string        `yaml:"engine"`
	Edge    EdgeConfig    `yaml:"edge"`
	Tencent TencentConfig `yaml:"tencent"`
	System  SystemConfig  `yaml:"system"`
}

// EdgeConfig 微软 Edge 神经语音配置。
type EdgeConfig struct {
	// Voice 默认语音，如 en-US-AriaNeural。
	Voice string `yaml:"voice"`
}

// TencentConfig 腾讯云 TTS 配置。
type TencentConfig struct {
	SecretID  string `yaml:"secret_id"`
	SecretKey string `yaml:"secret_key"`
	Region    string `yaml:"region"`
	VoiceType int64  `yaml:"voice_type"`
}

// SystemConfig 系统命令引擎配置。
type SystemConfig struct {
	// Voice 默认系统语音名称，为空则使用系统默认。
	Voice string `yaml:"voice"`
}

// CacheConfig 音频缓存配置。
type CacheConfig struct {
	// MaxEntries 音频缓存最大条目数。
	MaxEntries int `yaml:"max_entries"`
	// TTLSeconds 音频缓存条目过期时间（秒）。
	TTLSeconds int `yaml:"ttl_seconds"`
}

// LogConfig 日志配置。
type LogConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSize    int    `yaml:"max_size"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAge     int    `yaml:"max_age"`
}

// Load 读取 YAML 配置文件并返回 Config。
// 支持 ${VAR_NAME} 形式的环境变量展开。
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件 %s 失败: %w", path, err)
	}

	// 展开环境变量，如 ${SKYLARK_TENCENT_SECRET_KEY}
	expanded := os.Expand(string(data), func(key string) string {
		return os.Getenv(key)
	})

	cfg := &Config{}
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("解析配置文件 %s 失败: %w", path, err)
	}

	setDefaults(cfg)
	return cfg, nil
}

// Default 返回填充了默认值的配置，用于不提供配置文件的场景。
func Default() *Config {
	cfg := &Config{}
	setDefaults(cfg)
	return cfg
}

// setDefaults 为未设置的配置项填充默认值。
func setDefaults(cfg *Config) {
	if cfg.TTS.Engine == "" {
		cfg.TTS.Engine = "edge"
	}
	if cfg.TTS.Edge.Voice == "" {
		cfg.TTS.Edge.Voice = "en-US-AriaNeural"
	}
	if cfg.TTS.Tencent.Region == "" {
		cfg.TTS.Tencent.Region = "ap-guangzhou"
	}
	if cfg.TTS.Tencent.VoiceType == 0 {
		cfg.TTS.Tencent.VoiceType = 1001
	}
	if cfg.Cache.MaxEntries == 0 {
		cfg.Cache.MaxEntries = 64
	}
	if cfg.Cache.TTLSeconds == 0 {
		cfg.Cache.TTLSeconds = 1800
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}

	// 去除凭据两端可能的空白（环境变量展开后常见）
	cfg.TTS.Tencent.SecretID = strings.TrimSpace(cfg.TTS.Tencent.SecretID)
	cfg.TTS.Tencent.SecretKey = strings.TrimSpace(cfg.TTS.Tencent.SecretKey)
}
