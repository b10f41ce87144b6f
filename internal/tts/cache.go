package tts

import (
	"sync"
	"time"

	"github.com/skylark-tts/skylark/internal/logger"
)

// SentinelMaxBytes 哨兵数据的最大长度。不大于此长度的合成结果
// 表示"已直接播放，无音频产物"，绝不能写入缓存——缓存哨兵会让
// 后续请求误以为拿到了真实音频。
const SentinelMaxBytes = 10

const (
	defaultCacheEntries = 64
	defaultCacheTTL     = 30 * time.Minute
)

type audioKey struct {
	text     string
	voiceKey string
	format   string
}

type audioEntry struct {
	data    []byte
	addedAt time.Time
}

// Cache 是进程内共享的语音目录与合成音频缓存。
// 可被多个处理器/编排器并发使用；不保证跨进程持久化，
// 调用方应把缓存未命中当作常态。
type Cache struct {
	mu         sync.RWMutex
	voices     map[string][]Voice
	audio      map[audioKey]audioEntry
	maxEntries int
	ttl        time.Duration
}

// NewCache 创建缓存。maxEntries/ttl 不大于 0 时使用默认值。
func NewCache(maxEntries int, ttl time.Duration) *Cache {
	if maxEntries <= 0 {
		maxEntries = defaultCacheEntries
	}
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &Cache{
		voices:     make(map[string][]Voice),
		audio:      make(map[audioKey]audioEntry),
		maxEntries: maxEntries,
		ttl:        ttl,
	}
}

// Voices 返回引擎的缓存语音目录。返回副本，
// 调用方的修改不会影响其他处理器看到的目录。
func (c *Cache) Voices(engineName string) ([]Voice, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	voices, ok := c.voices[engineName]
	if !ok {
		return nil, false
	}
	out := make([]Voice, len(voices))
	copy(out, voices)
	return out, true
}

// PutVoices 缓存引擎的语音目录，覆盖旧条目。
func (c *Cache) PutVoices(engineName string, voices []Voice) {
	stored := make([]Voice, len(voices))
	copy(stored, voices)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.voices[engineName] = stored
}

// InvalidateVoices 移除引擎的语音目录缓存。
func (c *Cache) InvalidateVoices(engineName string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.voices, engineName)
}

// Audio 按 (文本, 语音, 格式) 查找缓存音频。过期条目视为未命中。
// 返回副本，调用方的修改不会污染缓存。
func (c *Cache) Audio(text, voiceKey, format string) ([]byte, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.audio[audioKey{text, voiceKey, format}]
	if !ok {
		return nil, false
	}
	if time.Since(entry.addedAt) > c.ttl {
		return nil, false
	}
	out := make([]byte, len(entry.data))
	copy(out, entry.data)
	return out, true
}

// PutAudio 缓存合成音频。不大于 SentinelMaxBytes 的数据
// （直接播放的哨兵结果）被静默忽略。
func (c *Cache) PutAudio(text, voiceKey, format string, data []byte) {
	if len(data) <= SentinelMaxBytes {
		logger.Debugf("[tts] 跳过缓存: %d 字节的结果是哨兵或空数据", len(data))
		return
	}

	stored := make([]byte, len(data))
	copy(stored, data)

	c.mu.Lock()
	defer c.mu.Unlock()

	c.evictLocked()
	c.audio[audioKey{text, voiceKey, format}] = audioEntry{data: stored, addedAt: time.Now()}
}

// evictLocked 清理过期条目；仍然超限时淘汰最旧的条目。
// 必须在持有写锁时调用。
func (c *Cache) evictLocked() {
	now := time.Now()
	for key, entry := range c.audio {
		if now.Sub(entry.addedAt) > c.ttl {
			delete(c.audio, key)
		}
	}

	for len(c.audio) >= c.maxEntries {
		var oldestKey audioKey
		var oldest time.Time
		first := true
		for key, entry := range c.audio {
			if first || entry.addedAt.Before(oldest) {
				oldestKey = key
				oldest = entry.addedAt
				first = false
			}
		}
		delete(c.audio, oldestKey)
	}
}
