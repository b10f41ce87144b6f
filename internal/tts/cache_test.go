package tts

import (
	"bytes"
	"fmt"
	"testing"
	"time"
)

func TestCache_AudioReadAfterWrite(t *testing.T) {
	c := NewCache(0, 0)
	data := bytes.Repeat([]byte{0xAB}, 32000)

	c.PutAudio("hello", "en-US-A", "mp3", data)

	got, ok := c.Audio("hello", "en-US-A", "mp3")
	if !ok {
		t.Fatal("expected cache hit")
	}
	if !bytes.Equal(got, data) {
		t.Error("cached data does not match stored data")
	}

	// 键的任一维度不同都应未命中
	if _, ok := c.Audio("hello", "en-US-A", "wav"); ok {
		t.Error("different format should miss")
	}
	if _, ok := c.Audio("hello", "en-GB-B", "mp3"); ok {
		t.Error("different voice should miss")
	}
	if _, ok := c.Audio("hallo", "en-US-A", "mp3"); ok {
		t.Error("different text should miss")
	}
}

func TestCache_SentinelNeverCached(t *testing.T) {
	c := NewCache(0, 0)

	c.PutAudio("hi", "en-US-A", "mp3", Sentinel())
	if _, ok := c.Audio("hi", "en-US-A", "mp3"); ok {
		t.Error("sentinel payload must not be cached")
	}

	// 哨兵上限以内的任何长度都不入缓存
	for n := 0; n <= SentinelMaxBytes; n++ {
		text := fmt.Sprintf("t%d", n)
		c.PutAudio(text, "v", "mp3", make([]byte, n))
		if _, ok := c.Audio(text, "v", "mp3"); ok {
			t.Errorf("%d-byte payload must not be cached", n)
		}
	}

	// 刚超过上限的数据要正常缓存
	c.PutAudio("big", "v", "mp3", make([]byte, SentinelMaxBytes+1))
	if _, ok := c.Audio("big", "v", "mp3"); !ok {
		t.Error("payload above sentinel limit should be cached")
	}
}

func TestCache_CopyOnPut(t *testing.T) {
	c := NewCache(0, 0)
	data := bytes.Repeat([]byte{1}, 100)
	c.PutAudio("text", "v", "mp3", data)

	data[0] = 99
	got, ok := c.Audio("text", "v", "mp3")
	if !ok {
		t.Fatal("expected cache hit")
	}
	if got[0] == 99 {
		t.Error("mutation of caller's slice leaked into cache")
	}
}

func TestCache_CopyOnGet(t *testing.T) {
	c := NewCache(0, 0)
	c.PutAudio("text", "v", "mp3", bytes.Repeat([]byte{1}, 100))

	first, ok := c.Audio("text", "v", "mp3")
	if !ok {
		t.Fatal("expected cache hit")
	}
	first[0] = 99

	second, ok := c.Audio("text", "v", "mp3")
	if !ok {
		t.Fatal("expected cache hit")
	}
	if second[0] == 99 {
		t.Error("mutation of returned slice leaked into cache")
	}
}

func TestCache_TTLExpiry(t *testing.T) {
	c := NewCache(0, 10*time.Millisecond)
	c.PutAudio("text", "v", "mp3", make([]byte, 100))

	if _, ok := c.Audio("text", "v", "mp3"); !ok {
		t.Fatal("expected hit before expiry")
	}

	time.Sleep(30 * time.Millisecond)
	if _, ok := c.Audio("text", "v", "mp3"); ok {
		t.Error("expected miss after TTL expiry")
	}
}

func TestCache_CapacityEviction(t *testing.T) {
	c := NewCache(3, 0)
	for i := 0; i < 5; i++ {
		c.PutAudio(fmt.Sprintf("text%d", i), "v", "mp3", make([]byte, 100))
		time.Sleep(time.Millisecond)
	}

	hits := 0
	for i := 0; i < 5; i++ {
		if _, ok := c.Audio(fmt.Sprintf("text%d", i), "v", "mp3"); ok {
			hits++
		}
	}
	if hits > 3 {
		t.Errorf("expected at most 3 entries, got %d hits", hits)
	}

	// 最新的条目必须还在
	if _, ok := c.Audio("text4", "v", "mp3"); !ok {
		t.Error("most recent entry was evicted")
	}
	// 最旧的条目必须被淘汰
	if _, ok := c.Audio("text0", "v", "mp3"); ok {
		t.Error("oldest entry should have been evicted first")
	}
}

func TestCache_VoicesCopyOut(t *testing.T) {
	c := NewCache(0, 0)
	c.PutVoices("edge", []Voice{{ID: "a"}, {ID: "b"}})

	first, ok := c.Voices("edge")
	if !ok {
		t.Fatal("expected voices hit")
	}
	first[0].ID = "mutated"

	second, _ := c.Voices("edge")
	if second[0].ID != "a" {
		t.Error("mutation of returned slice leaked into cache")
	}
}

func TestCache_InvalidateVoices(t *testing.T) {
	c := NewCache(0, 0)
	c.PutVoices("edge", []Voice{{ID: "a"}})
	c.PutVoices("system", []Voice{{ID: "b"}})

	c.InvalidateVoices("edge")

	if _, ok := c.Voices("edge"); ok {
		t.Error("invalidated catalog should miss")
	}
	if _, ok := c.Voices("system"); !ok {
		t.Error("other engine's catalog should survive invalidation")
	}
}
