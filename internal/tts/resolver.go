package tts

import (
	"regexp"
	"sort"
	"strings"
)

// languageLocales 将英文语言名映射到默认地区代码。
// 阿拉伯语各地区变体按约定默认 ar-SA。
var languageLocales = map[string]string{
	"arabic":     "ar-SA",
	"chinese":    "zh-CN",
	"mandarin":   "zh-CN",
	"czech":      "cs-CZ",
	"danish":     "da-DK",
	"dutch":      "nl-NL",
	"english":    "en-US",
	"finnish":    "fi-FI",
	"french":     "fr-FR",
	"german":     "de-DE",
	"greek":      "el-GR",
	"hebrew":     "he-IL",
	"hindi":      "hi-IN",
	"hungarian":  "hu-HU",
	"indonesian": "id-ID",
	"italian":    "it-IT",
	"japanese":   "ja-JP",
	"korean":     "ko-KR",
	"norwegian":  "nb-NO",
	"polish":     "pl-PL",
	"portuguese": "pt-BR",
	"russian":    "ru-RU",
	"spanish":    "es-ES",
	"swedish":    "sv-SE",
	"thai":       "th-TH",
	"turkish":    "tr-TR",
	"vietnamese": "vi-VN",
}

// languageNames 是 languageLocales 的键，长名在前，保证匹配顺序确定。
var languageNames = func() []string {
	names := make([]string, 0, len(languageLocales))
	for name := range languageLocales {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if len(names[i]) != len(names[j]) {
			return len(names[i]) > len(names[j])
		}
		return names[i] < names[j]
	})
	return names
}()

var localePattern = regexp.MustCompile(`([a-zA-Z]{2,3})[-_]([a-zA-Z]{2,4})`)

// ExtractLocale 从任意请求串中提取 xx-YY 形式的地区标记。
// 先找显式的地区代码，再按英文语言名查表。找不到返回空串。
func ExtractLocale(s string) string {
	if m := localePattern.FindStringSubmatch(s); m != nil {
		return normalizeLocale(m[1] + "-" + m[2])
	}
	lower := strings.ToLower(s)
	for _, name := range languageNames {
		if strings.Contains(lower, name) {
			return languageLocales[name]
		}
	}
	return ""
}

// maxCandidates 诊断错误中携带的候选语音数量上限。
const maxCandidates = 5

// Resolver 将请求的语音标识解析为目录中的具体语音。
// 对固定目录是纯函数：相同输入永远产生相同输出。
type Resolver struct {
	unsupported map[string]struct{}
}

// NewResolver 创建解析器。unsupportedLocales 列出该引擎平台
// 已知缺失的地区（如浏览器引擎上的部分阿拉伯语/印地语/希腊语），
// 用于在解析失败时标记错误。
func NewResolver(unsupportedLocales []string) *Resolver {
	set := make(map[string]struct{}, len(unsupportedLocales))
	for _, loc := range unsupportedLocales {
		set[strings.ToLower(loc)] = struct{}{}
	}
	return &Resolver{unsupported: set}
}

// Resolve 按顺序尝试：精确 id 匹配 → 地区提取后精确地区匹配 →
// 去掉地区只按语言前缀匹配。全部失败时返回 voice_not_found，
// 错误携带目录前 5 个候选 id 和已知不支持标记。
func (r *Resolver) Resolve(requested string, catalog []Voice) (Voice, error) {
	requested = strings.TrimSpace(requested)

	// 1. 精确 id
	for _, v := range catalog {
		if v.ID == requested {
			return v, nil
		}
	}
	for _, v := range catalog {
		if strings.EqualFold(v.ID, requested) {
			return v, nil
		}
	}

	locale := ExtractLocale(requested)
	if locale != "" {
		// 2. 精确地区
		for _, v := range catalog {
			if strings.EqualFold(v.LanguageCode, locale) {
				return v, nil
			}
		}

		// 3. 只按语言前缀
		lang := strings.SplitN(locale, "-", 2)[0]
		for _, v := range catalog {
			if strings.EqualFold(langOf(v.LanguageCode), lang) {
				return v, nil
			}
		}
	}

	candidates := make([]string, 0, maxCandidates)
	for _, v := range catalog {
		if len(candidates) == maxCandidates {
			break
		}
		candidates = append(candidates, v.ID)
	}

	return Voice{}, &Error{
		Code:              CodeVoiceNotFound,
		Message:           "未找到匹配的语音: " + requested,
		Candidates:        candidates,
		UnsupportedLocale: r.isUnsupported(locale),
	}
}

func (r *Resolver) isUnsupported(locale string) bool {
	if locale == "" {
		return false
	}
	_, ok := r.unsupported[strings.ToLower(locale)]
	return ok
}

func langOf(locale string) string {
	return strings.SplitN(locale, "-", 2)[0]
}
