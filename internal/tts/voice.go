package tts

import (
	"strings"
)

// Gender 语音性别。
type Gender int

const (
	GenderUnknown Gender = iota
	GenderMale
	GenderFemale
)

var genderNames = [...]string{"unknown", "male", "female"}

func (g Gender) String() string {
	if int(g) < len(genderNames) {
		return genderNames[g]
	}
	return "unknown"
}

// Quality 语音质量等级。
type Quality int

const (
	QualityStandard Quality = iota
	QualityNeural
	QualityPremium
)

var qualityNames = [...]string{"standard", "neural", "premium"}

func (q Quality) String() string {
	if int(q) < len(qualityNames) {
		return qualityNames[q]
	}
	return "standard"
}

// Voice 描述一个引擎语音。创建后不可变；
// id 仅在所属引擎内唯一，跨引擎不保证。
type Voice struct {
	ID           string
	DisplayName  string
	LanguageCode string
	Gender       Gender
	Quality      Quality
	IsNeural     bool
}

// ParseVoice 将引擎返回的原始语音数据解析为 Voice。
// 各引擎的字段命名不一致（Edge REST 形如 ShortName/Locale，
// Web Speech 形如 voiceURI/lang，系统命令解析产物为小写键），
// 按候选键依次取值。无法取得 id 的条目视为不可解析。
func ParseVoice(raw map[string]interface{}) (Voice, bool) {
	id := firstString(raw, "ShortName", "voiceURI", "id", "Name", "name")
	if id == "" {
		return Voice{}, false
	}

	locale := normalizeLocale(firstString(raw, "Locale", "locale", "lang", "language", "Language"))
	display := firstString(raw, "FriendlyName", "DisplayName", "display_name", "name", "Name")
	if display == "" {
		display = id
	}

	gender := GenderUnknown
	switch strings.ToLower(firstString(raw, "Gender", "gender")) {
	case "male", "m":
		gender = GenderMale
	case "female", "f":
		gender = GenderFemale
	}

	isNeural := strings.Contains(id, "Neural")
	quality := QualityStandard
	switch strings.ToLower(firstString(raw, "VoiceType", "quality", "Quality")) {
	case "neural":
		isNeural = true
		quality = QualityNeural
	case "premium":
		quality = QualityPremium
	default:
		if isNeural {
			quality = QualityNeural
		}
	}

	return Voice{
		ID:           id,
		DisplayName:  display,
		LanguageCode: locale,
		Gender:       gender,
		Quality:      quality,
		IsNeural:     isNeural,
	}, true
}

// ParseVoices 逐条解析原始语音数据，按 id 去重，丢弃不可解析的条目。
func ParseVoices(raw []map[string]interface{}) []Voice {
	voices := make([]Voice, 0, len(raw))
	seen := make(map[string]struct{}, len(raw))
	for _, entry := range raw {
		v, ok := ParseVoice(entry)
		if !ok {
			continue
		}
		if _, dup := seen[v.ID]; dup {
			continue
		}
		seen[v.ID] = struct{}{}
		voices = append(voices, v)
	}
	return voices
}

// firstString 按候选键顺序返回第一个非空字符串值。
func firstString(raw map[string]interface{}, keys ...string) string {
	for _, key := range keys {
		if val, ok := raw[key]; ok {
			if s, ok := val.(string); ok && strings.TrimSpace(s) != "" {
				return strings.TrimSpace(s)
			}
		}
	}
	return ""
}

// normalizeLocale 将 xx_YY / XX-yy 等写法统一为 xx-YY。
func normalizeLocale(locale string) string {
	locale = strings.ReplaceAll(locale, "_", "-")
	parts := strings.SplitN(locale, "-", 2)
	if len(parts) == 2 {
		return strings.ToLower(parts[0]) + "-" + strings.ToUpper(parts[1])
	}
	return strings.ToLower(locale)
}
