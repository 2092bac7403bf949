package model

import "strings"

// Language 目标语言代码（封闭枚举）
type Language string

const (
	English            Language = "en"
	ChineseSimplified  Language = "zh-Hans"
	ChineseTraditional Language = "zh-Hant"
	Russian            Language = "ru"
	Japanese           Language = "ja"
	Korean             Language = "ko"
	Czech              Language = "cs"
	Danish             Language = "da"
	German             Language = "de"
	Spanish            Language = "es"
	French             Language = "fr"
	Indonesian         Language = "id"
	Italian            Language = "it"
	Hungarian          Language = "hu"
	Norwegian          Language = "nb"
	Dutch              Language = "nl"
	Polish             Language = "pl"
	Portuguese         Language = "pt"
	Swedish            Language = "sv"
	Turkish            Language = "tr"
)

var languageNames = map[Language]string{
	English:            "English",
	ChineseSimplified:  "Chinese Simplified",
	ChineseTraditional: "Chinese Traditional",
	Russian:            "Russian",
	Japanese:           "Japanese",
	Korean:             "Korean",
	Czech:              "Czech",
	Danish:             "Danish",
	German:             "German",
	Spanish:            "Spanish",
	French:             "French",
	Indonesian:         "Indonesian",
	Italian:            "Italian",
	Hungarian:          "Hungarian",
	Norwegian:          "Norwegian Bokmål",
	Dutch:              "Dutch",
	Polish:             "Polish",
	Portuguese:         "Portuguese",
	Swedish:            "Swedish",
	Turkish:            "Turkish",
}

func (l Language) Valid() bool {
	_, ok := languageNames[l]
	return ok
}

// DisplayName 提示词中使用的英文名称
func (l Language) DisplayName() string {
	if name, ok := languageNames[l]; ok {
		return name
	}
	return string(l)
}

// ParseLanguage 接受代码或英文名称，大小写不敏感
func ParseLanguage(s string) (Language, bool) {
	s = strings.TrimSpace(s)
	for code, name := range languageNames {
		if strings.EqualFold(string(code), s) || strings.EqualFold(name, s) {
			return code, true
		}
	}
	return "", false
}
