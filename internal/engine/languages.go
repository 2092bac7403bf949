package engine

import (
	"feed-translator/internal/apperr"
	"feed-translator/internal/model"
)

// codeMap 固定词表服务的语言代码，不在表中的语言直接失败
type codeMap map[model.Language]string

func (m codeMap) code(provider string, lang model.Language) (string, error) {
	if c, ok := m[lang]; ok {
		return c, nil
	}
	return "", apperr.UnsupportedLanguage(provider, string(lang))
}

var deeplCodes = codeMap{
	model.English:           "EN-US",
	model.ChineseSimplified: "ZH",
	model.Russian:           "RU",
	model.Japanese:          "JA",
	model.Korean:            "KO",
	model.Czech:             "CS",
	model.Danish:            "DA",
	model.German:            "DE",
	model.Spanish:           "ES",
	model.French:            "FR",
	model.Indonesian:        "ID",
	model.Italian:           "IT",
	model.Hungarian:         "HU",
	model.Norwegian:         "NB",
	model.Dutch:             "NL",
	model.Polish:            "PL",
	model.Portuguese:        "PT-PT",
	model.Swedish:           "SV",
	model.Turkish:           "TR",
}

var deeplxCodes = func() codeMap {
	m := make(codeMap, len(deeplCodes))
	for k, v := range deeplCodes {
		m[k] = v
	}
	m[model.English] = "EN"
	return m
}()

var googleCodes = codeMap{
	model.English:            "en",
	model.ChineseSimplified:  "zh-CN",
	model.ChineseTraditional: "zh-TW",
	model.Russian:            "ru",
	model.Japanese:           "ja",
	model.Korean:             "ko",
	model.Czech:              "cs",
	model.Danish:             "da",
	model.German:             "de",
	model.Spanish:            "es",
	model.French:             "fr",
	model.Indonesian:         "id",
	model.Italian:            "it",
	model.Hungarian:          "hu",
	model.Norwegian:          "no",
	model.Dutch:              "nl",
	model.Polish:             "pl",
	model.Portuguese:         "pt",
	model.Swedish:            "sv",
	model.Turkish:            "tr",
}

// Microsoft 使用与本项目相同的代码
var microsoftCodes = codeMap{
	model.English:            "en",
	model.ChineseSimplified:  "zh-Hans",
	model.ChineseTraditional: "zh-Hant",
	model.Russian:            "ru",
	model.Japanese:           "ja",
	model.Korean:             "ko",
	model.Czech:              "cs",
	model.Danish:             "da",
	model.German:             "de",
	model.Spanish:            "es",
	model.French:             "fr",
	model.Indonesian:         "id",
	model.Italian:            "it",
	model.Hungarian:          "hu",
	model.Norwegian:          "nb",
	model.Dutch:              "nl",
	model.Polish:             "pl",
	model.Portuguese:         "pt",
	model.Swedish:            "sv",
	model.Turkish:            "tr",
}
