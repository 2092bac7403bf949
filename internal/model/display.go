package model

import (
	"feed-translator/internal/apperr"
)

// DisplayMode 译文展示方式
type DisplayMode int

const (
	TranslationOnly     DisplayMode = 0
	TranslationOriginal DisplayMode = 1
	OriginalTranslation DisplayMode = 2
)

const (
	TitleSeparator   = " || "
	ContentSeparator = "<br />---------------<br />"
)

func (m DisplayMode) Valid() bool {
	return m >= TranslationOnly && m <= OriginalTranslation
}

// Format 按展示方式组合原文和译文
func (m DisplayMode) Format(original, translated, separator string) (string, error) {
	switch m {
	case TranslationOnly:
		return translated, nil
	case TranslationOriginal:
		return translated + separator + original, nil
	case OriginalTranslation:
		return original + separator + translated, nil
	}
	return "", apperr.Configuration("display mode %d", int(m))
}
