package chunk

import (
	"sync"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
	tiktoken_loader "github.com/pkoukk/tiktoken-go-loader"
)

// EncodingName 所有估算共用的分词模型
const EncodingName = "cl100k_base"

var (
	encOnce sync.Once
	encMu   sync.Mutex
	enc     *tiktoken.Tiktoken
)

func encoding() *tiktoken.Tiktoken {
	encOnce.Do(func() {
		tiktoken.SetBpeLoader(tiktoken_loader.NewOfflineLoader())
		e, err := tiktoken.GetEncoding(EncodingName)
		if err == nil {
			enc = e
		}
	})
	return enc
}

// CountTokens 估算 token 数
func CountTokens(text string) int {
	if text == "" {
		return 0
	}
	e := encoding()
	if e == nil {
		// 分词表不可用时按 4 字符 1 token 估算
		return (utf8.RuneCountInString(text) + 3) / 4
	}
	encMu.Lock()
	defer encMu.Unlock()
	return len(e.Encode(text, nil, nil))
}

// CountCharacters 按 rune 计数
func CountCharacters(text string) int {
	return utf8.RuneCountInString(text)
}
