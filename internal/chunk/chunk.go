package chunk

import (
	"strings"
	"unicode"

	"feed-translator/internal/apperr"
)

// DefaultDelimiter 默认按空行切分
const DefaultDelimiter = "\n\n"

// Measure 尺寸度量方式，每个引擎只使用其中一种
type Measure int

const (
	Tokens Measure = iota
	Characters
)

func (m Measure) String() string {
	if m == Characters {
		return "characters"
	}
	return "tokens"
}

// Size 按度量计算文本尺寸
func (m Measure) Size(text string) int {
	if m == Characters {
		return CountCharacters(text)
	}
	return CountTokens(text)
}

// Segment 切分后的片段及其尺寸估算
type Segment struct {
	Text       string
	Tokens     int
	Characters int
}

func (s Segment) size(m Measure) int {
	if m == Characters {
		return s.Characters
	}
	return s.Tokens
}

// Chunk 一次服务调用的输入。Tail 是翻译后需要补回的分隔符
type Chunk struct {
	Text string
	Tail string
}

// Split 按分隔符切分并记录每段的 token/字符数
func Split(text, delimiter string) []Segment {
	if text == "" {
		return nil
	}
	if delimiter == "" {
		delimiter = DefaultDelimiter
	}
	parts := strings.Split(text, delimiter)
	segments := make([]Segment, 0, len(parts))
	for _, p := range parts {
		segments = append(segments, Segment{
			Text:       p,
			Tokens:     CountTokens(p),
			Characters: CountCharacters(p),
		})
	}
	return segments
}

// Group 贪心合并相邻片段，直到再加入下一段会超过 maxSize。
// 单段超过 maxSize 时在上限之前最近的空白或标点处硬切。
// minSize 不参与合并，仅用于摘要分段数插值。
func Group(segments []Segment, delimiter string, minSize, maxSize int, m Measure) ([]Chunk, error) {
	if maxSize <= 0 {
		return nil, apperr.Configuration("chunk max size must be positive, got %d", maxSize)
	}
	if minSize < 0 || minSize > maxSize {
		minSize = 0
	}
	if delimiter == "" {
		delimiter = DefaultDelimiter
	}

	var (
		chunks    []Chunk
		candidate string
		hasCand   bool
	)
	for i, seg := range segments {
		last := i == len(segments)-1
		if seg.size(m) > maxSize {
			if hasCand {
				chunks = append(chunks, Chunk{Text: candidate, Tail: delimiter})
				candidate, hasCand = "", false
			}
			pieces := hardSplit(seg.Text, maxSize, m)
			for j, p := range pieces {
				c := Chunk{Text: p}
				if j == len(pieces)-1 && !last {
					c.Tail = delimiter
				}
				chunks = append(chunks, c)
			}
			continue
		}
		if !hasCand {
			candidate, hasCand = seg.Text, true
			continue
		}
		extended := candidate + delimiter + seg.Text
		if m.Size(extended) > maxSize {
			chunks = append(chunks, Chunk{Text: candidate, Tail: delimiter})
			candidate = seg.Text
			continue
		}
		candidate = extended
	}
	if hasCand {
		chunks = append(chunks, Chunk{Text: candidate})
	}
	return chunks, nil
}

// Plan Split + Group 的便捷组合
func Plan(text, delimiter string, minSize, maxSize int, m Measure) ([]Chunk, error) {
	return Group(Split(text, delimiter), delimiter, minSize, maxSize, m)
}

// Join 按原顺序拼回，Text+Tail 可还原原文
func Join(chunks []Chunk) string {
	var b strings.Builder
	for _, c := range chunks {
		b.WriteString(c.Text)
		b.WriteString(c.Tail)
	}
	return b.String()
}

// TargetChunks 在 1 和 maxChunks 之间按 detail 线性插值
func TargetChunks(detail float64, maxChunks int) int {
	if maxChunks <= 1 {
		return 1
	}
	if detail < 0 {
		detail = 0
	}
	if detail > 1 {
		detail = 1
	}
	return 1 + int(detail*float64(maxChunks-1))
}

// hardSplit 在 rune 边界上切分超长文本，不会切断多字节字符
func hardSplit(text string, maxSize int, m Measure) []string {
	runes := []rune(text)
	var pieces []string
	for len(runes) > 0 {
		if m.Size(string(runes)) <= maxSize {
			pieces = append(pieces, string(runes))
			break
		}
		// 找到不超过上限的最长前缀
		n, lo, hi := 0, 1, len(runes)
		for lo <= hi {
			mid := (lo + hi) / 2
			if m.Size(string(runes[:mid])) <= maxSize {
				n = mid
				lo = mid + 1
			} else {
				hi = mid - 1
			}
		}
		if n == 0 {
			n = 1
		}
		cut := n
		for k := n; k > 1; k-- {
			if isBoundary(runes[k-1]) {
				cut = k
				break
			}
		}
		pieces = append(pieces, string(runes[:cut]))
		runes = runes[cut:]
	}
	return pieces
}

func isBoundary(r rune) bool {
	return unicode.IsSpace(r) || unicode.IsPunct(r)
}
