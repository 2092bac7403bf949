package service

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

const (
	dropSelector   = "script, style, head, meta, noscript"
	unwrapSelector = "i, a, strong, b, em, span, sup, sub, mark, del, ins, u, s, small"
)

// 这些标签内的文本原样保留
var skipTags = map[string]bool{
	"pre": true, "code": true, "kbd": true, "samp": true, "abbr": true,
	"address": true, "cite": true, "dfn": true, "bdo": true,
}

var (
	urlPattern    = regexp.MustCompile(`^(?i)(https?://|www\.)\S+$`)
	emailPattern  = regexp.MustCompile(`^[\w.+-]+@[\w-]+(\.[\w-]+)+$`)
	symbolPattern = regexp.MustCompile(`^[\p{N}\p{P}\p{S}\s]+$`)
)

// htmlContent 解析后的正文，nodes 是需要翻译的文本节点
type htmlContent struct {
	doc   *goquery.Document
	nodes []*html.Node
}

// parseContent 清理不可翻译的节点并收集文本节点。quality 模式先展开行内格式标签，让句子保持完整
func parseContent(raw string, quality bool) (*htmlContent, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw))
	if err != nil {
		return nil, err
	}
	doc.Find(dropSelector).Remove()
	removeComments(doc.Nodes[0])

	if quality {
		doc.Find(unwrapSelector).Each(func(_ int, s *goquery.Selection) {
			if s.Contents().Length() == 0 {
				s.Remove()
				return
			}
			s.Contents().Unwrap()
		})
		mergeText(doc.Nodes[0])
	}

	c := &htmlContent{doc: doc}
	body := doc.Find("body")
	for _, n := range body.Nodes {
		c.collect(n)
	}
	return c, nil
}

func (c *htmlContent) collect(n *html.Node) {
	if n.Type == html.ElementNode && skipTags[n.Data] {
		return
	}
	if n.Type == html.TextNode {
		if translatable(n.Data) {
			c.nodes = append(c.nodes, n)
		}
		return
	}
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		c.collect(child)
	}
}

// texts 每个待翻译节点去掉首尾空白后的文本
func (c *htmlContent) texts() []string {
	out := make([]string, len(c.nodes))
	for i, n := range c.nodes {
		out[i] = strings.TrimSpace(n.Data)
	}
	return out
}

// set 替换第 i 个节点的文本，保留原有的首尾空白
func (c *htmlContent) set(i int, text string) {
	n := c.nodes[i]
	lead := n.Data[:len(n.Data)-len(strings.TrimLeftFunc(n.Data, unicode.IsSpace))]
	trail := n.Data[len(strings.TrimRightFunc(n.Data, unicode.IsSpace)):]
	n.Data = lead + text + trail
}

func (c *htmlContent) html() (string, error) {
	return c.doc.Find("body").Html()
}

// translatable 跳过空白、链接、邮箱和纯数字符号
func translatable(text string) bool {
	t := strings.TrimSpace(text)
	if t == "" {
		return false
	}
	return !urlPattern.MatchString(t) && !emailPattern.MatchString(t) && !symbolPattern.MatchString(t)
}

func removeComments(n *html.Node) {
	for child := n.FirstChild; child != nil; {
		next := child.NextSibling
		if child.Type == html.CommentNode {
			n.RemoveChild(child)
		} else {
			removeComments(child)
		}
		child = next
	}
}

// mergeText 合并展开标签后相邻的文本节点
func mergeText(n *html.Node) {
	for child := n.FirstChild; child != nil; {
		next := child.NextSibling
		if child.Type == html.TextNode {
			for next != nil && next.Type == html.TextNode {
				child.Data += next.Data
				after := next.NextSibling
				n.RemoveChild(next)
				next = after
			}
		} else {
			mergeText(child)
		}
		child = next
	}
}

// plainText 提取纯文本，块级元素之间以空行分隔
func plainText(raw string) string {
	if strings.TrimSpace(raw) == "" {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw))
	if err != nil {
		return strings.TrimSpace(raw)
	}
	doc.Find(dropSelector).Remove()

	var parts []string
	blocks := doc.Find("p, li, h1, h2, h3, h4, h5, h6, blockquote, pre, td")
	if blocks.Length() == 0 {
		return collapseSpace(doc.Find("body").Text())
	}
	blocks.Each(func(_ int, s *goquery.Selection) {
		// 只取最内层的块，避免重复
		if s.Find("p, li, blockquote, pre").Length() > 0 {
			return
		}
		if t := collapseSpace(s.Text()); t != "" {
			parts = append(parts, t)
		}
	})
	return strings.Join(parts, "\n\n")
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
