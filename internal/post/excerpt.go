package post

import (
	"strings"
	"unicode"

	"golang.org/x/net/html"
)

// excerptMaxRunes は一覧表示用抜粋の最大文字数。
const excerptMaxRunes = 160

// buildExcerpt はサニタイズ済みHTMLからプレーンテキストの抜粋を生成する。
// タグを除去してテキストノードのみを連結し、連続する空白を1つにまとめ、
// excerptMaxRunes文字で切り詰めて末尾に省略記号を付ける。
// パースに失敗した場合は空文字列を返す。
func buildExcerpt(sanitizedHTML string) string {
	if strings.TrimSpace(sanitizedHTML) == "" {
		return ""
	}

	doc, err := html.Parse(strings.NewReader(sanitizedHTML))
	if err != nil {
		return ""
	}

	var sb strings.Builder
	collectText(doc, &sb)

	text := collapseWhitespace(sb.String())

	runes := []rune(text)
	if len(runes) <= excerptMaxRunes {
		return text
	}
	return string(runes[:excerptMaxRunes]) + "…"
}

// collectText はHTMLノードツリーを走査してテキストノードを収集する。
func collectText(n *html.Node, sb *strings.Builder) {
	if n.Type == html.TextNode {
		sb.WriteString(n.Data)
		sb.WriteString(" ")
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(c, sb)
	}
}

// collapseWhitespace は連続する空白文字を1つのスペースにまとめる。
func collapseWhitespace(s string) string {
	var sb strings.Builder
	inSpace := false
	for _, r := range s {
		if unicode.IsSpace(r) {
			if !inSpace && sb.Len() > 0 {
				sb.WriteRune(' ')
			}
			inSpace = true
			continue
		}
		sb.WriteRune(r)
		inSpace = false
	}
	return strings.TrimSpace(sb.String())
}
