package composer

import (
	"html"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Style — вид разметки для оборачивания выделения.
type Style int

const (
	StyleBold Style = iota
	StyleItalic
	StyleCode
	StyleCodeBlock
	StyleLink
)

func markers(s Style, url string) (open, close string) {
	switch s {
	case StyleBold:
		return "**", "**"
	case StyleItalic:
		return "*", "*"
	case StyleCode:
		return "`", "`"
	case StyleCodeBlock:
		return "```\n", "\n```"
	case StyleLink:
		return "[", "](" + url + ")"
	}
	return "", ""
}

// wrap оборачивает руны [start, end) разметкой. Если выделение уже обёрнуто
// этой разметкой, обёртка снимается. Возвращает новый текст и выделение.
func wrap(text string, start, end int, s Style, url string) (string, int, int) {
	runes := []rune(text)
	start, end = clamp(start, len(runes)), clamp(end, len(runes))
	if start > end {
		start, end = end, start
	}
	open, close := markers(s, url)
	ro, rc := []rune(open), []rune(close)

	if s != StyleLink && start >= len(ro) && end+len(rc) <= len(runes) &&
		string(runes[start-len(ro):start]) == open && string(runes[end:end+len(rc)]) == close {
		out := make([]rune, 0, len(runes)-len(ro)-len(rc))
		out = append(out, runes[:start-len(ro)]...)
		out = append(out, runes[start:end]...)
		out = append(out, runes[end+len(rc):]...)
		return string(out), start - len(ro), end - len(ro)
	}

	out := make([]rune, 0, len(runes)+len(ro)+len(rc))
	out = append(out, runes[:start]...)
	out = append(out, ro...)
	out = append(out, runes[start:end]...)
	out = append(out, rc...)
	out = append(out, runes[end:]...)
	return string(out), start + len(ro), end + len(ro)
}

func clamp(i, n int) int {
	if i < 0 {
		return 0
	}
	if i > n {
		return n
	}
	return i
}

// Render переводит разметку в HTML: **жирный**, *курсив* и _курсив_, `код`,
// ```блок кода```, [текст](url) и голые http(s)-ссылки.
// Готовые теги пропускаются как есть, непарные маркеры и одиночная "<" заменяются сущностями,
// поэтому Render(Render(s)) == Render(s). Текст вне разметки не экранируется:
// очистка HTML — забота вызывающего.
func Render(text string) string {
	var b strings.Builder
	b.Grow(len(text) + 16)
	render(&b, text, true)
	return b.String()
}

func render(b *strings.Builder, s string, links bool) {
	for i := 0; i < len(s); {
		c := s[i]
		switch {
		case c == '<':
			if j := tagSpan(s, i); j > i {
				b.WriteString(s[i:j])
				i = j
				continue
			}
			// одиночная "<" иначе склеится со следующим сгенерированным ">" при повторном проходе
			b.WriteString("&lt;")
			i++

		case strings.HasPrefix(s[i:], "```"):
			end := strings.Index(s[i+3:], "```")
			if end < 0 {
				b.WriteString("&#96;&#96;&#96;")
				i += 3
				continue
			}
			body := strings.TrimPrefix(s[i+3:i+3+end], "\n")
			body = strings.TrimSuffix(body, "\n")
			b.WriteString("<pre><code>")
			b.WriteString(html.EscapeString(body))
			b.WriteString("</code></pre>")
			i += 6 + end

		case c == '`':
			end := strings.IndexByte(s[i+1:], '`')
			if end <= 0 {
				b.WriteString("&#96;")
				i++
				continue
			}
			b.WriteString("<code>")
			b.WriteString(html.EscapeString(s[i+1 : i+1+end]))
			b.WriteString("</code>")
			i += 2 + end

		case strings.HasPrefix(s[i:], "**"):
			if end := closing(s, i+2, "**"); end > 0 {
				b.WriteString("<strong>")
				render(b, s[i+2:end], links)
				b.WriteString("</strong>")
				i = end + 2
				continue
			}
			b.WriteString("&#42;&#42;")
			i += 2

		case c == '*':
			if end := closing(s, i+1, "*"); end > 0 {
				b.WriteString("<em>")
				render(b, s[i+1:end], links)
				b.WriteString("</em>")
				i = end + 1
				continue
			}
			b.WriteString("&#42;")
			i++

		case c == '_' && !wordBefore(s, i):
			if end := closing(s, i+1, "_"); end > 0 && !wordAfter(s, end+1) {
				b.WriteString("<em>")
				render(b, s[i+1:end], links)
				b.WriteString("</em>")
				i = end + 1
				continue
			}
			b.WriteString("&#95;")
			i++

		case c == '[' && links:
			if text, url, n := linkAt(s[i:]); n > 0 {
				b.WriteString(`<a href="`)
				b.WriteString(html.EscapeString(url))
				b.WriteString(`">`)
				render(b, text, false)
				b.WriteString("</a>")
				i += n
				continue
			}
			b.WriteString("&#91;")
			i++

		case links && (c == 'h' || c == 'H') && !wordBefore(s, i) && urlStart(s[i:]):
			n := urlLen(s[i:])
			url := s[i : i+n]
			b.WriteString(`<a href="`)
			b.WriteString(html.EscapeString(url))
			b.WriteString(`">`)
			b.WriteString(html.EscapeString(url))
			b.WriteString("</a>")
			i += n

		default:
			b.WriteByte(c)
			i++
		}
	}
}

// closing ищет закрывающий маркер: содержимое непустое и не начинается/не кончается пробелом.
func closing(s string, from int, marker string) int {
	if from >= len(s) || s[from] == ' ' || s[from] == '\n' {
		return -1
	}
	for j := from + 1; j+len(marker) <= len(s); j++ {
		if s[j] == '<' && tagSpan(s, j) > j {
			return -1
		}
		if !strings.HasPrefix(s[j:], marker) {
			continue
		}
		if marker == "*" && strings.HasPrefix(s[j:], "**") {
			j++
			continue
		}
		// "***" закрывает сначала вложенный курсив
		if marker == "**" && strings.HasPrefix(s[j:], "***") {
			j++
		}
		if s[j-1] == ' ' || s[j-1] == '\n' {
			continue
		}
		return j
	}
	return -1
}

var blockTags = []string{"a", "code", "pre"}

// tagSpan возвращает конец готового HTML-тега, начинающегося в i (для a/code/pre — до закрывающего тега),
// или i, если это не тег.
func tagSpan(s string, i int) int {
	j := i + 1
	if j < len(s) && s[j] == '/' {
		j++
	}
	if j >= len(s) || !isASCIILetter(s[j]) {
		return i
	}
	gt := strings.IndexByte(s[i:], '>')
	if gt < 0 {
		return i
	}
	end := i + gt + 1
	if s[i+1] == '/' {
		return end
	}
	name := s[j:end]
	if k := strings.IndexAny(name, " >/"); k >= 0 {
		name = name[:k]
	}
	for _, t := range blockTags {
		if strings.EqualFold(name, t) {
			closeTag := "</" + t + ">"
			if k := strings.Index(strings.ToLower(s[end:]), closeTag); k >= 0 {
				return end + k + len(closeTag)
			}
		}
	}
	return end
}

func isASCIILetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

// linkAt разбирает [text](url) в начале s; n — длина разметки.
func linkAt(s string) (text, url string, n int) {
	closeText := strings.Index(s, "](")
	if closeText <= 1 || strings.ContainsAny(s[1:closeText], "[]\n") {
		return "", "", 0
	}
	rest := s[closeText+2:]
	closeURL := strings.IndexByte(rest, ')')
	if closeURL <= 0 || strings.ContainsAny(rest[:closeURL], " \n\t<\"") {
		return "", "", 0
	}
	return s[1:closeText], rest[:closeURL], closeText + 2 + closeURL + 1
}

func urlStart(s string) bool {
	l := strings.ToLower(s)
	return (strings.HasPrefix(l, "http://") && len(s) > 7) || (strings.HasPrefix(l, "https://") && len(s) > 8)
}

// urlLen — длина ссылки до пробела, кавычки или тега, без завершающей пунктуации.
func urlLen(s string) int {
	n := strings.IndexFunc(s, func(r rune) bool {
		return unicode.IsSpace(r) || r == '<' || r == '"'
	})
	if n < 0 {
		n = len(s)
	}
	for n > 0 && strings.ContainsRune(".,;:!?)'", rune(s[n-1])) {
		n--
	}
	return n
}

func wordBefore(s string, i int) bool {
	if i == 0 {
		return false
	}
	r, _ := utf8.DecodeLastRuneInString(s[:i])
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

func wordAfter(s string, i int) bool {
	if i >= len(s) {
		return false
	}
	r, _ := utf8.DecodeRuneInString(s[i:])
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}
