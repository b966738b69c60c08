// Package mention находит и разрешает упоминания вида "@Полное Имя" в тексте сообщений.
package mention

import (
	"sort"
	"strings"
	"unicode"

	"github.com/collab/internal/model"
)

// DefaultLimit — размер окна подсказок при поиске участника.
const DefaultLimit = 5

// ActiveQuery ищет назад от курсора ближайший неэкранированный "@" без пробелов между ним и курсором.
// cursor — позиция в рунах. Возвращает введённый после "@" фрагмент и позицию "@".
func ActiveQuery(text string, cursor int) (query string, at int, ok bool) {
	runes := []rune(text)
	if cursor < 0 || cursor > len(runes) {
		cursor = len(runes)
	}
	for i := cursor - 1; i >= 0; i-- {
		r := runes[i]
		if unicode.IsSpace(r) {
			return "", -1, false
		}
		if r != '@' {
			continue
		}
		if escaped(runes, i) {
			return "", -1, false
		}
		return string(runes[i+1 : cursor]), i, true
	}
	return "", -1, false
}

// escaped: "@" экранирован нечётным числом обратных слешей перед ним.
func escaped(runes []rune, i int) bool {
	n := 0
	for j := i - 1; j >= 0 && runes[j] == '\\'; j-- {
		n++
	}
	return n%2 == 1
}

// Lookup сужает ростер по подстроке в имени или email без учёта регистра.
// Порядок ростера сохраняется; результат ограничен limit.
func Lookup(roster []model.Member, query string, limit int) []model.Member {
	if limit <= 0 {
		limit = DefaultLimit
	}
	q := strings.ToLower(strings.TrimSpace(query))
	out := make([]model.Member, 0, limit)
	for _, m := range roster {
		if q == "" || strings.Contains(strings.ToLower(m.Name), q) || strings.Contains(strings.ToLower(m.Email), q) {
			out = append(out, m)
			if len(out) == limit {
				break
			}
		}
	}
	return out
}

// Token возвращает текст, которым упоминание вставляется в черновик.
func Token(m model.Member) string {
	return "@" + m.Name + " "
}

// Resolve находит участников, упомянутых в body. Имена могут содержать пробелы,
// поэтому на каждом "@" выбирается самое длинное совпадающее имя из ростера.
// Результат без повторов, в порядке первого упоминания.
func Resolve(body string, roster []model.Member) []model.Member {
	if len(roster) == 0 {
		return nil
	}
	byLen := make([]model.Member, 0, len(roster))
	for _, m := range roster {
		if m.Name != "" {
			byLen = append(byLen, m)
		}
	}
	sort.SliceStable(byLen, func(i, j int) bool {
		return len([]rune(byLen[i].Name)) > len([]rune(byLen[j].Name))
	})

	runes := []rune(body)
	seen := make(map[string]struct{})
	var out []model.Member
	for _, at := range positions(runes) {
		rest := runes[at+1:]
		for _, m := range byLen {
			name := []rune(m.Name)
			if len(name) > len(rest) || !strings.EqualFold(string(rest[:len(name)]), m.Name) {
				continue
			}
			if len(rest) > len(name) && isWordRune(rest[len(name)]) {
				continue
			}
			if _, dup := seen[m.ID]; !dup {
				seen[m.ID] = struct{}{}
				out = append(out, m)
			}
			break
		}
	}
	return out
}

// Has сообщает, есть ли в тексте хоть одно упоминание (неэкранированный "@" на границе слова перед буквой).
func Has(body string) bool {
	runes := []rune(body)
	for _, at := range positions(runes) {
		if at+1 < len(runes) && unicode.IsLetter(runes[at+1]) {
			return true
		}
	}
	return false
}

// Mentions сообщает, упомянут ли участник m в body.
func Mentions(body string, m model.Member) bool {
	for _, r := range Resolve(body, []model.Member{m}) {
		if r.ID == m.ID {
			return true
		}
	}
	return false
}

// positions — индексы "@", которые начинают упоминание: не экранированы и не стоят внутри слова (email).
func positions(runes []rune) []int {
	var out []int
	for i, r := range runes {
		if r != '@' || escaped(runes, i) {
			continue
		}
		if i > 0 && isWordRune(runes[i-1]) {
			continue
		}
		out = append(out, i)
	}
	return out
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_'
}
