// Package filter отбирает сообщения ленты для отображения.
// Все функции детерминированы и не имеют побочных эффектов.
package filter

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/collab/internal/mention"
	"github.com/collab/internal/model"
)

// Category — быстрый фильтр по одной категории.
type Category string

const (
	CategoryNone        Category = ""
	CategoryAttachments Category = "attachments"
	CategoryImages      Category = "images"
	CategoryMentions    Category = "mentions"
	CategorySaved       Category = "saved"
)

// Categories — допустимые категории, кроме CategoryNone.
var Categories = []Category{CategoryAttachments, CategoryImages, CategoryMentions, CategorySaved}

var ErrUnknownCategory = errors.New("filter: unknown category")

// ParseCategory разбирает имя категории; пустая строка — CategoryNone.
func ParseCategory(s string) (Category, error) {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	if c == CategoryNone {
		return c, nil
	}
	for _, known := range Categories {
		if c == known {
			return c, nil
		}
	}
	return CategoryNone, fmt.Errorf("%w: %q", ErrUnknownCategory, s)
}

// Criteria — структурированные условия. Пустое поле не сужает выборку.
type Criteria struct {
	Author         string     `json:"author,omitempty"`
	From           *time.Time `json:"from,omitempty"`
	To             *time.Time `json:"to,omitempty"`
	HasAttachments bool       `json:"has_attachments,omitempty"`
	HasMentions    bool       `json:"has_mentions,omitempty"`
}

// IsZero сообщает, что ни одно условие не задано.
func (c Criteria) IsZero() bool {
	return c.Author == "" && c.From == nil && c.To == nil && !c.HasAttachments && !c.HasMentions
}

// Query — полный набор фильтров ленты.
type Query struct {
	Text     string
	Category Category
	Criteria Criteria
	Topic    string
}

// Context — сведения о просматривающем пользователе, нужные части категорий.
type Context struct {
	// Viewer — для категории "упоминания": сообщения, где упомянут он.
	Viewer model.Member
	// Saved — идентификаторы сохранённых пользователем сообщений.
	Saved map[string]struct{}
}

// Predicate — условие отбора одного сообщения.
type Predicate func(m *model.Message) bool

// Apply возвращает сообщения, прошедшие все фильтры (логическое И), в исходном порядке.
// Тема применяется последней: DefaultTopic или пустая тема пропускают всё.
func Apply(msgs []model.Message, q Query, fc Context) []model.Message {
	preds := Predicates(q, fc)
	out := make([]model.Message, 0, len(msgs))
	for i := range msgs {
		if match(&msgs[i], preds) {
			out = append(out, msgs[i])
		}
	}
	return ByTopic(out, q.Topic)
}

// Predicates собирает условия запроса (без темы). Порядок условий не влияет на результат.
func Predicates(q Query, fc Context) []Predicate {
	var preds []Predicate
	if p := textPredicate(q.Text); p != nil {
		preds = append(preds, p)
	}
	if p := categoryPredicate(q.Category, fc); p != nil {
		preds = append(preds, p)
	}
	return append(preds, CriteriaPredicates(q.Criteria)...)
}

// CriteriaPredicates раскладывает Criteria на независимые условия.
func CriteriaPredicates(c Criteria) []Predicate {
	var preds []Predicate
	if author := strings.ToLower(strings.TrimSpace(c.Author)); author != "" {
		preds = append(preds, func(m *model.Message) bool {
			return strings.Contains(strings.ToLower(m.AuthorName), author)
		})
	}
	if c.From != nil {
		from := *c.From
		preds = append(preds, func(m *model.Message) bool { return !m.CreatedAt.Before(from) })
	}
	if c.To != nil {
		to := *c.To
		preds = append(preds, func(m *model.Message) bool { return !m.CreatedAt.After(to) })
	}
	if c.HasAttachments {
		preds = append(preds, hasAttachments)
	}
	if c.HasMentions {
		preds = append(preds, func(m *model.Message) bool { return mention.Has(m.Body) })
	}
	return preds
}

// Select оставляет сообщения, удовлетворяющие всем условиям.
func Select(msgs []model.Message, preds ...Predicate) []model.Message {
	out := make([]model.Message, 0, len(msgs))
	for i := range msgs {
		if match(&msgs[i], preds) {
			out = append(out, msgs[i])
		}
	}
	return out
}

// ByTopic — финальное сужение по теме.
func ByTopic(msgs []model.Message, topic string) []model.Message {
	if topic == "" || topic == model.DefaultTopic {
		return msgs
	}
	out := make([]model.Message, 0, len(msgs))
	for _, m := range msgs {
		if m.Topic == topic {
			out = append(out, m)
		}
	}
	return out
}

func match(m *model.Message, preds []Predicate) bool {
	for _, p := range preds {
		if !p(m) {
			return false
		}
	}
	return true
}

func textPredicate(text string) Predicate {
	q := strings.ToLower(strings.TrimSpace(text))
	if q == "" {
		return nil
	}
	return func(m *model.Message) bool {
		if strings.Contains(strings.ToLower(m.Body), q) || strings.Contains(strings.ToLower(m.AuthorName), q) {
			return true
		}
		for _, a := range m.AllAttachments() {
			if strings.Contains(strings.ToLower(a.FileName), q) {
				return true
			}
		}
		return false
	}
}

func categoryPredicate(c Category, fc Context) Predicate {
	switch c {
	case CategoryAttachments:
		return hasAttachments
	case CategoryImages:
		return func(m *model.Message) bool {
			for _, a := range m.AllAttachments() {
				if a.IsImage() {
					return true
				}
			}
			return false
		}
	case CategoryMentions:
		return func(m *model.Message) bool {
			if fc.Viewer.ID == "" {
				return mention.Has(m.Body)
			}
			return mention.Mentions(m.Body, fc.Viewer)
		}
	case CategorySaved:
		return func(m *model.Message) bool {
			_, ok := fc.Saved[m.ID]
			return ok
		}
	default:
		return nil
	}
}

func hasAttachments(m *model.Message) bool {
	return m.Attachment != nil || len(m.Attachments) > 0
}
