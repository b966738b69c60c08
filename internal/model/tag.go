package model

// Tag — метка из фиксированного словаря. Сообщения и теги — многие-ко-многим.
type Tag string

const (
	TagDecision Tag = "decision"
	TagQuestion Tag = "question"
	TagAction   Tag = "action"
	TagBlocker  Tag = "blocker"
	TagFYI      Tag = "fyi"
)

// Tags — допустимый словарь в порядке отображения.
var Tags = []Tag{TagDecision, TagQuestion, TagAction, TagBlocker, TagFYI}

// ValidTag сообщает, входит ли t в словарь.
func ValidTag(t string) bool {
	for _, v := range Tags {
		if string(v) == t {
			return true
		}
	}
	return false
}

// DefaultTopic — тема по умолчанию: выбор её не сужает ленту.
const DefaultTopic = "general"
