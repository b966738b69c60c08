package mention

import (
	"testing"

	"github.com/collab/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var roster = []model.Member{
	{ID: "u1", Name: "Maria", Email: "maria@example.com"},
	{ID: "u2", Name: "Maria Lopez", Email: "mlopez@example.com"},
	{ID: "u3", Name: "Ana", Email: "ana@example.com"},
	{ID: "u4", Name: "Marco", Email: "marco@corp.io"},
	{ID: "u5", Name: "Mario", Email: "mario@corp.io"},
	{ID: "u6", Name: "Marina", Email: "marina@corp.io"},
	{ID: "u7", Name: "Amara", Email: "amara@corp.io"},
}

func TestActiveQuery(t *testing.T) {
	tests := []struct {
		name   string
		text   string
		cursor int
		query  string
		at     int
		ok     bool
	}{
		{name: "bare at", text: "hi @", cursor: 4, query: "", at: 3, ok: true},
		{name: "partial", text: "hi @Mar", cursor: 7, query: "Mar", at: 3, ok: true},
		{name: "cursor mid token", text: "hi @Maria", cursor: 6, query: "Ma", at: 3, ok: true},
		{name: "whitespace breaks", text: "hi @Maria x", cursor: 11, ok: false, at: -1},
		{name: "escaped", text: `hi \@Mar`, cursor: 8, ok: false, at: -1},
		{name: "double backslash is not escape", text: `\\@Mar`, cursor: 6, query: "Mar", at: 2, ok: true},
		{name: "no at", text: "hello", cursor: 5, ok: false, at: -1},
		{name: "cursor past end clamps", text: "@An", cursor: 99, query: "An", at: 0, ok: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, at, ok := ActiveQuery(tt.text, tt.cursor)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.at, at)
			assert.Equal(t, tt.query, q)
		})
	}
}

func TestLookupCaseInsensitiveAndCapped(t *testing.T) {
	got := Lookup(roster, "MAR", 5)
	require.Len(t, got, 5)
	assert.Equal(t, "u1", got[0].ID)

	byEmail := Lookup(roster, "corp.io", 10)
	assert.Len(t, byEmail, 4)

	assert.Len(t, Lookup(roster, "", 0), DefaultLimit)
	assert.Empty(t, Lookup(roster, "zzz", 5))
}

func TestResolvePrefersLongestName(t *testing.T) {
	got := Resolve("ping @Maria Lopez and @maria, cc @Ana", roster)
	require.Len(t, got, 3)
	assert.Equal(t, "u2", got[0].ID)
	assert.Equal(t, "u1", got[1].ID)
	assert.Equal(t, "u3", got[2].ID)
}

func TestResolveIgnoresEmailsAndEscapes(t *testing.T) {
	assert.Empty(t, Resolve("write to ana@Ana.com", roster))
	assert.Empty(t, Resolve(`not a mention: \@Ana`, roster))
	assert.Empty(t, Resolve("@Anabel is not Ana", roster))
}

func TestHasAndMentions(t *testing.T) {
	assert.True(t, Has("Hello @Maria"))
	assert.False(t, Has("mail me at a@b.c"))
	assert.False(t, Has("price @ 5"))
	assert.True(t, Mentions("Hello @Maria", roster[0]))
	assert.False(t, Mentions("Hello @Maria", roster[2]))
}

func TestToken(t *testing.T) {
	assert.Equal(t, "@Maria Lopez ", Token(roster[1]))
}
