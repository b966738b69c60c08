package main

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/collab/internal/filter"
)

func TestSearchRejectsUnknownCategory(t *testing.T) {
	cmd := NewSearchCmd()
	cmd.SetArgs([]string{"GA001", "--category", "pinned"})
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	err := cmd.Execute()
	assert.ErrorIs(t, err, filter.ErrUnknownCategory)
}

func TestSearchFlags(t *testing.T) {
	cmd := NewSearchCmd()
	for _, name := range []string{"category", "topic", "author", "has-attachments", "has-mentions", "since", "until"} {
		require.NotNil(t, cmd.Flags().Lookup(name), name)
	}
	assert.Contains(t, cmd.Flags().Lookup("author").Usage, "display name")
}
