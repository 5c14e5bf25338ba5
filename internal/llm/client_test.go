package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStripMarkdownCodeBlock_RemovesJSONFence(t *testing.T) {
	in := "```json\n{\"signal\":\"bullish\"}\n```"
	assert.Equal(t, `{"signal":"bullish"}`, StripMarkdownCodeBlock(in))
}

func TestStripMarkdownCodeBlock_RemovesBareFence(t *testing.T) {
	in := "```\n{\"signal\":\"neutral\"}\n```"
	assert.Equal(t, `{"signal":"neutral"}`, StripMarkdownCodeBlock(in))
}

func TestStripMarkdownCodeBlock_PassesThroughUnfenced(t *testing.T) {
	in := `{"signal":"bearish"}`
	assert.Equal(t, in, StripMarkdownCodeBlock(in))
}
