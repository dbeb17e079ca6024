package token

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEncode_Deterministic(t *testing.T) {
	contentID := "BQACAgUAAxkBAAIBpWXr3kJf9yG2Qv4AAVhnZm9yZ2UAAh4LAAL0vWlVH1d2qFOY1vg0BA"

	first := Encode(contentID)
	second := Encode(contentID)

	assert.Equal(t, first, second)
}

func TestEncode_TokenShape(t *testing.T) {
	tok := Encode("some-content-id")

	// 6 digest bytes encode to 8 URL-safe characters without padding
	assert.Len(t, tok, 8)
	assert.False(t, strings.ContainsAny(tok, "+/="))
}

func TestEncode_DistinctInputs(t *testing.T) {
	tests := []struct {
		name string
		a    string
		b    string
	}{
		{name: "different ids", a: "content-a", b: "content-b"},
		{name: "prefix of each other", a: "content", b: "content-longer"},
		{name: "single char difference", a: "BQACAgUAAxkBAAIBpQ", b: "BQACAgUAAxkBAAIBpR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NotEqual(t, Encode(tt.a), Encode(tt.b))
		})
	}
}

func TestEncode_ShortInput(t *testing.T) {
	tok := Encode("x")

	assert.NotEmpty(t, tok)
	assert.Len(t, tok, 8)
}
