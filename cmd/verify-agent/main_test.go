package main

import (
	"testing"

	"stock-tracker/internal/ai"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRender(t *testing.T) {
	out, err := render(&ai.Interpretation{ClarificationQuestion: "which unit?", Confidence: 0.4})
	require.NoError(t, err)
	assert.Contains(t, out, `"which unit?"`)

	_, err = render(map[string]any{"bad": make(chan int)})
	assert.Error(t, err)
}
