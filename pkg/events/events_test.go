package events

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeSSE(t *testing.T) {
	tests := []struct {
		name  string
		event Event
		want  map[string]any
	}{
		{
			name:  "route decision",
			event: RouteDecision(RouteSQL),
			want:  map[string]any{"type": "route_decision", "route": "sql"},
		},
		{
			name:  "tool start",
			event: ToolStart(ToolRAGAgent),
			want:  map[string]any{"type": "tool_start", "tool": "rag_agent"},
		},
		{
			name:  "final token",
			event: Token(ChannelFinal, "hello"),
			want:  map[string]any{"type": "token", "channel": "final", "content": "hello"},
		},
		{
			name:  "error",
			event: Error("store unreachable"),
			want:  map[string]any{"type": "error", "error": "store unreachable"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame, err := EncodeSSE(tt.event)
			require.NoError(t, err)

			s := string(frame)
			require.True(t, strings.HasPrefix(s, "data: "))
			require.True(t, strings.HasSuffix(s, "\n\n"))

			var got map[string]any
			require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(strings.TrimPrefix(s, "data: "))), &got))
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEncodeSSEComplete(t *testing.T) {
	frame, err := EncodeSSE(Complete(Stats{Tokens: 3, ReasoningTokens: 1, FinalTokens: 2}))
	require.NoError(t, err)
	assert.Contains(t, string(frame), `"stats":{"tokens":3,"reasoning_tokens":1,"final_tokens":2}`)
}

func TestEmitterCountsTokens(t *testing.T) {
	em := NewEmitter(8)

	ctx := context.Background()
	require.NoError(t, em.Emit(ctx, RouteDecision(RouteGeneral)))
	require.NoError(t, em.Emit(ctx, Token(ChannelReasoning, "SELECT 1")))
	require.NoError(t, em.Emit(ctx, Token(ChannelFinal, "one")))
	require.NoError(t, em.Emit(ctx, Token(ChannelFinal, " row")))
	em.Close()

	var seen []Event
	for ev := range em.Events() {
		seen = append(seen, ev)
	}
	require.Len(t, seen, 4)

	stats := em.Stats()
	assert.Equal(t, 3, stats.Tokens)
	assert.Equal(t, 1, stats.ReasoningTokens)
	assert.Equal(t, 2, stats.FinalTokens)
}

func TestEmitterHonorsCancellation(t *testing.T) {
	em := NewEmitter(0) // no buffer, nobody reading

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := em.Emit(ctx, Token(ChannelFinal, "stuck"))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestTerminal(t *testing.T) {
	assert.True(t, Complete(Stats{}).Terminal())
	assert.True(t, Error("x").Terminal())
	assert.False(t, Token(ChannelFinal, "x").Terminal())
	assert.False(t, RouteDecision(RouteSQL).Terminal())
}
