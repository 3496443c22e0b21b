package completion

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/schema"
)

func TestBuildMessages(t *testing.T) {
	msgs := buildMessages(Request{System: "be brief", User: "what is this?"})
	require.Len(t, msgs, 2)

	assert.Equal(t, schema.ChatMessageTypeSystem, msgs[0].Role)
	assert.Equal(t, schema.ChatMessageTypeHuman, msgs[1].Role)

	require.Len(t, msgs[0].Parts, 1)
	assert.Equal(t, llms.TextContent{Text: "be brief"}, msgs[0].Parts[0])
	require.Len(t, msgs[1].Parts, 1)
	assert.Equal(t, llms.TextContent{Text: "what is this?"}, msgs[1].Parts[0])
}

func TestTransientClassification(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"timeout", errors.New("context deadline exceeded"), true},
		{"rate limited", errors.New("API returned 429 Too Many Requests"), true},
		{"server error", errors.New("unexpected status: 503 Service Unavailable"), true},
		{"connection", errors.New("dial tcp: connection refused"), true},
		{"bad request", errors.New("invalid model parameter"), false},
		{"auth", errors.New("401 unauthorized"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, transient(tt.err))
		})
	}
}
