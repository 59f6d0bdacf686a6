package anthropic

import (
	"testing"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromSDKMessage(t *testing.T) {
	sdkMsg := &sdk.Message{
		ID:           "msg_test_123",
		Model:        "claude-sonnet-4-5-20250929",
		StopReason:   "end_turn",
		StopSequence: "STOP",
		Content: []sdk.ContentBlockUnion{
			{Type: "text", Text: `x = \frac{1}{2}`},
			{Type: "text", Text: " + y"},
		},
		Usage: sdk.Usage{
			InputTokens:  100,
			OutputTokens: 50,
		},
	}

	resp := fromSDKMessage(sdkMsg)
	require.NotNil(t, resp)
	assert.Equal(t, "msg_test_123", resp.ID)
	assert.Equal(t, "claude-sonnet-4-5-20250929", resp.Model)
	assert.Equal(t, "end_turn", resp.StopReason)
	assert.Equal(t, "STOP", resp.StopSequence)
	require.Len(t, resp.Content, 2)
	assert.Equal(t, `x = \frac{1}{2} + y`, resp.Text())
	assert.Equal(t, int64(100), resp.Usage.InputTokens)
	assert.Equal(t, int64(50), resp.Usage.OutputTokens)
}

func TestFromSDKMessage_EmptyContent(t *testing.T) {
	resp := fromSDKMessage(&sdk.Message{ID: "msg_empty", StopReason: "max_tokens"})
	require.NotNil(t, resp)
	assert.Empty(t, resp.Content)
	assert.Empty(t, resp.Text())
	assert.Equal(t, "max_tokens", resp.StopReason)
}

func TestMessageResponse_TextSkipsNonText(t *testing.T) {
	resp := &MessageResponse{Content: []ContentBlock{
		{Type: "thinking", Text: "hmm"},
		{Type: "text", Text: "a^2"},
	}}
	assert.Equal(t, "a^2", resp.Text())
}

func TestToSDKMessages_ImageBeforeText(t *testing.T) {
	msgs := toSDKMessages([]Message{{
		Content: "recognize",
		Images:  []Image{{MediaType: "image/png", Data: "aGVsbG8="}},
	}})
	require.Len(t, msgs, 1)
	assert.Equal(t, sdk.MessageParamRoleUser, msgs[0].Role)
	require.Len(t, msgs[0].Content, 2)
	require.NotNil(t, msgs[0].Content[0].OfImage)
	require.NotNil(t, msgs[0].Content[1].OfText)
	assert.Equal(t, "recognize", msgs[0].Content[1].OfText.Text)
}

func TestToSDKMessages_AllUserTurns(t *testing.T) {
	msgs := toSDKMessages([]Message{{Content: "q"}, {Content: "x"}})
	require.Len(t, msgs, 2)
	for _, m := range msgs {
		assert.Equal(t, sdk.MessageParamRoleUser, m.Role)
		require.Len(t, m.Content, 1)
	}
}

func TestEstimateCost(t *testing.T) {
	u := TokenUsage{InputTokens: 1_000_000, OutputTokens: 1_000_000}
	assert.InDelta(t, 4.80, u.EstimateCost("claude-haiku-4-5-20251001"), 0.001)
	assert.InDelta(t, 18.00, u.EstimateCost("claude-sonnet-4-5-20250929"), 0.001)
	assert.Zero(t, u.EstimateCost("unknown-model"))
}

func TestLogCost_DoesNotPanic(t *testing.T) {
	assert.NotPanics(t, func() {
		TokenUsage{InputTokens: 10, OutputTokens: 5}.LogCost("claude-haiku-4-5-20251001", "recognize")
	})
}

func TestAPIError_Message(t *testing.T) {
	err := &APIError{StatusCode: 529, Message: "overloaded"}
	assert.Equal(t, "anthropic: api error 529: overloaded", err.Error())
}
