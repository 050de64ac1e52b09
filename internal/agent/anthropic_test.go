package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcliao/recall/internal/model"
)

func sseEvent(name, data string) string {
	return fmt.Sprintf("event: %s\ndata: %s\n\n", name, data)
}

func TestAnthropicCompleterStreamsText(t *testing.T) {
	bodies := make(chan map[string]any, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("X-Api-Key"))
		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		bodies <- body

		w.Header().Set("Content-Type", "text/event-stream")
		var b strings.Builder
		b.WriteString(sseEvent("message_start", `{"type":"message_start","message":{"id":"msg_1","type":"message","role":"assistant","model":"claude-test","content":[],"stop_reason":null,"stop_sequence":null,"usage":{"input_tokens":5,"output_tokens":1}}}`))
		b.WriteString(sseEvent("content_block_start", `{"type":"content_block_start","index":0,"content_block":{"type":"text","text":""}}`))
		b.WriteString(sseEvent("content_block_delta", `{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"Hello"}}`))
		b.WriteString(sseEvent("content_block_delta", `{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":" there"}}`))
		b.WriteString(sseEvent("content_block_stop", `{"type":"content_block_stop","index":0}`))
		b.WriteString(sseEvent("message_delta", `{"type":"message_delta","delta":{"stop_reason":"end_turn","stop_sequence":null},"usage":{"output_tokens":2}}`))
		b.WriteString(sseEvent("message_stop", `{"type":"message_stop"}`))
		_, _ = w.Write([]byte(b.String()))
	}))
	defer srv.Close()

	c := NewAnthropicCompleter("test-key", "claude-test", 256,
		option.WithBaseURL(srv.URL+"/"), option.WithMaxRetries(0))

	var tokens []string
	resp, err := Complete(context.Background(), c, Request{
		System: "be brief",
		Messages: []Message{
			{Role: model.RoleUser, Text: "read it"},
			{Role: model.RoleAssistant, ToolCalls: []ToolCall{{ID: "t1", Name: NameReadFile, Input: json.RawMessage(`{"path":"a"}`)}}},
			{Role: model.RoleUser, ToolResults: []ToolResult{{CallID: "t1", Content: "contents"}}},
		},
		Tools: []ToolSpec{{Name: NameReadFile, Description: "read", Properties: map[string]any{"path": stringProp("p")}, Required: []string{"path"}}},
	}, func(tok string) { tokens = append(tokens, tok) })
	require.NoError(t, err)

	assert.Equal(t, []string{"Hello", " there"}, tokens)
	assert.Equal(t, "Hello there", resp.Text)
	assert.Empty(t, resp.ToolCalls)
	assert.Equal(t, "end_turn", resp.StopReason)

	body := <-bodies
	assert.Equal(t, "claude-test", body["model"])
	assert.Equal(t, true, body["stream"])

	msgs := body["messages"].([]any)
	require.Len(t, msgs, 3)
	roles := []string{}
	for _, m := range msgs {
		roles = append(roles, m.(map[string]any)["role"].(string))
	}
	assert.Equal(t, []string{"user", "assistant", "user"}, roles)

	toolUse := msgs[1].(map[string]any)["content"].([]any)[0].(map[string]any)
	assert.Equal(t, "tool_use", toolUse["type"])
	assert.Equal(t, "t1", toolUse["id"])

	toolResult := msgs[2].(map[string]any)["content"].([]any)[0].(map[string]any)
	assert.Equal(t, "tool_result", toolResult["type"])
	assert.Equal(t, "t1", toolResult["tool_use_id"])

	tools := body["tools"].([]any)
	require.Len(t, tools, 1)
	assert.Equal(t, NameReadFile, tools[0].(map[string]any)["name"])
}

func TestAnthropicCompleterError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"invalid_request_error","message":"bad model"}}`))
	}))
	defer srv.Close()

	c := NewAnthropicCompleter("k", "nope", 16, option.WithBaseURL(srv.URL+"/"), option.WithMaxRetries(0))
	_, err := Complete(context.Background(), c, Request{Messages: []Message{{Role: model.RoleUser, Text: "hi"}}}, nil)
	require.Error(t, err)
}
