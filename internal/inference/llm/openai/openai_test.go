package openai_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cory-johannsen/npcfleet/internal/inference/llm"
	"github.com/cory-johannsen/npcfleet/internal/inference/llm/openai"
)

const chatReply = `{
  "id": "chatcmpl-1",
  "object": "chat.completion",
  "created": 1700000000,
  "model": "gpt-test",
  "choices": [{"index": 0, "finish_reason": "stop", "logprobs": null,
    "message": {"role": "assistant", "content": "{\"selected_action\": \"work\"}", "refusal": null}}],
  "usage": {"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15}
}`

func fakeAPI(t *testing.T, status int, reply string, seen *map[string]any) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		if seen != nil {
			require.NoError(t, json.NewDecoder(r.Body).Decode(seen))
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(reply))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestNew_RequiresKeyAndModel(t *testing.T) {
	_, err := openai.New("", "m")
	assert.Error(t, err)
	_, err = openai.New("k", "")
	assert.Error(t, err)
}

func TestComplete_SendsMessages(t *testing.T) {
	var body map[string]any
	srv := fakeAPI(t, http.StatusOK, chatReply, &body)
	c, err := openai.New("test-key", "gpt-default", openai.WithBaseURL(srv.URL+"/"), openai.WithMaxRetries(0))
	require.NoError(t, err)

	out, err := c.Complete(context.Background(), llm.Completion{
		System:      "decide",
		Prompt:      "Offered actions: work",
		MaxTokens:   32,
		Temperature: 0.2,
	})
	require.NoError(t, err)
	assert.Equal(t, `{"selected_action": "work"}`, out)

	assert.Equal(t, "gpt-default", body["model"])
	assert.EqualValues(t, 32, body["max_completion_tokens"])
	assert.EqualValues(t, 0.2, body["temperature"])
	msgs, ok := body["messages"].([]any)
	require.True(t, ok)
	require.Len(t, msgs, 2)
	assert.Equal(t, "system", msgs[0].(map[string]any)["role"])
	assert.Equal(t, "user", msgs[1].(map[string]any)["role"])
	assert.Equal(t, "Offered actions: work", msgs[1].(map[string]any)["content"])
}

func TestComplete_NoSystemPrompt(t *testing.T) {
	var body map[string]any
	srv := fakeAPI(t, http.StatusOK, chatReply, &body)
	c, err := openai.New("test-key", "gpt-default", openai.WithBaseURL(srv.URL+"/"), openai.WithMaxRetries(0))
	require.NoError(t, err)

	_, err = c.Complete(context.Background(), llm.Completion{Model: "gpt-faction", Prompt: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "gpt-faction", body["model"])
	msgs := body["messages"].([]any)
	assert.Len(t, msgs, 1)
}

func TestComplete_EmptyChoices(t *testing.T) {
	srv := fakeAPI(t, http.StatusOK, `{"id":"c","object":"chat.completion","created":1,"model":"gpt-test","choices":[]}`, nil)
	c, err := openai.New("test-key", "gpt-default", openai.WithBaseURL(srv.URL+"/"), openai.WithMaxRetries(0))
	require.NoError(t, err)
	_, err = c.Complete(context.Background(), llm.Completion{Prompt: "hi"})
	assert.Error(t, err)
}

func TestComplete_ServerError(t *testing.T) {
	srv := fakeAPI(t, http.StatusBadRequest, `{"error":{"message":"bad","type":"invalid_request_error"}}`, nil)
	c, err := openai.New("test-key", "gpt-default", openai.WithBaseURL(srv.URL+"/"), openai.WithMaxRetries(0))
	require.NoError(t, err)
	_, err = c.Complete(context.Background(), llm.Completion{Prompt: "hi"})
	assert.Error(t, err)
}
