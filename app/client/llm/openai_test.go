package llm

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"pollchat/app/config"
	"pollchat/app/service/chatlog"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type chatRequest struct {
	Model    string            `json:"model"`
	N        int               `json:"n"`
	Messages []chatlog.Message `json:"messages"`
}

func newTestConfig(baseURL string) config.OpenAI {
	cfg := config.Default().OpenAI
	cfg.BaseURL = baseURL
	cfg.Choices = 2

	return cfg
}

func TestOpenAIClientComplete(t *testing.T) {
	var received chatRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"created": 1,
			"model": "gpt-3.5-turbo",
			"choices": [
				{"index": 0, "message": {"role": "assistant", "content": "Hi!"}, "finish_reason": "stop"},
				{"index": 1, "message": {"role": "assistant", "content": "<WAIT>"}, "finish_reason": "stop"}
			]
		}`))
	}))
	defer srv.Close()

	client, err := NewService(newTestConfig(srv.URL)).NewClient("sk-test")
	require.NoError(t, err)

	replies, err := client.Complete(context.Background(), []chatlog.Message{
		chatlog.System("preamble"),
		chatlog.System("Time: 0"),
		chatlog.User("hello"),
	})
	require.NoError(t, err)

	assert.Equal(t, []chatlog.Message{chatlog.Assistant("Hi!"), chatlog.Assistant("<WAIT>")}, replies)
	assert.Equal(t, "gpt-3.5-turbo", received.Model)
	assert.Equal(t, 2, received.N)
	assert.Equal(t, []chatlog.Message{
		chatlog.System("preamble"),
		chatlog.System("Time: 0"),
		chatlog.User("hello"),
	}, received.Messages)
}

func TestOpenAIClientNoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id": "chatcmpl-2", "object": "chat.completion", "choices": []}`))
	}))
	defer srv.Close()

	client, err := NewService(newTestConfig(srv.URL)).NewClient("sk-test")
	require.NoError(t, err)

	replies, err := client.Complete(context.Background(), []chatlog.Message{chatlog.System("preamble")})
	require.NoError(t, err)
	assert.Empty(t, replies)
}

func TestOpenAIClientUnauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error": {"message": "Incorrect API key provided", "type": "invalid_request_error", "code": "invalid_api_key"}}`))
	}))
	defer srv.Close()

	client, err := NewService(newTestConfig(srv.URL)).NewClient("sk-bad")
	require.NoError(t, err)

	_, err = client.Complete(context.Background(), []chatlog.Message{chatlog.System("preamble")})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestOpenAIClientServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error": {"message": "boom", "type": "server_error"}}`))
	}))
	defer srv.Close()

	client, err := NewService(newTestConfig(srv.URL)).NewClient("sk-test")
	require.NoError(t, err)

	_, err = client.Complete(context.Background(), []chatlog.Message{chatlog.System("preamble")})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrUnauthorized)
}

func TestOpenAIClientSendsZeroTemperature(t *testing.T) {
	var received struct {
		Temperature *float32 `json:"temperature"`
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&received))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id": "chatcmpl-3", "object": "chat.completion", "choices": []}`))
	}))
	defer srv.Close()

	cfg := newTestConfig(srv.URL)
	cfg.Temperature = 0

	client, err := NewService(cfg).NewClient("sk-test")
	require.NoError(t, err)

	_, err = client.Complete(context.Background(), []chatlog.Message{chatlog.System("preamble")})
	require.NoError(t, err)

	require.NotNil(t, received.Temperature)
	assert.Less(t, *received.Temperature, float32(1e-6))
}

func TestTemperatureKeepsNonZero(t *testing.T) {
	assert.Equal(t, float32(0.7), temperature(0.7))
	assert.Equal(t, float32(math.SmallestNonzeroFloat32), temperature(0))
}
