package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"pollchat/app/client/llm"
	"pollchat/app/config"
	"pollchat/app/service/chatlog"
	"pollchat/app/service/control"
	"pollchat/app/service/render"
	"pollchat/app/service/session"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedClient struct {
	replies [][]chatlog.Message
}

func (c *scriptedClient) Complete(_ context.Context, _ []chatlog.Message) ([]chatlog.Message, error) {
	if len(c.replies) == 0 {
		return nil, nil
	}

	reply := c.replies[0]
	c.replies = c.replies[1:]

	return reply, nil
}

type scriptedFactory struct {
	client *scriptedClient
}

func (f scriptedFactory) NewClient(string) (llm.Client, error) {
	return f.client, nil
}

func newTestServer(t *testing.T, client *scriptedClient) (*Service, *session.Service) {
	t.Helper()

	cfg := config.Default()

	sessionSvc, err := session.NewService(context.Background(), scriptedFactory{client: client}, session.Options{
		Interval:     time.Hour,
		ResumePolicy: session.ResumePreserve,
		TokenMatch:   control.ModeExact,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = sessionSvc.Shutdown() })

	return NewService(&cfg, sessionSvc), sessionSvc
}

func doRequest(t *testing.T, srv *Service, method, path, body string) (int, []byte) {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")

	res, err := srv.App().Test(req, -1)
	require.NoError(t, err)
	defer res.Body.Close()

	data, err := io.ReadAll(res.Body)
	require.NoError(t, err)

	return res.StatusCode, data
}

func TestHealthAndIndex(t *testing.T) {
	srv, _ := newTestServer(t, &scriptedClient{})

	code, body := doRequest(t, srv, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", string(body))

	code, body = doRequest(t, srv, http.MethodGet, "/", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(body), "/api/messages")
}

func TestPostKeyRejectsEmpty(t *testing.T) {
	srv, _ := newTestServer(t, &scriptedClient{})

	code, body := doRequest(t, srv, http.MethodPost, "/api/key", `{"key": ""}`)
	assert.Equal(t, http.StatusBadRequest, code)

	var res errorResponse
	require.NoError(t, json.Unmarshal(body, &res))
	assert.Equal(t, "invalid key", res.Error)

	code, _ = doRequest(t, srv, http.MethodPost, "/api/key", `{not json`)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestStartWithoutKeyConflicts(t *testing.T) {
	srv, _ := newTestServer(t, &scriptedClient{})

	code, _ := doRequest(t, srv, http.MethodPost, "/api/start", "")
	assert.Equal(t, http.StatusConflict, code)

	code, _ = doRequest(t, srv, http.MethodPost, "/api/messages", `{"text": "Hello"}`)
	assert.Equal(t, http.StatusConflict, code)
}

func TestChatFlow(t *testing.T) {
	client := &scriptedClient{replies: [][]chatlog.Message{
		{chatlog.Assistant("<WAIT>")},
		{chatlog.Assistant("Hi there!")},
		{chatlog.Assistant("Bye <SLEEP>")},
	}}
	srv, sessionSvc := newTestServer(t, client)

	code, _ := doRequest(t, srv, http.MethodPost, "/api/key", `{"key": "sk-test"}`)
	require.Equal(t, http.StatusOK, code)

	code, body := doRequest(t, srv, http.MethodPost, "/api/messages", `{"text": "Hello"}`)
	require.Equal(t, http.StatusCreated, code)

	var res messagesResponse
	require.NoError(t, json.Unmarshal(body, &res))
	assert.True(t, res.Status.Active)
	assert.Equal(t, []render.Entry{{Kind: render.KindUser, Text: "Hello"}}, res.Entries)

	for i := 0; i < 3; i++ {
		require.NoError(t, sessionSvc.Tick(context.Background()))
	}

	code, body = doRequest(t, srv, http.MethodGet, "/api/messages", "")
	require.Equal(t, http.StatusOK, code)
	require.NoError(t, json.Unmarshal(body, &res))

	assert.False(t, res.Status.Active)
	assert.Equal(t, []render.Entry{
		{Kind: render.KindUser, Text: "Hello"},
		{Kind: render.KindAssistant, Text: "Hi there!"},
		{Kind: render.KindSleep, Text: render.SessionEndedText},
	}, res.Entries)
}

func TestToggleAndStop(t *testing.T) {
	srv, _ := newTestServer(t, &scriptedClient{})

	code, _ := doRequest(t, srv, http.MethodPost, "/api/key", `{"key": "sk-test"}`)
	require.Equal(t, http.StatusOK, code)

	var status session.Status

	code, body := doRequest(t, srv, http.MethodPost, "/api/toggle", "")
	require.Equal(t, http.StatusOK, code)
	require.NoError(t, json.Unmarshal(body, &status))
	assert.Equal(t, session.StateRunning, status.State)

	code, body = doRequest(t, srv, http.MethodPost, "/api/stop", "")
	require.Equal(t, http.StatusOK, code)
	require.NoError(t, json.Unmarshal(body, &status))
	assert.Equal(t, session.StateIdle, status.State)

	code, body = doRequest(t, srv, http.MethodGet, "/api/status", "")
	require.Equal(t, http.StatusOK, code)
	require.NoError(t, json.Unmarshal(body, &status))
	assert.True(t, status.HasCredential)
	assert.False(t, status.Active)
}

func TestEmptyMessageWhileRunningIsRejected(t *testing.T) {
	srv, _ := newTestServer(t, &scriptedClient{})

	doRequest(t, srv, http.MethodPost, "/api/key", `{"key": "sk-test"}`)
	doRequest(t, srv, http.MethodPost, "/api/start", "")

	code, _ := doRequest(t, srv, http.MethodPost, "/api/messages", `{"text": "  "}`)
	assert.Equal(t, http.StatusBadRequest, code)
}
