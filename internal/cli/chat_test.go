package cli

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/open-webui/openwebui-cli/internal/api"
)

func completionServer(t *testing.T, content string, gotBody *[]byte) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		if gotBody != nil {
			*gotBody = body
		}
		w.Header().Set("Content-Type", "application/json")
		resp := map[string]any{
			"choices": []map[string]any{
				{"message": map[string]string{"role": "assistant", "content": content}},
			},
		}
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
}

func TestChatSend_NoStreamPrintsContent(t *testing.T) {
	isolate(t)

	var gotBody []byte
	server := completionServer(t, "Hi there", &gotBody)
	defer server.Close()

	out, err := runCommand(t, "chat", "send", "-m", "gpt-4", "-p", "Hello",
		"--no-stream", "--token", "x", "-U", server.URL)
	require.NoError(t, err)
	assert.Equal(t, "Hi there\n", out)

	var req chatRequest
	require.NoError(t, json.Unmarshal(gotBody, &req))
	assert.Equal(t, "gpt-4", req.Model)
	assert.False(t, req.Stream)
	require.Len(t, req.Messages, 1)
	assert.Equal(t, "user", req.Messages[0].Role)
	assert.Equal(t, "Hello", req.Messages[0].Content)
}

func TestChatSend_StreamingPrintsDeltas(t *testing.T) {
	isolate(t)

	var gotBody []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		gotBody = body

		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		for _, chunk := range []string{"Hello", ", ", "world"} {
			io.WriteString(w, `data: {"choices":[{"delta":{"content":"`+chunk+`"}}]}`+"\n")
			flusher.Flush()
		}
		io.WriteString(w, "data: [DONE]\n")
	}))
	defer server.Close()

	out, err := runCommand(t, "chat", "send", "-m", "gpt-4", "-p", "Hello",
		"--token", "x", "-U", server.URL)
	require.NoError(t, err)
	assert.Equal(t, "Hello, world\n", out)

	var req chatRequest
	require.NoError(t, json.Unmarshal(gotBody, &req))
	assert.True(t, req.Stream)
}

func TestStreamChat_InterruptPrintsNoticeAndPartialJSON(t *testing.T) {
	isolate(t)

	released := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher := w.(http.Flusher)
		io.WriteString(w, `data: {"choices":[{"delta":{"content":"par"}}]}`+"\n")
		io.WriteString(w, `data: {"choices":[{"delta":{"content":"tial"}}]}`+"\n")
		flusher.Flush()
		close(released)
		// Keep the stream open until the client goes away, so cancellation
		// is the only way out.
		<-r.Context().Done()
	}))
	defer server.Close()

	client, err := api.NewClient(api.ClientOptions{URI: server.URL, Token: "x"})
	require.NoError(t, err)
	defer client.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-released
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	out, err := captureOutput(t, func() error {
		render := newRenderer(&Options{})
		return streamChat(ctx, client, render, chatRequest{
			Model:    "gpt-4",
			Messages: []chatMessage{{Role: "user", Content: "Hello"}},
			Stream:   true,
		}, true)
	})
	require.NoError(t, err)

	assert.Contains(t, out, "Stream interrupted by user")
	assert.Contains(t, out, `"content": "partial"`)
	assert.Contains(t, out, `"interrupted": true`)
}

func TestChatSend_MissingModelIsUsageError(t *testing.T) {
	isolate(t)

	_, err := runCommand(t, "chat", "send", "-p", "Hello", "--token", "x")
	require.Error(t, err)
	assert.Equal(t, api.ExitUsage, api.ExitCode(err))
	assert.Contains(t, err.Error(), "model required")
}

func TestChatSend_SystemPromptInsertedFirst(t *testing.T) {
	isolate(t)

	var gotBody []byte
	server := completionServer(t, "ok", &gotBody)
	defer server.Close()

	_, err := runCommand(t, "chat", "send", "-m", "gpt-4", "-p", "Hello",
		"-s", "You are terse.", "--no-stream", "--token", "x", "-U", server.URL)
	require.NoError(t, err)

	var req chatRequest
	require.NoError(t, json.Unmarshal(gotBody, &req))
	require.Len(t, req.Messages, 2)
	assert.Equal(t, "system", req.Messages[0].Role)
	assert.Equal(t, "You are terse.", req.Messages[0].Content)
	assert.Equal(t, "user", req.Messages[1].Role)
}

func TestChatSend_HistorySystemMessageWins(t *testing.T) {
	isolate(t)

	history := filepath.Join(t.TempDir(), "history.json")
	require.NoError(t, os.WriteFile(history, []byte(
		`[{"role":"system","content":"original"},{"role":"user","content":"earlier"},{"role":"assistant","content":"reply"}]`), 0600))

	var gotBody []byte
	server := completionServer(t, "ok", &gotBody)
	defer server.Close()

	_, err := runCommand(t, "chat", "send", "-m", "gpt-4", "-p", "Hello",
		"-s", "ignored", "--history-file", history,
		"--no-stream", "--token", "x", "-U", server.URL)
	require.NoError(t, err)

	var req chatRequest
	require.NoError(t, json.Unmarshal(gotBody, &req))
	require.Len(t, req.Messages, 4)
	assert.Equal(t, "original", req.Messages[0].Content)

	systems := 0
	for _, m := range req.Messages {
		if m.Role == "system" {
			systems++
		}
	}
	assert.Equal(t, 1, systems)
}

func TestChatSend_SamplingFlagsOnlySentWhenSet(t *testing.T) {
	isolate(t)

	var gotBody []byte
	server := completionServer(t, "ok", &gotBody)
	defer server.Close()

	_, err := runCommand(t, "chat", "send", "-m", "gpt-4", "-p", "Hello",
		"--no-stream", "--token", "x", "-U", server.URL)
	require.NoError(t, err)
	assert.NotContains(t, string(gotBody), "temperature")
	assert.NotContains(t, string(gotBody), "max_tokens")

	_, err = runCommand(t, "chat", "send", "-m", "gpt-4", "-p", "Hello",
		"-T", "0.7", "--max-tokens", "128",
		"--no-stream", "--token", "x", "-U", server.URL)
	require.NoError(t, err)

	var req chatRequest
	require.NoError(t, json.Unmarshal(gotBody, &req))
	require.NotNil(t, req.Temperature)
	assert.InDelta(t, 0.7, *req.Temperature, 1e-9)
	require.NotNil(t, req.MaxTokens)
	assert.Equal(t, 128, *req.MaxTokens)
}

func TestChatSend_FileAndCollectionRefs(t *testing.T) {
	isolate(t)

	var gotBody []byte
	server := completionServer(t, "ok", &gotBody)
	defer server.Close()

	_, err := runCommand(t, "chat", "send", "-m", "gpt-4", "-p", "Hello",
		"--file", "f1", "--collection", "c1",
		"--no-stream", "--token", "x", "-U", server.URL)
	require.NoError(t, err)

	var req chatRequest
	require.NoError(t, json.Unmarshal(gotBody, &req))
	require.Len(t, req.Files, 2)
	assert.Equal(t, chatFileRef{Type: "file", ID: "f1"}, req.Files[0])
	assert.Equal(t, chatFileRef{Type: "collection", ID: "c1"}, req.Files[1])
}

func TestLoadHistory(t *testing.T) {
	dir := t.TempDir()

	bare := filepath.Join(dir, "bare.json")
	require.NoError(t, os.WriteFile(bare, []byte(`[{"role":"user","content":"hi"}]`), 0600))
	messages, err := loadHistory(bare)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, "hi", messages[0].Content)

	wrapped := filepath.Join(dir, "wrapped.json")
	require.NoError(t, os.WriteFile(wrapped, []byte(`{"messages":[{"role":"user","content":"hi"}]}`), 0600))
	messages, err = loadHistory(wrapped)
	require.NoError(t, err)
	require.Len(t, messages, 1)

	messages, err = loadHistory("")
	require.NoError(t, err)
	assert.Nil(t, messages)

	_, err = loadHistory(filepath.Join(dir, "missing.json"))
	require.Error(t, err)
	assert.Equal(t, api.ExitUsage, api.ExitCode(err))

	garbage := filepath.Join(dir, "garbage.json")
	require.NoError(t, os.WriteFile(garbage, []byte(`"just a string"`), 0600))
	_, err = loadHistory(garbage)
	require.Error(t, err)
	assert.Equal(t, api.ExitUsage, api.ExitCode(err))
}

func TestHasSystemMessage(t *testing.T) {
	assert.False(t, hasSystemMessage(nil))
	assert.False(t, hasSystemMessage([]chatMessage{{Role: "user"}}))
	assert.True(t, hasSystemMessage([]chatMessage{{Role: "user"}, {Role: "system"}}))
}
