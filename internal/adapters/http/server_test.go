package http

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/1F47E/mcp-telegram/internal/capability"
	"github.com/1F47E/mcp-telegram/internal/jsonrpc"
	"github.com/1F47E/mcp-telegram/internal/logging"
	"github.com/1F47E/mcp-telegram/internal/notifier"
	"github.com/1F47E/mcp-telegram/internal/session"
)

type stubNotifier struct {
	receipt *notifier.Receipt
	err     error
}

func (s *stubNotifier) Send(ctx context.Context, text, parseMode string) (*notifier.Receipt, error) {
	if s.err != nil {
		return nil, s.err
	}
	r := *s.receipt
	r.Text = text
	return &r, nil
}

type fixture struct {
	server   *Server
	sessions *session.Registry
	ts       *httptest.Server
}

func newFixture(t *testing.T, stub notifier.Notifier) *fixture {
	t.Helper()
	log := logging.NewNop()
	sessions := session.NewRegistry(log)
	capabilities := capability.NewRegistry(stub, nil, log)
	srv := NewServer(capabilities, sessions, nil, log)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	return &fixture{server: srv, sessions: sessions, ts: ts}
}

// stream is one open SSE connection under test.
type stream struct {
	body    io.Closer
	scanner *bufio.Scanner

	sessionID string
	endpoint  string
}

// openStream connects to /sse and consumes the endpoint handshake frame.
func (f *fixture) openStream(t *testing.T) *stream {
	t.Helper()

	req, err := http.NewRequest(http.MethodGet, f.ts.URL+"/sse", nil)
	require.NoError(t, err)

	resp, err := f.ts.Client().Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	st := &stream{body: resp.Body, scanner: bufio.NewScanner(resp.Body)}
	t.Cleanup(func() { st.body.Close() })

	name, data := st.next(t)
	require.Equal(t, "endpoint", name)
	require.Contains(t, data, "/message?sessionId=")

	st.endpoint = data
	st.sessionID = data[strings.LastIndex(data, "=")+1:]
	require.NotEmpty(t, st.sessionID)

	return st
}

// next reads one SSE frame, skipping keep-alive comments.
func (st *stream) next(t *testing.T) (name, data string) {
	t.Helper()
	for st.scanner.Scan() {
		line := st.scanner.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			name = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data = strings.TrimPrefix(line, "data: ")
		case line == "" && data != "":
			return name, data
		}
	}
	t.Fatal("stream closed before an event arrived")
	return "", ""
}

// nextReply reads the next message frame and decodes the JSON-RPC reply.
func (st *stream) nextReply(t *testing.T) *jsonrpc.Response {
	t.Helper()
	name, data := st.next(t)
	require.Equal(t, "message", name)

	var resp jsonrpc.Response
	require.NoError(t, json.Unmarshal([]byte(data), &resp))
	return &resp
}

func (f *fixture) post(t *testing.T, st *stream, id any, method string, params any) {
	t.Helper()

	envelope := map[string]any{"jsonrpc": "2.0", "id": id, "method": method}
	if params != nil {
		envelope["params"] = params
	}
	body, err := json.Marshal(envelope)
	require.NoError(t, err)

	resp, err := f.ts.Client().Post(st.endpoint, "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
}

func callParams(message string) map[string]any {
	return map[string]any{
		"name":      capability.NotifyText,
		"arguments": map[string]any{"message": message},
	}
}

func TestInfoEndpoint(t *testing.T) {
	f := newFixture(t, &stubNotifier{receipt: &notifier.Receipt{}})

	resp, err := f.ts.Client().Get(f.ts.URL + "/")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	var info struct {
		Name      string            `json:"name"`
		Version   string            `json:"version"`
		Endpoints map[string]string `json:"endpoints"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&info))

	assert.Equal(t, "telegram-mcp-server", info.Name)
	assert.NotEmpty(t, info.Version)
	assert.Equal(t, "/sse", info.Endpoints["sse"])
	assert.Equal(t, "/message", info.Endpoints["message"])
}

func TestSSEHandshakeRegistersSession(t *testing.T) {
	f := newFixture(t, &stubNotifier{receipt: &notifier.Receipt{}})

	st := f.openStream(t)
	assert.Equal(t, 1, f.sessions.Len())

	_, ok := f.sessions.Get(st.sessionID)
	assert.True(t, ok)

	st.body.Close()
	assert.Eventually(t, func() bool { return f.sessions.Len() == 0 },
		2*time.Second, 10*time.Millisecond, "session should be deregistered on disconnect")
}

func TestMessageRejectsUnknownSession(t *testing.T) {
	f := newFixture(t, &stubNotifier{receipt: &notifier.Receipt{}})

	resp, err := f.ts.Client().Post(f.ts.URL+"/message?sessionId=nope", "application/json",
		strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"tools/list"}`))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestInitializeHandshake(t *testing.T) {
	f := newFixture(t, &stubNotifier{receipt: &notifier.Receipt{}})
	st := f.openStream(t)

	f.post(t, st, 1, "initialize", map[string]any{})
	reply := st.nextReply(t)

	require.Nil(t, reply.Error)
	result, ok := reply.Result.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "2024-11-05", result["protocolVersion"])

	serverInfo, ok := result["serverInfo"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "telegram-mcp-server", serverInfo["name"])
}

func TestToolsList(t *testing.T) {
	f := newFixture(t, &stubNotifier{receipt: &notifier.Receipt{}})
	st := f.openStream(t)

	f.post(t, st, "list-1", "tools/list", nil)
	reply := st.nextReply(t)

	require.Nil(t, reply.Error)
	assert.Equal(t, "list-1", reply.ID)

	data, err := json.Marshal(reply.Result)
	require.NoError(t, err)

	var result struct {
		Tools []capability.Descriptor `json:"tools"`
	}
	require.NoError(t, json.Unmarshal(data, &result))
	require.Len(t, result.Tools, 1)
	assert.Equal(t, capability.NotifyText, result.Tools[0].Name)
}

func TestToolCallSuccess(t *testing.T) {
	stub := &stubNotifier{receipt: &notifier.Receipt{MessageID: 42, ChatID: 99}}
	f := newFixture(t, stub)
	st := f.openStream(t)

	f.post(t, st, 7, "tools/call", callParams("<b>Hi</b>"))
	reply := st.nextReply(t)

	require.Nil(t, reply.Error)
	assert.EqualValues(t, 7, reply.ID)

	inner := decodeToolResult(t, reply.Result)
	assert.Equal(t, true, inner["success"])
	assert.EqualValues(t, 42, inner["message_id"])
	assert.EqualValues(t, 99, inner["chat_id"])
	assert.Equal(t, "<b>Hi</b>", inner["text"])
}

// decodeToolResult unwraps the tools/call content envelope down to the
// notifier payload.
func decodeToolResult(t *testing.T, result any) map[string]any {
	t.Helper()

	data, err := json.Marshal(result)
	require.NoError(t, err)

	var envelope struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	}
	require.NoError(t, json.Unmarshal(data, &envelope))
	require.Len(t, envelope.Content, 1)
	require.Equal(t, "text", envelope.Content[0].Type)

	var inner map[string]any
	require.NoError(t, json.Unmarshal([]byte(envelope.Content[0].Text), &inner))
	return inner
}

func TestToolCallProviderError(t *testing.T) {
	stub := &stubNotifier{err: &notifier.SendError{Code: 400, Description: "can't parse entities"}}
	f := newFixture(t, stub)
	st := f.openStream(t)

	f.post(t, st, 8, "tools/call", callParams("<b>broken"))
	reply := st.nextReply(t)

	require.NotNil(t, reply.Error)
	assert.Equal(t, jsonrpc.CodeInternalError, reply.Error.Code)
	assert.Equal(t, "can't parse entities", reply.Error.Message)
}

func TestToolCallInvalidArguments(t *testing.T) {
	f := newFixture(t, &stubNotifier{receipt: &notifier.Receipt{}})
	st := f.openStream(t)

	f.post(t, st, 9, "tools/call", map[string]any{
		"name":      capability.NotifyText,
		"arguments": map[string]any{},
	})
	reply := st.nextReply(t)

	require.NotNil(t, reply.Error)
	assert.Equal(t, jsonrpc.CodeInvalidParams, reply.Error.Code)
}

func TestUnknownMethod(t *testing.T) {
	f := newFixture(t, &stubNotifier{receipt: &notifier.Receipt{}})
	st := f.openStream(t)

	f.post(t, st, 10, "resources/list", nil)
	reply := st.nextReply(t)

	require.NotNil(t, reply.Error)
	assert.Equal(t, jsonrpc.CodeMethodNotFound, reply.Error.Code)
	assert.Contains(t, reply.Error.Message, "resources/list")
}

func TestConcurrentSessionsReceiveOwnReplies(t *testing.T) {
	stub := &stubNotifier{receipt: &notifier.Receipt{MessageID: 1, ChatID: 99}}
	f := newFixture(t, stub)

	first := f.openStream(t)
	second := f.openStream(t)
	require.NotEqual(t, first.sessionID, second.sessionID)

	f.post(t, first, "req-first", "tools/call", callParams("from first"))
	f.post(t, second, "req-second", "tools/call", callParams("from second"))

	firstReply := first.nextReply(t)
	secondReply := second.nextReply(t)

	assert.Equal(t, "req-first", firstReply.ID)
	assert.Equal(t, "req-second", secondReply.ID)

	firstInner := decodeToolResult(t, firstReply.Result)
	secondInner := decodeToolResult(t, secondReply.Result)
	assert.Equal(t, "from first", firstInner["text"])
	assert.Equal(t, "from second", secondInner["text"])
}

func TestNotificationGetsNoReply(t *testing.T) {
	f := newFixture(t, &stubNotifier{receipt: &notifier.Receipt{}})
	st := f.openStream(t)

	f.post(t, st, nil, "notifications/initialized", nil)

	// A follow-up request proves the notification produced no frame of its own.
	f.post(t, st, 11, "tools/list", nil)
	reply := st.nextReply(t)
	assert.EqualValues(t, 11, reply.ID)
}

func TestEndpointEventCarriesAbsoluteURL(t *testing.T) {
	f := newFixture(t, &stubNotifier{receipt: &notifier.Receipt{}})
	st := f.openStream(t)

	expected := fmt.Sprintf("%s/message?sessionId=%s", f.ts.URL, st.sessionID)
	assert.Equal(t, expected, st.endpoint)
}
