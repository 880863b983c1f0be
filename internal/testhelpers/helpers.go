// Package testhelpers provides websocket and HTTP utilities shared by the
// package tests of the Flux server.
package testhelpers

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

// DefaultTimeout bounds every blocking read in the helpers.
const DefaultTimeout = 3 * time.Second

// CreateTestServer creates a test HTTP server with the given handler and
// closes it when the test ends.
func CreateTestServer(t *testing.T, handler http.Handler) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

// WebSocketURL rewrites an http test server URL to ws and appends path.
func WebSocketURL(serverURL, path string) string {
	return "ws" + strings.TrimPrefix(serverURL, "http") + path
}

// ConnectWebSocket dials target with the given Origin header (none when empty).
// The HTTP response is returned so handshake failures can be inspected.
func ConnectWebSocket(target, origin string) (*websocket.Conn, *http.Response, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 5 * time.Second}

	headers := http.Header{}
	if origin != "" {
		headers.Set("Origin", origin)
	}
	conn, resp, err := dialer.Dial(target, headers)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	return conn, resp, err
}

// MustConnect dials target as a same-origin browser would and closes the
// connection when the test ends.
func MustConnect(t *testing.T, target string) *websocket.Conn {
	t.Helper()
	conn, _, err := ConnectWebSocket(target, SameOrigin(target))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// SameOrigin returns the http origin serving a ws URL.
func SameOrigin(wsURL string) string {
	u, err := url.Parse(wsURL)
	if err != nil {
		return ""
	}
	scheme := "http"
	if u.Scheme == "wss" {
		scheme = "https"
	}
	return scheme + "://" + u.Host
}

// SendMessage sends a {"content": ...} frame.
func SendMessage(conn *websocket.Conn, content string) error {
	return conn.WriteJSON(map[string]string{"content": content})
}

// SendRawMessage sends a raw text frame.
func SendRawMessage(conn *websocket.Conn, data []byte) error {
	return conn.WriteMessage(websocket.TextMessage, data)
}

// ReceiveFrames reads n websocket messages, each holding one JSON frame.
func ReceiveFrames(conn *websocket.Conn, n int, timeout time.Duration) ([]map[string]any, error) {
	if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return nil, err
	}
	frames := make([]map[string]any, 0, n)
	for len(frames) < n {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return frames, err
		}
		var frame map[string]any
		if err := json.Unmarshal(data, &frame); err != nil {
			return frames, err
		}
		frames = append(frames, frame)
	}
	return frames, nil
}

// ReceiveFrame reads exactly one JSON frame.
func ReceiveFrame(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	frames, err := ReceiveFrames(conn, 1, DefaultTimeout)
	require.NoError(t, err)
	require.Len(t, frames, 1)
	return frames[0]
}

// ExpectClose reads until the server closes the connection and returns the
// close code it sent.
func ExpectClose(t *testing.T, conn *websocket.Conn) int {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(DefaultTimeout)))
	for {
		_, _, err := conn.ReadMessage()
		if err == nil {
			continue
		}
		var closeErr *websocket.CloseError
		if errors.As(err, &closeErr) {
			return closeErr.Code
		}
		require.FailNow(t, "connection ended without a close frame", "error: %v", err)
	}
}

// ExpectSilence asserts nothing arrives on conn within d.
func ExpectSilence(t *testing.T, conn *websocket.Conn, d time.Duration) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(d)))
	_, data, err := conn.ReadMessage()
	require.Error(t, err, "unexpected frame: %s", data)
	var netErr interface{ Timeout() bool }
	require.True(t, errors.As(err, &netErr) && netErr.Timeout(), "expected read timeout, got %v", err)
}

// CloseWebSocket sends a normal close frame and closes the connection.
func CloseWebSocket(conn *websocket.Conn) error {
	err := conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	if err != nil {
		return err
	}
	return conn.Close()
}

// AssertMessageContent checks content and author of a broadcast frame.
func AssertMessageContent(t *testing.T, frame map[string]any, content, user string) {
	t.Helper()
	require.Equal(t, content, frame["content"])
	require.Equal(t, user, frame["user"])
	require.NotNil(t, frame["id"])
	require.NotEmpty(t, frame["created_at"])
}

// DoJSON sends a request with an optional JSON body and bearer token, and
// decodes the JSON response into out when out is non-nil.
func DoJSON(t *testing.T, method, target, token string, body, out any) *http.Response {
	t.Helper()

	var reader io.Reader = http.NoBody
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, target, reader)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })

	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp
}
