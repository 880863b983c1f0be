package server

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/Tyrowin/flux/internal/auth"
	"github.com/Tyrowin/flux/internal/chat"
	"github.com/Tyrowin/flux/internal/config"
	"github.com/Tyrowin/flux/internal/service"
	"github.com/Tyrowin/flux/internal/storage"
	"github.com/Tyrowin/flux/internal/testhelpers"
	"github.com/Tyrowin/flux/internal/tokenstore"
	"github.com/gorilla/websocket"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

const testPassword = "Passw0rd!"

type testEnv struct {
	baseURL  string
	registry *chat.Registry
}

func newTestEnv(t *testing.T, origins ...string) *testEnv {
	t.Helper()
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	logger := logs.GetLoggerFromLevel(slog.LevelError)

	store, err := storage.Open(context.Background(), config.DatabaseConfig{
		URL: filepath.Join(t.TempDir(), "flux.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	registry := chat.NewRegistry(logger)
	t.Cleanup(func() { _ = registry.Shutdown(2 * time.Second) })

	tokens := auth.NewTokens("test-secret", "flux-test", time.Minute, time.Hour)
	users := service.NewUsers(store, tokens, tokenstore.NewMemory(), logger)
	policy := NewOriginPolicy(origins, logger)

	handler := chat.NewHandler(chat.Deps{
		Identities:  users,
		Memberships: store,
		Messages:    store,
		Registry:    registry,
		CheckOrigin: policy.CheckOrigin,
	}, chat.HandlerConfig{
		Conn:              chat.ConnConfig{MaxMessageSize: 4096, SendBufferSize: 32},
		RateLimitBurst:    100,
		RateLimitInterval: 10 * time.Millisecond,
	}, logger)

	srv := New(Deps{
		Users:    users,
		Posts:    service.NewPosts(store, logger),
		Channels: service.NewChannels(store, registry, logger),
		Chat:     handler,
		Origins:  policy,
		Health:   store,
	}, "flux-test", logger)

	ts := testhelpers.CreateTestServer(t, srv.Handler())
	return &testEnv{baseURL: ts.URL, registry: registry}
}

// signUp registers name and returns an access token.
func (e *testEnv) signUp(t *testing.T, name string) string {
	t.Helper()
	resp := testhelpers.DoJSON(t, http.MethodPost, e.baseURL+"/users/register", "", auth.RegisterRequest{
		Username: name,
		Email:    name + "@example.com",
		Password: testPassword,
	}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var pair service.TokenPair
	resp = testhelpers.DoJSON(t, http.MethodPost, e.baseURL+"/users/token", "",
		credentials{Username: name, Password: testPassword}, &pair)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NotEmpty(t, pair.AccessToken)
	return pair.AccessToken
}

func (e *testEnv) createChannel(t *testing.T, token, name string, public bool) int64 {
	t.Helper()
	var ch channelView
	resp := testhelpers.DoJSON(t, http.MethodPost, e.baseURL+"/chat/channels", token,
		map[string]any{"name": name, "is_public": public}, &ch)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	return ch.ID
}

func (e *testEnv) wsURL(channelID int64, token string) string {
	return testhelpers.WebSocketURL(e.baseURL, "/chat/ws/"+strconv.FormatInt(channelID, 10)+"?token="+url.QueryEscape(token))
}

func (e *testEnv) waitForConnections(t *testing.T, channelID int64, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return e.registry.Count(channelID) == n },
		testhelpers.DefaultTimeout, 10*time.Millisecond)
}

func TestWelcomeAndHealth(t *testing.T) {
	req := require.New(t)
	env := newTestEnv(t)

	var body messageBody
	resp := testhelpers.DoJSON(t, http.MethodGet, env.baseURL+"/", "", nil, &body)
	req.Equal(http.StatusOK, resp.StatusCode)
	req.Equal("Welcome to the Flux API", body.Message)
	req.NotEmpty(resp.Header.Get(requestIDHeader))

	resp = testhelpers.DoJSON(t, http.MethodGet, env.baseURL+"/healthz", "", nil, nil)
	req.Equal(http.StatusOK, resp.StatusCode)

	resp = testhelpers.DoJSON(t, http.MethodGet, env.baseURL+"/test", "", nil, nil)
	req.Equal(http.StatusOK, resp.StatusCode)
	req.Equal("text/html", resp.Header.Get("Content-Type"))
}

func TestTokenEndpointAcceptsForm(t *testing.T) {
	req := require.New(t)
	env := newTestEnv(t)
	env.signUp(t, "alice")

	resp, err := http.PostForm(env.baseURL+"/users/token", url.Values{
		"username": {"alice"},
		"password": {testPassword},
	})
	req.NoError(err)
	defer func() { _ = resp.Body.Close() }()
	req.Equal(http.StatusOK, resp.StatusCode)

	resp, err = http.PostForm(env.baseURL+"/users/token", url.Values{
		"username": {"alice"},
		"password": {"Wr0ngPass!"},
	})
	req.NoError(err)
	defer func() { _ = resp.Body.Close() }()
	req.Equal(http.StatusUnauthorized, resp.StatusCode)
	req.Equal("Bearer", resp.Header.Get("WWW-Authenticate"))
}

func TestRegisterErrors(t *testing.T) {
	req := require.New(t)
	env := newTestEnv(t)
	env.signUp(t, "alice")

	var body errorBody
	resp := testhelpers.DoJSON(t, http.MethodPost, env.baseURL+"/users/register", "", auth.RegisterRequest{
		Username: "alice", Email: "again@example.com", Password: testPassword,
	}, &body)
	req.Equal(http.StatusConflict, resp.StatusCode)
	req.NotEmpty(body.Detail)

	resp = testhelpers.DoJSON(t, http.MethodPost, env.baseURL+"/users/register", "", auth.RegisterRequest{
		Username: "bob", Email: "bob@example.com", Password: "weak",
	}, &body)
	req.Equal(http.StatusBadRequest, resp.StatusCode)
}

func TestMeRequiresBearer(t *testing.T) {
	req := require.New(t)
	env := newTestEnv(t)
	token := env.signUp(t, "alice")

	var body errorBody
	resp := testhelpers.DoJSON(t, http.MethodGet, env.baseURL+"/users/me", "", nil, &body)
	req.Equal(http.StatusUnauthorized, resp.StatusCode)
	req.Equal("could not validate credentials", body.Detail)

	resp = testhelpers.DoJSON(t, http.MethodGet, env.baseURL+"/users/me", "not-a-jwt", nil, nil)
	req.Equal(http.StatusUnauthorized, resp.StatusCode)

	var me userView
	resp = testhelpers.DoJSON(t, http.MethodGet, env.baseURL+"/users/me", token, nil, &me)
	req.Equal(http.StatusOK, resp.StatusCode)
	req.Equal("alice", me.Username)
	req.Equal("member", me.Role)
}

func TestRefreshAndLogout(t *testing.T) {
	req := require.New(t)
	env := newTestEnv(t)
	env.signUp(t, "alice")

	var pair service.TokenPair
	testhelpers.DoJSON(t, http.MethodPost, env.baseURL+"/users/token", "",
		credentials{Username: "alice", Password: testPassword}, &pair)

	var rotated service.TokenPair
	resp := testhelpers.DoJSON(t, http.MethodPost, env.baseURL+"/users/refresh", "",
		refreshRequest{RefreshToken: pair.RefreshToken}, &rotated)
	req.Equal(http.StatusOK, resp.StatusCode)
	req.NotEmpty(rotated.RefreshToken)

	resp = testhelpers.DoJSON(t, http.MethodPost, env.baseURL+"/users/refresh", "",
		refreshRequest{RefreshToken: pair.RefreshToken}, nil)
	req.Equal(http.StatusUnauthorized, resp.StatusCode)

	resp = testhelpers.DoJSON(t, http.MethodPost, env.baseURL+"/users/logout", "",
		refreshRequest{RefreshToken: rotated.RefreshToken}, nil)
	req.Equal(http.StatusOK, resp.StatusCode)

	resp = testhelpers.DoJSON(t, http.MethodPost, env.baseURL+"/users/refresh", "",
		refreshRequest{RefreshToken: rotated.RefreshToken}, nil)
	req.Equal(http.StatusUnauthorized, resp.StatusCode)
}

func TestProfileUpdate(t *testing.T) {
	req := require.New(t)
	env := newTestEnv(t)
	token := env.signUp(t, "alice")

	var p profileView
	resp := testhelpers.DoJSON(t, http.MethodPut, env.baseURL+"/users/me/profile", token,
		map[string]any{"first_name": "Alice", "bio": "hi"}, &p)
	req.Equal(http.StatusOK, resp.StatusCode)
	req.Equal("Alice", p.FirstName)

	resp = testhelpers.DoJSON(t, http.MethodGet, env.baseURL+"/users/alice/profile", "", nil, &p)
	req.Equal(http.StatusOK, resp.StatusCode)
	req.Equal("hi", p.Bio)

	resp = testhelpers.DoJSON(t, http.MethodGet, env.baseURL+"/users/nobody/profile", "", nil, nil)
	req.Equal(http.StatusNotFound, resp.StatusCode)
}

func TestPostsLifecycle(t *testing.T) {
	req := require.New(t)
	env := newTestEnv(t)
	alice := env.signUp(t, "alice")
	bob := env.signUp(t, "bob")

	var p postView
	resp := testhelpers.DoJSON(t, http.MethodPost, env.baseURL+"/posts/", alice,
		service.PostInput{Title: "Hello", Content: "first"}, &p)
	req.Equal(http.StatusOK, resp.StatusCode)
	req.Equal("alice", p.Username)

	postURL := env.baseURL + "/posts/" + strconv.FormatInt(p.ID, 10)
	resp = testhelpers.DoJSON(t, http.MethodPut, postURL, bob, map[string]any{"content": "hijack"}, nil)
	req.Equal(http.StatusForbidden, resp.StatusCode)

	resp = testhelpers.DoJSON(t, http.MethodPut, postURL, alice, map[string]any{"content": "edited"}, &p)
	req.Equal(http.StatusOK, resp.StatusCode)
	req.Equal("edited", p.Content)
	req.Equal("Hello", p.Title)

	var list []postView
	resp = testhelpers.DoJSON(t, http.MethodGet, env.baseURL+"/posts/?limit=10", "", nil, &list)
	req.Equal(http.StatusOK, resp.StatusCode)
	req.Len(list, 1)

	resp = testhelpers.DoJSON(t, http.MethodDelete, postURL, alice, nil, nil)
	req.Equal(http.StatusOK, resp.StatusCode)

	resp = testhelpers.DoJSON(t, http.MethodGet, postURL, "", nil, nil)
	req.Equal(http.StatusNotFound, resp.StatusCode)

	resp = testhelpers.DoJSON(t, http.MethodGet, env.baseURL+"/posts/abc", "", nil, nil)
	req.Equal(http.StatusBadRequest, resp.StatusCode)
}

func TestChannelMembershipRoutes(t *testing.T) {
	req := require.New(t)
	env := newTestEnv(t)
	alice := env.signUp(t, "alice")
	bob := env.signUp(t, "bob")

	public := env.createChannel(t, alice, "general", true)
	secret := env.createChannel(t, alice, "secret", false)
	channelURL := func(id int64, suffix string) string {
		return env.baseURL + "/chat/channels/" + strconv.FormatInt(id, 10) + suffix
	}

	var body errorBody
	resp := testhelpers.DoJSON(t, http.MethodPost, channelURL(secret, "/join"), bob, nil, &body)
	req.Equal(http.StatusForbidden, resp.StatusCode)
	req.Equal("this channel is private", body.Detail)

	resp = testhelpers.DoJSON(t, http.MethodPost, channelURL(9999, "/join"), bob, nil, nil)
	req.Equal(http.StatusNotFound, resp.StatusCode)

	resp = testhelpers.DoJSON(t, http.MethodGet, channelURL(public, ""), bob, nil, nil)
	req.Equal(http.StatusForbidden, resp.StatusCode)

	resp = testhelpers.DoJSON(t, http.MethodPost, channelURL(public, "/join"), bob, nil, nil)
	req.Equal(http.StatusOK, resp.StatusCode)
	resp = testhelpers.DoJSON(t, http.MethodPost, channelURL(public, "/join"), bob, nil, nil)
	req.Equal(http.StatusBadRequest, resp.StatusCode)

	resp = testhelpers.DoJSON(t, http.MethodDelete, channelURL(public, "/leave"), alice, nil, &body)
	req.Equal(http.StatusBadRequest, resp.StatusCode)
	req.Equal("cannot leave channel - you are the only admin", body.Detail)

	var detail channelDetailView
	resp = testhelpers.DoJSON(t, http.MethodGet, channelURL(public, ""), bob, nil, &detail)
	req.Equal(http.StatusOK, resp.StatusCode)
	req.Equal("alice", detail.CreatedBy)
	req.Len(detail.Members, 2)

	var found []channelView
	resp = testhelpers.DoJSON(t, http.MethodGet, env.baseURL+"/chat/channels/search?query=SEC", bob, nil, &found)
	req.Equal(http.StatusOK, resp.StatusCode)
	req.Empty(found)

	resp = testhelpers.DoJSON(t, http.MethodDelete, channelURL(public, "/leave"), bob, nil, nil)
	req.Equal(http.StatusOK, resp.StatusCode)

	var mine []channelView
	resp = testhelpers.DoJSON(t, http.MethodGet, env.baseURL+"/chat/channels", alice, nil, &mine)
	req.Equal(http.StatusOK, resp.StatusCode)
	req.Len(mine, 2)
}

func TestWebSocketBroadcastReachesEveryMember(t *testing.T) {
	req := require.New(t)
	env := newTestEnv(t)
	alice := env.signUp(t, "alice")
	bob := env.signUp(t, "bob")
	channelID := env.createChannel(t, alice, "general", true)
	testhelpers.DoJSON(t, http.MethodPost, env.baseURL+"/chat/channels/"+strconv.FormatInt(channelID, 10)+"/join", bob, nil, nil)

	aliceConn := testhelpers.MustConnect(t, env.wsURL(channelID, alice))
	bobConn := testhelpers.MustConnect(t, env.wsURL(channelID, bob))
	env.waitForConnections(t, channelID, 2)

	req.NoError(testhelpers.SendMessage(aliceConn, "hello bob"))
	testhelpers.AssertMessageContent(t, testhelpers.ReceiveFrame(t, aliceConn), "hello bob", "alice")
	testhelpers.AssertMessageContent(t, testhelpers.ReceiveFrame(t, bobConn), "hello bob", "alice")

	var detail channelDetailView
	testhelpers.DoJSON(t, http.MethodGet, env.baseURL+"/chat/channels/"+strconv.FormatInt(channelID, 10), bob, nil, &detail)
	req.Len(detail.Messages, 1)
	req.Equal("hello bob", detail.Messages[0].Content)
}

func TestLeaveDetachesLiveConnection(t *testing.T) {
	req := require.New(t)
	env := newTestEnv(t)
	alice := env.signUp(t, "alice")
	bob := env.signUp(t, "bob")
	channelID := env.createChannel(t, alice, "general", true)
	channelURL := env.baseURL + "/chat/channels/" + strconv.FormatInt(channelID, 10)
	testhelpers.DoJSON(t, http.MethodPost, channelURL+"/join", bob, nil, nil)

	aliceConn := testhelpers.MustConnect(t, env.wsURL(channelID, alice))
	bobConn := testhelpers.MustConnect(t, env.wsURL(channelID, bob))
	env.waitForConnections(t, channelID, 2)

	resp := testhelpers.DoJSON(t, http.MethodDelete, channelURL+"/leave", bob, nil, nil)
	req.Equal(http.StatusOK, resp.StatusCode)
	req.Equal(websocket.CloseGoingAway, testhelpers.ExpectClose(t, bobConn))
	env.waitForConnections(t, channelID, 1)
	req.Equal([]string{"alice"}, env.registry.Users(channelID))

	req.NoError(testhelpers.SendMessage(aliceConn, "still here"))
	testhelpers.AssertMessageContent(t, testhelpers.ReceiveFrame(t, aliceConn), "still here", "alice")
}

func TestRESTMessageIsBroadcast(t *testing.T) {
	req := require.New(t)
	env := newTestEnv(t)
	alice := env.signUp(t, "alice")
	channelID := env.createChannel(t, alice, "general", true)

	conn := testhelpers.MustConnect(t, env.wsURL(channelID, alice))
	env.waitForConnections(t, channelID, 1)

	var msg chat.Outbound
	resp := testhelpers.DoJSON(t, http.MethodPost,
		env.baseURL+"/chat/channels/"+strconv.FormatInt(channelID, 10)+"/messages", alice,
		service.MessageInput{Content: "from rest"}, &msg)
	req.Equal(http.StatusOK, resp.StatusCode)
	req.Equal("alice", msg.User)

	frame := testhelpers.ReceiveFrame(t, conn)
	testhelpers.AssertMessageContent(t, frame, "from rest", "alice")
	req.EqualValues(msg.ID, frame["id"])
}

func TestWebSocketRejectsNonMember(t *testing.T) {
	env := newTestEnv(t)
	alice := env.signUp(t, "alice")
	bob := env.signUp(t, "bob")
	channelID := env.createChannel(t, alice, "secret", false)

	conn := testhelpers.MustConnect(t, env.wsURL(channelID, bob))
	require.Equal(t, websocket.ClosePolicyViolation, testhelpers.ExpectClose(t, conn))
	require.Zero(t, env.registry.Count(channelID))
}

func TestWebSocketRejectsBadChannelID(t *testing.T) {
	env := newTestEnv(t)
	_, resp, err := testhelpers.ConnectWebSocket(testhelpers.WebSocketURL(env.baseURL, "/chat/ws/abc"), "")
	require.Error(t, err)
	require.NotNil(t, resp)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestWebSocketOriginPolicy(t *testing.T) {
	env := newTestEnv(t, "http://allowed.example")
	alice := env.signUp(t, "alice")
	channelID := env.createChannel(t, alice, "general", true)
	wsURL := env.wsURL(channelID, alice)

	tests := []struct {
		name    string
		origin  string
		allowed bool
	}{
		{"Allowed origin", "http://allowed.example", true},
		{"Case-insensitive match", "HTTP://ALLOWED.EXAMPLE", true},
		{"Foreign origin", "http://evil.example", false},
		{"Missing origin", "", false},
		{"Malformed origin", "not-a-url", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn, resp, err := testhelpers.ConnectWebSocket(wsURL, tt.origin)
			if tt.allowed {
				require.NoError(t, err)
				_ = testhelpers.CloseWebSocket(conn)
				return
			}
			require.Error(t, err)
			require.NotNil(t, resp)
			require.Equal(t, http.StatusForbidden, resp.StatusCode)
		})
	}
}

func TestCORSPreflight(t *testing.T) {
	req := require.New(t)
	env := newTestEnv(t, "http://allowed.example")

	preflight := func(origin string) *http.Response {
		r, err := http.NewRequest(http.MethodOptions, env.baseURL+"/chat/channels", http.NoBody)
		req.NoError(err)
		r.Header.Set("Origin", origin)
		r.Header.Set("Access-Control-Request-Method", http.MethodPost)
		resp, err := http.DefaultClient.Do(r)
		req.NoError(err)
		t.Cleanup(func() { _ = resp.Body.Close() })
		return resp
	}

	resp := preflight("http://allowed.example")
	req.Equal(http.StatusNoContent, resp.StatusCode)
	req.Equal("http://allowed.example", resp.Header.Get("Access-Control-Allow-Origin"))
	req.True(strings.Contains(resp.Header.Get("Access-Control-Allow-Headers"), "Authorization"))

	resp = preflight("http://evil.example")
	req.Empty(resp.Header.Get("Access-Control-Allow-Origin"))
}
