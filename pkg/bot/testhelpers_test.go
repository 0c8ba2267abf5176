// Copyright 2024-2026 Aiku AI
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package bot

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mattermost/mattermost/server/public/model"
	"github.com/rs/zerolog"

	"github.com/aiku/mattermost-aibot/pkg/plugins"
)

// endpointCall records which API endpoints were hit during a test.
type endpointCall struct {
	Method string
	Path   string
	Body   string
}

// fakeMM is a test helper that wraps an httptest.Server simulating the
// Mattermost API. It records calls and provides canned responses.
type fakeMM struct {
	Server *httptest.Server

	mu    sync.Mutex
	calls []endpointCall

	// Users maps user ID to model.User for GetMe responses.
	Users map[string]*model.User
	// TokenToUser maps bearer tokens to user IDs for GetMe auth.
	TokenToUser map[string]string
	// Files maps file ID to model.FileInfo.
	Files map[string]*model.FileInfo
	// FileContents maps file ID to raw file bytes.
	FileContents map[string][]byte
	// FailEndpoints causes specific path substrings to return 500.
	FailEndpoints map[string]bool
}

func newFakeMM() *fakeMM {
	f := &fakeMM{
		Users:         make(map[string]*model.User),
		TokenToUser:   make(map[string]string),
		Files:         make(map[string]*model.FileInfo),
		FileContents:  make(map[string][]byte),
		FailEndpoints: make(map[string]bool),
	}
	f.Server = httptest.NewServer(http.HandlerFunc(f.handler))
	return f
}

// newAuthedFakeMM is a fakeMM with the default test bot account wired up.
func newAuthedFakeMM() *fakeMM {
	f := newFakeMM()
	f.Users["bot-user-id"] = &model.User{Id: "bot-user-id", Username: "aibot"}
	f.TokenToUser["test-token"] = "bot-user-id"
	return f
}

func (f *fakeMM) Close() {
	f.Server.Close()
}

func (f *fakeMM) record(method, path, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, endpointCall{Method: method, Path: path, Body: body})
}

func (f *fakeMM) Calls() []endpointCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := make([]endpointCall, len(f.calls))
	copy(cp, f.calls)
	return cp
}

func (f *fakeMM) CalledPath(path string) bool {
	for _, c := range f.Calls() {
		if strings.Contains(c.Path, path) {
			return true
		}
	}
	return false
}

// CreatedPosts decodes every post sent to POST /api/v4/posts.
func (f *fakeMM) CreatedPosts() []*model.Post {
	var posts []*model.Post
	for _, c := range f.Calls() {
		if c.Method == "POST" && c.Path == "/api/v4/posts" {
			var post model.Post
			if err := json.Unmarshal([]byte(c.Body), &post); err == nil {
				posts = append(posts, &post)
			}
		}
	}
	return posts
}

func (f *fakeMM) resolveToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	f.mu.Lock()
	defer f.mu.Unlock()
	for tok, uid := range f.TokenToUser {
		if auth == "BEARER "+tok || auth == "Bearer "+tok {
			return uid
		}
	}
	return ""
}

func (f *fakeMM) handler(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	f.record(r.Method, r.URL.Path, string(body))

	f.mu.Lock()
	for substr := range f.FailEndpoints {
		if strings.Contains(r.URL.Path, substr) {
			f.mu.Unlock()
			w.WriteHeader(http.StatusInternalServerError)
			_ = json.NewEncoder(w).Encode(map[string]string{"message": "fake error"})
			return
		}
	}
	f.mu.Unlock()

	path := r.URL.Path

	switch {
	// GET /api/v4/users/me
	case r.Method == "GET" && path == "/api/v4/users/me":
		uid := f.resolveToken(r)
		if uid == "" {
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]string{"message": "unauthorized"})
			return
		}
		f.mu.Lock()
		u, ok := f.Users[uid]
		f.mu.Unlock()
		if ok {
			_ = json.NewEncoder(w).Encode(u)
			return
		}
		w.WriteHeader(http.StatusNotFound)

	// POST /api/v4/posts
	case r.Method == "POST" && path == "/api/v4/posts":
		var post model.Post
		_ = json.Unmarshal(body, &post)
		post.Id = "created-post-id"
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(&post)

	// GET /api/v4/files/{file_id}/info
	case r.Method == "GET" && strings.HasPrefix(path, "/api/v4/files/") && strings.HasSuffix(path, "/info"):
		fileID := strings.TrimSuffix(strings.TrimPrefix(path, "/api/v4/files/"), "/info")
		f.mu.Lock()
		fi, ok := f.Files[fileID]
		f.mu.Unlock()
		if ok {
			_ = json.NewEncoder(w).Encode(fi)
			return
		}
		w.WriteHeader(http.StatusNotFound)

	// GET /api/v4/files/{file_id}
	case r.Method == "GET" && strings.HasPrefix(path, "/api/v4/files/"):
		fileID := strings.TrimPrefix(path, "/api/v4/files/")
		f.mu.Lock()
		content, ok := f.FileContents[fileID]
		f.mu.Unlock()
		if ok {
			_, _ = w.Write(content)
			return
		}
		w.WriteHeader(http.StatusNotFound)

	// POST /api/v4/files (upload)
	case r.Method == "POST" && path == "/api/v4/files":
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(&model.FileUploadResponse{
			FileInfos: []*model.FileInfo{{Id: "uploaded-file-id", Name: "upload"}},
		})

	default:
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(map[string]string{"message": "not found: " + path})
	}
}

// fakeWS is an in-memory wsConn. Dropping it (closing the event channel)
// simulates a transport-level disconnect.
type fakeWS struct {
	events chan *model.WebSocketEvent

	mu       sync.Mutex
	listens  int
	closed   bool
	dropOnce sync.Once
}

func newFakeWS() *fakeWS {
	return &fakeWS{events: make(chan *model.WebSocketEvent, 16)}
}

func (f *fakeWS) Listen() {
	f.mu.Lock()
	f.listens++
	f.mu.Unlock()
}

func (f *fakeWS) Close() {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
}

func (f *fakeWS) Events() <-chan *model.WebSocketEvent { return f.events }

// Emit delivers an event as if it arrived on the wire.
func (f *fakeWS) Emit(evt *model.WebSocketEvent) { f.events <- evt }

// Drop simulates the remote end closing the connection.
func (f *fakeWS) Drop() {
	f.dropOnce.Do(func() { close(f.events) })
}

func (f *fakeWS) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// fakeDialer hands out fakeWS connections and counts dial attempts.
type fakeDialer struct {
	mu    sync.Mutex
	conns []*fakeWS
	dials int
	// failNext makes that many upcoming dials fail before succeeding.
	failNext int
}

func (d *fakeDialer) dial(wsURL, authToken string) (wsConn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	if d.failNext > 0 {
		d.failNext--
		return nil, errors.New("dial refused")
	}
	ws := newFakeWS()
	d.conns = append(d.conns, ws)
	return ws, nil
}

func (d *fakeDialer) Dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

func (d *fakeDialer) Conn(i int) *fakeWS {
	d.mu.Lock()
	defer d.mu.Unlock()
	if i >= len(d.conns) {
		return nil
	}
	return d.conns[i]
}

func (d *fakeDialer) ConnCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.conns)
}

// newTestClient creates a Client against the fake server with an
// injected WebSocket dialer and a short reconnect delay.
func newTestClient(f *fakeMM, d *fakeDialer) *Client {
	c := NewClient(ClientConfig{
		ServerURL:      f.Server.URL,
		Token:          "test-token",
		ReconnectDelay: 5 * time.Millisecond,
	}, zerolog.Nop())
	c.dialWS = d.dial
	return c
}

// waitFor polls cond until it holds or the deadline expires.
func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal(msg)
}

// newWebSocketEvent creates a model.WebSocketEvent for testing handlers.
func newWebSocketEvent(eventType model.WebsocketEventType, channelID string, data map[string]any) *model.WebSocketEvent {
	evt := model.NewWebSocketEvent(eventType, "", channelID, "", nil, "")
	return evt.SetData(data)
}

// newPostedEvent wraps a post in a "posted" WebSocket event the way the
// server serializes it (post as embedded JSON).
func newPostedEvent(t *testing.T, post *model.Post) *model.WebSocketEvent {
	t.Helper()
	data, err := json.Marshal(post)
	if err != nil {
		t.Fatalf("failed to marshal post: %v", err)
	}
	return newWebSocketEvent(model.WebsocketEventPosted, post.ChannelId, map[string]any{
		"post": string(data),
	})
}

// postedMessage captures one reply published through the stub gateway.
type postedMessage struct {
	ChannelID string
	Message   string
}

// stubGateway implements the gateway interface for Service tests.
type stubGateway struct {
	mu       sync.Mutex
	botID    string
	posts    []postedMessage
	failPost bool
}

func (g *stubGateway) BotUserID() string { return g.botID }

func (g *stubGateway) PostMessage(_ context.Context, channelID, message string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failPost {
		return errors.New("post failed")
	}
	g.posts = append(g.posts, postedMessage{ChannelID: channelID, Message: message})
	return nil
}

func (g *stubGateway) Posts() []postedMessage {
	g.mu.Lock()
	defer g.mu.Unlock()
	cp := make([]postedMessage, len(g.posts))
	copy(cp, g.posts)
	return cp
}

// stubPlugin is a minimal plugins.Plugin with a scriptable Execute.
type stubPlugin struct {
	name        string
	description string
	usage       string
	execute     func(ctx context.Context, args []string, channelID, userID string) string

	mu    sync.Mutex
	calls [][]string
}

func (p *stubPlugin) Name() string        { return p.name }
func (p *stubPlugin) Description() string { return p.description }
func (p *stubPlugin) Usage() string       { return p.usage }
func (p *stubPlugin) Initialize() error   { return nil }
func (p *stubPlugin) Cleanup() error      { return nil }

func (p *stubPlugin) Execute(ctx context.Context, args []string, channelID, userID string) string {
	p.mu.Lock()
	p.calls = append(p.calls, append([]string(nil), args...))
	p.mu.Unlock()
	if p.execute != nil {
		return p.execute(ctx, args, channelID, userID)
	}
	return ""
}

func (p *stubPlugin) Calls() [][]string {
	p.mu.Lock()
	defer p.mu.Unlock()
	cp := make([][]string, len(p.calls))
	copy(cp, p.calls)
	return cp
}

// newStubRegistry builds a registry preloaded with the given plugins.
func newStubRegistry(t *testing.T, stubs ...*stubPlugin) *plugins.Registry {
	t.Helper()
	registry := plugins.NewRegistry(zerolog.Nop())
	factories := make(map[string]plugins.Factory)
	names := make([]string, 0, len(stubs))
	for _, stub := range stubs {
		stub := stub
		factories[stub.name] = func(plugins.Deps) (plugins.Plugin, error) {
			return stub, nil
		}
		names = append(names, stub.name)
	}
	registry.Load(names, factories, plugins.Deps{Log: zerolog.Nop()})
	return registry
}
