// Copyright 2024-2026 Aiku AI
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package bot

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mattermost/mattermost/server/public/model"
	"github.com/rs/zerolog"

	"github.com/aiku/mattermost-aibot/pkg/plugins"
)

// ConnState describes the lifecycle of the persistent event stream.
type ConnState int32

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateConnected
	StateReconnecting
)

func (s ConnState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	default:
		return "unknown"
	}
}

// wsConn abstracts the live WebSocket so tests can inject a fake transport.
type wsConn interface {
	Listen()
	Close()
	Events() <-chan *model.WebSocketEvent
}

// wsDialer opens a new WebSocket connection to the event source.
type wsDialer func(wsURL, authToken string) (wsConn, error)

// mmWebSocket adapts model.WebSocketClient to the wsConn interface.
type mmWebSocket struct {
	ws *model.WebSocketClient
}

func dialMattermostWS(wsURL, authToken string) (wsConn, error) {
	ws, err := model.NewWebSocketClient4(wsURL, authToken)
	if err != nil {
		return nil, err
	}
	return &mmWebSocket{ws: ws}, nil
}

func (w *mmWebSocket) Listen() { w.ws.Listen() }
func (w *mmWebSocket) Close()  { w.ws.Close() }

func (w *mmWebSocket) Events() <-chan *model.WebSocketEvent { return w.ws.EventChannel }

// ClientConfig holds the connection settings for a Client.
type ClientConfig struct {
	ServerURL string
	Token     string
	// ReconnectDelay is the fixed wait between a transport drop and the
	// next connect attempt. Defaults to 5s.
	ReconnectDelay time.Duration
}

// Client owns the single authenticated connection to the Mattermost
// server: a REST client for posting and file transfer, and a persistent
// WebSocket that delivers decoded events to registered listeners.
//
// On every transport drop the client waits ReconnectDelay and re-runs the
// full connect sequence (re-resolve identity, re-dial) indefinitely.
// Events in flight during a drop are lost, not replayed.
type Client struct {
	api       *model.Client4
	serverURL string

	dialWS         wsDialer
	reconnectDelay time.Duration

	// listeners must be registered before Connect; they are invoked
	// sequentially on the receive goroutine, one event at a time.
	listeners []func(*model.WebSocketEvent)

	mu        sync.RWMutex
	botUserID string

	state    atomic.Int32
	started  atomic.Bool
	stopOnce sync.Once
	stopChan chan struct{}
	done     chan struct{}

	log zerolog.Logger
}

var (
	_ plugins.Poster    = (*Client)(nil)
	_ plugins.FileStore = (*Client)(nil)
)

// NewClient creates a client for the given server. It does not connect.
func NewClient(cfg ClientConfig, log zerolog.Logger) *Client {
	api := model.NewAPIv4Client(strings.TrimRight(cfg.ServerURL, "/"))
	api.SetToken(cfg.Token)

	delay := cfg.ReconnectDelay
	if delay <= 0 {
		delay = 5 * time.Second
	}

	return &Client{
		api:            api,
		serverURL:      strings.TrimRight(cfg.ServerURL, "/"),
		dialWS:         dialMattermostWS,
		reconnectDelay: delay,
		stopChan:       make(chan struct{}),
		done:           make(chan struct{}),
		log:            log.With().Str("component", "mm_client").Logger(),
	}
}

// AddListener registers a callback for decoded WebSocket events.
// Registration survives reconnects. Must be called before Connect.
func (c *Client) AddListener(callback func(*model.WebSocketEvent)) {
	c.listeners = append(c.listeners, callback)
}

// BotUserID returns the bot's own resolved Mattermost user ID. Empty
// until Connect has succeeded.
func (c *Client) BotUserID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.botUserID
}

// State reports the current connection state.
func (c *Client) State() ConnState {
	return ConnState(c.state.Load())
}

// Connect resolves the bot identity and opens the WebSocket, then starts
// the receive loop. A failure to authenticate or complete the first
// handshake is terminal: it is returned to the caller and never retried,
// since retrying with invalid credentials cannot succeed.
func (c *Client) Connect(ctx context.Context) error {
	if !c.state.CompareAndSwap(int32(StateDisconnected), int32(StateConnecting)) {
		return fmt.Errorf("client is not disconnected")
	}

	me, _, err := c.api.GetMe(ctx, "")
	if err != nil {
		c.state.Store(int32(StateDisconnected))
		return fmt.Errorf("failed to resolve bot identity: %w", err)
	}
	c.setBotUserID(me.Id)
	c.log.Info().Str("user_id", me.Id).Str("username", me.Username).Msg("Authenticated")

	ws, err := c.dial()
	if err != nil {
		c.state.Store(int32(StateDisconnected))
		return fmt.Errorf("websocket connect: %w", err)
	}
	c.state.Store(int32(StateConnected))
	c.log.Info().Str("ws_url", httpToWS(c.serverURL)).Msg("WebSocket connected")

	c.started.Store(true)
	go c.readLoop(ws)
	return nil
}

// Close tears down the connection and joins the receive loop. No
// listener callback fires after Close returns. It is idempotent and
// no-ops if the client never connected.
func (c *Client) Close() {
	c.stopOnce.Do(func() {
		close(c.stopChan)
	})
	if c.started.Load() {
		<-c.done
	}
	c.state.Store(int32(StateDisconnected))
	c.log.Info().Msg("Client closed")
}

func (c *Client) dial() (wsConn, error) {
	ws, err := c.dialWS(httpToWS(c.serverURL), c.api.AuthToken)
	if err != nil {
		return nil, err
	}
	ws.Listen()
	return ws, nil
}

// readLoop drives the persistent connection. All listener callbacks run
// here, one event at a time, so dispatch is totally ordered.
func (c *Client) readLoop(ws wsConn) {
	defer close(c.done)
	for {
		select {
		case <-c.stopChan:
			ws.Close()
			return
		case evt, ok := <-ws.Events():
			if !ok {
				ws.Close()
				next := c.reconnect()
				if next == nil {
					return
				}
				ws = next
				continue
			}
			if evt == nil {
				continue
			}
			c.notify(evt)
		}
	}
}

// reconnect waits the configured delay and re-runs the full connect
// sequence until it succeeds. Retries are unbounded: the server is
// assumed to eventually become reachable again. Returns nil only when
// the client is being closed.
func (c *Client) reconnect() wsConn {
	for {
		c.state.Store(int32(StateReconnecting))
		c.log.Warn().
			Dur("delay", c.reconnectDelay).
			Msg("WebSocket disconnected, reconnecting")

		select {
		case <-c.stopChan:
			return nil
		case <-time.After(c.reconnectDelay):
		}

		c.state.Store(int32(StateConnecting))
		me, _, err := c.api.GetMe(context.Background(), "")
		if err != nil {
			c.log.Error().Err(err).Msg("Failed to re-resolve bot identity")
			continue
		}
		c.setBotUserID(me.Id)

		ws, err := c.dial()
		if err != nil {
			c.log.Error().Err(err).Msg("Failed to reconnect WebSocket")
			continue
		}
		c.state.Store(int32(StateConnected))
		c.log.Info().Msg("WebSocket reconnected")
		return ws
	}
}

func (c *Client) notify(evt *model.WebSocketEvent) {
	for _, listener := range c.listeners {
		listener(evt)
	}
}

func (c *Client) setBotUserID(id string) {
	c.mu.Lock()
	c.botUserID = id
	c.mu.Unlock()
}

// PostOptions carries the optional fields of an outbound post.
type PostOptions struct {
	RootID  string
	FileIDs []string
	Props   map[string]any
}

// CreatePost sends a message to a channel with the given options.
func (c *Client) CreatePost(ctx context.Context, channelID, message string, opts PostOptions) error {
	post := &model.Post{
		ChannelId: channelID,
		Message:   message,
		RootId:    opts.RootID,
		FileIds:   model.StringArray(opts.FileIDs),
	}
	if opts.Props != nil {
		post.SetProps(opts.Props)
	}
	if _, _, err := c.api.CreatePost(ctx, post); err != nil {
		return fmt.Errorf("create post: %w", err)
	}
	c.log.Debug().Str("channel_id", channelID).Msg("Posted message")
	return nil
}

// PostMessage sends a plain text message to a channel.
func (c *Client) PostMessage(ctx context.Context, channelID, message string) error {
	return c.CreatePost(ctx, channelID, message, PostOptions{})
}

// PostMessageWithFiles sends a message with attached file IDs.
func (c *Client) PostMessageWithFiles(ctx context.Context, channelID, message string, fileIDs []string) error {
	return c.CreatePost(ctx, channelID, message, PostOptions{FileIDs: fileIDs})
}

// GetFileInfo fetches metadata for an uploaded file.
func (c *Client) GetFileInfo(ctx context.Context, fileID string) (*plugins.FileInfo, error) {
	info, _, err := c.api.GetFileInfo(ctx, fileID)
	if err != nil {
		return nil, fmt.Errorf("get file info: %w", err)
	}
	return &plugins.FileInfo{
		ID:       info.Id,
		Name:     info.Name,
		MimeType: info.MimeType,
		Size:     info.Size,
	}, nil
}

// DownloadFile fetches the content of an uploaded file.
func (c *Client) DownloadFile(ctx context.Context, fileID string) ([]byte, error) {
	data, _, err := c.api.GetFile(ctx, fileID)
	if err != nil {
		return nil, fmt.Errorf("download file: %w", err)
	}
	return data, nil
}

// UploadFile uploads file content to a channel and returns the new file ID.
func (c *Client) UploadFile(ctx context.Context, channelID, filename string, data []byte) (string, error) {
	resp, _, err := c.api.UploadFile(ctx, data, channelID, filename)
	if err != nil {
		return "", fmt.Errorf("upload file: %w", err)
	}
	if len(resp.FileInfos) == 0 {
		return "", fmt.Errorf("upload file: empty file info response")
	}
	return resp.FileInfos[0].Id, nil
}

// httpToWS converts an HTTP(S) URL to a WS(S) URL.
func httpToWS(url string) string {
	if strings.HasPrefix(url, "https://") {
		return "wss://" + strings.TrimPrefix(url, "https://")
	}
	if strings.HasPrefix(url, "http://") {
		return "ws://" + strings.TrimPrefix(url, "http://")
	}
	return url
}
