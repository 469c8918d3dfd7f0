// Package lavalink implements the [audionode] contracts against Lavalink v4
// servers.
//
// Each [Node] keeps a websocket open to /v4/websocket to receive the session
// handshake, load statistics, position updates and player events, and issues
// commands through the REST API. A [Cluster] groups nodes, places new players
// on the least loaded node and performs the voice handshake through a
// [VoiceGateway] supplied by the chat platform adapter.
package lavalink

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/tempo/pkg/audionode"
)

// Compile-time interface assertion.
var _ audionode.Node = (*Node)(nil)

const (
	defaultClientName  = "tempo/1.0"
	defaultHTTPTimeout = 10 * time.Second
	minReconnectDelay  = 1 * time.Second
	maxReconnectDelay  = 30 * time.Second
	readLimit          = 1 << 20
)

// ErrNotReady is returned by REST calls issued before the node completed its
// session handshake.
var ErrNotReady = errors.New("lavalink: node session not ready")

// NodeConfig describes how to reach a Lavalink server.
type NodeConfig struct {
	// Name identifies the node in logs and metrics.
	Name string

	// Address is host:port of the server.
	Address string

	// Password is sent in the Authorization header.
	Password string

	// Secure selects wss/https instead of ws/http.
	Secure bool
}

// Option configures a [Node].
type Option func(*Node)

// WithHTTPClient overrides the HTTP client used for REST calls.
func WithHTTPClient(c *http.Client) Option {
	return func(n *Node) { n.http = c }
}

// WithClientName overrides the Client-Name header.
func WithClientName(name string) Option {
	return func(n *Node) { n.clientName = name }
}

// Node is a connection to a single Lavalink server.
//
// Node is safe for concurrent use.
type Node struct {
	cfg        NodeConfig
	userID     string
	clientName string
	http       *http.Client

	mu        sync.RWMutex
	conn      *websocket.Conn
	sessionID string
	stats     Stats
	players   map[string]*Player

	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
}

// NewNode creates a Node for the bot user userID. Call [Node.Open] to start
// the websocket loop.
func NewNode(cfg NodeConfig, userID string, opts ...Option) *Node {
	n := &Node{
		cfg:        cfg,
		userID:     userID,
		clientName: defaultClientName,
		http:       &http.Client{Timeout: defaultHTTPTimeout},
		players:    make(map[string]*Player),
		done:       make(chan struct{}),
	}
	for _, o := range opts {
		o(n)
	}
	return n
}

// Name implements [audionode.Node].
func (n *Node) Name() string { return n.cfg.Name }

// Connected implements [audionode.Node]. It is true once the ready message
// with a session id has been received on the current socket.
func (n *Node) Connected() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.conn != nil && n.sessionID != ""
}

// TransportOpen implements [audionode.Node].
func (n *Node) TransportOpen() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.conn != nil
}

// Stats returns the last load report received from the server.
func (n *Node) Stats() Stats {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.stats
}

// SessionID returns the current session id, or "" before the handshake.
func (n *Node) SessionID() string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.sessionID
}

// Open starts the websocket loop in a background goroutine. The loop
// reconnects with exponential backoff until ctx is cancelled or
// [Node.Close] is called.
func (n *Node) Open(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	n.mu.Lock()
	n.cancel = cancel
	n.mu.Unlock()
	go n.run(ctx)
}

// Close stops the websocket loop and waits for it to exit.
func (n *Node) Close() error {
	n.closeOnce.Do(func() {
		n.mu.RLock()
		cancel := n.cancel
		n.mu.RUnlock()
		if cancel == nil {
			close(n.done)
			return
		}
		cancel()
		<-n.done
	})
	return nil
}

func (n *Node) wsURL() string {
	scheme := "ws"
	if n.cfg.Secure {
		scheme = "wss"
	}
	return fmt.Sprintf("%s://%s/v4/websocket", scheme, n.cfg.Address)
}

func (n *Node) restURL(path string) string {
	scheme := "http"
	if n.cfg.Secure {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s/v4%s", scheme, n.cfg.Address, path)
}

// run is the reconnect loop.
func (n *Node) run(ctx context.Context) {
	defer close(n.done)
	delay := minReconnectDelay
	for {
		err := n.connectAndRead(ctx)
		if ctx.Err() != nil {
			return
		}
		slog.Warn("lavalink: node connection lost",
			"node", n.cfg.Name,
			"err", err,
			"retry_in", delay,
		)
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
		delay *= 2
		if delay > maxReconnectDelay {
			delay = maxReconnectDelay
		}
	}
}

// connectAndRead dials the websocket and consumes messages until the
// connection fails.
func (n *Node) connectAndRead(ctx context.Context) error {
	conn, _, err := websocket.Dial(ctx, n.wsURL(), &websocket.DialOptions{
		HTTPHeader: http.Header{
			"Authorization": []string{n.cfg.Password},
			"User-Id":       []string{n.userID},
			"Client-Name":   []string{n.clientName},
		},
	})
	if err != nil {
		return fmt.Errorf("lavalink: dial %s: %w", n.cfg.Name, err)
	}
	conn.SetReadLimit(readLimit)

	n.mu.Lock()
	n.conn = conn
	n.mu.Unlock()
	slog.Info("lavalink: node transport open", "node", n.cfg.Name)

	defer n.dropConnection(conn)

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		n.handleMessage(data)
	}
}

// dropConnection resets connection state and notifies every player on this
// node that its voice session is gone; the remote players die with the
// session.
func (n *Node) dropConnection(conn *websocket.Conn) {
	conn.Close(websocket.StatusNormalClosure, "closing")

	n.mu.Lock()
	n.conn = nil
	n.sessionID = ""
	players := make([]*Player, 0, len(n.players))
	for _, p := range n.players {
		players = append(players, p)
	}
	n.players = make(map[string]*Player)
	n.mu.Unlock()

	for _, p := range players {
		p.dispatch(audionode.WebSocketClosedEvent{
			Guild:    p.guildID,
			Code:     4006,
			Reason:   "audio node connection lost",
			ByRemote: true,
		})
		p.stop()
	}
}

func (n *Node) handleMessage(data []byte) {
	var msg envelope
	if err := json.Unmarshal(data, &msg); err != nil {
		slog.Debug("lavalink: undecodable message", "node", n.cfg.Name, "err", err)
		return
	}

	switch msg.Op {
	case "ready":
		n.mu.Lock()
		n.sessionID = msg.SessionID
		n.mu.Unlock()
		slog.Info("lavalink: node ready",
			"node", n.cfg.Name,
			"session_id", msg.SessionID,
			"resumed", msg.Resumed,
		)

	case "stats":
		var st Stats
		if err := json.Unmarshal(data, &st); err != nil {
			return
		}
		n.mu.Lock()
		n.stats = st
		n.mu.Unlock()

	case "playerUpdate":
		if p := n.player(msg.GuildID); p != nil && msg.State != nil {
			p.setPosition(time.Duration(msg.State.Position) * time.Millisecond)
		}

	case "event":
		ev, err := msg.toEvent()
		if err != nil {
			slog.Warn("lavalink: dropping event", "node", n.cfg.Name, "err", err)
			return
		}
		if p := n.player(msg.GuildID); p != nil {
			p.dispatch(ev)
		}

	default:
		slog.Debug("lavalink: unhandled op", "node", n.cfg.Name, "op", msg.Op)
	}
}

func (n *Node) player(guildID string) *Player {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.players[guildID]
}

// attachPlayer registers a new player for guildID, replacing any previous
// one.
func (n *Node) attachPlayer(guildID string) *Player {
	p := newPlayer(n, guildID)
	n.mu.Lock()
	old := n.players[guildID]
	n.players[guildID] = p
	n.mu.Unlock()
	if old != nil {
		old.stop()
	}
	return p
}

func (n *Node) detachPlayer(p *Player) {
	n.mu.Lock()
	if n.players[p.guildID] == p {
		delete(n.players, p.guildID)
	}
	n.mu.Unlock()
}

// Resolve implements [audionode.Node].
func (n *Node) Resolve(ctx context.Context, identifier string) (audionode.LoadResult, error) {
	endpoint := n.restURL("/loadtracks?identifier=" + url.QueryEscape(identifier))
	var raw loadResponse
	if err := n.do(ctx, http.MethodGet, endpoint, nil, &raw); err != nil {
		return audionode.LoadResult{}, err
	}
	return raw.decode()
}

// updatePlayer issues PATCH /sessions/{sid}/players/{gid}.
func (n *Node) updatePlayer(ctx context.Context, guildID string, body playerUpdate) error {
	sid := n.SessionID()
	if sid == "" {
		return ErrNotReady
	}
	endpoint := n.restURL(fmt.Sprintf("/sessions/%s/players/%s", sid, guildID))
	return n.do(ctx, http.MethodPatch, endpoint, body, nil)
}

// destroyPlayer issues DELETE /sessions/{sid}/players/{gid}.
func (n *Node) destroyPlayer(ctx context.Context, guildID string) error {
	sid := n.SessionID()
	if sid == "" {
		return ErrNotReady
	}
	endpoint := n.restURL(fmt.Sprintf("/sessions/%s/players/%s", sid, guildID))
	return n.do(ctx, http.MethodDelete, endpoint, nil, nil)
}

// do performs a REST call, encoding in as JSON when non-nil and decoding the
// response into out when non-nil.
func (n *Node) do(ctx context.Context, method, endpoint string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("lavalink: encode request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return fmt.Errorf("lavalink: build request: %w", err)
	}
	req.Header.Set("Authorization", n.cfg.Password)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := n.http.Do(req)
	if err != nil {
		return fmt.Errorf("lavalink: %s %s: %w", method, n.cfg.Name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var re restError
		_ = json.NewDecoder(resp.Body).Decode(&re)
		msg := re.Message
		if msg == "" {
			msg = resp.Status
		}
		return fmt.Errorf("lavalink: %s %s: status %d: %s", method, n.cfg.Name, resp.StatusCode, msg)
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("lavalink: decode response: %w", err)
	}
	return nil
}
