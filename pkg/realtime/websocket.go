package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/campuslink/network/pkg/errors"
	"github.com/campuslink/network/pkg/logging"
)

// Wire protocol events. Frames are JSON objects {topic, event, payload, ref}
// multiplexed over a single socket; joins and leaves correlate by ref.
const (
	evtJoin        = "phx_join"
	evtLeave       = "phx_leave"
	evtReply       = "phx_reply"
	evtHeartbeat   = "heartbeat"
	evtChanges     = "postgres_changes"
	evtAccessToken = "access_token"
	evtSystem      = "system"

	heartbeatTopic = "phoenix"
)

type wsFrame struct {
	Topic   string          `json:"topic"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Ref     string          `json:"ref,omitempty"`
}

type joinPayload struct {
	Config struct {
		PostgresChanges []EventSpec `json:"postgres_changes"`
	} `json:"config"`
	AccessToken string `json:"access_token,omitempty"`
}

type replyPayload struct {
	Status   string          `json:"status"`
	Response json.RawMessage `json:"response,omitempty"`
}

type changeEnvelope struct {
	Data struct {
		Type            string                 `json:"type"`
		Schema          string                 `json:"schema"`
		Table           string                 `json:"table"`
		Record          map[string]interface{} `json:"record"`
		OldRecord       map[string]interface{} `json:"old_record"`
		CommitTimestamp string                 `json:"commit_timestamp"`
	} `json:"data"`
}

// WebsocketConfig configures the realtime websocket transport.
type WebsocketConfig struct {
	// URL is the realtime endpoint, e.g. "wss://gw.campuslink.app/realtime".
	URL string

	// APIKey is sent as a query parameter on dial.
	APIKey string

	// HeartbeatInterval defaults to 30 seconds.
	HeartbeatInterval time.Duration

	// JoinTimeout bounds the wait for a join reply. Defaults to 10 seconds.
	JoinTimeout time.Duration

	// WriteTimeout bounds individual frame writes. Defaults to 5 seconds.
	WriteTimeout time.Duration
}

func (c WebsocketConfig) withDefaults() WebsocketConfig {
	if c.HeartbeatInterval == 0 {
		c.HeartbeatInterval = 30 * time.Second
	}
	if c.JoinTimeout == 0 {
		c.JoinTimeout = 10 * time.Second
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 5 * time.Second
	}
	return c
}

// WebsocketTransport multiplexes channel subscriptions over one persistent
// websocket connection. The connection is dialed lazily on the first
// subscribe and re-dialed on the next subscribe after a drop, which is how
// resume-triggered reconnects restore a suspended socket.
type WebsocketTransport struct {
	cfg    WebsocketConfig
	logger *logging.ColoredLogger
	token  atomic.Value // string

	mu      sync.Mutex
	conn    *websocket.Conn
	joined  map[string]*wsChannel
	pending map[string]chan replyPayload
	closed  bool
	stopHB  chan struct{}

	writeMu sync.Mutex
}

// NewWebsocketTransport creates the transport. Connect is lazy; no I/O
// happens here.
func NewWebsocketTransport(cfg WebsocketConfig, logger *logging.ColoredLogger) *WebsocketTransport {
	if logger == nil {
		logger, _ = logging.NewDefaultLogger(logging.ComponentRealtime)
	}
	t := &WebsocketTransport{
		cfg:     cfg.withDefaults(),
		logger:  logger,
		joined:  make(map[string]*wsChannel),
		pending: make(map[string]chan replyPayload),
	}
	t.token.Store("")
	return t
}

// SetAccessToken updates the token attached to joins and pushes it to every
// live channel so the server re-authorizes them after a session refresh.
func (t *WebsocketTransport) SetAccessToken(token string) {
	t.token.Store(token)

	t.mu.Lock()
	conn := t.conn
	topics := make([]string, 0, len(t.joined))
	for topic := range t.joined {
		topics = append(topics, topic)
	}
	t.mu.Unlock()

	if conn == nil {
		return
	}
	payload, _ := json.Marshal(map[string]string{"access_token": token})
	for _, topic := range topics {
		if err := t.writeFrame(conn, wsFrame{Topic: topic, Event: evtAccessToken, Payload: payload}); err != nil {
			t.logger.ComponentWarn(logging.ComponentRealtime, "access token push failed",
				zap.String("topic", topic), zap.Error(err))
			return
		}
	}
}

// Connected reports whether the socket is currently up.
func (t *WebsocketTransport) Connected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conn != nil
}

// Channel starts building a subscription for name.
func (t *WebsocketTransport) Channel(name string) ChannelBuilder {
	return &wsBuilder{t: t, topic: name}
}

// Close shuts the socket down and rejects further subscribes.
func (t *WebsocketTransport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	conn := t.conn
	t.conn = nil
	if t.stopHB != nil {
		close(t.stopHB)
		t.stopHB = nil
	}
	t.failPendingLocked()
	t.joined = make(map[string]*wsChannel)
	t.mu.Unlock()

	if conn != nil {
		return conn.Close()
	}
	return nil
}

// ensureConn dials the endpoint if no socket is up and starts the read and
// heartbeat loops for it.
func (t *WebsocketTransport) ensureConn(ctx context.Context) (*websocket.Conn, error) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil, errors.ErrClosed
	}
	if t.conn != nil {
		conn := t.conn
		t.mu.Unlock()
		return conn, nil
	}
	t.mu.Unlock()

	url := t.cfg.URL
	if t.cfg.APIKey != "" {
		sep := "?"
		if strings.Contains(url, "?") {
			sep = "&"
		}
		url += sep + "apikey=" + t.cfg.APIKey
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, errors.NewTransportError("", "dial failed", err)
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		conn.Close()
		return nil, errors.ErrClosed
	}
	if t.conn != nil {
		// Lost the dial race; use the winner.
		winner := t.conn
		t.mu.Unlock()
		conn.Close()
		return winner, nil
	}
	t.conn = conn
	stop := make(chan struct{})
	t.stopHB = stop
	t.mu.Unlock()

	go t.readLoop(conn)
	go t.heartbeatLoop(conn, stop)

	t.logger.ComponentInfo(logging.ComponentRealtime, "realtime socket connected",
		zap.String("url", t.cfg.URL))
	return conn, nil
}

func (t *WebsocketTransport) writeFrame(conn *websocket.Conn, f wsFrame) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(t.cfg.WriteTimeout))
	return conn.WriteJSON(f)
}

func (t *WebsocketTransport) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.handleDisconnect(conn, err)
			return
		}

		var f wsFrame
		if err := json.Unmarshal(data, &f); err != nil {
			t.logger.ComponentWarn(logging.ComponentRealtime, "unparseable frame dropped",
				zap.Error(err))
			continue
		}

		switch f.Event {
		case evtReply:
			t.mu.Lock()
			ch, ok := t.pending[f.Ref]
			if ok {
				delete(t.pending, f.Ref)
			}
			t.mu.Unlock()
			if ok {
				var reply replyPayload
				if err := json.Unmarshal(f.Payload, &reply); err != nil {
					reply = replyPayload{Status: "error"}
				}
				ch <- reply
			}

		case evtChanges:
			t.mu.Lock()
			c := t.joined[f.Topic]
			t.mu.Unlock()
			if c != nil {
				c.dispatch(f.Payload)
			}

		case evtSystem:
			t.logger.ComponentDebug(logging.ComponentRealtime, "system message",
				zap.String("topic", f.Topic), zap.ByteString("payload", f.Payload))

		case evtHeartbeat:
			// Server heartbeat acknowledgements carry no work.
		}
	}
}

func (t *WebsocketTransport) heartbeatLoop(conn *websocket.Conn, stop chan struct{}) {
	ticker := time.NewTicker(t.cfg.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			f := wsFrame{Topic: heartbeatTopic, Event: evtHeartbeat, Ref: uuid.NewString()}
			if err := t.writeFrame(conn, f); err != nil {
				// The read loop observes the broken socket and cleans up.
				return
			}
		}
	}
}

func (t *WebsocketTransport) handleDisconnect(conn *websocket.Conn, err error) {
	t.mu.Lock()
	if t.conn != conn {
		t.mu.Unlock()
		return
	}
	t.conn = nil
	if t.stopHB != nil {
		close(t.stopHB)
		t.stopHB = nil
	}
	t.failPendingLocked()
	for _, c := range t.joined {
		c.markDead()
	}
	t.joined = make(map[string]*wsChannel)
	closed := t.closed
	t.mu.Unlock()

	conn.Close()
	if !closed {
		t.logger.ComponentWarn(logging.ComponentRealtime, "realtime socket lost",
			zap.Error(err))
	}
}

// failPendingLocked unblocks every waiter with an error status. Caller holds
// t.mu.
func (t *WebsocketTransport) failPendingLocked() {
	for ref, ch := range t.pending {
		delete(t.pending, ref)
		select {
		case ch <- replyPayload{Status: "error", Response: []byte(`{"message":"connection lost"}`)}:
		default:
		}
	}
}

// wsBuilder accumulates listeners for one join. Single-use.
type wsBuilder struct {
	t         *WebsocketTransport
	topic     string
	specs     []EventSpec
	handlers  []PayloadHandler
	subscribe sync.Once
}

func (b *wsBuilder) On(spec EventSpec, handler PayloadHandler) ChannelBuilder {
	b.specs = append(b.specs, spec.normalize())
	b.handlers = append(b.handlers, handler)
	return b
}

func (b *wsBuilder) Subscribe(ctx context.Context) (ChannelHandle, error) {
	var handle ChannelHandle
	var err error
	b.subscribe.Do(func() {
		handle, err = b.t.join(ctx, b.topic, b.specs, b.handlers)
	})
	if handle == nil && err == nil {
		err = errors.New("builder already consumed")
	}
	return handle, err
}

func (t *WebsocketTransport) join(ctx context.Context, topic string, specs []EventSpec, handlers []PayloadHandler) (ChannelHandle, error) {
	if len(specs) == 0 {
		return nil, errors.New("no listeners attached before subscribe")
	}

	conn, err := t.ensureConn(ctx)
	if err != nil {
		return nil, err
	}

	var jp joinPayload
	jp.Config.PostgresChanges = specs
	if tok, _ := t.token.Load().(string); tok != "" {
		jp.AccessToken = tok
	}
	payload, err := json.Marshal(jp)
	if err != nil {
		return nil, errors.NewTransportError(topic, "join payload encode failed", err)
	}

	ref := uuid.NewString()
	replyCh := make(chan replyPayload, 1)
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil, errors.ErrClosed
	}
	t.pending[ref] = replyCh
	t.mu.Unlock()

	defer func() {
		t.mu.Lock()
		delete(t.pending, ref)
		t.mu.Unlock()
	}()

	if err := t.writeFrame(conn, wsFrame{Topic: topic, Event: evtJoin, Payload: payload, Ref: ref}); err != nil {
		return nil, errors.NewTransportError(topic, "join send failed", err)
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(t.cfg.JoinTimeout):
		return nil, errors.ErrTimeout
	case reply := <-replyCh:
		if reply.Status != "ok" {
			return nil, t.joinError(topic, reply)
		}
	}

	c := &wsChannel{t: t, topic: topic}
	c.listeners = make([]wsListener, len(specs))
	for i := range specs {
		c.listeners[i] = wsListener{spec: specs[i], handler: handlers[i]}
	}

	t.mu.Lock()
	t.joined[topic] = c
	t.mu.Unlock()
	return c, nil
}

// joinError maps server join rejections onto the error taxonomy.
func (t *WebsocketTransport) joinError(topic string, reply replyPayload) error {
	var body struct {
		Message string `json:"message"`
	}
	_ = json.Unmarshal(reply.Response, &body)
	msg := strings.ToLower(body.Message)
	switch {
	case strings.Contains(msg, "too many channels"), strings.Contains(msg, "quota"):
		return fmt.Errorf("join %q rejected: %w", topic, errors.ErrQuotaExceeded)
	case strings.Contains(msg, "filter"):
		return fmt.Errorf("join %q rejected: %w", topic, errors.ErrInvalidFilter)
	default:
		return errors.NewTransportError(topic, "join rejected", errors.Newf("%s", body.Message))
	}
}

type wsListener struct {
	spec    EventSpec
	handler PayloadHandler
}

// wsChannel is a live join on one topic.
type wsChannel struct {
	t         *WebsocketTransport
	topic     string
	listeners []wsListener

	mu   sync.Mutex
	dead bool
}

func (c *wsChannel) markDead() {
	c.mu.Lock()
	c.dead = true
	c.mu.Unlock()
}

func (c *wsChannel) dispatch(payload json.RawMessage) {
	var env changeEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		c.t.logger.ComponentWarn(logging.ComponentRealtime, "unparseable change payload dropped",
			zap.String("topic", c.topic), zap.Error(err))
		return
	}

	p := ChangePayload{
		Type:      Event(env.Data.Type),
		Schema:    env.Data.Schema,
		Table:     env.Data.Table,
		Record:    env.Data.Record,
		OldRecord: env.Data.OldRecord,
	}
	if env.Data.CommitTimestamp != "" {
		if ts, err := time.Parse(time.RFC3339, env.Data.CommitTimestamp); err == nil {
			p.CommitTimestamp = ts
		}
	}

	for _, l := range c.listeners {
		if l.spec.Matches(p) {
			l.handler(p)
		}
	}
}

// Close leaves the topic. Best effort: a dead socket makes this a no-op.
func (c *wsChannel) Close(ctx context.Context) error {
	c.mu.Lock()
	if c.dead {
		c.mu.Unlock()
		return nil
	}
	c.dead = true
	c.mu.Unlock()

	c.t.mu.Lock()
	if c.t.joined[c.topic] == c {
		delete(c.t.joined, c.topic)
	}
	conn := c.t.conn
	c.t.mu.Unlock()

	if conn == nil {
		return nil
	}
	f := wsFrame{Topic: c.topic, Event: evtLeave, Ref: uuid.NewString()}
	if err := c.t.writeFrame(conn, f); err != nil {
		return errors.NewTransportError(c.topic, "leave send failed", err)
	}
	return nil
}
