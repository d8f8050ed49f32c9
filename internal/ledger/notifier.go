package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/0xmhha/txsubmit/internal/submitter"
)

var ErrNotifierClosed = errors.New("notifier closed")

// NotifierConfig configures websocket behaviour.
type NotifierConfig struct {
	HandshakeTimeout time.Duration
	PingInterval     time.Duration
	WriteTimeout     time.Duration
	SubscribeTimeout time.Duration
}

// DefaultNotifierConfig returns default websocket configuration.
func DefaultNotifierConfig() NotifierConfig {
	return NotifierConfig{
		HandshakeTimeout: 10 * time.Second,
		PingInterval:     30 * time.Second,
		WriteTimeout:     10 * time.Second,
		SubscribeTimeout: 10 * time.Second,
	}
}

// Notifier implements submitter.Notifier with signatureSubscribe. All
// subscriptions share one connection, dialled on first use. When the
// connection drops every open subscription channel is closed and the next
// subscription dials again.
type Notifier struct {
	endpoint string
	config   NotifierConfig
	logger   *zap.Logger

	connMu sync.Mutex
	conn   *websocket.Conn
	dials  singleflight.Group

	requestID atomic.Uint64

	mu      sync.Mutex
	pending map[uint64]*pendingSub
	subs    map[uint64]*signatureSub

	closed atomic.Bool
	done   chan struct{}
	wg     sync.WaitGroup
}

type signatureSub struct {
	id         uint64
	commitment submitter.Commitment

	mu     sync.Mutex
	out    chan submitter.Status
	closed bool
}

// deliver hands over the single status and closes the stream.
func (s *signatureSub) deliver(st submitter.Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.out <- st
	close(s.out)
	s.closed = true
}

func (s *signatureSub) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		close(s.out)
		s.closed = true
	}
}

type pendingSub struct {
	sub   *signatureSub
	reply chan error
}

type wsRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type wsError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type wsMessage struct {
	ID     *uint64         `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *wsError        `json:"error"`
	Method string          `json:"method"`
	Params *struct {
		Subscription uint64 `json:"subscription"`
		Result       struct {
			Context struct {
				Slot uint64 `json:"slot"`
			} `json:"context"`
			Value json.RawMessage `json:"value"`
		} `json:"result"`
	} `json:"params"`
}

// NewNotifier creates a notifier for the websocket endpoint. No connection
// is made until the first subscription.
func NewNotifier(endpoint string, config *NotifierConfig, logger *zap.Logger) *Notifier {
	cfg := DefaultNotifierConfig()
	if config != nil {
		cfg = *config
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Notifier{
		endpoint: endpoint,
		config:   cfg,
		logger:   logger,
		pending:  make(map[uint64]*pendingSub),
		subs:     make(map[uint64]*signatureSub),
		done:     make(chan struct{}),
	}
}

// SubscribeSignature registers for the first notification about sig at the
// given commitment. The returned channel yields at most one status and is
// closed afterwards, when ctx ends, or when the connection drops.
func (n *Notifier) SubscribeSignature(ctx context.Context, sig solana.Signature, commitment submitter.Commitment) (<-chan submitter.Status, error) {
	if n.closed.Load() {
		return nil, ErrNotifierClosed
	}
	conn, err := n.ensureConn(ctx)
	if err != nil {
		return nil, err
	}

	reqID := n.requestID.Add(1)
	sub := &signatureSub{commitment: commitment, out: make(chan submitter.Status, 1)}
	reply := make(chan error, 1)

	n.mu.Lock()
	n.pending[reqID] = &pendingSub{sub: sub, reply: reply}
	n.mu.Unlock()

	err = n.write(conn, wsRequest{
		JSONRPC: "2.0",
		ID:      reqID,
		Method:  "signatureSubscribe",
		Params: []any{
			sig.String(),
			map[string]string{"commitment": string(commitment)},
		},
	})
	if err != nil {
		n.dropPending(reqID)
		return nil, fmt.Errorf("write subscribe: %w", err)
	}

	timer := time.NewTimer(n.config.SubscribeTimeout)
	defer timer.Stop()

	select {
	case err := <-reply:
		if err != nil {
			return nil, err
		}
	case <-ctx.Done():
		n.dropPending(reqID)
		return nil, ctx.Err()
	case <-n.done:
		return nil, ErrNotifierClosed
	case <-timer.C:
		n.dropPending(reqID)
		return nil, fmt.Errorf("subscription timeout after %s", n.config.SubscribeTimeout)
	}

	if n.closed.Load() {
		sub.close()
		return nil, ErrNotifierClosed
	}
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		select {
		case <-ctx.Done():
			n.unsubscribe(sub)
		case <-n.done:
		}
	}()

	return sub.out, nil
}

// Close shuts the connection and closes every open subscription.
func (n *Notifier) Close() error {
	if n.closed.Swap(true) {
		return nil
	}
	close(n.done)

	n.connMu.Lock()
	if n.conn != nil {
		_ = n.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		_ = n.conn.Close()
		n.conn = nil
	}
	n.connMu.Unlock()

	n.failAll(ErrNotifierClosed)
	n.wg.Wait()
	return nil
}

// ensureConn returns the live connection, dialling when there is none.
// Concurrent callers share one dial; each stops waiting when its own ctx
// ends.
func (n *Notifier) ensureConn(ctx context.Context) (*websocket.Conn, error) {
	if conn := n.current(); conn != nil {
		return conn, nil
	}

	ch := n.dials.DoChan("dial", func() (any, error) {
		return n.dial()
	})
	select {
	case r := <-ch:
		if r.Err != nil {
			return nil, r.Err
		}
		return r.Val.(*websocket.Conn), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-n.done:
		return nil, ErrNotifierClosed
	}
}

func (n *Notifier) current() *websocket.Conn {
	n.connMu.Lock()
	defer n.connMu.Unlock()
	return n.conn
}

// dial connects outside connMu. It ends on HandshakeTimeout or Close, not
// when a single caller gives up.
func (n *Notifier) dial() (*websocket.Conn, error) {
	if conn := n.current(); conn != nil {
		return conn, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-n.done:
			cancel()
		case <-ctx.Done():
		}
	}()

	dialer := websocket.Dialer{HandshakeTimeout: n.config.HandshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, n.endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("websocket dial: %w", err)
	}

	n.connMu.Lock()
	defer n.connMu.Unlock()
	if n.closed.Load() {
		_ = conn.Close()
		return nil, ErrNotifierClosed
	}
	n.conn = conn
	n.logger.Debug("websocket connected", zap.String("endpoint", n.endpoint))

	n.wg.Add(2)
	go n.readLoop(conn)
	go n.pingLoop(conn)
	return conn, nil
}

func (n *Notifier) write(conn *websocket.Conn, v any) error {
	n.connMu.Lock()
	defer n.connMu.Unlock()
	if n.conn != conn {
		return errors.New("connection lost")
	}
	_ = conn.SetWriteDeadline(time.Now().Add(n.config.WriteTimeout))
	return conn.WriteJSON(v)
}

func (n *Notifier) readLoop(conn *websocket.Conn) {
	defer n.wg.Done()
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			n.dropConn(conn, err)
			return
		}
		n.handleMessage(message)
	}
}

func (n *Notifier) pingLoop(conn *websocket.Conn) {
	defer n.wg.Done()
	ticker := time.NewTicker(n.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-n.done:
			return
		case <-ticker.C:
			n.connMu.Lock()
			if n.conn != conn {
				n.connMu.Unlock()
				return
			}
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(n.config.WriteTimeout))
			n.connMu.Unlock()
			if err != nil {
				n.logger.Debug("websocket ping failed", zap.Error(err))
			}
		}
	}
}

func (n *Notifier) dropConn(conn *websocket.Conn, cause error) {
	n.connMu.Lock()
	current := n.conn == conn
	if current {
		n.conn = nil
	}
	n.connMu.Unlock()
	_ = conn.Close()

	if !current {
		return
	}
	if !n.closed.Load() {
		n.logger.Warn("websocket connection lost", zap.Error(cause))
	}
	n.failAll(fmt.Errorf("websocket connection lost: %w", cause))
}

func (n *Notifier) failAll(err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for id, p := range n.pending {
		p.reply <- err
		delete(n.pending, id)
	}
	for id, sub := range n.subs {
		sub.close()
		delete(n.subs, id)
	}
}

func (n *Notifier) dropPending(reqID uint64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.pending, reqID)
}

func (n *Notifier) handleMessage(data []byte) {
	var msg wsMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		n.logger.Debug("undecodable websocket message", zap.Error(err))
		return
	}

	if msg.ID != nil {
		n.handleReply(*msg.ID, msg)
		return
	}
	if msg.Method == "signatureNotification" && msg.Params != nil {
		n.handleNotification(msg)
	}
}

func (n *Notifier) handleReply(reqID uint64, msg wsMessage) {
	n.mu.Lock()
	defer n.mu.Unlock()

	p, ok := n.pending[reqID]
	if !ok {
		// unsubscribe acknowledgements land here
		return
	}
	delete(n.pending, reqID)

	if msg.Error != nil {
		p.reply <- fmt.Errorf("subscribe rejected (code %d): %s", msg.Error.Code, msg.Error.Message)
		return
	}
	var subID uint64
	if err := json.Unmarshal(msg.Result, &subID); err != nil {
		p.reply <- fmt.Errorf("decode subscription id: %w", err)
		return
	}
	p.sub.id = subID
	n.subs[subID] = p.sub
	p.reply <- nil
}

func (n *Notifier) handleNotification(msg wsMessage) {
	var value struct {
		Err json.RawMessage `json:"err"`
	}
	if err := json.Unmarshal(msg.Params.Result.Value, &value); err != nil {
		// receivedSignature notifications carry a bare string
		return
	}

	n.mu.Lock()
	sub, ok := n.subs[msg.Params.Subscription]
	if ok {
		delete(n.subs, msg.Params.Subscription)
	}
	n.mu.Unlock()
	if !ok {
		return
	}

	st := submitter.Status{
		State:      submitter.StatusConfirmed,
		Slot:       msg.Params.Result.Context.Slot,
		Commitment: sub.commitment,
	}
	if len(value.Err) > 0 && string(value.Err) != "null" {
		st.State = submitter.StatusFailed
		st.Diagnostic = string(value.Err)
	}
	sub.deliver(st)
}

// unsubscribe drops a subscription the caller no longer needs.
func (n *Notifier) unsubscribe(sub *signatureSub) {
	n.mu.Lock()
	_, ok := n.subs[sub.id]
	if ok {
		delete(n.subs, sub.id)
	}
	n.mu.Unlock()
	sub.close()
	if !ok {
		return
	}

	n.connMu.Lock()
	conn := n.conn
	n.connMu.Unlock()
	if conn == nil {
		return
	}
	err := n.write(conn, wsRequest{
		JSONRPC: "2.0",
		ID:      n.requestID.Add(1),
		Method:  "signatureUnsubscribe",
		Params:  []any{sub.id},
	})
	if err != nil {
		n.logger.Debug("signature unsubscribe", zap.Error(err))
	}
}
