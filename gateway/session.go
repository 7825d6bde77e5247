// Copyright (c) 2025 BVK Chaitanya

// Package gateway implements a session with the brokerage gateway. A session
// owns one websocket connection and is the only reader and writer of it.
// Requests are correlated with their callback frames through a
// correlator.Table; order status notices are published on a topic.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"runtime/debug"
	"sync"
	"time"

	"github.com/bvk/orbtrader/correlator"
	"github.com/bvk/orbtrader/errs"
	"github.com/bvk/orbtrader/metrics"
	"github.com/gorilla/websocket"
	"github.com/visvasity/topic"
)

type Operation = correlator.Operation[json.RawMessage]

// link holds the state of one websocket connection.
type link struct {
	conn *websocket.Conn

	ctx    context.Context
	cancel context.CancelCauseFunc
	wg     sync.WaitGroup

	sendCh chan *Request
	lostCh chan struct{}

	dropOnce sync.Once
}

type Session struct {
	opts Options

	table *correlator.Table[json.RawMessage]

	orderTopic *topic.Topic[*OrderStatus]
	faultTopic *topic.Topic[error]

	now func() time.Time

	// connectMu serializes Connect and Disconnect calls.
	connectMu sync.Mutex

	mu sync.Mutex

	link *link

	lastLostCh chan struct{}

	nextOrderID int64
}

// New creates a disconnected session.
func New(opts *Options) (*Session, error) {
	if opts == nil {
		opts = new(Options)
	}
	opts.setDefaults()
	if err := opts.Check(); err != nil {
		return nil, err
	}

	s := &Session{
		opts:       *opts,
		orderTopic: topic.New[*OrderStatus](),
		faultTopic: topic.New[error](),
		now:        time.Now,
		lastLostCh: make(chan struct{}),
	}
	s.table = correlator.New[json.RawMessage](&correlator.Options{
		Canceler:     s.sendCancel,
		StreamBuffer: opts.StreamBuffer,
	})
	s.table.FailAll(fmt.Errorf("session is not connected: %w", errs.ErrConnection))
	return s, nil
}

// Close disconnects the session and closes the notification topics.
func (s *Session) Close() error {
	err := s.Disconnect()
	s.orderTopic.Close()
	s.faultTopic.Close()
	return err
}

// Connect opens a websocket connection to the endpoint and completes the
// client handshake within the timeout. Errors match errs.ErrConnection.
func (s *Session) Connect(ctx context.Context, endpoint string, creds *Credentials, timeout time.Duration) (status error) {
	s.connectMu.Lock()
	defer s.connectMu.Unlock()

	if creds == nil {
		creds = new(Credentials)
	}
	if err := creds.Check(); err != nil {
		return err
	}

	s.mu.Lock()
	connected := s.link != nil
	s.mu.Unlock()
	if connected {
		return fmt.Errorf("session is already connected: %w", os.ErrExist)
	}

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	header := make(http.Header)
	token, err := creds.bearerToken(endpoint, s.now())
	if err != nil {
		return fmt.Errorf("could not create bearer token: %w", err)
	}
	if len(token) > 0 {
		header.Set("Authorization", "Bearer "+token)
	}

	dialer := websocket.Dialer{
		EnableCompression: true,
	}
	conn, _, err := dialer.DialContext(ctx, endpoint, header)
	if err != nil {
		slog.Error("could not dial to the gateway", "endpoint", endpoint, "err", err)
		return fmt.Errorf("could not dial %q: %w: %w", endpoint, errs.ErrConnection, err)
	}

	lctx, lcancel := context.WithCancelCause(context.Background())
	l := &link{
		conn:   conn,
		ctx:    lctx,
		cancel: lcancel,
		sendCh: make(chan *Request, s.opts.SendQueueSize),
		lostCh: make(chan struct{}),
	}

	s.table.Reset()
	s.mu.Lock()
	s.link = l
	s.lastLostCh = l.lostCh
	s.mu.Unlock()

	l.wg.Add(2)
	go s.goRead(l)
	go s.goWrite(l)

	defer func() {
		if status != nil {
			s.disconnect()
		}
	}()

	params := &helloParams{
		ClientID: creds.ClientID,
		Account:  creds.Account,
		Version:  s.opts.Version,
	}
	raws, err := s.Call(ctx, MethodHello, params, correlator.Single, 0)
	if err != nil {
		return fmt.Errorf("could not complete gateway handshake: %w: %w", errs.ErrConnection, err)
	}
	if len(raws) == 0 {
		return fmt.Errorf("handshake reply is empty: %w", errs.ErrConnection)
	}
	reply := new(helloReply)
	if err := json.Unmarshal(raws[0], reply); err != nil {
		return fmt.Errorf("could not decode handshake reply: %w: %w", errs.ErrConnection, err)
	}
	if reply.NextValidID <= 0 {
		return fmt.Errorf("handshake reply has no valid order id: %w", errs.ErrConnection)
	}
	s.updateNextOrderID(reply.NextValidID)

	slog.Info("connected to the gateway", "endpoint", endpoint, "client-id", creds.ClientID, "server-version", reply.ServerVersion, "next-order-id", reply.NextValidID)
	return nil
}

// Disconnect closes the current connection, if any. Pending operations are
// failed. It is safe to call Disconnect multiple times.
func (s *Session) Disconnect() error {
	s.connectMu.Lock()
	defer s.connectMu.Unlock()

	s.disconnect()
	return nil
}

func (s *Session) disconnect() {
	s.mu.Lock()
	l := s.link
	s.link = nil
	s.mu.Unlock()

	if l == nil {
		return
	}
	l.cancel(os.ErrClosed)
	l.conn.Close()
	l.wg.Wait()

	s.table.FailAll(fmt.Errorf("session disconnected: %w: %w", errs.ErrConnectionLost, os.ErrClosed))
	slog.Info("disconnected from the gateway")
}

// drop handles a transport failure on the link. An unexpected failure fails
// all pending operations; the session does not reconnect by itself.
func (s *Session) drop(l *link, cause error) {
	l.dropOnce.Do(func() {
		s.mu.Lock()
		unexpected := s.link == l
		if unexpected {
			s.link = nil
		}
		s.mu.Unlock()

		l.cancel(cause)
		l.conn.Close()
		if !unexpected {
			return
		}

		slog.Error("gateway connection is lost", "err", cause)
		metrics.ConnectionDrops.Inc()
		s.table.FailAll(fmt.Errorf("%w: %w", errs.ErrConnectionLost, cause))
		s.faultTopic.Send(fmt.Errorf("%w: %w", errs.ErrConnectionLost, cause))
		close(l.lostCh)
	})
}

// Lost returns a channel that is closed when the most recent connection is
// dropped unexpectedly.
func (s *Session) Lost() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.lastLostCh
}

// IsConnected returns true if the session has a live connection.
func (s *Session) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.link != nil
}

func (s *Session) currentLink() *link {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.link
}

// Start registers a new operation and queues its request to the writer. The
// operation is registered before the request is queued.
func (s *Session) Start(ctx context.Context, method string, params any, shape correlator.Shape) (*Operation, error) {
	var data json.RawMessage
	if params != nil {
		js, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("could not marshal %q params: %w", method, err)
		}
		data = js
	}

	l := s.currentLink()
	if l == nil {
		return nil, fmt.Errorf("session is not connected: %w", errs.ErrConnection)
	}

	var op *Operation
	var err error
	if shape == correlator.Stream {
		op, err = s.table.IssueStream(s.opts.StreamBuffer)
	} else {
		op, err = s.table.Issue(shape)
	}
	if err != nil {
		return nil, err
	}

	req := &Request{ID: int64(op.Token()), Method: method, Params: data}
	select {
	case l.sendCh <- req:
		metrics.GatewayRequests.WithLabelValues(method).Inc()
		return op, nil
	case <-ctx.Done():
		s.table.Abandon(op, context.Cause(ctx))
		return nil, context.Cause(ctx)
	case <-l.ctx.Done():
		s.table.Abandon(op, errs.ErrConnectionLost)
		return nil, fmt.Errorf("could not send %q request: %w", method, errs.ErrConnectionLost)
	}
}

// Await waits for the operation's result. See correlator.Table.Await.
func (s *Session) Await(ctx context.Context, op *Operation, timeout time.Duration) ([]json.RawMessage, error) {
	return s.table.Await(ctx, op, timeout)
}

// Call is Start followed by Await.
func (s *Session) Call(ctx context.Context, method string, params any, shape correlator.Shape, timeout time.Duration) ([]json.RawMessage, error) {
	op, err := s.Start(ctx, method, params, shape)
	if err != nil {
		return nil, err
	}
	return s.Await(ctx, op, timeout)
}

// Cancel abandons an operation locally and asks the gateway to stop it.
func (s *Session) Cancel(op *Operation) {
	if s.table.Abandon(op, fmt.Errorf("request %d is canceled: %w", op.Token(), os.ErrClosed)) {
		s.sendCancel(op.Token())
	}
}

func (s *Session) sendCancel(token correlator.Token) {
	l := s.currentLink()
	if l == nil {
		return
	}
	select {
	case l.sendCh <- &Request{ID: int64(token), Method: MethodCancel}:
		metrics.GatewayRequests.WithLabelValues(MethodCancel).Inc()
	default:
		slog.Warn("could not queue cancel request (ignored)", "token", token)
	}
}

// Pending returns the number of unresolved operations.
func (s *Session) Pending() int {
	return s.table.Pending()
}

// NextOrderIDs reserves n consecutive order ids and returns the first one.
func (s *Session) NextOrderIDs(n int) (int64, error) {
	if n < 1 {
		return 0, os.ErrInvalid
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.nextOrderID <= 0 {
		return 0, fmt.Errorf("order ids are not known before the handshake: %w", errs.ErrConnection)
	}
	first := s.nextOrderID
	s.nextOrderID += int64(n)
	return first, nil
}

func (s *Session) updateNextOrderID(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id > s.nextOrderID {
		s.nextOrderID = id
	}
}

// OrderUpdates returns a receiver for order status notices.
func (s *Session) OrderUpdates() (*topic.Receiver[*OrderStatus], error) {
	return topic.Subscribe(s.orderTopic, 0, false /* includeRecent */)
}

// Faults returns a receiver for protocol faults and connection losses.
func (s *Session) Faults() (*topic.Receiver[error], error) {
	return topic.Subscribe(s.faultTopic, 0, false /* includeRecent */)
}

func (s *Session) goWrite(l *link) {
	defer l.wg.Done()

	defer func() {
		if r := recover(); r != nil {
			slog.Error("CAUGHT PANIC", "panic", r)
			slog.Error(string(debug.Stack()))
			panic(r)
		}
	}()

	for {
		select {
		case <-l.ctx.Done():
			return

		case req := <-l.sendCh:
			l.conn.SetWriteDeadline(s.now().Add(s.opts.WriteTimeout))
			if err := l.conn.WriteJSON(req); err != nil {
				slog.Error("could not send gateway request", "method", req.Method, "token", req.ID, "err", err)
				s.drop(l, fmt.Errorf("could not write frame: %w", err))
				return
			}
		}
	}
}

func (s *Session) goRead(l *link) {
	defer l.wg.Done()

	defer func() {
		if r := recover(); r != nil {
			slog.Error("CAUGHT PANIC", "panic", r)
			slog.Error(string(debug.Stack()))
			panic(r)
		}
	}()

	for l.ctx.Err() == nil {
		msg, err := s.readMessage(l)
		if err != nil {
			s.drop(l, err)
			return
		}
		s.handleMessage(msg)
	}
}

func (s *Session) readMessage(l *link) (*Message, error) {
	stopc := make(chan struct{})
	stop := context.AfterFunc(l.ctx, func() {
		l.conn.SetReadDeadline(time.Now())
		close(stopc)
	})

	_, data, err := l.conn.ReadMessage()
	if !stop() {
		<-stopc
		return nil, context.Cause(l.ctx)
	}
	if err != nil {
		return nil, fmt.Errorf("could not read frame: %w", err)
	}

	msg := new(Message)
	if err := json.Unmarshal(data, msg); err != nil {
		s.fault(&errs.Fault{Kind: errs.MalformedFrame, Detail: err.Error()})
		return msg, nil
	}
	return msg, nil
}

func (s *Session) handleMessage(msg *Message) {
	if len(msg.Type) == 0 {
		return
	}
	metrics.GatewayFrames.WithLabelValues(msg.Type).Inc()

	token := correlator.Token(msg.ID)
	switch msg.Type {
	case TypeData:
		s.fault(s.table.OnEvent(token, msg.Data, false))

	case TypeEnd:
		if msg.hasData() {
			s.fault(s.table.OnEvent(token, msg.Data, true))
		} else {
			s.fault(s.table.OnEnd(token))
		}

	case TypeError:
		if IsInformational(msg.Code) {
			slog.Info("gateway notice", "code", msg.Code, "message", msg.Text)
			return
		}
		if msg.ID <= 0 {
			slog.Error("gateway reported an error", "code", msg.Code, "message", msg.Text)
			return
		}
		s.fault(s.table.OnError(token, &APIError{Code: msg.Code, Text: msg.Text}))

	case TypeInfo:
		slog.Info("gateway notice", "code", msg.Code, "message", msg.Text)

	case TypeOrderStatus:
		status := new(OrderStatus)
		if err := json.Unmarshal(msg.Data, status); err != nil {
			s.fault(&errs.Fault{Kind: errs.MalformedFrame, Detail: fmt.Sprintf("order status: %v", err)})
			return
		}
		s.orderTopic.Send(status)

	case TypeNextValidID:
		v := new(nextValidID)
		if err := json.Unmarshal(msg.Data, v); err != nil {
			s.fault(&errs.Fault{Kind: errs.MalformedFrame, Detail: fmt.Sprintf("next valid id: %v", err)})
			return
		}
		s.updateNextOrderID(v.OrderID)

	default:
		slog.Warn("could not identify gateway frame type (ignored)", "type", msg.Type, "id", msg.ID)
	}
}

// fault logs and publishes a non-nil protocol fault.
func (s *Session) fault(err error) {
	if err == nil {
		return
	}
	kind := "unknown"
	var f *errs.Fault
	if errors.As(err, &f) {
		kind = string(f.Kind)
	}
	slog.Warn("dropped gateway frame", "kind", kind, "err", err)
	metrics.ProtocolFaults.WithLabelValues(kind).Inc()
	s.faultTopic.Send(err)
}
