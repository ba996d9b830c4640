// Package wsstore implements remotestore.Store over a single websocket
// connection. Commands are id-matched request/response frames; snapshot
// pushes arrive as unsolicited frames routed to the collection's
// subscription. The same connection carries identity provisioning.
package wsstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	gorilla "github.com/gorilla/websocket"
	"github.com/google/uuid"

	"notesync/internal/pkg/logger"
	"notesync/pkg/remotestore"
)

const defaultTimeout = 30 * time.Second

type rpcRequest struct {
	Id     string      `json:"id"`
	Method string      `json:"method"`
	Params interface{} `json:"params,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

type rpcFrame struct {
	Id     string          `json:"id,omitempty"`
	Method string          `json:"method,omitempty"`
	Params json.RawMessage `json:"params,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *rpcError       `json:"error,omitempty"`
}

// Error codes shared with the server.
const (
	CodeInvalidParams = 400
	CodeUnauthorized  = 401
	CodeNotFound      = 404
	CodeInternal      = 500
)

type Store struct {
	conn    *gorilla.Conn
	writeMu sync.Mutex
	timeout time.Duration
	log     logger.ILogger

	mu      sync.Mutex
	pending map[string]chan rpcFrame
	subs    map[string]*subscription

	closeOnce sync.Once
	closed    chan struct{}
}

// Dial connects to the store endpoint and starts the read loop. The
// connection is unauthenticated until Provision or Authenticate succeeds.
func Dial(ctx context.Context, url string, log logger.ILogger) (*Store, error) {
	conn, resp, err := gorilla.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("wsstore dial %s: %w", url, err)
	}
	defer func() {
		if resp != nil && resp.Body != nil {
			resp.Body.Close()
		}
	}()

	s := &Store{
		conn:    conn,
		timeout: defaultTimeout,
		log:     log,
		pending: make(map[string]chan rpcFrame),
		subs:    make(map[string]*subscription),
		closed:  make(chan struct{}),
	}
	go s.readLoop()
	return s, nil
}

func (s *Store) ServerTime() interface{} {
	return remotestore.ServerTimestamp{}
}

// Provision asks the server for a fresh anonymous identity and binds this
// connection to it.
func (s *Store) Provision(ctx context.Context) (userId, token string, err error) {
	var result struct {
		UserId string `json:"user_id"`
		Token  string `json:"token"`
	}
	if err := s.call(ctx, "provision", nil, &result); err != nil {
		return "", "", err
	}
	return result.UserId, result.Token, nil
}

// Authenticate binds this connection to an existing identity token.
func (s *Store) Authenticate(ctx context.Context, token string) (userId string, err error) {
	var result struct {
		UserId string `json:"user_id"`
	}
	params := map[string]string{"token": token}
	if err := s.call(ctx, "authenticate", params, &result); err != nil {
		return "", err
	}
	return result.UserId, nil
}

func (s *Store) Subscribe(ctx context.Context, path remotestore.CollectionPath) (remotestore.Subscription, error) {
	sub := &subscription{
		store:      s,
		collection: path.Collection,
		events:     make(chan remotestore.SnapshotEvent, 8),
	}

	s.mu.Lock()
	if _, exists := s.subs[path.Collection]; exists {
		s.mu.Unlock()
		return nil, fmt.Errorf("wsstore: subscription for %q already open", path.Collection)
	}
	s.subs[path.Collection] = sub
	s.mu.Unlock()

	params := map[string]string{"collection": path.Collection}
	if err := s.call(ctx, "subscribe", params, nil); err != nil {
		s.mu.Lock()
		delete(s.subs, path.Collection)
		s.mu.Unlock()
		return nil, err
	}
	return sub, nil
}

func (s *Store) Create(ctx context.Context, path remotestore.CollectionPath, fields remotestore.Fields) (string, error) {
	var result struct {
		Id string `json:"id"`
	}
	params := map[string]interface{}{
		"collection": path.Collection,
		"fields":     fields,
	}
	if err := s.call(ctx, "create", params, &result); err != nil {
		return "", err
	}
	return result.Id, nil
}

func (s *Store) Update(ctx context.Context, path remotestore.DocumentPath, fields remotestore.Fields) error {
	params := map[string]interface{}{
		"collection": path.Collection,
		"id":         path.DocumentId,
		"fields":     fields,
	}
	return s.call(ctx, "update", params, nil)
}

func (s *Store) Delete(ctx context.Context, path remotestore.DocumentPath) error {
	params := map[string]interface{}{
		"collection": path.Collection,
		"id":         path.DocumentId,
	}
	return s.call(ctx, "delete", params, nil)
}

// Close tears the connection down. Open subscriptions receive a terminal
// error event; in-flight calls fail with ErrClosed.
func (s *Store) Close() error {
	s.shutdown(remotestore.ErrClosed)
	return nil
}

func (s *Store) call(ctx context.Context, method string, params, result interface{}) error {
	id := uuid.NewString()
	ch := make(chan rpcFrame, 1)

	s.mu.Lock()
	s.pending[id] = ch
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.pending, id)
		s.mu.Unlock()
	}()

	data, err := json.Marshal(rpcRequest{Id: id, Method: method, Params: params})
	if err != nil {
		return fmt.Errorf("wsstore marshal %s: %w", method, err)
	}

	s.writeMu.Lock()
	err = s.conn.WriteMessage(gorilla.TextMessage, data)
	s.writeMu.Unlock()
	if err != nil {
		return fmt.Errorf("wsstore write %s: %w", method, err)
	}

	timer := time.NewTimer(s.timeout)
	defer timer.Stop()

	select {
	case frame := <-ch:
		if frame.Error != nil {
			return mapError(frame.Error)
		}
		if result != nil && frame.Result != nil {
			if err := json.Unmarshal(frame.Result, result); err != nil {
				return fmt.Errorf("wsstore decode %s result: %w", method, err)
			}
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-s.closed:
		return remotestore.ErrClosed
	case <-timer.C:
		return fmt.Errorf("wsstore: %s timed out after %s", method, s.timeout)
	}
}

func (s *Store) readLoop() {
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			s.shutdown(fmt.Errorf("wsstore read: %w", err))
			return
		}

		var frame rpcFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			s.log.Warn("WSStore", "Dropping unparseable frame", map[string]interface{}{"error": err.Error()})
			continue
		}

		if frame.Method == "snapshot" {
			s.dispatchSnapshot(frame.Params)
			continue
		}

		s.mu.Lock()
		ch, ok := s.pending[frame.Id]
		s.mu.Unlock()
		if ok {
			ch <- frame
		}
	}
}

func (s *Store) dispatchSnapshot(raw json.RawMessage) {
	var params struct {
		Collection string                 `json:"collection"`
		Documents  []remotestore.Document `json:"documents"`
	}
	if err := json.Unmarshal(raw, &params); err != nil {
		s.log.Warn("WSStore", "Dropping malformed snapshot", map[string]interface{}{"error": err.Error()})
		return
	}

	s.mu.Lock()
	sub, ok := s.subs[params.Collection]
	s.mu.Unlock()
	if !ok {
		return
	}
	sub.deliver(remotestore.SnapshotEvent{Documents: params.Documents})
}

// shutdown closes the connection once and fails all open work.
func (s *Store) shutdown(cause error) {
	s.closeOnce.Do(func() {
		close(s.closed)
		s.conn.Close()

		s.mu.Lock()
		subs := make([]*subscription, 0, len(s.subs))
		for _, sub := range s.subs {
			subs = append(subs, sub)
		}
		s.subs = make(map[string]*subscription)
		s.mu.Unlock()

		for _, sub := range subs {
			sub.deliver(remotestore.SnapshotEvent{Err: cause})
			sub.closeEvents()
		}
	})
}

func mapError(e *rpcError) error {
	switch e.Code {
	case CodeNotFound:
		return remotestore.ErrNotFound
	default:
		return e
	}
}

type subscription struct {
	store      *Store
	collection string
	events     chan remotestore.SnapshotEvent

	mu     sync.Mutex
	closed bool
}

func (s *subscription) Events() <-chan remotestore.SnapshotEvent {
	return s.events
}

func (s *subscription) Close() error {
	s.store.mu.Lock()
	if s.store.subs[s.collection] == s {
		delete(s.store.subs, s.collection)
	}
	s.store.mu.Unlock()

	// Best effort; the server drops interest when the connection dies anyway.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = s.store.call(ctx, "unsubscribe", map[string]string{"collection": s.collection}, nil)

	s.closeEvents()
	return nil
}

func (s *subscription) deliver(ev remotestore.SnapshotEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.events <- ev:
	default:
		// Full-replace snapshots make the newest one sufficient: drop the
		// oldest buffered event to make room.
		select {
		case <-s.events:
		default:
		}
		s.events <- ev
	}
}

func (s *subscription) closeEvents() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.events)
	}
}
