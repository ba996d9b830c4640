package wsstore

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	gorilla "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"notesync/internal/pkg/logger"
	"notesync/pkg/remotestore"
)

// scriptedServer speaks the wire protocol far enough to exercise the client:
// canned identity responses, per-method results, and snapshot pushes after a
// subscribe.
type scriptedServer struct {
	*httptest.Server
}

func newScriptedServer(t *testing.T) *scriptedServer {
	t.Helper()
	upgrader := gorilla.Upgrader{}

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}

			var req struct {
				Id     string          `json:"id"`
				Method string          `json:"method"`
				Params json.RawMessage `json:"params"`
			}
			if err := json.Unmarshal(data, &req); err != nil {
				return
			}

			write := func(v interface{}) {
				payload, _ := json.Marshal(v)
				conn.WriteMessage(gorilla.TextMessage, payload)
			}

			switch req.Method {
			case "provision":
				write(map[string]interface{}{
					"id":     req.Id,
					"result": map[string]string{"user_id": "user-42", "token": "tok-42"},
				})
			case "authenticate":
				var params struct {
					Token string `json:"token"`
				}
				json.Unmarshal(req.Params, &params)
				if params.Token != "tok-42" {
					write(map[string]interface{}{
						"id":    req.Id,
						"error": map[string]interface{}{"code": 401, "message": "authentication failed"},
					})
					continue
				}
				write(map[string]interface{}{
					"id":     req.Id,
					"result": map[string]string{"user_id": "user-42"},
				})
			case "subscribe":
				var params struct {
					Collection string `json:"collection"`
				}
				json.Unmarshal(req.Params, &params)
				write(map[string]interface{}{
					"id":     req.Id,
					"result": map[string]bool{"subscribed": true},
				})
				write(map[string]interface{}{
					"method": "snapshot",
					"params": map[string]interface{}{
						"collection": params.Collection,
						"documents": []map[string]interface{}{
							{"id": "d1", "fields": map[string]interface{}{"title": "pushed"}},
						},
					},
				})
			case "unsubscribe":
				write(map[string]interface{}{
					"id":     req.Id,
					"result": map[string]bool{"subscribed": false},
				})
			case "create":
				write(map[string]interface{}{
					"id":     req.Id,
					"result": map[string]string{"id": "created-1"},
				})
			case "update":
				var params struct {
					Id string `json:"id"`
				}
				json.Unmarshal(req.Params, &params)
				if params.Id == "missing" {
					write(map[string]interface{}{
						"id":    req.Id,
						"error": map[string]interface{}{"code": 404, "message": "document not found"},
					})
					continue
				}
				write(map[string]interface{}{
					"id":     req.Id,
					"result": map[string]bool{"updated": true},
				})
			case "delete":
				write(map[string]interface{}{
					"id":     req.Id,
					"result": map[string]bool{"deleted": true},
				})
			default:
				write(map[string]interface{}{
					"id":    req.Id,
					"error": map[string]interface{}{"code": 400, "message": "unknown method"},
				})
			}
		}
	})

	return &scriptedServer{Server: httptest.NewServer(handler)}
}

func (s *scriptedServer) wsURL() string {
	return "ws" + strings.TrimPrefix(s.URL, "http")
}

func dialTestStore(t *testing.T) *Store {
	t.Helper()
	srv := newScriptedServer(t)
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	store, err := Dial(ctx, srv.wsURL(), logger.NewNopLogger())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestProvisionAndAuthenticate(t *testing.T) {
	store := dialTestStore(t)
	ctx := context.Background()

	userId, token, err := store.Provision(ctx)
	require.NoError(t, err)
	assert.Equal(t, "user-42", userId)
	assert.Equal(t, "tok-42", token)

	userId, err = store.Authenticate(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, "user-42", userId)

	_, err = store.Authenticate(ctx, "bad-token")
	var rpcErr *rpcError
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, CodeUnauthorized, rpcErr.Code)
}

func TestSubscribeReceivesPushedSnapshot(t *testing.T) {
	store := dialTestStore(t)
	ctx := context.Background()

	path := remotestore.CollectionPath{UserId: "user-42", Collection: remotestore.CollectionNotes}
	sub, err := store.Subscribe(ctx, path)
	require.NoError(t, err)
	defer sub.Close()

	select {
	case ev := <-sub.Events():
		require.NoError(t, ev.Err)
		require.Len(t, ev.Documents, 1)
		assert.Equal(t, "d1", ev.Documents[0].Id)
		assert.Equal(t, "pushed", ev.Documents[0].Fields["title"])
	case <-time.After(2 * time.Second):
		t.Fatal("no snapshot within deadline")
	}
}

func TestDuplicateSubscriptionIsRejected(t *testing.T) {
	store := dialTestStore(t)
	ctx := context.Background()

	path := remotestore.CollectionPath{UserId: "user-42", Collection: remotestore.CollectionNotes}
	sub, err := store.Subscribe(ctx, path)
	require.NoError(t, err)
	defer sub.Close()

	_, err = store.Subscribe(ctx, path)
	assert.Error(t, err)
}

func TestCreateReturnsServerAssignedId(t *testing.T) {
	store := dialTestStore(t)

	path := remotestore.CollectionPath{UserId: "user-42", Collection: remotestore.CollectionNotes}
	id, err := store.Create(context.Background(), path, remotestore.Fields{"title": "draft"})

	require.NoError(t, err)
	assert.Equal(t, "created-1", id)
}

func TestUpdateMissingDocumentMapsToNotFound(t *testing.T) {
	store := dialTestStore(t)

	path := remotestore.DocumentPath{
		CollectionPath: remotestore.CollectionPath{UserId: "user-42", Collection: remotestore.CollectionNotes},
		DocumentId:     "missing",
	}
	err := store.Update(context.Background(), path, remotestore.Fields{"title": "x"})

	assert.ErrorIs(t, err, remotestore.ErrNotFound)
}

func TestDeleteSucceeds(t *testing.T) {
	store := dialTestStore(t)

	path := remotestore.DocumentPath{
		CollectionPath: remotestore.CollectionPath{UserId: "user-42", Collection: remotestore.CollectionNotes},
		DocumentId:     "any",
	}
	assert.NoError(t, store.Delete(context.Background(), path))
}

func TestCloseFailsOpenSubscriptions(t *testing.T) {
	store := dialTestStore(t)
	ctx := context.Background()

	path := remotestore.CollectionPath{UserId: "user-42", Collection: remotestore.CollectionNotes}
	sub, err := store.Subscribe(ctx, path)
	require.NoError(t, err)

	// Drain the initial push first so the error event is unambiguous.
	select {
	case <-sub.Events():
	case <-time.After(2 * time.Second):
		t.Fatal("no initial snapshot")
	}

	store.Close()

	select {
	case ev, ok := <-sub.Events():
		if ok {
			assert.Error(t, ev.Err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("subscription not failed after close")
	}

	_, err = store.Create(ctx, path, remotestore.Fields{})
	assert.Error(t, err)
}
