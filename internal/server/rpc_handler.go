package server

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"gorm.io/datatypes"

	"notesync/internal/model"
	"notesync/internal/pkg/logger"
	"notesync/internal/repository/contract"
	"notesync/internal/repository/specification"
	pktNats "notesync/pkg/nats"

	"notesync/pkg/events"
)

// Error codes shared with the client adapter.
const (
	codeInvalidParams = 400
	codeUnauthorized  = 401
	codeNotFound      = 404
	codeInternal      = 500
)

type rpcRequest struct {
	Id     string          `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	Id     string      `json:"id"`
	Result interface{} `json:"result,omitempty"`
	Error  *rpcError   `json:"error,omitempty"`
}

type authenticateParams struct {
	Token string `json:"token" validate:"required"`
}

type subscribeParams struct {
	Collection string `json:"collection" validate:"required,oneof=notes notebooks"`
}

type createParams struct {
	Collection string                 `json:"collection" validate:"required,oneof=notes notebooks"`
	Fields     map[string]interface{} `json:"fields" validate:"required"`
}

type updateParams struct {
	Collection string                 `json:"collection" validate:"required,oneof=notes notebooks"`
	Id         string                 `json:"id" validate:"required,uuid"`
	Fields     map[string]interface{} `json:"fields" validate:"required"`
}

type deleteParams struct {
	Collection string `json:"collection" validate:"required,oneof=notes notebooks"`
	Id         string `json:"id" validate:"required,uuid"`
}

// RPCHandler dispatches the websocket command surface: identity, collection
// subscriptions, and document CRUD. Every mutation ends with a change event
// that re-pushes the affected snapshot.
type RPCHandler struct {
	auth      *AuthService
	docs      contract.DocumentRepository
	pusher    *PushService
	publisher *pktNats.Publisher
	validate  *validator.Validate
	log       logger.ILogger
}

func NewRPCHandler(auth *AuthService, docs contract.DocumentRepository, pusher *PushService, publisher *pktNats.Publisher, log logger.ILogger) *RPCHandler {
	return &RPCHandler{
		auth:      auth,
		docs:      docs,
		pusher:    pusher,
		publisher: publisher,
		validate:  validator.New(),
		log:       log,
	}
}

// Handle processes one inbound frame and returns the response frame.
func (h *RPCHandler) Handle(ctx context.Context, client *Client, raw []byte) []byte {
	var req rpcRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return marshalResponse(rpcResponse{Error: &rpcError{Code: codeInvalidParams, Message: "malformed request"}})
	}

	resp := h.dispatch(ctx, client, req)
	return marshalResponse(resp)
}

func (h *RPCHandler) dispatch(ctx context.Context, client *Client, req rpcRequest) rpcResponse {
	switch req.Method {
	case "provision":
		return h.handleProvision(ctx, client, req)
	case "authenticate":
		return h.handleAuthenticate(ctx, client, req)
	case "subscribe":
		return h.handleSubscribe(ctx, client, req)
	case "unsubscribe":
		return h.handleUnsubscribe(client, req)
	case "create":
		return h.handleCreate(ctx, client, req)
	case "update":
		return h.handleUpdate(ctx, client, req)
	case "delete":
		return h.handleDelete(ctx, client, req)
	default:
		return errResponse(req.Id, codeInvalidParams, "unknown method "+req.Method)
	}
}

// handleProvision binds the connection to a fresh identity. A connection
// binds exactly once; re-binding would leave a stale hub registration
// behind, so it is rejected outright.
func (h *RPCHandler) handleProvision(ctx context.Context, client *Client, req rpcRequest) rpcResponse {
	if client.UserID != "" {
		return errResponse(req.Id, codeInvalidParams, "connection already bound to an identity")
	}

	userId, token, err := h.auth.ProvisionAnonymous(ctx)
	if err != nil {
		h.log.Error("RPC", "Provision failed", map[string]interface{}{"error": err.Error()})
		return errResponse(req.Id, codeInternal, "provisioning failed")
	}

	client.UserID = userId
	client.Hub.register <- client

	return rpcResponse{Id: req.Id, Result: map[string]string{"user_id": userId, "token": token}}
}

func (h *RPCHandler) handleAuthenticate(ctx context.Context, client *Client, req rpcRequest) rpcResponse {
	if client.UserID != "" {
		return errResponse(req.Id, codeInvalidParams, "connection already bound to an identity")
	}

	var params authenticateParams
	if resp, ok := h.decodeParams(req, &params); !ok {
		return resp
	}

	userId, err := h.auth.Authenticate(ctx, params.Token)
	if err != nil {
		return errResponse(req.Id, codeUnauthorized, "authentication failed")
	}

	client.UserID = userId
	client.Hub.register <- client

	return rpcResponse{Id: req.Id, Result: map[string]string{"user_id": userId}}
}

func (h *RPCHandler) handleSubscribe(ctx context.Context, client *Client, req rpcRequest) rpcResponse {
	if client.UserID == "" {
		return errResponse(req.Id, codeUnauthorized, "not authenticated")
	}
	var params subscribeParams
	if resp, ok := h.decodeParams(req, &params); !ok {
		return resp
	}

	client.Subscribe(params.Collection)

	// Initial full snapshot; later ones ride on mutation events.
	if err := h.pusher.Push(ctx, client.UserID, params.Collection); err != nil {
		h.log.Error("RPC", "Initial snapshot push failed", map[string]interface{}{
			"user_id":    client.UserID,
			"collection": params.Collection,
			"error":      err.Error(),
		})
		return errResponse(req.Id, codeInternal, "subscription failed")
	}
	return rpcResponse{Id: req.Id, Result: map[string]bool{"subscribed": true}}
}

func (h *RPCHandler) handleUnsubscribe(client *Client, req rpcRequest) rpcResponse {
	var params subscribeParams
	if resp, ok := h.decodeParams(req, &params); !ok {
		return resp
	}
	client.Unsubscribe(params.Collection)
	return rpcResponse{Id: req.Id, Result: map[string]bool{"subscribed": false}}
}

func (h *RPCHandler) handleCreate(ctx context.Context, client *Client, req rpcRequest) rpcResponse {
	if client.UserID == "" {
		return errResponse(req.Id, codeUnauthorized, "not authenticated")
	}
	var params createParams
	if resp, ok := h.decodeParams(req, &params); !ok {
		return resp
	}

	doc := &model.Document{
		Id:         uuid.New(),
		UserId:     uuid.MustParse(client.UserID),
		Collection: params.Collection,
		Fields:     datatypes.JSONMap(resolveServerTime(params.Fields)),
	}
	if err := h.docs.Create(ctx, doc); err != nil {
		h.log.Error("RPC", "Document create failed", map[string]interface{}{"error": err.Error()})
		return errResponse(req.Id, codeInternal, "create failed")
	}

	h.afterMutation(ctx, client.UserID, params.Collection)
	return rpcResponse{Id: req.Id, Result: map[string]string{"id": doc.Id.String()}}
}

func (h *RPCHandler) handleUpdate(ctx context.Context, client *Client, req rpcRequest) rpcResponse {
	if client.UserID == "" {
		return errResponse(req.Id, codeUnauthorized, "not authenticated")
	}
	var params updateParams
	if resp, ok := h.decodeParams(req, &params); !ok {
		return resp
	}

	existing, err := h.findOwned(ctx, client.UserID, params.Collection, params.Id)
	if err != nil {
		return errResponse(req.Id, codeInternal, "update failed")
	}
	if existing == nil {
		return errResponse(req.Id, codeNotFound, "document not found")
	}

	fields := datatypes.JSONMap(resolveServerTime(params.Fields))
	if err := h.docs.MergeFields(ctx, existing.Id, fields); err != nil {
		h.log.Error("RPC", "Document update failed", map[string]interface{}{"id": params.Id, "error": err.Error()})
		return errResponse(req.Id, codeInternal, "update failed")
	}

	h.afterMutation(ctx, client.UserID, params.Collection)
	return rpcResponse{Id: req.Id, Result: map[string]bool{"updated": true}}
}

// handleDelete treats a missing document as success so client retries and
// double-clicks stay idempotent.
func (h *RPCHandler) handleDelete(ctx context.Context, client *Client, req rpcRequest) rpcResponse {
	if client.UserID == "" {
		return errResponse(req.Id, codeUnauthorized, "not authenticated")
	}
	var params deleteParams
	if resp, ok := h.decodeParams(req, &params); !ok {
		return resp
	}

	existing, err := h.findOwned(ctx, client.UserID, params.Collection, params.Id)
	if err != nil {
		return errResponse(req.Id, codeInternal, "delete failed")
	}
	if existing == nil {
		return rpcResponse{Id: req.Id, Result: map[string]bool{"deleted": true}}
	}

	if err := h.docs.Delete(ctx, existing.Id); err != nil {
		h.log.Error("RPC", "Document delete failed", map[string]interface{}{"id": params.Id, "error": err.Error()})
		return errResponse(req.Id, codeInternal, "delete failed")
	}

	h.afterMutation(ctx, client.UserID, params.Collection)
	return rpcResponse{Id: req.Id, Result: map[string]bool{"deleted": true}}
}

func (h *RPCHandler) findOwned(ctx context.Context, userId, collection, id string) (*model.Document, error) {
	docId, err := uuid.Parse(id)
	if err != nil {
		return nil, nil
	}
	return h.docs.FindOne(ctx,
		specification.ByID{ID: docId},
		specification.UserOwnedBy{UserID: uuid.MustParse(userId)},
		specification.ByCollection{Name: collection},
	)
}

// afterMutation publishes a change event; without NATS the snapshot is
// pushed inline.
func (h *RPCHandler) afterMutation(ctx context.Context, userId, collection string) {
	if h.publisher != nil {
		evt := events.StoreChanged(userId, collection)
		if err := h.publisher.Publish(ctx, evt); err == nil {
			return
		} else {
			h.log.Warn("RPC", "Change event publish failed, pushing inline", map[string]interface{}{"error": err.Error()})
		}
	}
	if err := h.pusher.Push(ctx, userId, collection); err != nil {
		h.log.Error("RPC", "Snapshot push failed", map[string]interface{}{
			"user_id":    userId,
			"collection": collection,
			"error":      err.Error(),
		})
	}
}

func (h *RPCHandler) decodeParams(req rpcRequest, out interface{}) (rpcResponse, bool) {
	if err := json.Unmarshal(req.Params, out); err != nil {
		return errResponse(req.Id, codeInvalidParams, "malformed params"), false
	}
	if err := h.validate.Struct(out); err != nil {
		return errResponse(req.Id, codeInvalidParams, err.Error()), false
	}
	return rpcResponse{}, true
}

// resolveServerTime replaces client server-time markers with the server
// clock. Clients never fabricate createdAt/updatedAt.
func resolveServerTime(fields map[string]interface{}) map[string]interface{} {
	resolved := make(map[string]interface{}, len(fields))
	stamp := time.Now().UTC().Format(time.RFC3339Nano)
	for k, v := range fields {
		if isServerTimeMarker(v) {
			resolved[k] = stamp
			continue
		}
		resolved[k] = v
	}
	return resolved
}

func isServerTimeMarker(v interface{}) bool {
	m, ok := v.(map[string]interface{})
	if !ok {
		return false
	}
	flag, ok := m["$serverTime"].(bool)
	return ok && flag
}

func errResponse(id string, code int, message string) rpcResponse {
	return rpcResponse{Id: id, Error: &rpcError{Code: code, Message: message}}
}

func marshalResponse(resp rpcResponse) []byte {
	data, err := json.Marshal(resp)
	if err != nil {
		fallback, _ := json.Marshal(rpcResponse{Id: resp.Id, Error: &rpcError{Code: codeInternal, Message: "encoding failure"}})
		return fallback
	}
	return data
}
