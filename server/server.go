// Package server is the development relay: a prekey directory plus a
// store-and-forward websocket message relay. It only ever sees ciphertext.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"

	"lite-signal/common"
	"lite-signal/configs"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

type Server struct {
	ctx       context.Context
	cancelCtx context.CancelFunc

	store          Store
	connectedUsers map[string]*conn
	mutex          *sync.Mutex
	logger         *logrus.Logger

	// WebSocket upgrader settings
	upgrader *websocket.Upgrader
}

// conn serialises writes; gorilla connections allow one concurrent writer.
type conn struct {
	ws *websocket.Conn
	mu sync.Mutex
}

func (c *conn) write(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

type countResponse struct {
	Count int64 `json:"count"`
}

func NewServer(ctx context.Context, store Store, logger *logrus.Logger) *Server {
	ctx, cancelCtx := context.WithCancel(ctx)
	return &Server{
		ctx:            ctx,
		cancelCtx:      cancelCtx,
		store:          store,
		connectedUsers: make(map[string]*conn),
		mutex:          &sync.Mutex{},
		logger:         logger,
		upgrader: &websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Router wires every endpoint onto a gorilla/mux router.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc(configs.PublishKeysPath+"/{userID}", s.HandlePostKeys).Methods(http.MethodPost)
	r.HandleFunc(configs.PublishKeysPath+"/{userID}", s.HandleGetKeys).Methods(http.MethodGet)
	r.HandleFunc(configs.PublishKeysPath+"/{userID}/count", s.HandleCountKeys).Methods(http.MethodGet)
	r.HandleFunc(configs.PublishKeysPath+"/{userID}/prekeys", s.HandleAddPrekeys).Methods(http.MethodPost)
	r.HandleFunc(configs.WebSocketPath, s.HandleConnections)
	return r
}

// Handle incoming WebSocket connections
func (s *Server) HandleConnections(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		s.logger.Error("No userId provided in the query")
		http.Error(w, "No userId provided", http.StatusBadRequest)
		return
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Errorf("Error upgrading to WebSocket: %v", err)
		return
	}
	c := &conn{ws: ws}

	s.mutex.Lock()
	if old, ok := s.connectedUsers[userID]; ok {
		old.ws.Close()
	}
	s.connectedUsers[userID] = c
	s.mutex.Unlock()
	s.logger.Infof("User %s connected", userID)

	s.deliverQueuedMessages(userID, c)

	for {
		_, message, err := ws.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Debugf("Error reading message from user %s: %v", userID, err)
			}
			break
		}

		var msg common.MessageBundle
		if err := json.Unmarshal(message, &msg); err != nil {
			s.logger.Errorf("Invalid message format from user %s: %v", userID, err)
			continue
		}
		if msg.To == "" {
			s.logger.Errorf("Message from user %s has no recipient", userID)
			continue
		}

		// Senders cannot spoof the routing field
		msg.From = userID
		s.handleMessage(&msg)
	}

	s.mutex.Lock()
	if s.connectedUsers[userID] == c {
		delete(s.connectedUsers, userID)
	}
	s.mutex.Unlock()
	ws.Close()
	s.logger.Infof("User %s disconnected", userID)
}

func (s *Server) Close() {
	s.cancelCtx()
	s.mutex.Lock()
	for _, c := range s.connectedUsers {
		c.ws.Close()
	}
	s.mutex.Unlock()
	if err := s.store.Close(); err != nil {
		s.logger.Errorf("Error closing store: %v", err)
	}
}

// handleMessage forwards msg to an online recipient or queues it.
func (s *Server) handleMessage(msg *common.MessageBundle) {
	data, err := json.Marshal(msg)
	if err != nil {
		s.logger.Errorf("Error marshalling message from %s to %s: %v", msg.From, msg.To, err)
		return
	}

	s.mutex.Lock()
	recipient, online := s.connectedUsers[msg.To]
	s.mutex.Unlock()

	if online {
		err := recipient.write(data)
		if err == nil {
			s.logger.Debugf("Relayed message from %s to %s", msg.From, msg.To)
			return
		}
		s.logger.Errorf("Error sending message to user %s, queueing: %v", msg.To, err)
	}
	if err := s.store.Enqueue(s.ctx, msg.To, data); err != nil {
		s.logger.Errorf("Error queuing message from %s to %s: %v", msg.From, msg.To, err)
	}
}

func (s *Server) deliverQueuedMessages(userID string, c *conn) {
	messages, err := s.store.Drain(s.ctx, userID)
	if err != nil {
		s.logger.Errorf("Error retrieving queued messages for %s: %v", userID, err)
		return
	}

	for i, message := range messages {
		if err := c.write(message); err != nil {
			s.logger.Errorf("Error sending queued message to %s: %v", userID, err)
			for _, rest := range messages[i:] {
				if err := s.store.Enqueue(s.ctx, userID, rest); err != nil {
					s.logger.Errorf("Error requeuing message for %s: %v", userID, err)
				}
			}
			return
		}
	}
	if len(messages) > 0 {
		s.logger.Infof("Delivered %d queued messages to %s", len(messages), userID)
	}
}

func (s *Server) HandlePostKeys(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["userID"]

	var bundle common.PublishBundle
	if err := json.NewDecoder(r.Body).Decode(&bundle); err != nil {
		s.logger.Errorf("Error decoding keys for user %s: %v", userID, err)
		http.Error(w, "Error decoding keys", http.StatusBadRequest)
		return
	}
	if err := bundle.Validate(); err != nil {
		s.logger.Errorf("Rejected keys for user %s: %v", userID, err)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := s.store.PutBundle(r.Context(), userID, &bundle); err != nil {
		s.logger.Errorf("Error publishing keys for user %s: %v", userID, err)
		http.Error(w, "Error publishing keys", http.StatusInternalServerError)
		return
	}

	s.logger.Infof("Keys published for user %s with %d one-time prekeys", userID, len(bundle.OneTimePrekeys))
	w.WriteHeader(http.StatusOK)
}

func (s *Server) HandleGetKeys(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["userID"]

	bundle, err := s.store.TakeBundle(r.Context(), userID)
	if errors.Is(err, ErrUserNotFound) {
		http.Error(w, "Unknown user", http.StatusNotFound)
		return
	}
	if err != nil {
		s.logger.Errorf("Error retrieving keys for user %s: %v", userID, err)
		http.Error(w, "Error retrieving keys", http.StatusInternalServerError)
		return
	}
	if bundle.OneTimePrekey == nil {
		s.logger.Warnf("One-time prekeys exhausted for user %s", userID)
	}

	s.writeJSON(w, bundle)
	s.logger.Infof("Keys retrieved for user %s", userID)
}

func (s *Server) HandleAddPrekeys(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["userID"]

	var prekeys []common.OneTimePrekey
	if err := json.NewDecoder(r.Body).Decode(&prekeys); err != nil {
		s.logger.Errorf("Error decoding prekeys for user %s: %v", userID, err)
		http.Error(w, "Error decoding prekeys", http.StatusBadRequest)
		return
	}
	for _, otp := range prekeys {
		if err := otp.PublicKey.Validate(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}

	err := s.store.AddOneTimePrekeys(r.Context(), userID, prekeys)
	if errors.Is(err, ErrUserNotFound) {
		http.Error(w, "Unknown user", http.StatusNotFound)
		return
	}
	if err != nil {
		s.logger.Errorf("Error adding prekeys for user %s: %v", userID, err)
		http.Error(w, "Error adding prekeys", http.StatusInternalServerError)
		return
	}
	s.logger.Infof("Added %d one-time prekeys for user %s", len(prekeys), userID)
	w.WriteHeader(http.StatusOK)
}

func (s *Server) HandleCountKeys(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["userID"]

	n, err := s.store.CountOneTimePrekeys(r.Context(), userID)
	if err != nil {
		s.logger.Errorf("Error counting keys for user %s: %v", userID, err)
		http.Error(w, "Error counting keys", http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, countResponse{Count: n})
}

func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Errorf("Error encoding response: %v", err)
	}
}
