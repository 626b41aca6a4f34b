package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"microstructure-cache/src/models"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// Message types pushed to WebSocket clients.
const (
	MessageInitial = "INITIAL"
	MessageUpdate  = "UPDATE"
)

// -----------------------------------------------------------------------------
// Hub Pattern Implementation
// -----------------------------------------------------------------------------

func (s *APIServer) startHub() {
	s.hubOnce.Do(func() {
		go s.runHub()
	})
}

// -----------------------------------------------------------------------------

// runHub owns the client set. Slow clients are dropped rather than allowed
// to block the broadcast.
func (s *APIServer) runHub() {
	for {
		select {
		case <-s.stop:
			for client := range s.clients {
				client.close()
				delete(s.clients, client)
			}
			s.setConnections(0)
			return

		case client := <-s.register:
			s.clients[client] = struct{}{}
			s.setConnections(len(s.clients))

		case client := <-s.unregister:
			if _, ok := s.clients[client]; ok {
				delete(s.clients, client)
				client.close()
				s.setConnections(len(s.clients))
			}

		case message := <-s.broadcast:
			for client := range s.clients {
				if !client.wants(message.Symbol) {
					continue
				}
				if !client.enqueue(message) {
					s.Logger.Warning("Dropping slow WebSocket client")
					delete(s.clients, client)
					client.close()
				}
			}
			s.setConnections(len(s.clients))
		}
	}
}

// -----------------------------------------------------------------------------

func (s *APIServer) setConnections(n int) {
	s.stateMutex.Lock()
	s.connections = n
	s.stateMutex.Unlock()
}

// -----------------------------------------------------------------------------
// Data Exchange Interface Implementation
// -----------------------------------------------------------------------------

// Broadcast queues a snapshot for every subscribed client. It never blocks;
// when the queue is full the update is dropped.
func (s *APIServer) Broadcast(symbol string, snapshot models.MSymbolSnapshot) {
	now := time.Now().Unix()

	s.stateMutex.Lock()
	s.latestUpdate = now
	s.stateMutex.Unlock()

	message := &models.MSnapshotUpdate{
		Type:      MessageUpdate,
		Symbol:    symbol,
		Snapshot:  snapshot,
		Timestamp: now,
	}

	select {
	case s.broadcast <- message:
	case <-s.stop:
	default:
		s.Logger.Warning("Broadcast queue full, dropping update for %s", symbol)
	}
}

// -----------------------------------------------------------------------------
// WebSocket Handlers
// -----------------------------------------------------------------------------

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// -----------------------------------------------------------------------------

func (s *APIServer) handleWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.Logger.Info("Failed to upgrade websocket: %v", err)
		return
	}

	client := newClient(s, conn)

	// queued before registration so the client sees them first
	s.queueInitial(c.Request.Context(), client, s.Reader.Symbols())

	select {
	case s.register <- client:
	case <-s.stop:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

// -----------------------------------------------------------------------------

func (s *APIServer) queueInitial(ctx context.Context, client *Client, symbols []string) {
	now := time.Now().Unix()
	for _, symbol := range symbols {
		snap, found := s.Reader.GetLatestMetrics(ctx, symbol)
		if !found {
			continue
		}
		if !client.enqueue(&models.MSnapshotUpdate{Type: MessageInitial, Symbol: symbol, Snapshot: snap, Timestamp: now}) {
			return
		}
	}
}

// -----------------------------------------------------------------------------
// Client Message Handling
// -----------------------------------------------------------------------------

// HandleClientMessage applies a subscribe command and answers with the
// current snapshots of the requested symbols.
func (s *APIServer) HandleClientMessage(client *Client, message []byte) {
	var cmd models.MSubscribeCommand
	if err := json.Unmarshal(message, &cmd); err != nil {
		s.Logger.Info("Failed to parse client command: %v, disconnecting client", err)
		client.conn.Close()
		return
	}

	if cmd.Command != "subscribe" {
		return
	}

	client.setFilter(cmd.Symbols)

	symbols := cmd.Symbols
	if len(symbols) == 0 {
		symbols = s.Reader.Symbols()
	}
	s.queueInitial(context.Background(), client, symbols)
}
