package server

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"

	"github.com/cardroomd/cardroomd/internal/game"
)

// Connection represents a WebSocket connection to a client
type Connection struct {
	conn      *websocket.Conn
	send      chan *Message
	userID    string
	tableID   string
	logger    *log.Logger
	ctx       context.Context
	cancel    context.CancelFunc
	mu        sync.RWMutex
	closeOnce sync.Once
	registry  *game.Registry
	server    *Server
}

// NewConnection creates a new connection wrapper
func NewConnection(conn *websocket.Conn, logger *log.Logger, registry *game.Registry, server *Server) *Connection {
	ctx, cancel := context.WithCancel(context.Background())

	return &Connection{
		conn:     conn,
		send:     make(chan *Message, 256),
		logger:   logger.WithPrefix("conn"),
		ctx:      ctx,
		cancel:   cancel,
		registry: registry,
		server:   server,
	}
}

// Start begins handling the connection
func (c *Connection) Start() {
	go c.writePump()
	go c.readPump()
}

// Close closes the connection
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.cancel()
		close(c.send)
		err = c.conn.Close()
	})
	return err
}

// SendMessage sends a message to the client
func (c *Connection) SendMessage(msg *Message) error {
	defer func() {
		if r := recover(); r != nil {
			// Channel was closed, expected during shutdown
			c.logger.Debug("Attempted to send on closed connection", "error", r)
		}
	}()

	select {
	case c.send <- msg:
		return nil
	case <-c.ctx.Done():
		return c.ctx.Err()
	default:
		c.logger.Warn("Connection send buffer full, closing connection")
		_ = c.Close()
		return ErrConnectionClosed
	}
}

// GetUser returns the authenticated user id, empty before auth.
func (c *Connection) GetUser() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.userID
}

func (c *Connection) setUser(userID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.userID = userID
}

// GetTable returns the joined table id, empty when not at a table.
func (c *Connection) GetTable() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.tableID
}

func (c *Connection) setTable(tableID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tableID = tableID
}

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 8192
)

var (
	ErrConnectionClosed = websocket.ErrCloseSent
)

// readPump handles incoming messages from the client
func (c *Connection) readPump() {
	defer func() { _ = c.Close() }()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		select {
		case <-c.ctx.Done():
			return
		default:
		}

		var msg Message
		err := c.conn.ReadJSON(&msg)
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Error("WebSocket error", "error", err)
			}
			break
		}

		c.handleMessage(&msg)
	}
}

// writePump handles outgoing messages to the client
func (c *Connection) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteJSON(message); err != nil {
				c.logger.Error("Failed to write message", "error", err)
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.ctx.Done():
			return
		}
	}
}

// handleMessage processes incoming messages from the client
func (c *Connection) handleMessage(msg *Message) {
	c.logger.Debug("Received message", "type", msg.Type, "user", c.GetUser())

	switch msg.Type {
	case MessageTypeAuth:
		var data AuthData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			c.sendError("invalid_message", "Failed to parse auth data")
			return
		}
		c.handleAuth(data)

	case MessageTypeCreateTable:
		var data CreateTableData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			c.sendError("invalid_message", "Failed to parse create table data")
			return
		}
		c.handleCreateTable(data)

	case MessageTypeJoinTable:
		var data JoinTableData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			c.sendError("invalid_message", "Failed to parse join table data")
			return
		}
		c.handleJoinTable(data)

	case MessageTypeLeaveTable:
		var data LeaveTableData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			c.sendError("invalid_message", "Failed to parse leave table data")
			return
		}
		c.handleLeaveTable(data)

	case MessageTypeDeleteTable:
		var data DeleteTableData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			c.sendError("invalid_message", "Failed to parse delete table data")
			return
		}
		c.handleDeleteTable(data)

	case MessageTypeListTables:
		c.handleListTables()

	case MessageTypeGameEvent:
		var data GameEventData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			c.sendError("invalid_message", "Failed to parse game event data")
			return
		}
		c.handleGameEvent(data)

	default:
		c.sendError("unknown_message_type", "Unknown message type: "+msg.Type.String())
	}
}

// handleAuth binds a user id to the connection. Token verification is left
// to the fronting proxy; the id is trusted here.
func (c *Connection) handleAuth(data AuthData) {
	if data.UserID == "" {
		c.sendAuthResponse(false, "", "user id required")
		return
	}
	c.setUser(data.UserID)
	c.sendAuthResponse(true, data.UserID, "")
	c.logger.Info("User authenticated", "user", data.UserID)
}

func (c *Connection) handleCreateTable(data CreateTableData) {
	userID := c.GetUser()
	if userID == "" {
		c.sendError("not_authenticated", "Authenticate first")
		return
	}

	engine, err := c.registry.CreateTable(c.ctx, userID, data.Options)
	if err != nil {
		c.logger.Error("Failed to create table", "error", err, "user", userID)
		c.sendError("create_failed", "Failed to create table")
		return
	}

	msg, err := NewMessage(MessageTypeTableCreated, TableCreatedData{
		TableID: engine.TableID(),
		State:   engine.State(),
	})
	if err != nil {
		c.logger.Error("Failed to encode table created", "error", err)
		return
	}
	_ = c.SendMessage(msg)
}

// handleJoinTable feeds the engine a connect event and attaches the
// connection to the table only once the engine accepted it, so a rejected
// user never receives the table's broadcasts.
func (c *Connection) handleJoinTable(data JoinTableData) {
	userID := c.GetUser()
	if userID == "" {
		c.sendError("not_authenticated", "Authenticate first")
		return
	}
	if c.GetTable() != "" {
		c.sendError("already_joined", "Leave the current table first")
		return
	}
	engine, ok := c.registry.Get(data.TableID)
	if !ok {
		c.sendError("table_not_found", "No such table: "+data.TableID)
		return
	}

	result, err := engine.Apply(c.ctx, game.Event{Name: game.EventUserConnected, UserID: userID})
	if err != nil {
		c.logger.Error("Failed to apply event", "error", err, "event", game.EventUserConnected)
	}
	if !connectAccepted(result, userID) {
		c.sendError("join_rejected", "Cannot join table: "+data.TableID)
		return
	}
	c.setTable(data.TableID)
	c.publish(data.TableID, result)
}

// connectAccepted reports whether the engine echoed the connect event back,
// which it only does for seated or whitelisted users.
func connectAccepted(result game.Result, userID string) bool {
	for _, event := range result.Events {
		if event.Name == game.EventUserConnected && event.UserID == userID {
			return true
		}
	}
	return false
}

func (c *Connection) handleLeaveTable(data LeaveTableData) {
	if c.GetTable() != data.TableID {
		c.sendError("not_joined", "Not at table: "+data.TableID)
		return
	}
	c.leaveCurrentTable()
}

// leaveCurrentTable detaches from the joined table, feeding the engine a
// disconnect event. Also called by the server when the socket drops.
func (c *Connection) leaveCurrentTable() {
	tableID := c.GetTable()
	userID := c.GetUser()
	if tableID == "" || userID == "" {
		return
	}
	c.setTable("")

	engine, ok := c.registry.Get(tableID)
	if !ok {
		return
	}
	result, err := engine.Apply(context.Background(), game.Event{
		Name:   game.EventUserDisconnected,
		UserID: userID,
	})
	if err != nil {
		c.logger.Error("Failed to persist disconnect", "error", err, "user", userID)
	}
	c.publish(tableID, result)
}

func (c *Connection) handleDeleteTable(data DeleteTableData) {
	userID := c.GetUser()
	if userID == "" {
		c.sendError("not_authenticated", "Authenticate first")
		return
	}
	if err := c.registry.Delete(c.ctx, data.TableID, userID); err != nil {
		c.logger.Error("Failed to delete table", "error", err, "user", userID)
		c.sendError("delete_failed", "Failed to delete table")
	}
}

func (c *Connection) handleListTables() {
	infos := c.registry.TableInfos()
	tables := make([]TableInfo, 0, len(infos))
	for _, snapshot := range infos {
		if !snapshot.Options.IsPublic {
			continue
		}
		tables = append(tables, TableInfo{
			ID:          snapshot.ID,
			OwnerID:     snapshot.OwnerID,
			PlayerCount: len(snapshot.Players),
			MaxPlayers:  snapshot.Options.MaxPlayers,
			Phase:       string(snapshot.Phase),
		})
	}

	msg, err := NewMessage(MessageTypeTableList, TableListData{Tables: tables})
	if err != nil {
		c.logger.Error("Failed to encode table list", "error", err)
		return
	}
	_ = c.SendMessage(msg)
}

// handleGameEvent validates the wire event and runs it through the engine
// of the joined table.
func (c *Connection) handleGameEvent(data GameEventData) {
	userID := c.GetUser()
	tableID := c.GetTable()
	if userID == "" || tableID == "" {
		c.sendError("not_joined", "Join a table first")
		return
	}
	engine, ok := c.registry.Get(tableID)
	if !ok {
		c.sendError("table_not_found", "No such table: "+tableID)
		return
	}
	event, ok := data.ToEvent(userID)
	if !ok {
		// Malformed events are dropped without a reply, matching how the
		// engine treats protocol violations.
		c.logger.Debug("Dropping malformed game event", "name", data.Name, "user", userID)
		return
	}
	c.dispatch(engine, event)
}

// dispatch applies one event and publishes whatever it produced.
func (c *Connection) dispatch(engine *game.Engine, event game.Event) {
	result, err := engine.Apply(c.ctx, event)
	if err != nil {
		c.logger.Error("Failed to apply event", "error", err, "event", event.Name)
	}
	c.publish(engine.TableID(), result)
}

// publish routes a result: private events to their player, the rest to
// the whole table with the fresh state.
func (c *Connection) publish(tableID string, result game.Result) {
	for _, event := range result.Events {
		if event.IsPrivate() {
			c.server.PublishToPlayer(tableID, event.UserID, event)
		} else {
			c.server.PublishToTable(tableID, event, result.State)
		}
	}
}

func (c *Connection) sendAuthResponse(success bool, userID, errMsg string) {
	msg, err := NewMessage(MessageTypeAuthResponse, AuthResponseData{
		Success: success,
		UserID:  userID,
		Error:   errMsg,
	})
	if err != nil {
		c.logger.Error("Failed to create auth response", "error", err)
		return
	}
	_ = c.SendMessage(msg)
}

// sendError sends an error message to the client
func (c *Connection) sendError(code, message string) {
	errorMsg, err := NewMessage(MessageTypeError, ErrorData{
		Code:    code,
		Message: message,
	})
	if err != nil {
		c.logger.Error("Failed to create error message", "error", err)
		return
	}
	_ = c.SendMessage(errorMsg)
}
