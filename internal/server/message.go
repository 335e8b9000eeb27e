package server

import (
	"encoding/json"
	"time"

	"github.com/cardroomd/cardroomd/internal/game"
)

// MessageType identifies the kind of WebSocket message
type MessageType string

const (
	// Client → Server
	MessageTypeAuth        MessageType = "auth"
	MessageTypeCreateTable MessageType = "create_table"
	MessageTypeJoinTable   MessageType = "join_table"
	MessageTypeLeaveTable  MessageType = "leave_table"
	MessageTypeDeleteTable MessageType = "delete_table"
	MessageTypeListTables  MessageType = "list_tables"
	MessageTypeGameEvent   MessageType = "game_event"

	// Server → Client
	MessageTypeAuthResponse MessageType = "auth_response"
	MessageTypeTableCreated MessageType = "table_created"
	MessageTypeTableList    MessageType = "table_list"
	MessageTypeGameUpdate   MessageType = "game_update"
	MessageTypeError        MessageType = "error"
)

func (t MessageType) String() string {
	return string(t)
}

// Message is the base WebSocket message envelope
type Message struct {
	Type      MessageType     `json:"type"`
	Data      json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewMessage creates a new message with the current timestamp
func NewMessage(messageType MessageType, data interface{}) (*Message, error) {
	dataBytes, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	return &Message{
		Type:      messageType,
		Data:      dataBytes,
		Timestamp: time.Now(),
	}, nil
}

// Client → Server Messages

type AuthData struct {
	UserID string `json:"userId"`
	Token  string `json:"token,omitempty"`
}

type CreateTableData struct {
	Options game.Options `json:"options"`
}

type JoinTableData struct {
	TableID string `json:"tableId"`
}

type LeaveTableData struct {
	TableID string `json:"tableId"`
}

type DeleteTableData struct {
	TableID string `json:"tableId"`
}

// GameEventData carries a raw inbound game event. Amount arrives as an
// arbitrary JSON value and is validated into an int before dispatch,
// anything non-numeric or negative is dropped.
type GameEventData struct {
	Name    string        `json:"name"`
	Amount  json.Number   `json:"amount,omitempty"`
	Options *game.Options `json:"options,omitempty"`
}

// ToEvent converts the wire form into a typed event for the given user.
// The second return is false when the payload cannot become a legal event.
func (d GameEventData) ToEvent(userID string) (game.Event, bool) {
	event := game.Event{
		Name:    game.EventName(d.Name),
		UserID:  userID,
		Options: d.Options,
	}
	if !event.IsHybrid() {
		return game.Event{}, false
	}
	if d.Amount != "" {
		n, err := d.Amount.Int64()
		if err != nil || n < 0 {
			return game.Event{}, false
		}
		amount := int(n)
		event.Amount = &amount
	}
	return event, true
}

// Server → Client Messages

type AuthResponseData struct {
	Success bool   `json:"success"`
	UserID  string `json:"userId,omitempty"`
	Error   string `json:"error,omitempty"`
}

type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type TableCreatedData struct {
	TableID string        `json:"tableId"`
	State   game.Snapshot `json:"state"`
}

type TableInfo struct {
	ID          string `json:"id"`
	OwnerID     string `json:"ownerId"`
	PlayerCount int    `json:"playerCount"`
	MaxPlayers  int    `json:"maxPlayers"`
	Phase       string `json:"phase"`
}

type TableListData struct {
	Tables []TableInfo `json:"tables"`
}

// GameUpdateData is broadcast after every accepted event: the event that
// happened plus the sanitized table state. Private events carry no state.
type GameUpdateData struct {
	Event game.Event     `json:"event"`
	State *game.Snapshot `json:"state,omitempty"`
}
