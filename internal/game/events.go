package game

import (
	"github.com/cardroomd/cardroomd/internal/deck"
)

// EventName identifies a game event with type safety
type EventName string

// Hybrid events flow from clients into the engine; accepted ones are echoed
// back out to the table audience.
const (
	EventUserConnected    EventName = "USER_CONNECTED"
	EventUserDisconnected EventName = "USER_DISCONNECTED"
	EventUserReady        EventName = "USER_READY"
	EventUserSetBalance   EventName = "USER_SET_BALANCE"
	EventUserCalled       EventName = "USER_CALLED"
	EventUserFolded       EventName = "USER_FOLDED"
	EventUserChecked      EventName = "USER_CHECKED"
	EventUserRaised       EventName = "USER_RAISED"
	EventStartGame        EventName = "START_GAME"
	EventOptionsChanged   EventName = "OPTIONS_CHANGED"
)

// Output events originate in the engine and go to every table subscriber.
const (
	EventNextPlayer  EventName = "NEXT_PLAYER"
	EventNewPhase    EventName = "NEW_PHASE"
	EventRoundEnded  EventName = "ROUND_ENDED"
	EventGameEnded   EventName = "GAME_ENDED"
	EventForceUpdate EventName = "FORCE_UPDATE"
)

// Private events go only to one player's private channel.
const (
	EventCardsDealt          EventName = "CARDS_DEALT"
	EventInsufficientBalance EventName = "INSUFFICIENT_BALANCE"
)

// String returns the wire name of the event
func (n EventName) String() string {
	return string(n)
}

// Event is the tagged union carried between clients, engine and broadcast.
// Which payload fields are meaningful depends on Name.
type Event struct {
	Name    EventName   `json:"name"`
	UserID  string      `json:"userId,omitempty"`
	Amount  *int        `json:"amount,omitempty"`
	Cards   []deck.Card `json:"cards,omitempty"`
	Options *Options    `json:"options,omitempty"`
}

// IsHybrid reports whether the event may arrive from a client.
func (e Event) IsHybrid() bool {
	switch e.Name {
	case EventUserConnected, EventUserDisconnected, EventUserReady,
		EventUserSetBalance, EventUserCalled, EventUserFolded,
		EventUserChecked, EventUserRaised, EventStartGame,
		EventOptionsChanged:
		return true
	}
	return false
}

// IsPrivate reports whether the event must only reach the player named in
// UserID. Hole cards never go to the table-wide audience.
func (e Event) IsPrivate() bool {
	switch e.Name {
	case EventCardsDealt, EventInsufficientBalance:
		return true
	}
	return false
}

// isBettingAction reports whether the event is gated on turn ownership.
func (e Event) isBettingAction() bool {
	switch e.Name {
	case EventUserCalled, EventUserFolded, EventUserChecked,
		EventUserRaised, EventUserSetBalance, EventUserReady:
		return true
	}
	return false
}

// newCardsDealt builds the private deal notification for one player.
func newCardsDealt(userID string, cards []deck.Card) Event {
	cp := make([]deck.Card, len(cards))
	copy(cp, cards)
	return Event{Name: EventCardsDealt, UserID: userID, Cards: cp}
}

// newInsufficientBalance builds the private rejection notice for one player.
func newInsufficientBalance(userID string) Event {
	return Event{Name: EventInsufficientBalance, UserID: userID}
}
