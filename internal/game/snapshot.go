package game

import (
	"github.com/cardroomd/cardroomd/internal/deck"
)

// PlayerSnapshot is a seat as every subscriber may see it: everything but
// the hole cards.
type PlayerSnapshot struct {
	UserID        string `json:"userId"`
	InGameBalance int    `json:"inGameBalance"`
	Bet           int    `json:"bet"`
	Called        bool   `json:"called"`
	Checked       bool   `json:"checked"`
	RaisedTimes   int    `json:"raisedTimes"`
	Tapped        bool   `json:"tapped"`
	TappedAtPot   int    `json:"tappedAtPot"`
	SeatPosition  int    `json:"positionAtTable"`
	Folded        bool   `json:"folded"`
	Connected     bool   `json:"connected"`
	Ready         bool   `json:"ready"`
}

// Snapshot is the sanitized table state broadcast alongside events. It
// carries no hole cards and no deck.
type Snapshot struct {
	ID             string           `json:"id"`
	OwnerID        string           `json:"ownerId"`
	ChatChannelID  string           `json:"chatChannelId"`
	Pot            int              `json:"pot"`
	Players        []PlayerSnapshot `json:"players"`
	TurnPosition   int              `json:"turnPosition"`
	CommunityCards []deck.Card      `json:"communityCards"`
	Round          int              `json:"round"`
	Phase          Phase            `json:"phase"`
	GameStarted    bool             `json:"gameStarted"`
	GameOver       bool             `json:"gameOver"`
	Options        Options          `json:"options"`
}

// Snapshot strips the deck and every player's hole cards from the table.
func (t *Table) Snapshot() Snapshot {
	players := make([]PlayerSnapshot, 0, len(t.Players))
	for _, p := range t.Players {
		players = append(players, PlayerSnapshot{
			UserID:        p.UserID,
			InGameBalance: p.InGameBalance,
			Bet:           p.Bet,
			Called:        p.Called,
			Checked:       p.Checked,
			RaisedTimes:   p.RaisedTimes,
			Tapped:        p.Tapped,
			TappedAtPot:   p.TappedAtPot,
			SeatPosition:  p.SeatPosition,
			Folded:        p.Folded,
			Connected:     p.Connected,
			Ready:         p.Ready,
		})
	}

	community := make([]deck.Card, len(t.CommunityCards))
	copy(community, t.CommunityCards)

	return Snapshot{
		ID:             t.ID,
		OwnerID:        t.OwnerID,
		ChatChannelID:  t.ChatChannelID,
		Pot:            t.Pot,
		Players:        players,
		TurnPosition:   t.TurnPosition,
		CommunityCards: community,
		Round:          t.Round,
		Phase:          t.Phase,
		GameStarted:    t.GameStarted,
		GameOver:       t.GameOver,
		Options:        t.Options,
	}
}
