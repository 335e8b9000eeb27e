package game

import (
	rand "math/rand/v2"

	"github.com/google/uuid"

	"github.com/cardroomd/cardroomd/internal/deck"
)

// Phase is a named sub-stage of a round. Transitions only move forward,
// wrapping back to GettingReady when a round settles.
type Phase string

const (
	PhaseGettingReady Phase = "Getting-Ready"
	PhasePreFlop      Phase = "Pre-flop"
	PhaseFlop         Phase = "Flop"
	PhaseTurn         Phase = "Turn"
	PhaseRiver        Phase = "River"
)

var phaseOrder = [...]Phase{PhaseGettingReady, PhasePreFlop, PhaseFlop, PhaseTurn, PhaseRiver}

// next returns the phase that follows p in the fixed forward sequence.
func (p Phase) next() Phase {
	for i, cand := range phaseOrder {
		if cand == p && i+1 < len(phaseOrder) {
			return phaseOrder[i+1]
		}
	}
	return p
}

// blindAmount is the forced contribution from the seat-0 player before Pre-flop.
const blindAmount = 1

// Options holds per-table settings the owner controls.
type Options struct {
	Whitelist  []string `json:"whiteList"`
	MaxPlayers int      `json:"maxPlayers"`
	MaxRaises  int      `json:"maxRaises"`
	IsPublic   bool     `json:"isPublic"`
}

// DefaultOptions mirrors the defaults a freshly created table gets.
func DefaultOptions() Options {
	return Options{MaxPlayers: 6, MaxRaises: 4, IsPublic: true}
}

// Player is one seat at a table.
type Player struct {
	UserID        string      `json:"userId"`
	HoleCards     []deck.Card `json:"cards,omitempty"`
	InGameBalance int         `json:"inGameBalance"`
	Bet           int         `json:"bet"`
	Called        bool        `json:"called"`
	Checked       bool        `json:"checked"`
	RaisedTimes   int         `json:"raisedTimes"`
	Tapped        bool        `json:"tapped"`
	TappedAtPot   int         `json:"tappedAtPot"`
	SeatPosition  int         `json:"positionAtTable"`
	Folded        bool        `json:"folded"`
	Connected     bool        `json:"connected"`
	Ready         bool        `json:"ready"`
}

// inHand reports whether the player still contests the current pot.
func (p *Player) inHand() bool {
	return !p.Folded && p.Connected
}

// canAct reports whether the turn pointer may stop on this seat.
func (p *Player) canAct() bool {
	return p.inHand() && !p.Tapped
}

// Table is the aggregate root for one game: its players, cards and pot.
// It is mutated exclusively by the owning Engine.
type Table struct {
	ID             string      `json:"id"`
	OwnerID        string      `json:"ownerId"`
	ChatChannelID  string      `json:"chatChannelId"`
	Pot            int         `json:"pot"`
	Players        []*Player   `json:"players"`
	TurnPosition   int         `json:"turnPosition"`
	CommunityCards []deck.Card `json:"communityCards"`
	Deck           *deck.Deck  `json:"deck"`
	Round          int         `json:"round"`
	Phase          Phase       `json:"phase"`
	GameStarted    bool        `json:"gameStarted"`
	GameOver       bool        `json:"gameOver"`
	Options        Options     `json:"options"`
}

// NewTable creates a table owned by ownerID with the owner already seated.
// Whitelists always include the owner.
func NewTable(ownerID string, opts Options) *Table {
	if opts.MaxPlayers <= 0 {
		opts.MaxPlayers = DefaultOptions().MaxPlayers
	}
	if opts.MaxRaises <= 0 {
		opts.MaxRaises = DefaultOptions().MaxRaises
	}
	if !contains(opts.Whitelist, ownerID) {
		opts.Whitelist = append(opts.Whitelist, ownerID)
	}

	t := &Table{
		ID:            uuid.NewString(),
		OwnerID:       ownerID,
		ChatChannelID: uuid.NewString(),
		Deck:          deck.New(),
		Phase:         PhaseGettingReady,
		Options:       opts,
	}
	t.seat(ownerID)
	return t
}

// Player finds a seat by user id.
func (t *Table) Player(userID string) (*Player, bool) {
	for _, p := range t.Players {
		if p.UserID == userID {
			return p, true
		}
	}
	return nil, false
}

// PlayerAt finds the seat at the given turn-order position.
func (t *Table) PlayerAt(pos int) (*Player, bool) {
	for _, p := range t.Players {
		if p.SeatPosition == pos {
			return p, true
		}
	}
	return nil, false
}

// CurrentPlayer returns the seat the turn pointer rests on.
func (t *Table) CurrentPlayer() (*Player, bool) {
	return t.PlayerAt(t.TurnPosition)
}

// seat adds a player in join order at the next free position.
func (t *Table) seat(userID string) *Player {
	p := &Player{
		UserID:       userID,
		SeatPosition: len(t.Players),
		Connected:    true,
	}
	t.Players = append(t.Players, p)
	return p
}

// highestBet returns the largest per-round contribution at the table.
func (t *Table) highestBet() int {
	max := 0
	for _, p := range t.Players {
		if p.Bet > max {
			max = p.Bet
		}
	}
	return max
}

// requiredContribution is the amount userID must add to stay in: match the
// highest bet, plus the blind for seat 0 during Getting-Ready while its bet
// is still zero.
func (t *Table) requiredContribution(p *Player) int {
	required := t.highestBet() - p.Bet
	if t.Phase == PhaseGettingReady && p.SeatPosition == 0 && p.Bet == 0 {
		required += blindAmount
	}
	return required
}

// nextEligiblePosition finds the first seat strictly after pos, cyclically,
// whose occupant can act. Returns false when no seat qualifies.
func (t *Table) nextEligiblePosition(pos int) (int, bool) {
	n := len(t.Players)
	for i := 1; i <= n; i++ {
		cand := (pos + i) % n
		if p, ok := t.PlayerAt(cand); ok && p.canAct() {
			return cand, true
		}
	}
	return 0, false
}

// reseat assigns a fresh random permutation of seat positions.
func (t *Table) reseat(rng *rand.Rand) {
	perm := rng.Perm(len(t.Players))
	for i, p := range t.Players {
		p.SeatPosition = perm[i]
	}
}

// resetBettingFlags clears the per-betting-round state on every seat.
func (t *Table) resetBettingFlags() {
	for _, p := range t.Players {
		p.Called = false
		p.Checked = false
		p.RaisedTimes = 0
	}
}

// resetForNewRound wipes cards, bets and flags, draws a fresh deck and
// returns the table to Getting-Ready.
func (t *Table) resetForNewRound() {
	t.Round++
	t.CommunityCards = nil
	t.Deck = deck.New()
	t.Phase = PhaseGettingReady
	t.TurnPosition = 0
	t.Pot = 0
	for _, p := range t.Players {
		p.HoleCards = nil
		p.Called = false
		p.Checked = false
		p.Tapped = false
		p.TappedAtPot = 0
		p.Folded = false
		p.RaisedTimes = 0
		p.Bet = 0
		p.Ready = false
	}
}

// ChipTotal is the money currently on the table: the pot plus every seat's
// remaining stack. Bets are already counted inside the pot.
func (t *Table) ChipTotal() int {
	total := t.Pot
	for _, p := range t.Players {
		total += p.InGameBalance
	}
	return total
}

// Whitelisted reports whether userID may join this table.
func (t *Table) Whitelisted(userID string) bool {
	return contains(t.Options.Whitelist, userID)
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
