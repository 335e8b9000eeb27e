package game

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardroomd/cardroomd/internal/deck"
)

// fakeStore keeps documents in plain maps, close enough to the real
// document store for engine tests.
type fakeStore struct {
	mu       sync.Mutex
	tables   map[string]*Table
	accounts map[string]*Account
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		tables:   make(map[string]*Table),
		accounts: make(map[string]*Account),
	}
}

func (s *fakeStore) seedAccount(userID string, balance int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[userID] = &Account{ID: userID, Balance: balance}
}

func (s *fakeStore) accountBalance(t *testing.T, userID string) int {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	account, ok := s.accounts[userID]
	require.True(t, ok, "no account for %s", userID)
	return account.Balance
}

func (s *fakeStore) CreateTable(_ context.Context, table *Table) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tables[table.ID] = table
	return nil
}

func (s *fakeStore) FindTableByID(_ context.Context, tableID string) (*Table, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	table, ok := s.tables[tableID]
	if !ok {
		return nil, ErrTableNotFound
	}
	return table, nil
}

func (s *fakeStore) UpdateTableByID(_ context.Context, tableID string, table *Table) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tables[tableID]; !ok {
		return ErrTableNotFound
	}
	s.tables[tableID] = table
	return nil
}

func (s *fakeStore) FindTables(_ context.Context, filter TableFilter) ([]*Table, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var tables []*Table
	for _, table := range s.tables {
		if filter.GameOver != nil && table.GameOver != *filter.GameOver {
			continue
		}
		tables = append(tables, table)
	}
	return tables, nil
}

func (s *fakeStore) FindAccountByID(_ context.Context, userID string) (*Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	account, ok := s.accounts[userID]
	if !ok {
		return nil, ErrAccountNotFound
	}
	cp := *account
	return &cp, nil
}

func (s *fakeStore) UpdateAccountByID(_ context.Context, userID string, account *Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *account
	s.accounts[userID] = &cp
	return nil
}

// recordingBroadcaster captures everything published, for timer and
// registry tests where no Apply caller sees the events.
type recordingBroadcaster struct {
	mu     sync.Mutex
	table  []Event
	player []Event
}

func (b *recordingBroadcaster) PublishToTable(_ string, event Event, _ Snapshot) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.table = append(b.table, event)
}

func (b *recordingBroadcaster) PublishToPlayer(_, _ string, event Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.player = append(b.player, event)
}

func (b *recordingBroadcaster) tableEvents() []Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Event, len(b.table))
	copy(out, b.table)
	return out
}

func testLogger() *log.Logger {
	return log.New(io.Discard)
}

func intp(n int) *int {
	return &n
}

func eventNames(events []Event) []EventName {
	names := make([]EventName, 0, len(events))
	for _, ev := range events {
		names = append(names, ev.Name)
	}
	return names
}

// chipTotal computes the money visible in a snapshot.
func chipTotal(s Snapshot) int {
	total := s.Pot
	for _, p := range s.Players {
		total += p.InGameBalance
	}
	return total
}

type testBench struct {
	store  *fakeStore
	table  *Table
	engine *Engine
	ctx    context.Context
}

func newBench(t *testing.T, opts ...Option) *testBench {
	t.Helper()
	st := newFakeStore()
	st.seedAccount("alice", 1000)
	st.seedAccount("bob", 1000)
	st.seedAccount("carol", 1000)

	table := NewTable("alice", Options{
		Whitelist:  []string{"bob", "carol"},
		MaxPlayers: 6,
		MaxRaises:  4,
		IsPublic:   true,
	})
	require.NoError(t, st.CreateTable(context.Background(), table))

	engineOpts := append([]Option{WithSeed(1), WithTurnTimeout(0)}, opts...)
	engine := NewEngine(table, st, NopBroadcaster{}, testLogger(), engineOpts...)

	return &testBench{store: st, table: table, engine: engine, ctx: context.Background()}
}

func (b *testBench) apply(t *testing.T, event Event) Result {
	t.Helper()
	result, err := b.engine.Apply(b.ctx, event)
	require.NoError(t, err)
	return result
}

func TestReadyFlowDealsHoleCards(t *testing.T) {
	b := newBench(t)

	b.apply(t, Event{Name: EventUserConnected, UserID: "bob"})
	b.apply(t, Event{Name: EventUserSetBalance, UserID: "alice", Amount: intp(100)})
	b.apply(t, Event{Name: EventUserSetBalance, UserID: "bob", Amount: intp(100)})
	b.apply(t, Event{Name: EventUserReady, UserID: "alice"})
	b.apply(t, Event{Name: EventUserReady, UserID: "bob"})
	b.apply(t, Event{Name: EventStartGame, UserID: "alice"})

	// Seat 0 posts the blind by calling, which completes the transition.
	result := b.apply(t, Event{Name: EventUserCalled, UserID: "alice"})

	assert.Equal(t, []EventName{
		EventUserCalled, EventCardsDealt, EventCardsDealt, EventNewPhase,
	}, eventNames(result.Events))

	dealt := 0
	for _, ev := range result.Events {
		if ev.Name == EventCardsDealt {
			dealt++
			assert.True(t, ev.IsPrivate())
			assert.Len(t, ev.Cards, 2)
		}
	}
	assert.Equal(t, 2, dealt)

	assert.Equal(t, PhasePreFlop, b.table.Phase)
	assert.Equal(t, 1, b.table.Pot)
	assert.Equal(t, 48, b.table.Deck.Remaining())
	for _, p := range b.table.Players {
		assert.Len(t, p.HoleCards, 2)
	}

	// Buy-ins were 200 in total and the blind only moved chips around.
	assert.Equal(t, 200, chipTotal(result.State))
	assert.Equal(t, 800, b.store.accountBalance(t, "alice"))
	assert.Equal(t, 900, b.store.accountBalance(t, "bob"))
}

func TestTurnRotatesThroughGettingReady(t *testing.T) {
	b := newBench(t)
	b.apply(t, Event{Name: EventUserConnected, UserID: "bob"})

	result := b.apply(t, Event{Name: EventUserSetBalance, UserID: "alice", Amount: intp(50)})
	require.Equal(t, []EventName{EventUserSetBalance, EventNextPlayer}, eventNames(result.Events))
	assert.Equal(t, "bob", result.Events[1].UserID)
	assert.Equal(t, 1, b.table.TurnPosition)
}

func TestSeatOnConnectRespectsWhitelist(t *testing.T) {
	b := newBench(t)

	result := b.apply(t, Event{Name: EventUserConnected, UserID: "mallory"})
	assert.Empty(t, result.Events)
	_, seated := b.table.Player("mallory")
	assert.False(t, seated)

	result = b.apply(t, Event{Name: EventUserConnected, UserID: "carol"})
	assert.Equal(t, []EventName{EventUserConnected}, eventNames(result.Events))
	carol, seated := b.table.Player("carol")
	require.True(t, seated)
	assert.Equal(t, 1, carol.SeatPosition)
	assert.True(t, carol.Connected)
}

func TestInsufficientBalanceOnRaise(t *testing.T) {
	b := newBench(t)
	b.apply(t, Event{Name: EventUserConnected, UserID: "bob"})

	alice, _ := b.table.Player("alice")
	bob, _ := b.table.Player("bob")
	b.table.Phase = PhaseFlop
	alice.InGameBalance = 5
	bob.InGameBalance = 100
	bob.Bet = 8
	b.table.Pot = 8

	result := b.apply(t, Event{Name: EventUserRaised, UserID: "alice", Amount: intp(10)})

	require.Equal(t, []EventName{EventInsufficientBalance}, eventNames(result.Events))
	assert.True(t, result.Events[0].IsPrivate())
	assert.Equal(t, "alice", result.Events[0].UserID)
	assert.Equal(t, 8, b.table.Pot)
	assert.Equal(t, 0, alice.Bet)
	assert.Equal(t, 5, alice.InGameBalance)
	assert.Equal(t, 0, alice.RaisedTimes)
}

func TestSingleContenderWinsWithoutShowdown(t *testing.T) {
	b := newBench(t)
	b.apply(t, Event{Name: EventUserConnected, UserID: "bob"})
	b.apply(t, Event{Name: EventUserConnected, UserID: "carol"})

	alice, _ := b.table.Player("alice")
	bob, _ := b.table.Player("bob")
	carol, _ := b.table.Player("carol")

	b.table.Phase = PhaseRiver
	b.table.CommunityCards = deck.NewSeeded(9).Draw(5)
	b.table.Pot = 10
	alice.InGameBalance, alice.Bet = 46, 4
	bob.InGameBalance, bob.Bet, bob.Folded = 44, 6, true
	carol.InGameBalance, carol.Folded = 50, true

	result := b.apply(t, Event{Name: EventUserCalled, UserID: "alice"})

	assert.Equal(t, []EventName{EventUserCalled, EventRoundEnded}, eventNames(result.Events))
	assert.Equal(t, PhaseGettingReady, b.table.Phase)
	assert.Equal(t, 1, b.table.Round)
	assert.Equal(t, 0, b.table.Pot)

	// Alice paid 2 to call and took the 12-chip pot uncontested; every
	// stack merged back into its account at round end.
	assert.Equal(t, 1056, b.store.accountBalance(t, "alice"))
	assert.Equal(t, 1044, b.store.accountBalance(t, "bob"))
	assert.Equal(t, 1050, b.store.accountBalance(t, "carol"))
	for _, p := range b.table.Players {
		assert.Zero(t, p.InGameBalance)
	}
}

func TestAllInWinnerRecoversTappedWatermark(t *testing.T) {
	b := newBench(t)
	b.apply(t, Event{Name: EventUserConnected, UserID: "bob"})
	b.apply(t, Event{Name: EventUserConnected, UserID: "carol"})

	alice, _ := b.table.Player("alice")
	bob, _ := b.table.Player("bob")
	carol, _ := b.table.Player("carol")

	b.table.Phase = PhaseRiver
	b.table.CommunityCards = []deck.Card{
		card(deck.Two, deck.Hearts), card(deck.Seven, deck.Clubs),
		card(deck.Nine, deck.Diamonds), card(deck.Jack, deck.Hearts),
		card(deck.Three, deck.Spades),
	}
	b.table.Pot = 20

	// Alice went all-in when the pot was 10 and holds the best hand.
	alice.InGameBalance = 0
	alice.Tapped = true
	alice.TappedAtPot = 10
	alice.HoleCards = []deck.Card{card(deck.Ace, deck.Hearts), card(deck.Ace, deck.Clubs)}

	bob.InGameBalance, bob.Bet, bob.Called = 50, 6, true
	bob.HoleCards = []deck.Card{card(deck.King, deck.Hearts), card(deck.Queen, deck.Clubs)}

	carol.InGameBalance, carol.Bet = 40, 6
	carol.SeatPosition = 2
	b.table.TurnPosition = 2

	result := b.apply(t, Event{Name: EventUserFolded, UserID: "carol"})

	assert.Equal(t, []EventName{EventUserFolded, EventRoundEnded}, eventNames(result.Events))

	// Alice recovered her 10-chip ceiling, the live runner-up got the rest.
	assert.Equal(t, 1010, b.store.accountBalance(t, "alice"))
	assert.Equal(t, 1060, b.store.accountBalance(t, "bob"))
	assert.Equal(t, 1040, b.store.accountBalance(t, "carol"))
	assert.Equal(t, 0, b.table.Pot)
}

func TestRaiseDroppedAtMaxRaises(t *testing.T) {
	b := newBench(t)
	b.apply(t, Event{Name: EventUserConnected, UserID: "bob"})

	alice, _ := b.table.Player("alice")
	b.table.Phase = PhaseFlop
	alice.InGameBalance = 100
	alice.RaisedTimes = 4

	result := b.apply(t, Event{Name: EventUserRaised, UserID: "alice", Amount: intp(5)})

	assert.Empty(t, result.Events)
	assert.Equal(t, 0, b.table.Pot)
	assert.Equal(t, 4, alice.RaisedTimes)
	assert.Equal(t, 100, alice.InGameBalance)
}

func TestOutOfTurnActionsRejectedIdempotently(t *testing.T) {
	b := newBench(t)
	b.apply(t, Event{Name: EventUserConnected, UserID: "bob"})

	before := b.table.Snapshot()
	first := b.apply(t, Event{Name: EventUserCalled, UserID: "bob"})
	second := b.apply(t, Event{Name: EventUserCalled, UserID: "bob"})

	assert.Empty(t, first.Events)
	assert.Empty(t, second.Events)
	assert.Equal(t, before, first.State)
	assert.Equal(t, before, second.State)
}

func TestNegativeAmountDropped(t *testing.T) {
	b := newBench(t)

	result := b.apply(t, Event{Name: EventUserSetBalance, UserID: "alice", Amount: intp(-5)})
	assert.Empty(t, result.Events)
	assert.Equal(t, 1000, b.store.accountBalance(t, "alice"))
}

func TestTurnSkipsIneligibleSeats(t *testing.T) {
	b := newBench(t)
	b.apply(t, Event{Name: EventUserConnected, UserID: "bob"})
	b.apply(t, Event{Name: EventUserConnected, UserID: "carol"})

	alice, _ := b.table.Player("alice")
	bob, _ := b.table.Player("bob")
	carol, _ := b.table.Player("carol")

	b.table.Phase = PhaseFlop
	alice.InGameBalance = 50
	bob.Folded = true
	carol.InGameBalance, carol.Bet = 50, 2
	b.table.Pot = 2

	result := b.apply(t, Event{Name: EventUserCalled, UserID: "alice"})

	require.Equal(t, []EventName{EventUserCalled, EventNextPlayer}, eventNames(result.Events))
	assert.Equal(t, "carol", result.Events[1].UserID)
	assert.Equal(t, 2, b.table.TurnPosition)
}

func TestCheckRequiresMatchedBet(t *testing.T) {
	b := newBench(t)
	b.apply(t, Event{Name: EventUserConnected, UserID: "bob"})

	alice, _ := b.table.Player("alice")
	bob, _ := b.table.Player("bob")
	b.table.Phase = PhaseFlop
	alice.InGameBalance = 50
	bob.InGameBalance, bob.Bet = 50, 5
	b.table.Pot = 5

	// Alice is behind the highest bet, the check is a no-op.
	result := b.apply(t, Event{Name: EventUserChecked, UserID: "alice"})
	assert.Empty(t, result.Events)
	assert.False(t, alice.Checked)

	alice.Bet = 5
	result = b.apply(t, Event{Name: EventUserChecked, UserID: "alice"})
	require.Equal(t, []EventName{EventUserChecked, EventNextPlayer}, eventNames(result.Events))
	assert.True(t, alice.Checked)
}

func TestDisconnectOfLastPlayerEndsGame(t *testing.T) {
	b := newBench(t)

	result := b.apply(t, Event{Name: EventUserDisconnected, UserID: "alice"})

	assert.Equal(t, []EventName{EventUserDisconnected, EventGameEnded}, eventNames(result.Events))
	assert.True(t, b.table.GameOver)

	// A finished table ignores everything.
	result = b.apply(t, Event{Name: EventUserConnected, UserID: "bob"})
	assert.Empty(t, result.Events)
}

func TestConservationAcrossBettingActions(t *testing.T) {
	b := newBench(t)

	b.apply(t, Event{Name: EventUserConnected, UserID: "bob"})
	b.apply(t, Event{Name: EventUserSetBalance, UserID: "alice", Amount: intp(100)})
	b.apply(t, Event{Name: EventUserSetBalance, UserID: "bob", Amount: intp(100)})
	b.apply(t, Event{Name: EventUserReady, UserID: "alice"})
	b.apply(t, Event{Name: EventUserReady, UserID: "bob"})
	b.apply(t, Event{Name: EventStartGame, UserID: "alice"})
	b.apply(t, Event{Name: EventUserCalled, UserID: "alice"})
	require.Equal(t, PhasePreFlop, b.table.Phase)

	// Chips only ever move between stacks and the pot from here on.
	for i := 0; i < 6; i++ {
		current, ok := b.table.CurrentPlayer()
		require.True(t, ok)

		var event Event
		if b.table.requiredContribution(current) > 0 {
			event = Event{Name: EventUserCalled, UserID: current.UserID}
		} else {
			event = Event{Name: EventUserRaised, UserID: current.UserID, Amount: intp(3)}
		}
		result := b.apply(t, event)
		assert.Equal(t, 200, chipTotal(result.State), "after action %d", i)
	}
}

func TestDisconnectedPlayerForceFoldedOnTimeout(t *testing.T) {
	mock := quartz.NewMock(t)
	broadcaster := &recordingBroadcaster{}

	st := newFakeStore()
	st.seedAccount("alice", 1000)
	st.seedAccount("bob", 1000)
	table := NewTable("alice", Options{
		Whitelist:  []string{"bob"},
		MaxPlayers: 6,
		MaxRaises:  4,
	})
	require.NoError(t, st.CreateTable(context.Background(), table))
	engine := NewEngine(table, st, broadcaster, testLogger(), WithSeed(1), WithClock(mock))

	_, err := engine.Apply(context.Background(), Event{Name: EventUserConnected, UserID: "bob"})
	require.NoError(t, err)

	alice, _ := table.Player("alice")
	bob, _ := table.Player("bob")
	table.Phase = PhaseFlop
	alice.InGameBalance = 50
	bob.InGameBalance = 50

	// Alice drops while on the clock; the disconnect arms the timer.
	_, err = engine.Apply(context.Background(), Event{Name: EventUserDisconnected, UserID: "alice"})
	require.NoError(t, err)
	require.False(t, alice.Connected)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	mock.Advance(DefaultTurnTimeout).MustWait(ctx)

	assert.True(t, alice.Folded)
	assert.Equal(t, 1, table.TurnPosition)

	names := eventNames(broadcaster.tableEvents())
	assert.Contains(t, names, EventUserFolded)
	assert.Contains(t, names, EventNextPlayer)
}

func TestFullRoundAdvancesThroughAllPhases(t *testing.T) {
	b := newBench(t)

	b.apply(t, Event{Name: EventUserConnected, UserID: "bob"})
	b.apply(t, Event{Name: EventUserSetBalance, UserID: "alice", Amount: intp(20)})
	b.apply(t, Event{Name: EventUserSetBalance, UserID: "bob", Amount: intp(20)})
	b.apply(t, Event{Name: EventUserReady, UserID: "alice"})
	b.apply(t, Event{Name: EventUserReady, UserID: "bob"})
	b.apply(t, Event{Name: EventStartGame, UserID: "alice"})
	b.apply(t, Event{Name: EventUserCalled, UserID: "alice"})

	require.Equal(t, PhasePreFlop, b.table.Phase)
	assert.Empty(t, b.table.CommunityCards)

	// The seat on the clock shoves, the other seat calls all-in. With both
	// stacks at zero every later street closes after a single check.
	first, ok := b.table.CurrentPlayer()
	require.True(t, ok)
	b.apply(t, Event{Name: EventUserRaised, UserID: first.UserID, Amount: intp(19)})
	second, ok := b.table.CurrentPlayer()
	require.True(t, ok)
	require.NotEqual(t, first.UserID, second.UserID)
	result := b.apply(t, Event{Name: EventUserCalled, UserID: second.UserID})

	require.Contains(t, eventNames(result.Events), EventNewPhase)
	assert.Equal(t, PhaseFlop, b.table.Phase)
	assert.Len(t, b.table.CommunityCards, 3)
	assert.Equal(t, 40, b.table.Pot)

	checker, ok := b.table.CurrentPlayer()
	require.True(t, ok)
	result = b.apply(t, Event{Name: EventUserChecked, UserID: checker.UserID})
	require.Contains(t, eventNames(result.Events), EventNewPhase)
	assert.Equal(t, PhaseTurn, b.table.Phase)
	assert.Len(t, b.table.CommunityCards, 4)

	checker, ok = b.table.CurrentPlayer()
	require.True(t, ok)
	result = b.apply(t, Event{Name: EventUserChecked, UserID: checker.UserID})
	require.Contains(t, eventNames(result.Events), EventNewPhase)
	assert.Equal(t, PhaseRiver, b.table.Phase)
	assert.Len(t, b.table.CommunityCards, 5)
	assert.Equal(t, 40, chipTotal(b.table.Snapshot()))

	// A river fold leaves one contender, who takes the whole pot without
	// a showdown.
	folder, ok := b.table.CurrentPlayer()
	require.True(t, ok)
	result = b.apply(t, Event{Name: EventUserFolded, UserID: folder.UserID})
	require.Equal(t, []EventName{EventUserFolded, EventRoundEnded}, eventNames(result.Events))
	assert.Equal(t, PhaseGettingReady, b.table.Phase)
	assert.Equal(t, 1, b.table.Round)
	assert.Equal(t, 0, b.table.Pot)
	assert.Empty(t, b.table.CommunityCards)

	winner := "alice"
	if folder.UserID == "alice" {
		winner = "bob"
	}
	assert.Equal(t, 1020, b.store.accountBalance(t, winner))
	assert.Equal(t, 980, b.store.accountBalance(t, folder.UserID))
}

func TestLastDisconnectRefundsAllSeats(t *testing.T) {
	b := newBench(t)
	b.apply(t, Event{Name: EventUserConnected, UserID: "bob"})

	alice, _ := b.table.Player("alice")
	bob, _ := b.table.Player("bob")
	b.table.Phase = PhaseFlop
	alice.InGameBalance, alice.Bet = 40, 10
	bob.InGameBalance, bob.Bet = 45, 5
	b.table.Pot = 15

	b.apply(t, Event{Name: EventUserDisconnected, UserID: "alice"})
	result := b.apply(t, Event{Name: EventUserDisconnected, UserID: "bob"})

	assert.Equal(t, []EventName{EventUserDisconnected, EventGameEnded}, eventNames(result.Events))
	assert.True(t, b.table.GameOver)

	// Every stack and outstanding bet went back to its account; the dead
	// table holds no chips.
	assert.Equal(t, 0, b.table.Pot)
	assert.Equal(t, 1050, b.store.accountBalance(t, "alice"))
	assert.Equal(t, 1050, b.store.accountBalance(t, "bob"))
	for _, p := range b.table.Players {
		assert.Zero(t, p.InGameBalance)
		assert.Zero(t, p.Bet)
	}
}

func TestAbandonOfCurrentPlayerAdvancesTurn(t *testing.T) {
	broadcaster := &recordingBroadcaster{}
	st := newFakeStore()
	st.seedAccount("alice", 1000)
	st.seedAccount("bob", 1000)
	table := NewTable("alice", Options{
		Whitelist:  []string{"bob"},
		MaxPlayers: 6,
		MaxRaises:  4,
	})
	require.NoError(t, st.CreateTable(context.Background(), table))
	engine := NewEngine(table, st, broadcaster, testLogger(), WithSeed(1), WithTurnTimeout(0))

	_, err := engine.Apply(context.Background(), Event{Name: EventUserConnected, UserID: "bob"})
	require.NoError(t, err)

	alice, _ := table.Player("alice")
	bob, _ := table.Player("bob")
	table.Phase = PhaseFlop
	alice.InGameBalance, alice.Bet = 30, 5
	bob.InGameBalance, bob.Bet = 35, 5
	table.Pot = 10
	require.Equal(t, 0, table.TurnPosition)
	require.True(t, bob.Connected)

	_, err = engine.AbandonPlayer(context.Background(), "alice")
	require.NoError(t, err)

	assert.True(t, alice.Folded)
	assert.Equal(t, 1035, st.accountBalance(t, "alice"))

	// The turn moved off the abandoned seat and the remaining seats heard
	// about it, so the table is not stuck waiting on a ghost.
	assert.Equal(t, 1, table.TurnPosition)
	names := eventNames(broadcaster.tableEvents())
	assert.Contains(t, names, EventUserFolded)
	assert.Contains(t, names, EventNextPlayer)

	result, err := engine.Apply(context.Background(), Event{Name: EventUserChecked, UserID: "bob"})
	require.NoError(t, err)
	assert.Contains(t, eventNames(result.Events), EventUserChecked)
}

func TestOptionsChangedOnlyByOwnerDuringGettingReady(t *testing.T) {
	b := newBench(t)
	b.apply(t, Event{Name: EventUserConnected, UserID: "bob"})

	newOpts := Options{Whitelist: []string{"bob"}, MaxPlayers: 4, MaxRaises: 2}

	result := b.apply(t, Event{Name: EventOptionsChanged, UserID: "bob", Options: &newOpts})
	assert.Empty(t, result.Events)
	assert.Equal(t, 6, b.table.Options.MaxPlayers)

	result = b.apply(t, Event{Name: EventOptionsChanged, UserID: "alice", Options: &newOpts})
	require.Equal(t, []EventName{EventOptionsChanged}, eventNames(result.Events))
	assert.Equal(t, 4, b.table.Options.MaxPlayers)
	assert.Equal(t, 2, b.table.Options.MaxRaises)
	// The owner can never whitelist themselves out.
	assert.Contains(t, b.table.Options.Whitelist, "alice")

	b.table.Phase = PhaseFlop
	result = b.apply(t, Event{Name: EventOptionsChanged, UserID: "alice", Options: &newOpts})
	assert.Empty(t, result.Events)
}
