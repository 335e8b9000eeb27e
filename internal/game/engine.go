package game

import (
	"context"
	"fmt"
	rand "math/rand/v2"
	"sort"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/thoas/go-funk"

	"github.com/cardroomd/cardroomd/internal/deck"
)

const (
	// DefaultTurnTimeout bounds how long a disconnected player may hold
	// the turn before being force-folded.
	DefaultTurnTimeout = 30 * time.Second

	// DefaultPersistTimeout bounds every document-store call.
	DefaultPersistTimeout = 2 * time.Second

	holeCardCount = 2
	flopCardCount = 3
)

// Result is what one applied event produced: the ordered outbound events
// and the sanitized state to broadcast with them.
type Result struct {
	Events []Event
	State  Snapshot
}

// Engine drives one table's betting state machine. Events are processed
// strictly one at a time in arrival order; the lock is held across the
// persistence write so a second event never observes a half-persisted
// table.
type Engine struct {
	mu          sync.Mutex
	table       *Table
	store       Store
	broadcaster Broadcaster
	logger      *log.Logger

	clock          quartz.Clock
	rng            *rand.Rand
	turnTimeout    time.Duration
	persistTimeout time.Duration
	turnTimer      *quartz.Timer

	onGameOver func(tableID string)
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock injects the clock used for the disconnect turn timer.
func WithClock(clock quartz.Clock) Option {
	return func(e *Engine) { e.clock = clock }
}

// WithTurnTimeout sets how long a disconnected player may hold the turn.
// Zero disables the timer.
func WithTurnTimeout(d time.Duration) Option {
	return func(e *Engine) { e.turnTimeout = d }
}

// WithPersistTimeout bounds document-store calls.
func WithPersistTimeout(d time.Duration) Option {
	return func(e *Engine) { e.persistTimeout = d }
}

// WithSeed makes seat shuffling deterministic, for tests.
func WithSeed(seed int64) Option {
	return func(e *Engine) { e.rng = deck.NewRand(seed) }
}

// WithGameOverHook registers a callback fired once when the table ends.
func WithGameOverHook(fn func(tableID string)) Option {
	return func(e *Engine) { e.onGameOver = fn }
}

// NewEngine creates the engine owning the given table.
func NewEngine(table *Table, store Store, broadcaster Broadcaster, logger *log.Logger, opts ...Option) *Engine {
	e := &Engine{
		table:          table,
		store:          store,
		broadcaster:    broadcaster,
		logger:         logger.WithPrefix("engine").With("table", table.ID),
		clock:          quartz.NewReal(),
		rng:            deck.NewRand(time.Now().UnixNano()),
		turnTimeout:    DefaultTurnTimeout,
		persistTimeout: DefaultPersistTimeout,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// TableID returns the id of the table this engine owns.
func (e *Engine) TableID() string {
	return e.table.ID
}

// State returns the current sanitized snapshot.
func (e *Engine) State() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.table.Snapshot()
}

// Apply validates and applies one inbound event. Protocol violations
// (acting out of turn, unknown names, negative amounts) produce zero
// events and leave state untouched. A non-nil error means the persistence
// write failed after the in-memory state already changed; the returned
// events are still valid for broadcast and the write may be retried.
func (e *Engine) Apply(ctx context.Context, event Event) (Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.apply(ctx, event)
}

func (e *Engine) apply(ctx context.Context, event Event) (Result, error) {
	if e.table.GameOver || !event.IsHybrid() {
		return Result{State: e.table.Snapshot()}, nil
	}
	if event.Amount != nil && *event.Amount < 0 {
		return Result{State: e.table.Snapshot()}, nil
	}

	var (
		events []Event
		err    error
	)
	switch event.Name {
	case EventUserConnected:
		events = e.handleConnect(event)
	case EventUserDisconnected:
		events, err = e.handleDisconnect(ctx, event)
		if err != nil {
			return Result{Events: events, State: e.table.Snapshot()}, err
		}
	case EventStartGame:
		events = e.handleStartGame(event)
	case EventOptionsChanged:
		events = e.handleOptionsChanged(event)
	default:
		events, err = e.handleBettingAction(ctx, event)
		if err != nil {
			return Result{State: e.table.Snapshot()}, err
		}
	}

	if len(events) > 0 {
		err = e.persist(ctx)
	}
	e.armTurnTimer()
	return Result{Events: events, State: e.table.Snapshot()}, err
}

// handleConnect seats a whitelisted newcomer during Getting-Ready or flips
// the connected flag on a returning player.
func (e *Engine) handleConnect(event Event) []Event {
	p, seated := e.table.Player(event.UserID)
	if !seated {
		if e.table.Phase != PhaseGettingReady ||
			!e.table.Whitelisted(event.UserID) ||
			len(e.table.Players) >= e.table.Options.MaxPlayers {
			return nil
		}
		p = e.table.seat(event.UserID)
		e.logger.Info("player seated", "user", p.UserID, "seat", p.SeatPosition)
	}
	p.Connected = true
	return []Event{event}
}

// handleDisconnect marks the seat disconnected; when the last seat goes
// dark the table tears down, refunding every seat before it ends.
func (e *Engine) handleDisconnect(ctx context.Context, event Event) ([]Event, error) {
	p, ok := e.table.Player(event.UserID)
	if !ok || !p.Connected {
		return nil, nil
	}
	p.Connected = false
	events := []Event{event}

	stillHere := funk.Filter(e.table.Players, func(p *Player) bool {
		return p.Connected
	}).([]*Player)
	if len(stillHere) > 0 {
		return events, nil
	}

	// Nobody left to play the round out; without the refund loop the
	// stacks, bets and pot would be stranded on a dead table.
	for _, seat := range e.table.Players {
		if err := e.refundPlayer(ctx, seat); err != nil {
			return events, err
		}
	}
	e.table.GameOver = true
	events = append(events, Event{Name: EventGameEnded})
	e.logger.Info("all players disconnected, refunding seats and ending game")
	e.fireGameOver()
	return events, nil
}

func (e *Engine) handleStartGame(event Event) []Event {
	if e.table.GameStarted {
		return nil
	}
	e.table.GameStarted = true
	return []Event{event}
}

// handleOptionsChanged lets the owner retune the table between rounds.
func (e *Engine) handleOptionsChanged(event Event) []Event {
	if event.UserID != e.table.OwnerID || event.Options == nil ||
		e.table.Phase != PhaseGettingReady {
		return nil
	}
	opts := *event.Options
	if !contains(opts.Whitelist, e.table.OwnerID) {
		opts.Whitelist = append(opts.Whitelist, e.table.OwnerID)
	}
	e.table.Options = opts
	return []Event{event}
}

// handleBettingAction gates on turn ownership, applies the action, then
// runs phase advancement and turn rotation.
func (e *Engine) handleBettingAction(ctx context.Context, event Event) ([]Event, error) {
	if !event.isBettingAction() {
		return nil, nil
	}
	current, ok := e.table.CurrentPlayer()
	if !ok || current.UserID != event.UserID {
		return nil, nil
	}

	var (
		produced *Event
		err      error
	)
	switch event.Name {
	case EventUserCalled:
		produced = e.handleCall(current, event)
	case EventUserRaised:
		produced = e.handleRaise(current, event)
	case EventUserChecked:
		produced = e.handleCheck(current, event)
	case EventUserFolded:
		produced = e.handleFold(current, event)
	case EventUserSetBalance:
		produced, err = e.handleSetBalance(ctx, current, event)
	case EventUserReady:
		produced = e.handleReady(current, event)
	}
	if err != nil || produced == nil {
		return nil, err
	}

	events := []Event{*produced}
	if produced.Name == EventInsufficientBalance {
		// Private rejection only; nothing changed.
		return events, nil
	}

	more, err := e.advanceRound(ctx)
	if err != nil {
		return events, err
	}
	events = append(events, more...)

	if !containsPhaseEvent(more) {
		if pos, ok := e.table.nextEligiblePosition(e.table.TurnPosition); ok {
			e.table.TurnPosition = pos
			next, _ := e.table.PlayerAt(pos)
			events = append(events, Event{Name: EventNextPlayer, UserID: next.UserID})
		}
	}
	return events, nil
}

func containsPhaseEvent(events []Event) bool {
	for _, ev := range events {
		switch ev.Name {
		case EventNewPhase, EventRoundEnded, EventGameEnded:
			return true
		}
	}
	return false
}

// handleCall matches the table's highest bet, posting the blind when seat 0
// calls first during Getting-Ready.
func (e *Engine) handleCall(p *Player, event Event) *Event {
	blindSeat := p.SeatPosition == 0
	if e.table.Phase == PhaseGettingReady && !blindSeat {
		return nil
	}
	required := e.table.requiredContribution(p)
	if required == 0 {
		return nil
	}
	if p.InGameBalance < required {
		private := newInsufficientBalance(p.UserID)
		return &private
	}
	e.commitChips(p, required)
	p.Called = true
	return &event
}

// handleRaise is a call plus the raise amount, bounded by maxRaises.
func (e *Engine) handleRaise(p *Player, event Event) *Event {
	if event.Amount == nil {
		return nil
	}
	if e.table.Phase == PhaseGettingReady && p.SeatPosition != 0 {
		return nil
	}
	if p.RaisedTimes >= e.table.Options.MaxRaises {
		return nil
	}
	required := e.table.requiredContribution(p) + *event.Amount
	if p.InGameBalance < required {
		private := newInsufficientBalance(p.UserID)
		return &private
	}
	e.commitChips(p, required)
	p.RaisedTimes++
	return &event
}

// commitChips moves chips from the player's stack into their bet and the
// pot, recording the all-in watermark when the stack empties.
func (e *Engine) commitChips(p *Player, amount int) {
	p.InGameBalance -= amount
	p.Bet += amount
	e.table.Pot += amount
	if p.InGameBalance == 0 {
		p.Tapped = true
		p.TappedAtPot = e.table.Pot
	}
}

func (e *Engine) handleCheck(p *Player, event Event) *Event {
	if p.Checked || p.Bet != e.table.highestBet() {
		return nil
	}
	p.Checked = true
	return &event
}

func (e *Engine) handleFold(p *Player, event Event) *Event {
	if !p.Connected {
		return nil
	}
	p.Folded = true
	return &event
}

// handleSetBalance buys in from the externally tracked account. Only legal
// during Getting-Ready.
func (e *Engine) handleSetBalance(ctx context.Context, p *Player, event Event) (*Event, error) {
	if event.Amount == nil || e.table.Phase != PhaseGettingReady {
		return nil, nil
	}
	amount := *event.Amount

	sctx, cancel := context.WithTimeout(ctx, e.persistTimeout)
	defer cancel()
	account, err := e.store.FindAccountByID(sctx, p.UserID)
	if err != nil {
		return nil, fmt.Errorf("find account %s: %w", p.UserID, err)
	}
	if account.Balance < amount {
		private := newInsufficientBalance(p.UserID)
		return &private, nil
	}

	account.Balance -= amount
	if err := e.store.UpdateAccountByID(sctx, p.UserID, account); err != nil {
		return nil, fmt.Errorf("debit account %s: %w", p.UserID, err)
	}
	p.InGameBalance = amount
	return &event, nil
}

func (e *Engine) handleReady(p *Player, event Event) *Event {
	if e.table.Phase != PhaseGettingReady {
		return nil
	}
	p.Ready = true
	return &event
}

// advanceRound checks the phase-advancement conditions after an accepted
// betting action and performs at most one transition.
func (e *Engine) advanceRound(ctx context.Context) ([]Event, error) {
	t := e.table
	switch t.Phase {
	case PhaseGettingReady:
		if !t.GameStarted || !e.allReady() {
			return nil, nil
		}
		blind, ok := t.PlayerAt(0)
		if !ok || blind.Bet == 0 {
			return nil, nil
		}
		return e.enterPreFlop(), nil

	case PhasePreFlop, PhaseFlop, PhaseTurn:
		if !e.allDone() {
			return nil, nil
		}
		n := 1
		if t.Phase == PhasePreFlop {
			n = flopCardCount
		}
		t.CommunityCards = append(t.CommunityCards, t.Deck.Draw(n)...)
		t.Phase = t.Phase.next()
		t.TurnPosition = 0
		t.resetBettingFlags()
		e.logger.Debug("phase advanced", "phase", t.Phase, "community", len(t.CommunityCards))
		return []Event{{Name: EventNewPhase}}, nil

	case PhaseRiver:
		if !e.allDone() {
			return nil, nil
		}
		if err := e.settle(ctx); err != nil {
			return nil, err
		}
		t.resetForNewRound()
		e.logger.Info("round settled", "round", t.Round)
		return []Event{{Name: EventRoundEnded}}, nil
	}
	return nil, nil
}

// enterPreFlop reshuffles seats, resets the betting flags and deals two
// hole cards to every seat on its private channel.
func (e *Engine) enterPreFlop() []Event {
	t := e.table
	t.reseat(e.rng)
	t.Phase = PhasePreFlop
	t.TurnPosition = 0
	t.resetBettingFlags()

	events := make([]Event, 0, len(t.Players)+1)
	for _, p := range t.Players {
		p.HoleCards = t.Deck.Draw(holeCardCount)
		events = append(events, newCardsDealt(p.UserID, p.HoleCards))
	}
	events = append(events, Event{Name: EventNewPhase})
	e.logger.Debug("hole cards dealt", "players", len(t.Players))
	return events
}

// allReady reports whether every seat has flagged ready.
func (e *Engine) allReady() bool {
	for _, p := range e.table.Players {
		if !p.Ready {
			return false
		}
	}
	return len(e.table.Players) > 0
}

// allDone reports whether every seat has finished the betting round:
// called, folded, gone, broke, or out of raises.
func (e *Engine) allDone() bool {
	maxRaises := e.table.Options.MaxRaises
	for _, p := range e.table.Players {
		done := p.Called || p.Folded || !p.Connected ||
			p.InGameBalance == 0 || p.RaisedTimes >= maxRaises
		if !done {
			return false
		}
	}
	return true
}

// settle resolves the showdown, pays winners, merges results back into the
// external accounts and validates chip conservation.
func (e *Engine) settle(ctx context.Context) error {
	t := e.table
	before := t.ChipTotal()

	contenders := funk.Filter(t.Players, func(p *Player) bool {
		return p.inHand()
	}).([]*Player)

	switch len(contenders) {
	case 0:
		// Everyone folded or vanished; bets go back to their owners.
		for _, p := range t.Players {
			p.InGameBalance += p.Bet
			t.Pot -= p.Bet
		}
	case 1:
		// Last player standing takes the pot without a showdown.
		contenders[0].InGameBalance += t.Pot
		t.Pot = 0
	default:
		e.payout(contenders)
	}

	if after := t.ChipTotal(); after != before {
		e.logger.Error("chip conservation violated at settle",
			"before", before, "after", after, "round", t.Round)
	}

	return e.mergeBalances(ctx)
}

// payout ranks contenders by hand score and distributes the pot: all-in
// winners recover their tapped watermark, live winners split the rest. If
// the whole best tier is all-in, the same split runs on the next tier.
func (e *Engine) payout(contenders []*Player) {
	t := e.table
	scores := make(map[string]int, len(contenders))
	best := 0
	for _, p := range contenders {
		hand := make([]deck.Card, 0, len(p.HoleCards)+len(t.CommunityCards))
		hand = append(hand, p.HoleCards...)
		hand = append(hand, t.CommunityCards...)
		s := Evaluate(hand)
		scores[p.UserID] = s
		if s > best {
			best = s
		}
	}

	secondBest, hasSecond := 0, false
	for _, s := range scores {
		if s < best && s > secondBest {
			secondBest = s
			hasSecond = true
		}
	}

	winners := funk.Filter(contenders, func(p *Player) bool {
		return scores[p.UserID] == best
	}).([]*Player)

	live := e.recoverTapped(winners)
	switch {
	case len(live) > 0:
		e.splitEvenly(live)
	case hasSecond:
		runners := funk.Filter(contenders, func(p *Player) bool {
			return scores[p.UserID] == secondBest
		}).([]*Player)
		if liveRunners := e.recoverTapped(runners); len(liveRunners) > 0 {
			e.splitEvenly(liveRunners)
		}
	}

	// Whatever remains after the tier splits still belongs to the best
	// hands; an unclaimed remainder would break conservation.
	if t.Pot > 0 {
		e.splitEvenly(winners)
	}
}

// recoverTapped credits each all-in winner with its tapped watermark and
// returns the winners that are not all-in.
func (e *Engine) recoverTapped(tier []*Player) []*Player {
	live := make([]*Player, 0, len(tier))
	for _, p := range tier {
		if !p.Tapped {
			live = append(live, p)
			continue
		}
		take := p.TappedAtPot
		if take > e.table.Pot {
			take = e.table.Pot
		}
		p.InGameBalance += take
		e.table.Pot -= take
	}
	return live
}

// splitEvenly divides the remaining pot across the given seats; any
// remainder chips go one each to the earliest seats.
func (e *Engine) splitEvenly(tier []*Player) {
	if len(tier) == 0 || e.table.Pot == 0 {
		return
	}
	sort.Slice(tier, func(i, j int) bool {
		return tier[i].SeatPosition < tier[j].SeatPosition
	})
	share := e.table.Pot / len(tier)
	remainder := e.table.Pot % len(tier)
	for i, p := range tier {
		p.InGameBalance += share
		if i < remainder {
			p.InGameBalance++
		}
	}
	e.table.Pot = 0
}

// mergeBalances folds each seat's round result back into the external
// account, leaving every in-game stack at zero for the next buy-in.
func (e *Engine) mergeBalances(ctx context.Context) error {
	for _, p := range e.table.Players {
		if p.InGameBalance == 0 {
			continue
		}
		sctx, cancel := context.WithTimeout(ctx, e.persistTimeout)
		account, err := e.store.FindAccountByID(sctx, p.UserID)
		if err != nil {
			cancel()
			return fmt.Errorf("find account %s: %w", p.UserID, err)
		}
		account.Balance += p.InGameBalance
		if err := e.store.UpdateAccountByID(sctx, p.UserID, account); err != nil {
			cancel()
			return fmt.Errorf("credit account %s: %w", p.UserID, err)
		}
		cancel()
		p.InGameBalance = 0
	}
	return nil
}

// persist writes the table document after a state-changing batch.
func (e *Engine) persist(ctx context.Context) error {
	pctx, cancel := context.WithTimeout(ctx, e.persistTimeout)
	defer cancel()
	if err := e.store.UpdateTableByID(pctx, e.table.ID, e.table); err != nil {
		return fmt.Errorf("persist table %s: %w", e.table.ID, err)
	}
	return nil
}

// armTurnTimer schedules a forced fold when the seat on the clock is
// disconnected; any later event re-arms or clears it.
func (e *Engine) armTurnTimer() {
	if e.turnTimer != nil {
		e.turnTimer.Stop()
		e.turnTimer = nil
	}
	if e.turnTimeout <= 0 || e.table.GameOver {
		return
	}
	current, ok := e.table.CurrentPlayer()
	if !ok || current.Connected || current.Folded {
		return
	}
	userID := current.UserID
	e.turnTimer = e.clock.AfterFunc(e.turnTimeout, func() {
		e.forceFold(userID)
	})
}

// forceFold folds a disconnected player that stalled the table and
// broadcasts the resulting events itself, since no caller is waiting.
func (e *Engine) forceFold(userID string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	current, ok := e.table.CurrentPlayer()
	if !ok || current.UserID != userID || current.Connected || e.table.GameOver {
		return
	}
	e.logger.Info("force-folding disconnected player", "user", userID)
	current.Folded = true

	ctx := context.Background()
	events := append([]Event{{Name: EventUserFolded, UserID: userID}}, e.advanceAfterFold(ctx)...)

	if err := e.persist(ctx); err != nil {
		e.logger.Error("persist after forced fold failed", "error", err)
	}
	e.broadcastEvents(events)
	e.armTurnTimer()
}

// advanceAfterFold runs phase advancement after a seat folded outside the
// normal betting flow and rotates the turn when no phase boundary fired.
func (e *Engine) advanceAfterFold(ctx context.Context) []Event {
	events, err := e.advanceRound(ctx)
	if err != nil {
		e.logger.Error("settle after fold failed", "error", err)
	}
	if !containsPhaseEvent(events) {
		if pos, ok := e.table.nextEligiblePosition(e.table.TurnPosition); ok {
			e.table.TurnPosition = pos
			next, _ := e.table.PlayerAt(pos)
			events = append(events, Event{Name: EventNextPlayer, UserID: next.UserID})
		}
	}
	return events
}

// broadcastEvents publishes events the engine produced without a waiting
// Apply caller, routing private events to their player.
func (e *Engine) broadcastEvents(events []Event) {
	state := e.table.Snapshot()
	for _, ev := range events {
		if ev.IsPrivate() {
			e.broadcaster.PublishToPlayer(e.table.ID, ev.UserID, ev)
		} else {
			e.broadcaster.PublishToTable(e.table.ID, ev, state)
		}
	}
}

// Teardown refunds every seat's stack and outstanding bet to the external
// account and marks the table over. The registry broadcasts and unregisters
// afterwards.
func (e *Engine) Teardown(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.turnTimer != nil {
		e.turnTimer.Stop()
		e.turnTimer = nil
	}
	for _, p := range e.table.Players {
		if err := e.refundPlayer(ctx, p); err != nil {
			return err
		}
	}
	e.table.GameOver = true
	return e.persist(ctx)
}

// AbandonPlayer refunds one player that is leaving for good and marks them
// disconnected. Returns the refreshed snapshot for a FORCE_UPDATE push.
func (e *Engine) AbandonPlayer(ctx context.Context, userID string) (Snapshot, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	p, ok := e.table.Player(userID)
	if !ok {
		return Snapshot{}, fmt.Errorf("abandon: %s is not seated at table %s", userID, e.table.ID)
	}
	if err := e.refundPlayer(ctx, p); err != nil {
		return Snapshot{}, err
	}
	p.Connected = false
	p.Folded = true

	// When the leaver held the turn nothing else would ever move it, so
	// fold them through the same flow a timed-out player takes.
	var events []Event
	if current, ok := e.table.CurrentPlayer(); ok && current.UserID == userID {
		events = append([]Event{{Name: EventUserFolded, UserID: userID}}, e.advanceAfterFold(ctx)...)
	}

	if err := e.persist(ctx); err != nil {
		return e.table.Snapshot(), err
	}
	e.broadcastEvents(events)
	e.armTurnTimer()
	return e.table.Snapshot(), nil
}

// refundPlayer returns inGameBalance plus the outstanding bet to the
// external account and zeroes both; the bet's share leaves the pot with it.
func (e *Engine) refundPlayer(ctx context.Context, p *Player) error {
	refund := p.InGameBalance + p.Bet
	if refund == 0 {
		return nil
	}
	sctx, cancel := context.WithTimeout(ctx, e.persistTimeout)
	defer cancel()
	account, err := e.store.FindAccountByID(sctx, p.UserID)
	if err != nil {
		return fmt.Errorf("find account %s: %w", p.UserID, err)
	}
	account.Balance += refund
	if err := e.store.UpdateAccountByID(sctx, p.UserID, account); err != nil {
		return fmt.Errorf("refund account %s: %w", p.UserID, err)
	}
	e.table.Pot -= p.Bet
	p.InGameBalance = 0
	p.Bet = 0
	return nil
}

func (e *Engine) fireGameOver() {
	if e.onGameOver == nil {
		return
	}
	hook := e.onGameOver
	id := e.table.ID
	// Outside the lock; the registry will take its own.
	go hook(id)
}
