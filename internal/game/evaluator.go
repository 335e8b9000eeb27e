package game

import (
	"sort"

	"github.com/cardroomd/cardroomd/internal/deck"
)

// HandCategory enumerates poker hand categories from weakest to strongest.
type HandCategory int

const (
	HighCard HandCategory = iota
	Pair
	TwoPair
	ThreeOfAKind
	Straight
	Flush
	FullHouse
	FourOfAKind
	StraightFlush
	RoyalFlush
)

// String returns a human-readable category name.
func (c HandCategory) String() string {
	switch c {
	case HighCard:
		return "High Card"
	case Pair:
		return "Pair"
	case TwoPair:
		return "Two Pair"
	case ThreeOfAKind:
		return "Three of a Kind"
	case Straight:
		return "Straight"
	case Flush:
		return "Flush"
	case FullHouse:
		return "Full House"
	case FourOfAKind:
		return "Four of a Kind"
	case StraightFlush:
		return "Straight Flush"
	case RoyalFlush:
		return "Royal Flush"
	default:
		return "Unknown"
	}
}

// categorySpan separates category tiers in the score space. Every deciding
// detail fits below it: the largest is a 7-card high-card sum of 98.
const categorySpan = 100

// Category recovers the hand category a score falls into.
func Category(score int) HandCategory {
	c := HandCategory(score / categorySpan)
	if c > RoyalFlush {
		c = RoyalFlush
	}
	return c
}

// Evaluate scores a hand of 5 to 7 cards. Higher is strictly better; equal
// card sets always score equal, and ties across hands stay representable so
// the pot can be split evenly downstream. Falls back to a high-card sum
// when no stronger category matches.
func Evaluate(cards []deck.Card) int {
	counts := make(map[deck.Rank]int)
	bySuit := make(map[deck.Suit][]int)
	values := make([]int, 0, len(cards))
	for _, c := range cards {
		counts[c.Rank]++
		bySuit[c.Suit] = append(bySuit[c.Suit], c.Value())
		values = append(values, c.Value())
	}

	flushHigh := 0
	flushValues := []int(nil)
	for _, suited := range bySuit {
		if len(suited) >= 5 {
			flushValues = suited
			for _, v := range suited {
				if v > flushHigh {
					flushHigh = v
				}
			}
		}
	}

	if flushValues != nil {
		if sfHigh := straightHigh(flushValues); sfHigh > 0 {
			if sfHigh == int(deck.Ace) {
				return score(RoyalFlush, sfHigh)
			}
			return score(StraightFlush, sfHigh)
		}
	}

	quad, trips, pairs := groupRanks(counts)
	if quad > 0 {
		return score(FourOfAKind, 4*quad)
	}
	if len(trips) > 0 {
		pairRank := 0
		if len(trips) > 1 {
			pairRank = trips[1]
		}
		if len(pairs) > 0 && pairs[0] > pairRank {
			pairRank = pairs[0]
		}
		if pairRank > 0 {
			return score(FullHouse, 3*trips[0]+2*pairRank)
		}
	}
	if flushHigh > 0 {
		return score(Flush, flushHigh)
	}
	if high := straightHigh(values); high > 0 {
		return score(Straight, high)
	}
	if len(trips) > 0 {
		return score(ThreeOfAKind, 3*trips[0])
	}
	if len(pairs) >= 2 {
		return score(TwoPair, 2*pairs[0]+2*pairs[1])
	}
	if len(pairs) == 1 {
		return score(Pair, 2*pairs[0])
	}

	sum := 0
	for _, v := range values {
		sum += v
	}
	return score(HighCard, sum)
}

func score(cat HandCategory, detail int) int {
	return int(cat)*categorySpan + detail
}

// groupRanks splits rank counts into the highest quad rank, trips in
// descending order and pairs in descending order.
func groupRanks(counts map[deck.Rank]int) (quad int, trips, pairs []int) {
	for rank, n := range counts {
		switch {
		case n >= 4:
			if int(rank) > quad {
				quad = int(rank)
			}
		case n == 3:
			trips = append(trips, int(rank))
		case n == 2:
			pairs = append(pairs, int(rank))
		}
	}
	sort.Sort(sort.Reverse(sort.IntSlice(trips)))
	sort.Sort(sort.Reverse(sort.IntSlice(pairs)))
	return quad, trips, pairs
}

// straightHigh returns the top card value of the best five-card run in the
// given values, or 0 when there is none. The wheel (A-2-3-4-5) counts with
// a high card of 5.
func straightHigh(values []int) int {
	present := make(map[int]bool, len(values))
	for _, v := range values {
		present[v] = true
	}
	if present[int(deck.Ace)] {
		present[1] = true
	}

	best := 0
	for high := int(deck.Ace); high >= 5; high-- {
		run := true
		for v := high - 4; v <= high; v++ {
			if !present[v] {
				run = false
				break
			}
		}
		if run {
			best = high
			break
		}
	}
	return best
}
