package state

import (
	"crypto/sha256"
	"encoding/json"
	"sort"
)

// RoundStatus is derived lazily from the current height: there is no explicit
// open->awaitingReveal transition, the close height simply passes.
type RoundStatus string

const (
	RoundOpen           RoundStatus = "open"
	RoundAwaitingReveal RoundStatus = "awaitingReveal"
	RoundRevealed       RoundStatus = "revealed"
)

// Round is one commit-reveal wagering round. Rounds are append-only: once
// revealed they remain as immutable history (claims only zero individual
// stakes, reclaim only zeroes the pot).
type Round struct {
	ID         uint64 `json:"id"`
	Commitment []byte `json:"commitment"` // sha256 of the operator's secret

	OpenHeight  int64 `json:"openHeight"`
	CloseHeight int64 `json:"closeHeight"`

	Revealed bool   `json:"revealed"`
	Secret   []byte `json:"secret,omitempty"`
	// Entropy is pinned at reveal time so claims re-derive the same outcome
	// even after the entropy log prunes the close-height hash.
	Entropy []byte `json:"entropy,omitempty"`
	Outcome uint32 `json:"outcome,omitempty"`

	// Pot is the sum of every stake ever placed. Claims do not decrement it
	// (each payout is a fraction of the full pot); only reclaim zeroes it.
	Pot        uint64            `json:"pot"`
	SlotTotals map[uint32]uint64 `json:"slotTotals,omitempty"`

	// Bets maps bettor -> slot -> accumulated stake.
	Bets map[string]map[uint32]uint64 `json:"bets,omitempty"`
}

func (r *Round) normalize() {
	if r.SlotTotals == nil {
		r.SlotTotals = map[uint32]uint64{}
	}
	if r.Bets == nil {
		r.Bets = map[string]map[uint32]uint64{}
	}
}

// Status reports the round's lifecycle state as observed at height.
func (r *Round) Status(height int64) RoundStatus {
	if r.Revealed {
		return RoundRevealed
	}
	if height > r.CloseHeight {
		return RoundAwaitingReveal
	}
	return RoundOpen
}

// Stake returns the accumulated stake for (bettor, slot).
func (r *Round) Stake(bettor string, slot uint32) uint64 {
	return r.Bets[bettor][slot]
}

// AddStake accumulates a bet into the per-bettor, per-slot and pot totals.
// Callers validate slot and amount; this only does the bookkeeping.
func (r *Round) AddStake(bettor string, slot uint32, amount uint64) {
	slots := r.Bets[bettor]
	if slots == nil {
		slots = map[uint32]uint64{}
		r.Bets[bettor] = slots
	}
	slots[slot] += amount
	r.SlotTotals[slot] += amount
	r.Pot += amount
}

// ZeroStake consumes the (bettor, slot) stake and returns the amount removed.
func (r *Round) ZeroStake(bettor string, slot uint32) uint64 {
	slots := r.Bets[bettor]
	amt := slots[slot]
	if amt != 0 {
		delete(slots, slot)
		if len(slots) == 0 {
			delete(r.Bets, bettor)
		}
	}
	return amt
}

// RestoreStake reinstates a stake consumed by ZeroStake after a failed
// transfer, so a claim either pays out or leaves no trace.
func (r *Round) RestoreStake(bettor string, slot uint32, amount uint64) {
	if amount == 0 {
		return
	}
	slots := r.Bets[bettor]
	if slots == nil {
		slots = map[uint32]uint64{}
		r.Bets[bettor] = slots
	}
	slots[slot] += amount
}

// digest hashes a normalized view of the round for the app hash. Maps are
// flattened into sorted slices for key-order stability.
func (r *Round) digest() []byte {
	type slotKV struct {
		Slot  uint32 `json:"slot"`
		Total uint64 `json:"total"`
	}
	type betKV struct {
		Bettor string `json:"bettor"`
		Slot   uint32 `json:"slot"`
		Amount uint64 `json:"amount"`
	}

	slots := make([]slotKV, 0, len(r.SlotTotals))
	for slot, total := range r.SlotTotals {
		slots = append(slots, slotKV{Slot: slot, Total: total})
	}
	sort.Slice(slots, func(i, j int) bool { return slots[i].Slot < slots[j].Slot })

	bets := make([]betKV, 0)
	for bettor, bySlot := range r.Bets {
		for slot, amt := range bySlot {
			bets = append(bets, betKV{Bettor: bettor, Slot: slot, Amount: amt})
		}
	}
	sort.Slice(bets, func(i, j int) bool {
		if bets[i].Bettor != bets[j].Bettor {
			return bets[i].Bettor < bets[j].Bettor
		}
		return bets[i].Slot < bets[j].Slot
	})

	normalized := struct {
		ID          uint64   `json:"id"`
		Commitment  []byte   `json:"commitment"`
		OpenHeight  int64    `json:"openHeight"`
		CloseHeight int64    `json:"closeHeight"`
		Revealed    bool     `json:"revealed"`
		Secret      []byte   `json:"secret,omitempty"`
		Entropy     []byte   `json:"entropy,omitempty"`
		Outcome     uint32   `json:"outcome"`
		Pot         uint64   `json:"pot"`
		Slots       []slotKV `json:"slots"`
		Bets        []betKV  `json:"bets"`
	}{
		ID:          r.ID,
		Commitment:  r.Commitment,
		OpenHeight:  r.OpenHeight,
		CloseHeight: r.CloseHeight,
		Revealed:    r.Revealed,
		Secret:      r.Secret,
		Entropy:     r.Entropy,
		Outcome:     r.Outcome,
		Pot:         r.Pot,
		Slots:       slots,
		Bets:        bets,
	}

	b, _ := json.Marshal(normalized)
	sum := sha256.Sum256(b)
	return sum[:]
}

// CurrentRound returns the most recently opened round, or nil before the
// first open. Round id 0 never exists.
func (s *State) CurrentRound() *Round {
	if s.NextRoundID <= 1 {
		return nil
	}
	return s.Rounds[s.NextRoundID-1]
}
